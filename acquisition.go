package nphdaq

import "context"

// AcquisitionWorker fills the acquisition ring from the device's
// blocking multi-event read, grounded on acq_thread in
// original_source/src/nuphase-acq.c. It is deliberately the thinnest
// worker in the daemon: nearly all the work happens inside the Device
// implementation's read call.
type AcquisitionWorker struct {
	dev   Device
	ring  *RingBuffer[EventBatch]
	onErr ErrorCallback
}

// NewAcquisitionWorker wires an AcquisitionWorker against its device and
// output ring.
func NewAcquisitionWorker(dev Device, ring *RingBuffer[EventBatch], onErr ErrorCallback) *AcquisitionWorker {
	return &AcquisitionWorker{dev: dev, ring: ring, onErr: onErr}
}

// Run reserves a batch slot, blocks (retrying) on the device read until
// at least one event lands or ctx is canceled, then commits the slot.
// This mirrors acq_thread's getmem -> zero nfilled -> loop-until-filled
// -> commit sequence exactly, including reusing the same reserved slot
// across retries rather than reserving a fresh one each attempt.
func (a *AcquisitionWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		batch := a.ring.Reserve()
		*batch = EventBatch{}

		for batch.NFilled == 0 {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if err := a.dev.WaitForAndReadMultipleEvents(ctx, batch); err != nil {
				report(a.onErr, "wait_for_and_read_multiple_events", err)
				if ctx.Err() != nil {
					return
				}
			}
		}

		a.ring.Commit()
	}
}
