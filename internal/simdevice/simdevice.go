// Package simdevice implements a deterministic, synthetic nphdaq.Device
// for tests and the daemon's -sim flag: it needs no SPI hardware and
// produces uniformly random synthetic scaler counts so the monitor's PID
// loop has something to react to.
package simdevice

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nuphase/nphdaq"
)

// Device is a fake nphdaq.Device. All methods are safe to call from the
// one goroutine each is documented to run on; it does not attempt to be
// safe for arbitrary concurrent use beyond that.
type Device struct {
	mu     sync.Mutex
	rng    *rand.Rand
	cfg    nphdaq.DeviceConfig
	thresholds [nphdaq.NumBeams]float64

	eventNumber atomic.Uint64
	offset      uint64

	cancel     chan struct{}
	cancelOnce sync.Once

	beamforming [2]bool
	trigoutOn   bool
	calpulseOn  bool
	phasedOn    bool

	skippedSurface atomic.Int64
}

// New constructs a simulated device seeded for reproducible tests.
func New(seed int64) *Device {
	return &Device{
		rng:    rand.New(rand.NewSource(seed)),
		cancel: make(chan struct{}),
	}
}

func (d *Device) Configure(ctx context.Context, cfg nphdaq.DeviceConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
	d.trigoutOn = cfg.EnableTrigout
	return nil
}

func (d *Device) SetReadoutNumberOffset(offset uint64) error {
	d.offset = offset
	return nil
}

func (d *Device) SetTriggerEnables(board nphdaq.Board, beamforming bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.beamforming[board] = beamforming
	return nil
}

func (d *Device) SurfacePowerdown() error { return nil }

func (d *Device) SetThresholds(thresholds [nphdaq.NumBeams]float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.thresholds = thresholds
	return nil
}

// WaitForAndReadMultipleEvents synthesizes one phased-array event (and,
// one tick in three, a surface event) immediately: a real device blocks
// on hardware, but tests would rather not sleep.
func (d *Device) WaitForAndReadMultipleEvents(ctx context.Context, batch *nphdaq.EventBatch) error {
	select {
	case <-d.cancel:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	n := d.offset + d.eventNumber.Add(1)
	batch.Events[0] = nphdaq.Event{EventNumber: n, Timestamp: time.Now()}
	batch.Headers[0] = nphdaq.Header{EventNumber: n, Timestamp: time.Now()}
	batch.NFilled = 1

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rng.Intn(3) == 0 {
		ev := nphdaq.Event{EventNumber: n, Timestamp: time.Now()}
		hd := nphdaq.Header{EventNumber: n, Timestamp: time.Now()}
		batch.SurfaceEvent = &ev
		batch.SurfaceHeader = &hd
	}
	return nil
}

// ReadStatus synthesizes slow and fast scaler counts as uniform draws in
// [0, 50) so that a monitor tick has nontrivial error terms to react to.
func (d *Device) ReadStatus(ctx context.Context) (nphdaq.StatusSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var st nphdaq.StatusSnapshot
	st.Timestamp = time.Now()
	for i := 0; i < nphdaq.NumBeams; i++ {
		st.BeamScalersSlow[i] = uint16(d.rng.Intn(50))
		st.BeamScalersFast[i] = uint16(d.rng.Intn(50))
		st.OldThresholds[i] = d.thresholds[i]
	}
	return st, nil
}

func (d *Device) Calpulse(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calpulseOn = on
	return nil
}

func (d *Device) PhasedTriggerReadout(enable bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.phasedOn = enable
	return nil
}

func (d *Device) SwTrigger() error { return nil }

func (d *Device) SurfaceSkippedInLastSecond() (int, error) {
	return int(d.skippedSurface.Load()), nil
}

func (d *Device) DisableTriggerOutput() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trigoutOn = false
	return nil
}

func (d *Device) CancelWait() error {
	d.cancelOnce.Do(func() { close(d.cancel) })
	return nil
}

func (d *Device) Close() error { return nil }
