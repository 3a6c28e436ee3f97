package nphdaq

import "time"

// EventBurst bounds how many waveform events a single acquisition read
// can return at once, matching NP_NUM_BUFFER's role as the per-read cap
// in original_source/src/nuphase-acq.c's acq_buffer_t.
const EventBurst = 16

// Event is a single digitized waveform capture. RecordCodec, not this
// type, owns the on-disk wire format; this is the in-memory shape
// AcquisitionWorker hands to WriterWorker.
type Event struct {
	EventNumber uint64
	Timestamp   time.Time
	Waveforms   [][]int16 // one slice per readout channel
}

// Header carries an event's metadata separately from its waveform
// payload, mirroring the original's parallel events/headers arrays.
type Header struct {
	EventNumber      uint64
	Timestamp        time.Time
	TriggerThreshold [NumBeams]float64
	TriggerMask      uint32
}

// EventBatch is what one AcquisitionWorker read produces and pushes onto
// the acquisition ring, grounded on acq_buffer_t: up to EventBurst
// phased-array events plus at most one surface event, since the surface
// array free-runs at a much lower rate.
type EventBatch struct {
	Events       [EventBurst]Event
	Headers      [EventBurst]Header
	NFilled      int
	SurfaceEvent *Event
	SurfaceHeader *Header
}

// StatusSnapshot is what one MonitorWorker tick produces and pushes onto
// the monitor ring, grounded on monitor_buffer_t: the raw device status
// as read, the newly computed per-beam thresholds, and a point-in-time
// copy of the PID accumulators for diagnostics/status-file persistence.
type StatusSnapshot struct {
	Timestamp        time.Time
	BeamScalersSlow  [NumBeams]uint16
	BeamScalersFast  [NumBeams]uint16
	BeamScalersGated [NumBeams]uint16
	OldThresholds    [NumBeams]float64
	NewThresholds    [NumBeams]float64
	// FastScalerAvg is the fast-scaler running average per beam at tick
	// time (FastScalerWindow.Average), cached here so the writer's
	// periodic summary can report it without reaching back into the
	// monitor goroutine's state.
	FastScalerAvg [NumBeams]float64
	PIDError      [NumBeams]float64
	PIDIntegral   [NumBeams]float64
	PIDDerivative [NumBeams]float64
}
