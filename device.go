package nphdaq

import "context"

// Board identifies one of the two SPI-attached digitizer boards chained
// together, matching the original's MASTER/SLAVE distinction.
type Board int

const (
	BoardMaster Board = iota
	BoardSlave
)

// Device stands in for the serial-bus driver that talks to the phased-
// array digitizer hardware: this package never opens a SPI device or
// touches a register directly. Every method here corresponds to one
// nuphase_* call in original_source/src/nuphase-acq.c, grouped by
// concern. Implementations must be safe for the call patterns this
// package uses: AcquisitionWorker calls WaitForAndReadMultipleEvents,
// MonitorWorker calls ReadStatus, SetThresholds, PhasedTriggerReadout and
// SwTrigger, WriterWorker calls SurfaceSkippedInLastSecond, and the
// Supervisor calls the remaining methods before the workers start or
// after they stop, except Configure (on reload) and CancelWait, which it
// calls while the workers run.
type Device interface {
	// Configure applies the full device configuration in one call,
	// matching configure_device()'s single entry point: spi clock,
	// buffer lengths, trigger output/ext-trigger-input, calpulser state,
	// pretrigger depths, trigger delays, attenuation, trigger/channel
	// masks, poll interval, min threshold, and surface-array settings.
	Configure(ctx context.Context, cfg DeviceConfig) error

	// SetReadoutNumberOffset biases the event numbering the device
	// reports, so consecutive runs don't reuse event numbers
	// (nuphase_set_readout_number_offset).
	SetReadoutNumberOffset(offset uint64) error

	// SetTriggerEnables turns the beamforming trigger bit on or off for
	// one board (nuphase_set_trigger_enables / nuphase_get_trigger_enables).
	SetTriggerEnables(board Board, beamforming bool) error

	// SurfacePowerdown cuts power to the surface array entirely,
	// applied before Configure when DeviceConfig.Surface.Shutdown is
	// set (nuphase_surface_powerdown).
	SurfacePowerdown() error

	// SetThresholds pushes a full set of per-beam trigger thresholds to
	// the device, used both at startup (when resuming from a saved
	// status file) and after every monitor tick.
	SetThresholds(thresholds [NumBeams]float64) error

	// WaitForAndReadMultipleEvents blocks until at least one phased-array
	// event (or the surface event) is available, filling batch in place,
	// or returns early if ctx is canceled (the Go equivalent of the
	// original's die flag unblocking a blocking hardware read).
	WaitForAndReadMultipleEvents(ctx context.Context, batch *EventBatch) error

	// ReadStatus reads one device status snapshot (scalers, thresholds,
	// etc.), matching nuphase_read_status.
	ReadStatus(ctx context.Context) (StatusSnapshot, error)

	// Calpulse turns the calibration pulser on (true) or off (false).
	Calpulse(on bool) error

	// PhasedTriggerReadout enables or disables the phased-array trigger
	// path, used by the monitor's secs_before_phased_trigger gating.
	PhasedTriggerReadout(enable bool) error

	// SwTrigger issues a software trigger (nuphase_sw_trigger), used by
	// the monitor's sw_trigger_interval.
	SwTrigger() error

	// SurfaceSkippedInLastSecond reports how many surface triggers were
	// dropped due to throttling, for the writer's summary line.
	SurfaceSkippedInLastSecond() (int, error)

	// DisableTriggerOutput turns off the external trigger output
	// regardless of its configured state, used at teardown when
	// disable_trigout_on_exit is set (nuphase_get_trigger_output,
	// clear the enable bit, nuphase_configure_trigger_output).
	DisableTriggerOutput() error

	// CancelWait unblocks any goroutine currently parked in
	// WaitForAndReadMultipleEvents or ReadStatus, for cooperative
	// shutdown (nuphase_cancel_wait).
	CancelWait() error

	// Close releases the device (nuphase_close).
	Close() error
}

// AlignmentRunner executes the external board-alignment command used
// during startup (system(config.alignment_command) in the original's
// setup()), with the FPGA-reboot/reconfigure and attenuation-reset
// fallbacks the original applies on repeated failure. A real
// implementation shells out deliberately and only to a configured,
// operator-controlled command — never to a config value derived from
// untrusted input.
type AlignmentRunner interface {
	Align(ctx context.Context) error
	ReconfigureFPGA(ctx context.Context) error
	RebootFPGAPower(ctx context.Context) error
	ResetAttenuation(ctx context.Context, desiredRMSMaster, desiredRMSSlave float64) error
}
