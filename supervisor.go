package nphdaq

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sys/unix"
)

// Supervisor owns the device, the live config, both rings, and the
// lifecycle of the three worker goroutines, grounded on main/setup/
// teardown/read_config/signal_handler in
// original_source/src/nuphase-acq.c. Signal handling lives exclusively
// here: workers never call signal.Notify or touch the shutdown flag
// directly, matching the original's comment that "the main thread gets
// all the signals it doesn't block first."
type Supervisor struct {
	dev       Device
	codec     RecordCodec
	aligner   AlignmentRunner
	cfg       *ReloadableConfig
	onErr     ErrorCallback
	summary   io.Writer

	acqRing *RingBuffer[EventBatch]
	monRing *RingBuffer[StatusSnapshot]

	pid   *PIDState
	fsavg *FastScalerWindow

	store *StatusStore

	runNumber int
	runDir    string

	shuttingDown atomic.Bool
	cancel       context.CancelFunc
}

// SupervisorOption customizes NewSupervisor beyond the required
// Device/Config pair, analogous to lethe's functional-option
// constructors (NewWithConfig et al.).
type SupervisorOption func(*Supervisor)

// WithErrorCallback installs an ErrorCallback every component reports
// through instead of an internal logger, matching the teacher's pure-
// callback error-reporting idiom.
func WithErrorCallback(cb ErrorCallback) SupervisorOption {
	return func(s *Supervisor) { s.onErr = cb }
}

// WithSummaryWriter sets where the writer's periodic human-readable
// progress line is printed. Defaults to os.Stdout.
func WithSummaryWriter(w io.Writer) SupervisorOption {
	return func(s *Supervisor) { s.summary = w }
}

// WithAlignmentRunner installs the external alignment-command runner
// used during startup. Without one, startup skips the alignment step
// entirely (suitable for simulated devices in tests).
func WithAlignmentRunner(a AlignmentRunner) SupervisorOption {
	return func(s *Supervisor) { s.aligner = a }
}

// WithRecordCodec installs the wire-format serializer the writer uses.
// Required for Run to produce any output; omitted in configurations that
// only exercise the control loop.
func WithRecordCodec(c RecordCodec) SupervisorOption {
	return func(s *Supervisor) { s.codec = c }
}

// NewSupervisor constructs a Supervisor ready for Run. cfg's structural
// fields (spi_devices, buffer_capacity, n_fast_scaler_avg) take effect
// only at this point; a later Reload cannot change them without a
// process restart.
func NewSupervisor(cfg Config, dev Device, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		dev:     dev,
		cfg:     NewReloadableConfig(cfg),
		summary: os.Stdout,
		acqRing: NewRingBuffer[EventBatch](cfg.Device.BufferCapacity, nil),
		monRing: NewRingBuffer[StatusSnapshot](cfg.Device.BufferCapacity, nil),
		fsavg:   NewFastScalerWindow(cfg.Control.NFastScalerAvg),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.acqRing.onFull = s.onErr
	s.monRing.onFull = s.onErr
	s.pid = NewPIDState(parsePIDFormula(cfg.Control.PIDFormula), cfg.Control.KP, cfg.Control.KI, cfg.Control.KD)
	return s
}

func parsePIDFormula(s string) PIDFormula {
	if s == "classic" {
		return PIDFormulaClassic
	}
	return PIDFormulaLegacy
}

// Run performs the full startup sequence, runs the three worker
// goroutines plus its own signal-driven control loop until run_length
// elapses or a terminal signal arrives, then tears everything down.
// Run blocks until shutdown completes.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigCh)

	if err := s.startup(ctx); err != nil {
		return err
	}
	defer s.teardown()

	var wg sync.WaitGroup
	acqWorker := NewAcquisitionWorker(s.dev, s.acqRing, s.onErr)
	monWorker := NewMonitorWorker(s.dev, s.cfg, s.monRing, s.pid, s.fsavg, s.onErr)

	var writer *WriterWorker
	if s.codec != nil {
		var err error
		writer, err = NewWriterWorker(s.codec, s.cfg, s.acqRing, s.monRing, s.store, s.runDir, s.runNumber, s.dev.SurfaceSkippedInLastSecond, s.summary, s.onErr)
		if err != nil {
			return err
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if writer == nil {
			return
		}
		writer.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if cfg := s.cfg.Snapshot(); cfg.Output.RealtimePriority > 0 {
			if err := setRealtimePriority(cfg.Output.RealtimePriority); err != nil {
				report(s.onErr, "set_realtime_priority", err)
			}
		}
		acqWorker.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		monWorker.Run(ctx)
	}()

	start := time.Now()
	runLength := s.cfg.Snapshot().Output.RunLengthSecs

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Cancellation by the caller shuts down like a deadly signal
			// (CancelWait on the device), then unblocks any worker parked
			// in Reserve/Pop on a ring that will never drain/fill again.
			s.fatal()
			s.acqRing.Close()
			s.monRing.Close()
			wg.Wait()
			return nil
		case sig := <-sigCh:
			if sig == syscall.SIGUSR1 {
				s.handleReload()
				continue
			}
			report(s.onErr, "signal", fmt.Errorf("caught deadly signal %v", sig))
			s.fatal()
		case <-ticker.C:
			if runLength > 0 && time.Since(start).Seconds() > runLength {
				s.fatal()
			}
		}
	}
}

// fatal mirrors fatal(): sets the shutdown flag (via ctx cancellation)
// and unblocks any device call a worker is parked in.
func (s *Supervisor) fatal() {
	if s.shuttingDown.Swap(true) {
		return
	}
	if err := s.dev.CancelWait(); err != nil {
		report(s.onErr, "cancel_wait", err)
	}
	s.cancel()
}

// handleReload re-reads nothing from disk itself (LoadConfig is the
// caller's job via Reload); it reapplies device configuration and
// unconditionally reinitializes the PID state, matching read_config's
// "always call pid_state_init, even on reread" behavior from spec.md §8
// scenario 6.
func (s *Supervisor) handleReload() {
	cfg := s.cfg.Snapshot()
	if err := s.dev.Configure(context.Background(), cfg.Device); err != nil {
		report(s.onErr, "reload_configure_device", err)
	}
	s.pid.Formula = parsePIDFormula(cfg.Control.PIDFormula)
	s.pid.KP, s.pid.KI, s.pid.KD = cfg.Control.KP, cfg.Control.KI, cfg.Control.KD
	s.pid.Reset()

	if cfg.Output.RunFile != "" {
		if err := advanceRunNumber(cfg.Output.RunFile, s.runNumber+1); err != nil {
			report(s.onErr, "reload_advance_run_number", err)
		}
	}
}

// Reload installs fresh as the live configuration, returning whether a
// structural field changed that requires a process restart to take
// effect (buffer capacity, spi devices, fast-scaler window length).
func (s *Supervisor) Reload(fresh Config) bool {
	return s.cfg.Reload(fresh)
}

func (s *Supervisor) startup(ctx context.Context) error {
	cfg := s.cfg.Snapshot()

	runNumber, err := readRunNumber(cfg.Output.RunFile)
	if err != nil {
		return err
	}
	s.runNumber = runNumber
	if err := advanceRunNumber(cfg.Output.RunFile, runNumber+1); err != nil {
		return err
	}
	s.runDir = filepath.Join(cfg.Output.OutputDirectory, fmt.Sprintf("run%d", runNumber))

	if cfg.Device.AlignmentCommand != "" && s.aligner != nil {
		if err := s.runAlignment(ctx, cfg); err != nil {
			return err
		}
	}

	if cfg.Device.Surface.Shutdown {
		if err := s.dev.SurfacePowerdown(); err != nil {
			report(s.onErr, "surface_powerdown", err)
		}
	}

	if err := s.dev.Configure(ctx, cfg.Device); err != nil {
		return fmt.Errorf("%w: %v", errDeviceOpenFailed, err)
	}

	if cfg.Control.LoadThresholdsFromStatusFile && cfg.Control.StatusSaveFile != "" {
		store, valid, err := OpenStatusStore(cfg.Control.StatusSaveFile)
		if err != nil {
			report(s.onErr, "open_status_store", err)
		} else {
			s.store = store
			if valid {
				if err := s.dev.SetThresholds(store.LastThresholds()); err != nil {
					report(s.onErr, "seed_thresholds_from_status_store", err)
				}
			}
		}
	}

	if err := s.dev.SetReadoutNumberOffset(uint64(runNumber) * 1_000_000_000); err != nil {
		report(s.onErr, "set_readout_number_offset", err)
	}

	if cfg.Device.EnableBeamforming {
		if err := s.dev.SetTriggerEnables(BoardMaster, true); err != nil {
			report(s.onErr, "enable_beamforming_master", err)
		}
		if err := s.dev.SetTriggerEnables(BoardSlave, true); err != nil {
			report(s.onErr, "enable_beamforming_slave", err)
		}
	}

	return nil
}

func (s *Supervisor) runAlignment(ctx context.Context, cfg Config) error {
	op := func() (struct{}, error) {
		if err := s.aligner.Align(ctx); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithMaxTries(5),
		backoff.WithNotify(func(err error, d time.Duration) {
			report(s.onErr, "alignment_retry", err)
			if rerr := s.aligner.RebootFPGAPower(ctx); rerr != nil {
				report(s.onErr, "alignment_reboot_fpga", rerr)
			}
			if rerr := s.aligner.ReconfigureFPGA(ctx); rerr != nil {
				report(s.onErr, "alignment_reconfigure_fpga", rerr)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", errAlignmentFailed, err)
	}
	if !cfg.Device.ApplyAttenuations {
		if err := s.aligner.ResetAttenuation(ctx, cfg.Device.DesiredRMSMaster, cfg.Device.DesiredRMSSlave); err != nil {
			report(s.onErr, "alignment_reset_attenuation", err)
		}
	}
	return nil
}

func (s *Supervisor) teardown() {
	if err := s.dev.Calpulse(false); err != nil {
		report(s.onErr, "teardown_calpulse_off", err)
	}
	cfg := s.cfg.Snapshot()
	if cfg.Device.DisableTrigoutOnExit {
		if err := s.dev.DisableTriggerOutput(); err != nil {
			report(s.onErr, "teardown_disable_trigout", err)
		}
	}
	if err := s.dev.Close(); err != nil {
		report(s.onErr, "teardown_close", err)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			report(s.onErr, "teardown_close_status_store", err)
		}
	}
}

// schedParam mirrors struct sched_param from <sched.h>: a single int
// priority field, which is all sched_setscheduler reads for SCHED_FIFO.
type schedParam struct {
	priority int32
}

// setRealtimePriority applies SCHED_FIFO to the calling OS thread, which
// the caller must have already pinned with runtime.LockOSThread: the Go
// equivalent of pthread_setschedparam(the_acq_thread, SCHED_FIFO, &sp)
// in setup(). golang.org/x/sys/unix has no high-level wrapper for
// sched_setscheduler, so this goes through the raw syscall directly.
func setRealtimePriority(priority int) error {
	sp := schedParam{priority: int32(priority)}
	_, _, errno := unix.Syscall(unix.SYS_SCHED_SETSCHEDULER, 0, uintptr(unix.SCHED_FIFO), uintptr(unsafe.Pointer(&sp)))
	if errno != 0 {
		return errno
	}
	return nil
}
