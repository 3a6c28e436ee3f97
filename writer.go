package nphdaq

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/agilira/go-timecache"
)

// WriterWorker drains both rings and persists their contents to rotating
// gzip-compressed files under a per-run directory tree, grounded on
// write_thread in original_source/src/nuphase-acq.c.
type WriterWorker struct {
	codec RecordCodec
	cfg   *ReloadableConfig
	acq   *RingBuffer[EventBatch]
	mon   *RingBuffer[StatusSnapshot]
	store *StatusStore // optional mmap-backed persisted-threshold file
	onErr ErrorCallback
	skippedSurface func() (int, error)

	summary io.Writer

	runDir    string
	runNumber int

	dataFile, headerFile           *rotatingFile
	surfaceFile, surfaceHeaderFile *rotatingFile
	statusFile                     *rotatingFile

	eventsWrittenSinceSummary int
	totalEvents               int
	totalSurfaceEvents        int
	startTime                 time.Time
	lastSummary               time.Time

	// lastStatus is the most recent StatusSnapshot handed to writeStatus,
	// surfaced by maybePrintSummary the way the original's pid_state_print
	// reports against its last_status/last_pid globals.
	lastStatus     StatusSnapshot
	haveLastStatus bool

	// clock caches wall-clock reads for the drain loop's per-iteration
	// summary-interval check, the same optimization the teacher applies
	// to its own per-write timestamping.
	clock *timecache.TimeCache
}

// NewWriterWorker wires a WriterWorker. runDir is the already-resolved
// "<output_directory>/run<N>" path; the caller (Supervisor) is
// responsible for run-number bookkeeping (runfile.go).
func NewWriterWorker(codec RecordCodec, cfg *ReloadableConfig, acq *RingBuffer[EventBatch], mon *RingBuffer[StatusSnapshot], store *StatusStore, runDir string, runNumber int, skippedSurface func() (int, error), summary io.Writer, onErr ErrorCallback) (*WriterWorker, error) {
	if err := ensureRunDirs(runDir); err != nil {
		return nil, err
	}

	w := &WriterWorker{
		codec: codec, cfg: cfg, acq: acq, mon: mon, store: store,
		onErr: onErr, skippedSurface: skippedSurface, summary: summary,
		runDir: runDir, runNumber: runNumber,
		startTime: time.Now(), lastSummary: time.Now(),
		clock: timecache.NewWithResolution(time.Millisecond),
	}

	// copy_configs() in the original stages the program's own config files
	// into the run directory; this repo's equivalent is CopyPathsToRundir,
	// which the caller is expected to include the resolved config path in
	// when CopyConfigs is set.
	c := cfg.Snapshot()
	if len(c.Output.CopyPathsToRundir) > 0 {
		if err := copyPathsToRundir(c.Output.CopyPathsToRundir, runDir); err != nil {
			report(onErr, "copy_paths_to_rundir", err)
		}
	}

	return w, nil
}

// Run drains both rings until ctx is canceled AND both rings are empty,
// mirroring write_thread's "no data and die -> close everything and
// break" shutdown condition.
func (w *WriterWorker) Run(ctx context.Context) {
	for {
		haveData := false
		haveStatus := false

		if batch, ok := w.acq.TryPop(); ok {
			w.writeBatch(batch)
			haveData = true
		}
		if snap, ok := w.mon.TryPop(); ok {
			w.writeStatus(snap)
			haveStatus = true
		}

		w.maybePrintSummary()

		if !haveData && !haveStatus {
			if ctx.Err() != nil {
				w.closeAll()
				return
			}
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if w.acq.Occupancy() < w.acq.Capacity()/3 {
			time.Sleep(25 * time.Millisecond)
		}
	}
}

func (w *WriterWorker) writeBatch(batch EventBatch) {
	full := w.cfg.Snapshot()
	cfg := full.Output
	surfaceEventsPerFile := full.Device.Surface.EventsPerFile
	numSurface := 0
	if batch.SurfaceEvent != nil {
		numSurface = 1
	}
	w.eventsWrittenSinceSummary += batch.NFilled + numSurface
	w.totalEvents += batch.NFilled + numSurface
	w.totalSurfaceEvents += numSurface

	for j := 0; j < batch.NFilled; j++ {
		if w.dataFile == nil || w.dataFile.count >= cfg.EventsPerFile {
			w.rotate(&w.dataFile, fmt.Sprintf("%d.event.gz", batch.Events[j].EventNumber), "event")
		}
		if w.headerFile == nil || w.headerFile.count >= cfg.EventsPerFile {
			w.rotate(&w.headerFile, fmt.Sprintf("%d.header.gz", batch.Headers[j].EventNumber), "header")
		}
		if err := w.codec.WriteEvent(w.dataFile.Writer(), batch.Events[j]); err != nil {
			report(w.onErr, "write_event", err)
		}
		if err := w.codec.WriteHeader(w.headerFile.Writer(), batch.Headers[j]); err != nil {
			report(w.onErr, "write_header", err)
		}
		w.dataFile.count++
		w.headerFile.count++
	}

	if batch.SurfaceEvent != nil {
		if w.surfaceFile == nil || w.surfaceFile.count >= surfaceEventsPerFile {
			w.rotate(&w.surfaceFile, fmt.Sprintf("%d.surface_event.gz", batch.SurfaceEvent.EventNumber), "event")
		}
		if w.surfaceHeaderFile == nil || w.surfaceHeaderFile.count >= surfaceEventsPerFile {
			w.rotate(&w.surfaceHeaderFile, fmt.Sprintf("%d.surface_header.gz", batch.SurfaceHeader.EventNumber), "header")
		}
		if err := w.codec.WriteEvent(w.surfaceFile.Writer(), *batch.SurfaceEvent); err != nil {
			report(w.onErr, "write_surface_event", err)
		}
		if err := w.codec.WriteHeader(w.surfaceHeaderFile.Writer(), *batch.SurfaceHeader); err != nil {
			report(w.onErr, "write_surface_header", err)
		}
		w.surfaceFile.count++
		w.surfaceHeaderFile.count++
	}
}

func (w *WriterWorker) writeStatus(snap StatusSnapshot) {
	cfg := w.cfg.Snapshot().Output
	if w.statusFile == nil || w.statusFile.count >= cfg.StatusPerFile {
		name := fmt.Sprintf("%d.status.gz", snap.Timestamp.Unix())
		w.rotate(&w.statusFile, name, "status")
	}

	if w.store != nil {
		if err := w.store.Write(snap); err != nil {
			report(w.onErr, "status_store_write", err)
		}
	}

	if err := w.codec.WriteStatus(w.statusFile.Writer(), snap); err != nil {
		report(w.onErr, "write_status", err)
	}
	w.statusFile.count++

	w.lastStatus = snap
	w.haveLastStatus = true
}

func (w *WriterWorker) rotate(slot **rotatingFile, name, subdir string) {
	if *slot != nil {
		if err := (*slot).Close(); err != nil {
			report(w.onErr, "rotate_close", err)
		}
	}
	path := filepath.Join(w.runDir, subdir, name)
	rf, err := openRotatingFile(path)
	if err != nil {
		report(w.onErr, "rotate_open", err)
		return
	}
	*slot = rf
}

func (w *WriterWorker) closeAll() {
	for _, slot := range []**rotatingFile{&w.dataFile, &w.headerFile, &w.surfaceFile, &w.surfaceHeaderFile, &w.statusFile} {
		if *slot != nil {
			if err := (*slot).Close(); err != nil {
				report(w.onErr, "close", err)
			}
			*slot = nil
		}
	}
	w.clock.Stop()
}

// maybePrintSummary writes the periodic human-readable progress line,
// mirroring write_thread's print_interval block.
func (w *WriterWorker) maybePrintSummary() {
	cfg := w.cfg.Snapshot().Output
	if cfg.PrintIntervalSecs <= 0 || w.summary == nil {
		return
	}
	now := w.clock.CachedTime()
	elapsed := now.Sub(w.lastSummary).Seconds()
	if elapsed < cfg.PrintIntervalSecs {
		return
	}

	rate := 0.0
	if w.eventsWrittenSinceSummary > 0 {
		rate = float64(w.eventsWrittenSinceSummary) / elapsed
	}
	fmt.Fprintf(w.summary, "---------after %d seconds-----------\n", int(now.Sub(w.startTime).Seconds()))
	fmt.Fprintf(w.summary, "  total events written: %d (including %d surface)\n", w.totalEvents, w.totalSurfaceEvents)
	fmt.Fprintf(w.summary, "  write rate: %.3g Hz\n", rate)
	fmt.Fprintf(w.summary, "  acquisition buffer occupancy: %d\n", w.acq.Occupancy())
	fmt.Fprintf(w.summary, "  monitor buffer occupancy: %d\n", w.mon.Occupancy())
	if w.skippedSurface != nil {
		if n, err := w.skippedSurface(); err == nil {
			fmt.Fprintf(w.summary, "  skipped %d surface events in the last second\n", n)
		}
	}
	w.printLastStatus()

	w.eventsWrittenSinceSummary = 0
	w.lastSummary = now
}

// printLastStatus reports the most recently cached StatusSnapshot, the
// equivalent of the original's pid_state_print(&last_pid) called against
// its last_status/last_pid globals.
func (w *WriterWorker) printLastStatus() {
	if !w.haveLastStatus {
		return
	}
	st := w.lastStatus
	fmt.Fprintf(w.summary, "  last status: %s\n", st.Timestamp.Format(time.RFC3339))
	for ibeam := 0; ibeam < NumBeams; ibeam++ {
		fmt.Fprintf(w.summary, "    beam %2d: slow=%d fast=%d gated=%d fast_avg=%.3g threshold %.6g -> %.6g  pid(err=%.4g int=%.4g d=%.4g)\n",
			ibeam,
			st.BeamScalersSlow[ibeam], st.BeamScalersFast[ibeam], st.BeamScalersGated[ibeam],
			st.FastScalerAvg[ibeam],
			st.OldThresholds[ibeam], st.NewThresholds[ibeam],
			st.PIDError[ibeam], st.PIDIntegral[ibeam], st.PIDDerivative[ibeam])
	}
}
