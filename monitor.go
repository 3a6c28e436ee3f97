package nphdaq

import (
	"context"
	"time"

	"github.com/agilira/go-timecache"
)

// scalerWindowSecs is the integration time the fast/slow scaler counters
// accumulate over before being read out, NP_SCALER_TIME in the original
// firmware headers. Not retrieved from the pack; fixed at one second,
// which is consistent with spec.md's description of scalers as
// "per-second" counting rates.
const scalerWindowSecs = 1.0

// MonitorWorker owns the PID controller and fast-scaler window
// exclusively: it is the only goroutine that reads device status,
// retunes thresholds, and issues software triggers, matching
// monitor_thread in original_source/src/nuphase-acq.c.
type MonitorWorker struct {
	dev   Device
	cfg   *ReloadableConfig
	mon   *RingBuffer[StatusSnapshot]
	onErr ErrorCallback

	pid   *PIDState
	fsavg *FastScalerWindow

	phasedTriggerOn int // -1 undefined, 0 off, 1 on, matching phased_trigger_status
	start           time.Time

	// clock caches wall-clock reads at millisecond resolution for the
	// loop's per-iteration "now", the same optimization the teacher
	// applies to its own per-write timestamping.
	clock *timecache.TimeCache
}

// NewMonitorWorker wires a MonitorWorker against its device, live config,
// output ring, and error sink. pid and fsavg are constructed by the
// supervisor so that a config reload can decide whether to reuse or
// reset them (fsavg's window length is structural; pid is always reset,
// per spec.md §8 scenario 6).
func NewMonitorWorker(dev Device, cfg *ReloadableConfig, mon *RingBuffer[StatusSnapshot], pid *PIDState, fsavg *FastScalerWindow, onErr ErrorCallback) *MonitorWorker {
	return &MonitorWorker{
		dev: dev, cfg: cfg, mon: mon, pid: pid, fsavg: fsavg, onErr: onErr,
		phasedTriggerOn: -1,
		clock:           timecache.NewWithResolution(time.Millisecond),
	}
}

// Run executes the monitor loop until ctx is canceled, mirroring
// monitor_thread's while(!die) loop: it gates the phased trigger on
// elapsed run time, runs the PID tick on monitor_interval, issues
// software triggers on sw_trigger_interval, and sleeps an adaptive
// duration capped at 100ms so both intervals are serviced promptly.
func (m *MonitorWorker) Run(ctx context.Context) {
	defer m.clock.Stop()

	m.start = time.Now()
	lastMon := m.start
	lastSwTrig := m.start

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := m.clock.CachedTime()
		cfg := m.cfg.Snapshot()

		m.updatePhasedTrigger(cfg, now)

		diffMon := now.Sub(lastMon).Seconds()
		diffSwTrig := now.Sub(lastSwTrig).Seconds()

		if cfg.Control.MonitorIntervalSecs > 0 && diffMon > cfg.Control.MonitorIntervalSecs {
			m.tick(ctx, cfg, diffMon)
			lastMon = now
			diffMon = 0
		}

		if cfg.Control.SwTriggerIntervalSecs > 0 && diffSwTrig > cfg.Control.SwTriggerIntervalSecs {
			if err := m.dev.SwTrigger(); err != nil {
				report(m.onErr, "sw_trigger", err)
			}
			lastSwTrig = now
			diffSwTrig = 0
		}

		sleep := 0.1
		if cfg.Control.MonitorIntervalSecs > 0 {
			if d := cfg.Control.MonitorIntervalSecs - diffMon; d < sleep {
				sleep = d
			}
		}
		if cfg.Control.SwTriggerIntervalSecs > 0 {
			if d := cfg.Control.SwTriggerIntervalSecs - diffSwTrig; d < sleep {
				sleep = d
			}
		}
		if sleep > 0 {
			time.Sleep(time.Duration(sleep * float64(time.Second)))
		}
	}
}

func (m *MonitorWorker) updatePhasedTrigger(cfg Config, now time.Time) {
	if cfg.Control.EnablePhasedTrigger && m.phasedTriggerOn != 1 {
		if cfg.Control.SecsBeforePhasedTrigger > 0 {
			if now.Sub(m.start).Seconds() > cfg.Control.SecsBeforePhasedTrigger {
				if err := m.dev.PhasedTriggerReadout(true); err != nil {
					report(m.onErr, "phased_trigger_readout", err)
				}
				m.phasedTriggerOn = 1
			}
		} else {
			if err := m.dev.PhasedTriggerReadout(true); err != nil {
				report(m.onErr, "phased_trigger_readout", err)
			}
			m.phasedTriggerOn = 1
		}
	} else if !cfg.Control.EnablePhasedTrigger && m.phasedTriggerOn == 1 {
		if err := m.dev.PhasedTriggerReadout(false); err != nil {
			report(m.onErr, "phased_trigger_readout", err)
		}
		m.phasedTriggerOn = 0
	}
}

// tick runs one full PID update over all beams and pushes a
// StatusSnapshot, mirroring the monitor_interval branch of
// monitor_thread's loop body.
func (m *MonitorWorker) tick(ctx context.Context, cfg Config, diffMon float64) {
	st, err := m.dev.ReadStatus(ctx)
	if err != nil {
		report(m.onErr, "read_status", err)
		return
	}

	m.fsavg.Add(st.BeamScalersFast)

	snap := StatusSnapshot{
		Timestamp:        st.Timestamp,
		BeamScalersSlow:  st.BeamScalersSlow,
		BeamScalersFast:  st.BeamScalersFast,
		BeamScalersGated: st.BeamScalersGated,
		OldThresholds:    st.OldThresholds,
	}

	var newThresholds [NumBeams]float64
	for ibeam := 0; ibeam < NumBeams; ibeam++ {
		snap.FastScalerAvg[ibeam] = m.fsavg.Average(ibeam)
		measuredSlow := float64(st.BeamScalersSlow[ibeam]) / scalerWindowSecs
		measuredFast := snap.FastScalerAvg[ibeam] / scalerWindowSecs
		w := cfg.Control
		measured := (w.SlowScalerWeight*measuredSlow + w.FastScalerWeight*measuredFast) / (w.SlowScalerWeight + w.FastScalerWeight)

		if w.SubtractGated {
			measuredGatedSlow := float64(st.BeamScalersGated[ibeam]) / scalerWindowSecs
			measured -= measuredGatedSlow
		}

		upd := m.pid.Step(ibeam, measured, w.ScalerGoal[ibeam], diffMon, w.MaxThresholdIncrease)

		newThreshold := st.OldThresholds[ibeam] + upd.Delta
		newThreshold = ApplyFloor(newThreshold, w.MinThreshold)
		newThresholds[ibeam] = newThreshold

		snap.PIDError[ibeam] = upd.Error
		snap.PIDIntegral[ibeam] = upd.Integral
		snap.PIDDerivative[ibeam] = upd.Derivative
	}
	snap.NewThresholds = newThresholds

	if err := m.dev.SetThresholds(newThresholds); err != nil {
		report(m.onErr, "set_thresholds", err)
	}

	m.mon.Push(snap)
}
