package nphdaq

// PIDFormula selects how the per-beam threshold delta is combined from
// the proportional, integral, and derivative terms. See spec.md §9: the
// original firmware's formula multiplies the derivative term into the
// integral term rather than adding all three, and that behavior has been
// running in production long enough that beam thresholds were tuned
// around it. "legacy" preserves it; "classic" is the textbook additive
// form, offered for sites that want to retune from scratch.
type PIDFormula int

const (
	// PIDFormulaLegacy computes dthreshold = k_p*e + k_i*ie*k_d*de,
	// exactly as original_source/src/nuphase-acq.c's monitor_thread does.
	// This is the default: changing it changes steady-state thresholds on
	// deployed hardware.
	PIDFormulaLegacy PIDFormula = iota
	// PIDFormulaClassic computes dthreshold = k_p*e + k_i*ie + k_d*de.
	PIDFormulaClassic
)

// PIDState holds the per-beam accumulated error terms for the threshold
// control loop, grounded on pid_state_t in original_source/src/nuphase-acq.c.
//
// nsum is intentionally a single counter shared across all beams, not one
// per beam: the original only uses it to suppress the derivative term on
// the very first beam of the very first monitor tick, so every beam after
// that (even within the same tick) computes a derivative against a
// last-measured value of zero. PIDFormulaLegacy preserves this; it has no
// effect under PIDFormulaClassic beyond the same warm-up tick.
type PIDState struct {
	Formula PIDFormula

	KP, KI, KD float64

	nsum     int
	error    [NumBeams]float64
	sumError [NumBeams]float64
	lastMeas [NumBeams]float64
}

// NewPIDState mirrors pid_state_init: load the gains, zero everything
// else.
func NewPIDState(formula PIDFormula, kp, ki, kd float64) *PIDState {
	return &PIDState{Formula: formula, KP: kp, KI: ki, KD: kd}
}

// Reset reinitializes the accumulators without changing the gains or
// formula, for the "always reinit PID state on config reload" behavior
// noted in read_config (first_time or not, pid_state_init is called
// unconditionally).
func (p *PIDState) Reset() {
	p.nsum = 0
	p.error = [NumBeams]float64{}
	p.sumError = [NumBeams]float64{}
	p.lastMeas = [NumBeams]float64{}
}

// PIDUpdate is one beam's worth of control-loop output for a monitor tick.
type PIDUpdate struct {
	Error      float64
	Integral   float64
	Derivative float64
	Delta      float64 // post-clamp dthreshold
}

// Step advances beam ibeam's PID state for one monitor tick given the
// weighted measured rate and the elapsed seconds since the last tick
// (diffSecs), and returns the clamped threshold delta. maxIncrease caps
// the magnitude of the delta (spec.md: abs-valued cap, tighter than the
// original's upper-only clamp).
func (p *PIDState) Step(ibeam int, measured, goal, diffSecs, maxIncrease float64) PIDUpdate {
	e := measured - goal
	p.error[ibeam] = e

	var de float64
	if p.nsum > 0 && diffSecs > 0 {
		de = (measured - p.lastMeas[ibeam]) / diffSecs
	}

	p.sumError[ibeam] += e
	p.nsum++
	ie := p.sumError[ibeam]
	p.lastMeas[ibeam] = measured

	var delta float64
	switch p.Formula {
	case PIDFormulaClassic:
		delta = p.KP*e + p.KI*ie + p.KD*de
	default:
		delta = p.KP*e + p.KI*ie*p.KD*de
	}

	if maxIncrease > 0 {
		if delta > maxIncrease {
			delta = maxIncrease
		}
		if delta < -maxIncrease {
			delta = -maxIncrease
		}
	}

	return PIDUpdate{Error: e, Integral: ie, Derivative: de, Delta: delta}
}

// ApplyFloor returns newThreshold clamped so it never drops below
// minThreshold, per spec.md's min_threshold floor on the resulting
// trigger threshold (the original C has no such floor; this is the
// distilled spec's explicit addition over the C behavior, per §9).
func ApplyFloor(newThreshold, minThreshold float64) float64 {
	if newThreshold < minThreshold {
		return minThreshold
	}
	return newThreshold
}
