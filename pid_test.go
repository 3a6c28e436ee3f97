package nphdaq

import (
	"math"
	"testing"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPIDState_FirstTickHasNoDerivative(t *testing.T) {
	p := NewPIDState(PIDFormulaClassic, 1, 0, 1)

	u := p.Step(0, 10, 5, 1.0, 0)
	if u.Derivative != 0 {
		t.Fatalf("Derivative on first tick = %v, want 0", u.Derivative)
	}
	if u.Error != 5 {
		t.Fatalf("Error = %v, want 5", u.Error)
	}
	if u.Integral != 5 {
		t.Fatalf("Integral = %v, want 5", u.Integral)
	}
}

func TestPIDState_LegacyFormulaMultipliesDerivativeIntoIntegral(t *testing.T) {
	p := NewPIDState(PIDFormulaLegacy, 2, 3, 4)

	p.Step(0, 10, 0, 1.0, 0) // e=10, ie=10, de=0 (first tick)
	u := p.Step(0, 20, 0, 1.0, 0)
	// e = 20, ie = 10+20=30, de = (20-10)/1 = 10
	// legacy: k_p*e + k_i*ie*k_d*de = 2*20 + 3*30*4*10 = 40 + 3600 = 3640
	want := 2*20.0 + 3*30.0*4*10.0
	if !approxEqual(u.Delta, want) {
		t.Fatalf("legacy Delta = %v, want %v", u.Delta, want)
	}
}

func TestPIDState_ClassicFormulaAddsTerms(t *testing.T) {
	p := NewPIDState(PIDFormulaClassic, 2, 3, 4)

	p.Step(0, 10, 0, 1.0, 0)
	u := p.Step(0, 20, 0, 1.0, 0)
	// classic: k_p*e + k_i*ie + k_d*de = 2*20 + 3*30 + 4*10 = 40+90+40 = 170
	want := 2*20.0 + 3*30.0 + 4*10.0
	if !approxEqual(u.Delta, want) {
		t.Fatalf("classic Delta = %v, want %v", u.Delta, want)
	}
}

func TestPIDState_DeltaClampedToMaxIncreaseMagnitude(t *testing.T) {
	p := NewPIDState(PIDFormulaClassic, 100, 0, 0)

	u := p.Step(0, 1000, 0, 1.0, 5)
	if u.Delta != 5 {
		t.Fatalf("positive clamp: Delta = %v, want 5", u.Delta)
	}

	p2 := NewPIDState(PIDFormulaClassic, 100, 0, 0)
	u2 := p2.Step(0, -1000, 0, 1.0, 5)
	if u2.Delta != -5 {
		t.Fatalf("negative clamp: Delta = %v, want -5", u2.Delta)
	}
}

func TestPIDState_BeamsAreIndependentButNsumIsShared(t *testing.T) {
	p := NewPIDState(PIDFormulaClassic, 1, 1, 1)

	p.Step(0, 10, 0, 1.0, 0) // nsum: 0->1, beam 0 sees de=0
	u := p.Step(1, 50, 0, 1.0, 0)
	// beam 1's first call, but nsum already 1 from beam 0's call, so its
	// derivative IS computed (against lastMeas[1]==0), matching the
	// original's shared-counter quirk.
	if u.Derivative == 0 {
		t.Fatalf("expected beam 1's derivative to be computed due to shared nsum, got 0")
	}
}

func TestPIDState_Reset(t *testing.T) {
	p := NewPIDState(PIDFormulaClassic, 1, 1, 1)
	p.Step(0, 10, 0, 1.0, 0)
	p.Reset()

	u := p.Step(0, 10, 0, 1.0, 0)
	if u.Derivative != 0 {
		t.Fatalf("after Reset, first Step should have zero derivative, got %v", u.Derivative)
	}
	if u.Integral != 10 {
		t.Fatalf("after Reset, integral should restart at e, got %v", u.Integral)
	}
}

func TestApplyFloor(t *testing.T) {
	cases := []struct {
		newThreshold, min, want float64
	}{
		{10, 5, 10},
		{3, 5, 5},
		{5, 5, 5},
	}
	for _, c := range cases {
		if got := ApplyFloor(c.newThreshold, c.min); got != c.want {
			t.Fatalf("ApplyFloor(%v, %v) = %v, want %v", c.newThreshold, c.min, got, c.want)
		}
	}
}
