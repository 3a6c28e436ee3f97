package nphdaq

import "testing"

func TestFastScalerWindow_AveragesOverFilledPortion(t *testing.T) {
	w := NewFastScalerWindow(4)

	var s [NumBeams]uint16
	s[0] = 10
	w.Add(s)
	if got := w.Average(0); got != 10 {
		t.Fatalf("Average(0) after 1 sample = %v, want 10", got)
	}
	if got := w.Filled(); got != 1 {
		t.Fatalf("Filled() = %d, want 1", got)
	}

	s[0] = 20
	w.Add(s)
	if got := w.Average(0); got != 15 {
		t.Fatalf("Average(0) after 2 samples = %v, want 15", got)
	}
}

func TestFastScalerWindow_SlidesOutOldSamples(t *testing.T) {
	w := NewFastScalerWindow(3)

	values := []uint16{10, 20, 30, 100}
	for _, v := range values {
		var s [NumBeams]uint16
		s[5] = v
		w.Add(s)
	}

	// Window holds only the last 3: 20, 30, 100 -> avg 50.
	if got := w.Average(5); got != 50 {
		t.Fatalf("Average(5) after wraparound = %v, want 50", got)
	}
	if got := w.Filled(); got != 3 {
		t.Fatalf("Filled() = %d, want 3 (capped at window size)", got)
	}
}

func TestFastScalerWindow_IndependentPerBeam(t *testing.T) {
	w := NewFastScalerWindow(2)

	var s1, s2 [NumBeams]uint16
	s1[0], s1[1] = 4, 8
	s2[0], s2[1] = 6, 2
	w.Add(s1)
	w.Add(s2)

	if got := w.Average(0); got != 5 {
		t.Fatalf("Average(0) = %v, want 5", got)
	}
	if got := w.Average(1); got != 5 {
		t.Fatalf("Average(1) = %v, want 5", got)
	}
}
