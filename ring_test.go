package nphdaq

import (
	"sync"
	"testing"
	"time"
)

func TestRingBuffer_PushPopOrder(t *testing.T) {
	r := NewRingBuffer[int](4, nil)

	for i := 0; i < 4; i++ {
		r.Push(i)
	}
	if got := r.Occupancy(); got != 4 {
		t.Fatalf("Occupancy() = %d, want 4", got)
	}
	for i := 0; i < 4; i++ {
		if got := r.Pop(); got != i {
			t.Fatalf("Pop() = %d, want %d", got, i)
		}
	}
	if got := r.Occupancy(); got != 0 {
		t.Fatalf("Occupancy() after drain = %d, want 0", got)
	}
}

func TestRingBuffer_WrapsAroundCapacity(t *testing.T) {
	r := NewRingBuffer[int](3, nil)

	for round := 0; round < 5; round++ {
		r.Push(round)
		if got := r.Pop(); got != round {
			t.Fatalf("round %d: Pop() = %d, want %d", round, got, round)
		}
	}
}

func TestRingBuffer_BlocksWhenFull(t *testing.T) {
	var warnings []string
	var mu sync.Mutex
	r := NewRingBuffer[int](2, func(op string, err error) {
		mu.Lock()
		defer mu.Unlock()
		warnings = append(warnings, op)
	})

	r.Push(1)
	r.Push(2)

	unblocked := make(chan struct{})
	go func() {
		r.Push(3) // must block until a slot frees
		close(unblocked)
	}()

	select {
	case <-unblocked:
		t.Fatal("Push returned while buffer was still full")
	case <-time.After(50 * time.Millisecond):
	}

	if got := r.Pop(); got != 1 {
		t.Fatalf("Pop() = %d, want 1", got)
	}

	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("Push did not unblock after a slot freed")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(warnings) == 0 {
		t.Fatal("expected a full-buffer warning to be reported")
	}
}

func TestRingBuffer_BlocksWhenEmpty(t *testing.T) {
	r := NewRingBuffer[int](4, nil)

	done := make(chan int)
	go func() {
		done <- r.Pop()
	}()

	select {
	case <-done:
		t.Fatal("Pop returned while buffer was still empty")
	case <-time.After(50 * time.Millisecond):
	}

	r.Push(42)

	select {
	case v := <-done:
		if v != 42 {
			t.Fatalf("Pop() = %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after a push")
	}
}

func TestRingBuffer_TryPop(t *testing.T) {
	r := NewRingBuffer[int](2, nil)

	if _, ok := r.TryPop(); ok {
		t.Fatal("TryPop() on empty buffer returned ok=true")
	}
	r.Push(7)
	v, ok := r.TryPop()
	if !ok || v != 7 {
		t.Fatalf("TryPop() = (%d, %v), want (7, true)", v, ok)
	}
}

func TestRingBuffer_CloseReportsResidualOccupancy(t *testing.T) {
	r := NewRingBuffer[int](4, nil)
	r.Push(1)
	r.Push(2)
	r.Push(3)

	if got := r.Close(); got != 3 {
		t.Fatalf("Close() = %d, want 3 (residual occupancy)", got)
	}
}

func TestRingBuffer_SPSCConcurrentRoundTrip(t *testing.T) {
	const n = 10000
	r := NewRingBuffer[int](16, nil)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			r.Push(i)
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			if got := r.Pop(); got != i {
				t.Errorf("Pop() = %d, want %d", got, i)
				return
			}
		}
	}()

	wg.Wait()
}
