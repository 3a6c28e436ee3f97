package nphdaq

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
)

const cacheLinePad = 64

// RingBuffer is a fixed-capacity, single-producer/single-consumer queue
// of T, modeled on nuphase_buf_t: two monotonic counters (produced,
// consumed), slot index = counter mod capacity, occupancy = produced -
// consumed. Ordering is obtained from Go's atomic store/load
// happens-before guarantee rather than an explicit fence: the payload
// write in Commit happens-before the counter Store, and the counter Load
// in Pop happens-before the payload read.
//
// Only one goroutine may call Reserve/Commit/Push; only one goroutine
// may call Pop. Violating that is a data race, exactly as for
// nuphase_buf_t and for JoshuaSkootsky's wait-free ring buffer.
type RingBuffer[T any] struct {
	slots []T
	cap   uint64

	produced atomic.Uint64
	_        [cacheLinePad - 8]byte
	consumed atomic.Uint64
	_        [cacheLinePad - 8]byte

	closed atomic.Bool
	onFull ErrorCallback
	warned atomic.Bool
}

// NewRingBuffer allocates a ring of the given capacity. Capacity need not
// be a power of two; index arithmetic uses modulo, matching
// nuphase_buf_init's plain `% capacity`. onFull, if non-nil, is invoked
// once (not on every spin) the first time a producer blocks on a full
// buffer, mirroring nuphase_buf_getmem's one-shot "Buffer is full!"
// warning.
func NewRingBuffer[T any](capacity int, onFull ErrorCallback) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer[T]{
		slots:  make([]T, capacity),
		cap:    uint64(capacity),
		onFull: onFull,
	}
}

// Capacity returns the fixed capacity C.
func (r *RingBuffer[T]) Capacity() int {
	return int(r.cap)
}

// Occupancy is a racy lower/upper-bound observation, per spec.md §4.A:
// the producer may only trust capacity-occupancy as a lower bound on
// free space, and symmetrically the consumer on occupancy itself.
func (r *RingBuffer[T]) Occupancy() int {
	p := r.produced.Load()
	c := r.consumed.Load()
	return int(p - c)
}

// Reserve blocks (cooperatively yielding) while the buffer is full and
// returns a pointer to the next producer slot. No counter is advanced
// yet; the caller must follow with Commit. Equivalent to
// nuphase_buf_getmem.
func (r *RingBuffer[T]) Reserve() *T {
	spins := 0
	for r.produced.Load()-r.consumed.Load() >= r.cap {
		if r.closed.Load() {
			report(r.onFull, "ring_reserve", errClosed)
			break
		}
		if !r.warned.Swap(true) {
			report(r.onFull, "ring_full", fmt.Errorf("producer stalled: buffer is full"))
		}
		spins++
		cooperativeYield(spins)
	}
	idx := r.produced.Load() % r.cap
	return &r.slots[idx]
}

// Commit publishes the slot reserved by the last Reserve call: the slot
// write happens-before this Store, so a consumer observing the
// incremented counter is guaranteed to see the payload.
func (r *RingBuffer[T]) Commit() {
	r.produced.Add(1)
}

// Push is Reserve + copy + Commit.
func (r *RingBuffer[T]) Push(v T) {
	slot := r.Reserve()
	*slot = v
	r.Commit()
}

// Pop blocks while the buffer is empty, copies out the consumer slot,
// and advances the consumed counter. Equivalent to nuphase_buf_pop.
func (r *RingBuffer[T]) Pop() T {
	spins := 0
	for r.produced.Load()-r.consumed.Load() == 0 {
		if r.closed.Load() {
			report(r.onFull, "ring_pop", errClosed)
			var zero T
			return zero
		}
		spins++
		cooperativeYield(spins)
	}
	idx := r.consumed.Load() % r.cap
	v := r.slots[idx]
	r.consumed.Add(1)
	return v
}

// TryPop returns (zero, false) immediately instead of blocking when the
// ring is empty. Workers that must also observe a shutdown flag use this
// in a select-free poll loop, per spec.md §4.F's writer loop.
func (r *RingBuffer[T]) TryPop() (T, bool) {
	var zero T
	if r.produced.Load()-r.consumed.Load() == 0 {
		return zero, false
	}
	idx := r.consumed.Load() % r.cap
	v := r.slots[idx]
	r.consumed.Add(1)
	return v, true
}

// Close frees no explicit memory (the GC owns r.slots) but reports
// residual occupancy, matching nuphase_buf_destroy's return value so
// callers can log loss.
func (r *RingBuffer[T]) Close() int {
	r.closed.Store(true)
	return r.Occupancy()
}

// cooperativeYield backs off from a tight Gosched() spin to a capped
// sleep, bounding CPU burn while a real single-core host schedules the
// other side. The original relies on sched_yield() alone (uniprocessor
// ARM); Go's goroutine scheduler additionally benefits from occasionally
// sleeping so the runtime can make forward progress on other Ps.
func cooperativeYield(spins int) {
	if spins < 64 {
		runtime.Gosched()
		return
	}
	time.Sleep(200 * time.Microsecond)
}
