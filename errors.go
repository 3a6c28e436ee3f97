package nphdaq

import "errors"

// Sentinel errors returned by core operations. Component-specific wrapped
// errors use fmt.Errorf("%w", ...) against these where the caller might
// reasonably want to errors.Is against a stable condition.
var (
	// errDeviceOpenFailed is returned when the supervisor's initial
	// Device.Configure call fails at startup. Per spec.md §7 this aborts
	// startup.
	errDeviceOpenFailed = errors.New("nphdaq: device open failed")

	// errAlignmentFailed is returned after the bounded retry budget for
	// the external alignment command is exhausted.
	errAlignmentFailed = errors.New("nphdaq: alignment command did not succeed")

	// errRunDirFailed marks a fatal run-directory creation failure
	// (spec.md §7: "Directory creation failure -> fatal: signal shutdown").
	errRunDirFailed = errors.New("nphdaq: could not create run directory")

	// errClosed is reported through a RingBuffer's ErrorCallback when a
	// blocked Reserve or Pop finds the ring closed and stops waiting.
	errClosed = errors.New("nphdaq: ring buffer closed")
)

// ErrorCallback matches the teacher library's error-reporting shape: an
// optional hook invoked with the failing operation name and the error,
// instead of an internal logger. A nil ErrorCallback silently drops the
// report, just as lethe.Logger.ErrorCallback does.
type ErrorCallback func(operation string, err error)

func report(cb ErrorCallback, operation string, err error) {
	if cb != nil && err != nil {
		cb(operation, err)
	}
}
