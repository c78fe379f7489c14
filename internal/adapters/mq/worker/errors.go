package worker

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel kinds for run errors.
var (
	// ErrAcquisition means the work set could not be obtained. It is run-fatal.
	ErrAcquisition = errors.New("work set acquisition failed")
	// ErrUnitSkipped marks a unit failure that the run recovers from.
	ErrUnitSkipped = errors.New("unit skipped")
)

// Reasons attached to skipped units.
const (
	ReasonError     = "error"
	ReasonPanic     = "panic"
	ReasonCancelled = "cancelled"
	ReasonQueueFull = "queue_full"
)

// skipError carries the reason a processor gave for skipping a unit.
type skipError struct {
	reason string
	err    error
}

func (e *skipError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s: %s", ErrUnitSkipped, e.reason)
	}
	return fmt.Sprintf("%s: %s: %v", ErrUnitSkipped, e.reason, e.err)
}

func (e *skipError) Unwrap() []error {
	if e.err == nil {
		return []error{ErrUnitSkipped}
	}
	return []error{ErrUnitSkipped, e.err}
}

// Skip returns an error that skips the current unit with reason.
func Skip(reason string, err error) error {
	return &skipError{reason: reason, err: err}
}

// reasonOf extracts the skip reason of err.
func reasonOf(err error) string {
	var se *skipError
	if errors.As(err, &se) && se.reason != "" {
		return se.reason
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ReasonCancelled
	}
	return ReasonError
}
