package genx

import (
	"errors"
	"fmt"
)

var (
	// ErrOutputLimitExceeded is returned when generation hit the output token
	// ceiling before completing. Nothing is committed.
	ErrOutputLimitExceeded = errors.New("genx: output limit exceeded")

	// ErrConsumed is returned when the fragments of a generation are read a
	// second time.
	ErrConsumed = errors.New("genx: generation already consumed")

	// ErrInFlight is returned when Generate is called while the previous
	// generation is still streaming.
	ErrInFlight = errors.New("genx: generation in flight")

	// ErrNoCompletion is wrapped by an InferenceError when a stream ends
	// without a terminal event.
	ErrNoCompletion = errors.New("genx: stream ended without completion")
)

// InferenceError is a transport or model failure during streaming. Detail
// carries the raw provider detail of an error event; Err carries the
// underlying transport error, if any.
type InferenceError struct {
	Detail string
	Err    error
}

func (e *InferenceError) Error() string {
	switch {
	case e.Err != nil && e.Detail != "":
		return fmt.Sprintf("genx: inference error: %s: %v", e.Detail, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("genx: inference error: %v", e.Err)
	default:
		return fmt.Sprintf("genx: inference error: %s", e.Detail)
	}
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err aborted a generation in a way a caller may
// reasonably retry: inference errors and output limits. Consumption and
// in-flight errors are programming errors.
func IsRetryable(err error) bool {
	var ie *InferenceError
	return errors.As(err, &ie) || errors.Is(err, ErrOutputLimitExceeded)
}
