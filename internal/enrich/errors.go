package enrich

import (
	"errors"
	"fmt"
	"time"
)

// ErrRunBusy is returned when another invocation already holds the run.
var ErrRunBusy = errors.New("run is already being enriched")

// RetryableError is a transient provider failure. RetryAfter carries the
// provider-suggested delay when one was given.
type RetryableError struct {
	RetryAfter *time.Duration
	Err        error
}

func (e *RetryableError) Error() string {
	if e.RetryAfter != nil {
		return fmt.Sprintf("retryable after %s: %v", *e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("retryable: %v", e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// PermanentError is a provider failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }
