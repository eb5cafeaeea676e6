package harness

import (
	"errors"
	"fmt"
)

// Sentinel errors for typed error checking.
var (
	ErrSourceTooLarge = errors.New("source exceeds size limit")
	ErrTestsTooLarge  = errors.New("tests exceed size limit")
	ErrWorkspace      = errors.New("workspace failure")
)

// HarnessError wraps errors with execution context.
type HarnessError struct {
	RunID string
	Op    string // The operation that failed
	Err   error
}

func (e *HarnessError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("run %s: %s: %s", e.RunID, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *HarnessError) Unwrap() error {
	return e.Err
}

// IsClientFault reports whether the error is the caller's fault (oversized
// input) rather than an infrastructure failure.
func IsClientFault(err error) bool {
	return errors.Is(err, ErrSourceTooLarge) || errors.Is(err, ErrTestsTooLarge)
}
