package booth

import (
	"errors"
	"fmt"
)

// ErrStorageUnavailable is returned when votes are refused because the vote
// medium could not be mounted.
var ErrStorageUnavailable = errors.New("booth: durable storage unavailable")

// FatalError is a device or storage failure. The loop never retries one: it
// runs the shutdown sequence and stops, so a vote is never silently dropped.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("booth: %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func fatal(op string, err error) error {
	var fe *FatalError
	if errors.As(err, &fe) {
		return err
	}
	return &FatalError{Op: op, Err: err}
}

// IsFatal reports whether err must stop the booth. Anything else is logged
// and the loop carries on.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
