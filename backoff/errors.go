package backoff

import (
	"errors"

	cbackoff "github.com/cenkalti/backoff/v5"
)

// ErrStrategyStopped is joined with the last attempt error when the strategy
// returns Stop.
var ErrStrategyStopped = errors.New("backoff: strategy stopped retrying")

// Unrecoverable marks err so that a Scheduler stops retrying when it is
// passed to done. Unrecoverable(nil) returns nil.
func Unrecoverable(err error) error {
	return cbackoff.Permanent(err)
}

// IsUnrecoverable reports whether err was marked with Unrecoverable.
func IsUnrecoverable(err error) bool {
	var perm *cbackoff.PermanentError
	return errors.As(err, &perm)
}

// unwrapUnrecoverable strips the Unrecoverable marker.
func unwrapUnrecoverable(err error) error {
	var perm *cbackoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
