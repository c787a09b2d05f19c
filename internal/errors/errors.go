package errors

import (
	"errors"
	"fmt"
)

// Failure taxonomy for the session layer. Callers classify failures with
// errors.Is against these sentinels rather than inspecting message strings.
var (
	// ErrInvalidArgument indicates the caller supplied insufficient data to
	// even attempt the operation (e.g. a login with no identifier or no
	// secret). Raised before any network call.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnauthorized indicates the remote service explicitly rejected the
	// credential (401-class). This is the only failure kind that triggers
	// automatic credential invalidation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTransient covers network failures, timeouts and non-401 error
	// statuses. Stored credentials are never cleared on a transient failure.
	ErrTransient = errors.New("transient failure")

	// ErrStorageCorrupt indicates a persisted record failed to parse.
	// Treated as "record absent" by every reader; never surfaced to callers.
	ErrStorageCorrupt = errors.New("storage record corrupt")

	// ErrNotAuthenticated indicates an operation requiring an active session
	// was invoked with none present.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
