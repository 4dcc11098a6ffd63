package models

import "errors"

var (
	// ErrNotFound is returned when a referenced source, video or remote id does not exist
	ErrNotFound = errors.New("not found")

	// ErrTransient covers network failures, timeouts and unreadable subtrees
	ErrTransient = errors.New("transient failure")

	// ErrQuotaExceeded is returned when the remote API refuses calls for quota reasons
	ErrQuotaExceeded = errors.New("remote quota exceeded")

	// ErrInvalidConfig marks a source or setting that cannot be used as configured
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrAPIUnavailable is reported for remote sources when no API credential is configured
	ErrAPIUnavailable = errors.New("remote API unavailable")
)

// IsRetryable reports whether err is worth retrying on a later attempt or pass
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) && !errors.Is(err, ErrQuotaExceeded)
}
