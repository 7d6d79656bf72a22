/**
 * @description
 * Sentinel errors shared across the store, the Graph client, and the renewal
 * job. Call sites wrap these with fmt.Errorf("...: %w", err) and callers
 * classify with errors.Is.
 */
package domain

import "errors"

var (
	// ErrNotFound means the entity is gone on whichever side was asked.
	// Terminal for that entity; callers correct local state instead of retrying.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks a caller bug (missing or immutable field). Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized means the bearer token was rejected. Callers force one
	// token refresh and retry the single call, then give up.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited and ErrServiceUnavailable are transient registrar
	// failures, retried with bounded backoff.
	ErrRateLimited        = errors.New("rate limited")
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrStorageUnavailable is a transient store failure, retried with
	// bounded backoff.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrContentNotReady means the registrar acknowledged the notification but
	// has not finished producing the content. Callers poll with backoff.
	ErrContentNotReady = errors.New("content not yet available")

	// ErrUnrecognizedResource marks a single notification whose resource
	// locator matches no known shape. Never aborts batch decoding.
	ErrUnrecognizedResource = errors.New("unrecognized resource shape")
)

// IsRetryable reports whether err is in the transient class that the shared
// retry policy may attempt again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrStorageUnavailable)
}
