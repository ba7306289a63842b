package api

import (
	"errors"
	"fmt"
)

// Error taxonomy for the remote boundary. Callers branch on these with
// errors.Is; everything else wraps one of them.
var (
	// ErrUnauthenticated means the operation requires a signed-in user.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNetwork covers transport-level failures: timeouts, connection
	// errors, and 5xx responses.
	ErrNetwork = errors.New("network failure")

	// ErrConflict means the server rejected a mutation, e.g. the note was
	// deleted concurrently.
	ErrConflict = errors.New("conflict")

	// ErrValidation means the response was malformed, e.g. a paged fetch
	// without totalPages.
	ErrValidation = errors.New("invalid response")
)

// statusError maps an HTTP status code to the taxonomy.
func statusError(status int, body string) error {
	switch {
	case status == 401 || status == 403:
		return fmt.Errorf("%w: status %d: %s", ErrUnauthenticated, status, body)
	case status == 404 || status == 409:
		return fmt.Errorf("%w: status %d: %s", ErrConflict, status, body)
	case status >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrNetwork, status, body)
	default:
		return fmt.Errorf("%w: unexpected status %d: %s", ErrValidation, status, body)
	}
}

// Retryable reports whether an error is worth retrying with backoff.
// Only transport failures qualify; auth, conflict and validation errors
// will not heal on their own.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}
