package gateway

import (
	"errors"
	"fmt"
)

// errPendingUnavailable marks a resource GitHub is still computing after every retry.
// It never leaves the package; FetchResourceWithPendingRetry reports it as ok=false.
var errPendingUnavailable = errors.New("resource still being computed")

// AuthError is returned when GitHub rejects the credential (401 or 403).
type AuthError struct {
	StatusCode int
	Path       string
	Detail     string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("github rejected credentials for %s (status %d): %s", e.Path, e.StatusCode, e.Detail)
}

// HTTPError is returned for any other non-2xx response from the REST surface.
type HTTPError struct {
	StatusCode int
	Path       string
	Err        error
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("github request %s failed with status %d: %v", e.Path, e.StatusCode, e.Err)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// QueryError is returned when the GraphQL surface answers with a non-2xx status
// or reports query-level errors in the payload.
type QueryError struct {
	Payload string
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("graphql query failed: %s", e.Payload)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is, or wraps, an *AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
