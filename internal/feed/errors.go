package feed

import (
	"errors"
	"fmt"
)

// ErrLoginNotNeeded is returned by Session.Recover when the session is not
// waiting on a login.
var ErrLoginNotNeeded = errors.New("session does not need a login")

// PaginationError wraps a failed LoadMore fetch. The paginator's edges are
// left exactly as they were before the call.
type PaginationError struct {
	Cursor string
	Err    error
}

func (e *PaginationError) Error() string {
	return fmt.Sprintf("loading page after %q: %v", e.Cursor, e.Err)
}

func (e *PaginationError) Unwrap() error { return e.Err }

// AuthRequiredError is a subscription or query failure caused by a missing
// login for Service.
type AuthRequiredError struct {
	Service string
	Err     error
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("login to %s required: %v", e.Service, e.Err)
}

func (e *AuthRequiredError) Unwrap() error { return e.Err }
