package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

// ErrNotFound is returned when the queried repository or node is null.
var ErrNotFound = errors.New("not found")

// TransportError is any failed operation: GraphQL execution errors in
// Errors, network or HTTP failures in Err, or both.
type TransportError struct {
	Op     string
	Errors gqlerror.List
	Err    error
}

func (e *TransportError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("%s: %s", e.Op, e.Errors.Error())
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// GraphQLErrors returns the structured errors the server sent.
func (e *TransportError) GraphQLErrors() gqlerror.List { return e.Errors }

// Network reports whether the request failed before the server produced
// a GraphQL response.
func (e *TransportError) Network() bool {
	return len(e.Errors) == 0 && e.Err != nil
}

// StatusError is an HTTP response other than 200.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// missingAuthErrors turns an HTTP 401 into the same structured error a
// server reports for a missing login, so both paths reach the login flow.
func missingAuthErrors(service string) gqlerror.List {
	return gqlerror.List{{
		Message: "Missing auth for " + service,
		Extensions: map[string]interface{}{
			"type":    "auth/missing-auth",
			"service": service,
		},
	}}
}

// ErrorsJSON renders the structured errors carried by err, indented, or ""
// when there are none.
func ErrorsJSON(err error) string {
	var te *TransportError
	if !errors.As(err, &te) || len(te.Errors) == 0 {
		return ""
	}
	data, mErr := json.MarshalIndent(te.Errors, "", "  ")
	if mErr != nil {
		return ""
	}
	return string(data)
}

// SuggestSetup returns a hint for errors that usually mean the endpoint or
// token is misconfigured, or "".
func SuggestSetup(err error, endpoint string) string {
	var te *TransportError
	if !errors.As(err, &te) {
		return ""
	}
	var se *StatusError
	switch {
	case errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized:
		return "The server rejected the access token. Log in again with a token that has the repo scope."
	case errors.As(err, &se) && se.StatusCode == http.StatusForbidden:
		return fmt.Sprintf("%s refused the request. Check the token's scopes and rate limit.", endpoint)
	case te.Network():
		return fmt.Sprintf("Could not reach %s. Check the endpoint setting and your network connection.", endpoint)
	}
	return ""
}
