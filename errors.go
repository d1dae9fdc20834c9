package authclient

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidCredentials credentials failed local validation
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrRequestFailed the request never produced a response
var ErrRequestFailed = errors.New("request failed")

// ErrInvalidResponse the server answered with a body we could not use
var ErrInvalidResponse = errors.New("invalid response")

// ErrMissingToken there is no token to work with
var ErrMissingToken = errors.New("missing token")

// ErrTokenNotJWT the token is opaque and can not be decoded
var ErrTokenNotJWT = errors.New("token is not a JWT")

// APIError is returned for any non 2xx response
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}

// IsRejected will check if the server refused the credentials
// or the token, as opposed to the call not going through
func IsRejected(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return errors.Is(err, ErrInvalidCredentials)
	}
	switch apiErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity, 419:
		return true
	}
	return false
}

// IsUnreachable will check for transport level failures
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrRequestFailed)
}
