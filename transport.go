package authclient

import (
	"net/http"

	"github.com/google/uuid"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderRequestedWith = "X-Requested-With"
	HeaderRequestID     = "X-Request-ID"

	requestedWithXHR = "XMLHttpRequest"
	authScheme       = "Bearer"
)

// TokenSource returns the token to attach to the next request
type TokenSource interface {
	Token() string
}

// TokenSourceFunc adapts a function to the TokenSource interface.
type TokenSourceFunc func() string

func (f TokenSourceFunc) Token() string {
	if f == nil {
		return ""
	}
	return f()
}

// BearerHeader formats the Authorization header value for token
func BearerHeader(token string) string {
	if token == "" {
		return ""
	}
	return authScheme + " " + token
}

type headerTransport struct {
	base   http.RoundTripper
	source TokenSource
}

// NewTransport wraps base so every request carries the XHR marker,
// a request id and, when source has one, the bearer token.
// Headers already present on the request win.
func NewTransport(base http.RoundTripper, source TokenSource) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &headerTransport{base: base, source: source}
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())

	r.Header.Set(HeaderRequestedWith, requestedWithXHR)

	if r.Header.Get(HeaderRequestID) == "" {
		r.Header.Set(HeaderRequestID, uuid.NewString())
	}

	if r.Header.Get(HeaderAuthorization) == "" && t.source != nil {
		if token := t.source.Token(); token != "" {
			r.Header.Set(HeaderAuthorization, BearerHeader(token))
		}
	}

	return t.base.RoundTrip(r)
}
