package authclient

import (
	"fmt"
	"io"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds client options
type Config interface {
	GetBaseURL() string
	GetAPIPrefix() string
	GetStorageKey() string
	GetRequestTimeout() time.Duration
}

// User is the record returned by the server. The client
// only cares that it exists, the helpers below read common keys.
type User map[string]any

// ID returns the "id" attribute formatted as a string
func (u User) ID() string {
	if u == nil {
		return ""
	}
	v, ok := u["id"]
	if !ok || v == nil {
		return ""
	}
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return fmt.Sprintf("%.0f", id)
	default:
		return fmt.Sprint(id)
	}
}

func (u User) Name() string {
	return u.stringAttr("name")
}

func (u User) Email() string {
	return u.stringAttr("email")
}

func (u User) stringAttr(key string) string {
	if u == nil {
		return ""
	}
	s, _ := u[key].(string)
	return s
}

// Credentials is the login payload. It is never stored.
type Credentials struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

func (c Credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Identifier, validation.Required, validation.Length(1, 255)),
		validation.Field(&c.Secret, validation.Required),
	)
}

// Status is the derived state of a Session
type Status string

const (
	StatusAnonymous     Status = "anonymous"
	StatusPending       Status = "pending"
	StatusAuthenticated Status = "authenticated"
)

func (s Status) String() string {
	return string(s)
}

type defLogger struct {
	out   io.Writer
	debug bool
}

// NewLogger returns the default line logger writing to out.
// Debug messages are dropped unless debug is true.
func NewLogger(out io.Writer, debug bool) Logger {
	if out == nil {
		out = os.Stdout
	}
	return defLogger{out: out, debug: debug}
}

func (d defLogger) Error(format string, args ...any) {
	fmt.Fprintf(d.out, "[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Fprintf(d.out, "[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Fprintf(d.out, "[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	if !d.debug {
		return
	}
	fmt.Fprintf(d.out, "[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
