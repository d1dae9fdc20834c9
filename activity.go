package authclient

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess   ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure   ActivityEventType = "auth.login.failure"
	ActivityEventLogout         ActivityEventType = "auth.logout"
	ActivityEventLogoutFailure  ActivityEventType = "auth.logout.failure"
	ActivityEventInitSuccess    ActivityEventType = "auth.init.success"
	ActivityEventInitFailure    ActivityEventType = "auth.init.failure"
	ActivityEventSessionCleared ActivityEventType = "auth.session.cleared"
)

// ActivityEvent describes a transition of the client session.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events, for local audit trails or telemetry.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// failureMetadata tags an error so sinks can tell a rejected
// credential from a server that could not be reached.
func failureMetadata(err error, extra map[string]any) map[string]any {
	md := map[string]any{
		"error":       err.Error(),
		"rejected":    IsRejected(err),
		"unreachable": IsUnreachable(err),
	}
	for k, v := range extra {
		md[k] = v
	}
	return md
}
