// Package activitymap turns client session events into a flat record
// that log pipelines can ingest, and ships a sink writing them as JSON lines.
package activitymap

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	authclient "github.com/goliatone/go-auth-client"
)

const (
	// MetadataKeyOutcome is "success" or "failure", derived from the event type.
	MetadataKeyOutcome = "outcome"
	// MetadataKeyClient names the client that produced the record.
	MetadataKeyClient = "client"
)

const (
	defaultChannel    = "auth-client"
	defaultObjectType = "session"
	defaultActorID    = "anonymous"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	objectType    string
	actorFallback string
	client        string
}

// Normalize converts an authclient.ActivityEvent into the normalized shape.
func Normalize(event authclient.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := strings.TrimSpace(event.UserID)
	if actorID == "" {
		actorID = options.actorFallback
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: options.objectType,
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event, options),
		OccurredAt: occurredAt,
	}
}

// WithDefaultChannel sets the channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback sets the actor id used when the event has no user.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if actorID = strings.TrimSpace(actorID); actorID != "" {
			opts.actorFallback = actorID
		}
	}
}

// WithClient tags every record with a client name, e.g. the hostname.
func WithClient(name string) Option {
	return func(opts *normalizeOptions) {
		opts.client = strings.TrimSpace(name)
	}
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
}

func normalizeMetadata(event authclient.ActivityEvent, options normalizeOptions) map[string]any {
	metadata := make(map[string]any, len(event.Metadata)+2)
	for key, value := range event.Metadata {
		metadata[key] = value
	}

	if _, exists := metadata[MetadataKeyOutcome]; !exists {
		metadata[MetadataKeyOutcome] = outcome(event.EventType)
	}
	if options.client != "" {
		metadata[MetadataKeyClient] = options.client
	}
	return metadata
}

func outcome(t authclient.ActivityEventType) string {
	if strings.HasSuffix(string(t), ".failure") {
		return "failure"
	}
	return "success"
}

// JSONSink writes one normalized record per line
type JSONSink struct {
	mu   sync.Mutex
	enc  *json.Encoder
	opts []Option
}

var _ authclient.ActivitySink = &JSONSink{}

func NewJSONSink(w io.Writer, opts ...Option) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(w), opts: opts}
}

// Record implements authclient.ActivitySink.
func (s *JSONSink) Record(_ context.Context, event authclient.ActivityEvent) error {
	record := Normalize(event, s.opts...)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(record)
}
