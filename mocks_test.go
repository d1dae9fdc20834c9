package authclient_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	authclient "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-auth-client/apitest"
	"github.com/goliatone/go-auth-client/storage"
	"github.com/stretchr/testify/mock"
)

// MockStorage implements storage.Storage
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockStorage) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockStorage) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

var _ storage.Storage = &MockStorage{}

// recordingLogger keeps every formatted line
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) add(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Debug(format string, args ...any) { l.add("DBG", format, args...) }
func (l *recordingLogger) Info(format string, args ...any)  { l.add("INF", format, args...) }
func (l *recordingLogger) Warn(format string, args ...any)  { l.add("WRN", format, args...) }
func (l *recordingLogger) Error(format string, args ...any) { l.add("ERR", format, args...) }

func (l *recordingLogger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// activityRecorder collects events sent to the sink
type activityRecorder struct {
	mu     sync.Mutex
	events []authclient.ActivityEvent
}

func (r *activityRecorder) Record(_ context.Context, event authclient.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *activityRecorder) Events() []authclient.ActivityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]authclient.ActivityEvent(nil), r.events...)
}

func (r *activityRecorder) Types() []authclient.ActivityEventType {
	var out []authclient.ActivityEventType
	for _, e := range r.Events() {
		out = append(out, e.EventType)
	}
	return out
}

func (r *activityRecorder) Last(eventType authclient.ActivityEventType) (authclient.ActivityEvent, bool) {
	events := r.Events()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].EventType == eventType {
			return events[i], true
		}
	}
	return authclient.ActivityEvent{}, false
}

type testServer = *apitest.Server

type testConfig struct {
	baseURL string
	key     string
}

func (c testConfig) GetBaseURL() string               { return c.baseURL }
func (c testConfig) GetAPIPrefix() string             { return apitest.Prefix }
func (c testConfig) GetStorageKey() string            { return c.key }
func (c testConfig) GetRequestTimeout() time.Duration { return 5 * time.Second }

func newTestServer(t *testing.T) *apitest.Server {
	t.Helper()
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	return srv
}

func newTestStore(t *testing.T, srv *apitest.Server, st storage.Storage) (*authclient.Store, *recordingLogger) {
	t.Helper()
	logger := &recordingLogger{}
	store := authclient.NewStore(testConfig{baseURL: srv.URL, key: "token"}, st).
		WithLogger(logger)
	return store, logger
}
