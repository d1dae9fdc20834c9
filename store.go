package authclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goliatone/go-auth-client/storage"
	"golang.org/x/sync/singleflight"
)

// DefaultStorageKey is the durable storage key holding the raw token
const DefaultStorageKey = "token"

var _ TokenSource = &Store{}

// Store is the client auth state container. It holds the bearer token
// and the user record, mirrors the token to durable storage and exposes
// the login, logout and init flows. None of the flows return errors,
// failures are logged and turned into state transitions.
type Store struct {
	cfg      Config
	storage  storage.Storage
	api      *apiClient
	logger   Logger
	activity ActivitySink
	flight   singleflight.Group
	base     http.RoundTripper

	mu      sync.RWMutex
	token   string
	user    User
	loading int
}

// NewStore returns an empty Store. Call Restore to hydrate
// the token from durable storage.
func NewStore(cfg Config, st storage.Storage) *Store {
	if st == nil {
		st = storage.NewMemory()
	}
	s := &Store{
		cfg:      cfg,
		storage:  st,
		logger:   NewLogger(nil, false),
		activity: noopActivitySink{},
	}
	return s.WithHTTPClient(&http.Client{Timeout: cfg.GetRequestTimeout()})
}

// WithLogger sets the logger, nil keeps the current one
func (s *Store) WithLogger(logger Logger) *Store {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for session events.
func (s *Store) WithActivitySink(sink ActivitySink) *Store {
	s.activity = normalizeActivitySink(sink)
	return s
}

// WithHTTPClient uses hc for the auth endpoints. The client transport
// is wrapped with the header transport bound to this store and is
// reused as the base transport of HTTPClient.
func (s *Store) WithHTTPClient(hc *http.Client) *Store {
	if hc == nil {
		hc = &http.Client{}
	}
	s.base = hc.Transport
	c := *hc
	c.Transport = s.Transport(hc.Transport)
	s.api = newAPIClient(s.cfg, &c)
	return s
}

// Transport returns a RoundTripper that stamps the current token
// on outgoing requests. Use it for any other call to the backend.
func (s *Store) Transport(base http.RoundTripper) http.RoundTripper {
	return NewTransport(base, s)
}

// HTTPClient returns a client authenticated with the current session.
// It shares the base transport given to WithHTTPClient.
func (s *Store) HTTPClient() *http.Client {
	return &http.Client{
		Transport: s.Transport(s.base),
		Timeout:   s.cfg.GetRequestTimeout(),
	}
}

// Restore loads the token kept in durable storage. A missing
// entry leaves the store anonymous and is not an error.
func (s *Store) Restore(ctx context.Context) error {
	token, err := s.storage.Get(ctx, s.storageKey())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("restore token: %w", err)
	}

	s.mu.Lock()
	s.token = token
	s.user = nil
	s.mu.Unlock()

	s.logger.Debug("restored token from storage, status=%s", s.Status())
	return nil
}

// Login sends creds to the server. On success token and user are
// stored and true is returned. On failure the session is untouched.
func (s *Store) Login(ctx context.Context, creds Credentials) bool {
	done := s.startLoading()
	defer done()

	if err := creds.Validate(); err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		s.logger.Error("Login error: %s", err)
		s.emit(ctx, ActivityEventLoginFailure, "", failureMetadata(err, map[string]any{
			"identifier": creds.Identifier,
		}))
		return false
	}

	res, err := s.api.login(ctx, creds)
	if err != nil {
		s.logger.Error("Login error: %s", err)
		s.emit(ctx, ActivityEventLoginFailure, "", failureMetadata(err, map[string]any{
			"identifier": creds.Identifier,
		}))
		return false
	}

	if err := s.storage.Set(ctx, s.storageKey(), res.AccessToken); err != nil {
		err = fmt.Errorf("persist token: %w", err)
		s.logger.Error("Login error: %s", err)
		s.emit(ctx, ActivityEventLoginFailure, res.User.ID(), failureMetadata(err, map[string]any{
			"identifier": creds.Identifier,
		}))
		return false
	}

	s.mu.Lock()
	s.token = res.AccessToken
	s.user = res.User
	s.mu.Unlock()

	s.logger.Info("Login success user=%s", res.User.ID())
	s.emit(ctx, ActivityEventLoginSuccess, res.User.ID(), map[string]any{
		"identifier": creds.Identifier,
	})
	return true
}

// Logout notifies the server and then clears the local session.
// The local clear happens even if the server call fails.
func (s *Store) Logout(ctx context.Context) {
	done := s.startLoading()
	defer done()

	session := s.Session()

	if err := s.api.logout(ctx, session.Token); err != nil {
		s.logger.Error("Logout error: %s", err)
		s.emit(ctx, ActivityEventLogoutFailure, session.User.ID(), failureMetadata(err, nil))
	}

	s.ClearAuth(ctx)
	s.emit(ctx, ActivityEventLogout, session.User.ID(), nil)
}

// Init fetches the user record for the stored token. It does nothing
// without a token. Any failure is taken as an invalid token and clears
// the session. Concurrent calls for the same token share one request,
// which runs detached from the callers' contexts: a caller that gives
// up returns early and the server's answer still decides the outcome.
func (s *Store) Init(ctx context.Context) {
	token := s.Token()
	if token == "" {
		return
	}

	ch := s.flight.DoChan(token, func() (any, error) {
		return s.fetchUser(context.WithoutCancel(ctx), token)
	})

	select {
	case <-ch:
	case <-ctx.Done():
		s.logger.Debug("Init caller done before the response: %s", ctx.Err())
	}
}

func (s *Store) fetchUser(ctx context.Context, token string) (User, error) {
	done := s.startLoading()
	defer done()

	if timeout := s.cfg.GetRequestTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	user, err := s.api.me(ctx, token)
	if err != nil {
		s.logger.Error("Init auth error: %s", err)
		s.emit(ctx, ActivityEventInitFailure, "", failureMetadata(err, nil))
		s.clearIfCurrent(ctx, token)
		return nil, err
	}

	s.mu.Lock()
	current := s.token == token
	if current {
		s.user = user
	}
	s.mu.Unlock()

	if !current {
		s.logger.Debug("Init result dropped, token changed while in flight")
		return user, nil
	}

	s.emit(ctx, ActivityEventInitSuccess, user.ID(), nil)
	return user, nil
}

// ClearAuth resets memory, durable storage and the authorization
// header source. It is safe to call any number of times.
func (s *Store) ClearAuth(ctx context.Context) {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()

	s.removeStoredToken(ctx)
	s.emit(ctx, ActivityEventSessionCleared, "", nil)
}

func (s *Store) clearIfCurrent(ctx context.Context, token string) {
	s.mu.Lock()
	if s.token != token {
		s.mu.Unlock()
		return
	}
	s.token = ""
	s.user = nil
	s.mu.Unlock()

	s.removeStoredToken(ctx)
	s.emit(ctx, ActivityEventSessionCleared, "", nil)
}

func (s *Store) removeStoredToken(ctx context.Context) {
	// the caller context may already be done, e.g. a logout that timed out
	ctx = context.WithoutCancel(ctx)
	if err := s.storage.Delete(ctx, s.storageKey()); err != nil {
		s.logger.Error("Clear auth storage error: %s", err)
	}
}

// Token implements TokenSource
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns a copy of the current user record, nil when not loaded
func (s *Store) User() User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneUser(s.user)
}

// Session returns a snapshot of the token and user record
func (s *Store) Session() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Session{Token: s.token, User: cloneUser(s.user)}
}

// Status reports anonymous, pending or authenticated
func (s *Store) Status() Status {
	return s.Session().Status()
}

// IsAuthenticated is true once a token and its user record are both held
func (s *Store) IsAuthenticated() bool {
	return s.Session().IsAuthenticated()
}

// IsLoading is true while any flow is waiting on the network
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading > 0
}

// AuthorizationHeader is the value outgoing requests carry, empty when anonymous
func (s *Store) AuthorizationHeader() string {
	return BearerHeader(s.Token())
}

// TokenInfo decodes the current token, see ParseTokenInfo
func (s *Store) TokenInfo() (TokenInfo, error) {
	return ParseTokenInfo(s.Token())
}

func (s *Store) storageKey() string {
	if key := s.cfg.GetStorageKey(); key != "" {
		return key
	}
	return DefaultStorageKey
}

func (s *Store) startLoading() func() {
	s.mu.Lock()
	s.loading++
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.loading--
		s.mu.Unlock()
	}
}

func (s *Store) emit(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.activity.Record(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("Activity sink error event=%s: %s", eventType, err)
	}
}

func cloneUser(u User) User {
	if u == nil {
		return nil
	}
	out := make(User, len(u))
	for k, v := range u {
		out[k] = v
	}
	return out
}
