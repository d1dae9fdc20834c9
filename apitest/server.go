// Package apitest runs an in process fake of the auth backend for tests.
// It answers POST /api/login, POST /api/logout and GET /api/me the way
// the real server does and lets tests break each endpoint on demand.
package apitest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const Prefix = "/api"

// RecordedRequest is what the fake saw for one call
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	RequestedWith string
	RequestID     string
}

type account struct {
	id         string
	identifier string
	hash       []byte
	record     map[string]any
}

type Server struct {
	*httptest.Server

	signingKey []byte
	tokenTTL   time.Duration

	mu         sync.Mutex
	accounts   map[string]*account
	byID       map[string]*account
	revoked    map[string]bool
	requests   []RecordedRequest
	meCalls    int
	failMe     bool
	failLogout bool
	meHold     chan struct{}
	meEntered  chan struct{}
}

// NewServer starts the fake. Call Close when done.
func NewServer() *Server {
	s := &Server{
		signingKey: []byte(uuid.NewString()),
		tokenTTL:   time.Hour,
		accounts:   make(map[string]*account),
		byID:       make(map[string]*account),
		revoked:    make(map[string]bool),
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	api := app.Group(Prefix, s.record)
	api.Post("/login", s.login)
	api.Post("/logout", s.logout)
	api.Get("/me", s.me)

	s.Server = httptest.NewServer(adaptor.FiberApp(app))
	return s
}

// AddUser registers an account and returns its record. The id is
// generated unless attrs carries one; non string ids are kept in their
// string form, which is also the token subject.
func (s *Server) AddUser(identifier, secret string, attrs map[string]any) map[string]any {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("apitest: hash secret: %v", err))
	}

	record := map[string]any{
		"id":    uuid.NewString(),
		"email": identifier,
	}
	for k, v := range attrs {
		record[k] = v
	}
	if record["id"] == nil {
		panic("apitest: AddUser id must not be nil")
	}
	id := fmt.Sprint(record["id"])
	if id == "" {
		panic("apitest: AddUser id must not be empty")
	}
	record["id"] = id

	acc := &account{id: id, identifier: identifier, hash: hash, record: record}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[identifier] = acc
	s.byID[id] = acc
	return copyRecord(record)
}

// IssueToken mints a valid token for identifier, as if it had logged in earlier
func (s *Server) IssueToken(identifier string) string {
	s.mu.Lock()
	acc, ok := s.accounts[identifier]
	s.mu.Unlock()
	if !ok {
		panic("apitest: unknown identifier " + identifier)
	}
	token, err := s.issue(acc)
	if err != nil {
		panic(fmt.Sprintf("apitest: issue token: %v", err))
	}
	return token
}

// Revoke invalidates token, /me will answer 401 for it
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[token] = true
}

func (s *Server) SetFailMe(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failMe = fail
}

func (s *Server) SetFailLogout(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLogout = fail
}

// HoldMe blocks every /me call until release is called. entered
// receives once per call that reached the handler.
func (s *Server) HoldMe() (entered <-chan struct{}, release func()) {
	hold := make(chan struct{})
	in := make(chan struct{}, 64)

	s.mu.Lock()
	s.meHold = hold
	s.meEntered = in
	s.mu.Unlock()

	var once sync.Once
	return in, func() {
		once.Do(func() {
			close(hold)
		})
	}
}

// MeCalls counts the /me requests served so far
func (s *Server) MeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meCalls
}

func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// LastRequest returns the most recent call to path, e.g. "/api/me"
func (s *Server) LastRequest(path string) (RecordedRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.requests) - 1; i >= 0; i-- {
		if s.requests[i].Path == path {
			return s.requests[i], true
		}
	}
	return RecordedRequest{}, false
}

func (s *Server) record(c *fiber.Ctx) error {
	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Method:        c.Method(),
		Path:          c.Path(),
		Authorization: c.Get(fiber.HeaderAuthorization),
		RequestedWith: c.Get(fiber.HeaderXRequestedWith),
		RequestID:     c.Get(fiber.HeaderXRequestID),
	})
	s.mu.Unlock()
	return c.Next()
}

type loginPayload struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

func (s *Server) login(c *fiber.Ctx) error {
	var payload loginPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"message": "Error parsing body"})
	}

	s.mu.Lock()
	acc, ok := s.accounts[payload.Identifier]
	s.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(acc.hash, []byte(payload.Secret)) != nil {
		return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{
			"message": "These credentials do not match our records.",
		})
	}

	token, err := s.issue(acc)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}

	return c.JSON(fiber.Map{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   int(s.tokenTTL.Seconds()),
		"user":         copyRecord(acc.record),
	})
}

func (s *Server) logout(c *fiber.Ctx) error {
	s.mu.Lock()
	fail := s.failLogout
	s.mu.Unlock()

	if fail {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"message": "Server Error"})
	}

	if _, token, err := s.authenticate(c); err == nil {
		s.Revoke(token)
	}

	return c.JSON(fiber.Map{"message": "Successfully logged out"})
}

func (s *Server) me(c *fiber.Ctx) error {
	s.mu.Lock()
	s.meCalls++
	fail := s.failMe
	hold, entered := s.meHold, s.meEntered
	s.mu.Unlock()

	if hold != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-hold
	}

	if fail {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"message": "Server Error"})
	}

	acc, _, err := s.authenticate(c)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"message": "Unauthenticated."})
	}

	return c.JSON(copyRecord(acc.record))
}

func (s *Server) authenticate(c *fiber.Ctx) (*account, string, error) {
	header := c.Get(fiber.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, "", fmt.Errorf("missing bearer token")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.revoked[token] {
		return nil, "", fmt.Errorf("token revoked")
	}
	acc, ok := s.byID[claims.Subject]
	if !ok {
		return nil, "", fmt.Errorf("unknown subject")
	}
	return acc, token, nil
}

func (s *Server) issue(acc *account) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    "apitest",
		Subject:   acc.id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}

func copyRecord(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
