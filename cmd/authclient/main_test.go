package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goliatone/go-auth-client/activitymap"
	"github.com/goliatone/go-auth-client/apitest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func setupEnv(t *testing.T) (*apitest.Server, string) {
	t.Helper()
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddUser("jane@example.com", "secret", map[string]any{"name": "Jane"})

	dir := t.TempDir()
	t.Setenv("AUTHCLIENT_BASE_URL", srv.URL)
	t.Setenv("AUTHCLIENT_API_PREFIX", apitest.Prefix)
	t.Setenv("AUTHCLIENT_STORAGE", "file")
	t.Setenv("AUTHCLIENT_STORAGE_DIR", dir)
	t.Setenv("AUTHCLIENT_STORAGE_KEY", "token")
	t.Setenv("AUTHCLIENT_TIMEOUT", "5")
	t.Setenv("AUTHCLIENT_DEBUG", "false")
	t.Setenv("AUTHCLIENT_ACTIVITY_LOG", "")
	t.Setenv("AUTHCLIENT_CONFIG", "")
	return srv, dir
}

func TestRunUsage(t *testing.T) {
	res := runCLI(t, "")
	assert.Equal(t, exitUsage, res.code)
	assert.Contains(t, res.stderr, "Usage: authclient")
}

func TestRunUnknownCommand(t *testing.T) {
	setupEnv(t)
	res := runCLI(t, "", "dance")
	assert.Equal(t, exitUsage, res.code)
	assert.Contains(t, res.stderr, `unknown command "dance"`)
}

func TestRunInvalidConfiguration(t *testing.T) {
	setupEnv(t)
	res := runCLI(t, "", "-storage", "etcd", "status")
	assert.Equal(t, exitError, res.code)
	assert.Contains(t, res.stderr, "invalid configuration")
}

func TestRunSessionLifecycle(t *testing.T) {
	srv, dir := setupEnv(t)

	res := runCLI(t, "secret\n", "login", "-identifier", "jane@example.com")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "== Dashboard ==")
	assert.Contains(t, res.stdout, "Welcome, Jane.")

	raw, err := os.ReadFile(filepath.Join(dir, "token"))
	require.NoError(t, err)
	token := string(raw)
	require.NotEmpty(t, token)

	res = runCLI(t, "", "status")
	require.Equal(t, exitOK, res.code)
	assert.Contains(t, res.stdout, "status:  pending")
	assert.Contains(t, res.stdout, "storage: file")
	assert.Contains(t, res.stdout, "subject: ")
	assert.Contains(t, res.stdout, "(valid)")

	res = runCLI(t, "", "whoami")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "jane@example.com")
	assert.Equal(t, 1, srv.MeCalls())

	req, found := srv.LastRequest("/api/me")
	require.True(t, found)
	assert.Equal(t, "Bearer "+token, req.Authorization)

	res = runCLI(t, "", "visit", "/login")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "(redirected from /login)")
	assert.Contains(t, res.stdout, "== Dashboard ==")

	res = runCLI(t, "", "logout")
	require.Equal(t, exitOK, res.code)
	assert.Contains(t, res.stdout, "Logged out.")

	_, err = os.Stat(filepath.Join(dir, "token"))
	assert.True(t, os.IsNotExist(err))

	req, found = srv.LastRequest("/api/logout")
	require.True(t, found)
	assert.Equal(t, "Bearer "+token, req.Authorization)

	res = runCLI(t, "", "visit", "dashboard")
	require.Equal(t, exitOK, res.code)
	assert.Contains(t, res.stdout, "(redirected from /dashboard)")
	assert.Contains(t, res.stdout, "== Login ==")
	assert.NotContains(t, res.stdout, "== Dashboard ==")

	res = runCLI(t, "", "whoami")
	assert.Equal(t, exitError, res.code)
	assert.Contains(t, res.stderr, "not logged in")
}

func TestRunLoginFailure(t *testing.T) {
	_, dir := setupEnv(t)

	res := runCLI(t, "", "login", "-identifier", "jane@example.com", "-secret", "wrong")
	assert.Equal(t, exitError, res.code)
	assert.Contains(t, res.stderr, "login failed")
	assert.Contains(t, res.stderr, "[ERR] AUTH Login error")

	_, err := os.Stat(filepath.Join(dir, "token"))
	assert.True(t, os.IsNotExist(err))

	res = runCLI(t, "", "status")
	assert.Contains(t, res.stdout, "status:  anonymous")
}

func TestRunRevokedTokenIsCleared(t *testing.T) {
	srv, dir := setupEnv(t)

	res := runCLI(t, "", "login", "-identifier", "jane@example.com", "-secret", "secret")
	require.Equal(t, exitOK, res.code, res.stderr)

	raw, err := os.ReadFile(filepath.Join(dir, "token"))
	require.NoError(t, err)
	srv.Revoke(string(raw))

	res = runCLI(t, "", "visit", "/dashboard")
	require.Equal(t, exitOK, res.code)
	assert.Contains(t, res.stdout, "== Login ==")
	assert.NotContains(t, res.stdout, "Welcome")

	_, err = os.Stat(filepath.Join(dir, "token"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunVisitUnknownRoute(t *testing.T) {
	setupEnv(t)
	res := runCLI(t, "", "visit", "/nowhere")
	assert.Equal(t, exitError, res.code)
	assert.Contains(t, res.stderr, "route not found")
}

func TestRunVisitHome(t *testing.T) {
	setupEnv(t)
	res := runCLI(t, "", "visit", "home")
	require.Equal(t, exitOK, res.code)
	assert.Contains(t, res.stdout, "== Home ==")
	assert.Contains(t, res.stdout, "Not signed in.")
}

func TestRunRoutes(t *testing.T) {
	setupEnv(t)
	res := runCLI(t, "", "routes")
	require.Equal(t, exitOK, res.code)

	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "/login")
	assert.Contains(t, lines[1], "requiresGuest")
	assert.Contains(t, lines[2], "/dashboard")
	assert.Contains(t, lines[2], "requiresAuth")
}

func TestRunMemoryStorageDoesNotPersist(t *testing.T) {
	setupEnv(t)

	res := runCLI(t, "", "-storage", "memory", "login", "-identifier", "jane@example.com", "-secret", "secret")
	require.Equal(t, exitOK, res.code, res.stderr)

	res = runCLI(t, "", "-storage", "memory", "status")
	assert.Contains(t, res.stdout, "status:  anonymous")
}

func TestRunSQLiteStorage(t *testing.T) {
	setupEnv(t)
	t.Setenv("AUTHCLIENT_STORAGE", "sqlite")
	t.Setenv("AUTHCLIENT_SQLITE_DSN", "file:"+filepath.Join(t.TempDir(), "auth.db"))

	res := runCLI(t, "", "login", "-identifier", "jane@example.com", "-secret", "secret")
	require.Equal(t, exitOK, res.code, res.stderr)

	res = runCLI(t, "", "whoami")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "jane@example.com")
}

func TestRunRedisStorage(t *testing.T) {
	setupEnv(t)
	mr := miniredis.RunT(t)
	t.Setenv("AUTHCLIENT_STORAGE", "redis")
	t.Setenv("AUTHCLIENT_REDIS_ADDR", mr.Addr())
	t.Setenv("AUTHCLIENT_REDIS_PREFIX", "test:")

	res := runCLI(t, "", "login", "-identifier", "jane@example.com", "-secret", "secret")
	require.Equal(t, exitOK, res.code, res.stderr)

	token, err := mr.Get("test:token")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	res = runCLI(t, "", "logout")
	require.Equal(t, exitOK, res.code)
	assert.False(t, mr.Exists("test:token"))
}

func TestRunBaseURLFlag(t *testing.T) {
	srv, _ := setupEnv(t)
	t.Setenv("AUTHCLIENT_BASE_URL", "http://127.0.0.1:1")

	res := runCLI(t, "", "-base-url", srv.URL, "login", "-identifier", "jane@example.com", "-secret", "secret")
	assert.Equal(t, exitOK, res.code, res.stderr)
}

func TestRunActivityLog(t *testing.T) {
	setupEnv(t)
	logPath := filepath.Join(t.TempDir(), "activity.jsonl")
	t.Setenv("AUTHCLIENT_ACTIVITY_LOG", logPath)

	res := runCLI(t, "", "login", "-identifier", "jane@example.com", "-secret", "wrong")
	require.Equal(t, exitError, res.code)
	res = runCLI(t, "", "login", "-identifier", "jane@example.com", "-secret", "secret")
	require.Equal(t, exitOK, res.code, res.stderr)
	res = runCLI(t, "", "logout")
	require.Equal(t, exitOK, res.code)

	f, err := os.Open(logPath)
	require.NoError(t, err)
	defer f.Close()

	var verbs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec activitymap.Normalized
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		verbs = append(verbs, rec.Verb)
	}
	require.NoError(t, scanner.Err())

	assert.Equal(t, []string{
		"auth.login.failure",
		"auth.login.success",
		"auth.session.cleared",
		"auth.logout",
	}, verbs)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Jane", displayName(map[string]any{"name": "Jane", "email": "jane@example.com"}))
	assert.Equal(t, "jane@example.com", displayName(map[string]any{"name": "", "email": "jane@example.com"}))
	assert.Equal(t, "42", displayName(map[string]any{"id": 42}))
	assert.Equal(t, "unknown user", displayName(nil))
}
