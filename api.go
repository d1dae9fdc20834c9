package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	DefaultAPIPrefix = "/api"

	loginPath  = "/login"
	logoutPath = "/logout"
	mePath     = "/me"

	maxErrorBody = 4 << 10
)

type loginResponse struct {
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
}

// apiClient talks to the three auth endpoints. The token for each
// call is passed in explicitly, nothing is kept on the client.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(cfg Config, hc *http.Client) *apiClient {
	prefix := cfg.GetAPIPrefix()
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return &apiClient{
		baseURL: strings.TrimRight(cfg.GetBaseURL(), "/") + strings.TrimRight(prefix, "/"),
		http:    hc,
	}
}

func (c *apiClient) login(ctx context.Context, creds Credentials) (loginResponse, error) {
	var res loginResponse
	if err := c.do(ctx, http.MethodPost, loginPath, "", creds, &res); err != nil {
		return loginResponse{}, err
	}
	if res.AccessToken == "" || len(res.User) == 0 {
		return loginResponse{}, fmt.Errorf("%w: login response without access_token or user", ErrInvalidResponse)
	}
	return res, nil
}

func (c *apiClient) logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, logoutPath, token, nil, nil)
}

func (c *apiClient) me(ctx context.Context, token string) (User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, mePath, token, nil, &user); err != nil {
		return nil, err
	}
	if len(user) == 0 {
		return nil, fmt.Errorf("%w: empty user record", ErrInvalidResponse)
	}
	return user, nil
}

func (c *apiClient) do(ctx context.Context, method, path, token string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(HeaderAuthorization, BearerHeader(token))
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrRequestFailed, method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return newAPIError(res)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrInvalidResponse, path, err)
	}
	return nil
}

func newAPIError(res *http.Response) *APIError {
	apiErr := &APIError{StatusCode: res.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	var msg struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &msg); err == nil {
		apiErr.Message = msg.Message
		if apiErr.Message == "" {
			apiErr.Message = msg.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
