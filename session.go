package authclient

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is a snapshot of the client auth state
type Session struct {
	Token string `json:"token,omitempty"`
	User  User   `json:"user,omitempty"`
}

// IsAuthenticated is true only when both a token and a user record are present
func (s Session) IsAuthenticated() bool {
	return s.Token != "" && len(s.User) > 0
}

func (s Session) Status() Status {
	switch {
	case s.IsAuthenticated():
		return StatusAuthenticated
	case s.Token != "":
		return StatusPending
	default:
		return StatusAnonymous
	}
}

func (s Session) String() string {
	return fmt.Sprintf("status=%s user=%s token=%s", s.Status(), s.User.ID(), maskToken(s.Token))
}

// TokenInfo holds the registered claims of a JWT bearer token.
// The signature is NOT verified, only the server can do that.
type TokenInfo struct {
	ID        string
	Subject   string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports if the token carries an expiration date before now
func (t TokenInfo) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// ParseTokenInfo decodes the registered claims of a JWT
func ParseTokenInfo(token string) (TokenInfo, error) {
	if token == "" {
		return TokenInfo{}, ErrMissingToken
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, fmt.Errorf("%w: %v", ErrTokenNotJWT, err)
	}

	info := TokenInfo{
		ID:      claims.ID,
		Subject: claims.Subject,
		Issuer:  claims.Issuer,
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

func maskToken(token string) string {
	if token == "" {
		return "<nil>"
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-4:]
}
