// Package identity authenticates users against an external identity provider
// and tracks the local session.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrLoginInProgress is returned by Login while another attempt is pending.
	ErrLoginInProgress = errors.New("login already in progress")
	// ErrStateMismatch is returned when the provider redirect carries an unknown state.
	ErrStateMismatch = errors.New("oauth state mismatch")
)

// Identity is one provider identity record with its raw fields
// (provider, user_id, connection, isSocial, ...).
type Identity map[string]any

// Provider returns the identity's provider name.
func (i Identity) Provider() string {
	return stringField(i, "provider")
}

// UserID returns the provider-scoped user id.
func (i Identity) UserID() string {
	return stringField(i, "user_id")
}

// WithAccessToken returns a copy of the identity with access_token set.
func (i Identity) WithAccessToken(token string) Identity {
	out := make(Identity, len(i)+1)
	for k, v := range i {
		out[k] = v
	}
	out["access_token"] = token
	return out
}

// IdentityFromSubject derives an identity from an OIDC subject of the form "provider|user_id".
func IdentityFromSubject(sub string) (Identity, bool) {
	provider, userID, ok := strings.Cut(strings.TrimSpace(sub), "|")
	if !ok || provider == "" || userID == "" {
		return nil, false
	}
	return Identity{
		"provider":   provider,
		"user_id":    userID,
		"connection": provider,
	}, true
}

// Profile is the provider-issued user profile.
type Profile struct {
	Subject    string     `json:"sub,omitempty"`
	Nickname   string     `json:"nickname,omitempty"`
	Name       string     `json:"name,omitempty"`
	Picture    string     `json:"picture,omitempty"`
	Email      string     `json:"email,omitempty"`
	Identities []Identity `json:"identities,omitempty"`
}

// TokenPayload carries the tokens issued with a successful login.
type TokenPayload struct {
	AccessToken string    `json:"access_token"`
	IDToken     string    `json:"id_token"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
}

// Expired reports whether the session tokens are no longer valid at now.
// ExpiresAt is the id token's exp, or the access token expiry when the
// provider issued no id token. A token without an expiry never expires locally.
func (t TokenPayload) Expired(now time.Time) bool {
	if strings.TrimSpace(t.IDToken) == "" && strings.TrimSpace(t.AccessToken) == "" {
		return true
	}
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// IDTokenExpiry reads the exp claim of an id token. The signature is not
// checked here; the backend verifies the token when it is exchanged.
func IDTokenExpiry(raw string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parse id token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

// Status is the session state machine position.
type Status int

const (
	StatusAnonymous Status = iota
	StatusAuthenticating
	StatusAuthenticated
)

func (s Status) String() string {
	switch s {
	case StatusAnonymous:
		return "anonymous"
	case StatusAuthenticating:
		return "authenticating"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// State is a snapshot of the session.
type State struct {
	Status  Status
	Profile *Profile
	Tokens  TokenPayload
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
