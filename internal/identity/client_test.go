package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/lobby/internal/logger"
)

type stubProvider struct {
	release chan struct{}
	profile Profile
	tokens  TokenPayload
	err     error
	prompts []string
	mu      sync.Mutex
}

func (p *stubProvider) Authenticate(ctx context.Context, prompt Prompt) (Profile, TokenPayload, error) {
	prompt("https://tenant.example.com/authorize?state=x")
	p.mu.Lock()
	p.prompts = append(p.prompts, "prompted")
	p.mu.Unlock()
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return Profile{}, TokenPayload{}, ctx.Err()
		}
	}
	return p.profile, p.tokens, p.err
}

func signedIDToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "github|42",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func TestClientLoginSuccess(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	provider := &stubProvider{
		profile: Profile{Nickname: "octo", Picture: "https://img/octo.png"},
		tokens:  TokenPayload{AccessToken: "at", IDToken: signedIDToken(t, now.Add(time.Hour)), ExpiresAt: now.Add(time.Hour)},
	}
	store := &MemoryStore{}
	client := NewClient(logger.Discard(), provider, store, WithClock(func() time.Time { return now }))

	var seen []Status
	var mu sync.Mutex
	client.Subscribe(func(s State) {
		mu.Lock()
		seen = append(seen, s.Status)
		mu.Unlock()
	})

	assert.False(t, client.LoggedIn())
	assert.Nil(t, client.Profile())

	attempt, err := client.Login(context.Background())
	require.NoError(t, err)
	res, err := attempt.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "octo", res.Profile.Nickname)

	assert.True(t, client.LoggedIn())
	require.NotNil(t, client.Profile())
	assert.Equal(t, "octo", client.Profile().Nickname)

	stored, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "at", stored.Tokens.AccessToken)

	mu.Lock()
	assert.Equal(t, []Status{StatusAuthenticating, StatusAuthenticated}, seen)
	mu.Unlock()
}

func TestClientLoginFailureRestoresPriorState(t *testing.T) {
	provider := &stubProvider{err: errors.New("user closed the widget")}
	client := NewClient(logger.Discard(), provider, nil)

	attempt, err := client.Login(context.Background())
	require.NoError(t, err)
	res := attempt.Result()
	require.Error(t, res.Err)

	assert.Equal(t, StatusAnonymous, client.State().Status)
	assert.False(t, client.LoggedIn())
}

func TestClientRejectsConcurrentLogin(t *testing.T) {
	provider := &stubProvider{release: make(chan struct{})}
	client := NewClient(logger.Discard(), provider, nil)

	attempt, err := client.Login(context.Background())
	require.NoError(t, err)
	_, err = client.Login(context.Background())
	assert.ErrorIs(t, err, ErrLoginInProgress)

	attempt.Cancel()
	<-attempt.Done()
	assert.ErrorIs(t, attempt.Result().Err, context.Canceled)
	assert.Equal(t, StatusAnonymous, client.State().Status)
}

func TestClientLogoutClearsStore(t *testing.T) {
	now := time.Now()
	store := &MemoryStore{}
	require.NoError(t, store.Save(Session{
		Profile: Profile{Nickname: "octo"},
		Tokens:  TokenPayload{IDToken: "tok", ExpiresAt: now.Add(time.Hour)},
	}))

	client := NewClient(logger.Discard(), &stubProvider{}, store)
	require.True(t, client.LoggedIn())

	client.Logout()
	assert.False(t, client.LoggedIn())
	assert.Nil(t, client.Profile())
	stored, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestClientDropsExpiredStoredSession(t *testing.T) {
	store := &MemoryStore{}
	require.NoError(t, store.Save(Session{
		Profile: Profile{Nickname: "octo"},
		Tokens:  TokenPayload{IDToken: "tok", ExpiresAt: time.Now().Add(-time.Minute)},
	}))

	client := NewClient(logger.Discard(), &stubProvider{}, store)
	assert.False(t, client.LoggedIn())
	assert.Nil(t, client.Profile())
	stored, _ := store.Load()
	assert.Nil(t, stored)
}

func TestLoggedInTurnsFalseWhenTokenExpires(t *testing.T) {
	now := time.Now()
	store := &MemoryStore{}
	require.NoError(t, store.Save(Session{Tokens: TokenPayload{IDToken: "tok", ExpiresAt: now.Add(time.Minute)}}))

	clock := now
	client := NewClient(logger.Discard(), &stubProvider{}, store, WithClock(func() time.Time { return clock }))
	require.True(t, client.LoggedIn())

	clock = now.Add(2 * time.Minute)
	assert.False(t, client.LoggedIn())
}

func TestIDTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	got, err := IDTokenExpiry(signedIDToken(t, exp))
	require.NoError(t, err)
	assert.True(t, exp.Equal(got))

	_, err = IDTokenExpiry("not-a-jwt")
	assert.Error(t, err)
}

func TestIdentityHelpers(t *testing.T) {
	ident, ok := IdentityFromSubject("google-oauth2|1234")
	require.True(t, ok)
	assert.Equal(t, "google-oauth2", ident.Provider())
	assert.Equal(t, "1234", ident.UserID())

	_, ok = IdentityFromSubject("no-separator")
	assert.False(t, ok)

	withToken := ident.WithAccessToken("at")
	assert.Equal(t, "at", withToken["access_token"])
	_, mutated := ident["access_token"]
	assert.False(t, mutated, "WithAccessToken must not modify the original identity")
}

func TestTokenExpiryWithoutIDToken(t *testing.T) {
	now := time.Now()
	accessOnly := TokenPayload{AccessToken: "at", ExpiresAt: now.Add(time.Hour)}
	assert.False(t, accessOnly.Expired(now))
	assert.True(t, accessOnly.Expired(now.Add(2*time.Hour)))
	assert.True(t, TokenPayload{}.Expired(now), "no tokens at all")
}

func TestAccessOnlySessionSurvivesRestart(t *testing.T) {
	now := time.Now()
	store := &MemoryStore{}
	require.NoError(t, store.Save(Session{
		Profile: Profile{Nickname: "octo"},
		Tokens:  TokenPayload{AccessToken: "at", ExpiresAt: now.Add(time.Hour)},
	}))

	client := NewClient(logger.Discard(), &stubProvider{}, store, WithClock(func() time.Time { return now }))
	assert.True(t, client.LoggedIn())
	stored, err := store.Load()
	require.NoError(t, err)
	assert.NotNil(t, stored)
}
