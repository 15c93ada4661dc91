package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"
)

const callbackPath = "/callback"

// OAuthConfig configures the hosted-login provider.
type OAuthConfig struct {
	ClientID string
	// Domain is the provider tenant, e.g. "tenant.eu.auth0.com". A scheme may be included.
	Domain   string
	Audience string
	Scopes   []string
	// RedirectAddr is the loopback address the callback listener binds to.
	RedirectAddr string
	// HTTPClient is used for token and userinfo calls when set.
	HTTPClient *http.Client
}

// OAuthProvider runs the authorization code flow with PKCE and a loopback redirect.
type OAuthProvider struct {
	cfg         OAuthConfig
	oauth       oauth2.Config
	userInfoURL string
	logger      *slog.Logger
}

// NewOAuthProvider builds a provider for the given tenant.
func NewOAuthProvider(log *slog.Logger, cfg OAuthConfig) *OAuthProvider {
	if log == nil {
		log = slog.Default()
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.Domain), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile"}
	}
	return &OAuthProvider{
		cfg: cfg,
		oauth: oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/authorize",
				TokenURL:  base + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: scopes,
		},
		userInfoURL: base + "/userinfo",
		logger:      log.With(slog.String("component", "oauth")),
	}
}

type callbackResult struct {
	code string
	err  error
}

// Authenticate opens a callback listener, hands the authorization URL to
// prompt and waits for the redirect, then exchanges the code and loads the profile.
func (p *OAuthProvider) Authenticate(ctx context.Context, prompt Prompt) (Profile, TokenPayload, error) {
	if p.cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.cfg.HTTPClient)
	}
	ln, err := net.Listen("tcp", p.cfg.RedirectAddr)
	if err != nil {
		return Profile{}, TokenPayload{}, fmt.Errorf("listen for callback: %w", err)
	}

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	results := make(chan callbackResult, 1)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET(callbackPath, func(c echo.Context) error {
		res := parseCallback(c, state)
		select {
		case results <- res:
		default:
		}
		if res.err != nil {
			return c.String(http.StatusBadRequest, "Login failed. You can close this window.")
		}
		return c.String(http.StatusOK, "Login complete. You can close this window.")
	})
	srv := &http.Server{Handler: e, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Warn("callback listener stopped", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	conf := p.oauth
	conf.RedirectURL = "http://" + ln.Addr().String() + callbackPath
	opts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}
	if aud := strings.TrimSpace(p.cfg.Audience); aud != "" {
		opts = append(opts, oauth2.SetAuthURLParam("audience", aud))
	}
	prompt(conf.AuthCodeURL(state, opts...))

	var res callbackResult
	select {
	case res = <-results:
	case <-ctx.Done():
		return Profile{}, TokenPayload{}, ctx.Err()
	}
	if res.err != nil {
		return Profile{}, TokenPayload{}, res.err
	}

	tok, err := conf.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return Profile{}, TokenPayload{}, fmt.Errorf("exchange code: %w", err)
	}
	idToken, _ := tok.Extra("id_token").(string)
	tokens := TokenPayload{AccessToken: tok.AccessToken, IDToken: idToken, ExpiresAt: tok.Expiry}
	if idToken != "" {
		if exp, err := IDTokenExpiry(idToken); err != nil {
			p.logger.Warn("id token unreadable", slog.Any("error", err))
		} else if !exp.IsZero() {
			tokens.ExpiresAt = exp
		}
	}

	profile, err := p.fetchProfile(ctx, conf.Client(ctx, tok))
	if err != nil {
		return Profile{}, TokenPayload{}, err
	}
	return profile, tokens, nil
}

func parseCallback(c echo.Context, state string) callbackResult {
	if errCode := c.QueryParam("error"); errCode != "" {
		desc := c.QueryParam("error_description")
		return callbackResult{err: fmt.Errorf("provider error %s: %s", errCode, desc)}
	}
	if c.QueryParam("state") != state {
		return callbackResult{err: ErrStateMismatch}
	}
	code := c.QueryParam("code")
	if code == "" {
		return callbackResult{err: errors.New("callback without code")}
	}
	return callbackResult{code: code}
}

func (p *OAuthProvider) fetchProfile(ctx context.Context, client *http.Client) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return Profile{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Profile{}, fmt.Errorf("read userinfo: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("userinfo status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return Profile{}, fmt.Errorf("decode userinfo: %w", err)
	}
	if profile.Identities == nil {
		if ident, ok := IdentityFromSubject(profile.Subject); ok {
			profile.Identities = []Identity{ident}
		}
	}
	return profile, nil
}
