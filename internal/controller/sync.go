package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/memohai/lobby/internal/backend"
	"github.com/memohai/lobby/internal/identity"
	"github.com/memohai/lobby/internal/view"
)

// ErrNoIdentity is returned when a provider profile carries no identity record.
var ErrNoIdentity = errors.New("profile has no provider identity")

// CredentialFor builds the backend login credential from the first provider
// identity, stamped with the provider access token, and the id token.
func CredentialFor(profile identity.Profile, tokens identity.TokenPayload) (backend.Credential, error) {
	if len(profile.Identities) == 0 {
		return backend.Credential{}, ErrNoIdentity
	}
	return backend.Credential{
		Identity: profile.Identities[0].WithAccessToken(tokens.AccessToken),
		Token:    tokens.IDToken,
	}, nil
}

// Login runs the interactive provider login and, on success, logs the
// identity into the backend and fills in the user's display fields.
//
// Every failure is logged and returned. A failed provider login or backend
// login leaves the screen state as it was; a failed profile update only
// leaves the backend user without display fields.
func (c *Controller) Login(ctx context.Context) error {
	c.mu.Lock()
	if c.state.LoggedIn && c.auth.LoggedIn() {
		c.mu.Unlock()
		return ErrAlreadyLoggedIn
	}
	if c.loggingIn {
		c.mu.Unlock()
		return identity.ErrLoginInProgress
	}
	c.loggingIn = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.loggingIn = false
		c.mu.Unlock()
	}()

	attempt, err := c.auth.Login(ctx)
	if err != nil {
		c.logger.Error("start login failed", slog.Any("error", err))
		return err
	}
	result, err := attempt.Wait(ctx)
	if err != nil {
		attempt.Cancel()
		c.clearLoginURL()
		c.logger.Error("identity provider login failed", slog.Any("error", err))
		return err
	}
	return c.syncIdentity(context.WithoutCancel(ctx), result)
}

func (c *Controller) syncIdentity(ctx context.Context, result identity.Result) error {
	credential, err := CredentialFor(result.Profile, result.Tokens)
	if err != nil {
		c.logger.Error("backend login skipped", slog.String("subject", result.Profile.Subject), slog.Any("error", err))
		c.abandonLogin()
		return err
	}

	session, err := c.data.Login(ctx, credential)
	if err != nil {
		c.logger.Error("backend login failed", slog.Any("error", err))
		c.abandonLogin()
		return fmt.Errorf("backend login: %w", err)
	}

	profile := result.Profile
	c.commit(func(s *view.State) {
		s.LoggedIn = true
		s.Profile = &profile
		s.LoginURL = ""
	})

	_, err = c.data.UpdateProfile(ctx, backend.ProfileUpdate{
		ID:       session.User.ID,
		Picture:  profile.Picture,
		Nickname: profile.Nickname,
	})
	if err != nil {
		c.logger.Warn("update user profile failed", slog.String("user_id", session.User.ID), slog.Any("error", err))
		return nil
	}
	c.logger.Info("logged in", slog.String("user_id", session.User.ID), slog.String("nickname", profile.Nickname))
	return nil
}

// abandonLogin drops the provider session of a login the backend did not accept.
func (c *Controller) abandonLogin() {
	c.auth.Logout()
	c.clearLoginURL()
}

func (c *Controller) clearLoginURL() {
	c.commit(func(s *view.State) { s.LoginURL = "" })
}
