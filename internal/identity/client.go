package identity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Prompt shows the user where to complete an interactive login.
type Prompt func(authURL string)

// Provider runs one interactive login against the identity provider.
type Provider interface {
	Authenticate(ctx context.Context, prompt Prompt) (Profile, TokenPayload, error)
}

// Result is the outcome of one login attempt.
type Result struct {
	Profile Profile
	Tokens  TokenPayload
	Err     error
}

// Attempt is a pending login. It resolves exactly once.
type Attempt struct {
	done   chan struct{}
	result Result
	cancel context.CancelFunc
}

// Done is closed when the attempt has resolved.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Result returns the outcome; it is only meaningful after Done is closed.
func (a *Attempt) Result() Result {
	<-a.done
	return a.result
}

// Wait blocks until the attempt resolves or ctx ends.
func (a *Attempt) Wait(ctx context.Context) (Result, error) {
	select {
	case <-a.done:
		return a.result, a.result.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Cancel aborts the interactive flow (for example when the user quits).
func (a *Attempt) Cancel() {
	a.cancel()
}

// Client is the session state machine: anonymous -> authenticating -> authenticated.
type Client struct {
	provider Provider
	store    SessionStore
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	state     State
	prompt    Prompt
	listeners map[int]func(State)
	nextID    int
}

// Option configures a Client.
type Option func(*Client)

// WithClock overrides the time source used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithPrompt sets where authorization URLs are shown.
func WithPrompt(p Prompt) Option {
	return func(c *Client) { c.prompt = p }
}

// NewClient creates a client and restores any stored session.
func NewClient(log *slog.Logger, provider Provider, store SessionStore, opts ...Option) *Client {
	if log == nil {
		log = slog.Default()
	}
	if store == nil {
		store = &MemoryStore{}
	}
	c := &Client{
		provider:  provider,
		store:     store,
		logger:    log.With(slog.String("component", "identity")),
		now:       time.Now,
		listeners: map[int]func(State){},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.restore()
	return c
}

func (c *Client) restore() {
	session, err := c.store.Load()
	if err != nil {
		c.logger.Warn("restore session failed", slog.Any("error", err))
		return
	}
	if session == nil {
		return
	}
	if session.Tokens.Expired(c.now()) {
		c.logger.Debug("stored session expired")
		if err := c.store.Clear(); err != nil {
			c.logger.Warn("clear expired session failed", slog.Any("error", err))
		}
		return
	}
	profile := session.Profile
	c.state = State{Status: StatusAuthenticated, Profile: &profile, Tokens: session.Tokens}
}

// SetPrompt replaces the prompt used by later login attempts.
func (c *Client) SetPrompt(p Prompt) {
	c.mu.Lock()
	c.prompt = p
	c.mu.Unlock()
}

// Login starts an interactive login. Provider errors are logged and reported
// through the attempt; the client then returns to its prior state.
func (c *Client) Login(ctx context.Context) (*Attempt, error) {
	c.mu.Lock()
	if c.state.Status == StatusAuthenticating {
		c.mu.Unlock()
		return nil, ErrLoginInProgress
	}
	prior := c.state
	c.state = State{Status: StatusAuthenticating}
	prompt := c.prompt
	snapshot := c.state
	c.mu.Unlock()
	c.notify(snapshot)

	if prompt == nil {
		prompt = func(authURL string) {
			c.logger.Info("open the login page to continue", slog.String("url", authURL))
		}
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	attempt := &Attempt{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer cancel()
		profile, tokens, err := c.provider.Authenticate(attemptCtx, prompt)
		if err != nil {
			c.logger.Error("identity provider error", slog.Any("error", err))
			c.transition(prior)
			attempt.result = Result{Err: err}
			close(attempt.done)
			return
		}
		if err := c.store.Save(Session{Profile: profile, Tokens: tokens}); err != nil {
			c.logger.Warn("persist session failed", slog.Any("error", err))
		}
		p := profile
		c.transition(State{Status: StatusAuthenticated, Profile: &p, Tokens: tokens})
		attempt.result = Result{Profile: profile, Tokens: tokens}
		close(attempt.done)
	}()
	return attempt, nil
}

// Logout clears the session synchronously. No provider call is made.
func (c *Client) Logout() {
	if err := c.store.Clear(); err != nil {
		c.logger.Warn("clear session failed", slog.Any("error", err))
	}
	c.transition(State{Status: StatusAnonymous})
}

// LoggedIn reports a valid authenticated session.
func (c *Client) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Status == StatusAuthenticated && !c.state.Tokens.Expired(c.now())
}

// Profile returns the cached profile, or nil before authentication completes.
func (c *Client) Profile() *Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Profile == nil {
		return nil
	}
	cp := *c.state.Profile
	return &cp
}

// State returns the current session snapshot.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for state changes and returns an unsubscribe func.
func (c *Client) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) transition(next State) {
	c.mu.Lock()
	c.state = next
	c.mu.Unlock()
	c.notify(next)
}

func (c *Client) notify(s State) {
	c.mu.Lock()
	fns := make([]func(State), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}
