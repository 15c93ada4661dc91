// Package controller owns the channel list screen: it loads the list, keeps it
// current from the creation feed and syncs provider logins into backend users.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/memohai/lobby/internal/backend"
	"github.com/memohai/lobby/internal/channels"
	"github.com/memohai/lobby/internal/identity"
	"github.com/memohai/lobby/internal/view"
)

var (
	ErrAlreadyMounted  = errors.New("controller already mounted")
	ErrNotMounted      = errors.New("controller not mounted")
	ErrAlreadyLoggedIn = errors.New("already logged in")
)

// DefaultSessionCheck is how often a mounted controller re-checks the
// provider session for expiry.
const DefaultSessionCheck = 30 * time.Second

// DataService is the backend surface the screen needs.
type DataService interface {
	FetchChannels(ctx context.Context, filter channels.Filter, order []channels.Order) ([]channels.Channel, error)
	CachedChannels(filter channels.Filter, order []channels.Order) ([]channels.Channel, bool)
	Login(ctx context.Context, credential backend.Credential) (backend.Session, error)
	UpdateProfile(ctx context.Context, update backend.ProfileUpdate) (backend.User, error)
	SubscribeToCreations(ctx context.Context, filter channels.Filter, onEvent func(channels.Channel)) (channels.Subscription, error)
	ClearSession()
}

// AuthClient is the identity provider session.
type AuthClient interface {
	Login(ctx context.Context) (*identity.Attempt, error)
	Logout()
	LoggedIn() bool
	Profile() *identity.Profile
	Subscribe(fn func(identity.State)) func()
}

// Controller is the state container behind the channel list screen.
// Observers are called in state order; they must not call Mount, Unmount,
// Login, Logout or SetLoginURL synchronously.
type Controller struct {
	data   DataService
	auth   AuthClient
	filter       channels.Filter
	order        []channels.Order
	sessionCheck time.Duration
	logger       *slog.Logger

	mu        sync.Mutex
	state     view.State
	feed      channels.Feed
	mounted   bool
	gen       uint64
	cancel    context.CancelFunc
	sub       channels.Subscription
	unwatch   func()
	loggingIn bool
	version   uint64
	observers map[int]func(view.State)
	nextID    int

	notifyMu  sync.Mutex
	delivered uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithSessionCheck sets how often the provider session is re-checked for expiry.
func WithSessionCheck(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.sessionCheck = d
		}
	}
}

// New creates an unmounted controller for public channels ordered by name.
func New(log *slog.Logger, data DataService, auth AuthClient, opts ...Option) *Controller {
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		data:         data,
		auth:         auth,
		filter:       channels.PublicOnly(),
		order:        channels.ByNameAsc(),
		sessionCheck: DefaultSessionCheck,
		logger:       log.With(slog.String("component", "controller")),
		observers:    map[int]func(view.State){},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mount starts the list fetch and opens the creation feed without waiting for
// either. A cached list, if any, is shown until the fetch lands. Feed failures
// are logged; the list still loads without live updates.
func (c *Controller) Mount(ctx context.Context) error {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return ErrAlreadyMounted
	}
	c.mounted = true
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.feed.Reset()
	c.state = view.State{LoggedIn: c.auth.LoggedIn(), Profile: c.auth.Profile()}
	if !c.state.LoggedIn {
		c.state.Profile = nil
	}
	if cached, ok := c.data.CachedChannels(c.filter, c.order); ok {
		c.feed.Provisional(cached)
	}
	c.unwatch = c.auth.Subscribe(func(st identity.State) {
		c.onAuthChange(gen, st)
	})
	snapshot, version := c.stampLocked()
	c.mu.Unlock()
	c.publish(snapshot, version)

	go c.fetch(ctx, gen)
	go c.subscribe(ctx, gen)
	go c.watchSession(ctx, gen)
	return nil
}

// subscribe opens the creation feed and holds it until it ends or the
// controller is unmounted.
func (c *Controller) subscribe(ctx context.Context, gen uint64) {
	sub, err := c.data.SubscribeToCreations(ctx, c.filter, func(ch channels.Channel) {
		c.applyEvent(gen, ch)
	})
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("channel feed unavailable", slog.Any("error", err))
		}
		return
	}
	c.mu.Lock()
	if !c.mounted || c.gen != gen {
		c.mu.Unlock()
		sub.Cancel()
		return
	}
	c.sub = sub
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return
	case <-sub.Done():
	}

	c.mu.Lock()
	current := c.mounted && c.gen == gen && c.sub == sub
	if current {
		c.sub = nil
	}
	c.mu.Unlock()
	if !current {
		return
	}
	if err := sub.Err(); err != nil {
		c.logger.Warn("channel feed ended, list is no longer live", slog.Any("error", err))
		return
	}
	c.logger.Info("channel feed closed by server, list is no longer live")
}

// onAuthChange drops the logged-in view when the provider session ends
// outside of Login and Logout.
func (c *Controller) onAuthChange(gen uint64, st identity.State) {
	if st.Status != identity.StatusAnonymous {
		return
	}
	c.signOutView(gen)
}

// watchSession re-checks the provider session so an expired token turns the
// view back to logged out.
func (c *Controller) watchSession(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(c.sessionCheck)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.auth.LoggedIn() {
				c.signOutView(gen)
			}
		}
	}
}

func (c *Controller) signOutView(gen uint64) {
	c.mu.Lock()
	if !c.mounted || c.gen != gen || !c.state.LoggedIn {
		c.mu.Unlock()
		return
	}
	c.state.LoggedIn = false
	c.state.Profile = nil
	snapshot, version := c.stampLocked()
	c.mu.Unlock()
	c.logger.Info("provider session ended")
	c.publish(snapshot, version)
}

func (c *Controller) fetch(ctx context.Context, gen uint64) {
	list, err := c.data.FetchChannels(ctx, c.filter, c.order)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Error("fetch channels failed", slog.Any("error", err))
		}
		return
	}
	c.mu.Lock()
	if !c.mounted || c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.feed.Replace(list)
	snapshot, version := c.stampLocked()
	c.mu.Unlock()
	c.publish(snapshot, version)
}

func (c *Controller) applyEvent(gen uint64, ch channels.Channel) {
	c.mu.Lock()
	if !c.mounted || c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.feed.Apply(ch)
	snapshot, version := c.stampLocked()
	c.mu.Unlock()
	c.logger.Debug("channel created", slog.String("channel_id", ch.ID))
	c.publish(snapshot, version)
}

// Unmount releases the feed. No observer is called after it returns.
func (c *Controller) Unmount() error {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return ErrNotMounted
	}
	c.mounted = false
	c.gen++
	c.version++
	version := c.version
	sub := c.sub
	c.sub = nil
	cancel := c.cancel
	c.cancel = nil
	unwatch := c.unwatch
	c.unwatch = nil
	c.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	if sub != nil {
		sub.Cancel()
	}
	if cancel != nil {
		cancel()
	}
	c.notifyMu.Lock()
	c.delivered = version
	c.notifyMu.Unlock()
	return nil
}

// State returns the current screen state.
func (c *Controller) State() view.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Observe registers fn for every state change and returns a func that removes it.
func (c *Controller) Observe(fn func(view.State)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.observers[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// SetLoginURL shows where a pending login continues. It is meant to be used
// as the identity client's prompt.
func (c *Controller) SetLoginURL(authURL string) {
	c.commit(func(s *view.State) { s.LoginURL = authURL })
}

// Logout ends the provider session and forgets the backend session.
func (c *Controller) Logout() {
	c.auth.Logout()
	c.data.ClearSession()
	c.commit(func(s *view.State) {
		s.LoggedIn = false
		s.Profile = nil
		s.LoginURL = ""
	})
}

// commit applies fn to the state and notifies observers while mounted.
func (c *Controller) commit(fn func(*view.State)) {
	c.mu.Lock()
	fn(&c.state)
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	snapshot, version := c.stampLocked()
	c.mu.Unlock()
	c.publish(snapshot, version)
}

// snapshotLocked copies the state for observers. The login flag is
// re-checked against the provider session so an expired token never renders
// as logged in.
func (c *Controller) snapshotLocked() view.State {
	s := c.state.Clone()
	if s.LoggedIn && !c.auth.LoggedIn() {
		s.LoggedIn = false
		s.Profile = nil
	}
	if c.feed.Present() {
		s.HasChannels = true
		s.Channels = append([]channels.Channel{}, c.feed.Items()...)
	}
	return s
}

func (c *Controller) stampLocked() (view.State, uint64) {
	c.version++
	return c.snapshotLocked(), c.version
}

func (c *Controller) publish(s view.State, version uint64) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if version <= c.delivered {
		return
	}
	c.delivered = version
	c.mu.Lock()
	fns := make([]func(view.State), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}
