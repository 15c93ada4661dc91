// Package store is the in-memory user and channel storage of the dev backend.
package store

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/memohai/lobby/internal/channels"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidIdentity = errors.New("identity requires provider and user_id")
	ErrInvalidName     = errors.New("channel name is required")
)

// User is a stored backend user.
type User struct {
	ID             string
	Username       string
	Nickname       string
	Picture        string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Store keeps users and channels in memory.
type Store struct {
	mu         sync.RWMutex
	users      map[string]User
	byIdentity map[string]string
	channels   []channels.Channel
	now        func() time.Time
}

// New creates a store holding one public channel per seed name.
func New(seed []string) *Store {
	s := &Store{
		users:      map[string]User{},
		byIdentity: map[string]string{},
		now:        time.Now,
	}
	for _, name := range seed {
		if _, err := s.CreateChannel(name, true); err != nil {
			continue
		}
	}
	return s
}

func identityKey(provider, userID string) string {
	return provider + "|" + userID
}

// UpsertIdentity returns the user linked to the provider identity, creating
// it on first login.
func (s *Store) UpsertIdentity(provider, providerUserID, username string) (User, bool, error) {
	provider = strings.TrimSpace(provider)
	providerUserID = strings.TrimSpace(providerUserID)
	if provider == "" || providerUserID == "" {
		return User{}, false, ErrInvalidIdentity
	}
	key := identityKey(provider, providerUserID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byIdentity[key]; ok {
		return s.users[id], false, nil
	}
	if strings.TrimSpace(username) == "" {
		username = key
	}
	now := s.now().UTC()
	user := User{
		ID:             uuid.NewString(),
		Username:       username,
		Provider:       provider,
		ProviderUserID: providerUserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.users[user.ID] = user
	s.byIdentity[key] = user.ID
	return user, true, nil
}

// GetUser returns a user by id.
func (s *Store) GetUser(id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

// UpdateUser sets the display fields that are non-empty.
func (s *Store) UpdateUser(id, picture, nickname string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	if picture != "" {
		user.Picture = picture
	}
	if nickname != "" {
		user.Nickname = nickname
	}
	user.UpdatedAt = s.now().UTC()
	s.users[id] = user
	return user, nil
}

// ListChannels returns the channels matching filter, sorted by order.
func (s *Store) ListChannels(filter channels.Filter, order []channels.Order) []channels.Channel {
	s.mu.RLock()
	out := make([]channels.Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		if filter.Matches(ch) {
			out = append(out, ch)
		}
	}
	s.mu.RUnlock()

	if len(order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range order {
				cmp := compareField(out[i], out[j], o.Field)
				if cmp == 0 {
					continue
				}
				if o.Direction == channels.Desc {
					return cmp > 0
				}
				return cmp < 0
			}
			return false
		})
	}
	return out
}

func compareField(a, b channels.Channel, field string) int {
	switch field {
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "createdAt":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "id":
		return strings.Compare(a.ID, b.ID)
	default:
		return 0
	}
}

// CreateChannel stores a new channel.
func (s *Store) CreateChannel(name string, public bool) (channels.Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return channels.Channel{}, ErrInvalidName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	ch := channels.Channel{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Name:      name,
		IsPublic:  public,
		CreatedAt: now,
	}
	s.channels = append(s.channels, ch)
	return ch, nil
}
