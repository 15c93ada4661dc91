package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/memohai/lobby/internal/channels"
	"github.com/memohai/lobby/internal/graphql"
)

// ErrMissingUserID is returned when an operation needs a user id and got none.
var ErrMissingUserID = errors.New("user id is required")

// Service talks to the GraphQL backend. After a successful Login its session
// token is attached to every later request.
type Service struct {
	gql    *graphql.Client
	subs   *graphql.SubscriptionClient
	logger *slog.Logger

	mu    sync.RWMutex
	token string
}

// NewService creates a service for the given endpoints.
func NewService(log *slog.Logger, graphqlURL, subscriptionsURL string, httpClient *http.Client) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{logger: log.With(slog.String("service", "backend"))}
	s.gql = graphql.NewClient(log, graphqlURL, httpClient, s.sessionToken)
	s.subs = graphql.NewSubscriptionClient(log, subscriptionsURL, httpClient, s.sessionToken)
	return s
}

func (s *Service) sessionToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// ClearSession forgets the backend session token.
func (s *Service) ClearSession() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

func publicChannelsRequest(filter channels.Filter, order []channels.Order) graphql.Request {
	orderBy := make([]map[string]any, 0, len(order))
	for _, o := range order {
		orderBy = append(orderBy, map[string]any{"field": o.Field, "direction": string(o.Direction)})
	}
	return graphql.Request{
		Query:         publicChannelsQuery,
		OperationName: OpGetPublicChannels,
		Variables: map[string]any{
			"wherePublic": filter.Where(),
			"orderBy":     orderBy,
		},
	}
}

func edgesToChannels(data PublicChannelsData, filter channels.Filter) []channels.Channel {
	defaultPublic := filter.IsPublic != nil && *filter.IsPublic
	edges := data.Viewer.AllChannels.Edges
	out := make([]channels.Channel, 0, len(edges))
	for _, edge := range edges {
		out = append(out, edge.Node.Channel(defaultPublic))
	}
	return out
}

// FetchChannels runs the channel list query.
func (s *Service) FetchChannels(ctx context.Context, filter channels.Filter, order []channels.Order) ([]channels.Channel, error) {
	var data PublicChannelsData
	if err := s.gql.Query(ctx, publicChannelsRequest(filter, order), &data); err != nil {
		return nil, fmt.Errorf("fetch channels: %w", err)
	}
	return edgesToChannels(data, filter), nil
}

// CachedChannels returns the last fetched list for the same arguments, if any.
func (s *Service) CachedChannels(filter channels.Filter, order []channels.Order) ([]channels.Channel, bool) {
	var data PublicChannelsData
	ok, err := s.gql.Cached(publicChannelsRequest(filter, order), &data)
	if err != nil {
		s.logger.Warn("cached channel list undecodable", slog.Any("error", err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return edgesToChannels(data, filter), true
}

// Login exchanges the provider credential for a backend user and session token.
func (s *Service) Login(ctx context.Context, credential Credential) (Session, error) {
	var data LoginData
	err := s.gql.Mutate(ctx, graphql.Request{
		Query:         loginMutation,
		OperationName: OpLogin,
		Variables:     map[string]any{"credential": credential},
	}, &data)
	if err != nil {
		return Session{}, fmt.Errorf("login: %w", err)
	}
	session := data.LoginUserWithAuth0Lock
	if strings.TrimSpace(session.User.ID) == "" {
		return Session{}, fmt.Errorf("login: %w", ErrMissingUserID)
	}
	s.mu.Lock()
	s.token = session.Token
	s.mu.Unlock()
	return session, nil
}

// UpdateProfile sets picture and nickname on a user.
func (s *Service) UpdateProfile(ctx context.Context, update ProfileUpdate) (User, error) {
	if strings.TrimSpace(update.ID) == "" {
		return User{}, ErrMissingUserID
	}
	var data UpdateUserData
	err := s.gql.Mutate(ctx, graphql.Request{
		Query:         updateUserMutation,
		OperationName: OpUpdateUser,
		Variables:     map[string]any{"user": update},
	}, &data)
	if err != nil {
		return User{}, fmt.Errorf("update user: %w", err)
	}
	return data.UpdateUser.ChangedUser, nil
}

// CreateChannel creates a channel; subscribers receive it as a creation event.
func (s *Service) CreateChannel(ctx context.Context, input NewChannel) (channels.Channel, error) {
	var data CreateChannelData
	err := s.gql.Mutate(ctx, graphql.Request{
		Query:         createChannelMutation,
		OperationName: OpCreateChannel,
		Variables:     map[string]any{"channel": input},
	}, &data)
	if err != nil {
		return channels.Channel{}, fmt.Errorf("create channel: %w", err)
	}
	return data.CreateChannel.ChangedChannel.Channel(input.IsPublic), nil
}

// SubscribeToCreations opens the channel creation feed. onEvent is called from
// one goroutine in arrival order until the returned subscription is cancelled.
func (s *Service) SubscribeToCreations(ctx context.Context, filter channels.Filter, onEvent func(channels.Channel)) (channels.Subscription, error) {
	defaultPublic := filter.IsPublic != nil && *filter.IsPublic
	req := graphql.Request{
		Query:         newChannelsSubscription,
		OperationName: OpNewChannels,
		Variables:     map[string]any{"subscriptionFilter": filter.Where()},
	}
	sub, err := s.subs.Subscribe(ctx, req, func(raw json.RawMessage) {
		var data ChannelEventData
		if err := json.Unmarshal(raw, &data); err != nil {
			s.logger.Warn("channel event undecodable", slog.Any("error", err))
			return
		}
		onEvent(data.SubscribeToChannel.Value.Channel(defaultPublic))
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to channels: %w", err)
	}
	return sub, nil
}
