package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/lobby/internal/channels"
	"github.com/memohai/lobby/internal/graphql"
	"github.com/memohai/lobby/internal/logger"
)

type recordedRequest struct {
	Request graphql.Request
	Auth    string
}

type fakeGraphQL struct {
	mu       sync.Mutex
	requests []recordedRequest
	answers  map[string]string
}

func newFakeGraphQL(t *testing.T, answers map[string]string) (*fakeGraphQL, *httptest.Server) {
	f := &fakeGraphQL{answers: answers}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphql.Request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{Request: req, Auth: r.Header.Get("Authorization")})
		f.mu.Unlock()
		body, ok := f.answers[req.OperationName]
		if !ok {
			body = `{"data":null,"errors":[{"message":"unknown operation"}]}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeGraphQL) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

const channelsAnswer = `{"data":{"viewer":{"allChannels":{"edges":[
	{"node":{"id":"c1","name":"alpha","isPublic":true}},
	{"node":{"id":"c2","name":"beta"}}
]}}}}`

func TestFetchChannelsSendsFilterAndOrder(t *testing.T) {
	fake, srv := newFakeGraphQL(t, map[string]string{OpGetPublicChannels: channelsAnswer})
	svc := NewService(logger.Discard(), srv.URL, "", srv.Client())

	_, ok := svc.CachedChannels(channels.PublicOnly(), channels.ByNameAsc())
	assert.False(t, ok)

	list, err := svc.FetchChannels(context.Background(), channels.PublicOnly(), channels.ByNameAsc())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.True(t, list[1].IsPublic, "missing isPublic defaults to the filter")

	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	vars, err := json.Marshal(reqs[0].Request.Variables)
	require.NoError(t, err)
	assert.JSONEq(t, `{"wherePublic":{"isPublic":{"eq":true}},"orderBy":[{"field":"name","direction":"ASC"}]}`, string(vars))
	assert.Empty(t, reqs[0].Auth)

	cached, ok := svc.CachedChannels(channels.PublicOnly(), channels.ByNameAsc())
	require.True(t, ok)
	assert.Equal(t, list, cached)
}

func TestLoginStoresSessionToken(t *testing.T) {
	fake, srv := newFakeGraphQL(t, map[string]string{
		OpLogin:      `{"data":{"loginUserWithAuth0Lock":{"user":{"id":"u1","username":"ada"},"token":"jwt-1"}}}`,
		OpUpdateUser: `{"data":{"updateUser":{"changedUser":{"id":"u1","username":"ada","picture":"https://img/a.png"}}}}`,
	})
	svc := NewService(logger.Discard(), srv.URL, "", srv.Client())

	session, err := svc.Login(context.Background(), Credential{
		Identity: map[string]any{"provider": "github", "user_id": "42", "access_token": "at"},
		Token:    "id-token",
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", session.User.ID)

	user, err := svc.UpdateProfile(context.Background(), ProfileUpdate{ID: "u1", Picture: "https://img/a.png", Nickname: "ada"})
	require.NoError(t, err)
	assert.Equal(t, "https://img/a.png", user.Picture)

	reqs := fake.recorded()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[0].Auth)
	assert.Equal(t, "Bearer jwt-1", reqs[1].Auth)
	cred := reqs[0].Request.Variables["credential"].(map[string]any)
	assert.Equal(t, "id-token", cred["token"])
	assert.Equal(t, "at", cred["identity"].(map[string]any)["access_token"])

	svc.ClearSession()
	_, _ = svc.FetchChannels(context.Background(), channels.PublicOnly(), channels.ByNameAsc())
	reqs = fake.recorded()
	assert.Empty(t, reqs[len(reqs)-1].Auth)
}

func TestLoginFailureKeepsAnonymous(t *testing.T) {
	fake, srv := newFakeGraphQL(t, map[string]string{})
	svc := NewService(logger.Discard(), srv.URL, "", srv.Client())

	_, err := svc.Login(context.Background(), Credential{Identity: map[string]any{}, Token: "x"})
	require.Error(t, err)

	_, _ = svc.FetchChannels(context.Background(), channels.PublicOnly(), nil)
	reqs := fake.recorded()
	assert.Empty(t, reqs[len(reqs)-1].Auth)
}

func TestLoginWithoutUserID(t *testing.T) {
	_, srv := newFakeGraphQL(t, map[string]string{
		OpLogin: `{"data":{"loginUserWithAuth0Lock":{"user":{"id":""},"token":"t"}}}`,
	})
	svc := NewService(logger.Discard(), srv.URL, "", srv.Client())
	_, err := svc.Login(context.Background(), Credential{})
	assert.ErrorIs(t, err, ErrMissingUserID)
}

func TestUpdateProfileRequiresID(t *testing.T) {
	fake, srv := newFakeGraphQL(t, nil)
	svc := NewService(logger.Discard(), srv.URL, "", srv.Client())
	_, err := svc.UpdateProfile(context.Background(), ProfileUpdate{Nickname: "x"})
	assert.ErrorIs(t, err, ErrMissingUserID)
	assert.Empty(t, fake.recorded())
}

func TestCreateChannel(t *testing.T) {
	_, srv := newFakeGraphQL(t, map[string]string{
		OpCreateChannel: `{"data":{"createChannel":{"changedChannel":{"id":"c9","name":"new","isPublic":true,"createdAt":"2026-01-02T03:04:05Z"}}}}`,
	})
	svc := NewService(logger.Discard(), srv.URL, "", srv.Client())
	ch, err := svc.CreateChannel(context.Background(), NewChannel{Name: "new", IsPublic: true})
	require.NoError(t, err)
	assert.Equal(t, "c9", ch.ID)
	assert.Equal(t, 2026, ch.CreatedAt.Year())
}

func TestChannelNodeRoundTrip(t *testing.T) {
	node := ChannelNode{ID: "c1", Name: "x", CreatedAt: "not-a-time"}
	ch := node.Channel(false)
	assert.False(t, ch.IsPublic)
	assert.True(t, ch.CreatedAt.IsZero())

	back := NodeFor(channels.Channel{ID: "c1", Name: "x", IsPublic: true})
	require.NotNil(t, back.IsPublic)
	assert.True(t, *back.IsPublic)
	assert.Empty(t, back.CreatedAt)
}
