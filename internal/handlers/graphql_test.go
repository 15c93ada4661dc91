package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/lobby/internal/channels"
	"github.com/memohai/lobby/internal/channels/event"
	"github.com/memohai/lobby/internal/graphql"
	"github.com/memohai/lobby/internal/logger"
	"github.com/memohai/lobby/internal/store"
)

func postGraphQL(t *testing.T, h *GraphQLHandler, body string) (int, graphql.Response) {
	t.Helper()
	e := echo.New()
	h.Register(e)
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var resp graphql.Response
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return rec.Code, resp
}

func newTestGraphQLHandler() (*GraphQLHandler, *event.Hub) {
	hub := event.NewHub()
	return NewGraphQLHandler(logger.Discard(), store.New([]string{"general"}), hub, "secret", time.Hour), hub
}

func TestGraphQLRejectsEmptyQuery(t *testing.T) {
	t.Parallel()

	h, _ := newTestGraphQLHandler()
	code, _ := postGraphQL(t, h, `{"operationName":"GetPublicChannels"}`)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestGraphQLUnsupportedOperation(t *testing.T) {
	t.Parallel()

	h, _ := newTestGraphQLHandler()
	code, resp := postGraphQL(t, h, `{"query":"{ x }","operationName":"DropTables"}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(resp.Errors) != 1 || !strings.Contains(resp.Errors[0].Message, "DropTables") {
		t.Fatalf("unexpected errors: %+v", resp.Errors)
	}
}

func TestGraphQLCreateChannelPublishes(t *testing.T) {
	t.Parallel()

	h, hub := newTestGraphQLHandler()
	_, events, cancel := hub.Subscribe(nil, channels.Filter{}, 0)
	defer cancel()

	code, resp := postGraphQL(t, h, `{"query":"mutation { x }","operationName":"CreateChannel","variables":{"channel":{"name":"ops","isPublic":true}}}`)
	if code != http.StatusOK || len(resp.Errors) != 0 {
		t.Fatalf("create failed: %d %+v", code, resp.Errors)
	}
	select {
	case ev := <-events:
		if ev.Mutation != event.MutationCreateChannel || ev.Channel.Name != "ops" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a creation event")
	}
}

func TestWhereArgsFilter(t *testing.T) {
	t.Parallel()

	var w whereArgs
	if f := w.Filter(); f.IsPublic != nil {
		t.Fatalf("expected empty filter")
	}
	if err := decodeVariable(map[string]any{"where": map[string]any{"isPublic": map[string]any{"eq": false}}}, "where", &w); err != nil {
		t.Fatalf("decode: %v", err)
	}
	f := w.Filter()
	if f.IsPublic == nil || *f.IsPublic {
		t.Fatalf("expected isPublic=false filter, got %+v", f)
	}
}

func TestIdentityUserID(t *testing.T) {
	t.Parallel()

	cases := map[string]any{"abc": "abc", "42": float64(42), "7": json.Number("7"), "": true}
	for want, in := range cases {
		if got := identityUserID(in); got != want {
			t.Fatalf("identityUserID(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestGraphQLLoginNamesUserAfterIdentity(t *testing.T) {
	t.Parallel()

	h, _ := newTestGraphQLHandler()
	code, resp := postGraphQL(t, h, `{"query":"mutation { x }","operationName":"Login","variables":{"credential":{"identity":{"provider":"github","user_id":"42","access_token":"at"},"token":"id"}}}`)
	if code != http.StatusOK || len(resp.Errors) != 0 {
		t.Fatalf("login failed: %d %+v", code, resp.Errors)
	}
	var data struct {
		Login struct {
			User struct {
				Username string `json:"username"`
			} `json:"user"`
		} `json:"loginUserWithAuth0Lock"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Login.User.Username != "github|42" {
		t.Fatalf("expected username github|42, got %q", data.Login.User.Username)
	}
}
