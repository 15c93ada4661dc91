package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/lobby/internal/auth"
	"github.com/memohai/lobby/internal/backend"
	"github.com/memohai/lobby/internal/channels"
	"github.com/memohai/lobby/internal/channels/event"
	"github.com/memohai/lobby/internal/graphql"
	"github.com/memohai/lobby/internal/store"
)

// GraphQLHandler serves the operations the channel list client sends. It
// dispatches on operationName; documents are not parsed.
type GraphQLHandler struct {
	store     *store.Store
	events    event.Publisher
	jwtSecret string
	expiresIn time.Duration
	logger    *slog.Logger
}

// NewGraphQLHandler creates the GraphQL handler.
func NewGraphQLHandler(log *slog.Logger, st *store.Store, events event.Publisher, jwtSecret string, expiresIn time.Duration) *GraphQLHandler {
	return &GraphQLHandler{
		store:     st,
		events:    events,
		jwtSecret: jwtSecret,
		expiresIn: expiresIn,
		logger:    log.With(slog.String("handler", "graphql")),
	}
}

// Register mounts POST /graphql on the Echo instance.
func (h *GraphQLHandler) Register(e *echo.Echo) {
	e.POST("/graphql", h.Query)
}

// errOperation is a client-visible operation failure, reported in the errors array.
type errOperation struct {
	msg string
}

func (e errOperation) Error() string { return e.msg }

func operationError(format string, args ...any) error {
	return errOperation{msg: fmt.Sprintf(format, args...)}
}

// Query executes one operation.
func (h *GraphQLHandler) Query(c echo.Context) error {
	var req graphql.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	var (
		data any
		err  error
	)
	switch req.OperationName {
	case backend.OpGetPublicChannels:
		data, err = h.publicChannels(req)
	case backend.OpLogin:
		data, err = h.login(req)
	case backend.OpUpdateUser:
		data, err = h.updateUser(c, req)
	case backend.OpCreateChannel:
		data, err = h.createChannel(req)
	default:
		err = operationError("unsupported operation %q", req.OperationName)
	}
	if err != nil {
		var opErr errOperation
		if !errors.As(err, &opErr) {
			h.logger.Error("operation failed", slog.String("operation", req.OperationName), slog.Any("error", err))
		}
		return c.JSON(http.StatusOK, graphql.Response{Errors: graphql.Errors{{Message: err.Error()}}})
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, graphql.Response{Data: raw})
}

func (h *GraphQLHandler) publicChannels(req graphql.Request) (any, error) {
	var where whereArgs
	if err := decodeVariable(req.Variables, "wherePublic", &where); err != nil {
		return nil, err
	}
	var order []channels.Order
	if err := decodeVariable(req.Variables, "orderBy", &order); err != nil {
		return nil, err
	}
	var data backend.PublicChannelsData
	list := h.store.ListChannels(where.Filter(), order)
	data.Viewer.AllChannels.Edges = make([]backend.ChannelEdge, 0, len(list))
	for _, ch := range list {
		data.Viewer.AllChannels.Edges = append(data.Viewer.AllChannels.Edges, backend.ChannelEdge{Node: backend.NodeFor(ch)})
	}
	return data, nil
}

func (h *GraphQLHandler) login(req graphql.Request) (any, error) {
	var credential backend.Credential
	if err := decodeVariable(req.Variables, "credential", &credential); err != nil {
		return nil, err
	}
	if strings.TrimSpace(credential.Token) == "" {
		return nil, operationError("credential token is required")
	}
	provider, _ := credential.Identity["provider"].(string)
	providerUserID := identityUserID(credential.Identity["user_id"])
	username, _ := credential.Identity["nickname"].(string)

	user, created, err := h.store.UpsertIdentity(provider, providerUserID, username)
	if err != nil {
		if errors.Is(err, store.ErrInvalidIdentity) {
			return nil, operationError("%s", err.Error())
		}
		return nil, err
	}
	token, _, err := auth.GenerateToken(user.ID, h.jwtSecret, h.expiresIn)
	if err != nil {
		return nil, err
	}
	h.logger.Info("user logged in", slog.String("user_id", user.ID), slog.String("provider", provider), slog.Bool("created", created))

	var data backend.LoginData
	data.LoginUserWithAuth0Lock = backend.Session{
		User:  backend.User{ID: user.ID, Username: user.Username, Picture: user.Picture},
		Token: token,
	}
	return data, nil
}

// identityUserID accepts string and numeric provider user ids.
func identityUserID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return fmt.Sprintf("%.0f", id)
	case json.Number:
		return id.String()
	default:
		return ""
	}
}

func (h *GraphQLHandler) updateUser(c echo.Context, req graphql.Request) (any, error) {
	callerID, err := auth.UserIDFromContext(c)
	if err != nil {
		return nil, operationError("%s", err.Error())
	}
	var update backend.ProfileUpdate
	if err := decodeVariable(req.Variables, "user", &update); err != nil {
		return nil, err
	}
	if update.ID != callerID {
		return nil, operationError("not allowed to update user %q", update.ID)
	}
	user, err := h.store.UpdateUser(update.ID, update.Picture, update.Nickname)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, operationError("%s", err.Error())
		}
		return nil, err
	}
	var data backend.UpdateUserData
	data.UpdateUser.ChangedUser = backend.User{ID: user.ID, Username: user.Username, Picture: user.Picture}
	return data, nil
}

func (h *GraphQLHandler) createChannel(req graphql.Request) (any, error) {
	var input backend.NewChannel
	if err := decodeVariable(req.Variables, "channel", &input); err != nil {
		return nil, err
	}
	ch, err := h.store.CreateChannel(input.Name, input.IsPublic)
	if err != nil {
		if errors.Is(err, store.ErrInvalidName) {
			return nil, operationError("%s", err.Error())
		}
		return nil, err
	}
	h.events.Publish(event.Event{Mutation: event.MutationCreateChannel, Channel: ch})

	var data backend.CreateChannelData
	data.CreateChannel.ChangedChannel = backend.NodeFor(ch)
	return data, nil
}

// whereArgs is the channel where/filter argument, e.g. {"isPublic":{"eq":true}}.
type whereArgs struct {
	IsPublic *struct {
		Eq *bool `json:"eq"`
	} `json:"isPublic"`
}

// Filter converts the argument to a channel filter.
func (w whereArgs) Filter() channels.Filter {
	if w.IsPublic == nil || w.IsPublic.Eq == nil {
		return channels.Filter{}
	}
	v := *w.IsPublic.Eq
	return channels.Filter{IsPublic: &v}
}

// decodeVariable decodes vars[name] into out. A missing variable leaves out untouched.
func decodeVariable(vars map[string]any, name string, out any) error {
	v, ok := vars[name]
	if !ok || v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return operationError("variable %s: %v", name, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return operationError("variable %s: %v", name, err)
	}
	return nil
}
