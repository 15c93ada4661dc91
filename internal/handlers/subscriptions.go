package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/memohai/lobby/internal/auth"
	"github.com/memohai/lobby/internal/backend"
	"github.com/memohai/lobby/internal/channels/event"
	"github.com/memohai/lobby/internal/graphql"
)

const (
	wsWriteWait      = 10 * time.Second
	wsInitWait       = 10 * time.Second
	wsMaxMessageSize = 64 << 10
	// DefaultKeepAlive is the interval between ka frames.
	DefaultKeepAlive = 15 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	Subprotocols:    []string{graphql.Subprotocol},
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// SubscriptionHandler serves graphql-ws subscriptions on channel events.
type SubscriptionHandler struct {
	hub       *event.Hub
	jwtSecret string
	keepAlive time.Duration
	logger    *slog.Logger
}

// NewSubscriptionHandler creates the subscription handler.
func NewSubscriptionHandler(log *slog.Logger, hub *event.Hub, jwtSecret string, keepAlive time.Duration) *SubscriptionHandler {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	return &SubscriptionHandler{
		hub:       hub,
		jwtSecret: jwtSecret,
		keepAlive: keepAlive,
		logger:    log.With(slog.String("handler", "subscriptions")),
	}
}

// Register mounts GET /subscriptions on the Echo instance.
func (h *SubscriptionHandler) Register(e *echo.Echo) {
	e.GET("/subscriptions", h.Serve)
}

// wsSession is one graphql-ws connection. gorilla allows one concurrent
// writer, so writes go through writeMu.
type wsSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]func()
}

func (s *wsSession) write(msg graphql.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(msg)
}

func (s *wsSession) addSub(id string, cancel func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subs[id]; exists {
		return false
	}
	s.subs[id] = cancel
	return true
}

func (s *wsSession) removeSub(id string) {
	s.mu.Lock()
	cancel, ok := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *wsSession) closeAll() {
	s.mu.Lock()
	subs := s.subs
	s.subs = map[string]func(){}
	s.mu.Unlock()
	for _, cancel := range subs {
		cancel()
	}
}

// Serve upgrades the request and runs the session until the client leaves.
func (h *SubscriptionHandler) Serve(c echo.Context) error {
	conn, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return nil
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessageSize)

	session := &wsSession{conn: conn, subs: map[string]func(){}}
	defer session.closeAll()

	userID, err := h.init(session)
	if err != nil {
		h.logger.Info("subscription connection rejected", slog.Any("error", err))
		return nil
	}
	logger := h.logger
	if userID != "" {
		logger = logger.With(slog.String("user_id", userID))
	}

	done := make(chan struct{})
	defer close(done)
	go h.keepAliveLoop(session, done)

	for {
		var msg graphql.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("subscription connection closed", slog.Any("error", err))
			}
			return nil
		}
		switch msg.Type {
		case graphql.MsgStart:
			h.start(session, msg)
		case graphql.MsgStop:
			session.removeSub(msg.ID)
			_ = session.write(graphql.Message{ID: msg.ID, Type: graphql.MsgComplete})
		case graphql.MsgConnectionTerminate:
			return nil
		default:
			logger.Debug("ignored subscription message", slog.String("type", msg.Type))
		}
	}
}

// init waits for connection_init and checks its optional Authorization.
func (h *SubscriptionHandler) init(session *wsSession) (string, error) {
	if err := session.conn.SetReadDeadline(time.Now().Add(wsInitWait)); err != nil {
		return "", err
	}
	var msg graphql.Message
	if err := session.conn.ReadJSON(&msg); err != nil {
		return "", err
	}
	if err := session.conn.SetReadDeadline(time.Time{}); err != nil {
		return "", err
	}
	if msg.Type != graphql.MsgConnectionInit {
		_ = session.write(errorMessage("", graphql.MsgConnectionError, "expected connection_init"))
		return "", errors.New("first message was " + msg.Type)
	}

	var payload struct {
		Authorization string `json:"Authorization"`
	}
	if len(msg.Payload) > 0 {
		_ = json.Unmarshal(msg.Payload, &payload)
	}
	var userID string
	if payload.Authorization != "" {
		id, err := auth.ParseToken(payload.Authorization, h.jwtSecret)
		if err != nil {
			_ = session.write(errorMessage("", graphql.MsgConnectionError, err.Error()))
			return "", err
		}
		userID = id
	}
	if err := session.write(graphql.Message{Type: graphql.MsgConnectionAck}); err != nil {
		return "", err
	}
	return userID, session.write(graphql.Message{Type: graphql.MsgKeepAlive})
}

func (h *SubscriptionHandler) keepAliveLoop(session *wsSession, done <-chan struct{}) {
	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := session.write(graphql.Message{Type: graphql.MsgKeepAlive}); err != nil {
				return
			}
		}
	}
}

func (h *SubscriptionHandler) start(session *wsSession, msg graphql.Message) {
	if msg.ID == "" {
		_ = session.write(errorMessage("", graphql.MsgError, "start requires an id"))
		return
	}
	var req graphql.Request
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		_ = session.write(errorMessage(msg.ID, graphql.MsgError, "invalid start payload"))
		return
	}
	if req.OperationName != backend.OpNewChannels {
		_ = session.write(errorMessage(msg.ID, graphql.MsgError, "unsupported subscription "+req.OperationName))
		return
	}
	var where whereArgs
	if err := decodeVariable(req.Variables, "subscriptionFilter", &where); err != nil {
		_ = session.write(errorMessage(msg.ID, graphql.MsgError, err.Error()))
		return
	}

	_, events, cancel := h.hub.Subscribe([]event.Mutation{event.MutationCreateChannel}, where.Filter(), 0)
	if !session.addSub(msg.ID, cancel) {
		cancel()
		_ = session.write(errorMessage(msg.ID, graphql.MsgError, "subscription id already in use"))
		return
	}
	h.logger.Debug("subscription started", slog.String("id", msg.ID), slog.Int("subscribers", h.hub.Subscribers()))
	go func() {
		for ev := range events {
			var data backend.ChannelEventData
			data.SubscribeToChannel.Value = backend.NodeFor(ev.Channel)
			dataRaw, err := json.Marshal(data)
			if err != nil {
				continue
			}
			raw, err := json.Marshal(graphql.Response{Data: dataRaw})
			if err != nil {
				continue
			}
			if err := session.write(graphql.Message{ID: msg.ID, Type: graphql.MsgData, Payload: raw}); err != nil {
				session.removeSub(msg.ID)
				return
			}
		}
	}()
}

func errorMessage(id, typ, message string) graphql.Message {
	payload, _ := json.Marshal(graphql.Error{Message: message})
	return graphql.Message{ID: id, Type: typ, Payload: payload}
}
