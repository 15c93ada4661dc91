package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

// Subprotocol is the WebSocket subprotocol spoken by subscriptions-transport-ws servers.
const Subprotocol = "graphql-ws"

// graphql-ws message types.
const (
	MsgConnectionInit      = "connection_init"
	MsgConnectionAck       = "connection_ack"
	MsgConnectionError     = "connection_error"
	MsgKeepAlive           = "ka"
	MsgStart               = "start"
	MsgStop                = "stop"
	MsgData                = "data"
	MsgError               = "error"
	MsgComplete            = "complete"
	MsgConnectionTerminate = "connection_terminate"
)

const (
	dialTimeout  = 10 * time.Second
	closeTimeout = time.Second
)

// Message is one graphql-ws frame.
type Message struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrConnectionRejected is returned when the server answers connection_init with connection_error.
var ErrConnectionRejected = errors.New("subscription connection rejected")

// DataHandler receives the data object of each subscription result.
type DataHandler func(data json.RawMessage)

// SubscriptionClient opens one WebSocket per subscription.
type SubscriptionClient struct {
	url        string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger
}

// NewSubscriptionClient creates a client for the ws:// or wss:// url.
func NewSubscriptionClient(log *slog.Logger, url string, httpClient *http.Client, token TokenSource) *SubscriptionClient {
	if log == nil {
		log = slog.Default()
	}
	return &SubscriptionClient{
		url:        url,
		httpClient: httpClient,
		token:      token,
		logger:     log.With(slog.String("component", "graphql/subscription")),
	}
}

// Subscription is a running subscription. Cancel stops it; Done is closed once
// the reader has exited and no further handler calls will happen.
type Subscription struct {
	id     string
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

// Cancel sends stop and connection_terminate, then closes the connection. Safe to call repeatedly.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		_ = wsjson.Write(ctx, s.conn, Message{ID: s.id, Type: MsgStop})
		_ = wsjson.Write(ctx, s.conn, Message{Type: MsgConnectionTerminate})
		cancel()
		s.cancel()
	})
}

// Done is closed when the subscription has ended.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns why the subscription ended, nil after a normal completion or Cancel.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Subscribe dials, performs the connection handshake and starts req. onData is
// called from a single goroutine, in arrival order, until the subscription ends.
func (c *SubscriptionClient) Subscribe(ctx context.Context, req Request, onData DataHandler) (*Subscription, error) {
	dialCtx, cancelDial := context.WithTimeout(ctx, dialTimeout)
	defer cancelDial()

	header := http.Header{}
	initPayload := map[string]any{}
	if c.token != nil {
		if tok := strings.TrimSpace(c.token()); tok != "" {
			header.Set("Authorization", "Bearer "+tok)
			initPayload["Authorization"] = "Bearer " + tok
		}
	}
	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		HTTPClient:   c.httpClient,
		HTTPHeader:   header,
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		return nil, fmt.Errorf("dial subscriptions: %w", err)
	}

	if err := handshake(dialCtx, conn, initPayload); err != nil {
		conn.CloseNow()
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("encode subscription: %w", err)
	}
	id := uuid.NewString()
	if err := wsjson.Write(dialCtx, conn, Message{ID: id, Type: MsgStart, Payload: payload}); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("start subscription: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{id: id, conn: conn, cancel: cancel, done: make(chan struct{})}
	go c.read(runCtx, sub, onData)
	return sub, nil
}

func handshake(ctx context.Context, conn *websocket.Conn, initPayload map[string]any) error {
	raw, err := json.Marshal(initPayload)
	if err != nil {
		return err
	}
	if err := wsjson.Write(ctx, conn, Message{Type: MsgConnectionInit, Payload: raw}); err != nil {
		return fmt.Errorf("send connection_init: %w", err)
	}
	for {
		var msg Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return fmt.Errorf("await connection_ack: %w", err)
		}
		switch msg.Type {
		case MsgConnectionAck:
			return nil
		case MsgKeepAlive:
			continue
		case MsgConnectionError:
			return fmt.Errorf("%w: %s", ErrConnectionRejected, string(msg.Payload))
		default:
			return fmt.Errorf("unexpected %q before connection_ack", msg.Type)
		}
	}
}

func (c *SubscriptionClient) read(ctx context.Context, sub *Subscription, onData DataHandler) {
	defer close(sub.done)
	defer sub.conn.CloseNow()
	defer sub.cancel()

	for {
		var msg Message
		if err := wsjson.Read(ctx, sub.conn, &msg); err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				c.logger.Warn("subscription read failed", slog.Any("error", err))
				sub.setErr(err)
			}
			return
		}
		if msg.ID != "" && msg.ID != sub.id {
			continue
		}
		switch msg.Type {
		case MsgData:
			var result Response
			if err := json.Unmarshal(msg.Payload, &result); err != nil {
				c.logger.Warn("subscription payload undecodable", slog.Any("error", err))
				continue
			}
			if len(result.Errors) > 0 {
				c.logger.Warn("subscription result errors", slog.Any("error", result.Errors))
				continue
			}
			if ctx.Err() != nil {
				return
			}
			onData(result.Data)
		case MsgError:
			err := fmt.Errorf("subscription error: %s", string(msg.Payload))
			c.logger.Warn("subscription rejected", slog.Any("error", err))
			sub.setErr(err)
			return
		case MsgComplete:
			return
		case MsgKeepAlive, MsgConnectionAck:
		default:
			c.logger.Debug("unknown subscription message", slog.String("type", msg.Type))
		}
	}
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
