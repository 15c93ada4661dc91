// Package graphql is a small GraphQL client: queries and mutations over HTTP,
// subscriptions over WebSocket (graphql-ws subprotocol).
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// Request is one GraphQL operation.
type Request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

// Error is one entry of a GraphQL errors array.
type Error struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// Errors is returned when the server answers with a non-empty errors array.
type Errors []Error

func (e Errors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, item := range e {
		msgs = append(msgs, item.Message)
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

// HTTPError is returned for non-2xx responses without a GraphQL body.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("graphql: http status %d: %s", e.StatusCode, e.Body)
}

// Response is the GraphQL response envelope.
type Response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors Errors          `json:"errors,omitempty"`
}

// TokenSource returns the bearer token for the next request; empty means anonymous.
type TokenSource func() string

// Client sends queries and mutations over HTTP. Query results are kept in
// memory so callers can render stale data while a fresh fetch is running.
type Client struct {
	endpoint   string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger

	mu    sync.RWMutex
	cache map[string]json.RawMessage
}

// NewClient creates a client for endpoint. httpClient and token may be nil.
func NewClient(log *slog.Logger, endpoint string, httpClient *http.Client, token TokenSource) *Client {
	if log == nil {
		log = slog.Default()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		token:      token,
		logger:     log.With(slog.String("component", "graphql")),
		cache:      map[string]json.RawMessage{},
	}
}

// Query runs a query, caches its data and decodes it into out.
func (c *Client) Query(ctx context.Context, req Request, out any) error {
	data, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.cache[cacheKey(req)] = data
	c.mu.Unlock()
	return decodeData(data, out)
}

// Mutate runs a mutation and decodes its data into out. Mutations are not cached.
func (c *Client) Mutate(ctx context.Context, req Request, out any) error {
	data, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	return decodeData(data, out)
}

// Cached decodes the last result of an identical query into out. It reports
// false when nothing is cached.
func (c *Client) Cached(req Request, out any) (bool, error) {
	c.mu.RLock()
	data, ok := c.cache[cacheKey(req)]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, decodeData(data, out)
}

func (c *Client) do(ctx context.Context, req Request) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.token != nil {
		if tok := strings.TrimSpace(c.token()); tok != "" {
			httpReq.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	c.logger.Debug("graphql request", slog.String("operation", req.OperationName))
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operationLabel(req), err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", operationLabel(req), err)
	}

	var envelope Response
	if jsonErr := json.Unmarshal(payload, &envelope); jsonErr != nil {
		if resp.StatusCode/100 != 2 {
			return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
		}
		return nil, fmt.Errorf("%s: decode response: %w", operationLabel(req), jsonErr)
	}
	if len(envelope.Errors) > 0 {
		return nil, envelope.Errors
	}
	if resp.StatusCode/100 != 2 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil, fmt.Errorf("%s: %w", operationLabel(req), ErrNoData)
	}
	return envelope.Data, nil
}

// ErrNoData is returned when a response carries neither data nor errors.
var ErrNoData = errors.New("response has no data")

func decodeData(data json.RawMessage, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

func cacheKey(req Request) string {
	vars, _ := json.Marshal(req.Variables)
	return req.OperationName + "\x00" + req.Query + "\x00" + string(vars)
}

func operationLabel(req Request) string {
	if req.OperationName != "" {
		return req.OperationName
	}
	return "graphql"
}
