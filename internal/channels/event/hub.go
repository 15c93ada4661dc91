// Package event provides the in-memory hub that fans out channel mutation events.
package event

import (
	"sync"

	"github.com/google/uuid"

	"github.com/memohai/lobby/internal/channels"
)

const (
	// DefaultBufferSize is the default per-subscriber channel buffer.
	DefaultBufferSize = 64
)

// Mutation identifies which channel mutation produced an event.
type Mutation string

const (
	// MutationCreateChannel is emitted after a channel is stored.
	MutationCreateChannel Mutation = "createChannel"
)

// Event is one channel mutation.
type Event struct {
	Mutation Mutation         `json:"mutation"`
	Channel  channels.Channel `json:"value"`
}

// Publisher publishes events to subscribers.
type Publisher interface {
	Publish(event Event)
}

// Hub is an in-process pub/sub dispatcher for channel events.
type Hub struct {
	mu      sync.RWMutex
	streams map[string]subscriber
}

type subscriber struct {
	mutations map[Mutation]bool
	filter    channels.Filter
	ch        chan Event
}

// NewHub creates an empty channel event hub.
func NewHub() *Hub {
	return &Hub{
		streams: map[string]subscriber{},
	}
}

// Publish delivers one event to every subscriber whose mutations and filter match.
// Slow subscribers are dropped in a non-blocking way.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.streams {
		if len(sub.mutations) > 0 && !sub.mutations[event.Mutation] {
			continue
		}
		if !sub.filter.Matches(event.Channel) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Drop if receiver is slow to avoid blocking the mutation path.
		}
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams)
}

// Subscribe registers one subscriber for the given mutations (all when empty) and filter.
// It returns a stream ID, read-only event channel, and a cancel function.
func (h *Hub) Subscribe(mutations []Mutation, filter channels.Filter, buffer int) (string, <-chan Event, func()) {
	if h == nil {
		ch := make(chan Event)
		close(ch)
		return "", ch, func() {}
	}
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}

	streamID := uuid.NewString()
	sub := subscriber{
		mutations: make(map[Mutation]bool, len(mutations)),
		filter:    filter,
		ch:        make(chan Event, buffer),
	}
	for _, m := range mutations {
		sub.mutations[m] = true
	}

	h.mu.Lock()
	h.streams[streamID] = sub
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if current, ok := h.streams[streamID]; ok {
				delete(h.streams, streamID)
				close(current.ch)
			}
			h.mu.Unlock()
		})
	}

	return streamID, sub.ch, cancel
}
