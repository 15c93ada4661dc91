package event

import (
	"testing"
	"time"

	"github.com/memohai/lobby/internal/channels"
)

func TestHubPublishRespectsFilter(t *testing.T) {
	hub := NewHub()
	_, publicStream, cancelPublic := hub.Subscribe([]Mutation{MutationCreateChannel}, channels.PublicOnly(), 8)
	defer cancelPublic()
	_, allStream, cancelAll := hub.Subscribe(nil, channels.Filter{}, 8)
	defer cancelAll()

	hub.Publish(Event{Mutation: MutationCreateChannel, Channel: channels.Channel{ID: "secret", IsPublic: false}})

	select {
	case <-allStream:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("expected event for unfiltered subscriber")
	}

	select {
	case <-publicStream:
		t.Fatalf("did not expect public subscriber to receive private channel")
	case <-time.After(120 * time.Millisecond):
	}
}

func TestHubPublishRespectsMutation(t *testing.T) {
	hub := NewHub()
	_, stream, cancel := hub.Subscribe([]Mutation{MutationCreateChannel}, channels.Filter{}, 8)
	defer cancel()

	hub.Publish(Event{Mutation: "deleteChannel", Channel: channels.Channel{ID: "1"}})
	hub.Publish(Event{Mutation: MutationCreateChannel, Channel: channels.Channel{ID: "2"}})

	select {
	case ev := <-stream:
		if ev.Channel.ID != "2" {
			t.Fatalf("expected createChannel event first, got %q", ev.Channel.ID)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("expected createChannel event")
	}
}

func TestHubCancelUnsubscribe(t *testing.T) {
	hub := NewHub()
	_, stream, cancel := hub.Subscribe(nil, channels.Filter{}, 8)
	cancel()
	cancel()

	select {
	case _, ok := <-stream:
		if ok {
			t.Fatalf("expected stream to be closed after cancel")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timed out waiting for stream close")
	}
}

func TestHubSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := NewHub()
	_, stream, cancel := hub.Subscribe(nil, channels.Filter{}, 1)
	defer cancel()

	for range 3 {
		hub.Publish(Event{Mutation: MutationCreateChannel})
	}

	select {
	case <-stream:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("expected at least one event in buffer")
	}
}
