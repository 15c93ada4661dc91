// Package backend is the typed data service for the chat backend: channel
// queries, user login/update mutations and the channel creation feed.
package backend

import (
	"time"

	"github.com/memohai/lobby/internal/channels"
)

// User is the backend user record.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Picture  string `json:"picture,omitempty"`
}

// Credential is the login mutation input: the provider identity (raw fields
// plus access_token) and the provider id token.
type Credential struct {
	Identity map[string]any `json:"identity"`
	Token    string         `json:"token"`
}

// Session is the login mutation result.
type Session struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// ProfileUpdate sets the display fields of a user.
type ProfileUpdate struct {
	ID       string `json:"id"`
	Picture  string `json:"picture,omitempty"`
	Nickname string `json:"nickname,omitempty"`
}

// NewChannel is the createChannel mutation input.
type NewChannel struct {
	Name     string `json:"name"`
	IsPublic bool   `json:"isPublic"`
}

// ChannelNode is the wire shape of a channel in query and subscription results.
type ChannelNode struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsPublic  *bool  `json:"isPublic,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// Channel converts the node, defaulting isPublic to the filter it came through.
func (n ChannelNode) Channel(defaultPublic bool) channels.Channel {
	ch := channels.Channel{ID: n.ID, Name: n.Name, IsPublic: defaultPublic}
	if n.IsPublic != nil {
		ch.IsPublic = *n.IsPublic
	}
	if n.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339Nano, n.CreatedAt); err == nil {
			ch.CreatedAt = ts
		}
	}
	return ch
}

// NodeFor renders a channel in wire shape.
func NodeFor(ch channels.Channel) ChannelNode {
	public := ch.IsPublic
	node := ChannelNode{ID: ch.ID, Name: ch.Name, IsPublic: &public}
	if !ch.CreatedAt.IsZero() {
		node.CreatedAt = ch.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return node
}

// PublicChannelsData is the GetPublicChannels result.
type PublicChannelsData struct {
	Viewer struct {
		AllChannels struct {
			Edges []ChannelEdge `json:"edges"`
		} `json:"allChannels"`
	} `json:"viewer"`
}

// ChannelEdge wraps one node of a connection.
type ChannelEdge struct {
	Node ChannelNode `json:"node"`
}

// LoginData is the Login result.
type LoginData struct {
	LoginUserWithAuth0Lock Session `json:"loginUserWithAuth0Lock"`
}

// UpdateUserData is the UpdateUser result.
type UpdateUserData struct {
	UpdateUser struct {
		ChangedUser User `json:"changedUser"`
	} `json:"updateUser"`
}

// CreateChannelData is the CreateChannel result.
type CreateChannelData struct {
	CreateChannel struct {
		ChangedChannel ChannelNode `json:"changedChannel"`
	} `json:"createChannel"`
}

// ChannelEventData is one newChannels subscription result.
type ChannelEventData struct {
	SubscribeToChannel struct {
		Value ChannelNode `json:"value"`
	} `json:"subscribeToChannel"`
}
