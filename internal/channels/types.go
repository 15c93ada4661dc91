// Package channels holds the channel model, list filters and the live feed merge.
package channels

import (
	"net/url"
	"time"
)

// CreatePath is the router path of the channel creation page.
const CreatePath = "/createChannel"

// Channel is a chat channel as seen by the list view.
type Channel struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsPublic  bool      `json:"isPublic"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// Path returns the router path of the channel page.
func (c Channel) Path() string {
	return "/channels/" + url.PathEscape(c.ID)
}

// Filter restricts which channels a query or subscription returns.
type Filter struct {
	IsPublic *bool
}

// PublicOnly matches public channels.
func PublicOnly() Filter {
	public := true
	return Filter{IsPublic: &public}
}

// Matches reports whether ch satisfies the filter.
func (f Filter) Matches(ch Channel) bool {
	if f.IsPublic != nil && ch.IsPublic != *f.IsPublic {
		return false
	}
	return true
}

// Where renders the filter as a backend where/filter argument, e.g. {"isPublic":{"eq":true}}.
func (f Filter) Where() map[string]any {
	where := map[string]any{}
	if f.IsPublic != nil {
		where["isPublic"] = map[string]any{"eq": *f.IsPublic}
	}
	return where
}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Order is one orderBy clause.
type Order struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction"`
}

// ByNameAsc orders channels by name ascending.
func ByNameAsc() []Order {
	return []Order{{Field: "name", Direction: Asc}}
}

// Subscription is a live feed handle; Cancel releases it and may be called more than once.
// Done is closed once the feed has ended, and Err then reports why (nil for a
// normal completion or Cancel).
type Subscription interface {
	Cancel()
	Done() <-chan struct{}
	Err() error
}
