// Package view renders the channel list screen from a state snapshot.
package view

import (
	"strings"

	"github.com/memohai/lobby/internal/channels"
	"github.com/memohai/lobby/internal/identity"
)

// Title is the heading of the channel list screen.
const Title = "Channels"

// State is everything the screen depends on.
type State struct {
	// Channels is the list to show; meaningful only when HasChannels is set.
	Channels    []channels.Channel
	HasChannels bool
	LoggedIn    bool
	Profile     *identity.Profile
	// LoginURL is the provider page of a pending login, if any.
	LoginURL string
}

// Clone returns a copy that shares no mutable data with s.
func (s State) Clone() State {
	out := s
	if s.Channels != nil {
		out.Channels = append([]channels.Channel(nil), s.Channels...)
	}
	if s.Profile != nil {
		p := *s.Profile
		out.Profile = &p
	}
	return out
}

// Link is a navigation target.
type Link struct {
	Label string
	Path  string
}

// Control is an actionable button.
type Control struct {
	Label string
	// Hint is extra text shown next to the control, e.g. the login URL.
	Hint string
}

// Account is the logged-in user block.
type Account struct {
	// AvatarURL is empty when the profile has no picture.
	AvatarURL string
	Nickname  string
	Logout    Control
}

// Screen is the rendered channel list. Exactly one of Login and Account is set.
type Screen struct {
	Title string
	// Items is nil when no list is present yet.
	Items   []Link
	Create  Link
	Login   *Control
	Account *Account
}

// Render is a pure function of s.
func Render(s State) Screen {
	screen := Screen{
		Title:  Title,
		Create: Link{Label: "Create channel", Path: channels.CreatePath},
	}
	if s.HasChannels {
		screen.Items = make([]Link, 0, len(s.Channels))
		for _, ch := range s.Channels {
			screen.Items = append(screen.Items, Link{Label: ch.Name, Path: ch.Path()})
		}
	}
	if !s.LoggedIn {
		screen.Login = &Control{Label: "Log in", Hint: s.LoginURL}
		return screen
	}
	account := &Account{Logout: Control{Label: "Log out"}}
	if s.Profile != nil {
		account.AvatarURL = s.Profile.Picture
		account.Nickname = s.Profile.Nickname
	}
	screen.Account = account
	return screen
}

// Text renders the screen as plain text, one element per line.
func (s Screen) Text() string {
	var b strings.Builder
	b.WriteString(s.Title)
	b.WriteByte('\n')
	for _, item := range s.Items {
		b.WriteString("  # ")
		b.WriteString(item.Label)
		b.WriteString("  ")
		b.WriteString(item.Path)
		b.WriteByte('\n')
	}
	b.WriteString("  + ")
	b.WriteString(s.Create.Label)
	b.WriteString("  ")
	b.WriteString(s.Create.Path)
	b.WriteByte('\n')
	switch {
	case s.Login != nil:
		b.WriteString("[")
		b.WriteString(s.Login.Label)
		b.WriteString("]")
		if s.Login.Hint != "" {
			b.WriteString(" ")
			b.WriteString(s.Login.Hint)
		}
		b.WriteByte('\n')
	case s.Account != nil:
		if s.Account.AvatarURL != "" {
			b.WriteString("avatar: ")
			b.WriteString(s.Account.AvatarURL)
			b.WriteByte('\n')
		}
		b.WriteString(s.Account.Nickname)
		b.WriteString(" [")
		b.WriteString(s.Account.Logout.Label)
		b.WriteString("]\n")
	}
	return b.String()
}
