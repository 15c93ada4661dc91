// Package tui is the terminal front end of the channel list.
package tui

import (
	"context"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/memohai/lobby/internal/logger"
	"github.com/memohai/lobby/internal/view"
)

// Controller is the state container the model renders.
type Controller interface {
	State() view.State
	Observe(fn func(view.State)) func()
	Login(ctx context.Context) error
	Logout()
}

// stateMsg delivers a controller state change through the bubbletea loop.
type stateMsg struct {
	state view.State
}

// loginDoneMsg is sent when an interactive login attempt has finished.
// Failures are already logged by the controller and leave the state as is.
type loginDoneMsg struct {
	err error
}

// Model is the bubbletea model for the channel list.
type Model struct {
	ctx    context.Context
	ctrl   Controller
	keys   KeyMap
	theme  Theme
	help   help.Model
	states <-chan view.State
	stop   func()

	state  view.State
	screen view.Screen
	cursor int
	width  int

	loggingIn bool
	showHelp  bool
	helpText  string
	selected  string
}

// NewModel creates a model that follows ctrl. Call Close once the program
// has exited.
func NewModel(ctx context.Context, ctrl Controller) Model {
	states, stop := watch(ctrl)
	state := ctrl.State()
	return Model{
		ctx:    ctx,
		ctrl:   ctrl,
		keys:   DefaultKeyMap,
		theme:  DefaultTheme,
		help:   help.New(),
		states: states,
		stop:   stop,
		state:  state,
		screen: view.Render(state),
	}
}

// watch subscribes to ctrl through a one-slot channel that always holds the
// latest state, so a slow renderer skips intermediate states instead of
// blocking the controller.
func watch(ctrl Controller) (<-chan view.State, func()) {
	ch := make(chan view.State, 1)
	stop := ctrl.Observe(func(s view.State) {
		select {
		case <-ch:
		default:
		}
		ch <- s
	})
	return ch, stop
}

func waitForState(ch <-chan view.State) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return stateMsg{state: s}
	}
}

// Close stops following the controller.
func (m Model) Close() {
	if m.stop != nil {
		m.stop()
	}
}

// Selected returns the path chosen by the user, or "" if they quit.
func (m Model) Selected() string {
	return m.selected
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return waitForState(m.states)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		if m.showHelp {
			m.helpText = renderHelp(msg.Width)
		}

	case stateMsg:
		m.setState(msg.state)
		return m, waitForState(m.states)

	case loginDoneMsg:
		m.loggingIn = false
		if msg.err != nil {
			logger.FromContext(m.ctx).Debug("login attempt ended", slog.Any("error", msg.err))
		}
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < m.rows()-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Open):
		m.selected = m.pathAt(m.cursor)
		logger.FromContext(m.ctx).Debug("navigate", slog.String("path", m.selected))
		return m, tea.Quit

	case key.Matches(msg, m.keys.Create):
		m.selected = m.screen.Create.Path
		logger.FromContext(m.ctx).Debug("navigate", slog.String("path", m.selected))
		return m, tea.Quit

	case key.Matches(msg, m.keys.Login):
		if m.screen.Login == nil || m.loggingIn {
			return m, nil
		}
		m.loggingIn = true
		ctx, ctrl := m.ctx, m.ctrl
		return m, func() tea.Msg {
			return loginDoneMsg{err: ctrl.Login(ctx)}
		}

	case key.Matches(msg, m.keys.Logout):
		if m.screen.Account != nil {
			m.ctrl.Logout()
		}

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		m.helpText = renderHelp(m.width)
	}
	return m, nil
}

func (m *Model) setState(s view.State) {
	m.state = s
	m.screen = view.Render(s)
	if last := m.rows() - 1; m.cursor > last {
		m.cursor = last
	}
}

// rows counts the selectable rows: the channel links then the create link.
func (m Model) rows() int {
	return len(m.screen.Items) + 1
}

func (m Model) pathAt(row int) string {
	if row < len(m.screen.Items) {
		return m.screen.Items[row].Path
	}
	return m.screen.Create.Path
}

// View implements tea.Model.
func (m Model) View() string {
	if m.showHelp {
		return m.helpText + "\n"
	}

	var b strings.Builder
	b.WriteString(m.theme.Title.Render(m.screen.Title))
	b.WriteByte('\n')
	for i, item := range m.screen.Items {
		b.WriteString(m.row(i, item.Label, item.Path, m.theme.Item))
		b.WriteByte('\n')
	}
	b.WriteString(m.row(len(m.screen.Items), "+ "+m.screen.Create.Label, m.screen.Create.Path, m.theme.Create.PaddingLeft(2)))
	b.WriteString("\n\n")

	switch {
	case m.screen.Login != nil:
		b.WriteString(m.theme.Control.Render("[l] " + m.screen.Login.Label))
		if m.screen.Login.Hint != "" {
			b.WriteString("  ")
			b.WriteString(m.theme.Hint.Render(m.screen.Login.Hint))
		}
	case m.screen.Account != nil:
		parts := make([]string, 0, 3)
		if m.screen.Account.AvatarURL != "" {
			parts = append(parts, m.theme.Path.Render(m.screen.Account.AvatarURL))
		}
		parts = append(parts,
			m.theme.Nickname.Render(m.screen.Account.Nickname),
			m.theme.Control.Render("[o] "+m.screen.Account.Logout.Label),
		)
		b.WriteString(strings.Join(parts, "  "))
	}
	b.WriteString("\n\n")
	b.WriteString(m.help.View(m.keys))
	b.WriteByte('\n')
	return b.String()
}

func (m Model) row(index int, label, path string, style lipgloss.Style) string {
	if index == m.cursor {
		return m.theme.Selected.Render("> "+label) + "  " + m.theme.Path.Render(path)
	}
	return style.Render(label) + "  " + m.theme.Path.Render(path)
}
