package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

const helpMarkdown = `# Keys

- **↑ ↓** move between channels
- **enter** open the selected channel
- **n** create a channel
- **l** log in with your identity provider
- **o** log out
- **?** close this help
- **q** quit

New public channels appear at the bottom of the list as they are created.
`

// renderHelp renders the help page for the given width. Rendering failures
// fall back to the raw markdown.
func renderHelp(width int) string {
	if width <= 0 {
		width = 80
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return helpMarkdown
	}
	out, err := renderer.Render(helpMarkdown)
	if err != nil {
		return helpMarkdown
	}
	return strings.TrimRight(out, "\n")
}
