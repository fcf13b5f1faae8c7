package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/haivivi/autoppa/pkg/agent"
	"github.com/haivivi/autoppa/pkg/chat"
)

// Theme is the transcript color scheme.
type Theme struct {
	System    lipgloss.Color
	User      lipgloss.Color
	Assistant lipgloss.Color
	Tool      lipgloss.Color
	Warn      lipgloss.Color
	Dim       lipgloss.Color
}

// DefaultTheme is the default transcript theme.
var DefaultTheme = Theme{
	System:    lipgloss.Color("#6e7681"),
	User:      lipgloss.Color("#58a6ff"),
	Assistant: lipgloss.Color("#00ff9f"),
	Tool:      lipgloss.Color("#d29922"),
	Warn:      lipgloss.Color("#f85149"),
	Dim:       lipgloss.Color("#6e7681"),
}

// Styles holds the styles derived from a Theme.
type Styles struct {
	Roles map[chat.Role]lipgloss.Style
	Warn  lipgloss.Style
	Dim   lipgloss.Style
}

// NewStyles creates the styles of t for renderer r.
func NewStyles(r *lipgloss.Renderer, t Theme) Styles {
	role := func(c lipgloss.Color) lipgloss.Style {
		return r.NewStyle().Bold(true).Foreground(c)
	}
	return Styles{
		Roles: map[chat.Role]lipgloss.Style{
			chat.RoleSystem:    role(t.System),
			chat.RoleUser:      role(t.User),
			chat.RoleAssistant: role(t.Assistant),
			chat.RoleTool:      role(t.Tool),
		},
		Warn: r.NewStyle().Bold(true).Foreground(t.Warn),
		Dim:  r.NewStyle().Foreground(t.Dim),
	}
}

// Transcript renders agent events as a role-tagged chat log. It implements
// agent.Observer.
type Transcript struct {
	// MaxLines caps the lines printed per non-assistant message; 0 prints
	// everything.
	MaxLines int

	mu       sync.Mutex
	w        io.Writer
	styles   Styles
	streamed bool
}

var _ agent.Observer = (*Transcript)(nil)

// NewTranscript returns a Transcript writing to w. Colors are used only when
// w is a terminal.
func NewTranscript(w io.Writer) *Transcript {
	return &Transcript{
		w:      w,
		styles: NewStyles(lipgloss.NewRenderer(w), DefaultTheme),
	}
}

func (t *Transcript) Observe(ev agent.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Kind {
	case agent.EventSystem, agent.EventPrompt, agent.EventReport:
		t.header(ev.Role, ev.Iteration)
		fmt.Fprintln(t.w, t.clip(ev.Text))
	case agent.EventFragment:
		if !t.streamed {
			t.header(chat.RoleAssistant, ev.Iteration)
			t.streamed = true
		}
		io.WriteString(t.w, ev.Text)
	case agent.EventReply:
		if t.streamed {
			fmt.Fprintln(t.w)
		} else {
			t.header(chat.RoleAssistant, ev.Iteration)
			fmt.Fprintln(t.w, ev.Text)
		}
		t.streamed = false
	case agent.EventTruncated:
		fmt.Fprintln(t.w, t.styles.Warn.Render("⚠ context budget exceeded by the newest message: "+ev.Text))
	case agent.EventStopped:
		fmt.Fprintln(t.w)
		fmt.Fprintln(t.w, t.styles.Dim.Render(fmt.Sprintf("■ %s after %d iteration(s)", ev.Text, ev.Iteration)))
	}
}

func (t *Transcript) header(role chat.Role, iteration int) {
	style, ok := t.styles.Roles[role]
	if !ok {
		style = t.styles.Dim
	}
	line := style.Render(role.Icon() + " " + role.Label())
	if iteration > 0 {
		line += t.styles.Dim.Render(fmt.Sprintf(" · iteration %d", iteration))
	}
	fmt.Fprintln(t.w)
	fmt.Fprintln(t.w, line)
}

func (t *Transcript) clip(text string) string {
	if t.MaxLines <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) <= t.MaxLines {
		return text
	}
	hidden := len(lines) - t.MaxLines
	return strings.Join(lines[:t.MaxLines], "\n") + "\n" + t.styles.Dim.Render(fmt.Sprintf("… %d more line(s)", hidden))
}
