package digest

import (
	"html"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Markup is the fixed emphasis vocabulary a digest may use. Every method
// escapes its input for the target, so callers pass raw text.
type Markup interface {
	Text(s string) string
	Bold(s string) string
	Italic(s string) string
	Code(s string) string
}

// HTMLMarkup targets Telegram's parse_mode=HTML subset.
type HTMLMarkup struct{}

func (HTMLMarkup) Text(s string) string   { return escapeHTML(s) }
func (HTMLMarkup) Bold(s string) string   { return "<b>" + escapeHTML(s) + "</b>" }
func (HTMLMarkup) Italic(s string) string { return "<i>" + escapeHTML(s) + "</i>" }
func (HTMLMarkup) Code(s string) string   { return "<code>" + escapeHTML(s) + "</code>" }

// Apostrophes stay literal to keep messages readable in raw form.
func escapeHTML(s string) string {
	return strings.ReplaceAll(html.EscapeString(s), "&#39;", "'")
}

// PlainMarkup emits text without any emphasis.
type PlainMarkup struct{}

func (PlainMarkup) Text(s string) string   { return s }
func (PlainMarkup) Bold(s string) string   { return s }
func (PlainMarkup) Italic(s string) string { return s }
func (PlainMarkup) Code(s string) string   { return s }

// TerminalMarkup renders emphasis as ANSI styles for local previews.
type TerminalMarkup struct {
	bold   lipgloss.Style
	italic lipgloss.Style
	code   lipgloss.Style
}

func NewTerminalMarkup() TerminalMarkup {
	return NewTerminalMarkupFor(lipgloss.DefaultRenderer())
}

// NewTerminalMarkupFor styles output for a specific renderer, such as one
// bound to a remote SSH session.
func NewTerminalMarkupFor(r *lipgloss.Renderer) TerminalMarkup {
	return TerminalMarkup{
		bold:   r.NewStyle().Bold(true),
		italic: r.NewStyle().Italic(true).Foreground(lipgloss.Color("8")),
		code:   r.NewStyle().Foreground(lipgloss.Color("6")),
	}
}

func (m TerminalMarkup) Text(s string) string   { return s }
func (m TerminalMarkup) Bold(s string) string   { return m.bold.Render(s) }
func (m TerminalMarkup) Italic(s string) string { return m.italic.Render(s) }
func (m TerminalMarkup) Code(s string) string   { return m.code.Render(s) }

// MarkupFor maps a configured parse mode to its markup. Unknown modes fall back to HTML.
func MarkupFor(mode string) Markup {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "plain", "text", "none":
		return PlainMarkup{}
	case "terminal":
		return NewTerminalMarkup()
	default:
		return HTMLMarkup{}
	}
}
