// Package tui renders the digest preview as an interactive terminal view.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	fetchTimeout = 45 * time.Second
	headerHeight = 2
	footerHeight = 1
)

// DigestPreviewer composes a digest without delivering it.
type DigestPreviewer interface {
	Preview(ctx context.Context) (string, error)
}

type digestLoadedMsg struct {
	text string
	err  error
}

// DigestModel shows one digest preview in a scrollable viewport. r refreshes, q quits.
type DigestModel struct {
	previewer DigestPreviewer
	username  string

	viewport viewport.Model
	spinner  spinner.Model

	loading   bool
	err       error
	updatedAt time.Time
	now       func() time.Time

	titleStyle lipgloss.Style
	mutedStyle lipgloss.Style
	errStyle   lipgloss.Style
}

func NewDigestModel(previewer DigestPreviewer, username string) *DigestModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &DigestModel{
		previewer:  previewer,
		username:   username,
		viewport:   viewport.New(80, 20),
		spinner:    sp,
		loading:    true,
		now:        time.Now,
		titleStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5")),
		mutedStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		errStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

// SetSize fits the viewport between the header and the footer.
func (m *DigestModel) SetSize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	m.viewport.Width = width
	m.viewport.Height = max(height-headerHeight-footerHeight, 1)
}

func (m *DigestModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch())
}

func (m *DigestModel) fetch() tea.Cmd {
	previewer := m.previewer
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		text, err := previewer.Preview(ctx)
		return digestLoadedMsg{text: text, err: err}
	}
}

func (m *DigestModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			if m.loading {
				return m, nil
			}
			m.loading = true
			m.err = nil
			return m, tea.Batch(m.spinner.Tick, m.fetch())
		}
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil
	case digestLoadedMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.updatedAt = m.now()
			m.viewport.SetContent(msg.text)
			m.viewport.GotoTop()
		}
		return m, nil
	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *DigestModel) View() string {
	header := m.titleStyle.Render("coin-digest") + m.mutedStyle.Render(" · "+m.username)
	status := m.mutedStyle.Render("never loaded")
	switch {
	case m.loading:
		status = m.spinner.View() + " fetching market data..."
	case m.err != nil:
		status = m.errStyle.Render(fmt.Sprintf("refresh failed: %v", m.err))
	case !m.updatedAt.IsZero():
		status = m.mutedStyle.Render("loaded " + m.updatedAt.Format("15:04:05"))
	}
	footer := m.mutedStyle.Render("r refresh · ↑/↓ scroll · q quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		status,
		m.viewport.View(),
		footer,
	)
}
