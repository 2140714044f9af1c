package statusbar

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fragmede/essay/internal/feed"
)

var (
	barStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#161B22")).
			Foreground(lipgloss.Color("#FFFFFF"))

	viewStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#1F6FEB")).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true).
			Padding(0, 1)

	userStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#161B22")).
			Foreground(lipgloss.Color("#3FB950")).
			Padding(0, 1)

	notifyStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#DA3633")).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true).
			Padding(0, 1)

	statusTextStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#161B22")).
			Foreground(lipgloss.Color("#8B949E")).
			Padding(0, 1)

	errorTextStyle = statusTextStyle.
			Foreground(lipgloss.Color("#F85149"))

	liveStyles = map[feed.Status]lipgloss.Style{
		feed.StatusIdle:       statusTextStyle,
		feed.StatusActive:     statusTextStyle.Foreground(lipgloss.Color("#3FB950")),
		feed.StatusError:      statusTextStyle.Foreground(lipgloss.Color("#F85149")),
		feed.StatusNeedsLogin: statusTextStyle.Foreground(lipgloss.Color("#D29922")),
	}
)

// Model is the status bar at the bottom of the screen.
type Model struct {
	width       int
	view        string
	live        feed.Status
	username    string
	unreadCount int
	statusText  string
	statusErr   bool
}

// New creates a new status bar.
func New() Model {
	return Model{view: "Posts"}
}

// SetSize sets the width.
func (m *Model) SetSize(w int) {
	m.width = w
}

// SetView sets the label of the active view.
func (m *Model) SetView(label string) {
	m.view = label
}

// SetLive sets the comment subscription status.
func (m *Model) SetLive(s feed.Status) {
	m.live = s
}

// SetUser sets the logged-in username.
func (m *Model) SetUser(username string) {
	m.username = username
}

// SetUnread sets the unread notification count.
func (m *Model) SetUnread(count int) {
	m.unreadCount = count
}

// SetStatus sets a temporary status message.
func (m *Model) SetStatus(text string, isError bool) {
	m.statusText = text
	m.statusErr = isError
}

// Update is a no-op for the status bar.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders the status bar.
func (m Model) View() string {
	left := viewStyle.Render(m.view)
	left += liveStyles[m.live].Render("live: " + m.live.String())

	var right string
	if m.statusText != "" {
		if m.statusErr {
			right += errorTextStyle.Render(m.statusText)
		} else {
			right += statusTextStyle.Render(m.statusText)
		}
	}
	if m.unreadCount > 0 {
		right += notifyStyle.Render(fmt.Sprintf(" %d ", m.unreadCount))
	}
	if m.username != "" {
		right += userStyle.Render(m.username)
	} else {
		right += statusTextStyle.Render("L:login")
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	mid := barStyle.Width(gap).Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, left, mid, right)
}
