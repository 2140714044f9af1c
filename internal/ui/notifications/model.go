package notifications

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/fragmede/essay/internal/cache"
	"github.com/fragmede/essay/internal/render"
	"github.com/fragmede/essay/internal/ui/messages"
)

var (
	titleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#58A6FF")).Bold(true).Padding(1, 0)
	notifStyle     = lipgloss.NewStyle().Padding(0, 1)
	selectedStyle  = lipgloss.NewStyle().Background(lipgloss.Color("#30363D")).Padding(0, 1)
	authorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#58A6FF")).Bold(true)
	unreadDotStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F85149")).Bold(true)
	metaStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#8B949E"))
	previewStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C9D1D9"))
)

// Limit is how many notifications the view lists.
const Limit = 50

// Model lists the comments received through the comment subscription.
type Model struct {
	notifications []cache.Notification
	selectedIdx   int
	db            *cache.DB
	log           zerolog.Logger
	now           func() time.Time
	width         int
	height        int
}

func New(db *cache.DB, log zerolog.Logger) Model {
	return Model{db: db, log: log, now: time.Now}
}

// SetSize sets the viewport dimensions.
func (m *Model) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// Load refreshes the list from the database.
func (m *Model) Load() {
	list, err := m.db.ListNotifications(Limit)
	if err != nil {
		m.log.Warn().Err(err).Msg("listing notifications")
	}
	m.notifications = list
	if m.selectedIdx >= len(list) {
		m.selectedIdx = 0
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "j", "down":
			if m.selectedIdx < len(m.notifications)-1 {
				m.selectedIdx++
			}
		case "k", "up":
			if m.selectedIdx > 0 {
				m.selectedIdx--
			}
		case "a":
			if err := m.db.MarkAllRead(); err != nil {
				m.log.Warn().Err(err).Msg("marking notifications read")
				return m, nil
			}
			for i := range m.notifications {
				m.notifications[i].Read = true
			}
			return m, unreadCmd(0)
		case "enter":
			if m.selectedIdx >= 0 && m.selectedIdx < len(m.notifications) {
				n := m.notifications[m.selectedIdx]
				if err := m.db.MarkRead(n.ID); err != nil {
					m.log.Warn().Err(err).Int64("id", n.ID).Msg("marking notification read")
				}
				m.notifications[m.selectedIdx].Read = true
				unread := m.db.UnreadNotificationCount()
				return m, tea.Batch(
					unreadCmd(unread),
					func() tea.Msg { return messages.OpenIssueMsg{IssueID: n.IssueID} },
				)
			}
		}
	}
	return m, nil
}

func unreadCmd(n int) tea.Cmd {
	return func() tea.Msg { return messages.NewNotificationMsg{UnreadCount: n} }
}

// View renders the notifications list.
func (m Model) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Notifications"))
	sb.WriteString("\n")

	if len(m.notifications) == 0 {
		sb.WriteString("\n  No notifications yet.\n")
		return sb.String()
	}

	now := m.now()
	for i, n := range m.notifications {
		var line strings.Builder

		if !n.Read {
			line.WriteString(unreadDotStyle.Render("● "))
		} else {
			line.WriteString("  ")
		}

		author := n.AuthorLogin
		if author == "" {
			author = "ghost"
		}
		line.WriteString(authorStyle.Render(author))
		meta := " commented"
		if n.IssueTitle != "" {
			meta += " on " + n.IssueTitle
		}
		if ago := render.TimeAgo(n.CreatedAt, now); ago != "" {
			meta += " " + ago
		}
		line.WriteString(metaStyle.Render(meta))
		if n.BodyPreview != "" {
			line.WriteString("\n  " + previewStyle.Render(n.BodyPreview))
		}

		entry := line.String()
		if i == m.selectedIdx {
			entry = selectedStyle.Render(entry)
		} else {
			entry = notifStyle.Render(entry)
		}
		sb.WriteString(entry + "\n")
	}

	sb.WriteString("\n" + metaStyle.Render("  enter: open post  a: mark all read"))
	return sb.String()
}

// UnreadCount returns the number of unread notifications listed.
func (m Model) UnreadCount() int {
	count := 0
	for _, n := range m.notifications {
		if !n.Read {
			count++
		}
	}
	return count
}
