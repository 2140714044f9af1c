package reply

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fragmede/essay/internal/api"
	"github.com/fragmede/essay/internal/render"
	"github.com/fragmede/essay/internal/ui/messages"
)

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#58A6FF")).Bold(true)
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8B949E"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F85149"))
	previewStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#30363D")).
			Padding(0, 1)
)

// Poster runs the add comment mutation.
type Poster interface {
	AddComment(ctx context.Context, subjectID, body string) (*api.Comment, error)
}

// Model is the comment composer for one post. Drafts are markdown; the
// preview renders them the way GitHub will.
type Model struct {
	textarea   textarea.Model
	subjectID  string
	title      string
	poster     Poster
	err        string
	submitting bool
	preview    bool
	width      int
	height     int
}

// New creates a composer for the issue subjectID.
func New(subjectID, title string, poster Poster) Model {
	ta := textarea.New()
	ta.Placeholder = "Leave a comment (markdown)..."
	ta.Focus()
	ta.SetWidth(80)
	ta.SetHeight(10)

	return Model{
		textarea:  ta,
		subjectID: subjectID,
		title:     title,
		poster:    poster,
	}
}

// SubjectID is the id of the issue being replied to.
func (m Model) SubjectID() string { return m.subjectID }

// SetSize sets the viewport dimensions.
func (m *Model) SetSize(w, h int) {
	m.width = w
	m.height = h
	tw := w - 4
	if tw > 100 {
		tw = 100
	}
	m.textarea.SetWidth(tw)
	th := h - 8
	if th < 5 {
		th = 5
	}
	m.textarea.SetHeight(th)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+s":
			text := strings.TrimSpace(m.textarea.Value())
			if text == "" {
				m.err = "Comment cannot be empty"
				return m, nil
			}
			if m.submitting {
				return m, nil
			}
			m.submitting = true
			m.err = ""
			poster := m.poster
			subjectID := m.subjectID
			return m, func() tea.Msg {
				c, err := poster.AddComment(context.Background(), subjectID, text)
				return messages.ReplyResultMsg{SubjectID: subjectID, Comment: c, Err: err}
			}
		case "ctrl+p":
			m.preview = !m.preview
			if m.preview {
				m.textarea.Blur()
			} else {
				m.textarea.Focus()
			}
			return m, nil
		}
		if m.preview {
			return m, nil
		}

	case messages.ReplyResultMsg:
		if msg.SubjectID != m.subjectID {
			return m, nil
		}
		m.submitting = false
		if msg.Err != nil {
			m.err = msg.Err.Error()
			return m, nil
		}
		m.textarea.Reset()
		return m, nil
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

// Preview renders the draft as it will appear once posted.
func (m Model) Preview() string {
	html, err := render.MarkdownToHTML(m.textarea.Value())
	if err != nil {
		return "preview failed: " + err.Error()
	}
	width := m.textarea.Width()
	if width < 20 {
		width = 20
	}
	return render.HTMLToTerminal(html, width)
}

// View renders the reply form.
func (m Model) View() string {
	var sb strings.Builder

	title := "Leave a comment"
	if m.title != "" {
		title += " on " + m.title
	}
	sb.WriteString(titleStyle.Render(title))
	sb.WriteString("\n\n")
	if m.preview {
		sb.WriteString(previewStyle.Render(m.Preview()))
	} else {
		sb.WriteString(m.textarea.View())
	}
	sb.WriteString("\n\n")

	if m.err != "" {
		sb.WriteString(errorStyle.Render(m.err))
		sb.WriteString("\n")
	}

	switch {
	case m.submitting:
		sb.WriteString("Submitting...")
	case m.preview:
		sb.WriteString(hintStyle.Render("Ctrl+P to edit | Ctrl+S to submit | Esc to cancel"))
	default:
		sb.WriteString(hintStyle.Render("Ctrl+P to preview | Ctrl+S to submit | Esc to cancel"))
	}

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, sb.String())
}
