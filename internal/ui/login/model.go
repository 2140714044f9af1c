package login

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fragmede/essay/internal/ui/messages"
)

var (
	focusedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#58A6FF"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8B949E"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F85149"))
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#58A6FF")).Bold(true).
			Padding(1, 0)
)

// Model is the token login form. It only collects the token; the app
// verifies it, either as a plain login or to recover a subscription.
type Model struct {
	tokenInput textinput.Model
	service    string
	recovering bool
	err        string
	submitting bool
	width      int
	height     int
}

// New creates a login form for service. recovering marks a login started from
// a subscription that failed for missing auth.
func New(service string, recovering bool) Model {
	in := textinput.New()
	in.Placeholder = "ghp_..."
	in.EchoMode = textinput.EchoPassword
	in.Width = 44
	in.Focus()

	return Model{tokenInput: in, service: service, recovering: recovering}
}

func (m Model) Service() string { return m.service }

// SetSize sets the viewport dimensions.
func (m *Model) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "enter" {
			if m.submitting {
				return m, nil
			}
			token := strings.TrimSpace(m.tokenInput.Value())
			if token == "" {
				m.err = "A token is required"
				return m, nil
			}
			m.submitting = true
			m.err = ""
			service, recovering := m.service, m.recovering
			return m, func() tea.Msg {
				return messages.TokenEnteredMsg{Service: service, Token: token, Recover: recovering}
			}
		}

	case messages.LoginResultMsg:
		m.submitting = false
		if msg.Err != nil {
			m.err = msg.Err.Error()
		}
		return m, nil

	case messages.RecoverResultMsg:
		m.submitting = false
		if msg.Err != nil {
			m.err = msg.Err.Error()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.tokenInput, cmd = m.tokenInput.Update(msg)
	return m, cmd
}

// View renders the login form.
func (m Model) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Log in to " + m.service))
	sb.WriteString("\n")
	if m.recovering {
		sb.WriteString(hintStyle.Render("The comment notification subscription needs this login."))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(labelStyle.Render("Personal access token:"))
	sb.WriteString("\n")
	sb.WriteString(m.tokenInput.View())
	sb.WriteString("\n\n")

	if m.err != "" {
		sb.WriteString(errorStyle.Render(m.err))
		sb.WriteString("\n\n")
	}

	if m.submitting {
		sb.WriteString("Logging in...")
	} else {
		sb.WriteString(focusedStyle.Render("Enter") + " to submit, " + focusedStyle.Render("Esc") + " to cancel")
	}

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, sb.String())
}
