// Package form renders a text field per query variable. Edits go to the
// binder's pending variables as they are typed; only submitting commits
// them for the query to run with.
package form

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fragmede/essay/internal/feed"
)

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#58A6FF")).Bold(true).Padding(1, 0)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	focusedLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("#58A6FF")).Bold(true)
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8B949E"))
	actionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#3FB950")).Bold(true)
)

// Field binds one input to a variable path.
type Field struct {
	Label       string
	Path        string
	Placeholder string
	// Transform converts the typed text before it is stored. Nil stores the
	// text as is.
	Transform func(string) any
}

// SubmitFunc builds the message sent once the form commits.
type SubmitFunc func(feed.Variables) tea.Msg

// Model is a variables form over a feed.Binder.
type Model struct {
	title    string
	binder   *feed.Binder
	fields   []Field
	inputs   []textinput.Model
	handlers []func(string)
	focus    int
	submit   SubmitFunc

	runLabel string
	hasError bool
	width    int
	height   int
}

// New builds a form whose inputs start from the binder's pending values.
func New(title string, binder *feed.Binder, fields []Field, submit SubmitFunc) Model {
	m := Model{title: title, binder: binder, fields: fields, submit: submit}
	for i, f := range fields {
		path := feed.ParsePath(f.Path)
		in := textinput.New()
		in.Placeholder = f.Placeholder
		in.Width = 40
		if v, ok := binder.Get(path); ok && v != nil {
			in.SetValue(fmt.Sprint(v))
			in.CursorEnd()
		}
		if i == 0 {
			in.Focus()
		}
		m.inputs = append(m.inputs, in)
		m.handlers = append(m.handlers, binder.Update(path, f.Transform))
	}
	return m
}

// SetRunAction shows an action that commits and submits the variables
// unchanged, e.g. "Run query: PostsQuery".
func (m *Model) SetRunAction(label string) {
	m.runLabel = label
}

// SetError hides the run action while the query it runs is failing.
func (m *Model) SetError(hasError bool) {
	m.hasError = hasError
}

// SetSize sets the viewport dimensions.
func (m *Model) SetSize(w, h int) {
	m.width = w
	m.height = h
}

func (m *Model) setFocus(i int) {
	if len(m.inputs) == 0 {
		return
	}
	m.inputs[m.focus].Blur()
	m.focus = (i + len(m.inputs)) % len(m.inputs)
	m.inputs[m.focus].Focus()
}

func (m Model) commit() tea.Cmd {
	vars := m.binder.Commit()
	submit := m.submit
	return func() tea.Msg { return submit(vars) }
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if len(m.inputs) == 0 {
		return m, nil
	}
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "tab", "down":
			m.setFocus(m.focus + 1)
			return m, nil
		case "shift+tab", "up":
			m.setFocus(m.focus - 1)
			return m, nil
		case "enter", "ctrl+s":
			return m, m.commit()
		case "ctrl+r":
			if m.runLabel == "" || m.hasError {
				return m, nil
			}
			return m, m.commit()
		}
	}

	before := m.inputs[m.focus].Value()
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	if after := m.inputs[m.focus].Value(); after != before {
		m.handlers[m.focus](after)
	}
	return m, cmd
}

// View renders the form.
func (m Model) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString("\n")
	for i, f := range m.fields {
		label := labelStyle
		if i == m.focus {
			label = focusedLabel
		}
		sb.WriteString(label.Render(f.Label))
		sb.WriteString("\n")
		sb.WriteString(m.inputs[i].View())
		sb.WriteString("\n\n")
	}
	if m.runLabel != "" && !m.hasError {
		sb.WriteString(actionStyle.Render("ctrl+r: " + m.runLabel))
		sb.WriteString("\n")
	}
	sb.WriteString(hintStyle.Render("tab: next field  enter: submit  esc: cancel"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, sb.String())
}
