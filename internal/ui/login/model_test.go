package login

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/fragmede/essay/internal/ui/messages"
)

func enterToken(m Model, token string) Model {
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(token)})
	return m
}

func TestEnterEmitsToken(t *testing.T) {
	m := enterToken(New("github", true), " ghp_abc ")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	require.Equal(t, messages.TokenEnteredMsg{Service: "github", Token: "ghp_abc", Recover: true}, cmd())
	require.Contains(t, m.View(), "Logging in...")
	require.NotContains(t, m.View(), "ghp_abc", "the token is masked")

	_, again := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, again)
}

func TestEmptyTokenRejected(t *testing.T) {
	m, cmd := New("github", false).Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.Contains(t, m.View(), "A token is required")
}

func TestResultErrorsShown(t *testing.T) {
	m := enterToken(New("github", false), "bad")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = m.Update(messages.LoginResultMsg{Service: "github", Err: errors.New("Bad credentials")})
	require.Contains(t, m.View(), "Bad credentials")
	require.Contains(t, m.View(), "to submit")

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = m.Update(messages.RecoverResultMsg{Service: "github", Err: errors.New("not logged into github")})
	require.Contains(t, m.View(), "not logged into github")
}

func TestRecoverHint(t *testing.T) {
	require.Contains(t, New("github", true).View(), "subscription needs this login")
	require.NotContains(t, New("github", false).View(), "subscription needs this login")
	require.Contains(t, New("github", false).View(), "Log in to github")
}
