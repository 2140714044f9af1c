package ui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	Quit          key.Binding
	Back          key.Binding
	Login         key.Binding
	Notify        key.Binding
	QueryForm     key.Binding
	Subscription  key.Binding
	RestartLive   key.Binding
	Retry         key.Binding
	Logout        key.Binding
	DismissStatus key.Binding
}

var Keys = KeyMap{
	Quit:          key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Back:          key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Login:         key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "login")),
	Notify:        key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "notifications")),
	QueryForm:     key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "edit query")),
	Subscription:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "edit subscription")),
	RestartLive:   key.NewBinding(key.WithKeys("S"), key.WithHelp("S", "restart subscription")),
	Retry:         key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "retry")),
	Logout:        key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "logout")),
	DismissStatus: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "dismiss")),
}

// ShortHelp is the key summary on the posts view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.QueryForm, k.Subscription, k.Notify, k.Login, k.Quit}
}
