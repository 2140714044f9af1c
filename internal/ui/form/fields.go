package form

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fragmede/essay/internal/feed"
	"github.com/fragmede/essay/internal/ui/messages"
)

// PostsFields edit the variables of the posts query.
func PostsFields() []Field {
	return []Field{
		{Label: "Owner", Path: "owner", Placeholder: "onegraph"},
		{Label: "Repository", Path: "name", Placeholder: "essay.dev"},
		{Label: "Created by", Path: "createdBy", Placeholder: "any author"},
		{Label: "Label", Path: "labels.0", Placeholder: "publish"},
	}
}

// SubscriptionFields edit the variables of the comment subscription.
func SubscriptionFields() []Field {
	return []Field{
		{Label: "Repository owner", Path: "repoOwner", Placeholder: "onegraph"},
		{Label: "Repository name", Path: "repoName", Placeholder: "essay.dev"},
	}
}

// NewPostsForm is the posts query form. Submitting sends
// messages.QuerySubmittedMsg.
func NewPostsForm(binder *feed.Binder) Model {
	m := New("Posts query", binder, PostsFields(), func(v feed.Variables) tea.Msg {
		return messages.QuerySubmittedMsg{Variables: v}
	})
	m.SetRunAction("Run query: PostsQuery")
	return m
}

// NewSubscriptionForm is the comment subscription form. Submitting sends
// messages.SubscriptionSubmittedMsg.
func NewSubscriptionForm(binder *feed.Binder) Model {
	return New("Comment notifications", binder, SubscriptionFields(), func(v feed.Variables) tea.Msg {
		return messages.SubscriptionSubmittedMsg{Variables: v}
	})
}
