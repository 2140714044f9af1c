package messages

import (
	"github.com/fragmede/essay/internal/api"
	"github.com/fragmede/essay/internal/feed"
)

// View transition messages.
type (
	OpenPostMsg  struct{ Post api.Post }
	OpenIssueMsg struct{ IssueID string }
	GoBackMsg    struct{}
	OpenReplyMsg struct {
		SubjectID string
		Title     string
	}
)

// Data messages.
type (
	// PostsLoadedMsg carries the first page of posts. Seq matches the fetch
	// that produced it so stale results can be dropped. Fresh is set on a
	// cache hit still inside the result TTL.
	PostsLoadedMsg struct {
		Seq       uint64
		Repo      *api.Repository
		FromCache bool
		Fresh     bool
		Err       error
	}

	// PostsPageMsg is sent when a load-more of posts settles.
	PostsPageMsg struct {
		Seq uint64
		Err error
	}

	// CommentsPageMsg is sent when a load-more of comments settles.
	CommentsPageMsg struct {
		IssueID string
		Err     error
	}

	// TokenEnteredMsg is sent by the login form. Recover is set when the
	// login is for a subscription waiting on Service.
	TokenEnteredMsg struct {
		Service string
		Token   string
		Recover bool
	}

	LoginResultMsg struct {
		Service  string
		Username string
		Err      error
	}

	// RecoverResultMsg reports a subscription login recovery.
	RecoverResultMsg struct {
		Service string
		Err     error
	}

	ReplyResultMsg struct {
		SubjectID string
		Comment   *api.Comment
		Err       error
	}

	// SessionChangedMsg carries every state change of the comment
	// subscription.
	SessionChangedMsg struct {
		State feed.State[api.Comment]
	}

	// QuerySubmittedMsg is sent when the posts query form commits.
	QuerySubmittedMsg struct{ Variables feed.Variables }

	// SubscriptionSubmittedMsg is sent when the subscription form commits.
	SubscriptionSubmittedMsg struct{ Variables feed.Variables }

	NewNotificationMsg struct {
		UnreadCount int
	}

	StatusMsg struct {
		Text    string
		IsError bool
	}

	SessionRestoredMsg struct {
		Username string
	}
)
