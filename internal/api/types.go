package api

import (
	"time"

	"github.com/fragmede/essay/internal/feed"
)

// Actor is the author of a post or comment.
type Actor struct {
	AvatarURL string `json:"avatarUrl"`
	Login     string `json:"login"`
	URL       string `json:"url"`
}

// Name returns the login, or "ghost" for deleted accounts.
func (a *Actor) Name() string {
	if a == nil || a.Login == "" {
		return "ghost"
	}
	return a.Login
}

// IssueRef identifies the issue a streamed comment belongs to.
type IssueRef struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	Title  string `json:"title"`
}

// Post is a GitHub issue presented as a blog post.
type Post struct {
	ID        string                   `json:"id"`
	Number    int                      `json:"number"`
	Title     string                   `json:"title"`
	BodyHTML  string                   `json:"bodyHTML"`
	CreatedAt time.Time                `json:"createdAt"`
	Author    *Actor                   `json:"author"`
	Comments  feed.Connection[Comment] `json:"comments"`
}

// Comment is an issue comment.
type Comment struct {
	ID        string    `json:"id"`
	BodyHTML  string    `json:"bodyHTML"`
	CreatedAt time.Time `json:"createdAt"`
	Author    *Actor    `json:"author"`
	Issue     *IssueRef `json:"issue,omitempty"`
}

// IssueID returns the id of the comment's issue, or "".
func (c Comment) IssueID() string {
	if c.Issue == nil {
		return ""
	}
	return c.Issue.ID
}

// CommentKey identifies comments in a feed.View.
func CommentKey(c Comment) string { return c.ID }

// Repository is the result of the posts query: the repository node id,
// used to page further, and the first page of posts.
type Repository struct {
	ID    string                `json:"id"`
	Posts feed.Connection[Post] `json:"posts"`
}
