package postlist

import (
	"fmt"
	"strings"
	"time"

	"github.com/fragmede/essay/internal/api"
	"github.com/fragmede/essay/internal/render"
)

// PostItem wraps a post for the bubbles list.
type PostItem struct {
	api.Post
	Index int
	now   time.Time
}

func (p PostItem) Title() string {
	if p.Post.Title != "" {
		return p.Post.Title
	}
	return fmt.Sprintf("#%d", p.Number)
}

func (p PostItem) Description() string {
	now := p.now
	if now.IsZero() {
		now = time.Now()
	}
	parts := []string{"by " + p.Author.Name()}
	if ago := render.TimeAgo(p.CreatedAt, now); ago != "" {
		parts = append(parts, ago)
	}
	n := len(p.Comments.Edges)
	switch {
	case n == 1:
		parts = append(parts, "1 comment")
	case p.Comments.PageInfo.HasNextPage:
		parts = append(parts, fmt.Sprintf("%d+ comments", n))
	case n > 0:
		parts = append(parts, fmt.Sprintf("%d comments", n))
	}
	return strings.Join(parts, " | ")
}

func (p PostItem) FilterValue() string {
	return p.Post.Title + " " + p.Author.Name()
}

// footerItem is the load-more row under the posts.
type footerItem struct {
	label string
}

func (f footerItem) Title() string       { return f.label }
func (f footerItem) Description() string { return "" }
func (f footerItem) FilterValue() string { return "" }
