package postview

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/fragmede/essay/internal/api"
	"github.com/fragmede/essay/internal/config"
	"github.com/fragmede/essay/internal/feed"
	"github.com/fragmede/essay/internal/ui/messages"
)

type fakePager struct {
	page feed.Connection[api.Comment]
	err  error
}

func (f *fakePager) CommentsPager(string) feed.PageFunc[api.Comment] {
	return func(context.Context, int, string) (feed.Connection[api.Comment], error) {
		return f.page, f.err
	}
}

func comment(id, login, body string) api.Comment {
	return api.Comment{
		ID:        id,
		BodyHTML:  "<p>" + body + "</p>",
		CreatedAt: time.Now().Add(-time.Hour),
		Author:    &api.Actor{Login: login},
	}
}

func testPost() api.Post {
	return api.Post{
		ID:       "I_1",
		Number:   7,
		Title:    "Hello essay",
		BodyHTML: "<p>The post body.</p>",
		Author:   &api.Actor{Login: "alice"},
		Comments: feed.Connection[api.Comment]{
			Edges: []feed.Edge[api.Comment]{
				{Node: comment("C_1", "bob", "first!"), Cursor: "c1"},
				{Node: comment("C_2", "alice", "thanks"), Cursor: "c2"},
			},
			PageInfo: feed.PageInfo{HasNextPage: true, EndCursor: "c2"},
		},
	}
}

func ids(cs []api.Comment) []string {
	var out []string
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestViewShowsPost(t *testing.T) {
	m := New(testPost(), config.Default(), &fakePager{})
	m.SetSize(100, 60)

	out := m.View()
	require.Contains(t, out, "Hello essay")
	require.Contains(t, out, "by alice")
	require.Contains(t, out, "The post body.")
	require.Contains(t, out, "Leave a comment")
	require.Contains(t, out, `Comments on "Hello essay"`)
	require.Contains(t, out, "first!")
	require.Contains(t, out, "Fetch 2 more comments")
}

func TestFlattenMarksOP(t *testing.T) {
	flat := Flatten(testPost().Comments.Nodes(), "alice", CollapseState{"C_1": true}, map[string]bool{"C_2": true})
	require.Len(t, flat, 2)
	require.False(t, flat[0].IsOP)
	require.True(t, flat[0].IsCollapsed)
	require.True(t, flat[1].IsOP)
	require.True(t, flat[1].IsNew)

	noID := Flatten([]api.Comment{{BodyHTML: "x"}}, "", nil, nil)
	require.Equal(t, "#0", noID[0].Key)
	require.False(t, noID[0].IsOP)
}

func TestFindAuthorIndex(t *testing.T) {
	flat := Flatten([]api.Comment{
		comment("A", "bob", "1"),
		comment("B", "carol", "2"),
		comment("C", "bob", "3"),
	}, "", nil, nil)
	require.Equal(t, 2, FindAuthorIndex(flat, 0))
	require.Equal(t, -1, FindAuthorIndex(flat, 1))
	require.Equal(t, -1, FindAuthorIndex(flat, 5))
}

func TestPushComment(t *testing.T) {
	m := New(testPost(), config.Default(), &fakePager{})
	m.SetSize(100, 60)

	require.True(t, m.PushComment(comment("C_9", "dave", "live one")))
	require.False(t, m.PushComment(comment("C_9", "dave", "live one")))
	require.False(t, m.PushComment(comment("C_1", "bob", "first!")), "already fetched")
	require.Equal(t, []string{"C_9", "C_1", "C_2"}, ids(m.Comments()))
	require.Contains(t, m.View(), " new ")

	m.ClearNew()
	require.NotContains(t, m.View(), " new ")
}

func TestLoadMoreComments(t *testing.T) {
	pager := &fakePager{page: feed.Connection[api.Comment]{
		Edges: []feed.Edge[api.Comment]{{Node: comment("C_3", "erin", "late"), Cursor: "c3"}},
	}}
	m := New(testPost(), config.Default(), pager)
	m.SetSize(100, 60)
	require.True(t, m.PushComment(comment("C_9", "dave", "live")))

	m, cmd := m.Update(key("m"))
	require.NotNil(t, cmd)
	require.Equal(t, "Loading more comments...", m.LoadMoreLabel())

	msg := cmd()
	require.Equal(t, messages.CommentsPageMsg{IssueID: "I_1"}, msg)
	m, _ = m.Update(msg)

	require.Equal(t, []string{"C_9", "C_1", "C_2", "C_3"}, ids(m.Comments()))
	require.Equal(t, "All comments have been fetched", m.LoadMoreLabel())

	_, none := m.Update(key("m"))
	require.Nil(t, none)
}

func TestLoadMoreFailureKeepsComments(t *testing.T) {
	m := New(testPost(), config.Default(), &fakePager{err: errors.New("timeout")})
	m.SetSize(100, 60)

	m, cmd := m.Update(key("m"))
	require.NotNil(t, cmd)
	m, _ = m.Update(cmd())

	require.Equal(t, []string{"C_1", "C_2"}, ids(m.Comments()))
	require.Equal(t, "Fetch 2 more comments", m.LoadMoreLabel())
	require.Contains(t, m.View(), "timeout")
}

func TestReplyKey(t *testing.T) {
	m := New(testPost(), config.Default(), &fakePager{})
	_, cmd := m.Update(key("r"))
	require.NotNil(t, cmd)
	require.Equal(t, messages.OpenReplyMsg{SubjectID: "I_1", Title: "Hello essay"}, cmd())
}

func TestCollapseHidesBody(t *testing.T) {
	m := New(testPost(), config.Default(), &fakePager{})
	m.SetSize(100, 60)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotContains(t, m.View(), "first!")
	require.Contains(t, m.View(), "thanks")

	m, _ = m.Update(key("z"))
	require.NotContains(t, m.View(), "thanks")
	m, _ = m.Update(key("z"))
	require.Contains(t, m.View(), "first!")
}
