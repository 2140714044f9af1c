package postlist

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fragmede/essay/internal/api"
	"github.com/fragmede/essay/internal/cache"
	"github.com/fragmede/essay/internal/config"
	"github.com/fragmede/essay/internal/feed"
	"github.com/fragmede/essay/internal/ui/messages"
)

type fakeFetcher struct {
	mu        sync.Mutex
	repo      *api.Repository
	err       error
	calls     int
	lastVars  feed.Variables
	pageCalls int
}

func (f *fakeFetcher) FetchPosts(_ context.Context, vars feed.Variables, _, _ int) (*api.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastVars = vars
	if f.err != nil {
		return nil, f.err
	}
	return f.repo, nil
}

func (f *fakeFetcher) PostsPager(_ string, _ feed.Variables, _ int) feed.PageFunc[api.Post] {
	return func(_ context.Context, count int, cursor string) (feed.Connection[api.Post], error) {
		f.mu.Lock()
		f.pageCalls++
		f.mu.Unlock()
		var conn feed.Connection[api.Post]
		for i := 0; i < count; i++ {
			id := fmt.Sprintf("%s-%d", cursor, i)
			conn.Edges = append(conn.Edges, feed.Edge[api.Post]{Node: api.Post{ID: id, Title: id}, Cursor: id})
		}
		conn.PageInfo = feed.PageInfo{HasNextPage: false, EndCursor: "end"}
		return conn, nil
	}
}

func (f *fakeFetcher) fetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testRepo() *api.Repository {
	return &api.Repository{
		ID: "R_1",
		Posts: feed.Connection[api.Post]{
			Edges: []feed.Edge[api.Post]{
				{Node: api.Post{ID: "I_1", Number: 1, Title: "Hello"}, Cursor: "c1"},
				{Node: api.Post{ID: "I_2", Number: 2, Title: "World"}, Cursor: "c2"},
			},
			PageInfo: feed.PageInfo{HasNextPage: true, EndCursor: "c2"},
		},
	}
}

func newModel(t *testing.T, f Fetcher, db *cache.DB) Model {
	t.Helper()
	vars := feed.Variables{"owner": "onegraph", "name": "essay.dev"}
	binder := feed.NewBinder(vars, vars)
	m := New(config.Default(), f, db, binder, "", zerolog.Nop())
	m.SetSize(80, 40)
	return m
}

func openDB(t *testing.T) *cache.DB {
	t.Helper()
	db, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func postIDs(m Model) []string {
	var ids []string
	for _, p := range m.Posts() {
		ids = append(ids, p.ID)
	}
	return ids
}

// run executes cmd and feeds its message back into the model.
func run(t *testing.T, m Model, cmd tea.Cmd) (Model, tea.Cmd) {
	t.Helper()
	require.NotNil(t, cmd)
	return m.Update(cmd())
}

func TestInitWithoutCacheFetches(t *testing.T) {
	f := &fakeFetcher{repo: testRepo()}
	m := newModel(t, f, nil)

	m, next := run(t, m, m.Init())
	require.Nil(t, next)
	require.Equal(t, 1, f.fetchCalls())
	require.Equal(t, "onegraph", f.lastVars["owner"])
	require.Equal(t, []string{"I_1", "I_2"}, postIDs(m))
	require.False(t, m.Loading())
	require.Equal(t, "Fetch 2 more posts", m.LoadMoreLabel())

	p, ok := m.Post("I_2")
	require.True(t, ok)
	require.Equal(t, "World", p.Title)
	_, ok = m.Post("missing")
	require.False(t, ok)
}

func TestCacheMissFallsThroughToNetwork(t *testing.T) {
	f := &fakeFetcher{repo: testRepo()}
	db := openDB(t)
	m := newModel(t, f, db)

	m, next := run(t, m, m.Init())
	require.NotNil(t, next, "a miss chains the network fetch")
	require.Zero(t, f.fetchCalls())
	require.Empty(t, m.Posts())

	m, _ = run(t, m, next)
	require.Equal(t, 1, f.fetchCalls())
	require.Equal(t, []string{"I_1", "I_2"}, postIDs(m))

	// The network result was stored, so a second list reads it fresh.
	m2 := newModel(t, f, db)
	m2, next = run(t, m2, m2.Init())
	require.Nil(t, next)
	require.Equal(t, 1, f.fetchCalls())
	require.Equal(t, []string{"I_1", "I_2"}, postIDs(m2))
}

func TestStaleResultDropped(t *testing.T) {
	f := &fakeFetcher{repo: testRepo()}
	m := newModel(t, f, nil)

	first := m.Refetch(true)
	second := m.Refetch(true)

	m, _ = m.Update(first())
	require.Empty(t, m.Posts())
	require.True(t, m.Loading())

	m, _ = m.Update(second())
	require.Len(t, m.Posts(), 2)
}

func TestFetchError(t *testing.T) {
	f := &fakeFetcher{err: errors.New("connection refused")}
	m := newModel(t, f, nil)

	m, _ = run(t, m, m.Init())
	require.True(t, m.HasError())
	require.Contains(t, m.View(), "Error in Posts_Query")
	require.Contains(t, m.View(), "connection refused")

	f.mu.Lock()
	f.err = nil
	f.repo = testRepo()
	f.mu.Unlock()

	m, _ = run(t, m, m.Refetch(true))
	require.False(t, m.HasError())
	require.Len(t, m.Posts(), 2)
}

func TestLoadMoreKey(t *testing.T) {
	f := &fakeFetcher{repo: testRepo()}
	m := newModel(t, f, nil)
	m, _ = run(t, m, m.Init())

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")})
	require.NotNil(t, cmd)
	require.Equal(t, "Loading more posts...", m.LoadMoreLabel())

	// A second press while loading does nothing.
	_, again := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")})
	require.Nil(t, again)

	m, _ = m.Update(cmd())
	require.Equal(t, []string{"I_1", "I_2", "c2-0", "c2-1"}, postIDs(m))
	require.Equal(t, "All posts have been fetched", m.LoadMoreLabel())

	_, none := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")})
	require.Nil(t, none)
	require.Equal(t, 1, f.pageCalls)
}

func TestEnterOpensPost(t *testing.T) {
	f := &fakeFetcher{repo: testRepo()}
	m := newModel(t, f, nil)
	m, _ = run(t, m, m.Init())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	msg, ok := cmd().(messages.OpenPostMsg)
	require.True(t, ok)
	require.Equal(t, "I_1", msg.Post.ID)
}

func TestSetTokenRefetches(t *testing.T) {
	f := &fakeFetcher{repo: testRepo()}
	m := newModel(t, f, nil)
	require.Nil(t, m.SetToken(""))

	cmd := m.SetToken("ghp_new")
	require.NotNil(t, cmd)
	m, _ = m.Update(cmd())
	require.Equal(t, 1, f.fetchCalls())
	require.Nil(t, m.SetToken("ghp_new"))
}

func TestRefetchUsesCommittedVariables(t *testing.T) {
	f := &fakeFetcher{repo: testRepo()}
	vars := feed.Variables{"owner": "onegraph", "name": "essay.dev"}
	binder := feed.NewBinder(vars, vars)
	m := New(config.Default(), f, nil, binder, "", zerolog.Nop())

	binder.Update(feed.ParsePath("owner"), nil)("someone")
	m, _ = run(t, m, m.Refetch(true))
	require.Equal(t, "onegraph", f.lastVars["owner"], "pending edits are not used")

	binder.Commit()
	m, _ = run(t, m, m.Refetch(true))
	if diff := cmp.Diff(feed.Variables{"owner": "someone", "name": "essay.dev"}, f.lastVars); diff != "" {
		t.Errorf("vars mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, m.Posts(), 2)
}

func TestRefetchResetsPager(t *testing.T) {
	f := &fakeFetcher{repo: testRepo()}
	vars := feed.Variables{"owner": "onegraph", "name": "essay.dev"}
	binder := feed.NewBinder(vars, vars)
	m := New(config.Default(), f, nil, binder, "", zerolog.Nop())
	m, _ = run(t, m, m.Init())

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")})
	m, _ = m.Update(cmd())
	require.Len(t, m.Posts(), 4)
	pager := m.pager

	// Same repository and variables: the pager is reset to the new first page.
	m, _ = run(t, m, m.Refetch(true))
	require.Same(t, pager, m.pager)
	require.Equal(t, []string{"I_1", "I_2"}, postIDs(m))
	require.True(t, m.pager.HasMore())

	// Different variables page through a new pager.
	binder.Update(feed.ParsePath("createdBy"), nil)("sgrove")
	binder.Commit()
	m, _ = run(t, m, m.Refetch(true))
	require.NotSame(t, pager, m.pager)
	require.Equal(t, []string{"I_1", "I_2"}, postIDs(m))
}
