package ui

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/fragmede/essay/internal/api"
	"github.com/fragmede/essay/internal/auth"
	"github.com/fragmede/essay/internal/cache"
	"github.com/fragmede/essay/internal/clock"
	"github.com/fragmede/essay/internal/config"
	"github.com/fragmede/essay/internal/feed"
	"github.com/fragmede/essay/internal/ui/messages"
)

type fakeClient struct {
	mu   sync.Mutex
	repo *api.Repository
	err  error
	vars []feed.Variables
}

func (f *fakeClient) FetchPosts(_ context.Context, vars feed.Variables, _, _ int) (*api.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vars = append(f.vars, vars)
	return f.repo, f.err
}

func (f *fakeClient) PostsPager(string, feed.Variables, int) feed.PageFunc[api.Post] {
	return func(context.Context, int, string) (feed.Connection[api.Post], error) {
		return feed.Connection[api.Post]{}, nil
	}
}

func (f *fakeClient) CommentsPager(string) feed.PageFunc[api.Comment] {
	return func(context.Context, int, string) (feed.Connection[api.Comment], error) {
		return feed.Connection[api.Comment]{}, nil
	}
}

func (f *fakeClient) AddComment(_ context.Context, subjectID, body string) (*api.Comment, error) {
	return &api.Comment{ID: "C_mine", BodyHTML: "<p>" + body + "</p>"}, nil
}

func (f *fakeClient) Endpoint() string { return "https://api.github.com/graphql" }

type fakeSub struct {
	mu   sync.Mutex
	h    feed.Handlers[api.Comment]
	vars feed.Variables
}

func (f *fakeSub) Subscribe(_ context.Context, vars feed.Variables, h feed.Handlers[api.Comment]) (feed.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.h = h
	f.vars = vars
	return nopSub{}, nil
}

func (f *fakeSub) handlers() feed.Handlers[api.Comment] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.h
}

type nopSub struct{}

func (nopSub) Close() error { return nil }

type env struct {
	t      *testing.T
	app    *App
	client *fakeClient
	sub    *fakeSub
	db     *cache.DB
	clock  *clock.FakeClock
}

func testRepo() *api.Repository {
	return &api.Repository{
		ID: "R_1",
		Posts: feed.Connection[api.Post]{
			Edges: []feed.Edge[api.Post]{
				{Node: api.Post{ID: "I_1", Number: 1, Title: "Hello essay", Author: &api.Actor{Login: "alice"}}, Cursor: "c1"},
			},
		},
	}
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	db, err := cache.Open(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.SessionPath = filepath.Join(dir, "session.json")
	cfg.Query.Owner = "onegraph"
	cfg.Query.Name = "essay.dev"
	cfg.Subscription.RepoOwner = "onegraph"
	cfg.Subscription.RepoName = "essay.dev"

	e := &env{
		t:      t,
		client: &fakeClient{repo: testRepo()},
		sub:    &fakeSub{},
		db:     db,
		clock:  clock.Fake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	e.app = NewApp(context.Background(), Options{
		Config:     cfg,
		Client:     e.client,
		Cache:      db,
		Session:    auth.NewSession(),
		Subscriber: e.sub,
		Clock:      e.clock,
		Logger:     zerolog.Nop(),
	})
	e.app.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	t.Cleanup(e.app.Close)
	return e
}

// send runs msg through the app and then the commands it returns, breadth
// first. Timer commands such as the textinput cursor blink never settle
// within cmdTimeout and are dropped, as are their messages.
func (e *env) send(msg tea.Msg) {
	queue := []tea.Msg{msg}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > maxSteps {
			e.t.Fatalf("message loop did not settle after %d steps", maxSteps)
		}
		m := queue[0]
		queue = queue[1:]
		_, cmd := e.app.Update(m)
		queue = append(queue, run(cmd)...)
	}
}

const (
	cmdTimeout = 300 * time.Millisecond
	maxSteps   = 100
)

func run(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()
	var msg tea.Msg
	select {
	case msg = <-done:
	case <-time.After(cmdTimeout):
		return nil
	}
	switch msg := msg.(type) {
	case nil, cursor.BlinkMsg:
		return nil
	case tea.BatchMsg:
		var out []tea.Msg
		for _, c := range msg {
			out = append(out, run(c)...)
		}
		return out
	default:
		return []tea.Msg{msg}
	}
}

func (e *env) syncLive() {
	e.app.Update(messages.SessionChangedMsg{State: e.app.Comments().State()})
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestInitLoadsPostsAndStartsSubscription(t *testing.T) {
	e := newEnv(t)
	for _, msg := range run(e.app.Init()) {
		e.send(msg)
	}

	require.Contains(t, e.app.View(), "Hello essay")
	require.Equal(t, "onegraph", e.sub.vars["repoOwner"])
	require.Equal(t, feed.StatusActive, e.app.Comments().State().Status)
	require.NotEmpty(t, e.client.vars)
	if diff := cmp.Diff(feed.Variables{"owner": "onegraph", "name": "essay.dev"}, e.client.vars[0]); diff != "" {
		t.Errorf("query vars (-want +got):\n%s", diff)
	}
}

func TestLiveCommentNotifies(t *testing.T) {
	e := newEnv(t)
	run(e.app.startLive())

	c := api.Comment{
		ID:        "C_1",
		BodyHTML:  "<p>Great post</p>",
		CreatedAt: e.clock.Now(),
		Author:    &api.Actor{Login: "bob"},
		Issue:     &api.IssueRef{ID: "I_1", Title: "Hello essay"},
	}
	e.sub.handlers().OnNext(c)
	e.syncLive()

	require.Equal(t, 1, e.db.UnreadNotificationCount())
	require.Contains(t, e.app.View(), "New comment on your post!")

	// The same delivery seen twice is recorded once.
	e.syncLive()
	require.Equal(t, 1, e.db.UnreadNotificationCount())

	e.clock.Advance(e.app.cfg.ToastDelay)
	e.syncLive()
	require.False(t, e.app.Comments().State().Transient)
	require.NotContains(t, e.app.View(), "New comment on your post!")

	list, err := e.db.ListNotifications(10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Hello essay", list[0].IssueTitle)
	require.Equal(t, "Great post", list[0].BodyPreview)
}

func TestLiveCommentPushedIntoOpenPost(t *testing.T) {
	e := newEnv(t)
	run(e.app.startLive())
	e.send(messages.OpenPostMsg{Post: testRepo().Posts.Edges[0].Node})
	require.Equal(t, ViewPost, e.app.ActiveView())

	e.sub.handlers().OnNext(api.Comment{
		ID:       "C_live",
		BodyHTML: "<p>streamed in</p>",
		Author:   &api.Actor{Login: "carol"},
		Issue:    &api.IssueRef{ID: "I_1"},
	})
	e.syncLive()
	require.Contains(t, e.app.View(), "streamed in")
}

func TestMissingAuthShowsLoginAction(t *testing.T) {
	e := newEnv(t)
	run(e.app.startLive())

	e.sub.handlers().OnError(&api.TransportError{
		Op:     "CommentNotification",
		Errors: gqlerror.List{{Message: "Missing auth for GitHub"}},
	})
	e.syncLive()

	st := e.app.Comments().State()
	require.Equal(t, feed.StatusNeedsLogin, st.Status)
	require.Equal(t, "github", st.NeedsLogin)

	out := e.app.View()
	require.Contains(t, out, "Error in "+SubscriptionOp)
	require.Contains(t, out, "L: Log in to github")

	e.send(keyMsg("L"))
	require.Equal(t, ViewLogin, e.app.ActiveView())
	require.Contains(t, e.app.View(), "subscription needs this login")

	e.send(tea.KeyMsg{Type: tea.KeyEsc})
	require.Equal(t, ViewPosts, e.app.ActiveView())
}

func TestSubscriptionErrorOffersRestart(t *testing.T) {
	e := newEnv(t)
	run(e.app.startLive())

	e.sub.handlers().OnError(errors.New("socket closed"))
	e.syncLive()
	require.Contains(t, e.app.View(), "S: Restart Subscription:  "+SubscriptionOp)

	e.send(keyMsg("S"))
	e.syncLive()
	st := e.app.Comments().State()
	require.Equal(t, feed.StatusActive, st.Status)
	require.NoError(t, st.LastError)
	require.NotContains(t, e.app.View(), "Error in "+SubscriptionOp)
}

func TestSubscriptionFormRestartsWithNewVariables(t *testing.T) {
	e := newEnv(t)
	run(e.app.startLive())

	e.send(keyMsg("s"))
	require.Equal(t, ViewSubscriptionForm, e.app.ActiveView())
	e.send(tea.KeyMsg{Type: tea.KeyTab})
	e.send(keyMsg("-next"))
	e.send(tea.KeyMsg{Type: tea.KeyEnter})

	require.Equal(t, ViewPosts, e.app.ActiveView())
	if diff := cmp.Diff(feed.Variables{"repoOwner": "onegraph", "repoName": "essay.dev-next"}, e.sub.vars); diff != "" {
		t.Errorf("subscription vars (-want +got):\n%s", diff)
	}
}

func TestQueryFormRefetches(t *testing.T) {
	e := newEnv(t)
	for _, msg := range run(e.app.Init()) {
		e.send(msg)
	}

	e.send(keyMsg("f"))
	require.Equal(t, ViewQueryForm, e.app.ActiveView())
	e.send(keyMsg("x"))
	e.send(tea.KeyMsg{Type: tea.KeyEnter})

	require.Equal(t, ViewPosts, e.app.ActiveView())
	last := e.client.vars[len(e.client.vars)-1]
	if diff := cmp.Diff(feed.Variables{"owner": "onegraphx", "name": "essay.dev"}, last); diff != "" {
		t.Errorf("submitted vars (-want +got):\n%s", diff)
	}
	require.Equal(t, e.app.queryBinder.Committed(), last)
}

func TestSendDropsCursorBlink(t *testing.T) {
	e := newEnv(t)
	e.send(keyMsg("f"))
	require.Equal(t, ViewQueryForm, e.app.ActiveView())

	start := time.Now()
	e.send(cursor.BlinkMsg{})
	e.send(keyMsg("y"))
	require.Less(t, time.Since(start), 5*time.Second)
	v, _ := e.app.queryBinder.Get(feed.Path{"owner"})
	require.Equal(t, "onegraphy", v)
}

func TestCrashBoundaryRetries(t *testing.T) {
	e := newEnv(t)
	// A nil repository with no error makes the posts list panic.
	e.client.repo = nil
	for _, msg := range run(e.app.Init()) {
		e.send(msg)
	}
	require.Contains(t, e.app.View(), "Something went wrong")

	// Keys other than retry and quit are ignored.
	e.send(keyMsg("n"))
	require.Equal(t, ViewPosts, e.app.ActiveView())

	require.NoError(t, e.app.queryBinder.Set(feed.Path{"createdBy"}, "bob"))
	e.client.repo = testRepo()
	e.send(keyMsg("R"))

	require.NotContains(t, e.app.View(), "Something went wrong")
	require.Contains(t, e.app.View(), "Hello essay")
	last := e.client.vars[len(e.client.vars)-1]
	if diff := cmp.Diff(feed.Variables{"owner": "onegraph", "name": "essay.dev", "createdBy": "bob"}, last); diff != "" {
		t.Errorf("retry vars (-want +got):\n%s", diff)
	}
}

func TestReplyNeedsLogin(t *testing.T) {
	e := newEnv(t)
	e.send(messages.OpenReplyMsg{SubjectID: "I_1", Title: "Hello essay"})
	require.Equal(t, ViewLogin, e.app.ActiveView())
	require.Contains(t, e.app.View(), "Log in to github")
}

func TestNotificationsView(t *testing.T) {
	e := newEnv(t)
	for _, msg := range run(e.app.Init()) {
		e.send(msg)
	}
	_, err := e.db.AddNotification(cache.Notification{
		CommentID: "C_1", IssueID: "I_1", IssueTitle: "Hello essay", AuthorLogin: "bob", CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	e.send(keyMsg("n"))
	require.Equal(t, ViewNotifications, e.app.ActiveView())
	require.Contains(t, e.app.View(), "commented on Hello essay")

	e.send(tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, ViewPost, e.app.ActiveView())
	require.Zero(t, e.db.UnreadNotificationCount())
}
