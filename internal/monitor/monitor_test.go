package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fragmede/essay/internal/api"
	"github.com/fragmede/essay/internal/cache"
	"github.com/fragmede/essay/internal/clock"
	"github.com/fragmede/essay/internal/feed"
)

type fakeSource struct {
	mu         sync.Mutex
	issues     []api.IssueRef
	comments   map[string][]api.Comment
	issuesErr  error
	batchCalls int
}

func (f *fakeSource) RecentIssues(ctx context.Context, owner, name string, count int) ([]api.IssueRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.issuesErr != nil {
		return nil, f.issuesErr
	}
	return append([]api.IssueRef(nil), f.issues...), nil
}

func (f *fakeSource) BatchLatestComments(ctx context.Context, ids []string, count int) ([][]api.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	out := make([][]api.Comment, len(ids))
	for i, id := range ids {
		out[i] = append([]api.Comment(nil), f.comments[id]...)
	}
	return out, nil
}

func (f *fakeSource) add(issueID string, c api.Comment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[issueID] = append(f.comments[issueID], c)
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batchCalls
}

type sink struct {
	mu       sync.Mutex
	comments []api.Comment
	errs     []error
}

func (s *sink) handlers() feed.Handlers[api.Comment] {
	return feed.Handlers[api.Comment]{
		OnNext: func(c api.Comment) {
			s.mu.Lock()
			s.comments = append(s.comments, c)
			s.mu.Unlock()
		},
		OnError: func(err error) {
			s.mu.Lock()
			s.errs = append(s.errs, err)
			s.mu.Unlock()
		},
	}
}

func (s *sink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.comments {
		out = append(out, c.ID)
	}
	return out
}

func (s *sink) errCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs)
}

var (
	start = time.Date(2020, 5, 1, 12, 0, 0, 0, time.UTC)
	vars  = feed.Variables{"repoOwner": "onegraph", "repoName": "essay.dev"}
)

func setup(t *testing.T) (*fakeSource, *cache.DB, *clock.FakeClock, *Poller) {
	t.Helper()
	db, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	src := &fakeSource{
		issues: []api.IssueRef{{ID: "I_1", Number: 1, Title: "Hello"}},
		comments: map[string][]api.Comment{
			"I_1": {{ID: "C_1", BodyHTML: "<p>old</p>", CreatedAt: start}},
		},
	}
	clk := clock.Fake(start)
	p := New(src, db, Options{Interval: time.Minute, Clock: clk, Logger: zerolog.Nop()})
	return src, db, clk, p
}

func TestFirstPollOnlySeeds(t *testing.T) {
	src, db, clk, p := setup(t)
	out := &sink{}

	sub, err := p.Subscribe(context.Background(), vars, out.handlers())
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })
	require.Eventually(t, func() bool { return db.SeenCount() == 1 }, time.Second, 5*time.Millisecond)
	require.Empty(t, out.ids())

	src.add("I_1", api.Comment{ID: "C_3", BodyHTML: "<p>later</p>", CreatedAt: start.Add(2 * time.Minute)})
	src.add("I_1", api.Comment{ID: "C_2", BodyHTML: "<p>New <em>reply</em></p>", CreatedAt: start.Add(time.Minute)})
	clk.Advance(time.Minute)

	require.Eventually(t, func() bool { return len(out.ids()) == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"C_2", "C_3"}, out.ids())

	out.mu.Lock()
	defer out.mu.Unlock()
	require.Equal(t, "Hello", out.comments[0].Issue.Title)
	require.Equal(t, 3, db.SeenCount())
}

func TestCommentsAreReportedOnce(t *testing.T) {
	src, db, clk, p := setup(t)
	out := &sink{}
	sub, err := p.Subscribe(context.Background(), vars, out.handlers())
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })
	require.Eventually(t, func() bool { return db.SeenCount() == 1 }, time.Second, 5*time.Millisecond)

	src.add("I_1", api.Comment{ID: "C_2", CreatedAt: start})
	clk.Advance(time.Minute)
	require.Eventually(t, func() bool { return src.calls() == 2 && len(out.ids()) == 1 }, time.Second, 5*time.Millisecond)

	clk.Advance(time.Minute)
	require.Eventually(t, func() bool { return src.calls() == 3 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"C_2"}, out.ids())
}

func TestPollErrorIsReported(t *testing.T) {
	src, _, _, p := setup(t)
	src.issuesErr = errors.New("rate limited")
	out := &sink{}

	sub, err := p.Subscribe(context.Background(), vars, out.handlers())
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })
	require.Eventually(t, func() bool { return out.errCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSubscribeNeedsRepository(t *testing.T) {
	_, _, _, p := setup(t)
	_, err := p.Subscribe(context.Background(), feed.Variables{"repoOwner": "onegraph"}, (&sink{}).handlers())
	require.Error(t, err)
}

func TestCloseStopsPolling(t *testing.T) {
	src, db, clk, p := setup(t)
	out := &sink{}
	sub, err := p.Subscribe(context.Background(), vars, out.handlers())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return db.SeenCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	require.Eventually(t, func() bool { return clk.Pending() == 0 }, time.Second, 5*time.Millisecond)

	clk.Advance(time.Minute)
	require.Equal(t, 1, src.calls())
}

func TestPollerDrivesSession(t *testing.T) {
	src, db, clk, p := setup(t)
	s := feed.NewSession[api.Comment](p, feed.WithClock[api.Comment](clk))
	s.Start(context.Background(), vars)
	t.Cleanup(s.Stop)
	require.Eventually(t, func() bool { return db.SeenCount() == 1 }, time.Second, 5*time.Millisecond)

	src.add("I_1", api.Comment{ID: "C_2", CreatedAt: start})
	clk.Advance(time.Minute)
	require.Eventually(t, func() bool {
		st := s.State()
		return st.LastResult != nil && st.LastResult.ID == "C_2" && st.Transient
	}, time.Second, 5*time.Millisecond)
}
