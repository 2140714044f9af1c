// Package monitor polls a repository for new issue comments and reports
// them as a comment subscription, for endpoints that have no websocket
// transport.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fragmede/essay/internal/api"
	"github.com/fragmede/essay/internal/cache"
	"github.com/fragmede/essay/internal/clock"
	"github.com/fragmede/essay/internal/feed"
)

// Source is the part of api.Client the poller reads from.
type Source interface {
	RecentIssues(ctx context.Context, owner, name string, count int) ([]api.IssueRef, error)
	BatchLatestComments(ctx context.Context, issueIDs []string, count int) ([][]api.Comment, error)
}

type Options struct {
	Interval     time.Duration
	IssueCount   int
	CommentCount int
	Clock        clock.Clock
	Logger       zerolog.Logger
}

// Poller implements feed.Subscriber[api.Comment] by polling.
type Poller struct {
	src  Source
	db   *cache.DB
	opts Options
}

// New creates a poller. Comments it has seen are recorded in db so a
// restart does not report them again.
func New(src Source, db *cache.DB, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.IssueCount <= 0 {
		opts.IssueCount = 10
	}
	if opts.CommentCount <= 0 {
		opts.CommentCount = 10
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Poller{src: src, db: db, opts: opts}
}

// Subscribe starts polling the repository named by the repoOwner and
// repoName variables. The first poll records what is already there
// without reporting it.
func (p *Poller) Subscribe(ctx context.Context, vars feed.Variables, h feed.Handlers[api.Comment]) (feed.Subscription, error) {
	owner, _ := vars["repoOwner"].(string)
	name, _ := vars["repoName"].(string)
	if owner == "" || name == "" {
		return nil, fmt.Errorf("comment subscription needs repoOwner and repoName, got %q/%q", owner, name)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &pollSubscription{
		poller: p,
		owner:  owner,
		name:   name,
		h:      h,
		cancel: cancel,
		stopCh: make(chan struct{}),
		log:    p.opts.Logger.With().Str("repo", owner+"/"+name).Logger(),
	}
	ticker := p.opts.Clock.NewTicker(p.opts.Interval)
	go s.loop(ctx, ticker)
	return s, nil
}

type pollSubscription struct {
	poller *Poller
	owner  string
	name   string
	h      feed.Handlers[api.Comment]
	cancel context.CancelFunc
	stopCh chan struct{}
	once   sync.Once
	log    zerolog.Logger
}

// Close stops polling. Handlers are not called after Close returns except
// for a poll already in flight, whose results are dropped by the session.
func (s *pollSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		close(s.stopCh)
	})
	return nil
}

func (s *pollSubscription) loop(ctx context.Context, ticker clock.Ticker) {
	defer ticker.Stop()

	s.poll(ctx, false)
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.poll(ctx, true)
		}
	}
}

func (s *pollSubscription) stopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// poll fetches the newest comments of recently updated issues and reports
// the ones not seen before, oldest first. With report false it only
// records them.
func (s *pollSubscription) poll(ctx context.Context, report bool) {
	opts := s.poller.opts
	issues, err := s.poller.src.RecentIssues(ctx, s.owner, s.name, opts.IssueCount)
	if err != nil {
		s.fail(err)
		return
	}
	if len(issues) == 0 {
		return
	}

	ids := make([]string, len(issues))
	for i, issue := range issues {
		ids[i] = issue.ID
	}
	batches, err := s.poller.src.BatchLatestComments(ctx, ids, opts.CommentCount)
	if err != nil {
		if allNil(batches) {
			s.fail(err)
			return
		}
		s.log.Warn().Err(err).Msg("some issues failed to load comments")
	}

	var fresh []api.Comment
	var commentIDs []string
	for i, comments := range batches {
		for _, c := range comments {
			if c.ID == "" {
				continue
			}
			if c.Issue == nil {
				c.Issue = &issues[i]
			}
			fresh = append(fresh, c)
			commentIDs = append(commentIDs, c.ID)
		}
	}

	seen, err := s.poller.db.Seen(commentIDs)
	if err != nil {
		s.fail(err)
		return
	}
	var unseen []api.Comment
	var marks []cache.SeenComment
	for _, c := range fresh {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		unseen = append(unseen, c)
		marks = append(marks, cache.SeenComment{CommentID: c.ID, IssueID: c.IssueID()})
	}
	if err := s.poller.db.MarkSeen(marks); err != nil {
		s.fail(err)
		return
	}
	s.log.Debug().Int("issues", len(issues)).Int("new", len(unseen)).Bool("report", report).Msg("polled comments")
	if !report {
		return
	}

	sort.SliceStable(unseen, func(i, j int) bool {
		return unseen[i].CreatedAt.Before(unseen[j].CreatedAt)
	})
	for _, c := range unseen {
		if s.stopped() {
			return
		}
		s.h.OnNext(c)
	}
}

func (s *pollSubscription) fail(err error) {
	if s.stopped() || errors.Is(err, context.Canceled) {
		return
	}
	s.h.OnError(err)
}

func allNil(batches [][]api.Comment) bool {
	for _, b := range batches {
		if b != nil {
			return false
		}
	}
	return true
}
