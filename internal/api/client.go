package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Khan/genqlient/graphql"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fragmede/essay/internal/auth"
	"github.com/fragmede/essay/internal/feed"
)

const (
	defaultTimeout = 10 * time.Second
	maxConcurrent  = 4
	userAgent      = "essay/1.0"
)

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	CurrentAccessToken() string
}

type Options struct {
	Endpoint          string
	Timeout           time.Duration
	RequestsPerSecond float64
	Tokens            TokenSource
	Logger            zerolog.Logger
	// HTTPClient overrides the client used for requests. Its transport is
	// kept; auth headers are added per request.
	HTTPClient *http.Client
}

// Client runs the GraphQL operations of the app against one endpoint.
type Client struct {
	gql      graphql.Client
	limiter  *rate.Limiter
	log      zerolog.Logger
	endpoint string
}

// NewClient creates a GraphQL client for opts.Endpoint.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		burst = int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &Client{
		gql:      graphql.NewClient(opts.Endpoint, &authDoer{http: httpClient, tokens: opts.Tokens}),
		limiter:  rate.NewLimiter(limit, burst),
		log:      opts.Logger,
		endpoint: opts.Endpoint,
	}
}

// Endpoint returns the URL requests are sent to.
func (c *Client) Endpoint() string { return c.endpoint }

// authDoer adds the bearer token and turns non-200 responses into a
// *StatusError before genqlient sees them.
type authDoer struct {
	http   *http.Client
	tokens TokenSource
}

func (d *authDoer) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", userAgent)
	if d.tokens != nil {
		if token := d.tokens.CurrentAccessToken(); token != "" {
			req.Header.Set("Authorization", "bearer "+token)
		}
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

// do runs one operation and decodes its data into dst.
func (c *Client) do(ctx context.Context, op, query string, vars map[string]any, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &TransportError{Op: op, Err: err}
	}

	start := time.Now()
	resp := &graphql.Response{Data: dst}
	err := c.gql.MakeRequest(ctx, &graphql.Request{
		OpName:    op,
		Query:     query,
		Variables: vars,
	}, resp)
	c.log.Debug().Str("op", op).Dur("took", time.Since(start)).Err(err).Msg("graphql request")

	if err == nil && len(resp.Errors) == 0 {
		return nil
	}
	errs := resp.Errors
	if len(errs) == 0 {
		var list gqlerror.List
		if errors.As(err, &list) {
			errs = list
		}
	}
	var se *StatusError
	if len(errs) == 0 && errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized {
		errs = missingAuthErrors(auth.ServiceGitHub)
	}
	return &TransportError{Op: op, Errors: errs, Err: err}
}

// PostsVariables merges the page sizes into the committed query
// variables. Blank values are dropped so the document defaults apply.
func PostsVariables(vars feed.Variables, count, commentCount int) map[string]any {
	out := compact(vars)
	if count > 0 {
		out["count"] = count
	}
	if commentCount > 0 {
		out["commentCount"] = commentCount
	}
	return out
}

// FetchPosts runs the posts query and returns the repository id with the
// first page of posts.
func (c *Client) FetchPosts(ctx context.Context, vars feed.Variables, count, commentCount int) (*Repository, error) {
	var data struct {
		Repository *Repository `json:"repository"`
	}
	if err := c.do(ctx, "Posts_Query", postsQuery, PostsVariables(vars, count, commentCount), &data); err != nil {
		return nil, err
	}
	if data.Repository == nil {
		return nil, fmt.Errorf("repository %v/%v: %w", vars["owner"], vars["name"], ErrNotFound)
	}
	return data.Repository, nil
}

// FetchPostsPage pages posts of the repository node repoID after cursor.
func (c *Client) FetchPostsPage(ctx context.Context, repoID string, vars feed.Variables, count, commentCount int, cursor string) (feed.Connection[Post], error) {
	v := PostsVariables(vars, count, commentCount)
	delete(v, "owner")
	delete(v, "name")
	v["id"] = repoID
	if cursor != "" {
		v["cursor"] = cursor
	}
	var data struct {
		Node *Repository `json:"node"`
	}
	if err := c.do(ctx, "Posts_PaginatedQuery", postsPageQuery, v, &data); err != nil {
		return feed.Connection[Post]{}, err
	}
	if data.Node == nil {
		return feed.Connection[Post]{}, fmt.Errorf("repository %s: %w", repoID, ErrNotFound)
	}
	return data.Node.Posts, nil
}

// PostsPager adapts FetchPostsPage to a feed.PageFunc.
func (c *Client) PostsPager(repoID string, vars feed.Variables, commentCount int) feed.PageFunc[Post] {
	vars = vars.Clone()
	return func(ctx context.Context, count int, cursor string) (feed.Connection[Post], error) {
		return c.FetchPostsPage(ctx, repoID, vars, count, commentCount, cursor)
	}
}

// FetchCommentsPage pages the comments of issueID after cursor.
func (c *Client) FetchCommentsPage(ctx context.Context, issueID string, count int, cursor string) (feed.Connection[Comment], error) {
	v := map[string]any{"id": issueID, "count": count}
	if cursor != "" {
		v["cursor"] = cursor
	}
	var data struct {
		Node *struct {
			Comments feed.Connection[Comment] `json:"comments"`
		} `json:"node"`
	}
	if err := c.do(ctx, "Post_PaginatedCommentsQuery", commentsPageQuery, v, &data); err != nil {
		return feed.Connection[Comment]{}, err
	}
	if data.Node == nil {
		return feed.Connection[Comment]{}, fmt.Errorf("issue %s: %w", issueID, ErrNotFound)
	}
	return data.Node.Comments, nil
}

// CommentsPager adapts FetchCommentsPage to a feed.PageFunc.
func (c *Client) CommentsPager(issueID string) feed.PageFunc[Comment] {
	return func(ctx context.Context, count int, cursor string) (feed.Connection[Comment], error) {
		return c.FetchCommentsPage(ctx, issueID, count, cursor)
	}
}

// RecentIssues returns the most recently updated issues of a repository.
func (c *Client) RecentIssues(ctx context.Context, owner, name string, count int) ([]IssueRef, error) {
	var data struct {
		Repository *struct {
			Issues struct {
				Nodes []IssueRef `json:"nodes"`
			} `json:"issues"`
		} `json:"repository"`
	}
	v := map[string]any{"owner": owner, "name": name, "count": count}
	if err := c.do(ctx, "RecentIssues", recentIssuesQuery, v, &data); err != nil {
		return nil, err
	}
	if data.Repository == nil {
		return nil, fmt.Errorf("repository %s/%s: %w", owner, name, ErrNotFound)
	}
	return data.Repository.Issues.Nodes, nil
}

// LatestComments returns up to count of the newest comments on issueID,
// oldest first.
func (c *Client) LatestComments(ctx context.Context, issueID string, count int) ([]Comment, error) {
	var data struct {
		Node *struct {
			Comments struct {
				Nodes []Comment `json:"nodes"`
			} `json:"comments"`
		} `json:"node"`
	}
	v := map[string]any{"id": issueID, "count": count}
	if err := c.do(ctx, "LatestComments", latestCommentsQuery, v, &data); err != nil {
		return nil, err
	}
	if data.Node == nil {
		return nil, fmt.Errorf("issue %s: %w", issueID, ErrNotFound)
	}
	return data.Node.Comments.Nodes, nil
}

// BatchLatestComments fetches the newest comments of several issues
// concurrently. Results follow the order of issueIDs; an issue whose fetch
// failed gets a nil slice. The first error is returned alongside.
func (c *Client) BatchLatestComments(ctx context.Context, issueIDs []string, count int) ([][]Comment, error) {
	results := make([][]Comment, len(issueIDs))
	var mu sync.Mutex
	var firstErr error

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for i, id := range issueIDs {
		g.Go(func() error {
			comments, err := c.LatestComments(ctx, id, count)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Non-fatal: one issue failing should not hide the others.
				if firstErr == nil {
					firstErr = err
				}
				return nil
			}
			results[i] = comments
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, firstErr
}

// Viewer returns the login the current token belongs to.
func (c *Client) Viewer(ctx context.Context) (string, error) {
	var data struct {
		Viewer struct {
			Login string `json:"login"`
		} `json:"viewer"`
	}
	if err := c.do(ctx, "Viewer", viewerQuery, nil, &data); err != nil {
		return "", err
	}
	return data.Viewer.Login, nil
}

// AddComment posts body as a comment on subjectID and returns the created
// comment.
func (c *Client) AddComment(ctx context.Context, subjectID, body string) (*Comment, error) {
	mutationID := uuid.NewString()
	v := map[string]any{
		"input": map[string]any{
			"subjectId":        subjectID,
			"body":             body,
			"clientMutationId": mutationID,
		},
	}
	var data struct {
		AddComment *struct {
			ClientMutationID string `json:"clientMutationId"`
			CommentEdge      *struct {
				Node *Comment `json:"node"`
			} `json:"commentEdge"`
		} `json:"addComment"`
	}
	if err := c.do(ctx, "AddComment", addCommentMutation, v, &data); err != nil {
		return nil, err
	}
	if data.AddComment == nil || data.AddComment.CommentEdge == nil || data.AddComment.CommentEdge.Node == nil {
		return nil, fmt.Errorf("add comment to %s: empty payload", subjectID)
	}
	if got := data.AddComment.ClientMutationID; got != "" && got != mutationID {
		c.log.Warn().Str("sent", mutationID).Str("got", got).Msg("clientMutationId mismatch")
	}
	return data.AddComment.CommentEdge.Node, nil
}

// compact copies vars without blank strings and nil entries. Slices that
// end up empty are dropped.
func compact(vars feed.Variables) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars.Clone() {
		if cv, ok := compactValue(v); ok {
			out[k] = cv
		}
	}
	return out
}

func compactValue(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case string:
		return t, t != ""
	case []any:
		var out []any
		for _, e := range t {
			if ce, ok := compactValue(e); ok {
				out = append(out, ce)
			}
		}
		return out, len(out) > 0
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			if ce, ok := compactValue(e); ok {
				out[k] = ce
			}
		}
		return out, len(out) > 0
	default:
		return v, true
	}
}
