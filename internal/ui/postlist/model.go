package postlist

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/fragmede/essay/internal/api"
	"github.com/fragmede/essay/internal/cache"
	"github.com/fragmede/essay/internal/config"
	"github.com/fragmede/essay/internal/feed"
	"github.com/fragmede/essay/internal/ui/common"
	"github.com/fragmede/essay/internal/ui/messages"
)

// OpName names the posts query in errors and cache keys.
const OpName = "Posts_Query"

var errLineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F85149"))

// Fetcher is the part of api.Client the posts list uses.
type Fetcher interface {
	FetchPosts(ctx context.Context, vars feed.Variables, count, commentCount int) (*api.Repository, error)
	PostsPager(repoID string, vars feed.Variables, commentCount int) feed.PageFunc[api.Post]
}

// Model is the posts list view. It runs the posts query with the binder's
// committed variables and pages further posts on demand.
type Model struct {
	list    list.Model
	fetcher Fetcher
	cache   *cache.DB
	cfg     config.Config
	binder  *feed.Binder
	log     zerolog.Logger

	pager       *feed.Paginator[api.Post]
	pagerKey    string
	seq         uint64
	token       string
	loading     bool
	loadingMore bool
	fromCache   bool
	err         error
	width       int
	height      int
}

// New creates a posts list. token is the access token the first fetch
// runs with; a later SetToken with a different token refetches.
func New(cfg config.Config, fetcher Fetcher, db *cache.DB, binder *feed.Binder, token string, log zerolog.Logger) Model {
	l := list.New(nil, Delegate{}, 0, 0)
	l.Title = "Posts"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)

	return Model{
		list:    l,
		fetcher: fetcher,
		cache:   db,
		cfg:     cfg,
		binder:  binder,
		token:   token,
		log:     log,
	}
}

// Init loads the posts, from the cache first when it holds them.
func (m *Model) Init() tea.Cmd {
	return m.Refetch(false)
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.list.SetSize(w, h)
}

// SetToken refetches when the access token changes, since the viewer
// decides what the query may return.
func (m *Model) SetToken(token string) tea.Cmd {
	if token == m.token {
		return nil
	}
	m.token = token
	return m.Refetch(true)
}

// Refetch runs the posts query again with the committed variables. Unless
// forced, a cached result is shown first and a fresh one skips the network.
func (m *Model) Refetch(force bool) tea.Cmd {
	m.seq++
	m.loading = true
	m.loadingMore = false
	m.updateTitle()
	if force || m.cache == nil {
		return m.networkCmd()
	}
	return m.cacheCmd()
}

func (m Model) cacheKey(vars feed.Variables) string {
	return cache.ResultKey(OpName, api.PostsVariables(vars, m.cfg.PageSize, m.cfg.CommentPageSize))
}

func (m Model) cacheCmd() tea.Cmd {
	seq := m.seq
	db := m.cache
	key := m.cacheKey(m.binder.Committed())
	ttl := m.cfg.ResultTTL
	log := m.log
	return func() tea.Msg {
		var repo api.Repository
		found, fresh, err := db.GetResult(key, ttl, &repo)
		if err != nil {
			log.Warn().Err(err).Msg("reading cached posts")
		}
		if !found || err != nil {
			return messages.PostsLoadedMsg{Seq: seq, FromCache: true}
		}
		return messages.PostsLoadedMsg{Seq: seq, Repo: &repo, FromCache: true, Fresh: fresh}
	}
}

func (m Model) networkCmd() tea.Cmd {
	seq := m.seq
	fetcher := m.fetcher
	db := m.cache
	vars := m.binder.Committed()
	key := m.cacheKey(vars)
	count, commentCount := m.cfg.PageSize, m.cfg.CommentPageSize
	log := m.log
	return func() tea.Msg {
		repo, err := fetcher.FetchPosts(context.Background(), vars, count, commentCount)
		if err != nil {
			return messages.PostsLoadedMsg{Seq: seq, Err: err}
		}
		if db != nil {
			if err := db.PutResult(key, repo); err != nil {
				log.Warn().Err(err).Msg("caching posts")
			}
		}
		return messages.PostsLoadedMsg{Seq: seq, Repo: repo}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case messages.PostsLoadedMsg:
		if msg.Seq != m.seq {
			return m, nil
		}
		if msg.FromCache {
			if msg.Repo != nil {
				m.setRepo(msg.Repo)
				m.fromCache = true
			}
			if msg.Repo == nil || !msg.Fresh {
				m.updateTitle()
				return m, m.networkCmd()
			}
			m.loading = false
			m.updateTitle()
			return m, nil
		}
		m.loading = false
		if msg.Err != nil {
			m.err = msg.Err
			m.log.Warn().Err(msg.Err).Msg("posts query failed")
			m.updateTitle()
			return m, nil
		}
		m.err = nil
		m.fromCache = false
		m.setRepo(msg.Repo)
		m.updateTitle()
		return m, nil

	case messages.PostsPageMsg:
		if msg.Seq != m.seq {
			return m, nil
		}
		m.loadingMore = false
		m.refreshItems()
		if msg.Err != nil {
			return m, func() tea.Msg {
				return messages.StatusMsg{Text: "Loading more posts failed: " + msg.Err.Error(), IsError: true}
			}
		}
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "enter":
			switch item := m.list.SelectedItem().(type) {
			case PostItem:
				post := item.Post
				return m, func() tea.Msg { return messages.OpenPostMsg{Post: post} }
			case footerItem:
				cmd := m.loadMore()
				return m, cmd
			}
		case "m":
			cmd := m.loadMore()
			return m, cmd
		case "r", "ctrl+r":
			cmd := m.Refetch(true)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// loadMore fetches the next LoadMoreCount posts. It is a no-op while a
// page is loading or when every post is fetched.
func (m *Model) loadMore() tea.Cmd {
	if m.pager == nil || m.loadingMore || !m.pager.HasMore() || m.pager.IsLoading() {
		return nil
	}
	m.loadingMore = true
	m.refreshItems()

	pager := m.pager
	seq := m.seq
	count := m.cfg.LoadMoreCount
	return func() tea.Msg {
		var result error
		if !pager.LoadMore(context.Background(), count, func(err error) { result = err }) {
			return messages.PostsPageMsg{Seq: seq}
		}
		return messages.PostsPageMsg{Seq: seq, Err: result}
	}
}

// setRepo shows a first page of posts. A refetch of the same repository
// and variables resets the existing pager, so a page still loading for the
// old list is dropped.
func (m *Model) setRepo(repo *api.Repository) {
	vars := m.binder.Committed()
	key := repo.ID + "\x00" + m.cacheKey(vars)
	if m.pager != nil && key == m.pagerKey {
		m.pager.Reset(repo.Posts)
	} else {
		m.pager = feed.NewPaginator(repo.Posts, m.fetcher.PostsPager(repo.ID, vars, m.cfg.CommentPageSize))
		m.pagerKey = key
	}
	m.refreshItems()
}

func (m *Model) refreshItems() {
	if m.pager == nil {
		m.list.SetItems(nil)
		return
	}
	posts := m.pager.Nodes()
	items := make([]list.Item, 0, len(posts)+1)
	for i, p := range posts {
		items = append(items, PostItem{Post: p, Index: i})
	}
	items = append(items, footerItem{label: m.LoadMoreLabel()})
	m.list.SetItems(items)
}

func (m *Model) updateTitle() {
	title := "Posts"
	vars := m.binder.Committed()
	owner, _ := vars["owner"].(string)
	name, _ := vars["name"].(string)
	if owner != "" && name != "" {
		title = fmt.Sprintf("Posts in %s/%s", owner, name)
	}
	switch {
	case m.loading && m.pager == nil:
		title += " (loading...)"
	case m.loading:
		title += " (refreshing...)"
	case m.fromCache:
		title += " (cached)"
	}
	m.list.Title = title
}

// LoadMoreLabel is the text of the footer row.
func (m Model) LoadMoreLabel() string {
	loading := m.loadingMore || (m.pager != nil && m.pager.IsLoading())
	hasMore := m.pager != nil && m.pager.HasMore()
	return common.LoadMoreLabel(loading, hasMore, "posts", m.cfg.LoadMoreCount)
}

// View renders the posts list, or the error box when the query failed
// before anything was shown.
func (m Model) View() string {
	if m.err != nil && m.pager == nil {
		return common.ErrorBox(OpName, m.err, m.cfg.Endpoint, "r: retry  f: edit query", m.width)
	}
	if m.err != nil {
		return lipgloss.JoinVertical(lipgloss.Left,
			m.list.View(),
			errLineStyle.Render("Refresh failed: "+m.err.Error()+" (r: retry)"))
	}
	return m.list.View()
}

// Posts returns the loaded posts in order.
func (m Model) Posts() []api.Post {
	if m.pager == nil {
		return nil
	}
	return m.pager.Nodes()
}

// Post finds a loaded post by id.
func (m Model) Post(id string) (api.Post, bool) {
	for _, p := range m.Posts() {
		if p.ID == id {
			return p, true
		}
	}
	return api.Post{}, false
}

// HasError reports whether the last posts query failed.
func (m Model) HasError() bool { return m.err != nil }

// Loading reports whether the posts query is in flight.
func (m Model) Loading() bool { return m.loading }

// Filtering reports whether the list's filter input has focus.
func (m Model) Filtering() bool { return m.list.FilterState() == list.Filtering }
