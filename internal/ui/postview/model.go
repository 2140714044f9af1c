package postview

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fragmede/essay/internal/api"
	"github.com/fragmede/essay/internal/config"
	"github.com/fragmede/essay/internal/feed"
	"github.com/fragmede/essay/internal/render"
	"github.com/fragmede/essay/internal/ui/common"
	"github.com/fragmede/essay/internal/ui/messages"
)

var (
	commentAuthorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#58A6FF")).Bold(true)
	commentMetaStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8B949E"))
	commentOPStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#000")).Background(lipgloss.Color("#58A6FF")).Bold(true)
	commentNewStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#000")).Background(lipgloss.Color("#3FB950")).Bold(true)
	commentSelStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#30363D"))
	postTitleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Padding(0, 1)
	postMetaStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#8B949E")).Padding(0, 1)
	actionStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#58A6FF")).Underline(true)
	footerStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#8B949E")).Italic(true)
	separatorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#30363D"))
	barStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("#30363D"))
	selectedBarStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#58A6FF"))
)

const scrollStep = 3

// Pager builds the page function for an issue's comments.
type Pager interface {
	CommentsPager(issueID string) feed.PageFunc[api.Comment]
}

type commentOffset struct {
	startLine int
	endLine   int
}

// Model shows one post and its comments. Comments pushed by the live
// stream are listed above the fetched ones.
type Model struct {
	viewport    viewport.Model
	post        api.Post
	comments    *feed.View[api.Comment]
	flat        []FlatComment
	offsets     []commentOffset
	selectedIdx int
	collapse    CollapseState
	fresh       map[string]bool
	cfg         config.Config
	loadingMore bool
	loadErr     error
	now         func() time.Time
	width       int
	height      int
}

// New creates the view for post. Its first page of comments comes with the
// post; further pages are fetched through pager.
func New(post api.Post, cfg config.Config, pager Pager) Model {
	base := feed.NewPaginator(post.Comments, pager.CommentsPager(post.ID))
	m := Model{
		viewport: viewport.New(0, 0),
		post:     post,
		comments: feed.NewView(base, api.CommentKey),
		collapse: make(CollapseState),
		fresh:    make(map[string]bool),
		cfg:      cfg,
		now:      time.Now,
	}
	m.rebuild()
	return m
}

// PostID is the id of the shown post.
func (m Model) PostID() string { return m.post.ID }

func (m Model) Post() api.Post { return m.post }

// SetSize updates viewport dimensions.
func (m *Model) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = w
	m.resizeViewport()
	m.rebuildContent()
}

func (m *Model) resizeViewport() {
	headerLines := strings.Count(m.renderHeader(), "\n") + 1
	m.viewport.Height = m.height - headerLines
	if m.viewport.Height < 1 {
		m.viewport.Height = 1
	}
}

// PushComment adds a streamed comment above the fetched ones and flags it
// as new. It reports false for a comment already shown.
func (m *Model) PushComment(c api.Comment) bool {
	if !m.comments.Push(c) {
		return false
	}
	// Pushed comments are prepended, so a comment without an id is first.
	m.fresh[commentKey(c, 0)] = true
	m.selectedIdx++
	m.rebuild()
	return true
}

// ClearNew drops every new badge, once the stream's transient flag clears.
func (m *Model) ClearNew() {
	if len(m.fresh) == 0 {
		return
	}
	m.fresh = make(map[string]bool)
	m.rebuild()
}

// Comments returns what the view lists: pushed comments then fetched ones.
func (m Model) Comments() []api.Comment {
	return m.comments.Items()
}

// LoadMoreLabel is the text under the comments.
func (m Model) LoadMoreLabel() string {
	base := m.comments.Paginator()
	return common.LoadMoreLabel(m.loadingMore || base.IsLoading(), base.HasMore(), "comments", m.cfg.LoadMoreCount)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case messages.CommentsPageMsg:
		if msg.IssueID != m.post.ID {
			return m, nil
		}
		m.loadingMore = false
		m.loadErr = msg.Err
		m.rebuild()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "j", "down":
			if m.selectedIdx >= 0 && m.selectedIdx < len(m.offsets) {
				off := m.offsets[m.selectedIdx]
				if off.endLine >= m.viewport.YOffset+m.viewport.Height {
					// Long comment: scroll within it first.
					m.viewport.SetYOffset(m.viewport.YOffset + scrollStep)
					return m, nil
				}
			}
			if m.selectedIdx < len(m.flat)-1 {
				m.selectedIdx++
				m.rebuildContent()
				m.scrollToCursor()
			}
			return m, nil
		case "k", "up":
			if m.selectedIdx >= 0 && m.selectedIdx < len(m.offsets) {
				off := m.offsets[m.selectedIdx]
				if off.startLine < m.viewport.YOffset {
					newOff := m.viewport.YOffset - scrollStep
					if newOff < off.startLine {
						newOff = off.startLine
					}
					m.viewport.SetYOffset(newOff)
					return m, nil
				}
			}
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.rebuildContent()
				m.scrollToCursor()
			}
			return m, nil
		case "enter", " ":
			if m.selectedIdx >= 0 && m.selectedIdx < len(m.flat) {
				key := m.flat[m.selectedIdx].Key
				m.collapse[key] = !m.collapse[key]
				m.rebuild()
			}
			return m, nil
		case "z":
			anyExpanded := false
			for _, fc := range m.flat {
				if !fc.IsCollapsed {
					anyExpanded = true
					break
				}
			}
			for _, fc := range m.flat {
				m.collapse[fc.Key] = anyExpanded
			}
			m.rebuild()
			return m, nil
		case "a":
			if idx := FindAuthorIndex(m.flat, m.selectedIdx); idx >= 0 {
				m.selectedIdx = idx
				m.rebuildContent()
				m.scrollToCursor()
			}
			return m, nil
		case "g", "home":
			m.selectedIdx = 0
			m.rebuildContent()
			m.viewport.GotoTop()
			return m, nil
		case "G", "end":
			if len(m.flat) > 0 {
				m.selectedIdx = len(m.flat) - 1
			}
			m.rebuildContent()
			m.viewport.GotoBottom()
			return m, nil
		case "m":
			cmd := m.loadMore()
			return m, cmd
		case "r":
			id, title := m.post.ID, m.post.Title
			return m, func() tea.Msg { return messages.OpenReplyMsg{SubjectID: id, Title: title} }
		case "ctrl+d", "pgdown":
			m.viewport.HalfViewDown()
			return m, nil
		case "ctrl+u", "pgup":
			m.viewport.HalfViewUp()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) loadMore() tea.Cmd {
	base := m.comments.Paginator()
	if m.loadingMore || !base.HasMore() || base.IsLoading() {
		return nil
	}
	m.loadingMore = true
	m.loadErr = nil
	m.rebuildContent()

	issueID := m.post.ID
	count := m.cfg.LoadMoreCount
	return func() tea.Msg {
		var result error
		base.LoadMore(context.Background(), count, func(err error) { result = err })
		return messages.CommentsPageMsg{IssueID: issueID, Err: result}
	}
}

// View renders the post view.
func (m Model) View() string {
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), m.viewport.View())
}

func (m *Model) rebuild() {
	login := ""
	if m.post.Author != nil {
		login = m.post.Author.Login
	}
	m.flat = Flatten(m.comments.Items(), login, m.collapse, m.fresh)
	if m.selectedIdx >= len(m.flat) {
		m.selectedIdx = len(m.flat) - 1
	}
	if m.selectedIdx < 0 {
		m.selectedIdx = 0
	}
	m.rebuildContent()
}

func (m *Model) bodyWidth() int {
	w := m.width - 4
	if w < 20 {
		w = 20
	}
	return w
}

func (m *Model) rebuildContent() {
	var sb strings.Builder
	lineCount := 0
	write := func(s string) {
		sb.WriteString(s)
		sb.WriteString("\n")
		lineCount += strings.Count(s, "\n") + 1
	}

	if body := render.HTMLToTerminal(m.post.BodyHTML, m.bodyWidth()); body != "" {
		for _, line := range strings.Split(body, "\n") {
			write(" " + line)
		}
		write("")
	}
	write(" " + actionStyle.Render("Leave a comment") + commentMetaStyle.Render(" (r)"))
	write("")
	write(postTitleStyle.Render(fmt.Sprintf("Comments on %q", m.post.Title)))
	write("")

	m.offsets = make([]commentOffset, len(m.flat))
	now := m.now()
	for i, fc := range m.flat {
		start := lineCount
		selected := i == m.selectedIdx
		bar := barStyle.Render("│")
		if selected {
			bar = selectedBarStyle.Render("│")
		}

		header := commentAuthorStyle.Render(fc.Comment.Author.Name())
		if ago := render.TimeAgo(fc.Comment.CreatedAt, now); ago != "" {
			header += " " + commentMetaStyle.Render(ago)
		}
		if fc.IsOP {
			header += " " + commentOPStyle.Render(" OP ")
		}
		if fc.IsNew {
			header += " " + commentNewStyle.Render(" new ")
		}
		if fc.IsCollapsed {
			header += " " + commentMetaStyle.Render("[+]")
		}
		headerLine := " " + bar + " " + header
		if selected {
			headerLine = commentSelStyle.Render(headerLine)
		}
		write(headerLine)

		if !fc.IsCollapsed {
			body := render.HTMLToTerminal(fc.Comment.BodyHTML, m.bodyWidth()-3)
			for _, line := range strings.Split(body, "\n") {
				write(" " + bar + " " + line)
			}
		}
		write("")
		m.offsets[i] = commentOffset{startLine: start, endLine: lineCount - 1}
	}

	if len(m.flat) == 0 {
		write(commentMetaStyle.Render("  No comments yet."))
	}
	footer := "[ " + m.LoadMoreLabel() + " ]"
	if m.comments.Paginator().HasMore() {
		footer += " (m)"
	}
	write(" " + footerStyle.Render(footer))
	if m.loadErr != nil {
		write(" " + common.ErrorBox("Comments_Query", m.loadErr, m.cfg.Endpoint, "m: retry", m.width))
	}

	m.viewport.SetContent(sb.String())
}

func (m *Model) scrollToCursor() {
	if m.selectedIdx < 0 || m.selectedIdx >= len(m.offsets) {
		return
	}
	off := m.offsets[m.selectedIdx]
	if off.startLine < m.viewport.YOffset || off.startLine >= m.viewport.YOffset+m.viewport.Height {
		m.viewport.SetYOffset(off.startLine)
	}
}

func (m Model) renderHeader() string {
	meta := "by " + m.post.Author.Name()
	if ago := render.TimeAgo(m.post.CreatedAt, m.now()); ago != "" {
		meta += " | " + ago
	}
	if m.post.Number > 0 {
		meta = fmt.Sprintf("#%d %s", m.post.Number, meta)
	}
	parts := []string{
		postTitleStyle.Render(m.post.Title),
		postMetaStyle.Render(meta),
		separatorStyle.Render(strings.Repeat("─", m.width)),
		commentMetaStyle.Render("j/k:move  space:collapse  z:fold all  a:same author  m:more comments  r:reply"),
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
