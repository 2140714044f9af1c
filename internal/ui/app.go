package ui

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/fragmede/essay/internal/api"
	"github.com/fragmede/essay/internal/auth"
	"github.com/fragmede/essay/internal/cache"
	"github.com/fragmede/essay/internal/clock"
	"github.com/fragmede/essay/internal/config"
	"github.com/fragmede/essay/internal/feed"
	"github.com/fragmede/essay/internal/render"
	"github.com/fragmede/essay/internal/ui/common"
	"github.com/fragmede/essay/internal/ui/form"
	"github.com/fragmede/essay/internal/ui/login"
	"github.com/fragmede/essay/internal/ui/messages"
	"github.com/fragmede/essay/internal/ui/notifications"
	"github.com/fragmede/essay/internal/ui/postlist"
	"github.com/fragmede/essay/internal/ui/postview"
	"github.com/fragmede/essay/internal/ui/reply"
	"github.com/fragmede/essay/internal/ui/statusbar"
)

// ViewType identifies the active view.
type ViewType int

const (
	ViewPosts ViewType = iota
	ViewPost
	ViewLogin
	ViewReply
	ViewNotifications
	ViewQueryForm
	ViewSubscriptionForm
)

var viewLabels = map[ViewType]string{
	ViewPosts:            "Posts",
	ViewPost:             "Post",
	ViewLogin:            "Login",
	ViewReply:            "Comment",
	ViewNotifications:    "Notifications",
	ViewQueryForm:        "Query",
	ViewSubscriptionForm: "Subscription",
}

const (
	// SubscriptionOp names the comment subscription in errors.
	SubscriptionOp = "CommentNotificationSubscription"

	toastText = "New comment on your post!"
)

// Client is what the views need from the GraphQL client.
type Client interface {
	postlist.Fetcher
	postview.Pager
	reply.Poster
	Endpoint() string
}

// Options wires the app's collaborators.
type Options struct {
	Config     config.Config
	Client     Client
	Cache      *cache.DB
	Session    *auth.Session
	Subscriber feed.Subscriber[api.Comment]
	// Clock drives the new comment flag; nil means the real clock.
	Clock  clock.Clock
	Logger zerolog.Logger
}

// App is the root Bubble Tea model.
type App struct {
	// View state
	activeView    ViewType
	previousViews []ViewType

	// Child models
	postList      postlist.Model
	postView      postview.Model
	loginForm     login.Model
	replyForm     reply.Model
	notifications notifications.Model
	queryForm     form.Model
	subForm       form.Model
	statusBar     statusbar.Model

	// Shared state
	cfg          config.Config
	client       Client
	cache        *cache.DB
	session      *auth.Session
	comments     *feed.Session[api.Comment]
	queryBinder  *feed.Binder
	subBinder    *feed.Binder
	initialQuery feed.Variables
	log          zerolog.Logger
	ctx          context.Context

	live        feed.State[api.Comment]
	lastSeq     uint64
	toast       string
	unreadCount int
	crash       error

	// Dimensions
	width  int
	height int

	// Set before the program runs; read from subscription goroutines.
	program atomic.Pointer[tea.Program]
}

// QueryVariables are the initial posts query variables from cfg.
func QueryVariables(cfg config.Config) feed.Variables {
	vars := feed.Variables{}
	if cfg.Query.Owner != "" {
		vars["owner"] = cfg.Query.Owner
	}
	if cfg.Query.Name != "" {
		vars["name"] = cfg.Query.Name
	}
	if cfg.Query.CreatedBy != "" {
		vars["createdBy"] = cfg.Query.CreatedBy
	}
	if len(cfg.Query.Labels) > 0 {
		labels := make([]any, len(cfg.Query.Labels))
		for i, l := range cfg.Query.Labels {
			labels[i] = l
		}
		vars["labels"] = labels
	}
	return vars
}

// SubscriptionVariables are the initial comment subscription variables.
func SubscriptionVariables(cfg config.Config) feed.Variables {
	return feed.Variables{
		"repoOwner": cfg.Subscription.RepoOwner,
		"repoName":  cfg.Subscription.RepoName,
	}
}

// NewApp creates the root application model. ctx bounds the comment
// subscription.
func NewApp(ctx context.Context, opts Options) *App {
	cfg := opts.Config
	initial := QueryVariables(cfg)
	subVars := SubscriptionVariables(cfg)

	a := &App{
		activeView:    ViewPosts,
		statusBar:     statusbar.New(),
		notifications: notifications.New(opts.Cache, opts.Logger),
		cfg:           cfg,
		client:        opts.Client,
		cache:         opts.Cache,
		session:       opts.Session,
		queryBinder:   feed.NewBinder(initial, initial),
		subBinder:     feed.NewBinder(subVars, subVars),
		initialQuery:  initial,
		log:           opts.Logger,
		ctx:           ctx,
	}

	sessionOpts := []feed.SessionOption[api.Comment]{
		feed.WithLogger[api.Comment](opts.Logger),
		feed.WithTransientDelay[api.Comment](cfg.ToastDelay),
		feed.WithOnChange(a.sessionChanged),
	}
	if opts.Clock != nil {
		sessionOpts = append(sessionOpts, feed.WithClock[api.Comment](opts.Clock))
	}
	a.comments = feed.NewSession(opts.Subscriber, sessionOpts...)

	a.postList = postlist.New(cfg, opts.Client, opts.Cache, a.queryBinder, opts.Session.CurrentAccessToken(), opts.Logger)
	a.unreadCount = opts.Cache.UnreadNotificationCount()
	a.statusBar.SetUnread(a.unreadCount)
	a.statusBar.SetUser(opts.Session.Username(auth.ServiceGitHub))
	return a
}

// SetProgram stores the program that subscription updates are sent to.
func (a *App) SetProgram(p *tea.Program) {
	a.program.Store(p)
}

// Comments is the comment notification session.
func (a *App) Comments() *feed.Session[api.Comment] { return a.comments }

// Close stops the comment subscription. Call it after the program exits.
func (a *App) Close() {
	a.comments.Stop()
}

func (a *App) sessionChanged(st feed.State[api.Comment]) {
	if p := a.program.Load(); p != nil {
		p.Send(messages.SessionChangedMsg{State: st})
	}
}

// Init starts the application.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.postList.Init(), a.startLive(), a.verifySession())
}

func (a *App) startLive() tea.Cmd {
	comments := a.comments
	ctx := a.ctx
	vars := a.subBinder.Committed()
	return func() tea.Msg {
		comments.Start(ctx, vars)
		return nil
	}
}

func (a *App) restartLive(vars feed.Variables) tea.Cmd {
	a.statusBar.SetStatus("Restarting subscription...", false)
	comments := a.comments
	ctx := a.ctx
	return func() tea.Msg {
		comments.Restart(ctx, vars)
		return nil
	}
}

// verifySession checks a token restored from disk or the environment.
func (a *App) verifySession() tea.Cmd {
	if a.session.CurrentAccessToken() == "" {
		return nil
	}
	session := a.session
	ctx := a.ctx
	log := a.log
	return func() tea.Msg {
		ok, err := session.IsLoggedIn(ctx, auth.ServiceGitHub)
		if err != nil {
			log.Warn().Err(err).Msg("verifying saved token")
		}
		if !ok {
			return messages.SessionRestoredMsg{}
		}
		return messages.SessionRestoredMsg{Username: session.Username(auth.ServiceGitHub)}
	}
}

// Update handles all messages. A panic in a child view is caught and shown
// until the user retries.
func (a *App) Update(msg tea.Msg) (model tea.Model, cmd tea.Cmd) {
	defer func() {
		if r := recover(); r != nil {
			a.crashed(r)
			model, cmd = a, nil
		}
	}()
	cmd = a.update(msg)
	return a, cmd
}

func (a *App) crashed(r any) {
	a.crash = fmt.Errorf("%v", r)
	a.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("view crashed")
}

func (a *App) update(msg tea.Msg) tea.Cmd {
	if size, ok := msg.(tea.WindowSizeMsg); ok {
		a.width = size.Width
		a.height = size.Height
		a.statusBar.SetSize(size.Width)
		a.layout()
		return nil
	}

	if a.crash != nil {
		if k, ok := msg.(tea.KeyMsg); ok {
			switch {
			case key.Matches(k, Keys.Retry):
				return a.retry()
			case key.Matches(k, Keys.Quit):
				return tea.Quit
			}
		}
		return nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if cmd, handled := a.handleKey(msg); handled {
			return cmd
		}

	// View transitions.
	case messages.OpenPostMsg:
		a.openPost(msg.Post)
		return nil

	case messages.OpenIssueMsg:
		post, ok := a.postList.Post(msg.IssueID)
		if !ok {
			a.statusBar.SetStatus("That post is not loaded", true)
			return nil
		}
		a.openPost(post)
		return nil

	case messages.GoBackMsg:
		a.goBack()
		return nil

	case messages.OpenReplyMsg:
		if a.session.CurrentAccessToken() == "" {
			a.statusBar.SetStatus("Log in to leave a comment", true)
			a.openLogin(auth.ServiceGitHub, false)
			return nil
		}
		a.pushView(ViewReply)
		a.replyForm = reply.New(msg.SubjectID, msg.Title, a.client)
		a.replyForm.SetSize(a.width, a.contentHeight())
		return nil

	// Data.
	case messages.PostsLoadedMsg, messages.PostsPageMsg:
		var cmd tea.Cmd
		a.postList, cmd = a.postList.Update(msg)
		a.queryForm.SetError(a.postList.HasError())
		return cmd

	case messages.CommentsPageMsg:
		if a.postView.PostID() == msg.IssueID {
			var cmd tea.Cmd
			a.postView, cmd = a.postView.Update(msg)
			return cmd
		}
		return nil

	case messages.TokenEnteredMsg:
		return a.loginCmd(msg)

	case messages.LoginResultMsg:
		if msg.Err == nil {
			return a.loggedIn(msg.Service)
		}
		a.log.Info().Err(msg.Err).Str("service", msg.Service).Msg("The user did not grant auth to " + msg.Service)

	case messages.RecoverResultMsg:
		if msg.Err == nil {
			return a.loggedIn(msg.Service)
		}
		a.log.Info().Err(msg.Err).Str("service", msg.Service).Msg("The user did not grant auth to " + msg.Service)

	case messages.SessionRestoredMsg:
		a.statusBar.SetUser(msg.Username)
		if msg.Username == "" {
			a.statusBar.SetStatus("Saved token was rejected, press L to log in", true)
		}
		return nil

	case messages.ReplyResultMsg:
		if msg.Err == nil {
			if msg.Comment != nil && a.postView.PostID() == msg.SubjectID {
				a.postView.PushComment(*msg.Comment)
			}
			a.statusBar.SetStatus("Comment posted", false)
			if a.activeView == ViewReply {
				a.goBack()
			}
			return nil
		}
		a.log.Warn().Err(msg.Err).Str("subject", msg.SubjectID).Msg("add comment failed")

	case messages.SessionChangedMsg:
		a.onLive(msg.State)
		return nil

	case messages.QuerySubmittedMsg:
		a.log.Debug().Interface("vars", msg.Variables).Msg("posts query submitted")
		if a.activeView == ViewQueryForm {
			a.goBack()
		}
		return a.postList.Refetch(true)

	case messages.SubscriptionSubmittedMsg:
		if a.activeView == ViewSubscriptionForm {
			a.goBack()
		}
		return a.restartLive(msg.Variables)

	case messages.NewNotificationMsg:
		a.unreadCount = msg.UnreadCount
		a.statusBar.SetUnread(msg.UnreadCount)
		return nil

	case messages.StatusMsg:
		a.statusBar.SetStatus(msg.Text, msg.IsError)
		return nil
	}

	return a.routeToActive(msg)
}

func (a *App) routeToActive(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch a.activeView {
	case ViewPosts:
		a.postList, cmd = a.postList.Update(msg)
	case ViewPost:
		a.postView, cmd = a.postView.Update(msg)
	case ViewLogin:
		a.loginForm, cmd = a.loginForm.Update(msg)
	case ViewReply:
		a.replyForm, cmd = a.replyForm.Update(msg)
	case ViewNotifications:
		a.notifications, cmd = a.notifications.Update(msg)
	case ViewQueryForm:
		a.queryForm, cmd = a.queryForm.Update(msg)
	case ViewSubscriptionForm:
		a.subForm, cmd = a.subForm.Update(msg)
	}
	return cmd
}

func (a *App) textInputActive() bool {
	switch a.activeView {
	case ViewLogin, ViewReply, ViewQueryForm, ViewSubscriptionForm:
		return true
	}
	return false
}

// handleKey runs the global keys. It reports false for keys the active
// view should get.
func (a *App) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		return tea.Quit, true
	}
	if a.textInputActive() {
		if key.Matches(msg, Keys.Back) {
			a.goBack()
			return nil, true
		}
		return nil, false
	}
	if a.activeView == ViewPosts && a.postList.Filtering() {
		return nil, false
	}

	switch {
	case key.Matches(msg, Keys.Quit):
		if a.activeView == ViewPosts {
			return tea.Quit, true
		}
		a.goBack()
		return nil, true
	case key.Matches(msg, Keys.Back):
		if len(a.previousViews) > 0 {
			a.goBack()
			return nil, true
		}
		return nil, false
	case key.Matches(msg, Keys.Notify):
		a.pushView(ViewNotifications)
		a.notifications.SetSize(a.width, a.contentHeight())
		a.notifications.Load()
		return nil, true
	case key.Matches(msg, Keys.QueryForm):
		a.pushView(ViewQueryForm)
		a.queryForm = form.NewPostsForm(a.queryBinder)
		a.queryForm.SetError(a.postList.HasError())
		a.queryForm.SetSize(a.width, a.contentHeight())
		return nil, true
	case key.Matches(msg, Keys.Subscription):
		a.pushView(ViewSubscriptionForm)
		a.subForm = form.NewSubscriptionForm(a.subBinder)
		a.subForm.SetSize(a.width, a.contentHeight())
		return nil, true
	case key.Matches(msg, Keys.RestartLive):
		return a.restartLive(a.subBinder.Committed()), true
	case key.Matches(msg, Keys.Login):
		if a.live.Status == feed.StatusNeedsLogin && a.live.NeedsLogin != "" {
			a.openLogin(a.live.NeedsLogin, true)
			return nil, true
		}
		if name := a.session.Username(auth.ServiceGitHub); name != "" {
			a.statusBar.SetStatus("Already logged in as "+name, false)
			return nil, true
		}
		a.openLogin(auth.ServiceGitHub, false)
		return nil, true
	case key.Matches(msg, Keys.Logout):
		return a.logout(), true
	case key.Matches(msg, Keys.DismissStatus):
		a.statusBar.SetStatus("", false)
		return nil, true
	}
	return nil, false
}

func (a *App) openPost(post api.Post) {
	a.pushView(ViewPost)
	a.postView = postview.New(post, a.cfg, a.client)
	a.postView.SetSize(a.width, a.contentHeight())
}

func (a *App) openLogin(service string, recovering bool) {
	if a.activeView != ViewLogin {
		a.pushView(ViewLogin)
	}
	a.loginForm = login.New(service, recovering)
	a.loginForm.SetSize(a.width, a.contentHeight())
}

// loginCmd verifies a pasted token. A login for a subscription waiting on
// a service goes through the session's recovery so it restarts after.
func (a *App) loginCmd(msg messages.TokenEnteredMsg) tea.Cmd {
	session := a.session
	comments := a.comments
	ctx := a.ctx
	if msg.Recover {
		return func() tea.Msg {
			err := comments.Recover(ctx, auth.TokenLogin{Session: session, Token: msg.Token})
			if errors.Is(err, feed.ErrLoginNotNeeded) {
				err = session.Login(ctx, msg.Service, msg.Token)
			}
			return messages.RecoverResultMsg{Service: msg.Service, Err: err}
		}
	}
	return func() tea.Msg {
		err := session.Login(ctx, msg.Service, msg.Token)
		return messages.LoginResultMsg{Service: msg.Service, Username: session.Username(msg.Service), Err: err}
	}
}

func (a *App) loggedIn(service string) tea.Cmd {
	a.log.Info().Str("service", service).Msg("Successfully logged into " + service)
	if err := a.session.Save(a.cfg.SessionPath); err != nil {
		a.log.Warn().Err(err).Msg("saving session")
	}
	name := a.session.Username(auth.ServiceGitHub)
	a.statusBar.SetUser(name)
	a.statusBar.SetStatus("Logged in as "+name, false)
	if a.activeView == ViewLogin {
		a.goBack()
	}
	return a.postList.SetToken(a.session.CurrentAccessToken())
}

func (a *App) logout() tea.Cmd {
	if a.session.CurrentAccessToken() == "" {
		return nil
	}
	a.session.Logout(auth.ServiceGitHub)
	if err := a.session.Save(a.cfg.SessionPath); err != nil {
		a.log.Warn().Err(err).Msg("saving session")
	}
	if err := a.cache.DeleteResults(); err != nil {
		a.log.Warn().Err(err).Msg("clearing cached results")
	}
	a.statusBar.SetUser("")
	a.statusBar.SetStatus("Logged out", false)
	return a.postList.SetToken("")
}

// retry clears a crash, runs the posts query with the initial variables
// overlaid with the form's pending values and returns to the posts view.
func (a *App) retry() tea.Cmd {
	a.crash = nil
	a.activeView = ViewPosts
	a.previousViews = nil
	vars := a.queryBinder.Reset(a.initialQuery)
	a.log.Info().Interface("vars", vars).Msg("retrying after crash")
	a.layout()
	return a.postList.Refetch(true)
}

// onLive applies a comment subscription change.
func (a *App) onLive(st feed.State[api.Comment]) {
	prev := a.live.Status
	a.live = st
	a.statusBar.SetLive(st.Status)
	if st.Status != prev {
		ev := a.log.Info()
		if st.LastError != nil {
			ev = a.log.Warn().Err(st.LastError)
		}
		ev.Str("status", st.Status.String()).Str("needs_login", st.NeedsLogin).Msg("comment subscription")
	}

	if st.LastResult != nil && st.Seq != a.lastSeq {
		a.lastSeq = st.Seq
		c := *st.LastResult
		a.recordNotification(c)
		if id := a.postView.PostID(); id != "" && id == c.IssueID() {
			a.postView.PushComment(c)
		}
	}

	switch {
	case st.Transient && st.LastResult != nil:
		a.toast = toastMessage(*st.LastResult)
		a.statusBar.SetStatus(a.toast, false)
	case a.toast != "":
		a.toast = ""
		a.statusBar.SetStatus("", false)
		if a.postView.PostID() != "" {
			a.postView.ClearNew()
		}
	}
	a.layout()
}

func toastMessage(c api.Comment) string {
	text := toastText + " " + c.Author.Name()
	if c.Issue != nil && c.Issue.Title != "" {
		text += " on " + c.Issue.Title
	}
	if preview := render.Preview(c.BodyHTML, 60); preview != "" {
		text += ": " + preview
	}
	return text
}

func (a *App) recordNotification(c api.Comment) {
	n := cache.Notification{
		CommentID:   c.ID,
		IssueID:     c.IssueID(),
		AuthorLogin: c.Author.Name(),
		BodyPreview: render.Preview(c.BodyHTML, 80),
		CreatedAt:   c.CreatedAt,
	}
	if c.Issue != nil {
		n.IssueTitle = c.Issue.Title
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if n.CommentID == "" {
		n.CommentID = n.IssueID + "@" + n.CreatedAt.Format(time.RFC3339Nano)
	}
	added, err := a.cache.AddNotification(n)
	if err != nil {
		a.log.Warn().Err(err).Str("comment", n.CommentID).Msg("recording notification")
		return
	}
	if !added {
		return
	}
	a.unreadCount = a.cache.UnreadNotificationCount()
	a.statusBar.SetUnread(a.unreadCount)
	if a.activeView == ViewNotifications {
		a.notifications.Load()
	}
}

// liveErrorBox renders the subscription failure with the action that
// fixes it, or "" while the subscription is healthy.
func (a *App) liveErrorBox() string {
	if a.live.LastError == nil {
		return ""
	}
	var action string
	switch a.live.Status {
	case feed.StatusNeedsLogin:
		action = "L: Log in to " + a.live.NeedsLogin
	case feed.StatusError:
		action = "S: Restart Subscription:  " + SubscriptionOp
	default:
		return ""
	}
	return common.ErrorBox(SubscriptionOp, a.live.LastError, a.cfg.Endpoint, action, a.width)
}

func (a *App) helpLine() string {
	var parts []string
	for _, b := range Keys.ShortHelp() {
		h := b.Help()
		parts = append(parts, HelpKeyStyle.Render(h.Key)+" "+HelpStyle.Render(h.Desc))
	}
	return strings.Join(parts, HelpStyle.Render("  "))
}

// contentHeight is the height left for the active view.
func (a *App) contentHeight() int {
	h := a.height - 1
	if h < 1 {
		h = 1
	}
	return h
}

// layout sizes the views around the status bar, and on the posts view
// around the help line and any subscription error.
func (a *App) layout() {
	h := a.contentHeight()
	listHeight := h - 1
	if box := a.liveErrorBox(); box != "" {
		listHeight -= lipgloss.Height(box)
	}
	if listHeight < 3 {
		listHeight = 3
	}
	a.postList.SetSize(a.width, listHeight)

	switch a.activeView {
	case ViewPost:
		a.postView.SetSize(a.width, h)
	case ViewLogin:
		a.loginForm.SetSize(a.width, h)
	case ViewReply:
		a.replyForm.SetSize(a.width, h)
	case ViewNotifications:
		a.notifications.SetSize(a.width, h)
	case ViewQueryForm:
		a.queryForm.SetSize(a.width, h)
	case ViewSubscriptionForm:
		a.subForm.SetSize(a.width, h)
	}
}

// View renders the application.
func (a *App) View() (out string) {
	if a.crash != nil {
		return a.crashView()
	}
	defer func() {
		if r := recover(); r != nil {
			a.crashed(r)
			out = a.crashView()
		}
	}()

	var content string
	switch a.activeView {
	case ViewPosts:
		parts := []string{a.postList.View()}
		if box := a.liveErrorBox(); box != "" {
			parts = append(parts, box)
		}
		parts = append(parts, a.helpLine())
		content = lipgloss.JoinVertical(lipgloss.Left, parts...)
	case ViewPost:
		content = a.postView.View()
	case ViewLogin:
		content = a.loginForm.View()
	case ViewReply:
		content = a.replyForm.View()
	case ViewNotifications:
		content = a.notifications.View()
	case ViewQueryForm:
		content = a.queryForm.View()
	case ViewSubscriptionForm:
		content = a.subForm.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left, content, a.statusBar.View())
}

func (a *App) crashView() string {
	body := CrashTitleStyle.Render("Something went wrong") + "\n\n" +
		a.crash.Error() + "\n\n" +
		HelpKeyStyle.Render("R") + HelpStyle.Render(" retry  ") +
		HelpKeyStyle.Render("q") + HelpStyle.Render(" quit")
	return CrashBoxStyle.Render(body)
}

func (a *App) pushView(v ViewType) {
	a.previousViews = append(a.previousViews, a.activeView)
	a.activeView = v
	a.statusBar.SetView(viewLabels[v])
}

func (a *App) goBack() {
	if len(a.previousViews) > 0 {
		a.activeView = a.previousViews[len(a.previousViews)-1]
		a.previousViews = a.previousViews[:len(a.previousViews)-1]
	}
	a.statusBar.SetView(viewLabels[a.activeView])
	a.layout()
}

// ActiveView reports the view on screen.
func (a *App) ActiveView() ViewType { return a.activeView }
