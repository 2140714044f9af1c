package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/fragmede/essay/internal/api"
	"github.com/fragmede/essay/internal/auth"
	"github.com/fragmede/essay/internal/cache"
	"github.com/fragmede/essay/internal/config"
	"github.com/fragmede/essay/internal/feed"
	"github.com/fragmede/essay/internal/logging"
	"github.com/fragmede/essay/internal/monitor"
	"github.com/fragmede/essay/internal/ui"
)

var version = "dev"

type flags struct {
	configPath string
	owner      string
	name       string
	createdBy  string
	labels     []string
	repoOwner  string
	repoName   string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "essay",
		Short: "Read GitHub issues as blog posts in the terminal",
		Long: `essay shows the issues of a GitHub repository as blog posts, with their
comments, and notifies you when someone comments while it is open.

Example:
  essay --owner onegraph --name essay.dev --label publish`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			f.apply(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&f.configPath, "config", "", "config file (default is <config dir>/essay/config.toml)")
	cmd.Flags().StringVar(&f.owner, "owner", "", "owner of the repository whose issues are posts")
	cmd.Flags().StringVar(&f.name, "name", "", "name of the repository whose issues are posts")
	cmd.Flags().StringVar(&f.createdBy, "created-by", "", "only show posts opened by this login")
	cmd.Flags().StringSliceVar(&f.labels, "label", nil, "only show posts with these labels")
	cmd.Flags().StringVar(&f.repoOwner, "repo-owner", "", "owner of the repository to watch for comments")
	cmd.Flags().StringVar(&f.repoName, "repo-name", "", "name of the repository to watch for comments")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("essay " + version)
		},
	})
	return cmd
}

// apply overrides cfg with the flags set on the command line.
func (f flags) apply(cmd *cobra.Command, cfg *config.Config) {
	set := cmd.Flags().Changed
	if set("owner") {
		cfg.Query.Owner = f.owner
	}
	if set("name") {
		cfg.Query.Name = f.name
	}
	if set("created-by") {
		cfg.Query.CreatedBy = f.createdBy
	}
	if set("label") {
		cfg.Query.Labels = f.labels
	}
	if set("repo-owner") {
		cfg.Subscription.RepoOwner = f.repoOwner
	}
	if set("repo-name") {
		cfg.Subscription.RepoName = f.repoName
	}
}

func run(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, dir := range []string{cfg.CacheDir, filepath.Dir(cfg.DBPath), filepath.Dir(cfg.LogPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	log, closer, err := logging.New(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer closer.Close()

	db, err := cache.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer db.Close()

	session := auth.NewSession()
	if session.Load(cfg.SessionPath) {
		log.Info().Str("path", cfg.SessionPath).Msg("restored session")
	}
	if session.CurrentAccessToken() == "" {
		token := os.Getenv("GITHUB_TOKEN")
		if token == "" {
			token = cfg.Token
		}
		if token != "" {
			session.SetToken(auth.ServiceGitHub, token)
		}
	}

	client := api.NewClient(api.Options{
		Endpoint:          cfg.Endpoint,
		Timeout:           cfg.RequestTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Tokens:            session,
		Logger:            log.With().Str("component", "api").Logger(),
	})
	session.SetVerifier(client)

	if err := api.ValidateDocuments(); err != nil {
		return fmt.Errorf("invalid GraphQL documents: %w", err)
	}

	var sub feed.Subscriber[api.Comment]
	if cfg.SubscriptionEndpoint != "" {
		sub = api.NewWSSubscriber(cfg.SubscriptionEndpoint, session, log.With().Str("component", "subscription").Logger())
	} else {
		sub = monitor.New(client, db, monitor.Options{
			Interval:     cfg.PollInterval,
			IssueCount:   cfg.PollIssueCount,
			CommentCount: cfg.CommentPageSize,
			Logger:       log.With().Str("component", "monitor").Logger(),
		})
	}

	app := ui.NewApp(ctx, ui.Options{
		Config:     cfg,
		Client:     client,
		Cache:      db,
		Session:    session,
		Subscriber: sub,
		Logger:     log,
	})
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	app.SetProgram(p)
	_, err = p.Run()
	app.Close()
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
