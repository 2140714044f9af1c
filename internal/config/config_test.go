package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "essay"), cfg.CacheDir)
	require.Equal(t, filepath.Join(dir, "essay", "cache.db"), cfg.DBPath)
	require.Equal(t, 10, cfg.PageSize)
	require.Equal(t, 2, cfg.LoadMoreCount)
	require.Equal(t, 2500*time.Millisecond, cfg.ToastDelay)
	require.Equal(t, "onegraph", cfg.Subscription.RepoOwner)
	require.Empty(t, cfg.Query.Owner)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
cache_dir = "`+filepath.ToSlash(filepath.Join(dir, "cache"))+`"
page_size = 20
toast_delay = "5s"

[query]
owner = "octo"
labels = ["Draft", "Publish"]
`), 0o644))

	t.Setenv("ESSAY_PAGE_SIZE", "30")
	t.Setenv("ESSAY_QUERY__NAME", "blog")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 30, cfg.PageSize)
	require.Equal(t, 5*time.Second, cfg.ToastDelay)
	require.Equal(t, "octo", cfg.Query.Owner)
	require.Equal(t, "blog", cfg.Query.Name)
	require.Equal(t, []string{"Draft", "Publish"}, cfg.Query.Labels)
	require.Equal(t, filepath.Join(dir, "cache", "session.json"), cfg.SessionPath)
}

func TestLoadMissingFile(t *testing.T) {
	dir := isolate(t)
	_, err := Load(filepath.Join(dir, "nope.toml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no endpoint", func(c *Config) { c.Endpoint = "" }},
		{"zero page size", func(c *Config) { c.PageSize = 0 }},
		{"zero load more", func(c *Config) { c.LoadMoreCount = 0 }},
		{"zero toast", func(c *Config) { c.ToastDelay = 0 }},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }},
	}
	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
