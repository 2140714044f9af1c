package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "ESSAY_"

// QueryDefaults seeds the variables of the posts query. Empty values are
// left out so the query document's own defaults apply.
type QueryDefaults struct {
	Owner     string   `koanf:"owner"`
	Name      string   `koanf:"name"`
	CreatedBy string   `koanf:"created_by"`
	Labels    []string `koanf:"labels"`
}

// SubscriptionDefaults seeds the comment notification subscription.
type SubscriptionDefaults struct {
	RepoOwner string `koanf:"repo_owner"`
	RepoName  string `koanf:"repo_name"`
}

type Config struct {
	CacheDir    string `koanf:"cache_dir"`
	DBPath      string `koanf:"db_path"`
	SessionPath string `koanf:"session_path"`
	LogPath     string `koanf:"log_path"`
	LogLevel    string `koanf:"log_level"`

	Endpoint             string `koanf:"endpoint"`
	SubscriptionEndpoint string `koanf:"subscription_endpoint"`
	Token                string `koanf:"token"`

	RequestTimeout    time.Duration `koanf:"request_timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	ResultTTL         time.Duration `koanf:"result_ttl"`

	PageSize        int           `koanf:"page_size"`
	CommentPageSize int           `koanf:"comment_page_size"`
	LoadMoreCount   int           `koanf:"load_more_count"`
	ToastDelay      time.Duration `koanf:"toast_delay"`
	PollInterval    time.Duration `koanf:"poll_interval"`
	PollIssueCount  int           `koanf:"poll_issue_count"`

	Query        QueryDefaults        `koanf:"query"`
	Subscription SubscriptionDefaults `koanf:"subscription"`
}

func Default() Config {
	cacheDir := filepath.Join(userConfigDir(), "essay")
	return Config{
		CacheDir:          cacheDir,
		DBPath:            filepath.Join(cacheDir, "cache.db"),
		SessionPath:       filepath.Join(cacheDir, "session.json"),
		LogPath:           filepath.Join(cacheDir, "debug.log"),
		LogLevel:          "info",
		Endpoint:          "https://api.github.com/graphql",
		RequestTimeout:    10 * time.Second,
		RequestsPerSecond: 5,
		ResultTTL:         60 * time.Second,
		PageSize:          10,
		CommentPageSize:   10,
		LoadMoreCount:     2,
		ToastDelay:        2500 * time.Millisecond,
		PollInterval:      30 * time.Second,
		PollIssueCount:    10,
		Subscription: SubscriptionDefaults{
			RepoOwner: "onegraph",
			RepoName:  "essay.dev",
		},
	}
}

// Load layers the defaults, an optional TOML file and ESSAY_* environment
// variables. Nested keys use a double underscore: ESSAY_QUERY__OWNER.
func Load(path string) (Config, error) {
	def := Default()
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultsMap(def), "."), nil); err != nil {
		return Config{}, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		candidate := filepath.Join(def.CacheDir, "config.toml")
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return Config{}, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Paths derive from the cache dir unless set explicitly.
	if cfg.CacheDir != def.CacheDir {
		if cfg.DBPath == def.DBPath {
			cfg.DBPath = filepath.Join(cfg.CacheDir, "cache.db")
		}
		if cfg.SessionPath == def.SessionPath {
			cfg.SessionPath = filepath.Join(cfg.CacheDir, "session.json")
		}
		if cfg.LogPath == def.LogPath {
			cfg.LogPath = filepath.Join(cfg.CacheDir, "debug.log")
		}
	}
	return cfg, cfg.Validate()
}

// Validate checks the values the feed core relies on.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.PageSize <= 0 || c.CommentPageSize <= 0 {
		return fmt.Errorf("page sizes must be positive")
	}
	if c.LoadMoreCount <= 0 {
		return fmt.Errorf("load_more_count must be positive")
	}
	if c.ToastDelay <= 0 {
		return fmt.Errorf("toast_delay must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	return nil
}

func defaultsMap(c Config) map[string]interface{} {
	return map[string]interface{}{
		"cache_dir":                    c.CacheDir,
		"db_path":                      c.DBPath,
		"session_path":                 c.SessionPath,
		"log_path":                     c.LogPath,
		"log_level":                    c.LogLevel,
		"endpoint":                     c.Endpoint,
		"subscription_endpoint":        c.SubscriptionEndpoint,
		"token":                        c.Token,
		"request_timeout":              c.RequestTimeout.String(),
		"requests_per_second":          c.RequestsPerSecond,
		"result_ttl":                   c.ResultTTL.String(),
		"page_size":                    c.PageSize,
		"comment_page_size":            c.CommentPageSize,
		"load_more_count":              c.LoadMoreCount,
		"toast_delay":                  c.ToastDelay.String(),
		"poll_interval":                c.PollInterval.String(),
		"poll_issue_count":             c.PollIssueCount,
		"subscription.repo_owner":      c.Subscription.RepoOwner,
		"subscription.repo_name":       c.Subscription.RepoName,
	}
}

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config")
}
