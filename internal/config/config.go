// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	DB       DBConfig       `mapstructure:"db"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Search   SearchConfig   `mapstructure:"search"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	SearchTimeoutSeconds  int `mapstructure:"search_timeout_seconds"`
	ShutdownGraceSeconds  int `mapstructure:"shutdown_grace_seconds"`
	ReadHeaderTimeoutSecs int `mapstructure:"read_header_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DBConfig controls access to the Postgres catalog. An empty DSN selects the
// in-memory catalog.
type DBConfig struct {
	DSN                string `mapstructure:"dsn"`
	MaxConns           int    `mapstructure:"max_conns"`
	MinConns           int    `mapstructure:"min_conns"`
	MaxConnLifetimeMin int    `mapstructure:"max_conn_lifetime_minutes"`
}

// CrawlerConfig governs the per-site crawl pipeline.
type CrawlerConfig struct {
	UserAgent          string `mapstructure:"user_agent"`
	Parallelism        int    `mapstructure:"parallelism"`
	MaxParallelSites   int    `mapstructure:"max_parallel_sites"`
	DelayMs            int    `mapstructure:"delay_ms"`
	RandomDelayMs      int    `mapstructure:"random_delay_ms"`
	RequestTimeoutSecs int    `mapstructure:"request_timeout_seconds"`
	MaxDepth           int    `mapstructure:"max_depth"`
}

// HeadlessConfig configures the headless rendering escalation.
type HeadlessConfig struct {
	Enabled           bool     `mapstructure:"enabled"`
	MaxParallel       int      `mapstructure:"max_parallel"`
	NavTimeoutSec     int      `mapstructure:"nav_timeout_seconds"`
	DomainQPS         float64  `mapstructure:"domain_qps"`
	MinHTMLBytes      int      `mapstructure:"min_html_bytes"`
	RequiredSelectors []string `mapstructure:"required_selectors"`
	ShellKeywords     []string `mapstructure:"shell_keywords"`
}

// ArchiveConfig sets where raw item pages are persisted. Backend is one of
// "", "local", or "gcs"; empty disables archiving.
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"`
	Prefix    string `mapstructure:"prefix"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// PubSubConfig holds metadata for catalog event notifications. An empty
// project disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// SearchConfig tunes the full-text search engine.
type SearchConfig struct {
	Language string `mapstructure:"language"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MEDIFACIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.search_timeout_seconds", 10)
	v.SetDefault("server.shutdown_grace_seconds", 15)
	v.SetDefault("server.read_header_timeout_seconds", 5)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("crawler.user_agent", "medifacil-bot/1.0 (+https://github.com/medifacil/backend)")
	v.SetDefault("crawler.parallelism", 4)
	v.SetDefault("crawler.max_parallel_sites", 2)
	v.SetDefault("crawler.delay_ms", 500)
	v.SetDefault("crawler.random_delay_ms", 500)
	v.SetDefault("crawler.request_timeout_seconds", 30)
	v.SetDefault("crawler.max_depth", 0)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.domain_qps", 0.5)
	v.SetDefault("headless.min_html_bytes", 2000)
	v.SetDefault("headless.shell_keywords", []string{
		"__NEXT_DATA__",
		"data-reactroot",
		"__STATE__",
		"vtex-render",
	})
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("archive.local_dir", "data/pages")
	v.SetDefault("pubsub.topic_name", "catalog-events")
	v.SetDefault("search.language", "spanish")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Parallelism <= 0 {
		return fmt.Errorf("crawler.parallelism must be > 0")
	}
	if c.Crawler.MaxParallelSites <= 0 {
		return fmt.Errorf("crawler.max_parallel_sites must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Archive.Backend {
	case "", "local", "gcs":
	default:
		return fmt.Errorf("archive.backend must be empty, local, or gcs")
	}
	if c.Archive.Backend == "gcs" && c.Archive.GCSBucket == "" {
		return fmt.Errorf("archive.gcs_bucket must be set for the gcs backend")
	}
	if c.Search.Language == "" {
		return fmt.Errorf("search.language must be set")
	}
	return nil
}

// SearchTimeout is the per-request budget for search handlers.
func (c Config) SearchTimeout() time.Duration {
	return time.Duration(c.Server.SearchTimeoutSeconds) * time.Second
}

// ShutdownGrace is how long the server waits for in-flight requests on stop.
func (c Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Server.ShutdownGraceSeconds) * time.Second
}
