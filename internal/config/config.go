// Package config loads and validates archiver configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Archive drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Notice publishers.
const (
	PublisherNone   = "none"
	PublisherMemory = "memory"
	PublisherPubSub = "pubsub"
)

// Blob backends.
const (
	BlobNone   = "none"
	BlobMemory = "memory"
	BlobLocal  = "local"
	BlobGCS    = "gcs"
)

// Config captures all knobs loaded via Viper.
type Config struct {
	NeoWs   NeoWsConfig   `mapstructure:"neows"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Blob    BlobConfig    `mapstructure:"blob"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// NeoWsConfig points at the provider.
type NeoWsConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlConfig bounds a catalog crawl.
type CrawlConfig struct {
	StartPage int `mapstructure:"start_page"`
	PageSize  int `mapstructure:"page_size"`
	// MaxPages stops the crawl after this many pages; 0 means unbounded.
	MaxPages int `mapstructure:"max_pages"`
}

// HTTPConfig configures the retrying provider fetcher.
type HTTPConfig struct {
	Retries        int           `mapstructure:"retries"`
	BackoffFactor  time.Duration `mapstructure:"backoff_factor"`
	RateLimitSleep time.Duration `mapstructure:"rate_limit_sleep"`
	Timeout        time.Duration `mapstructure:"timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// ArchiveConfig selects and configures the record archive.
type ArchiveConfig struct {
	Driver      string        `mapstructure:"driver"`
	Path        string        `mapstructure:"path"`
	DSN         string        `mapstructure:"dsn"`
	Table       string        `mapstructure:"table"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
	MaxConns    int32         `mapstructure:"max_conns"`
}

// BlobConfig controls raw detail snapshots.
type BlobConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for archive notifications.
type PubSubConfig struct {
	// Backend is PublisherPubSub, PublisherMemory (dry run) or PublisherNone.
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Enabled reports whether notifications should be sent to Pub/Sub.
func (p PubSubConfig) Enabled() bool {
	return p.Backend == PublisherPubSub && p.ProjectID != "" && p.TopicName != ""
}

// CacheConfig configures the Redis detail cache used by the HTTP API.
type CacheConfig struct {
	RedisAddress  string        `mapstructure:"redis_address"`
	RedisPassword string        `mapstructure:"redis_password"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	UpstreamRPS    float64       `mapstructure:"upstream_rps"`
	UpstreamBurst  int           `mapstructure:"upstream_burst"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NEOWS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("neows.api_key", "NEOWS_API_KEY", "NASA_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind api key env: %w", err)
	}

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
	v.SetDefault("neows.base_url", "https://api.nasa.gov/neo/rest/v1")
	v.SetDefault("neows.api_key", "DEMO_KEY")
	v.SetDefault("crawl.start_page", 0)
	v.SetDefault("crawl.page_size", 20)
	v.SetDefault("crawl.max_pages", 0)
	v.SetDefault("http.retries", 3)
	v.SetDefault("http.backoff_factor", time.Second)
	v.SetDefault("http.rate_limit_sleep", 120*time.Millisecond)
	v.SetDefault("http.timeout", 10*time.Second)
	v.SetDefault("http.user_agent", "neows-archiver/1.0")
	v.SetDefault("archive.driver", DriverSQLite)
	v.SetDefault("archive.path", "asteroids.db")
	v.SetDefault("archive.dsn", "")
	v.SetDefault("archive.table", "asteroids")
	v.SetDefault("archive.busy_timeout", 30*time.Second)
	v.SetDefault("archive.max_conns", 4)
	v.SetDefault("blob.backend", BlobNone)
	v.SetDefault("blob.base_dir", "snapshots")
	v.SetDefault("blob.gcs_bucket", "")
	v.SetDefault("blob.prefix", "raw/neo")
	v.SetDefault("pubsub.backend", PublisherPubSub)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("cache.redis_address", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.upstream_rps", 2.0)
	v.SetDefault("server.upstream_burst", 1)
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.NeoWs.BaseURL) == "" {
		return fmt.Errorf("neows.base_url is required")
	}
	if c.Crawl.StartPage < 0 {
		return fmt.Errorf("crawl.start_page must be >= 0")
	}
	if c.Crawl.PageSize <= 0 {
		return fmt.Errorf("crawl.page_size must be > 0")
	}
	if c.Crawl.MaxPages < 0 {
		return fmt.Errorf("crawl.max_pages must be >= 0")
	}
	if c.HTTP.Retries <= 0 {
		return fmt.Errorf("http.retries must be > 0")
	}
	if c.HTTP.BackoffFactor < 0 || c.HTTP.RateLimitSleep < 0 {
		return fmt.Errorf("http.backoff_factor and http.rate_limit_sleep must be >= 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	switch c.Archive.Driver {
	case DriverSQLite:
		if c.Archive.Path == "" {
			return fmt.Errorf("archive.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Archive.DSN == "" {
			return fmt.Errorf("archive.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("archive.driver %q is not supported", c.Archive.Driver)
	}
	switch c.Blob.Backend {
	case BlobNone, BlobMemory:
	case BlobLocal:
		if c.Blob.BaseDir == "" {
			return fmt.Errorf("blob.base_dir is required for the local backend")
		}
	case BlobGCS:
		if c.Blob.GCSBucket == "" {
			return fmt.Errorf("blob.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("blob.backend %q is not supported", c.Blob.Backend)
	}
	switch c.PubSub.Backend {
	case PublisherNone, PublisherMemory, PublisherPubSub:
	default:
		return fmt.Errorf("pubsub.backend %q is not supported", c.PubSub.Backend)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}
