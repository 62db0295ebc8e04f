// Package config loads and validates catalog crawler configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Origin   OriginConfig   `mapstructure:"origin"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Database DatabaseConfig `mapstructure:"database"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the admin HTTP server.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// OriginConfig describes how the course catalog origin is reached.
type OriginConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
	PageSize  int           `mapstructure:"page_size"`
	// PageDelay is the pause between consecutive listing pages of one query.
	PageDelay time.Duration `mapstructure:"page_delay"`
}

// CrawlerConfig governs run planning and the worker pool.
type CrawlerConfig struct {
	Workers         int    `mapstructure:"workers"`
	RecentTerms     int    `mapstructure:"recent_terms"`
	HistoricalTerms int    `mapstructure:"historical_terms"`
	NoProfessor     string `mapstructure:"no_professor"`
}

// IngestConfig tunes record normalization.
type IngestConfig struct {
	CenturyBase int `mapstructure:"century_base"`
}

// DatabaseConfig controls access to Postgres. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// ArchiveConfig selects where raw listing pages are kept.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	BaseDir string `mapstructure:"base_dir"`
	Prefix  string `mapstructure:"prefix"`
}

// ReservedConns is the pool headroom kept beyond one connection per worker:
// one for targeted refreshes and one for run-store reads and readiness probes.
const ReservedConns = 2

// Archive backends.
const (
	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
)

// PubSubConfig holds metadata for run notifications. An empty project keeps
// events in memory.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ScheduleConfig drives the periodic full runs of the serve command.
type ScheduleConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	RunOnStart         bool          `mapstructure:"run_on_start"`
	RecentInterval     time.Duration `mapstructure:"recent_interval"`
	HistoricalInterval time.Duration `mapstructure:"historical_interval"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CATALOG")
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
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.request_timeout", 5*time.Minute)
	v.SetDefault("origin.base_url", "http://consulta.siiau.udg.mx/wco/")
	v.SetDefault("origin.user_agent", "")
	v.SetDefault("origin.timeout", 20*time.Second)
	v.SetDefault("origin.page_size", 200)
	v.SetDefault("origin.page_delay", 500*time.Millisecond)
	v.SetDefault("crawler.workers", 15)
	v.SetDefault("crawler.recent_terms", 1)
	v.SetDefault("crawler.historical_terms", 10)
	v.SetDefault("crawler.no_professor", "SIN PROFESOR ASIGNADO")
	v.SetDefault("ingest.century_base", 2000)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.migrate_on_start", true)
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.base_dir", "archive")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "catalog-runs")
	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.run_on_start", true)
	v.SetDefault("schedule.recent_interval", 10*time.Minute)
	v.SetDefault("schedule.historical_interval", 24*time.Hour)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if u, err := url.Parse(c.Origin.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("origin.base_url must be an absolute URL")
	}
	if c.Origin.Timeout <= 0 {
		return fmt.Errorf("origin.timeout must be > 0")
	}
	if c.Origin.PageSize <= 0 {
		return fmt.Errorf("origin.page_size must be > 0")
	}
	if c.Origin.PageDelay < 0 {
		return fmt.Errorf("origin.page_delay must be >= 0")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.RecentTerms <= 0 {
		return fmt.Errorf("crawler.recent_terms must be > 0")
	}
	if c.Crawler.HistoricalTerms < 0 {
		return fmt.Errorf("crawler.historical_terms must be >= 0")
	}
	if c.Ingest.CenturyBase <= 0 || c.Ingest.CenturyBase%100 != 0 {
		return fmt.Errorf("ingest.century_base must be a positive multiple of 100")
	}
	if c.Database.DSN != "" && c.Database.MaxConns < int32(c.Crawler.Workers+ReservedConns) {
		return fmt.Errorf("database.max_conns must be >= crawler.workers + %d", ReservedConns)
	}
	switch c.Archive.Backend {
	case ArchiveNone, ArchiveMemory, ArchiveLocal:
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend must be one of none, memory, local, gcs")
	}
	if c.Schedule.Enabled && (c.Schedule.RecentInterval <= 0 || c.Schedule.HistoricalInterval <= 0) {
		return fmt.Errorf("schedule intervals must be > 0 when the schedule is enabled")
	}
	return nil
}

// UsePostgres reports whether a database DSN is configured.
func (c Config) UsePostgres() bool {
	return c.Database.DSN != ""
}
