package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Feed       FeedConfig       `yaml:"feed"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Redis      RedisConfig      `yaml:"redis"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Notify     NotifyConfig     `yaml:"notify"`
}

// ServerConfig holds the HTTP API configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// FeedConfig describes the upstream GTFS-realtime vehicle positions feed.
type FeedConfig struct {
	URL                   string            `yaml:"url"`
	Headers               map[string]string `yaml:"headers"`
	TimeoutSeconds        int               `yaml:"timeout_seconds"`
	MaxPositionAgeSeconds int               `yaml:"max_position_age_seconds"`
}

// IngestConfig controls the ingestion loop.
type IngestConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"` // Ignored by YAML parser
	Workers         int           `yaml:"workers"`
	TrackTailLength int64         `yaml:"track_tail_length"`
	Timezone        string        `yaml:"timezone"`
}

// RedisConfig holds the store connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// EnrichmentConfig points at the GTFS static database. When disabled or the
// DSN is empty, vehicle states carry no route or stop names.
type EnrichmentConfig struct {
	Enabled                bool   `yaml:"enabled"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// NotifyConfig sizes the real-time update worker pool.
type NotifyConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Feed.TimeoutSeconds <= 0 {
		cfg.Feed.TimeoutSeconds = 30
	}
	if cfg.Feed.MaxPositionAgeSeconds <= 0 {
		cfg.Feed.MaxPositionAgeSeconds = 180
	}

	if cfg.Ingest.IntervalSeconds <= 0 {
		cfg.Ingest.IntervalSeconds = 20
	}
	cfg.Ingest.Interval = time.Duration(cfg.Ingest.IntervalSeconds) * time.Second

	if cfg.Ingest.Workers <= 0 {
		log.Printf("ingest.workers is not set or invalid; defaulting to 8")
		cfg.Ingest.Workers = 8
	}
	if cfg.Ingest.TrackTailLength < 0 {
		cfg.Ingest.TrackTailLength = 0
	}
	if cfg.Ingest.Timezone == "" {
		cfg.Ingest.Timezone = "Europe/Lisbon"
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}

	if cfg.Notify.Workers <= 0 {
		cfg.Notify.Workers = 2
	}
	if cfg.Notify.QueueSize <= 0 {
		cfg.Notify.QueueSize = 256
	}

	return &cfg, nil
}
