// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/pagestash/pagestash/internal/pipeline"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Schema     []FieldConfig    `mapstructure:"schema"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Blob       BlobConfig       `mapstructure:"blob"`
	Events     EventsConfig     `mapstructure:"events"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CrawlerConfig governs the fetch stage.
type CrawlerConfig struct {
	URLs           []string `mapstructure:"urls"`
	Concurrency    int      `mapstructure:"concurrency"`
	UserAgent      string   `mapstructure:"user_agent"`
	RespectRobots  bool     `mapstructure:"respect_robots"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	MaxRetries     int      `mapstructure:"max_retries"`
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
	QueueDepth     int      `mapstructure:"queue_depth"`
}

// ExtractionConfig controls the LLM extraction step. When disabled or the
// API key is missing, the pipeline falls back to content-derived payloads.
type ExtractionConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	Model         string  `mapstructure:"model"`
	BaseURL       string  `mapstructure:"base_url"`
	APIKey        string  `mapstructure:"api_key"`
	MaxInputChars int     `mapstructure:"max_input_chars"`
	Temperature   float64 `mapstructure:"temperature"`
}

// FieldConfig describes one field of the target record schema.
type FieldConfig struct {
	Name     string `mapstructure:"name"`
	Type     string `mapstructure:"type"`
	Required bool   `mapstructure:"required"`
}

// DatabaseConfig controls the Postgres page store.
type DatabaseConfig struct {
	Provider        string `mapstructure:"provider"`
	DSN             string `mapstructure:"dsn"`
	Table           string `mapstructure:"table"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	ConnLifetimeMin int    `mapstructure:"conn_lifetime_minutes"`
}

// BlobConfig selects where raw page text is offloaded.
type BlobConfig struct {
	Provider    string          `mapstructure:"provider"`
	Prefix      string          `mapstructure:"prefix"`
	ContentType string          `mapstructure:"content_type"`
	Local       LocalBlobConfig `mapstructure:"local"`
	GCS         GCSBlobConfig   `mapstructure:"gcs"`
}

// LocalBlobConfig configures the filesystem blob store.
type LocalBlobConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// GCSBlobConfig configures the Google Cloud Storage blob store.
type GCSBlobConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// EventsConfig selects the per-page completion event publisher.
type EventsConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MonitorConfig controls the HTTP monitoring server.
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load builds a Config from a .env file, environment, and an optional config
// file. An empty path falls back to the standard search locations.
func Load(path string) (Config, error) {
	// Mirror the original deployment habit of keeping credentials in .env;
	// a missing file is fine.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PAGESTASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credentials commonly live under their vendor names.
	_ = v.BindEnv("extraction.api_key", "PAGESTASH_EXTRACTION_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("database.dsn", "PAGESTASH_DATABASE_DSN", "DATABASE_URL")

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.pagestash")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
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
	v.SetDefault("logging.development", true)

	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.user_agent", "pagestash-bot/1.0 (+https://github.com/pagestash/pagestash)")
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.timeout_seconds", 15)
	v.SetDefault("crawler.max_retries", 2)
	v.SetDefault("crawler.rate_limit_rps", 2)
	v.SetDefault("crawler.rate_limit_burst", 1)
	v.SetDefault("crawler.queue_depth", 64)

	v.SetDefault("extraction.enabled", true)
	v.SetDefault("extraction.model", "gpt-4o-mini")
	v.SetDefault("extraction.max_input_chars", 16000)
	v.SetDefault("extraction.temperature", 0.2)

	v.SetDefault("schema", []map[string]any{
		{"name": "title", "type": "string", "required": true},
		{"name": "summary", "type": "string", "required": true},
	})

	v.SetDefault("database.provider", "postgres")
	v.SetDefault("database.table", "pages")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.conn_lifetime_minutes", 30)

	v.SetDefault("blob.provider", "noop")
	v.SetDefault("blob.prefix", "pages")
	v.SetDefault("blob.content_type", "text/markdown; charset=utf-8")
	v.SetDefault("blob.local.base_dir", "data/pages")

	v.SetDefault("events.provider", "noop")
	v.SetDefault("events.topic", "pagestash-pages")

	v.SetDefault("monitor.enabled", false)
	v.SetDefault("monitor.port", 8080)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Crawler.QueueDepth <= 0 {
		return fmt.Errorf("crawler.queue_depth must be > 0")
	}
	switch c.Database.Provider {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown database provider %q", c.Database.Provider)
	}
	switch c.Blob.Provider {
	case "noop", "local", "gcs":
	default:
		return fmt.Errorf("unknown blob provider %q", c.Blob.Provider)
	}
	if c.Blob.Provider == "gcs" && c.Blob.GCS.Bucket == "" {
		return fmt.Errorf("blob.gcs.bucket must be set when blob provider is gcs")
	}
	switch c.Events.Provider {
	case "noop", "memory", "pubsub":
	default:
		return fmt.Errorf("unknown events provider %q", c.Events.Provider)
	}
	if c.Events.Provider == "pubsub" && (c.Events.ProjectID == "" || c.Events.Topic == "") {
		return fmt.Errorf("events.project_id and events.topic must be set when events provider is pubsub")
	}
	if c.Monitor.Enabled && c.Monitor.Port <= 0 {
		return fmt.Errorf("monitor.port must be > 0 when monitor is enabled")
	}
	if _, err := c.RecordSchema(); err != nil {
		return err
	}
	return nil
}

// RecordSchema converts the configured field list into the pipeline schema.
func (c Config) RecordSchema() (pipeline.Schema, error) {
	fields := make([]pipeline.Field, 0, len(c.Schema))
	for _, f := range c.Schema {
		fields = append(fields, pipeline.Field{
			Name:     f.Name,
			Type:     pipeline.FieldType(f.Type),
			Required: f.Required,
		})
	}
	schema := pipeline.Schema{Fields: fields}
	if err := schema.Validate(); err != nil {
		return pipeline.Schema{}, fmt.Errorf("schema config: %w", err)
	}
	return schema, nil
}

// FetchTimeout converts the HTTP timeout config into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// ConnLifetime converts the pool lifetime config into a duration.
func (c DatabaseConfig) ConnLifetime() time.Duration {
	return time.Duration(c.ConnLifetimeMin) * time.Minute
}
