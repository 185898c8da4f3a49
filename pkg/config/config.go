package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// Config holds the application configuration
type Config struct {
	Server struct {
		Listen  string        `yaml:"listen" json:"listen" jsonschema:"default=:8080,description=HTTP server listen address"`
		Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=HTTP server timeout"`
	} `yaml:"server" json:"server" jsonschema:"description=Dashboard server configuration"`

	Database struct {
		DSN             string `yaml:"dsn" json:"dsn" jsonschema:"default=file:knownav.db?cache=shared&mode=rwc,description=Database connection string"`
		MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns" jsonschema:"default=10,description=Maximum number of open connections"`
		MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns" jsonschema:"default=5,description=Maximum number of idle connections"`
		ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime" jsonschema:"default=3600,description=Connection maximum lifetime in seconds"`
	} `yaml:"database" json:"database" jsonschema:"description=Database configuration"`

	Feeds      FeedsConfig      `yaml:"feeds" json:"feeds" jsonschema:"description=Feed sources configuration"`
	Enrichment EnrichmentConfig `yaml:"enrichment" json:"enrichment" jsonschema:"description=LLM enrichment configuration"`
	Extraction ExtractionConfig `yaml:"extraction" json:"extraction" jsonschema:"description=Full-text extraction configuration"`
	Classify   ClassifyConfig   `yaml:"classify" json:"classify" jsonschema:"description=Topic classification configuration"`
}

// FeedGroup is an ordered set of feed endpoints under one category label
type FeedGroup struct {
	Category string   `yaml:"category" json:"category" jsonschema:"required,description=Category label for the group"`
	URLs     []string `yaml:"urls" json:"urls" jsonschema:"required,description=Feed endpoint URLs in preference order"`
}

// FeedsConfig holds feed source settings
type FeedsConfig struct {
	Groups         []FeedGroup   `yaml:"groups" json:"groups" jsonschema:"required,description=Feed groups in configured order"`
	EntriesPerFeed int           `yaml:"entries_per_feed" json:"entries_per_feed" jsonschema:"default=3,description=Number of latest entries taken from each feed"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Fetch timeout per endpoint"`
	MaxWorkers     int           `yaml:"max_workers" json:"max_workers" jsonschema:"default=5,description=Maximum concurrent endpoint fetches"`
	UserAgent      string        `yaml:"user_agent" json:"user_agent" jsonschema:"default=Knownav/1.0,description=User agent for feed requests"`
}

// EnrichmentConfig holds LLM configuration for summarization and concept extraction
type EnrichmentConfig struct {
	Endpoint      string        `yaml:"endpoint" json:"endpoint" jsonschema:"required,description=OpenAI-compatible API endpoint"`
	APIKey        string        `yaml:"api_key" json:"api_key" jsonschema:"description=API key (can use environment variable)"`
	Model         string        `yaml:"model" json:"model" jsonschema:"required,description=Model name (e.g. gpt-4o-mini or llama3)"`
	Temperature   float64       `yaml:"temperature" json:"temperature" jsonschema:"default=0.3,description=Temperature for response generation"`
	MaxTokens     int           `yaml:"max_tokens" json:"max_tokens" jsonschema:"default=500,description=Maximum tokens in response"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Per-call request timeout"`
	MaxInputChars int           `yaml:"max_input_chars" json:"max_input_chars" jsonschema:"default=1024,description=Input truncation limit before summarization"`
	Pause         time.Duration `yaml:"pause" json:"pause" jsonschema:"default=2s,description=Fixed pause between consecutive articles"`
	Retries       int           `yaml:"retries" json:"retries" jsonschema:"default=3,description=Retry attempts per inference call"`
}

// ExtractionConfig holds full-text extraction settings used when the feed
// body is too short to summarize
type ExtractionConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled" jsonschema:"default=false,description=Enable full-text extraction fallback"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Extraction timeout per article"`
	MinTextLength int           `yaml:"min_text_length" json:"min_text_length" jsonschema:"default=100,description=Feed body length below which extraction kicks in"`
	UserAgent     string        `yaml:"user_agent" json:"user_agent" jsonschema:"default=Knownav/1.0,description=User agent for article requests"`
}

// TopicBucket is a named bucket with its match keywords; bucket order is the
// classification tie-break and must be stable
type TopicBucket struct {
	Name     string   `yaml:"name" json:"name" jsonschema:"required,description=Bucket name"`
	Keywords []string `yaml:"keywords" json:"keywords" jsonschema:"description=Keywords matched as substrings"`
}

// ClassifyConfig holds topic classification settings
type ClassifyConfig struct {
	Buckets       []TopicBucket `yaml:"buckets" json:"buckets" jsonschema:"description=Ordered bucket list; empty uses built-in defaults"`
	DefaultBucket string        `yaml:"default_bucket" json:"default_bucket" jsonschema:"default=Tech,description=Bucket assigned when nothing matches"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// set defaults for server
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Server.Timeout == 0 {
		cfg.Server.Timeout = 30 * time.Second
	}

	// set defaults for database
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "file:knownav.db?cache=shared&mode=rwc&_txlock=immediate"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 3600
	}

	// set defaults for feeds
	if cfg.Feeds.EntriesPerFeed == 0 {
		cfg.Feeds.EntriesPerFeed = 3
	}
	if cfg.Feeds.Timeout == 0 {
		cfg.Feeds.Timeout = 30 * time.Second
	}
	if cfg.Feeds.MaxWorkers == 0 {
		cfg.Feeds.MaxWorkers = 5
	}
	if cfg.Feeds.UserAgent == "" {
		cfg.Feeds.UserAgent = "Knownav/1.0"
	}

	// set defaults for enrichment
	if cfg.Enrichment.Temperature == 0 {
		cfg.Enrichment.Temperature = 0.3
	}
	if cfg.Enrichment.MaxTokens == 0 {
		cfg.Enrichment.MaxTokens = 500
	}
	if cfg.Enrichment.Timeout == 0 {
		cfg.Enrichment.Timeout = 30 * time.Second
	}
	if cfg.Enrichment.MaxInputChars == 0 {
		cfg.Enrichment.MaxInputChars = 1024
	}
	if cfg.Enrichment.Pause == 0 {
		cfg.Enrichment.Pause = 2 * time.Second
	}
	if cfg.Enrichment.Retries == 0 {
		cfg.Enrichment.Retries = 3
	}

	// set defaults for extraction
	if cfg.Extraction.Timeout == 0 {
		cfg.Extraction.Timeout = 30 * time.Second
	}
	if cfg.Extraction.MinTextLength == 0 {
		cfg.Extraction.MinTextLength = 100
	}
	if cfg.Extraction.UserAgent == "" {
		cfg.Extraction.UserAgent = "Knownav/1.0"
	}

	// set defaults for classification
	if cfg.Classify.DefaultBucket == "" {
		cfg.Classify.DefaultBucket = "Tech"
	}

	// validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// verify against embedded schema
	if err := VerifyAgainstEmbeddedSchema(&cfg); err != nil {
		// log warning but don't fail - schema validation is supplementary
		fmt.Printf("warning: schema validation failed: %v\n", err)
	}

	return &cfg, nil
}

// validate checks configuration for correctness; any error here is fatal
// before the pipeline enters its first state
func validate(cfg *Config) error {
	// validate feeds config
	if len(cfg.Feeds.Groups) == 0 {
		return fmt.Errorf("feeds.groups is required")
	}
	for _, g := range cfg.Feeds.Groups {
		if g.Category == "" {
			return fmt.Errorf("feeds.groups entry missing category")
		}
		if len(g.URLs) == 0 {
			return fmt.Errorf("feeds.groups %q has no urls", g.Category)
		}
	}
	if cfg.Feeds.Timeout < time.Second {
		return fmt.Errorf("feeds.timeout must be at least 1 second")
	}

	// validate enrichment config
	if cfg.Enrichment.Endpoint == "" {
		return fmt.Errorf("enrichment.endpoint is required")
	}
	if cfg.Enrichment.Model == "" {
		return fmt.Errorf("enrichment.model is required")
	}
	if cfg.Enrichment.Temperature < 0 || cfg.Enrichment.Temperature > 2 {
		return fmt.Errorf("enrichment.temperature must be between 0 and 2")
	}
	if cfg.Enrichment.MaxInputChars < 1 {
		return fmt.Errorf("enrichment.max_input_chars must be positive")
	}
	if cfg.Enrichment.Timeout < time.Second {
		return fmt.Errorf("enrichment.timeout must be at least 1 second")
	}

	// validate extraction config
	if cfg.Extraction.Enabled {
		if cfg.Extraction.Timeout < time.Second {
			return fmt.Errorf("extraction.timeout must be at least 1 second")
		}
		if cfg.Extraction.MinTextLength < 0 {
			return fmt.Errorf("extraction.min_text_length must be non-negative")
		}
	}

	// validate classification config
	for _, b := range cfg.Classify.Buckets {
		if b.Name == "" {
			return fmt.Errorf("classify.buckets entry missing name")
		}
	}

	// validate server config
	if cfg.Server.Timeout < time.Second {
		return fmt.Errorf("server timeout must be at least 1 second")
	}

	return nil
}

// GetServerConfig returns server configuration
func (c *Config) GetServerConfig() (listen string, timeout time.Duration) {
	return c.Server.Listen, c.Server.Timeout
}

// GetEnrichmentConfig returns LLM enrichment configuration
func (c *Config) GetEnrichmentConfig() EnrichmentConfig {
	return c.Enrichment
}

// GetExtractionConfig returns full-text extraction configuration
func (c *Config) GetExtractionConfig() ExtractionConfig {
	return c.Extraction
}
