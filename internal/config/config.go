// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Data    DataConfig    `mapstructure:"data"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Source  SourceConfig  `mapstructure:"source"`
	Steps   StepsConfig   `mapstructure:"steps"`
	Parser  ParserConfig  `mapstructure:"parser"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Archive ArchiveConfig `mapstructure:"archive"`
}

// DataConfig locates the data root holding snapshots, catalogs and streams.
type DataConfig struct {
	Root string `mapstructure:"root"`
}

// CrawlerConfig governs pacing, retries and the worker pool.
type CrawlerConfig struct {
	IntervalSeconds       float64 `mapstructure:"interval_seconds"`
	Workers               int     `mapstructure:"workers"`
	MaxRetries            int     `mapstructure:"max_retries"`
	BackoffInitialMs      int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs          int     `mapstructure:"backoff_max_ms"`
	UserAgent             string  `mapstructure:"user_agent"`
	RequestTimeoutSeconds int     `mapstructure:"request_timeout_seconds"`
	RespectRobots         bool    `mapstructure:"respect_robots"`
	QueueDepth            int     `mapstructure:"queue_depth"`
}

// SourceConfig points at the site being crawled.
type SourceConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// StepsConfig holds the page size per entity kind.
type StepsConfig struct {
	Style   int `mapstructure:"style"`
	Place   int `mapstructure:"place"`
	Brewery int `mapstructure:"brewery"`
	Beer    int `mapstructure:"beer"`
}

// ParserConfig tunes review extraction.
type ParserConfig struct {
	ReviewMinChars int    `mapstructure:"review_min_chars"`
	Timezone       string `mapstructure:"timezone"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig sets where the Prometheus textfile is written.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// ArchiveConfig names the optional bucket exports are uploaded to.
type ArchiveConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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
	v.SetDefault("data.root", "data")
	v.SetDefault("crawler.interval_seconds", 0.2)
	v.SetDefault("crawler.workers", 0)
	v.SetDefault("crawler.max_retries", 5)
	v.SetDefault("crawler.backoff_initial_ms", 250)
	v.SetDefault("crawler.backoff_max_ms", 5000)
	v.SetDefault("crawler.user_agent", "beer-ratings-crawler/1.0")
	v.SetDefault("crawler.request_timeout_seconds", 30)
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("source.base_url", "https://www.beeradvocate.com")
	v.SetDefault("steps.style", 50)
	v.SetDefault("steps.place", 20)
	v.SetDefault("steps.brewery", 20)
	v.SetDefault("steps.beer", 25)
	v.SetDefault("parser.review_min_chars", 150)
	v.SetDefault("parser.timezone", "Local")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "exports")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Data.Root) == "" {
		return fmt.Errorf("data.root must be set")
	}
	if c.Crawler.IntervalSeconds < 0 {
		return fmt.Errorf("crawler.interval_seconds must be >= 0")
	}
	if c.Crawler.Workers < 0 {
		return fmt.Errorf("crawler.workers must be >= 0")
	}
	if c.Crawler.MaxRetries <= 0 {
		return fmt.Errorf("crawler.max_retries must be > 0")
	}
	if c.Crawler.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.request_timeout_seconds must be > 0")
	}
	if c.Crawler.QueueDepth <= 0 {
		return fmt.Errorf("crawler.queue_depth must be > 0")
	}
	for name, step := range map[string]int{
		"steps.style":   c.Steps.Style,
		"steps.place":   c.Steps.Place,
		"steps.brewery": c.Steps.Brewery,
		"steps.beer":    c.Steps.Beer,
	} {
		if step <= 0 {
			return fmt.Errorf("%s must be > 0", name)
		}
	}
	if c.Parser.ReviewMinChars <= 0 {
		return fmt.Errorf("parser.review_min_chars must be > 0")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Interval converts the pacing target to a duration.
func (c Config) Interval() time.Duration {
	return time.Duration(c.Crawler.IntervalSeconds * float64(time.Second))
}

// WorkerCount returns the pool size, defaulting to the number of CPUs.
func (c Config) WorkerCount() int {
	if c.Crawler.Workers > 0 {
		return c.Crawler.Workers
	}
	return runtime.NumCPU()
}

// Location resolves parser.timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Parser.Timezone)
	if err != nil {
		return nil, fmt.Errorf("parser.timezone: %w", err)
	}
	return loc, nil
}

// MetricsPath returns the textfile target, defaulting under the data root.
func (c Config) MetricsPath() string {
	if c.Metrics.Textfile != "" {
		return c.Metrics.Textfile
	}
	return filepath.Join(c.Data.Root, "metrics.prom")
}

// ParsedDir is where catalogs and record streams live.
func (c Config) ParsedDir() string {
	return filepath.Join(c.Data.Root, "parsed")
}

// SnapshotDir is the root of the snapshot tree.
func (c Config) SnapshotDir() string {
	return filepath.Join(c.Data.Root, "snapshots")
}
