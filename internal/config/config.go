package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Fetch modes.
const (
	FetchHTTP    = "http"
	FetchBrowser = "browser"
)

// Config stores all configuration for the application.
type Config struct {
	Regions           []string `mapstructure:"REGIONS"`
	Furnished         string   `mapstructure:"FURNISHED"`
	FastMode          bool     `mapstructure:"FAST_MODE"`
	MaxWorkers        int      `mapstructure:"MAX_WORKERS"`
	MaxRetries        int      `mapstructure:"MAX_RETRIES"`
	BackoffBaseMS     int      `mapstructure:"BACKOFF_BASE_MS"`
	RequestDelayMS    int      `mapstructure:"REQUEST_DELAY_MS"`
	RequestTimeout    int      `mapstructure:"REQUEST_TIMEOUT"` // in seconds
	RequestsPerSecond float64  `mapstructure:"REQUESTS_PER_SECOND"`
	RunTimeout        int      `mapstructure:"RUN_TIMEOUT"` // in seconds, 0 disables
	PageSize          int      `mapstructure:"PAGE_SIZE"`
	BaseURL           string   `mapstructure:"BASE_URL"`
	SelectorsFile     string   `mapstructure:"SELECTORS_FILE"`
	OutputDir         string   `mapstructure:"OUTPUT_DIR"`
	FetchMode         string   `mapstructure:"FETCH_MODE"`
	Proxies           []string `mapstructure:"PROXIES"`
	RedisAddr         string   `mapstructure:"REDIS_ADDR"`
	DetailCacheHours  int      `mapstructure:"DETAIL_CACHE_TTL_HOURS"`
	DatabaseURL       string   `mapstructure:"DATABASE_URL"`
	ServerPort        string   `mapstructure:"SERVER_PORT"`
	Serve             bool     `mapstructure:"SERVE"`
	LogLevel          string   `mapstructure:"LOG_LEVEL"`
	LogDevelopment    bool     `mapstructure:"LOG_DEVELOPMENT"`
}

// flag name -> config key
var flagKeys = map[string]string{
	"region":      "REGIONS",
	"furnished":   "FURNISHED",
	"fast":        "FAST_MODE",
	"workers":     "MAX_WORKERS",
	"retries":     "MAX_RETRIES",
	"output-dir":  "OUTPUT_DIR",
	"fetch-mode":  "FETCH_MODE",
	"selectors":   "SELECTORS_FILE",
	"serve":       "SERVE",
	"port":        "SERVER_PORT",
	"log-level":   "LOG_LEVEL",
	"run-timeout": "RUN_TIMEOUT",
}

// RegisterFlags declares the command-line overrides understood by Load.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringSliceP("region", "r", nil, "region to harvest (repeatable or comma separated)")
	fs.StringP("furnished", "f", "", "furnishing filter: all, furnished or unfurnished")
	fs.Bool("fast", false, "skip detail pages (description and amenities)")
	fs.IntP("workers", "w", 0, "global worker limit")
	fs.Int("retries", 0, "detail fetch attempts")
	fs.StringP("output-dir", "o", "", "directory for CSV output")
	fs.String("fetch-mode", "", "http or browser")
	fs.String("selectors", "", "YAML selector table replacing the built-in one")
	fs.Bool("serve", false, "run the HTTP API instead of a one-shot harvest")
	fs.String("port", "", "API server port")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.Int("run-timeout", 0, "stop dispatching new pages after this many seconds")
}

// Load reads configuration from the .env file, environment variables and,
// when fs is non-nil, command-line flags that were explicitly set.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Attempt to read the .env file, but don't fail if it's not present
	_ = v.ReadInConfig()

	v.SetDefault("REGIONS", []string{"dubai"})
	v.SetDefault("FURNISHED", "all")
	v.SetDefault("FAST_MODE", false)
	v.SetDefault("MAX_WORKERS", 16)
	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("BACKOFF_BASE_MS", 1000)
	v.SetDefault("REQUEST_DELAY_MS", 1000)
	v.SetDefault("REQUEST_TIMEOUT", 15)
	v.SetDefault("REQUESTS_PER_SECOND", 0)
	v.SetDefault("RUN_TIMEOUT", 0)
	v.SetDefault("PAGE_SIZE", 24)
	v.SetDefault("BASE_URL", "https://www.bayut.com")
	v.SetDefault("SELECTORS_FILE", "")
	v.SetDefault("OUTPUT_DIR", "data")
	v.SetDefault("FETCH_MODE", FetchHTTP)
	v.SetDefault("PROXIES", []string{})
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("DETAIL_CACHE_TTL_HOURS", 48)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVE", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DEVELOPMENT", false)

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.Regions = splitList(cfg.Regions)
	cfg.Proxies = splitList(cfg.Proxies)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the harvester cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.MaxWorkers < 1:
		return fmt.Errorf("MAX_WORKERS must be positive, got %d", c.MaxWorkers)
	case c.MaxRetries < 1:
		return fmt.Errorf("MAX_RETRIES must be positive, got %d", c.MaxRetries)
	case c.PageSize < 1:
		return fmt.Errorf("PAGE_SIZE must be positive, got %d", c.PageSize)
	case c.BackoffBaseMS < 0 || c.RequestDelayMS < 0 || c.RunTimeout < 0:
		return fmt.Errorf("durations must not be negative")
	case c.RequestTimeout < 1:
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %d", c.RequestTimeout)
	case c.RequestsPerSecond < 0:
		return fmt.Errorf("REQUESTS_PER_SECOND must not be negative")
	case c.FetchMode != FetchHTTP && c.FetchMode != FetchBrowser:
		return fmt.Errorf("FETCH_MODE must be %q or %q, got %q", FetchHTTP, FetchBrowser, c.FetchMode)
	case c.BaseURL == "":
		return fmt.Errorf("BASE_URL is required")
	}
	return nil
}

func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMS) * time.Millisecond
}

func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelayMS) * time.Millisecond
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

func (c *Config) RunDeadline() time.Duration {
	return time.Duration(c.RunTimeout) * time.Second
}

func (c *Config) DetailCacheTTL() time.Duration {
	return time.Duration(c.DetailCacheHours) * time.Hour
}

// splitList flattens comma separated entries and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
