package model

import "time"

// Config holds all tunables across the application.
type Config struct {
	API      APIConfig      `yaml:"api" mapstructure:"api"`
	Ingest   IngestConfig   `yaml:"ingest" mapstructure:"ingest"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Sync     SyncConfig     `yaml:"sync" mapstructure:"sync"`
	Forecast ForecastConfig `yaml:"forecast" mapstructure:"forecast"`
	Logging  LoggingConfig  `yaml:"logging" mapstructure:"logging"`
}

// APIConfig describes the remote search API and the request policy
// against it.
type APIConfig struct {
	BaseURL            string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout            time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RateLimitPerMinute float64       `yaml:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
	MaxRetries         int           `yaml:"max_retries" mapstructure:"max_retries"`
	BackoffFactor      time.Duration `yaml:"backoff_factor" mapstructure:"backoff_factor"`
	PageLimit          int           `yaml:"page_limit" mapstructure:"page_limit"`
	Scope              string        `yaml:"scope" mapstructure:"scope"`
	Fields             []string      `yaml:"fields" mapstructure:"fields"`
}

// IngestConfig drives the scroll ingestion run.
type IngestConfig struct {
	CheckpointPath       string        `yaml:"checkpoint_path" mapstructure:"checkpoint_path"`
	OutputFile           string        `yaml:"output_file" mapstructure:"output_file"`
	OutputFormat         string        `yaml:"output_format" mapstructure:"output_format"`
	Pause                time.Duration `yaml:"pause" mapstructure:"pause"`
	DuplicateStreakLimit int           `yaml:"duplicate_streak_limit" mapstructure:"duplicate_streak_limit"`
}

// DatabaseConfig describes the optional Postgres sink.
type DatabaseConfig struct {
	URL       string `yaml:"url" mapstructure:"url"`
	Table     string `yaml:"table" mapstructure:"table"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// CacheConfig controls the page-mode response cache.
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// SyncConfig drives the periodic synchronization loop.
type SyncConfig struct {
	Interval     time.Duration `yaml:"interval" mapstructure:"interval"`
	LookbackDays int           `yaml:"lookback_days" mapstructure:"lookback_days"`
	LastSyncPath string        `yaml:"last_sync_path" mapstructure:"last_sync_path"`
}

// ForecastConfig describes the external forecaster and the analysis
// parameters around it.
type ForecastConfig struct {
	ServiceURL         string  `yaml:"service_url" mapstructure:"service_url"`
	APIKey             string  `yaml:"api_key" mapstructure:"api_key"`
	Order              [3]int  `yaml:"order" mapstructure:"order"`
	Horizon            int     `yaml:"horizon" mapstructure:"horizon"`
	MinPoints          int     `yaml:"min_points" mapstructure:"min_points"`
	RefractoryFraction float64 `yaml:"refractory_fraction" mapstructure:"refractory_fraction"`
}

// LoggingConfig selects the log level.
type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// DefaultFields is the attribute list requested from the search API when
// the caller does not name its own.
var DefaultFields = []string{
	"contract-nature",
	"classification-cpv",
	"dispatch-date",
	"tender-value",
	"publication-date",
	"notice-type",
	"organisation-country-buyer",
	"buyer-country",
	"main-activity",
}

// DefaultConfig returns the built-in defaults; viper layers file, env and
// flag overrides on top.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:            "https://api.ted.europa.eu",
			Timeout:            30 * time.Second,
			RateLimitPerMinute: 60,
			MaxRetries:         3,
			BackoffFactor:      time.Second,
			PageLimit:          250,
			Scope:              "ALL",
			Fields:             DefaultFields,
		},
		Ingest: IngestConfig{
			CheckpointPath: ".tendertrack_checkpoint",
			// OutputFile empty: derived from the output format.
			OutputFormat:         "csv",
			Pause:                time.Second,
			DuplicateStreakLimit: 2,
		},
		Database: DatabaseConfig{
			Table:     "notices",
			BatchSize: 50000,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".tendertrack_cache",
			MemoryTTL: 15 * time.Minute,
			DiskTTL:   6 * time.Hour,
		},
		Sync: SyncConfig{
			Interval:     24 * time.Hour,
			LookbackDays: 7,
			LastSyncPath: ".last_sync",
		},
		Forecast: ForecastConfig{
			Order:              [3]int{4, 2, 3},
			Horizon:            12,
			MinPoints:          12,
			RefractoryFraction: 0.1,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}
