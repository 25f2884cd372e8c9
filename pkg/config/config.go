// Package config loads the application configuration: a layered YAML file
// (current directory, then ~/.engram, then /etc/engram) merged over
// built-in defaults via viper, generalized from the teacher's single
// embedded-database config onto spec §0.2's full primary/cloud/hybrid/
// consolidation/health surface.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Profile       string              `mapstructure:"profile"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Setup         SetupConfig         `mapstructure:"setup"`
	License       LicenseConfig       `mapstructure:"license"`
	RestAPI       RestAPIConfig       `mapstructure:"rest_api"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Session       SessionConfig       `mapstructure:"session"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Splitter      SplitterConfig      `mapstructure:"splitter"`
	Cloud         CloudConfig         `mapstructure:"cloud"`
	Hybrid        HybridConfig        `mapstructure:"hybrid"`
	Sync          SyncConfig          `mapstructure:"sync"`
	Consolidation ConsolidationConfig `mapstructure:"consolidation"`
	Health        HealthConfig        `mapstructure:"health"`
	Backup        BackupConfig        `mapstructure:"backup"`
}

// DatabaseConfig holds the primary embedded backend's file configuration.
type DatabaseConfig struct {
	Path        string `mapstructure:"path"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// SetupConfig holds setup wizard configuration.
type SetupConfig struct {
	FirstRun    bool `mapstructure:"first_run"`
	WizardShown bool `mapstructure:"wizard_shown"`
}

// LicenseConfig holds license and terms configuration.
type LicenseConfig struct {
	Required       bool        `mapstructure:"required"`
	CheckOnStartup bool        `mapstructure:"check_on_startup"`
	Terms          TermsConfig `mapstructure:"terms"`
}

// TermsConfig holds terms of service configuration.
type TermsConfig struct {
	Required bool   `mapstructure:"required"`
	Source   string `mapstructure:"source"`
}

// RestAPIConfig holds the thin health-surface HTTP server's configuration
// (spec's Non-goals place the REST/dashboard surface out of scope; only the
// health handler described in the supplemented features is modeled here).
type RestAPIConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	AutoPort     bool     `mapstructure:"auto_port"`
	Port         int      `mapstructure:"port"`
	Host         string   `mapstructure:"host"`
	CORS         bool     `mapstructure:"cors"`
	APIKey       string   `mapstructure:"api_key"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// RateLimitConfig throttles the thin health-surface HTTP server.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// SessionConfig holds session management configuration.
type SessionConfig struct {
	AutoGenerate bool   `mapstructure:"auto_generate"`
	Strategy     string `mapstructure:"strategy"` // "git-directory" or "manual"
	ManualID     string `mapstructure:"manual_id"`
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
	Output string `mapstructure:"output"` // stderr, stdout, or a file path
}

// EmbeddingConfig selects and configures internal/embed's generator
// (spec §4.2's pluggable embedding client: local model or remote HTTP).
type EmbeddingConfig struct {
	Mode      string        `mapstructure:"mode"` // "local" | "http"
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	APIKey    string        `mapstructure:"api_key"`
	Dimension int           `mapstructure:"dimension"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// SplitterConfig configures internal/splitter's boundary-aware chunking
// (spec §4.3).
type SplitterConfig struct {
	MaxLength          int  `mapstructure:"max_length"`
	Overlap            int  `mapstructure:"overlap"`
	PreserveBoundaries bool `mapstructure:"preserve_boundaries"`
}

// CloudConfig configures internal/cloud's three sub-clients (spec §4.4).
type CloudConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	AutoDetect bool   `mapstructure:"auto_detect"`
	VectorURL  string `mapstructure:"vector_url"`
	RelationalURL string `mapstructure:"relational_url"`
	ObjectURL  string `mapstructure:"object_url"`

	Collection string `mapstructure:"collection"`
	Table      string `mapstructure:"table"`
	Bucket     string `mapstructure:"bucket"`

	Dimension             int           `mapstructure:"dimension"`
	LargeContentThreshold int           `mapstructure:"large_content_threshold"`
	MaxRetries            int           `mapstructure:"max_retries"`
	SchemaVerifyAttempts  int           `mapstructure:"schema_verify_attempts"`
	SchemaVerifyDelay     time.Duration `mapstructure:"schema_verify_delay"`
	Timeout               time.Duration `mapstructure:"timeout"`
}

// HybridConfig tunes the hybrid engine's initial catch-up sync
// (spec §4.5 "Startup behavior").
type HybridConfig struct {
	InitialSyncPageSize        int           `mapstructure:"initial_sync_page_size"`
	InitialSyncMaxEmptyBatches int           `mapstructure:"initial_sync_max_empty_batches"`
	InitialSyncStartDelay      time.Duration `mapstructure:"initial_sync_start_delay"`
}

// SyncConfig tunes the background sync service (spec §4.5's named
// defaults for the bounded queue, drain loop and capacity guard).
type SyncConfig struct {
	QueueCapacity       int           `mapstructure:"queue_capacity"`
	DrainInterval       time.Duration `mapstructure:"drain_interval"`
	BatchSize           int           `mapstructure:"batch_size"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	MaxRetries          int           `mapstructure:"max_retries"`
	MaxLoopBackoff      time.Duration `mapstructure:"max_loop_backoff"`

	VectorCapacityLimit    int     `mapstructure:"vector_capacity_limit"`
	MetadataSizeLimitBytes int     `mapstructure:"metadata_size_limit_bytes"`
	WarningThreshold       float64 `mapstructure:"warning_threshold"`
	CriticalThreshold      float64 `mapstructure:"critical_threshold"`

	DriftInterval  time.Duration `mapstructure:"drift_interval"`
	DriftBatchSize int           `mapstructure:"drift_batch_size"`
}

// ConsolidationConfig tunes the scheduled maintenance pipeline (spec §4.6).
type ConsolidationConfig struct {
	IncrementalMode     bool    `mapstructure:"incremental_mode"`
	BatchSize           int     `mapstructure:"batch_size"`
	ClusteringEnabled   bool    `mapstructure:"clustering_enabled"`
	AssociationsEnabled bool    `mapstructure:"associations_enabled"`
	CompressionEnabled  bool    `mapstructure:"compression_enabled"`
	ForgettingEnabled   bool    `mapstructure:"forgetting_enabled"`
	MinConfidence       float64 `mapstructure:"min_confidence"`
	ArchiveBelow        float64 `mapstructure:"archive_below"`
	DeleteBelow         float64 `mapstructure:"delete_below"`
	ArchivePath         string  `mapstructure:"archive_path"`
}

// HealthConfig tunes the integrity monitor (spec §4.2).
type HealthConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// BackupConfig tunes where internal/backup writes snapshots (spec §4.2,
// §8); the scheduler that decides when to call Snapshot is out of scope.
type BackupConfig struct {
	Dir            string        `mapstructure:"dir"`
	Interval       time.Duration `mapstructure:"interval"`
	MaxBackups     int           `mapstructure:"max_backups"`
}

// DefaultConfig returns configuration with the module's built-in defaults.
func DefaultConfig() *Config {
	configDir := defaultConfigDir()

	return &Config{
		Profile: "default",
		Database: DatabaseConfig{
			Path:        filepath.Join(configDir, "memories.db"),
			AutoMigrate: true,
		},
		Setup: SetupConfig{
			FirstRun:    true,
			WizardShown: false,
		},
		License: LicenseConfig{
			Required:       false,
			CheckOnStartup: false,
			Terms: TermsConfig{
				Required: false,
				Source:   "embedded",
			},
		},
		RestAPI: RestAPIConfig{
			Enabled:  true,
			AutoPort: true,
			Port:     3002,
			Host:     "localhost",
			CORS:     true,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 10,
			BurstSize:         20,
		},
		Session: SessionConfig{
			AutoGenerate: true,
			Strategy:     "git-directory",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Embedding: EmbeddingConfig{
			Mode:      "local",
			BaseURL:   "http://localhost:11434",
			Model:     "nomic-embed-text",
			Dimension: 768,
			Timeout:   30 * time.Second,
		},
		Splitter: SplitterConfig{
			MaxLength:          1000,
			Overlap:            100,
			PreserveBoundaries: true,
		},
		Cloud: CloudConfig{
			Enabled:               false,
			AutoDetect:            true,
			VectorURL:             "http://localhost:6333",
			RelationalURL:         "http://localhost:8081",
			ObjectURL:             "http://localhost:9000",
			Collection:            "engram-memories",
			Table:                 "memories",
			Bucket:                "engram-content",
			Dimension:             768,
			LargeContentThreshold: 100_000,
			MaxRetries:            3,
			SchemaVerifyAttempts:  5,
			SchemaVerifyDelay:     2 * time.Second,
			Timeout:               30 * time.Second,
		},
		Hybrid: HybridConfig{
			InitialSyncPageSize:        100,
			InitialSyncMaxEmptyBatches: 20,
			InitialSyncStartDelay:      2 * time.Second,
		},
		Sync: SyncConfig{
			QueueCapacity:          1000,
			DrainInterval:          5 * time.Second,
			BatchSize:              50,
			HealthCheckInterval:    300 * time.Second,
			MaxRetries:             5,
			MaxLoopBackoff:         30 * time.Minute,
			VectorCapacityLimit:    1_000_000,
			MetadataSizeLimitBytes: 10_000,
			WarningThreshold:       0.8,
			CriticalThreshold:      0.95,
			DriftInterval:          30 * time.Minute,
			DriftBatchSize:         200,
		},
		Consolidation: ConsolidationConfig{
			IncrementalMode:     true,
			BatchSize:           500,
			ClusteringEnabled:   true,
			AssociationsEnabled: true,
			CompressionEnabled:  true,
			ForgettingEnabled:   true,
			MinConfidence:       0.6,
			ArchiveBelow:        0.1,
			DeleteBelow:         0.05,
		},
		Health: HealthConfig{
			Enabled:  true,
			Interval: 30 * time.Minute,
		},
		Backup: BackupConfig{
			Dir:        filepath.Join(configDir, "backups"),
			Interval:   24 * time.Hour,
			MaxBackups: 7,
		},
	}
}

// Load loads configuration from YAML file with fallback to defaults.
// Searches, in order: ./config.yaml, ~/.engram/config.yaml, /etc/engram/config.yaml.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom loads configuration from an explicit file path. An empty path
// falls back to Load's default search path.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".engram"))
		v.AddConfigPath("/etc/engram")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && path == "" {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func defaultConfigDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".engram")
}

// setDefaults mirrors DefaultConfig's values into viper so a partial
// config.yaml only overrides what it actually sets.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("profile", d.Profile)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.auto_migrate", d.Database.AutoMigrate)

	v.SetDefault("rest_api.enabled", d.RestAPI.Enabled)
	v.SetDefault("rest_api.auto_port", d.RestAPI.AutoPort)
	v.SetDefault("rest_api.port", d.RestAPI.Port)
	v.SetDefault("rest_api.host", d.RestAPI.Host)
	v.SetDefault("rest_api.cors", d.RestAPI.CORS)
	v.SetDefault("rest_api.api_key", d.RestAPI.APIKey)
	v.SetDefault("rest_api.allow_origins", d.RestAPI.AllowOrigins)

	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.requests_per_second", d.RateLimit.RequestsPerSecond)
	v.SetDefault("rate_limit.burst_size", d.RateLimit.BurstSize)

	v.SetDefault("session.auto_generate", d.Session.AutoGenerate)
	v.SetDefault("session.strategy", d.Session.Strategy)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)

	v.SetDefault("embedding.mode", d.Embedding.Mode)
	v.SetDefault("embedding.base_url", d.Embedding.BaseURL)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimension", d.Embedding.Dimension)
	v.SetDefault("embedding.timeout", d.Embedding.Timeout)

	v.SetDefault("splitter.max_length", d.Splitter.MaxLength)
	v.SetDefault("splitter.overlap", d.Splitter.Overlap)
	v.SetDefault("splitter.preserve_boundaries", d.Splitter.PreserveBoundaries)

	v.SetDefault("cloud.enabled", d.Cloud.Enabled)
	v.SetDefault("cloud.auto_detect", d.Cloud.AutoDetect)
	v.SetDefault("cloud.vector_url", d.Cloud.VectorURL)
	v.SetDefault("cloud.relational_url", d.Cloud.RelationalURL)
	v.SetDefault("cloud.object_url", d.Cloud.ObjectURL)
	v.SetDefault("cloud.collection", d.Cloud.Collection)
	v.SetDefault("cloud.table", d.Cloud.Table)
	v.SetDefault("cloud.bucket", d.Cloud.Bucket)
	v.SetDefault("cloud.dimension", d.Cloud.Dimension)
	v.SetDefault("cloud.large_content_threshold", d.Cloud.LargeContentThreshold)
	v.SetDefault("cloud.max_retries", d.Cloud.MaxRetries)
	v.SetDefault("cloud.schema_verify_attempts", d.Cloud.SchemaVerifyAttempts)
	v.SetDefault("cloud.schema_verify_delay", d.Cloud.SchemaVerifyDelay)
	v.SetDefault("cloud.timeout", d.Cloud.Timeout)

	v.SetDefault("hybrid.initial_sync_page_size", d.Hybrid.InitialSyncPageSize)
	v.SetDefault("hybrid.initial_sync_max_empty_batches", d.Hybrid.InitialSyncMaxEmptyBatches)
	v.SetDefault("hybrid.initial_sync_start_delay", d.Hybrid.InitialSyncStartDelay)

	v.SetDefault("sync.queue_capacity", d.Sync.QueueCapacity)
	v.SetDefault("sync.drain_interval", d.Sync.DrainInterval)
	v.SetDefault("sync.batch_size", d.Sync.BatchSize)
	v.SetDefault("sync.health_check_interval", d.Sync.HealthCheckInterval)
	v.SetDefault("sync.max_retries", d.Sync.MaxRetries)
	v.SetDefault("sync.max_loop_backoff", d.Sync.MaxLoopBackoff)
	v.SetDefault("sync.vector_capacity_limit", d.Sync.VectorCapacityLimit)
	v.SetDefault("sync.metadata_size_limit_bytes", d.Sync.MetadataSizeLimitBytes)
	v.SetDefault("sync.warning_threshold", d.Sync.WarningThreshold)
	v.SetDefault("sync.critical_threshold", d.Sync.CriticalThreshold)
	v.SetDefault("sync.drift_interval", d.Sync.DriftInterval)
	v.SetDefault("sync.drift_batch_size", d.Sync.DriftBatchSize)

	v.SetDefault("consolidation.incremental_mode", d.Consolidation.IncrementalMode)
	v.SetDefault("consolidation.batch_size", d.Consolidation.BatchSize)
	v.SetDefault("consolidation.clustering_enabled", d.Consolidation.ClusteringEnabled)
	v.SetDefault("consolidation.associations_enabled", d.Consolidation.AssociationsEnabled)
	v.SetDefault("consolidation.compression_enabled", d.Consolidation.CompressionEnabled)
	v.SetDefault("consolidation.forgetting_enabled", d.Consolidation.ForgettingEnabled)
	v.SetDefault("consolidation.min_confidence", d.Consolidation.MinConfidence)
	v.SetDefault("consolidation.archive_below", d.Consolidation.ArchiveBelow)
	v.SetDefault("consolidation.delete_below", d.Consolidation.DeleteBelow)
	v.SetDefault("consolidation.archive_path", d.Consolidation.ArchivePath)

	v.SetDefault("health.enabled", d.Health.Enabled)
	v.SetDefault("health.interval", d.Health.Interval)

	v.SetDefault("backup.dir", d.Backup.Dir)
	v.SetDefault("backup.interval", d.Backup.Interval)
	v.SetDefault("backup.max_backups", d.Backup.MaxBackups)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.RestAPI.Enabled {
		if c.RestAPI.Port < 1 || c.RestAPI.Port > 65535 {
			return fmt.Errorf("rest_api.port must be between 1 and 65535")
		}
		if c.RestAPI.Host == "" {
			return fmt.Errorf("rest_api.host is required when REST API is enabled")
		}
	}

	if c.Session.Strategy != "git-directory" && c.Session.Strategy != "manual" {
		return fmt.Errorf("session.strategy must be 'git-directory' or 'manual'")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: console, json")
	}

	if c.Embedding.Mode != "local" && c.Embedding.Mode != "http" {
		return fmt.Errorf("embedding.mode must be 'local' or 'http'")
	}
	if c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.base_url is required")
	}

	if c.Splitter.Overlap >= c.Splitter.MaxLength {
		return fmt.Errorf("splitter.overlap must be smaller than splitter.max_length")
	}

	if c.Cloud.Enabled {
		if c.Cloud.VectorURL == "" || c.Cloud.RelationalURL == "" || c.Cloud.ObjectURL == "" {
			return fmt.Errorf("cloud.vector_url, cloud.relational_url and cloud.object_url are required when cloud is enabled")
		}
	}

	if c.Consolidation.DeleteBelow > c.Consolidation.ArchiveBelow {
		return fmt.Errorf("consolidation.delete_below must be <= consolidation.archive_below")
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func (c *Config) EnsureConfigDir() error {
	configDir := filepath.Dir(c.Database.Path)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// ConfigPath returns the path to the configuration directory.
func ConfigPath() string {
	return defaultConfigDir()
}

// DatabasePath returns the default database path.
func DatabasePath() string {
	return filepath.Join(ConfigPath(), "memories.db")
}
