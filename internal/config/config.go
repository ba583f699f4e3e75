package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/pkg/titleid"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/pkg/tmdb"
)

type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Scan      ScanConfig      `mapstructure:"scan"`
	TMDB      TMDBConfig      `mapstructure:"tmdb"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type LoggerConfig struct {
	Level       string   `mapstructure:"level"`
	Format      string   `mapstructure:"format"`
	OutputPaths []string `mapstructure:"output_paths"`

	// File enables a size-rotated log file in addition to OutputPaths.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type ScanConfig struct {
	// Concurrency sizes the process-wide probe budget.
	Concurrency int      `mapstructure:"concurrency"`
	Categories  []string `mapstructure:"categories"`
	Progress    bool     `mapstructure:"progress"`
	ReportPath  string   `mapstructure:"report_path"`
}

type TMDBConfig struct {
	Domain  string `mapstructure:"domain"`
	HMACKey string `mapstructure:"hmac_key"`
}

type HTTPConfig struct {
	Timeout             time.Duration `mapstructure:"timeout"`
	UserAgent           string        `mapstructure:"user_agent"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	MaxBodyBytes        int64         `mapstructure:"max_body_bytes"`
	BlockPrivate        bool          `mapstructure:"block_private"`
}

type RateLimitConfig struct {
	// RequestsPerSecond of 0 disables pacing.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

type StorageConfig struct {
	OutputDir    string `mapstructure:"output_dir"`
	DiscoveryLog string `mapstructure:"discovery_log"`
}

// DefaultDatabaseFile is the sqlite3 index created under storage.output_dir
// when database.dsn is unset.
const DefaultDatabaseFile = "discoveries.db"

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Driver          string        `mapstructure:"driver"`
	// DSN empty means <storage.output_dir>/discoveries.db for sqlite3.
	DSN             string        `mapstructure:"dsn"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	// Addr empty disables the discovery feed.
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	Key          string        `mapstructure:"key"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	ExporterType string  `mapstructure:"exporter_type"`
	Endpoint     string  `mapstructure:"endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// Default mirrors the flag defaults registered in cmd/root.go.
func Default() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "console",
			OutputPaths: []string{"stderr"},
			MaxSizeMB:   100,
			MaxBackups:  5,
			MaxAgeDays:  30,
		},
		Scan: ScanConfig{
			Concurrency: 10,
		},
		TMDB: TMDBConfig{
			Domain:  tmdb.DefaultDomain,
			HMACKey: tmdb.DefaultKeyHex,
		},
		HTTP: HTTPConfig{
			Timeout:             30 * time.Second,
			UserAgent:           "tmdbscan/1.0",
			MaxIdleConnsPerHost: 100,
			MaxBodyBytes:        16 << 20,
		},
		RateLimit: RateLimitConfig{
			BurstSize: 1,
		},
		Storage: StorageConfig{
			OutputDir:    "tmdb-out",
			DiscoveryLog: "found_links.txt",
		},
		Database: DatabaseConfig{
			Driver:          "sqlite3",
			MaxConnections:  4,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Hour,
		},
		Redis: RedisConfig{
			Key:          "tmdbscan:discoveries",
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "tmdbscan",
			ExporterType: "otlp",
			Endpoint:     "localhost:4318",
			SampleRate:   1.0,
		},
	}
}

// ResolveDefaults fills settings whose defaults depend on other settings.
func (c *Config) ResolveDefaults() {
	if c.Database.DSN == "" && c.Database.Driver == "sqlite3" {
		c.Database.DSN = filepath.Join(c.Storage.OutputDir, DefaultDatabaseFile)
	}
}

// Validate rejects settings the scanner cannot run with.
func (c *Config) Validate() error {
	if c.Scan.Concurrency < 1 {
		return fmt.Errorf("scan.concurrency must be at least 1, got %d", c.Scan.Concurrency)
	}
	if _, err := titleid.ParseCategories(c.Scan.Categories); err != nil {
		return fmt.Errorf("scan.categories: %w", err)
	}
	if _, err := tmdb.ParseKey(c.TMDB.HMACKey); err != nil {
		return fmt.Errorf("tmdb.hmac_key: %w", err)
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive, got %s", c.HTTP.Timeout)
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate_limit.requests_per_second must not be negative")
	}
	if c.Storage.OutputDir == "" {
		return fmt.Errorf("storage.output_dir is required")
	}
	if c.Database.Enabled {
		switch c.Database.Driver {
		case "sqlite3", "postgres":
		default:
			return fmt.Errorf("database.driver %q is not supported (sqlite3, postgres)", c.Database.Driver)
		}
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %s", c.Database.Driver)
		}
	}
	return nil
}

// Categories returns the parsed scan.categories, all categories when unset.
func (c *Config) Categories() []titleid.Category {
	cats, err := titleid.ParseCategories(c.Scan.Categories)
	if err != nil {
		return titleid.Categories()
	}
	return cats
}
