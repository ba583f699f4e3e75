package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/config"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/logger"
)

var (
	cfg     *config.Config
	log     *logger.Logger
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "tmdbscan",
	Short: "Discover published TMDB title metadata by brute-force probing",
	Long: `tmdbscan - TMDB title discovery

Enumerates every title-ID prefix the category grammars allow, derives the
HMAC-SHA1 token for each candidate ID and probes the TMDB endpoint with a
bounded number of requests in flight. Every 200 response is saved under
the output directory and appended to the discovery log.

USAGE:
  tmdbscan scan --all              # Sweep every prefix of every enabled category
  tmdbscan scan SCUS               # Sweep one prefix
  tmdbscan scan BCUS12345          # Sweep the prefix of a title ID
  tmdbscan prefixes --list         # Show the enumerated prefix set
  tmdbscan token SCUS97399         # Show the token and URL for one ID
  tmdbscan discoveries --limit 20  # Query the discovery index

CONFIGURATION:
  Flags, TMDBSCAN_* environment variables (TMDBSCAN_SCAN_CONCURRENCY,
  TMDBSCAN_DATABASE_DSN, ...) and an optional --config file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		var err error
		log, err = logger.New(cfg.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cmd.SetContext(logger.WithLogger(cmd.Context(), log))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log == nil {
			return
		}
		// Sync errors on stdout/stderr are expected on Linux
		if err := log.Close(); err != nil && !isStdSyncError(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", err)
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaults := config.Default()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional config file (yaml, json, toml)")

	// Logging configuration
	rootCmd.PersistentFlags().String("log-level", defaults.Logger.Level, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", defaults.Logger.Format, "log format (json, console)")
	rootCmd.PersistentFlags().String("log-file", "", "also write JSON logs to this size-rotated file")
	viper.BindPFlag("logger.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("logger.format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("logger.file", rootCmd.PersistentFlags().Lookup("log-file"))

	// Endpoint configuration
	rootCmd.PersistentFlags().String("domain", defaults.TMDB.Domain, "TMDB base URL")
	viper.BindPFlag("tmdb.domain", rootCmd.PersistentFlags().Lookup("domain"))
	viper.BindEnv("tmdb.hmac_key", "TMDBSCAN_TMDB_HMAC_KEY", "TMDB_HMAC_KEY")

	// HTTP configuration
	rootCmd.PersistentFlags().Duration("timeout", defaults.HTTP.Timeout, "per-request timeout")
	rootCmd.PersistentFlags().String("user-agent", defaults.HTTP.UserAgent, "User-Agent header sent with every probe")
	rootCmd.PersistentFlags().Bool("block-private", defaults.HTTP.BlockPrivate, "refuse to connect to private, loopback and link-local addresses")
	viper.BindPFlag("http.timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	viper.BindPFlag("http.user_agent", rootCmd.PersistentFlags().Lookup("user-agent"))
	viper.BindPFlag("http.block_private", rootCmd.PersistentFlags().Lookup("block-private"))

	// Rate limiting
	rootCmd.PersistentFlags().Float64("rate-limit", defaults.RateLimit.RequestsPerSecond, "fixed requests per second across all probes (0 disables)")
	rootCmd.PersistentFlags().Int("rate-burst", defaults.RateLimit.BurstSize, "rate limit burst size")
	viper.BindPFlag("rate_limit.requests_per_second", rootCmd.PersistentFlags().Lookup("rate-limit"))
	viper.BindPFlag("rate_limit.burst_size", rootCmd.PersistentFlags().Lookup("rate-burst"))

	// Storage
	rootCmd.PersistentFlags().String("output", defaults.Storage.OutputDir, "directory for payloads and the discovery log")
	viper.BindPFlag("storage.output_dir", rootCmd.PersistentFlags().Lookup("output"))

	// Database configuration
	rootCmd.PersistentFlags().Bool("db", defaults.Database.Enabled, "index discoveries in a database")
	rootCmd.PersistentFlags().String("db-driver", defaults.Database.Driver, "database driver (sqlite3, postgres)")
	rootCmd.PersistentFlags().String("db-dsn", "", "database connection string (sqlite3 default: <output>/"+config.DefaultDatabaseFile+")")
	viper.BindPFlag("database.enabled", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("database.driver", rootCmd.PersistentFlags().Lookup("db-driver"))
	viper.BindPFlag("database.dsn", rootCmd.PersistentFlags().Lookup("db-dsn"))
	viper.BindEnv("database.dsn", "TMDBSCAN_DATABASE_DSN", "DATABASE_URL")

	// Redis configuration
	rootCmd.PersistentFlags().String("redis-addr", defaults.Redis.Addr, "Redis address for the discovery feed (empty disables)")
	rootCmd.PersistentFlags().String("redis-password", "", "Redis password")
	rootCmd.PersistentFlags().Int("redis-db", defaults.Redis.DB, "Redis database number")
	viper.BindPFlag("redis.addr", rootCmd.PersistentFlags().Lookup("redis-addr"))
	viper.BindPFlag("redis.password", rootCmd.PersistentFlags().Lookup("redis-password"))
	viper.BindPFlag("redis.db", rootCmd.PersistentFlags().Lookup("redis-db"))
	viper.BindEnv("redis.addr", "TMDBSCAN_REDIS_ADDR", "REDIS_URL")
	viper.BindEnv("redis.password", "TMDBSCAN_REDIS_PASSWORD")

	// Telemetry
	rootCmd.PersistentFlags().Bool("telemetry", defaults.Telemetry.Enabled, "export traces and metrics over OTLP")
	viper.BindPFlag("telemetry.enabled", rootCmd.PersistentFlags().Lookup("telemetry"))

	// Set sensible defaults
	viper.SetDefault("logger.output_paths", defaults.Logger.OutputPaths)
	viper.SetDefault("logger.max_size_mb", defaults.Logger.MaxSizeMB)
	viper.SetDefault("logger.max_backups", defaults.Logger.MaxBackups)
	viper.SetDefault("logger.max_age_days", defaults.Logger.MaxAgeDays)
	viper.SetDefault("tmdb.hmac_key", defaults.TMDB.HMACKey)
	viper.SetDefault("http.max_idle_conns_per_host", defaults.HTTP.MaxIdleConnsPerHost)
	viper.SetDefault("http.max_body_bytes", defaults.HTTP.MaxBodyBytes)
	viper.SetDefault("storage.discovery_log", defaults.Storage.DiscoveryLog)
	viper.SetDefault("database.max_connections", defaults.Database.MaxConnections)
	viper.SetDefault("database.max_idle_conns", defaults.Database.MaxIdleConns)
	viper.SetDefault("database.conn_max_lifetime", defaults.Database.ConnMaxLifetime.String())
	viper.SetDefault("redis.key", defaults.Redis.Key)
	viper.SetDefault("redis.max_retries", defaults.Redis.MaxRetries)
	viper.SetDefault("redis.dial_timeout", defaults.Redis.DialTimeout.String())
	viper.SetDefault("redis.read_timeout", defaults.Redis.ReadTimeout.String())
	viper.SetDefault("redis.write_timeout", defaults.Redis.WriteTimeout.String())
	viper.SetDefault("telemetry.service_name", defaults.Telemetry.ServiceName)
	viper.SetDefault("telemetry.exporter_type", defaults.Telemetry.ExporterType)
	viper.SetDefault("telemetry.endpoint", defaults.Telemetry.Endpoint)
	viper.SetDefault("telemetry.sample_rate", defaults.Telemetry.SampleRate)
}

func initConfig() error {
	viper.SetEnvPrefix("TMDBSCAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	}

	cfg = config.Default()
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.ResolveDefaults()

	return cfg.Validate()
}

func isStdSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stdout") || strings.Contains(msg, "sync /dev/stderr")
}
