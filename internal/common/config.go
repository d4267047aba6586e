package common

import (
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config is the root application configuration, loaded from TOML files and
// environment variable overrides. Priority: defaults -> file1 -> file2 ->
// ... -> environment.
type Config struct {
	Environment string `toml:"environment"` // "development" or "production"

	// MaxConnections bounds the SQLite connection pool.
	MaxConnections int `toml:"max_connections"`

	// CPUTimeBuckets is the ladder used to ceiling raw CPUTime values into buckets.
	CPUTimeBuckets []int `toml:"cpu_time_buckets"`

	// PlatformOrder lists [ancestor, descendant] edges of the platform family
	// DAG. A resource offering a descendant platform satisfies a task queue
	// requiring any of its ancestors, so edges run old -> new: ["slc6", "centos7"]
	// means a centos7 worker can take slc6 work, never the reverse.
	PlatformOrder [][2]string `toml:"platform_order"`

	// DefaultRequestLifetime is a delegation-request lifetime in seconds. It is
	// loaded and defaulted here but no scheduler code reads it: the
	// expired-credential purge compares each row's own expires_at with now.
	DefaultRequestLifetime int `toml:"default_request_lifetime"`

	// MatchRetryBudget bounds the detach-retry loop in MatchAndGetJob.
	MatchRetryBudget int `toml:"match_retry_budget"`

	Storage      StorageConfig      `toml:"storage"`
	Housekeeping HousekeepingConfig `toml:"housekeeping"`
	Logging      LoggingConfig      `toml:"logging"`
}

type StorageConfig struct {
	SQLite SQLiteConfig `toml:"sqlite"`
}

// SQLiteConfig configures the backing store connection.
type SQLiteConfig struct {
	Path            string `toml:"path"`
	WALMode         bool   `toml:"wal_mode"`
	BusyTimeoutMS   int    `toml:"busy_timeout_ms"`
	CacheSizeMB     int    `toml:"cache_size_mb"`
	ResetOnStartup  bool   `toml:"reset_on_startup"`
	Environment     string `toml:"-"` // propagated from Config.Environment at load time
}

// HousekeepingConfig selects the cron cadence for periodic maintenance.
type HousekeepingConfig struct {
	// Schedule drives the orphaned-TQ sweep and the full share recalculation.
	Schedule string `toml:"schedule"`
	// ProxyPurgeSchedule drives purgeExpiredRequests / purgeExpiredProxies.
	ProxyPurgeSchedule string `toml:"proxy_purge_schedule"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Output     []string `toml:"output"`
	TimeFormat string   `toml:"time_format"`
}

// NewDefaultConfig returns the configuration baseline applied before any
// file or environment override is merged in.
func NewDefaultConfig() *Config {
	return &Config{
		Environment:            "development",
		MaxConnections:         10,
		CPUTimeBuckets:         []int{500, 1800, 10800, 43200, 86400, 250000, 500000, 1000000},
		PlatformOrder:          [][2]string{{"slc5", "slc6"}, {"slc6", "centos7"}, {"debian", "ubuntu"}},
		DefaultRequestLifetime: 86400,
		MatchRetryBudget:       3,
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				Path:          "./data/taskqueue.db",
				WALMode:       true,
				BusyTimeoutMS: 5000,
				CacheSizeMB:   32,
			},
		},
		Housekeeping: HousekeepingConfig{
			Schedule:           "*/5 * * * *",
			ProxyPurgeSchedule: "0 * * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFiles loads configuration from multiple TOML files with priority:
// default -> file1 -> file2 -> ... -> environment variables. Later files
// override earlier ones; unset entries keep the previous value.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &Error{Op: "LoadFromFiles", Path: path, Err: err}
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, &Error{Op: "LoadFromFiles", Path: path, Err: err}
		}
	}

	applyEnvOverrides(config)
	config.Storage.SQLite.Environment = config.Environment
	return config, nil
}

// Error wraps a config-loading failure with the offending file path.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// applyEnvOverrides applies TASKQUEUE_* environment variable overrides,
// which take priority over every config file.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("TASKQUEUE_ENV"); env != "" {
		config.Environment = env
	}
	if path := os.Getenv("TASKQUEUE_SQLITE_PATH"); path != "" {
		config.Storage.SQLite.Path = path
	}
	if n := os.Getenv("TASKQUEUE_MAX_CONNECTIONS"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			config.MaxConnections = v
		}
	}
	if n := os.Getenv("TASKQUEUE_MATCH_RETRY_BUDGET"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			config.MatchRetryBudget = v
		}
	}
	if lvl := os.Getenv("TASKQUEUE_LOG_LEVEL"); lvl != "" {
		config.Logging.Level = lvl
	}
	if out := os.Getenv("TASKQUEUE_LOG_OUTPUT"); out != "" {
		config.Logging.Output = splitAndTrimCSV(out)
	}
}

func splitAndTrimCSV(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// IsProduction reports whether the config is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
