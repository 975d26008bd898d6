// Package config defines service configuration structures and loading.
//
// Conventions:
// - Provide New() defaults and Load(ctx) for layered loading.
// - External errors are wrapped via this package's sentinels.
package config

import "runtime"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// MetricsAddr configures the Prometheus listen address, e.g. ":9090".
	MetricsAddr string `koanf:"metrics_addr"`

	// WorkerCount sets the number of recompute workers.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the recompute task queue.
	QueueSize int `koanf:"queue_size"`

	// CoalesceDelayMS widens the event batching window before a pending
	// recomputation dispatches. Zero dispatches immediately.
	CoalesceDelayMS int `koanf:"coalesce_delay_ms"`

	// DependencyTimeoutMS bounds waits on submetric recomputations.
	DependencyTimeoutMS int `koanf:"dependency_timeout_ms"`

	// StoreRetryAttempts and StoreRetryDelayMS bound retries of
	// transient store failures.
	StoreRetryAttempts int `koanf:"store_retry_attempts"`
	StoreRetryDelayMS  int `koanf:"store_retry_delay_ms"`

	// MissingTagWeight applies to inputs whose tag is not in a metric's
	// weight map. The default 0 excludes them.
	MissingTagWeight float64 `koanf:"missing_tag_weight"`

	// AbsentAsZero makes absent inputs join aggregation as zeros
	// instead of being excluded.
	AbsentAsZero bool `koanf:"absent_as_zero"`

	// PostgresDSN selects the Postgres store backends when non-empty;
	// otherwise the in-memory backends are used.
	PostgresDSN string `koanf:"postgres_dsn"`

	// RedisAddr enables the Redis coverage cache when non-empty.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// CoverageCacheTTLMS bounds Redis coverage cache entries.
	CoverageCacheTTLMS int `koanf:"coverage_cache_ttl_ms"`
}

// New returns the default configuration.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		MetricsAddr:         ":9090",
		WorkerCount:         runtime.NumCPU() * 2,
		QueueSize:           10_000,
		CoalesceDelayMS:     50,
		DependencyTimeoutMS: 5_000,
		StoreRetryAttempts:  3,
		StoreRetryDelayMS:   50,
		MissingTagWeight:    0,
		AbsentAsZero:        false,
		CoverageCacheTTLMS:  300_000,
	}
}
