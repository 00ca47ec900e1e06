package extension

import "time"

// Config holds the PaperForge extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.paperforge" or "paperforge" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// AnalyticsBatchSize is the number of decision events to buffer before
	// flushing to the store (default: 100).
	AnalyticsBatchSize int `json:"analytics_batch_size" mapstructure:"analytics_batch_size" yaml:"analytics_batch_size"`

	// AnalyticsFlushInterval is how frequently the decision buffer is flushed
	// even if the batch size has not been reached (default: 5s).
	AnalyticsFlushInterval time.Duration `json:"analytics_flush_interval" mapstructure:"analytics_flush_interval" yaml:"analytics_flush_interval"`

	// CountCacheTTL controls how long monthly completed counts are cached
	// before re-counting against the store (default: 30s).
	CountCacheTTL time.Duration `json:"count_cache_ttl" mapstructure:"count_cache_ttl" yaml:"count_cache_ttl"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		AnalyticsBatchSize:     100,
		AnalyticsFlushInterval: 5 * time.Second,
		CountCacheTTL:          30 * time.Second,
	}
}
