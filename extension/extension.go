// Package extension provides the Forge extension adapter for the PaperForge
// ledger.
//
// It implements the forge.Extension interface to integrate the ledger
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.paperforge" or
// "paperforge" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	ledger "github.com/paperforge/ledger"
	"github.com/paperforge/ledger/store"
	"github.com/paperforge/ledger/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "paperforge"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Entitlement and usage-accounting engine for paper conversions"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the PaperForge ledger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *ledger.Ledger
	store      store.Store
	ledgerOpts []ledger.Option
}

// New creates a new PaperForge Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Ledger instance.
// This is nil until Register is called.
func (e *Extension) Engine() *ledger.Ledger { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the ledger engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	// Build ledger options from resolved config.
	opts := e.buildLedgerOpts()

	eng := ledger.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*ledger.Ledger, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("paperforge: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("paperforge: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildLedgerOpts constructs ledger.Option values from the resolved config.
func (e *Extension) buildLedgerOpts() []ledger.Option {
	opts := make([]ledger.Option, 0, len(e.ledgerOpts)+2)

	if e.config.AnalyticsBatchSize > 0 || e.config.AnalyticsFlushInterval > 0 {
		batchSize := e.config.AnalyticsBatchSize
		flushInterval := e.config.AnalyticsFlushInterval
		defaults := DefaultConfig()
		if batchSize == 0 {
			batchSize = defaults.AnalyticsBatchSize
		}
		if flushInterval == 0 {
			flushInterval = defaults.AnalyticsFlushInterval
		}
		opts = append(opts, ledger.WithAnalyticsConfig(batchSize, flushInterval))
	}

	if e.config.CountCacheTTL > 0 {
		opts = append(opts, ledger.WithCountCacheTTL(e.config.CountCacheTTL))
	}

	// Append any pass-through ledger options.
	opts = append(opts, e.ledgerOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("paperforge: configuration is required but not found in config files; " +
				"ensure 'extensions.paperforge' or 'paperforge' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("paperforge: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("analytics_batch_size", e.config.AnalyticsBatchSize),
		forge.F("analytics_flush_interval", e.config.AnalyticsFlushInterval),
		forge.F("count_cache_ttl", e.config.CountCacheTTL),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.paperforge" first (namespaced pattern).
	if cm.IsSet("extensions.paperforge") {
		if err := cm.Bind("extensions.paperforge", &cfg); err == nil {
			e.Logger().Debug("paperforge: loaded config from file",
				forge.F("key", "extensions.paperforge"),
			)
			return cfg, true
		}
		e.Logger().Warn("paperforge: failed to bind extensions.paperforge config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "paperforge" key.
	if cm.IsSet("paperforge") {
		if err := cm.Bind("paperforge", &cfg); err == nil {
			e.Logger().Debug("paperforge: loaded config from file",
				forge.F("key", "paperforge"),
			)
			return cfg, true
		}
		e.Logger().Warn("paperforge: failed to bind paperforge config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.AnalyticsBatchSize == 0 {
		cfg.AnalyticsBatchSize = defaults.AnalyticsBatchSize
	}
	if cfg.AnalyticsFlushInterval == 0 {
		cfg.AnalyticsFlushInterval = defaults.AnalyticsFlushInterval
	}
	if cfg.CountCacheTTL == 0 {
		cfg.CountCacheTTL = defaults.CountCacheTTL
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.AnalyticsBatchSize == 0 && programmaticConfig.AnalyticsBatchSize != 0 {
		yamlConfig.AnalyticsBatchSize = programmaticConfig.AnalyticsBatchSize
	}
	if yamlConfig.AnalyticsFlushInterval == 0 && programmaticConfig.AnalyticsFlushInterval != 0 {
		yamlConfig.AnalyticsFlushInterval = programmaticConfig.AnalyticsFlushInterval
	}
	if yamlConfig.CountCacheTTL == 0 && programmaticConfig.CountCacheTTL != 0 {
		yamlConfig.CountCacheTTL = programmaticConfig.CountCacheTTL
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
