package extension

import (
	"time"

	ledger "github.com/paperforge/ledger"
	"github.com/paperforge/ledger/payment"
	"github.com/paperforge/ledger/plugin"
	"github.com/paperforge/ledger/store"
)

// Option configures the PaperForge Forge extension.
type Option func(*Extension)

// WithStore sets the store for the ledger engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGateway sets the payment gateway for the ledger engine.
func WithGateway(g payment.Gateway) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, ledger.WithGateway(g))
	}
}

// WithLedgerOption passes a ledger.Option through to the underlying engine.
func WithLedgerOption(opt ledger.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, ledger.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithAnalyticsBatchSize sets the number of decision events to buffer before flushing.
func WithAnalyticsBatchSize(size int) Option {
	return func(e *Extension) { e.config.AnalyticsBatchSize = size }
}

// WithAnalyticsFlushInterval sets how frequently the decision buffer is flushed.
func WithAnalyticsFlushInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.AnalyticsFlushInterval = d }
}

// WithCountCacheTTL sets the monthly-count cache duration.
func WithCountCacheTTL(d time.Duration) Option {
	return func(e *Extension) { e.config.CountCacheTTL = d }
}
