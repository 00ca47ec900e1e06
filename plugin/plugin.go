// Package plugin provides an extensible plugin system for the ledger.
// Plugins can hook into lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Account lifecycle hooks
// ──────────────────────────────────────────────────

// OnAccountCreated is called when a new account is created.
type OnAccountCreated interface {
	Plugin
	OnAccountCreated(ctx context.Context, acc interface{}) error
}

// OnTierChanged is called when an account's subscription tier changes.
type OnTierChanged interface {
	Plugin
	OnTierChanged(ctx context.Context, acc interface{}, oldTier, newTier string) error
}

// ──────────────────────────────────────────────────
// Entitlement hooks
// ──────────────────────────────────────────────────

// OnDecisionEvaluated is called after every entitlement evaluation.
type OnDecisionEvaluated interface {
	Plugin
	OnDecisionEvaluated(ctx context.Context, accountID string, decision interface{}) error
}

// OnLimitExceeded is called when a paid-tier account hits its monthly cap.
type OnLimitExceeded interface {
	Plugin
	OnLimitExceeded(ctx context.Context, accountID string, used, limit int64) error
}

// OnFreeGranted is called when the monthly free conversion is granted.
type OnFreeGranted interface {
	Plugin
	OnFreeGranted(ctx context.Context, accountID string) error
}

// ──────────────────────────────────────────────────
// Usage log hooks
// ──────────────────────────────────────────────────

// OnAttemptRecorded is called after a conversion attempt is appended to the
// usage log, for every terminal outcome.
type OnAttemptRecorded interface {
	Plugin
	OnAttemptRecorded(ctx context.Context, attempt interface{}) error
}

// OnDecisionsFlushed is called when buffered decision analytics events are
// flushed to the store.
type OnDecisionsFlushed interface {
	Plugin
	OnDecisionsFlushed(ctx context.Context, count int, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentCharged is called when the gateway authorizes a charge.
type OnPaymentCharged interface {
	Plugin
	OnPaymentCharged(ctx context.Context, accountID, reference string, amount interface{}) error
}

// OnPaymentFailed is called when the gateway declines a charge.
type OnPaymentFailed interface {
	Plugin
	OnPaymentFailed(ctx context.Context, accountID string, amount interface{}, decline string) error
}

// OnRefundIssued is called when a refund is issued for a past attempt.
type OnRefundIssued interface {
	Plugin
	OnRefundIssued(ctx context.Context, accountID, reference, reason string) error
}

// ──────────────────────────────────────────────────
// Gateway providers
// ──────────────────────────────────────────────────

// GatewayPlugin provides a payment gateway implementation.
type GatewayPlugin interface {
	Plugin
	Gateway() interface{} // Returns payment.Gateway
}
