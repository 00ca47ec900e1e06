// Package audithook bridges Ledger lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on any
// particular audit store. Callers inject a RecorderFunc adapter that bridges
// to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/paperforge/ledger/account"
	"github.com/paperforge/ledger/plugin"
	"github.com/paperforge/ledger/usage"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin            = (*Extension)(nil)
	_ plugin.OnAccountCreated  = (*Extension)(nil)
	_ plugin.OnTierChanged     = (*Extension)(nil)
	_ plugin.OnLimitExceeded   = (*Extension)(nil)
	_ plugin.OnFreeGranted     = (*Extension)(nil)
	_ plugin.OnAttemptRecorded = (*Extension)(nil)
	_ plugin.OnPaymentCharged  = (*Extension)(nil)
	_ plugin.OnPaymentFailed   = (*Extension)(nil)
	_ plugin.OnRefundIssued    = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// Defined locally so this package carries no backend dependency — callers
// inject the concrete recorder at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Ledger lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Account lifecycle hooks
// ──────────────────────────────────────────────────

// OnAccountCreated implements plugin.OnAccountCreated.
func (e *Extension) OnAccountCreated(ctx context.Context, acc interface{}) error {
	var resourceID, tier string
	if a, ok := acc.(*account.Account); ok {
		resourceID = a.ID.String()
		tier = string(a.Tier)
	}
	return e.record(ctx, ActionAccountCreated, SeverityInfo, OutcomeSuccess,
		ResourceAccount, resourceID, CategoryAccount, nil,
		"tier", tier,
	)
}

// OnTierChanged implements plugin.OnTierChanged.
func (e *Extension) OnTierChanged(ctx context.Context, acc interface{}, oldTier, newTier string) error {
	var resourceID string
	if a, ok := acc.(*account.Account); ok {
		resourceID = a.ID.String()
	}
	return e.record(ctx, ActionTierChanged, SeverityInfo, OutcomeSuccess,
		ResourceAccount, resourceID, CategoryAccount, nil,
		"old_tier", oldTier,
		"new_tier", newTier,
	)
}

// ──────────────────────────────────────────────────
// Entitlement lifecycle hooks
// ──────────────────────────────────────────────────

// OnLimitExceeded implements plugin.OnLimitExceeded.
func (e *Extension) OnLimitExceeded(ctx context.Context, accountID string, used, limit int64) error {
	return e.record(ctx, ActionLimitExceeded, SeverityWarning, OutcomeFailure,
		ResourceEntitlement, accountID, CategoryAccess, nil,
		"account_id", accountID,
		"used", used,
		"limit", limit,
	)
}

// OnFreeGranted implements plugin.OnFreeGranted.
func (e *Extension) OnFreeGranted(ctx context.Context, accountID string) error {
	return e.record(ctx, ActionFreeGranted, SeverityInfo, OutcomeSuccess,
		ResourceEntitlement, accountID, CategoryAccess, nil,
		"account_id", accountID,
	)
}

// ──────────────────────────────────────────────────
// Usage log hooks
// ──────────────────────────────────────────────────

// OnAttemptRecorded implements plugin.OnAttemptRecorded.
func (e *Extension) OnAttemptRecorded(ctx context.Context, attempt interface{}) error {
	a, ok := attempt.(*usage.ConversionAttempt)
	if !ok {
		return e.record(ctx, ActionAttemptRecorded, SeverityInfo, OutcomeSuccess,
			ResourceAttempt, "", CategoryUsage, nil)
	}

	severity := SeverityInfo
	outcome := OutcomeSuccess
	if a.Outcome != usage.OutcomeCompleted {
		severity = SeverityWarning
		outcome = OutcomeFailure
	}

	return e.record(ctx, ActionAttemptRecorded, severity, outcome,
		ResourceAttempt, a.ID.String(), CategoryUsage, nil,
		"account_id", a.AccountID.String(),
		"outcome", string(a.Outcome),
		"was_free", a.WasFree,
		"amount_cents", a.AmountCharged.Amount,
	)
}

// ──────────────────────────────────────────────────
// Payment lifecycle hooks
// ──────────────────────────────────────────────────

// OnPaymentCharged implements plugin.OnPaymentCharged.
func (e *Extension) OnPaymentCharged(ctx context.Context, accountID, reference string, amount interface{}) error {
	return e.record(ctx, ActionPaymentCharged, SeverityInfo, OutcomeSuccess,
		ResourcePayment, reference, CategoryPayment, nil,
		"account_id", accountID,
		"amount", fmt.Sprintf("%v", amount),
	)
}

// OnPaymentFailed implements plugin.OnPaymentFailed.
func (e *Extension) OnPaymentFailed(ctx context.Context, accountID string, amount interface{}, decline string) error {
	return e.record(ctx, ActionPaymentFailed, SeverityError, OutcomeFailure,
		ResourcePayment, accountID, CategoryPayment, nil,
		"account_id", accountID,
		"amount", fmt.Sprintf("%v", amount),
		"decline", decline,
	)
}

// OnRefundIssued implements plugin.OnRefundIssued.
func (e *Extension) OnRefundIssued(ctx context.Context, accountID, reference, reason string) error {
	return e.record(ctx, ActionRefundIssued, SeverityWarning, OutcomeSuccess,
		ResourcePayment, reference, CategoryPayment, nil,
		"account_id", accountID,
		"refund_reason", reason,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
