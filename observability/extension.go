// Package observability provides a metrics extension for Ledger that records
// lifecycle event counts via a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/paperforge/ledger/entitlement"
	"github.com/paperforge/ledger/plugin"
	"github.com/paperforge/ledger/types"
	"github.com/paperforge/ledger/usage"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnInit              = (*MetricsExtension)(nil)
	_ plugin.OnAccountCreated    = (*MetricsExtension)(nil)
	_ plugin.OnTierChanged       = (*MetricsExtension)(nil)
	_ plugin.OnDecisionEvaluated = (*MetricsExtension)(nil)
	_ plugin.OnLimitExceeded     = (*MetricsExtension)(nil)
	_ plugin.OnFreeGranted       = (*MetricsExtension)(nil)
	_ plugin.OnAttemptRecorded   = (*MetricsExtension)(nil)
	_ plugin.OnDecisionsFlushed  = (*MetricsExtension)(nil)
	_ plugin.OnPaymentCharged    = (*MetricsExtension)(nil)
	_ plugin.OnPaymentFailed     = (*MetricsExtension)(nil)
	_ plugin.OnRefundIssued      = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Ledger plugin to automatically track conversion metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Account metrics
	AccountCreated Counter
	TierChanged    Counter

	// Entitlement metrics
	DecisionsEvaluated Counter
	FreeGranted        Counter
	PaymentRequired    Counter
	Denied             Counter

	// Usage metrics
	AttemptsCompleted     Counter
	AttemptsPaymentFailed Counter
	AttemptsDenied        Counter
	DecisionBatchSize     Histogram
	DecisionFlushLatency  Histogram

	// Payment metrics
	PaymentsCharged Counter
	PaymentsFailed  Counter
	RefundsIssued   Counter
	ChargedAmount   Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Account metrics
		AccountCreated: factory.Counter("paperforge.account.created"),
		TierChanged:    factory.Counter("paperforge.account.tier_changed"),

		// Entitlement metrics
		DecisionsEvaluated: factory.Counter("paperforge.decision.evaluated"),
		FreeGranted:        factory.Counter("paperforge.decision.free_granted"),
		PaymentRequired:    factory.Counter("paperforge.decision.payment_required"),
		Denied:             factory.Counter("paperforge.decision.denied"),

		// Usage metrics
		AttemptsCompleted:     factory.Counter("paperforge.attempt.completed"),
		AttemptsPaymentFailed: factory.Counter("paperforge.attempt.payment_failed"),
		AttemptsDenied:        factory.Counter("paperforge.attempt.denied"),
		DecisionBatchSize:     factory.Histogram("paperforge.decision.batch.size"),
		DecisionFlushLatency:  factory.Histogram("paperforge.decision.flush.latency_ms"),

		// Payment metrics
		PaymentsCharged: factory.Counter("paperforge.payment.charged"),
		PaymentsFailed:  factory.Counter("paperforge.payment.failed"),
		RefundsIssued:   factory.Counter("paperforge.payment.refunded"),
		ChargedAmount:   factory.Histogram("paperforge.payment.amount_cents"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Account lifecycle hooks
// ──────────────────────────────────────────────────

// OnAccountCreated implements plugin.OnAccountCreated.
func (m *MetricsExtension) OnAccountCreated(_ context.Context, _ interface{}) error {
	m.AccountCreated.Inc()
	return nil
}

// OnTierChanged implements plugin.OnTierChanged.
func (m *MetricsExtension) OnTierChanged(_ context.Context, _ interface{}, _, _ string) error {
	m.TierChanged.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Entitlement lifecycle hooks
// ──────────────────────────────────────────────────

// OnDecisionEvaluated implements plugin.OnDecisionEvaluated.
func (m *MetricsExtension) OnDecisionEvaluated(_ context.Context, _ string, decision interface{}) error {
	m.DecisionsEvaluated.Inc()
	if d, ok := decision.(*entitlement.Decision); ok && d.RequiresPayment {
		m.PaymentRequired.Inc()
	}
	return nil
}

// OnLimitExceeded implements plugin.OnLimitExceeded.
func (m *MetricsExtension) OnLimitExceeded(_ context.Context, _ string, _, _ int64) error {
	m.Denied.Inc()
	return nil
}

// OnFreeGranted implements plugin.OnFreeGranted.
func (m *MetricsExtension) OnFreeGranted(_ context.Context, _ string) error {
	m.FreeGranted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Usage lifecycle hooks
// ──────────────────────────────────────────────────

// OnAttemptRecorded implements plugin.OnAttemptRecorded.
func (m *MetricsExtension) OnAttemptRecorded(_ context.Context, attempt interface{}) error {
	a, ok := attempt.(*usage.ConversionAttempt)
	if !ok {
		return nil
	}
	switch a.Outcome {
	case usage.OutcomeCompleted:
		m.AttemptsCompleted.Inc()
	case usage.OutcomePaymentFailed:
		m.AttemptsPaymentFailed.Inc()
	case usage.OutcomeDenied:
		m.AttemptsDenied.Inc()
	}
	return nil
}

// OnDecisionsFlushed implements plugin.OnDecisionsFlushed.
func (m *MetricsExtension) OnDecisionsFlushed(_ context.Context, count int, elapsed time.Duration) error {
	m.DecisionBatchSize.Observe(float64(count))
	m.DecisionFlushLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// ──────────────────────────────────────────────────
// Payment lifecycle hooks
// ──────────────────────────────────────────────────

// OnPaymentCharged implements plugin.OnPaymentCharged.
func (m *MetricsExtension) OnPaymentCharged(_ context.Context, _, _ string, amount interface{}) error {
	m.PaymentsCharged.Inc()
	if money, ok := amount.(types.Money); ok {
		m.ChargedAmount.Observe(float64(money.Amount))
	}
	return nil
}

// OnPaymentFailed implements plugin.OnPaymentFailed.
func (m *MetricsExtension) OnPaymentFailed(_ context.Context, _ string, _ interface{}, _ string) error {
	m.PaymentsFailed.Inc()
	return nil
}

// OnRefundIssued implements plugin.OnRefundIssued.
func (m *MetricsExtension) OnRefundIssued(_ context.Context, _, _, _ string) error {
	m.RefundsIssued.Inc()
	return nil
}
