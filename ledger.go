package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paperforge/ledger/account"
	"github.com/paperforge/ledger/entitlement"
	"github.com/paperforge/ledger/id"
	"github.com/paperforge/ledger/payment"
	"github.com/paperforge/ledger/plugin"
	"github.com/paperforge/ledger/store"
	"github.com/paperforge/ledger/types"
	"github.com/paperforge/ledger/usage"
)

// Pipeline performs the actual paper conversion once entitlement is
// granted. Its internals (parsing, analysis, template generation) are
// outside the ledger; the ledger only needs its completed/failed signal.
type Pipeline interface {
	Convert(ctx context.Context, paperRef string) error
}

// PipelineFunc is an adapter to use a plain function as a Pipeline.
type PipelineFunc func(ctx context.Context, paperRef string) error

// Convert implements Pipeline.
func (f PipelineFunc) Convert(ctx context.Context, paperRef string) error {
	return f(ctx, paperRef)
}

// Receipt is the result of a full conversion flow: the decision that was
// made and the attempt that was recorded for it.
type Receipt struct {
	Decision entitlement.Decision     `json:"decision"`
	Attempt  *usage.ConversionAttempt `json:"attempt,omitempty"`
}

// Ledger is the entitlement and usage-accounting engine.
type Ledger struct {
	store   store.Store
	gateway payment.Gateway
	plugins *plugin.Registry
	logger  *slog.Logger

	// Per-account serialization of evaluate+record. Guards against two
	// in-process flows both reading "zero completed" and both being
	// granted the free conversion. Cross-process races need a store-level
	// transaction and are documented as out of scope.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	// Background workers
	decisionBuffer chan *entitlement.Event
	stopChan       chan struct{}
	wg             sync.WaitGroup

	// Configuration
	analyticsBatchSize     int
	analyticsFlushInterval time.Duration
	countCacheTTL          time.Duration
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:                  s,
		plugins:                plugin.NewRegistry(),
		logger:                 slog.Default(),
		locks:                  make(map[string]*sync.Mutex),
		decisionBuffer:         make(chan *entitlement.Event, 10000),
		stopChan:               make(chan struct{}),
		analyticsBatchSize:     100,
		analyticsFlushInterval: 5 * time.Second,
		countCacheTTL:          30 * time.Second,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithGateway sets the payment gateway.
func WithGateway(g payment.Gateway) Option {
	return func(l *Ledger) {
		l.gateway = g
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithAnalyticsConfig configures decision analytics batching.
func WithAnalyticsConfig(batchSize int, flushInterval time.Duration) Option {
	return func(l *Ledger) {
		l.analyticsBatchSize = batchSize
		l.analyticsFlushInterval = flushInterval
	}
}

// WithCountCacheTTL sets the monthly-count cache TTL.
func WithCountCacheTTL(ttl time.Duration) Option {
	return func(l *Ledger) {
		l.countCacheTTL = ttl
	}
}

// Start begins background workers.
func (l *Ledger) Start(ctx context.Context) error {
	// Migrate database
	if err := l.store.Migrate(ctx); err != nil {
		return err
	}

	// Initialize plugins
	l.plugins.EmitInit(ctx, l)

	// Adopt a gateway plugin when none was configured directly.
	if l.gateway == nil {
		for _, gp := range l.plugins.GetGateways() {
			if g, ok := gp.Gateway().(payment.Gateway); ok {
				l.gateway = g
				break
			}
		}
	}

	// Start analytics flush worker
	l.wg.Add(1)
	go l.decisionFlushWorker(ctx)

	l.logger.Info("ledger started",
		"batch_size", l.analyticsBatchSize,
		"flush_interval", l.analyticsFlushInterval,
		"cache_ttl", l.countCacheTTL,
	)

	return nil
}

// Stop shuts down the Ledger.
func (l *Ledger) Stop() error {
	close(l.stopChan)
	l.wg.Wait()

	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)

	return l.store.Close()
}

// ──────────────────────────────────────────────────
// Account Management
// ──────────────────────────────────────────────────

// CreateAccount creates a new billing account. An unset MonthlyLimit is
// filled from the tier default; an unset tier defaults to free.
func (l *Ledger) CreateAccount(ctx context.Context, a *account.Account) error {
	if a.ID.IsNil() {
		a.ID = id.NewAccountID()
	}
	if a.Tier == "" {
		a.Tier = account.TierFree
	}
	if a.MonthlyLimit == 0 {
		a.MonthlyLimit = account.DefaultLimit(a.Tier)
	}
	a.Entity = types.NewEntity()

	if err := l.store.CreateAccount(ctx, a); err != nil {
		return err
	}

	l.plugins.EmitAccountCreated(ctx, a)
	return nil
}

// GetAccount retrieves an account by ID.
func (l *Ledger) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	return l.store.GetAccount(ctx, accountID)
}

// GetOrCreateAccount looks up an account by its external auth subject,
// provisioning a free-tier account on first sight. Signup and first use
// are the same moment in the product, so the ledger upserts.
func (l *Ledger) GetOrCreateAccount(ctx context.Context, subject, email string) (*account.Account, error) {
	a, err := l.store.GetAccountBySubject(ctx, subject)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	a = &account.Account{
		Subject: subject,
		Email:   email,
		Tier:    account.TierFree,
	}
	if createErr := l.CreateAccount(ctx, a); createErr != nil {
		// Lost a creation race; re-read.
		if errors.Is(createErr, ErrAccountExists) {
			return l.store.GetAccountBySubject(ctx, subject)
		}
		return nil, createErr
	}
	return a, nil
}

// ChangeTier updates an account's subscription tier and monthly limit.
// Pass limit 0 to adopt the tier default. Invoked by the external billing
// process, never by the conversion flow.
func (l *Ledger) ChangeTier(ctx context.Context, accountID id.AccountID, tier account.Tier, limit int64) error {
	switch tier {
	case account.TierFree, account.TierPro, account.TierTeam:
	default:
		return ErrInvalidTier
	}

	a, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}

	oldTier := a.Tier
	a.Tier = tier
	if limit == 0 {
		limit = account.DefaultLimit(tier)
	}
	a.MonthlyLimit = limit
	a.Touch()

	if err := l.store.UpdateAccount(ctx, a); err != nil {
		return err
	}

	// The limit changed; any cached count is now paired with stale rules.
	_ = l.store.InvalidateCount(ctx, accountID) //nolint:errcheck // best-effort cache invalidation

	l.plugins.EmitTierChanged(ctx, a, string(oldTier), string(tier))
	return nil
}

// ──────────────────────────────────────────────────
// Entitlement
// ──────────────────────────────────────────────────

// Evaluate computes the entitlement decision for the account's next
// conversion. It is read-only: no attempt is recorded and no charge is
// made. The monthly completed count is served from a short-lived cache
// that every recorded attempt invalidates.
func (l *Ledger) Evaluate(ctx context.Context, accountID id.AccountID) (*entitlement.Decision, error) {
	a, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	completed, err := l.completedThisMonth(ctx, accountID)
	if err != nil {
		return nil, err
	}

	d := entitlement.Evaluate(a, completed)

	l.bufferDecision(accountID, &d)
	l.plugins.EmitDecisionEvaluated(ctx, accountID.String(), &d)

	switch d.Reason {
	case entitlement.ReasonFirstFree:
		l.plugins.EmitFreeGranted(ctx, accountID.String())
	case entitlement.ReasonDenied:
		l.plugins.EmitLimitExceeded(ctx, accountID.String(), completed, a.EffectiveLimit())
	}

	return &d, nil
}

func (l *Ledger) completedThisMonth(ctx context.Context, accountID id.AccountID) (int64, error) {
	if cached, err := l.store.GetCachedCount(ctx, accountID); err == nil {
		return cached, nil
	}

	count, err := l.store.CountCompleted(ctx, accountID, usage.MonthStart(time.Now()))
	if err != nil {
		return 0, err
	}

	_ = l.store.SetCachedCount(ctx, accountID, count, l.countCacheTTL) //nolint:errcheck // best-effort cache set
	return count, nil
}

// ──────────────────────────────────────────────────
// Usage Log
// ──────────────────────────────────────────────────

// RecordAttempt appends a conversion attempt to the usage log. It must be
// called exactly once per terminal state of a conversion, whether payment
// succeeded, failed, or was skipped. A failed append aborts the attempt:
// proceeding with an unlogged conversion would corrupt every future
// entitlement evaluation, so the error is surfaced loudly.
func (l *Ledger) RecordAttempt(ctx context.Context, accountID id.AccountID, outcome usage.Outcome, amountCharged types.Money, paymentRef, paperRef string) (*usage.ConversionAttempt, error) {
	switch outcome {
	case usage.OutcomeCompleted, usage.OutcomePaymentFailed, usage.OutcomeDenied:
	default:
		return nil, fmt.Errorf("%w: unknown outcome %q", ErrInvalidInput, outcome)
	}
	if amountCharged.IsNegative() {
		return nil, ErrInvalidAmount
	}

	attempt := &usage.ConversionAttempt{
		ID:            id.NewAttemptID(),
		AccountID:     accountID,
		Timestamp:     time.Now().UTC(),
		WasFree:       outcome == usage.OutcomeCompleted && amountCharged.IsZero(),
		AmountCharged: amountCharged,
		Outcome:       outcome,
		PaymentRef:    paymentRef,
		PaperRef:      paperRef,
	}

	if err := l.store.AppendAttempt(ctx, attempt); err != nil {
		l.logger.Error("usage log append failed",
			"account_id", accountID.String(),
			"outcome", outcome,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", ErrLedgerWriteFailed, err)
	}

	_ = l.store.InvalidateCount(ctx, accountID) //nolint:errcheck // best-effort cache invalidation

	l.plugins.EmitAttemptRecorded(ctx, attempt)
	return attempt, nil
}

// ListAttempts returns attempts for an account, newest first.
func (l *Ledger) ListAttempts(ctx context.Context, accountID id.AccountID, opts usage.QueryOpts) ([]*usage.ConversionAttempt, error) {
	return l.store.QueryAttempts(ctx, accountID, opts)
}

// GetUsageStats aggregates the account's usage view: completed counts
// for this month and all time, and total spend across completed attempts.
func (l *Ledger) GetUsageStats(ctx context.Context, accountID id.AccountID) (*usage.Stats, error) {
	if _, err := l.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return l.store.UsageStats(ctx, accountID, time.Now())
}

// ──────────────────────────────────────────────────
// Payments
// ──────────────────────────────────────────────────

// RequestPayment charges the gateway for one conversion. A decline or
// timeout yields an unsuccessful outcome; the ledger never retries, so a
// failed charge cannot turn into a double charge. The caller must record
// the attempt with OutcomePaymentFailed and stop.
func (l *Ledger) RequestPayment(ctx context.Context, accountID id.AccountID, amount types.Money, paperRef string) (*payment.Outcome, error) {
	if l.gateway == nil {
		return nil, ErrNoGateway
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	outcome, err := l.gateway.Charge(ctx, payment.ChargeRequest{
		Amount:   amount,
		PaperRef: paperRef,
		Metadata: map[string]string{
			"account_id": accountID.String(),
		},
	})
	if err != nil {
		// Transport failure is indistinguishable from a decline to the
		// user: the charge did not happen.
		l.logger.Warn("gateway charge errored",
			"account_id", accountID.String(),
			"error", err,
		)
		outcome = &payment.Outcome{Success: false, Decline: err.Error()}
	}

	if outcome.Success {
		l.plugins.EmitPaymentCharged(ctx, accountID.String(), outcome.Reference, amount)
	} else {
		l.plugins.EmitPaymentFailed(ctx, accountID.String(), amount, outcome.Decline)
	}

	return outcome, nil
}

// RefundAttempt refunds the payment behind a completed paid attempt.
// Admin path; the attempt record itself stays immutable, the refund lives
// at the gateway and in the audit stream.
func (l *Ledger) RefundAttempt(ctx context.Context, attemptID id.AttemptID, reason string) error {
	if l.gateway == nil {
		return ErrNoGateway
	}

	attempt, err := l.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if attempt.PaymentRef == "" {
		return ErrNotRefundable
	}

	if err := l.gateway.Refund(ctx, attempt.PaymentRef, reason); err != nil {
		return fmt.Errorf("%w: %w", ErrRefundFailed, err)
	}

	l.plugins.EmitRefundIssued(ctx, attempt.AccountID.String(), attempt.PaymentRef, reason)
	l.logger.Info("refund issued",
		"account_id", attempt.AccountID.String(),
		"payment_ref", attempt.PaymentRef,
		"reason", reason,
	)
	return nil
}

// ──────────────────────────────────────────────────
// Conversion Flow
// ──────────────────────────────────────────────────

// ProcessConversion drives one conversion end to end: evaluate, charge if
// required, record the terminal outcome, then hand off to the pipeline.
// Flows for the same account are serialized so two concurrent calls
// cannot both claim the free conversion.
//
// Every terminal state records exactly one attempt:
//
//	denied          -> OutcomeDenied, ErrLimitExceeded
//	payment failed  -> OutcomePaymentFailed, ErrPaymentDeclined
//	free or paid    -> OutcomeCompleted, then the pipeline runs
//
// The completed attempt is recorded before the pipeline is invoked; a
// pipeline failure surfaces as ErrPipelineFailed with the receipt intact
// so the caller can decide whether to refund.
func (l *Ledger) ProcessConversion(ctx context.Context, accountID id.AccountID, paperRef string, pipe Pipeline) (*Receipt, error) {
	unlock := l.lockAccount(accountID)
	defer unlock()

	decision, err := l.Evaluate(ctx, accountID)
	if err != nil {
		return nil, err
	}
	receipt := &Receipt{Decision: *decision}

	if !decision.CanProceed {
		attempt, recErr := l.RecordAttempt(ctx, accountID, usage.OutcomeDenied, types.Zero(entitlement.PricePerConversion.Currency), "", paperRef)
		if recErr != nil {
			return nil, recErr
		}
		receipt.Attempt = attempt
		return receipt, ErrLimitExceeded
	}

	var (
		charged    = types.Zero(entitlement.PricePerConversion.Currency)
		paymentRef string
	)

	if decision.RequiresPayment {
		outcome, payErr := l.RequestPayment(ctx, accountID, decision.AmountDue, paperRef)
		if payErr != nil {
			return receipt, payErr
		}
		if !outcome.Success {
			attempt, recErr := l.RecordAttempt(ctx, accountID, usage.OutcomePaymentFailed, types.Zero(decision.AmountDue.Currency), "", paperRef)
			if recErr != nil {
				return nil, recErr
			}
			receipt.Attempt = attempt
			return receipt, fmt.Errorf("%w: %s", ErrPaymentDeclined, outcome.Decline)
		}
		charged = decision.AmountDue
		paymentRef = outcome.Reference
	}

	attempt, err := l.RecordAttempt(ctx, accountID, usage.OutcomeCompleted, charged, paymentRef, paperRef)
	if err != nil {
		return nil, err
	}
	receipt.Attempt = attempt

	if pipe != nil {
		if pipeErr := pipe.Convert(ctx, paperRef); pipeErr != nil {
			l.logger.Warn("conversion pipeline failed after completed attempt",
				"account_id", accountID.String(),
				"attempt_id", attempt.ID.String(),
				"error", pipeErr,
			)
			return receipt, fmt.Errorf("%w: %w", ErrPipelineFailed, pipeErr)
		}
	}

	return receipt, nil
}

// lockAccount acquires the per-account mutex, creating it on first use.
func (l *Ledger) lockAccount(accountID id.AccountID) func() {
	key := accountID.String()

	l.locksMu.Lock()
	mu, ok := l.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		l.locks[key] = mu
	}
	l.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// ──────────────────────────────────────────────────
// Decision Analytics
// ──────────────────────────────────────────────────

// bufferDecision enqueues a decision analytics event (non-blocking).
// The stream is loss-tolerant; a full buffer drops the event.
func (l *Ledger) bufferDecision(accountID id.AccountID, d *entitlement.Decision) {
	event := &entitlement.Event{
		ID:         id.NewDecisionID(),
		AccountID:  accountID,
		CanProceed: d.CanProceed,
		Reason:     d.Reason,
		AmountDue:  d.AmountDue,
		Timestamp:  time.Now().UTC(),
	}

	select {
	case l.decisionBuffer <- event:
	default:
		l.logger.Warn("decision analytics buffer full, dropping event",
			"account_id", accountID.String(),
		)
	}
}

// decisionFlushWorker flushes buffered decision events to the store.
func (l *Ledger) decisionFlushWorker(ctx context.Context) {
	defer l.wg.Done()

	batch := make([]*entitlement.Event, 0, l.analyticsBatchSize)
	ticker := time.NewTicker(l.analyticsFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			// Drain anything still buffered, then flush once.
			for {
				select {
				case event := <-l.decisionBuffer:
					batch = append(batch, event)
				default:
					if len(batch) > 0 {
						l.flushDecisionBatch(ctx, batch)
					}
					return
				}
			}

		case event := <-l.decisionBuffer:
			batch = append(batch, event)
			if len(batch) >= l.analyticsBatchSize {
				l.flushDecisionBatch(ctx, batch)
				batch = make([]*entitlement.Event, 0, l.analyticsBatchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				l.flushDecisionBatch(ctx, batch)
				batch = make([]*entitlement.Event, 0, l.analyticsBatchSize)
			}
		}
	}
}

func (l *Ledger) flushDecisionBatch(ctx context.Context, batch []*entitlement.Event) {
	start := time.Now()

	if err := l.store.IngestDecisions(ctx, batch); err != nil {
		l.logger.Error("failed to flush decision batch",
			"error", err,
			"batch_size", len(batch),
		)
		return
	}

	elapsed := time.Since(start)
	l.plugins.EmitDecisionsFlushed(ctx, len(batch), elapsed)

	l.logger.Debug("flushed decision batch",
		"batch_size", len(batch),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}
