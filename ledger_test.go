package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	ledger "github.com/paperforge/ledger"
	"github.com/paperforge/ledger/account"
	"github.com/paperforge/ledger/entitlement"
	"github.com/paperforge/ledger/payment/simulated"
	"github.com/paperforge/ledger/store/memory"
	"github.com/paperforge/ledger/types"
	"github.com/paperforge/ledger/usage"
)

func newLedger(t *testing.T, opts ...ledger.Option) *ledger.Ledger {
	t.Helper()

	l := ledger.New(memory.New(), opts...)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		if err := l.Stop(); err != nil {
			t.Errorf("stop: %v", err)
		}
	})
	return l
}

func newFreeAccount(t *testing.T, l *ledger.Ledger) *account.Account {
	t.Helper()

	acc, err := l.GetOrCreateAccount(context.Background(), "auth0|"+t.Name(), t.Name()+"@example.com")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return acc
}

func completeOnce(t *testing.T, l *ledger.Ledger, acc *account.Account) {
	t.Helper()

	if _, err := l.ProcessConversion(context.Background(), acc.ID, "arxiv:2401.00001", nil); err != nil {
		t.Fatalf("conversion: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────

func TestGetOrCreateAccountUpserts(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	first, err := l.GetOrCreateAccount(ctx, "auth0|abc", "a@example.com")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first.Tier != account.TierFree {
		t.Errorf("new account tier: got %q, want free", first.Tier)
	}
	if first.MonthlyLimit != 1 {
		t.Errorf("new account limit: got %d, want 1", first.MonthlyLimit)
	}

	second, err := l.GetOrCreateAccount(ctx, "auth0|abc", "a@example.com")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.ID.String() != first.ID.String() {
		t.Error("same subject must resolve to the same account")
	}
}

func TestChangeTier(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	acc := newFreeAccount(t, l)

	if err := l.ChangeTier(ctx, acc.ID, account.TierPro, 0); err != nil {
		t.Fatalf("change tier: %v", err)
	}

	got, err := l.GetAccount(ctx, acc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Tier != account.TierPro {
		t.Errorf("tier: got %q, want pro", got.Tier)
	}
	if got.MonthlyLimit != account.Unlimited {
		t.Errorf("limit: got %d, want unlimited", got.MonthlyLimit)
	}

	if err := l.ChangeTier(ctx, acc.ID, "platinum", 0); !errors.Is(err, ledger.ErrInvalidTier) {
		t.Errorf("unknown tier: got %v, want ErrInvalidTier", err)
	}
}

// ──────────────────────────────────────────────────
// Evaluation
// ──────────────────────────────────────────────────

func TestEvaluateIsReadOnly(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	acc := newFreeAccount(t, l)

	// Ten evaluations must not consume the free conversion.
	for i := 0; i < 10; i++ {
		d, err := l.Evaluate(ctx, acc.ID)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if !d.CanProceed || d.RequiresPayment {
			t.Fatalf("evaluation %d mutated state: %+v", i, d)
		}
	}

	attempts, err := l.ListAttempts(ctx, acc.ID, usage.QueryOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(attempts) != 0 {
		t.Errorf("evaluate recorded %d attempts, want 0", len(attempts))
	}
}

// ──────────────────────────────────────────────────
// Conversion flow
// ──────────────────────────────────────────────────

func TestFreeTierFirstConversionFree(t *testing.T) {
	l := newLedger(t)
	acc := newFreeAccount(t, l)

	receipt, err := l.ProcessConversion(context.Background(), acc.ID, "arxiv:2401.00001", nil)
	if err != nil {
		t.Fatalf("conversion: %v", err)
	}

	if receipt.Decision.Reason != entitlement.ReasonFirstFree {
		t.Errorf("reason: got %q, want first-free", receipt.Decision.Reason)
	}
	if receipt.Attempt == nil {
		t.Fatal("expected a recorded attempt")
	}
	if receipt.Attempt.Outcome != usage.OutcomeCompleted {
		t.Errorf("outcome: got %q, want completed", receipt.Attempt.Outcome)
	}
	if !receipt.Attempt.WasFree {
		t.Error("first conversion must be free")
	}
	if !receipt.Attempt.AmountCharged.IsZero() {
		t.Errorf("amount charged: got %v, want zero", receipt.Attempt.AmountCharged)
	}
}

func TestFreeTierSecondConversionCharged(t *testing.T) {
	gateway := simulated.New(simulated.WithFailureRate(0))
	l := newLedger(t, ledger.WithGateway(gateway))
	acc := newFreeAccount(t, l)
	completeOnce(t, l, acc)

	receipt, err := l.ProcessConversion(context.Background(), acc.ID, "arxiv:2401.00002", nil)
	if err != nil {
		t.Fatalf("conversion: %v", err)
	}

	if receipt.Decision.Reason != entitlement.ReasonPaymentAvailable {
		t.Errorf("reason: got %q", receipt.Decision.Reason)
	}
	if receipt.Attempt.WasFree {
		t.Error("second conversion must not be free")
	}
	if !receipt.Attempt.AmountCharged.Equal(types.USD(500)) {
		t.Errorf("amount charged: got %v, want $5.00", receipt.Attempt.AmountCharged)
	}
	if receipt.Attempt.PaymentRef == "" {
		t.Error("paid attempt must carry a payment reference")
	}
}

func TestFreeTierPaymentDeclined(t *testing.T) {
	gateway := simulated.New(simulated.WithFailureRate(1))
	l := newLedger(t, ledger.WithGateway(gateway))
	acc := newFreeAccount(t, l)
	completeOnce(t, l, acc)

	receipt, err := l.ProcessConversion(context.Background(), acc.ID, "arxiv:2401.00002", nil)
	if !errors.Is(err, ledger.ErrPaymentDeclined) {
		t.Fatalf("got %v, want ErrPaymentDeclined", err)
	}

	// The failed attempt is still on the log, with nothing charged.
	if receipt.Attempt == nil {
		t.Fatal("expected a recorded attempt")
	}
	if receipt.Attempt.Outcome != usage.OutcomePaymentFailed {
		t.Errorf("outcome: got %q, want payment_failed", receipt.Attempt.Outcome)
	}
	if !receipt.Attempt.AmountCharged.IsZero() {
		t.Errorf("amount charged on failure: got %v, want zero", receipt.Attempt.AmountCharged)
	}
	if receipt.Attempt.PaymentRef != "" {
		t.Errorf("failed attempt carries reference %q", receipt.Attempt.PaymentRef)
	}
}

func TestFailedPaymentDoesNotConsumeFreeSlot(t *testing.T) {
	declining := simulated.New(simulated.WithFailureRate(1))
	l := newLedger(t, ledger.WithGateway(declining))
	acc := newFreeAccount(t, l)
	completeOnce(t, l, acc)

	// Two declined payments in a row.
	for i := 0; i < 2; i++ {
		if _, err := l.ProcessConversion(context.Background(), acc.ID, "doc.pdf", nil); !errors.Is(err, ledger.ErrPaymentDeclined) {
			t.Fatalf("got %v, want ErrPaymentDeclined", err)
		}
	}

	stats, err := l.GetUsageStats(context.Background(), acc.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.MonthlyCompleted != 1 {
		t.Errorf("monthly completed: got %d, want 1 — failed payments must not count", stats.MonthlyCompleted)
	}
}

func TestTeamTierDeniedAtLimit(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	acc := newFreeAccount(t, l)

	if err := l.ChangeTier(ctx, acc.ID, account.TierTeam, 2); err != nil {
		t.Fatalf("change tier: %v", err)
	}

	completeOnce(t, l, acc)
	completeOnce(t, l, acc)

	receipt, err := l.ProcessConversion(ctx, acc.ID, "doc.pdf", nil)
	if !errors.Is(err, ledger.ErrLimitExceeded) {
		t.Fatalf("got %v, want ErrLimitExceeded", err)
	}
	if receipt.Attempt == nil || receipt.Attempt.Outcome != usage.OutcomeDenied {
		t.Fatalf("denied conversion must record a denied attempt, got %+v", receipt.Attempt)
	}

	// Denied attempts do not count toward the monthly total.
	stats, err := l.GetUsageStats(ctx, acc.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.MonthlyCompleted != 2 {
		t.Errorf("monthly completed: got %d, want 2", stats.MonthlyCompleted)
	}
}

func TestProTierUnlimited(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	acc := newFreeAccount(t, l)

	if err := l.ChangeTier(ctx, acc.ID, account.TierPro, 0); err != nil {
		t.Fatalf("change tier: %v", err)
	}

	for i := 0; i < 25; i++ {
		receipt, err := l.ProcessConversion(ctx, acc.ID, "doc.pdf", nil)
		if err != nil {
			t.Fatalf("conversion %d: %v", i, err)
		}
		if receipt.Decision.RequiresPayment {
			t.Fatalf("conversion %d should be covered by the plan", i)
		}
	}
}

func TestPipelineRunsAfterRecord(t *testing.T) {
	l := newLedger(t)
	acc := newFreeAccount(t, l)

	var ran bool
	pipe := ledger.PipelineFunc(func(_ context.Context, paperRef string) error {
		ran = true
		if paperRef != "arxiv:2401.00001" {
			t.Errorf("paper ref: got %q", paperRef)
		}
		return nil
	})

	if _, err := l.ProcessConversion(context.Background(), acc.ID, "arxiv:2401.00001", pipe); err != nil {
		t.Fatalf("conversion: %v", err)
	}
	if !ran {
		t.Error("pipeline did not run")
	}
}

func TestPipelineFailureKeepsAttempt(t *testing.T) {
	l := newLedger(t)
	acc := newFreeAccount(t, l)

	pipe := ledger.PipelineFunc(func(context.Context, string) error {
		return errors.New("latex timeout")
	})

	receipt, err := l.ProcessConversion(context.Background(), acc.ID, "doc.pdf", pipe)
	if !errors.Is(err, ledger.ErrPipelineFailed) {
		t.Fatalf("got %v, want ErrPipelineFailed", err)
	}
	if receipt.Attempt == nil || receipt.Attempt.Outcome != usage.OutcomeCompleted {
		t.Fatal("attempt must stay recorded as completed when the pipeline fails")
	}
}

func TestConcurrentConversionsSingleFreeSlot(t *testing.T) {
	gateway := simulated.New(simulated.WithFailureRate(0))
	l := newLedger(t, ledger.WithGateway(gateway))
	acc := newFreeAccount(t, l)
	ctx := context.Background()

	const workers = 8
	results := make(chan *ledger.Receipt, workers)
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		go func() {
			receipt, err := l.ProcessConversion(ctx, acc.ID, "doc.pdf", nil)
			results <- receipt
			errs <- err
		}()
	}

	var free int
	for i := 0; i < workers; i++ {
		receipt := <-results
		if err := <-errs; err != nil {
			t.Fatalf("conversion: %v", err)
		}
		if receipt.Attempt.WasFree {
			free++
		}
	}

	if free != 1 {
		t.Errorf("free conversions granted: got %d, want exactly 1", free)
	}
}

// ──────────────────────────────────────────────────
// Payments and refunds
// ──────────────────────────────────────────────────

func TestRequestPaymentValidation(t *testing.T) {
	l := newLedger(t)
	acc := newFreeAccount(t, l)
	ctx := context.Background()

	// No gateway configured.
	if _, err := l.RequestPayment(ctx, acc.ID, types.USD(500), "doc.pdf"); !errors.Is(err, ledger.ErrNoGateway) {
		t.Errorf("got %v, want ErrNoGateway", err)
	}

	gateway := simulated.New(simulated.WithFailureRate(0))
	l2 := newLedger(t, ledger.WithGateway(gateway))
	acc2 := newFreeAccount(t, l2)

	if _, err := l2.RequestPayment(ctx, acc2.ID, types.USD(0), "doc.pdf"); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("zero amount: got %v, want ErrInvalidAmount", err)
	}
	if _, err := l2.RequestPayment(ctx, acc2.ID, types.USD(-500), "doc.pdf"); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("negative amount: got %v, want ErrInvalidAmount", err)
	}
}

func TestRefundAttempt(t *testing.T) {
	gateway := simulated.New(simulated.WithFailureRate(0))
	l := newLedger(t, ledger.WithGateway(gateway))
	acc := newFreeAccount(t, l)
	ctx := context.Background()
	completeOnce(t, l, acc)

	receipt, err := l.ProcessConversion(ctx, acc.ID, "doc.pdf", nil)
	if err != nil {
		t.Fatalf("paid conversion: %v", err)
	}

	if err := l.RefundAttempt(ctx, receipt.Attempt.ID, "duplicate purchase"); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if !gateway.Refunded(receipt.Attempt.PaymentRef) {
		t.Error("gateway did not record the refund")
	}
}

func TestRefundFreeAttemptRejected(t *testing.T) {
	gateway := simulated.New(simulated.WithFailureRate(0))
	l := newLedger(t, ledger.WithGateway(gateway))
	acc := newFreeAccount(t, l)
	ctx := context.Background()

	receipt, err := l.ProcessConversion(ctx, acc.ID, "doc.pdf", nil)
	if err != nil {
		t.Fatalf("conversion: %v", err)
	}

	if err := l.RefundAttempt(ctx, receipt.Attempt.ID, "oops"); !errors.Is(err, ledger.ErrNotRefundable) {
		t.Errorf("got %v, want ErrNotRefundable", err)
	}
}

// ──────────────────────────────────────────────────
// Usage stats
// ──────────────────────────────────────────────────

func TestUsageStats(t *testing.T) {
	gateway := simulated.New(simulated.WithFailureRate(0))
	l := newLedger(t, ledger.WithGateway(gateway))
	acc := newFreeAccount(t, l)
	ctx := context.Background()

	completeOnce(t, l, acc) // free
	completeOnce(t, l, acc) // $5.00
	completeOnce(t, l, acc) // $5.00

	stats, err := l.GetUsageStats(ctx, acc.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.MonthlyCompleted != 3 {
		t.Errorf("monthly completed: got %d, want 3", stats.MonthlyCompleted)
	}
	if stats.TotalCompleted != 3 {
		t.Errorf("total completed: got %d, want 3", stats.TotalCompleted)
	}
	if !stats.TotalSpent.Equal(types.USD(1000)) {
		t.Errorf("total spent: got %v, want $10.00", stats.TotalSpent)
	}
}

func TestListAttemptsNewestFirst(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	acc := newFreeAccount(t, l)

	if err := l.ChangeTier(ctx, acc.ID, account.TierPro, 0); err != nil {
		t.Fatalf("change tier: %v", err)
	}
	for i := 0; i < 5; i++ {
		completeOnce(t, l, acc)
	}

	attempts, err := l.ListAttempts(ctx, acc.ID, usage.QueryOpts{Limit: 3})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(attempts) != 3 {
		t.Fatalf("got %d attempts, want 3", len(attempts))
	}
	for i := 1; i < len(attempts); i++ {
		if attempts[i].Timestamp.After(attempts[i-1].Timestamp) {
			t.Error("attempts not sorted newest first")
		}
	}
}

// ──────────────────────────────────────────────────
// Decision analytics and count cache
// ──────────────────────────────────────────────────

func TestDecisionAnalyticsFlushedOnStop(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	l := ledger.New(st, ledger.WithAnalyticsConfig(100, time.Hour))
	if err := l.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	acc, err := l.GetOrCreateAccount(ctx, "auth0|analytics", "analytics@example.com")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	for i := 0; i < 4; i++ {
		if _, err := l.Evaluate(ctx, acc.ID); err != nil {
			t.Fatalf("evaluate %d: %v", i, err)
		}
	}

	if err := l.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	events := st.Decisions()
	if len(events) != 4 {
		t.Fatalf("got %d decision events, want 4", len(events))
	}
	for _, e := range events {
		if e.AccountID.String() != acc.ID.String() {
			t.Errorf("event account: got %s, want %s", e.AccountID, acc.ID)
		}
		if e.Reason != entitlement.ReasonFirstFree {
			t.Errorf("event reason: got %s, want %s", e.Reason, entitlement.ReasonFirstFree)
		}
	}
}

func TestCountCacheInvalidatedByRecordedAttempt(t *testing.T) {
	// The TTL is long enough that a stale cache would survive the test;
	// only invalidation can make the second evaluation see the attempt.
	l := newLedger(t, ledger.WithCountCacheTTL(time.Hour))
	ctx := context.Background()
	acc := newFreeAccount(t, l)

	d, err := l.Evaluate(ctx, acc.ID)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.Reason != entitlement.ReasonFirstFree {
		t.Fatalf("before: got %s, want %s", d.Reason, entitlement.ReasonFirstFree)
	}

	completeOnce(t, l, acc)

	d, err = l.Evaluate(ctx, acc.ID)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.Reason != entitlement.ReasonPaymentAvailable {
		t.Errorf("after: got %s, want %s", d.Reason, entitlement.ReasonPaymentAvailable)
	}
	if !d.AmountDue.Equal(entitlement.PricePerConversion) {
		t.Errorf("amount due: got %v, want %v", d.AmountDue, entitlement.PricePerConversion)
	}
}
