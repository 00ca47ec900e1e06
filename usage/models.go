// Package usage defines the append-only conversion attempt log and its
// aggregated statistics.
package usage

import (
	"time"

	"github.com/paperforge/ledger/id"
	"github.com/paperforge/ledger/types"
)

// Outcome is the terminal state of a conversion attempt.
type Outcome string

const (
	// OutcomeCompleted means the conversion pipeline ran; payment, if any,
	// succeeded. Only completed attempts count toward the monthly usage.
	OutcomeCompleted Outcome = "completed"

	// OutcomePaymentFailed means the gateway declined or timed out. The
	// attempt is terminal; the user must re-initiate.
	OutcomePaymentFailed Outcome = "payment_failed"

	// OutcomeDenied means the account's monthly limit was exhausted with no
	// paid path available.
	OutcomeDenied Outcome = "denied"
)

// ConversionAttempt is one record in the append-only usage log. Attempts
// are immutable once written; every terminal state of a conversion writes
// exactly one attempt, whether or not a payment succeeded.
type ConversionAttempt struct {
	ID            id.AttemptID      `json:"id"`
	AccountID     id.AccountID      `json:"account_id"`
	Timestamp     time.Time         `json:"timestamp"`
	WasFree       bool              `json:"was_free"`
	AmountCharged types.Money       `json:"amount_charged"`
	Outcome       Outcome           `json:"outcome"`
	PaymentRef    string            `json:"payment_ref,omitempty"` // present only when a payment was attempted
	PaperRef      string            `json:"paper_ref,omitempty"`   // URL, arXiv id, or upload reference
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Stats is the aggregated usage view for an account.
type Stats struct {
	MonthlyCompleted int64       `json:"monthly_completed"`
	TotalCompleted   int64       `json:"total_completed"`
	TotalSpent       types.Money `json:"total_spent"`
}

// QueryOpts filters attempt listings.
type QueryOpts struct {
	Outcome Outcome
	Since   time.Time
	Until   time.Time
	Limit   int
	Offset  int
}

// MonthStart returns the start of the calendar month containing t, in UTC.
// The monthly completed count is defined over this window.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
