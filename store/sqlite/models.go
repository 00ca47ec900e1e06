package sqlite

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/paperforge/ledger/account"
	"github.com/paperforge/ledger/entitlement"
	"github.com/paperforge/ledger/id"
	"github.com/paperforge/ledger/types"
	"github.com/paperforge/ledger/usage"
)

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:paperforge_accounts"`

	ID           string          `grove:"id,pk"`
	Subject      string          `grove:"subject"`
	Email        string          `grove:"email"`
	Tier         string          `grove:"tier"`
	MonthlyLimit int64           `grove:"monthly_limit"`
	Demo         bool            `grove:"demo"`
	Metadata     json.RawMessage `grove:"metadata"`
	CreatedAt    time.Time       `grove:"created_at"`
	UpdatedAt    time.Time       `grove:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	metadata, _ := json.Marshal(a.Metadata) //nolint:errcheck // best-effort

	return &accountModel{
		ID:           a.ID.String(),
		Subject:      a.Subject,
		Email:        a.Email,
		Tier:         string(a.Tier),
		MonthlyLimit: a.MonthlyLimit,
		Demo:         a.Demo,
		Metadata:     metadata,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	accountID, err := id.ParseAccountID(m.ID)
	if err != nil {
		return nil, err
	}

	var metadata map[string]string
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &metadata) //nolint:errcheck // best-effort
	}

	return &account.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           accountID,
		Subject:      m.Subject,
		Email:        m.Email,
		Tier:         account.Tier(m.Tier),
		MonthlyLimit: m.MonthlyLimit,
		Demo:         m.Demo,
		Metadata:     metadata,
	}, nil
}

// ==================== Attempt models ====================

type attemptModel struct {
	grove.BaseModel `grove:"table:paperforge_attempts"`

	ID          string          `grove:"id,pk"`
	AccountID   string          `grove:"account_id"`
	Timestamp   time.Time       `grove:"timestamp"`
	WasFree     bool            `grove:"was_free"`
	AmountCents int64           `grove:"amount_cents"`
	Currency    string          `grove:"currency"`
	Outcome     string          `grove:"outcome"`
	PaymentRef  string          `grove:"payment_ref"`
	PaperRef    string          `grove:"paper_ref"`
	Metadata    json.RawMessage `grove:"metadata"`
}

func toAttemptModel(a *usage.ConversionAttempt) *attemptModel {
	metadata, _ := json.Marshal(a.Metadata) //nolint:errcheck // best-effort

	return &attemptModel{
		ID:          a.ID.String(),
		AccountID:   a.AccountID.String(),
		Timestamp:   a.Timestamp,
		WasFree:     a.WasFree,
		AmountCents: a.AmountCharged.Amount,
		Currency:    a.AmountCharged.Currency,
		Outcome:     string(a.Outcome),
		PaymentRef:  a.PaymentRef,
		PaperRef:    a.PaperRef,
		Metadata:    metadata,
	}
}

func fromAttemptModel(m *attemptModel) (*usage.ConversionAttempt, error) {
	attemptID, err := id.ParseAttemptID(m.ID)
	if err != nil {
		return nil, err
	}
	accountID, err := id.ParseAccountID(m.AccountID)
	if err != nil {
		return nil, err
	}

	var metadata map[string]string
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &metadata) //nolint:errcheck // best-effort
	}

	return &usage.ConversionAttempt{
		ID:            attemptID,
		AccountID:     accountID,
		Timestamp:     m.Timestamp,
		WasFree:       m.WasFree,
		AmountCharged: types.Money{Amount: m.AmountCents, Currency: m.Currency},
		Outcome:       usage.Outcome(m.Outcome),
		PaymentRef:    m.PaymentRef,
		PaperRef:      m.PaperRef,
		Metadata:      metadata,
	}, nil
}

// ==================== Count cache models ====================

type countCacheModel struct {
	grove.BaseModel `grove:"table:paperforge_count_cache"`

	AccountID      string    `grove:"account_id,pk"`
	CompletedCount int64     `grove:"completed_count"`
	ExpiresAt      time.Time `grove:"expires_at"`
	CreatedAt      time.Time `grove:"created_at"`
}

// ==================== Decision event models ====================

type decisionEventModel struct {
	grove.BaseModel `grove:"table:paperforge_decision_events"`

	ID          string    `grove:"id,pk"`
	AccountID   string    `grove:"account_id"`
	CanProceed  bool      `grove:"can_proceed"`
	Reason      string    `grove:"reason"`
	AmountCents int64     `grove:"amount_cents"`
	Currency    string    `grove:"currency"`
	Timestamp   time.Time `grove:"timestamp"`
}

func toDecisionEventModel(e *entitlement.Event) *decisionEventModel {
	return &decisionEventModel{
		ID:          e.ID.String(),
		AccountID:   e.AccountID.String(),
		CanProceed:  e.CanProceed,
		Reason:      string(e.Reason),
		AmountCents: e.AmountDue.Amount,
		Currency:    e.AmountDue.Currency,
		Timestamp:   e.Timestamp,
	}
}
