package mongo

import (
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

	ID           string            `grove:"id,pk"         bson:"_id"`
	Subject      string            `grove:"subject"       bson:"subject"`
	Email        string            `grove:"email"         bson:"email"`
	Tier         string            `grove:"tier"          bson:"tier"`
	MonthlyLimit int64             `grove:"monthly_limit" bson:"monthly_limit"`
	Demo         bool              `grove:"demo"          bson:"demo"`
	Metadata     map[string]string `grove:"metadata"      bson:"metadata,omitempty"`
	CreatedAt    time.Time         `grove:"created_at"    bson:"created_at"`
	UpdatedAt    time.Time         `grove:"updated_at"    bson:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		ID:           a.ID.String(),
		Subject:      a.Subject,
		Email:        a.Email,
		Tier:         string(a.Tier),
		MonthlyLimit: a.MonthlyLimit,
		Demo:         a.Demo,
		Metadata:     a.Metadata,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	accountID, err := id.ParseAccountID(m.ID)
	if err != nil {
		return nil, err
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
		Metadata:     m.Metadata,
	}, nil
}

// ==================== Attempt models ====================

type attemptModel struct {
	grove.BaseModel `grove:"table:paperforge_attempts"`

	ID          string            `grove:"id,pk"        bson:"_id"`
	AccountID   string            `grove:"account_id"   bson:"account_id"`
	Timestamp   time.Time         `grove:"timestamp"    bson:"timestamp"`
	WasFree     bool              `grove:"was_free"     bson:"was_free"`
	AmountCents int64             `grove:"amount_cents" bson:"amount_cents"`
	Currency    string            `grove:"currency"     bson:"currency"`
	Outcome     string            `grove:"outcome"      bson:"outcome"`
	PaymentRef  string            `grove:"payment_ref"  bson:"payment_ref,omitempty"`
	PaperRef    string            `grove:"paper_ref"    bson:"paper_ref,omitempty"`
	Metadata    map[string]string `grove:"metadata"     bson:"metadata,omitempty"`
}

func toAttemptModel(a *usage.ConversionAttempt) *attemptModel {
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
		Metadata:    a.Metadata,
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

	return &usage.ConversionAttempt{
		ID:            attemptID,
		AccountID:     accountID,
		Timestamp:     m.Timestamp,
		WasFree:       m.WasFree,
		AmountCharged: types.Money{Amount: m.AmountCents, Currency: m.Currency},
		Outcome:       usage.Outcome(m.Outcome),
		PaymentRef:    m.PaymentRef,
		PaperRef:      m.PaperRef,
		Metadata:      m.Metadata,
	}, nil
}

// ==================== Count cache models ====================

type countCacheModel struct {
	grove.BaseModel `grove:"table:paperforge_count_cache"`

	AccountID      string    `grove:"account_id,pk"   bson:"_id"`
	CompletedCount int64     `grove:"completed_count" bson:"completed_count"`
	ExpiresAt      time.Time `grove:"expires_at"      bson:"expires_at"`
	CreatedAt      time.Time `grove:"created_at"      bson:"created_at"`
}

// ==================== Decision event models ====================

type decisionEventModel struct {
	grove.BaseModel `grove:"table:paperforge_decision_events"`

	ID          string    `grove:"id,pk"        bson:"_id"`
	AccountID   string    `grove:"account_id"   bson:"account_id"`
	CanProceed  bool      `grove:"can_proceed"  bson:"can_proceed"`
	Reason      string    `grove:"reason"       bson:"reason"`
	AmountCents int64     `grove:"amount_cents" bson:"amount_cents"`
	Currency    string    `grove:"currency"     bson:"currency"`
	Timestamp   time.Time `grove:"timestamp"    bson:"timestamp"`
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
