package store

import (
	"context"
	"time"

	"github.com/paperforge/ledger/account"
	"github.com/paperforge/ledger/entitlement"
	"github.com/paperforge/ledger/id"
	"github.com/paperforge/ledger/usage"
)

// Store is the unified storage interface for all ledger entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Account methods
	CreateAccount(ctx context.Context, a *account.Account) error
	GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error)
	GetAccountBySubject(ctx context.Context, subject string) (*account.Account, error)
	UpdateAccount(ctx context.Context, a *account.Account) error

	// Attempt log methods. AppendAttempt is the only write; attempts are
	// immutable once written.
	AppendAttempt(ctx context.Context, a *usage.ConversionAttempt) error
	QueryAttempts(ctx context.Context, accountID id.AccountID, opts usage.QueryOpts) ([]*usage.ConversionAttempt, error)
	GetAttempt(ctx context.Context, attemptID id.AttemptID) (*usage.ConversionAttempt, error)
	CountCompleted(ctx context.Context, accountID id.AccountID, since time.Time) (int64, error)
	UsageStats(ctx context.Context, accountID id.AccountID, now time.Time) (*usage.Stats, error)

	// Monthly count cache methods
	GetCachedCount(ctx context.Context, accountID id.AccountID) (int64, error)
	SetCachedCount(ctx context.Context, accountID id.AccountID, count int64, ttl time.Duration) error
	InvalidateCount(ctx context.Context, accountID id.AccountID) error

	// Decision analytics methods
	IngestDecisions(ctx context.Context, events []*entitlement.Event) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
