package account

import (
	"context"

	"github.com/paperforge/ledger/id"
)

// Store is the persistence interface for accounts.
type Store interface {
	Create(ctx context.Context, a *Account) error
	Get(ctx context.Context, accountID id.AccountID) (*Account, error)
	GetBySubject(ctx context.Context, subject string) (*Account, error)
	Update(ctx context.Context, a *Account) error
}
