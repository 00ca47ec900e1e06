package usage

import (
	"context"
	"time"

	"github.com/paperforge/ledger/id"
)

// Store is the persistence interface for the attempt log.
// Appends are the only writes; attempts are never updated or deleted.
type Store interface {
	Append(ctx context.Context, a *ConversionAttempt) error
	Query(ctx context.Context, accountID id.AccountID, opts QueryOpts) ([]*ConversionAttempt, error)

	// CountCompleted returns the number of completed attempts for the
	// account with a timestamp at or after since.
	CountCompleted(ctx context.Context, accountID id.AccountID, since time.Time) (int64, error)

	// Stats aggregates the usage view for an account. now anchors the
	// monthly window.
	Stats(ctx context.Context, accountID id.AccountID, now time.Time) (*Stats, error)
}
