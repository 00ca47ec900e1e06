package entitlement

import (
	"context"
	"time"

	"github.com/paperforge/ledger/id"
)

// Store is the cache and analytics interface for entitlement evaluation.
type Store interface {
	// GetCachedCount returns the cached monthly completed count, or a cache
	// miss error when absent or expired.
	GetCachedCount(ctx context.Context, accountID id.AccountID) (int64, error)
	SetCachedCount(ctx context.Context, accountID id.AccountID, count int64, ttl time.Duration) error

	// InvalidateCount drops the cached count, forcing the next evaluation
	// to re-read the attempt log. Called after every recorded attempt.
	InvalidateCount(ctx context.Context, accountID id.AccountID) error

	// IngestDecisions persists a batch of decision analytics events.
	IngestDecisions(ctx context.Context, events []*Event) error
}
