package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/paperforge/ledger"
	"github.com/paperforge/ledger/account"
	"github.com/paperforge/ledger/entitlement"
	"github.com/paperforge/ledger/id"
	"github.com/paperforge/ledger/types"
	"github.com/paperforge/ledger/usage"
)

type Store struct {
	mu sync.RWMutex

	// Account storage
	accounts map[string]*account.Account

	// Append-only attempt log
	attempts []usage.ConversionAttempt

	// Monthly count cache
	countCache  map[string]int64
	cacheExpiry map[string]time.Time

	// Decision analytics
	decisions []entitlement.Event
}

func New() *Store {
	return &Store{
		accounts:    make(map[string]*account.Account),
		attempts:    make([]usage.ConversionAttempt, 0),
		countCache:  make(map[string]int64),
		cacheExpiry: make(map[string]time.Time),
		decisions:   make([]entitlement.Event, 0),
	}
}

// Account Store implementation
func (s *Store) CreateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.ID.String()]; exists {
		return ledger.ErrAccountExists
	}
	for _, existing := range s.accounts {
		if a.Subject != "" && existing.Subject == a.Subject {
			return ledger.ErrAccountExists
		}
	}
	s.accounts[a.ID.String()] = a
	return nil
}

func (s *Store) GetAccount(_ context.Context, accountID id.AccountID) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[accountID.String()]; ok {
		return a, nil
	}
	return nil, ledger.ErrAccountNotFound
}

func (s *Store) GetAccountBySubject(_ context.Context, subject string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if a.Subject == subject {
			return a, nil
		}
	}
	return nil, ledger.ErrAccountNotFound
}

func (s *Store) UpdateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.ID.String()]; !exists {
		return ledger.ErrAccountNotFound
	}
	s.accounts[a.ID.String()] = a
	return nil
}

// Attempt log implementation
func (s *Store) AppendAttempt(_ context.Context, a *usage.ConversionAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts = append(s.attempts, *a)
	return nil
}

func (s *Store) QueryAttempts(_ context.Context, accountID id.AccountID, opts usage.QueryOpts) ([]*usage.ConversionAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*usage.ConversionAttempt, 0)
	for i := range s.attempts {
		a := &s.attempts[i]
		if a.AccountID.String() != accountID.String() {
			continue
		}
		if opts.Outcome != "" && a.Outcome != opts.Outcome {
			continue
		}
		if !opts.Since.IsZero() && a.Timestamp.Before(opts.Since) {
			continue
		}
		if !opts.Until.IsZero() && !a.Timestamp.Before(opts.Until) {
			continue
		}
		matched = append(matched, a)
	}

	// Newest first, matching the SQL backends.
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	start := opts.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(matched) {
		end = len(matched)
	}

	return matched[start:end], nil
}

func (s *Store) GetAttempt(_ context.Context, attemptID id.AttemptID) (*usage.ConversionAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.attempts {
		if s.attempts[i].ID.String() == attemptID.String() {
			return &s.attempts[i], nil
		}
	}
	return nil, ledger.ErrAttemptNotFound
}

func (s *Store) CountCompleted(_ context.Context, accountID id.AccountID, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for i := range s.attempts {
		a := &s.attempts[i]
		if a.AccountID.String() == accountID.String() &&
			a.Outcome == usage.OutcomeCompleted &&
			!a.Timestamp.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *Store) UsageStats(_ context.Context, accountID id.AccountID, now time.Time) (*usage.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	monthStart := usage.MonthStart(now)
	stats := &usage.Stats{
		TotalSpent: types.Zero("usd"),
	}
	for i := range s.attempts {
		a := &s.attempts[i]
		if a.AccountID.String() != accountID.String() || a.Outcome != usage.OutcomeCompleted {
			continue
		}
		stats.TotalCompleted++
		if !a.Timestamp.Before(monthStart) {
			stats.MonthlyCompleted++
		}
		if a.AmountCharged.Amount != 0 {
			stats.TotalSpent = stats.TotalSpent.Add(a.AmountCharged)
		}
	}
	return stats, nil
}

// Count cache implementation
func (s *Store) GetCachedCount(_ context.Context, accountID id.AccountID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := accountID.String()
	if expiry, ok := s.cacheExpiry[key]; ok {
		if time.Now().Before(expiry) {
			if count, ok := s.countCache[key]; ok {
				return count, nil
			}
		}
	}
	return 0, ledger.ErrCacheMiss
}

func (s *Store) SetCachedCount(_ context.Context, accountID id.AccountID, count int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := accountID.String()
	s.countCache[key] = count
	s.cacheExpiry[key] = time.Now().Add(ttl)
	return nil
}

func (s *Store) InvalidateCount(_ context.Context, accountID id.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := accountID.String()
	delete(s.countCache, key)
	delete(s.cacheExpiry, key)
	return nil
}

// Decision analytics implementation
func (s *Store) IngestDecisions(_ context.Context, events []*entitlement.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		s.decisions = append(s.decisions, *e)
	}
	return nil
}

// Decisions returns a copy of the ingested decision events, for tests.
func (s *Store) Decisions() []entitlement.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entitlement.Event, len(s.decisions))
	copy(out, s.decisions)
	return out
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}
