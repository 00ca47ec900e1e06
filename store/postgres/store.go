package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	ledger "github.com/paperforge/ledger"
	"github.com/paperforge/ledger/account"
	"github.com/paperforge/ledger/entitlement"
	"github.com/paperforge/ledger/id"
	ledgerstore "github.com/paperforge/ledger/store"
	"github.com/paperforge/ledger/types"
	"github.com/paperforge/ledger/usage"
)

// compile-time interface check
var _ ledgerstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("paperforge/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("paperforge/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	existing := new(accountModel)
	err := s.pg.NewSelect(existing).
		Where("subject = $1", a.Subject).
		Scan(ctx)
	if err == nil {
		return ledger.ErrAccountExists
	}
	if !isNoRows(err) {
		return err
	}

	m := toAccountModel(a)
	_, err = s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	m := new(accountModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", accountID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrAccountNotFound
		}
		return nil, err
	}
	return fromAccountModel(m)
}

func (s *Store) GetAccountBySubject(ctx context.Context, subject string) (*account.Account, error) {
	m := new(accountModel)
	err := s.pg.NewSelect(m).
		Where("subject = $1", subject).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrAccountNotFound
		}
		return nil, err
	}
	return fromAccountModel(m)
}

func (s *Store) UpdateAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	m.UpdatedAt = now()
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

// ==================== Attempt Log ====================

func (s *Store) AppendAttempt(ctx context.Context, a *usage.ConversionAttempt) error {
	m := toAttemptModel(a)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetAttempt(ctx context.Context, attemptID id.AttemptID) (*usage.ConversionAttempt, error) {
	m := new(attemptModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", attemptID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrAttemptNotFound
		}
		return nil, err
	}
	return fromAttemptModel(m)
}

func (s *Store) QueryAttempts(ctx context.Context, accountID id.AccountID, opts usage.QueryOpts) ([]*usage.ConversionAttempt, error) {
	var models []attemptModel
	q := s.pg.NewSelect(&models).
		Where("account_id = $1", accountID.String())

	argIdx := 1
	if opts.Outcome != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("outcome = $%d", argIdx), string(opts.Outcome))
	}
	if !opts.Since.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("timestamp >= $%d", argIdx), opts.Since)
	}
	if !opts.Until.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("timestamp <= $%d", argIdx), opts.Until)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("timestamp DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*usage.ConversionAttempt, len(models))
	for i := range models {
		a, err := fromAttemptModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = a
	}
	return result, nil
}

func (s *Store) CountCompleted(ctx context.Context, accountID id.AccountID, since time.Time) (int64, error) {
	var count int64
	err := s.pg.NewRaw(`
		SELECT COUNT(*) FROM paperforge_attempts
		WHERE account_id = $1 AND outcome = $2 AND timestamp >= $3
	`, accountID.String(), string(usage.OutcomeCompleted), since).Scan(ctx, &count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) UsageStats(ctx context.Context, accountID id.AccountID, nowT time.Time) (*usage.Stats, error) {
	monthly, err := s.CountCompleted(ctx, accountID, usage.MonthStart(nowT))
	if err != nil {
		return nil, err
	}

	var total int64
	err = s.pg.NewRaw(`
		SELECT COUNT(*) FROM paperforge_attempts
		WHERE account_id = $1 AND outcome = $2
	`, accountID.String(), string(usage.OutcomeCompleted)).Scan(ctx, &total)
	if err != nil {
		return nil, err
	}

	var spent int64
	err = s.pg.NewRaw(`
		SELECT COALESCE(SUM(amount_cents), 0) FROM paperforge_attempts
		WHERE account_id = $1 AND outcome = $2
	`, accountID.String(), string(usage.OutcomeCompleted)).Scan(ctx, &spent)
	if err != nil {
		return nil, err
	}

	return &usage.Stats{
		MonthlyCompleted: monthly,
		TotalCompleted:   total,
		TotalSpent:       types.USD(spent),
	}, nil
}

// ==================== Count Cache ====================

func (s *Store) GetCachedCount(ctx context.Context, accountID id.AccountID) (int64, error) {
	m := new(countCacheModel)
	err := s.pg.NewSelect(m).
		Where("account_id = $1", accountID.String()).
		Where("expires_at > $2", now()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return 0, ledger.ErrCacheMiss
		}
		return 0, err
	}
	return m.CompletedCount, nil
}

func (s *Store) SetCachedCount(ctx context.Context, accountID id.AccountID, count int64, ttl time.Duration) error {
	m := &countCacheModel{
		AccountID:      accountID.String(),
		CompletedCount: count,
		ExpiresAt:      now().Add(ttl),
		CreatedAt:      now(),
	}
	_, err := s.pg.NewInsert(m).
		OnConflict("(account_id) DO UPDATE").
		Set("completed_count = EXCLUDED.completed_count").
		Set("expires_at = EXCLUDED.expires_at").
		Set("created_at = EXCLUDED.created_at").
		Exec(ctx)
	return err
}

func (s *Store) InvalidateCount(ctx context.Context, accountID id.AccountID) error {
	_, err := s.pg.NewDelete((*countCacheModel)(nil)).
		Where("account_id = $1", accountID.String()).
		Exec(ctx)
	return err
}

// ==================== Decision Analytics ====================

func (s *Store) IngestDecisions(ctx context.Context, events []*entitlement.Event) error {
	if len(events) == 0 {
		return nil
	}
	models := make([]decisionEventModel, len(events))
	for i, e := range events {
		models[i] = *toDecisionEventModel(e)
	}
	_, err := s.pg.NewInsert(&models).Exec(ctx)
	return err
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
