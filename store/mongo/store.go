package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	ledger "github.com/paperforge/ledger"
	"github.com/paperforge/ledger/account"
	"github.com/paperforge/ledger/entitlement"
	"github.com/paperforge/ledger/id"
	ledgerstore "github.com/paperforge/ledger/store"
	"github.com/paperforge/ledger/types"
	"github.com/paperforge/ledger/usage"
)

// Collection name constants.
const (
	colAccounts   = "paperforge_accounts"
	colAttempts   = "paperforge_attempts"
	colCountCache = "paperforge_count_cache"
	colDecisions  = "paperforge_decision_events"
)

// compile-time interface check
var _ ledgerstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all paperforge collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("paperforge/mongo: migrate %s indexes: %w", col, err)
		}
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
	m := toAccountModel(a)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ledger.ErrAccountExists
		}
		return fmt.Errorf("paperforge/mongo: create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": accountID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, ledger.ErrAccountNotFound
		}
		return nil, fmt.Errorf("paperforge/mongo: get account: %w", err)
	}
	return fromAccountModel(&m)
}

func (s *Store) GetAccountBySubject(ctx context.Context, subject string) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"subject": subject}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, ledger.ErrAccountNotFound
		}
		return nil, fmt.Errorf("paperforge/mongo: get account by subject: %w", err)
	}
	return fromAccountModel(&m)
}

func (s *Store) UpdateAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	m.UpdatedAt = time.Now().UTC()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("paperforge/mongo: update account: %w", err)
	}
	if res.MatchedCount() == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

// ==================== Attempt Log ====================

func (s *Store) AppendAttempt(ctx context.Context, a *usage.ConversionAttempt) error {
	m := toAttemptModel(a)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("paperforge/mongo: append attempt: %w", err)
	}
	return nil
}

func (s *Store) GetAttempt(ctx context.Context, attemptID id.AttemptID) (*usage.ConversionAttempt, error) {
	var m attemptModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": attemptID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, ledger.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("paperforge/mongo: get attempt: %w", err)
	}
	return fromAttemptModel(&m)
}

func (s *Store) QueryAttempts(ctx context.Context, accountID id.AccountID, opts usage.QueryOpts) ([]*usage.ConversionAttempt, error) {
	var models []attemptModel

	filter := bson.M{"account_id": accountID.String()}
	if opts.Outcome != "" {
		filter["outcome"] = string(opts.Outcome)
	}
	if !opts.Since.IsZero() {
		if _, ok := filter["timestamp"]; !ok {
			filter["timestamp"] = bson.M{}
		}
		if ts, ok := filter["timestamp"].(bson.M); ok {
			ts["$gte"] = opts.Since
		}
	}
	if !opts.Until.IsZero() {
		if _, ok := filter["timestamp"]; !ok {
			filter["timestamp"] = bson.M{}
		}
		if ts, ok := filter["timestamp"].(bson.M); ok {
			ts["$lte"] = opts.Until
		}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "timestamp", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("paperforge/mongo: query attempts: %w", err)
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
	count, err := s.mdb.Collection(colAttempts).CountDocuments(ctx, bson.M{
		"account_id": accountID.String(),
		"outcome":    string(usage.OutcomeCompleted),
		"timestamp":  bson.M{"$gte": since},
	})
	if err != nil {
		return 0, fmt.Errorf("paperforge/mongo: count completed: %w", err)
	}
	return count, nil
}

func (s *Store) UsageStats(ctx context.Context, accountID id.AccountID, now time.Time) (*usage.Stats, error) {
	monthly, err := s.CountCompleted(ctx, accountID, usage.MonthStart(now))
	if err != nil {
		return nil, err
	}

	pipeline := bson.A{
		bson.M{
			"$match": bson.M{
				"account_id": accountID.String(),
				"outcome":    string(usage.OutcomeCompleted),
			},
		},
		bson.M{
			"$group": bson.M{
				"_id":   nil,
				"total": bson.M{"$sum": 1},
				"spent": bson.M{"$sum": "$amount_cents"},
			},
		},
	}

	cursor, err := s.mdb.Collection(colAttempts).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("paperforge/mongo: usage stats: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total int64 `bson:"total"`
		Spent int64 `bson:"spent"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("paperforge/mongo: usage stats decode: %w", err)
	}

	stats := &usage.Stats{
		MonthlyCompleted: monthly,
		TotalSpent:       types.USD(0),
	}
	if len(results) > 0 {
		stats.TotalCompleted = results[0].Total
		stats.TotalSpent = types.USD(results[0].Spent)
	}
	return stats, nil
}

// ==================== Count Cache ====================

func (s *Store) GetCachedCount(ctx context.Context, accountID id.AccountID) (int64, error) {
	var m countCacheModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"_id":        accountID.String(),
			"expires_at": bson.M{"$gt": time.Now().UTC()},
		}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return 0, ledger.ErrCacheMiss
		}
		return 0, fmt.Errorf("paperforge/mongo: get cached count: %w", err)
	}
	return m.CompletedCount, nil
}

func (s *Store) SetCachedCount(ctx context.Context, accountID id.AccountID, count int64, ttl time.Duration) error {
	now := time.Now().UTC()
	m := &countCacheModel{
		AccountID:      accountID.String(),
		CompletedCount: count,
		ExpiresAt:      now.Add(ttl),
		CreatedAt:      now,
	}

	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.AccountID}).
		SetUpdate(bson.M{"$set": bson.M{
			"completed_count": m.CompletedCount,
			"expires_at":      m.ExpiresAt,
			"created_at":      m.CreatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("paperforge/mongo: set cached count: %w", err)
	}
	return nil
}

func (s *Store) InvalidateCount(ctx context.Context, accountID id.AccountID) error {
	_, err := s.mdb.NewDelete((*countCacheModel)(nil)).
		Filter(bson.M{"_id": accountID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("paperforge/mongo: invalidate count: %w", err)
	}
	return nil
}

// ==================== Decision Analytics ====================

func (s *Store) IngestDecisions(ctx context.Context, events []*entitlement.Event) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		m := toDecisionEventModel(e)
		_, err := s.mdb.NewInsert(m).Exec(ctx)
		if err != nil {
			// Re-flushed batches may overlap; skip duplicates.
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			return fmt.Errorf("paperforge/mongo: ingest decision: %w", err)
		}
	}
	return nil
}

// ==================== Helpers ====================

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all paperforge collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAccounts: {
			{
				Keys:    bson.D{{Key: "subject", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "tier", Value: 1}}},
		},
		colAttempts: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "outcome", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
		colCountCache: {
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		},
		colDecisions: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "reason", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
	}
}
