package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the PaperForge store (SQLite).
var Migrations = migrate.NewGroup("paperforge")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_paperforge_accounts",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS paperforge_accounts (
    id            TEXT PRIMARY KEY,
    subject       TEXT NOT NULL DEFAULT '',
    email         TEXT NOT NULL DEFAULT '',
    tier          TEXT NOT NULL DEFAULT 'free',
    monthly_limit INTEGER NOT NULL DEFAULT 0,
    demo          INTEGER NOT NULL DEFAULT 0,
    metadata      TEXT NOT NULL DEFAULT '{}',
    created_at    TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at    TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_paperforge_accounts_subject ON paperforge_accounts (subject);
CREATE INDEX IF NOT EXISTS idx_paperforge_accounts_tier ON paperforge_accounts (tier);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS paperforge_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_paperforge_attempts",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS paperforge_attempts (
    id           TEXT PRIMARY KEY,
    account_id   TEXT NOT NULL DEFAULT '',
    timestamp    TEXT NOT NULL DEFAULT (datetime('now')),
    was_free     INTEGER NOT NULL DEFAULT 0,
    amount_cents INTEGER NOT NULL DEFAULT 0,
    currency     TEXT NOT NULL DEFAULT 'usd',
    outcome      TEXT NOT NULL DEFAULT '',
    payment_ref  TEXT NOT NULL DEFAULT '',
    paper_ref    TEXT NOT NULL DEFAULT '',
    metadata     TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_paperforge_attempts_account_ts ON paperforge_attempts (account_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_paperforge_attempts_account_outcome ON paperforge_attempts (account_id, outcome, timestamp);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS paperforge_attempts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_paperforge_count_cache",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS paperforge_count_cache (
    account_id      TEXT PRIMARY KEY,
    completed_count INTEGER NOT NULL DEFAULT 0,
    expires_at      TEXT NOT NULL DEFAULT (datetime('now')),
    created_at      TEXT NOT NULL DEFAULT (datetime('now'))
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS paperforge_count_cache`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_paperforge_decision_events",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS paperforge_decision_events (
    id           TEXT PRIMARY KEY,
    account_id   TEXT NOT NULL DEFAULT '',
    can_proceed  INTEGER NOT NULL DEFAULT 0,
    reason       TEXT NOT NULL DEFAULT '',
    amount_cents INTEGER NOT NULL DEFAULT 0,
    currency     TEXT NOT NULL DEFAULT 'usd',
    timestamp    TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_paperforge_decisions_account_ts ON paperforge_decision_events (account_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_paperforge_decisions_reason ON paperforge_decision_events (reason, timestamp);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS paperforge_decision_events`)
				return err
			},
		},
	)
}
