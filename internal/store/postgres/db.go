// Package postgres implements the token repository on PostgreSQL via sqlx.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Open connects to the database at dsn and verifies connectivity.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tokens (
		address             TEXT PRIMARY KEY,
		status              TEXT NOT NULL,
		created_at          TIMESTAMPTZ NOT NULL,
		status_changed_at   TIMESTAMPTZ NOT NULL,
		activated_at        TIMESTAMPTZ,
		archived_at         TIMESTAMPTZ,
		last_raw_score      DOUBLE PRECISION,
		last_smoothed_score DOUBLE PRECISION,
		last_scored_at      TIMESTAMPTZ,
		low_score_streak    INTEGER NOT NULL DEFAULT 0,
		low_activity_streak INTEGER NOT NULL DEFAULT 0,
		low_score_since     TIMESTAMPTZ,
		last_transition_reason TEXT NOT NULL DEFAULT ''
	)`,
	`ALTER TABLE tokens
		ADD COLUMN IF NOT EXISTS last_transition_reason TEXT NOT NULL DEFAULT ''`,
	`CREATE INDEX IF NOT EXISTS idx_tokens_status_created
		ON tokens (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS pools (
		address       TEXT PRIMARY KEY,
		token_address TEXT NOT NULL REFERENCES tokens(address) ON DELETE CASCADE,
		dex           TEXT NOT NULL,
		active        BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pools_token ON pools (token_address)`,
	`CREATE TABLE IF NOT EXISTS metric_snapshots (
		id             BIGSERIAL PRIMARY KEY,
		token_address  TEXT NOT NULL REFERENCES tokens(address) ON DELETE CASCADE,
		ts             TIMESTAMPTZ NOT NULL,
		tx_count_5m    BIGINT NOT NULL,
		tx_count_1h    BIGINT NOT NULL,
		volume_5m      DOUBLE PRECISION NOT NULL,
		volume_1h      DOUBLE PRECISION NOT NULL,
		buys_volume_5m  DOUBLE PRECISION NOT NULL,
		sells_volume_5m DOUBLE PRECISION NOT NULL,
		holders        BIGINT NOT NULL,
		liquidity      DOUBLE PRECISION NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_token_ts
		ON metric_snapshots (token_address, ts DESC)`,
	`CREATE TABLE IF NOT EXISTS score_records (
		id                  BIGSERIAL PRIMARY KEY,
		token_address       TEXT NOT NULL REFERENCES tokens(address) ON DELETE CASCADE,
		ts                  TIMESTAMPTZ NOT NULL,
		model_name          TEXT NOT NULL,
		raw                 DOUBLE PRECISION NOT NULL,
		smoothed            DOUBLE PRECISION NOT NULL,
		tx_accel            DOUBLE PRECISION NOT NULL,
		vol_momentum        DOUBLE PRECISION NOT NULL,
		holder_growth       DOUBLE PRECISION NOT NULL,
		orderflow_imbalance DOUBLE PRECISION NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scores_token_ts
		ON score_records (token_address, ts DESC)`,
}

// EnsureSchema creates the tables and indexes if they do not exist, so the
// binary can run against an empty database.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	log.Debug().Msg("database schema ensured")
	return nil
}
