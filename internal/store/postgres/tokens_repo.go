package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/tokenscout/tokenscout/internal/domain"
	"github.com/tokenscout/tokenscout/internal/store"
)

// tokensRepo implements store.TokenRepo on PostgreSQL.
type tokensRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTokensRepo wraps db as a TokenRepo. Each call gets a per-query timeout.
func NewTokensRepo(db *sqlx.DB, timeout time.Duration) store.TokenRepo {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &tokensRepo{db: db, timeout: timeout}
}

func (r *tokensRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *tokensRepo) UpsertMonitored(ctx context.Context, address string) (domain.Token, bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO tokens (address, status, created_at, status_changed_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (address) DO NOTHING`,
		address, domain.StatusMonitored, now)
	if err != nil {
		return domain.Token{}, false, fmt.Errorf("upsert token: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return domain.Token{}, false, fmt.Errorf("upsert token: %w", err)
	}

	token, err := r.Get(ctx, address)
	if err != nil {
		return domain.Token{}, false, err
	}
	return *token, inserted == 1, nil
}

func (r *tokensRepo) Get(ctx context.Context, address string) (*domain.Token, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var token domain.Token
	err := r.db.GetContext(ctx, &token, `
		SELECT address, status, created_at, status_changed_at, activated_at,
		       archived_at, last_raw_score, last_smoothed_score, last_scored_at,
		       low_score_streak, low_activity_streak, low_score_since,
		       last_transition_reason
		FROM tokens WHERE address = $1`, address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	return &token, nil
}

func (r *tokensRepo) ListByStatus(ctx context.Context, status domain.Status, limit, offset int) ([]domain.Token, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tokens := []domain.Token{}
	err := r.db.SelectContext(ctx, &tokens, `
		SELECT address, status, created_at, status_changed_at, activated_at,
		       archived_at, last_raw_score, last_smoothed_score, last_scored_at,
		       low_score_streak, low_activity_streak, low_score_since,
		       last_transition_reason
		FROM tokens
		WHERE status = $1
		ORDER BY created_at, address
		LIMIT NULLIF($2, 0) OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list tokens by status: %w", err)
	}
	return tokens, nil
}

func (r *tokensRepo) CountByStatus(ctx context.Context, status domain.Status) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM tokens WHERE status = $1`, status); err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	return n, nil
}

// UpdateStatus performs the transition in one guarded UPDATE so the legality
// check and the write are atomic under concurrent callers.
func (r *tokensRepo) UpdateStatus(ctx context.Context, address string, newStatus domain.Status, reason string, at time.Time) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var from []domain.Status
	switch newStatus {
	case domain.StatusActive:
		from = []domain.Status{domain.StatusMonitored}
	case domain.StatusMonitored:
		from = []domain.Status{domain.StatusActive}
	case domain.StatusArchived:
		from = []domain.Status{domain.StatusMonitored}
	default:
		return fmt.Errorf("invalid status %q", newStatus)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE tokens SET
			status = $2,
			status_changed_at = $3,
			last_transition_reason = $4,
			activated_at = CASE WHEN $2 = 'active' THEN $3 ELSE activated_at END,
			archived_at  = CASE WHEN $2 = 'archived' THEN $3 ELSE archived_at END
		WHERE address = $1 AND status = ANY($5)`,
		address, newStatus, at.UTC(), reason, pq.Array(statusStrings(from)))
	if err != nil {
		return fmt.Errorf("update status (%s): %w", reason, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if affected == 0 {
		token, getErr := r.Get(ctx, address)
		if getErr != nil {
			return getErr
		}
		return &domain.ErrIllegalTransition{From: token.Status, To: newStatus}
	}
	return nil
}

func statusStrings(in []domain.Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func (r *tokensRepo) UpdateStreaks(ctx context.Context, address string, lowScoreStreak, lowActivityStreak int, lowScoreSince *time.Time) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE tokens SET
			low_score_streak = $2,
			low_activity_streak = $3,
			low_score_since = $4
		WHERE address = $1`,
		address, lowScoreStreak, lowActivityStreak, lowScoreSince)
	if err != nil {
		return fmt.Errorf("update streaks: %w", err)
	}
	return requireRow(res)
}

func (r *tokensRepo) AppendSnapshot(ctx context.Context, address string, snap domain.MetricSnapshot) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO metric_snapshots
			(token_address, ts, tx_count_5m, tx_count_1h, volume_5m, volume_1h,
			 buys_volume_5m, sells_volume_5m, holders, liquidity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		address, snap.Timestamp.UTC(), snap.TxCount5m, snap.TxCount1h,
		snap.Volume5m, snap.Volume1h, snap.BuysVolume5m, snap.SellsVolume5m,
		snap.Holders, snap.Liquidity)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			return store.ErrNotFound
		}
		return fmt.Errorf("append snapshot: %w", err)
	}
	return nil
}

const snapshotColumns = `ts, tx_count_5m, tx_count_1h, volume_5m, volume_1h,
	buys_volume_5m, sells_volume_5m, holders, liquidity`

func (r *tokensRepo) LatestSnapshot(ctx context.Context, address string) (*domain.MetricSnapshot, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var snap domain.MetricSnapshot
	err := r.db.GetContext(ctx, &snap, `
		SELECT `+snapshotColumns+`
		FROM metric_snapshots
		WHERE token_address = $1
		ORDER BY ts DESC LIMIT 1`, address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return &snap, nil
}

func (r *tokensRepo) SnapshotBefore(ctx context.Context, address string, cutoff time.Time) (*domain.MetricSnapshot, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var snap domain.MetricSnapshot
	err := r.db.GetContext(ctx, &snap, `
		SELECT `+snapshotColumns+`
		FROM metric_snapshots
		WHERE token_address = $1 AND ts <= $2
		ORDER BY ts DESC LIMIT 1`, address, cutoff.UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot before: %w", err)
	}
	return &snap, nil
}

func (r *tokensRepo) AppendScore(ctx context.Context, address string, rec domain.ScoreRecord) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO score_records
			(token_address, ts, model_name, raw, smoothed,
			 tx_accel, vol_momentum, holder_growth, orderflow_imbalance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		address, rec.Timestamp.UTC(), rec.ModelName, rec.Raw, rec.Smoothed,
		rec.Components.TxAccel, rec.Components.VolMomentum,
		rec.Components.HolderGrowth, rec.Components.OrderflowImbalance)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			return store.ErrNotFound
		}
		return fmt.Errorf("append score: %w", err)
	}
	return nil
}

func (r *tokensRepo) LatestScore(ctx context.Context, address string) (*domain.ScoreRecord, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowxContext(ctx, `
		SELECT ts, model_name, raw, smoothed,
		       tx_accel, vol_momentum, holder_growth, orderflow_imbalance
		FROM score_records
		WHERE token_address = $1
		ORDER BY ts DESC LIMIT 1`, address)

	var rec domain.ScoreRecord
	err := row.Scan(&rec.Timestamp, &rec.ModelName, &rec.Raw, &rec.Smoothed,
		&rec.Components.TxAccel, &rec.Components.VolMomentum,
		&rec.Components.HolderGrowth, &rec.Components.OrderflowImbalance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest score: %w", err)
	}
	return &rec, nil
}

func (r *tokensRepo) SetLastScore(ctx context.Context, address string, raw, smoothed float64, at time.Time) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE tokens SET
			last_raw_score = $2,
			last_smoothed_score = $3,
			last_scored_at = $4
		WHERE address = $1`,
		address, raw, smoothed, at.UTC())
	if err != nil {
		return fmt.Errorf("set last score: %w", err)
	}
	return requireRow(res)
}

func (r *tokensRepo) ListPools(ctx context.Context, address string, onlyActive bool) ([]domain.Pool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT address, token_address, dex, active, created_at
		FROM pools WHERE token_address = $1`
	if onlyActive {
		query += ` AND active`
	}
	query += ` ORDER BY address`

	pools := []domain.Pool{}
	if err := r.db.SelectContext(ctx, &pools, query, address); err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	return pools, nil
}

func (r *tokensRepo) UpsertPool(ctx context.Context, tokenAddress, poolAddress, dex string, active bool) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pools (address, token_address, dex, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO UPDATE SET dex = $3, active = $4`,
		poolAddress, tokenAddress, dex, active)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			return store.ErrNotFound
		}
		return fmt.Errorf("upsert pool: %w", err)
	}
	return nil
}

func (r *tokensRepo) CompactBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var removed int64
	for _, table := range []string{"metric_snapshots", "score_records"} {
		res, err := r.db.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE ts < $1`, table), cutoff.UTC())
		if err != nil {
			return removed, fmt.Errorf("compact %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return removed, fmt.Errorf("compact %s: %w", table, err)
		}
		removed += n
	}
	return removed, nil
}

func (r *tokensRepo) Delete(ctx context.Context, address string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE address = $1`, address)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return requireRow(res)
}

func (r *tokensRepo) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.db.PingContext(ctx)
}

func (r *tokensRepo) Close() error {
	return r.db.Close()
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
