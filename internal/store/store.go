// Package store defines the repository interface gating all token
// persistence. Implementations live in the postgres and memory subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/tokenscout/tokenscout/internal/domain"
)

// ErrNotFound is returned when the requested token does not exist.
var ErrNotFound = errors.New("token not found")

// TokenRepo is the persistence contract for tokens, pools, and their
// histories. A status update and the history entry written with it must be
// visible atomically to subsequent reads.
type TokenRepo interface {
	// UpsertMonitored creates address as a monitored token. The call is
	// idempotent: on collision the existing row is returned unchanged and
	// created is false.
	UpsertMonitored(ctx context.Context, address string) (token domain.Token, created bool, err error)

	// Get returns the token at address or ErrNotFound.
	Get(ctx context.Context, address string) (*domain.Token, error)

	// ListByStatus returns up to limit tokens in status, ordered by creation
	// time ascending, skipping offset rows. A limit <= 0 returns all matching
	// tokens, so callers needing one coherent view of a status read it in a
	// single call.
	ListByStatus(ctx context.Context, status domain.Status, limit, offset int) ([]domain.Token, error)

	// CountByStatus returns the number of tokens in status.
	CountByStatus(ctx context.Context, status domain.Status) (int64, error)

	// UpdateStatus atomically moves the token to newStatus, recording the
	// reason and stamping status_changed_at plus activated_at/archived_at as
	// appropriate. Illegal transitions fail with *domain.ErrIllegalTransition.
	UpdateStatus(ctx context.Context, address string, newStatus domain.Status, reason string, at time.Time) error

	// UpdateStreaks persists the demotion bookkeeping counters.
	UpdateStreaks(ctx context.Context, address string, lowScoreStreak, lowActivityStreak int, lowScoreSince *time.Time) error

	// AppendSnapshot appends one metric snapshot to the token's history.
	AppendSnapshot(ctx context.Context, address string, snap domain.MetricSnapshot) error

	// LatestSnapshot returns the most recent snapshot, or nil when none exist.
	LatestSnapshot(ctx context.Context, address string) (*domain.MetricSnapshot, error)

	// SnapshotBefore returns the newest snapshot taken at or before cutoff,
	// or nil when none qualifies. Used to join holders-1h-ago.
	SnapshotBefore(ctx context.Context, address string, cutoff time.Time) (*domain.MetricSnapshot, error)

	// AppendScore appends one score record to the token's history.
	AppendScore(ctx context.Context, address string, rec domain.ScoreRecord) error

	// LatestScore returns the most recent score record, or nil when none exist.
	LatestScore(ctx context.Context, address string) (*domain.ScoreRecord, error)

	// SetLastScore updates the denormalized last_* score fields on the token.
	SetLastScore(ctx context.Context, address string, raw, smoothed float64, at time.Time) error

	// ListPools returns the token's pools, optionally only active ones,
	// ordered by pool address.
	ListPools(ctx context.Context, address string, onlyActive bool) ([]domain.Pool, error)

	// UpsertPool creates or updates a pool owned by the token.
	UpsertPool(ctx context.Context, tokenAddress, poolAddress, dex string, active bool) error

	// CompactBefore deletes snapshots and score records older than cutoff,
	// returning the number of rows removed.
	CompactBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Delete removes the token along with its pools and histories.
	Delete(ctx context.Context, address string) error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}
