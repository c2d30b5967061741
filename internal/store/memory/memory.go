// Package memory provides an in-process TokenRepo used for tests and for
// DSN-less runs. It enforces the same transition legality and atomicity
// rules as the Postgres implementation.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tokenscout/tokenscout/internal/domain"
	"github.com/tokenscout/tokenscout/internal/store"
)

// Repo is a mutex-guarded in-memory TokenRepo.
type Repo struct {
	mu        sync.RWMutex
	tokens    map[string]*domain.Token
	pools     map[string][]domain.Pool // token address -> pools
	snapshots map[string][]domain.MetricSnapshot
	scores    map[string][]domain.ScoreRecord

	now func() time.Time
}

// New creates an empty repository.
func New() *Repo {
	return &Repo{
		tokens:    make(map[string]*domain.Token),
		pools:     make(map[string][]domain.Pool),
		snapshots: make(map[string][]domain.MetricSnapshot),
		scores:    make(map[string][]domain.ScoreRecord),
		now:       time.Now,
	}
}

// SetClock overrides the wall clock, for tests.
func (r *Repo) SetClock(now func() time.Time) { r.now = now }

var _ store.TokenRepo = (*Repo)(nil)

func (r *Repo) UpsertMonitored(_ context.Context, address string) (domain.Token, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.tokens[address]; ok {
		return *existing, false, nil
	}
	now := r.now()
	token := &domain.Token{
		Address:         address,
		Status:          domain.StatusMonitored,
		CreatedAt:       now,
		StatusChangedAt: now,
	}
	r.tokens[address] = token
	return *token, true, nil
}

func (r *Repo) Get(_ context.Context, address string) (*domain.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	token, ok := r.tokens[address]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *token
	return &copied, nil
}

func (r *Repo) ListByStatus(_ context.Context, status domain.Status, limit, offset int) ([]domain.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]domain.Token, 0)
	for _, token := range r.tokens {
		if token.Status == status {
			matched = append(matched, *token)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].Address < matched[j].Address
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	if offset >= len(matched) {
		return []domain.Token{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *Repo) CountByStatus(_ context.Context, status domain.Status) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, token := range r.tokens {
		if token.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *Repo) UpdateStatus(_ context.Context, address string, newStatus domain.Status, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[address]
	if !ok {
		return store.ErrNotFound
	}
	if !domain.CanTransition(token.Status, newStatus) {
		return &domain.ErrIllegalTransition{From: token.Status, To: newStatus}
	}

	token.Status = newStatus
	token.StatusChangedAt = at
	token.LastTransitionReason = reason
	switch newStatus {
	case domain.StatusActive:
		activatedAt := at
		token.ActivatedAt = &activatedAt
	case domain.StatusArchived:
		archivedAt := at
		token.ArchivedAt = &archivedAt
	case domain.StatusMonitored:
		// Demotion: streak bookkeeping is reset by the caller via UpdateStreaks.
	}
	return nil
}

func (r *Repo) UpdateStreaks(_ context.Context, address string, lowScoreStreak, lowActivityStreak int, lowScoreSince *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[address]
	if !ok {
		return store.ErrNotFound
	}
	token.LowScoreStreak = lowScoreStreak
	token.LowActivityStreak = lowActivityStreak
	token.LowScoreSince = lowScoreSince
	return nil
}

func (r *Repo) AppendSnapshot(_ context.Context, address string, snap domain.MetricSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[address]; !ok {
		return store.ErrNotFound
	}
	r.snapshots[address] = append(r.snapshots[address], snap)
	return nil
}

func (r *Repo) LatestSnapshot(_ context.Context, address string) (*domain.MetricSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.snapshots[address]
	if len(history) == 0 {
		return nil, nil
	}
	latest := history[0]
	for _, snap := range history[1:] {
		if snap.Timestamp.After(latest.Timestamp) {
			latest = snap
		}
	}
	return &latest, nil
}

func (r *Repo) SnapshotBefore(_ context.Context, address string, cutoff time.Time) (*domain.MetricSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *domain.MetricSnapshot
	for i := range r.snapshots[address] {
		snap := r.snapshots[address][i]
		if snap.Timestamp.After(cutoff) {
			continue
		}
		if best == nil || snap.Timestamp.After(best.Timestamp) {
			copied := snap
			best = &copied
		}
	}
	return best, nil
}

func (r *Repo) AppendScore(_ context.Context, address string, rec domain.ScoreRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[address]; !ok {
		return store.ErrNotFound
	}
	r.scores[address] = append(r.scores[address], rec)
	return nil
}

func (r *Repo) LatestScore(_ context.Context, address string) (*domain.ScoreRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.scores[address]
	if len(history) == 0 {
		return nil, nil
	}
	latest := history[0]
	for _, rec := range history[1:] {
		if rec.Timestamp.After(latest.Timestamp) {
			latest = rec
		}
	}
	return &latest, nil
}

func (r *Repo) SetLastScore(_ context.Context, address string, raw, smoothed float64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[address]
	if !ok {
		return store.ErrNotFound
	}
	token.LastRawScore = &raw
	token.LastSmoothedScore = &smoothed
	token.LastScoredAt = &at
	return nil
}

func (r *Repo) ListPools(_ context.Context, address string, onlyActive bool) ([]domain.Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Pool, 0)
	for _, pool := range r.pools[address] {
		if onlyActive && !pool.Active {
			continue
		}
		out = append(out, pool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (r *Repo) UpsertPool(_ context.Context, tokenAddress, poolAddress, dex string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[tokenAddress]; !ok {
		return store.ErrNotFound
	}
	for i, pool := range r.pools[tokenAddress] {
		if pool.Address == poolAddress {
			r.pools[tokenAddress][i].Dex = dex
			r.pools[tokenAddress][i].Active = active
			return nil
		}
	}
	r.pools[tokenAddress] = append(r.pools[tokenAddress], domain.Pool{
		Address:      poolAddress,
		TokenAddress: tokenAddress,
		Dex:          dex,
		Active:       active,
		CreatedAt:    r.now(),
	})
	return nil
}

func (r *Repo) CompactBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for address, history := range r.snapshots {
		kept := history[:0]
		for _, snap := range history {
			if snap.Timestamp.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, snap)
		}
		r.snapshots[address] = kept
	}
	for address, history := range r.scores {
		kept := history[:0]
		for _, rec := range history {
			if rec.Timestamp.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, rec)
		}
		r.scores[address] = kept
	}
	return removed, nil
}

func (r *Repo) Delete(_ context.Context, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[address]; !ok {
		return store.ErrNotFound
	}
	delete(r.tokens, address)
	delete(r.pools, address)
	delete(r.snapshots, address)
	delete(r.scores, address)
	return nil
}

func (r *Repo) Ping(context.Context) error { return nil }

func (r *Repo) Close() error { return nil }
