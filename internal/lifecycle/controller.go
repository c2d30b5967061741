// Package lifecycle implements the token state machine: activation of
// monitored tokens, scoring and demotion of active tokens, and archival of
// stale monitored tokens.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tokenscout/tokenscout/internal/config"
	"github.com/tokenscout/tokenscout/internal/domain"
	"github.com/tokenscout/tokenscout/internal/metrics"
	"github.com/tokenscout/tokenscout/internal/provider"
	"github.com/tokenscout/tokenscout/internal/scoring"
	"github.com/tokenscout/tokenscout/internal/store"
)

// MetricsSource supplies fresh market metrics; the provider gateway satisfies
// it.
type MetricsSource interface {
	TokenMetrics(ctx context.Context, address string) (domain.MetricSnapshot, error)
}

// Result summarizes one batch pass for logging and tests.
type Result struct {
	Processed int
	Promoted  int
	Demoted   int
	Archived  int
	Skipped   int
}

// Controller applies the lifecycle rules to token batches. Per-token
// failures are logged and skipped; only a configuration-level fault (unknown
// model, bad weights) aborts a batch.
type Controller struct {
	repo    store.TokenRepo
	source  MetricsSource
	models  *scoring.Registry
	metrics *metrics.Registry

	now func() time.Time
}

// NewController wires the state machine over its collaborators.
func NewController(repo store.TokenRepo, source MetricsSource, models *scoring.Registry, reg *metrics.Registry) *Controller {
	return &Controller{
		repo:    repo,
		source:  source,
		models:  models,
		metrics: reg,
		now:     time.Now,
	}
}

// SetClock overrides the wall clock, for tests.
func (c *Controller) SetClock(now func() time.Time) { c.now = now }

// MonitoredTick processes one batch of monitored tokens: archival first (age
// dominates every other rule), then activation against fresh metrics.
func (c *Controller) MonitoredTick(ctx context.Context, batch []domain.Token, cfg config.Snapshot) Result {
	var res Result
	for _, token := range batch {
		if err := ctx.Err(); err != nil {
			return res
		}
		res.Processed++
		if err := c.evalMonitored(ctx, token, cfg, &res); err != nil {
			res.Skipped++
			c.countTickError("monitored")
			log.Warn().Err(err).Str("token", token.Address).Msg("monitored token skipped")
		}
	}
	return res
}

func (c *Controller) evalMonitored(ctx context.Context, token domain.Token, cfg config.Snapshot, res *Result) error {
	now := c.now()

	if now.Sub(token.CreatedAt) >= cfg.ArchivalTimeout() {
		if err := c.repo.UpdateStatus(ctx, token.Address, domain.StatusArchived, domain.ReasonArchivalTimeout, now); err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		c.countTransition(domain.ReasonArchivalTimeout)
		res.Archived++
		log.Info().Str("token", token.Address).Msg("token archived by timeout")
		return nil
	}

	snap, err := c.freshOrLatestSnapshot(ctx, token.Address)
	if err != nil {
		return err
	}
	if snap == nil {
		// Nothing known about the token yet; wait for a future tick.
		return nil
	}

	if snap.Liquidity < cfg.MinLiquidityUSD || snap.TxCount1h < cfg.MinTxCount {
		return nil
	}
	pools, err := c.repo.ListPools(ctx, token.Address, false)
	if err != nil {
		return fmt.Errorf("list pools: %w", err)
	}
	if len(pools) == 0 {
		return nil
	}

	if err := c.repo.UpdateStatus(ctx, token.Address, domain.StatusActive, domain.ReasonActivation, now); err != nil {
		return fmt.Errorf("promote: %w", err)
	}
	if err := c.repo.UpdateStreaks(ctx, token.Address, 0, 0, nil); err != nil {
		return fmt.Errorf("reset streaks: %w", err)
	}
	c.countTransition(domain.ReasonActivation)
	res.Promoted++
	log.Info().
		Str("token", token.Address).
		Float64("liquidity", snap.Liquidity).
		Int64("tx_1h", snap.TxCount1h).
		Msg("token activated")
	return nil
}

// freshOrLatestSnapshot asks the gateway for fresh metrics and persists them;
// if the provider fails transiently it falls back to the latest stored
// snapshot. Permanent provider errors surface to the caller.
func (c *Controller) freshOrLatestSnapshot(ctx context.Context, address string) (*domain.MetricSnapshot, error) {
	snap, err := c.source.TokenMetrics(ctx, address)
	if err == nil {
		if appendErr := c.repo.AppendSnapshot(ctx, address, snap); appendErr != nil {
			return nil, fmt.Errorf("append snapshot: %w", appendErr)
		}
		return &snap, nil
	}
	if provider.IsPermanent(err) {
		return nil, err
	}
	log.Debug().Err(err).Str("token", address).Msg("fresh metrics unavailable, using stored snapshot")
	return c.repo.LatestSnapshot(ctx, address)
}

// ActiveTick scores one batch of active tokens and applies the demotion
// rules. An unknown model or invalid weights is a configuration fault and
// aborts the batch.
func (c *Controller) ActiveTick(ctx context.Context, batch []domain.Token, cfg config.Snapshot) (Result, error) {
	var res Result

	model, err := c.models.Lookup(cfg.ScoringModel)
	if err != nil {
		return res, err
	}
	if err := cfg.Weights.Validate(); err != nil {
		return res, fmt.Errorf("refusing active tick: %w", err)
	}

	for _, token := range batch {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Processed++
		if err := c.evalActive(ctx, token, model, cfg, &res); err != nil {
			res.Skipped++
			c.countTickError("active")
			log.Warn().Err(err).Str("token", token.Address).Msg("active token skipped")
		}
	}
	return res, nil
}

func (c *Controller) evalActive(ctx context.Context, token domain.Token, model scoring.Model, cfg config.Snapshot, res *Result) error {
	now := c.now()

	snap, err := c.source.TokenMetrics(ctx, token.Address)
	if err != nil {
		return fmt.Errorf("fetch metrics: %w", err)
	}

	// Join holders-1h-ago from history before this snapshot is appended.
	if prior, err := c.repo.SnapshotBefore(ctx, token.Address, now.Add(-time.Hour)); err == nil && prior != nil {
		holders := prior.Holders
		snap.HoldersHourAgo = &holders
	}

	if err := c.repo.AppendSnapshot(ctx, token.Address, snap); err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}

	prev, err := c.repo.LatestScore(ctx, token.Address)
	if err != nil {
		return fmt.Errorf("latest score: %w", err)
	}
	rec, err := model.Score(snap, prev, cfg)
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}
	if err := c.repo.AppendScore(ctx, token.Address, rec); err != nil {
		return fmt.Errorf("append score: %w", err)
	}
	if err := c.repo.SetLastScore(ctx, token.Address, rec.Raw, rec.Smoothed, rec.Timestamp); err != nil {
		return fmt.Errorf("set last score: %w", err)
	}

	return c.applyDemotionRules(ctx, token, snap, rec, cfg, now, res)
}

// applyDemotionRules evaluates low-score then low-activity; the first rule
// that fires wins and at most one transition happens per tick per token.
func (c *Controller) applyDemotionRules(ctx context.Context, token domain.Token, snap domain.MetricSnapshot, rec domain.ScoreRecord, cfg config.Snapshot, now time.Time, res *Result) error {
	lowScoreStreak := token.LowScoreStreak
	lowActivityStreak := token.LowActivityStreak
	lowScoreSince := token.LowScoreSince

	if rec.Smoothed < cfg.MinScoreKeepActive {
		lowScoreStreak++
		if lowScoreSince == nil {
			since := now
			lowScoreSince = &since
		}
		if now.Sub(*lowScoreSince) >= cfg.LowScoreWindow() {
			return c.demote(ctx, token.Address, domain.ReasonLowScore, now, res)
		}
	} else {
		lowScoreStreak = 0
		lowScoreSince = nil
	}

	if snap.TxCount1h < cfg.MinTxCount {
		lowActivityStreak++
		if lowActivityStreak >= cfg.LowActivityChecks {
			return c.demote(ctx, token.Address, domain.ReasonLowActivity, now, res)
		}
	} else {
		lowActivityStreak = 0
	}

	if err := c.repo.UpdateStreaks(ctx, token.Address, lowScoreStreak, lowActivityStreak, lowScoreSince); err != nil {
		return fmt.Errorf("update streaks: %w", err)
	}
	return nil
}

func (c *Controller) demote(ctx context.Context, address, reason string, now time.Time, res *Result) error {
	if err := c.repo.UpdateStatus(ctx, address, domain.StatusMonitored, reason, now); err != nil {
		return fmt.Errorf("demote: %w", err)
	}
	if err := c.repo.UpdateStreaks(ctx, address, 0, 0, nil); err != nil {
		return fmt.Errorf("reset streaks: %w", err)
	}
	c.countTransition(reason)
	res.Demoted++
	log.Info().Str("token", address).Str("reason", reason).Msg("token demoted")
	return nil
}

func (c *Controller) countTransition(reason string) {
	if c.metrics != nil {
		c.metrics.Transitions.WithLabelValues(reason).Inc()
	}
}

func (c *Controller) countTickError(kind string) {
	if c.metrics != nil {
		c.metrics.TickErrors.WithLabelValues(kind).Inc()
	}
}
