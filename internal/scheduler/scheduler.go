// Package scheduler drives the periodic work: monitored-tick evaluation,
// active-tick scoring, and hourly history compaction. All ticks run on a
// single goroutine so no two ticks of any kind overlap.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tokenscout/tokenscout/internal/config"
	"github.com/tokenscout/tokenscout/internal/domain"
	"github.com/tokenscout/tokenscout/internal/lifecycle"
	"github.com/tokenscout/tokenscout/internal/metrics"
	"github.com/tokenscout/tokenscout/internal/store"
)

const (
	compactionEvery  = time.Hour
	snapshotRetained = 2 * time.Hour
)

// Scheduler owns the tick loop. Cadences are re-read from the config store
// after every tick, so runtime cadence changes take effect on the next cycle.
type Scheduler struct {
	repo    store.TokenRepo
	ctrl    *lifecycle.Controller
	cfg     *config.Store
	metrics *metrics.Registry

	now func() time.Time
}

// New assembles the scheduler over the lifecycle controller.
func New(repo store.TokenRepo, ctrl *lifecycle.Controller, cfg *config.Store, reg *metrics.Registry) *Scheduler {
	return &Scheduler{
		repo:    repo,
		ctrl:    ctrl,
		cfg:     cfg,
		metrics: reg,
		now:     time.Now,
	}
}

// SetClock overrides the wall clock, for tests.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Run executes ticks until ctx is cancelled. A tick in progress finishes; the
// loop never starts a new tick after cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	cfg := s.cfg.Current()
	monitored := time.NewTimer(cfg.CadenceMonitored())
	active := time.NewTimer(cfg.CadenceActive())
	compact := time.NewTicker(compactionEvery)
	defer monitored.Stop()
	defer active.Stop()
	defer compact.Stop()

	log.Info().
		Dur("cadence_monitored", cfg.CadenceMonitored()).
		Dur("cadence_active", cfg.CadenceActive()).
		Msg("scheduler started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-monitored.C:
			s.tickMonitored(ctx)
			monitored.Reset(s.cfg.Current().CadenceMonitored())
		case <-active.C:
			s.tickActive(ctx)
			active.Reset(s.cfg.Current().CadenceActive())
		case <-compact.C:
			s.tickCompact(ctx)
		}
	}
}

func (s *Scheduler) tickMonitored(ctx context.Context) {
	tickID := uuid.NewString()
	cfg := s.cfg.Current()
	started := s.now()

	batch, err := s.repo.ListByStatus(ctx, domain.StatusMonitored, cfg.BatchMonitored, 0)
	if err != nil {
		log.Error().Err(err).Str("tick", tickID).Msg("monitored tick: list failed")
		s.countTickError("monitored")
		return
	}

	res := s.ctrl.MonitoredTick(ctx, batch, cfg)
	s.observe("monitored", started)
	log.Info().
		Str("tick", tickID).
		Int("processed", res.Processed).
		Int("promoted", res.Promoted).
		Int("archived", res.Archived).
		Int("skipped", res.Skipped).
		Dur("took", s.now().Sub(started)).
		Msg("monitored tick")
}

func (s *Scheduler) tickActive(ctx context.Context) {
	tickID := uuid.NewString()
	cfg := s.cfg.Current()
	started := s.now()

	batch, err := s.repo.ListByStatus(ctx, domain.StatusActive, cfg.BatchActive, 0)
	if err != nil {
		log.Error().Err(err).Str("tick", tickID).Msg("active tick: list failed")
		s.countTickError("active")
		return
	}

	res, err := s.ctrl.ActiveTick(ctx, batch, cfg)
	s.observe("active", started)
	if err != nil {
		// A configuration fault; the loop keeps running and the next tick
		// re-reads the config, which may have been repaired by then.
		log.Error().Err(err).Str("tick", tickID).Msg("active tick refused")
		s.countTickError("active")
		return
	}
	log.Info().
		Str("tick", tickID).
		Int("processed", res.Processed).
		Int("demoted", res.Demoted).
		Int("skipped", res.Skipped).
		Dur("took", s.now().Sub(started)).
		Msg("active tick")
}

// tickCompact trims metric and score history older than the retention window.
func (s *Scheduler) tickCompact(ctx context.Context) {
	tickID := uuid.NewString()
	started := s.now()
	cutoff := started.Add(-snapshotRetained)

	removed, err := s.repo.CompactBefore(ctx, cutoff)
	s.observe("compact", started)
	if err != nil {
		log.Error().Err(err).Str("tick", tickID).Msg("compaction failed")
		s.countTickError("compact")
		return
	}
	log.Info().
		Str("tick", tickID).
		Int64("removed", removed).
		Time("cutoff", cutoff).
		Msg("history compacted")
}

func (s *Scheduler) observe(kind string, started time.Time) {
	if s.metrics != nil {
		s.metrics.TickDuration.WithLabelValues(kind).Observe(s.now().Sub(started).Seconds())
	}
}

func (s *Scheduler) countTickError(kind string) {
	if s.metrics != nil {
		s.metrics.TickErrors.WithLabelValues(kind).Inc()
	}
}
