// Package config holds the typed runtime configuration snapshot and the
// hot-reloadable store that serves it. Components read a consistent snapshot
// per scheduler tick; runtime updates validate against the whole snapshot and
// swap it atomically, so readers never observe a partial update.
package config

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Weights are the scoring component weights. They must each be non-negative
// and sum to 1 within WeightSumTolerance.
type Weights struct {
	Tx        float64 `yaml:"w_tx" json:"w_tx"`
	Vol       float64 `yaml:"w_vol" json:"w_vol"`
	Holder    float64 `yaml:"w_hld" json:"w_hld"`
	Orderflow float64 `yaml:"w_oi" json:"w_oi"`
}

// WeightSumTolerance is the allowed deviation of the weight sum from 1.
const WeightSumTolerance = 1e-3

// Sum returns the total of all four weights.
func (w Weights) Sum() float64 {
	return w.Tx + w.Vol + w.Holder + w.Orderflow
}

// Validate checks non-negativity and the sum constraint.
func (w Weights) Validate() error {
	if w.Tx < 0 || w.Vol < 0 || w.Holder < 0 || w.Orderflow < 0 {
		return fmt.Errorf("weights must be non-negative: %+v", w)
	}
	if math.Abs(w.Sum()-1) > WeightSumTolerance {
		return fmt.Errorf("weights must sum to 1 +/- %g, got %g", WeightSumTolerance, w.Sum())
	}
	return nil
}

// Snapshot is one immutable view of the full configuration. Startup-only
// settings (URLs, credentials, DSNs) live alongside the runtime-mutable keys
// so a single struct describes the whole process configuration.
type Snapshot struct {
	// Runtime-mutable keys (see Store.Set).
	Weights             Weights `yaml:"weights" json:"weights"`
	EwmaAlpha           float64 `yaml:"ewma_alpha" json:"ewma_alpha"`
	MinScoreKeepActive  float64 `yaml:"min_score_keep_active" json:"min_score_keep_active"`
	LowScoreWindowHours int     `yaml:"low_score_window_hours" json:"low_score_window_hours"`
	LowActivityChecks   int     `yaml:"low_activity_checks" json:"low_activity_checks"`
	MinLiquidityUSD     float64 `yaml:"min_liquidity_usd" json:"min_liquidity_usd"`
	MinTxCount          int64   `yaml:"min_tx_count" json:"min_tx_count"`
	ArchivalTimeoutHrs  int     `yaml:"archival_timeout_hours" json:"archival_timeout_hours"`
	CadenceMonitoredSec int     `yaml:"cadence_monitored_sec" json:"cadence_monitored_sec"`
	CadenceActiveSec    int     `yaml:"cadence_active_sec" json:"cadence_active_sec"`
	ExtMaxConcurrency   int     `yaml:"ext_max_concurrency" json:"ext_max_concurrency"`
	ProviderCacheTTLSec int     `yaml:"provider_cache_ttl_sec" json:"provider_cache_ttl_sec"`
	MinScoreForConfig   float64 `yaml:"min_score_for_config" json:"min_score_for_config"`
	ConfigTopCount      int     `yaml:"config_top_count" json:"config_top_count"`
	ScoringModel        string  `yaml:"scoring_model" json:"scoring_model"`

	// Batch sizes for the scheduler ticks.
	BatchMonitored int `yaml:"batch_monitored" json:"batch_monitored"`
	BatchActive    int `yaml:"batch_active" json:"batch_active"`

	// Startup-only settings.
	ProviderBaseURL  string  `yaml:"provider_base_url" json:"provider_base_url"`
	ProviderAPIKey   string  `yaml:"provider_api_key" json:"-"`
	ProviderRPS      float64 `yaml:"provider_rps" json:"provider_rps"`
	FeedURL          string  `yaml:"feed_url" json:"feed_url"`
	FeedChannel      string  `yaml:"feed_channel" json:"feed_channel"`
	DatabaseDSN      string  `yaml:"database_dsn" json:"-"`
	CacheBackend     string  `yaml:"provider_cache_backend" json:"provider_cache_backend"`
	RedisAddr        string  `yaml:"redis_addr" json:"redis_addr"`
	RedisDB          int     `yaml:"redis_db" json:"redis_db"`
	ListenAddr       string  `yaml:"listen_addr" json:"listen_addr"`
	LogLevel         string  `yaml:"log_level" json:"log_level"`
	StrategyName     string  `yaml:"strategy_name" json:"strategy_name"`
	ArtifactMaxAge   int     `yaml:"artifact_max_age_sec" json:"artifact_max_age_sec"`
	ShutdownDrainSec int     `yaml:"shutdown_drain_sec" json:"shutdown_drain_sec"`
}

// Default returns the snapshot used when no file or environment overrides are
// present.
func Default() Snapshot {
	return Snapshot{
		Weights:             Weights{Tx: 0.25, Vol: 0.35, Holder: 0.20, Orderflow: 0.20},
		EwmaAlpha:           0.3,
		MinScoreKeepActive:  0.1,
		LowScoreWindowHours: 6,
		LowActivityChecks:   3,
		MinLiquidityUSD:     500,
		MinTxCount:          300,
		ArchivalTimeoutHrs:  24,
		CadenceMonitoredSec: 30,
		CadenceActiveSec:    30,
		ExtMaxConcurrency:   5,
		ProviderCacheTTLSec: 30,
		MinScoreForConfig:   0.5,
		ConfigTopCount:      3,
		ScoringModel:        "hybrid_momentum",
		BatchMonitored:      50,
		BatchActive:         50,
		ProviderBaseURL:     "https://public-api.birdeye.so",
		ProviderRPS:         10,
		FeedURL:             "wss://pumpportal.fun/api/data",
		FeedChannel:         "subscribeMigration",
		CacheBackend:        "memory",
		RedisAddr:           "localhost:6379",
		ListenAddr:          ":8090",
		LogLevel:            "info",
		StrategyName:        "tokenscout-dynamic",
		ArtifactMaxAge:      60,
		ShutdownDrainSec:    5,
	}
}

// Validate enforces the range rules for every recognized key. A snapshot that
// fails validation is never installed.
func (s Snapshot) Validate() error {
	if err := s.Weights.Validate(); err != nil {
		return err
	}
	if s.EwmaAlpha < 0 || s.EwmaAlpha > 1 {
		return fmt.Errorf("ewma_alpha must be in [0,1], got %g", s.EwmaAlpha)
	}
	if s.MinScoreKeepActive < 0 {
		return fmt.Errorf("min_score_keep_active must be >= 0, got %g", s.MinScoreKeepActive)
	}
	if s.LowScoreWindowHours < 1 {
		return fmt.Errorf("low_score_window_hours must be >= 1, got %d", s.LowScoreWindowHours)
	}
	if s.LowActivityChecks < 3 {
		return fmt.Errorf("low_activity_checks must be >= 3, got %d", s.LowActivityChecks)
	}
	if s.MinLiquidityUSD < 0 {
		return fmt.Errorf("min_liquidity_usd must be >= 0, got %g", s.MinLiquidityUSD)
	}
	if s.MinTxCount < 0 {
		return fmt.Errorf("min_tx_count must be >= 0, got %d", s.MinTxCount)
	}
	if s.ArchivalTimeoutHrs < 1 {
		return fmt.Errorf("archival_timeout_hours must be >= 1, got %d", s.ArchivalTimeoutHrs)
	}
	if s.CadenceMonitoredSec < 5 {
		return fmt.Errorf("cadence_monitored_sec must be >= 5, got %d", s.CadenceMonitoredSec)
	}
	if s.CadenceActiveSec < 5 {
		return fmt.Errorf("cadence_active_sec must be >= 5, got %d", s.CadenceActiveSec)
	}
	if s.ExtMaxConcurrency < 1 {
		return fmt.Errorf("ext_max_concurrency must be >= 1, got %d", s.ExtMaxConcurrency)
	}
	if s.ProviderCacheTTLSec < 1 {
		return fmt.Errorf("provider_cache_ttl_sec must be >= 1, got %d", s.ProviderCacheTTLSec)
	}
	if s.MinScoreForConfig < 0 || s.MinScoreForConfig > 1 {
		return fmt.Errorf("min_score_for_config must be in [0,1], got %g", s.MinScoreForConfig)
	}
	if s.ConfigTopCount < 1 {
		return fmt.Errorf("config_top_count must be >= 1, got %d", s.ConfigTopCount)
	}
	if s.ScoringModel == "" {
		return fmt.Errorf("scoring_model must not be empty")
	}
	if s.BatchMonitored < 1 || s.BatchActive < 1 {
		return fmt.Errorf("batch sizes must be >= 1")
	}
	switch s.CacheBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("provider_cache_backend must be memory or redis, got %q", s.CacheBackend)
	}
	return nil
}

// CadenceMonitored returns the monitored tick period.
func (s Snapshot) CadenceMonitored() time.Duration {
	return time.Duration(s.CadenceMonitoredSec) * time.Second
}

// CadenceActive returns the active tick period.
func (s Snapshot) CadenceActive() time.Duration {
	return time.Duration(s.CadenceActiveSec) * time.Second
}

// ProviderCacheTTL returns the gateway cache entry lifetime.
func (s Snapshot) ProviderCacheTTL() time.Duration {
	return time.Duration(s.ProviderCacheTTLSec) * time.Second
}

// ArchivalTimeout returns the monitored age cap.
func (s Snapshot) ArchivalTimeout() time.Duration {
	return time.Duration(s.ArchivalTimeoutHrs) * time.Hour
}

// LowScoreWindow returns the sustained-low-score demotion window.
func (s Snapshot) LowScoreWindow() time.Duration {
	return time.Duration(s.LowScoreWindowHours) * time.Hour
}

// Store serves the current snapshot lock-free and applies validated updates
// atomically. A rejected update leaves the prior snapshot installed. Writers
// serialize on a mutex so concurrent updates cannot lose each other's keys;
// readers never take it.
type Store struct {
	writeMu sync.Mutex
	current atomic.Value // Snapshot
}

// NewStore installs initial as the current snapshot. initial must validate.
func NewStore(initial Snapshot) (*Store, error) {
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("initial config invalid: %w", err)
	}
	s := &Store{}
	s.current.Store(initial)
	return s, nil
}

// Current returns the installed snapshot. Callers keep the returned value for
// the duration of a tick so all decisions within it see one configuration.
func (s *Store) Current() Snapshot {
	return s.current.Load().(Snapshot)
}

// Replace validates next and installs it as the current snapshot.
func (s *Store) Replace(next Snapshot) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.install(next)
}

// install validates and stores; callers hold writeMu.
func (s *Store) install(next Snapshot) error {
	if err := next.Validate(); err != nil {
		return err
	}
	s.current.Store(next)
	return nil
}
