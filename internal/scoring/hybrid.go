package scoring

import (
	"fmt"
	"math"

	"github.com/tokenscout/tokenscout/internal/config"
	"github.com/tokenscout/tokenscout/internal/domain"
)

// ModelHybridMomentum is the name of the built-in composite model.
const ModelHybridMomentum = "hybrid_momentum"

// Component normalization caps. Each raw component is divided by its cap and
// clamped to [0,1]; orderflow imbalance is rescaled from [-1,1] instead.
const (
	txAccelCap      = 10.0
	volMomentumCap  = 5.0
	holderGrowthCap = 2.0
)

// HybridMomentum blends transaction acceleration, volume momentum, holder
// growth, and orderflow imbalance into one [0,1] score.
type HybridMomentum struct{}

// NewHybridMomentum returns the built-in model.
func NewHybridMomentum() *HybridMomentum { return &HybridMomentum{} }

func (m *HybridMomentum) Name() string { return ModelHybridMomentum }

// Score computes the normalized weighted composite and its EWMA smoothing.
// It refuses to compute when the configured weights do not sum to 1.
func (m *HybridMomentum) Score(snap domain.MetricSnapshot, prev *domain.ScoreRecord, cfg config.Snapshot) (domain.ScoreRecord, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("refusing to score: %w", err)
	}
	if cfg.EwmaAlpha < 0 || cfg.EwmaAlpha > 1 {
		return domain.ScoreRecord{}, fmt.Errorf("refusing to score: ewma_alpha %g outside [0,1]", cfg.EwmaAlpha)
	}

	components := domain.ScoreComponents{
		TxAccel:            clamp01(txAccel(snap) / txAccelCap),
		VolMomentum:        clamp01(volMomentum(snap) / volMomentumCap),
		HolderGrowth:       clamp01(holderGrowth(snap) / holderGrowthCap),
		OrderflowImbalance: (orderflowImbalance(snap) + 1) / 2,
	}

	w := cfg.Weights
	raw := clamp01(w.Tx*components.TxAccel +
		w.Vol*components.VolMomentum +
		w.Holder*components.HolderGrowth +
		w.Orderflow*components.OrderflowImbalance)

	return domain.ScoreRecord{
		Timestamp:  snap.Timestamp,
		ModelName:  m.Name(),
		Raw:        raw,
		Smoothed:   Smooth(raw, prev, cfg.EwmaAlpha),
		Components: components,
	}, nil
}

// txAccel compares the 5-minute transaction rate against the hourly rate.
// A zero hourly count yields zero, not NaN.
func txAccel(snap domain.MetricSnapshot) float64 {
	if snap.TxCount1h == 0 {
		return 0
	}
	rate5m := float64(snap.TxCount5m) / 5
	rate1h := float64(snap.TxCount1h) / 60
	return rate5m / rate1h
}

// volMomentum compares 5-minute volume against the average 5-minute slice of
// the hourly volume.
func volMomentum(snap domain.MetricSnapshot) float64 {
	if snap.Volume1h == 0 {
		return 0
	}
	return snap.Volume5m / (snap.Volume1h / 12)
}

// holderGrowth is ln(1 + relative holder change) over the last hour, clamped
// non-negative. Without a usable baseline the component is zero.
func holderGrowth(snap domain.MetricSnapshot) float64 {
	if snap.HoldersHourAgo == nil || *snap.HoldersHourAgo <= 0 {
		return 0
	}
	change := float64(snap.Holders-*snap.HoldersHourAgo) / float64(*snap.HoldersHourAgo)
	arg := 1 + change
	if arg <= 0 {
		return 0
	}
	return math.Max(0, math.Log(arg))
}

// orderflowImbalance is the signed buy/sell volume ratio over 5 minutes,
// in [-1,1]; zero total volume yields zero.
func orderflowImbalance(snap domain.MetricSnapshot) float64 {
	total := snap.BuysVolume5m + snap.SellsVolume5m
	if total <= 0 {
		return 0
	}
	return (snap.BuysVolume5m - snap.SellsVolume5m) / total
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
