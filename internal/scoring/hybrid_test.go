package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenscout/tokenscout/internal/config"
	"github.com/tokenscout/tokenscout/internal/domain"
)

func ptr(n int64) *int64 { return &n }

func testSnapshot() domain.MetricSnapshot {
	return domain.MetricSnapshot{
		Timestamp:      time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		TxCount5m:      50,
		TxCount1h:      300,
		Volume5m:       2000,
		Volume1h:       12000,
		BuysVolume5m:   1500,
		SellsVolume5m:  500,
		Holders:        440,
		HoldersHourAgo: ptr(400),
		Liquidity:      25000,
	}
}

func TestHybrid_Components(t *testing.T) {
	model := NewHybridMomentum()
	cfg := config.Default()

	rec, err := model.Score(testSnapshot(), nil, cfg)
	require.NoError(t, err)

	// tx_accel: (50/5)/(300/60) = 2; normalized 2/10 = 0.2
	assert.InDelta(t, 0.2, rec.Components.TxAccel, 1e-9)
	// vol_momentum: 2000/(12000/12) = 2; normalized 2/5 = 0.4
	assert.InDelta(t, 0.4, rec.Components.VolMomentum, 1e-9)
	// holder_growth: ln(1 + 40/400) = ln(1.1); normalized /2
	assert.InDelta(t, math.Log(1.1)/2, rec.Components.HolderGrowth, 1e-9)
	// orderflow: (1500-500)/2000 = 0.5; rescaled (0.5+1)/2 = 0.75
	assert.InDelta(t, 0.75, rec.Components.OrderflowImbalance, 1e-9)

	expected := 0.25*0.2 + 0.35*0.4 + 0.20*math.Log(1.1)/2 + 0.20*0.75
	assert.InDelta(t, expected, rec.Raw, 1e-9)
	assert.Equal(t, rec.Raw, rec.Smoothed, "first score seeds the EWMA")
	assert.Equal(t, ModelHybridMomentum, rec.ModelName)
}

func TestHybrid_ZeroDenominators(t *testing.T) {
	model := NewHybridMomentum()
	cfg := config.Default()

	snap := domain.MetricSnapshot{Timestamp: time.Now()}
	rec, err := model.Score(snap, nil, cfg)
	require.NoError(t, err)

	assert.Zero(t, rec.Components.TxAccel, "tx_count_1h=0 must yield 0, not NaN")
	assert.Zero(t, rec.Components.VolMomentum)
	assert.Zero(t, rec.Components.HolderGrowth)
	assert.InDelta(t, 0.5, rec.Components.OrderflowImbalance, 1e-9, "zero flow rescales to midpoint")
	assert.False(t, math.IsNaN(rec.Raw))
}

func TestHybrid_HolderGrowthBaselines(t *testing.T) {
	model := NewHybridMomentum()
	cfg := config.Default()

	snap := testSnapshot()
	snap.HoldersHourAgo = nil
	rec, err := model.Score(snap, nil, cfg)
	require.NoError(t, err)
	assert.Zero(t, rec.Components.HolderGrowth, "absent baseline yields 0")

	snap.HoldersHourAgo = ptr(0)
	rec, err = model.Score(snap, nil, cfg)
	require.NoError(t, err)
	assert.Zero(t, rec.Components.HolderGrowth, "zero baseline yields 0")

	// Holder exodus: ln argument would go non-positive; clamp to 0.
	snap.HoldersHourAgo = ptr(400)
	snap.Holders = 0
	rec, err = model.Score(snap, nil, cfg)
	require.NoError(t, err)
	assert.Zero(t, rec.Components.HolderGrowth)
}

func TestHybrid_ComponentCaps(t *testing.T) {
	model := NewHybridMomentum()
	cfg := config.Default()

	snap := domain.MetricSnapshot{
		Timestamp:      time.Now(),
		TxCount5m:      10000, // enormous acceleration
		TxCount1h:      10000,
		Volume5m:       1e9,
		Volume1h:       1e9,
		BuysVolume5m:   1e9,
		SellsVolume5m:  0,
		Holders:        1000000,
		HoldersHourAgo: ptr(1),
	}
	rec, err := model.Score(snap, nil, cfg)
	require.NoError(t, err)

	assert.LessOrEqual(t, rec.Components.TxAccel, 1.0)
	assert.LessOrEqual(t, rec.Components.VolMomentum, 1.0)
	assert.LessOrEqual(t, rec.Components.HolderGrowth, 1.0)
	assert.LessOrEqual(t, rec.Components.OrderflowImbalance, 1.0)
	assert.LessOrEqual(t, rec.Raw, 1.0)
}

func TestHybrid_RefusesBadWeights(t *testing.T) {
	model := NewHybridMomentum()
	cfg := config.Default()
	cfg.Weights = config.Weights{Tx: 0.5, Vol: 0.5, Holder: 0.5, Orderflow: 0.5}

	_, err := model.Score(testSnapshot(), nil, cfg)
	assert.Error(t, err)
}

func TestSmooth_EWMAContinuity(t *testing.T) {
	alpha := 0.5
	raws := []float64{0.2, 0.8, 0.4}
	expected := []float64{0.2, 0.5, 0.45}

	var prev *domain.ScoreRecord
	for i, raw := range raws {
		smoothed := Smooth(raw, prev, alpha)
		assert.InDelta(t, expected[i], smoothed, 1e-9, "step %d", i)
		prev = &domain.ScoreRecord{Raw: raw, Smoothed: smoothed}
	}
}

func TestHybrid_Deterministic(t *testing.T) {
	model := NewHybridMomentum()
	cfg := config.Default()
	snap := testSnapshot()
	prev := &domain.ScoreRecord{Raw: 0.3, Smoothed: 0.35}

	a, err := model.Score(snap, prev, cfg)
	require.NoError(t, err)
	b, err := model.Score(snap, prev, cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRegistry_Lookup(t *testing.T) {
	reg := NewRegistry()

	m, err := reg.Lookup(ModelHybridMomentum)
	require.NoError(t, err)
	assert.Equal(t, ModelHybridMomentum, m.Name())

	_, err = reg.Lookup("no_such_model")
	assert.Error(t, err)
}
