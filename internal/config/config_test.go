package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Valid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestWeights_SumTolerance(t *testing.T) {
	w := Weights{Tx: 0.25, Vol: 0.35, Holder: 0.20, Orderflow: 0.20}
	require.NoError(t, w.Validate())

	w.Tx = 0.30 // sum 1.05
	assert.Error(t, w.Validate())

	w = Weights{Tx: 0.2501, Vol: 0.35, Holder: 0.20, Orderflow: 0.20} // within 1e-3
	assert.NoError(t, w.Validate())
}

func TestStore_SetRejectionKeepsPrior(t *testing.T) {
	store, err := NewStore(Default())
	require.NoError(t, err)

	prior := store.Current()

	err = store.Set(KeyEwmaAlpha, 1.5)
	require.Error(t, err)
	assert.Equal(t, prior, store.Current(), "rejected update must leave snapshot intact")

	err = store.Set(KeyWeights, map[string]float64{"w_tx": 0.5, "w_vol": 0.5, "w_hld": 0.5, "w_oi": 0.5})
	require.Error(t, err)
	assert.Equal(t, prior, store.Current())
}

func TestStore_SetApplies(t *testing.T) {
	store, err := NewStore(Default())
	require.NoError(t, err)

	require.NoError(t, store.Set(KeyEwmaAlpha, 0.5))
	assert.Equal(t, 0.5, store.Current().EwmaAlpha)

	require.NoError(t, store.Set(KeyConfigTopCount, 5))
	assert.Equal(t, 5, store.Current().ConfigTopCount)

	require.NoError(t, store.Set(KeyWeights, map[string]any{
		"w_tx": 0.4, "w_vol": 0.3, "w_hld": 0.2, "w_oi": 0.1,
	}))
	assert.InDelta(t, 1.0, store.Current().Weights.Sum(), 1e-9)
}

func TestStore_ConcurrentSetsAllLand(t *testing.T) {
	store, err := NewStore(Default())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Set(KeyEwmaAlpha, 0.5))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Set(KeyConfigTopCount, 7))
		}()
	}
	wg.Wait()

	snap := store.Current()
	assert.Equal(t, 0.5, snap.EwmaAlpha)
	assert.Equal(t, 7, snap.ConfigTopCount, "a concurrent Set on another key must not be lost")
}

func TestStore_SetUnknownKey(t *testing.T) {
	store, err := NewStore(Default())
	require.NoError(t, err)

	assert.Error(t, store.Set("no_such_key", 1))
}

func TestStore_SetCadenceFloor(t *testing.T) {
	store, err := NewStore(Default())
	require.NoError(t, err)

	assert.Error(t, store.Set(KeyCadenceActiveSec, 1))
	assert.Error(t, store.Set(KeyLowActivityChecks, 2))
	assert.NoError(t, store.Set(KeyLowActivityChecks, 4))
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("ewma_alpha: 0.4\nmin_liquidity_usd: 750\nscoring_model: hybrid_momentum\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	t.Setenv("TOKENSCOUT_MIN_LIQUIDITY_USD", "900")

	snap, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.4, snap.EwmaAlpha)
	assert.Equal(t, 900.0, snap.MinLiquidityUSD, "env overrides file")
}

func TestLoad_InvalidRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ewma_alpha: 2.0\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
