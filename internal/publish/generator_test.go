package publish

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenscout/tokenscout/internal/config"
	"github.com/tokenscout/tokenscout/internal/domain"
	"github.com/tokenscout/tokenscout/internal/store"
	"github.com/tokenscout/tokenscout/internal/store/memory"
)

var (
	addrA = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	addrB = "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
	addrC = "CCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC"
	addrD = "DDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDD"
)

type harness struct {
	repo *memory.Repo
	gen  *Generator
	now  time.Time
}

func newHarness(t *testing.T, mutate func(*config.Snapshot)) *harness {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	cfgStore, err := config.NewStore(cfg)
	require.NoError(t, err)

	h := &harness{
		repo: memory.New(),
		now:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.gen = NewGenerator(h.repo, cfgStore, nil)
	h.gen.SetClock(func() time.Time { return h.now })
	h.repo.SetClock(func() time.Time { return h.now })
	return h
}

// activeToken installs an active token with the given smoothed score, scored
// just now, activated at the given instant.
func (h *harness) activeToken(t *testing.T, ctx context.Context, addr string, smoothed float64, activatedAt time.Time) {
	t.Helper()
	_, _, err := h.repo.UpsertMonitored(ctx, addr)
	require.NoError(t, err)
	require.NoError(t, h.repo.UpdateStatus(ctx, addr, domain.StatusActive, domain.ReasonActivation, activatedAt))
	require.NoError(t, h.repo.SetLastScore(ctx, addr, smoothed, smoothed, h.now.Add(-time.Minute)))
}

func TestGenerate_OrderingAndTruncation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil) // min_score_for_config=0.5, config_top_count=3

	// A and C tie at 0.9; A activated earlier so it comes first. D is below
	// the threshold and must not appear.
	h.activeToken(t, ctx, addrA, 0.9, h.now.Add(-3*time.Hour))
	h.activeToken(t, ctx, addrB, 0.7, h.now.Add(-time.Hour))
	h.activeToken(t, ctx, addrC, 0.9, h.now.Add(-2*time.Hour))
	h.activeToken(t, ctx, addrD, 0.4, h.now.Add(-time.Hour))

	doc, err := h.gen.Generate(ctx)
	require.NoError(t, err)

	posA := strings.Index(doc, addrA)
	posB := strings.Index(doc, addrB)
	posC := strings.Index(doc, addrC)
	require.Positive(t, posA)
	require.Positive(t, posB)
	require.Positive(t, posC)
	assert.Less(t, posA, posC, "A before C: earlier activation wins the tie")
	assert.Less(t, posC, posB, "C before B: higher score first")
	assert.NotContains(t, doc, addrD, "below-threshold token excluded")
	assert.Contains(t, doc, "token_count = 3")
}

func TestGenerate_AddressBreaksRemainingTies(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	activated := h.now.Add(-time.Hour)
	h.activeToken(t, ctx, addrB, 0.8, activated)
	h.activeToken(t, ctx, addrA, 0.8, activated)

	doc, err := h.gen.Generate(ctx)
	require.NoError(t, err)
	assert.Less(t, strings.Index(doc, addrA), strings.Index(doc, addrB))
}

func TestGenerate_TruncatesToTopCount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(c *config.Snapshot) { c.ConfigTopCount = 2 })

	h.activeToken(t, ctx, addrA, 0.9, h.now.Add(-time.Hour))
	h.activeToken(t, ctx, addrB, 0.8, h.now.Add(-time.Hour))
	h.activeToken(t, ctx, addrC, 0.7, h.now.Add(-time.Hour))

	doc, err := h.gen.Generate(ctx)
	require.NoError(t, err)
	assert.Contains(t, doc, "token_count = 2")
	assert.NotContains(t, doc, addrC)
}

func TestGenerate_ExcludesStaleScores(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	h.activeToken(t, ctx, addrA, 0.9, h.now.Add(-4*time.Hour))
	require.NoError(t, h.repo.SetLastScore(ctx, addrA, 0.9, 0.9, h.now.Add(-3*time.Hour)))

	doc, err := h.gen.Generate(ctx)
	require.NoError(t, err)
	assert.NotContains(t, doc, addrA, "scores older than 2h are not publishable")
	assert.Contains(t, doc, "token_count = 0")
}

func TestGenerate_EmptySelectionCarriesWarning(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	doc, err := h.gen.Generate(ctx)
	require.NoError(t, err)
	assert.Contains(t, doc, "version = 1")
	assert.Contains(t, doc, "token_count = 0")
	assert.Contains(t, doc, `warning = "no tokens met the selection criteria"`)
}

func TestGenerate_GroupsActivePoolsByDex(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	h.activeToken(t, ctx, addrA, 0.9, h.now.Add(-time.Hour))
	pool1 := "11111111111111111111111111111111"
	pool2 := "22222222222222222222222222222222"
	pool3 := "33333333333333333333333333333333"
	require.NoError(t, h.repo.UpsertPool(ctx, addrA, pool2, "raydium", true))
	require.NoError(t, h.repo.UpsertPool(ctx, addrA, pool1, "raydium", true))
	require.NoError(t, h.repo.UpsertPool(ctx, addrA, pool3, "orca", false))

	doc, err := h.gen.Generate(ctx)
	require.NoError(t, err)
	assert.Contains(t, doc, "[tokens.pools]")
	assert.Contains(t, doc, `raydium = ["`+pool1+`", "`+pool2+`"]`, "pool addresses sorted")
	assert.NotContains(t, doc, pool3, "inactive pools excluded")
	assert.NotContains(t, doc, "orca")
}

// listRecorder wraps a TokenRepo and records ListByStatus calls.
type listRecorder struct {
	store.TokenRepo
	calls  int
	limits []int
}

func (r *listRecorder) ListByStatus(ctx context.Context, status domain.Status, limit, offset int) ([]domain.Token, error) {
	r.calls++
	r.limits = append(r.limits, limit)
	return r.TokenRepo.ListByStatus(ctx, status, limit, offset)
}

func TestGenerate_ReadsActiveSetInOneQuery(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	for _, addr := range []string{addrA, addrB, addrC} {
		h.activeToken(t, ctx, addr, 0.9, h.now.Add(-time.Hour))
	}

	rec := &listRecorder{TokenRepo: h.repo}
	gen := NewGenerator(rec, h.gen.cfg, nil)
	gen.SetClock(func() time.Time { return h.now })

	doc, err := gen.Generate(ctx)
	require.NoError(t, err)
	assert.Contains(t, doc, "token_count = 3")

	require.Equal(t, 1, rec.calls, "candidate set must come from one read")
	assert.Equal(t, []int{0}, rec.limits, "an unlimited read, not a paged scan")
}

func TestGenerate_DeterministicForEqualState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	h.activeToken(t, ctx, addrA, 0.9, h.now.Add(-time.Hour))
	h.activeToken(t, ctx, addrB, 0.7, h.now.Add(-time.Hour))
	require.NoError(t, h.repo.UpsertPool(ctx, addrA, "11111111111111111111111111111111", "raydium", true))

	first, err := h.gen.Generate(ctx)
	require.NoError(t, err)
	second, err := h.gen.Generate(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
