// Package publish builds the configuration artifact consumed by the external
// executor: the top-N active tokens by smoothed score with their active
// pools, emitted as a deterministic TOML document.
package publish

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tokenscout/tokenscout/internal/config"
	"github.com/tokenscout/tokenscout/internal/domain"
	"github.com/tokenscout/tokenscout/internal/metrics"
	"github.com/tokenscout/tokenscout/internal/store"
)

// artifactVersion identifies the document grammar for downstream parsers.
const artifactVersion = 1

// scoreMaxAge bounds how stale a token's last score may be and still be
// published.
const scoreMaxAge = 2 * time.Hour

// entry is one selected token with its pools grouped by DEX.
type entry struct {
	token domain.Token
	pools map[string][]string
}

// Generator renders the artifact from the current store state. It is
// stateless; equal state and configuration produce byte-equal output.
type Generator struct {
	repo    store.TokenRepo
	cfg     *config.Store
	metrics *metrics.Registry

	now func() time.Time
}

// NewGenerator wires the artifact builder.
func NewGenerator(repo store.TokenRepo, cfg *config.Store, reg *metrics.Registry) *Generator {
	return &Generator{
		repo:    repo,
		cfg:     cfg,
		metrics: reg,
		now:     time.Now,
	}
}

// SetClock overrides the wall clock, for tests.
func (g *Generator) SetClock(now func() time.Time) { g.now = now }

// Generate selects, orders, and renders the artifact.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	cfg := g.cfg.Current()
	now := g.now()

	// One unpaginated read so the candidate set is a single coherent view of
	// the active tokens.
	candidates, err := g.repo.ListByStatus(ctx, domain.StatusActive, 0, 0)
	if err != nil {
		return "", fmt.Errorf("list active tokens: %w", err)
	}

	selected := selectTokens(candidates, cfg, now)
	entries := make([]entry, 0, len(selected))
	for _, token := range selected {
		pools, err := g.repo.ListPools(ctx, token.Address, true)
		if err != nil {
			return "", fmt.Errorf("list pools for %s: %w", token.Address, err)
		}
		entries = append(entries, entry{token: token, pools: groupByDex(pools)})
	}

	if g.metrics != nil {
		g.metrics.ArtifactBuilds.Inc()
		g.metrics.ArtifactTokens.Set(float64(len(entries)))
	}
	log.Debug().
		Int("candidates", len(candidates)).
		Int("selected", len(entries)).
		Msg("artifact generated")

	return render(entries, cfg, now, len(candidates)), nil
}

// selectTokens filters by score threshold and freshness, applies the ordering
// (smoothed desc, activated_at asc, address asc), and truncates to the
// configured count.
func selectTokens(candidates []domain.Token, cfg config.Snapshot, now time.Time) []domain.Token {
	selected := make([]domain.Token, 0, len(candidates))
	for _, token := range candidates {
		if token.LastSmoothedScore == nil || token.LastScoredAt == nil {
			continue
		}
		if *token.LastSmoothedScore < cfg.MinScoreForConfig {
			continue
		}
		if now.Sub(*token.LastScoredAt) > scoreMaxAge {
			continue
		}
		selected = append(selected, token)
	}

	sort.Slice(selected, func(i, j int) bool {
		a, b := selected[i], selected[j]
		if *a.LastSmoothedScore != *b.LastSmoothedScore {
			return *a.LastSmoothedScore > *b.LastSmoothedScore
		}
		at, bt := activatedAt(a), activatedAt(b)
		if !at.Equal(bt) {
			return at.Before(bt)
		}
		return a.Address < b.Address
	})

	if len(selected) > cfg.ConfigTopCount {
		selected = selected[:cfg.ConfigTopCount]
	}
	return selected
}

func activatedAt(t domain.Token) time.Time {
	if t.ActivatedAt != nil {
		return *t.ActivatedAt
	}
	return time.Time{}
}

func groupByDex(pools []domain.Pool) map[string][]string {
	grouped := make(map[string][]string, len(pools))
	for _, pool := range pools {
		grouped[pool.Dex] = append(grouped[pool.Dex], pool.Address)
	}
	for dex := range grouped {
		sort.Strings(grouped[dex])
	}
	return grouped
}

func render(entries []entry, cfg config.Snapshot, now time.Time, candidates int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "version = %d\n\n", artifactVersion)

	fmt.Fprintf(&b, "[strategy]\n")
	fmt.Fprintf(&b, "name = %q\n", cfg.StrategyName)
	fmt.Fprintf(&b, "model = %q\n", cfg.ScoringModel)
	fmt.Fprintf(&b, "min_score = %.4f\n", cfg.MinScoreForConfig)
	fmt.Fprintf(&b, "generated_at = %q\n", now.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "token_count = %d\n", len(entries))

	for _, e := range entries {
		fmt.Fprintf(&b, "\n[[tokens]]\n")
		fmt.Fprintf(&b, "address = %q\n", e.token.Address)
		fmt.Fprintf(&b, "score = %.6f\n", *e.token.LastSmoothedScore)
		fmt.Fprintf(&b, "scored_at = %q\n", e.token.LastScoredAt.UTC().Format(time.RFC3339))

		if len(e.pools) > 0 {
			fmt.Fprintf(&b, "\n[tokens.pools]\n")
			dexes := make([]string, 0, len(e.pools))
			for dex := range e.pools {
				dexes = append(dexes, dex)
			}
			sort.Strings(dexes)
			for _, dex := range dexes {
				fmt.Fprintf(&b, "%s = [", dex)
				for i, addr := range e.pools[dex] {
					if i > 0 {
						b.WriteString(", ")
					}
					fmt.Fprintf(&b, "%q", addr)
				}
				b.WriteString("]\n")
			}
		}
	}

	fmt.Fprintf(&b, "\n[summary]\n")
	fmt.Fprintf(&b, "criteria = %q\n",
		fmt.Sprintf("smoothed_score >= %.4f scored within %s", cfg.MinScoreForConfig, scoreMaxAge))
	fmt.Fprintf(&b, "candidates = %d\n", candidates)
	fmt.Fprintf(&b, "selected = %d\n", len(entries))
	if len(entries) == 0 {
		fmt.Fprintf(&b, "warning = %q\n", "no tokens met the selection criteria")
	}

	return b.String()
}
