// Package scoring computes composite liquidity/momentum scores from metric
// snapshots. Models are pure: same snapshot, previous record, and config
// always yield the same result.
package scoring

import (
	"fmt"

	"github.com/tokenscout/tokenscout/internal/config"
	"github.com/tokenscout/tokenscout/internal/domain"
)

// Model turns a metric snapshot into a score record. prev is the previous
// score record for the token, nil when the token has never been scored (or
// its history was compacted away); the EWMA seeds from raw in that case.
type Model interface {
	Name() string
	Score(snap domain.MetricSnapshot, prev *domain.ScoreRecord, cfg config.Snapshot) (domain.ScoreRecord, error)
}

// Registry maps model names to implementations. The dispatch table is tiny on
// purpose; adding a model is one Register call.
type Registry struct {
	models map[string]Model
}

// NewRegistry returns a registry with all built-in models installed.
func NewRegistry() *Registry {
	r := &Registry{models: make(map[string]Model)}
	r.Register(NewHybridMomentum())
	return r
}

// Register installs m under its name, replacing any previous entry.
func (r *Registry) Register(m Model) {
	r.models[m.Name()] = m
}

// Lookup returns the model registered under name.
func (r *Registry) Lookup(name string) (Model, error) {
	m, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("unknown scoring model %q", name)
	}
	return m, nil
}

// Smooth applies the EWMA update: alpha*raw + (1-alpha)*previous. With no
// previous value the series seeds at raw, so the first score after any long
// gap restarts the average.
func Smooth(raw float64, prev *domain.ScoreRecord, alpha float64) float64 {
	if prev == nil {
		return raw
	}
	return alpha*raw + (1-alpha)*prev.Smoothed
}
