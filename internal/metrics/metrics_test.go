package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GatherExportsCounters(t *testing.T) {
	r := New()

	r.FeedConnects.Inc()
	r.ProviderRequests.WithLabelValues("ok").Add(3)
	r.Transitions.WithLabelValues("activation").Inc()

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}

	feed, ok := byName["tokenscout_feed_connects_total"]
	require.True(t, ok)
	assert.Equal(t, 1.0, feed.GetMetric()[0].GetCounter().GetValue())

	reqs, ok := byName["tokenscout_provider_requests_total"]
	require.True(t, ok)
	assert.Equal(t, 3.0, reqs.GetMetric()[0].GetCounter().GetValue())
}

func TestRegistry_IndependentInstances(t *testing.T) {
	a := New()
	b := New()

	a.FeedUpserts.Inc()

	families, err := b.Gatherer().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "tokenscout_feed_upserts_total" {
			assert.Equal(t, 0.0, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
}
