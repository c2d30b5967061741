package httpapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenscout/tokenscout/internal/config"
	"github.com/tokenscout/tokenscout/internal/domain"
	"github.com/tokenscout/tokenscout/internal/metrics"
	"github.com/tokenscout/tokenscout/internal/publish"
	"github.com/tokenscout/tokenscout/internal/store/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.Repo) {
	t.Helper()
	repo := memory.New()
	cfg := config.Default()
	cfg.ProviderAPIKey = "super-secret"
	cfgStore, err := config.NewStore(cfg)
	require.NoError(t, err)

	gen := publish.NewGenerator(repo, cfgStore, nil)
	srv := NewServer(":0", repo, gen, cfgStore, metrics.New())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, repo
}

func TestArtifactEndpoint(t *testing.T) {
	ts, repo := newTestServer(t)

	addr := "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	_, _, err := repo.UpsertMonitored(context.Background(), addr)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateStatus(context.Background(), addr, domain.StatusActive, domain.ReasonActivation, time.Now()))
	require.NoError(t, repo.SetLastScore(context.Background(), addr, 0.9, 0.9, time.Now()))

	resp, err := http.Get(ts.URL + "/artifact")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "public, max-age=60", resp.Header.Get("Cache-Control"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "version = 1")
	assert.Contains(t, string(body), addr)
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestStatusEndpoint(t *testing.T) {
	ts, repo := newTestServer(t)

	_, _, err := repo.UpsertMonitored(context.Background(), "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	require.NoError(t, err)
	_, _, err = repo.UpsertMonitored(context.Background(), "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"monitored":2,"active":0,"archived":0}`, string(body))
}

func TestConfigEndpointHidesSecrets(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/config")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "super-secret")
	assert.Contains(t, string(body), "min_score_for_config")
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
