package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Load builds the startup snapshot: defaults, overlaid by the YAML file at
// path (if path is non-empty), overlaid by TOKENSCOUT_* environment
// variables. The result is validated before being returned.
func Load(path string) (Snapshot, error) {
	snap := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Snapshot{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &snap); err != nil {
			return Snapshot{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&snap)

	if err := snap.Validate(); err != nil {
		return Snapshot{}, fmt.Errorf("config invalid: %w", err)
	}
	return snap, nil
}

func applyEnv(s *Snapshot) {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setFloat := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("TOKENSCOUT_PROVIDER_BASE_URL", &s.ProviderBaseURL)
	setString("TOKENSCOUT_PROVIDER_API_KEY", &s.ProviderAPIKey)
	setFloat("TOKENSCOUT_PROVIDER_RPS", &s.ProviderRPS)
	setString("TOKENSCOUT_FEED_URL", &s.FeedURL)
	setString("TOKENSCOUT_FEED_CHANNEL", &s.FeedChannel)
	setString("TOKENSCOUT_DATABASE_DSN", &s.DatabaseDSN)
	setString("TOKENSCOUT_CACHE_BACKEND", &s.CacheBackend)
	setString("TOKENSCOUT_REDIS_ADDR", &s.RedisAddr)
	setInt("TOKENSCOUT_REDIS_DB", &s.RedisDB)
	setString("TOKENSCOUT_LISTEN_ADDR", &s.ListenAddr)
	setString("TOKENSCOUT_LOG_LEVEL", &s.LogLevel)
	setString("TOKENSCOUT_SCORING_MODEL", &s.ScoringModel)
	setFloat("TOKENSCOUT_MIN_SCORE_FOR_CONFIG", &s.MinScoreForConfig)
	setInt("TOKENSCOUT_CONFIG_TOP_COUNT", &s.ConfigTopCount)
	setInt("TOKENSCOUT_CADENCE_MONITORED_SEC", &s.CadenceMonitoredSec)
	setInt("TOKENSCOUT_CADENCE_ACTIVE_SEC", &s.CadenceActiveSec)
	setInt("TOKENSCOUT_EXT_MAX_CONCURRENCY", &s.ExtMaxConcurrency)
	setInt("TOKENSCOUT_PROVIDER_CACHE_TTL_SEC", &s.ProviderCacheTTLSec)
	setFloat("TOKENSCOUT_EWMA_ALPHA", &s.EwmaAlpha)
	setFloat("TOKENSCOUT_MIN_LIQUIDITY_USD", &s.MinLiquidityUSD)
}
