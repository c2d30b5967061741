package config

import (
	"encoding/json"
	"fmt"
)

// Recognized runtime-mutable keys.
const (
	KeyWeights             = "weights"
	KeyEwmaAlpha           = "ewma_alpha"
	KeyMinScoreKeepActive  = "min_score_keep_active"
	KeyLowScoreWindowHours = "low_score_window_hours"
	KeyLowActivityChecks   = "low_activity_checks"
	KeyMinLiquidityUSD     = "min_liquidity_usd"
	KeyMinTxCount          = "min_tx_count"
	KeyArchivalTimeoutHrs  = "archival_timeout_hours"
	KeyCadenceMonitoredSec = "cadence_monitored_sec"
	KeyCadenceActiveSec    = "cadence_active_sec"
	KeyExtMaxConcurrency   = "ext_max_concurrency"
	KeyProviderCacheTTLSec = "provider_cache_ttl_sec"
	KeyMinScoreForConfig   = "min_score_for_config"
	KeyConfigTopCount      = "config_top_count"
	KeyScoringModel        = "scoring_model"
)

// Set applies one named value to a copy of the current snapshot, validates the
// result, and installs it. Unknown keys and values that fail validation are
// rejected without touching the installed snapshot. The read-modify-write
// holds the writer mutex, so concurrent Set calls never lose an update.
func (s *Store) Set(key string, value any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	next := s.Current()

	switch key {
	case KeyWeights:
		w, err := toWeights(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		next.Weights = w
	case KeyEwmaAlpha:
		f, err := toFloat(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		next.EwmaAlpha = f
	case KeyMinScoreKeepActive:
		f, err := toFloat(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		next.MinScoreKeepActive = f
	case KeyLowScoreWindowHours:
		n, err := toInt(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		next.LowScoreWindowHours = n
	case KeyLowActivityChecks:
		n, err := toInt(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		next.LowActivityChecks = n
	case KeyMinLiquidityUSD:
		f, err := toFloat(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		next.MinLiquidityUSD = f
	case KeyMinTxCount:
		n, err := toInt(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		next.MinTxCount = int64(n)
	case KeyArchivalTimeoutHrs:
		n, err := toInt(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		next.ArchivalTimeoutHrs = n
	case KeyCadenceMonitoredSec:
		n, err := toInt(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		next.CadenceMonitoredSec = n
	case KeyCadenceActiveSec:
		n, err := toInt(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		next.CadenceActiveSec = n
	case KeyExtMaxConcurrency:
		n, err := toInt(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		next.ExtMaxConcurrency = n
	case KeyProviderCacheTTLSec:
		n, err := toInt(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		next.ProviderCacheTTLSec = n
	case KeyMinScoreForConfig:
		f, err := toFloat(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		next.MinScoreForConfig = f
	case KeyConfigTopCount:
		n, err := toInt(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		next.ConfigTopCount = n
	case KeyScoringModel:
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("%s: expected string, got %T", key, value)
		}
		next.ScoringModel = str
	default:
		return fmt.Errorf("unknown config key %q", key)
	}

	return s.install(next)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("expected integer, got %g", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}

func toWeights(v any) (Weights, error) {
	switch w := v.(type) {
	case Weights:
		return w, nil
	case map[string]float64:
		return Weights{Tx: w["w_tx"], Vol: w["w_vol"], Holder: w["w_hld"], Orderflow: w["w_oi"]}, nil
	case map[string]any:
		out := Weights{}
		for name, raw := range w {
			f, err := toFloat(raw)
			if err != nil {
				return Weights{}, fmt.Errorf("%s: %w", name, err)
			}
			switch name {
			case "w_tx":
				out.Tx = f
			case "w_vol":
				out.Vol = f
			case "w_hld":
				out.Holder = f
			case "w_oi":
				out.Orderflow = f
			default:
				return Weights{}, fmt.Errorf("unknown weight %q", name)
			}
		}
		return out, nil
	}
	return Weights{}, fmt.Errorf("expected weights object, got %T", v)
}
