package domain

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a tracked token.
type Status string

const (
	StatusMonitored Status = "monitored"
	StatusActive    Status = "active"
	StatusArchived  Status = "archived"
)

// Valid reports whether s is one of the three lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusMonitored, StatusActive, StatusArchived:
		return true
	}
	return false
}

// Transition reasons recorded on status changes.
const (
	ReasonActivation      = "activation"
	ReasonLowScore        = "low_score"
	ReasonLowActivity     = "low_activity"
	ReasonArchivalTimeout = "archival_timeout"
)

// CanTransition reports whether the from→to edge is one of the three legal
// lifecycle transitions: monitored→active, active→monitored,
// monitored→archived.
func CanTransition(from, to Status) bool {
	switch {
	case from == StatusMonitored && to == StatusActive:
		return true
	case from == StatusActive && to == StatusMonitored:
		return true
	case from == StatusMonitored && to == StatusArchived:
		return true
	}
	return false
}

// ErrIllegalTransition is returned when a status update would violate the
// lifecycle state machine.
type ErrIllegalTransition struct {
	From, To Status
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal status transition %s -> %s", e.From, e.To)
}

// Token is a tracked Solana token keyed by its mint address.
type Token struct {
	Address           string     `json:"address" db:"address"`
	Status            Status     `json:"status" db:"status"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	StatusChangedAt   time.Time  `json:"status_changed_at" db:"status_changed_at"`
	ActivatedAt       *time.Time `json:"activated_at,omitempty" db:"activated_at"`
	ArchivedAt        *time.Time `json:"archived_at,omitempty" db:"archived_at"`
	LastRawScore      *float64   `json:"last_raw_score,omitempty" db:"last_raw_score"`
	LastSmoothedScore *float64   `json:"last_smoothed_score,omitempty" db:"last_smoothed_score"`
	LastScoredAt      *time.Time `json:"last_scored_at,omitempty" db:"last_scored_at"`
	LowScoreStreak    int        `json:"low_score_streak" db:"low_score_streak"`
	LowActivityStreak int        `json:"low_activity_streak" db:"low_activity_streak"`
	LowScoreSince     *time.Time `json:"low_score_since,omitempty" db:"low_score_since"`

	// LastTransitionReason records why the most recent status change happened,
	// e.g. ReasonActivation or ReasonLowScore. Empty until the first transition.
	LastTransitionReason string `json:"last_transition_reason,omitempty" db:"last_transition_reason"`
}

// Pool is a DEX liquidity pool belonging to exactly one token.
type Pool struct {
	Address      string    `json:"address" db:"address"`
	TokenAddress string    `json:"token_address" db:"token_address"`
	Dex          string    `json:"dex" db:"dex"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// MetricSnapshot is one timestamped observation of a token's market metrics.
// HoldersHourAgo is not stored; it is joined in from the nearest snapshot at
// least one hour older when a score is computed.
type MetricSnapshot struct {
	Timestamp      time.Time `json:"ts" db:"ts"`
	TxCount5m      int64     `json:"tx_count_5m" db:"tx_count_5m"`
	TxCount1h      int64     `json:"tx_count_1h" db:"tx_count_1h"`
	Volume5m       float64   `json:"volume_5m" db:"volume_5m"`
	Volume1h       float64   `json:"volume_1h" db:"volume_1h"`
	BuysVolume5m   float64   `json:"buys_volume_5m" db:"buys_volume_5m"`
	SellsVolume5m  float64   `json:"sells_volume_5m" db:"sells_volume_5m"`
	Holders        int64     `json:"holders" db:"holders"`
	Liquidity      float64   `json:"liquidity" db:"liquidity"`
	HoldersHourAgo *int64    `json:"holders_1h_ago,omitempty" db:"-"`
}

// ScoreComponents are the normalized component values of one scoring pass.
type ScoreComponents struct {
	TxAccel            float64 `json:"tx_accel" db:"tx_accel"`
	VolMomentum        float64 `json:"vol_momentum" db:"vol_momentum"`
	HolderGrowth       float64 `json:"holder_growth" db:"holder_growth"`
	OrderflowImbalance float64 `json:"orderflow_imbalance" db:"orderflow_imbalance"`
}

// ScoreRecord is the result of one scoring pass over a snapshot.
type ScoreRecord struct {
	Timestamp  time.Time       `json:"ts" db:"ts"`
	ModelName  string          `json:"model_name" db:"model_name"`
	Raw        float64         `json:"raw" db:"raw"`
	Smoothed   float64         `json:"smoothed" db:"smoothed"`
	Components ScoreComponents `json:"components"`
}
