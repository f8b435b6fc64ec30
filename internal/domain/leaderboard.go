package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Page selects a window of a ranked result
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// LeaderboardEntry represents a single entry in a snapshot leaderboard
type LeaderboardEntry struct {
	Rank       int64           `json:"rank"`
	PlayerID   string          `json:"player_id"`
	Username   string          `json:"username"`
	Faction    Faction         `json:"faction"`
	Level      string          `json:"level,omitempty"`
	Value      decimal.Decimal `json:"value"`
	SnapshotID uuid.UUID       `json:"snapshot_id"`
	ObservedAt time.Time       `json:"observed_at"`
}

// Aggregates are computed over every ranked entry, not only the returned page
type Aggregates struct {
	Count   int64           `json:"count"`
	Average decimal.Decimal `json:"avg"`
	Min     decimal.Decimal `json:"min"`
	Max     decimal.Decimal `json:"max"`
	Sum     decimal.Decimal `json:"sum"`
}

// SnapshotBoard is the result of a snapshot leaderboard request
type SnapshotBoard struct {
	Field       string             `json:"field"`
	Title       string             `json:"title"`
	Date        time.Time          `json:"date"`
	Entries     []LeaderboardEntry `json:"leaderboard"`
	Aggregates  Aggregates         `json:"aggregations"`
	Total       int                `json:"total"`
	GeneratedAt time.Time          `json:"generated"`
}

// GainPoint is one side of a gain comparison
type GainPoint struct {
	Value      decimal.Decimal `json:"value"`
	ObservedAt time.Time       `json:"observed_at"`
	SnapshotID uuid.UUID       `json:"snapshot_id"`
}

// GainEntry represents a single entry in a gain leaderboard
type GainEntry struct {
	Rank       int64            `json:"rank"`
	PlayerID   string           `json:"player_id"`
	Username   string           `json:"username"`
	Faction    Faction          `json:"faction"`
	Subtrahend GainPoint        `json:"subtrahend"`
	Minuend    GainPoint        `json:"minuend"`
	Elapsed    time.Duration    `json:"difference_duration"`
	Difference decimal.Decimal  `json:"difference_value"`
	Rate       decimal.Decimal  `json:"difference_value_rate_per_day"`
	Percentage *decimal.Decimal `json:"difference_value_percentage,omitempty"`
}

// GainAggregates summarise the rate and change of every ranked gain entry
type GainAggregates struct {
	Count         int64           `json:"trainer_count"`
	AverageRate   decimal.Decimal `json:"average_rate"`
	MinRate       decimal.Decimal `json:"min_rate"`
	MaxRate       decimal.Decimal `json:"max_rate"`
	AverageChange decimal.Decimal `json:"average_change"`
	MinChange     decimal.Decimal `json:"min_change"`
	MaxChange     decimal.Decimal `json:"max_change"`
	SumChange     decimal.Decimal `json:"sum_change"`
}

// GainBoard is the result of a gain leaderboard request
type GainBoard struct {
	Field          string         `json:"field"`
	Title          string         `json:"title"`
	SubtrahendTime time.Time      `json:"subtrahend_date"`
	MinuendTime    time.Time      `json:"minuend_date"`
	Lookback       time.Duration  `json:"duration"`
	Entries        []GainEntry    `json:"leaderboard"`
	Aggregates     GainAggregates `json:"aggregations"`
	Total          int            `json:"total"`
	GeneratedAt    time.Time      `json:"generated"`
}
