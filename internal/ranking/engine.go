package ranking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trainer-leaderboard/internal/domain"
	"github.com/trainer-leaderboard/internal/eligibility"
	"github.com/trainer-leaderboard/internal/fields"
)

// ValueQuery asks for each eligible player's latest value of a field inside a time range
type ValueQuery struct {
	Field    string
	Cohort   domain.PlayerFilter
	Eligible eligibility.Predicate
	// Since is an inclusive lower bound, After an exclusive one. Either may be nil.
	Since      *time.Time
	After      *time.Time
	AtOrBefore time.Time
	// PositiveOnly skips zero values when picking the latest snapshot
	PositiveOnly bool
	Factions     []domain.Faction
}

// Observation is one player's latest value of a field
type Observation struct {
	PlayerID   string
	Username   string
	Faction    domain.Faction
	SnapshotID uuid.UUID
	Value      decimal.Decimal
	ObservedAt time.Time
}

// Source serves latest-value lookups. Implementations must answer from an
// index on (field, player, observed_at) and apply the cohort and eligibility
// filters themselves.
type Source interface {
	LatestValues(ctx context.Context, q ValueQuery) ([]Observation, error)
}

// Config holds engine limits
type Config struct {
	DefaultLimit    int
	MaxLimit        int
	FreshnessMonths int
}

// Engine ranks players by stored snapshots
type Engine struct {
	source      Source
	fields      *fields.Table
	eligibility *eligibility.Filter
	cfg         Config
	now         func() time.Time
}

// NewEngine creates a ranking engine
func NewEngine(source Source, table *fields.Table, filter *eligibility.Filter, cfg Config) *Engine {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 100
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 1000
	}
	if cfg.FreshnessMonths <= 0 {
		cfg.FreshnessMonths = 3
	}
	return &Engine{
		source:      source,
		fields:      table,
		eligibility: filter,
		cfg:         cfg,
		now:         time.Now,
	}
}

func (e *Engine) checkField(field string) error {
	if !e.fields.IsSortable(field) {
		return domain.NewInvalidStat(field)
	}
	return nil
}

func (e *Engine) page(p domain.Page) (domain.Page, error) {
	if p.Offset < 0 {
		return p, &domain.RequestError{Reason: domain.ReasonInvalidPage, Detail: "offset must not be negative", Err: domain.ErrInvalidRequest}
	}
	if p.Limit <= 0 {
		p.Limit = e.cfg.DefaultLimit
	}
	if p.Limit > e.cfg.MaxLimit {
		p.Limit = e.cfg.MaxLimit
	}
	return p, nil
}

func window[T any](items []T, p domain.Page) []T {
	if p.Offset >= len(items) {
		return []T{}
	}
	end := p.Offset + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[p.Offset:end]
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
