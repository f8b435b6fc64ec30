package ranking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trainer-leaderboard/internal/domain"
)

var (
	hundred  = decimal.NewFromInt(100)
	nsPerDay = decimal.NewFromInt(int64(24 * time.Hour))
)

// GainQuery asks for a leaderboard of growth between two times.
// Lookback defaults to MinuendTime - SubtrahendTime.
type GainQuery struct {
	Field          string
	Cohort         domain.PlayerFilter
	SubtrahendTime time.Time
	MinuendTime    time.Time
	Lookback       time.Duration
	Factions       []domain.Faction
	Page           domain.Page
}

// RankGain ranks eligible players by daily growth of a field
func (e *Engine) RankGain(ctx context.Context, q GainQuery) (*domain.GainBoard, error) {
	if err := e.checkField(q.Field); err != nil {
		return nil, err
	}
	page, err := e.page(q.Page)
	if err != nil {
		return nil, err
	}
	if !q.SubtrahendTime.Before(q.MinuendTime) {
		return nil, domain.NewInvalidRange("subtrahend time must be before minuend time")
	}
	if q.Lookback == 0 {
		q.Lookback = q.MinuendTime.Sub(q.SubtrahendTime)
	}
	if q.Lookback < 0 {
		return nil, domain.NewInvalidRange("duration must be positive")
	}

	eligible := e.eligibility.Predicate(q.SubtrahendTime)
	load := func(end time.Time) (map[string]Observation, error) {
		after := end.Add(-q.Lookback)
		obs, err := e.source.LatestValues(ctx, ValueQuery{
			Field:      q.Field,
			Cohort:     q.Cohort,
			Eligible:   eligible,
			After:      &after,
			AtOrBefore: end,
			Factions:   q.Factions,
		})
		if err != nil {
			return nil, fmt.Errorf("loading %s values up to %s: %w", q.Field, end.Format(time.RFC3339), err)
		}
		byPlayer := make(map[string]Observation, len(obs))
		for _, o := range obs {
			byPlayer[o.PlayerID] = o
		}
		return byPlayer, nil
	}

	subtrahends, err := load(q.SubtrahendTime)
	if err != nil {
		return nil, err
	}
	minuends, err := load(q.MinuendTime)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.GainEntry, 0, len(minuends))
	for id, m := range minuends {
		s, ok := subtrahends[id]
		if !ok {
			continue
		}
		elapsed := m.ObservedAt.Sub(s.ObservedAt)
		if elapsed <= 0 {
			continue
		}
		diff := m.Value.Sub(s.Value)
		entry := domain.GainEntry{
			PlayerID:   id,
			Username:   m.Username,
			Faction:    m.Faction,
			Subtrahend: domain.GainPoint{Value: s.Value, ObservedAt: s.ObservedAt, SnapshotID: s.SnapshotID},
			Minuend:    domain.GainPoint{Value: m.Value, ObservedAt: m.ObservedAt, SnapshotID: m.SnapshotID},
			Elapsed:    elapsed,
			Difference: diff,
			Rate:       Rate(diff, elapsed),
		}
		if !s.Value.IsZero() {
			pct := diff.Div(s.Value).Mul(hundred)
			entry.Percentage = &pct
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if c := a.Rate.Cmp(b.Rate); c != 0 {
			return c > 0
		}
		if !a.Minuend.ObservedAt.Equal(b.Minuend.ObservedAt) {
			return a.Minuend.ObservedAt.Before(b.Minuend.ObservedAt)
		}
		return a.PlayerID < b.PlayerID
	})

	var rates, changes summary
	denseRank(len(entries),
		func(i int) decimal.Decimal { return entries[i].Rate },
		func(i int, rank int64) { entries[i].Rank = rank })
	for _, entry := range entries {
		rates.add(entry.Rate)
		changes.add(entry.Difference)
	}

	return &domain.GainBoard{
		Field:          q.Field,
		Title:          q.Cohort.Title,
		SubtrahendTime: q.SubtrahendTime,
		MinuendTime:    q.MinuendTime,
		Lookback:       q.Lookback,
		Entries:        window(entries, page),
		Aggregates: domain.GainAggregates{
			Count:         rates.count,
			AverageRate:   rates.average(),
			MinRate:       rates.min,
			MaxRate:       rates.max,
			AverageChange: changes.average(),
			MinChange:     changes.min,
			MaxChange:     changes.max,
			SumChange:     changes.sum,
		},
		Total:       len(entries),
		GeneratedAt: e.now(),
	}, nil
}

// Rate returns delta per day over the elapsed wall-clock time
func Rate(delta decimal.Decimal, elapsed time.Duration) decimal.Decimal {
	days := decimal.NewFromInt(elapsed.Nanoseconds()).Div(nsPerDay)
	return delta.Div(days)
}
