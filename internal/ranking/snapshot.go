package ranking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trainer-leaderboard/internal/domain"
	"github.com/trainer-leaderboard/internal/levels"
)

const levelField = "total_xp"

// SnapshotQuery asks for a standing leaderboard as of a calendar day
type SnapshotQuery struct {
	Field        string
	Cohort       domain.PlayerFilter
	Date         time.Time
	ShowInactive bool
	Factions     []domain.Faction
	MinLevel     int
	MaxLevel     int
	ValueGTE     *decimal.Decimal
	ValueLTE     *decimal.Decimal
	Page         domain.Page
}

// RankSnapshot ranks eligible players by their latest positive value of a field
func (e *Engine) RankSnapshot(ctx context.Context, q SnapshotQuery) (*domain.SnapshotBoard, error) {
	if err := e.checkField(q.Field); err != nil {
		return nil, err
	}
	page, err := e.page(q.Page)
	if err != nil {
		return nil, err
	}
	minXP, maxXP, err := levels.XPRange(q.MinLevel, q.MaxLevel)
	if err != nil {
		return nil, &domain.RequestError{Reason: domain.ReasonInvalidRange, Detail: err.Error(), Err: domain.ErrInvalidRequest}
	}
	if q.Date.IsZero() {
		q.Date = e.now()
	}

	vq := ValueQuery{
		Field:        q.Field,
		Cohort:       q.Cohort,
		Eligible:     e.eligibility.Predicate(q.Date),
		AtOrBefore:   endOfDay(q.Date),
		PositiveOnly: true,
		Factions:     q.Factions,
	}
	if !q.ShowInactive {
		since := startOfDay(q.Date).AddDate(0, -e.cfg.FreshnessMonths, 0)
		vq.Since = &since
	}

	obs, err := e.source.LatestValues(ctx, vq)
	if err != nil {
		return nil, fmt.Errorf("loading %s values: %w", q.Field, err)
	}

	xp, err := e.totalXP(ctx, vq, obs)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.LeaderboardEntry, 0, len(obs))
	for _, o := range obs {
		if !o.Value.IsPositive() {
			continue
		}
		if q.ValueGTE != nil && o.Value.LessThan(*q.ValueGTE) {
			continue
		}
		if q.ValueLTE != nil && o.Value.GreaterThan(*q.ValueLTE) {
			continue
		}
		playerXP, known := xp[o.PlayerID]
		if q.MinLevel != 0 || q.MaxLevel != 0 {
			if !known || playerXP < minXP || (maxXP != 0 && playerXP >= maxXP) {
				continue
			}
		}
		entry := domain.LeaderboardEntry{
			PlayerID:   o.PlayerID,
			Username:   o.Username,
			Faction:    o.Faction,
			Value:      o.Value,
			SnapshotID: o.SnapshotID,
			ObservedAt: o.ObservedAt,
		}
		if known {
			entry.Level = levels.Guess(playerXP)
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if c := a.Value.Cmp(b.Value); c != 0 {
			return c > 0
		}
		if !a.ObservedAt.Equal(b.ObservedAt) {
			return a.ObservedAt.Before(b.ObservedAt)
		}
		return a.PlayerID < b.PlayerID
	})

	var s summary
	denseRank(len(entries),
		func(i int) decimal.Decimal { return entries[i].Value },
		func(i int, rank int64) { entries[i].Rank = rank })
	for _, entry := range entries {
		s.add(entry.Value)
	}

	return &domain.SnapshotBoard{
		Field:       q.Field,
		Title:       q.Cohort.Title,
		Date:        startOfDay(q.Date),
		Entries:     window(entries, page),
		Aggregates:  s.aggregates(),
		Total:       len(entries),
		GeneratedAt: e.now(),
	}, nil
}

// totalXP returns each player's latest total XP for level display and filtering
func (e *Engine) totalXP(ctx context.Context, vq ValueQuery, obs []Observation) (map[string]int64, error) {
	out := make(map[string]int64, len(obs))
	if vq.Field != levelField {
		vq.Field = levelField
		vq.Since = nil
		vq.After = nil
		var err error
		obs, err = e.source.LatestValues(ctx, vq)
		if err != nil {
			return nil, fmt.Errorf("loading %s values: %w", levelField, err)
		}
	}
	for _, o := range obs {
		out[o.PlayerID] = o.Value.IntPart()
	}
	return out, nil
}
