package ranking

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trainer-leaderboard/internal/domain"
)

type fakeRow struct {
	playerID string
	field    string
	value    decimal.Decimal
	at       time.Time
	id       uuid.UUID
}

// FakeSource answers latest-value queries from memory
type FakeSource struct {
	players map[string]*domain.Player
	rows    []fakeRow
	queries []ValueQuery

	LatestValuesFunc func(ctx context.Context, q ValueQuery) ([]Observation, error)
}

func NewFakeSource() *FakeSource {
	return &FakeSource{players: make(map[string]*domain.Player)}
}

func (f *FakeSource) AddPlayer(p *domain.Player) {
	f.players[p.ID] = p
}

func (f *FakeSource) Add(playerID, field, value string, at time.Time) {
	f.rows = append(f.rows, fakeRow{
		playerID: playerID,
		field:    field,
		value:    decimal.RequireFromString(value),
		at:       at,
		id:       uuid.New(),
	})
}

func (f *FakeSource) LatestValues(ctx context.Context, q ValueQuery) ([]Observation, error) {
	f.queries = append(f.queries, q)
	if f.LatestValuesFunc != nil {
		return f.LatestValuesFunc(ctx, q)
	}

	latest := make(map[string]fakeRow)
	for _, r := range f.rows {
		p, ok := f.players[r.playerID]
		if !ok || r.field != q.Field {
			continue
		}
		if !q.Eligible.Allows(p) || !q.Cohort.Allows(p) || !factionAllowed(q.Factions, p.Faction) {
			continue
		}
		if r.at.After(q.AtOrBefore) {
			continue
		}
		if q.Since != nil && r.at.Before(*q.Since) {
			continue
		}
		if q.After != nil && !r.at.After(*q.After) {
			continue
		}
		if q.PositiveOnly && !r.value.IsPositive() {
			continue
		}
		if cur, ok := latest[r.playerID]; !ok || r.at.After(cur.at) {
			latest[r.playerID] = r
		}
	}

	out := make([]Observation, 0, len(latest))
	for _, r := range latest {
		p := f.players[r.playerID]
		out = append(out, Observation{
			PlayerID:   p.ID,
			Username:   p.Username,
			Faction:    p.Faction,
			SnapshotID: r.id,
			Value:      r.value,
			ObservedAt: r.at,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out, nil
}

func factionAllowed(allowed []domain.Faction, f domain.Faction) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == f {
			return true
		}
	}
	return false
}
