package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trainer-leaderboard/internal/domain"
	"github.com/trainer-leaderboard/internal/ranking"
)

// FakeStore keeps players and snapshots in memory and serializes commits
type FakeStore struct {
	mu        sync.Mutex
	players   map[string]*domain.Player
	snapshots map[uuid.UUID]domain.Snapshot
	commits   int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		players:   make(map[string]*domain.Player),
		snapshots: make(map[uuid.UUID]domain.Snapshot),
	}
}

func (f *FakeStore) AddPlayer(p *domain.Player) {
	f.players[p.ID] = p
}

func (f *FakeStore) AddSnapshot(s domain.Snapshot) {
	f.snapshots[s.ID] = s
}

func (f *FakeStore) History(playerID string) []domain.Snapshot {
	var out []domain.Snapshot
	for _, s := range f.snapshots {
		if s.PlayerID == playerID {
			out = append(out, s)
		}
	}
	return out
}

func (f *FakeStore) CommitSnapshot(
	ctx context.Context,
	playerID string,
	decide func(player *domain.Player, history []domain.Snapshot) (*domain.Snapshot, error),
) (*domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.players[playerID]
	if !ok {
		return nil, fmt.Errorf("locking player: %w", domain.ErrPlayerNotFound)
	}
	snap, err := decide(p, f.History(playerID))
	if err != nil {
		return nil, err
	}
	f.snapshots[snap.ID] = *snap
	f.commits++
	return snap, nil
}

func (f *FakeStore) GetSnapshot(ctx context.Context, id uuid.UUID) (*domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.snapshots[id]
	if !ok {
		return nil, domain.ErrSnapshotNotFound
	}
	return &s, nil
}

// FakeIndex is an in-memory max index
type FakeIndex struct {
	mu       sync.Mutex
	maxima   map[string]decimal.Decimal
	observed []map[string]decimal.Decimal

	Err error
}

func NewFakeIndex() *FakeIndex {
	return &FakeIndex{maxima: make(map[string]decimal.Decimal)}
}

func (f *FakeIndex) Maxima(ctx context.Context, fields []string) (map[string]decimal.Decimal, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	out := make(map[string]decimal.Decimal)
	for _, name := range fields {
		if v, ok := f.maxima[name]; ok {
			out[name] = v
		}
	}
	return out, nil
}

func (f *FakeIndex) Observe(ctx context.Context, values map[string]decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observed = append(f.observed, values)
	return nil
}

// FakeResolver resolves every cohort with ResolveFunc
type FakeResolver struct {
	ResolveFunc func(ctx context.Context, ref domain.CohortRef, viewer string) (domain.PlayerFilter, error)
	calls       []string
}

func (f *FakeResolver) Resolve(ctx context.Context, ref domain.CohortRef, viewer string) (domain.PlayerFilter, error) {
	f.calls = append(f.calls, "Resolve")
	if f.ResolveFunc != nil {
		return f.ResolveFunc(ctx, ref, viewer)
	}
	return domain.PlayerFilter{Title: "Global"}, nil
}

// FakeRanker records queries and returns canned boards
type FakeRanker struct {
	RankSnapshotFunc func(ctx context.Context, q ranking.SnapshotQuery) (*domain.SnapshotBoard, error)
	RankGainFunc     func(ctx context.Context, q ranking.GainQuery) (*domain.GainBoard, error)

	snapshotQueries []ranking.SnapshotQuery
	gainQueries     []ranking.GainQuery
}

func (f *FakeRanker) RankSnapshot(ctx context.Context, q ranking.SnapshotQuery) (*domain.SnapshotBoard, error) {
	f.snapshotQueries = append(f.snapshotQueries, q)
	if f.RankSnapshotFunc != nil {
		return f.RankSnapshotFunc(ctx, q)
	}
	return &domain.SnapshotBoard{Field: q.Field, Title: q.Cohort.Title}, nil
}

func (f *FakeRanker) RankGain(ctx context.Context, q ranking.GainQuery) (*domain.GainBoard, error) {
	f.gainQueries = append(f.gainQueries, q)
	if f.RankGainFunc != nil {
		return f.RankGainFunc(ctx, q)
	}
	return &domain.GainBoard{Field: q.Field, Title: q.Cohort.Title}, nil
}

// FakeDirectory serves latest values and cohort directories from memory
type FakeDirectory struct {
	values      map[string]map[string]int64
	guilds      map[string]*domain.Guild
	members     map[string][]string
	roles       map[string]map[string][]string
	communities map[string]*domain.Community
	community   map[int64][]string
	observedAt  time.Time
}

func NewFakeDirectory(observedAt time.Time) *FakeDirectory {
	return &FakeDirectory{
		values:      make(map[string]map[string]int64),
		guilds:      make(map[string]*domain.Guild),
		members:     make(map[string][]string),
		roles:       make(map[string]map[string][]string),
		communities: make(map[string]*domain.Community),
		community:   make(map[int64][]string),
		observedAt:  observedAt,
	}
}

func (f *FakeDirectory) SetValue(field, playerID string, v int64) {
	if f.values[field] == nil {
		f.values[field] = make(map[string]int64)
	}
	f.values[field][playerID] = v
}

func (f *FakeDirectory) AddGuild(g *domain.Guild, members []string, roles map[string][]string) {
	f.guilds[g.ID] = g
	f.members[g.ID] = members
	f.roles[g.ID] = roles
}

func (f *FakeDirectory) AddCommunity(c *domain.Community, members []string) {
	f.communities[c.Handle] = c
	f.community[c.ID] = members
}

func (f *FakeDirectory) LatestValues(ctx context.Context, q ranking.ValueQuery) ([]ranking.Observation, error) {
	var out []ranking.Observation
	for playerID, v := range f.values[q.Field] {
		if q.Cohort.Restricted && !slices.Contains(q.Cohort.PlayerIDs, playerID) {
			continue
		}
		out = append(out, ranking.Observation{
			PlayerID:   playerID,
			Username:   playerID,
			SnapshotID: uuid.NewSHA1(uuid.NameSpaceOID, []byte(q.Field+"/"+playerID)),
			Value:      decimal.NewFromInt(v),
			ObservedAt: f.observedAt,
		})
	}
	return out, nil
}

func (f *FakeDirectory) CommunityByHandle(ctx context.Context, handle string) (*domain.Community, error) {
	c, ok := f.communities[handle]
	if !ok {
		return nil, domain.ErrCohortNotFound
	}
	return c, nil
}

func (f *FakeDirectory) CommunityMembers(ctx context.Context, communityID int64) ([]string, error) {
	return f.community[communityID], nil
}

func (f *FakeDirectory) CommunityLinksForGuild(ctx context.Context, guildID string) ([]domain.CommunityGuildLink, error) {
	return nil, nil
}

func (f *FakeDirectory) Guild(ctx context.Context, guildID string) (*domain.Guild, error) {
	g, ok := f.guilds[guildID]
	if !ok {
		return nil, domain.ErrCohortNotFound
	}
	return g, nil
}

func (f *FakeDirectory) ListMembers(ctx context.Context, guildID string) ([]string, error) {
	return f.members[guildID], nil
}

func (f *FakeDirectory) ListRoleMembers(ctx context.Context, guildID, role string) ([]string, error) {
	return f.roles[guildID][role], nil
}

func (f *FakeDirectory) Country(ctx context.Context, code string) (*domain.Country, error) {
	return nil, domain.ErrCohortNotFound
}
