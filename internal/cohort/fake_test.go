package cohort

import (
	"context"
	"fmt"

	"github.com/trainer-leaderboard/internal/domain"
)

// FakeDirectory implements every directory from in-memory maps
type FakeDirectory struct {
	communities map[string]*domain.Community
	personal    map[int64][]string
	guilds      map[string]*domain.Guild
	members     map[string][]string
	roles       map[string]map[string][]string
	countries   map[string]*domain.Country
	calls       []string

	Err error
}

func NewFakeDirectory() *FakeDirectory {
	return &FakeDirectory{
		communities: make(map[string]*domain.Community),
		personal:    make(map[int64][]string),
		guilds:      make(map[string]*domain.Guild),
		members:     make(map[string][]string),
		roles:       make(map[string]map[string][]string),
		countries:   make(map[string]*domain.Country),
	}
}

func (f *FakeDirectory) record(step string) {
	f.calls = append(f.calls, step)
}

func (f *FakeDirectory) AddGuild(id, name string, members ...string) {
	f.guilds[id] = &domain.Guild{ID: id, Name: name}
	f.members[id] = members
	f.roles[id] = make(map[string][]string)
}

func (f *FakeDirectory) AddRole(guildID, role string, members ...string) {
	f.roles[guildID][role] = members
}

func (f *FakeDirectory) CommunityByHandle(ctx context.Context, handle string) (*domain.Community, error) {
	f.record("CommunityByHandle")
	if f.Err != nil {
		return nil, f.Err
	}
	c, ok := f.communities[handle]
	if !ok {
		return nil, fmt.Errorf("community %q: %w", handle, domain.ErrCohortNotFound)
	}
	return c, nil
}

func (f *FakeDirectory) CommunityMembers(ctx context.Context, communityID int64) ([]string, error) {
	f.record("CommunityMembers")
	return f.personal[communityID], nil
}

func (f *FakeDirectory) CommunityLinksForGuild(ctx context.Context, guildID string) ([]domain.CommunityGuildLink, error) {
	f.record("CommunityLinksForGuild")
	var out []domain.CommunityGuildLink
	for _, c := range f.communities {
		for _, l := range c.Guilds {
			if l.GuildID == guildID {
				out = append(out, l)
			}
		}
	}
	return out, nil
}

func (f *FakeDirectory) Guild(ctx context.Context, guildID string) (*domain.Guild, error) {
	f.record("Guild")
	if f.Err != nil {
		return nil, f.Err
	}
	g, ok := f.guilds[guildID]
	if !ok {
		return nil, domain.ErrCohortNotFound
	}
	return g, nil
}

func (f *FakeDirectory) ListMembers(ctx context.Context, guildID string) ([]string, error) {
	f.record("ListMembers")
	return f.members[guildID], nil
}

func (f *FakeDirectory) ListRoleMembers(ctx context.Context, guildID, role string) ([]string, error) {
	f.record("ListRoleMembers")
	return f.roles[guildID][role], nil
}

func (f *FakeDirectory) Country(ctx context.Context, code string) (*domain.Country, error) {
	f.record("Country")
	if f.Err != nil {
		return nil, f.Err
	}
	c, ok := f.countries[code]
	if !ok {
		return nil, domain.ErrCohortNotFound
	}
	return c, nil
}
