package cohort

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/trainer-leaderboard/internal/domain"
)

// CommunityDirectory looks up communities and their personal memberships
type CommunityDirectory interface {
	CommunityByHandle(ctx context.Context, handle string) (*domain.Community, error)
	CommunityMembers(ctx context.Context, communityID int64) ([]string, error)
	CommunityLinksForGuild(ctx context.Context, guildID string) ([]domain.CommunityGuildLink, error)
}

// GuildDirectory lists chat guild members as player IDs
type GuildDirectory interface {
	Guild(ctx context.Context, guildID string) (*domain.Guild, error)
	ListMembers(ctx context.Context, guildID string) ([]string, error)
	ListRoleMembers(ctx context.Context, guildID, role string) ([]string, error)
}

// CountryDirectory looks up countries players can be filtered by
type CountryDirectory interface {
	Country(ctx context.Context, code string) (*domain.Country, error)
}

// Config holds cohort policy
type Config struct {
	// OptOutRoles are guild role names whose holders never appear on guild leaderboards
	OptOutRoles []string
	// ConcealPrivate reports inaccessible cohorts as not found
	ConcealPrivate bool
}

// Resolver turns cohort references into player filters before ranking
type Resolver struct {
	communities CommunityDirectory
	guilds      GuildDirectory
	countries   CountryDirectory
	cfg         Config
	logger      *slog.Logger
}

// NewResolver creates a resolver
func NewResolver(communities CommunityDirectory, guilds GuildDirectory, countries CountryDirectory, cfg Config, logger *slog.Logger) *Resolver {
	return &Resolver{
		communities: communities,
		guilds:      guilds,
		countries:   countries,
		cfg:         cfg,
		logger:      logger,
	}
}

// Resolve returns the filter for a cohort as seen by viewer, a player ID or empty
func (r *Resolver) Resolve(ctx context.Context, ref domain.CohortRef, viewer string) (domain.PlayerFilter, error) {
	var (
		filter domain.PlayerFilter
		err    error
	)
	switch ref.Kind {
	case domain.CohortGlobal, "":
		return domain.PlayerFilter{Title: "Global"}, nil
	case domain.CohortCountry:
		filter, err = r.country(ctx, ref)
	case domain.CohortCommunity:
		filter, err = r.community(ctx, ref, viewer)
	case domain.CohortGuild:
		filter, err = r.guild(ctx, ref, viewer)
	default:
		return filter, &domain.RequestError{
			Reason: domain.ReasonInvalidCohort,
			Detail: fmt.Sprintf("unknown cohort kind %q", ref.Kind),
			Err:    domain.ErrInvalidRequest,
		}
	}

	var accessErr *domain.AccessError
	if errors.As(err, &accessErr) && r.cfg.ConcealPrivate {
		r.logger.Debug("concealing inaccessible cohort", "cohort", ref.String(), "viewer", viewer)
		return domain.PlayerFilter{}, notFound(ref)
	}
	return filter, err
}

func (r *Resolver) country(ctx context.Context, ref domain.CohortRef) (domain.PlayerFilter, error) {
	c, err := r.countries.Country(ctx, ref.Ref)
	if err != nil {
		return domain.PlayerFilter{}, r.directoryError(ref, "looking up country", err)
	}
	return domain.PlayerFilter{Title: c.Name, Country: c.Code}, nil
}

func (r *Resolver) community(ctx context.Context, ref domain.CohortRef, viewer string) (domain.PlayerFilter, error) {
	c, err := r.communities.CommunityByHandle(ctx, ref.Ref)
	if err != nil {
		return domain.PlayerFilter{}, r.directoryError(ref, "looking up community", err)
	}

	members := newSet()
	personal, err := r.communities.CommunityMembers(ctx, c.ID)
	if err != nil {
		return domain.PlayerFilter{}, r.directoryError(ref, "listing community members", err)
	}
	members.add(personal...)

	for _, link := range c.Guilds {
		if !link.SyncMembers {
			continue
		}
		synced, err := r.guildMembers(ctx, link.GuildID, link.IncludeRoles, link.ExcludeRoles)
		if err != nil {
			return domain.PlayerFilter{}, r.directoryError(ref, "listing guild members", err)
		}
		members.add(synced.list()...)
	}

	if !c.Public && !members.has(viewer) {
		return domain.PlayerFilter{}, &domain.AccessError{Cohort: ref, Viewer: viewer}
	}
	members, err = r.applyRoles(ctx, members, c.Guilds, ref)
	if err != nil {
		return domain.PlayerFilter{}, r.directoryError(ref, "listing role members", err)
	}
	return domain.PlayerFilter{Title: c.Name, Restricted: true, PlayerIDs: members.list()}, nil
}

func (r *Resolver) guild(ctx context.Context, ref domain.CohortRef, viewer string) (domain.PlayerFilter, error) {
	g, err := r.guilds.Guild(ctx, ref.Ref)
	if err != nil {
		return domain.PlayerFilter{}, r.directoryError(ref, "looking up guild", err)
	}

	all, err := r.guilds.ListMembers(ctx, g.ID)
	if err != nil {
		return domain.PlayerFilter{}, r.directoryError(ref, "listing guild members", err)
	}
	if !newSet(all...).has(viewer) {
		return domain.PlayerFilter{}, &domain.AccessError{Cohort: ref, Viewer: viewer}
	}

	exclude := append([]string{}, r.cfg.OptOutRoles...)
	exclude = append(exclude, ref.ExcludeRoles...)
	links, err := r.communities.CommunityLinksForGuild(ctx, g.ID)
	if err != nil {
		return domain.PlayerFilter{}, r.directoryError(ref, "listing guild communities", err)
	}
	for _, l := range links {
		exclude = append(exclude, l.ExcludeRoles...)
	}

	members, err := r.guildMembers(ctx, g.ID, ref.IncludeRoles, exclude)
	if err != nil {
		return domain.PlayerFilter{}, r.directoryError(ref, "listing guild members", err)
	}
	return domain.PlayerFilter{Title: g.Name, Restricted: true, PlayerIDs: members.list()}, nil
}

// guildMembers returns members holding any include role (all members when
// none are given) minus holders of any exclude role.
func (r *Resolver) guildMembers(ctx context.Context, guildID string, include, exclude []string) (set, error) {
	var members set
	if len(include) == 0 {
		all, err := r.guilds.ListMembers(ctx, guildID)
		if err != nil {
			return nil, err
		}
		members = newSet(all...)
	} else {
		members = newSet()
		for _, role := range include {
			ids, err := r.guilds.ListRoleMembers(ctx, guildID, role)
			if err != nil {
				return nil, err
			}
			members.add(ids...)
		}
	}

	for _, role := range exclude {
		ids, err := r.guilds.ListRoleMembers(ctx, guildID, role)
		if err != nil {
			return nil, err
		}
		members.remove(ids...)
	}
	return members, nil
}

// applyRoles narrows a community cohort by the reference's own role lists,
// evaluated against every linked guild.
func (r *Resolver) applyRoles(ctx context.Context, members set, links []domain.CommunityGuildLink, ref domain.CohortRef) (set, error) {
	if len(ref.IncludeRoles) > 0 {
		holders := newSet()
		for _, link := range links {
			for _, role := range ref.IncludeRoles {
				ids, err := r.guilds.ListRoleMembers(ctx, link.GuildID, role)
				if err != nil {
					return nil, err
				}
				holders.add(ids...)
			}
		}
		for id := range members {
			if !holders.has(id) {
				delete(members, id)
			}
		}
	}
	for _, link := range links {
		for _, role := range ref.ExcludeRoles {
			ids, err := r.guilds.ListRoleMembers(ctx, link.GuildID, role)
			if err != nil {
				return nil, err
			}
			members.remove(ids...)
		}
	}
	return members, nil
}

func (r *Resolver) directoryError(ref domain.CohortRef, op string, err error) error {
	if errors.Is(err, domain.ErrCohortNotFound) {
		return notFound(ref)
	}
	r.logger.Error("cohort directory failed", "cohort", ref.String(), "op", op, "error", err)
	return &domain.TransientError{Op: op, Err: err}
}

func notFound(ref domain.CohortRef) error {
	return fmt.Errorf("%w: %s", domain.ErrCohortNotFound, ref)
}

type set map[string]struct{}

func newSet(ids ...string) set {
	s := make(set, len(ids))
	s.add(ids...)
	return s
}

func (s set) add(ids ...string) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

func (s set) remove(ids ...string) {
	for _, id := range ids {
		delete(s, id)
	}
}

func (s set) has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s set) list() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
