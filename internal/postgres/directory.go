package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/trainer-leaderboard/internal/domain"
)

// CommunityByHandle retrieves a community and its guild links
func (r *Repository) CommunityByHandle(ctx context.Context, handle string) (*domain.Community, error) {
	var c domain.Community
	err := r.readPool.QueryRow(ctx, `SELECT id, handle, name, public FROM communities WHERE handle = $1`, handle).
		Scan(&c.ID, &c.Handle, &c.Name, &c.Public)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("community %q: %w", handle, domain.ErrCohortNotFound)
		}
		return nil, fmt.Errorf("getting community: %w", err)
	}

	links, err := r.guildLinks(ctx, `WHERE community_id = $1`, c.ID)
	if err != nil {
		return nil, err
	}
	c.Guilds = links
	return &c, nil
}

// CommunityMembers lists the players who joined a community directly
func (r *Repository) CommunityMembers(ctx context.Context, communityID int64) ([]string, error) {
	return r.playerIDs(ctx, `SELECT player_id FROM community_members WHERE community_id = $1`, communityID)
}

// CommunityLinksForGuild lists every community link that syncs from a guild
func (r *Repository) CommunityLinksForGuild(ctx context.Context, guildID string) ([]domain.CommunityGuildLink, error) {
	return r.guildLinks(ctx, `WHERE guild_id = $1`, guildID)
}

func (r *Repository) guildLinks(ctx context.Context, where string, arg any) ([]domain.CommunityGuildLink, error) {
	rows, err := r.readPool.Query(ctx, `
		SELECT guild_id, sync_members, include_roles, exclude_roles
		FROM community_guilds `+where, arg)
	if err != nil {
		return nil, fmt.Errorf("listing community guilds: %w", err)
	}
	defer rows.Close()

	var links []domain.CommunityGuildLink
	for rows.Next() {
		var l domain.CommunityGuildLink
		if err := rows.Scan(&l.GuildID, &l.SyncMembers, &l.IncludeRoles, &l.ExcludeRoles); err != nil {
			return nil, fmt.Errorf("scanning community guild: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// Guild retrieves a chat guild
func (r *Repository) Guild(ctx context.Context, guildID string) (*domain.Guild, error) {
	var g domain.Guild
	err := r.readPool.QueryRow(ctx, `SELECT id, name FROM guilds WHERE id = $1`, guildID).Scan(&g.ID, &g.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("guild %q: %w", guildID, domain.ErrCohortNotFound)
		}
		return nil, fmt.Errorf("getting guild: %w", err)
	}
	return &g, nil
}

// ListMembers lists the players in a guild
func (r *Repository) ListMembers(ctx context.Context, guildID string) ([]string, error) {
	return r.playerIDs(ctx, `SELECT player_id FROM guild_members WHERE guild_id = $1`, guildID)
}

// ListRoleMembers lists the players holding a role in a guild
func (r *Repository) ListRoleMembers(ctx context.Context, guildID, role string) ([]string, error) {
	return r.playerIDs(ctx, `SELECT player_id FROM guild_members WHERE guild_id = $1 AND roles @> ARRAY[$2::text]`, guildID, role)
}

// Country retrieves a country by ISO code
func (r *Repository) Country(ctx context.Context, code string) (*domain.Country, error) {
	var c domain.Country
	err := r.readPool.QueryRow(ctx, `SELECT code, name FROM countries WHERE code = upper($1)`, code).Scan(&c.Code, &c.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("country %q: %w", code, domain.ErrCohortNotFound)
		}
		return nil, fmt.Errorf("getting country: %w", err)
	}
	return &c, nil
}

func (r *Repository) playerIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.readPool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning members: %w", err)
	}
	return ids, nil
}
