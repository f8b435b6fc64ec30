package domain

// CohortKind selects how a cohort reference is resolved
type CohortKind string

const (
	CohortGlobal    CohortKind = "global"
	CohortCommunity CohortKind = "community"
	CohortGuild     CohortKind = "guild"
	CohortCountry   CohortKind = "country"
)

// Valid reports whether k is a known cohort kind
func (k CohortKind) Valid() bool {
	switch k {
	case CohortGlobal, CohortCommunity, CohortGuild, CohortCountry:
		return true
	}
	return false
}

// CohortRef is an unresolved reference to a set of players
type CohortRef struct {
	Kind         CohortKind `json:"kind"`
	Ref          string     `json:"ref,omitempty"`
	IncludeRoles []string   `json:"include_roles,omitempty"`
	ExcludeRoles []string   `json:"exclude_roles,omitempty"`
}

func (c CohortRef) String() string {
	if c.Ref == "" {
		return string(c.Kind)
	}
	return string(c.Kind) + ":" + c.Ref
}

// PlayerFilter is a resolved cohort. When Restricted is set only PlayerIDs are
// considered, an empty list then selecting nobody.
type PlayerFilter struct {
	Title      string   `json:"title"`
	Restricted bool     `json:"restricted"`
	PlayerIDs  []string `json:"player_ids,omitempty"`
	Country    string   `json:"country,omitempty"`
}

// Allows reports whether a player passes the membership part of the filter
func (f PlayerFilter) Allows(p *Player) bool {
	if f.Country != "" && p.Country != f.Country {
		return false
	}
	if !f.Restricted {
		return true
	}
	for _, id := range f.PlayerIDs {
		if id == p.ID {
			return true
		}
	}
	return false
}

// Community is a player-run group that may be linked to chat guilds
type Community struct {
	ID     int64                `json:"id"`
	Handle string               `json:"handle"`
	Name   string               `json:"name"`
	Public bool                 `json:"public"`
	Guilds []CommunityGuildLink `json:"guilds,omitempty"`
}

// CommunityGuildLink ties a community to a chat guild whose members are synced into it
type CommunityGuildLink struct {
	GuildID      string   `json:"guild_id"`
	SyncMembers  bool     `json:"sync_members"`
	IncludeRoles []string `json:"include_roles,omitempty"`
	ExcludeRoles []string `json:"exclude_roles,omitempty"`
}

// Guild is a chat guild known to the guild directory
type Guild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Country is an ISO country known to the player directory
type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}
