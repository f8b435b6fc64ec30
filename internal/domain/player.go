package domain

import "time"

// Faction identifies the team a player belongs to. Zero means no team.
type Faction int

const (
	FactionNone Faction = iota
	FactionMystic
	FactionValor
	FactionInstinct
)

// Player represents a player as seen by the player directory
type Player struct {
	ID              string     `json:"id"`
	Username        string     `json:"username"`
	Faction         Faction    `json:"faction"`
	Active          bool       `json:"active"`
	StatisticsOptIn bool       `json:"statistics_opt_in"`
	Verified        bool       `json:"verified"`
	LastCheated     *time.Time `json:"last_cheated,omitempty"`
	Country         string     `json:"country,omitempty"`
	StartDate       *time.Time `json:"start_date,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
