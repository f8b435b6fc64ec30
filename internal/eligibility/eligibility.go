package eligibility

import (
	"fmt"
	"time"

	"github.com/trainer-leaderboard/internal/domain"
)

// DefaultBanWindow is how long a cheat flag keeps a player off leaderboards
const DefaultBanWindow = 26 * 7 * 24 * time.Hour

// BanWindow sets the look-back for leaderboards dated in [From, Until).
// A nil bound is open.
type BanWindow struct {
	From     *time.Time
	Until    *time.Time
	Duration time.Duration
}

func (w BanWindow) covers(t time.Time) bool {
	if w.From != nil && t.Before(*w.From) {
		return false
	}
	if w.Until != nil && !t.Before(*w.Until) {
		return false
	}
	return true
}

// Filter decides who counts toward public leaderboards
type Filter struct {
	windows  []BanWindow
	fallback time.Duration
}

// New creates a filter. The first window covering a date wins, otherwise fallback applies.
func New(windows []BanWindow, fallback time.Duration) (*Filter, error) {
	if fallback <= 0 {
		fallback = DefaultBanWindow
	}
	for i, w := range windows {
		if w.Duration <= 0 {
			return nil, fmt.Errorf("ban window %d: duration must be positive", i)
		}
		if w.From != nil && w.Until != nil && !w.From.Before(*w.Until) {
			return nil, fmt.Errorf("ban window %d: empty date range", i)
		}
	}
	return &Filter{windows: windows, fallback: fallback}, nil
}

// Default returns a filter with a single 26 week window
func Default() *Filter {
	return &Filter{fallback: DefaultBanWindow}
}

// Window returns the look-back in force for a leaderboard date
func (f *Filter) Window(asOf time.Time) time.Duration {
	for _, w := range f.windows {
		if w.covers(asOf) {
			return w.Duration
		}
	}
	return f.fallback
}

// Predicate is the eligibility rule for one date. Storage layers turn it into
// an indexed WHERE clause; Allows applies it to a loaded player.
type Predicate struct {
	AsOf time.Time
	// CheatCutoff excludes players flagged on or after this day
	CheatCutoff time.Time
}

// Predicate returns the rule for a leaderboard date
func (f *Filter) Predicate(asOf time.Time) Predicate {
	day := startOfDay(asOf)
	return Predicate{AsOf: asOf, CheatCutoff: day.Add(-f.Window(asOf))}
}

// Allows reports whether the player is eligible
func (p Predicate) Allows(pl *domain.Player) bool {
	if pl == nil || !pl.Active || !pl.StatisticsOptIn || !pl.Verified {
		return false
	}
	return pl.LastCheated == nil || startOfDay(*pl.LastCheated).Before(p.CheatCutoff)
}

// IsEligible reports whether a player counts toward leaderboards dated asOf
func (f *Filter) IsEligible(pl *domain.Player, asOf time.Time) bool {
	return f.Predicate(asOf).Allows(pl)
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
