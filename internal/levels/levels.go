package levels

import (
	"fmt"
)

// Level is a trainer level and the cumulative XP needed to reach it
type Level struct {
	Number     int
	TotalXP    int64
	XPRequired int64 // zero for the top level
}

// questGate is the last level reachable by XP alone
const questGate = 40

var table = []Level{
	{1, 0, 1000},
	{2, 1000, 2000},
	{3, 3000, 3000},
	{4, 6000, 4000},
	{5, 10_000, 5000},
	{6, 15_000, 6000},
	{7, 21_000, 7000},
	{8, 28_000, 8000},
	{9, 36_000, 9000},
	{10, 45_000, 10_000},
	{11, 55_000, 10_000},
	{12, 65_000, 10_000},
	{13, 75_000, 10_000},
	{14, 85_000, 15_000},
	{15, 100_000, 20_000},
	{16, 120_000, 20_000},
	{17, 140_000, 20_000},
	{18, 160_000, 25_000},
	{19, 185_000, 25_000},
	{20, 210_000, 50_000},
	{21, 260_000, 75_000},
	{22, 335_000, 100_000},
	{23, 435_000, 125_000},
	{24, 560_000, 150_000},
	{25, 710_000, 190_000},
	{26, 900_000, 200_000},
	{27, 1_100_000, 250_000},
	{28, 1_350_000, 300_000},
	{29, 1_650_000, 350_000},
	{30, 2_000_000, 500_000},
	{31, 2_500_000, 500_000},
	{32, 3_000_000, 750_000},
	{33, 3_750_000, 1_000_000},
	{34, 4_750_000, 1_250_000},
	{35, 6_000_000, 1_500_000},
	{36, 7_500_000, 2_000_000},
	{37, 9_500_000, 2_500_000},
	{38, 12_000_000, 3_000_000},
	{39, 15_000_000, 5_000_000},
	{40, 20_000_000, 6_000_000},
	{41, 26_000_000, 7_500_000},
	{42, 33_500_000, 9_000_000},
	{43, 42_500_000, 11_000_000},
	{44, 53_500_000, 13_000_000},
	{45, 66_500_000, 15_500_000},
	{46, 82_000_000, 18_000_000},
	{47, 100_000_000, 21_000_000},
	{48, 121_000_000, 25_000_000},
	{49, 146_000_000, 30_000_000},
	{50, 176_000_000, 0},
}

// Max is the highest level
func Max() int { return len(table) }

// Get returns a level by number
func Get(n int) (Level, error) {
	if n < 1 || n > len(table) {
		return Level{}, fmt.Errorf("level %d out of range", n)
	}
	return table[n-1], nil
}

// Possible returns the levels a player with the given total XP could be.
// Past the quest gate XP alone cannot tell levels apart, so every level
// between the gate and the XP reached is possible.
func Possible(xp int64) []Level {
	if xp < 0 {
		return nil
	}
	if xp < table[questGate].TotalXP {
		for _, l := range table {
			if l.TotalXP <= xp && (l.XPRequired == 0 || l.TotalXP+l.XPRequired > xp) {
				return []Level{l}
			}
		}
		return nil
	}
	var out []Level
	for _, l := range table[questGate-1:] {
		if l.TotalXP <= xp {
			out = append(out, l)
		}
	}
	return out
}

// Guess formats the possible levels for display, "38" or "40-43"
func Guess(xp int64) string {
	possible := Possible(xp)
	switch len(possible) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%d", possible[0].Number)
	}
	return fmt.Sprintf("%d-%d", possible[0].Number, possible[len(possible)-1].Number)
}

// XPRange returns the total XP bounds [min, max) that contain every player
// possibly at a level between lo and hi inclusive. A zero bound is open.
func XPRange(lo, hi int) (min, max int64, err error) {
	if lo != 0 {
		l, err := Get(lo)
		if err != nil {
			return 0, 0, err
		}
		min = l.TotalXP
	}
	if hi != 0 {
		if _, err := Get(hi); err != nil {
			return 0, 0, err
		}
		if hi < len(table) {
			max = table[hi].TotalXP
		}
	}
	if lo != 0 && hi != 0 && lo > hi {
		return 0, 0, fmt.Errorf("level range %d-%d is empty", lo, hi)
	}
	return min, max, nil
}
