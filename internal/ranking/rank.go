package ranking

import (
	"github.com/shopspring/decimal"

	"github.com/trainer-leaderboard/internal/domain"
)

// denseRank assigns ranks to an already sorted list. Equal keys share a rank
// and the next distinct key gets the shared rank plus one.
func denseRank(n int, key func(i int) decimal.Decimal, set func(i int, rank int64)) {
	var rank int64
	for i := 0; i < n; i++ {
		if i == 0 || !key(i).Equal(key(i-1)) {
			rank++
		}
		set(i, rank)
	}
}

type summary struct {
	count         int64
	sum, min, max decimal.Decimal
}

func (s *summary) add(v decimal.Decimal) {
	if s.count == 0 {
		s.min, s.max = v, v
	} else {
		s.min = decimal.Min(s.min, v)
		s.max = decimal.Max(s.max, v)
	}
	s.sum = s.sum.Add(v)
	s.count++
}

func (s *summary) average() decimal.Decimal {
	if s.count == 0 {
		return decimal.Zero
	}
	return s.sum.DivRound(decimal.NewFromInt(s.count), 2)
}

func (s *summary) aggregates() domain.Aggregates {
	return domain.Aggregates{
		Count:   s.count,
		Average: s.average(),
		Min:     s.min,
		Max:     s.max,
		Sum:     s.sum,
	}
}
