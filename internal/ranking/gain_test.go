package ranking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainer-leaderboard/internal/domain"
)

func TestRankGain_RateAndPercentage(t *testing.T) {
	src := NewFakeSource()
	src.AddPlayer(newPlayer("p1", domain.FactionMystic))
	t1 := boardDate
	t2 := t1.AddDate(0, 0, 5)
	src.Add("p1", "total_xp", "100", t1)
	src.Add("p1", "total_xp", "150", t2)

	board, err := newEngine(src).RankGain(context.Background(), GainQuery{
		Field:          "total_xp",
		Cohort:         global(),
		SubtrahendTime: t1,
		MinuendTime:    t2,
	})
	require.NoError(t, err)
	require.Len(t, board.Entries, 1)

	entry := board.Entries[0]
	assert.Equal(t, int64(1), entry.Rank)
	assert.True(t, entry.Difference.Equal(dec("50")))
	assert.True(t, entry.Rate.Equal(dec("10")), "rate %s", entry.Rate)
	require.NotNil(t, entry.Percentage)
	assert.True(t, entry.Percentage.Equal(dec("50")), "percentage %s", entry.Percentage)
	assert.Equal(t, 5*24*time.Hour, entry.Elapsed)
	assert.Equal(t, 5*24*time.Hour, board.Lookback)
	assert.Equal(t, fixedNow, board.GeneratedAt)
}

func TestRankGain_Windows(t *testing.T) {
	src := NewFakeSource()
	for _, id := range []string{"steady", "fast", "missing", "zero", "old"} {
		src.AddPlayer(newPlayer(id, domain.FactionValor))
	}
	sub := boardDate
	minuend := boardDate.AddDate(0, 0, 10)

	src.Add("steady", "badge_travel_km", "10", sub.Add(-time.Hour))
	src.Add("steady", "badge_travel_km", "30", minuend.Add(-time.Hour))

	src.Add("fast", "badge_travel_km", "10.5", sub)
	src.Add("fast", "badge_travel_km", "60.5", minuend)

	// no value in the minuend window
	src.Add("missing", "badge_travel_km", "5", sub)

	src.Add("zero", "badge_travel_km", "0", sub)
	src.Add("zero", "badge_travel_km", "20", minuend)

	// subtrahend outside the lookback
	src.Add("old", "badge_travel_km", "1", sub.AddDate(0, 0, -20))
	src.Add("old", "badge_travel_km", "100", minuend)

	board, err := newEngine(src).RankGain(context.Background(), GainQuery{
		Field:          "badge_travel_km",
		Cohort:         global(),
		SubtrahendTime: sub,
		MinuendTime:    minuend,
	})
	require.NoError(t, err)

	got := make([]string, 0, len(board.Entries))
	for _, e := range board.Entries {
		got = append(got, e.PlayerID)
	}
	assert.Equal(t, []string{"fast", "steady", "zero"}, got)
	assert.Equal(t, []int64{1, 2, 2}, []int64{board.Entries[0].Rank, board.Entries[1].Rank, board.Entries[2].Rank})
	assert.Nil(t, board.Entries[2].Percentage, "no percentage from a zero base")

	assert.Equal(t, int64(3), board.Aggregates.Count)
	assert.True(t, board.Aggregates.MaxRate.Equal(dec("5")))
	assert.True(t, board.Aggregates.MinRate.Equal(dec("2")))
	assert.True(t, board.Aggregates.SumChange.Equal(dec("90")))
	assert.True(t, board.Aggregates.MaxChange.Equal(dec("50")))
	assert.True(t, board.Aggregates.AverageChange.Equal(dec("30")))
}

func TestRankGain_RequestErrors(t *testing.T) {
	e := newEngine(NewFakeSource())

	tests := []struct {
		name   string
		query  GainQuery
		reason string
	}{
		{
			name:   "unknown field",
			query:  GainQuery{Field: "nope", SubtrahendTime: boardDate, MinuendTime: boardDate.AddDate(0, 0, 1)},
			reason: domain.ReasonInvalidStat,
		},
		{
			name:   "reversed times",
			query:  GainQuery{Field: "total_xp", SubtrahendTime: boardDate.AddDate(0, 0, 1), MinuendTime: boardDate},
			reason: domain.ReasonInvalidRange,
		},
		{
			name:   "equal times",
			query:  GainQuery{Field: "total_xp", SubtrahendTime: boardDate, MinuendTime: boardDate},
			reason: domain.ReasonInvalidRange,
		},
		{
			name:   "negative duration",
			query:  GainQuery{Field: "total_xp", SubtrahendTime: boardDate, MinuendTime: boardDate.AddDate(0, 0, 1), Lookback: -time.Hour},
			reason: domain.ReasonInvalidRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.RankGain(context.Background(), tt.query)
			var reqErr *domain.RequestError
			require.ErrorAs(t, err, &reqErr)
			assert.Equal(t, tt.reason, reqErr.Reason)
		})
	}
}
