package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainer-leaderboard/internal/config"
	"github.com/trainer-leaderboard/internal/domain"
	"github.com/trainer-leaderboard/internal/fields"
	"github.com/trainer-leaderboard/internal/metrics"
	"github.com/trainer-leaderboard/internal/ranking"
)

func newLeaderboardService(resolver *FakeResolver, ranker *FakeRanker) *LeaderboardService {
	svc := NewLeaderboardService(
		fields.Default(),
		resolver,
		ranker,
		&config.LeaderboardConfig{RequestTimeout: time.Second},
		metrics.New(prometheus.NewRegistry()),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	svc.now = func() time.Time { return clock }
	return svc
}

func TestSnapshotLeaderboard(t *testing.T) {
	resolver := &FakeResolver{
		ResolveFunc: func(ctx context.Context, ref domain.CohortRef, viewer string) (domain.PlayerFilter, error) {
			assert.Equal(t, "ash", viewer)
			return domain.PlayerFilter{Title: "Pallet", Restricted: true, PlayerIDs: []string{"ash", "gary"}}, nil
		},
	}
	ranker := &FakeRanker{}
	svc := newLeaderboardService(resolver, ranker)

	board, err := svc.SnapshotLeaderboard(context.Background(), SnapshotRequest{
		Field:    "total_xp",
		Cohort:   domain.CohortRef{Kind: domain.CohortCommunity, Ref: "pallet"},
		Viewer:   "ash",
		Factions: []domain.Faction{domain.FactionValor},
		Page:     domain.Page{Limit: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, "Pallet", board.Title)

	require.Len(t, ranker.snapshotQueries, 1)
	q := ranker.snapshotQueries[0]
	assert.Equal(t, []string{"ash", "gary"}, q.Cohort.PlayerIDs)
	assert.Equal(t, clock, q.Date, "date defaults to now")
	assert.Equal(t, []domain.Faction{domain.FactionValor}, q.Factions)
	assert.Equal(t, 10, q.Page.Limit)
}

func TestGainLeaderboard(t *testing.T) {
	ranker := &FakeRanker{}
	svc := newLeaderboardService(&FakeResolver{}, ranker)

	from := clock.AddDate(0, 0, -7)
	board, err := svc.GainLeaderboard(context.Background(), GainRequest{
		Field:          "badge_travel_km",
		Cohort:         domain.CohortRef{Kind: domain.CohortGlobal},
		SubtrahendTime: from,
		MinuendTime:    clock,
		Lookback:       48 * time.Hour,
	})
	require.NoError(t, err)
	assert.Equal(t, "Global", board.Title)

	require.Len(t, ranker.gainQueries, 1)
	assert.Equal(t, from, ranker.gainQueries[0].SubtrahendTime)
	assert.Equal(t, 48*time.Hour, ranker.gainQueries[0].Lookback)
}

func TestLeaderboardErrors(t *testing.T) {
	transient := &domain.TransientError{Op: "listing guild members", Err: errors.New("timeout")}

	tests := []struct {
		name        string
		field       string
		resolveErr  error
		rankErr     error
		wantResolve bool
		wantRank    bool
		check       func(t *testing.T, err error)
	}{
		{
			name:  "field checked before the cohort",
			field: "pokemon_info_stardust",
			check: func(t *testing.T, err error) {
				var reqErr *domain.RequestError
				require.True(t, errors.As(err, &reqErr))
				assert.Equal(t, domain.ReasonInvalidStat, reqErr.Reason)
			},
		},
		{
			name:        "cohort not found",
			field:       "total_xp",
			resolveErr:  domain.ErrCohortNotFound,
			wantResolve: true,
			check: func(t *testing.T, err error) {
				assert.True(t, domain.IsNotFoundError(err))
			},
		},
		{
			name:        "directory unavailable",
			field:       "total_xp",
			resolveErr:  transient,
			wantResolve: true,
			check: func(t *testing.T, err error) {
				assert.True(t, domain.IsTransientError(err))
			},
		},
		{
			name:        "ranking failure",
			field:       "total_xp",
			rankErr:     domain.NewInvalidRange("subtrahend must be before minuend"),
			wantResolve: true,
			wantRank:    true,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, domain.ErrInvalidRequest)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &FakeResolver{
				ResolveFunc: func(ctx context.Context, ref domain.CohortRef, viewer string) (domain.PlayerFilter, error) {
					return domain.PlayerFilter{Title: "Global"}, tt.resolveErr
				},
			}
			ranker := &FakeRanker{
				RankGainFunc: func(ctx context.Context, q ranking.GainQuery) (*domain.GainBoard, error) {
					return nil, tt.rankErr
				},
			}
			svc := newLeaderboardService(resolver, ranker)

			_, err := svc.GainLeaderboard(context.Background(), GainRequest{
				Field:          tt.field,
				Cohort:         domain.CohortRef{Kind: domain.CohortGuild, Ref: "1234"},
				SubtrahendTime: clock,
				MinuendTime:    clock.AddDate(0, 0, -1),
			})
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, tt.wantResolve, len(resolver.calls) == 1)
			assert.Equal(t, tt.wantRank, len(ranker.gainQueries) == 1)
		})
	}
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: domain.NewInvalidStat("nope"), want: domain.ReasonInvalidStat},
		{err: &domain.AccessError{Viewer: "gary"}, want: "access_denied"},
		{err: domain.ErrCohortNotFound, want: "not_found"},
		{err: &domain.TransientError{Op: "x", Err: errors.New("down")}, want: "unavailable"},
		{err: context.DeadlineExceeded, want: "error"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, failureReason(tt.err))
		})
	}
}

func newDirectory() *FakeDirectory {
	dir := NewFakeDirectory(time.Now().Add(-time.Hour))
	dir.AddGuild(&domain.Guild{ID: "g1", Name: "Pallet Town"},
		[]string{"ash", "misty", "brock"},
		map[string][]string{"NoLB": {"brock"}})
	dir.AddCommunity(&domain.Community{ID: 7, Handle: "secret", Name: "Secret Base"}, []string{"gary"})
	dir.SetValue("total_xp", "ash", 5000)
	dir.SetValue("total_xp", "misty", 9000)
	dir.SetValue("total_xp", "brock", 20000)
	return dir
}

func TestNewLeaderboardServiceFromConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("configured limits and opt-out roles", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Leaderboard.DefaultLimit = 1
		svc, err := NewLeaderboardServiceFromConfig(cfg, newDirectory(), fields.Default(), metrics.New(prometheus.NewRegistry()), logger)
		require.NoError(t, err)

		board, err := svc.SnapshotLeaderboard(context.Background(), SnapshotRequest{
			Field:  "total_xp",
			Cohort: domain.CohortRef{Kind: domain.CohortGuild, Ref: "g1"},
			Viewer: "ash",
		})
		require.NoError(t, err)
		assert.Equal(t, "Pallet Town", board.Title)
		assert.Equal(t, 2, board.Total, "opted-out members are left off")
		require.Len(t, board.Entries, 1)
		assert.Equal(t, "misty", board.Entries[0].PlayerID)
	})

	t.Run("private cohorts concealed by default", func(t *testing.T) {
		svc, err := NewLeaderboardServiceFromConfig(config.DefaultConfig(), newDirectory(), fields.Default(), metrics.New(prometheus.NewRegistry()), logger)
		require.NoError(t, err)

		_, err = svc.SnapshotLeaderboard(context.Background(), SnapshotRequest{
			Field:  "total_xp",
			Cohort: domain.CohortRef{Kind: domain.CohortCommunity, Ref: "secret"},
			Viewer: "ash",
		})
		assert.ErrorIs(t, err, domain.ErrCohortNotFound)
	})

	t.Run("private cohorts disclosed", func(t *testing.T) {
		cfg := config.DefaultConfig()
		conceal := false
		cfg.Leaderboard.ConcealPrivateCohorts = &conceal
		svc, err := NewLeaderboardServiceFromConfig(cfg, newDirectory(), fields.Default(), metrics.New(prometheus.NewRegistry()), logger)
		require.NoError(t, err)

		_, err = svc.SnapshotLeaderboard(context.Background(), SnapshotRequest{
			Field:  "total_xp",
			Cohort: domain.CohortRef{Kind: domain.CohortCommunity, Ref: "secret"},
			Viewer: "ash",
		})
		assert.ErrorIs(t, err, domain.ErrAccessDenied)
	})

	t.Run("bad ban window", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Eligibility.BanWindows = []config.BanWindowConfig{{From: "June", Duration: time.Hour}}
		_, err := NewLeaderboardServiceFromConfig(cfg, newDirectory(), fields.Default(), metrics.New(prometheus.NewRegistry()), logger)
		assert.Error(t, err)
	})
}
