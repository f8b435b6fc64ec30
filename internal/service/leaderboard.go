package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trainer-leaderboard/internal/cohort"
	"github.com/trainer-leaderboard/internal/config"
	"github.com/trainer-leaderboard/internal/domain"
	"github.com/trainer-leaderboard/internal/fields"
	"github.com/trainer-leaderboard/internal/metrics"
	"github.com/trainer-leaderboard/internal/ranking"
)

// Leaderboard modes
const (
	ModeSnapshot = "snapshot"
	ModeGain     = "gain"
)

// CohortResolver turns a cohort reference into a player filter
type CohortResolver interface {
	Resolve(ctx context.Context, ref domain.CohortRef, viewer string) (domain.PlayerFilter, error)
}

// Ranker computes leaderboards
type Ranker interface {
	RankSnapshot(ctx context.Context, q ranking.SnapshotQuery) (*domain.SnapshotBoard, error)
	RankGain(ctx context.Context, q ranking.GainQuery) (*domain.GainBoard, error)
}

// SnapshotRequest asks for a standing leaderboard as seen by Viewer
type SnapshotRequest struct {
	Field        string
	Cohort       domain.CohortRef
	Viewer       string
	Date         time.Time
	ShowInactive bool
	Factions     []domain.Faction
	MinLevel     int
	MaxLevel     int
	ValueGTE     *decimal.Decimal
	ValueLTE     *decimal.Decimal
	Page         domain.Page
}

// GainRequest asks for a growth leaderboard as seen by Viewer
type GainRequest struct {
	Field          string
	Cohort         domain.CohortRef
	Viewer         string
	SubtrahendTime time.Time
	MinuendTime    time.Time
	Lookback       time.Duration
	Factions       []domain.Faction
	Page           domain.Page
}

// LeaderboardService resolves cohorts and ranks players
type LeaderboardService struct {
	fields   *fields.Table
	resolver CohortResolver
	ranker   Ranker
	config   *config.LeaderboardConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(
	table *fields.Table,
	resolver CohortResolver,
	ranker Ranker,
	cfg *config.LeaderboardConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *LeaderboardService {
	return &LeaderboardService{
		fields:   table,
		resolver: resolver,
		ranker:   ranker,
		config:   cfg,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// LeaderboardStore serves the ranking queries and cohort directories
type LeaderboardStore interface {
	ranking.Source
	cohort.CommunityDirectory
	cohort.GuildDirectory
	cohort.CountryDirectory
}

// NewLeaderboardServiceFromConfig assembles the ranking engine and cohort
// resolver over one store using the leaderboard, eligibility and cohort settings.
func NewLeaderboardServiceFromConfig(
	cfg *config.Config,
	store LeaderboardStore,
	table *fields.Table,
	m *metrics.Metrics,
	logger *slog.Logger,
) (*LeaderboardService, error) {
	filter, err := cfg.Eligibility.Filter()
	if err != nil {
		return nil, fmt.Errorf("building eligibility filter: %w", err)
	}

	engine := ranking.NewEngine(store, table, filter, ranking.Config{
		DefaultLimit:    cfg.Leaderboard.DefaultLimit,
		MaxLimit:        cfg.Leaderboard.MaxLimit,
		FreshnessMonths: cfg.Leaderboard.FreshnessMonths,
	})
	resolver := cohort.NewResolver(store, store, store, cohort.Config{
		OptOutRoles:    cfg.Cohort.OptOutRoles,
		ConcealPrivate: cfg.Leaderboard.ConcealPrivate(),
	}, logger)

	return NewLeaderboardService(table, resolver, engine, &cfg.Leaderboard, m, logger), nil
}

// SnapshotLeaderboard ranks a cohort by its latest value of a field
func (s *LeaderboardService) SnapshotLeaderboard(ctx context.Context, req SnapshotRequest) (*domain.SnapshotBoard, error) {
	start := s.now()
	if !s.fields.IsSortable(req.Field) {
		return nil, s.fail(ModeSnapshot, req.Cohort, domain.NewInvalidStat(req.Field))
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	filter, err := s.resolver.Resolve(ctx, req.Cohort, req.Viewer)
	if err != nil {
		return nil, s.fail(ModeSnapshot, req.Cohort, err)
	}

	date := req.Date
	if date.IsZero() {
		date = s.now()
	}
	board, err := s.ranker.RankSnapshot(ctx, ranking.SnapshotQuery{
		Field:        req.Field,
		Cohort:       filter,
		Date:         date,
		ShowInactive: req.ShowInactive,
		Factions:     req.Factions,
		MinLevel:     req.MinLevel,
		MaxLevel:     req.MaxLevel,
		ValueGTE:     req.ValueGTE,
		ValueLTE:     req.ValueLTE,
		Page:         req.Page,
	})
	if err != nil {
		return nil, s.fail(ModeSnapshot, req.Cohort, err)
	}

	took := s.now().Sub(start)
	s.metrics.Leaderboard(ModeSnapshot, took)
	s.logger.Debug("snapshot leaderboard computed",
		"field", req.Field,
		"cohort", req.Cohort.String(),
		"total", board.Total,
		"duration", took,
	)
	return board, nil
}

// GainLeaderboard ranks a cohort by daily growth of a field
func (s *LeaderboardService) GainLeaderboard(ctx context.Context, req GainRequest) (*domain.GainBoard, error) {
	start := s.now()
	if !s.fields.IsSortable(req.Field) {
		return nil, s.fail(ModeGain, req.Cohort, domain.NewInvalidStat(req.Field))
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	filter, err := s.resolver.Resolve(ctx, req.Cohort, req.Viewer)
	if err != nil {
		return nil, s.fail(ModeGain, req.Cohort, err)
	}

	board, err := s.ranker.RankGain(ctx, ranking.GainQuery{
		Field:          req.Field,
		Cohort:         filter,
		SubtrahendTime: req.SubtrahendTime,
		MinuendTime:    req.MinuendTime,
		Lookback:       req.Lookback,
		Factions:       req.Factions,
		Page:           req.Page,
	})
	if err != nil {
		return nil, s.fail(ModeGain, req.Cohort, err)
	}

	took := s.now().Sub(start)
	s.metrics.Leaderboard(ModeGain, took)
	s.logger.Debug("gain leaderboard computed",
		"field", req.Field,
		"cohort", req.Cohort.String(),
		"total", board.Total,
		"duration", took,
	)
	return board, nil
}

func (s *LeaderboardService) fail(mode string, ref domain.CohortRef, err error) error {
	reason := failureReason(err)
	s.metrics.LeaderboardError(mode, reason)
	if reason == "unavailable" || reason == "error" {
		s.logger.Error("leaderboard request failed",
			"mode", mode,
			"cohort", ref.String(),
			"error", err,
		)
	}
	return err
}

func failureReason(err error) string {
	var reqErr *domain.RequestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.Reason
	case errors.Is(err, domain.ErrAccessDenied):
		return "access_denied"
	case domain.IsNotFoundError(err):
		return "not_found"
	case domain.IsTransientError(err):
		return "unavailable"
	default:
		return "error"
	}
}

func (s *LeaderboardService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.RequestTimeout)
}
