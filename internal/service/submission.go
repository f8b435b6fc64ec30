package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trainer-leaderboard/internal/config"
	"github.com/trainer-leaderboard/internal/domain"
	"github.com/trainer-leaderboard/internal/metrics"
	"github.com/trainer-leaderboard/internal/validator"
)

// SnapshotStore persists snapshots. CommitSnapshot must hold the player's
// write lock while decide runs and store whatever decide returns.
type SnapshotStore interface {
	CommitSnapshot(
		ctx context.Context,
		playerID string,
		decide func(player *domain.Player, history []domain.Snapshot) (*domain.Snapshot, error),
	) (*domain.Snapshot, error)
	GetSnapshot(ctx context.Context, id uuid.UUID) (*domain.Snapshot, error)
}

// MaxIndex tracks the highest known value of each field
type MaxIndex interface {
	Maxima(ctx context.Context, fields []string) (map[string]decimal.Decimal, error)
	Observe(ctx context.Context, values map[string]decimal.Decimal) error
}

// SubmissionService validates and records snapshots
type SubmissionService struct {
	store     SnapshotStore
	index     MaxIndex
	validator *validator.Validator
	limiter   *playerLimiter
	config    *config.SubmissionConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewSubmissionService creates a new submission service. index may be nil,
// in which case the leader check is skipped.
func NewSubmissionService(
	store SnapshotStore,
	index MaxIndex,
	v *validator.Validator,
	cfg *config.SubmissionConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *SubmissionService {
	return &SubmissionService{
		store:     store,
		index:     index,
		validator: v,
		limiter:   newPlayerLimiter(cfg.RatePerMinute, cfg.Burst),
		config:    cfg,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit validates a new snapshot and stores it when accepted. A rejected
// snapshot returns both the result and a *domain.RejectedError.
func (s *SubmissionService) Submit(ctx context.Context, sub domain.SnapshotSubmission) (*domain.SubmissionResult, error) {
	if !s.limiter.allow(sub.PlayerID, s.now()) {
		s.metrics.Submission(sub.Source, metrics.OutcomeLimited)
		return nil, domain.ErrRateLimited
	}
	return s.submit(ctx, sub)
}

// SubmitBatch processes imported submissions one by one. A failure is
// reported on its item and does not stop the rest.
func (s *SubmissionService) SubmitBatch(ctx context.Context, subs []domain.SnapshotSubmission) []domain.BatchItemResult {
	results := make([]domain.BatchItemResult, 0, len(subs))
	for _, sub := range subs {
		res, err := s.submit(ctx, sub)
		if err != nil {
			s.logger.Warn("batch submission failed",
				"player_id", sub.PlayerID,
				"source", sub.Source,
				"error", err,
			)
		}
		results = append(results, domain.BatchItemResult{PlayerID: sub.PlayerID, Result: res, Err: err})
	}
	return results
}

func (s *SubmissionService) submit(ctx context.Context, sub domain.SnapshotSubmission) (*domain.SubmissionResult, error) {
	if sub.PlayerID == "" {
		return nil, fmt.Errorf("%w: missing player id", domain.ErrInvalidRequest)
	}
	if sub.ObservedAt.IsZero() {
		return nil, fmt.Errorf("%w: missing observed_at", domain.ErrInvalidRequest)
	}
	if sub.Source == "" {
		sub.Source = domain.SourceWebQuick
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	id := sub.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	maxima := s.maxima(ctx, sub.Values)
	candidate := &domain.Snapshot{
		ID:          id,
		PlayerID:    sub.PlayerID,
		ObservedAt:  sub.ObservedAt.UTC(),
		SubmittedAt: s.now().UTC(),
		SubmittedBy: sub.SubmittedBy,
		Source:      sub.Source,
		Override:    sub.Override,
		Values:      sub.Values,
	}

	return s.commit(ctx, candidate, maxima, nil)
}

// Amend replaces the values of a snapshot while its grace period is open.
// Only the original submitter may amend, and the snapshot keeps its ID.
func (s *SubmissionService) Amend(ctx context.Context, req domain.AmendRequest) (*domain.SubmissionResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	existing, err := s.store.GetSnapshot(ctx, req.SnapshotID)
	if err != nil {
		return nil, fmt.Errorf("getting snapshot: %w", err)
	}
	if err := s.canAmend(existing, req); err != nil {
		return nil, err
	}
	if !s.limiter.allow(existing.PlayerID, s.now()) {
		s.metrics.Submission(existing.Source, metrics.OutcomeLimited)
		return nil, domain.ErrRateLimited
	}

	observed := existing.ObservedAt
	if req.ObservedAt != nil {
		observed = req.ObservedAt.UTC()
	}
	candidate := &domain.Snapshot{
		ID:          existing.ID,
		PlayerID:    existing.PlayerID,
		ObservedAt:  observed,
		SubmittedAt: existing.SubmittedAt,
		SubmittedBy: existing.SubmittedBy,
		Source:      existing.Source,
		Override:    req.Override,
		Values:      req.Values,
	}

	// the stored copy is checked again under the lock in case of a racing amend
	check := func(history []domain.Snapshot) error {
		for i := range history {
			if history[i].ID == existing.ID {
				return s.canAmend(&history[i], req)
			}
		}
		return domain.ErrSnapshotNotFound
	}

	return s.commit(ctx, candidate, s.maxima(ctx, req.Values), check)
}

func (s *SubmissionService) canAmend(existing *domain.Snapshot, req domain.AmendRequest) error {
	if existing.SubmittedBy == "" || existing.SubmittedBy != req.SubmittedBy {
		return domain.ErrNotSubmitter
	}
	if s.now().Sub(existing.SubmittedAt) > s.config.AmendGracePeriod {
		return domain.ErrAmendWindowClosed
	}
	return nil
}

func (s *SubmissionService) commit(
	ctx context.Context,
	candidate *domain.Snapshot,
	maxima map[string]decimal.Decimal,
	check func(history []domain.Snapshot) error,
) (*domain.SubmissionResult, error) {
	var result domain.ValidationResult
	stored, err := s.store.CommitSnapshot(ctx, candidate.PlayerID,
		func(player *domain.Player, history []domain.Snapshot) (*domain.Snapshot, error) {
			if check != nil {
				if err := check(history); err != nil {
					return nil, err
				}
			}
			result = s.validator.Validate(validator.Input{
				Player:    player,
				Candidate: candidate,
				History:   history,
				GlobalMax: maxima,
			})
			if err := result.Err(); err != nil {
				return nil, err
			}
			return candidate, nil
		})

	s.recordIssues(result)
	if err != nil {
		var rejected *domain.RejectedError
		if errors.As(err, &rejected) {
			s.metrics.Submission(candidate.Source, metrics.OutcomeRejected)
			s.logger.Info("snapshot rejected",
				"player_id", candidate.PlayerID,
				"snapshot_id", candidate.ID,
				"hard_errors", len(result.HardErrors),
				"soft_warnings", len(result.SoftWarnings),
			)
			return &domain.SubmissionResult{Validation: result}, err
		}
		s.metrics.Submission(candidate.Source, metrics.OutcomeError)
		return nil, fmt.Errorf("committing snapshot: %w", err)
	}

	outcome := metrics.OutcomeAccepted
	if result.Overridden {
		outcome = metrics.OutcomeOverridden
	}
	s.metrics.Submission(candidate.Source, outcome)
	s.logger.Info("snapshot recorded",
		"player_id", stored.PlayerID,
		"snapshot_id", stored.ID,
		"source", stored.Source,
		"overridden", result.Overridden,
	)

	if s.index != nil {
		if err := s.index.Observe(ctx, stored.Values); err != nil {
			s.logger.Warn("failed to update max index", "error", err)
		}
	}

	return &domain.SubmissionResult{Snapshot: stored, Validation: result}, nil
}

// maxima reads the leader values for the submitted fields. A missing or
// failing index only disables the leader check.
func (s *SubmissionService) maxima(ctx context.Context, values map[string]decimal.Decimal) map[string]decimal.Decimal {
	if s.index == nil || len(values) == 0 {
		return nil
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	maxima, err := s.index.Maxima(ctx, names)
	if err != nil {
		s.logger.Warn("max index unavailable, skipping leader check", "error", err)
		return nil
	}
	return maxima
}

func (s *SubmissionService) recordIssues(r domain.ValidationResult) {
	for _, i := range r.HardErrors {
		s.metrics.ValidationIssue(string(i.Severity), string(i.Code))
	}
	for _, i := range r.SoftWarnings {
		s.metrics.ValidationIssue(string(i.Severity), string(i.Code))
	}
}

func (s *SubmissionService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.Timeout)
}
