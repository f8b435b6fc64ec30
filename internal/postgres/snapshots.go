package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/trainer-leaderboard/internal/domain"
	"github.com/trainer-leaderboard/internal/ranking"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const playerColumns = `id, username, faction, active, statistics_opt_in, verified, last_cheated, COALESCE(country, ''), start_date, created_at, updated_at`

func scanPlayer(row pgx.Row) (*domain.Player, error) {
	var p domain.Player
	err := row.Scan(
		&p.ID,
		&p.Username,
		&p.Faction,
		&p.Active,
		&p.StatisticsOptIn,
		&p.Verified,
		&p.LastCheated,
		&p.Country,
		&p.StartDate,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetPlayer retrieves a player by ID
func (r *Repository) GetPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE id = $1`
	p, err := scanPlayer(r.pool.QueryRow(ctx, query, playerID))
	if err != nil {
		return nil, fmt.Errorf("getting player: %w", err)
	}
	return p, nil
}

// CommitSnapshot serializes writes for one player. It locks the player row,
// reads the player's history inside the transaction and hands both to decide.
// The snapshot decide returns is written, replacing any stored snapshot with
// the same ID; an error from decide rolls the transaction back.
func (r *Repository) CommitSnapshot(
	ctx context.Context,
	playerID string,
	decide func(player *domain.Player, history []domain.Snapshot) (*domain.Snapshot, error),
) (*domain.Snapshot, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	player, err := scanPlayer(tx.QueryRow(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1 FOR UPDATE`, playerID))
	if err != nil {
		return nil, fmt.Errorf("locking player: %w", err)
	}

	history, err := loadHistory(ctx, tx, playerID)
	if err != nil {
		return nil, err
	}

	snap, err := decide(player, history)
	if err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO snapshots (id, player_id, observed_at, submitted_at, submitted_by, source, double_check_confirmation)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id)
		DO UPDATE SET observed_at = $3, submitted_at = $4, source = $6, double_check_confirmation = $7
		WHERE snapshots.player_id = EXCLUDED.player_id
	`, snap.ID, snap.PlayerID, snap.ObservedAt, snap.SubmittedAt, snap.SubmittedBy, snap.Source, snap.Override)
	if err != nil {
		return nil, fmt.Errorf("inserting snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("%w: snapshot %s belongs to another player", domain.ErrInvalidRequest, snap.ID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM snapshot_values WHERE snapshot_id = $1`, snap.ID); err != nil {
		return nil, fmt.Errorf("clearing snapshot values: %w", err)
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO snapshot_values (snapshot_id, player_id, field, value, observed_at)
		VALUES ($1, $2, $3, $4::numeric, $5)
	`
	for field, value := range snap.Values {
		batch.Queue(query, snap.ID, snap.PlayerID, field, value.String(), snap.ObservedAt)
	}
	br := tx.SendBatch(ctx, batch)
	for range snap.Values {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return nil, fmt.Errorf("inserting snapshot values: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("inserting snapshot values: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing snapshot: %w", err)
	}
	return snap, nil
}

// GetSnapshot retrieves one snapshot with its values
func (r *Repository) GetSnapshot(ctx context.Context, id uuid.UUID) (*domain.Snapshot, error) {
	snaps, err := scanSnapshots(r.pool.Query(ctx, `
		SELECT s.id, s.player_id, s.observed_at, s.submitted_at, COALESCE(s.submitted_by, ''), s.source,
			   s.double_check_confirmation, v.field, v.value::text
		FROM snapshots s
		LEFT JOIN snapshot_values v ON v.snapshot_id = s.id
		WHERE s.id = $1
	`, id))
	if err != nil {
		return nil, fmt.Errorf("getting snapshot: %w", err)
	}
	if len(snaps) == 0 {
		return nil, domain.ErrSnapshotNotFound
	}
	return &snaps[0], nil
}

// History returns every snapshot of a player ordered by observation time
func (r *Repository) History(ctx context.Context, playerID string) ([]domain.Snapshot, error) {
	return loadHistory(ctx, r.pool, playerID)
}

func loadHistory(ctx context.Context, q querier, playerID string) ([]domain.Snapshot, error) {
	snaps, err := scanSnapshots(q.Query(ctx, `
		SELECT s.id, s.player_id, s.observed_at, s.submitted_at, COALESCE(s.submitted_by, ''), s.source,
			   s.double_check_confirmation, v.field, v.value::text
		FROM snapshots s
		LEFT JOIN snapshot_values v ON v.snapshot_id = s.id
		WHERE s.player_id = $1
		ORDER BY s.observed_at, s.id
	`, playerID))
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return snaps, nil
}

// scanSnapshots folds snapshot/value join rows into snapshots, keeping row order
func scanSnapshots(rows pgx.Rows, err error) ([]domain.Snapshot, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out   []domain.Snapshot
		index = make(map[uuid.UUID]int)
	)
	for rows.Next() {
		var (
			s     domain.Snapshot
			field *string
			value *string
		)
		if err := rows.Scan(&s.ID, &s.PlayerID, &s.ObservedAt, &s.SubmittedAt, &s.SubmittedBy, &s.Source, &s.Override, &field, &value); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		i, ok := index[s.ID]
		if !ok {
			s.Values = make(map[string]decimal.Decimal)
			out = append(out, s)
			i = len(out) - 1
			index[s.ID] = i
		}
		if field == nil || value == nil {
			continue
		}
		d, err := decimal.NewFromString(*value)
		if err != nil {
			return nil, fmt.Errorf("parsing %s value: %w", *field, err)
		}
		out[i].Values[*field] = d
	}
	return out, rows.Err()
}

// LatestValues returns each eligible cohort member's latest value of a field.
// DISTINCT ON walks idx_snapshot_values_latest so no player is scanned twice.
// Snapshots sharing an observation time resolve to the highest value.
func (r *Repository) LatestValues(ctx context.Context, q ranking.ValueQuery) ([]ranking.Observation, error) {
	var country *string
	if q.Cohort.Country != "" {
		country = &q.Cohort.Country
	}
	factions := make([]int16, 0, len(q.Factions))
	for _, f := range q.Factions {
		factions = append(factions, int16(f))
	}
	playerIDs := q.Cohort.PlayerIDs
	if playerIDs == nil {
		playerIDs = []string{}
	}

	query := `
		SELECT DISTINCT ON (v.player_id)
			   v.player_id, p.username, p.faction, v.snapshot_id, v.value::text, v.observed_at
		FROM snapshot_values v
		JOIN players p ON p.id = v.player_id
		WHERE v.field = $1
		  AND v.observed_at <= $2
		  AND ($3::timestamptz IS NULL OR v.observed_at >= $3)
		  AND ($4::timestamptz IS NULL OR v.observed_at > $4)
		  AND (NOT $5::boolean OR v.value > 0)
		  AND p.active AND p.statistics_opt_in AND p.verified
		  AND (p.last_cheated IS NULL OR p.last_cheated < $6::date)
		  AND ($7::text IS NULL OR p.country = $7)
		  AND (NOT $8::boolean OR v.player_id = ANY($9::text[]))
		  AND (cardinality($10::smallint[]) = 0 OR p.faction = ANY($10::smallint[]))
		ORDER BY v.player_id, v.observed_at DESC, v.value DESC, v.snapshot_id
	`
	rows, err := r.readPool.Query(ctx, query,
		q.Field,
		q.AtOrBefore,
		q.Since,
		q.After,
		q.PositiveOnly,
		q.Eligible.CheatCutoff,
		country,
		q.Cohort.Restricted,
		playerIDs,
		factions,
	)
	if err != nil {
		return nil, fmt.Errorf("querying latest values: %w", err)
	}
	defer rows.Close()

	var out []ranking.Observation
	for rows.Next() {
		var (
			o     ranking.Observation
			value string
		)
		if err := rows.Scan(&o.PlayerID, &o.Username, &o.Faction, &o.SnapshotID, &value, &o.ObservedAt); err != nil {
			return nil, fmt.Errorf("scanning latest value: %w", err)
		}
		if o.Value, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("parsing value: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// FieldMaxima returns the highest stored value of every field, for rebuilding the max index
func (r *Repository) FieldMaxima(ctx context.Context) (map[string]decimal.Decimal, error) {
	rows, err := r.readPool.Query(ctx, `SELECT field, MAX(value)::text FROM snapshot_values GROUP BY field`)
	if err != nil {
		return nil, fmt.Errorf("querying field maxima: %w", err)
	}
	defer rows.Close()

	maxima := make(map[string]decimal.Decimal)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, fmt.Errorf("scanning field maximum: %w", err)
		}
		d, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("parsing %s maximum: %w", field, err)
		}
		maxima[field] = d
	}
	return maxima, rows.Err()
}
