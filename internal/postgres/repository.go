package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trainer-leaderboard/internal/config"
)

// Repository provides PostgreSQL-based data access for snapshots and the
// player, community and guild directories
type Repository struct {
	pool     *pgxpool.Pool
	readPool *pgxpool.Pool
	logger   *slog.Logger
}

// NewRepository creates a new PostgreSQL repository. Leaderboard reads go to
// the replica when one is configured.
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	pool, err := openPool(cfg, cfg.ConnectionString())
	if err != nil {
		return nil, err
	}

	readPool := pool
	if cfg.ReplicaHost != "" {
		readPool, err = openPool(cfg, cfg.ReplicaConnectionString())
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("replica: %w", err)
		}
	}

	return &Repository{
		pool:     pool,
		readPool: readPool,
		logger:   logger,
	}, nil
}

func openPool(cfg *config.PostgresConfig, connString string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

// Close closes the database connection pools
func (r *Repository) Close() {
	if r.readPool != r.pool {
		r.readPool.Close()
	}
	r.pool.Close()
}

// Ping checks the primary is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS countries (
			code CHAR(2) PRIMARY KEY,
			name VARCHAR(128) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS players (
			id VARCHAR(64) PRIMARY KEY,
			username VARCHAR(64) NOT NULL,
			faction SMALLINT NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			statistics_opt_in BOOLEAN NOT NULL DEFAULT TRUE,
			verified BOOLEAN NOT NULL DEFAULT FALSE,
			last_cheated DATE,
			country CHAR(2) REFERENCES countries(code),
			start_date DATE,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id UUID PRIMARY KEY,
			player_id VARCHAR(64) NOT NULL REFERENCES players(id),
			observed_at TIMESTAMPTZ NOT NULL,
			submitted_at TIMESTAMPTZ NOT NULL,
			submitted_by VARCHAR(64),
			source VARCHAR(32) NOT NULL,
			double_check_confirmation BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS snapshot_values (
			snapshot_id UUID NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
			player_id VARCHAR(64) NOT NULL,
			field VARCHAR(64) NOT NULL,
			value NUMERIC NOT NULL,
			observed_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (snapshot_id, field)
		)`,
		`CREATE TABLE IF NOT EXISTS guilds (
			id VARCHAR(32) PRIMARY KEY,
			name VARCHAR(128) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS guild_members (
			guild_id VARCHAR(32) NOT NULL REFERENCES guilds(id) ON DELETE CASCADE,
			player_id VARCHAR(64) NOT NULL REFERENCES players(id),
			roles TEXT[] NOT NULL DEFAULT '{}',
			PRIMARY KEY (guild_id, player_id)
		)`,
		`CREATE TABLE IF NOT EXISTS communities (
			id BIGSERIAL PRIMARY KEY,
			handle VARCHAR(64) NOT NULL UNIQUE,
			name VARCHAR(128) NOT NULL,
			public BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS community_members (
			community_id BIGINT NOT NULL REFERENCES communities(id) ON DELETE CASCADE,
			player_id VARCHAR(64) NOT NULL REFERENCES players(id),
			PRIMARY KEY (community_id, player_id)
		)`,
		`CREATE TABLE IF NOT EXISTS community_guilds (
			community_id BIGINT NOT NULL REFERENCES communities(id) ON DELETE CASCADE,
			guild_id VARCHAR(32) NOT NULL REFERENCES guilds(id) ON DELETE CASCADE,
			sync_members BOOLEAN NOT NULL DEFAULT TRUE,
			include_roles TEXT[] NOT NULL DEFAULT '{}',
			exclude_roles TEXT[] NOT NULL DEFAULT '{}',
			PRIMARY KEY (community_id, guild_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_players_eligible ON players(id) WHERE active AND statistics_opt_in AND verified`,
		`CREATE INDEX IF NOT EXISTS idx_players_last_cheated ON players(last_cheated)`,
		`CREATE INDEX IF NOT EXISTS idx_players_country ON players(country)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_player ON snapshots(player_id, observed_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshot_values_latest ON snapshot_values(field, player_id, observed_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_guild_members_roles ON guild_members USING GIN (roles)`,
		`CREATE INDEX IF NOT EXISTS idx_community_guilds_guild ON community_guilds(guild_id)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}
