package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/trainer-leaderboard/internal/config"
)

const maxIndexKey = "fieldmax"

// MaxIndex keeps the highest accepted value of every field in one sorted set,
// member = field name, score = maximum. Scores are float64 so the index is an
// approximation, which is all the leader check needs.
type MaxIndex struct {
	client *redis.Client
	logger *slog.Logger
}

// NewMaxIndex connects to Redis
func NewMaxIndex(cfg *config.RedisConfig, logger *slog.Logger) (*MaxIndex, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewMaxIndexWithClient(client, logger), nil
}

// NewMaxIndexWithClient wraps an existing client
func NewMaxIndexWithClient(client *redis.Client, logger *slog.Logger) *MaxIndex {
	return &MaxIndex{client: client, logger: logger}
}

// Close closes the Redis connection
func (m *MaxIndex) Close() error {
	return m.client.Close()
}

// Ping checks Redis is reachable
func (m *MaxIndex) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Maxima returns the indexed maximum of each requested field. Fields never
// seen are left out.
func (m *MaxIndex) Maxima(ctx context.Context, fields []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(fields))
	if len(fields) == 0 {
		return out, nil
	}
	scores, err := m.client.ZMScore(ctx, maxIndexKey, fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading field maxima: %w", err)
	}
	for i, score := range scores {
		if score > 0 {
			out[fields[i]] = decimal.NewFromFloat(score)
		}
	}
	return out, nil
}

// Observe raises the maximum of each field to the given value where it is higher
func (m *MaxIndex) Observe(ctx context.Context, values map[string]decimal.Decimal) error {
	if len(values) == 0 {
		return nil
	}
	pipe := m.client.Pipeline()
	for field, value := range values {
		pipe.ZAddGT(ctx, maxIndexKey, redis.Z{Score: value.InexactFloat64(), Member: field})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("updating field maxima: %w", err)
	}
	return nil
}

// Replace swaps the whole index for freshly computed maxima
func (m *MaxIndex) Replace(ctx context.Context, maxima map[string]decimal.Decimal) error {
	members := make([]redis.Z, 0, len(maxima))
	for field, value := range maxima {
		members = append(members, redis.Z{Score: value.InexactFloat64(), Member: field})
	}

	pipe := m.client.TxPipeline()
	pipe.Del(ctx, maxIndexKey)
	if len(members) > 0 {
		pipe.ZAdd(ctx, maxIndexKey, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replacing field maxima: %w", err)
	}
	m.logger.Info("max index replaced", "fields", len(members))
	return nil
}
