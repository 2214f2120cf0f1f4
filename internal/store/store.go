package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Checker-Finance/execution-core/internal/execlog"
	"github.com/Checker-Finance/execution-core/pkg/model"
)

// HybridStore is a Redis-first, Postgres-backed audit sink implementing
// execlog.Storage. Redis holds the recent per-execution replay lists;
// Postgres holds the durable, queryable history. Either side may be absent.
type HybridStore struct {
	redis  *redis.Client
	PG     *pgxpool.Pool
	logger *zap.Logger
	ttl    time.Duration
}

// PGPoolConfig tunes the Postgres connection pool.
type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// NewHybrid creates the store. pgURL may be empty for a Redis-only store.
func NewHybrid(redisAddr string, redisDB int, pgURL string, pgPoolConfig PGPoolConfig, ttl time.Duration, logger *zap.Logger) (*HybridStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
		DB:   redisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	var pgPool *pgxpool.Pool
	if pgURL != "" {
		cfg, err := pgxpool.ParseConfig(pgURL)
		if err != nil {
			return nil, fmt.Errorf("invalid pg config: %w", err)
		}
		if pgPoolConfig.MaxConns > 0 {
			cfg.MaxConns = pgPoolConfig.MaxConns
		}
		if pgPoolConfig.MinConns > 0 {
			cfg.MinConns = pgPoolConfig.MinConns
		}
		if pgPoolConfig.MaxConnLifetime > 0 {
			cfg.MaxConnLifetime = pgPoolConfig.MaxConnLifetime
		}
		if pgPoolConfig.MaxConnIdleTime > 0 {
			cfg.MaxConnIdleTime = pgPoolConfig.MaxConnIdleTime
		}
		if pgPoolConfig.HealthCheckPeriod > 0 {
			cfg.HealthCheckPeriod = pgPoolConfig.HealthCheckPeriod
		}
		pgPool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
	}

	return &HybridStore{redis: rdb, PG: pgPool, logger: logger, ttl: ttl}, nil
}

func executionKey(executionID string) string {
	return "execlog:exec:" + executionID
}

// Save appends the entry to the per-execution Redis replay list and inserts
// it into the durable audit table.
func (s *HybridStore) Save(ctx context.Context, entry model.ExecutionLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}

	if s.redis != nil {
		key := executionKey(entry.ExecutionID)
		pipe := s.redis.Pipeline()
		pipe.RPush(ctx, key, data)
		pipe.Expire(ctx, key, s.ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			s.logger.Warn("store.redis.append_failed",
				zap.String("execution_id", entry.ExecutionID),
				zap.Error(err))
		}
	}

	if s.PG == nil {
		return nil
	}

	payload, _ := json.Marshal(entry.Payload)
	_, err = s.PG.Exec(ctx, `
		INSERT INTO audit.execution_log (
			id, execution_id, event_type, platform, user_address,
			user_id, order_id, market_id, payload, error, duration_ms, recorded_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, entry.ID, entry.ExecutionID, string(entry.EventType), entry.Platform, entry.UserAddress,
		entry.UserID, entry.OrderID, entry.MarketID, payload, entry.Error,
		entry.Duration.Milliseconds(), entry.Timestamp)
	if err != nil {
		s.logger.Error("store.pg.insert_log_failed", zap.Error(err))
		return err
	}
	return nil
}

// GetByExecutionID returns the execution's entries in causal (ascending)
// order, preferring the Redis replay list and falling back to Postgres.
func (s *HybridStore) GetByExecutionID(ctx context.Context, executionID string) ([]model.ExecutionLogEntry, error) {
	if s.redis != nil {
		raw, err := s.redis.LRange(ctx, executionKey(executionID), 0, -1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			s.logger.Warn("store.redis.lrange_failed",
				zap.String("execution_id", executionID),
				zap.Error(err))
		}
		if len(raw) > 0 {
			entries := make([]model.ExecutionLogEntry, 0, len(raw))
			for _, item := range raw {
				var e model.ExecutionLogEntry
				if err := json.Unmarshal([]byte(item), &e); err != nil {
					continue
				}
				entries = append(entries, e)
			}
			return entries, nil
		}
	}

	if s.PG == nil {
		return []model.ExecutionLogEntry{}, nil
	}

	rows, err := s.PG.Query(ctx, `
		SELECT id, execution_id, event_type, platform, user_address,
		       user_id, order_id, market_id, payload, error, duration_ms, recorded_at
		FROM audit.execution_log
		WHERE execution_id = $1
		ORDER BY recorded_at ASC;
	`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Query returns durable entries matching the filter, most recent first.
func (s *HybridStore) Query(ctx context.Context, filter execlog.Filter) ([]model.ExecutionLogEntry, error) {
	if s.PG == nil {
		if filter.ExecutionID != "" {
			return s.GetByExecutionID(ctx, filter.ExecutionID)
		}
		return []model.ExecutionLogEntry{}, nil
	}

	query := `
		SELECT id, execution_id, event_type, platform, user_address,
		       user_id, order_id, market_id, payload, error, duration_ms, recorded_at
		FROM audit.execution_log
		WHERE TRUE`
	args := []any{}

	addWhere := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		query += " AND " + column + " = $" + strconv.Itoa(len(args))
	}
	addWhere("execution_id", filter.ExecutionID)
	addWhere("user_address", filter.UserAddress)
	addWhere("platform", filter.Platform)
	addWhere("event_type", string(filter.EventType))
	addWhere("order_id", filter.OrderID)

	query += " ORDER BY recorded_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := s.PG.Query(ctx, query+";", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEntries(rows rowScanner) ([]model.ExecutionLogEntry, error) {
	entries := make([]model.ExecutionLogEntry, 0)
	for rows.Next() {
		var e model.ExecutionLogEntry
		var eventType string
		var payload []byte
		var durationMs int64
		if err := rows.Scan(&e.ID, &e.ExecutionID, &eventType, &e.Platform, &e.UserAddress,
			&e.UserID, &e.OrderID, &e.MarketID, &payload, &e.Error, &durationMs, &e.Timestamp); err != nil {
			return nil, err
		}
		e.EventType = model.EventType(eventType)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &e.Payload)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// HealthCheck pings both backends.
func (s *HybridStore) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if s.PG != nil {
		if err := s.PG.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping failed: %w", err)
		}
	}
	return nil
}

// Close releases both backends.
func (s *HybridStore) Close() error {
	if s.PG != nil {
		s.PG.Close()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
