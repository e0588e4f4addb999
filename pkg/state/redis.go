package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vidbatch/vidbatch/pkg/batch"
)

// redisKeyPrefix namespaces batch state records in Redis.
const redisKeyPrefix = "vidbatch:batch:"

// RedisStore persists batch state as a JSON blob per batch key in Redis.
// Useful when several machines take turns at a batch or when state should
// outlive the local filesystem; the record stays human-inspectable via
// redis-cli GET.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisStore creates a Redis-backed store. A zero ttl keeps records until
// deleted; a positive ttl lets abandoned batches expire instead of growing
// unbounded.
func NewRedisStore(client *redis.Client, ttl time.Duration, logger zerolog.Logger) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RedisStore{redis: client, ttl: ttl, logger: logger}, nil
}

func redisKey(batchKey string) string {
	return redisKeyPrefix + batchKey
}

// Load reads the state for a batch key. Returns ErrNotFound if absent.
func (rs *RedisStore) Load(ctx context.Context, batchKey string) (*batch.BatchState, error) {
	data, err := rs.redis.Get(ctx, redisKey(batchKey)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get batch state %s: %w", batchKey, err)
	}

	var st batch.BatchState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse batch state %s: %w", batchKey, err)
	}
	return &st, nil
}

// Save writes the state record. Redis SET is atomic, so a reader never
// observes a partial record.
func (rs *RedisStore) Save(ctx context.Context, st *batch.BatchState) error {
	if st == nil || st.BatchKey == "" {
		return fmt.Errorf("batch state with a batch key is required")
	}

	data, err := json.Marshal(st)
	if err != nil {
		stateSaveErrorsTotal.Inc()
		return fmt.Errorf("marshal batch state %s: %w", st.BatchKey, err)
	}

	if err := rs.redis.Set(ctx, redisKey(st.BatchKey), data, rs.ttl).Err(); err != nil {
		stateSaveErrorsTotal.Inc()
		return fmt.Errorf("store batch state %s in redis: %w", st.BatchKey, err)
	}

	stateSavesTotal.Inc()
	rs.logger.Debug().
		Str("batch_key", st.BatchKey).
		Int("completed", st.CompletedCount()).
		Int("total", len(st.Sources)).
		Msg("Batch state checkpointed")

	return nil
}

// Delete removes the state record for a batch key.
func (rs *RedisStore) Delete(ctx context.Context, batchKey string) error {
	if err := rs.redis.Del(ctx, redisKey(batchKey)).Err(); err != nil {
		return fmt.Errorf("delete batch state %s: %w", batchKey, err)
	}
	return nil
}
