package kv

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("soundvault-kv")

// RedisStore persists records in Redis. Keys carry their "audio:" or
// "project:" prefix verbatim; values are stored without expiry.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an already connected Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get returns the value for key, or (nil, nil) if the key does not exist.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "redis.get",
		trace.WithAttributes(attribute.String("key", key)),
	)
	defer span.End()

	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	return data, nil
}

// Put stores value under key, overwriting any previous value.
func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	ctx, span := tracer.Start(ctx, "redis.put",
		trace.WithAttributes(
			attribute.String("key", key),
			attribute.Int("size_bytes", len(value)),
		),
	)
	defer span.End()

	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "redis.delete",
		trace.WithAttributes(attribute.String("key", key)),
	)
	defer span.End()

	if err := s.client.Del(ctx, key).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}

	return nil
}

// List returns all entries whose key starts with prefix, ordered by key.
// SCAN yields keys in no particular order, so they are sorted before the
// values are fetched to keep the listing deterministic.
func (s *RedisStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	ctx, span := tracer.Start(ctx, "redis.list",
		trace.WithAttributes(attribute.String("prefix", prefix)),
	)
	defer span.End()

	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to scan prefix %s: %w", prefix, err)
	}

	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch values for prefix %s: %w", prefix, err)
	}

	entries := make([]Entry, 0, len(keys))
	for i, v := range values {
		// A key can vanish between SCAN and MGET; skip it.
		str, ok := v.(string)
		if !ok {
			continue
		}
		entries = append(entries, Entry{Key: keys[i], Value: []byte(str)})
	}

	span.SetAttributes(attribute.Int("count", len(entries)))
	return entries, nil
}
