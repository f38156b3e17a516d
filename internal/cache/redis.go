package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
)

const redisKeyPrefix = "songscope:analytics:"

// Redis shares cached analytics between API replicas.
// Each token is one hash with a field per window; the hash expires after the TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

var _ Cache = (*Redis)(nil)

// NewRedis connects to addr.
func NewRedis(addr, password string, db int, ttl time.Duration) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisFromClient(client, ttl)
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl, now: time.Now}
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func redisKey(token string) string {
	return redisKeyPrefix + Key(token)
}

func windowField(window time.Duration) string {
	return window.String()
}

// Get returns a fresh entry for token and window. Stale entries are misses.
func (r *Redis) Get(ctx context.Context, token string, window time.Duration) (model.Analytics, bool, error) {
	data, err := r.client.HGet(ctx, redisKey(token), windowField(window)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Analytics{}, false, nil
		}
		return model.Analytics{}, false, fmt.Errorf("redis hget: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return model.Analytics{}, false, fmt.Errorf("decode cache entry: %w", err)
	}
	if !entry.fresh(r.now(), r.ttl) {
		return model.Analytics{}, false, nil
	}
	return entry.Payload, true, nil
}

// Put stores value for token and window and refreshes the hash expiry.
func (r *Redis) Put(ctx context.Context, token string, window time.Duration, value model.Analytics) error {
	data, err := json.Marshal(Entry{Payload: value, WrittenAt: r.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	key := redisKey(token)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, windowField(window), data)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

// Invalidate deletes the token hash.
func (r *Redis) Invalidate(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, redisKey(token)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
