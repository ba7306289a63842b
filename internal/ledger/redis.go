package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a ledger backed by a redis instance. Expiry rides on redis key
// TTLs, so Sweep is a no-op and Get never returns an expired entry.
type Redis struct {
	name   string
	ttl    time.Duration
	client *redis.Client
	prefix string
}

// NewRedis creates a redis-backed ledger from a redis URL
func NewRedis(name string, ttl time.Duration, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return &Redis{
		name:   name,
		ttl:    ttl,
		client: redis.NewClient(opts),
		prefix: "notesync:ledger:" + name + ":",
	}, nil
}

// Name identifies the ledger
func (r *Redis) Name() string {
	return r.name
}

// Get returns the recorded timestamp for key
func (r *Redis) Get(ctx context.Context, key string) (time.Time, bool, error) {
	ns, err := r.client.Get(ctx, r.prefix+key).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return time.Unix(0, ns), true, nil
}

// Record creates or refreshes the entry for key, resetting its TTL
func (r *Redis) Record(ctx context.Context, key string, at time.Time) error {
	if err := r.client.Set(ctx, r.prefix+key, at.UnixNano(), r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to record ledger entry: %w", err)
	}
	return nil
}

// Delete removes the entry for key
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete ledger entry: %w", err)
	}
	return nil
}

// Sweep is a no-op; redis expires entries natively
func (r *Redis) Sweep(ctx context.Context) (int, error) {
	return 0, nil
}

// Close releases the redis connection
func (r *Redis) Close() error {
	return r.client.Close()
}
