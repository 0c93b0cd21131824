// shopstate/kvstore/redis_kvstore.go

package kvstore

import (
	"context"
	"time"

	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const defaultInitAttempts = 30

// RedisKVStore is a key-value store backed by Redis.
type RedisKVStore struct {
	client       *redis.Client
	log          logrus.FieldLogger
	initAttempts int
	maxBackoff   time.Duration
}

// NewRedisKVStore accepts a Redis connection string ("redis://..." or "hostname:port") and returns a store instance.
func NewRedisKVStore(redisAddr string, log logrus.FieldLogger) *RedisKVStore {
	if log == nil {
		log = logrus.StandardLogger()
	}

	opts, err := redis.ParseURL(redisAddr)
	if err != nil {
		// Not in "redis://..." format, use it as a plain Addr.
		opts = &redis.Options{
			Addr:         redisAddr,
			MinIdleConns: 1,
			MaxRetries:   3,
			DialTimeout:  30 * time.Second,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			PoolSize:     10,
			PoolTimeout:  4 * time.Second,
			IdleTimeout:  180 * time.Second,
		}
	}

	client := redis.NewClient(opts)
	client.AddHook(redisotel.NewTracingHook())

	return &RedisKVStore{
		client:       client,
		log:          log.WithField("store", "redis"),
		initAttempts: defaultInitAttempts,
		maxBackoff:   30 * time.Second,
	}
}

// WithInitAttempts overrides how many pings Initialize makes before giving up.
func (r *RedisKVStore) WithInitAttempts(n int, maxBackoff time.Duration) *RedisKVStore {
	if n > 0 {
		r.initAttempts = n
	}
	if maxBackoff > 0 {
		r.maxBackoff = maxBackoff
	}
	return r
}

// Initialize checks the Redis connection, retrying with exponential backoff.
func (r *RedisKVStore) Initialize(ctx context.Context) error {
	r.log.Info("RedisKVStore: initializing connection...")

	for i := 0; i < r.initAttempts; i++ {
		r.log.Debugf("RedisKVStore: attempting Ping (attempt %d/%d)...", i+1, r.initAttempts)
		if r.Ping(ctx) {
			r.log.Infof("RedisKVStore: Ping successful on attempt %d", i+1)
			return nil
		}
		if i == r.initAttempts-1 {
			break
		}

		backoff := time.Duration(1000*(1<<uint(i))) * time.Millisecond
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
		r.log.Infof("RedisKVStore: waiting %v before next attempt", backoff)

		select {
		case <-ctx.Done():
			r.log.WithError(ctx.Err()).Warn("RedisKVStore: context cancelled during backoff")
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return errors.Wrapf(ErrUnavailable, "failed to connect to Redis after %d attempts", r.initAttempts)
}

// Get reads a string value.
func (r *RedisKVStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, NewStorageAccessError("get", key, err)
	}
	return val, true, nil
}

// Set writes a string value without expiry.
func (r *RedisKVStore) Set(ctx context.Context, key, value string) error {
	r.log.WithField("key", key).Debug("RedisKVStore: Set")
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return NewStorageAccessError("set", key, err)
	}
	return nil
}

// Remove deletes key.
func (r *RedisKVStore) Remove(ctx context.Context, key string) error {
	r.log.WithField("key", key).Debug("RedisKVStore: Remove")
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return NewStorageAccessError("remove", key, err)
	}
	return nil
}

// Ping checks if Redis is alive.
func (r *RedisKVStore) Ping(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.client.Ping(pingCtx).Result(); err != nil {
		r.log.WithError(err).Warn("RedisKVStore: Ping failed")
		return false
	}
	return true
}

// Close releases the underlying connection pool.
func (r *RedisKVStore) Close() error {
	return r.client.Close()
}
