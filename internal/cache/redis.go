package cache

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store backed by a shared redis instance, for deployments with
// more than one replica. Failures degrade to cache misses and allowed rate
// decisions are never blocked on redis being up; the limiter here protects
// upstream services, it is not an availability gate.
type Redis struct {
	client *redis.Client
	logger *log.Logger
}

// NewRedis connects to redis and verifies the connection with a ping.
func NewRedis(ctx context.Context, addr, password string, db int, logger *log.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Redis{client: client, logger: logger}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Printf("redis get %s: %v", key, err)
		}
		return nil, false
	}
	return b, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.logger.Printf("redis set %s: %v", key, err)
	}
}

func (r *Redis) Delete(ctx context.Context, key string) {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logger.Printf("redis del %s: %v", key, err)
	}
}

func (r *Redis) RateLimit(ctx context.Context, key string, max int, window time.Duration) Decision {
	if max <= 0 {
		return Decision{OK: false, Remaining: 0}
	}

	rlKey := "rl:" + key
	count, err := r.client.Get(ctx, rlKey).Int()
	if err != nil && err != redis.Nil {
		r.logger.Printf("redis ratelimit get %s: %v", key, err)
		return Decision{OK: true, Remaining: max - 1}
	}
	if count >= max {
		return Decision{OK: false, Remaining: 0}
	}

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, rlKey)
	// SetNX only applies on the first call of a window so the expiry marks
	// the window start, not the last call.
	pipe.ExpireNX(ctx, rlKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Printf("redis ratelimit incr %s: %v", key, err)
		return Decision{OK: true, Remaining: max - 1}
	}

	n := int(incr.Val())
	if n > max {
		return Decision{OK: false, Remaining: 0}
	}
	return Decision{OK: true, Remaining: max - n}
}
