package lock

import (
	"context"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseScript deletes the lock only if it still carries the caller's token
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// Redis is a Locker shared by every engine instance using the same Redis database.
type Redis struct {
	client  *redis.Client
	timeout time.Duration
	ttl     time.Duration
	retry   time.Duration
	token   func() string
}

type RedisOption func(*Redis)

// WithRetryInterval sets how long to wait between SET NX attempts
func WithRetryInterval(d time.Duration) RedisOption {
	return func(r *Redis) { r.retry = d }
}

// WithTokenSource replaces the random lock token generator
func WithTokenSource(fn func() string) RedisOption {
	return func(r *Redis) { r.token = fn }
}

// NewRedis returns a Locker storing lock:<key> entries that expire after ttl.
func NewRedis(client *redis.Client, timeout, ttl time.Duration, opts ...RedisOption) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	r := &Redis{
		client:  client,
		timeout: timeout,
		ttl:     ttl,
		retry:   25 * time.Millisecond,
		token:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (l *Redis) Acquire(ctx context.Context, keys ...string) (func(), error) {
	return acquireAll(ctx, l.timeout, keys, l.acquireOne)
}

func (l *Redis) acquireOne(ctx context.Context, key string) (func(), error) {
	name := "lock:" + key
	token := l.token()

	for {
		ok, err := l.client.SetNX(ctx, name, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() { l.release(name, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

func (l *Redis) release(name, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := l.client.Eval(ctx, releaseScript, []string{name}, token).Int64()
	if err != nil {
		log.Printf("[LOCK] Failed to release %s: %v", name, err)
		return
	}
	if n == 0 {
		log.Printf("[LOCK] %s expired before release", name)
	}
}
