package runlock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "energy-billing:lock:"

// releaseScript deletes the key only while it still carries our holder token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the TTL only while the key still carries our holder token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker holds leases as SET NX keys with a TTL.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	holder := newHolder()
	ok, err := l.client.SetNX(ctx, redisKeyPrefix+key, holder, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHeld
	}
	return &redisLease{client: l.client, key: key, holder: holder, ttl: l.ttl}, nil
}

type redisLease struct {
	client *redis.Client
	key    string
	holder string
	ttl    time.Duration
}

func (r *redisLease) Key() string { return r.key }

func (r *redisLease) TTL() time.Duration { return r.ttl }

func (r *redisLease) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, r.client, []string{redisKeyPrefix + r.key}, r.holder, r.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLost
	}
	return nil
}

func (r *redisLease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, r.client, []string{redisKeyPrefix + r.key}, r.holder).Err()
}
