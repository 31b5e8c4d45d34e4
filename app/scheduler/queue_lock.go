package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// NoopQueueLock always grants the lock; used with a single replica
type NoopQueueLock struct{}

func (NoopQueueLock) TryLock(context.Context) (func(), bool, error) {
	return func() {}, true, nil
}

// releaseScript deletes the key only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisQueueLock is a SET NX PX lock shared by every replica
type RedisQueueLock struct {
	rdb redis.UniversalClient
	key string
	ttl time.Duration
}

func NewRedisQueueLock(rdb redis.UniversalClient, key string, ttl time.Duration) *RedisQueueLock {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisQueueLock{rdb: rdb, key: key, ttl: ttl}
}

func (l *RedisQueueLock) TryLock(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		_ = releaseScript.Run(context.Background(), l.rdb, []string{l.key}, token).Err()
	}
	return release, true, nil
}
