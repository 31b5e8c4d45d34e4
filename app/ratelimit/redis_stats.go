package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStatsRecorder keeps cumulative and per-minute admission counters in Redis
type RedisStatsRecorder struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisStatsRecorder(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisStatsRecorder {
	prefix = strings.Trim(prefix, ":")
	if prefix == "" {
		prefix = "ratelimit:stats"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStatsRecorder{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStatsRecorder) Record(ctx context.Context, limiter string, allowed bool, at time.Time) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	if at.IsZero() {
		at = time.Now()
	}

	field := "denied"
	if allowed {
		field = "allowed"
	}

	totalKey := s.prefix + ":" + limiter + ":total"
	bucketKey := fmt.Sprintf("%s:%s:minute:%s", s.prefix, limiter, at.UTC().Format("200601021504"))

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, totalKey, field, 1)
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	pipe.Expire(ctx, bucketKey, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Counters is the allowed/denied pair stored per limiter
type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// Totals returns the cumulative counters of limiter
func (s *RedisStatsRecorder) Totals(ctx context.Context, limiter string) (Counters, error) {
	vals, err := s.rdb.HGetAll(ctx, s.prefix+":"+limiter+":total").Result()
	if err != nil {
		return Counters{}, err
	}
	var c Counters
	if v, ok := vals["allowed"]; ok {
		c.Allowed, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := vals["denied"]; ok {
		c.Denied, _ = strconv.ParseInt(v, 10, 64)
	}
	return c, nil
}
