package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis key prefix for per-identity attempt ledgers.
const attemptKeyPrefix = "bio:attempts:"

// RedisStore keeps failure timestamps in a sorted set scored by unix
// nanoseconds. Prune-append-read runs as one MULTI/EXEC transaction so
// concurrent failures across instances still count atomically.
type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) RecordFailure(ctx context.Context, key string, now time.Time, window time.Duration) ([]time.Time, error) {
	rkey := attemptKeyPrefix + key
	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)
	score := float64(now.UnixNano())
	// Members need a unique suffix: two failures in the same nanosecond must
	// both count.
	member := strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString()

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, rkey, "-inf", cutoff)
	pipe.ZAdd(ctx, rkey, redis.Z{Score: score, Member: member})
	read := pipe.ZRangeWithScores(ctx, rkey, 0, -1)
	pipe.Expire(ctx, rkey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("record failure: %w", err)
	}
	return timesFromScores(read.Val()), nil
}

func (s *RedisStore) Failures(ctx context.Context, key string, now time.Time, window time.Duration) ([]time.Time, error) {
	rkey := attemptKeyPrefix + key
	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, rkey, "-inf", cutoff)
	read := pipe.ZRangeWithScores(ctx, rkey, 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("read attempt ledger: %w", err)
	}
	return timesFromScores(read.Val()), nil
}

func (s *RedisStore) Clear(ctx context.Context, key string) (bool, error) {
	removed, err := s.client.Del(ctx, attemptKeyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("clear attempt ledger: %w", err)
	}
	return removed > 0, nil
}

func timesFromScores(zs []redis.Z) []time.Time {
	ts := make([]time.Time, 0, len(zs))
	for _, z := range zs {
		ts = append(ts, time.Unix(0, int64(z.Score)))
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
	return ts
}
