package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one sorted set per key, scored by request time in milliseconds,
// so the window is shared by every replica.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix + "ratelimit:"}
}

func (s *RedisStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (Decision, error) {
	k := s.prefix + key
	nowMs := now.UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	var card *redis.IntCmd
	var oldest *redis.ZSliceCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(nowMs-window.Milliseconds(), 10))
		pipe.ZAdd(ctx, k, redis.Z{Score: float64(nowMs), Member: member})
		card = pipe.ZCard(ctx, k)
		oldest = pipe.ZRangeWithScores(ctx, k, 0, 0)
		pipe.PExpire(ctx, k, window)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit window %s: %w", key, err)
	}

	count := int(card.Val())
	if count <= limit {
		return Decision{Allowed: true, Remaining: limit - count}, nil
	}

	if err := s.rdb.ZRem(ctx, k, member).Err(); err != nil {
		return Decision{}, fmt.Errorf("rate limit window %s: %w", key, err)
	}

	retry := window
	if zs := oldest.Val(); len(zs) > 0 {
		retry = time.UnixMilli(int64(zs[0].Score)).Add(window).Sub(now)
	}
	return Decision{RetryAfter: retry}, nil
}
