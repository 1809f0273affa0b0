package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRefreshStore keeps refresh ids in Redis so several replicas share them.
// Values are "<unix expiry>|<subject>" and keys expire with the token.
type RedisRefreshStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisRefreshStore(rdb redis.UniversalClient, prefix string) *RedisRefreshStore {
	return &RedisRefreshStore{rdb: rdb, prefix: prefix + "refresh:"}
}

func (s *RedisRefreshStore) Save(ctx context.Context, id, subject string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	value := strconv.FormatInt(expiresAt.Unix(), 10) + "|" + subject
	if err := s.rdb.Set(ctx, s.prefix+id, value, ttl).Err(); err != nil {
		return fmt.Errorf("saving refresh id: %w", err)
	}
	return nil
}

func (s *RedisRefreshStore) Consume(ctx context.Context, id, subject string, now time.Time) (bool, error) {
	value, err := s.rdb.GetDel(ctx, s.prefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consuming refresh id: %w", err)
	}

	expiry, stored, ok := strings.Cut(value, "|")
	if !ok || stored != subject {
		return false, nil
	}
	unix, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil {
		return false, nil
	}
	return time.Unix(unix, 0).After(now), nil
}
