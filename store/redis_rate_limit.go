package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/tweetbridge/tweetbridge/model"
)

// RedisRateLimitStore is an alternative RateLimitStore backed by redis. The
// key TTL is set to the record's reset time, so expired records disappear on
// their own instead of needing the lazy cleanup the sql store relies on.
type RedisRateLimitStore struct {
	inner     *redis.Client
	keyParser redisKeyParser
}

func GetRedisRateLimitStore() (*RedisRateLimitStore, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT")),
		Password: os.Getenv("REDIS_PASSWD"),
		DB:       0, // use default DB
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		return nil, err
	}
	return &RedisRateLimitStore{
		inner:     redisClient,
		keyParser: redisKeyParser{delimiter: "__"},
	}, nil
}

type redisKeyParser struct {
	delimiter string
}

func (r redisKeyParser) validateId(id string) bool {
	return !strings.Contains(id, r.delimiter)
}

func (r redisKeyParser) encodeRateLimitKey(ownerId string, endpoint string) (string, error) {
	if !r.validateId(ownerId) || !r.validateId(endpoint) {
		return "", fmt.Errorf("invalid ownerId or endpoint: %s, %s", ownerId, endpoint)
	}
	return fmt.Sprintf("ratelimit%s%s%s%s", r.delimiter, ownerId, r.delimiter, endpoint), nil
}

func (s *RedisRateLimitStore) GetRateLimit(ctx context.Context, ownerId string, endpoint string) (*model.RateLimitRecord, error) {
	key, err := s.keyParser.encodeRateLimitKey(ownerId, endpoint)
	if err != nil {
		return nil, err
	}
	raw, err := s.inner.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record model.RateLimitRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *RedisRateLimitStore) UpsertRateLimit(ctx context.Context, record *model.RateLimitRecord) error {
	key, err := s.keyParser.encodeRateLimitKey(record.OwnerId, record.Endpoint)
	if err != nil {
		return err
	}
	bytes, err := json.Marshal(record)
	if err != nil {
		return err
	}
	ttl := time.Until(record.ResetAt)
	if ttl <= 0 {
		// Already expired, nothing worth storing.
		return nil
	}
	return s.inner.Set(ctx, key, bytes, ttl).Err()
}

func (s *RedisRateLimitStore) DeleteRateLimit(ctx context.Context, ownerId string, endpoint string) error {
	key, err := s.keyParser.encodeRateLimitKey(ownerId, endpoint)
	if err != nil {
		return err
	}
	return s.inner.Del(ctx, key).Err()
}
