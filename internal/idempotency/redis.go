package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect accepts either a redis:// URL or a bare host:port.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Redis shares reservations across API replicas.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, prefix: "idem:", ttl: ttl}
}

func (s *Redis) Begin(ctx context.Context, key string) (string, error) {
	k := s.prefix + key
	ok, err := s.client.SetNX(ctx, k, pending, s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return "", nil
	}
	v, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; the other request is treated as live
		return "", ErrInProgress
	}
	if err != nil {
		return "", fmt.Errorf("read idempotency key: %w", err)
	}
	if v == pending {
		return "", ErrInProgress
	}
	return v, nil
}

func (s *Redis) Commit(ctx context.Context, key, resultID string) error {
	return s.client.Set(ctx, s.prefix+key, resultID, s.ttl).Err()
}

func (s *Redis) Abort(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
