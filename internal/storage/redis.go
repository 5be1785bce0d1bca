package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	logx "newsbot/pkg/logx"
)

const defaultKeyPrefix = "newsbot:"

type redisStore struct {
	client *redis.Client
	prefix string
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for redis driver")
	}
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("redis dsn: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	log.Debug("redis ledger ready", logx.String("addr", opts.Addr), logx.String("prefix", prefix))
	return newRedisStore(client, prefix), nil
}

func newRedisStore(client *redis.Client, prefix string) *redisStore {
	return &redisStore{client: client, prefix: prefix}
}

func (s *redisStore) key(userID string) string {
	return s.prefix + "cooldown:" + userID
}

func (s *redisStore) LastRequest(ctx context.Context, userID string) (time.Time, bool, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	at, err := decodeTime(raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("user %s: %w", userID, err)
	}
	return at, true, nil
}

func (s *redisStore) PutLastRequest(ctx context.Context, userID string, at time.Time) error {
	// no expiry: the entry is the ledger
	return s.client.Set(ctx, s.key(userID), encodeTime(at), 0).Err()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
