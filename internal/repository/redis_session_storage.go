package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix はセッションストレージのハッシュキー接頭辞。
// キー形式: gamstore:session:<sid>
const redisKeyPrefix = "gamstore:session:"

// RedisSessionStorage はRedisハッシュを使用したセッションストレージ。
// sidごとに1つのハッシュを持ち、書き込みのたびにTTLを延長する。
type RedisSessionStorage struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStorage はRedisSessionStorageを生成する。
func NewRedisSessionStorage(client *redis.Client, ttl time.Duration) *RedisSessionStorage {
	return &RedisSessionStorage{client: client, ttl: ttl}
}

// GetMany は指定キーの値をHMGETで取得する。
func (r *RedisSessionStorage) GetMany(ctx context.Context, sid string, keys ...string) (map[string]string, error) {
	if sid == "" {
		return nil, ErrEmptySessionID
	}
	values := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return values, nil
	}

	got, err := r.client.HMGet(ctx, redisKey(sid), keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hmget: %w", err)
	}
	for i, v := range got {
		if s, ok := v.(string); ok {
			values[keys[i]] = s
		}
	}
	return values, nil
}

// SetMany はHSETとEXPIREをMULTI/EXECでまとめて実行する。
func (r *RedisSessionStorage) SetMany(ctx context.Context, sid string, values map[string]string) error {
	if sid == "" {
		return ErrEmptySessionID
	}
	if len(values) == 0 {
		return nil
	}

	key := redisKey(sid)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

// Remove は指定キーをHDELで削除する。
func (r *RedisSessionStorage) Remove(ctx context.Context, sid string, keys ...string) error {
	if sid == "" {
		return ErrEmptySessionID
	}
	if len(keys) == 0 {
		return nil
	}

	if err := r.client.HDel(ctx, redisKey(sid), keys...).Err(); err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}

func redisKey(sid string) string {
	return redisKeyPrefix + sid
}

var _ SessionStorage = (*RedisSessionStorage)(nil)
