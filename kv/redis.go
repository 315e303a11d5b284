package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSpace stores client values as plain Redis strings under
// "<prefix>:<clientID>:<key>".
//
//	Performance: 1 Redis command per read (MGET for multi-key reads), 1 MULTI/EXEC per
//	write, WATCH plus MULTI/EXEC for DeleteIf.
type RedisSpace struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisSpace creates a [RedisSpace]. A non-positive ttl keeps values until deleted.
func NewRedisSpace(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisSpace {
	if prefix == "" {
		prefix = "sf"
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisSpace{
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// For returns the medium of clientID.
func (s *RedisSpace) For(clientID string) Medium {
	return &redisMedium{space: s, clientID: clientID}
}

type redisMedium struct {
	space    *RedisSpace
	clientID string
}

func (m *redisMedium) key(k string) string {
	return m.space.prefix + ":" + m.clientID + ":" + k
}

func (m *redisMedium) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := m.space.redis.Get(ctx, m.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v, true, nil
}

func (m *redisMedium) keys(keys []string) []string {
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, m.key(k))
	}
	return full
}

func (m *redisMedium) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	vals, err := m.space.redis.MGet(ctx, m.keys(keys)...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	for i, v := range vals {
		if str, ok := v.(string); ok {
			out[keys[i]] = str
		}
	}
	return out, nil
}

func (m *redisMedium) SetMany(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	_, err := m.space.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, m.key(k), v, m.space.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (m *redisMedium) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := m.space.redis.Del(ctx, m.keys(keys)...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// DeleteIf watches keys, compares them with seen and deletes them in one transaction.
// A concurrent write to any watched key leaves everything in place.
func (m *redisMedium) DeleteIf(ctx context.Context, seen map[string]string, keys ...string) (bool, error) {
	if len(keys) == 0 {
		return false, nil
	}
	full := m.keys(keys)
	deleted := false
	err := m.space.redis.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.MGet(ctx, full...).Result()
		if err != nil {
			return err
		}
		for i, k := range keys {
			want, had := seen[k]
			got, has := vals[i].(string)
			if had != has || got != want {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, full...)
			return nil
		})
		if err == nil {
			deleted = true
		}
		return err
	}, full...)
	switch {
	case err == nil:
		return deleted, nil
	case errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func (m *redisMedium) Take(ctx context.Context, key string) (string, bool, error) {
	v, err := m.space.redis.GetDel(ctx, m.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v, true, nil
}
