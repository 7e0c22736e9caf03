package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one hash per kind so a whole kind can be marked stale
// without scanning the keyspace.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{rdb: rdb, prefix: opts.KeyPrefix, ttl: opts.TTL}, nil
}

func (s *RedisStore) hashKey(kind Kind) string {
	return s.prefix + string(kind)
}

func (s *RedisStore) Get(ctx context.Context, key Key) (*Entry, error) {
	raw, err := s.rdb.HGet(ctx, s.hashKey(key.Kind), key.Params).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis hget %s: %w", key, err)
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode entry %s: %w", key, err)
	}
	return &e, nil
}

func (s *RedisStore) Set(ctx context.Context, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", e.Key, err)
	}

	hk := s.hashKey(e.Key.Kind)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, hk, e.Key.Params, raw)
		if s.ttl > 0 {
			pipe.Expire(ctx, hk, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis hset %s: %w", e.Key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := s.rdb.HDel(ctx, s.hashKey(key.Kind), key.Params).Err(); err != nil {
		return fmt.Errorf("redis hdel %s: %w", key, err)
	}
	return nil
}

const markStaleAttempts = 5

// MarkStale rewrites the kind's hash under WATCH so a Set racing the scan
// is retried instead of overwritten.
func (s *RedisStore) MarkStale(ctx context.Context, kind Kind) (int, error) {
	hk := s.hashKey(kind)

	var marked int
	mark := func(tx *redis.Tx) error {
		all, err := tx.HGetAll(ctx, hk).Result()
		if err != nil {
			return fmt.Errorf("redis hgetall %s: %w", kind, err)
		}

		set, drop, err := staleFields(all)
		if err != nil {
			return err
		}
		marked = len(set)
		if len(set) == 0 && len(drop) == 0 {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(set) > 0 {
				pipe.HSet(ctx, hk, set)
			}
			if len(drop) > 0 {
				pipe.HDel(ctx, hk, drop...)
			}
			return nil
		})
		return err
	}

	for i := 0; i < markStaleAttempts; i++ {
		err := s.rdb.Watch(ctx, mark, hk)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("redis mark stale %s: %w", kind, err)
		}
		return marked, nil
	}
	return 0, fmt.Errorf("redis mark stale %s: %w", kind, redis.TxFailedErr)
}

// staleFields returns the re-encoded entries to set stale and the fields
// that no longer decode.
func staleFields(all map[string]string) (map[string]any, []string, error) {
	set := make(map[string]any, len(all))
	var drop []string
	for field, raw := range all {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			drop = append(drop, field)
			continue
		}
		if e.Stale {
			continue
		}
		e.Stale = true
		enc, err := json.Marshal(e)
		if err != nil {
			return nil, nil, fmt.Errorf("encode entry %s: %w", e.Key, err)
		}
		set[field] = enc
	}
	return set, drop, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
