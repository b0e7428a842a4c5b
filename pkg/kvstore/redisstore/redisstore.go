// Package redisstore implements the remote KV kvstore.Store backend on
// top of github.com/go-redis/redis, the storj teacher's own choice for
// its remote-backed kvstore (private/kvstore/redis).
//
// Redis has no native ordered-key range scan, so List/Range are
// implemented by maintaining a secondary sorted set ("index") of all
// keys alongside the plain string values; ZRANGEBYLEX drives prefix and
// pagination queries.
package redisstore

import (
	"context"

	"github.com/go-redis/redis/v8"

	"github.com/meridiandb/meridian/pkg/kvstore"
)

const indexKey = "\x00meridian:index"

// Store is a redis-backed kvstore.Store.
type Store struct {
	client *redis.Client
}

// New wraps an existing redis client.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Put implements kvstore.Store.
func (s *Store) Put(ctx context.Context, key kvstore.Key, value kvstore.Value) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, string(key), []byte(value), 0)
	pipe.ZAdd(ctx, indexKey, &redis.Z{Score: 0, Member: string(key)})
	_, err := pipe.Exec(ctx)
	return kvstore.Error.Wrap(err)
}

// Get implements kvstore.Store.
func (s *Store) Get(ctx context.Context, key kvstore.Key) (kvstore.Value, error) {
	v, err := s.client.Get(ctx, string(key)).Bytes()
	if err == redis.Nil {
		return nil, kvstore.ErrKeyNotFound
	}
	if err != nil {
		return nil, kvstore.Error.Wrap(err)
	}
	return v, nil
}

// Delete implements kvstore.Store.
func (s *Store) Delete(ctx context.Context, key kvstore.Key) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, string(key))
	pipe.ZRem(ctx, indexKey, string(key))
	_, err := pipe.Exec(ctx)
	return kvstore.Error.Wrap(err)
}

// Range implements kvstore.Store.
func (s *Store) Range(ctx context.Context, fn kvstore.RangeFunc) error {
	members, err := s.client.ZRangeByLex(ctx, indexKey, &redis.ZRangeBy{Min: "-", Max: "+"}).Result()
	if err != nil {
		return kvstore.Error.Wrap(err)
	}
	for _, m := range members {
		v, err := s.Get(ctx, kvstore.Key(m))
		if err == kvstore.ErrKeyNotFound {
			continue // raced with a concurrent delete
		}
		if err != nil {
			return err
		}
		if err := fn(ctx, kvstore.Key(m), v); err != nil {
			return err
		}
	}
	return nil
}

// List implements kvstore.Store.
func (s *Store) List(ctx context.Context, opts kvstore.ListOptions) (kvstore.Items, kvstore.More, error) {
	lexMin := "[" + string(opts.Prefix)
	lexMax := "+"
	if end := kvstore.PrefixSuffix(opts.Prefix); end != nil {
		lexMax = "(" + string(end)
	}
	if opts.After != nil {
		if opts.Reverse {
			lexMax = "(" + string(opts.After)
		} else {
			lexMin = "(" + string(opts.After)
		}
	}

	by := &redis.ZRangeBy{Min: lexMin, Max: lexMax}
	if opts.Limit > 0 {
		by.Offset, by.Count = 0, int64(opts.Limit)+1
	}

	var members []string
	var err error
	if opts.Reverse {
		members, err = s.client.ZRevRangeByLex(ctx, indexKey, &redis.ZRangeBy{Min: lexMin, Max: lexMax, Offset: by.Offset, Count: by.Count}).Result()
	} else {
		members, err = s.client.ZRangeByLex(ctx, indexKey, by).Result()
	}
	if err != nil {
		return nil, false, kvstore.Error.Wrap(err)
	}

	more := kvstore.More(false)
	if opts.Limit > 0 && len(members) > opts.Limit {
		more = true
		members = members[:opts.Limit]
	}

	out := make(kvstore.Items, 0, len(members))
	for _, m := range members {
		v, err := s.Get(ctx, kvstore.Key(m))
		if err != nil {
			if err == kvstore.ErrKeyNotFound {
				continue
			}
			return nil, false, err
		}
		out = append(out, kvstore.Item{Key: kvstore.Key(m), Value: v})
	}
	return out, more, nil
}

// Close implements kvstore.Store.
func (s *Store) Close() error {
	return kvstore.Error.Wrap(s.client.Close())
}
