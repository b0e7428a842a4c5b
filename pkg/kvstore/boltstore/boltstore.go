// Package boltstore implements the embedded file kvstore.Store backend
// on top of github.com/boltdb/bolt, the storj teacher's own choice for
// its file-backed kvstore (private/kvstore/boltdb).
package boltstore

import (
	"context"

	"github.com/boltdb/bolt"

	"github.com/meridiandb/meridian/pkg/kvstore"
)

// Store is a bolt-backed kvstore.Store. All data lives in a single
// bucket inside one bolt database file.
type Store struct {
	db     *bolt.DB
	bucket []byte
}

// New opens (creating if necessary) a bolt database at path and ensures
// bucket exists.
func New(path, bucket string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, kvstore.Error.Wrap(err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, kvstore.Error.Wrap(err)
	}
	return &Store{db: db, bucket: []byte(bucket)}, nil
}

// Put implements kvstore.Store.
func (s *Store) Put(_ context.Context, key kvstore.Key, value kvstore.Value) error {
	return kvstore.Error.Wrap(s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put(key, value)
	}))
}

// Get implements kvstore.Store.
func (s *Store) Get(_ context.Context, key kvstore.Key) (kvstore.Value, error) {
	var out kvstore.Value
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get(key)
		if v == nil {
			return kvstore.ErrKeyNotFound
		}
		out = append(kvstore.Value{}, v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete implements kvstore.Store.
func (s *Store) Delete(_ context.Context, key kvstore.Key) error {
	return kvstore.Error.Wrap(s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete(key)
	}))
}

// Range implements kvstore.Store.
func (s *Store) Range(ctx context.Context, fn kvstore.RangeFunc) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := fn(ctx, append(kvstore.Key{}, k...), append(kvstore.Value{}, v...)); err != nil {
				return err
			}
		}
		return nil
	})
}

// List implements kvstore.Store.
func (s *Store) List(_ context.Context, opts kvstore.ListOptions) (kvstore.Items, kvstore.More, error) {
	var out kvstore.Items
	more := kvstore.More(false)
	end := kvstore.PrefixSuffix(opts.Prefix)

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()

		var k, v []byte
		if opts.Reverse {
			// Position at the end of the prefix range and walk backward.
			if end != nil {
				k, v = c.Seek(end)
				if k == nil {
					k, v = c.Last()
				} else {
					k, v = c.Prev()
				}
			} else {
				k, v = c.Last()
			}
			for ; k != nil; k, v = c.Prev() {
				if !kvstore.Prefixed(k, opts.Prefix) {
					if string(k) < string(opts.Prefix) {
						break
					}
					continue
				}
				if opts.After != nil && !(string(k) < string(opts.After)) {
					continue
				}
				out = append(out, kvstore.Item{Key: append(kvstore.Key{}, k...), Value: append(kvstore.Value{}, v...)})
				if opts.Limit > 0 && len(out) > opts.Limit {
					more = true
					out = out[:opts.Limit]
					return nil
				}
			}
			return nil
		}

		for k, v = c.Seek(opts.Prefix); k != nil; k, v = c.Next() {
			if !kvstore.Prefixed(k, opts.Prefix) {
				break
			}
			if end != nil && !(string(k) < string(end)) {
				break
			}
			if opts.After != nil && !(string(opts.After) < string(k)) {
				continue
			}
			out = append(out, kvstore.Item{Key: append(kvstore.Key{}, k...), Value: append(kvstore.Value{}, v...)})
			if opts.Limit > 0 && len(out) > opts.Limit {
				more = true
				out = out[:opts.Limit]
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, kvstore.Error.Wrap(err)
	}
	return out, more, nil
}

// Close implements kvstore.Store.
func (s *Store) Close() error {
	return kvstore.Error.Wrap(s.db.Close())
}
