// Package btree implements the generic scalar index family: no
// separate tree data structure is kept in memory or on disk — the
// index *is* a run of ordered kvstore keys,
// the same way pkg/keys lays out every other category. Key shape:
// non-unique indexes encode {field values}{record id} so duplicates
// coexist; unique indexes encode {field values} alone and store the
// record id in the value, so a colliding insert fails the underlying
// conditional put.
package btree

import (
	"encoding/binary"
	"math"

	"github.com/meridiandb/meridian/pkg/catalog"
	"github.com/meridiandb/meridian/pkg/iterator"
	"github.com/meridiandb/meridian/pkg/keys"
	"github.com/meridiandb/meridian/pkg/kvs"
	"github.com/meridiandb/meridian/pkg/kvstore"
	"github.com/meridiandb/meridian/pkg/value"
)

// Error is the btree index package's error class.
var Error = kvstore.Error

// ErrUniqueViolation is returned by Put when a unique index's key
// already maps to a different record.
var ErrUniqueViolation = Error.New("unique index violation")

// encodeFieldValue appends an order-preserving encoding of v, reusing
// pkg/keys.RecordIDKey's bias-shift/NUL-termination techniques so
// composite index keys stay lexically ordered the same way the scalar
// types they carry are ordered.
func encodeFieldValue(buf []byte, v value.Value) []byte {
	switch v.Kind {
	case value.KindInt:
		buf = append(buf, 1)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v.Int)^0x8000000000000000)
		return append(buf, b[:]...)
	case value.KindFloat:
		buf = append(buf, 2)
		bits := math.Float64bits(v.Float)
		if v.Float >= 0 {
			bits ^= 0x8000000000000000
		} else {
			bits = ^bits
		}
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], bits)
		return append(buf, b[:]...)
	case value.KindString:
		buf = append(buf, 3)
		buf = append(buf, v.String...)
		return append(buf, 0)
	case value.KindBool:
		buf = append(buf, 4)
		if v.Bool {
			return append(buf, 1)
		}
		return append(buf, 0)
	default:
		// Fallback for variants with no order-preserving need here
		// (Array/Object/etc. are not indexable scalar field types).
		b, _ := value.Encode(v)
		buf = append(buf, 0)
		return append(buf, b...)
	}
}

func compositeKey(ns, db, tb string, ix *catalog.IndexDefinition, fields []value.Value) []byte {
	buf := keys.IndexDataPrefix(ns, db, tb, ix.ID)
	for _, v := range fields {
		buf = encodeFieldValue(buf, v)
	}
	return buf
}

func fieldValues(ix *catalog.IndexDefinition, doc value.Value) []value.Value {
	out := make([]value.Value, len(ix.Fields))
	for i, f := range ix.Fields {
		out[i] = doc.Pick(f)
	}
	return out
}

// Put inserts (or, for an update, moves) this record's entry. When
// before is not None, its prior entry is removed first so the index
// never carries a stale key for this record.
func Put(tx *kvs.Transaction, ns, db, tb string, ix *catalog.IndexDefinition, id keys.RecordIDKey, before, after value.Value) error {
	if !before.IsNone() {
		if err := Remove(tx, ns, db, tb, ix, id, before); err != nil {
			return err
		}
	}
	key := compositeKey(ns, db, tb, ix, fieldValues(ix, after))
	if ix.Unique {
		// createOnly's Commit-time check guards against a concurrent
		// transaction racing this same key; this Get catches the
		// common case (a duplicate insert within one transaction)
		// immediately rather than deferring it to Commit.
		existing, found, err := tx.Get(key)
		if err != nil {
			return err
		}
		if found {
			existingID, err := keys.DecodeRecordIDKey(existing)
			if err != nil {
				return err
			}
			if string(existingID.Encode()) != string(id.Encode()) {
				return ErrUniqueViolation
			}
		}
		// An update that keeps the same indexed value rewrites this
		// record's own committed key, so that write is not create-only.
		createOnly := before.IsNone() || string(compositeKey(ns, db, tb, ix, fieldValues(ix, before))) != string(key)
		if err := tx.Put(key, id.Encode(), createOnly); err != nil {
			if err == kvs.ErrKeyExists {
				return ErrUniqueViolation
			}
			return err
		}
		return nil
	}
	key = append(key, id.Encode()...)
	return tx.Put(key, nil, false)
}

// Remove deletes this record's entry, computed from its pre-image.
func Remove(tx *kvs.Transaction, ns, db, tb string, ix *catalog.IndexDefinition, id keys.RecordIDKey, before value.Value) error {
	if before.IsNone() {
		return nil
	}
	key := compositeKey(ns, db, tb, ix, fieldValues(ix, before))
	if ix.Unique {
		return tx.Del(key)
	}
	return tx.Del(append(key, id.Encode()...))
}

// EqLookup resolves an equality WHERE clause against an index to the
// matching record ids, implementing pkg/iterator.IndexContext so the
// planner can swap a table scan for this lookup.
type EqLookup struct {
	NS, DB, TB string
	Index      *catalog.IndexDefinition
	Values     []value.Value
}

// Candidates implements iterator.IndexContext.
func (l EqLookup) Candidates(tx *kvs.Transaction) ([]iterator.IndexCandidate, error) {
	prefix := compositeKey(l.NS, l.DB, l.TB, l.Index, l.Values)
	end := append(append([]byte{}, prefix...), 0xff)
	items, err := tx.Scan(prefix, end, 0)
	if err != nil {
		return nil, err
	}
	out := make([]iterator.IndexCandidate, 0, len(items))
	for _, it := range items {
		if l.Index.Unique {
			id, err := keys.DecodeRecordIDKey(it.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, iterator.IndexCandidate{ID: id})
			continue
		}
		id, err := keys.DecodeRecordIDKey(it.Key[len(prefix):])
		if err != nil {
			return nil, err
		}
		out = append(out, iterator.IndexCandidate{ID: id})
	}
	return out, nil
}
