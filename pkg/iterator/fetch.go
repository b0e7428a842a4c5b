package iterator

import (
	"github.com/meridiandb/meridian/pkg/keys"
	"github.com/meridiandb/meridian/pkg/kvs"
	"github.com/meridiandb/meridian/pkg/value"
)

// fetchPath resolves every top-level RecordID (or array of RecordID)
// value at path into the full record it references, within ns/db (the
// statement's own scope — a FETCH never crosses namespace/database).
// A reference to a record that no longer exists resolves to None
// rather than failing the whole statement.
func fetchPath(tx *kvs.Transaction, ns, db string, results []value.Value, path string) error {
	for i, v := range results {
		if v.Kind != value.KindObject {
			continue
		}
		ref, ok := v.Object[path]
		if !ok {
			continue
		}
		resolved, err := resolveRef(tx, ns, db, ref)
		if err != nil {
			return err
		}
		obj := make(map[string]value.Value, len(v.Object))
		for k, vv := range v.Object {
			obj[k] = vv
		}
		obj[path] = resolved
		results[i] = value.NewObject(obj)
	}
	return nil
}

func resolveRef(tx *kvs.Transaction, ns, db string, v value.Value) (value.Value, error) {
	switch v.Kind {
	case value.KindRecordID:
		return fetchRecord(tx, ns, db, v.RecordID)
	case value.KindArray:
		out := make([]value.Value, len(v.Array))
		for i, el := range v.Array {
			r, err := resolveRef(tx, ns, db, el)
			if err != nil {
				return value.None, err
			}
			out[i] = r
		}
		return value.NewArray(out...), nil
	default:
		return v, nil
	}
}

func fetchRecord(tx *kvs.Transaction, ns, db string, rid *value.RecordID) (value.Value, error) {
	if rid == nil {
		return value.None, nil
	}
	// Only the String key shape is resolvable here: value.RecordID.Key
	// is an untyped interface{} with no guaranteed RecordIDKey encoder
	// (the non-goal query layer is what would normally carry the typed
	// form through). Number/Uuid/Array/Object-keyed references are left
	// unresolved (returned as-is) rather than guessed at.
	s, ok := rid.Key.(string)
	if !ok {
		return value.Value{Kind: value.KindRecordID, RecordID: rid}, nil
	}
	raw, found, err := tx.Get(keys.Thing(ns, db, rid.Table, keys.RecordIDString(s)))
	if err != nil {
		return value.None, err
	}
	if !found {
		return value.None, nil
	}
	return value.Decode(raw)
}
