package iterator

import (
	"github.com/meridiandb/meridian/pkg/keys"
	"github.com/meridiandb/meridian/pkg/kvs"
	"github.com/meridiandb/meridian/pkg/value"
)

// SourceKind names which `what` target shape produced a Source.
type SourceKind int

const (
	// SourceTable scans every record in a table.
	SourceTable SourceKind = iota
	// SourceID looks up exactly one record id.
	SourceID
	// SourceRange scans a bounded slice of a table's record ids.
	SourceRange
	// SourceMock synthesizes N sequential numeric-id rows with no
	// backing storage, for testing and benchmarking statements in
	// isolation.
	SourceMock
	// SourceValues wraps already-computed values (a subquery result or
	// a literal array) as rows with no record id.
	SourceValues
)

// Row is one candidate visited by a Statement: its record id (absent for
// SourceValues rows) and decoded document value.
type Row struct {
	ID    keys.RecordIDKey // nil for SourceValues rows
	Value value.Value
}

// Source describes one `what` target. Exactly the fields relevant to
// Kind are read.
type Source struct {
	Kind SourceKind

	ID               keys.RecordIDKey // SourceID
	RangeBeg, RangeEnd keys.RecordIDKey // SourceRange, inclusive/exclusive: [Beg, End)
	MockCount        int              // SourceMock
	Values           []value.Value    // SourceValues
}

// Eval resolves a Source into its candidate rows against tx.
func (s Source) Eval(tx *kvs.Transaction, ns, db, tb string) ([]Row, error) {
	switch s.Kind {
	case SourceTable:
		return scanRows(tx, keys.ThingPrefix(ns, db, tb), keys.ThingSuffix(ns, db, tb))

	case SourceID:
		key := keys.Thing(ns, db, tb, s.ID)
		raw, found, err := tx.Get(key)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		v, err := value.Decode(raw)
		if err != nil {
			return nil, err
		}
		return []Row{{ID: s.ID, Value: v}}, nil

	case SourceRange:
		beg := keys.Thing(ns, db, tb, s.RangeBeg)
		end := keys.Thing(ns, db, tb, s.RangeEnd)
		return scanRows(tx, beg, end)

	case SourceMock:
		rows := make([]Row, s.MockCount)
		for i := 0; i < s.MockCount; i++ {
			rows[i] = Row{ID: keys.RecordIDNumber(i), Value: value.NewObject(map[string]value.Value{})}
		}
		return rows, nil

	case SourceValues:
		rows := make([]Row, len(s.Values))
		for i, v := range s.Values {
			rows[i] = Row{Value: v}
		}
		return rows, nil

	default:
		return nil, Error.New("unknown source kind %d", s.Kind)
	}
}

func scanRows(tx *kvs.Transaction, beg, end []byte) ([]Row, error) {
	items, err := tx.Scan(beg, end, 0)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(items))
	for _, it := range items {
		_, _, _, id, err := keys.DecodeThing(it.Key)
		if err != nil {
			return nil, err
		}
		v, err := value.Decode(it.Value)
		if err != nil {
			return nil, err
		}
		rows = append(rows, Row{ID: id, Value: v})
	}
	return rows, nil
}
