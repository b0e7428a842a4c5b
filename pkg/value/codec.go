package value

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// wireRevision is the current envelope revision. Bumping it only ever
// happens alongside a reader change that still accepts every prior
// revision by filling in defaults for fields absent in the old wire
// shape.
const wireRevision = 1

// wireValue is the on-the-wire shape of a Value, msgpack-tagged so field
// order in the struct doesn't matter for compatibility and the Decimal/
// Duration/Datetime/UUID fields round-trip exactly.
type wireValue struct {
	Revision uint8             `msgpack:"rev"`
	Kind     Kind              `msgpack:"k"`
	Bool     bool              `msgpack:"b,omitempty"`
	Int      int64             `msgpack:"i,omitempty"`
	Float    float64           `msgpack:"f,omitempty"`
	Decimal  string            `msgpack:"d,omitempty"`
	String   string            `msgpack:"s,omitempty"`
	Bytes    []byte            `msgpack:"y,omitempty"`
	Duration int64             `msgpack:"du,omitempty"` // nanoseconds
	Datetime int64             `msgpack:"dt,omitempty"` // unix nanos
	UUID     []byte            `msgpack:"u,omitempty"`
	Array    []wireValue       `msgpack:"a,omitempty"`
	Object   map[string]wireValue `msgpack:"o,omitempty"`
	RecTable string            `msgpack:"rt,omitempty"`
	RecKey   string            `msgpack:"rk,omitempty"`
}

func toWire(v Value) wireValue {
	w := wireValue{Revision: wireRevision, Kind: v.Kind}
	switch v.Kind {
	case KindBool:
		w.Bool = v.Bool
	case KindInt:
		w.Int = v.Int
	case KindFloat:
		w.Float = v.Float
	case KindDecimal:
		w.Decimal = v.Decimal
	case KindString:
		w.String = v.String
	case KindBytes:
		w.Bytes = v.Bytes
	case KindDuration:
		w.Duration = int64(v.Duration)
	case KindDatetime:
		w.Datetime = v.Datetime.UnixNano()
	case KindUUID:
		w.UUID = v.UUID[:]
	case KindArray, KindSet:
		w.Array = make([]wireValue, len(v.Array))
		for i, el := range v.Array {
			w.Array[i] = toWire(el)
		}
	case KindObject:
		w.Object = make(map[string]wireValue, len(v.Object))
		for k, el := range v.Object {
			w.Object[k] = toWire(el)
		}
	case KindRecordID:
		if v.RecordID != nil {
			w.RecTable = v.RecordID.Table
			w.RecKey = asString(v.RecordID.Key)
		}
	}
	return w
}

func fromWire(w wireValue) Value {
	// Readers tolerate older revisions by filling defaults: any field
	// absent from an older wire shape simply decodes to its Go zero
	// value, which already matches this Value's default for that kind.
	v := Value{Kind: w.Kind}
	switch w.Kind {
	case KindBool:
		v.Bool = w.Bool
	case KindInt:
		v.Int = w.Int
	case KindFloat:
		v.Float = w.Float
	case KindDecimal:
		v.Decimal = w.Decimal
	case KindString:
		v.String = w.String
	case KindBytes:
		v.Bytes = w.Bytes
	case KindDuration:
		v.Duration = time.Duration(w.Duration)
	case KindDatetime:
		v.Datetime = time.Unix(0, w.Datetime).UTC()
	case KindUUID:
		if len(w.UUID) == 16 {
			copy(v.UUID[:], w.UUID)
		}
	case KindArray, KindSet:
		v.Array = make([]Value, len(w.Array))
		for i, el := range w.Array {
			v.Array[i] = fromWire(el)
		}
	case KindObject:
		v.Object = make(map[string]Value, len(w.Object))
		for k, el := range w.Object {
			v.Object[k] = fromWire(el)
		}
	case KindRecordID:
		if w.RecTable != "" {
			v.RecordID = &RecordID{Table: w.RecTable, Key: w.RecKey}
		}
	}
	return v
}

// Encode serializes v to its revisioned msgpack wire form.
func Encode(v Value) ([]byte, error) {
	b, err := msgpack.Marshal(toWire(v))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return b, nil
}

// Decode reverses Encode, tolerating any revision <= wireRevision.
func Decode(b []byte) (Value, error) {
	var w wireValue
	if err := msgpack.Unmarshal(b, &w); err != nil {
		return Value{}, Error.Wrap(err)
	}
	return fromWire(w), nil
}
