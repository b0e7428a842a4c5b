// Package value implements the dynamically-typed Value sum type shared
// by records, query results and index payloads, plus a revisioned
// msgpack encoding used for both record values and catalog definitions:
// a versioned envelope whose readers tolerate older revisions by
// filling defaults.
package value

import (
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/errs"
)

// Error is the class for value encode/decode and comparison failures.
var Error = errs.Class("value")

// Kind tags a Value's variant. The order of these constants defines the
// cross-variant comparison order: None sorts below everything, then by
// variant tag.
type Kind byte

const (
	KindNone Kind = iota
	KindNull
	KindBool
	KindInt
	KindFloat
	KindDecimal
	KindString
	KindBytes
	KindDuration
	KindDatetime
	KindUUID
	KindArray
	KindObject
	KindSet
	KindGeometry
	KindRecordID
	KindClosure
	KindFile
	KindRange
)

// RecordID identifies a record by (table, key).
type RecordID struct {
	Table string
	Key   interface{} // one of keys.RecordIDKey's decoded Go forms
}

// RangeValue represents a Range(begin, end) value over record ids.
type RangeValue struct {
	Begin, End *RecordID
}

// File is a reference to a bucket-scoped file payload.
type File struct {
	Bucket string
	Key    string
}

// Value is the dynamically-typed payload stored in records and produced
// by query evaluation. Exactly one of the typed fields is meaningful,
// selected by Kind; this mirrors a tagged union without reflection-heavy
// interface{} dispatch on the hot path.
type Value struct {
	Kind Kind

	Bool     bool
	Int      int64
	Float    float64
	Decimal  string // arbitrary precision decimal, stored as its canonical string form
	String   string
	Bytes    []byte
	Duration time.Duration
	Datetime time.Time
	UUID     uuid.UUID
	Array    []Value
	Object   map[string]Value
	Set      []Value
	Geometry interface{} // GeoJSON-shaped geometry payload
	RecordID *RecordID
	Closure  interface{} // opaque closure reference; scripting is an external collaborator
	File     *File
	Range    *RangeValue
}

// None is the canonical "no value" sentinel (distinct from Null).
var None = Value{Kind: KindNone}

// Null is the canonical SQL NULL.
var Null = Value{Kind: KindNull}

// NewBool builds a Bool value.
func NewBool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// NewInt builds an Int value.
func NewInt(i int64) Value { return Value{Kind: KindInt, Int: i} }

// NewFloat builds a Float value.
func NewFloat(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// NewString builds a String value.
func NewString(s string) Value { return Value{Kind: KindString, String: s} }

// NewArray builds an Array value.
func NewArray(vs ...Value) Value { return Value{Kind: KindArray, Array: vs} }

// NewObject builds an Object value.
func NewObject(m map[string]Value) Value { return Value{Kind: KindObject, Object: m} }

// IsNone reports whether v is the None sentinel.
func (v Value) IsNone() bool { return v.Kind == KindNone }

// IsTruthy follows SurrealQL-style truthiness: None, Null, false, zero
// numbers, empty strings/arrays/objects are falsy.
func (v Value) IsTruthy() bool {
	switch v.Kind {
	case KindNone, KindNull:
		return false
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int != 0
	case KindFloat:
		return v.Float != 0
	case KindString:
		return v.String != ""
	case KindArray:
		return len(v.Array) > 0
	case KindObject:
		return len(v.Object) > 0
	default:
		return true
	}
}

// Pick resolves a dotted field path against an Object value, returning
// None if any segment is missing or v is not an Object (the GROUP BY
// bucket-key projection).
func (v Value) Pick(path string) Value {
	cur := v
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '.' {
			seg := path[start:i]
			if cur.Kind != KindObject {
				return None
			}
			next, ok := cur.Object[seg]
			if !ok {
				return None
			}
			cur = next
			start = i + 1
		}
	}
	return cur
}
