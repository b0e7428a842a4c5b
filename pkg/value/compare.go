package value

import "bytes"

// Compare defines the total order over Value: equality and ordering are
// variant-by-variant, and cross-variant comparison falls back to Kind
// (None sorts first). It returns -1, 0, or 1, matching bytes.Compare's
// convention.
func Compare(a, b Value) int {
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	switch a.Kind {
	case KindNone, KindNull:
		return 0
	case KindBool:
		return compareBool(a.Bool, b.Bool)
	case KindInt:
		return compareInt64(a.Int, b.Int)
	case KindFloat:
		return compareFloat64(a.Float, b.Float)
	case KindDecimal:
		return compareString(a.Decimal, b.Decimal)
	case KindString:
		return compareString(a.String, b.String)
	case KindBytes:
		return bytes.Compare(a.Bytes, b.Bytes)
	case KindDuration:
		return compareInt64(int64(a.Duration), int64(b.Duration))
	case KindDatetime:
		if a.Datetime.Before(b.Datetime) {
			return -1
		}
		if a.Datetime.After(b.Datetime) {
			return 1
		}
		return 0
	case KindUUID:
		return bytes.Compare(a.UUID[:], b.UUID[:])
	case KindArray, KindSet:
		return compareSlice(a.Array, b.Array)
	case KindObject:
		return compareObject(a.Object, b.Object)
	case KindRecordID:
		return compareRecordID(a.RecordID, b.RecordID)
	default:
		// Geometry, Closure, File, Range: compared by their encoded
		// byte form, which is total but not meaningfully ordered.
		return bytes.Compare(mustEncode(a), mustEncode(b))
	}
}

// Equal reports whether a and b compare equal.
func Equal(a, b Value) bool { return Compare(a, b) == 0 }

// Less reports whether a sorts before b.
func Less(a, b Value) bool { return Compare(a, b) < 0 }

func compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a {
		return -1
	}
	return 1
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareSlice(a, b []Value) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return compareInt64(int64(len(a)), int64(len(b)))
}

func compareObject(a, b map[string]Value) int {
	// Objects compare by sorted-key, then value, then arity — a stable
	// total order even though Go maps have no intrinsic order.
	ak := sortedKeys(a)
	bk := sortedKeys(b)
	for i := 0; i < len(ak) && i < len(bk); i++ {
		if c := compareString(ak[i], bk[i]); c != 0 {
			return c
		}
		if c := Compare(a[ak[i]], b[bk[i]]); c != 0 {
			return c
		}
	}
	return compareInt64(int64(len(ak)), int64(len(bk)))
}

func sortedKeys(m map[string]Value) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func compareRecordID(a, b *RecordID) int {
	if a == nil || b == nil {
		return compareBool(a == nil, b == nil)
	}
	if c := compareString(a.Table, b.Table); c != 0 {
		return c
	}
	return compareString(asString(a.Key), asString(b.Key))
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func mustEncode(v Value) []byte {
	b, err := Encode(v)
	if err != nil {
		return nil
	}
	return b
}
