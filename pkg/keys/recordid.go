package keys

import (
	"encoding/binary"
	"sort"

	"github.com/google/uuid"
)

// recordIDTag identifies which RecordIdKey variant follows. The
// assignment is fixed forever: new variants may only be appended so
// that existing encoded data keeps comparing the same way. Tag 2
// (Uuid) was inserted after Number/String in a historical migration —
// see pkg/migrate.FixRecordIDTagsV2 — which is why String is 1 and Array/Object
// were bumped to 3/4.
type recordIDTag byte

const (
	tagNumber recordIDTag = 0
	tagString recordIDTag = 1
	tagUUID   recordIDTag = 2
	tagArray  recordIDTag = 3
	tagObject recordIDTag = 4
)

// legacyTagThreshold is the smallest tag value that existed before the
// Uuid variant was inserted at position 2. Any encoded key whose tag
// byte is >= this threshold, under the *old* layout, needs its tag
// bumped by one. See pkg/migrate.FixRecordIDTagsV2.
const legacyTagThreshold = 2

// RecordIDKey is the sum type over a record id's key component:
// Number(int64) | String | Uuid | Array([]byte-encoded values) |
// Object(sorted key/value pairs). Ordering across variants is total:
// lower tag sorts first, and within a variant the natural order of its
// payload applies.
type RecordIDKey interface {
	// Encode appends the tag byte followed by the order-preserving
	// payload encoding.
	Encode() []byte
	tag() recordIDTag
}

// RecordIDNumber is the Number(i64) variant.
type RecordIDNumber int64

func (n RecordIDNumber) tag() recordIDTag { return tagNumber }

// Encode implements RecordIDKey. Signed integers are bias-shifted to an
// unsigned big-endian encoding so that byte-lexicographic order matches
// numeric order.
func (n RecordIDNumber) Encode() []byte {
	buf := make([]byte, 1+8)
	buf[0] = byte(tagNumber)
	binary.BigEndian.PutUint64(buf[1:], uint64(n)^0x8000000000000000)
	return buf
}

// RecordIDString is the String variant.
type RecordIDString string

func (s RecordIDString) tag() recordIDTag { return tagString }

// Encode implements RecordIDKey.
func (s RecordIDString) Encode() []byte {
	buf := []byte{byte(tagString)}
	return putString(buf, string(s))
}

// RecordIDUUID is the Uuid variant.
type RecordIDUUID uuid.UUID

func (u RecordIDUUID) tag() recordIDTag { return tagUUID }

// Encode implements RecordIDKey.
func (u RecordIDUUID) Encode() []byte {
	buf := []byte{byte(tagUUID)}
	return append(buf, u[:]...)
}

// RecordIDArray is the Array([]Value) variant; each element is itself a
// length-prefixed byte string so the whole array compares
// element-by-element.
type RecordIDArray [][]byte

func (a RecordIDArray) tag() recordIDTag { return tagArray }

// Encode implements RecordIDKey: tag, element count (4 bytes BE), then
// each element as a 4-byte BE length prefix followed by its bytes.
func (a RecordIDArray) Encode() []byte {
	buf := []byte{byte(tagArray)}
	buf = appendUint32(buf, uint32(len(a)))
	for _, el := range a {
		buf = appendUint32(buf, uint32(len(el)))
		buf = append(buf, el...)
	}
	return buf
}

// RecordIDObject is the Object(map[string]Value) variant, sorted by key
// so encoding is deterministic.
type RecordIDObject map[string][]byte

func (o RecordIDObject) tag() recordIDTag { return tagObject }

// Encode implements RecordIDKey.
func (o RecordIDObject) Encode() []byte {
	keysList := make([]string, 0, len(o))
	for k := range o {
		keysList = append(keysList, k)
	}
	sort.Strings(keysList)

	buf := []byte{byte(tagObject)}
	buf = appendUint32(buf, uint32(len(keysList)))
	for _, k := range keysList {
		buf = putString(buf, k)
		v := o[k]
		buf = appendUint32(buf, uint32(len(v)))
		buf = append(buf, v...)
	}
	return buf
}

// DecodeRecordIDKey reverses Encode for any of the variants above.
func DecodeRecordIDKey(buf []byte) (RecordIDKey, error) {
	if len(buf) < 1 {
		return nil, ErrMalformed
	}
	tag := recordIDTag(buf[0])
	rest := buf[1:]
	switch tag {
	case tagNumber:
		if len(rest) < 8 {
			return nil, ErrMalformed
		}
		return RecordIDNumber(int64(binary.BigEndian.Uint64(rest[:8]) ^ 0x8000000000000000)), nil
	case tagString:
		s, _, err := readString(rest)
		if err != nil {
			return nil, err
		}
		return RecordIDString(s), nil
	case tagUUID:
		if len(rest) < 16 {
			return nil, ErrMalformed
		}
		var u uuid.UUID
		copy(u[:], rest[:16])
		return RecordIDUUID(u), nil
	case tagArray:
		if len(rest) < 4 {
			return nil, ErrMalformed
		}
		n := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		arr := make(RecordIDArray, 0, n)
		for i := uint32(0); i < n; i++ {
			if len(rest) < 4 {
				return nil, ErrMalformed
			}
			l := binary.BigEndian.Uint32(rest[:4])
			rest = rest[4:]
			if uint32(len(rest)) < l {
				return nil, ErrMalformed
			}
			arr = append(arr, append([]byte{}, rest[:l]...))
			rest = rest[l:]
		}
		return arr, nil
	case tagObject:
		if len(rest) < 4 {
			return nil, ErrMalformed
		}
		n := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		obj := make(RecordIDObject, n)
		for i := uint32(0); i < n; i++ {
			k, r, err := readString(rest)
			if err != nil {
				return nil, err
			}
			rest = r
			if len(rest) < 4 {
				return nil, ErrMalformed
			}
			l := binary.BigEndian.Uint32(rest[:4])
			rest = rest[4:]
			if uint32(len(rest)) < l {
				return nil, ErrMalformed
			}
			obj[k] = append([]byte{}, rest[:l]...)
			rest = rest[l:]
		}
		return obj, nil
	default:
		return nil, ErrMalformed
	}
}
