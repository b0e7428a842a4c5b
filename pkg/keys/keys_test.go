package keys_test

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridiandb/meridian/pkg/keys"
)

func TestThingRoundTrip(t *testing.T) {
	id := keys.RecordIDString("testid")
	enc := keys.Thing("testns", "testdb", "testtb", id)
	assert.Equal(t, []byte("/*testns\x00*testdb\x00*testtb\x00*\x01testid\x00"), enc)

	ns, db, tb, decID, err := keys.DecodeThing(enc)
	require.NoError(t, err)
	assert.Equal(t, "testns", ns)
	assert.Equal(t, "testdb", db)
	assert.Equal(t, "testtb", tb)
	assert.Equal(t, id, decID)
}

func TestThingRoundTripNumber(t *testing.T) {
	id := keys.RecordIDNumber(42)
	enc := keys.Thing("ns", "db", "tb", id)
	_, _, _, decID, err := keys.DecodeThing(enc)
	require.NoError(t, err)
	assert.Equal(t, id, decID)
}

func TestThingRoundTripUUID(t *testing.T) {
	u := uuid.MustParse("f8e238f2-e734-47b8-9a16-476b291bd78a")
	id := keys.RecordIDUUID(u)
	enc := keys.Thing("ns", "db", "tb", id)
	_, _, _, decID, err := keys.DecodeThing(enc)
	require.NoError(t, err)
	assert.Equal(t, id, decID)
}

func TestThingOrderMatchesNumberOrder(t *testing.T) {
	small := keys.Thing("ns", "db", "tb", keys.RecordIDNumber(1))
	big := keys.Thing("ns", "db", "tb", keys.RecordIDNumber(2))
	assert.True(t, bytes.Compare(small, big) < 0)

	neg := keys.Thing("ns", "db", "tb", keys.RecordIDNumber(-1))
	zero := keys.Thing("ns", "db", "tb", keys.RecordIDNumber(0))
	assert.True(t, bytes.Compare(neg, zero) < 0)
}

func TestVariantOrderIsTagOrdered(t *testing.T) {
	num := keys.Thing("ns", "db", "tb", keys.RecordIDNumber(999999))
	str := keys.Thing("ns", "db", "tb", keys.RecordIDString("a"))
	uid := keys.Thing("ns", "db", "tb", keys.RecordIDUUID(uuid.Nil))
	assert.True(t, bytes.Compare(num, str) < 0)
	assert.True(t, bytes.Compare(str, uid) < 0)
}

func TestPrefixIsolatesTableScope(t *testing.T) {
	prefix := keys.ThingPrefix("ns", "db", "tb")
	suffix := keys.ThingSuffix("ns", "db", "tb")
	enc := keys.Thing("ns", "db", "tb", keys.RecordIDString("x"))
	assert.True(t, bytes.Compare(prefix, enc) <= 0)
	assert.True(t, bytes.Compare(enc, suffix) < 0)

	otherTable := keys.Thing("ns", "db", "other", keys.RecordIDString("x"))
	assert.False(t, bytes.Compare(prefix, otherTable) <= 0 && bytes.Compare(otherTable, suffix) < 0)
}

func TestLiveQueryRangeCoversMaxUUID(t *testing.T) {
	prefix := keys.LiveQueryPrefix("ns", "db", "tb")
	suffix := keys.LiveQuerySuffix("ns", "db", "tb")

	var maxUUID uuid.UUID
	for i := range maxUUID {
		maxUUID[i] = 0xff
	}
	enc := keys.LiveQuery("ns", "db", "tb", maxUUID)
	assert.True(t, bytes.Compare(prefix, enc) <= 0)
	assert.True(t, bytes.Compare(enc, suffix) < 0, "max uuid key must still be inside the half-open range")
}

func TestEdgeKeySymmetricShape(t *testing.T) {
	a := keys.RecordIDString("a")
	b := keys.RecordIDString("b")
	e := keys.RecordIDString("e")

	out := keys.Edge("ns", "db", "person", a, keys.EdgeOut, "knows", e, "person", b)
	in := keys.Edge("ns", "db", "person", b, keys.EdgeIn, "knows", e, "person", a)
	assert.NotEqual(t, out, in)
	assert.True(t, bytes.HasPrefix(out, keys.Thing("ns", "db", "person", a)))
	assert.True(t, bytes.HasPrefix(in, keys.Thing("ns", "db", "person", b)))
}

func TestRecordIDArrayAndObjectRoundTrip(t *testing.T) {
	arr := keys.RecordIDArray{[]byte("test"), {0x01}}
	enc := arr.Encode()
	dec, err := keys.DecodeRecordIDKey(enc)
	require.NoError(t, err)
	assert.Equal(t, arr, dec)

	obj := keys.RecordIDObject{"a": []byte{1}, "b": []byte{2}}
	enc2 := obj.Encode()
	dec2, err := keys.DecodeRecordIDKey(enc2)
	require.NoError(t, err)
	assert.Equal(t, obj, dec2)
}

func TestChangeFeedKeysOrderByVersionstamp(t *testing.T) {
	var early, late [10]byte
	late[7] = 1

	a := keys.ChangeFeedKey("ns", "db", early)
	b := keys.ChangeFeedKey("ns", "db", late)
	assert.True(t, bytes.Compare(a, b) < 0)
	assert.True(t, bytes.HasPrefix(a, keys.ChangeFeedPrefix("ns", "db")))
	assert.True(t, bytes.Compare(b, keys.ChangeFeedSuffix("ns", "db")) < 0)
}
