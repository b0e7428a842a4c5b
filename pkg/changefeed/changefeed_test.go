package changefeed_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridiandb/meridian/pkg/catalog"
	"github.com/meridiandb/meridian/pkg/changefeed"
	"github.com/meridiandb/meridian/pkg/keys"
	"github.com/meridiandb/meridian/pkg/kvs"
	"github.com/meridiandb/meridian/pkg/kvstore/memstore"
	"github.com/meridiandb/meridian/pkg/value"
)

func newTx(t *testing.T) *kvs.Transaction {
	t.Helper()
	ds := kvs.New(memstore.New(), nil)
	tx, err := ds.Begin(context.Background(), kvs.Write, kvs.Optimistic)
	require.NoError(t, err)
	return tx
}

func defineTable(t *testing.T, tx *kvs.Transaction, tb string, cf *catalog.ChangeFeedConfig) {
	t.Helper()
	require.NoError(t, catalog.DefineTable(tx, "ns", "db", &catalog.TableDefinition{Name: tb, ChangeFeed: cf}, catalog.DefineOptions{}))
}

func TestAppendSkipsTablesWithoutChangeFeed(t *testing.T) {
	tx := newTx(t)
	defineTable(t, tx, "person", nil)

	log := changefeed.Log{NS: "ns", DB: "db"}
	require.NoError(t, log.Append(tx, "ns", "db", "person", keys.RecordIDString("a"), value.None, value.NewObject(nil)))

	got, err := log.ShowChanges(tx, "", [10]byte{}, 0)
	require.NoError(t, err)
	assert.Len(t, got, 0)
}

func TestAppendAndShowChangesOrdersByVersionstamp(t *testing.T) {
	tx := newTx(t)
	defineTable(t, tx, "person", &catalog.ChangeFeedConfig{Expiry: time.Hour, StoreOriginal: true})

	log := changefeed.Log{NS: "ns", DB: "db"}
	after1 := value.NewObject(map[string]value.Value{"n": value.NewInt(1)})
	after2 := value.NewObject(map[string]value.Value{"n": value.NewInt(2)})
	require.NoError(t, log.Append(tx, "ns", "db", "person", keys.RecordIDString("a"), value.None, after1))
	require.NoError(t, log.Append(tx, "ns", "db", "person", keys.RecordIDString("b"), value.None, after2))

	got, err := log.ShowChanges(tx, "person", [10]byte{}, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, changefeed.KindCreate, got[0].Kind)
	assert.NotNil(t, got[0].After)
	assert.True(t, lessVersionstamp(got[0].Versionstamp, got[1].Versionstamp))
}

func lessVersionstamp(a, b [10]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

type recordingSink struct{ events []changefeed.Event }

func (r *recordingSink) Notify(e changefeed.Event) { r.events = append(r.events, e) }

func TestDispatcherNotifiesEveryRegisteredLiveQuery(t *testing.T) {
	tx := newTx(t)
	lq1, lq2 := uuid.New(), uuid.New()
	require.NoError(t, changefeed.DefineLiveQuery(tx, "ns", "db", "person", lq1))
	require.NoError(t, changefeed.DefineLiveQuery(tx, "ns", "db", "person", lq2))

	sink := &recordingSink{}
	d := changefeed.Dispatcher{Sink: sink}
	require.NoError(t, d.Notify(tx, "ns", "db", "person", keys.RecordIDString("a"), value.None, value.NewObject(nil)))

	assert.Len(t, sink.events, 2)
	assert.Equal(t, changefeed.LiveCreate, sink.events[0].Action)
}

func TestRemoveLiveQueryStopsNotifications(t *testing.T) {
	tx := newTx(t)
	lq := uuid.New()
	require.NoError(t, changefeed.DefineLiveQuery(tx, "ns", "db", "person", lq))
	require.NoError(t, changefeed.RemoveLiveQuery(tx, "ns", "db", "person", lq))

	sink := &recordingSink{}
	d := changefeed.Dispatcher{Sink: sink}
	require.NoError(t, d.Notify(tx, "ns", "db", "person", keys.RecordIDString("a"), value.None, value.NewObject(nil)))
	assert.Len(t, sink.events, 0)
}
