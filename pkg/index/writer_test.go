package index_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridiandb/meridian/pkg/catalog"
	"github.com/meridiandb/meridian/pkg/index"
	"github.com/meridiandb/meridian/pkg/index/btree"
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

func TestWriterRoutesPlainIndexToBtree(t *testing.T) {
	tx := newTx(t)
	ix := &catalog.IndexDefinition{ID: 1, Name: "age_idx", Fields: []string{"age"}}
	doc := value.NewObject(map[string]value.Value{"age": value.NewInt(30)})

	w := &index.Writer{}
	require.NoError(t, w.Put(tx, "ns", "db", "person", ix, keys.RecordIDString("a"), value.None, doc))

	got, err := btree.EqLookup{NS: "ns", DB: "db", TB: "person", Index: ix, Values: []value.Value{value.NewInt(30)}}.Candidates(tx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestWriterRoutesFullTextIndexWithNoAnalyzerDefined(t *testing.T) {
	tx := newTx(t)
	ix := &catalog.IndexDefinition{
		ID:       2,
		Name:     "body_ft",
		Fields:   []string{"body"},
		FullText: &catalog.FullTextParams{},
	}
	doc := value.NewObject(map[string]value.Value{"body": value.NewString("hello world")})

	w := &index.Writer{}
	require.NoError(t, w.Put(tx, "ns", "db", "article", ix, keys.RecordIDString("a"), value.None, doc))
	require.NoError(t, w.Remove(tx, "ns", "db", "article", ix, keys.RecordIDString("a"), doc))
}

// queueRecorder is a minimal index.AppendQueue fake used to test
// Writer's build-queue interception without depending on the full
// concurrent.Builder.
type queueRecorder struct {
	calls []keys.RecordIDKey
}

func (q *queueRecorder) Append(id keys.RecordIDKey, before, after value.Value) {
	q.calls = append(q.calls, id)
}

func TestWriterQueuesWritesToIndexWithRegisteredBuild(t *testing.T) {
	tx := newTx(t)
	ix := &catalog.IndexDefinition{
		ID: 3, Name: "age_idx", Fields: []string{"age"},
		Concurrent: true,
		Build:      catalog.BuildState{Status: catalog.BuildIndexing},
	}
	doc := value.NewObject(map[string]value.Value{"age": value.NewInt(40)})

	w := &index.Writer{}
	q := &queueRecorder{}
	w.RegisterBuild(ix.ID, q)

	require.NoError(t, w.Put(tx, "ns", "db", "person", ix, keys.RecordIDString("a"), value.None, doc))

	got, err := btree.EqLookup{NS: "ns", DB: "db", TB: "person", Index: ix, Values: []value.Value{value.NewInt(40)}}.Candidates(tx)
	require.NoError(t, err)
	assert.Len(t, got, 0, "queued write must not touch the index directly")
	assert.Equal(t, []keys.RecordIDKey{keys.RecordIDString("a")}, q.calls)

	w.UnregisterBuild(ix.ID)
	require.NoError(t, w.Put(tx, "ns", "db", "person", ix, keys.RecordIDString("b"), value.None, doc))
	got, err = btree.EqLookup{NS: "ns", DB: "db", TB: "person", Index: ix, Values: []value.Value{value.NewInt(40)}}.Candidates(tx)
	require.NoError(t, err)
	assert.Len(t, got, 1, "write after unregister must land directly on the index")
}

func TestWriterPutDirectBypassesRegisteredBuild(t *testing.T) {
	tx := newTx(t)
	ix := &catalog.IndexDefinition{
		ID: 4, Name: "age_idx2", Fields: []string{"age"},
		Concurrent: true,
		Build:      catalog.BuildState{Status: catalog.BuildIndexing},
	}
	doc := value.NewObject(map[string]value.Value{"age": value.NewInt(41)})

	w := &index.Writer{}
	q := &queueRecorder{}
	w.RegisterBuild(ix.ID, q)

	require.NoError(t, w.PutDirect(tx, "ns", "db", "person", ix, keys.RecordIDString("a"), value.None, doc))

	got, err := btree.EqLookup{NS: "ns", DB: "db", TB: "person", Index: ix, Values: []value.Value{value.NewInt(41)}}.Candidates(tx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Len(t, q.calls, 0, "PutDirect must never be diverted to the build queue")
}
