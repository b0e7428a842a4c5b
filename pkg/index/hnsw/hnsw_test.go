package hnsw_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridiandb/meridian/pkg/catalog"
	"github.com/meridiandb/meridian/pkg/index/hnsw"
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

func vecDoc(vals ...float64) value.Value {
	vs := make([]value.Value, len(vals))
	for i, v := range vals {
		vs[i] = value.NewFloat(v)
	}
	return value.NewObject(map[string]value.Value{"embedding": value.NewArray(vs...)})
}

func TestKnnSearchReturnsClosestFirst(t *testing.T) {
	tx := newTx(t)
	ix := &catalog.IndexDefinition{
		ID:     1,
		Name:   "vec_idx",
		Fields: []string{"embedding"},
		HNSW:   &catalog.HNSWParams{Dimension: 2, Distance: catalog.DistEuclidean, M: 8, EFConstruction: 50},
	}

	points := map[string][2]float64{
		"a": {0, 0},
		"b": {1, 0},
		"c": {10, 10},
		"d": {0, 1},
	}
	for id, p := range points {
		require.NoError(t, hnsw.Put(tx, "ns", "db", "doc", ix, keys.RecordIDString(id), value.None, vecDoc(p[0], p[1])))
	}

	g := &hnsw.Graph{NS: "ns", DB: "db", TB: "doc", Index: ix, Rand: rand.New(rand.NewSource(7))}
	search := hnsw.KnnSearch{Graph: g, Query: []float64{0, 0}, K: 2, EF: 20}
	got, err := search.Candidates(tx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	ids := make(map[string]bool)
	for _, c := range got {
		ids[string(c.ID.Encode())] = true
	}
	assert.True(t, ids[string(keys.RecordIDString("a").Encode())])
}

func TestRemoveDeletesElementMapping(t *testing.T) {
	tx := newTx(t)
	ix := &catalog.IndexDefinition{
		ID:     2,
		Name:   "vec_idx",
		Fields: []string{"embedding"},
		HNSW:   &catalog.HNSWParams{Dimension: 2, Distance: catalog.DistEuclidean, M: 8, EFConstruction: 50},
	}
	doc := vecDoc(3, 4)
	require.NoError(t, hnsw.Put(tx, "ns", "db", "doc", ix, keys.RecordIDString("a"), value.None, doc))
	require.NoError(t, hnsw.Remove(tx, "ns", "db", "doc", ix, keys.RecordIDString("a"), doc))

	g := &hnsw.Graph{NS: "ns", DB: "db", TB: "doc", Index: ix}
	search := hnsw.KnnSearch{Graph: g, Query: []float64{3, 4}, K: 1, EF: 10}
	got, err := search.Candidates(tx)
	require.NoError(t, err)
	assert.Len(t, got, 0)
}

func TestDistanceFunctions(t *testing.T) {
	assert.Equal(t, 5.0, hnsw.Distance(catalog.DistEuclidean, 0, []float64{0, 0}, []float64{3, 4}))
	assert.Equal(t, 7.0, hnsw.Distance(catalog.DistManhattan, 0, []float64{0, 0}, []float64{3, 4}))
	assert.Equal(t, 0.0, hnsw.Distance(catalog.DistCosine, 0, []float64{1, 1}, []float64{2, 2}))
}

func TestKnnPriorityListEvictsFurthestBucketOnOverflow(t *testing.T) {
	pl := hnsw.NewKnnPriorityList(2)
	pl.Add(3.0, keys.RecordIDString("c"))
	pl.Add(2.0, keys.RecordIDString("b"))
	pl.Add(1.0, keys.RecordIDString("a"))

	got := pl.Build()
	require.Len(t, got, 2)
	assert.Equal(t, keys.RecordIDString("a"), got[0])
	assert.Equal(t, keys.RecordIDString("b"), got[1])
}
