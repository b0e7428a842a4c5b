package iterator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridiandb/meridian/pkg/iterator"
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

func putPerson(t *testing.T, tx *kvs.Transaction, id string, name string, age int64) {
	t.Helper()
	v := value.NewObject(map[string]value.Value{
		"name": value.NewString(name),
		"age":  value.NewInt(age),
	})
	b, err := value.Encode(v)
	require.NoError(t, err)
	require.NoError(t, tx.Put(keys.Thing("ns", "db", "person", keys.RecordIDString(id)), b, false))
}

func TestTableScanReturnsAllRows(t *testing.T) {
	tx := newTx(t)
	putPerson(t, tx, "a", "ash", 10)
	putPerson(t, tx, "b", "bo", 20)

	stmt := &iterator.Statement{NS: "ns", DB: "db", TB: "person", Source: iterator.Source{Kind: iterator.SourceTable}}
	out, err := stmt.Run(tx)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestWhereFiltersRows(t *testing.T) {
	tx := newTx(t)
	putPerson(t, tx, "a", "ash", 10)
	putPerson(t, tx, "b", "bo", 20)

	stmt := &iterator.Statement{
		NS: "ns", DB: "db", TB: "person",
		Source: iterator.Source{Kind: iterator.SourceTable},
		Where: func(v value.Value) (bool, error) {
			return v.Pick("age").Int >= 15, nil
		},
	}
	out, err := stmt.Run(tx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "bo", out[0].Object["name"].String)
}

func TestOrderByLimitStart(t *testing.T) {
	tx := newTx(t)
	putPerson(t, tx, "a", "ash", 30)
	putPerson(t, tx, "b", "bo", 10)
	putPerson(t, tx, "c", "cy", 20)

	stmt := &iterator.Statement{
		NS: "ns", DB: "db", TB: "person",
		Source: iterator.Source{Kind: iterator.SourceTable},
		Order:  []iterator.OrderKey{{Field: "age"}},
		Start:  1,
		Limit:  1,
	}
	out, err := stmt.Run(tx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "cy", out[0].Object["name"].String)
}

func TestOnlyModeRequiresExactlyOneResult(t *testing.T) {
	tx := newTx(t)
	putPerson(t, tx, "a", "ash", 10)
	putPerson(t, tx, "b", "bo", 20)

	stmt := &iterator.Statement{NS: "ns", DB: "db", TB: "person", Source: iterator.Source{Kind: iterator.SourceTable}, Only: true}
	_, err := stmt.Run(tx)
	assert.ErrorIs(t, err, iterator.ErrOnlyExpectedOneRow)
}

func TestGroupByAggregatesBuckets(t *testing.T) {
	tx := newTx(t)
	putPerson(t, tx, "a", "ash", 10)
	putPerson(t, tx, "b", "bo", 10)
	putPerson(t, tx, "c", "cy", 20)

	stmt := &iterator.Statement{
		NS: "ns", DB: "db", TB: "person",
		Source: iterator.Source{Kind: iterator.SourceTable},
		Group: &iterator.GroupBy{
			Fields: []string{"age"},
			Projections: []iterator.Projection{
				{Field: "age"},
				{Field: "count", Aggregate: func(bucket []value.Value) (value.Value, error) {
					return value.NewInt(int64(len(bucket))), nil
				}},
			},
		},
	}
	out, err := stmt.Run(tx)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.EqualValues(t, 10, out[0].Object["age"].Int)
	assert.EqualValues(t, 2, out[0].Object["count"].Int)
	assert.EqualValues(t, 20, out[1].Object["age"].Int)
	assert.EqualValues(t, 1, out[1].Object["count"].Int)
}

func TestSplitOnExpandsArrayField(t *testing.T) {
	tx := newTx(t)
	v := value.NewObject(map[string]value.Value{
		"tags": value.NewArray(value.NewString("x"), value.NewString("y")),
	})
	stmt := &iterator.Statement{
		NS: "ns", DB: "db", TB: "person",
		Source: iterator.Source{Kind: iterator.SourceValues, Values: []value.Value{v}},
		Split:  "tags",
	}
	out, err := stmt.Run(tx)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "x", out[0].Object["tags"].String)
	assert.Equal(t, "y", out[1].Object["tags"].String)
}

func TestMockSourceSynthesizesRows(t *testing.T) {
	tx := newTx(t)
	stmt := &iterator.Statement{NS: "ns", DB: "db", TB: "person", Source: iterator.Source{Kind: iterator.SourceMock, MockCount: 5}}
	out, err := stmt.Run(tx)
	require.NoError(t, err)
	assert.Len(t, out, 5)
}

func TestFetchResolvesRecordIDReference(t *testing.T) {
	tx := newTx(t)
	putPerson(t, tx, "friend", "bo", 20)

	v := value.NewObject(map[string]value.Value{
		"best_friend": {Kind: value.KindRecordID, RecordID: &value.RecordID{Table: "person", Key: "friend"}},
	})
	stmt := &iterator.Statement{
		NS: "ns", DB: "db", TB: "person",
		Source: iterator.Source{Kind: iterator.SourceValues, Values: []value.Value{v}},
		Fetch:  []string{"best_friend"},
	}
	out, err := stmt.Run(tx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "bo", out[0].Object["best_friend"].Object["name"].String)
}

func TestIndexPlanReplacesCandidates(t *testing.T) {
	tx := newTx(t)
	putPerson(t, tx, "a", "ash", 10)
	putPerson(t, tx, "b", "bo", 20)

	plan := &iterator.Plan{Kind: iterator.PlanBTree, Context: stubIndexContext{ids: []keys.RecordIDKey{keys.RecordIDString("b")}}}
	stmt := &iterator.Statement{NS: "ns", DB: "db", TB: "person", Source: iterator.Source{Kind: iterator.SourceTable}, Plan: plan}
	out, err := stmt.Run(tx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "bo", out[0].Object["name"].String)
}

type stubIndexContext struct {
	ids []keys.RecordIDKey
}

func (s stubIndexContext) Candidates(tx *kvs.Transaction) ([]iterator.IndexCandidate, error) {
	out := make([]iterator.IndexCandidate, len(s.ids))
	for i, id := range s.ids {
		out[i] = iterator.IndexCandidate{ID: id}
	}
	return out, nil
}
