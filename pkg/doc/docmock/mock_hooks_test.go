package docmock_test

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/meridiandb/meridian/pkg/catalog"
	"github.com/meridiandb/meridian/pkg/doc"
	"github.com/meridiandb/meridian/pkg/doc/docmock"
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

// TestPipelineCallsIndexPutWithExactArgsOnCreate exercises the
// document pipeline against a gomock-generated IndexWriter instead of
// a hand-rolled fake, asserting the exact arguments Put is invoked
// with (not just that it was called).
func TestPipelineCallsIndexPutWithExactArgsOnCreate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tx := newTx(t)
	require.NoError(t, catalog.DefineTable(tx, "ns", "db", &catalog.TableDefinition{Name: "person"}, catalog.DefineOptions{}))
	require.NoError(t, catalog.DefineField(tx, "ns", "db", "person", &catalog.FieldDefinition{Name: "name", Type: "string"}, catalog.DefineOptions{}))
	require.NoError(t, catalog.DefineIndex(tx, "ns", "db", "person", &catalog.IndexDefinition{ID: 1, Name: "name_idx", Fields: []string{"name"}}, catalog.DefineOptions{}))
	tb, ok, err := catalog.GetTable(tx, "ns", "db", "person")
	require.NoError(t, err)
	require.True(t, ok)

	id := keys.RecordIDString("one")
	after := value.NewObject(map[string]value.Value{"name": value.NewString("ash")})

	idx := docmock.NewMockIndexWriter(ctrl)
	idx.EXPECT().Put(tx, "ns", "db", "person", gomock.Any(), id, value.None, after).Return(nil)

	d := &doc.Document{
		TX:     tx,
		Hooks:  doc.Hooks{Index: idx},
		NS:     "ns",
		DB:     "db",
		TB:     "person",
		ID:     id,
		Table:  tb,
		Action: doc.ActionCreate,
		Before: value.None,
		Mutate: func(before value.Value) (value.Value, error) { return after, nil },
	}

	_, err = d.Run()
	require.NoError(t, err)
}

// TestPipelineLeavesUnconfiguredHookUntouched asserts that a mock with
// no EXPECT set fails the test if it is ever invoked, proving the
// pipeline leaves a hook untouched when that hook isn't wired into
// doc.Hooks for this Document.
func TestPipelineLeavesUnconfiguredHookUntouched(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// No EXPECT() calls registered on live: ctrl.Finish() fails the
	// test if the pipeline calls Notify despite Hooks.Live being unset
	// below.
	live := docmock.NewMockLiveDispatcher(ctrl)
	_ = live

	tx := newTx(t)
	require.NoError(t, catalog.DefineTable(tx, "ns", "db", &catalog.TableDefinition{Name: "person"}, catalog.DefineOptions{}))
	tb, ok, err := catalog.GetTable(tx, "ns", "db", "person")
	require.NoError(t, err)
	require.True(t, ok)

	d := &doc.Document{
		TX:     tx,
		Hooks:  doc.Hooks{}, // Live deliberately left nil
		NS:     "ns",
		DB:     "db",
		TB:     "person",
		ID:     keys.RecordIDString("two"),
		Table:  tb,
		Action: doc.ActionCreate,
		Before: value.None,
		Mutate: func(before value.Value) (value.Value, error) { return value.NewObject(nil), nil },
	}
	_, err = d.Run()
	require.NoError(t, err)
}
