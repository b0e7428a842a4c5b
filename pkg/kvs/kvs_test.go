package kvs_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridiandb/meridian/pkg/kvs"
	"github.com/meridiandb/meridian/pkg/kvstore"
	"github.com/meridiandb/meridian/pkg/kvstore/memstore"
)

func newDS(t *testing.T) *kvs.Datastore {
	t.Helper()
	return kvs.New(memstore.New(), nil)
}

func TestReadYourWrites(t *testing.T) {
	ctx := context.Background()
	ds := newDS(t)

	tx, err := ds.Begin(ctx, kvs.Write, kvs.Optimistic)
	require.NoError(t, err)

	require.NoError(t, tx.Put(kvstore.Key("a"), kvstore.Value("1"), false))
	v, ok, err := tx.Get(kvstore.Key("a"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, kvstore.Value("1"), v)

	require.NoError(t, tx.Commit())

	tx2, err := ds.Begin(ctx, kvs.Read, kvs.Optimistic)
	require.NoError(t, err)
	v, ok, err = tx2.Get(kvstore.Key("a"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, kvstore.Value("1"), v)
}

func TestCancelDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	ds := newDS(t)

	tx, err := ds.Begin(ctx, kvs.Write, kvs.Optimistic)
	require.NoError(t, err)
	require.NoError(t, tx.Put(kvstore.Key("a"), kvstore.Value("1"), false))
	require.NoError(t, tx.Cancel())

	tx2, err := ds.Begin(ctx, kvs.Read, kvs.Optimistic)
	require.NoError(t, err)
	_, ok, err := tx2.Get(kvstore.Key("a"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCommitConflictDetected(t *testing.T) {
	ctx := context.Background()
	ds := newDS(t)

	setup, err := ds.Begin(ctx, kvs.Write, kvs.Optimistic)
	require.NoError(t, err)
	require.NoError(t, setup.Put(kvstore.Key("a"), kvstore.Value("1"), false))
	require.NoError(t, setup.Commit())

	tx1, err := ds.Begin(ctx, kvs.Write, kvs.Optimistic)
	require.NoError(t, err)
	_, _, err = tx1.Get(kvstore.Key("a"))
	require.NoError(t, err)

	tx2, err := ds.Begin(ctx, kvs.Write, kvs.Optimistic)
	require.NoError(t, err)
	require.NoError(t, tx2.Put(kvstore.Key("a"), kvstore.Value("2"), false))
	require.NoError(t, tx2.Commit())

	require.NoError(t, tx1.Put(kvstore.Key("a"), kvstore.Value("3"), false))
	err = tx1.Commit()
	assert.ErrorIs(t, err, kvs.ErrConflict)
}

func TestConcurrentCommitsAgainstSameKeyLeaveExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	ds := newDS(t)

	setup, err := ds.Begin(ctx, kvs.Write, kvs.Optimistic)
	require.NoError(t, err)
	require.NoError(t, setup.Put(kvstore.Key("a"), kvstore.Value("0"), false))
	require.NoError(t, setup.Commit())

	const n = 16
	txs := make([]*kvs.Transaction, n)
	for i := range txs {
		tx, err := ds.Begin(ctx, kvs.Write, kvs.Optimistic)
		require.NoError(t, err)
		_, _, err = tx.Get(kvstore.Key("a"))
		require.NoError(t, err)
		require.NoError(t, tx.Put(kvstore.Key("a"), kvstore.Value("1"), false))
		txs[i] = tx
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, tx := range txs {
		wg.Add(1)
		go func(i int, tx *kvs.Transaction) {
			defer wg.Done()
			errs[i] = tx.Commit()
		}(i, tx)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case err == kvs.ErrConflict:
			conflicts++
		default:
			t.Fatalf("unexpected commit error: %v", err)
		}
	}
	assert.Equal(t, 1, ok, "exactly one concurrent commit against the same key must win")
	assert.Equal(t, n-1, conflicts)
}

func TestCreateOnlyFailsWhenKeyExists(t *testing.T) {
	ctx := context.Background()
	ds := newDS(t)

	tx, err := ds.Begin(ctx, kvs.Write, kvs.Optimistic)
	require.NoError(t, err)
	require.NoError(t, tx.Put(kvstore.Key("a"), kvstore.Value("1"), false))
	require.NoError(t, tx.Commit())

	tx2, err := ds.Begin(ctx, kvs.Write, kvs.Optimistic)
	require.NoError(t, err)
	require.NoError(t, tx2.Put(kvstore.Key("a"), kvstore.Value("2"), true))
	err = tx2.Commit()
	assert.ErrorIs(t, err, kvs.ErrKeyExists)
}

func TestSavePointRollbackRestoresPriorValue(t *testing.T) {
	ctx := context.Background()
	ds := newDS(t)

	tx, err := ds.Begin(ctx, kvs.Write, kvs.Optimistic)
	require.NoError(t, err)
	require.NoError(t, tx.Put(kvstore.Key("a"), kvstore.Value("1"), false))

	tx.NewSavePoint()
	require.NoError(t, tx.Put(kvstore.Key("a"), kvstore.Value("2"), false))
	require.NoError(t, tx.Put(kvstore.Key("b"), kvstore.Value("new"), false))
	require.NoError(t, tx.RollbackSavePoint())

	v, ok, err := tx.Get(kvstore.Key("a"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, kvstore.Value("1"), v)

	_, ok, err = tx.Get(kvstore.Key("b"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSavePointNestingIsLIFO(t *testing.T) {
	ctx := context.Background()
	ds := newDS(t)

	tx, err := ds.Begin(ctx, kvs.Write, kvs.Optimistic)
	require.NoError(t, err)

	tx.NewSavePoint()
	require.NoError(t, tx.Put(kvstore.Key("a"), kvstore.Value("outer"), false))

	tx.NewSavePoint()
	require.NoError(t, tx.Put(kvstore.Key("a"), kvstore.Value("inner"), false))
	require.NoError(t, tx.ReleaseSavePoint())

	v, ok, err := tx.Get(kvstore.Key("a"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, kvstore.Value("inner"), v)

	require.NoError(t, tx.RollbackSavePoint())
	_, ok, err = tx.Get(kvstore.Key("a"))
	require.NoError(t, err)
	assert.False(t, ok)

	err = tx.RollbackSavePoint()
	assert.ErrorIs(t, err, kvs.ErrNoSavePoint)
}

func TestScanMergesPendingWrites(t *testing.T) {
	ctx := context.Background()
	ds := newDS(t)

	setup, err := ds.Begin(ctx, kvs.Write, kvs.Optimistic)
	require.NoError(t, err)
	require.NoError(t, setup.Put(kvstore.Key("a"), kvstore.Value("1"), false))
	require.NoError(t, setup.Put(kvstore.Key("b"), kvstore.Value("2"), false))
	require.NoError(t, setup.Commit())

	tx, err := ds.Begin(ctx, kvs.Write, kvs.Optimistic)
	require.NoError(t, err)
	require.NoError(t, tx.Del(kvstore.Key("a")))
	require.NoError(t, tx.Put(kvstore.Key("c"), kvstore.Value("3"), false))

	items, err := tx.Scan(kvstore.Key(""), kvstore.Key("\xff"), 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, kvstore.Key("b"), items[0].Key)
	assert.Equal(t, kvstore.Key("c"), items[1].Key)
}
