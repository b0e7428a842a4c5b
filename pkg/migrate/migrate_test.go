package migrate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridiandb/meridian/pkg/kvs"
	"github.com/meridiandb/meridian/pkg/kvstore"
	"github.com/meridiandb/meridian/pkg/kvstore/memstore"
	"github.com/meridiandb/meridian/pkg/migrate"
)

func TestBasicMigration(t *testing.T) {
	ctx := context.Background()
	ds := kvs.New(memstore.New(), nil)

	m := &migrate.Migration{
		DS: ds,
		Steps: []*migrate.Step{
			{
				Version:     1,
				Description: "seed root marker",
				Action: migrate.Func(func(_ context.Context, _ *zap.Logger, tx *kvs.Transaction) error {
					return tx.Put(kvstore.Key("/!marker"), kvstore.Value("1"), false)
				}),
			},
			{
				Version:     2,
				Description: "bump marker",
				Action: migrate.Func(func(_ context.Context, _ *zap.Logger, tx *kvs.Transaction) error {
					return tx.Put(kvstore.Key("/!marker"), kvstore.Value("2"), false)
				}),
			},
		},
	}

	v, err := m.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, v)

	require.NoError(t, m.Run(ctx, zap.NewNop()))

	v, err = m.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)

	tx, err := ds.Begin(ctx, kvs.Read, kvs.Optimistic)
	require.NoError(t, err)
	val, ok, err := tx.Get(kvstore.Key("/!marker"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, kvstore.Value("2"), val)
}

func TestMigrationIsIdempotentOnRerun(t *testing.T) {
	ctx := context.Background()
	ds := kvs.New(memstore.New(), nil)

	calls := 0
	m := &migrate.Migration{
		DS: ds,
		Steps: []*migrate.Step{
			{
				Version: 1,
				Action: migrate.Func(func(_ context.Context, _ *zap.Logger, tx *kvs.Transaction) error {
					calls++
					return nil
				}),
			},
		},
	}

	require.NoError(t, m.Run(ctx, zap.NewNop()))
	require.NoError(t, m.Run(ctx, zap.NewNop()))
	assert.Equal(t, 1, calls)
}

func TestValidateStepsRejectsNonIncreasing(t *testing.T) {
	m := &migrate.Migration{
		Steps: []*migrate.Step{
			{Version: 2},
			{Version: 1},
		},
	}
	assert.ErrorIs(t, m.ValidateSteps(), migrate.ErrNonSequential)
}

func TestFixRecordIDTagsV2RewritesLegacyTagsOnly(t *testing.T) {
	ctx := context.Background()
	ds := kvs.New(memstore.New(), nil)

	setup, err := ds.Begin(ctx, kvs.Write, kvs.Optimistic)
	require.NoError(t, err)
	offset := 0
	{
		// A number-id key (tag 0, untouched) and two legacy keys whose
		// tag byte sits where Array(2)/Object(3) lived before Uuid was
		// inserted at 2.
		base := []byte("/*ns\x00*db\x00*person\x00*")
		offset = len(base)
		require.NoError(t, setup.Put(append(append([]byte{}, base...), 0, 0x80, 0, 0, 0, 0, 0, 0, 1), []byte("num"), false))
		require.NoError(t, setup.Put(append(append([]byte{}, base...), 2, 'x', 0), []byte("legacy-array"), false))
		require.NoError(t, setup.Put(append(append([]byte{}, base...), 3, 'y', 0), []byte("legacy-object"), false))
	}
	require.NoError(t, setup.Commit())

	m := &migrate.Migration{
		DS: ds,
		Steps: []*migrate.Step{
			{Version: 1, Action: migrate.FixRecordIDTagsV2("ns", "db", "person")},
		},
	}
	require.NoError(t, m.Run(ctx, zap.NewNop()))

	tx, err := ds.Begin(ctx, kvs.Read, kvs.Optimistic)
	require.NoError(t, err)
	items, err := tx.Scan(kvstore.Key("/*ns\x00*db\x00*person\x00*"), kvstore.Key("/*ns\x00*db\x00*person\x00*\xff"), 0)
	require.NoError(t, err)
	require.Len(t, items, 3)

	tags := map[byte]bool{}
	for _, it := range items {
		tags[it.Key[offset]] = true
	}
	assert.True(t, tags[0], "number tag left untouched")
	assert.True(t, tags[3], "legacy array tag bumped to 3")
	assert.True(t, tags[4], "legacy object tag bumped to 4")
}

func TestTargetVersion(t *testing.T) {
	m := &migrate.Migration{
		Steps: []*migrate.Step{
			{Version: 1},
			{Version: 5},
			{Version: 3},
		},
	}
	assert.EqualValues(t, 5, m.TargetVersion())
}
