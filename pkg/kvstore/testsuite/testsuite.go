// Package testsuite is a conformance suite run against every
// kvstore.Store backend, adapted from storj's
// private/kvstore/testsuite package (test_crud.go, test_range.go).
package testsuite

import (
	"bytes"
	"context"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/loov/hrtime"
	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"

	"github.com/meridiandb/meridian/pkg/kvstore"
)

func newItem(key, value string) kvstore.Item {
	return kvstore.Item{Key: kvstore.Key(key), Value: kvstore.Value(value)}
}

func cleanupItems(ctx context.Context, t *testing.T, store kvstore.Store, items kvstore.Items) {
	for _, item := range items {
		_ = store.Delete(ctx, item.Key)
	}
}

// RunTests exercises CRUD and range-scan semantics against store. It
// drives every sub-test off a single testcontext.Context so leftover
// goroutines or leaked state fail the suite instead of the next test
// that happens to reuse the store.
func RunTests(t *testing.T, store kvstore.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	t.Run("CRUD", func(t *testing.T) { testCRUD(t, ctx, store) })
	t.Run("Range", func(t *testing.T) { testRange(t, ctx, store) })
}

func testCRUD(t *testing.T, ctx *testcontext.Context, store kvstore.Store) {
	items := kvstore.Items{
		newItem("\x00", "\x00"),
		newItem("a/b", "\x01\x00"),
		newItem("a\\b", "\xFF"),
		newItem("full/path/1", "\x00\xFF\xFF\x00"),
		newItem("full/path/2", "\x00\xFF\xFF\x01"),
		newItem("full/path/3", "\x00\xFF\xFF\x02"),
		newItem("öö", "üü"),
	}
	rand.Shuffle(len(items), items.Swap)
	defer cleanupItems(ctx, t, store, items)

	t.Run("Put", func(t *testing.T) {
		for _, item := range items {
			err := store.Put(ctx, item.Key, item.Value)
			if err != nil {
				t.Fatalf("failed to put %q = %v: %v", item.Key, item.Value, err)
			}
		}
	})

	rand.Shuffle(len(items), items.Swap)

	t.Run("Get", func(t *testing.T) {
		for _, item := range items {
			value, err := store.Get(ctx, item.Key)
			if err != nil {
				t.Fatalf("failed to get %q = %v: %v", item.Key, item.Value, err)
			}
			if !bytes.Equal([]byte(value), []byte(item.Value)) {
				t.Fatalf("invalid value for %q = %v: got %v", item.Key, item.Value, value)
			}
		}
	})

	t.Run("Delete", func(t *testing.T) {
		for _, item := range items {
			_, err := store.Get(ctx, item.Key)
			if err != nil {
				t.Fatalf("failed to get %v", item.Key)
			}
		}

		for _, item := range items {
			if err := store.Delete(ctx, item.Key); err != nil {
				t.Fatalf("failed to delete %v: %v", item.Key, err)
			}
		}

		for _, item := range items {
			value, err := store.Get(ctx, item.Key)
			if err == nil {
				t.Fatalf("got deleted value %q = %v", item.Key, value)
			}
		}
	})
}

func testRange(t *testing.T, ctx *testcontext.Context, store kvstore.Store) {
	err := store.Range(ctx, func(ctx context.Context, key kvstore.Key, value kvstore.Value) error {
		t.Fatalf("unexpected item %q in empty store", key)
		return nil
	})
	require.NoError(t, err)

	items := kvstore.Items{
		newItem("a", "a"),
		newItem("b/1", "b/1"),
		newItem("b/2", "b/2"),
		newItem("b/3", "b/3"),
		newItem("c", "c"),
		newItem("c/", "c/"),
		newItem("c//", "c//"),
		newItem("c/1", "c/1"),
		newItem("g", "g"),
		newItem("h", "h"),
	}
	rand.Shuffle(len(items), items.Swap)
	defer cleanupItems(ctx, t, store, items)

	require.NoError(t, kvstore.PutAll(ctx, store, items...))

	var output kvstore.Items
	err = store.Range(ctx, func(ctx context.Context, key kvstore.Key, value kvstore.Value) error {
		output = append(output, kvstore.Item{
			Key:   append(kvstore.Key{}, key...),
			Value: append(kvstore.Value{}, value...),
		})
		return nil
	})
	require.NoError(t, err)

	expected := kvstore.CloneItems(items)
	sort.Sort(expected)
	sort.Sort(output)

	require.EqualValues(t, expected, output)

	t.Run("prefix", func(t *testing.T) {
		out, more, err := store.List(ctx, kvstore.ListOptions{Prefix: kvstore.Key("b/")})
		require.NoError(t, err)
		require.False(t, bool(more))
		require.Len(t, out, 3)
	})

	t.Run("limit and pagination", func(t *testing.T) {
		out, more, err := store.List(ctx, kvstore.ListOptions{Prefix: kvstore.Key("c"), Limit: 2})
		require.NoError(t, err)
		require.True(t, bool(more))
		require.Len(t, out, 2)

		rest, more, err := store.List(ctx, kvstore.ListOptions{Prefix: kvstore.Key("c"), After: out[len(out)-1].Key})
		require.NoError(t, err)
		require.False(t, bool(more))
		require.Len(t, rest, 2)
	})
}

// RunBenchmarks exercises Put/Get throughput, mirroring storj's
// BenchmarkSuite entry points in private/kvstore/*/client_test.go. It
// reports a P50 latency metric alongside the usual ns/op, using
// hrtime's monotonic clock rather than testing.B's own timer so the
// per-call distribution survives even when b.N is small.
func RunBenchmarks(b *testing.B, store kvstore.Store) {
	ctx := context.Background()
	b.Run("Put", func(b *testing.B) {
		var latencies []time.Duration
		for i := 0; i < b.N; i++ {
			start := hrtime.Now()
			_ = store.Put(ctx, kvstore.Key(randKey(i)), kvstore.Value("value"))
			latencies = append(latencies, hrtime.Since(start))
		}
		reportP50(b, latencies)
	})
	b.Run("Get", func(b *testing.B) {
		_ = store.Put(ctx, kvstore.Key("bench-key"), kvstore.Value("value"))
		b.ResetTimer()
		var latencies []time.Duration
		for i := 0; i < b.N; i++ {
			start := hrtime.Now()
			_, _ = store.Get(ctx, kvstore.Key("bench-key"))
			latencies = append(latencies, hrtime.Since(start))
		}
		reportP50(b, latencies)
	})
}

func reportP50(b *testing.B, latencies []time.Duration) {
	if len(latencies) == 0 {
		return
	}
	hist := hrtime.NewDurationHistogram(latencies, &hrtime.HistogramOptions{
		BinCount:        1,
		NiceRange:       true,
		ClampPercentile: 0.999,
	})
	b.ReportMetric(hist.P50, "p50-ns/op")
}

func randKey(i int) string {
	return "bench/" + string(rune('a'+i%26)) + "/" + string(rune('0'+i%10))
}
