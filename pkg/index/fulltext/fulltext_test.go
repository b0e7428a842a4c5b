package fulltext_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridiandb/meridian/pkg/catalog"
	"github.com/meridiandb/meridian/pkg/index/fulltext"
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

func TestAnalyzeLowercaseAndAsciiFold(t *testing.T) {
	an := fulltext.Analyzer{Filters: []string{"ascii_fold", "lowercase"}}
	got := an.Analyze("Café RUNNING")
	assert.Equal(t, []string{"cafe", "running"}, got)
}

func TestAnalyzeSnowballStripsSuffix(t *testing.T) {
	an := fulltext.Analyzer{Filters: []string{"lowercase", "snowball"}}
	got := an.Analyze("Running cats")
	assert.Equal(t, []string{"runn", "cat"}, got)
}

func TestAnalyzeEdgeNgram(t *testing.T) {
	an := fulltext.Analyzer{Filters: []string{"lowercase", "edgengram:2:4"}}
	got := an.Analyze("test")
	assert.Equal(t, []string{"te", "tes", "test"}, got)
}

func TestFromDefinitionFallsBackWhenNil(t *testing.T) {
	an := fulltext.FromDefinition(nil)
	assert.Equal(t, []string{"ascii_fold", "lowercase"}, an.Filters)
}

func TestPutWritesPostingsAndStats(t *testing.T) {
	tx := newTx(t)
	ix := &catalog.IndexDefinition{ID: 1, Name: "body_ft", Fields: []string{"body"}}
	an := fulltext.Analyzer{Filters: []string{"lowercase"}}

	doc := func(body string) value.Value {
		return value.NewObject(map[string]value.Value{"body": value.NewString(body)})
	}

	require.NoError(t, fulltext.Put(tx, "ns", "db", "article", ix, an, keys.RecordIDString("a"), value.None, doc("the quick brown fox")))
	require.NoError(t, fulltext.Put(tx, "ns", "db", "article", ix, an, keys.RecordIDString("b"), value.None, doc("the lazy dog")))
	require.NoError(t, fulltext.Put(tx, "ns", "db", "article", ix, an, keys.RecordIDString("c"), value.None, doc("a sleepy cat")))

	scorer := fulltext.BM25Scorer{NS: "ns", DB: "db", TB: "article", Index: ix}
	scoreA, err := scorer.Score(tx, keys.RecordIDString("a"), []string{"quick", "fox"})
	require.NoError(t, err)
	assert.Greater(t, scoreA, 0.0)

	scoreNone, err := scorer.Score(tx, keys.RecordIDString("b"), []string{"quick", "fox"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, scoreNone)
}

func TestRemoveClearsPostingsAndDecrementsStats(t *testing.T) {
	tx := newTx(t)
	ix := &catalog.IndexDefinition{ID: 2, Name: "body_ft", Fields: []string{"body"}}
	an := fulltext.Analyzer{Filters: []string{"lowercase"}}
	doc := value.NewObject(map[string]value.Value{"body": value.NewString("alpha beta")})

	require.NoError(t, fulltext.Put(tx, "ns", "db", "article", ix, an, keys.RecordIDString("a"), value.None, doc))
	require.NoError(t, fulltext.Remove(tx, "ns", "db", "article", ix, keys.RecordIDString("a"), doc))

	scorer := fulltext.BM25Scorer{NS: "ns", DB: "db", TB: "article", Index: ix}
	score, err := scorer.Score(tx, keys.RecordIDString("a"), []string{"alpha"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestUpdateMovesPostingsWithoutDoubleCounting(t *testing.T) {
	tx := newTx(t)
	ix := &catalog.IndexDefinition{ID: 3, Name: "body_ft", Fields: []string{"body"}}
	an := fulltext.Analyzer{Filters: []string{"lowercase"}}

	before := value.NewObject(map[string]value.Value{"body": value.NewString("alpha beta")})
	after := value.NewObject(map[string]value.Value{"body": value.NewString("gamma delta")})

	require.NoError(t, fulltext.Put(tx, "ns", "db", "article", ix, an, keys.RecordIDString("a"), value.None, before))
	require.NoError(t, fulltext.Put(tx, "ns", "db", "article", ix, an, keys.RecordIDString("a"), before, after))

	scorer := fulltext.BM25Scorer{NS: "ns", DB: "db", TB: "article", Index: ix}
	oldScore, err := scorer.Score(tx, keys.RecordIDString("a"), []string{"alpha"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, oldScore)

	newScore, err := scorer.Score(tx, keys.RecordIDString("a"), []string{"gamma"})
	require.NoError(t, err)
	// N=1 (not 2), n(gamma)=1, tf=1, |D|=avgDL=2: the score reduces to
	// idf = ln(0.5/1.5).
	assert.InDelta(t, math.Log(0.5/1.5), newScore, 1e-9)
}

func TestBM25ScoreMatchesHandComputedValue(t *testing.T) {
	tx := newTx(t)
	ix := &catalog.IndexDefinition{
		ID:       4,
		Name:     "body_ft",
		Fields:   []string{"body"},
		FullText: &catalog.FullTextParams{BM25K1: 1.2, BM25B: 0.75},
	}
	an := fulltext.Analyzer{Filters: []string{"lowercase"}}

	require.NoError(t, fulltext.Put(tx, "ns", "db", "article", ix, an, keys.RecordIDString("a"), value.None,
		value.NewObject(map[string]value.Value{"body": value.NewString("fox fox fox")})))
	require.NoError(t, fulltext.Put(tx, "ns", "db", "article", ix, an, keys.RecordIDString("b"), value.None,
		value.NewObject(map[string]value.Value{"body": value.NewString("dog")})))

	// N=2, n(fox)=1, tf=3, |D|=3, avgDL=(3+1)/2=2
	n, docFreq, tf, dl, avgDL := 2.0, 1.0, 3.0, 3.0, 2.0
	k1, b := 1.2, 0.75
	idf := math.Log((n - docFreq + 0.5) / (docFreq + 0.5))
	tfPrime := 1 + math.Log(tf)
	want := idf * (k1 + 1) * tfPrime / (k1*(1-b+b*dl/avgDL) + 1)

	scorer := fulltext.BM25Scorer{NS: "ns", DB: "db", TB: "article", Index: ix}
	got, err := scorer.Score(tx, keys.RecordIDString("a"), []string{"fox"})
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-9)
}
