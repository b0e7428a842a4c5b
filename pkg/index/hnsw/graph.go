package hnsw

import (
	"encoding/binary"
	"math"
	"math/rand"
	"sort"

	"github.com/meridiandb/meridian/pkg/catalog"
	"github.com/meridiandb/meridian/pkg/iterator"
	"github.com/meridiandb/meridian/pkg/keys"
	"github.com/meridiandb/meridian/pkg/kvs"
	"github.com/meridiandb/meridian/pkg/kvstore"
	"github.com/meridiandb/meridian/pkg/value"
	"github.com/vmihailenco/msgpack/v5"
)

// Error is the hnsw index package's error class.
var Error = kvstore.Error

// defaultRand seeds level assignment deterministically when a caller
// doesn't supply one, the same convention pkg/iterator uses for
// ORDER BY RAND().
var defaultRand = rand.New(rand.NewSource(1))

// Graph is a layered HNSW proximity graph over one index's vectors,
// stored directly as ordered kvstore keys the same way pkg/index/btree
// keeps no separate tree structure (elements are kept in two-way
// lookup keys instead of the reference's in-memory DashMap — see
// _examples/original_source/.../hnsw/elements.rs).
type Graph struct {
	NS, DB, TB string
	Index      *catalog.IndexDefinition
	Rand       *rand.Rand
}

func (g *Graph) rnd() *rand.Rand {
	if g.Rand != nil {
		return g.Rand
	}
	return defaultRand
}

func (g *Graph) params() *catalog.HNSWParams {
	return g.Index.HNSW
}

func (g *Graph) m() int {
	if p := g.params(); p != nil && p.M > 0 {
		return p.M
	}
	return 12
}

func (g *Graph) efConstruction() int {
	if p := g.params(); p != nil && p.EFConstruction > 0 {
		return p.EFConstruction
	}
	return 150
}

func (g *Graph) dist(a, b []float64) float64 {
	p := g.params()
	if p == nil {
		return Distance(catalog.DistEuclidean, 0, a, b)
	}
	return Distance(p.Distance, p.MinkowskiOrder, a, b)
}

func prefix(g *Graph) []byte { return keys.IndexDataPrefix(g.NS, g.DB, g.TB, g.Index.ID) }

func vectorKey(g *Graph, eid uint64) []byte {
	k := append(prefix(g), 'V')
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], eid)
	return append(k, b[:]...)
}

func elementOfKey(g *Graph, id keys.RecordIDKey) []byte {
	return append(append(prefix(g), 'T'), id.Encode()...)
}

func recordOfKey(g *Graph, eid uint64) []byte {
	k := append(prefix(g), 'R')
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], eid)
	return append(k, b[:]...)
}

func layerKey(g *Graph, layer int, eid uint64) []byte {
	k := append(prefix(g), 'N', byte(layer))
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], eid)
	return append(k, b[:]...)
}

func entryPointKey(g *Graph) []byte { return append(prefix(g), 'E') }

func nextIDKey(g *Graph) []byte { return append(prefix(g), 'I') }

type entryState struct {
	ElementID uint64
	MaxLayer  int
}

func readEntry(tx *kvs.Transaction, g *Graph) (entryState, bool, error) {
	raw, found, err := tx.Get(entryPointKey(g))
	if err != nil || !found {
		return entryState{}, found, err
	}
	var s entryState
	if err := msgpack.Unmarshal(raw, &s); err != nil {
		return entryState{}, false, Error.Wrap(err)
	}
	return s, true, nil
}

func writeEntry(tx *kvs.Transaction, g *Graph, s entryState) error {
	b, err := msgpack.Marshal(s)
	if err != nil {
		return Error.Wrap(err)
	}
	return tx.Put(entryPointKey(g), b, false)
}

func nextElementID(tx *kvs.Transaction, g *Graph) (uint64, error) {
	raw, found, err := tx.Get(nextIDKey(g))
	if err != nil {
		return 0, err
	}
	var n uint64
	if found && len(raw) == 8 {
		n = binary.BigEndian.Uint64(raw)
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n+1)
	if err := tx.Put(nextIDKey(g), b[:], false); err != nil {
		return 0, err
	}
	return n, nil
}

func vectorOf(v value.Value) []float64 {
	if v.Kind != value.KindArray {
		return nil
	}
	out := make([]float64, len(v.Array))
	for i, e := range v.Array {
		switch e.Kind {
		case value.KindFloat:
			out[i] = e.Float
		case value.KindInt:
			out[i] = float64(e.Int)
		}
	}
	return out
}

func fieldVector(g *Graph, doc value.Value) []float64 {
	if len(g.Index.Fields) == 0 {
		return nil
	}
	return vectorOf(doc.Pick(g.Index.Fields[0]))
}

func getVector(tx *kvs.Transaction, g *Graph, eid uint64) ([]float64, error) {
	raw, found, err := tx.Get(vectorKey(g, eid))
	if err != nil || !found {
		return nil, err
	}
	var vec []float64
	if err := msgpack.Unmarshal(raw, &vec); err != nil {
		return nil, Error.Wrap(err)
	}
	return vec, nil
}

func putVector(tx *kvs.Transaction, g *Graph, eid uint64, vec []float64) error {
	b, err := msgpack.Marshal(vec)
	if err != nil {
		return Error.Wrap(err)
	}
	return tx.Put(vectorKey(g, eid), b, false)
}

func getNeighbors(tx *kvs.Transaction, g *Graph, layer int, eid uint64) ([]uint64, error) {
	raw, found, err := tx.Get(layerKey(g, layer, eid))
	if err != nil || !found {
		return nil, err
	}
	var ids []uint64
	if err := msgpack.Unmarshal(raw, &ids); err != nil {
		return nil, Error.Wrap(err)
	}
	return ids, nil
}

func putNeighbors(tx *kvs.Transaction, g *Graph, layer int, eid uint64, ids []uint64) error {
	b, err := msgpack.Marshal(ids)
	if err != nil {
		return Error.Wrap(err)
	}
	return tx.Put(layerKey(g, layer, eid), b, false)
}

// randomLevel draws an exponentially-distributed layer assignment with
// mL = 1/ln(M), the standard HNSW level distribution.
func (g *Graph) randomLevel() int {
	mL := 1 / math.Log(float64(g.m()))
	return int(math.Floor(-math.Log(g.rnd().Float64()+1e-12) * mL))
}

// searchLayer performs a greedy best-first search for the ef closest
// elements to q within one layer, starting from candidates.
func (g *Graph) searchLayer(tx *kvs.Transaction, q []float64, candidates []uint64, layer, ef int) ([]uint64, error) {
	visited := make(map[uint64]bool)
	type scored struct {
		id   uint64
		dist float64
	}
	var results []scored
	var frontier []scored
	for _, c := range candidates {
		vec, err := getVector(tx, g, c)
		if err != nil || vec == nil {
			continue
		}
		d := g.dist(q, vec)
		visited[c] = true
		results = append(results, scored{c, d})
		frontier = append(frontier, scored{c, d})
	}
	for len(frontier) > 0 {
		sort.Slice(frontier, func(i, j int) bool { return frontier[i].dist < frontier[j].dist })
		cur := frontier[0]
		frontier = frontier[1:]

		sort.Slice(results, func(i, j int) bool { return results[i].dist < results[j].dist })
		if len(results) >= ef && cur.dist > results[ef-1].dist {
			break
		}

		neighbors, err := getNeighbors(tx, g, layer, cur.id)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			if visited[n] {
				continue
			}
			visited[n] = true
			vec, err := getVector(tx, g, n)
			if err != nil || vec == nil {
				continue
			}
			d := g.dist(q, vec)
			results = append(results, scored{n, d})
			frontier = append(frontier, scored{n, d})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].dist < results[j].dist })
	if len(results) > ef {
		results = results[:ef]
	}
	out := make([]uint64, len(results))
	for i, r := range results {
		out[i] = r.id
	}
	return out, nil
}

// Insert adds a vector for id, assigning it a random layer and wiring
// it into its M nearest neighbors at every layer up to and including
// its own.
func (g *Graph) Insert(tx *kvs.Transaction, id keys.RecordIDKey, vec []float64) error {
	if vec == nil {
		return nil
	}
	eid, err := nextElementID(tx, g)
	if err != nil {
		return err
	}
	if err := putVector(tx, g, eid, vec); err != nil {
		return err
	}
	if err := tx.Put(elementOfKey(g, id), encodeU64(eid), false); err != nil {
		return err
	}
	if err := tx.Put(recordOfKey(g, eid), id.Encode(), false); err != nil {
		return err
	}

	level := g.randomLevel()
	entry, hasEntry, err := readEntry(tx, g)
	if err != nil {
		return err
	}
	if !hasEntry {
		for l := 0; l <= level; l++ {
			if err := putNeighbors(tx, g, l, eid, nil); err != nil {
				return err
			}
		}
		return writeEntry(tx, g, entryState{ElementID: eid, MaxLayer: level})
	}

	candidates := []uint64{entry.ElementID}
	for l := entry.MaxLayer; l > level; l-- {
		found, err := g.searchLayer(tx, vec, candidates, l, 1)
		if err != nil {
			return err
		}
		if len(found) > 0 {
			candidates = found[:1]
		}
	}
	m := g.m()
	for l := min(level, entry.MaxLayer); l >= 0; l-- {
		found, err := g.searchLayer(tx, vec, candidates, l, g.efConstruction())
		if err != nil {
			return err
		}
		if len(found) > m {
			found = found[:m]
		}
		if err := putNeighbors(tx, g, l, eid, found); err != nil {
			return err
		}
		for _, n := range found {
			nn, err := getNeighbors(tx, g, l, n)
			if err != nil {
				return err
			}
			nn = append(nn, eid)
			if len(nn) > m {
				nn = trimByDistance(tx, g, n, nn, m)
			}
			if err := putNeighbors(tx, g, l, n, nn); err != nil {
				return err
			}
		}
		candidates = found
	}
	if level > entry.MaxLayer {
		return writeEntry(tx, g, entryState{ElementID: eid, MaxLayer: level})
	}
	return nil
}

func trimByDistance(tx *kvs.Transaction, g *Graph, center uint64, ids []uint64, m int) []uint64 {
	cv, err := getVector(tx, g, center)
	if err != nil || cv == nil {
		if len(ids) > m {
			return ids[:m]
		}
		return ids
	}
	type scored struct {
		id   uint64
		dist float64
	}
	scoredIDs := make([]scored, 0, len(ids))
	for _, id := range ids {
		vec, err := getVector(tx, g, id)
		if err != nil || vec == nil {
			continue
		}
		scoredIDs = append(scoredIDs, scored{id, g.dist(cv, vec)})
	}
	sort.Slice(scoredIDs, func(i, j int) bool { return scoredIDs[i].dist < scoredIDs[j].dist })
	if len(scoredIDs) > m {
		scoredIDs = scoredIDs[:m]
	}
	out := make([]uint64, len(scoredIDs))
	for i, s := range scoredIDs {
		out[i] = s.id
	}
	return out
}

func encodeU64(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

// KnnSearch resolves a `<|K,EF|>` KNN operator to the K nearest record
// ids, implementing pkg/iterator.IndexContext.
type KnnSearch struct {
	Graph  *Graph
	Query  []float64
	K      int
	EF     int // search-time candidate list size; defaults to K if unset
}

// Candidates implements iterator.IndexContext.
func (s KnnSearch) Candidates(tx *kvs.Transaction) ([]iterator.IndexCandidate, error) {
	g := s.Graph
	entry, hasEntry, err := readEntry(tx, g)
	if err != nil || !hasEntry {
		return nil, err
	}
	ef := s.EF
	if ef < s.K {
		ef = s.K
	}
	candidates := []uint64{entry.ElementID}
	for l := entry.MaxLayer; l > 0; l-- {
		found, err := g.searchLayer(tx, s.Query, candidates, l, 1)
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			candidates = found[:1]
		}
	}
	found, err := g.searchLayer(tx, s.Query, candidates, 0, ef)
	if err != nil {
		return nil, err
	}

	pl := NewKnnPriorityList(s.K)
	for _, eid := range found {
		vec, err := getVector(tx, g, eid)
		if err != nil || vec == nil {
			continue
		}
		raw, ok, err := tx.Get(recordOfKey(g, eid))
		if err != nil || !ok {
			continue
		}
		id, err := keys.DecodeRecordIDKey(raw)
		if err != nil {
			return nil, err
		}
		pl.Add(g.dist(s.Query, vec), id)
	}
	ids := pl.Build()
	out := make([]iterator.IndexCandidate, len(ids))
	for i, id := range ids {
		out[i] = iterator.IndexCandidate{ID: id}
	}
	return out, nil
}

// Put indexes (or, for an update, re-indexes) this record's vector.
// HNSW links are append-only: an update inserts a fresh element rather
// than rewiring the old one in place (the reference implementation's
// elements.rs has no in-place vector mutation either).
func Put(tx *kvs.Transaction, ns, db, tb string, ix *catalog.IndexDefinition, id keys.RecordIDKey, before, after value.Value) error {
	g := &Graph{NS: ns, DB: db, TB: tb, Index: ix}
	if !before.IsNone() {
		if err := Remove(tx, ns, db, tb, ix, id, before); err != nil {
			return err
		}
	}
	vec := fieldVector(g, after)
	return g.Insert(tx, id, vec)
}

// Remove deletes this record's vector and id mappings. Graph links
// pointing at the removed element are left in place and filtered out
// lazily by searchLayer's getVector nil-check; there is no background
// compaction pass.
func Remove(tx *kvs.Transaction, ns, db, tb string, ix *catalog.IndexDefinition, id keys.RecordIDKey, before value.Value) error {
	if before.IsNone() {
		return nil
	}
	g := &Graph{NS: ns, DB: db, TB: tb, Index: ix}
	raw, found, err := tx.Get(elementOfKey(g, id))
	if err != nil || !found {
		return err
	}
	eid := binary.BigEndian.Uint64(raw)
	if err := tx.Del(vectorKey(g, eid)); err != nil {
		return err
	}
	if err := tx.Del(elementOfKey(g, id)); err != nil {
		return err
	}
	return tx.Del(recordOfKey(g, eid))
}
