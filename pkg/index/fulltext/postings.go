package fulltext

import (
	"encoding/binary"

	"github.com/meridiandb/meridian/pkg/catalog"
	"github.com/meridiandb/meridian/pkg/keys"
	"github.com/meridiandb/meridian/pkg/kvs"
	"github.com/meridiandb/meridian/pkg/kvstore"
	"github.com/meridiandb/meridian/pkg/value"
	"github.com/vmihailenco/msgpack/v5"
)

// Error is the fulltext index package's error class.
var Error = kvstore.Error

// Per-table index-data key layout under keys.IndexDataPrefix(ns,db,tb,ixID):
//   'P' + term NUL + id.Encode()  -> term frequency (4-byte BE uint32)   (postings)
//   'D' + id.Encode()             -> msgpack []string, the doc's terms  (for clean removal)
//   'L' + id.Encode()             -> doc length (4-byte BE uint32)
//   'S'                           -> msgpack{TotalDocs uint64, TotalLength uint64} (corpus stats)
//
// Per-document length chunking (batching lengths into 4096-doc chunks)
// is deliberately not modeled at this granularity: lengths are one key
// per document rather than a batched chunk, since pkg/kvstore's Store
// interface has no bulk-range-write primitive a chunked format would
// benefit from here.

func postingKey(ns, db, tb string, ixID uint32, term string, id keys.RecordIDKey) []byte {
	k := keys.IndexDataPrefix(ns, db, tb, ixID)
	k = append(k, 'P')
	k = append(k, term...)
	k = append(k, 0)
	return append(k, id.Encode()...)
}

func postingPrefix(ns, db, tb string, ixID uint32, term string) []byte {
	k := keys.IndexDataPrefix(ns, db, tb, ixID)
	k = append(k, 'P')
	k = append(k, term...)
	return append(k, 0)
}

func docTermsKey(ns, db, tb string, ixID uint32, id keys.RecordIDKey) []byte {
	k := keys.IndexDataPrefix(ns, db, tb, ixID)
	k = append(k, 'D')
	return append(k, id.Encode()...)
}

func docLengthKey(ns, db, tb string, ixID uint32, id keys.RecordIDKey) []byte {
	k := keys.IndexDataPrefix(ns, db, tb, ixID)
	k = append(k, 'L')
	return append(k, id.Encode()...)
}

func statsKey(ns, db, tb string, ixID uint32) []byte {
	return append(keys.IndexDataPrefix(ns, db, tb, ixID), 'S')
}

type stats struct {
	TotalDocs   uint64
	TotalLength uint64
}

func readStats(tx *kvs.Transaction, ns, db, tb string, ixID uint32) (stats, error) {
	raw, found, err := tx.Get(statsKey(ns, db, tb, ixID))
	if err != nil {
		return stats{}, err
	}
	if !found {
		return stats{}, nil
	}
	var s stats
	if err := msgpack.Unmarshal(raw, &s); err != nil {
		return stats{}, Error.Wrap(err)
	}
	return s, nil
}

func writeStats(tx *kvs.Transaction, ns, db, tb string, ixID uint32, s stats) error {
	b, err := msgpack.Marshal(s)
	if err != nil {
		return Error.Wrap(err)
	}
	return tx.Put(statsKey(ns, db, tb, ixID), b, false)
}

// FromDefinition adapts a catalog.AnalyzerDefinition (DEFINE ANALYZER)
// into an Analyzer. def may be nil when an index names no analyzer, in
// which case a bare ascii-fold/lowercase chain is used.
func FromDefinition(def *catalog.AnalyzerDefinition) Analyzer {
	if def == nil || len(def.Filters) == 0 {
		return Analyzer{Filters: []string{"ascii_fold", "lowercase"}}
	}
	return Analyzer{Filters: def.Filters}
}

func textOf(ix *catalog.IndexDefinition, doc value.Value) string {
	var parts []string
	for _, f := range ix.Fields {
		v := doc.Pick(f)
		if v.Kind == value.KindString {
			parts = append(parts, v.String)
		}
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}

// Put analyzes after's indexed fields into terms, writes a posting per
// term, stores the document's term list and length, and bumps the
// corpus stats. If before is not None, its prior postings are removed
// first.
func Put(tx *kvs.Transaction, ns, db, tb string, ix *catalog.IndexDefinition, an Analyzer, id keys.RecordIDKey, before, after value.Value) error {
	if !before.IsNone() {
		if err := Remove(tx, ns, db, tb, ix, id, before); err != nil {
			return err
		}
	}
	terms := an.Analyze(textOf(ix, after))
	if len(terms) == 0 {
		return nil
	}

	freq := make(map[string]uint32, len(terms))
	for _, t := range terms {
		freq[t]++
	}
	for term, tf := range freq {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], tf)
		if err := tx.Put(postingKey(ns, db, tb, ix.ID, term, id), b[:], false); err != nil {
			return err
		}
	}

	termList := make([]string, 0, len(freq))
	for term := range freq {
		termList = append(termList, term)
	}
	tb64, err := msgpack.Marshal(termList)
	if err != nil {
		return Error.Wrap(err)
	}
	if err := tx.Put(docTermsKey(ns, db, tb, ix.ID, id), tb64, false); err != nil {
		return err
	}

	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], uint32(len(terms)))
	if err := tx.Put(docLengthKey(ns, db, tb, ix.ID, id), lb[:], false); err != nil {
		return err
	}

	s, err := readStats(tx, ns, db, tb, ix.ID)
	if err != nil {
		return err
	}
	s.TotalDocs++
	s.TotalLength += uint64(len(terms))
	return writeStats(tx, ns, db, tb, ix.ID, s)
}

// Remove deletes this record's postings, term list, length, and
// decrements the corpus stats, computed from its pre-image.
func Remove(tx *kvs.Transaction, ns, db, tb string, ix *catalog.IndexDefinition, id keys.RecordIDKey, before value.Value) error {
	if before.IsNone() {
		return nil
	}
	raw, found, err := tx.Get(docTermsKey(ns, db, tb, ix.ID, id))
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	var terms []string
	if err := msgpack.Unmarshal(raw, &terms); err != nil {
		return Error.Wrap(err)
	}
	for _, term := range terms {
		if err := tx.Del(postingKey(ns, db, tb, ix.ID, term, id)); err != nil {
			return err
		}
	}

	lenRaw, found, err := tx.Get(docLengthKey(ns, db, tb, ix.ID, id))
	if err != nil {
		return err
	}
	var docLen uint32
	if found && len(lenRaw) == 4 {
		docLen = binary.BigEndian.Uint32(lenRaw)
	}

	if err := tx.Del(docTermsKey(ns, db, tb, ix.ID, id)); err != nil {
		return err
	}
	if err := tx.Del(docLengthKey(ns, db, tb, ix.ID, id)); err != nil {
		return err
	}

	s, err := readStats(tx, ns, db, tb, ix.ID)
	if err != nil {
		return err
	}
	if s.TotalDocs > 0 {
		s.TotalDocs--
	}
	if s.TotalLength >= uint64(docLen) {
		s.TotalLength -= uint64(docLen)
	}
	return writeStats(tx, ns, db, tb, ix.ID, s)
}

// termDocCount returns the number of documents containing term (the
// BM25 "n(qi)").
func termDocCount(tx *kvs.Transaction, ns, db, tb string, ixID uint32, term string) (uint64, error) {
	prefix := postingPrefix(ns, db, tb, ixID, term)
	end := append(append([]byte{}, prefix...), 0xff)
	items, err := tx.Scan(prefix, end, 0)
	if err != nil {
		return 0, err
	}
	return uint64(len(items)), nil
}

func termFrequency(tx *kvs.Transaction, ns, db, tb string, ixID uint32, term string, id keys.RecordIDKey) (uint32, bool, error) {
	raw, found, err := tx.Get(postingKey(ns, db, tb, ixID, term, id))
	if err != nil || !found {
		return 0, found, err
	}
	if len(raw) != 4 {
		return 0, false, nil
	}
	return binary.BigEndian.Uint32(raw), true, nil
}

func docLength(tx *kvs.Transaction, ns, db, tb string, ixID uint32, id keys.RecordIDKey) (uint32, error) {
	raw, found, err := tx.Get(docLengthKey(ns, db, tb, ixID, id))
	if err != nil || !found {
		return 0, err
	}
	if len(raw) != 4 {
		return 0, nil
	}
	return binary.BigEndian.Uint32(raw), nil
}
