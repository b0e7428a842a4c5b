package fulltext

import (
	"math"

	"github.com/meridiandb/meridian/pkg/catalog"
	"github.com/meridiandb/meridian/pkg/keys"
	"github.com/meridiandb/meridian/pkg/kvs"
)

// BM25Scorer computes Okapi BM25 relevance scores for a FULLTEXT index,
// reproducing compute_bm25_score's formula term for term: for each
// query term qi with document frequency n and term frequency tf in a
// document of length |D| over a corpus averaging avgDL,
//
//	idf  = ln((N - n + 0.5) / (n + 0.5))
//	tf'  = 1 + ln(tf)
//	score += idf * (k1+1) * tf' / (k1*(1-b+b*|D|/avgDL) + 1)
type BM25Scorer struct {
	NS, DB, TB string
	Index      *catalog.IndexDefinition
}

func (s BM25Scorer) k1() float64 {
	if s.Index.FullText != nil && s.Index.FullText.BM25K1 != 0 {
		return s.Index.FullText.BM25K1
	}
	return 1.2
}

func (s BM25Scorer) b() float64 {
	if s.Index.FullText != nil {
		return s.Index.FullText.BM25B
	}
	return 0.75
}

// Score returns the BM25 relevance of id against the analyzed query
// terms. A term absent from id's document contributes nothing. A term
// found in exactly half the corpus has an idf of zero, and one found in
// more than half has a negative idf, so it lowers the score.
func (s BM25Scorer) Score(tx *kvs.Transaction, id keys.RecordIDKey, queryTerms []string) (float64, error) {
	st, err := readStats(tx, s.NS, s.DB, s.TB, s.Index.ID)
	if err != nil {
		return 0, err
	}
	if st.TotalDocs == 0 {
		return 0, nil
	}
	avgDL := float64(st.TotalLength) / float64(st.TotalDocs)

	dl, err := docLength(tx, s.NS, s.DB, s.TB, s.Index.ID, id)
	if err != nil {
		return 0, err
	}

	k1 := s.k1()
	b := s.b()
	n := float64(st.TotalDocs)

	var score float64
	seen := make(map[string]bool, len(queryTerms))
	for _, term := range queryTerms {
		if seen[term] {
			continue
		}
		seen[term] = true

		tf, found, err := termFrequency(tx, s.NS, s.DB, s.TB, s.Index.ID, term, id)
		if err != nil {
			return 0, err
		}
		if !found || tf == 0 {
			continue
		}
		docFreq, err := termDocCount(tx, s.NS, s.DB, s.TB, s.Index.ID, term)
		if err != nil {
			return 0, err
		}
		if docFreq == 0 {
			continue
		}

		idf := math.Log((n - float64(docFreq) + 0.5) / (float64(docFreq) + 0.5))
		tfPrime := 1 + math.Log(float64(tf))
		denom := k1*(1-b+b*float64(dl)/avgDL) + 1
		score += idf * (k1 + 1) * tfPrime / denom
	}
	return score, nil
}
