package iterator

import (
	"github.com/meridiandb/meridian/pkg/keys"
	"github.com/meridiandb/meridian/pkg/kvs"
	"github.com/meridiandb/meridian/pkg/value"
)

// PlanKind names which index family, if any, the planner chose to
// replace a table scan with.
type PlanKind int

const (
	PlanNone PlanKind = iota
	PlanBTree
	PlanFullText
	PlanKnn
)

// IndexContext produces the candidate record ids an index plan
// resolved, optionally carrying a per-candidate score (full-text BM25)
// or distance (KNN) that an index-bound function like search::score
// reads back later. Implemented by pkg/index's btree/fulltext/hnsw
// readers; pkg/iterator only depends on this narrow interface, mirroring
// how core/src/fnc/search.rs resolves an IteratorRef to the active
// QueryExecutor/index context at plan time rather than hard-wiring the
// index package in.
type IndexContext interface {
	Candidates(tx *kvs.Transaction) ([]IndexCandidate, error)
}

// IndexCandidate is one record id produced by an index plan, with the
// metric that justified its inclusion.
type IndexCandidate struct {
	ID       keys.RecordIDKey
	Score    float64 // full-text BM25 score
	Distance float64 // KNN distance
}

// Plan wraps the IndexContext chosen for a statement's WHERE clause. A
// nil Plan (or PlanNone) means the statement falls back to the Source's
// own scan.
type Plan struct {
	Kind    PlanKind
	Context IndexContext
}

// Apply replaces rows with the index plan's candidates, re-fetching each
// candidate's document value by id. Rows that no longer exist (index
// stale relative to storage) are silently dropped, matching an index
// scan that tolerates a torn read against a concurrently mutated table.
func (p *Plan) Apply(tx *kvs.Transaction, ns, db, tb string, rows []Row) ([]Row, error) {
	if p == nil || p.Kind == PlanNone || p.Context == nil {
		return rows, nil
	}
	candidates, err := p.Context.Candidates(tx)
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0, len(candidates))
	for _, c := range candidates {
		raw, found, err := tx.Get(keys.Thing(ns, db, tb, c.ID))
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		v, err := value.Decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, Row{ID: c.ID, Value: v})
	}
	return out, nil
}
