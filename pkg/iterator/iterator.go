// Package iterator is the glue between a resolved execution plan and the
// document lifecycle (layer L5): it evaluates a statement's `what`
// targets into candidate rows, optionally swaps a table scan for an
// index-driven candidate stream, visits each candidate, and collects/
// orders/limits the results. Grounded on
// _examples/original_source/core/src/dbs/group.rs (grouping buckets) and
// core/src/fnc/search.rs (index-context resolution for search::score).
//
// Parsing SET/CONTENT/MERGE/PATCH/WHERE/GROUP/ORDER expressions is the
// query layer's job and a non-goal here; a Statement is built
// already-resolved, the way pkg/doc's Document is.
package iterator

import (
	"math/rand"
	"sort"

	"github.com/meridiandb/meridian/pkg/kvs"
	"github.com/meridiandb/meridian/pkg/kvstore"
	"github.com/meridiandb/meridian/pkg/value"
)

// Error is the iterator package's error class.
var Error = kvstore.Error

// ErrOnlyExpectedOneRow is returned when ONLY mode's result count != 1.
var ErrOnlyExpectedOneRow = Error.New("expected exactly one result")

// WherePredicate filters a row's document value. A nil predicate matches
// every row.
type WherePredicate func(v value.Value) (bool, error)

// VisitFunc drives one candidate through whatever side effect this
// statement performs (the document lifecycle's mutating steps for
// CREATE/UPDATE/DELETE/RELATE, or a plain projection for SELECT). It
// receives the row's decoded value and returns the value to collect. A
// nil VisitFunc collects the row's value unchanged (a bare SELECT).
type VisitFunc func(tx *kvs.Transaction, row Row) (value.Value, error)

// OrderKey sorts collected results by a dotted field path.
type OrderKey struct {
	Field string
	Desc  bool
}

// Statement is one resolved execution plan: a source of candidate rows,
// an optional index plan, a WHERE filter, a visitor, and the
// GROUP/ORDER/LIMIT/START/SPLIT/FETCH/ONLY clauses.
type Statement struct {
	NS, DB, TB string

	Source Source
	Plan   *Plan

	Where WherePredicate
	Visit VisitFunc

	Group *GroupBy // nil: no GROUP BY, visited rows are collected as-is

	Order    []OrderKey
	OrderRnd bool
	Rand     *rand.Rand // source for ORDER BY RAND(); nil uses the package default

	Start, Limit int // 0 Limit means unbounded
	Split        string
	Fetch        []string
	Only         bool
}

// Run executes the statement against tx and returns the final, ordered,
// limited result set.
func (s *Statement) Run(tx *kvs.Transaction) ([]value.Value, error) {
	rows, err := s.Source.Eval(tx, s.NS, s.DB, s.TB)
	if err != nil {
		return nil, err
	}
	if s.Plan != nil {
		rows, err = s.Plan.Apply(tx, s.NS, s.DB, s.TB, rows)
		if err != nil {
			return nil, err
		}
	}

	var results []value.Value
	for _, row := range rows {
		if s.Where != nil {
			ok, err := s.Where(row.Value)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out := row.Value
		if s.Visit != nil {
			out, err = s.Visit(tx, row)
			if err != nil {
				return nil, err
			}
		}
		results = append(results, out)
	}

	if s.Group != nil {
		results, err = s.Group.Finish(results)
		if err != nil {
			return nil, err
		}
	}

	if s.Split != "" {
		results = splitOn(results, s.Split)
	}

	if s.OrderRnd {
		shuffle(results, s.Rand)
	} else if len(s.Order) > 0 {
		sortByKeys(results, s.Order)
	}

	results = paginate(results, s.Start, s.Limit)

	for _, path := range s.Fetch {
		if err := fetchPath(tx, s.NS, s.DB, results, path); err != nil {
			return nil, err
		}
	}

	if s.Only {
		if len(results) != 1 {
			return nil, ErrOnlyExpectedOneRow
		}
	}
	return results, nil
}

func splitOn(in []value.Value, field string) []value.Value {
	var out []value.Value
	for _, v := range in {
		arr := v.Pick(field)
		if arr.Kind != value.KindArray || len(arr.Array) == 0 {
			out = append(out, v)
			continue
		}
		for _, el := range arr.Array {
			clone := cloneObjectValue(v)
			clone.Object[field] = el
			out = append(out, clone)
		}
	}
	return out
}

func cloneObjectValue(v value.Value) value.Value {
	if v.Kind != value.KindObject {
		return v
	}
	m := make(map[string]value.Value, len(v.Object))
	for k, el := range v.Object {
		m[k] = el
	}
	return value.NewObject(m)
}

func shuffle(results []value.Value, r *rand.Rand) {
	if r == nil {
		r = defaultRand
	}
	r.Shuffle(len(results), func(i, j int) { results[i], results[j] = results[j], results[i] })
}

var defaultRand = rand.New(rand.NewSource(1))

func sortByKeys(results []value.Value, order []OrderKey) {
	sort.SliceStable(results, func(i, j int) bool {
		for _, ord := range order {
			c := value.Compare(results[i].Pick(ord.Field), results[j].Pick(ord.Field))
			if c == 0 {
				continue
			}
			if ord.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func paginate(results []value.Value, start, limit int) []value.Value {
	if start > 0 {
		if start >= len(results) {
			return nil
		}
		results = results[start:]
	}
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}
