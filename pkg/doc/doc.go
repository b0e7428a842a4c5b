// Package doc implements the per-record document lifecycle (layer
// L4): the fixed, ordered pipeline that CREATE/UPDATE/DELETE/RELATE all
// funnel through, grounded step-for-step on the reference
// implementation's Document::relate (original_source/core/src/doc/
// relate.rs). The query layer that parses SET/CONTENT/MERGE/PATCH data
// clauses and VALUE/ASSERT/DEFAULT/PERMISSIONS expressions is an
// external collaborator; Document depends on it only through the
// narrow Mutator/Evaluator interfaces below.
package doc

import (
	"github.com/meridiandb/meridian/pkg/catalog"
	"github.com/meridiandb/meridian/pkg/keys"
	"github.com/meridiandb/meridian/pkg/kvs"
	"github.com/meridiandb/meridian/pkg/kvstore"
	"github.com/meridiandb/meridian/pkg/value"
)

// Error is the doc package's error class.
var Error = kvstore.Error

// Action names which top-level statement is driving this pass.
type Action int

const (
	ActionCreate Action = iota
	ActionUpdate
	ActionDelete
	ActionRelate
)

// Actor is the authenticated identity PERMISSIONS expressions evaluate
// against.
type Actor struct {
	ID    string
	Roles []string
}

// EdgeLink carries the RELATE endpoints edges() needs to write all four
// graph keys.
type EdgeLink struct {
	EdgeTable string
	EdgeID    keys.RecordIDKey
	TargetTB  string
	TargetID  keys.RecordIDKey
}

// Mutator applies a SET/CONTENT/MERGE/PATCH data clause to a record's
// working value, producing the post-alter() value from the pre-alter()
// one.
type Mutator func(before value.Value) (value.Value, error)

// Env is the evaluation environment passed to an Evaluator.
type Env struct {
	Actor  Actor
	Before value.Value
	After  value.Value
	Field  string
}

// Evaluator runs one stored VALUE/ASSERT/DEFAULT/PERMISSIONS expression
// source string against an Env.
type Evaluator interface {
	Eval(src string, env Env) (value.Value, error)
}

// IndexWriter maintains one index's on-disk entries as a document's
// value changes.
type IndexWriter interface {
	Put(tx *kvs.Transaction, ns, db, tb string, ix *catalog.IndexDefinition, id keys.RecordIDKey, before, after value.Value) error
	Remove(tx *kvs.Transaction, ns, db, tb string, ix *catalog.IndexDefinition, id keys.RecordIDKey, before value.Value) error
}

// ChangeFeedAppender appends one change-feed log entry per committed
// mutation.
type ChangeFeedAppender interface {
	Append(tx *kvs.Transaction, ns, db, tb string, id keys.RecordIDKey, before, after value.Value) error
}

// LiveDispatcher enqueues a notification for every live query matching
// a mutation.
type LiveDispatcher interface {
	Notify(tx *kvs.Transaction, ns, db, tb string, id keys.RecordIDKey, before, after value.Value) error
}

// EventRunner evaluates a table's DEFINE EVENT triggers.
type EventRunner interface {
	Run(tx *kvs.Transaction, ev *catalog.EventDefinition, env Env) error
}

// ViewRefresher recomputes a DEFINE TABLE ... AS SELECT ... projection
// table as its source table changes.
type ViewRefresher interface {
	Refresh(tx *kvs.Transaction, ns, db string, view *catalog.TableDefinition, ns2, db2, sourceTB string) error
}

// Hooks bundles every pluggable side effect the pipeline drives. A nil
// field disables that step, which test documents lean on to exercise
// the pipeline order in isolation.
type Hooks struct {
	Evaluator  Evaluator
	Index      IndexWriter
	ChangeFeed ChangeFeedAppender
	Live       LiveDispatcher
	Events     EventRunner
	Views      ViewRefresher
}

// Document is one record's single pass through the lifecycle pipeline.
type Document struct {
	TX    *kvs.Transaction
	Hooks Hooks

	NS, DB, TB string
	ID         keys.RecordIDKey
	Table      *catalog.TableDefinition

	Actor  Actor
	Action Action
	Mutate Mutator
	Edge   *EdgeLink // non-nil only when Action == ActionRelate

	Before value.Value // None if the record did not previously exist
	After  value.Value
}

func (d *Document) env(field string) Env {
	return Env{Actor: d.Actor, Before: d.Before, After: d.After, Field: field}
}

func (d *Document) key() []byte {
	return keys.Thing(d.NS, d.DB, d.TB, d.ID)
}
