// Package catalog implements the schema layer (layer L3): typed
// definitions for every DEFINE-able kind, DEFINE/ALTER/REMOVE semantics
// with IF NOT EXISTS/OVERWRITE/IF EXISTS, and the cache_indexes_ts bump
// that lets higher layers cheaply invalidate stale index plans.
//
// Each definition type below mirrors the reference catalog's revisioned
// struct shape (see original_source/crates/core/src/catalog/access.rs):
// readers tolerate older revisions by leaving newer fields at their zero
// value, which is why every struct here carries an explicit Revision
// field rather than relying on msgpack's own implicit defaulting.
package catalog

import "time"

// TableKind distinguishes a normal document table from a graph relation
// table or one permitting either.
type TableKind int

const (
	TableAny TableKind = iota
	TableNormal
	TableRelation
)

// Permission is a per-action ACL expression, stored as source text and
// evaluated by the query layer; the catalog only stores and round-trips
// it.
type Permission struct {
	Select string
	Create string
	Update string
	Delete string
}

// NamespaceDefinition is the root of the ns/db/tb hierarchy.
type NamespaceDefinition struct {
	Revision uint8 `msgpack:"rev"`
	Name     string
	Comment  string
}

// DatabaseDefinition is a database within a namespace.
type DatabaseDefinition struct {
	Revision uint8 `msgpack:"rev"`
	Name     string
	Comment  string
}

// TableDefinition is a table within a database.
type TableDefinition struct {
	Revision       uint8 `msgpack:"rev"`
	Name           string
	Kind           TableKind
	Schemafull     bool
	Drop           bool
	AsSelectQuery  string // non-empty for DEFINE TABLE ... AS SELECT ...
	Enforced       bool   // Kind == TableRelation: RELATE must fail IdNotFound if in/out don't exist
	Permissions    Permission
	ChangeFeed     *ChangeFeedConfig
	CacheIndexesTS int64 // bumped on any FIELD/INDEX write under this table
	Comment        string
}

// FieldDefinition is one field on a table.
type FieldDefinition struct {
	Revision    uint8 `msgpack:"rev"`
	Name        string
	Type        string // textual type expression, e.g. "option<string>"
	Value       string // VALUE expression
	Assert      string // ASSERT expression
	Default     string // DEFAULT expression
	Readonly    bool
	Permissions Permission
	Comment     string
}

// Distance enumerates the vector distance functions an HNSW index can
// use.
type Distance int

const (
	DistEuclidean Distance = iota
	DistManhattan
	DistCosine
	DistHamming
	DistMinkowski
	DistJaccard
	DistChebyshev
)

// BuildStatus is the observable state of a concurrent index build.
type BuildStatus string

const (
	BuildStarted  BuildStatus = "started"
	BuildCleaning BuildStatus = "cleaning"
	BuildIndexing BuildStatus = "indexing"
	BuildReady    BuildStatus = "ready"
	BuildError    BuildStatus = "error"
)

// BuildState is the mutable status of a background (CONCURRENTLY)
// index build, stored alongside the index's own definition.
type BuildState struct {
	Status BuildStatus
	Error  string
}

// FullTextParams configures a FULLTEXT index.
type FullTextParams struct {
	Analyzer   string
	BM25K1     float64
	BM25B      float64
	Highlights bool
}

// HNSWParams configures an HNSW vector index.
type HNSWParams struct {
	Dimension      int
	Distance       Distance
	MinkowskiOrder float64 // only meaningful when Distance == DistMinkowski
	M              int     // max bidirectional links per node, default 12
	EFConstruction int     // default 150
}

// IndexDefinition is a secondary index on a table.
type IndexDefinition struct {
	Revision    uint8 `msgpack:"rev"`
	ID          uint32
	Name        string
	Fields      []string
	Unique      bool
	FullText    *FullTextParams
	HNSW        *HNSWParams
	Concurrent  bool
	Build       BuildState
	Comment     string
}

// AnalyzerDefinition names a tokenizer+filter chain used by FULLTEXT
// indexes (pkg/index/fulltext wires the names to actual implementations).
type AnalyzerDefinition struct {
	Revision  uint8 `msgpack:"rev"`
	Name      string
	Tokenizer string
	Filters   []string
	Comment   string
}

// FunctionDefinition is a DEFINE FUNCTION (a stored, named closure).
type FunctionDefinition struct {
	Revision uint8 `msgpack:"rev"`
	Name     string
	Args     []string
	Body     string
	Comment  string
}

// ParamDefinition is a DEFINE PARAM ($name) database-scoped constant.
type ParamDefinition struct {
	Revision uint8 `msgpack:"rev"`
	Name     string
	Value    []byte // msgpack-encoded value.Value
	Comment  string
}

// EventDefinition is a DEFINE EVENT trigger on a table.
type EventDefinition struct {
	Revision uint8 `msgpack:"rev"`
	Name     string
	When     string
	Then     []string
	Comment  string
}

// UserDefinition is a DEFINE USER account.
type UserDefinition struct {
	Revision uint8 `msgpack:"rev"`
	Name     string
	Hash     string
	Roles    []string
	Comment  string
}

// AccessDuration mirrors the reference implementation's three
// independent expiry windows for a DEFINE ACCESS method.
type AccessDuration struct {
	Grant   time.Duration
	Token   time.Duration
	Session time.Duration
}

// AccessDefinition is a DEFINE ACCESS authentication method.
type AccessDefinition struct {
	Revision uint8 `msgpack:"rev"`
	Name     string
	Duration AccessDuration
	Comment  string
}

// SequenceDefinition is a DEFINE SEQUENCE monotonic counter.
type SequenceDefinition struct {
	Revision uint8 `msgpack:"rev"`
	Name     string
	Batch    int64
	Comment  string
}

// TypeDefinition is a DEFINE TYPE named type alias.
type TypeDefinition struct {
	Revision uint8 `msgpack:"rev"`
	Name     string
	Expr     string
	Comment  string
}

// ModuleDefinition is a DEFINE MODULE (a named script bundle).
type ModuleDefinition struct {
	Revision uint8 `msgpack:"rev"`
	Name     string
	Source   string
	Comment  string
}

// ConfigDefinition is a DEFINE CONFIG entry (e.g. GraphQL settings).
type ConfigDefinition struct {
	Revision uint8 `msgpack:"rev"`
	Name     string
	Value    []byte
}

// ChangeFeedConfig enables and bounds the retention of a table's change
// feed.
type ChangeFeedConfig struct {
	Expiry       time.Duration
	StoreOriginal bool
}
