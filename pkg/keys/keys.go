// Package keys implements the order-preserving binary key codec (spec
// layer L0): every logical entity in the system — namespaces, databases,
// tables, records, graph edges, live queries, index definitions and
// data, and root/cluster state — encodes to a single flat, lexically
// ordered byte keyspace.
//
// The shapes are grounded on the original key category layout recovered
// from the reference implementation: table scope keys begin
// "/*{ns}\0*{db}\0*{tb}\0", database scope "/*{ns}\0*{db}\0", namespace
// scope "/*{ns}\0", and root scope "/!...". Each category appends a
// distinguishing tag after the scope prefix (e.g. "*" for a record,
// "~" for a graph edge link, "!lq" for a live query, "!ix"/"+" for index
// definitions/data).
package keys

import (
	"github.com/google/uuid"
	"github.com/zeebo/errs"
)

// Error is the class for all key codec failures.
var Error = errs.Class("keys")

// ErrMalformed is returned by Decode when the input bytes are not a
// well-formed key of the expected category.
var ErrMalformed = Error.New("malformed key")

const (
	sepStar  = '*'
	sepBang  = '!'
	sepTilde = '~'
	sepPlus  = '+'
	nul      = 0x00
)

func putString(buf []byte, s string) []byte {
	buf = append(buf, s...)
	return append(buf, nul)
}

// readString reads a NUL-terminated string starting at buf[0] and
// returns the decoded string plus the remaining bytes.
func readString(buf []byte) (string, []byte, error) {
	for i, b := range buf {
		if b == nul {
			return string(buf[:i]), buf[i+1:], nil
		}
	}
	return "", nil, ErrMalformed
}

// NamespacePrefix returns the scope prefix for keys under namespace ns:
// "/*{ns}\0".
func NamespacePrefix(ns string) []byte {
	buf := []byte{'/', sepStar}
	return putString(buf, ns)
}

// NamespaceSuffix returns the exclusive upper bound for the namespace
// scope.
func NamespaceSuffix(ns string) []byte {
	return append(NamespacePrefix(ns), 0xff)
}

// DatabasePrefix returns the scope prefix for keys under database db in
// namespace ns: "/*{ns}\0*{db}\0".
func DatabasePrefix(ns, db string) []byte {
	buf := NamespacePrefix(ns)
	buf = append(buf, sepStar)
	return putString(buf, db)
}

// DatabaseSuffix returns the exclusive upper bound for the database
// scope.
func DatabaseSuffix(ns, db string) []byte {
	return append(DatabasePrefix(ns, db), 0xff)
}

// TablePrefix returns the scope prefix for keys under table tb:
// "/*{ns}\0*{db}\0*{tb}\0".
func TablePrefix(ns, db, tb string) []byte {
	buf := DatabasePrefix(ns, db)
	buf = append(buf, sepStar)
	return putString(buf, tb)
}

// TableSuffix returns the exclusive upper bound for the table scope.
func TableSuffix(ns, db, tb string) []byte {
	return append(TablePrefix(ns, db, tb), 0xff)
}

// RootPrefix returns the prefix for root/cluster scope keys: "/!".
func RootPrefix() []byte {
	return []byte{'/', sepBang}
}

// RootSuffix returns the exclusive upper bound for the root scope.
func RootSuffix() []byte {
	return []byte{'/', sepBang + 1}
}

// --- Thing (record document) keys: "/*{ns}\0*{db}\0*{tb}\0*{id}" ---

// ThingPrefix returns the half-open range start for all records in
// table tb.
func ThingPrefix(ns, db, tb string) []byte {
	k := TablePrefix(ns, db, tb)
	return append(k, sepStar, nul)
}

// ThingSuffix returns the half-open range end for all records in table
// tb.
func ThingSuffix(ns, db, tb string) []byte {
	k := TablePrefix(ns, db, tb)
	return append(k, sepStar, 0xff)
}

// Thing encodes a full record key: table scope + '*' + the record id's
// encoded form.
func Thing(ns, db, tb string, id RecordIDKey) []byte {
	k := TablePrefix(ns, db, tb)
	k = append(k, sepStar)
	return append(k, id.Encode()...)
}

// ThingTagOffset returns the byte offset, within any key produced by
// Thing for this (ns, db, tb), of the record id's leading variant tag
// byte. A schema migration that renumbers the RecordIDKey tag space
// (see recordid.go's legacyTagThreshold) rewrites exactly this one byte
// per key, without needing to fully decode and re-encode the id.
func ThingTagOffset(ns, db, tb string) int {
	return len(TablePrefix(ns, db, tb)) + 1
}

// DecodeThing reverses Thing.
func DecodeThing(buf []byte) (ns, db, tb string, id RecordIDKey, err error) {
	if len(buf) < 2 || buf[0] != '/' || buf[1] != sepStar {
		return "", "", "", nil, ErrMalformed
	}
	rest := buf[2:]
	ns, rest, err = readString(rest)
	if err != nil {
		return
	}
	if len(rest) < 1 || rest[0] != sepStar {
		return "", "", "", nil, ErrMalformed
	}
	db, rest, err = readString(rest[1:])
	if err != nil {
		return
	}
	if len(rest) < 1 || rest[0] != sepStar {
		return "", "", "", nil, ErrMalformed
	}
	tb, rest, err = readString(rest[1:])
	if err != nil {
		return
	}
	if len(rest) < 1 || rest[0] != sepStar {
		return "", "", "", nil, ErrMalformed
	}
	id, err = DecodeRecordIDKey(rest[1:])
	return
}

// --- Graph edge keys: "/*{ns}\0*{db}\0*{tb}\0~{dir}{edge}{target}" ---

// EdgeDirection distinguishes outgoing vs. incoming edge links.
type EdgeDirection byte

const (
	// EdgeOut marks an outgoing edge link (stored on the source record).
	EdgeOut EdgeDirection = 'o'
	// EdgeIn marks an incoming edge link (stored on the target record).
	EdgeIn EdgeDirection = 'i'
)

// Edge encodes a graph edge link key: table scope of the record holding
// the link, '~', the direction, the edge table's Thing encoding and the
// target's Thing encoding.
func Edge(ns, db, tb string, id RecordIDKey, dir EdgeDirection, edgeTB string, edgeID RecordIDKey, targetTB string, targetID RecordIDKey) []byte {
	k := Thing(ns, db, tb, id)
	k = append(k, sepTilde, byte(dir))
	k = append(k, Thing(ns, db, edgeTB, edgeID)...)
	k = append(k, Thing(ns, db, targetTB, targetID)...)
	return k
}

// EdgePrefix returns the half-open range start for all edge links on
// record id in the given direction.
func EdgePrefix(ns, db, tb string, id RecordIDKey, dir EdgeDirection) []byte {
	k := Thing(ns, db, tb, id)
	return append(k, sepTilde, byte(dir))
}

// EdgeSuffix returns the half-open range end for all edge links on
// record id in the given direction.
func EdgeSuffix(ns, db, tb string, id RecordIDKey, dir EdgeDirection) []byte {
	return append(EdgePrefix(ns, db, tb, id, dir), 0xff)
}

// --- Table live query keys: "/*{ns}\0*{db}\0*{tb}\0!lq{uuid}" ---

// LiveQuery encodes a table-scoped live query definition key.
func LiveQuery(ns, db, tb string, lq uuid.UUID) []byte {
	k := TablePrefix(ns, db, tb)
	k = append(k, sepBang, 'l', 'q')
	return append(k, lq[:]...)
}

// LiveQueryPrefix returns the half-open range start for all live
// queries on table tb.
func LiveQueryPrefix(ns, db, tb string) []byte {
	k := TablePrefix(ns, db, tb)
	return append(k, sepBang, 'l', 'q', nul)
}

// LiveQuerySuffix returns the half-open range end for all live queries
// on table tb. An extra trailing zero byte is appended after the
// all-0xff UUID so that a half-open upper bound still includes the
// maximum UUID value itself.
func LiveQuerySuffix(ns, db, tb string) []byte {
	k := TablePrefix(ns, db, tb)
	k = append(k, sepBang, 'l', 'q')
	for i := 0; i < 16; i++ {
		k = append(k, 0xff)
	}
	return append(k, nul)
}

// --- Index definition & data keys ---

// IndexDefinition encodes an index definition key:
// "/*{ns}\0*{db}\0*{tb}\0!ix{name}\0".
func IndexDefinition(ns, db, tb, name string) []byte {
	k := TablePrefix(ns, db, tb)
	k = append(k, sepBang, 'i', 'x')
	return putString(k, name)
}

// IndexDefinitionPrefix returns the half-open range start for all index
// definitions on table tb.
func IndexDefinitionPrefix(ns, db, tb string) []byte {
	k := TablePrefix(ns, db, tb)
	return append(k, sepBang, 'i', 'x', nul)
}

// IndexDefinitionSuffix returns the half-open range end for all index
// definitions on table tb.
func IndexDefinitionSuffix(ns, db, tb string) []byte {
	k := TablePrefix(ns, db, tb)
	return append(k, sepBang, 'i', 'x', 0xff)
}

// IndexDataPrefix returns the scope prefix for data belonging to index
// ixID on table tb: "/*{ns}\0*{db}\0*{tb}\0+{ixId}".
func IndexDataPrefix(ns, db, tb string, ixID uint32) []byte {
	k := TablePrefix(ns, db, tb)
	k = append(k, sepPlus)
	return appendUint32(k, ixID)
}

// IndexDataSuffix returns the exclusive upper bound for index data
// belonging to ixID.
func IndexDataSuffix(ns, db, tb string, ixID uint32) []byte {
	return append(IndexDataPrefix(ns, db, tb, ixID), 0xff)
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// --- Generic definition keys: {scope}!{tag}{name}\0 ---
//
// DEFINE NAMESPACE/DATABASE/TABLE/FIELD/INDEX/ANALYZER/FUNCTION/PARAM/
// EVENT/USER/ACCESS/TOKEN/SEQUENCE/TYPE/MODULE/CONFIG all share this one
// shape: a two-byte kind tag after the scope's "!" sigil, then the
// definition's NUL-terminated name. pkg/catalog supplies the scope
// prefix (RootPrefix for NS, NamespacePrefix for DB, DatabasePrefix for
// everything database-scoped, TablePrefix for FIELD/EVENT) and the tag.

// DefinitionKey appends "!{tag}{name}\0" to scope.
func DefinitionKey(scope []byte, tag string, name string) []byte {
	k := append(append([]byte{}, scope...), sepBang)
	k = append(k, tag...)
	return putString(k, name)
}

// DefinitionPrefix returns the half-open range start for every
// definition of the given tag under scope.
func DefinitionPrefix(scope []byte, tag string) []byte {
	k := append(append([]byte{}, scope...), sepBang)
	return append(k, tag...)
}

// DefinitionSuffix returns the half-open range end for every definition
// of the given tag under scope.
func DefinitionSuffix(scope []byte, tag string) []byte {
	return append(DefinitionPrefix(scope, tag), 0xff)
}

// --- Change feed keys: "/*{ns}\0*{db}\0#{versionstamp}" ---
//
// One append-only log per database, ordered by a 10-byte versionstamp
// (8-byte millisecond wall clock + 2-byte intra-millisecond counter, as
// allocated by kvs.Transaction.Versionstamp) so ShowChanges(since) is a
// single range scan.

// ChangeFeedPrefix returns the scope prefix for a database's change
// feed log.
func ChangeFeedPrefix(ns, db string) []byte {
	k := DatabasePrefix(ns, db)
	return append(k, '#')
}

// ChangeFeedSuffix returns the exclusive upper bound for a database's
// change feed log.
func ChangeFeedSuffix(ns, db string) []byte {
	return append(ChangeFeedPrefix(ns, db), 0xff)
}

// ChangeFeedKey encodes one change feed entry's key at versionstamp vs
// (a 10-byte big-endian versionstamp). Entries order by when their
// versionstamp was allocated, which happens before the writing
// transaction commits, so this order need not match commit order.
func ChangeFeedKey(ns, db string, vs [10]byte) []byte {
	return append(ChangeFeedPrefix(ns, db), vs[:]...)
}

// ChangeFeedSince returns the inclusive range start for every change
// feed entry at or after vs.
func ChangeFeedSince(ns, db string, vs [10]byte) []byte {
	return ChangeFeedKey(ns, db, vs)
}

// Node encodes a root-scope cluster node key: "/!nd{uuid}".
func Node(nd uuid.UUID) []byte {
	k := RootPrefix()
	k = append(k, 'n', 'd')
	return append(k, nd[:]...)
}

// StorageVersionKey is the single root-scope key holding the process-wide
// storage version: "/!version".
func StorageVersionKey() []byte {
	k := RootPrefix()
	return append(k, 'v', 'e', 'r', 's', 'i', 'o', 'n')
}
