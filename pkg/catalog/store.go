package catalog

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/meridiandb/meridian/pkg/keys"
	"github.com/meridiandb/meridian/pkg/kvs"
	"github.com/meridiandb/meridian/pkg/kvstore"
)

// Error is the catalog package's error class.
var Error = kvstore.Error

// ErrAlreadyExists is returned by Define when the name is taken and
// neither IfNotExists nor Overwrite was requested.
var ErrAlreadyExists = Error.New("definition already exists")

// ErrNotFound is returned by Get/Remove when the name is unknown.
var ErrNotFound = Error.New("definition not found")

// DefineOptions controls DEFINE's behavior when a definition of the
// same name already exists.
type DefineOptions struct {
	IfNotExists bool // silently keep the existing definition
	Overwrite   bool // silently replace the existing definition
}

// RemoveOptions controls REMOVE's behavior when the name is unknown.
type RemoveOptions struct {
	IfExists bool // silently succeed if nothing was defined
}

const currentRevision = 1

// These tags associate each definition kind with its two-byte key tag
// (the reference layout's "!{tag}" convention, e.g. "!tb", "!fd").
const (
	tagNamespace = "ns"
	tagDatabase  = "db"
	tagTable     = "tb"
	tagField     = "fd"
	tagIndex     = "ix"
	tagAnalyzer  = "az"
	tagFunction  = "fc"
	tagParam     = "pa"
	tagEvent     = "ev"
	tagUser      = "us"
	tagAccess    = "ac"
	tagSequence  = "sq"
	tagType      = "ty"
	tagModule    = "md"
	tagConfig    = "cf"
)

// Define writes def to key, subject to opts; it decodes the existing
// value only to decide existence, never to merge fields (ALTER is
// responsible for partial updates). Every successful Define clears the
// transaction-wide decode cache, since any cached definition keyed
// below this write's scope may now be stale.
func define(tx *kvs.Transaction, key []byte, def interface{}, opts DefineOptions) error {
	_, exists, err := tx.Get(key)
	if err != nil {
		return err
	}
	if exists {
		switch {
		case opts.IfNotExists:
			return nil
		case opts.Overwrite:
			// fall through and replace
		default:
			return ErrAlreadyExists
		}
	}
	b, err := msgpack.Marshal(def)
	if err != nil {
		return Error.Wrap(err)
	}
	if err := tx.Put(key, b, false); err != nil {
		return err
	}
	tx.ClearCache()
	return nil
}

// get decodes the definition at key into out, using and populating the
// transaction's decode cache.
func get(tx *kvs.Transaction, key []byte, out interface{}) (bool, error) {
	if v, ok := tx.CacheGet(key); ok {
		return assign(out, v)
	}
	raw, ok, err := tx.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := msgpack.Unmarshal(raw, out); err != nil {
		return false, Error.Wrap(err)
	}
	tx.CachePut(key, out)
	return true, nil
}

// assign copies a cached pointer's pointee into out's pointee; both
// must point at the same concrete definition type, which callers
// guarantee by keying each cache entry with a per-kind key prefix.
func assign(out interface{}, cached interface{}) (bool, error) {
	switch o := out.(type) {
	case *NamespaceDefinition:
		*o = *cached.(*NamespaceDefinition)
	case *DatabaseDefinition:
		*o = *cached.(*DatabaseDefinition)
	case *TableDefinition:
		*o = *cached.(*TableDefinition)
	case *FieldDefinition:
		*o = *cached.(*FieldDefinition)
	case *IndexDefinition:
		*o = *cached.(*IndexDefinition)
	case *AnalyzerDefinition:
		*o = *cached.(*AnalyzerDefinition)
	case *FunctionDefinition:
		*o = *cached.(*FunctionDefinition)
	case *ParamDefinition:
		*o = *cached.(*ParamDefinition)
	case *EventDefinition:
		*o = *cached.(*EventDefinition)
	case *UserDefinition:
		*o = *cached.(*UserDefinition)
	case *AccessDefinition:
		*o = *cached.(*AccessDefinition)
	case *SequenceDefinition:
		*o = *cached.(*SequenceDefinition)
	case *TypeDefinition:
		*o = *cached.(*TypeDefinition)
	case *ModuleDefinition:
		*o = *cached.(*ModuleDefinition)
	case *ConfigDefinition:
		*o = *cached.(*ConfigDefinition)
	default:
		return false, Error.New("unsupported definition type")
	}
	return true, nil
}

// remove deletes the definition at key, honoring opts.IfExists, and
// clears the decode cache on success.
func remove(tx *kvs.Transaction, key []byte, opts RemoveOptions) error {
	_, exists, err := tx.Get(key)
	if err != nil {
		return err
	}
	if !exists {
		if opts.IfExists {
			return nil
		}
		return ErrNotFound
	}
	if err := tx.Del(key); err != nil {
		return err
	}
	tx.ClearCache()
	return nil
}

// --- Namespace ---

func namespaceKey(ns string) []byte {
	return keys.DefinitionKey(keys.RootPrefix(), tagNamespace, ns)
}

func DefineNamespace(tx *kvs.Transaction, def *NamespaceDefinition, opts DefineOptions) error {
	def.Revision = currentRevision
	return define(tx, namespaceKey(def.Name), def, opts)
}

func GetNamespace(tx *kvs.Transaction, ns string) (*NamespaceDefinition, bool, error) {
	var def NamespaceDefinition
	ok, err := get(tx, namespaceKey(ns), &def)
	return &def, ok, err
}

func RemoveNamespace(tx *kvs.Transaction, ns string, opts RemoveOptions) error {
	return remove(tx, namespaceKey(ns), opts)
}

// --- Database ---

func databaseKey(ns, db string) []byte {
	return keys.DefinitionKey(keys.NamespacePrefix(ns), tagDatabase, db)
}

func DefineDatabase(tx *kvs.Transaction, ns string, def *DatabaseDefinition, opts DefineOptions) error {
	def.Revision = currentRevision
	return define(tx, databaseKey(ns, def.Name), def, opts)
}

func GetDatabase(tx *kvs.Transaction, ns, db string) (*DatabaseDefinition, bool, error) {
	var def DatabaseDefinition
	ok, err := get(tx, databaseKey(ns, db), &def)
	return &def, ok, err
}

func RemoveDatabase(tx *kvs.Transaction, ns, db string, opts RemoveOptions) error {
	return remove(tx, databaseKey(ns, db), opts)
}

// --- Table ---

func tableKey(ns, db, tb string) []byte {
	return keys.DefinitionKey(keys.DatabasePrefix(ns, db), tagTable, tb)
}

func DefineTable(tx *kvs.Transaction, ns, db string, def *TableDefinition, opts DefineOptions) error {
	def.Revision = currentRevision
	return define(tx, tableKey(ns, db, def.Name), def, opts)
}

func GetTable(tx *kvs.Transaction, ns, db, tb string) (*TableDefinition, bool, error) {
	var def TableDefinition
	ok, err := get(tx, tableKey(ns, db, tb), &def)
	return &def, ok, err
}

func RemoveTable(tx *kvs.Transaction, ns, db, tb string, opts RemoveOptions) error {
	return remove(tx, tableKey(ns, db, tb), opts)
}

// BumpCacheIndexesTS increments the owning table's CacheIndexesTS so
// higher layers holding a stale index plan notice on their next
// comparison. Called by DefineField/DefineIndex/RemoveField/RemoveIndex
// below, never by callers directly.
func BumpCacheIndexesTS(tx *kvs.Transaction, ns, db, tb string) error {
	def, ok, err := GetTable(tx, ns, db, tb)
	if err != nil || !ok {
		return err
	}
	def.CacheIndexesTS++
	return DefineTable(tx, ns, db, def, DefineOptions{Overwrite: true})
}

// --- Field ---

func fieldKey(ns, db, tb, name string) []byte {
	return keys.DefinitionKey(keys.TablePrefix(ns, db, tb), tagField, name)
}

func DefineField(tx *kvs.Transaction, ns, db, tb string, def *FieldDefinition, opts DefineOptions) error {
	def.Revision = currentRevision
	if err := define(tx, fieldKey(ns, db, tb, def.Name), def, opts); err != nil {
		return err
	}
	return BumpCacheIndexesTS(tx, ns, db, tb)
}

func GetField(tx *kvs.Transaction, ns, db, tb, name string) (*FieldDefinition, bool, error) {
	var def FieldDefinition
	ok, err := get(tx, fieldKey(ns, db, tb, name), &def)
	return &def, ok, err
}

func RemoveField(tx *kvs.Transaction, ns, db, tb, name string, opts RemoveOptions) error {
	if err := remove(tx, fieldKey(ns, db, tb, name), opts); err != nil {
		return err
	}
	return BumpCacheIndexesTS(tx, ns, db, tb)
}

// --- Index ---

func indexKey(ns, db, tb, name string) []byte {
	return keys.IndexDefinition(ns, db, tb, name)
}

func DefineIndex(tx *kvs.Transaction, ns, db, tb string, def *IndexDefinition, opts DefineOptions) error {
	def.Revision = currentRevision
	if def.Build.Status == "" {
		def.Build.Status = BuildReady
		if def.Concurrent {
			def.Build.Status = BuildStarted
		}
	}
	if err := define(tx, indexKey(ns, db, tb, def.Name), def, opts); err != nil {
		return err
	}
	return BumpCacheIndexesTS(tx, ns, db, tb)
}

func GetIndex(tx *kvs.Transaction, ns, db, tb, name string) (*IndexDefinition, bool, error) {
	var def IndexDefinition
	ok, err := get(tx, indexKey(ns, db, tb, name), &def)
	return &def, ok, err
}

func RemoveIndex(tx *kvs.Transaction, ns, db, tb, name string, opts RemoveOptions) error {
	if err := remove(tx, indexKey(ns, db, tb, name), opts); err != nil {
		return err
	}
	return BumpCacheIndexesTS(tx, ns, db, tb)
}

// SetIndexBuildStatus updates an index's background-build status in
// place, without bumping CacheIndexesTS — a status transition doesn't
// change query planning.
func SetIndexBuildStatus(tx *kvs.Transaction, ns, db, tb, name string, status BuildStatus, errMsg string) error {
	def, ok, err := GetIndex(tx, ns, db, tb, name)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	def.Build.Status = status
	def.Build.Error = errMsg
	return define(tx, indexKey(ns, db, tb, name), def, DefineOptions{Overwrite: true})
}

// ListFields returns every field defined on (ns, db, tb), in key order
// (i.e. alphabetical by name).
func ListFields(tx *kvs.Transaction, ns, db, tb string) ([]*FieldDefinition, error) {
	scope := keys.TablePrefix(ns, db, tb)
	items, err := tx.Scan(keys.DefinitionPrefix(scope, tagField), keys.DefinitionSuffix(scope, tagField), 0)
	if err != nil {
		return nil, err
	}
	out := make([]*FieldDefinition, 0, len(items))
	for _, it := range items {
		var def FieldDefinition
		if err := msgpack.Unmarshal(it.Value, &def); err != nil {
			return nil, Error.Wrap(err)
		}
		out = append(out, &def)
	}
	return out, nil
}

// ListIndexes returns every index defined on (ns, db, tb).
func ListIndexes(tx *kvs.Transaction, ns, db, tb string) ([]*IndexDefinition, error) {
	items, err := tx.Scan(keys.IndexDefinitionPrefix(ns, db, tb), keys.IndexDefinitionSuffix(ns, db, tb), 0)
	if err != nil {
		return nil, err
	}
	out := make([]*IndexDefinition, 0, len(items))
	for _, it := range items {
		var def IndexDefinition
		if err := msgpack.Unmarshal(it.Value, &def); err != nil {
			return nil, Error.Wrap(err)
		}
		out = append(out, &def)
	}
	return out, nil
}

// ListEvents returns every event defined on (ns, db, tb).
func ListEvents(tx *kvs.Transaction, ns, db, tb string) ([]*EventDefinition, error) {
	scope := keys.TablePrefix(ns, db, tb)
	items, err := tx.Scan(keys.DefinitionPrefix(scope, tagEvent), keys.DefinitionSuffix(scope, tagEvent), 0)
	if err != nil {
		return nil, err
	}
	out := make([]*EventDefinition, 0, len(items))
	for _, it := range items {
		var def EventDefinition
		if err := msgpack.Unmarshal(it.Value, &def); err != nil {
			return nil, Error.Wrap(err)
		}
		out = append(out, &def)
	}
	return out, nil
}

// ListTables returns every table defined in (ns, db).
func ListTables(tx *kvs.Transaction, ns, db string) ([]*TableDefinition, error) {
	scope := keys.DatabasePrefix(ns, db)
	items, err := tx.Scan(keys.DefinitionPrefix(scope, tagTable), keys.DefinitionSuffix(scope, tagTable), 0)
	if err != nil {
		return nil, err
	}
	out := make([]*TableDefinition, 0, len(items))
	for _, it := range items {
		var def TableDefinition
		if err := msgpack.Unmarshal(it.Value, &def); err != nil {
			return nil, Error.Wrap(err)
		}
		out = append(out, &def)
	}
	return out, nil
}

// --- Analyzer ---

func analyzerKey(ns, db, name string) []byte {
	return keys.DefinitionKey(keys.DatabasePrefix(ns, db), tagAnalyzer, name)
}

func DefineAnalyzer(tx *kvs.Transaction, ns, db string, def *AnalyzerDefinition, opts DefineOptions) error {
	def.Revision = currentRevision
	return define(tx, analyzerKey(ns, db, def.Name), def, opts)
}

func GetAnalyzer(tx *kvs.Transaction, ns, db, name string) (*AnalyzerDefinition, bool, error) {
	var def AnalyzerDefinition
	ok, err := get(tx, analyzerKey(ns, db, name), &def)
	return &def, ok, err
}

func RemoveAnalyzer(tx *kvs.Transaction, ns, db, name string, opts RemoveOptions) error {
	return remove(tx, analyzerKey(ns, db, name), opts)
}

// --- Function ---

func functionKey(ns, db, name string) []byte {
	return keys.DefinitionKey(keys.DatabasePrefix(ns, db), tagFunction, name)
}

func DefineFunction(tx *kvs.Transaction, ns, db string, def *FunctionDefinition, opts DefineOptions) error {
	def.Revision = currentRevision
	return define(tx, functionKey(ns, db, def.Name), def, opts)
}

func GetFunction(tx *kvs.Transaction, ns, db, name string) (*FunctionDefinition, bool, error) {
	var def FunctionDefinition
	ok, err := get(tx, functionKey(ns, db, name), &def)
	return &def, ok, err
}

func RemoveFunction(tx *kvs.Transaction, ns, db, name string, opts RemoveOptions) error {
	return remove(tx, functionKey(ns, db, name), opts)
}

// --- Param ---

func paramKey(ns, db, name string) []byte {
	return keys.DefinitionKey(keys.DatabasePrefix(ns, db), tagParam, name)
}

func DefineParam(tx *kvs.Transaction, ns, db string, def *ParamDefinition, opts DefineOptions) error {
	def.Revision = currentRevision
	return define(tx, paramKey(ns, db, def.Name), def, opts)
}

func GetParam(tx *kvs.Transaction, ns, db, name string) (*ParamDefinition, bool, error) {
	var def ParamDefinition
	ok, err := get(tx, paramKey(ns, db, name), &def)
	return &def, ok, err
}

func RemoveParam(tx *kvs.Transaction, ns, db, name string, opts RemoveOptions) error {
	return remove(tx, paramKey(ns, db, name), opts)
}

// --- Event ---

func eventKey(ns, db, tb, name string) []byte {
	return keys.DefinitionKey(keys.TablePrefix(ns, db, tb), tagEvent, name)
}

func DefineEvent(tx *kvs.Transaction, ns, db, tb string, def *EventDefinition, opts DefineOptions) error {
	def.Revision = currentRevision
	return define(tx, eventKey(ns, db, tb, def.Name), def, opts)
}

func GetEvent(tx *kvs.Transaction, ns, db, tb, name string) (*EventDefinition, bool, error) {
	var def EventDefinition
	ok, err := get(tx, eventKey(ns, db, tb, name), &def)
	return &def, ok, err
}

func RemoveEvent(tx *kvs.Transaction, ns, db, tb, name string, opts RemoveOptions) error {
	return remove(tx, eventKey(ns, db, tb, name), opts)
}

// --- User ---

func userKey(ns, db, name string) []byte {
	return keys.DefinitionKey(keys.DatabasePrefix(ns, db), tagUser, name)
}

func DefineUser(tx *kvs.Transaction, ns, db string, def *UserDefinition, opts DefineOptions) error {
	def.Revision = currentRevision
	return define(tx, userKey(ns, db, def.Name), def, opts)
}

func GetUser(tx *kvs.Transaction, ns, db, name string) (*UserDefinition, bool, error) {
	var def UserDefinition
	ok, err := get(tx, userKey(ns, db, name), &def)
	return &def, ok, err
}

func RemoveUser(tx *kvs.Transaction, ns, db, name string, opts RemoveOptions) error {
	return remove(tx, userKey(ns, db, name), opts)
}

// --- Access ---

func accessKey(ns, db, name string) []byte {
	return keys.DefinitionKey(keys.DatabasePrefix(ns, db), tagAccess, name)
}

func DefineAccess(tx *kvs.Transaction, ns, db string, def *AccessDefinition, opts DefineOptions) error {
	def.Revision = currentRevision
	return define(tx, accessKey(ns, db, def.Name), def, opts)
}

func GetAccess(tx *kvs.Transaction, ns, db, name string) (*AccessDefinition, bool, error) {
	var def AccessDefinition
	ok, err := get(tx, accessKey(ns, db, name), &def)
	return &def, ok, err
}

func RemoveAccess(tx *kvs.Transaction, ns, db, name string, opts RemoveOptions) error {
	return remove(tx, accessKey(ns, db, name), opts)
}

// --- Sequence ---

func sequenceKey(ns, db, name string) []byte {
	return keys.DefinitionKey(keys.DatabasePrefix(ns, db), tagSequence, name)
}

func DefineSequence(tx *kvs.Transaction, ns, db string, def *SequenceDefinition, opts DefineOptions) error {
	def.Revision = currentRevision
	return define(tx, sequenceKey(ns, db, def.Name), def, opts)
}

func GetSequence(tx *kvs.Transaction, ns, db, name string) (*SequenceDefinition, bool, error) {
	var def SequenceDefinition
	ok, err := get(tx, sequenceKey(ns, db, name), &def)
	return &def, ok, err
}

func RemoveSequence(tx *kvs.Transaction, ns, db, name string, opts RemoveOptions) error {
	return remove(tx, sequenceKey(ns, db, name), opts)
}

// --- Type ---

func typeKey(ns, db, name string) []byte {
	return keys.DefinitionKey(keys.DatabasePrefix(ns, db), tagType, name)
}

func DefineType(tx *kvs.Transaction, ns, db string, def *TypeDefinition, opts DefineOptions) error {
	def.Revision = currentRevision
	return define(tx, typeKey(ns, db, def.Name), def, opts)
}

func GetType(tx *kvs.Transaction, ns, db, name string) (*TypeDefinition, bool, error) {
	var def TypeDefinition
	ok, err := get(tx, typeKey(ns, db, name), &def)
	return &def, ok, err
}

func RemoveType(tx *kvs.Transaction, ns, db, name string, opts RemoveOptions) error {
	return remove(tx, typeKey(ns, db, name), opts)
}

// --- Module ---

func moduleKey(ns, db, name string) []byte {
	return keys.DefinitionKey(keys.DatabasePrefix(ns, db), tagModule, name)
}

func DefineModule(tx *kvs.Transaction, ns, db string, def *ModuleDefinition, opts DefineOptions) error {
	def.Revision = currentRevision
	return define(tx, moduleKey(ns, db, def.Name), def, opts)
}

func GetModule(tx *kvs.Transaction, ns, db, name string) (*ModuleDefinition, bool, error) {
	var def ModuleDefinition
	ok, err := get(tx, moduleKey(ns, db, name), &def)
	return &def, ok, err
}

func RemoveModule(tx *kvs.Transaction, ns, db, name string, opts RemoveOptions) error {
	return remove(tx, moduleKey(ns, db, name), opts)
}

// --- Config ---

func configKey(ns, db, name string) []byte {
	return keys.DefinitionKey(keys.DatabasePrefix(ns, db), tagConfig, name)
}

func DefineConfig(tx *kvs.Transaction, ns, db string, def *ConfigDefinition, opts DefineOptions) error {
	def.Revision = currentRevision
	return define(tx, configKey(ns, db, def.Name), def, opts)
}

func GetConfig(tx *kvs.Transaction, ns, db, name string) (*ConfigDefinition, bool, error) {
	var def ConfigDefinition
	ok, err := get(tx, configKey(ns, db, name), &def)
	return &def, ok, err
}

func RemoveConfig(tx *kvs.Transaction, ns, db, name string, opts RemoveOptions) error {
	return remove(tx, configKey(ns, db, name), opts)
}
