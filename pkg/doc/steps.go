package doc

import (
	"strings"

	"github.com/meridiandb/meridian/pkg/catalog"
	"github.com/meridiandb/meridian/pkg/keys"
	"github.com/meridiandb/meridian/pkg/value"
)

// ErrPermissionDenied is returned by allow() when a PERMISSIONS
// expression evaluates falsy for the current actor.
var ErrPermissionDenied = Error.New("permission denied")

// ErrSchemaViolation is returned by field() when an ASSERT expression
// evaluates falsy or a present value does not match its field's TYPE.
// reset() never returns it: undeclared fields are dropped silently.
var ErrSchemaViolation = Error.New("schema violation")

// ErrRelationKindMismatch is returned by relation() when a RELATE
// targets a TYPE NORMAL table, or a statement other than RELATE or
// DELETE targets a TYPE RELATION table.
var ErrRelationKindMismatch = Error.New("table does not permit this operation")

// ErrIdNotFound is returned by edges() when a RELATE targets a table
// with enforced relations and one of the in/out endpoints does not
// exist (original_source/crates/core/src/doc/edges.rs's
// Error::IdNotFound).
var ErrIdNotFound = Error.New("id not found")

// relation validates the table's kind against the statement being run.
func (d *Document) relation() error {
	if d.Table == nil {
		return nil
	}
	switch d.Table.Kind {
	case catalog.TableRelation:
		if d.Action != ActionRelate && d.Action != ActionDelete {
			return ErrRelationKindMismatch
		}
	case catalog.TableNormal:
		if d.Action == ActionRelate {
			return ErrRelationKindMismatch
		}
	}
	return nil
}

// edges writes (or, on delete, removes) the four graph keys a RELATE
// produces: outgoing on the source, incoming on the target, outgoing on
// the edge record pointing at the target, incoming on the edge record
// pointing from the source. On a table with enforced relations, a
// RELATE whose in or out endpoint does not exist writes nothing and
// fails with ErrIdNotFound instead, matching
// original_source/crates/core/src/doc/edges.rs's store_edges_data.
func (d *Document) edges() error {
	if d.Edge == nil {
		return nil
	}
	e := d.Edge
	if d.Action == ActionRelate && d.Table != nil && d.Table.Kind == catalog.TableRelation && d.Table.Enforced {
		endpoints := []struct {
			tb string
			id keys.RecordIDKey
		}{
			{d.TB, d.ID},
			{e.TargetTB, e.TargetID},
		}
		for _, endpoint := range endpoints {
			_, found, err := d.TX.Get(keys.Thing(d.NS, d.DB, endpoint.tb, endpoint.id))
			if err != nil {
				return err
			}
			if !found {
				return ErrIdNotFound
			}
		}
	}
	write := func(k []byte) error {
		if d.Action == ActionDelete {
			return d.TX.Del(k)
		}
		return d.TX.Put(k, nil, false)
	}
	if err := write(keys.Edge(d.NS, d.DB, d.TB, d.ID, keys.EdgeOut, e.EdgeTable, e.EdgeID, e.TargetTB, e.TargetID)); err != nil {
		return err
	}
	if err := write(keys.Edge(d.NS, d.DB, e.TargetTB, e.TargetID, keys.EdgeIn, e.EdgeTable, e.EdgeID, d.TB, d.ID)); err != nil {
		return err
	}
	if err := write(keys.Edge(d.NS, d.DB, e.EdgeTable, e.EdgeID, keys.EdgeOut, e.EdgeTable, e.EdgeID, e.TargetTB, e.TargetID)); err != nil {
		return err
	}
	return write(keys.Edge(d.NS, d.DB, e.EdgeTable, e.EdgeID, keys.EdgeIn, e.EdgeTable, e.EdgeID, d.TB, d.ID))
}

// alter runs the statement's SET/CONTENT/MERGE/PATCH data clause.
func (d *Document) alter() error {
	if d.Mutate == nil {
		d.After = d.Before
		return nil
	}
	after, err := d.Mutate(d.Before)
	if err != nil {
		return err
	}
	d.After = after
	return nil
}

// field evaluates each declared field's VALUE/DEFAULT/ASSERT/READONLY/
// TYPE behavior in turn. Expression evaluation (VALUE/ASSERT/DEFAULT)
// is delegated to Hooks.Evaluator, which the query layer supplies; with
// no evaluator configured, only the evaluator-free rules (READONLY,
// basic TYPE-name coercion) apply.
func (d *Document) field() error {
	fields, err := catalog.ListFields(d.TX, d.NS, d.DB, d.TB)
	if err != nil {
		return err
	}
	if d.After.Kind != value.KindObject {
		d.After = value.NewObject(map[string]value.Value{})
	}
	obj := cloneObject(d.After.Object)

	for _, fd := range fields {
		cur, present := obj[fd.Name]

		if fd.Readonly {
			if prev, ok := d.Before.Object[fd.Name]; ok {
				obj[fd.Name] = prev
				continue
			}
		}

		if d.Hooks.Evaluator != nil {
			if fd.Value != "" {
				v, err := d.Hooks.Evaluator.Eval(fd.Value, d.env(fd.Name))
				if err != nil {
					return err
				}
				obj[fd.Name] = v
				present = true
				cur = v
			} else if !present || cur.IsNone() {
				if fd.Default != "" {
					v, err := d.Hooks.Evaluator.Eval(fd.Default, d.env(fd.Name))
					if err != nil {
						return err
					}
					obj[fd.Name] = v
					present = true
					cur = v
				}
			}
			if fd.Assert != "" && present {
				ok, err := d.Hooks.Evaluator.Eval(fd.Assert, d.env(fd.Name))
				if err != nil {
					return err
				}
				if !ok.IsTruthy() {
					return ErrSchemaViolation
				}
			}
		}

		if present && fd.Type != "" {
			if !typeAllows(fd.Type, cur) {
				return ErrSchemaViolation
			}
		}
	}

	d.After = value.NewObject(obj)
	return nil
}

// typeAllows is a minimal stand-in for the reference type checker: it
// recognizes the handful of primitive and option<...>/array<...> type
// names in common use, and otherwise accepts any value (the full type
// grammar belongs to the query layer's parser, a non-goal here).
func typeAllows(typ string, v value.Value) bool {
	typ = strings.TrimSpace(typ)
	optional := strings.HasPrefix(typ, "option<") && strings.HasSuffix(typ, ">")
	if optional {
		if v.IsNone() {
			return true
		}
		typ = typ[len("option<") : len(typ)-1]
	}
	switch typ {
	case "", "any":
		return true
	case "string":
		return v.Kind == value.KindString
	case "int", "number":
		return v.Kind == value.KindInt || v.Kind == value.KindFloat
	case "float":
		return v.Kind == value.KindFloat || v.Kind == value.KindInt
	case "bool":
		return v.Kind == value.KindBool
	case "array":
		return v.Kind == value.KindArray
	case "object":
		return v.Kind == value.KindObject
	default:
		return true
	}
}

// reset drops undeclared top-level fields on a schemafull table,
// leaving id/in/out untouched.
func (d *Document) reset() error {
	if d.Table == nil || !d.Table.Schemafull {
		return nil
	}
	fields, err := catalog.ListFields(d.TX, d.NS, d.DB, d.TB)
	if err != nil {
		return err
	}
	allowed := map[string]bool{"id": true, "in": true, "out": true}
	for _, fd := range fields {
		allowed[fd.Name] = true
	}
	obj := cloneObject(d.After.Object)
	for k := range obj {
		if !allowed[k] {
			delete(obj, k)
		}
	}
	d.After = value.NewObject(obj)
	return nil
}

// clean strips any field whose value is None.
func (d *Document) clean() error {
	obj := cloneObject(d.After.Object)
	for k, v := range obj {
		if v.IsNone() {
			delete(obj, k)
		}
	}
	d.After = value.NewObject(obj)
	return nil
}

// allow evaluates the table's PERMISSIONS expression for the current
// action. The evaluator receives an Env carrying both Before and After;
// allow itself does not choose between them (update runs this twice:
// once before alter() with the old record,
// once after with the new one — see pipeline.go).
func (d *Document) allow() error {
	if d.Table == nil || d.Hooks.Evaluator == nil {
		return nil
	}
	var expr string
	switch d.Action {
	case ActionCreate, ActionRelate:
		expr = d.Table.Permissions.Create
	case ActionUpdate:
		expr = d.Table.Permissions.Update
	case ActionDelete:
		expr = d.Table.Permissions.Delete
	}
	if expr == "" {
		return nil
	}
	ok, err := d.Hooks.Evaluator.Eval(expr, d.env(""))
	if err != nil {
		return err
	}
	if !ok.IsTruthy() {
		return ErrPermissionDenied
	}
	return nil
}

// store writes (or, on delete, removes) the record's encoded value.
func (d *Document) store() error {
	if d.Action == ActionDelete {
		return d.TX.Del(d.key())
	}
	b, err := value.Encode(d.After)
	if err != nil {
		return err
	}
	return d.TX.Put(d.key(), b, false)
}

// index inserts or removes this record's entry in every index defined
// on its table.
func (d *Document) index() error {
	if d.Hooks.Index == nil {
		return nil
	}
	indexes, err := catalog.ListIndexes(d.TX, d.NS, d.DB, d.TB)
	if err != nil {
		return err
	}
	for _, ix := range indexes {
		if d.Action == ActionDelete {
			if err := d.Hooks.Index.Remove(d.TX, d.NS, d.DB, d.TB, ix, d.ID, d.Before); err != nil {
				return err
			}
			continue
		}
		if err := d.Hooks.Index.Put(d.TX, d.NS, d.DB, d.TB, ix, d.ID, d.Before, d.After); err != nil {
			return err
		}
	}
	return nil
}

// table recomputes any DEFINE TABLE ... AS SELECT ... view built from
// this record's table.
func (d *Document) table() error {
	if d.Hooks.Views == nil {
		return nil
	}
	tables, err := catalog.ListTables(d.TX, d.NS, d.DB)
	if err != nil {
		return err
	}
	for _, tb := range tables {
		if tb.AsSelectQuery == "" {
			continue
		}
		if err := d.Hooks.Views.Refresh(d.TX, d.NS, d.DB, tb, d.NS, d.DB, d.TB); err != nil {
			return err
		}
	}
	return nil
}

// lives enqueues a notification for every live query bound to this
// table.
func (d *Document) lives() error {
	if d.Hooks.Live == nil {
		return nil
	}
	return d.Hooks.Live.Notify(d.TX, d.NS, d.DB, d.TB, d.ID, d.Before, d.After)
}

// changefeeds appends a log entry if this table's change feed is
// enabled.
func (d *Document) changefeeds() error {
	if d.Hooks.ChangeFeed == nil || d.Table == nil || d.Table.ChangeFeed == nil {
		return nil
	}
	return d.Hooks.ChangeFeed.Append(d.TX, d.NS, d.DB, d.TB, d.ID, d.Before, d.After)
}

// event evaluates DEFINE EVENT triggers bound to this table.
func (d *Document) event() error {
	if d.Hooks.Events == nil {
		return nil
	}
	events, err := catalog.ListEvents(d.TX, d.NS, d.DB, d.TB)
	if err != nil {
		return err
	}
	for _, ev := range events {
		if err := d.Hooks.Events.Run(d.TX, ev, d.env("")); err != nil {
			return err
		}
	}
	return nil
}

// pluck materializes the RETURN projection. Without a query-layer
// projection expression, it returns the full post-image (or, on
// delete, the pre-image).
func (d *Document) pluck() (value.Value, error) {
	if d.Action == ActionDelete {
		return d.Before, nil
	}
	return d.After, nil
}

func cloneObject(m map[string]value.Value) map[string]value.Value {
	out := make(map[string]value.Value, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
