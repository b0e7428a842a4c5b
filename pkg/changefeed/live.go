package changefeed

import (
	"github.com/google/uuid"
	"github.com/meridiandb/meridian/pkg/keys"
	"github.com/meridiandb/meridian/pkg/kvs"
	"github.com/meridiandb/meridian/pkg/value"
	"github.com/vmihailenco/msgpack/v5"
)

// liveQueryRecord is the definition stored per DEFINE LIVE statement.
type liveQueryRecord struct {
	ID uuid.UUID
}

// DefineLiveQuery registers a live query on a table.
func DefineLiveQuery(tx *kvs.Transaction, ns, db, tb string, id uuid.UUID) error {
	b, err := msgpack.Marshal(liveQueryRecord{ID: id})
	if err != nil {
		return Error.Wrap(err)
	}
	return tx.Put(keys.LiveQuery(ns, db, tb, id), b, false)
}

// RemoveLiveQuery unregisters a live query.
func RemoveLiveQuery(tx *kvs.Transaction, ns, db, tb string, id uuid.UUID) error {
	return tx.Del(keys.LiveQuery(ns, db, tb, id))
}

// ListLiveQueries returns every live query id registered on a table.
func ListLiveQueries(tx *kvs.Transaction, ns, db, tb string) ([]uuid.UUID, error) {
	items, err := tx.Scan(keys.LiveQueryPrefix(ns, db, tb), keys.LiveQuerySuffix(ns, db, tb), 0)
	if err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		var rec liveQueryRecord
		if err := msgpack.Unmarshal(it.Value, &rec); err != nil {
			return nil, Error.Wrap(err)
		}
		out = append(out, rec.ID)
	}
	return out, nil
}

// LiveAction tags what kind of mutation a live query notification
// carries.
type LiveAction string

const (
	LiveCreate LiveAction = "CREATE"
	LiveUpdate LiveAction = "UPDATE"
	LiveDelete LiveAction = "DELETE"
)

// Event is delivered to a Subscriber for one (live query, mutation)
// match.
type Event struct {
	LiveID     uuid.UUID
	NS, DB, TB string
	Action     LiveAction
	ID         keys.RecordIDKey
	Before     value.Value
	After      value.Value
}

// Subscriber receives live query notifications at commit time. The
// actual RPC/WebSocket delivery implements this outside pkg/changefeed,
// as an external collaborator.
type Subscriber interface {
	Notify(Event)
}

// Dispatcher fans out table mutations to every live query registered
// on that table, implementing pkg/doc.LiveDispatcher. WHERE-clause
// filtering of live queries is not evaluated here (the scripting/SQL
// expression runtime is an external collaborator) — every registered
// live query on the table is notified unconditionally.
type Dispatcher struct {
	Sink Subscriber
}

func actionOf(before, after value.Value) LiveAction {
	switch {
	case before.IsNone():
		return LiveCreate
	case after.IsNone():
		return LiveDelete
	default:
		return LiveUpdate
	}
}

// Notify implements doc.LiveDispatcher.
func (d Dispatcher) Notify(tx *kvs.Transaction, ns, db, tb string, id keys.RecordIDKey, before, after value.Value) error {
	if d.Sink == nil {
		return nil
	}
	lives, err := ListLiveQueries(tx, ns, db, tb)
	if err != nil {
		return err
	}
	action := actionOf(before, after)
	for _, lq := range lives {
		d.Sink.Notify(Event{
			LiveID: lq,
			NS:     ns, DB: db, TB: tb,
			Action: action,
			ID:     id,
			Before: before,
			After:  after,
		})
	}
	return nil
}
