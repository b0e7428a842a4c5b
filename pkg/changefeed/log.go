// Package changefeed implements the per-database mutation log and live
// query notification dispatch: every committed document mutation is
// appended to a versionstamp-ordered log, queryable by ShowChanges and
// pruned by retention, while live query matches are handed to an
// external Subscriber sink at commit time.
package changefeed

import (
	"context"
	"time"

	"github.com/meridiandb/meridian/pkg/catalog"
	"github.com/meridiandb/meridian/pkg/keys"
	"github.com/meridiandb/meridian/pkg/kvs"
	"github.com/meridiandb/meridian/pkg/kvstore"
	"github.com/meridiandb/meridian/pkg/value"
	"github.com/vmihailenco/msgpack/v5"
)

// Error is the change feed package's error class.
var Error = kvstore.Error

// Kind tags one change feed entry's mutation type.
type Kind string

const (
	KindCreate      Kind = "create"
	KindUpdate      Kind = "update"
	KindDelete      Kind = "delete"
	KindDefineTable Kind = "define_table"
)

// Entry is one logged mutation.
type Entry struct {
	Versionstamp [10]byte
	TB           string
	ID           []byte // keys.RecordIDKey.Encode() output
	Kind         Kind
	Before       []byte // revisioned msgpack, nil if this entry doesn't store an original
	After        []byte // revisioned msgpack, nil on delete
}

// Log appends and queries one database's change feed, implementing
// pkg/doc.ChangeFeedAppender.
type Log struct {
	NS, DB string
}

func entryKind(before, after value.Value) Kind {
	switch {
	case before.IsNone():
		return KindCreate
	case after.IsNone():
		return KindDelete
	default:
		return KindUpdate
	}
}

// Append implements doc.ChangeFeedAppender: it looks up the owning
// table's ChangeFeedConfig and, if StoreOriginal is set, retains the
// before/after values alongside the entry; otherwise only the kind and
// id are kept.
func (l Log) Append(tx *kvs.Transaction, ns, db, tb string, id keys.RecordIDKey, before, after value.Value) error {
	table, found, err := catalog.GetTable(tx, ns, db, tb)
	if err != nil {
		return err
	}
	if !found || table.ChangeFeed == nil {
		return nil
	}

	e := Entry{
		Versionstamp: tx.Versionstamp(),
		TB:           tb,
		ID:           id.Encode(),
		Kind:         entryKind(before, after),
	}
	if table.ChangeFeed.StoreOriginal {
		if !before.IsNone() {
			b, err := value.Encode(before)
			if err != nil {
				return err
			}
			e.Before = b
		}
		if !after.IsNone() {
			b, err := value.Encode(after)
			if err != nil {
				return err
			}
			e.After = b
		}
	}
	return l.write(tx, e)
}

// AppendDefineTable logs a DEFINE TABLE event, the one change feed
// entry kind not driven by the document lifecycle.
func (l Log) AppendDefineTable(tx *kvs.Transaction, tb string) error {
	return l.write(tx, Entry{Versionstamp: tx.Versionstamp(), TB: tb, Kind: KindDefineTable})
}

func (l Log) write(tx *kvs.Transaction, e Entry) error {
	b, err := msgpack.Marshal(e)
	if err != nil {
		return Error.Wrap(err)
	}
	return tx.Put(keys.ChangeFeedKey(l.NS, l.DB, e.Versionstamp), b, false)
}

// ShowChanges returns every entry at or after since, optionally
// restricted to one table, oldest first, capped at limit (0 means
// unbounded).
func (l Log) ShowChanges(tx *kvs.Transaction, table string, since [10]byte, limit int) ([]Entry, error) {
	beg := keys.ChangeFeedSince(l.NS, l.DB, since)
	end := keys.ChangeFeedSuffix(l.NS, l.DB)
	items, err := tx.Scan(beg, end, 0)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(items))
	for _, it := range items {
		var e Entry
		if err := msgpack.Unmarshal(it.Value, &e); err != nil {
			return nil, Error.Wrap(err)
		}
		if table != "" && e.TB != table {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// PruneRetention deletes every entry older than the table's configured
// expiry. Called periodically by a background ticker (see Pruner).
func (l Log) PruneRetention(tx *kvs.Transaction, expiry time.Duration) (int, error) {
	cutoffMillis := uint64(time.Now().Add(-expiry).UnixMilli())
	var cutoff [10]byte
	for i := 0; i < 8; i++ {
		cutoff[i] = byte(cutoffMillis >> (8 * (7 - i)))
	}

	beg := keys.ChangeFeedPrefix(l.NS, l.DB)
	end := keys.ChangeFeedKey(l.NS, l.DB, cutoff)
	items, err := tx.Scan(beg, end, 0)
	if err != nil {
		return 0, err
	}
	for _, it := range items {
		if err := tx.Del(it.Key); err != nil {
			return 0, err
		}
	}
	return len(items), nil
}

// Pruner periodically prunes every database named by Databases against
// its table's ChangeFeedConfig.Expiry.
type Pruner struct {
	DS        *kvs.Datastore
	Databases []struct{ NS, DB string }
	Interval  time.Duration
}

// Run ticks every p.Interval until ctx is cancelled, pruning each
// configured database's change feed log.
func (p *Pruner) Run(ctx context.Context) {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pruneOnce(ctx)
		}
	}
}

// pruneOnce prunes each configured database's single shared log once,
// using the SHORTEST retention among its tables with a change feed
// enabled. Because the log is keyed by versionstamp alone (not per
// table), a table configured with a longer retention than its
// siblings still loses its oldest entries at the shorter cutoff — a
// documented simplification (see DESIGN.md) of per-table retention.
func (p *Pruner) pruneOnce(ctx context.Context) {
	for _, d := range p.Databases {
		tx, err := p.DS.Begin(ctx, kvs.Write, kvs.Optimistic)
		if err != nil {
			continue
		}
		tables, err := catalog.ListTables(tx, d.NS, d.DB)
		if err != nil {
			tx.Cancel()
			continue
		}
		var shortest time.Duration
		for _, tb := range tables {
			if tb.ChangeFeed == nil || tb.ChangeFeed.Expiry <= 0 {
				continue
			}
			if shortest == 0 || tb.ChangeFeed.Expiry < shortest {
				shortest = tb.ChangeFeed.Expiry
			}
		}
		if shortest > 0 {
			if _, err := (Log{NS: d.NS, DB: d.DB}).PruneRetention(tx, shortest); err != nil {
				tx.Cancel()
				continue
			}
		}
		tx.Commit()
	}
}
