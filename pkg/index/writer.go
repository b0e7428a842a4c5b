// Package index dispatches a document's index maintenance to the right
// index family (btree, fulltext, hnsw), implementing pkg/doc.IndexWriter
// as a single entry point over all three.
package index

import (
	"sync"

	"github.com/meridiandb/meridian/pkg/catalog"
	"github.com/meridiandb/meridian/pkg/index/btree"
	"github.com/meridiandb/meridian/pkg/index/fulltext"
	"github.com/meridiandb/meridian/pkg/index/hnsw"
	"github.com/meridiandb/meridian/pkg/keys"
	"github.com/meridiandb/meridian/pkg/kvs"
	"github.com/meridiandb/meridian/pkg/value"
)

// AppendQueue receives a write that landed on a table while one of its
// indexes is mid-CONCURRENTLY-build, to be replayed once the build's
// initial scan finishes. pkg/index/concurrent.Builder implements this.
type AppendQueue interface {
	Append(id keys.RecordIDKey, before, after value.Value)
}

// Writer implements doc.IndexWriter by routing to the index family
// named by each catalog.IndexDefinition. Its zero value is ready to
// use; RegisterBuild lets a concurrent.Builder intercept writes to the
// index it is still scanning rather than racing the build with a
// direct write to a structure that hasn't been fully constructed yet.
type Writer struct {
	mu     sync.Mutex
	queues map[uint32]AppendQueue
}

// RegisterBuild routes future Put/Remove calls against index ixID to q
// instead of writing the index directly, for as long as the build is
// in progress. Safe to call concurrently.
func (w *Writer) RegisterBuild(ixID uint32, q AppendQueue) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.queues == nil {
		w.queues = make(map[uint32]AppendQueue)
	}
	w.queues[ixID] = q
}

// UnregisterBuild stops routing writes for ixID to its build queue.
// concurrent.Builder.Run calls it once its table scan finishes, before
// replaying the queue, and again when Run returns.
func (w *Writer) UnregisterBuild(ixID uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.queues, ixID)
}

func (w *Writer) queueFor(ixID uint32) AppendQueue {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queues[ixID]
}

// Put implements doc.IndexWriter. While ix is mid-CONCURRENTLY-build
// and has a registered build queue, the write is queued for replay
// after the build's scan finishes instead of touching the index
// directly (see PutDirect, which the build itself uses to avoid
// queuing against its own scan).
func (w *Writer) Put(tx *kvs.Transaction, ns, db, tb string, ix *catalog.IndexDefinition, id keys.RecordIDKey, before, after value.Value) error {
	if ix.Concurrent && ix.Build.Status != catalog.BuildReady {
		if q := w.queueFor(ix.ID); q != nil {
			q.Append(id, before, after)
			return nil
		}
	}
	return w.PutDirect(tx, ns, db, tb, ix, id, before, after)
}

// Remove implements doc.IndexWriter. See Put for the build-queue
// interception rule.
func (w *Writer) Remove(tx *kvs.Transaction, ns, db, tb string, ix *catalog.IndexDefinition, id keys.RecordIDKey, before value.Value) error {
	if ix.Concurrent && ix.Build.Status != catalog.BuildReady {
		if q := w.queueFor(ix.ID); q != nil {
			q.Append(id, before, value.None)
			return nil
		}
	}
	return w.RemoveDirect(tx, ns, db, tb, ix, id, before)
}

// PutDirect writes straight to the index family, ignoring any
// registered build queue. concurrent.Builder calls this for both its
// own table scan and for replaying its appended-write queue, since
// neither should be re-queued against itself.
func (w *Writer) PutDirect(tx *kvs.Transaction, ns, db, tb string, ix *catalog.IndexDefinition, id keys.RecordIDKey, before, after value.Value) error {
	switch {
	case ix.FullText != nil:
		an, err := resolveAnalyzer(tx, ns, db, ix)
		if err != nil {
			return err
		}
		return fulltext.Put(tx, ns, db, tb, ix, an, id, before, after)
	case ix.HNSW != nil:
		return hnsw.Put(tx, ns, db, tb, ix, id, before, after)
	default:
		return btree.Put(tx, ns, db, tb, ix, id, before, after)
	}
}

// RemoveDirect is Remove's direct counterpart; see PutDirect.
func (w *Writer) RemoveDirect(tx *kvs.Transaction, ns, db, tb string, ix *catalog.IndexDefinition, id keys.RecordIDKey, before value.Value) error {
	switch {
	case ix.FullText != nil:
		return fulltext.Remove(tx, ns, db, tb, ix, id, before)
	case ix.HNSW != nil:
		return hnsw.Remove(tx, ns, db, tb, ix, id, before)
	default:
		return btree.Remove(tx, ns, db, tb, ix, id, before)
	}
}

func resolveAnalyzer(tx *kvs.Transaction, ns, db string, ix *catalog.IndexDefinition) (fulltext.Analyzer, error) {
	if ix.FullText == nil || ix.FullText.Analyzer == "" {
		return fulltext.FromDefinition(nil), nil
	}
	def, found, err := catalog.GetAnalyzer(tx, ns, db, ix.FullText.Analyzer)
	if err != nil {
		return fulltext.Analyzer{}, err
	}
	if !found {
		return fulltext.FromDefinition(nil), nil
	}
	return fulltext.FromDefinition(def), nil
}
