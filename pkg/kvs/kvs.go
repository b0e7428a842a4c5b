// Package kvs implements the transactional facade (layer L2) on top
// of a single kvstore.Store backend: begin/commit/cancel, reads served
// from the backend's current state (no snapshot is taken at Begin),
// a per-transaction decode cache, a nestable savepoint stack, and
// versionstamp allocation.
//
// Grounded on the savepoint algorithm in the reference implementation's
// kvs/savepoint.rs: a stack of frames, each frame capturing the prior
// value of a key the first time (and only the first time) it is touched
// after the savepoint was opened, so rollback replays exactly the
// pre-savepoint state.
package kvs

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meridiandb/meridian/pkg/kvstore"
)

// TxKind distinguishes read-only from read-write transactions.
type TxKind int

const (
	// Read opens a read-only transaction. Each read sees the backend's
	// committed state at the time of that read; no snapshot is taken at
	// Begin.
	Read TxKind = iota
	// Write opens a read-write transaction.
	Write
)

// LockKind selects the backend's concurrency control strategy for a
// write transaction.
type LockKind int

const (
	// Optimistic detects conflicts at commit time (the default).
	Optimistic LockKind = iota
	// Pessimistic is recorded on the transaction but takes no locks;
	// Commit validates exactly as it does for Optimistic.
	Pessimistic
)

// Datastore owns one kvstore.Store backend and hands out transactions.
type Datastore struct {
	store  kvstore.Store
	log    *zap.Logger
	mu     sync.Mutex // guards lastVS and serializes Transaction.Commit's validate-then-apply window
	lastVS uint64     // monotonic local fallback versionstamp counter
}

// New wraps store in a Datastore. A nil logger defaults to zap.NewNop().
func New(store kvstore.Store, log *zap.Logger) *Datastore {
	if log == nil {
		log = zap.NewNop()
	}
	return &Datastore{store: store, log: log}
}

// Close releases the underlying backend.
func (ds *Datastore) Close() error {
	return ds.store.Close()
}

// Begin starts a new transaction of the given kind and lock strategy.
func (ds *Datastore) Begin(ctx context.Context, kind TxKind, lock LockKind) (*Transaction, error) {
	return &Transaction{
		ctx:    ctx,
		ds:     ds,
		kind:   kind,
		lock:   lock,
		cache:  newCache(),
		writes: make(map[string]*pendingWrite),
		log:    ds.log,
	}, nil
}

// nextVersionstamp returns a locally-generated 10-byte monotonically
// increasing commit timestamp: an 8-byte millisecond wall-clock prefix
// followed by a 2-byte intra-millisecond sequence counter, used when the
// backend itself does not supply one.
func (ds *Datastore) nextVersionstamp() [10]byte {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	now := uint64(time.Now().UnixMilli())
	if now <= ds.lastVS>>16 {
		ds.lastVS++
	} else {
		ds.lastVS = now << 16
	}
	var vs [10]byte
	binary.BigEndian.PutUint64(vs[0:8], ds.lastVS>>16)
	binary.BigEndian.PutUint16(vs[8:10], uint16(ds.lastVS&0xffff))
	return vs
}
