// Package migrate runs an ordered list of storage version upgrades
// against a KV-native version marker, adapted from storj's SQL-table
// migrate.Migration/Step/Action shape (private/migrate) to the single
// "/!version" u16 big-endian key described by pkg/keys.StorageVersionKey.
// Each Step still runs inside its own write transaction so a crash mid-
// migration never leaves storage in a half-upgraded state.
package migrate

import (
	"context"
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/meridiandb/meridian/pkg/keys"
	"github.com/meridiandb/meridian/pkg/kvs"
	"github.com/meridiandb/meridian/pkg/kvstore"
)

// Error is the migrate package's error class.
var Error = kvstore.Error

// ErrNonSequential is returned by Run when a Steps slice is not sorted
// in strictly increasing Version order.
var ErrNonSequential = Error.New("migration steps must be strictly increasing by version")

// Action upgrades storage from the version immediately below a Step's
// Version to that Version, inside tx.
type Action interface {
	Run(ctx context.Context, log *zap.Logger, tx *kvs.Transaction) error
}

// Func adapts a plain function to Action.
type Func func(ctx context.Context, log *zap.Logger, tx *kvs.Transaction) error

// Run implements Action.
func (f Func) Run(ctx context.Context, log *zap.Logger, tx *kvs.Transaction) error {
	return f(ctx, log, tx)
}

// Step is one versioned upgrade.
type Step struct {
	Version     uint16
	Description string
	Action      Action
}

// Migration is an ordered list of Steps applied to one Datastore.
type Migration struct {
	DS    *kvs.Datastore
	Steps []*Step
}

// CurrentVersion returns the version recorded in storage, or 0 if the
// version key has never been written (a brand-new store).
func (m *Migration) CurrentVersion(ctx context.Context) (uint16, error) {
	tx, err := m.DS.Begin(ctx, kvs.Read, kvs.Optimistic)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Cancel() }()

	v, ok, err := tx.Get(keys.StorageVersionKey())
	if err != nil {
		return 0, err
	}
	if !ok || len(v) != 2 {
		return 0, nil
	}
	return binary.BigEndian.Uint16(v), nil
}

// TargetVersion returns the highest Version among Steps, or 0 if Steps
// is empty.
func (m *Migration) TargetVersion() uint16 {
	var max uint16
	for _, s := range m.Steps {
		if s.Version > max {
			max = s.Version
		}
	}
	return max
}

// ValidateSteps checks that Steps is sorted in strictly increasing
// Version order, matching the reference migrate engine's invariant that
// a Migration can never apply two steps out of order or skip-merge
// them.
func (m *Migration) ValidateSteps() error {
	for i := 1; i < len(m.Steps); i++ {
		if m.Steps[i].Version <= m.Steps[i-1].Version {
			return ErrNonSequential
		}
	}
	return nil
}

// Run applies every Step whose Version is greater than the storage's
// current version, in order, each in its own write transaction. The
// version key is advanced to a Step's Version in the same transaction
// as its Action, so a crash between steps leaves storage at exactly the
// version of the last fully-applied step.
func (m *Migration) Run(ctx context.Context, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if err := m.ValidateSteps(); err != nil {
		return err
	}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	for _, step := range m.Steps {
		if step.Version <= current {
			continue
		}
		log.Info("applying migration step",
			zap.Uint16("version", step.Version),
			zap.String("description", step.Description))

		tx, err := m.DS.Begin(ctx, kvs.Write, kvs.Optimistic)
		if err != nil {
			return err
		}
		if step.Action != nil {
			if err := step.Action.Run(ctx, log, tx); err != nil {
				_ = tx.Cancel()
				return Error.New("step %d (%s): %v", step.Version, step.Description, err)
			}
		}
		var vb [2]byte
		binary.BigEndian.PutUint16(vb[:], step.Version)
		if err := tx.Put(keys.StorageVersionKey(), vb[:], false); err != nil {
			_ = tx.Cancel()
			return err
		}
		if err := tx.Commit(); err != nil {
			return Error.New("step %d (%s): commit: %v", step.Version, step.Description, err)
		}
		current = step.Version
	}
	return nil
}
