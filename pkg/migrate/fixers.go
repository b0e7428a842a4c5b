package migrate

import (
	"context"

	"go.uber.org/zap"

	"github.com/meridiandb/meridian/pkg/keys"
	"github.com/meridiandb/meridian/pkg/kvs"
)

// legacyTagThreshold mirrors pkg/keys' unexported recordIDTag threshold:
// any record id whose tag byte was >= 2 under the pre-Uuid layout
// (Array was 2, Object was 3) needs that byte bumped by one to land on
// its new tag (Array 3, Object 4) now that Uuid occupies 2.
const legacyTagThreshold = 2

// FixRecordIDTagsV2 rewrites every record key in table tb whose record
// id tag byte is >= legacyTagThreshold, bumping it by one in place. It
// is the concrete shape a new RecordIDKey variant's migration takes: a
// full scan of the affected range, rewriting only the leading tag byte
// of each key, never the id payload that follows it.
//
// Registered as the Action for the step that introduced the Uuid
// variant; ns/db/tb are bound by the caller building the Migration's
// Steps (typically one step per existing table, discovered from
// pkg/catalog before this migration runs).
func FixRecordIDTagsV2(ns, db, tb string) Func {
	return func(ctx context.Context, log *zap.Logger, tx *kvs.Transaction) error {
		offset := keys.ThingTagOffset(ns, db, tb)
		items, err := tx.Scan(keys.ThingPrefix(ns, db, tb), keys.ThingSuffix(ns, db, tb), 0)
		if err != nil {
			return err
		}
		fixed := 0
		for _, it := range items {
			if len(it.Key) <= offset || it.Key[offset] < legacyTagThreshold {
				continue
			}
			newKey := append([]byte{}, it.Key...)
			newKey[offset]++
			if err := tx.Del(it.Key); err != nil {
				return err
			}
			if err := tx.Put(newKey, it.Value, false); err != nil {
				return err
			}
			fixed++
		}
		if fixed > 0 {
			log.Info("rewrote legacy record id tags",
				zap.String("table", tb),
				zap.Int("count", fixed))
		}
		return nil
	}
}
