package iterator

import "github.com/meridiandb/meridian/pkg/value"

// AggregateFunc reduces one GROUP BY bucket to a single value. Functions
// that advertise is_aggregate() in the reference implementation (count,
// sum, mean, ...) are modeled this way; the query layer supplies the
// actual reduction, since parsing/registering functions is a non-goal
// here.
type AggregateFunc func(bucket []value.Value) (value.Value, error)

// Projection is one output field of a GROUP BY clause: either an
// aggregate over the whole bucket, or (Aggregate == nil) the bucket's
// first element's field, matching core/src/dbs/group.rs's rule that
// non-aggregate expressions read the first grouped record.
type Projection struct {
	Field     string
	Aggregate AggregateFunc
}

// GroupBy buckets rows by the tuple of their GroupFields values, then
// evaluates Projections per bucket. Bucket order follows the sorted
// order of the grouping tuple, mirroring group.rs's BTreeMap<Array,
// Array> (group keys are a BTreeMap key, so buckets iterate in sorted
// order, not insertion order).
type GroupBy struct {
	Fields      []string
	Projections []Projection
}

type groupBucket struct {
	key  []value.Value
	rows []value.Value
}

// Finish groups rows and produces one output object per bucket.
func (g *GroupBy) Finish(rows []value.Value) ([]value.Value, error) {
	var buckets []*groupBucket
	for _, row := range rows {
		key := make([]value.Value, len(g.Fields))
		for i, f := range g.Fields {
			key[i] = row.Pick(f)
		}
		b := findBucket(buckets, key)
		if b == nil {
			b = &groupBucket{key: key}
			buckets = insertBucket(buckets, b)
		}
		b.rows = append(b.rows, row)
	}

	out := make([]value.Value, 0, len(buckets))
	for _, b := range buckets {
		obj := make(map[string]value.Value, len(g.Projections))
		for _, p := range g.Projections {
			if p.Aggregate != nil {
				v, err := p.Aggregate(b.rows)
				if err != nil {
					return nil, err
				}
				obj[p.Field] = v
				continue
			}
			if len(b.rows) > 0 {
				obj[p.Field] = b.rows[0].Pick(p.Field)
			} else {
				obj[p.Field] = value.None
			}
		}
		out = append(out, value.NewObject(obj))
	}
	return out, nil
}

func compareKeys(a, b []value.Value) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := value.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func findBucket(buckets []*groupBucket, key []value.Value) *groupBucket {
	for _, b := range buckets {
		if compareKeys(b.key, key) == 0 {
			return b
		}
	}
	return nil
}

// insertBucket keeps buckets sorted by key, matching a BTreeMap's
// iteration order.
func insertBucket(buckets []*groupBucket, b *groupBucket) []*groupBucket {
	i := 0
	for ; i < len(buckets); i++ {
		if compareKeys(b.key, buckets[i].key) < 0 {
			break
		}
	}
	buckets = append(buckets, nil)
	copy(buckets[i+1:], buckets[i:])
	buckets[i] = b
	return buckets
}
