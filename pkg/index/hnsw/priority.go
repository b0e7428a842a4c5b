package hnsw

import (
	"sort"
	"sync"

	"github.com/meridiandb/meridian/pkg/keys"
)

// priorityBucket holds every candidate tied at the same distance, the
// Go analogue of the reference's BTreeMap<Number, HashSet<Thing>>
// value type.
type priorityBucket struct {
	dist  float64
	thing []keys.RecordIDKey
}

// KnnPriorityList accumulates the knn closest candidates seen so far,
// evicting the furthest bucket once enough closer candidates exist to
// guarantee it can never make the final cut. Ported from the reference
// planner's check_add/add/build.
type KnnPriorityList struct {
	mu      sync.Mutex
	knn     int
	docs    map[string]bool // Thing.Encode() -> present
	buckets []priorityBucket // kept sorted ascending by dist
}

// NewKnnPriorityList creates a list that will retain the knn closest
// candidates.
func NewKnnPriorityList(knn int) *KnnPriorityList {
	return &KnnPriorityList{knn: knn, docs: make(map[string]bool)}
}

// Add offers a candidate at the given distance; it is kept only if it
// still has a chance of ranking in the final knn results.
func (l *KnnPriorityList) Add(dist float64, id keys.RecordIDKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.checkAdd(dist) {
		return
	}
	l.add(dist, id)
}

func (l *KnnPriorityList) checkAdd(dist float64) bool {
	if len(l.docs) < l.knn {
		return true
	}
	if len(l.buckets) == 0 {
		return true
	}
	last := l.buckets[len(l.buckets)-1]
	return last.dist > dist
}

func (l *KnnPriorityList) add(dist float64, id keys.RecordIDKey) {
	enc := string(id.Encode())
	i := sort.Search(len(l.buckets), func(i int) bool { return l.buckets[i].dist >= dist })
	if i < len(l.buckets) && l.buckets[i].dist == dist {
		l.buckets[i].thing = append(l.buckets[i].thing, id)
	} else {
		b := priorityBucket{dist: dist, thing: []keys.RecordIDKey{id}}
		l.buckets = append(l.buckets, priorityBucket{})
		copy(l.buckets[i+1:], l.buckets[i:])
		l.buckets[i] = b
	}
	l.docs[enc] = true

	docsLen := len(l.docs)
	if docsLen > l.knn && len(l.buckets) > 0 {
		last := l.buckets[len(l.buckets)-1]
		if docsLen-len(last.thing) >= l.knn {
			l.buckets = l.buckets[:len(l.buckets)-1]
			for _, evicted := range last.thing {
				delete(l.docs, string(evicted.Encode()))
			}
		}
	}
}

// Build returns the knn closest candidates found, nearest first,
// truncating the last bucket considered if it would otherwise overflow
// the requested count.
func (l *KnnPriorityList) Build() []keys.RecordIDKey {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]keys.RecordIDKey, 0, l.knn)
	left := l.knn
	for _, b := range l.buckets {
		if len(b.thing) > left {
			out = append(out, b.thing[:left]...)
			break
		}
		out = append(out, b.thing...)
		left -= len(b.thing)
		if left == 0 {
			break
		}
	}
	return out
}
