// Package hnsw implements the HNSW vector index family: a layered
// proximity graph for approximate k-nearest-neighbor search, plus the
// priority-list result collector ported from the reference planner's
// exact-knn bookkeeping.
package hnsw

import (
	"math"

	"github.com/meridiandb/meridian/pkg/catalog"
)

// Distance computes the configured distance between two equal-length
// vectors, grounded on catalog.Distance's enumeration.
func Distance(kind catalog.Distance, minkowskiOrder float64, a, b []float64) float64 {
	switch kind {
	case catalog.DistManhattan:
		var sum float64
		for i := range a {
			sum += math.Abs(a[i] - b[i])
		}
		return sum
	case catalog.DistCosine:
		var dot, na, nb float64
		for i := range a {
			dot += a[i] * b[i]
			na += a[i] * a[i]
			nb += b[i] * b[i]
		}
		if na == 0 || nb == 0 {
			return 1
		}
		return 1 - dot/math.Sqrt(na*nb)
	case catalog.DistHamming:
		var n float64
		for i := range a {
			if a[i] != b[i] {
				n++
			}
		}
		return n
	case catalog.DistMinkowski:
		p := minkowskiOrder
		if p == 0 {
			p = 3
		}
		var sum float64
		for i := range a {
			sum += math.Pow(math.Abs(a[i]-b[i]), p)
		}
		return math.Pow(sum, 1/p)
	case catalog.DistJaccard:
		var inter, union float64
		for i := range a {
			if a[i] != 0 && b[i] != 0 {
				inter++
			}
			if a[i] != 0 || b[i] != 0 {
				union++
			}
		}
		if union == 0 {
			return 0
		}
		return 1 - inter/union
	case catalog.DistChebyshev:
		var max float64
		for i := range a {
			if d := math.Abs(a[i] - b[i]); d > max {
				max = d
			}
		}
		return max
	default: // DistEuclidean
		var sum float64
		for i := range a {
			d := a[i] - b[i]
			sum += d * d
		}
		return math.Sqrt(sum)
	}
}
