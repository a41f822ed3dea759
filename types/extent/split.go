package extent

import (
	"github.com/garray/garray/internal/utils"
	"github.com/garray/garray/types"
	"github.com/pkg/errors"
)

// AxisChunks splits the half-open range [0, length) into count contiguous
// chunks: the first length%count chunks have ceil(length/count) indices,
// the rest floor(length/count). Chunks may be empty when count > length;
// their union is always exactly [0, length).
func AxisChunks(length, count int) []Slice {
	chunks := make([]Slice, count)
	lo := 0
	for i := range chunks {
		width := length / count
		if i < length%count {
			width++
		}
		chunks[i] = Slice{Start: lo, Stop: lo + width}
		lo += width
	}
	return chunks
}

// ShapeSplit partitions the global box [0, shape) into a Cartesian grid of
// tiles, counts[d] tiles along axis d. Tiles are returned in row-major
// order of their grid coordinate; tile r is described by one Slice per
// axis. The union of the tiles covers the shape exactly, with pairwise
// empty intersections.
func ShapeSplit(shape, counts []int) ([][]Slice, error) {
	if len(shape) != len(counts) {
		return nil, errors.Wrapf(types.ErrConfiguration,
			"shape and counts must have the same length, got %d and %d", len(shape), len(counts))
	}
	perAxis := make([][]Slice, len(shape))
	for d := range shape {
		if shape[d] < 0 {
			return nil, errors.Wrapf(types.ErrConfiguration, "shape[%d]=%d must be non-negative", d, shape[d])
		}
		if counts[d] <= 0 {
			return nil, errors.Wrapf(types.ErrConfiguration, "counts[%d]=%d must be positive", d, counts[d])
		}
		perAxis[d] = AxisChunks(shape[d], counts[d])
	}

	numTiles := utils.Prod(counts)
	tiles := make([][]Slice, numTiles)
	coord := make([]int, len(shape))
	for r := range tiles {
		tile := make([]Slice, len(shape))
		for d := range shape {
			tile[d] = perAxis[d][coord[d]]
		}
		tiles[r] = tile

		// Row-major odometer.
		for d := len(coord) - 1; d >= 0; d-- {
			coord[d]++
			if coord[d] < counts[d] {
				break
			}
			coord[d] = 0
		}
	}
	return tiles, nil
}

// FillDims replaces the zero entries of dims with positive factors so that
// the product over all entries equals n. The factorization is
// deterministic: the prime factors of the free quotient are distributed
// most-significant first over the free positions, each factor landing on
// the position with the currently smallest product, and the resulting
// divisors are assigned in ascending order so larger divisors land on
// later axes.
//
// An all-positive dims vector is only validated: its product must equal n.
func FillDims(dims []int, n int) ([]int, error) {
	if n <= 0 {
		return nil, errors.Wrapf(types.ErrConfiguration, "cannot factor a non-positive locale count %d", n)
	}
	out := make([]int, len(dims))
	fixed := 1
	var free []int
	for d, v := range dims {
		switch {
		case v < 0:
			return nil, errors.Wrapf(types.ErrConfiguration, "dims[%d]=%d must be non-negative", d, v)
		case v == 0:
			free = append(free, d)
		default:
			out[d] = v
			fixed *= v
		}
	}
	if len(free) == 0 {
		if fixed != n {
			return nil, errors.Wrapf(types.ErrConfiguration,
				"product of dims %v is %d, want the locale count %d", dims, fixed, n)
		}
		return out, nil
	}
	if n%fixed != 0 {
		return nil, errors.Wrapf(types.ErrConfiguration,
			"fixed dims of %v have product %d which does not divide the locale count %d", dims, fixed, n)
	}

	buckets := balancedDivisors(n/fixed, len(free))
	for i, d := range free {
		out[d] = buckets[i]
	}
	return out, nil
}

// balancedDivisors factors n into k divisors, as equal as possible, sorted
// ascending.
func balancedDivisors(n, k int) []int {
	buckets := make([]int, k)
	for i := range buckets {
		buckets[i] = 1
	}
	for _, f := range primeFactorsDescending(n) {
		smallest := 0
		for i := 1; i < k; i++ {
			if buckets[i] < buckets[smallest] {
				smallest = i
			}
		}
		buckets[smallest] *= f
	}
	// Ascending order puts larger divisors on later axes.
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			if buckets[j] < buckets[i] {
				buckets[i], buckets[j] = buckets[j], buckets[i]
			}
		}
	}
	return buckets
}

func primeFactorsDescending(n int) []int {
	var factors []int
	for f := 2; f*f <= n; f++ {
		for n%f == 0 {
			factors = append(factors, f)
			n /= f
		}
	}
	if n > 1 {
		factors = append(factors, n)
	}
	// Largest first, so big factors are placed before the buckets diverge.
	for i, j := 0, len(factors)-1; i < j; i, j = i+1, j-1 {
		factors[i], factors[j] = factors[j], factors[i]
	}
	return factors
}
