// Package extent provides axis-aligned, half-open N-dimensional index boxes
// and the arithmetic the decomposition engine is built on: intersection,
// translation and conversion to per-axis slices.
package extent

import (
	"fmt"
	"slices"
	"strings"

	"github.com/garray/garray/types"
	"github.com/pkg/errors"
)

// Slice is a half-open index range [Start, Stop) along one axis.
type Slice struct {
	Start, Stop int
}

// Len returns the number of indices covered by the slice.
func (s Slice) Len() int {
	return s.Stop - s.Start
}

// Extent is an immutable half-open N-dimensional index box [start, stop).
// Components of stop-start may be zero, in which case the box is empty.
type Extent struct {
	start, stop []int
}

// New creates an Extent from start and stop vectors.
//
// The vectors must have the same length and stop[d] >= start[d] along every
// axis. The vectors are cloned: the caller keeps ownership of its slices.
func New(start, stop []int) (Extent, error) {
	if len(start) != len(stop) {
		return Extent{}, errors.Wrapf(types.ErrConfiguration,
			"extent start and stop must have the same length, got %d and %d", len(start), len(stop))
	}
	for d := range start {
		if stop[d] < start[d] {
			return Extent{}, errors.Wrapf(types.ErrConfiguration,
				"extent stop[%d]=%d is smaller than start[%d]=%d", d, stop[d], d, start[d])
		}
	}
	return Extent{start: slices.Clone(start), stop: slices.Clone(stop)}, nil
}

// MustNew is like New but panics on error. It is meant for literal fixtures.
func MustNew(start, stop []int) Extent {
	e, err := New(start, stop)
	if err != nil {
		panic(err)
	}
	return e
}

// FromSlices creates an Extent from per-axis slice descriptors.
func FromSlices(axes ...Slice) (Extent, error) {
	start := make([]int, len(axes))
	stop := make([]int, len(axes))
	for d, s := range axes {
		start[d] = s.Start
		stop[d] = s.Stop
	}
	return New(start, stop)
}

// Rank returns the number of axes of the extent.
func (e Extent) Rank() int {
	return len(e.start)
}

// Start returns the inclusive lower bound along the given axis.
func (e Extent) Start(axis int) int {
	return e.start[axis]
}

// Stop returns the exclusive upper bound along the given axis.
func (e Extent) Stop(axis int) int {
	return e.stop[axis]
}

// Starts returns a copy of the per-axis inclusive lower bounds.
func (e Extent) Starts() []int {
	return slices.Clone(e.start)
}

// Stops returns a copy of the per-axis exclusive upper bounds.
func (e Extent) Stops() []int {
	return slices.Clone(e.stop)
}

// Shape returns stop-start per axis. Components may be zero.
func (e Extent) Shape() []int {
	shape := make([]int, len(e.start))
	for d := range e.start {
		shape[d] = e.stop[d] - e.start[d]
	}
	return shape
}

// Size returns the number of indices covered by the extent.
func (e Extent) Size() int {
	size := 1
	for d := range e.start {
		size *= e.stop[d] - e.start[d]
	}
	return size
}

// IsEmpty returns whether the extent covers no indices.
func (e Extent) IsEmpty() bool {
	for d := range e.start {
		if e.stop[d] <= e.start[d] {
			return true
		}
	}
	return len(e.start) == 0
}

// Equal returns whether e and o have identical bounds. Equality is
// structural: two empty boxes with different bounds are not equal.
func (e Extent) Equal(o Extent) bool {
	return slices.Equal(e.start, o.start) && slices.Equal(e.stop, o.stop)
}

// Intersect returns the set intersection of e and o. The second result is
// false when the intersection is empty along any axis, in which case the
// returned extent is the zero value.
func (e Extent) Intersect(o Extent) (Extent, bool) {
	if len(e.start) != len(o.start) {
		return Extent{}, false
	}
	start := make([]int, len(e.start))
	stop := make([]int, len(e.start))
	for d := range e.start {
		start[d] = max(e.start[d], o.start[d])
		stop[d] = min(e.stop[d], o.stop[d])
		if stop[d] <= start[d] {
			return Extent{}, false
		}
	}
	return Extent{start: start, stop: stop}, true
}

// Translate returns the extent shifted by offset, element-wise.
func (e Extent) Translate(offset []int) Extent {
	start := make([]int, len(e.start))
	stop := make([]int, len(e.start))
	for d := range e.start {
		start[d] = e.start[d] + offset[d]
		stop[d] = e.stop[d] + offset[d]
	}
	return Extent{start: start, stop: stop}
}

// Contains returns whether the index lies inside the extent.
func (e Extent) Contains(idx []int) bool {
	if len(idx) != len(e.start) {
		return false
	}
	for d := range idx {
		if idx[d] < e.start[d] || idx[d] >= e.stop[d] {
			return false
		}
	}
	return true
}

// ContainsExtent returns whether o is fully contained in e. An empty o is
// contained in any extent of the same rank.
func (e Extent) ContainsExtent(o Extent) bool {
	if len(o.start) != len(e.start) {
		return false
	}
	if o.IsEmpty() {
		return true
	}
	for d := range e.start {
		if o.start[d] < e.start[d] || o.stop[d] > e.stop[d] {
			return false
		}
	}
	return true
}

// Slices returns the extent as per-axis slice descriptors.
func (e Extent) Slices() []Slice {
	out := make([]Slice, len(e.start))
	for d := range e.start {
		out[d] = Slice{Start: e.start[d], Stop: e.stop[d]}
	}
	return out
}

// String implements fmt.Stringer.
func (e Extent) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for d := range e.start {
		if d > 0 {
			sb.WriteString(", ")
		}
		_, _ = fmt.Fprintf(&sb, "%d:%d", e.start[d], e.stop[d])
	}
	sb.WriteString(")")
	return sb.String()
}
