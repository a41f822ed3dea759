package decomp

import (
	"fmt"
	"slices"

	"github.com/garray/garray/types"
	"github.com/garray/garray/types/extent"
	"github.com/pkg/errors"
)

// TileExtent is the per-tile record of a decomposition: the authoritative
// box owned by one locale, the clipped halo around it, and the Cartesian
// placement of the tile in the locale mesh. It is pure arithmetic; nothing
// here touches a communicator.
//
// The requested halo is clipped against the global bounds: it is zero on
// outer faces of non-periodic axes and capped so the with-halo box never
// leaves [0, arrayShape). Halos may exceed neighbor tile widths; clipping
// is only against the global bounds.
type TileExtent struct {
	extent.HaloExtent
	cartRank   int
	cartCoord  []int
	cartShape  []int
	arrayShape []int
	periods    []bool
}

// NewTileExtent builds the tile record for the given Cartesian coordinate.
// slice is the tile's authoritative range per axis; halo is the requested
// (unclipped) halo policy in canonical matrix form; nil periods means all
// axes non-periodic.
func NewTileExtent(cartRank int, cartCoord, cartShape, arrayShape []int, slice []extent.Slice,
	halo extent.Halo, periods []bool) (*TileExtent, error) {
	ndim := len(arrayShape)
	if len(cartCoord) != ndim || len(cartShape) != ndim || len(slice) != ndim {
		return nil, errors.Wrapf(types.ErrConfiguration,
			"tile extent rank mismatch: coord %v, mesh %v, slice %v, array shape %v",
			cartCoord, cartShape, slice, arrayShape)
	}
	if periods == nil {
		periods = make([]bool, ndim)
	}
	halo, err := extent.NormalizeHalo(halo, ndim)
	if err != nil {
		return nil, err
	}

	start := make([]int, ndim)
	stop := make([]int, ndim)
	clipped := make(extent.Halo, ndim)
	for d := 0; d < ndim; d++ {
		start[d] = slice[d].Start
		stop[d] = slice[d].Stop
		if start[d] < 0 || stop[d] > arrayShape[d] {
			return nil, errors.Wrapf(types.ErrInternal,
				"authoritative slice %v leaves the array bounds %v on axis %d", slice, arrayShape, d)
		}
		clipped[d] = clipHalo(halo[d], cartCoord[d], cartShape[d], start[d], stop[d], arrayShape[d], periods[d])
	}
	he, err := extent.NewHalo(start, stop, clipped)
	if err != nil {
		return nil, err
	}
	return &TileExtent{
		HaloExtent: he,
		cartRank:   cartRank,
		cartCoord:  slices.Clone(cartCoord),
		cartShape:  slices.Clone(cartShape),
		arrayShape: slices.Clone(arrayShape),
		periods:    slices.Clone(periods),
	}, nil
}

// clipHalo caps the requested two-sided halo of one axis against the
// global bounds. Periodic axes are never clipped.
func clipHalo(h [2]int, coord, meshDim, start, stop, length int, periodic bool) [2]int {
	if periodic {
		return h
	}
	lo, hi := h[types.LO], h[types.HI]
	if coord == 0 {
		lo = 0
	} else {
		lo = min(lo, start)
	}
	if coord == meshDim-1 {
		hi = 0
	} else {
		hi = min(hi, length-stop)
	}
	return [2]int{lo, hi}
}

// CartRank returns the tile's rank in the inter-locale Cartesian
// communicator.
func (t *TileExtent) CartRank() int {
	return t.cartRank
}

// CartCoord returns the tile's Cartesian coordinate.
func (t *TileExtent) CartCoord() []int {
	return slices.Clone(t.cartCoord)
}

// CartShape returns the shape of the locale mesh.
func (t *TileExtent) CartShape() []int {
	return slices.Clone(t.cartShape)
}

// ArrayShape returns the global array shape.
func (t *TileExtent) ArrayShape() []int {
	return slices.Clone(t.arrayShape)
}

// Periods returns the per-axis periodicity flags.
func (t *TileExtent) Periods() []bool {
	return slices.Clone(t.periods)
}

// HaloSlab returns the 1-axis-thin slab that is the halo on the chosen
// face, in global coordinates: along axis it spans the clipped halo width
// just outside the authoritative range; along every other axis it spans
// the full with-halo box. An empty slab (zero width at the face) has
// start==stop at the authoritative bound.
func (t *TileExtent) HaloSlab(axis int, side types.Side) extent.Extent {
	h := t.BoxH()
	start := h.Starts()
	stop := h.Stops()
	if side == types.LO {
		start[axis] = t.StartN(axis) - t.HaloWidth(axis, types.LO)
		stop[axis] = t.StartN(axis)
	} else {
		start[axis] = t.StopN(axis)
		stop[axis] = t.StopN(axis) + t.HaloWidth(axis, types.HI)
	}
	return extent.MustNew(start, stop)
}

// NoHaloExtent returns the sub-box of the with-halo box whose range along
// axis is exactly the authoritative range, and the full with-halo extent
// along every other axis. This is the strip the owner writes itself and
// never fetches.
func (t *TileExtent) NoHaloExtent(axis int) extent.Extent {
	h := t.BoxH()
	start := h.Starts()
	stop := h.Stops()
	start[axis] = t.StartN(axis)
	stop[axis] = t.StopN(axis)
	return extent.MustNew(start, stop)
}

// GlobaleToLocale translates a global index into the tile's with-halo
// local buffer: subtract the with-halo start per axis.
func (t *TileExtent) GlobaleToLocale(idx []int) []int {
	out := make([]int, len(idx))
	for d := range idx {
		out[d] = idx[d] - t.StartH(d)
	}
	return out
}

// GlobaleToLocaleExtentH translates a global box into the tile's with-halo
// local coordinates. The result is a valid slice into the with-halo
// storage buffer whenever box is contained in the with-halo box.
func (t *TileExtent) GlobaleToLocaleExtentH(box extent.Extent) extent.Extent {
	offset := make([]int, box.Rank())
	for d := range offset {
		offset[d] = -t.StartH(d)
	}
	return box.Translate(offset)
}

// String implements fmt.Stringer.
func (t *TileExtent) String() string {
	return fmt.Sprintf("TileExtent(cart=%d coord=%v n=%s h=%s halo=%v)",
		t.cartRank, t.cartCoord, t.BoxN(), t.BoxH(), t.Halo())
}
