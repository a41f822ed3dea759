package decomp

import (
	"fmt"

	"github.com/garray/garray/types"
	"github.com/garray/garray/types/extent"
)

// PlanEntry is one transfer of the exchange plan: the box Src inside the
// source tile's authoritative region must be copied into the box Dst
// inside the destination tile's with-halo region. Both boxes are in global
// coordinates and have identical shapes; under periodic wrap they differ
// by a multiple of the array shape, otherwise they are equal.
//
// Index is the entry's position in the deterministic plan order and serves
// as the transfer tag: every participant computes the identical plan, so
// both ends of a transfer agree on it.
type PlanEntry struct {
	SrcRank int
	DstRank int
	Src     extent.Extent
	Dst     extent.Extent
	Index   int
}

// IsLocal reports whether the entry stays within one tile (periodic wrap
// onto itself, or any entry on a single-locale mesh).
func (e PlanEntry) IsLocal() bool {
	return e.SrcRank == e.DstRank
}

// String implements fmt.Stringer.
func (e PlanEntry) String() string {
	return fmt.Sprintf("#%d %d:%s -> %d:%s", e.Index, e.SrcRank, e.Src, e.DstRank, e.Dst)
}

// ExchangePlan is the full, symmetric list of transfers that refreshes
// every halo slab of every tile from its authoritative owner. The plan is
// identical on every participant; entries appear in a fixed order
// (destination cart rank, axis, side, wrap image, source cart rank).
type ExchangePlan struct {
	entries []PlanEntry
}

// Entries returns the plan entries in deterministic order.
func (p *ExchangePlan) Entries() []PlanEntry {
	return p.entries
}

// SendsBy returns the entries whose source is the given tile, excluding
// tile-local copies.
func (p *ExchangePlan) SendsBy(cartRank int) []PlanEntry {
	var out []PlanEntry
	for _, e := range p.entries {
		if e.SrcRank == cartRank && !e.IsLocal() {
			out = append(out, e)
		}
	}
	return out
}

// RecvsBy returns the entries whose destination is the given tile,
// excluding tile-local copies.
func (p *ExchangePlan) RecvsBy(cartRank int) []PlanEntry {
	var out []PlanEntry
	for _, e := range p.entries {
		if e.DstRank == cartRank && !e.IsLocal() {
			out = append(out, e)
		}
	}
	return out
}

// LocalsBy returns the tile-local entries of the given tile.
func (p *ExchangePlan) LocalsBy(cartRank int) []PlanEntry {
	var out []PlanEntry
	for _, e := range p.entries {
		if e.DstRank == cartRank && e.IsLocal() {
			out = append(out, e)
		}
	}
	return out
}

// buildPlan computes the exchange plan for the given tiling. For every
// tile, axes are peeled in order: the halo slab of axis d is first
// restricted to the no-halo strip of every earlier axis, so each halo cell
// is produced by exactly one entry. The restricted slab is then
// intersected with every tile's authoritative box; on periodic axes the
// slab is additionally intersected through its wrapped images, which is
// where tile-local (self) entries can arise.
func buildPlan(tiles []*TileExtent, shape []int, periods []bool) (*ExchangePlan, error) {
	plan := &ExchangePlan{}
	ndim := len(shape)
	for _, dst := range tiles {
		for axis := 0; axis < ndim; axis++ {
			for _, side := range types.Sides {
				slab := dst.HaloSlab(axis, side)
				if slab.IsEmpty() {
					continue
				}
				peeled, ok := slab, true
				for prev := 0; prev < axis && ok; prev++ {
					peeled, ok = peeled.Intersect(dst.NoHaloExtent(prev))
				}
				if !ok {
					continue
				}
				for _, offset := range wrapOffsets(peeled, shape, periods) {
					image := peeled.Translate(offset)
					for _, src := range tiles {
						x, ok := image.Intersect(src.BoxN())
						if !ok {
							continue
						}
						back := make([]int, ndim)
						for d := range back {
							back[d] = -offset[d]
						}
						plan.entries = append(plan.entries, PlanEntry{
							SrcRank: src.CartRank(),
							DstRank: dst.CartRank(),
							Src:     x,
							Dst:     x.Translate(back),
							Index:   len(plan.entries),
						})
					}
				}
			}
		}
	}
	return plan, nil
}

// wrapOffsets enumerates the translations that map the out-of-bounds
// portions of a slab back into [0, shape) on periodic axes. The zero
// offset is always included; non-periodic axes never contribute. Portions
// of a translated image that remain out of bounds intersect no
// authoritative box, so over-enumeration is harmless but each halo cell is
// still matched by exactly one (offset, owner) pair.
func wrapOffsets(slab extent.Extent, shape []int, periods []bool) [][]int {
	offsets := [][]int{make([]int, len(shape))}
	for axis := range shape {
		if !periods[axis] {
			continue
		}
		var shifts []int
		if slab.Start(axis) < 0 {
			shifts = append(shifts, shape[axis])
		}
		if slab.Stop(axis) > shape[axis] {
			shifts = append(shifts, -shape[axis])
		}
		if len(shifts) == 0 {
			continue
		}
		grown := offsets
		for _, s := range shifts {
			for _, base := range offsets {
				shifted := make([]int, len(base))
				copy(shifted, base)
				shifted[axis] = s
				grown = append(grown, shifted)
			}
		}
		offsets = grown
	}
	return offsets
}
