package decomp

import (
	"fmt"
	"slices"
	"strings"

	"github.com/garray/garray/comm"
	"github.com/garray/garray/internal/utils"
	"github.com/garray/garray/types"
	"github.com/garray/garray/types/extent"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Decomposition partitions a global array shape over the locale mesh of a
// LocaleTopology: one TileExtent per Cartesian rank, plus the exchange
// plan that fills every halo slab from its authoritative owner.
//
// Assigning a new shape or halo through SetShape/SetHalo recomputes every
// tile and the plan; there are no lazy caches. Construction is collective
// over the topology's rank group.
type Decomposition struct {
	shape []int
	halo  extent.Halo
	topo  *LocaleTopology

	tiles    []*TileExtent
	plan     *ExchangePlan
	cartRank int   // cart rank of the caller's locale
	repRanks []int // rank-group rank of each locale's representative, by cart rank
}

// NewDecomposition partitions shape over the given topology. halo accepts
// the forms of extent.NormalizeHalo (nil, scalar, per-axis, or d×2
// matrix).
func NewDecomposition(shape []int, halo any, topo *LocaleTopology) (*Decomposition, error) {
	if topo == nil {
		return nil, errors.Wrap(types.ErrConfiguration, "a decomposition needs a locale topology")
	}
	if len(shape) != topo.NDims() {
		return nil, errors.Wrapf(types.ErrConfiguration,
			"shape %v has %d axes but the locale mesh has %d", shape, len(shape), topo.NDims())
	}
	h, err := extent.NormalizeHalo(halo, len(shape))
	if err != nil {
		return nil, err
	}
	d := &Decomposition{shape: slices.Clone(shape), halo: h, topo: topo}
	if err := d.resolveLocaleRank(); err != nil {
		return nil, err
	}
	if err := d.rebuild(); err != nil {
		return nil, err
	}
	return d, nil
}

// resolveLocaleRank determines the cart rank of the caller's locale and
// the representative of every locale. Representatives know their cart rank
// from the inter-locale communicator; peers learn it through SUM
// all-reduces on the intra subgroup, representatives through SUM
// all-reduces on the rank group for the table.
func (d *Decomposition) resolveLocaleRank() error {
	topo := d.topo
	cart := 0
	if !comm.IsNull(topo.InterComm()) {
		cart = topo.InterComm().Rank()
	}
	if topo.NumLocales() > 1 {
		contribution := 0
		if topo.IsRepresentative() {
			contribution = cart
		}
		sum, err := topo.IntraComm().AllreduceSumInt(contribution)
		if err != nil {
			return errors.Wrap(err, "sharing the locale cart rank")
		}
		cart = sum
	}
	d.cartRank = cart

	d.repRanks = make([]int, topo.NumLocales())
	for i := range d.repRanks {
		contribution := 0
		if topo.IsRepresentative() && cart == i {
			contribution = topo.RankComm().Rank()
		}
		sum, err := topo.RankComm().AllreduceSumInt(contribution)
		if err != nil {
			return errors.Wrap(err, "gathering locale representatives")
		}
		d.repRanks[i] = sum
	}
	return nil
}

// rebuild recomputes every tile and the exchange plan from the current
// shape and halo.
func (d *Decomposition) rebuild() error {
	for axis, p := range d.topo.Periods() {
		if p && (d.halo[axis][types.LO] > d.shape[axis] || d.halo[axis][types.HI] > d.shape[axis]) {
			return errors.Wrapf(types.ErrConfiguration,
				"halo %v exceeds the array shape %v on periodic axis %d", d.halo[axis], d.shape, axis)
		}
	}

	dims := d.topo.Dims()
	grid, err := extent.ShapeSplit(d.shape, dims)
	if err != nil {
		return err
	}
	tiles := make([]*TileExtent, len(grid))
	for r, slice := range grid {
		tiles[r], err = NewTileExtent(r, d.topo.CartCoord(r), dims, d.shape, slice, d.halo, d.topo.Periods())
		if err != nil {
			return err
		}
	}
	if err := checkTiling(tiles, d.shape, d.topo.Periods()); err != nil {
		return err
	}
	d.tiles = tiles
	d.plan, err = buildPlan(tiles, d.shape, d.topo.Periods())
	if err != nil {
		return err
	}
	klog.V(1).InfoS("decomposition rebuilt",
		"cart", d.cartRank, "shape", d.shape, "dims", dims, "halo", d.halo, "planEntries", len(d.plan.entries))
	return nil
}

// checkTiling verifies the structural invariants of the authoritative
// split: the tiles cover [0, shape) exactly, pairwise disjointly, and no
// with-halo box leaves the bounds of a non-periodic axis.
func checkTiling(tiles []*TileExtent, shape []int, periods []bool) error {
	ranks := utils.MakeSet[int](len(tiles))
	total := 0
	for _, t := range tiles {
		if ranks.Has(t.CartRank()) {
			return errors.Wrapf(types.ErrInternal, "cart rank %d appears twice in the tiling", t.CartRank())
		}
		ranks.Insert(t.CartRank())
		total += t.SizeN()
		for axis := range shape {
			if periods[axis] {
				continue
			}
			if t.StartH(axis) < 0 || t.StopH(axis) > shape[axis] {
				return errors.Wrapf(types.ErrInternal,
					"with-halo box %s of tile %d leaves the array bounds %v", t.BoxH(), t.CartRank(), shape)
			}
		}
	}
	if total != utils.Prod(shape) {
		return errors.Wrapf(types.ErrInternal,
			"authoritative boxes cover %d elements, want %d", total, utils.Prod(shape))
	}
	for i := 0; i < len(tiles); i++ {
		for j := i + 1; j < len(tiles); j++ {
			if _, overlap := tiles[i].BoxN().Intersect(tiles[j].BoxN()); overlap {
				return errors.Wrapf(types.ErrInternal,
					"authoritative boxes of tiles %d and %d overlap", i, j)
			}
		}
	}
	return nil
}

// Shape returns the global array shape.
func (d *Decomposition) Shape() []int {
	return slices.Clone(d.shape)
}

// SetShape re-partitions the decomposition over a new global shape. All
// tiles and the exchange plan are recomputed; arrays bound to the old
// shape must be rebuilt by the caller. Collective in the sense that every
// participant must apply the same assignment.
func (d *Decomposition) SetShape(shape []int) error {
	if len(shape) != d.topo.NDims() {
		return errors.Wrapf(types.ErrConfiguration,
			"shape %v has %d axes but the locale mesh has %d", shape, len(shape), d.topo.NDims())
	}
	old := d.shape
	d.shape = slices.Clone(shape)
	if err := d.rebuild(); err != nil {
		d.shape = old
		return err
	}
	return nil
}

// Halo returns the requested (unclipped) halo matrix.
func (d *Decomposition) Halo() extent.Halo {
	return d.halo.Clone()
}

// SetHalo replaces the halo policy and recomputes every tile and the
// exchange plan. halo accepts the forms of extent.NormalizeHalo.
func (d *Decomposition) SetHalo(halo any) error {
	h, err := extent.NormalizeHalo(halo, len(d.shape))
	if err != nil {
		return err
	}
	old := d.halo
	d.halo = h
	if err := d.rebuild(); err != nil {
		d.halo = old
		return err
	}
	return nil
}

// Topology returns the locale topology the decomposition is built on.
func (d *Decomposition) Topology() *LocaleTopology {
	return d.topo
}

// NDims returns the dimensionality of the array and the mesh.
func (d *Decomposition) NDims() int {
	return len(d.shape)
}

// NumTiles returns the number of tiles (= locales) in the mesh.
func (d *Decomposition) NumTiles() int {
	return len(d.tiles)
}

// Tile returns the tile of the given cart rank.
func (d *Decomposition) Tile(cartRank int) *TileExtent {
	return d.tiles[cartRank]
}

// Tiles returns all tiles, indexed by cart rank.
func (d *Decomposition) Tiles() []*TileExtent {
	return slices.Clone(d.tiles)
}

// LocalCartRank returns the cart rank of the caller's locale.
func (d *Decomposition) LocalCartRank() int {
	return d.cartRank
}

// LocalTile returns the tile owned by the caller's locale.
func (d *Decomposition) LocalTile() *TileExtent {
	return d.tiles[d.cartRank]
}

// RepresentativeRank returns the rank-group rank of the representative of
// the given locale.
func (d *Decomposition) RepresentativeRank(cartRank int) int {
	return d.repRanks[cartRank]
}

// RankViewSlice returns the sub-box of the local tile's authoritative
// region owned by the given intra-locale peer: a slab split of the tile
// along axis 0 over the intra subgroup. With singleton locales this is the
// whole tile.
func (d *Decomposition) RankViewSlice(intraRank, intraSize int) extent.Extent {
	tile := d.LocalTile()
	chunk := extent.AxisChunks(tile.ShapeN()[0], intraSize)[intraRank]
	start := tile.BoxN().Starts()
	stop := tile.BoxN().Stops()
	stop[0] = start[0] + chunk.Stop
	start[0] += chunk.Start
	return extent.MustNew(start, stop)
}

// Plan returns the exchange plan of the current shape and halo.
func (d *Decomposition) Plan() *ExchangePlan {
	return d.plan
}

// String implements fmt.Stringer: a per-tile table, the form the
// decomposition is logged in.
func (d *Decomposition) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "Decomposition(shape=%v, dims=%v, halo=%v)\n", d.shape, d.topo.Dims(), d.halo)
	for _, t := range d.tiles {
		sb.WriteString("  ")
		sb.WriteString(t.String())
		sb.WriteString("\n")
	}
	return sb.String()
}
