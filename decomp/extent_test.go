package decomp

import (
	"testing"

	"github.com/garray/garray/types"
	"github.com/garray/garray/types/extent"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tilesFor builds the full tiling of shape over a mesh of the given dims
// with the given requested halo, the way Decomposition does it.
func tilesFor(t *testing.T, shape, dims []int, halo extent.Halo, periods []bool) []*TileExtent {
	t.Helper()
	grid := must.M1(extent.ShapeSplit(shape, dims))
	tiles := make([]*TileExtent, len(grid))
	coords := cartCoords(dims)
	for r := range grid {
		var err error
		tiles[r], err = NewTileExtent(r, coords[r], dims, shape, grid[r], halo, periods)
		require.NoError(t, err)
	}
	return tiles
}

// cartCoords lists the row-major coordinates of a mesh.
func cartCoords(dims []int) [][]int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	out := make([][]int, n)
	for r := 0; r < n; r++ {
		c := make([]int, len(dims))
		rem := r
		for d := len(dims) - 1; d >= 0; d-- {
			c[d] = rem % dims[d]
			rem /= dims[d]
		}
		out[r] = c
	}
	return out
}

func TestTileExtentConstructAttribs(t *testing.T) {
	de, err := NewTileExtent(0, []int{0}, []int{1}, []int{100},
		[]extent.Slice{{Start: 0, Stop: 100}}, extent.Halo{{10, 10}}, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, de.CartRank())
	assert.Equal(t, []int{0}, de.CartCoord())
	assert.Equal(t, []int{1}, de.CartShape())
	// A single tile is on every boundary: the halo clips to zero.
	assert.Equal(t, extent.Halo{{0, 0}}, de.Halo())
}

func TestTileExtent1DThickTiles(t *testing.T) {
	// Halo smaller than the tile width.
	de := tilesFor(t, []int{300}, []int{3}, extent.Halo{{10, 10}}, nil)

	assert.Equal(t, 0, de[0].CartRank())
	assert.Equal(t, []int{0}, de[0].CartCoord())
	assert.Equal(t, []int{3}, de[0].CartShape())
	assert.Equal(t, extent.Halo{{0, 10}}, de[0].Halo())
	assert.True(t, de[0].HaloSlab(0, types.LO).Equal(extent.MustNew([]int{0}, []int{0})))
	assert.True(t, de[0].HaloSlab(0, types.HI).Equal(extent.MustNew([]int{100}, []int{110})))
	assert.True(t, de[0].NoHaloExtent(0).Equal(extent.MustNew([]int{0}, []int{100})))

	assert.Equal(t, 1, de[1].CartRank())
	assert.Equal(t, []int{1}, de[1].CartCoord())
	assert.Equal(t, extent.Halo{{10, 10}}, de[1].Halo())
	assert.True(t, de[1].HaloSlab(0, types.LO).Equal(extent.MustNew([]int{90}, []int{100})))
	assert.True(t, de[1].HaloSlab(0, types.HI).Equal(extent.MustNew([]int{200}, []int{210})))
	assert.True(t, de[1].NoHaloExtent(0).Equal(extent.MustNew([]int{100}, []int{200})))

	assert.Equal(t, 2, de[2].CartRank())
	assert.Equal(t, extent.Halo{{10, 0}}, de[2].Halo())
	assert.True(t, de[2].HaloSlab(0, types.LO).Equal(extent.MustNew([]int{190}, []int{200})))
	assert.True(t, de[2].HaloSlab(0, types.HI).Equal(extent.MustNew([]int{300}, []int{300})))
	assert.True(t, de[2].NoHaloExtent(0).Equal(extent.MustNew([]int{200}, []int{300})))
}

func TestTileExtent1DThinTiles(t *testing.T) {
	// Halo larger than the tile width: clipping caps against the global
	// bounds only, so halos reach across several tiles.
	de := tilesFor(t, []int{15}, []int{5}, extent.Halo{{5, 5}}, nil)

	assert.Equal(t, extent.Halo{{0, 5}}, de[0].Halo())
	assert.True(t, de[0].HaloSlab(0, types.LO).Equal(extent.MustNew([]int{0}, []int{0})))
	assert.True(t, de[0].HaloSlab(0, types.HI).Equal(extent.MustNew([]int{3}, []int{8})))
	assert.True(t, de[0].NoHaloExtent(0).Equal(extent.MustNew([]int{0}, []int{3})))

	assert.Equal(t, extent.Halo{{3, 5}}, de[1].Halo())
	assert.True(t, de[1].HaloSlab(0, types.LO).Equal(extent.MustNew([]int{0}, []int{3})))
	assert.True(t, de[1].HaloSlab(0, types.HI).Equal(extent.MustNew([]int{6}, []int{11})))
	assert.True(t, de[1].NoHaloExtent(0).Equal(extent.MustNew([]int{3}, []int{6})))

	assert.Equal(t, extent.Halo{{5, 5}}, de[2].Halo())
	assert.True(t, de[2].HaloSlab(0, types.LO).Equal(extent.MustNew([]int{1}, []int{6})))
	assert.True(t, de[2].HaloSlab(0, types.HI).Equal(extent.MustNew([]int{9}, []int{14})))
	assert.True(t, de[2].NoHaloExtent(0).Equal(extent.MustNew([]int{6}, []int{9})))

	assert.Equal(t, extent.Halo{{5, 3}}, de[3].Halo())
	assert.True(t, de[3].HaloSlab(0, types.LO).Equal(extent.MustNew([]int{4}, []int{9})))
	assert.True(t, de[3].HaloSlab(0, types.HI).Equal(extent.MustNew([]int{12}, []int{15})))
	assert.True(t, de[3].NoHaloExtent(0).Equal(extent.MustNew([]int{9}, []int{12})))

	assert.Equal(t, extent.Halo{{5, 0}}, de[4].Halo())
	assert.True(t, de[4].HaloSlab(0, types.LO).Equal(extent.MustNew([]int{7}, []int{12})))
	assert.True(t, de[4].HaloSlab(0, types.HI).Equal(extent.MustNew([]int{15}, []int{15})))
	assert.True(t, de[4].NoHaloExtent(0).Equal(extent.MustNew([]int{12}, []int{15})))
}

func TestTileExtent2DThickTiles(t *testing.T) {
	de := tilesFor(t, []int{300, 600}, []int{3, 3}, extent.Halo{{10, 10}, {5, 5}}, nil)

	// Corner tile (0, 0).
	assert.Equal(t, []int{0, 0}, de[0].CartCoord())
	assert.Equal(t, extent.Halo{{0, 10}, {0, 5}}, de[0].Halo())
	assert.True(t, de[0].HaloSlab(0, types.LO).Equal(extent.MustNew([]int{0, 0}, []int{0, 205})))
	assert.True(t, de[0].HaloSlab(0, types.HI).Equal(extent.MustNew([]int{100, 0}, []int{110, 205})))
	assert.True(t, de[0].HaloSlab(1, types.LO).Equal(extent.MustNew([]int{0, 0}, []int{110, 0})))
	assert.True(t, de[0].HaloSlab(1, types.HI).Equal(extent.MustNew([]int{0, 200}, []int{110, 205})))
	assert.True(t, de[0].NoHaloExtent(0).Equal(extent.MustNew([]int{0, 0}, []int{100, 205})))
	assert.True(t, de[0].NoHaloExtent(1).Equal(extent.MustNew([]int{0, 0}, []int{110, 200})))

	// Edge tile (0, 1).
	assert.Equal(t, []int{0, 1}, de[1].CartCoord())
	assert.Equal(t, extent.Halo{{0, 10}, {5, 5}}, de[1].Halo())
	assert.True(t, de[1].HaloSlab(0, types.LO).Equal(extent.MustNew([]int{0, 195}, []int{0, 405})))
	assert.True(t, de[1].HaloSlab(0, types.HI).Equal(extent.MustNew([]int{100, 195}, []int{110, 405})))
	assert.True(t, de[1].HaloSlab(1, types.LO).Equal(extent.MustNew([]int{0, 195}, []int{110, 200})))
	assert.True(t, de[1].HaloSlab(1, types.HI).Equal(extent.MustNew([]int{0, 400}, []int{110, 405})))
	assert.True(t, de[1].NoHaloExtent(0).Equal(extent.MustNew([]int{0, 195}, []int{100, 405})))
	assert.True(t, de[1].NoHaloExtent(1).Equal(extent.MustNew([]int{0, 200}, []int{110, 400})))

	// Interior tile (1, 1).
	assert.Equal(t, []int{1, 1}, de[4].CartCoord())
	assert.Equal(t, extent.Halo{{10, 10}, {5, 5}}, de[4].Halo())
	assert.True(t, de[4].HaloSlab(0, types.LO).Equal(extent.MustNew([]int{90, 195}, []int{100, 405})))
	assert.True(t, de[4].HaloSlab(0, types.HI).Equal(extent.MustNew([]int{200, 195}, []int{210, 405})))
	assert.True(t, de[4].HaloSlab(1, types.LO).Equal(extent.MustNew([]int{90, 195}, []int{210, 200})))
	assert.True(t, de[4].HaloSlab(1, types.HI).Equal(extent.MustNew([]int{90, 400}, []int{210, 405})))
	assert.True(t, de[4].NoHaloExtent(0).Equal(extent.MustNew([]int{100, 195}, []int{200, 405})))
	assert.True(t, de[4].NoHaloExtent(1).Equal(extent.MustNew([]int{90, 200}, []int{210, 400})))

	// Corner tile (2, 2).
	assert.Equal(t, []int{2, 2}, de[8].CartCoord())
	assert.Equal(t, extent.Halo{{10, 0}, {5, 0}}, de[8].Halo())
	assert.True(t, de[8].HaloSlab(0, types.LO).Equal(extent.MustNew([]int{190, 395}, []int{200, 600})))
	assert.True(t, de[8].HaloSlab(0, types.HI).Equal(extent.MustNew([]int{300, 395}, []int{300, 600})))
	assert.True(t, de[8].HaloSlab(1, types.LO).Equal(extent.MustNew([]int{190, 395}, []int{300, 400})))
	assert.True(t, de[8].HaloSlab(1, types.HI).Equal(extent.MustNew([]int{190, 600}, []int{300, 600})))
	assert.True(t, de[8].NoHaloExtent(0).Equal(extent.MustNew([]int{200, 395}, []int{300, 600})))
	assert.True(t, de[8].NoHaloExtent(1).Equal(extent.MustNew([]int{190, 400}, []int{300, 600})))
}

func TestTileExtentPeriodicUnclipped(t *testing.T) {
	de := tilesFor(t, []int{300}, []int{3}, extent.Halo{{10, 10}}, []bool{true})
	// Periodic axes keep the full requested halo on boundary faces.
	assert.Equal(t, extent.Halo{{10, 10}}, de[0].Halo())
	assert.Equal(t, extent.Halo{{10, 10}}, de[2].Halo())
	assert.True(t, de[0].HaloSlab(0, types.LO).Equal(extent.MustNew([]int{-10}, []int{0})))
	assert.True(t, de[2].HaloSlab(0, types.HI).Equal(extent.MustNew([]int{300}, []int{310})))
}

func TestTileExtentSlabPartition(t *testing.T) {
	// Along every axis, LO slab + no-halo strip + HI slab tile the
	// with-halo box with pairwise disjoint interiors.
	de := tilesFor(t, []int{300, 600}, []int{3, 3}, extent.Halo{{10, 10}, {5, 5}}, nil)
	for _, tile := range de {
		for axis := 0; axis < 2; axis++ {
			lo := tile.HaloSlab(axis, types.LO)
			mid := tile.NoHaloExtent(axis)
			hi := tile.HaloSlab(axis, types.HI)
			assert.Equal(t, tile.SizeH(), lo.Size()+mid.Size()+hi.Size())
			_, overlap := lo.Intersect(mid)
			assert.False(t, overlap)
			_, overlap = mid.Intersect(hi)
			assert.False(t, overlap)
			_, overlap = lo.Intersect(hi)
			assert.False(t, overlap)
		}
	}
}

func TestGlobaleToLocale(t *testing.T) {
	de := tilesFor(t, []int{300, 600}, []int{3, 3}, extent.Halo{{10, 10}, {5, 5}}, nil)
	tile := de[4] // authoritative [100,200) x [200,400), halo 10/5 all sides

	assert.Equal(t, []int{10, 5}, tile.GlobaleToLocale([]int{100, 200}))
	assert.Equal(t, []int{0, 0}, tile.GlobaleToLocale([]int{90, 195}))

	local := tile.GlobaleToLocaleExtentH(tile.BoxN())
	assert.True(t, local.Equal(extent.MustNew([]int{10, 5}, []int{110, 205})))

	whole := tile.GlobaleToLocaleExtentH(tile.BoxH())
	assert.Equal(t, []int{0, 0}, whole.Starts())
	assert.Equal(t, tile.ShapeH(), whole.Stops())
}
