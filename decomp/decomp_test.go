package decomp

import (
	"testing"

	"github.com/garray/garray/comm"
	"github.com/garray/garray/types"
	"github.com/garray/garray/types/extent"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedLocaleInfo(t *testing.T) {
	// Distinct hosts: one locale per rank.
	err := comm.RunWorld(4, func(c comm.Comm) error {
		info, err := NewSharedLocaleInfo(c, nil)
		require.NoError(t, err)
		assert.Equal(t, 4, info.NumLocales())
		assert.Equal(t, 1, info.IntraComm().Size())
		return nil
	})
	require.NoError(t, err)

	// Two hosts with two ranks each: two locales.
	err = comm.RunWorldHosts([]int{0, 0, 1, 1}, func(c comm.Comm) error {
		info, err := NewSharedLocaleInfo(c, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, info.NumLocales())
		assert.Equal(t, 2, info.IntraComm().Size())
		return nil
	})
	require.NoError(t, err)

	// Injected singleton intra subgroup forces per-process locales even on
	// a shared host.
	err = comm.RunWorldHosts([]int{0, 0, 0}, func(c comm.Comm) error {
		self, err := c.Split(c.Rank(), 0)
		require.NoError(t, err)
		info, err := NewSharedLocaleInfo(c, self)
		require.NoError(t, err)
		assert.Equal(t, 3, info.NumLocales())
		assert.Equal(t, 1, info.IntraComm().Size())
		return nil
	})
	require.NoError(t, err)
}

func TestLocaleTopologyInvalidDims(t *testing.T) {
	err := comm.RunWorld(2, func(c comm.Comm) error {
		cases := []TopologyConfig{
			{},
			{NDims: 1, Dims: []int{}},
			{NDims: 1, Dims: []int{0, 2}},
			{NDims: 3, Dims: []int{1, 2}},
		}
		for _, cfg := range cases {
			_, err := NewLocaleTopology(c, cfg)
			require.Error(t, err, "config %+v", cfg)
			assert.True(t, errors.Is(err, types.ErrConfiguration), "config %+v", cfg)
		}
		// Product mismatch: 2 locales cannot fill a fixed 3x1 mesh.
		_, err := NewLocaleTopology(c, TopologyConfig{Dims: []int{3, 1}})
		require.Error(t, err)
		assert.True(t, errors.Is(err, types.ErrConfiguration))
		return nil
	})
	require.NoError(t, err)
}

func TestLocaleTopologyConstruct(t *testing.T) {
	err := comm.RunWorld(6, func(c comm.Comm) error {
		topo, err := NewLocaleTopology(c, TopologyConfig{NDims: 2})
		require.NoError(t, err)
		assert.Equal(t, 6, topo.NumLocales())
		assert.Equal(t, []int{2, 3}, topo.Dims())
		assert.Equal(t, []bool{false, false}, topo.Periods())
		assert.True(t, topo.IsRepresentative())
		require.False(t, comm.IsNull(topo.InterComm()))
		assert.Equal(t, c.Rank(), topo.InterComm().Rank())
		assert.Equal(t, topo.InterComm().Coords(c.Rank()), topo.CartCoord(c.Rank()))
		return nil
	})
	require.NoError(t, err)

	// NODE locales: only intra rank 0 holds the inter-locale communicator.
	err = comm.RunWorldHosts([]int{0, 0, 1, 1}, func(c comm.Comm) error {
		topo, err := NewLocaleTopology(c, TopologyConfig{NDims: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, topo.NumLocales())
		assert.Equal(t, []int{2}, topo.Dims())
		if topo.IsRepresentative() {
			require.False(t, comm.IsNull(topo.InterComm()))
			assert.Equal(t, c.Rank()/2, topo.InterComm().Rank())
		} else {
			assert.True(t, comm.IsNull(topo.InterComm()))
		}
		return nil
	})
	require.NoError(t, err)
}

func TestLocaleTopologySingleLocale(t *testing.T) {
	err := comm.RunWorldHosts([]int{0, 0}, func(c comm.Comm) error {
		topo, err := NewLocaleTopology(c, TopologyConfig{NDims: 1})
		require.NoError(t, err)
		assert.Equal(t, 1, topo.NumLocales())
		assert.Equal(t, []int{1}, topo.Dims())
		// A single-locale mesh has no inter-locale communicator at all.
		assert.True(t, comm.IsNull(topo.InterComm()))
		return nil
	})
	require.NoError(t, err)
}

func TestLocaleTopologyProcessMode(t *testing.T) {
	// ProcessLocales forces singleton locales even on a shared host.
	err := comm.RunWorldHosts([]int{0, 0, 0}, func(c comm.Comm) error {
		topo, err := NewLocaleTopology(c, TopologyConfig{NDims: 1, Locale: ProcessLocales})
		require.NoError(t, err)
		assert.Equal(t, 3, topo.NumLocales())
		assert.Equal(t, 1, topo.IntraComm().Size())
		assert.True(t, topo.IsRepresentative())
		return nil
	})
	require.NoError(t, err)
}

func TestLocaleTopologySlab(t *testing.T) {
	err := comm.RunWorld(4, func(c comm.Comm) error {
		topo, err := NewLocaleTopology(c, TopologyConfig{NDims: 3, Distrib: DistribSlab, Axis: 1})
		require.NoError(t, err)
		assert.Equal(t, []int{1, 4, 1}, topo.Dims())

		_, err = NewLocaleTopology(c, TopologyConfig{NDims: 2, Distrib: DistribSlab, Axis: 5})
		require.Error(t, err)
		assert.True(t, errors.Is(err, types.ErrConfiguration))
		return nil
	})
	require.NoError(t, err)
}

func TestDecompositionConstruct1D(t *testing.T) {
	err := comm.RunWorld(3, func(c comm.Comm) error {
		topo, err := NewLocaleTopology(c, TopologyConfig{NDims: 1})
		require.NoError(t, err)
		d, err := NewDecomposition([]int{300}, extent.Halo{{10, 10}}, topo)
		require.NoError(t, err)

		assert.Equal(t, []int{300}, d.Shape())
		assert.Equal(t, 3, d.NumTiles())
		assert.Equal(t, c.Rank(), d.LocalCartRank())
		assert.Equal(t, c.Rank(), d.RepresentativeRank(c.Rank()))

		// S1: the middle tile.
		mid := d.Tile(1)
		assert.True(t, mid.BoxN().Equal(extent.MustNew([]int{100}, []int{200})))
		assert.True(t, mid.HaloSlab(0, types.LO).Equal(extent.MustNew([]int{90}, []int{100})))
		assert.True(t, mid.HaloSlab(0, types.HI).Equal(extent.MustNew([]int{200}, []int{210})))
		assert.NotEmpty(t, d.String())
		return nil
	})
	require.NoError(t, err)
}

func TestDecompositionThinTiles(t *testing.T) {
	err := comm.RunWorld(5, func(c comm.Comm) error {
		topo, err := NewLocaleTopology(c, TopologyConfig{NDims: 1})
		require.NoError(t, err)
		d, err := NewDecomposition([]int{15}, 5, topo)
		require.NoError(t, err)

		// S2: the middle tile with halo wider than its neighbors.
		mid := d.Tile(2)
		assert.True(t, mid.BoxN().Equal(extent.MustNew([]int{6}, []int{9})))
		assert.Equal(t, extent.Halo{{5, 5}}, mid.Halo())
		assert.True(t, mid.HaloSlab(0, types.LO).Equal(extent.MustNew([]int{1}, []int{6})))
		assert.True(t, mid.HaloSlab(0, types.HI).Equal(extent.MustNew([]int{9}, []int{14})))

		// The LO slab spans two peers; the plan pulls from both.
		recvs := d.Plan().RecvsBy(2)
		srcs := map[int]int{}
		for _, e := range recvs {
			srcs[e.SrcRank] += e.Dst.Size()
		}
		assert.Equal(t, map[int]int{0: 2, 1: 3, 3: 3, 4: 2}, srcs)
		return nil
	})
	require.NoError(t, err)
}

func TestDecompositionEmptyTiles(t *testing.T) {
	// S4: more locales than indices. Trailing tiles are empty; the union
	// still covers the shape and empty tiles have an empty plan.
	err := comm.RunWorld(4, func(c comm.Comm) error {
		topo, err := NewLocaleTopology(c, TopologyConfig{NDims: 1})
		require.NoError(t, err)
		d, err := NewDecomposition([]int{2}, nil, topo)
		require.NoError(t, err)

		total := 0
		for _, tile := range d.Tiles() {
			total += tile.SizeN()
		}
		assert.Equal(t, 2, total)
		assert.Equal(t, 0, d.Tile(2).SizeN())
		assert.Empty(t, d.Plan().RecvsBy(2))
		assert.Empty(t, d.Plan().RecvsBy(3))
		return nil
	})
	require.NoError(t, err)
}

func TestDecompositionSetShapeSetHalo(t *testing.T) {
	err := comm.RunWorld(2, func(c comm.Comm) error {
		topo, err := NewLocaleTopology(c, TopologyConfig{NDims: 2})
		require.NoError(t, err)
		d, err := NewDecomposition([]int{16, 24}, [][2]int{{2, 2}, {4, 4}}, topo)
		require.NoError(t, err)
		assert.Equal(t, extent.Halo{{2, 2}, {4, 4}}, d.Halo())

		require.NoError(t, d.SetHalo([][2]int{{1, 2}, {3, 4}}))
		assert.Equal(t, extent.Halo{{1, 2}, {3, 4}}, d.Halo())

		require.NoError(t, d.SetShape([]int{20, 14}))
		assert.Equal(t, []int{20, 14}, d.Shape())
		// The split followed the shape change.
		total := 0
		for _, tile := range d.Tiles() {
			total += tile.SizeN()
		}
		assert.Equal(t, 20*14, total)

		// Failed assignments leave the decomposition unchanged.
		require.Error(t, d.SetShape([]int{20}))
		assert.Equal(t, []int{20, 14}, d.Shape())
		require.Error(t, d.SetHalo(-3))
		assert.Equal(t, extent.Halo{{1, 2}, {3, 4}}, d.Halo())
		return nil
	})
	require.NoError(t, err)
}

// planCovers verifies properties 5 and 6 of the exchange plan for one
// tile: the destination boxes tile exactly the halo region (with-halo box
// minus authoritative box) without overlap, and every source box lies in
// its owner's authoritative region.
func planCovers(t *testing.T, d *Decomposition, cartRank int) {
	t.Helper()
	tile := d.Tile(cartRank)
	var entries []PlanEntry
	entries = append(entries, d.Plan().RecvsBy(cartRank)...)
	entries = append(entries, d.Plan().LocalsBy(cartRank)...)

	covered := 0
	for i, e := range entries {
		assert.Equal(t, e.Src.Shape(), e.Dst.Shape())
		assert.True(t, d.Tile(e.SrcRank).BoxN().ContainsExtent(e.Src),
			"src box %s outside tile %d authoritative %s", e.Src, e.SrcRank, d.Tile(e.SrcRank).BoxN())
		assert.True(t, tile.BoxH().ContainsExtent(e.Dst) || tile.Periods()[0],
			"dst box %s outside with-halo %s", e.Dst, tile.BoxH())
		if _, overlap := e.Dst.Intersect(tile.BoxN()); overlap {
			t.Errorf("dst box %s overlaps the authoritative region %s", e.Dst, tile.BoxN())
		}
		for j := i + 1; j < len(entries); j++ {
			if _, overlap := e.Dst.Intersect(entries[j].Dst); overlap {
				t.Errorf("plan entries %s and %s overlap", e, entries[j])
			}
		}
		covered += e.Dst.Size()
	}
	assert.Equal(t, tile.SizeH()-tile.SizeN(), covered,
		"plan does not cover the halo of tile %d exactly", cartRank)
}

func TestExchangePlanCoverage2D(t *testing.T) {
	err := comm.RunWorld(9, func(c comm.Comm) error {
		topo, err := NewLocaleTopology(c, TopologyConfig{Dims: []int{3, 3}})
		require.NoError(t, err)
		d, err := NewDecomposition([]int{300, 600}, [][2]int{{10, 10}, {5, 5}}, topo)
		require.NoError(t, err)
		if c.Rank() == 0 {
			for r := 0; r < d.NumTiles(); r++ {
				planCovers(t, d, r)
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestExchangePlanCoverageThin(t *testing.T) {
	err := comm.RunWorld(5, func(c comm.Comm) error {
		topo, err := NewLocaleTopology(c, TopologyConfig{NDims: 1})
		require.NoError(t, err)
		d, err := NewDecomposition([]int{15}, 5, topo)
		require.NoError(t, err)
		if c.Rank() == 0 {
			for r := 0; r < d.NumTiles(); r++ {
				planCovers(t, d, r)
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestExchangePlanSymmetric(t *testing.T) {
	err := comm.RunWorld(6, func(c comm.Comm) error {
		topo, err := NewLocaleTopology(c, TopologyConfig{Dims: []int{2, 3}})
		require.NoError(t, err)
		d, err := NewDecomposition([]int{12, 18}, 1, topo)
		require.NoError(t, err)
		if c.Rank() != 0 {
			return nil
		}
		// For every T->P entry there is a matching P->T entry.
		for _, e := range d.Plan().Entries() {
			if e.IsLocal() {
				continue
			}
			found := false
			for _, back := range d.Plan().Entries() {
				if back.SrcRank == e.DstRank && back.DstRank == e.SrcRank {
					found = true
					break
				}
			}
			assert.True(t, found, "no reverse entry for %s", e)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestExchangePlanPeriodicWrap(t *testing.T) {
	err := comm.RunWorld(3, func(c comm.Comm) error {
		topo, err := NewLocaleTopology(c, TopologyConfig{NDims: 1, Periods: []bool{true}})
		require.NoError(t, err)
		d, err := NewDecomposition([]int{30}, 2, topo)
		require.NoError(t, err)
		if c.Rank() != 0 {
			return nil
		}

		// Tile 0 pulls its LO halo from the end of tile 2 through the wrap.
		var wrapped *PlanEntry
		for _, e := range d.Plan().RecvsBy(0) {
			if e.SrcRank == 2 {
				cp := e
				wrapped = &cp
			}
		}
		require.NotNil(t, wrapped)
		assert.True(t, wrapped.Src.Equal(extent.MustNew([]int{28}, []int{30})))
		assert.True(t, wrapped.Dst.Equal(extent.MustNew([]int{-2}, []int{0})))
		planCovers(t, d, 0)
		planCovers(t, d, 1)
		planCovers(t, d, 2)
		return nil
	})
	require.NoError(t, err)
}

func TestRankViewSlice(t *testing.T) {
	err := comm.RunWorldHosts([]int{0, 0}, func(c comm.Comm) error {
		topo, err := NewLocaleTopology(c, TopologyConfig{NDims: 1})
		require.NoError(t, err)
		d, err := NewDecomposition([]int{10}, nil, topo)
		require.NoError(t, err)

		view := d.RankViewSlice(c.Rank(), 2)
		if c.Rank() == 0 {
			assert.True(t, view.Equal(extent.MustNew([]int{0}, []int{5})))
		} else {
			assert.True(t, view.Equal(extent.MustNew([]int{5}, []int{10})))
		}
		return nil
	})
	require.NoError(t, err)
}
