// Package garray distributes dense N-dimensional arrays over a group of
// cooperating participants connected by a message-passing fabric. The
// global array appears as one logical tensor; underneath it is partitioned
// into tiles, each owned by a locale (a process, or a shared-memory group
// of co-located processes). An optional halo replicates a margin of each
// neighbor's tile into the local storage, so stencil-style reads touch
// only local memory between Update calls.
//
// The partitioning arithmetic lives in the decomp package, the substrate
// contract in comm. This package binds a storage buffer to a
// decomposition: factories, halo updates, redistribution, element access
// and per-participant views.
package garray

import (
	"slices"

	"github.com/garray/garray/comm"
	"github.com/garray/garray/decomp"
	"github.com/garray/garray/types"
	"github.com/garray/garray/types/extent"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// GlobalArray is one participant's handle on a distributed array: the
// decomposition, the element type, and the local with-halo storage buffer.
// In node-mode locales the buffer is a shared-memory window jointly
// allocated by the intra-locale group; in process-mode locales the window
// is private.
//
// The array exclusively owns its buffer, which Free releases. The
// decomposition and the communicators are shared with the caller (several
// arrays may be bound to one decomposition); Free does not release them.
type GlobalArray struct {
	dec   *decomp.Decomposition
	dtype dtypes.DType
	esize int
	win   *comm.Window
	buf   []byte

	// rankBoxN is the sub-box of the local tile owned by this participant
	// (the intra-locale second-level split).
	rankBoxN extent.Extent
}

// Empty creates an uninitialized GlobalArray over the given decomposition.
// Collective over the decomposition's rank group.
func Empty(d *decomp.Decomposition, dtype dtypes.DType) (*GlobalArray, error) {
	if d == nil {
		return nil, errors.Wrap(types.ErrArgument, "a GlobalArray needs a decomposition")
	}
	esize, err := dtypeSize(dtype)
	if err != nil {
		return nil, err
	}
	intra := d.Topology().IntraComm()
	win, err := intra.AllocShared(d.LocalTile().SizeH() * esize)
	if err != nil {
		return nil, errors.Wrap(err, "allocating the with-halo window")
	}
	ga := &GlobalArray{
		dec:      d,
		dtype:    dtype,
		esize:    esize,
		win:      win,
		buf:      win.Bytes(),
		rankBoxN: d.RankViewSlice(intra.Rank(), intra.Size()),
	}
	return ga, nil
}

// Zeros creates a GlobalArray with every element zero. Collective.
func Zeros(d *decomp.Decomposition, dtype dtypes.DType) (*GlobalArray, error) {
	// A fresh window is zeroed by allocation; only synchronize.
	ga, err := Empty(d, dtype)
	if err != nil {
		return nil, err
	}
	if err := ga.intraBarrier(); err != nil {
		return nil, err
	}
	return ga, nil
}

// Ones creates a GlobalArray with every element one. Collective.
func Ones(d *decomp.Decomposition, dtype dtypes.DType) (*GlobalArray, error) {
	return Full(d, dtype, 1)
}

// Full creates a GlobalArray with every element set to value, halo
// included. Collective.
func Full(d *decomp.Decomposition, dtype dtypes.DType, value float64) (*GlobalArray, error) {
	ga, err := Empty(d, dtype)
	if err != nil {
		return nil, err
	}
	if ga.dec.Topology().IsRepresentative() {
		local := extent.MustNew(make([]int, ga.dec.NDims()), ga.dec.LocalTile().ShapeH())
		ga.fillLocal(local, value)
	}
	if err := ga.intraBarrier(); err != nil {
		return nil, err
	}
	return ga, nil
}

// EmptyLike creates an uninitialized GlobalArray with the decomposition
// and element type of other. Collective.
func EmptyLike(other *GlobalArray) (*GlobalArray, error) {
	if other == nil {
		return nil, errors.Wrap(types.ErrArgument, "EmptyLike needs a GlobalArray")
	}
	return Empty(other.dec, other.dtype)
}

// ZerosLike creates an all-zero GlobalArray shaped like other. Collective.
func ZerosLike(other *GlobalArray) (*GlobalArray, error) {
	if other == nil {
		return nil, errors.Wrap(types.ErrArgument, "ZerosLike needs a GlobalArray")
	}
	return Zeros(other.dec, other.dtype)
}

// OnesLike creates an all-one GlobalArray shaped like other. Collective.
func OnesLike(other *GlobalArray) (*GlobalArray, error) {
	if other == nil {
		return nil, errors.Wrap(types.ErrArgument, "OnesLike needs a GlobalArray")
	}
	return Ones(other.dec, other.dtype)
}

// Decomposition returns the decomposition the array is bound to.
func (ga *GlobalArray) Decomposition() *decomp.Decomposition {
	return ga.dec
}

// DType returns the element type.
func (ga *GlobalArray) DType() dtypes.DType {
	return ga.dtype
}

// Shape returns the global array shape.
func (ga *GlobalArray) Shape() []int {
	return ga.dec.Shape()
}

// Update refreshes every halo slab of every locale from its authoritative
// owner. Collective over the rank group; at return every halo cell equals
// the owner's value at the call site.
func (ga *GlobalArray) Update() error {
	return newHaloExchanger(ga).exchange()
}

// At reads the element at the global index. The index must lie inside the
// caller's with-halo box: remote regions are never fetched implicitly, go
// through CopyTo instead.
func (ga *GlobalArray) At(idx ...int) (float64, error) {
	off, err := ga.offsetOf(idx)
	if err != nil {
		return 0, err
	}
	return readValue(ga.buf, off, ga.dtype), nil
}

// Set writes the element at the global index. The index must lie inside
// the caller's with-halo box. Writes outside the caller's own rank view
// are visible to intra-locale peers only after the next barrier, and halo
// writes are overwritten by the next Update.
func (ga *GlobalArray) Set(value float64, idx ...int) error {
	off, err := ga.offsetOf(idx)
	if err != nil {
		return err
	}
	writeValue(ga.buf, off, ga.dtype, value)
	return nil
}

// RankViewN returns the view of the sub-box of the local tile this
// participant owns, without halo. Participants of a node-mode locale each
// own a slab of the tile; a process-mode locale's view is the whole tile.
func (ga *GlobalArray) RankViewN() View {
	return View{ga: ga, box: ga.rankBoxN}
}

// RankViewH returns the participant's rank view expanded by the tile halo
// on the faces where the rank view touches the tile boundary.
func (ga *GlobalArray) RankViewH() View {
	tile := ga.dec.LocalTile()
	start := ga.rankBoxN.Starts()
	stop := ga.rankBoxN.Stops()
	for d := range start {
		if start[d] == tile.StartN(d) {
			start[d] = tile.StartH(d)
		}
		if stop[d] == tile.StopN(d) {
			stop[d] = tile.StopH(d)
		}
	}
	return View{ga: ga, box: extent.MustNew(start, stop)}
}

// ViewExtent returns a view of an arbitrary box in global coordinates.
// The box must lie inside the caller's with-halo extent: remote regions
// are never fetched implicitly, go through CopyTo instead.
func (ga *GlobalArray) ViewExtent(box extent.Extent) (View, error) {
	if !ga.dec.LocalTile().BoxH().ContainsExtent(box) {
		return View{}, errors.Wrapf(types.ErrArgument,
			"box %s outside the local with-halo extent %s", box, ga.dec.LocalTile().BoxH())
	}
	return View{ga: ga, box: box}, nil
}

// TileViewN returns the view of the whole local tile, without halo.
func (ga *GlobalArray) TileViewN() View {
	return View{ga: ga, box: ga.dec.LocalTile().BoxN()}
}

// TileViewH returns the view of the whole local tile, with halo.
func (ga *GlobalArray) TileViewH() View {
	return View{ga: ga, box: ga.dec.LocalTile().BoxH()}
}

// Free releases the array's storage window. The decomposition and its
// communicators are left to their owner.
func (ga *GlobalArray) Free() {
	if ga.win != nil {
		ga.win.Free()
		ga.win = nil
		ga.buf = nil
	}
}

func (ga *GlobalArray) intraBarrier() error {
	return ga.dec.Topology().IntraComm().Barrier()
}

// offsetOf maps a global index to a byte offset into the with-halo buffer.
func (ga *GlobalArray) offsetOf(idx []int) (int, error) {
	tile := ga.dec.LocalTile()
	if len(idx) != ga.dec.NDims() {
		return 0, errors.Wrapf(types.ErrArgument,
			"index %v has %d axes, the array has %d", idx, len(idx), ga.dec.NDims())
	}
	if !tile.BoxH().Contains(idx) {
		return 0, errors.Wrapf(types.ErrArgument,
			"index %v outside the local with-halo extent %s", idx, tile.BoxH())
	}
	local := tile.GlobaleToLocale(idx)
	return ga.flatten(local) * ga.esize, nil
}

// flatten maps a local (with-halo buffer) coordinate to its row-major
// element index.
func (ga *GlobalArray) flatten(local []int) int {
	shape := ga.dec.LocalTile().ShapeH()
	flat := 0
	for d := range local {
		flat = flat*shape[d] + local[d]
	}
	return flat
}

// fillExtent writes value into every element of a box given in global
// coordinates. The box must lie inside the with-halo extent.
func (ga *GlobalArray) fillExtent(box extent.Extent, value float64) error {
	tile := ga.dec.LocalTile()
	if !tile.BoxH().ContainsExtent(box) {
		return errors.Wrapf(types.ErrArgument,
			"box %s outside the local with-halo extent %s", box, tile.BoxH())
	}
	ga.fillLocal(tile.GlobaleToLocaleExtentH(box), value)
	return nil
}

// fillLocal writes value into every element of a box given in local
// (with-halo buffer) coordinates.
func (ga *GlobalArray) fillLocal(box extent.Extent, value float64) {
	forEachRow(box, ga.dec.LocalTile().ShapeH(), func(flat, rowLen int) {
		for i := 0; i < rowLen; i++ {
			writeValue(ga.buf, (flat+i)*ga.esize, ga.dtype, value)
		}
	})
}

// packLocal serializes a box of the with-halo buffer (local coordinates)
// into a contiguous row-major byte slice.
func (ga *GlobalArray) packLocal(box extent.Extent) []byte {
	out := make([]byte, 0, box.Size()*ga.esize)
	forEachRow(box, ga.dec.LocalTile().ShapeH(), func(flat, rowLen int) {
		out = append(out, ga.buf[flat*ga.esize:(flat+rowLen)*ga.esize]...)
	})
	return out
}

// unpackLocal writes a contiguous row-major byte slice into a box of the
// with-halo buffer (local coordinates).
func (ga *GlobalArray) unpackLocal(box extent.Extent, data []byte) error {
	if len(data) != box.Size()*ga.esize {
		return errors.Wrapf(types.ErrInternal,
			"transfer payload of %d bytes does not match box %s of %d elements", len(data), box, box.Size())
	}
	off := 0
	forEachRow(box, ga.dec.LocalTile().ShapeH(), func(flat, rowLen int) {
		copy(ga.buf[flat*ga.esize:(flat+rowLen)*ga.esize], data[off:off+rowLen*ga.esize])
		off += rowLen * ga.esize
	})
	return nil
}

// forEachRow visits the contiguous innermost-axis runs of a box inside a
// row-major buffer of the given shape, calling fn with the flat element
// index of each run's first element and the run length.
func forEachRow(box extent.Extent, shape []int, fn func(flat, rowLen int)) {
	if box.IsEmpty() {
		return
	}
	ndim := box.Rank()
	rowLen := box.Stop(ndim-1) - box.Start(ndim-1)

	strides := make([]int, ndim)
	strides[ndim-1] = 1
	for d := ndim - 2; d >= 0; d-- {
		strides[d] = strides[d+1] * shape[d+1]
	}

	outer := slices.Clone(box.Starts())
	for {
		flat := 0
		for d := 0; d < ndim; d++ {
			flat += outer[d] * strides[d]
		}
		fn(flat, rowLen)

		// Advance the outer odometer (all axes but the last).
		d := ndim - 2
		for ; d >= 0; d-- {
			outer[d]++
			if outer[d] < box.Stop(d) {
				break
			}
			outer[d] = box.Start(d)
		}
		if d < 0 {
			return
		}
	}
}
