package garray

import (
	"slices"

	"github.com/garray/garray/decomp"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// haloExchanger executes a decomposition's exchange plan for one
// GlobalArray: it writes, into every locale's halo region, the current
// authoritative contents of every covering peer.
//
// Only the locale representative (the holder of the non-null inter-locale
// communicator) moves data, on behalf of its intra-locale peers; a barrier
// on the intra-locale group before and after the transfers gives every
// peer a consistent halo. Transfers are two-sided and tagged with the plan
// entry index, which both ends compute identically; the plan's symmetry
// pairs every send with a posted receive, so the protocol cannot deadlock.
type haloExchanger struct {
	ga   *GlobalArray
	plan *decomp.ExchangePlan
	cart int
}

func newHaloExchanger(ga *GlobalArray) *haloExchanger {
	return &haloExchanger{
		ga:   ga,
		plan: ga.dec.Plan(),
		cart: ga.dec.LocalCartRank(),
	}
}

func (x *haloExchanger) exchange() error {
	ga := x.ga
	if err := ga.intraBarrier(); err != nil {
		return err
	}
	if ga.dec.Topology().IsRepresentative() {
		if err := x.transfer(); err != nil {
			return err
		}
	}
	return ga.intraBarrier()
}

func (x *haloExchanger) transfer() error {
	ga := x.ga
	tile := ga.dec.LocalTile()
	inter := ga.dec.Topology().InterComm()

	// Eager sends first: with every outgoing payload delivered, the
	// receive loop below cannot block a peer's sends.
	for _, e := range x.plan.SendsBy(x.cart) {
		data := ga.packLocal(tile.GlobaleToLocaleExtentH(e.Src))
		klog.V(2).InfoS("halo send", "cart", x.cart, "entry", e.String(), "bytes", len(data))
		if err := inter.Send(e.DstRank, e.Index, data); err != nil {
			return errors.Wrapf(err, "sending halo entry %s", e)
		}
	}

	// Wrap-around onto the own tile needs no communicator.
	for _, e := range x.plan.LocalsBy(x.cart) {
		data := ga.packLocal(tile.GlobaleToLocaleExtentH(e.Src))
		if err := ga.unpackLocal(tile.GlobaleToLocaleExtentH(e.Dst), data); err != nil {
			return err
		}
	}

	for _, e := range x.plan.RecvsBy(x.cart) {
		data, err := inter.Recv(e.SrcRank, e.Index)
		if err != nil {
			return errors.Wrapf(err, "receiving halo entry %s", e)
		}
		klog.V(2).InfoS("halo recv", "cart", x.cart, "entry", e.String(), "bytes", len(data))
		if err := ga.unpackLocal(tile.GlobaleToLocaleExtentH(e.Dst), data); err != nil {
			return err
		}
	}
	return nil
}

// CopyTo redistributes src into dst. The two arrays must share the global
// shape and element type but may have entirely different decompositions
// (mesh shape, halos, locale structure). Every source authoritative box is
// intersected with every destination with-halo box and the pieces are
// transferred between the locale representatives over the rank group.
//
// Collective over the rank group, which must be the same for both arrays.
func CopyTo(dst, src *GlobalArray) error {
	if dst == nil || src == nil {
		return errors.Wrap(ErrArgument, "CopyTo needs two GlobalArrays")
	}
	if !slices.Equal(dst.Shape(), src.Shape()) {
		return errors.Wrapf(ErrArgument,
			"global shapes differ: dst %v, src %v", dst.Shape(), src.Shape())
	}
	if dst.dtype != src.dtype {
		return errors.Wrapf(ErrConfiguration,
			"element types differ: dst %s, src %s", dst.dtype, src.dtype)
	}

	rankComm := src.dec.Topology().RankComm()
	if err := rankComm.Barrier(); err != nil {
		return err
	}

	srcRep := src.dec.Topology().IsRepresentative()
	dstRep := dst.dec.Topology().IsRepresentative()
	mySrcCart := src.dec.LocalCartRank()
	myDstCart := dst.dec.LocalCartRank()

	// The transfer list is a pure function of the two decompositions, so
	// every participant enumerates it identically and the entry index
	// doubles as the transfer tag.
	tag := -1
	for _, s := range src.dec.Tiles() {
		for _, d := range dst.dec.Tiles() {
			x, ok := s.BoxN().Intersect(d.BoxH())
			if !ok {
				continue
			}
			tag++
			sendRank := src.dec.RepresentativeRank(s.CartRank())
			recvRank := dst.dec.RepresentativeRank(d.CartRank())

			sending := srcRep && s.CartRank() == mySrcCart
			receiving := dstRep && d.CartRank() == myDstCart
			switch {
			case sending && receiving:
				data := src.packLocal(src.dec.LocalTile().GlobaleToLocaleExtentH(x))
				if err := dst.unpackLocal(dst.dec.LocalTile().GlobaleToLocaleExtentH(x), data); err != nil {
					return err
				}
			case sending:
				data := src.packLocal(src.dec.LocalTile().GlobaleToLocaleExtentH(x))
				klog.V(2).InfoS("copyto send", "box", x.String(), "to", recvRank, "tag", tag)
				if err := rankComm.Send(recvRank, tag, data); err != nil {
					return errors.Wrapf(err, "redistributing box %s", x)
				}
			case receiving:
				data, err := rankComm.Recv(sendRank, tag)
				if err != nil {
					return errors.Wrapf(err, "redistributing box %s", x)
				}
				if err := dst.unpackLocal(dst.dec.LocalTile().GlobaleToLocaleExtentH(x), data); err != nil {
					return err
				}
			}
		}
	}
	return rankComm.Barrier()
}
