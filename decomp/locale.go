// Package decomp partitions a global array shape over a Cartesian mesh of
// locales and derives, per tile, the halo geometry and the exchange plan
// that refreshes every halo slab from its authoritative owner.
package decomp

import (
	"github.com/garray/garray/comm"
	"github.com/pkg/errors"
)

// SharedLocaleInfo describes the shared-memory structure of a rank group:
// the caller's intra-locale subgroup (the maximal set of peers that can
// allocate shared memory together) and the number of such subgroups in the
// whole group.
//
// Construction is collective over rankComm.
type SharedLocaleInfo struct {
	intra      comm.Comm
	numLocales int
}

// NewSharedLocaleInfo splits rankComm into shared-memory subgroups and
// counts them. A non-nil intra comm overrides the split: pass a singleton
// subgroup to force each participant into its own locale.
//
// The locale count is the SUM all-reduce of an indicator that is 1 exactly
// on each subgroup's rank 0.
func NewSharedLocaleInfo(rankComm comm.Comm, intra comm.Comm) (*SharedLocaleInfo, error) {
	if comm.IsNull(rankComm) {
		return nil, errors.Wrap(comm.ErrTransport, "cannot build locale info on a null communicator")
	}
	if comm.IsNull(intra) {
		var err error
		intra, err = rankComm.SplitShared(rankComm.Rank())
		if err != nil {
			return nil, errors.Wrap(err, "splitting shared-memory subgroups")
		}
	}
	indicator := 0
	if intra.Rank() == 0 {
		indicator = 1
	}
	numLocales, err := rankComm.AllreduceSumInt(indicator)
	if err != nil {
		return nil, errors.Wrap(err, "counting locales")
	}
	return &SharedLocaleInfo{intra: intra, numLocales: numLocales}, nil
}

// IntraComm returns the caller's intra-locale subgroup.
func (s *SharedLocaleInfo) IntraComm() comm.Comm {
	return s.intra
}

// NumLocales returns the number of shared-memory subgroups in the
// enclosing rank group.
func (s *SharedLocaleInfo) NumLocales() int {
	return s.numLocales
}
