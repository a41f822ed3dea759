package decomp

import (
	"slices"

	"github.com/garray/garray/comm"
	"github.com/garray/garray/types"
	"github.com/garray/garray/types/extent"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// LocaleType selects how participants are grouped into locales.
type LocaleType int

const (
	// NodeLocales groups co-located participants into one locale per
	// shared-memory node; the locale's storage is a shared window.
	NodeLocales LocaleType = iota

	// ProcessLocales makes every participant its own locale with private
	// storage.
	ProcessLocales
)

// String implements fmt.Stringer.
func (lt LocaleType) String() string {
	switch lt {
	case NodeLocales:
		return "NODE"
	case ProcessLocales:
		return "PROCESS"
	}
	return "LocaleType(?)"
}

// DistribType selects the shape of the locale mesh.
type DistribType int

const (
	// DistribCartesian lays the locales over all array axes.
	DistribCartesian DistribType = iota

	// DistribSlab splits along a single axis only: the mesh extent is 1 on
	// every other axis.
	DistribSlab
)

// String implements fmt.Stringer.
func (dt DistribType) String() string {
	switch dt {
	case DistribCartesian:
		return "CARTESIAN"
	case DistribSlab:
		return "SLAB"
	}
	return "DistribType(?)"
}

// TopologyConfig is the configuration surface of NewLocaleTopology. Either
// NDims or Dims must be given; zero entries of Dims are replaced by a
// deterministic balanced factorization of the locale count.
type TopologyConfig struct {
	// NDims is the dimensionality of the locale mesh. Ignored when Dims is
	// given, except that a non-zero NDims must then match len(Dims).
	NDims int

	// Dims is the per-axis locale count; zeros mean "choose".
	Dims []int

	// Periods marks the periodic axes. Defaults to all false.
	Periods []bool

	// Locale selects node- or process-mode locales. Ignored when IntraComm
	// is given.
	Locale LocaleType

	// Distrib selects the mesh shape. DistribSlab puts all locales on the
	// Axis axis and replaces every entry of Dims: 1 on the other axes,
	// auto-filled on Axis.
	Distrib DistribType

	// Axis is the split axis when Distrib is DistribSlab.
	Axis int

	// IntraComm optionally injects a pre-built intra-locale subgroup, e.g.
	// a singleton to force per-process locales.
	IntraComm comm.Comm
}

// LocaleTopology is the Cartesian mesh over locales: the factorized dims,
// the shared-memory structure, and the inter-locale Cartesian communicator
// restricted to one representative per locale. Non-representatives hold a
// null inter-locale communicator.
//
// A LocaleTopology is immutable once constructed. Construction is
// collective over rankComm.
type LocaleTopology struct {
	rankComm comm.Comm
	locale   *SharedLocaleInfo
	dims     []int
	periods  []bool
	inter    comm.CartComm
}

// NewLocaleTopology builds the locale mesh for the given rank group.
func NewLocaleTopology(rankComm comm.Comm, cfg TopologyConfig) (*LocaleTopology, error) {
	ndims := cfg.NDims
	switch {
	case ndims == 0 && cfg.Dims == nil:
		return nil, errors.Wrap(types.ErrConfiguration,
			"one of NDims or Dims is required to build a locale topology")
	case cfg.Dims != nil && ndims != 0 && len(cfg.Dims) != ndims:
		return nil, errors.Wrapf(types.ErrConfiguration,
			"length of Dims (%d) not equal to NDims (%d)", len(cfg.Dims), ndims)
	case cfg.Dims != nil:
		ndims = len(cfg.Dims)
	}
	if ndims <= 0 {
		return nil, errors.Wrapf(types.ErrConfiguration, "a locale mesh needs at least one axis, got %d", ndims)
	}
	dims := slices.Clone(cfg.Dims)
	if dims == nil {
		dims = make([]int, ndims)
	}
	if cfg.Distrib == DistribSlab {
		if cfg.Axis < 0 || cfg.Axis >= ndims {
			return nil, errors.Wrapf(types.ErrConfiguration,
				"slab axis %d outside the %d mesh axes", cfg.Axis, ndims)
		}
		for d := range dims {
			if d == cfg.Axis {
				dims[d] = 0
			} else {
				dims[d] = 1
			}
		}
	}
	periods := cfg.Periods
	if periods == nil {
		periods = make([]bool, ndims)
	} else if len(periods) != ndims {
		return nil, errors.Wrapf(types.ErrConfiguration,
			"periods must have one entry per axis, got %d for %d axes", len(periods), ndims)
	}

	intra := cfg.IntraComm
	if comm.IsNull(intra) && cfg.Locale == ProcessLocales {
		// Per-process locales: every participant is alone in its subgroup.
		var err error
		intra, err = rankComm.Split(rankComm.Rank(), 0)
		if err != nil {
			return nil, errors.Wrap(err, "splitting per-process locales")
		}
	}
	locale, err := NewSharedLocaleInfo(rankComm, intra)
	if err != nil {
		return nil, err
	}
	dims, err = extent.FillDims(dims, locale.NumLocales())
	if err != nil {
		return nil, err
	}

	topo := &LocaleTopology{
		rankComm: rankComm,
		locale:   locale,
		dims:     dims,
		periods:  slices.Clone(periods),
	}

	// One representative per locale carries the inter-locale Cartesian
	// communicator; everyone else holds the null communicator.
	if locale.NumLocales() > 1 {
		color := comm.Undefined
		if locale.IntraComm().Rank() == 0 {
			color = 0
		}
		repComm, err := rankComm.Split(color, rankComm.Rank())
		if err != nil {
			return nil, errors.Wrap(err, "splitting locale representatives")
		}
		if !comm.IsNull(repComm) {
			topo.inter, err = repComm.CartCreate(dims, periods)
			if err != nil {
				return nil, errors.Wrap(err, "creating the inter-locale cartesian topology")
			}
		}
	}
	klog.V(1).InfoS("locale topology",
		"rank", rankComm.Rank(), "locales", locale.NumLocales(), "dims", dims, "periods", periods,
		"representative", topo.IsRepresentative())
	return topo, nil
}

// RankComm returns the enclosing rank group.
func (t *LocaleTopology) RankComm() comm.Comm {
	return t.rankComm
}

// Locale returns the shared-memory structure of the rank group.
func (t *LocaleTopology) Locale() *SharedLocaleInfo {
	return t.locale
}

// IntraComm returns the caller's intra-locale subgroup.
func (t *LocaleTopology) IntraComm() comm.Comm {
	return t.locale.IntraComm()
}

// NumLocales returns the number of locales in the mesh.
func (t *LocaleTopology) NumLocales() int {
	return t.locale.NumLocales()
}

// Dims returns the per-axis locale counts of the mesh.
func (t *LocaleTopology) Dims() []int {
	return slices.Clone(t.dims)
}

// NDims returns the dimensionality of the mesh.
func (t *LocaleTopology) NDims() int {
	return len(t.dims)
}

// Periods returns the per-axis periodicity flags.
func (t *LocaleTopology) Periods() []bool {
	return slices.Clone(t.periods)
}

// InterComm returns the inter-locale Cartesian communicator, or the null
// communicator on non-representatives and on single-locale meshes.
func (t *LocaleTopology) InterComm() comm.CartComm {
	return t.inter
}

// IsRepresentative reports whether the caller is its locale's
// representative (rank 0 of the intra-locale subgroup).
func (t *LocaleTopology) IsRepresentative() bool {
	return t.locale.IntraComm().Rank() == 0
}

// CartCoord returns the Cartesian coordinate of the given locale rank,
// derived row-major from the mesh dims. The inter-locale communicator
// never reorders, so this matches InterComm().Coords on representatives.
func (t *LocaleTopology) CartCoord(cartRank int) []int {
	coords := make([]int, len(t.dims))
	for d := len(t.dims) - 1; d >= 0; d-- {
		coords[d] = cartRank % t.dims[d]
		cartRank /= t.dims[d]
	}
	return coords
}

// Free releases the communicators created by the topology (the intra
// subgroup and, on representatives, the inter-locale communicator). The
// enclosing rank communicator is shared with the caller and is not freed.
func (t *LocaleTopology) Free() {
	if !comm.IsNull(t.inter) {
		t.inter.Free()
		t.inter = nil
	}
	if t.locale != nil && !comm.IsNull(t.locale.intra) {
		t.locale.intra.Free()
	}
}
