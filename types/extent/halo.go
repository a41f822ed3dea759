package extent

import (
	"fmt"
	"strings"

	"github.com/garray/garray/types"
	"github.com/pkg/errors"
)

// Halo holds the per-axis, per-side margin widths around a box:
// halo[d][types.LO] is the width on the low face of axis d,
// halo[d][types.HI] on the high face. Widths are never negative.
type Halo [][2]int

// NormalizeHalo converts the accepted halo forms to the canonical d×2
// matrix:
//
//   - nil means zero halo everywhere;
//   - a single width applies to both faces of every axis;
//   - one width per axis applies to both faces of that axis;
//   - a full matrix is validated and cloned.
//
// Any negative width is an error.
func NormalizeHalo(halo any, ndim int) (Halo, error) {
	out := make(Halo, ndim)
	switch h := halo.(type) {
	case nil:
	case int:
		if h < 0 {
			return nil, errors.Wrapf(types.ErrConfiguration, "halo width must be non-negative, got %d", h)
		}
		for d := range out {
			out[d] = [2]int{h, h}
		}
	case []int:
		if len(h) != ndim {
			return nil, errors.Wrapf(types.ErrConfiguration,
				"per-axis halo must have one width per axis, got %d widths for %d axes", len(h), ndim)
		}
		for d, w := range h {
			if w < 0 {
				return nil, errors.Wrapf(types.ErrConfiguration, "halo[%d]=%d must be non-negative", d, w)
			}
			out[d] = [2]int{w, w}
		}
	case [][2]int:
		return NormalizeHalo(Halo(h), ndim)
	case Halo:
		if len(h) != ndim {
			return nil, errors.Wrapf(types.ErrConfiguration,
				"halo matrix must have one row per axis, got %d rows for %d axes", len(h), ndim)
		}
		for d, w := range h {
			if w[0] < 0 || w[1] < 0 {
				return nil, errors.Wrapf(types.ErrConfiguration,
					"halo[%d]=%v must be non-negative", d, w)
			}
			out[d] = w
		}
	default:
		return nil, errors.Wrapf(types.ErrConfiguration,
			"halo must be an int, []int, or a d×2 matrix, got %T", halo)
	}
	return out, nil
}

// Clone returns a deep copy of the halo matrix.
func (h Halo) Clone() Halo {
	out := make(Halo, len(h))
	copy(out, h)
	return out
}

// Width returns the halo width on the given face.
func (h Halo) Width(axis int, side types.Side) int {
	return h[axis][side]
}

// IsZero returns whether every width is zero.
func (h Halo) IsZero() bool {
	for _, w := range h {
		if w[0] != 0 || w[1] != 0 {
			return false
		}
	}
	return true
}

// HaloExtent is an Extent (the authoritative, "no-halo" box) together with
// per-axis two-sided halo widths. It exposes both the no-halo box and the
// with-halo (materialized) box, and their slice forms.
type HaloExtent struct {
	Extent
	halo Halo
}

// NewHalo creates a HaloExtent from the authoritative bounds and the halo
// matrix. A nil halo means zero widths.
func NewHalo(start, stop []int, halo Halo) (HaloExtent, error) {
	e, err := New(start, stop)
	if err != nil {
		return HaloExtent{}, err
	}
	h, err := NormalizeHalo(halo, e.Rank())
	if err != nil {
		return HaloExtent{}, err
	}
	return HaloExtent{Extent: e, halo: h}, nil
}

// Halo returns a copy of the halo width matrix.
func (e HaloExtent) Halo() Halo {
	return e.halo.Clone()
}

// HaloWidth returns the halo width on the given face.
func (e HaloExtent) HaloWidth(axis int, side types.Side) int {
	return e.halo[axis][side]
}

// StartN returns the authoritative lower bound along the given axis.
func (e HaloExtent) StartN(axis int) int {
	return e.Start(axis)
}

// StopN returns the authoritative upper bound along the given axis.
func (e HaloExtent) StopN(axis int) int {
	return e.Stop(axis)
}

// StartH returns the with-halo lower bound along the given axis.
func (e HaloExtent) StartH(axis int) int {
	return e.Start(axis) - e.halo[axis][types.LO]
}

// StopH returns the with-halo upper bound along the given axis.
func (e HaloExtent) StopH(axis int) int {
	return e.Stop(axis) + e.halo[axis][types.HI]
}

// BoxN returns the authoritative (no-halo) box.
func (e HaloExtent) BoxN() Extent {
	return e.Extent
}

// BoxH returns the with-halo box.
func (e HaloExtent) BoxH() Extent {
	start := make([]int, e.Rank())
	stop := make([]int, e.Rank())
	for d := 0; d < e.Rank(); d++ {
		start[d] = e.StartH(d)
		stop[d] = e.StopH(d)
	}
	return Extent{start: start, stop: stop}
}

// ShapeN returns the shape of the authoritative box.
func (e HaloExtent) ShapeN() []int {
	return e.Shape()
}

// ShapeH returns the shape of the with-halo box.
func (e HaloExtent) ShapeH() []int {
	return e.BoxH().Shape()
}

// SizeN returns the element count of the authoritative box.
func (e HaloExtent) SizeN() int {
	return e.Size()
}

// SizeH returns the element count of the with-halo box.
func (e HaloExtent) SizeH() int {
	return e.BoxH().Size()
}

// SlicesN returns the authoritative box as per-axis slices.
func (e HaloExtent) SlicesN() []Slice {
	return e.Extent.Slices()
}

// SlicesH returns the with-halo box as per-axis slices.
func (e HaloExtent) SlicesH() []Slice {
	return e.BoxH().Slices()
}

// Slices is an alias for SlicesN: indexing a HaloExtent defaults to the
// authoritative box.
func (e HaloExtent) Slices() []Slice {
	return e.SlicesN()
}

// String implements fmt.Stringer.
func (e HaloExtent) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "HaloExtent(n=%s, h=%s, halo=%v)", e.Extent.String(), e.BoxH().String(), e.halo)
	return sb.String()
}
