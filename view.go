package garray

import (
	"github.com/garray/garray/types"
	"github.com/garray/garray/types/extent"
	"github.com/pkg/errors"
)

// View is a strided window into the local storage of a GlobalArray,
// addressed in coordinates relative to the view's box. Views alias the
// array's buffer: writes through a view are visible to every intra-locale
// peer after the next barrier.
type View struct {
	ga  *GlobalArray
	box extent.Extent // global coordinates, contained in the with-halo box
}

// Box returns the view's extent in global coordinates.
func (v View) Box() extent.Extent {
	return v.box
}

// Shape returns the per-axis size of the view.
func (v View) Shape() []int {
	return v.box.Shape()
}

// Size returns the number of elements of the view.
func (v View) Size() int {
	return v.box.Size()
}

// At reads the element at the view-relative index.
func (v View) At(idx ...int) (float64, error) {
	g, err := v.global(idx)
	if err != nil {
		return 0, err
	}
	return v.ga.At(g...)
}

// Set writes the element at the view-relative index.
func (v View) Set(value float64, idx ...int) error {
	g, err := v.global(idx)
	if err != nil {
		return err
	}
	return v.ga.Set(value, g...)
}

// Fill writes value into every element of the view.
func (v View) Fill(value float64) error {
	return v.ga.fillExtent(v.box, value)
}

func (v View) global(idx []int) ([]int, error) {
	if len(idx) != v.box.Rank() {
		return nil, errors.Wrapf(types.ErrArgument,
			"index %v has %d axes, the view has %d", idx, len(idx), v.box.Rank())
	}
	g := make([]int, len(idx))
	for d := range idx {
		g[d] = v.box.Start(d) + idx[d]
		if idx[d] < 0 || g[d] >= v.box.Stop(d) {
			return nil, errors.Wrapf(types.ErrArgument,
				"index %v outside the view of shape %v", idx, v.box.Shape())
		}
	}
	return g, nil
}
