// Package types defines values shared across the garray packages: the error
// kinds surfaced by the API and the face constants used to address the two
// sides of an axis.
package types

import "github.com/pkg/errors"

// The error kinds surfaced by garray. All errors returned by the library
// wrap one of these sentinels (or comm.ErrTransport), so callers can
// classify failures with errors.Is.
var (
	// ErrConfiguration reports an invalid construction parameter:
	// inconsistent dims/ndims, a negative halo, a dims product that does
	// not match the locale count, or mismatched dtypes in CopyTo.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrArgument reports an invalid operand to an array-level operation,
	// e.g. a nil GlobalArray passed to CopyTo or an index outside the
	// caller's with-halo extent.
	ErrArgument = errors.New("invalid argument")

	// ErrInternal reports a violated structural invariant detected during
	// construction (e.g. a non-disjoint authoritative union). It indicates
	// a bug in garray, not in the caller.
	ErrInternal = errors.New("internal invariant violation")
)

// Side selects one of the two faces of an axis: LO is the face toward
// index 0, HI the face toward the end of the axis.
type Side int

const (
	LO Side = iota
	HI
)

// String implements fmt.Stringer.
func (s Side) String() string {
	switch s {
	case LO:
		return "LO"
	case HI:
		return "HI"
	}
	return "Side(?)"
}

// Sides lists both faces in the order the exchange-plan computation visits
// them.
var Sides = [2]Side{LO, HI}
