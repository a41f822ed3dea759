package garray

import "github.com/garray/garray/types"

// The error kinds surfaced by the package, re-exported from types for
// convenience. Transport failures wrap comm.ErrTransport.
var (
	ErrConfiguration = types.ErrConfiguration
	ErrArgument      = types.ErrArgument
	ErrInternal      = types.ErrInternal
)
