// Package ops implements the VPL operation set (spec.md §4.5/§4.6): read
// operations that produce a source.Reader from scratch, and transform
// operations that wrap an upstream source.Reader with derived behavior.
// Build walks a parsed vpl.Pipeline and constructs the corresponding
// operation graph; Registry describes every known operation for
// vpl.Validate.
package ops

import "github.com/versatiles-org/versatiles-go/internal/vpl"

// Registry is the full set of operations this build knows, used both by
// vpl.Validate (parameter/arity checking) and by Build (dispatch).
func Registry() vpl.Registry {
	reg := vpl.Registry{}
	for name, spec := range readSpecs {
		reg[name] = spec
	}
	for name, spec := range transformSpecs {
		reg[name] = spec
	}
	return reg
}
