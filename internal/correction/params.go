package correction

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParams is returned by the solvers when Params fail validation.
var ErrInvalidParams = errors.New("invalid solver parameters")

// Kind identifies which correction a solve computes.
type Kind int

const (
	KindZ Kind = iota
	KindPhase
	KindAmp
)

func (k Kind) String() string {
	switch k {
	case KindZ:
		return "Z"
	case KindPhase:
		return "Phase"
	case KindAmp:
		return "Amplitude"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Params controls one relaxation run.
type Params struct {
	MinQuality float64 // ties with a lower quality are ignored
	MaxIter    int     // upper bound on iterations, at least 1
	Damping    float64 // fraction of the averaged residual applied per iteration, in (0, 1]
	Delta      float64 // stop once the RMS mistie changes by no more than this
}

// DefaultParams returns the settings of the interactive calculation: minimum
// quality 0.5, 20 iterations, damping 0.75 and a minimum RMS change of 0.01.
func DefaultParams() Params {
	return Params{
		MinQuality: 0.5,
		MaxIter:    20,
		Damping:    0.75,
		Delta:      0.01,
	}
}

// Validate checks p for values the relaxation cannot run with.
func (p Params) Validate() error {
	switch {
	case math.IsNaN(p.MinQuality):
		return fmt.Errorf("%w: minimum quality is NaN", ErrInvalidParams)
	case p.MaxIter < 1:
		return fmt.Errorf("%w: max iterations %d < 1", ErrInvalidParams, p.MaxIter)
	case !(p.Damping > 0 && p.Damping <= 1):
		return fmt.Errorf("%w: damping %g outside (0, 1]", ErrInvalidParams, p.Damping)
	case !(p.Delta >= 0):
		return fmt.Errorf("%w: delta %g must be >= 0", ErrInvalidParams, p.Delta)
	}
	return nil
}

// Result reports the outcome of one relaxation run.
type Result struct {
	Kind       Kind
	Initial    float64   // RMS mistie with the reset corrections
	Final      float64   // RMS mistie with the computed corrections
	Iterations int       // iterations performed
	Converged  bool      // stopped because the RMS change fell to Delta or below
	Qualifying int       // ties that met the quality threshold
	History    []float64 // RMS mistie after each iteration
}

// References is the set of lines pinned at the identity correction.
type References map[string]struct{}

// NewReferences builds a reference set from line names.
func NewReferences(names ...string) References {
	refs := make(References, len(names))
	for _, name := range names {
		refs[name] = struct{}{}
	}
	return refs
}

// Has reports whether name is a reference line. A nil set has no lines.
func (r References) Has(name string) bool {
	_, ok := r[name]
	return ok
}
