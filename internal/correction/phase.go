package correction

import (
	"math"

	"mistie-solver/internal/mistie"
)

// phaseScratch is a solver-owned copy of the phase differences of a tie set.
// Everything but the phase differences is read through to the wrapped set.
type phaseScratch struct {
	Measurements
	diffs []float64
}

func newPhaseScratch(m Measurements) *phaseScratch {
	diffs := make([]float64, m.Len())
	for idx := range diffs {
		diffs[idx] = m.PhaseDiff(idx)
	}
	return &phaseScratch{Measurements: m, diffs: diffs}
}

func (w *phaseScratch) PhaseDiff(idx int) float64 {
	return w.diffs[idx]
}

func (w *phaseScratch) PhaseMistieWith(c mistie.Corrections, idx int) float64 {
	lineA, lineB := w.Lines(idx)
	_, phaseA, _, _ := c.Get(lineA)
	_, phaseB, _, _ := c.Get(lineB)
	return w.diffs[idx] + phaseB - phaseA
}

// unwrapPhase returns the stored phase difference moved by a full turn when
// that gives a corrected residual closer to zero, or stored unchanged.
func unwrapPhase(stored, residual float64) float64 {
	cur := math.Abs(residual)
	up := math.Abs(residual + 360)
	down := math.Abs(residual - 360)
	if up >= cur && down >= cur {
		return stored
	}
	if up < down {
		return stored + 360
	}
	return stored - 360
}
