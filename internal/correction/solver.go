package correction

import (
	"math"

	"mistie-solver/internal/mistie"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// Measurements is the tie network a Solver distributes misties over.
// *mistie.Set implements it.
type Measurements interface {
	Len() int
	Lines(idx int) (lineA, lineB string)
	Quality(idx int) float64
	PhaseDiff(idx int) float64
	ZMistieWith(c mistie.Corrections, idx int) float64
	PhaseMistieWith(c mistie.Corrections, idx int) float64
	AmpMistieWith(c mistie.Corrections, idx int) float64
}

// Solver runs the Z, phase and amplitude relaxations. A Solver holds no state
// between calls; the table passed in is the only thing it mutates.
type Solver struct {
	log *zap.Logger
}

// NewSolver creates a solver that reports progress to log. A nil logger
// discards progress messages.
func NewSolver(log *zap.Logger) *Solver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Solver{log: log}
}

// tieRef is a qualifying tie with the table indices of its two lines.
type tieRef struct {
	idx  int
	a, b int
}

// relaxation plugs one kind of correction into the shared iteration.
type relaxation struct {
	kind     Kind
	identity float64

	// mistie is the corrected mistie of a tie, used for the RMS.
	mistie func(idx int) float64
	// estimate is the per-tie term accumulated to drive the update.
	estimate func(idx int) float64
	// step applies the damped average estimate to a line's correction.
	step func(cur, avg float64) float64

	get func(idx int) float64
	set func(idx int, v float64)

	// usable further restricts the ties that pass the quality threshold.
	usable func(idx int) bool
	// afterIteration runs once an iteration's corrections and RMS are final.
	afterIteration func(ties []tieRef)
}

func (s *Solver) run(t *Table, m Measurements, refs References, p Params, r relaxation) (Result, error) {
	res := Result{Kind: r.kind}
	if err := p.Validate(); err != nil {
		return res, err
	}

	// Reset both ends of every tie, whatever its quality.
	for idx := 0; idx < m.Len(); idx++ {
		lineA, lineB := m.Lines(idx)
		r.set(t.upsert(lineA), r.identity)
		r.set(t.upsert(lineB), r.identity)
	}

	var ties []tieRef
	for idx := 0; idx < m.Len(); idx++ {
		if m.Quality(idx) < p.MinQuality {
			continue
		}
		if r.usable != nil && !r.usable(idx) {
			continue
		}
		lineA, lineB := m.Lines(idx)
		ties = append(ties, tieRef{idx: idx, a: t.Index(lineA), b: t.Index(lineB)})
	}
	res.Qualifying = len(ties)
	if len(ties) == 0 {
		s.log.Warn("No ties meet the minimum quality, corrections left at identity",
			zap.Stringer("kind", r.kind),
			zap.Float64("min_quality", p.MinQuality),
			zap.Int("ties", m.Len()))
		return res, nil
	}

	residuals := make([]float64, len(ties))
	rms := func() float64 {
		for i, tr := range ties {
			residuals[i] = r.mistie(tr.idx)
		}
		return rootMeanSquare(residuals)
	}

	res.Initial = rms()
	last := res.Initial

	est := make([]float64, t.Size())
	count := make([]int, t.Size())
	for {
		clear(est)
		clear(count)
		for _, tr := range ties {
			d := r.estimate(tr.idx)
			est[tr.a] += d
			count[tr.a]++
			est[tr.b] -= d
			count[tr.b]++
		}

		for idx := 0; idx < t.Size(); idx++ {
			switch {
			case refs.Has(t.DataName(idx)):
				r.set(idx, r.identity)
			case count[idx] != 0:
				r.set(idx, r.step(r.get(idx), p.Damping*est[idx]/float64(count[idx])))
			}
		}

		cur := rms()
		if r.afterIteration != nil {
			r.afterIteration(ties)
		}
		res.Iterations++
		res.History = append(res.History, cur)

		chg := math.Abs(last - cur)
		last = cur
		s.log.Debug("Relaxation iteration",
			zap.Stringer("kind", r.kind),
			zap.Int("iteration", res.Iterations),
			zap.Float64("rms", cur),
			zap.Float64("change", chg))

		if chg <= p.Delta {
			res.Converged = true
			break
		}
		if res.Iterations >= p.MaxIter {
			break
		}
	}
	res.Final = last

	s.log.Info("Mistie "+r.kind.String()+" Correction Calculation",
		zap.Float64("initial_rms", res.Initial),
		zap.Float64("final_rms", res.Final),
		zap.Int("iterations", res.Iterations),
		zap.Bool("converged", res.Converged))
	return res, nil
}

func rootMeanSquare(xs []float64) float64 {
	return floats.Norm(xs, 2) / math.Sqrt(float64(len(xs)))
}

// ComputeZCor computes the Z shift of every line tied in m. Reference lines are
// held at 0. The returned Result carries the final RMS Z mistie.
func (s *Solver) ComputeZCor(t *Table, m Measurements, refs References, p Params) (Result, error) {
	zmistie := func(idx int) float64 { return m.ZMistieWith(t, idx) }
	return s.run(t, m, refs, p, relaxation{
		kind:     KindZ,
		identity: DefaultZShift,
		mistie:   zmistie,
		estimate: zmistie,
		step:     func(cur, avg float64) float64 { return cur + avg },
		get:      t.ZCor,
		set:      t.SetZCorAt,
	})
}

// ComputePhaseCor computes the phase rotation of every line tied in m.
// Reference lines are held at 0.
//
// Phase differences are circular, so the solver works on its own copy of them
// and after every iteration moves each one by a full turn whenever that brings
// the corrected mistie closer to zero. m itself is never modified.
func (s *Solver) ComputePhaseCor(t *Table, m Measurements, refs References, p Params) (Result, error) {
	work := newPhaseScratch(m)
	pmistie := func(idx int) float64 { return work.PhaseMistieWith(t, idx) }
	return s.run(t, m, refs, p, relaxation{
		kind:     KindPhase,
		identity: DefaultPhase,
		mistie:   pmistie,
		estimate: pmistie,
		step:     func(cur, avg float64) float64 { return cur + avg },
		get:      t.PhaseCor,
		set:      t.SetPhaseCorAt,
		afterIteration: func(ties []tieRef) {
			for _, tr := range ties {
				work.diffs[tr.idx] = unwrapPhase(work.diffs[tr.idx], pmistie(tr.idx))
			}
		},
	})
}

// ComputeAmpCor computes the amplitude scale of every line tied in m.
// Reference lines are held at 1.
//
// The update is driven by the mean log10 of the amplitude mistie ratios, while
// the RMS used for convergence and reporting is taken over the linear ratios.
// Ties whose ratio is not a positive finite number are skipped.
func (s *Solver) ComputeAmpCor(t *Table, m Measurements, refs References, p Params) (Result, error) {
	amistie := func(idx int) float64 { return m.AmpMistieWith(t, idx) }
	return s.run(t, m, refs, p, relaxation{
		kind:     KindAmp,
		identity: DefaultAmp,
		mistie:   amistie,
		estimate: func(idx int) float64 { return math.Log10(amistie(idx)) },
		step:     func(cur, avg float64) float64 { return cur * math.Pow(10, avg) },
		get:      t.AmpCor,
		set:      t.SetAmpCorAt,
		usable: func(idx int) bool {
			v := amistie(idx)
			return v > 0 && !math.IsInf(v, 1)
		},
	})
}

// Deltas holds the minimum RMS change of each kind of correction.
type Deltas struct {
	Z     float64
	Phase float64
	Amp   float64
}

// ComputeAll erases t and computes Z, phase and amplitude corrections in that
// order. p.Delta is ignored in favor of d. It stops at the first error.
func (s *Solver) ComputeAll(t *Table, m Measurements, refs References, p Params, d Deltas) ([]Result, error) {
	t.Erase()

	runs := []struct {
		delta   float64
		compute func(*Table, Measurements, References, Params) (Result, error)
	}{
		{d.Z, s.ComputeZCor},
		{d.Phase, s.ComputePhaseCor},
		{d.Amp, s.ComputeAmpCor},
	}

	results := make([]Result, 0, len(runs))
	for _, run := range runs {
		kp := p
		kp.Delta = run.delta
		res, err := run.compute(t, m, refs, kp)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}
