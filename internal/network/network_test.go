package network

import (
	"testing"

	"mistie-solver/internal/correction"
	"mistie-solver/internal/mistie"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noisyGrid is a small inconsistent network: two east-west lines crossed by
// three north-south lines, plus a tie off to a line measured once.
func noisyGrid() *mistie.Set {
	return mistie.NewSet(
		mistie.Tie{LineA: "EW1", LineB: "NS1", ZDiff: 4.2, PhaseDiff: 10, AmpDiff: 1.2, Quality: 0.9},
		mistie.Tie{LineA: "EW1", LineB: "NS2", ZDiff: -1.1, PhaseDiff: -5, AmpDiff: 0.9, Quality: 0.8},
		mistie.Tie{LineA: "EW1", LineB: "NS3", ZDiff: 2.5, PhaseDiff: 22, AmpDiff: 1.5, Quality: 1},
		mistie.Tie{LineA: "EW2", LineB: "NS1", ZDiff: 6.0, PhaseDiff: 14, AmpDiff: 1.1, Quality: 0.7},
		mistie.Tie{LineA: "EW2", LineB: "NS2", ZDiff: 0.4, PhaseDiff: -2, AmpDiff: 0.8, Quality: 0.9},
		mistie.Tie{LineA: "EW2", LineB: "NS3", ZDiff: 3.9, PhaseDiff: 30, AmpDiff: 1.3, Quality: 0.6},
		mistie.Tie{LineA: "NS3", LineB: "X1", ZDiff: -7, PhaseDiff: 8, AmpDiff: 2, Quality: 1},
		mistie.Tie{LineA: "NS1", LineB: "X2", ZDiff: 50, PhaseDiff: 80, AmpDiff: 9, Quality: 0.1},
	)
}

func relaxed(t *testing.T, kind correction.Kind) *correction.Table {
	t.Helper()
	s := correction.NewSolver(nil)
	compute := map[correction.Kind]func(*correction.Table, correction.Measurements, correction.References, correction.Params) (correction.Result, error){
		correction.KindZ:     s.ComputeZCor,
		correction.KindPhase: s.ComputePhaseCor,
		correction.KindAmp:   s.ComputeAmpCor,
	}[kind]

	tbl := correction.NewTable()
	p := correction.Params{MinQuality: 0.5, MaxIter: 2000, Damping: 0.75, Delta: 0}
	_, err := compute(tbl, noisyGrid(), correction.NewReferences("EW1"), p)
	require.NoError(t, err)
	return tbl
}

func TestSolveZMatchesRelaxation(t *testing.T) {
	sol, err := SolveZ(noisyGrid(), correction.NewReferences("EW1"), 0.5)
	require.NoError(t, err)

	tbl := relaxed(t, correction.KindZ)
	assert.Equal(t, 0.0, sol["EW1"])
	assert.Equal(t, 0.0, sol["X2"])
	for name, want := range sol {
		z, _, _, _ := tbl.Get(name)
		assert.InDelta(t, want, z, 1e-6, name)
	}
}

func TestSolvePhaseMatchesRelaxation(t *testing.T) {
	sol, err := SolvePhase(noisyGrid(), correction.NewReferences("EW1"), 0.5)
	require.NoError(t, err)

	tbl := relaxed(t, correction.KindPhase)
	for name, want := range sol {
		_, p, _, _ := tbl.Get(name)
		assert.InDelta(t, want, p, 1e-6, name)
	}
}

func TestSolveAmpMatchesRelaxation(t *testing.T) {
	sol, err := SolveAmp(noisyGrid(), correction.NewReferences("EW1"), 0.5)
	require.NoError(t, err)

	tbl := relaxed(t, correction.KindAmp)
	assert.Equal(t, 1.0, sol["EW1"])
	for name, want := range sol {
		_, _, a, _ := tbl.Get(name)
		assert.InDelta(t, want, a, 1e-6, name)
	}
}

func TestSolveWithoutReferences(t *testing.T) {
	set := mistie.NewSet(
		mistie.Tie{LineA: "A", LineB: "B", ZDiff: 4, Quality: 1},
		mistie.Tie{LineA: "C", LineB: "D", ZDiff: -2, Quality: 1},
	)
	sol, err := SolveZ(set, nil, 0)
	require.NoError(t, err)

	// Each unanchored group is centred on zero.
	assert.InDelta(t, 2.0, sol["A"], 1e-9)
	assert.InDelta(t, -2.0, sol["B"], 1e-9)
	assert.InDelta(t, -1.0, sol["C"], 1e-9)
	assert.InDelta(t, 1.0, sol["D"], 1e-9)
}

func TestSolveNoTies(t *testing.T) {
	set := mistie.NewSet(mistie.Tie{LineA: "A", LineB: "B", ZDiff: 4, Quality: 0.1})
	_, err := SolveZ(set, nil, 0.5)
	assert.ErrorIs(t, err, ErrNoTies)
}

func TestUnanchoredGroups(t *testing.T) {
	set := mistie.NewSet(
		mistie.Tie{LineA: "B", LineB: "A", Quality: 1},
		mistie.Tie{LineA: "C", LineB: "D", Quality: 1},
		mistie.Tie{LineA: "D", LineB: "E", Quality: 1},
		mistie.Tie{LineA: "E", LineB: "F", Quality: 0.1},
	)

	assert.Equal(t, [][]string{{"A", "B"}, {"C", "D", "E"}}, UnanchoredGroups(set, nil, 0.5))
	assert.Equal(t, [][]string{{"A", "B"}}, UnanchoredGroups(set, correction.NewReferences("D"), 0.5))
	assert.Empty(t, UnanchoredGroups(set, correction.NewReferences("A", "C"), 0.5))
}
