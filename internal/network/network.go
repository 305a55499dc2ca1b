// Package network solves the tie network directly as a linear least-squares
// problem. It gives the fixed point the relaxation in package correction should
// approach, and is used to cross-check it.
package network

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"mistie-solver/internal/correction"
	"mistie-solver/internal/mistie"

	"gonum.org/v1/gonum/mat"
)

// ErrNoTies is returned when no tie passes the quality threshold.
var ErrNoTies = errors.New("no qualifying ties")

// Solution maps line names to a correction.
type Solution map[string]float64

// SolveZ returns the least-squares Z shifts with reference lines fixed at 0.
func SolveZ(set *mistie.Set, refs correction.References, minQuality float64) (Solution, error) {
	return solve(set, refs, minQuality, func(t mistie.Tie) (float64, bool) {
		return t.ZDiff, true
	})
}

// SolvePhase returns the least-squares phase rotations with reference lines
// fixed at 0. Phase differences are used as given; no unwrapping is done.
func SolvePhase(set *mistie.Set, refs correction.References, minQuality float64) (Solution, error) {
	return solve(set, refs, minQuality, func(t mistie.Tie) (float64, bool) {
		return t.PhaseDiff, true
	})
}

// SolveAmp returns the amplitude scales that are least-squares optimal in
// log10 space, with reference lines fixed at 1. Ties with a non-positive
// amplitude ratio are skipped.
func SolveAmp(set *mistie.Set, refs correction.References, minQuality float64) (Solution, error) {
	logs, err := solve(set, refs, minQuality, func(t mistie.Tie) (float64, bool) {
		if !(t.AmpDiff > 0) || math.IsInf(t.AmpDiff, 1) {
			return 0, false
		}
		return math.Log10(t.AmpDiff), true
	})
	if err != nil {
		return nil, err
	}
	for name, l := range logs {
		logs[name] = math.Pow(10, l)
	}
	return logs, nil
}

// solve sets up one row per qualifying tie, x(A) - x(B) = value, with the
// reference lines eliminated. Every connected group of lines without a
// reference gets an extra row forcing its mean to zero so the system has full
// column rank.
func solve(set *mistie.Set, refs correction.References, minQuality float64, value func(mistie.Tie) (float64, bool)) (Solution, error) {
	sol := make(Solution)
	for _, name := range set.AllLines() {
		sol[name] = 0
	}

	type row struct {
		a, b string
		v    float64
	}
	var rows []row
	groups := newUnionFind()
	for _, t := range set.Ties() {
		if t.Quality < minQuality {
			continue
		}
		v, ok := value(t)
		if !ok {
			continue
		}
		rows = append(rows, row{t.LineA, t.LineB, v})
		groups.union(t.LineA, t.LineB)
	}
	if len(rows) == 0 {
		return nil, ErrNoTies
	}

	// Column per free line, in name order for a stable layout.
	var free []string
	for name := range groups.parent {
		if !refs.Has(name) {
			free = append(free, name)
		}
	}
	sort.Strings(free)
	col := make(map[string]int, len(free))
	for i, name := range free {
		col[name] = i
	}
	if len(free) == 0 {
		return sol, nil
	}

	anchored := make(map[string]bool)
	for name := range groups.parent {
		if refs.Has(name) {
			anchored[groups.find(name)] = true
		}
	}
	members := make(map[string][]string)
	for _, name := range free {
		root := groups.find(name)
		if !anchored[root] {
			members[root] = append(members[root], name)
		}
	}
	roots := make([]string, 0, len(members))
	for root := range members {
		roots = append(roots, root)
	}
	sort.Strings(roots)

	nrows := len(rows) + len(roots)
	if nrows < len(free) {
		return nil, fmt.Errorf("network underdetermined: %d equations for %d lines", nrows, len(free))
	}
	A := mat.NewDense(nrows, len(free), nil)
	b := mat.NewVecDense(nrows, nil)
	for i, r := range rows {
		if c, ok := col[r.a]; ok {
			A.Set(i, c, A.At(i, c)+1)
		}
		if c, ok := col[r.b]; ok {
			A.Set(i, c, A.At(i, c)-1)
		}
		b.SetVec(i, r.v)
	}
	for i, root := range roots {
		for _, name := range members[root] {
			A.Set(len(rows)+i, col[name], 1)
		}
	}

	// Solve using QR decomposition
	var qr mat.QR
	qr.Factorize(A)

	var x mat.VecDense
	if err := qr.SolveVecTo(&x, false, b); err != nil {
		return nil, fmt.Errorf("solving tie network: %w", err)
	}
	for i, name := range free {
		sol[name] = x.AtVec(i)
	}
	return sol, nil
}

// UnanchoredGroups returns the connected groups of lines, linked by ties with
// at least minQuality, that contain no reference line. Each group is sorted
// and the groups are ordered by their first line. The corrections of such a
// group are only defined up to a common offset.
func UnanchoredGroups(set *mistie.Set, refs correction.References, minQuality float64) [][]string {
	groups := newUnionFind()
	for _, t := range set.Ties() {
		if t.Quality >= minQuality {
			groups.union(t.LineA, t.LineB)
		}
	}

	anchored := make(map[string]bool)
	for name := range groups.parent {
		if refs.Has(name) {
			anchored[groups.find(name)] = true
		}
	}
	byRoot := make(map[string][]string)
	for name := range groups.parent {
		if root := groups.find(name); !anchored[root] {
			byRoot[root] = append(byRoot[root], name)
		}
	}

	out := make([][]string, 0, len(byRoot))
	for _, names := range byRoot {
		sort.Strings(names)
		out = append(out, names)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

type unionFind struct {
	parent map[string]string
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string)}
}

func (u *unionFind) find(x string) string {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
	}
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}
