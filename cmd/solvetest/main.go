// Command solvetest builds a synthetic grid of crossing lines with known
// corrections, runs the solvers on its ties and prints per-line errors.
package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"

	"mistie-solver/internal/correction"
	"mistie-solver/internal/logging"
	"mistie-solver/internal/mistie"
	"mistie-solver/internal/network"
	"mistie-solver/pkg/geometry"
)

type truth struct {
	z, phase, amp float64
}

func main() {
	n := flag.Int("n", 4, "number of east-west and of north-south lines")
	noise := flag.Float64("noise", 0.5, "standard deviation of the Z mistie noise")
	seed := flag.Int64("seed", 1, "random seed")
	maxIter := flag.Int("maxiter", 20, "maximum relaxation iterations")
	damping := flag.Float64("damping", 0.75, "relaxation damping")
	delta := flag.Float64("delta", 0.001, "minimum RMS change")
	save := flag.String("o", "", "write the synthetic ties to this file")
	verbose := flag.Bool("v", false, "log every iteration")
	flag.Parse()

	if *n < 1 {
		fmt.Println("Usage: solvetest [-n lines] [-noise sd] [-seed s] [-maxiter n] [-damping d] [-delta d] [-o ties.yaml]")
		os.Exit(1)
	}

	log, err := logging.New(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	rng := rand.New(rand.NewSource(*seed))
	ref := "EW1"
	lines := buildGrid(rng, *n)
	lines[ref] = truth{amp: 1}
	set := tieGrid(rng, lines, *n, *noise)

	fmt.Printf("=== Synthetic grid: %d lines, %d ties ===\n", len(lines), set.Len())
	if *save != "" {
		if err := set.Write(*save); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save ties: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Saved ties to %s\n", *save)
	}

	p := correction.Params{MinQuality: 0, MaxIter: *maxIter, Damping: *damping, Delta: *delta}
	tbl := correction.NewTable()
	results, err := correction.NewSolver(log).ComputeAll(tbl, set, correction.NewReferences(ref), p,
		correction.Deltas{Z: *delta, Phase: *delta, Amp: *delta / 10})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Solve failed: %v\n", err)
		os.Exit(1)
	}

	for _, r := range results {
		fmt.Printf("%-9s RMS %.4f -> %.4f in %d iterations (converged=%v)\n",
			r.Kind, r.Initial, r.Final, r.Iterations, r.Converged)
	}

	direct, err := network.SolveZ(set, correction.NewReferences(ref), 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Direct solve failed: %v\n", err)
		os.Exit(1)
	}

	printResiduals(lines, tbl, direct)
}

// buildGrid draws a true correction for n east-west and n north-south lines.
func buildGrid(rng *rand.Rand, n int) map[string]truth {
	lines := make(map[string]truth)
	for i := 1; i <= n; i++ {
		for _, dir := range []string{"EW", "NS"} {
			lines[fmt.Sprintf("%s%d", dir, i)] = truth{
				z:     rng.NormFloat64() * 10,
				phase: rng.Float64()*60 - 30,
				amp:   math.Pow(10, rng.Float64()*0.4-0.2),
			}
		}
	}
	return lines
}

// tieGrid ties every east-west line to every north-south line, with the
// lines 1000 units apart and Gaussian noise on the Z and phase misties.
func tieGrid(rng *rand.Rand, lines map[string]truth, n int, noise float64) *mistie.Set {
	set := mistie.NewSet()
	for i := 1; i <= n; i++ {
		for j := 1; j <= n; j++ {
			a, b := fmt.Sprintf("EW%d", i), fmt.Sprintf("NS%d", j)
			ta, tb := lines[a], lines[b]
			set.Add(mistie.Tie{
				LineA:     a,
				LineB:     b,
				TrcA:      j * 100,
				TrcB:      i * 100,
				Pos:       geometry.NewPoint2D(float64(j)*1000, float64(i)*1000),
				ZDiff:     ta.z - tb.z + rng.NormFloat64()*noise,
				PhaseDiff: ta.phase - tb.phase + rng.NormFloat64()*noise,
				AmpDiff:   ta.amp / tb.amp,
				Quality:   0.5 + rng.Float64()/2,
			})
		}
	}
	return set
}

func printResiduals(lines map[string]truth, tbl *correction.Table, direct network.Solution) {
	names := make([]string, 0, len(lines))
	for name := range lines {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("\nPer-line errors against the true corrections:\n")
	for _, name := range names {
		want := lines[name]
		z, phase, amp, _ := tbl.Get(name)
		fmt.Printf("  %-5s dz=%7.3f  dphase=%7.3f  amp ratio=%.4f  relax-direct=%.2e\n",
			name, z-want.z, phase-want.phase, amp/want.amp, z-direct[name])
	}
}
