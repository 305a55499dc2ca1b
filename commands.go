package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"mistie-solver/internal/app"
	"mistie-solver/internal/config"
	"mistie-solver/internal/correction"
	"mistie-solver/internal/logging"
	"mistie-solver/internal/mistie"
	"mistie-solver/internal/network"
	"mistie-solver/internal/report"
	"mistie-solver/internal/version"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// cli carries what the subcommands share once the root command has run its
// setup.
type cli struct {
	v           *viper.Viper
	cfgPath     string
	projectPath string
	settings    config.Settings
	log         *zap.Logger
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), log: zap.NewNop()}
	def := config.Default().Solver

	root := &cobra.Command{
		Use:   "mistie",
		Short: "Seismic mistie correction solver",
		Long: `mistie computes a Z shift, phase rotation and amplitude scalar per seismic
line so that the misties measured where lines cross are as small as possible.

Settings come from mistie.yaml, MISTIE_* environment variables and flags.
With --project, calc starts from the ties, reference lines and settings saved
in the project, applies the arguments and flags given on top, and saves the
project and its correction file again.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = c.log.Sync()
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgPath, "config", "", "config file (default: mistie.yaml in . or the user config dir)")
	pf.StringVar(&c.projectPath, "project", "", "project file (.mproj) to load and update")
	pf.BoolP("verbose", "v", false, "log every relaxation iteration")
	pf.Float64("min-quality", def.MinQuality, "ignore ties with a lower quality")
	pf.Int("max-iter", def.MaxIter, "maximum relaxation iterations")
	pf.Float64("damping", def.Damping, "fraction of the averaged mistie applied per iteration")

	for key, flag := range map[string]string{
		"log.verbose":       "verbose",
		"solver.minquality": "min-quality",
		"solver.maxiter":    "max-iter",
		"solver.damping":    "damping",
	} {
		// Lookup cannot fail for flags defined above.
		_ = c.v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(
		c.showCmd(),
		c.calcCmd(),
		c.residualsCmd(),
		c.mergeCmd(),
		c.plotCmd(),
		versionCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, args []string) error {
	s, err := config.Load(c.v, c.cfgPath)
	if err != nil {
		return err
	}
	c.settings = s

	log, err := logging.New(s.Log.Verbose)
	if err != nil {
		return err
	}
	c.log = log
	return nil
}

// session opens the --project file when it exists, then the mistie file in
// args when one is given.
func (c *cli) session(args []string) (*app.State, error) {
	state := app.NewState(c.log)
	state.On(app.EventProjectLoaded, func(data interface{}) {
		c.log.Debug("Project loaded", zap.Any("path", data))
	})
	state.On(app.EventProjectSaved, func(data interface{}) {
		c.log.Info("Saved project", zap.Any("path", data))
	})

	if c.projectPath != "" {
		if _, err := os.Stat(c.projectPath); err == nil {
			if err := state.LoadProject(c.projectPath); err != nil {
				return nil, err
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	if len(args) > 0 {
		if err := state.OpenMisties(args[0]); err != nil {
			return nil, err
		}
	}
	if state.Misties.Len() == 0 {
		return nil, errors.New("no ties: give a mistie file or a project that names one")
	}
	return state, nil
}

// solverSettings returns the settings of a loaded project with the solver
// flags given on the command line applied on top. Without a project the
// configured settings are used.
func (c *cli) solverSettings(cmd *cobra.Command, state *app.State) config.SolverSettings {
	if state.ProjectPath == "" {
		return c.settings.Solver
	}
	s := state.Project.Settings
	flags := cmd.Flags()
	if flags.Changed("min-quality") {
		s.MinQuality = c.settings.Solver.MinQuality
	}
	if flags.Changed("max-iter") {
		s.MaxIter = c.settings.Solver.MaxIter
	}
	if flags.Changed("damping") {
		s.Damping = c.settings.Solver.Damping
	}
	return s
}

// solve computes all three corrections. The project's reference lines are
// used unless -r was given.
func (c *cli) solve(cmd *cobra.Command, args []string, refs []string) (*app.State, []correction.Result, error) {
	state, err := c.session(args)
	if err != nil {
		return nil, nil, err
	}
	if !cmd.Flags().Changed("ref") && state.ProjectPath != "" {
		refs = state.Project.ReferenceLines
	}
	results, err := state.Calculate(c.solverSettings(cmd, state), refs...)
	if err != nil {
		return nil, nil, err
	}
	return state, results, nil
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <corrections>",
		Short: "Print a correction file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tbl := correction.NewTable()
			if err := tbl.Read(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.CorrectionTable(tbl))
			return nil
		},
	}
}

func (c *cli) calcCmd() *cobra.Command {
	var (
		output  string
		refs    []string
		compare bool
		chart   string
	)
	cmd := &cobra.Command{
		Use:   "calc [misties]",
		Short: "Compute line corrections from a mistie file or project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, results, err := c.solve(cmd, args, refs)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printResults(out, results)
			fmt.Fprintln(out, report.CorrectionTable(state.Corrections))

			if compare {
				used := state.Project.ReferenceLines
				printComparisons(out, compareDirect(state.Misties, state.Corrections, correction.NewReferences(used...), state.Project.Settings.MinQuality))
			}
			if chart != "" {
				if err := report.PlotConvergence(chart, results...); err != nil {
					return err
				}
			}
			if output != "" {
				if err := state.SaveCorrections(output); err != nil {
					return err
				}
				c.log.Info("Saved corrections", zap.String("path", output))
			}
			if c.projectPath != "" {
				return state.SaveProject(c.projectPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the correction table to this file")
	cmd.Flags().StringSliceVarP(&refs, "ref", "r", nil, "reference line held at the identity correction (repeatable)")
	cmd.Flags().BoolVar(&compare, "compare", false, "compare with the direct least-squares solution")
	cmd.Flags().StringVar(&chart, "plot", "", "also write a convergence chart to this file")
	return cmd
}

func (c *cli) residualsCmd() *cobra.Command {
	var (
		output  string
		summary bool
	)
	cmd := &cobra.Command{
		Use:   "residuals [misties [corrections]]",
		Short: "Export ties with their misties after correction as CSV",
		Long: `Export ties with their misties after correction as CSV.

Without arguments the ties and correction file of --project are used.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows []report.Row
			withResiduals := false
			if len(args) == 0 {
				if c.projectPath == "" {
					return errors.New("give a mistie file or --project")
				}
				state, err := c.session(nil)
				if err != nil {
					return err
				}
				rows = state.Residuals()
				withResiduals = state.Corrections.Size() > 0
			} else {
				set := mistie.NewSet()
				if err := set.Read(args[0]); err != nil {
					return err
				}
				tbl := correction.NewTable()
				if len(args) == 2 {
					if err := tbl.Read(args[1]); err != nil {
						return err
					}
				}
				rows = report.Residuals(set, tbl)
				withResiduals = tbl.Size() > 0
			}

			out := cmd.OutOrStdout()
			if summary {
				s := report.Summarize(rows, c.settings.Solver.MinQuality)
				fmt.Fprintf(out, "%d of %d ties with quality >= %g\n", s.Ties, len(rows), c.settings.Solver.MinQuality)
				fmt.Fprintln(out, report.SummaryTable(s))
				return nil
			}
			if output != "" {
				return writeResidualsFile(output, rows, withResiduals)
			}
			return report.WriteResidualsCSV(out, rows, withResiduals)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the CSV to this file instead of stdout")
	cmd.Flags().BoolVar(&summary, "summary", false, "print residual statistics instead of the CSV")
	return cmd
}

func (c *cli) mergeCmd() *cobra.Command {
	var (
		output  string
		replace bool
	)
	cmd := &cobra.Command{
		Use:   "merge <base> <other>",
		Short: "Merge the ties of one mistie file into another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			state := app.NewState(c.log)
			if err := state.OpenMisties(args[0]); err != nil {
				return err
			}
			added, replaced, err := state.MergeMisties(args[1], replace)
			if err != nil {
				return err
			}

			dest := output
			if dest == "" {
				dest = args[0]
			}
			if err := state.Misties.Write(dest); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d ties added, %d replaced, %d total\n", added, replaced, state.Misties.Len())
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the merged ties here instead of over <base>")
	cmd.Flags().BoolVar(&replace, "replace", false, "replace existing ties at the same crossing")
	return cmd
}

func (c *cli) plotCmd() *cobra.Command {
	var (
		output string
		refs   []string
	)
	cmd := &cobra.Command{
		Use:   "plot [misties]",
		Short: "Chart the RMS mistie per iteration of a calculation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, results, err := c.solve(cmd, args, refs)
			if err != nil {
				return err
			}
			if err := report.PlotConvergence(output, results...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "convergence.png", "chart file; the extension selects the format")
	cmd.Flags().StringSliceVarP(&refs, "ref", "r", nil, "reference line held at the identity correction (repeatable)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func printResults(w io.Writer, results []correction.Result) {
	for _, r := range results {
		state := "stopped"
		if r.Converged {
			state = "converged"
		}
		fmt.Fprintf(w, "%-9s  ties=%-4d  rms %.6g -> %.6g  after %d iterations (%s)\n",
			r.Kind, r.Qualifying, r.Initial, r.Final, r.Iterations, state)
	}
}

func writeResidualsFile(path string, rows []report.Row, withResiduals bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteResidualsCSV(f, rows, withResiduals); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// comparison is the largest disagreement of one kind of correction with the
// direct least-squares solution.
type comparison struct {
	kind  correction.Kind
	worst float64
	line  string
	err   error
}

// compareDirect compares the relaxed corrections in tbl with the direct
// least-squares solution. Amplitudes are compared as log10 scales. Lines in a
// group without a reference line are only fixed up to a common offset, so the
// mean difference of each such group is removed first. Phase differences are
// taken modulo 360, since the relaxation may unwrap tie phases by full turns.
func compareDirect(set *mistie.Set, tbl *correction.Table, refs correction.References, minQuality float64) []comparison {
	kinds := []struct {
		kind  correction.Kind
		solve func(*mistie.Set, correction.References, float64) (network.Solution, error)
		value func(name string) float64
	}{
		{correction.KindZ, network.SolveZ, func(name string) float64 { z, _, _, _ := tbl.Get(name); return z }},
		{correction.KindPhase, network.SolvePhase, func(name string) float64 { _, p, _, _ := tbl.Get(name); return p }},
		{correction.KindAmp, network.SolveAmp, func(name string) float64 { _, _, a, _ := tbl.Get(name); return a }},
	}
	groups := network.UnanchoredGroups(set, refs, minQuality)

	var out []comparison
	for _, k := range kinds {
		sol, err := k.solve(set, refs, minQuality)
		if err != nil {
			out = append(out, comparison{kind: k.kind, err: err})
			continue
		}

		diff := make(map[string]float64, len(sol))
		for name, want := range sol {
			got := k.value(name)
			switch k.kind {
			case correction.KindAmp:
				diff[name] = math.Log10(got) - math.Log10(want)
			case correction.KindPhase:
				diff[name] = math.Remainder(got-want, 360)
			default:
				diff[name] = got - want
			}
		}
		for _, g := range groups {
			mean := 0.0
			for _, name := range g {
				mean += diff[name]
			}
			mean /= float64(len(g))
			for _, name := range g {
				diff[name] -= mean
			}
		}

		c := comparison{kind: k.kind}
		for name, d := range diff {
			if d = math.Abs(d); d > c.worst || c.line == "" {
				c.worst, c.line = d, name
			}
		}
		out = append(out, c)
	}
	return out
}

func printComparisons(w io.Writer, cs []comparison) {
	for _, c := range cs {
		switch {
		case errors.Is(c.err, network.ErrNoTies):
			fmt.Fprintf(w, "%-9s  no qualifying ties\n", c.kind)
		case c.err != nil:
			fmt.Fprintf(w, "%-9s  direct solve failed: %v\n", c.kind, c.err)
		default:
			fmt.Fprintf(w, "%-9s  max difference from direct solution %.6g (line %s)\n", c.kind, c.worst, c.line)
		}
	}
}
