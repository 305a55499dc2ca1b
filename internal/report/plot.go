package report

import (
	"errors"
	"fmt"

	"mistie-solver/internal/correction"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// ConvergencePoints returns the RMS history of res as chart points, starting
// with the initial RMS at iteration 0. Values are divided by the initial RMS
// so that the three kinds share one axis; a zero initial RMS is left as is.
func ConvergencePoints(res correction.Result) plotter.XYs {
	pts := make(plotter.XYs, len(res.History)+1)
	scale := 1.0
	if res.Initial != 0 {
		scale = 1 / res.Initial
	}
	pts[0].X, pts[0].Y = 0, res.Initial*scale
	for i, rms := range res.History {
		pts[i+1].X = float64(i + 1)
		pts[i+1].Y = rms * scale
	}
	return pts
}

// PlotConvergence writes a line chart of relative RMS mistie per iteration.
// The image format follows the extension of path (png, svg, pdf, ...).
func PlotConvergence(path string, results ...correction.Result) error {
	if len(results) == 0 {
		return errors.New("no results to plot")
	}

	p := plot.New()
	p.Title.Text = "Mistie correction convergence"
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "RMS mistie / initial RMS"
	p.Add(plotter.NewGrid())

	var lines []interface{}
	for _, res := range results {
		lines = append(lines, res.Kind.String(), ConvergencePoints(res))
	}
	if err := plotutil.AddLinePoints(p, lines...); err != nil {
		return fmt.Errorf("building convergence plot: %w", err)
	}

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("saving convergence plot: %w", err)
	}
	return nil
}
