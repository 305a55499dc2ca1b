// Package report turns tie sets and correction tables into the tables, CSV
// exports and charts shown to users.
package report

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"

	"mistie-solver/internal/correction"
	"mistie-solver/internal/mistie"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Column headers of the residual export.
var (
	tieColumns      = []string{"LineA", "LineB", "TrcA", "TrcB", "X", "Y", "Z Mistie", "Phase Rotation (deg)", "Amplitude Scalar", "Quality"}
	residualColumns = []string{"Res Z", "Res Phase", "Res Amp"}
)

// Row is one tie with its misties after correction.
type Row struct {
	mistie.Tie
	ResZ     float64
	ResPhase float64
	ResAmp   float64
}

// Residuals applies tbl to every tie of set.
func Residuals(set *mistie.Set, tbl *correction.Table) []Row {
	rows := make([]Row, set.Len())
	for idx := range rows {
		rows[idx] = Row{
			Tie:      set.Tie(idx),
			ResZ:     set.ZMistieWith(tbl, idx),
			ResPhase: set.PhaseMistieWith(tbl, idx),
			ResAmp:   set.AmpMistieWith(tbl, idx),
		}
	}
	return rows
}

// WriteResidualsCSV writes rows with a header line. The residual columns are only
// written when withResiduals is set, matching an export made before any
// corrections exist.
func WriteResidualsCSV(w io.Writer, rows []Row, withResiduals bool) error {
	cw := csv.NewWriter(w)

	header := append([]string{}, tieColumns...)
	if withResiduals {
		header = append(header, residualColumns...)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range rows {
		rec := []string{
			r.LineA, r.LineB,
			strconv.Itoa(r.TrcA), strconv.Itoa(r.TrcB),
			formatFloat(r.Pos.X), formatFloat(r.Pos.Y),
			formatFloat(r.ZDiff), formatFloat(r.PhaseDiff), formatFloat(r.AmpDiff), formatFloat(r.Quality),
		}
		if withResiduals {
			rec = append(rec, formatFloat(r.ResZ), formatFloat(r.ResPhase), formatFloat(r.ResAmp))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Stats summarizes one residual column.
type Stats struct {
	Mean   float64
	StdDev float64
	RMS    float64
}

// Summary holds residual statistics over the ties that met a quality threshold.
type Summary struct {
	Ties  int
	Z     Stats
	Phase Stats
	Amp   Stats
}

// Summarize computes residual statistics over the rows with Quality >= minQuality.
func Summarize(rows []Row, minQuality float64) Summary {
	var z, phase, amp []float64
	for _, r := range rows {
		if r.Quality < minQuality {
			continue
		}
		z = append(z, r.ResZ)
		phase = append(phase, r.ResPhase)
		amp = append(amp, r.ResAmp)
	}
	return Summary{
		Ties:  len(z),
		Z:     summarize(z),
		Phase: summarize(phase),
		Amp:   summarize(amp),
	}
}

func summarize(xs []float64) Stats {
	if len(xs) == 0 {
		return Stats{}
	}
	s := Stats{
		Mean: stat.Mean(xs, nil),
		RMS:  floats.Norm(xs, 2) / math.Sqrt(float64(len(xs))),
	}
	if len(xs) > 1 {
		s.StdDev = stat.StdDev(xs, nil)
	}
	return s
}
