package report

import (
	"fmt"

	"mistie-solver/internal/correction"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// CorrectionTable renders tbl as a bordered text table in table order.
func CorrectionTable(tbl *correction.Table) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Line", "Z Shift", "Phase (deg)", "Amplitude")
	for _, e := range tbl.Entries() {
		t.Row(e.Name,
			fmt.Sprintf("%.3f", e.ZShift),
			fmt.Sprintf("%.2f", e.Phase),
			fmt.Sprintf("%.4f", e.Amp))
	}
	return t.String()
}

// SummaryTable renders residual statistics, one row per kind of correction.
func SummaryTable(s Summary) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Residual", "Mean", "Std Dev", "RMS")
	for _, r := range []struct {
		name string
		st   Stats
	}{
		{"Z", s.Z},
		{"Phase (deg)", s.Phase},
		{"Amplitude", s.Amp},
	} {
		t.Row(r.name,
			fmt.Sprintf("%.4f", r.st.Mean),
			fmt.Sprintf("%.4f", r.st.StdDev),
			fmt.Sprintf("%.4f", r.st.RMS))
	}
	return t.String()
}
