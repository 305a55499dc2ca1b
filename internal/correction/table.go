// Package correction computes and stores per-line mistie corrections.
//
// A Table holds one Z shift, phase rotation and amplitude scale per survey line.
// The Solver fills a Table by damped relaxation over a network of measured ties
// so that the corrected misties at the crossings are as small as possible.
package correction

// Identity corrections, used for lines the table does not know.
const (
	DefaultZShift = 0.0
	DefaultPhase  = 0.0
	DefaultAmp    = 1.0
)

// Entry is one row of a correction table.
type Entry struct {
	Name   string
	ZShift float64
	Phase  float64 // degrees
	Amp    float64
}

// Table is an insertion-ordered set of per-line corrections with unique names.
// The zero value is an empty table ready to use. A Table is not safe for
// concurrent use.
type Table struct {
	entries []Entry
	index   map[string]int
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{}
}

// Size returns the number of lines in the table.
func (t *Table) Size() int {
	return len(t.entries)
}

// Index returns the position of name, or -1 if the table has no such line.
func (t *Table) Index(name string) int {
	if idx, ok := t.index[name]; ok {
		return idx
	}
	return -1
}

func (t *Table) inRange(idx int) bool {
	return idx >= 0 && idx < len(t.entries)
}

// Erase removes every entry.
func (t *Table) Erase() {
	t.entries = nil
	t.index = nil
}

// Entries returns a copy of the rows in insertion order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// DataName returns the line name at idx, or "" when idx is out of range.
func (t *Table) DataName(idx int) string {
	if !t.inRange(idx) {
		return ""
	}
	return t.entries[idx].Name
}

// SetDataName renames the entry at idx. It does nothing when idx is out of range
// or when another entry already uses name.
func (t *Table) SetDataName(idx int, name string) {
	if !t.inRange(idx) {
		return
	}
	if other, ok := t.index[name]; ok && other != idx {
		return
	}
	delete(t.index, t.entries[idx].Name)
	t.entries[idx].Name = name
	t.index[name] = idx
}

// ZCor returns the Z shift at idx, or 0 when idx is out of range.
func (t *Table) ZCor(idx int) float64 {
	if !t.inRange(idx) {
		return DefaultZShift
	}
	return t.entries[idx].ZShift
}

// PhaseCor returns the phase rotation at idx, or 0 when idx is out of range.
func (t *Table) PhaseCor(idx int) float64 {
	if !t.inRange(idx) {
		return DefaultPhase
	}
	return t.entries[idx].Phase
}

// AmpCor returns the amplitude scale at idx, or 1 when idx is out of range.
func (t *Table) AmpCor(idx int) float64 {
	if !t.inRange(idx) {
		return DefaultAmp
	}
	return t.entries[idx].Amp
}

// SetZCorAt sets the Z shift at idx. Out of range indices are ignored.
func (t *Table) SetZCorAt(idx int, v float64) {
	if t.inRange(idx) {
		t.entries[idx].ZShift = v
	}
}

// SetPhaseCorAt sets the phase rotation at idx. Out of range indices are ignored.
func (t *Table) SetPhaseCorAt(idx int, v float64) {
	if t.inRange(idx) {
		t.entries[idx].Phase = v
	}
}

// SetAmpCorAt sets the amplitude scale at idx. Out of range indices are ignored.
func (t *Table) SetAmpCorAt(idx int, v float64) {
	if t.inRange(idx) {
		t.entries[idx].Amp = v
	}
}

// upsert returns the index of name, appending an identity entry first if needed.
func (t *Table) upsert(name string) int {
	if idx, ok := t.index[name]; ok {
		return idx
	}
	if t.index == nil {
		t.index = make(map[string]int)
	}
	t.entries = append(t.entries, Entry{Name: name, ZShift: DefaultZShift, Phase: DefaultPhase, Amp: DefaultAmp})
	idx := len(t.entries) - 1
	t.index[name] = idx
	return idx
}

// SetZCor sets the Z shift of name, adding the line if it is missing.
func (t *Table) SetZCor(name string, v float64) {
	t.entries[t.upsert(name)].ZShift = v
}

// SetPhaseCor sets the phase rotation of name, adding the line if it is missing.
func (t *Table) SetPhaseCor(name string, v float64) {
	t.entries[t.upsert(name)].Phase = v
}

// SetAmpCor sets the amplitude scale of name, adding the line if it is missing.
func (t *Table) SetAmpCor(name string, v float64) {
	t.entries[t.upsert(name)].Amp = v
}

// Set sets all three corrections of name, adding the line if it is missing.
func (t *Table) Set(name string, zshift, phase, amp float64) {
	idx := t.upsert(name)
	t.entries[idx].ZShift = zshift
	t.entries[idx].Phase = phase
	t.entries[idx].Amp = amp
}

// Get returns the corrections of name. Unknown lines return the identity
// correction and ok == false.
func (t *Table) Get(name string) (zshift, phase, amp float64, ok bool) {
	idx, ok := t.index[name]
	if !ok {
		return DefaultZShift, DefaultPhase, DefaultAmp, false
	}
	e := t.entries[idx]
	return e.ZShift, e.Phase, e.Amp, true
}
