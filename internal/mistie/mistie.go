// Package mistie holds the measured misties at line crossings.
//
// A Set is an ordered list of ties. Each tie records the Z, phase and amplitude
// difference measured between two lines where they cross, in the sense line A
// relative to line B, plus a normalized quality used to filter ties before solving.
package mistie

import (
	"sort"

	"mistie-solver/pkg/geometry"
)

// Corrections is the read side of a per-line correction table. Lines the table
// does not know must read as the identity correction (0, 0, 1).
type Corrections interface {
	Get(name string) (zshift, phase, amp float64, ok bool)
}

// Tie is one measured crossing between two named lines.
type Tie struct {
	LineA string `yaml:"linea"`
	LineB string `yaml:"lineb"`
	TrcA  int    `yaml:"trca"`
	TrcB  int    `yaml:"trcb"`

	Pos geometry.Point2D `yaml:",inline"`

	ZDiff     float64 `yaml:"zdiff"`
	PhaseDiff float64 `yaml:"phasediff"`
	AmpDiff   float64 `yaml:"ampdiff"`
	Quality   float64 `yaml:"quality"`
}

// Set is an ordered collection of ties.
type Set struct {
	ties []Tie
}

// NewSet creates a set holding a copy of ties.
func NewSet(ties ...Tie) *Set {
	s := &Set{}
	s.ties = append(s.ties, ties...)
	return s
}

// Len returns the number of ties.
func (s *Set) Len() int {
	return len(s.ties)
}

// Add appends a tie.
func (s *Set) Add(t Tie) {
	s.ties = append(s.ties, t)
}

// Tie returns the tie at idx. Out of range indices return the zero Tie.
func (s *Set) Tie(idx int) Tie {
	if idx < 0 || idx >= len(s.ties) {
		return Tie{}
	}
	return s.ties[idx]
}

// Ties returns a copy of all ties in order.
func (s *Set) Ties() []Tie {
	out := make([]Tie, len(s.ties))
	copy(out, s.ties)
	return out
}

// Clone returns a deep copy of the set.
func (s *Set) Clone() *Set {
	return NewSet(s.ties...)
}

// Lines returns the names of the two lines of tie idx.
func (s *Set) Lines(idx int) (lineA, lineB string) {
	t := s.Tie(idx)
	return t.LineA, t.LineB
}

// Quality returns the quality of tie idx.
func (s *Set) Quality(idx int) float64 {
	return s.Tie(idx).Quality
}

// PhaseDiff returns the raw phase difference of tie idx in degrees.
func (s *Set) PhaseDiff(idx int) float64 {
	return s.Tie(idx).PhaseDiff
}

// ZMistieWith returns the Z mistie of tie idx after applying c:
// ZDiff + zshift(B) - zshift(A).
func (s *Set) ZMistieWith(c Corrections, idx int) float64 {
	t := s.Tie(idx)
	zA, _, _, _ := c.Get(t.LineA)
	zB, _, _, _ := c.Get(t.LineB)
	return t.ZDiff + zB - zA
}

// PhaseMistieWith returns the phase mistie of tie idx after applying c:
// PhaseDiff + phase(B) - phase(A). The result is not wrapped.
func (s *Set) PhaseMistieWith(c Corrections, idx int) float64 {
	t := s.Tie(idx)
	_, pA, _, _ := c.Get(t.LineA)
	_, pB, _, _ := c.Get(t.LineB)
	return t.PhaseDiff + pB - pA
}

// AmpMistieWith returns the amplitude mistie ratio of tie idx after applying c:
// AmpDiff * amp(B) / amp(A).
func (s *Set) AmpMistieWith(c Corrections, idx int) float64 {
	t := s.Tie(idx)
	_, _, aA, _ := c.Get(t.LineA)
	_, _, aB, _ := c.Get(t.LineB)
	return t.AmpDiff * aB / aA
}

// AllLines returns the sorted, unique names of every line that appears in a tie.
func (s *Set) AllLines() []string {
	seen := make(map[string]struct{})
	for _, t := range s.ties {
		seen[t.LineA] = struct{}{}
		seen[t.LineB] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
