package mistie

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrMalformed is returned when a mistie file parses but holds an invalid tie.
var ErrMalformed = errors.New("malformed mistie file")

type fileDoc struct {
	Ties []Tie `yaml:"ties"`
}

// Read loads a mistie file. On success the set's contents are replaced; on any
// error the set is left untouched.
func (s *Set) Read(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading misties: %w", err)
	}

	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing misties %s: %w", path, err)
	}
	for i, t := range doc.Ties {
		if err := validate(t); err != nil {
			return fmt.Errorf("%w: tie %d: %v", ErrMalformed, i, err)
		}
	}

	s.ties = doc.Ties
	return nil
}

// Write saves the set to path.
func (s *Set) Write(path string) error {
	data, err := yaml.Marshal(fileDoc{Ties: s.ties})
	if err != nil {
		return fmt.Errorf("encoding misties: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing misties: %w", err)
	}
	return nil
}

func validate(t Tie) error {
	if t.LineA == "" || t.LineB == "" {
		return errors.New("missing line name")
	}
	if t.LineA == t.LineB {
		return fmt.Errorf("line %q tied to itself", t.LineA)
	}
	for _, v := range []float64{t.ZDiff, t.PhaseDiff, t.AmpDiff, t.Quality, t.Pos.X, t.Pos.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("non-finite value")
		}
	}
	return nil
}
