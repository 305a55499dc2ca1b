// Package app provides the mistie session state and its change events.
package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"mistie-solver/internal/config"
	"mistie-solver/internal/correction"
	"mistie-solver/internal/mistie"
	"mistie-solver/internal/project"
	"mistie-solver/internal/report"

	"go.uber.org/zap"
)

// ErrNoMisties is returned by operations that need a loaded mistie file.
var ErrNoMisties = errors.New("no mistie data loaded")

// State holds the session: the project, its ties and the corrections
// computed from them.
type State struct {
	mu sync.RWMutex

	// Project
	ProjectPath string
	Modified    bool
	Project     *project.File

	// Data
	Misties     *mistie.Set
	Corrections *correction.Table

	// Results of the last calculation, in Z, phase, amplitude order
	LastResults []correction.Result

	log    *zap.Logger
	solver *correction.Solver

	// Event listeners
	listeners map[EventType][]EventListener
}

// EventType identifies different session events.
type EventType int

const (
	EventProjectLoaded EventType = iota
	EventProjectSaved
	EventMistiesChanged
	EventCorrectionsComputed
	EventModified
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// NewState creates an empty session. A nil logger discards output.
func NewState(log *zap.Logger) *State {
	if log == nil {
		log = zap.NewNop()
	}
	return &State{
		Project:     project.New("untitled"),
		Misties:     mistie.NewSet(),
		Corrections: correction.NewTable(),
		log:         log,
		solver:      correction.NewSolver(log),
		listeners:   make(map[EventType][]EventListener),
	}
}

// On registers an event listener for the specified event type.
func (s *State) On(event EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (s *State) Emit(event EventType, data interface{}) {
	s.mu.RLock()
	listeners := s.listeners[event]
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// SetModified marks the project as modified and emits an event.
func (s *State) SetModified(modified bool) {
	s.mu.Lock()
	s.Modified = modified
	s.mu.Unlock()
	s.Emit(EventModified, modified)
}

// LoadProject loads a project and the mistie and correction files it names.
// A correction file that does not exist yet is not an error.
func (s *State) LoadProject(path string) error {
	proj, err := project.Load(path)
	if err != nil {
		return err
	}

	set := mistie.NewSet()
	if mp := proj.GetMistiesPath(path); mp != "" {
		if err := set.Read(mp); err != nil {
			return fmt.Errorf("loading misties: %w", err)
		}
	}

	tbl := correction.NewTable()
	if err := tbl.Read(proj.GetCorrectionsPath(path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading corrections: %w", err)
	}

	s.mu.Lock()
	s.ProjectPath = path
	s.Modified = false
	s.Project = proj
	s.Misties = set
	s.Corrections = tbl
	s.LastResults = nil
	s.mu.Unlock()

	s.log.Info("Loaded project",
		zap.String("path", path),
		zap.Int("ties", set.Len()),
		zap.Int("corrections", tbl.Size()))
	s.Emit(EventProjectLoaded, path)
	return nil
}

// SaveProject writes the project file and, when it has entries, the
// correction table next to it.
func (s *State) SaveProject(path string) error {
	s.mu.Lock()
	proj := s.Project
	if s.ProjectPath != path && proj.CorrectionsPath != "" {
		// Keep pointing at the same file from the new location.
		proj.SetCorrections(path, proj.GetCorrectionsPath(s.ProjectPath))
	}
	if s.ProjectPath != path && proj.MistiesPath != "" {
		proj.SetMisties(path, proj.GetMistiesPath(s.ProjectPath))
	}
	if proj.Name == "untitled" {
		proj.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	tbl := s.Corrections
	s.mu.Unlock()

	if tbl.Size() > 0 {
		if err := tbl.Write(proj.GetCorrectionsPath(path)); err != nil {
			return fmt.Errorf("saving corrections: %w", err)
		}
	}
	if err := proj.Save(path); err != nil {
		return err
	}

	s.mu.Lock()
	s.ProjectPath = path
	s.Modified = false
	s.mu.Unlock()

	s.Emit(EventProjectSaved, path)
	return nil
}

// OpenMisties replaces the ties with the contents of path. Corrections
// computed from the previous ties are discarded.
func (s *State) OpenMisties(path string) error {
	set := mistie.NewSet()
	if err := set.Read(path); err != nil {
		return err
	}

	s.mu.Lock()
	s.Misties = set
	s.Corrections.Erase()
	s.LastResults = nil
	s.setMistiesPath(path)
	s.mu.Unlock()

	s.log.Info("Opened mistie file", zap.String("path", path), zap.Int("ties", set.Len()))
	s.Emit(EventMistiesChanged, set.Len())
	s.SetModified(true)
	return nil
}

// MergeMisties adds the ties of path to the loaded ties. Ties between the
// same lines at the same traces are kept or replaced following replace.
// Existing corrections are discarded since they no longer fit the ties.
func (s *State) MergeMisties(path string, replace bool) (added, replaced int, err error) {
	other := mistie.NewSet()
	if err := other.Read(path); err != nil {
		return 0, 0, err
	}

	s.mu.Lock()
	added, replaced = s.Misties.Merge(other, replace)
	s.Corrections.Erase()
	s.LastResults = nil
	total := s.Misties.Len()
	s.mu.Unlock()

	s.log.Info("Merged mistie file",
		zap.String("path", path),
		zap.Int("added", added),
		zap.Int("replaced", replaced),
		zap.Bool("replace", replace))
	s.Emit(EventMistiesChanged, total)
	s.SetModified(true)
	return added, replaced, nil
}

// Calculate recomputes the correction table from the loaded ties. Reference
// lines that appear in no tie are reported but still accepted.
func (s *State) Calculate(settings config.SolverSettings, refs ...string) ([]correction.Result, error) {
	settings.Normalize()

	s.mu.Lock()
	if s.Misties.Len() == 0 {
		s.mu.Unlock()
		return nil, ErrNoMisties
	}

	known := make(map[string]bool)
	for _, name := range s.Misties.AllLines() {
		known[name] = true
	}
	for _, name := range refs {
		if !known[name] {
			s.log.Warn("Reference line is not part of any tie", zap.String("line", name))
		}
	}

	results, err := s.solver.ComputeAll(s.Corrections, s.Misties, correction.NewReferences(refs...), settings.Params(), settings.Deltas())
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.LastResults = results
	s.Project.Settings = settings
	s.Project.SetReferenceLines(refs...)
	s.mu.Unlock()

	s.Emit(EventCorrectionsComputed, results)
	s.SetModified(true)
	return results, nil
}

// SaveCorrections writes the correction table to path.
func (s *State) SaveCorrections(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Corrections.Write(path)
}

// Residuals returns every tie with its misties after the current corrections.
func (s *State) Residuals() []report.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return report.Residuals(s.Misties, s.Corrections)
}

// setMistiesPath records path in the project. Before the project has a
// location the path is kept absolute. Called with s.mu held.
func (s *State) setMistiesPath(path string) {
	if s.ProjectPath != "" {
		s.Project.SetMisties(s.ProjectPath, path)
		return
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	s.Project.MistiesPath = path
}
