// Package project provides mistie project file handling and persistence.
package project

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"mistie-solver/internal/config"
)

// CurrentVersion is written to every saved project.
const CurrentVersion = 1

// File represents a mistie project file (.mproj). It ties a mistie file to
// the correction table computed from it and the settings used.
type File struct {
	Version     int       `json:"version"`
	Name        string    `json:"name"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
	Description string    `json:"description,omitempty"`

	// Data file paths (relative to project file)
	MistiesPath     string `json:"misties,omitempty"`
	CorrectionsPath string `json:"corrections,omitempty"`

	// Lines held at the identity correction
	ReferenceLines []string `json:"reference_lines,omitempty"`

	Settings config.SolverSettings `json:"settings"`
}

// New creates a new project file with the default solver settings.
func New(name string) *File {
	now := time.Now()
	return &File{
		Version:  CurrentVersion,
		Name:     name,
		Created:  now,
		Modified: now,
		Settings: config.Default().Solver,
	}
}

// Load loads a project from a .mproj file. Settings outside their valid
// ranges are clamped.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	proj := File{Settings: config.Default().Solver}
	if err := json.Unmarshal(data, &proj); err != nil {
		return nil, err
	}
	proj.Settings.Normalize()

	return &proj, nil
}

// Save saves the project to a file.
func (p *File) Save(path string) error {
	p.Version = CurrentVersion
	p.Modified = time.Now()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// SetMisties sets the mistie file path (relative to project).
func (p *File) SetMisties(projectPath, path string) {
	p.MistiesPath = relativeTo(projectPath, path)
	p.Modified = time.Now()
}

// SetCorrections sets the correction file path (relative to project).
func (p *File) SetCorrections(projectPath, path string) {
	p.CorrectionsPath = relativeTo(projectPath, path)
	p.Modified = time.Now()
}

// SetReferenceLines replaces the reference lines, sorted and without duplicates.
func (p *File) SetReferenceLines(names ...string) {
	seen := make(map[string]bool, len(names))
	var refs []string
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		refs = append(refs, name)
	}
	sort.Strings(refs)
	p.ReferenceLines = refs
	p.Modified = time.Now()
}

// GetMistiesPath returns the absolute path to the mistie file, or "" when none is set.
func (p *File) GetMistiesPath(projectPath string) string {
	if p.MistiesPath == "" {
		return ""
	}
	return resolve(projectPath, p.MistiesPath)
}

// GetCorrectionsPath returns the absolute path to the correction file.
func (p *File) GetCorrectionsPath(projectPath string) string {
	if p.CorrectionsPath == "" {
		// Default: project_name_corrections.yaml
		base := projectPath[:len(projectPath)-len(filepath.Ext(projectPath))]
		return base + "_corrections.yaml"
	}
	return resolve(projectPath, p.CorrectionsPath)
}

func relativeTo(projectPath, path string) string {
	rel, err := filepath.Rel(filepath.Dir(projectPath), path)
	if err != nil {
		return path
	}
	return rel
}

func resolve(projectPath, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(projectPath), path)
}
