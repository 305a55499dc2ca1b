package correction

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ErrMalformed is returned when a correction file parses as YAML but does not
// hold a mapping of line name to [zshift, phase, amp].
var ErrMalformed = errors.New("malformed correction file")

// Read loads a correction file written by Write. The file is a YAML mapping from
// line name to a three element sequence in the fixed order [zshift, phase, amp]:
//
//	L1: [0, 0, 1]
//	L2: [-10, 12.5, 0.8]
//
// On success the table's contents are replaced. On any error the table is left
// untouched. Entries with an empty name are skipped.
func (t *Table) Read(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading corrections: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing corrections %s: %w", path, err)
	}

	loaded := NewTable()
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		root := doc.Content[0]
		if root.Kind != yaml.MappingNode {
			return fmt.Errorf("%w: top level is not a mapping", ErrMalformed)
		}
		for i := 0; i+1 < len(root.Content); i += 2 {
			key, val := root.Content[i], root.Content[i+1]
			var cor []float64
			if err := val.Decode(&cor); err != nil || len(cor) != 3 {
				return fmt.Errorf("%w: line %q (row %d): want [zshift, phase, amp]", ErrMalformed, key.Value, key.Line)
			}
			if key.Value == "" {
				continue
			}
			loaded.Set(key.Value, cor[0], cor[1], cor[2])
		}
	}

	t.entries = loaded.entries
	t.index = loaded.index
	return nil
}

// Write saves the table to path in insertion order. The data is written to a
// temporary file next to path and renamed into place.
func (t *Table) Write(path string) error {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range t.entries {
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Name},
			&yaml.Node{
				Kind:  yaml.SequenceNode,
				Style: yaml.FlowStyle,
				Content: []*yaml.Node{
					floatNode(e.ZShift), floatNode(e.Phase), floatNode(e.Amp),
				},
			})
	}
	data, err := yaml.Marshal(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}})
	if err != nil {
		return fmt.Errorf("encoding corrections: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".corrections-*")
	if err != nil {
		return fmt.Errorf("writing corrections: %w", err)
	}
	defer os.Remove(tmp.Name())

	// CreateTemp opens 0600; match the mode of the other data files.
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("writing corrections: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing corrections: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing corrections: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing corrections: %w", err)
	}
	return nil
}

func floatNode(v float64) *yaml.Node {
	var s string
	switch {
	case math.IsNaN(v):
		s = ".nan"
	case math.IsInf(v, 1):
		s = ".inf"
	case math.IsInf(v, -1):
		s = "-.inf"
	default:
		s = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Value: s}
}
