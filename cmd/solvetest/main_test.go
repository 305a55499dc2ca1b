package main

import (
	"math/rand"
	"testing"

	"mistie-solver/internal/correction"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTieGridIsConsistent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	lines := buildGrid(rng, 3)
	require.Len(t, lines, 6)

	set := tieGrid(rng, lines, 3, 0)
	require.Equal(t, 9, set.Len())

	tbl := correction.NewTable()
	for name, tr := range lines {
		tbl.Set(name, tr.z, tr.phase, tr.amp)
	}
	for idx := 0; idx < set.Len(); idx++ {
		assert.InDelta(t, 0.0, set.ZMistieWith(tbl, idx), 1e-9)
		assert.InDelta(t, 0.0, set.PhaseMistieWith(tbl, idx), 1e-9)
		assert.InDelta(t, 1.0, set.AmpMistieWith(tbl, idx), 1e-9)
	}
}
