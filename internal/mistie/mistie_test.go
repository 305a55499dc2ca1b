package mistie

import (
	"os"
	"path/filepath"
	"testing"

	"mistie-solver/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedCorrections is a map backed Corrections for tests.
type fixedCorrections map[string][3]float64

func (f fixedCorrections) Get(name string) (float64, float64, float64, bool) {
	c, ok := f[name]
	if !ok {
		return 0, 0, 1, false
	}
	return c[0], c[1], c[2], true
}

func sampleSet() *Set {
	return NewSet(
		Tie{LineA: "L1", LineB: "L2", TrcA: 10, TrcB: 200, Pos: geometry.NewPoint2D(1000, 2000), ZDiff: 12, PhaseDiff: 30, AmpDiff: 2, Quality: 0.9},
		Tie{LineA: "L3", LineB: "L1", TrcA: 5, TrcB: 55, ZDiff: -4, PhaseDiff: -10, AmpDiff: 0.5, Quality: 0.3},
	)
}

func TestMistieWith(t *testing.T) {
	set := sampleSet()
	cor := fixedCorrections{
		"L1": {2, 10, 4},
		"L2": {-3, 5, 0.5},
	}

	assert.Equal(t, 12.0-3-2, set.ZMistieWith(cor, 0))
	assert.Equal(t, 30.0+5-10, set.PhaseMistieWith(cor, 0))
	assert.Equal(t, 2*0.5/4.0, set.AmpMistieWith(cor, 0))

	// L3 is unknown and reads as the identity correction.
	assert.Equal(t, -4.0+2, set.ZMistieWith(cor, 1))
	assert.Equal(t, -10.0+10, set.PhaseMistieWith(cor, 1))
	assert.Equal(t, 0.5*4, set.AmpMistieWith(cor, 1))
}

func TestSetAccessors(t *testing.T) {
	set := sampleSet()

	a, b := set.Lines(1)
	assert.Equal(t, "L3", a)
	assert.Equal(t, "L1", b)
	assert.Equal(t, 0.9, set.Quality(0))
	assert.Equal(t, 30.0, set.PhaseDiff(0))
	assert.Equal(t, Tie{}, set.Tie(5))
	assert.Equal(t, []string{"L1", "L2", "L3"}, set.AllLines())

	clone := set.Clone()
	clone.Add(Tie{LineA: "X", LineB: "Y"})
	ties := clone.Ties()
	ties[0].ZDiff = 99
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, 12.0, set.Tie(0).ZDiff)
	assert.Equal(t, 12.0, clone.Tie(0).ZDiff)
}

func TestMerge(t *testing.T) {
	other := NewSet(
		// Same crossing as the first tie, seen from the other line.
		Tie{LineA: "L2", LineB: "L1", TrcA: 200, TrcB: 10, ZDiff: -11, Quality: 1},
		Tie{LineA: "L4", LineB: "L2", TrcA: 1, TrcB: 2, ZDiff: 3, Quality: 1},
	)

	t.Run("keep", func(t *testing.T) {
		set := sampleSet()
		added, replaced := set.Merge(other, false)
		assert.Equal(t, 1, added)
		assert.Equal(t, 0, replaced)
		assert.Equal(t, 3, set.Len())
		assert.Equal(t, 12.0, set.Tie(0).ZDiff)
		assert.Equal(t, "L4", set.Tie(2).LineA)
	})

	t.Run("replace", func(t *testing.T) {
		set := sampleSet()
		added, replaced := set.Merge(other, true)
		assert.Equal(t, 1, added)
		assert.Equal(t, 1, replaced)
		assert.Equal(t, 3, set.Len())
		assert.Equal(t, -11.0, set.Tie(0).ZDiff)
		assert.Equal(t, "L2", set.Tie(0).LineA)
	})
}

func TestReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "misties.yaml")
	src := sampleSet()
	require.NoError(t, src.Write(path))

	dst := NewSet()
	require.NoError(t, dst.Read(path))
	assert.Equal(t, src.Ties(), dst.Ties())
}

func TestReadFailureKeepsState(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"self tie":     "ties:\n  - {linea: L1, lineb: L1, quality: 1}\n",
		"missing line": "ties:\n  - {linea: L1, quality: 1}\n",
		"not finite":   "ties:\n  - {linea: L1, lineb: L2, zdiff: .nan}\n",
		"bad yaml":     "ties: [\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

			set := sampleSet()
			assert.Error(t, set.Read(path))
			assert.Equal(t, sampleSet().Ties(), set.Ties())
		})
	}

	set := sampleSet()
	assert.Error(t, set.Read(filepath.Join(dir, "absent.yaml")))
	assert.Equal(t, 2, set.Len())
}
