package app

import (
	"path/filepath"
	"testing"

	"mistie-solver/internal/config"
	"mistie-solver/internal/correction"
	"mistie-solver/internal/mistie"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func writeTies(t *testing.T, dir, name string, ties ...mistie.Tie) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, mistie.NewSet(ties...).Write(path))
	return path
}

func triangle() []mistie.Tie {
	return []mistie.Tie{
		{LineA: "L2", LineB: "L1", TrcA: 1, TrcB: 1, ZDiff: 10, AmpDiff: 1, Quality: 1},
		{LineA: "L3", LineB: "L1", TrcA: 2, TrcB: 2, ZDiff: -4, AmpDiff: 1, Quality: 1},
		{LineA: "L3", LineB: "L2", TrcA: 3, TrcB: 3, ZDiff: -14, AmpDiff: 1, Quality: 1},
	}
}

func TestEvents(t *testing.T) {
	s := NewState(nil)

	var got []interface{}
	s.On(EventModified, func(data interface{}) { got = append(got, data) })
	s.On(EventModified, func(data interface{}) { got = append(got, "second") })

	s.SetModified(true)
	assert.True(t, s.Modified)
	assert.Equal(t, []interface{}{true, "second"}, got)

	s.Emit(EventProjectSaved, "ignored")
	assert.Len(t, got, 2)
}

func TestOpenMistiesAndCalculate(t *testing.T) {
	dir := t.TempDir()
	s := NewState(nil)

	changed := 0
	s.On(EventMistiesChanged, func(interface{}) { changed++ })
	var computed []correction.Result
	s.On(EventCorrectionsComputed, func(data interface{}) { computed = data.([]correction.Result) })

	require.NoError(t, s.OpenMisties(writeTies(t, dir, "ties.yaml", triangle()...)))
	assert.Equal(t, 1, changed)
	assert.Equal(t, 3, s.Misties.Len())
	assert.True(t, filepath.IsAbs(s.Project.MistiesPath))

	settings := config.Default().Solver
	settings.MaxIter = 100
	settings.ZDelta = 0
	results, err := s.Calculate(settings, "L1")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, results, computed)
	assert.Equal(t, results, s.LastResults)
	assert.Equal(t, []string{"L1"}, s.Project.ReferenceLines)
	assert.True(t, s.Modified)

	z1, _, _, ok := s.Corrections.Get("L1")
	require.True(t, ok)
	assert.Equal(t, 0.0, z1)
	z2, _, _, _ := s.Corrections.Get("L2")
	assert.InDelta(t, 10.0, z2, 1e-3)
	z3, _, _, _ := s.Corrections.Get("L3")
	assert.InDelta(t, -4.0, z3, 1e-3)

	for _, r := range s.Residuals() {
		assert.InDelta(t, 0.0, r.ResZ, 1e-3)
	}
}

func TestCalculateWithoutMisties(t *testing.T) {
	s := NewState(nil)
	_, err := s.Calculate(config.Default().Solver)
	assert.ErrorIs(t, err, ErrNoMisties)
}

func TestCalculateWarnsOnUnknownReference(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := NewState(zap.New(core))
	s.Misties = mistie.NewSet(triangle()...)

	_, err := s.Calculate(config.Default().Solver, "L9")
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("Reference line is not part of any tie").Len())
}

func TestMergeMistiesErasesCorrections(t *testing.T) {
	dir := t.TempDir()
	s := NewState(nil)
	s.Misties = mistie.NewSet(triangle()...)
	_, err := s.Calculate(config.Default().Solver)
	require.NoError(t, err)
	require.Greater(t, s.Corrections.Size(), 0)

	more := writeTies(t, dir, "more.yaml",
		mistie.Tie{LineA: "L1", LineB: "L2", TrcA: 1, TrcB: 1, ZDiff: -9, AmpDiff: 1, Quality: 1},
		mistie.Tie{LineA: "L4", LineB: "L1", TrcA: 5, TrcB: 5, ZDiff: 1, AmpDiff: 1, Quality: 1},
	)

	added, replaced, err := s.MergeMisties(more, true)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, replaced)
	assert.Equal(t, 4, s.Misties.Len())
	assert.Equal(t, 0, s.Corrections.Size())
	assert.Nil(t, s.LastResults)

	_, _, err = s.MergeMisties(filepath.Join(dir, "missing.yaml"), false)
	assert.Error(t, err)
	assert.Equal(t, 4, s.Misties.Len())
}

func TestSaveAndLoadProject(t *testing.T) {
	dir := t.TempDir()
	s := NewState(nil)
	require.NoError(t, s.OpenMisties(writeTies(t, dir, "ties.yaml", triangle()...)))
	_, err := s.Calculate(config.Default().Solver, "L1")
	require.NoError(t, err)

	path := filepath.Join(dir, "survey.mproj")
	saved := false
	s.On(EventProjectSaved, func(interface{}) { saved = true })
	require.NoError(t, s.SaveProject(path))
	assert.True(t, saved)
	assert.False(t, s.Modified)
	assert.Equal(t, "survey", s.Project.Name)
	assert.Equal(t, "ties.yaml", s.Project.MistiesPath)
	assert.FileExists(t, filepath.Join(dir, "survey_corrections.yaml"))

	loaded := NewState(nil)
	require.NoError(t, loaded.LoadProject(path))
	assert.Equal(t, path, loaded.ProjectPath)
	assert.Equal(t, 3, loaded.Misties.Len())
	assert.Equal(t, s.Corrections.Entries(), loaded.Corrections.Entries())
	assert.Equal(t, []string{"L1"}, loaded.Project.ReferenceLines)
}

func TestLoadProjectWithoutCorrections(t *testing.T) {
	dir := t.TempDir()
	s := NewState(nil)
	require.NoError(t, s.OpenMisties(writeTies(t, dir, "ties.yaml", triangle()...)))
	path := filepath.Join(dir, "fresh.mproj")
	require.NoError(t, s.SaveProject(path))

	loaded := NewState(nil)
	require.NoError(t, loaded.LoadProject(path))
	assert.Equal(t, 0, loaded.Corrections.Size())
	assert.Equal(t, 3, loaded.Misties.Len())
}

func TestSaveCorrections(t *testing.T) {
	s := NewState(nil)
	s.Corrections.Set("L1", 1, 2, 3)
	path := filepath.Join(t.TempDir(), "cor.yaml")
	require.NoError(t, s.SaveCorrections(path))

	tbl := correction.NewTable()
	require.NoError(t, tbl.Read(path))
	assert.Equal(t, s.Corrections.Entries(), tbl.Entries())
}
