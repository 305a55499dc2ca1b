// Package config loads the solver settings from an optional YAML file and
// MISTIE_* environment variables on top of built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mistie-solver/internal/correction"

	"github.com/spf13/viper"
)

// Settings is the full configuration.
type Settings struct {
	Solver SolverSettings `mapstructure:"solver"`
	Log    LogSettings    `mapstructure:"log"`
}

// SolverSettings are the inputs of a correction calculation.
type SolverSettings struct {
	MinQuality float64 `mapstructure:"minquality" json:"min_quality"`
	MaxIter    int     `mapstructure:"maxiter" json:"max_iter"`
	Damping    float64 `mapstructure:"damping" json:"damping"`
	ZDelta     float64 `mapstructure:"zdelta" json:"z_delta"`
	PhaseDelta float64 `mapstructure:"phasedelta" json:"phase_delta"`
	AmpDelta   float64 `mapstructure:"ampdelta" json:"amp_delta"`
}

// LogSettings controls logging.
type LogSettings struct {
	Verbose bool `mapstructure:"verbose"`
}

// Limits applied by Normalize.
const (
	MaxIterLimit   = 100
	DefaultDamping = 0.75
)

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("solver.minquality", 0.5)
	v.SetDefault("solver.maxiter", 20)
	v.SetDefault("solver.damping", DefaultDamping)
	v.SetDefault("solver.zdelta", 0.01)
	v.SetDefault("solver.phasedelta", 0.01)
	v.SetDefault("solver.ampdelta", 0.001)

	v.SetDefault("log.verbose", false)
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	v := viper.New()
	SetDefaults(v)
	var s Settings
	// Defaults always decode.
	_ = v.Unmarshal(&s)
	return s
}

// Load reads settings into v and decodes them. When path is empty the file
// mistie.yaml is looked up in the working directory and the user config
// directory, and a missing file is not an error.
func Load(v *viper.Viper, path string) (Settings, error) {
	SetDefaults(v)

	v.SetEnvPrefix("MISTIE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("mistie")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "mistie"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	s.Solver.Normalize()
	return s, nil
}

// Normalize clamps the settings to the ranges the calculation accepts:
// minimum quality to [0, 1], iterations to [1, 100], damping to (0, 1] and the
// minimum RMS changes to zero or more.
func (s *SolverSettings) Normalize() {
	s.MinQuality = clamp(s.MinQuality, 0, 1)
	if s.MaxIter < 1 {
		s.MaxIter = 1
	}
	if s.MaxIter > MaxIterLimit {
		s.MaxIter = MaxIterLimit
	}
	if !(s.Damping > 0) {
		s.Damping = DefaultDamping
	}
	if s.Damping > 1 {
		s.Damping = 1
	}
	s.ZDelta = nonNegative(s.ZDelta)
	s.PhaseDelta = nonNegative(s.PhaseDelta)
	s.AmpDelta = nonNegative(s.AmpDelta)
}

func nonNegative(v float64) float64 {
	if !(v >= 0) {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if !(v >= lo) {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Params returns the solver parameters. Delta is the Z delta; ComputeAll
// takes the per-kind deltas from Deltas.
func (s SolverSettings) Params() correction.Params {
	return correction.Params{
		MinQuality: s.MinQuality,
		MaxIter:    s.MaxIter,
		Damping:    s.Damping,
		Delta:      s.ZDelta,
	}
}

// Deltas returns the minimum RMS change of each kind of correction.
func (s SolverSettings) Deltas() correction.Deltas {
	return correction.Deltas{Z: s.ZDelta, Phase: s.PhaseDelta, Amp: s.AmpDelta}
}
