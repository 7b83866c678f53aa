// Package config holds every tunable of the engine, its defaults and the
// TOML file format.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/quillaja/kessler/internal/breakup"
	"github.com/quillaja/kessler/internal/lod"
	"github.com/quillaja/kessler/internal/sampler"
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Physics configures the force model and population limits.
type Physics struct {
	DragCeilingKm     float64 `toml:"drag_ceiling_km"`
	BallisticCoeff    float64 `toml:"ballistic_coeff"` // m²/kg
	ReentryAltitudeKm float64 `toml:"reentry_altitude_km"`
	AnomalyAltitudeKm float64 `toml:"anomaly_altitude_km"` // bodies below are reported as decaying
}

// Clock configures the fixed step and how much work one frame may do.
type Clock struct {
	FixedStepSec   float64 `toml:"fixed_step_sec"`
	MaxFrameMs     float64 `toml:"max_frame_ms"`
	MaxSubsteps    int     `toml:"max_substeps"`
	StepBudgetMs   float64 `toml:"step_budget_ms"` // wall time for one Step; 0 disables
	TimeMultiplier float64 `toml:"time_multiplier"`
}

// Proximity configures collision detection.
type Proximity struct {
	BroadPhaseKm float64 `toml:"broad_phase_km"`
	MarginKm     float64 `toml:"margin_km"`
}

// Cascade configures cascade levels.
type Cascade struct {
	CollisionsPerLevel int `toml:"collisions_per_level"`
	LevelCeiling       int `toml:"level_ceiling"`
}

// Render configures the rendered subset.
type Render struct {
	sampler.Config
	Simulated int `toml:"simulated"`
	Rendered  int `toml:"rendered"`
}

// Config is the complete engine configuration.
type Config struct {
	Seed    uint64 `toml:"seed"`
	Workers int    `toml:"workers"` // integration goroutines; 0 means GOMAXPROCS

	Physics   Physics        `toml:"physics"`
	Clock     Clock          `toml:"clock"`
	LOD       lod.Config     `toml:"lod"`
	Proximity Proximity      `toml:"proximity"`
	Breakup   breakup.Config `toml:"breakup"`
	Cascade   Cascade        `toml:"cascade"`
	Render    Render         `toml:"render"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Seed: 1,
		Physics: Physics{
			DragCeilingKm:     200,
			BallisticCoeff:    0.01,
			ReentryAltitudeKm: 100,
			AnomalyAltitudeKm: 300,
		},
		Clock: Clock{
			FixedStepSec:   1,
			MaxFrameMs:     1000.0 / 30,
			MaxSubsteps:    8,
			StepBudgetMs:   12,
			TimeMultiplier: 60,
		},
		LOD: lod.Config{
			NearKm:          2000,
			MidKm:           8000,
			FarKm:           30000,
			MidDivisor:      5,
			FarDivisor:      10,
			ReclassifyEvery: 10,
		},
		Proximity: Proximity{
			BroadPhaseKm: 30,
			MarginKm:     0,
		},
		Breakup: breakup.Config{
			BaseFragments:     5,
			FragmentsPerLevel: 2,
			MaxFragments:      20,
			MinEjectionKmS:    0.05,
			MaxEjectionKmS:    0.3,
			MassExponent:      1.71,
			DebrisDensity:     2700,
			ImmunitySec:       30,
			DebrisCap:         20000,
			Policy:            breakup.EvictOldest,
		},
		Cascade: Cascade{
			CollisionsPerLevel: 5,
			LevelCeiling:       10,
		},
		Render: Render{
			Config: sampler.Config{
				MinRatio:        2,
				SwapRate:        0.02,
				MinDwellSec:     5,
				MaxSwapsPerCall: 64,
			},
			Simulated: 30000,
			Rendered:  15000,
		},
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers %d", c.Workers))
	}

	p := c.Physics
	if !(p.DragCeilingKm >= 0) || !(p.BallisticCoeff >= 0) {
		errs = append(errs, fmt.Errorf("physics: drag ceiling %v ballistic coeff %v", p.DragCeilingKm, p.BallisticCoeff))
	}
	if !(p.ReentryAltitudeKm >= 0) || !(p.AnomalyAltitudeKm >= p.ReentryAltitudeKm) {
		errs = append(errs, fmt.Errorf("physics: reentry %v km anomaly %v km", p.ReentryAltitudeKm, p.AnomalyAltitudeKm))
	}

	k := c.Clock
	if !(k.FixedStepSec > 0) || !(k.MaxFrameMs > 0) || k.MaxSubsteps < 1 || k.StepBudgetMs < 0 || !(k.TimeMultiplier > 0) {
		errs = append(errs, fmt.Errorf("clock: step %v s frame %v ms substeps %d budget %v ms multiplier %v",
			k.FixedStepSec, k.MaxFrameMs, k.MaxSubsteps, k.StepBudgetMs, k.TimeMultiplier))
	}

	if err := c.LOD.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("lod: %w", err))
	}
	if !(c.Proximity.BroadPhaseKm > 0) || c.Proximity.MarginKm < 0 {
		errs = append(errs, fmt.Errorf("proximity: broad phase %v km margin %v km", c.Proximity.BroadPhaseKm, c.Proximity.MarginKm))
	}
	if err := c.Breakup.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("breakup: %w", err))
	}
	if c.Cascade.CollisionsPerLevel < 1 || c.Cascade.LevelCeiling < 1 {
		errs = append(errs, fmt.Errorf("cascade: %d per level ceiling %d", c.Cascade.CollisionsPerLevel, c.Cascade.LevelCeiling))
	}
	if err := c.Render.Config.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("render: %w", err))
	}
	if _, ok := sampler.Ratio(c.Render.Simulated, c.Render.Rendered, c.Render.MinRatio); !ok {
		errs = append(errs, fmt.Errorf("render: %d simulated for %d rendered is below ratio %v",
			c.Render.Simulated, c.Render.Rendered, c.Render.MinRatio))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Load reads a TOML file over the defaults, so a file only needs the keys it
// changes, and validates the result.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return c, fmt.Errorf("%s: unknown key %s: %w", path, undecoded[0], ErrInvalidConfig)
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Save writes c as TOML to path.
func Save(path string, c Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}
