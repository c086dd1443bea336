// Package config loads the grid-tuning and numeric-tolerance knobs a
// transfer run is configured with. It follows the teacher's
// XDG-then-home config file convention: a YAML file is optional, and
// an absent file yields defaults rather than an error.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/meshtransfer/internal/xerrors"
)

// Grid holds the spatial hash grid cell extents, §6 grid.cell_x/y/z.
type Grid struct {
	CellX float64 `yaml:"cell_x"`
	CellY float64 `yaml:"cell_y"`
	CellZ float64 `yaml:"cell_z"`
}

// Collision holds the collision-router tuning knob, §6 collision.buckets.
type Collision struct {
	Buckets int `yaml:"buckets"`
}

// Numeric holds the narrow-phase skip-ratio fatal threshold, §7.
type Numeric struct {
	SkipRatioThreshold float64 `yaml:"skip_ratio_threshold"`
}

// Config is the full set of recognized tuning options.
type Config struct {
	Grid      Grid      `yaml:"grid"`
	Collision Collision `yaml:"collision"`
	Numeric   Numeric   `yaml:"numeric"`
}

// Default returns the built-in fallback configuration: unit grid
// cells, a modest bucket count, and a 1% numeric-skip tolerance.
// Callers should override CellX/Y/Z from their mesh's median edge
// length per spec §4.1 — there is no universally right default.
func Default() Config {
	return Config{
		Grid:      Grid{CellX: 1, CellY: 1, CellZ: 1},
		Collision: Collision{Buckets: 16},
		Numeric:   Numeric{SkipRatioThreshold: 0.01},
	}
}

// Validate checks the invariants spec §7's ConfigError covers: positive
// cell extents, a positive bucket count, and a threshold in [0,1].
func (c Config) Validate() error {
	if c.Grid.CellX <= 0 || c.Grid.CellY <= 0 || c.Grid.CellZ <= 0 {
		return xerrors.NewConfigError("grid.cell_{x,y,z}",
			fmt.Errorf("cell extents must be positive, got (%g, %g, %g)",
				c.Grid.CellX, c.Grid.CellY, c.Grid.CellZ))
	}
	if c.Collision.Buckets <= 0 {
		return xerrors.NewConfigError("collision.buckets",
			fmt.Errorf("bucket count must be positive, got %d", c.Collision.Buckets))
	}
	if c.Numeric.SkipRatioThreshold < 0 || c.Numeric.SkipRatioThreshold > 1 {
		return xerrors.NewConfigError("numeric.skip_ratio_threshold",
			fmt.Errorf("must be in [0,1], got %g", c.Numeric.SkipRatioThreshold))
	}
	return nil
}

// ApplyVirtualization biases collision.buckets upward per the
// GLOSSARY's virtualization definition: a scalar in [0,1] pushing
// toward finer decomposition. v must be in [0,1].
func (c Config) ApplyVirtualization(v float64) (Config, error) {
	if v < 0 || v > 1 {
		return c, xerrors.NewConfigError("virtualization",
			fmt.Errorf("must be in [0,1], got %g", v))
	}
	scaled := c
	scaled.Collision.Buckets = int(float64(c.Collision.Buckets) * (1 + 3*v))
	if scaled.Collision.Buckets < 1 {
		scaled.Collision.Buckets = 1
	}
	return scaled, nil
}

// Path returns the config file location, respecting XDG_CONFIG_HOME and
// falling back to ~/.config/meshtransfer/config.yaml.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "meshtransfer", "config.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "meshtransfer", "config.yaml")
}

// Load reads the config file at Path(). A missing file yields Default(),
// not an error.
func Load() (Config, error) {
	data, err := os.ReadFile(Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg to Path(), creating directories as needed.
func (c Config) Save() error {
	p := Path()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
