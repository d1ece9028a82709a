// Package settings loads the simulation's YAML settings file and watches it
// for edits, which makes the file a live control panel.
package settings

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"fluids2d/internal/fluid"
)

// Grid is the lattice section of the file.
type Grid struct {
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	Scale  float32 `yaml:"scale"`
}

// Settings mirrors the file layout.
type Settings struct {
	Grid             Grid    `yaml:"grid"`
	Mode             string  `yaml:"mode"`
	Timestep         float32 `yaml:"timestep"`
	Dissipation      float32 `yaml:"dissipation"`
	Radius           float32 `yaml:"radius"`
	Pause            bool    `yaml:"pause"`
	JacobiIterations int     `yaml:"jacobi_iterations"`
	// Clear requests a one-off clear of every field when it turns true.
	Clear bool `yaml:"clear"`
}

// CPUGrid is the default lattice on the CPU backend, which steps every cell
// on one goroutine.
var CPUGrid = Grid{Width: 160, Height: 90, Scale: 1}

// Default returns the values used when no file is given.
func Default() Settings {
	p := fluid.DefaultParams()
	return Settings{
		Grid:             Grid{Width: 640, Height: 360, Scale: 1},
		Mode:             p.Mode.String(),
		Timestep:         p.Timestep,
		Dissipation:      p.Dissipation,
		Radius:           p.Radius,
		JacobiIterations: fluid.DefaultJacobiIterations,
	}
}

// Parse decodes data over the defaults so a partial file is valid.
func Parse(data []byte) (Settings, error) {
	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("decoding settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Load reads and parses path.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("reading settings: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate checks the fields that cannot be clamped.
func (s Settings) Validate() error {
	if err := s.FluidGrid().Validate(); err != nil {
		return err
	}
	if _, err := fluid.ParseMode(s.Mode); err != nil {
		return err
	}
	if s.JacobiIterations < 1 {
		return fmt.Errorf("jacobi_iterations must be positive, got %d", s.JacobiIterations)
	}
	return nil
}

// FluidGrid converts the grid section.
func (s Settings) FluidGrid() fluid.Grid {
	return fluid.Grid{Width: s.Grid.Width, Height: s.Grid.Height, Scale: s.Grid.Scale}
}

// Params converts the tunables, clamped to their ranges.
func (s Settings) Params() (fluid.Params, error) {
	mode, err := fluid.ParseMode(s.Mode)
	if err != nil {
		return fluid.Params{}, err
	}
	return fluid.Params{
		Mode:        mode,
		Timestep:    s.Timestep,
		Dissipation: s.Dissipation,
		Radius:      s.Radius,
		Paused:      s.Pause,
	}.Clamped(), nil
}

// Marshal encodes s as YAML.
func (s Settings) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

// LoadOrCreate loads path, or writes fallback there when the file does not
// exist yet. The boolean reports whether the file was created.
func LoadOrCreate(path string, fallback Settings) (Settings, bool, error) {
	s, err := Load(path)
	if !errors.Is(err, os.ErrNotExist) {
		return s, false, err
	}
	if err := fallback.Validate(); err != nil {
		return Settings{}, false, err
	}
	data, err := fallback.Marshal()
	if err != nil {
		return Settings{}, false, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Settings{}, false, fmt.Errorf("writing settings: %w", err)
	}
	return fallback, true, nil
}
