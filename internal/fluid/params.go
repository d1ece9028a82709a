package fluid

import (
	"fmt"
	"strings"
)

// DisplayMode selects which Field is presented.
type DisplayMode int

const (
	ModeVelocity DisplayMode = iota
	ModeDensity
	ModeDivergence
	ModePressure
)

var modeNames = [...]string{"velocity", "density", "divergence", "pressure"}

func (m DisplayMode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeNames[m]
}

// Valid reports whether m names a known view.
func (m DisplayMode) Valid() bool { return m >= 0 && int(m) < len(modeNames) }

// Next cycles to the following view.
func (m DisplayMode) Next() DisplayMode { return (m + 1) % DisplayMode(len(modeNames)) }

// ParseMode accepts the lowercase view names.
func ParseMode(s string) (DisplayMode, error) {
	for i, n := range modeNames {
		if strings.EqualFold(s, n) {
			return DisplayMode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Tunable ranges exposed to the control surface.
const (
	MinTimestep    = 1
	MaxTimestep    = 10
	MinDissipation = 0.98
	MaxDissipation = 1.0
	MinRadius      = 0
	MaxRadius      = 1.0

	DefaultJacobiIterations = 50
)

// Params holds the user tunable parameters read every frame.
type Params struct {
	Mode        DisplayMode
	Timestep    float32
	Dissipation float32
	Radius      float32
	Paused      bool
}

// DefaultParams returns the startup values.
func DefaultParams() Params {
	return Params{
		Mode:        ModeVelocity,
		Timestep:    1,
		Dissipation: 1,
		Radius:      0.2,
	}
}

// Clamped limits every numeric parameter to its range.
func (p Params) Clamped() Params {
	p.Timestep = clampf(p.Timestep, MinTimestep, MaxTimestep)
	p.Dissipation = clampf(p.Dissipation, MinDissipation, MaxDissipation)
	p.Radius = clampf(p.Radius, MinRadius, MaxRadius)
	return p
}
