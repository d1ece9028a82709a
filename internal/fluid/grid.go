package fluid

import (
	"fmt"
	"math"
)

// MaxCells bounds the lattice so a single float4 buffer stays allocatable.
const MaxCells = 1 << 24

// Grid describes the fixed simulation lattice shared by every Field and Pass.
type Grid struct {
	Width  int
	Height int
	// Scale is the world-space distance covered by one cell.
	Scale float32
}

// Cells returns the number of cells in the grid.
func (g Grid) Cells() int { return g.Width * g.Height }

// Size returns the grid dimensions as a vector, the form kernels expect.
func (g Grid) Size() Vec2 { return Vec2{float32(g.Width), float32(g.Height)} }

// Validate reports whether the grid can back a simulation.
func (g Grid) Validate() error {
	if g.Width < 3 || g.Height < 3 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidGrid, g.Width, g.Height)
	}
	if g.Width > MaxCells/g.Height {
		return fmt.Errorf("%w: %dx%d exceeds %d cells", ErrInvalidGrid, g.Width, g.Height, MaxCells)
	}
	// The kernels use 1/Scale and Scale² as coefficients; both must be finite.
	if s := g.Scale; !(s > 0) || math.IsInf(float64(s*s), 1) || math.IsInf(float64(1/s), 1) {
		return fmt.Errorf("%w: scale %v", ErrInvalidGrid, g.Scale)
	}
	return nil
}

// clampCoord constrains v to lie within the inclusive [min, max] range.
func clampCoord(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
