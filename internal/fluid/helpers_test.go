package fluid

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"fluids2d/kernels"
)

var smallGrid = Grid{Width: 16, Height: 12, Scale: 1}

func loadSources(tb testing.TB) map[string][]byte {
	tb.Helper()
	sources, err := LoadKernels(context.Background(), kernels.FS, KernelNames)
	require.NoError(tb, err)
	return sources
}

func newTestSim(t *testing.T, grid Grid, opts ...Option) (*Simulation, *CPUBackend) {
	t.Helper()
	b := NewCPUBackend()
	sim, err := New(b, grid, loadSources(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sim.Close()
		_ = b.Close()
	})
	return sim, b
}

func newTestPass(t *testing.T, b Backend, name string) *Pass {
	t.Helper()
	p, err := NewPass(b, name, loadSources(t)[name], Schemas[name])
	require.NoError(t, err)
	return p
}

func readBuffer(t *testing.T, b Backend, buf Buffer, grid Grid) []float32 {
	t.Helper()
	out := make([]float32, grid.Cells()*4)
	require.NoError(t, b.ReadBuffer(buf, out))
	return out
}

func readField(t *testing.T, b Backend, f *Field) []float32 {
	t.Helper()
	return readBuffer(t, b, f.Current(), f.Grid())
}

// fill writes fn into the current buffer of a CPU-backed field.
func fill(f *Field, fn func(x, y int) [4]float32) {
	buf := f.Current().(*cpuBuffer)
	for y := 0; y < f.grid.Height; y++ {
		for x := 0; x < f.grid.Width; x++ {
			v := fn(x, y)
			copy(buf.data[(y*f.grid.Width+x)*4:], v[:])
		}
	}
}

func texel(data []float32, grid Grid, x, y int) [4]float32 {
	i := (y*grid.Width + x) * 4
	return [4]float32{data[i], data[i+1], data[i+2], data[i+3]}
}

// hostDivergence mirrors the divergence kernel on host data and returns the
// L2 norm of the result.
func hostDivergence(data []float32, grid Grid) float64 {
	at := func(x, y int) [4]float32 {
		return texel(data, grid, clampCoord(x, 0, grid.Width-1), clampCoord(y, 0, grid.Height-1))
	}
	halfrdx := 0.5 / float64(grid.Scale)
	var sum float64
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			d := halfrdx * (float64(at(x+1, y)[0]-at(x-1, y)[0]) + float64(at(x, y+1)[1]-at(x, y-1)[1]))
			sum += d * d
		}
	}
	return math.Sqrt(sum)
}

func allZero(data []float32) bool {
	for _, v := range data {
		if v != 0 {
			return false
		}
	}
	return true
}
