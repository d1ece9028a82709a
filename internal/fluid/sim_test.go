package fluid

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var midGrid = Grid{Width: 48, Height: 32, Scale: 1}

func leftDrag(x, y, dx, dy float32) Motion {
	return Motion{Left: true, Drag: Vec2{dx, dy}, Position: Vec2{x, y}}
}

func TestNewRequiresEveryKernel(t *testing.T) {
	sources := loadSources(t)
	delete(sources, KernelGradient)
	_, err := New(NewCPUBackend(), midGrid, sources)
	assert.ErrorIs(t, err, ErrMissingKernel)

	sources = loadSources(t)
	delete(sources, KernelBasic)
	_, err = New(NewCPUBackend(), midGrid, sources)
	assert.ErrorIs(t, err, ErrMissingKernel)
}

func TestNewRejectsBadConfiguration(t *testing.T) {
	_, err := New(NewCPUBackend(), Grid{Width: 1, Height: 1, Scale: 1}, loadSources(t))
	assert.ErrorIs(t, err, ErrInvalidGrid)

	_, err = New(NewCPUBackend(), midGrid, loadSources(t), WithJacobiIterations(0))
	assert.Error(t, err)

	_, err = New(NewCPUBackend(), midGrid, loadSources(t), WithParams(Params{Mode: DisplayMode(9)}))
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestStepInjectsAndProjects(t *testing.T) {
	sim, b := newTestSim(t, midGrid)
	require.NoError(t, sim.Step([]Motion{leftDrag(24, 16, 1, 0)}))

	v := readField(t, b, sim.Field(FieldVelocity))
	assert.Greater(t, texel(v, midGrid, 24, 16)[0], float32(0))
	assert.False(t, allZero(firstChannels(readField(t, b, sim.Field(FieldPressure)))))
	assert.True(t, allZero(firstChannels(readField(t, b, sim.Field(FieldDensity)))), "left drag leaves density alone")
}

func TestPauseSkipsAdvectAndProject(t *testing.T) {
	sim, b := newTestSim(t, midGrid)
	require.NoError(t, sim.Step([]Motion{
		leftDrag(20, 16, 1, 0),
		{Right: true, Position: Vec2{30, 16}},
	}))

	p := sim.Params()
	p.Paused = true
	require.NoError(t, sim.SetParams(p))

	velocity := readField(t, b, sim.Field(FieldVelocity))
	density := readField(t, b, sim.Field(FieldDensity))
	require.NoError(t, sim.Step(nil))
	assert.Equal(t, velocity, readField(t, b, sim.Field(FieldVelocity)))
	assert.Equal(t, density, readField(t, b, sim.Field(FieldDensity)))

	require.NoError(t, sim.Step([]Motion{leftDrag(10, 10, 0, 1)}))
	assert.NotEqual(t, velocity, readField(t, b, sim.Field(FieldVelocity)), "injection runs while paused")
	assert.Equal(t, density, readField(t, b, sim.Field(FieldDensity)))
}

func TestBothButtonsFireFromOneMotion(t *testing.T) {
	sim, b := newTestSim(t, midGrid, WithParams(Params{Mode: ModeDensity, Timestep: 1, Dissipation: 1, Radius: 0.2, Paused: true}))
	require.NoError(t, sim.Step([]Motion{{Left: true, Right: true, Drag: Vec2{1, 1}, Position: Vec2{24, 16}}}))

	v := texel(readField(t, b, sim.Field(FieldVelocity)), midGrid, 24, 16)
	d := texel(readField(t, b, sim.Field(FieldDensity)), midGrid, 24, 16)
	assert.Greater(t, v[0], float32(0))
	assert.Less(t, v[1], float32(0), "screen y grows downward, so the force flips")
	assert.Greater(t, d[0], float32(0.5))
	assert.Equal(t, d[0], d[1])
	assert.Equal(t, d[0], d[2])
}

func TestStepDrainsAggregator(t *testing.T) {
	sim, _ := newTestSim(t, midGrid)
	agg := NewAggregator(sim.Grid())
	agg.PointerDown(ButtonLeft, 10, 10)
	for i := 0; i < 25; i++ {
		agg.PointerMove(10+float32(i), 10)
	}
	require.NoError(t, sim.Step(agg.Drain()))
	assert.Zero(t, agg.Pending())
}

func TestPointerMapping(t *testing.T) {
	sim, _ := newTestSim(t, midGrid, WithWindowSize(96, 64))
	assert.Equal(t, Vec2{24, 16}, sim.toGrid(Vec2{48, 32}))
	assert.Equal(t, Vec2{0, 32}, sim.toGrid(Vec2{0, 0}))
	assert.Equal(t, Vec2{48, 0}, sim.toGrid(Vec2{96, 64}))

	sim.SetWindowSize(0, 10)
	assert.Equal(t, Vec2{24, 16}, sim.toGrid(Vec2{48, 32}), "non-positive sizes are ignored")
}

func TestProjectionIsDeterministic(t *testing.T) {
	run := func() ([]float32, []float32) {
		sim, b := newTestSim(t, midGrid)
		motions := []Motion{leftDrag(20, 12, 1, -1), leftDrag(21, 12, 1, 0)}
		require.NoError(t, sim.Step(motions))
		require.NoError(t, sim.Step([]Motion{leftDrag(30, 20, -1, 0)}))
		return readField(t, b, sim.Field(FieldPressure)), readField(t, b, sim.Field(FieldVelocity))
	}
	p1, v1 := run()
	p2, v2 := run()
	assert.Equal(t, p1, p2)
	assert.Equal(t, v1, v2)
}

func TestPressureIsClearedEveryFrame(t *testing.T) {
	// Two simulations reach the same velocity, one of them with stale
	// pressure left over from an earlier projection. Their next pressure
	// solve must agree bit for bit.
	fresh, fb := newTestSim(t, midGrid)
	stale, sb := newTestSim(t, midGrid)

	require.NoError(t, stale.Step([]Motion{leftDrag(10, 10, 1, 1)}))
	require.NoError(t, stale.ClearAll())
	p := stale.Params()
	p.Paused = true
	require.NoError(t, stale.SetParams(p))
	require.NoError(t, stale.Step([]Motion{leftDrag(10, 10, 1, 1)}))
	fill(stale.Field(FieldPressure), func(x, y int) [4]float32 { return [4]float32{float32(x - y), 0, 0, 1} })
	p.Paused = false
	require.NoError(t, stale.SetParams(p))

	p = fresh.Params()
	p.Paused = true
	require.NoError(t, fresh.SetParams(p))
	require.NoError(t, fresh.Step([]Motion{leftDrag(10, 10, 1, 1)}))
	p.Paused = false
	require.NoError(t, fresh.SetParams(p))

	require.NoError(t, fresh.Step(nil))
	require.NoError(t, stale.Step(nil))
	assert.Equal(t, readField(t, fb, fresh.Field(FieldPressure)), readField(t, sb, stale.Field(FieldPressure)))
	assert.Equal(t, readField(t, fb, fresh.Field(FieldVelocity)), readField(t, sb, stale.Field(FieldVelocity)))
}

func TestCentreDragScenario(t *testing.T) {
	grid := Grid{Width: 640, Height: 360, Scale: 1}
	params := Params{Mode: ModeVelocity, Timestep: 1, Dissipation: 1, Radius: 0.2}
	drag := leftDrag(320, 180, 5, 0)

	pausedParams := params
	pausedParams.Paused = true
	raw, rb := newTestSim(t, grid, WithParams(pausedParams))
	require.NoError(t, raw.Step([]Motion{drag}))
	before := hostDivergence(readField(t, rb, raw.Field(FieldVelocity)), grid)
	require.Greater(t, before, 0.0)

	sim, b := newTestSim(t, grid, WithParams(params))
	require.NoError(t, sim.Step([]Motion{drag}))

	v := readField(t, b, sim.Field(FieldVelocity))
	centre := texel(v, grid, 320, 180)
	assert.Greater(t, centre[0], float32(1), "velocity near the centre points along +x")
	assert.Less(t, math.Abs(float64(centre[1])), float64(centre[0]))
	far := texel(v, grid, 20, 20)
	assert.Less(t, math.Abs(float64(far[0])), 1e-3, "the splat stays local")

	pressure := readField(t, b, sim.Field(FieldPressure))
	var peak float32
	px, py := 0, 0
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			if a := float32(math.Abs(float64(texel(pressure, grid, x, y)[0]))); a > peak {
				peak, px, py = a, x, y
			}
		}
	}
	assert.Greater(t, peak, float32(0))
	assert.InDelta(t, 320, px, 40, "pressure extremum sits near the injection")
	assert.InDelta(t, 180, py, 40, "pressure extremum sits near the injection")

	after := hostDivergence(v, grid)
	assert.Less(t, after, before, "projection reduces divergence")
}

func TestRenderDrawsSelectedField(t *testing.T) {
	sim, b := newTestSim(t, midGrid, WithParams(Params{Mode: ModeDensity, Timestep: 1, Dissipation: 1, Radius: 0.2}))
	require.NoError(t, sim.Step([]Motion{{Right: true, Position: Vec2{12, 8}}}))
	require.NoError(t, sim.Render())

	surf := b.Surface()
	require.NotNil(t, surf)
	require.Equal(t, midGrid.Width, surf.Width)
	require.Equal(t, midGrid.Height, surf.Height)
	img := surf.RGBA()
	// Window and grid coincide, so the splat lands at the same pixel.
	bright := img.RGBAAt(12, 8)
	dark := img.RGBAAt(47, 31)
	assert.Greater(t, bright.R, dark.R)
	assert.Equal(t, uint8(255), bright.A)

	p := sim.Params()
	for _, mode := range []DisplayMode{ModeVelocity, ModeDivergence, ModePressure} {
		p.Mode = mode
		require.NoError(t, sim.SetParams(p))
		assert.NoError(t, sim.Render(), mode.String())
	}
}

func TestClearAll(t *testing.T) {
	sim, b := newTestSim(t, midGrid)
	require.NoError(t, sim.Step([]Motion{leftDrag(20, 10, 1, 0), {Right: true, Position: Vec2{20, 10}}}))
	require.NoError(t, sim.ClearAll())
	for _, name := range []string{FieldVelocity, FieldDensity, FieldDivergence, FieldPressure} {
		assert.True(t, allZero(readField(t, b, sim.Field(name))), name)
	}
	assert.Nil(t, sim.Field("temperature"))
	assert.Equal(t, FieldPressure, sim.Field(FieldPressure).Name())
}

func TestClearAllNamesFailingField(t *testing.T) {
	sim, b := newTestSim(t, smallGrid)
	require.NoError(t, b.Close())
	err := sim.ClearAll()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorContains(t, err, "clearing "+FieldVelocity)
}

func TestResize(t *testing.T) {
	sim, b := newTestSim(t, midGrid)
	require.NoError(t, sim.Step([]Motion{leftDrag(20, 10, 1, 0)}))

	next := Grid{Width: 20, Height: 10, Scale: 2}
	require.NoError(t, sim.Resize(next))
	assert.Equal(t, next, sim.Grid())
	for _, name := range []string{FieldVelocity, FieldDensity, FieldDivergence, FieldPressure} {
		f := sim.Field(name)
		assert.Equal(t, next, f.Grid(), name)
		assert.True(t, allZero(readField(t, b, f)), name)
	}
	require.NoError(t, sim.Step([]Motion{leftDrag(5, 5, 2, 0)}))
	require.NoError(t, sim.Render())

	assert.ErrorIs(t, sim.Resize(Grid{Width: 0, Height: 10, Scale: 1}), ErrInvalidGrid)
	assert.Equal(t, next, sim.Grid())
}

func TestResizeRejectsUnallocatableAndNonFiniteGrids(t *testing.T) {
	sim, b := newTestSim(t, smallGrid)
	for name, grid := range map[string]Grid{
		"oversized": {Width: 1 << 24, Height: 1 << 24, Scale: 1},
		"inf scale": {Width: 16, Height: 12, Scale: float32(math.Inf(1))},
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, sim.Resize(grid), ErrInvalidGrid)
			assert.Equal(t, smallGrid, sim.Grid())
		})
	}

	require.NoError(t, sim.Step([]Motion{leftDrag(8, 6, 1, 0)}))
	for _, v := range readField(t, b, sim.Field(FieldVelocity)) {
		require.False(t, math.IsNaN(float64(v)) || math.IsInf(float64(v), 0))
	}
}

func TestSetParamsClampsAndValidates(t *testing.T) {
	sim, _ := newTestSim(t, midGrid)
	require.NoError(t, sim.SetParams(Params{Mode: ModePressure, Timestep: 100, Dissipation: 0.5, Radius: -1}))
	assert.Equal(t, Params{Mode: ModePressure, Timestep: MaxTimestep, Dissipation: MinDissipation, Radius: MinRadius}, sim.Params())

	assert.ErrorIs(t, sim.SetParams(Params{Mode: -1}), ErrUnknownMode)
	assert.Equal(t, ModePressure, sim.Params().Mode)

	assert.Error(t, sim.SetJacobiIterations(0))
	require.NoError(t, sim.SetJacobiIterations(10))
	assert.Equal(t, 10, sim.Iterations())
}

func TestStepRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewRecorder(reg)
	require.NoError(t, err)
	sim, _ := newTestSim(t, midGrid, WithMetrics(rec))

	require.NoError(t, sim.Step([]Motion{leftDrag(20, 10, 1, 0), {Right: true, Position: Vec2{20, 10}}}))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.frames))
	assert.Equal(t, float64(2), testutil.ToFloat64(rec.events))
	assert.Equal(t, float64(2), testutil.ToFloat64(rec.passRuns.WithLabelValues(KernelAdvect)))
	assert.Equal(t, float64(2), testutil.ToFloat64(rec.passRuns.WithLabelValues(KernelMouse)))
	assert.Equal(t, float64(DefaultJacobiIterations), testutil.ToFloat64(rec.passRuns.WithLabelValues(KernelJacobiScalar)))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.stepDuration))
}

func TestStepErrorAbandonsFrame(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewRecorder(reg)
	require.NoError(t, err)
	sim, b := newTestSim(t, midGrid, WithMetrics(rec))

	require.NoError(t, b.Close())
	err = sim.Step(nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.droppedFrames.WithLabelValues("advect")))
	assert.Zero(t, testutil.ToFloat64(rec.frames))

	p := sim.Params()
	p.Paused = true
	require.NoError(t, sim.SetParams(p))
	err = sim.Step([]Motion{leftDrag(1, 1, 1, 1)})
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.droppedFrames.WithLabelValues("inject")))
}

func BenchmarkCPUStep(b *testing.B) {
	backend := NewCPUBackend()
	defer backend.Close()
	sim, err := New(backend, Grid{Width: 160, Height: 90, Scale: 1}, loadSources(b))
	require.NoError(b, err)
	defer sim.Close()
	motions := []Motion{leftDrag(80, 45, 1, 0)}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := sim.Step(motions); err != nil {
			b.Fatal(err)
		}
	}
}
