package fluid

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Field names.
const (
	FieldVelocity   = "velocity"
	FieldDensity    = "density"
	FieldDivergence = "divergence"
	FieldPressure   = "pressure"
)

// Simulation owns every Field and Pass of one fluid instance and sequences
// the per-frame pipeline. It is not safe for concurrent use; the frame loop
// drives it from a single goroutine.
type Simulation struct {
	backend Backend
	grid    Grid
	logger  *zap.Logger
	rec     *Recorder

	params     Params
	windowW    float32
	windowH    float32
	iterations int

	velocity   *Field
	density    *Field
	divergence *Field
	pressure   *Field

	passes map[string]*Pass

	// Scratch values the force invocations read through references.
	point Vec2
	force Vec3

	advectVelocity *Invocation
	advectDensity  *Invocation
	splatVelocity  *Invocation
	splatDensity   *Invocation
	divergenceOp   *Invocation
	jacobi         *Invocation
	subtractGrad   *Invocation
	display        [len(modeNames)]*Invocation
}

// Option configures a Simulation at construction.
type Option func(*Simulation)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Simulation) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics attaches a recorder.
func WithMetrics(r *Recorder) Option {
	return func(s *Simulation) { s.rec = r }
}

// WithParams sets the initial tunables.
func WithParams(p Params) Option {
	return func(s *Simulation) { s.params = p.Clamped() }
}

// WithWindowSize sets the pointer coordinate space. It defaults to the grid
// size.
func WithWindowSize(w, h int) Option {
	return func(s *Simulation) { s.SetWindowSize(w, h) }
}

// WithJacobiIterations overrides the pressure solve iteration count.
func WithJacobiIterations(n int) Option {
	return func(s *Simulation) { s.iterations = n }
}

// New compiles every pass from sources, allocates the Fields and validates
// all bindings. Any failure here is fatal to startup.
func New(b Backend, grid Grid, sources map[string][]byte, opts ...Option) (*Simulation, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	s := &Simulation{
		backend:    b,
		grid:       grid,
		logger:     zap.NewNop(),
		params:     DefaultParams(),
		windowW:    float32(grid.Width),
		windowH:    float32(grid.Height),
		iterations: DefaultJacobiIterations,
		passes:     make(map[string]*Pass, len(Schemas)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.iterations < 1 {
		return nil, fmt.Errorf("jacobi iterations must be positive, got %d", s.iterations)
	}
	if !s.params.Mode.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, s.params.Mode)
	}

	for _, name := range KernelNames {
		if _, ok := sources[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingKernel, name)
		}
	}
	for _, name := range KernelNames {
		schema, ok := Schemas[name]
		if !ok {
			continue
		}
		p, err := NewPass(b, name, sources[name], schema)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		p.observe(s.logger, s.rec)
		s.passes[p.Name()] = p
	}
	if err := s.allocate(grid); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := s.assemble(); err != nil {
		_ = s.Close()
		return nil, err
	}
	s.logger.Info("simulation assembled",
		zap.Int("width", grid.Width),
		zap.Int("height", grid.Height),
		zap.Float32("scale", grid.Scale),
		zap.Int("jacobiIterations", s.iterations))
	return s, nil
}

// allocate creates the four Fields for grid.
func (s *Simulation) allocate(grid Grid) error {
	fields := make([]*Field, 0, 4)
	for _, name := range []string{FieldVelocity, FieldDensity, FieldDivergence, FieldPressure} {
		f, err := NewField(s.backend, name, grid)
		if err != nil {
			for _, made := range fields {
				_ = made.Release()
			}
			return err
		}
		fields = append(fields, f)
	}
	s.velocity, s.density, s.divergence, s.pressure = fields[0], fields[1], fields[2], fields[3]
	s.grid = grid
	return nil
}

// assemble binds every invocation against the current Fields.
func (s *Simulation) assemble() error {
	size := s.grid.Size()
	scale := Scalar(s.grid.Scale)
	bind := func(name string, b Bindings) (*Invocation, error) {
		return s.passes[name].Bind(b)
	}
	var err error
	if s.advectVelocity, err = bind(KernelAdvect, Bindings{
		"velocity":    s.velocity,
		"advected":    s.velocity,
		"gridSize":    size,
		"gridScale":   scale,
		"timestep":    ScalarRef{&s.params.Timestep},
		"dissipation": Scalar(1),
	}); err != nil {
		return err
	}
	if s.advectDensity, err = bind(KernelAdvect, Bindings{
		"velocity":    s.velocity,
		"advected":    s.density,
		"gridSize":    size,
		"gridScale":   scale,
		"timestep":    ScalarRef{&s.params.Timestep},
		"dissipation": ScalarRef{&s.params.Dissipation},
	}); err != nil {
		return err
	}
	if s.splatVelocity, err = bind(KernelMouse, Bindings{
		"read":     s.velocity,
		"gridSize": size,
		"color":    Vec3Ref{&s.force},
		"point":    Vec2Ref{&s.point},
		"radius":   ScalarRef{&s.params.Radius},
	}); err != nil {
		return err
	}
	if s.splatDensity, err = bind(KernelMouse, Bindings{
		"read":     s.density,
		"gridSize": size,
		"color":    Vec3{1, 1, 1},
		"point":    Vec2Ref{&s.point},
		"radius":   ScalarRef{&s.params.Radius},
	}); err != nil {
		return err
	}
	if s.divergenceOp, err = bind(KernelDivergence, Bindings{
		"velocity":  s.velocity,
		"gridSize":  size,
		"gridScale": scale,
	}); err != nil {
		return err
	}
	if s.jacobi, err = bind(KernelJacobiScalar, Bindings{
		"x":        s.pressure,
		"b":        s.divergence,
		"gridSize": size,
		"alpha":    Scalar(-s.grid.Scale * s.grid.Scale),
		"beta":     Scalar(4),
	}); err != nil {
		return err
	}
	if s.subtractGrad, err = bind(KernelGradient, Bindings{
		"p":         s.pressure,
		"w":         s.velocity,
		"gridSize":  size,
		"gridScale": scale,
	}); err != nil {
		return err
	}
	if s.display[ModeVelocity], err = bind(KernelVectorDisplay, Bindings{
		"read": s.velocity,
	}); err != nil {
		return err
	}
	for mode, view := range map[DisplayMode]struct {
		field      *Field
		bias, gain Vec3
	}{
		ModeDensity:    {s.density, Vec3{0, 0, 0}, Vec3{1, 1, 1}},
		ModeDivergence: {s.divergence, Vec3{0.5, 0.5, 0.5}, Vec3{0.5, 0.5, 0.5}},
		ModePressure:   {s.pressure, Vec3{0.5, 0.5, 0.5}, Vec3{0.5, 0.5, 0.5}},
	} {
		if s.display[mode], err = bind(KernelScalarDisplay, Bindings{
			"read":  view.field,
			"bias":  view.bias,
			"scale": view.gain,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Grid returns the current lattice.
func (s *Simulation) Grid() Grid { return s.grid }

// Backend returns the device the simulation renders on.
func (s *Simulation) Backend() Backend { return s.backend }

// Params returns the current tunables.
func (s *Simulation) Params() Params { return s.params }

// SetParams clamps and applies p.
func (s *Simulation) SetParams(p Params) error {
	if !p.Mode.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownMode, p.Mode)
	}
	s.params = p.Clamped()
	return nil
}

// Iterations returns the pressure solve iteration count.
func (s *Simulation) Iterations() int { return s.iterations }

// SetJacobiIterations changes the pressure solve iteration count.
func (s *Simulation) SetJacobiIterations(n int) error {
	if n < 1 {
		return fmt.Errorf("jacobi iterations must be positive, got %d", n)
	}
	s.iterations = n
	return nil
}

// SetWindowSize records the size of the surface pointer positions refer to.
// Non-positive sizes are ignored.
func (s *Simulation) SetWindowSize(w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	s.windowW, s.windowH = float32(w), float32(h)
}

// Field returns the named Field or nil.
func (s *Simulation) Field(name string) *Field {
	for _, f := range s.fields() {
		if f != nil && f.Name() == name {
			return f
		}
	}
	return nil
}

func (s *Simulation) fields() []*Field {
	return []*Field{s.velocity, s.density, s.divergence, s.pressure}
}

// Step advances one frame: advect, inject forces, project. Advection and
// projection are skipped while paused; force injection always runs. A
// backend error abandons the rest of the frame.
func (s *Simulation) Step(motions []Motion) error {
	start := time.Now()
	if !s.params.Paused {
		if err := s.advect(); err != nil {
			return s.dropFrame("advect", err)
		}
	}
	if err := s.addForces(motions); err != nil {
		return s.dropFrame("inject", err)
	}
	if !s.params.Paused {
		if err := s.project(); err != nil {
			return s.dropFrame("project", err)
		}
	}
	s.rec.stepDone(time.Since(start), len(motions))
	return nil
}

func (s *Simulation) dropFrame(stage string, err error) error {
	s.rec.FrameDropped(stage)
	s.logger.Error("frame abandoned", zap.String("stage", stage), zap.Error(err))
	return fmt.Errorf("%s: %w", stage, err)
}

func (s *Simulation) advect() error {
	if err := s.advectVelocity.Execute(s.velocity); err != nil {
		return err
	}
	return s.advectDensity.Execute(s.density)
}

// addForces splats every queued motion. Left drags push velocity, right drags
// add density; both fire when both buttons are held.
func (s *Simulation) addForces(motions []Motion) error {
	for _, m := range motions {
		s.point = s.toGrid(m.Position)
		if m.Left {
			s.force = Vec3{m.Drag[0], -m.Drag[1], 0}
			if err := s.splatVelocity.Execute(s.velocity); err != nil {
				return err
			}
		}
		if m.Right {
			if err := s.splatDensity.Execute(s.density); err != nil {
				return err
			}
		}
	}
	return nil
}

// toGrid maps a window position (origin top-left) to fragment space (origin
// bottom-left).
func (s *Simulation) toGrid(p Vec2) Vec2 {
	return Vec2{
		p[0] / s.windowW * float32(s.grid.Width),
		(s.windowH - p[1]) / s.windowH * float32(s.grid.Height),
	}
}

// project removes the divergent part of velocity. Pressure starts from zero
// every frame so the solve depends only on the current velocity.
func (s *Simulation) project() error {
	if err := s.pressure.Clear(s.backend); err != nil {
		return err
	}
	if err := s.divergenceOp.Execute(s.divergence); err != nil {
		return err
	}
	if err := s.jacobi.Execute(s.pressure, Iterations(s.iterations)); err != nil {
		return err
	}
	return s.subtractGrad.Execute(s.velocity)
}

// Render draws the Field selected by the display mode to the backend surface.
func (s *Simulation) Render() error {
	inv := s.display[s.params.Mode]
	if inv == nil {
		return fmt.Errorf("%w: %d", ErrUnknownMode, s.params.Mode)
	}
	if err := inv.Execute(nil); err != nil {
		s.rec.FrameDropped("display")
		return fmt.Errorf("display %s: %w", s.params.Mode, err)
	}
	return nil
}

// ClearAll zeroes every Field.
func (s *Simulation) ClearAll() error {
	for _, f := range s.fields() {
		if err := f.Clear(s.backend); err != nil {
			return err
		}
	}
	s.logger.Info("fields cleared")
	return nil
}

// Resize replaces every Field with zeroed buffers for grid and rebinds the
// pipeline. Passes are kept. State is not carried over.
func (s *Simulation) Resize(grid Grid) error {
	if err := grid.Validate(); err != nil {
		return err
	}
	old := s.fields()
	if err := s.allocate(grid); err != nil {
		return fmt.Errorf("resizing to %dx%d: %w", grid.Width, grid.Height, err)
	}
	var err error
	for _, f := range old {
		err = multierr.Append(err, f.Release())
	}
	if aerr := s.assemble(); aerr != nil {
		return multierr.Append(err, aerr)
	}
	s.logger.Info("grid resized", zap.Int("width", grid.Width), zap.Int("height", grid.Height), zap.Float32("scale", grid.Scale))
	return err
}

// Close releases Fields and programs. The backend stays open.
func (s *Simulation) Close() error {
	var err error
	for _, f := range s.fields() {
		if f != nil {
			err = multierr.Append(err, f.Release())
		}
	}
	s.velocity, s.density, s.divergence, s.pressure = nil, nil, nil, nil
	for name, p := range s.passes {
		err = multierr.Append(err, p.Release())
		delete(s.passes, name)
	}
	return err
}
