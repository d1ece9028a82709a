package fluid

import (
	"fmt"

	"go.uber.org/zap"
)

// Pass is one compiled kernel with its declared uniform schema. Passes are
// immutable; per-call state lives in the bindings.
type Pass struct {
	name    string
	backend Backend
	program Program
	schema  Schema

	logger *zap.Logger
	rec    *Recorder
}

// NewPass validates the schema and compiles source on b.
func NewPass(b Backend, name string, source []byte, schema Schema) (*Pass, error) {
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("pass %s: %w", name, err)
	}
	prog, err := b.Compile(name, source, schema)
	if err != nil {
		return nil, fmt.Errorf("compiling pass %s: %w", name, err)
	}
	return &Pass{
		name:    name,
		backend: b,
		program: prog,
		schema:  append(Schema(nil), schema...),
		logger:  zap.NewNop(),
	}, nil
}

// Name returns the kernel key the pass was built from.
func (p *Pass) Name() string { return p.name }

// Release frees the compiled program.
func (p *Pass) Release() error { return p.program.Release() }

func (p *Pass) observe(logger *zap.Logger, rec *Recorder) {
	if logger != nil {
		p.logger = logger
	}
	p.rec = rec
}

// Bind checks bindings against the schema once and returns a reusable
// invocation.
func (p *Pass) Bind(b Bindings) (*Invocation, error) {
	if err := checkBindings(p.schema, b); err != nil {
		return nil, fmt.Errorf("binding pass %s: %w", p.name, err)
	}
	values := make([]Value, len(p.schema))
	for i, u := range p.schema {
		values[i] = b[u.Name]
	}
	return &Invocation{pass: p, values: values, args: make([]Arg, len(values))}, nil
}

// Execute binds and runs the pass in one call.
func (p *Pass) Execute(b Bindings, out *Field, opts ...ExecOption) error {
	inv, err := p.Bind(b)
	if err != nil {
		return err
	}
	return inv.Execute(out, opts...)
}

// Invocation is a pass with validated bindings.
type Invocation struct {
	pass   *Pass
	values []Value
	args   []Arg
}

type execConfig struct {
	iterations int
	flip       bool
}

// ExecOption tunes a single Execute call.
type ExecOption func(*execConfig)

// Iterations repeats the bind, render, flip cycle n times.
func Iterations(n int) ExecOption {
	return func(c *execConfig) { c.iterations = n }
}

// NoFlip leaves the rendered result in the output's staging buffer.
func NoFlip() ExecOption {
	return func(c *execConfig) { c.flip = false }
}

// Execute renders into out, or to the presentation surface when out is nil.
// Field bindings are resolved before every iteration so a pass that reads
// its own output sees the previous iteration's result.
func (inv *Invocation) Execute(out *Field, opts ...ExecOption) error {
	cfg := execConfig{iterations: 1, flip: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.iterations < 1 {
		return fmt.Errorf("pass %s: iteration count %d", inv.pass.name, cfg.iterations)
	}
	p := inv.pass
	for i := 0; i < cfg.iterations; i++ {
		for j, v := range inv.values {
			inv.args[j] = resolve(p.schema[j], v)
		}
		var dst Buffer
		if out != nil {
			dst = out.Stage()
		}
		if err := p.backend.Render(p.program, inv.args, dst); err != nil {
			return fmt.Errorf("pass %s iteration %d: %w", p.name, i, err)
		}
		if out != nil && cfg.flip {
			out.Flip()
		}
	}
	p.rec.passExecuted(p.name, cfg.iterations)
	if ce := p.logger.Check(zap.DebugLevel, "pass executed"); ce != nil {
		target := "surface"
		if out != nil {
			target = out.Name()
		}
		ce.Write(zap.String("pass", p.name), zap.String("target", target), zap.Int("iterations", cfg.iterations))
	}
	return nil
}
