package fluid

import (
	"fmt"
	"math"
)

// CPUBackend evaluates kernels on the calling goroutine. It is deterministic
// and needs no device, which makes it the reference for tests and the
// fallback when no GPU is present.
type CPUBackend struct {
	surface *Surface
	closed  bool
}

type cpuBuffer struct {
	owner *CPUBackend
	grid  Grid
	data  []float32
}

func (b *cpuBuffer) Release() error {
	b.data = nil
	return nil
}

// index returns the offset of texel (x, y), clamping out-of-range
// coordinates to the edge.
func (b *cpuBuffer) index(x, y int) int {
	w, h := b.grid.Width, b.grid.Height
	if uint(x) >= uint(w) {
		x = clampCoord(x, 0, w-1)
	}
	if uint(y) >= uint(h) {
		y = clampCoord(y, 0, h-1)
	}
	return (y*w + x) * 4
}

func (b *cpuBuffer) at(x, y int) [4]float32 {
	i := b.index(x, y)
	return [4]float32(b.data[i : i+4])
}

// ch reads a single channel of texel (x, y).
func (b *cpuBuffer) ch(x, y, k int) float32 { return b.data[b.index(x, y)+k] }

// sample fetches the texel containing the continuous position (px, py).
func (b *cpuBuffer) sample(px, py float32) [4]float32 {
	return b.at(int(math.Floor(float64(px))), int(math.Floor(float64(py))))
}

// bilerp interpolates the four texels around (px, py), texel centres at +0.5.
func (b *cpuBuffer) bilerp(px, py float32) [4]float32 {
	sx, sy := float64(px)-0.5, float64(py)-0.5
	fx, fy := math.Floor(sx), math.Floor(sy)
	tx, ty := float32(sx-fx), float32(sy-fy)
	ix, iy := int(fx), int(fy)
	a, c := b.at(ix, iy), b.at(ix+1, iy)
	d, e := b.at(ix, iy+1), b.at(ix+1, iy+1)
	var out [4]float32
	for k := range out {
		bottom := a[k] + (c[k]-a[k])*tx
		top := d[k] + (e[k]-d[k])*tx
		out[k] = bottom + (top-bottom)*ty
	}
	return out
}

type cpuProgram struct {
	owner  *CPUBackend
	name   string
	kernel cpuKernel
	closed bool
}

func (p *cpuProgram) Release() error {
	p.closed = true
	return nil
}

// NewCPUBackend returns a ready reference backend.
func NewCPUBackend() *CPUBackend { return &CPUBackend{} }

// NewBuffer allocates a zeroed float4 buffer.
func (c *CPUBackend) NewBuffer(grid Grid) (Buffer, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	return &cpuBuffer{owner: c, grid: grid, data: make([]float32, grid.Cells()*4)}, nil
}

// Compile looks the kernel up by name. The source must be present even though
// the Go implementation runs instead, so a missing asset fails here as it
// would on a device.
func (c *CPUBackend) Compile(name string, source []byte, schema Schema) (Program, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if len(source) == 0 {
		return nil, fmt.Errorf("%w: %s has no source", ErrMissingKernel, name)
	}
	k, ok := cpuKernels[name]
	if !ok {
		return nil, fmt.Errorf("%w: no reference kernel %q", ErrMissingKernel, name)
	}
	if want := Schemas[name]; !want.Equal(schema) {
		return nil, fmt.Errorf("%w: %s declares %v, kernel takes %v", ErrKindMismatch, name, schema, want)
	}
	return &cpuProgram{owner: c, name: name, kernel: k}, nil
}

// Render dispatches p over the grid.
func (c *CPUBackend) Render(p Program, args []Arg, dst Buffer) error {
	if c.closed {
		return ErrClosed
	}
	prog, ok := p.(*cpuProgram)
	if !ok || prog.owner != c {
		return fmt.Errorf("%w: program %T", ErrForeignBuffer, p)
	}
	if prog.closed {
		return fmt.Errorf("program %s released", prog.name)
	}
	call := cpuCall{args: args, tex: make([]*cpuBuffer, len(args))}
	var grid Grid
	for i, a := range args {
		if a.Kind != KindTexture {
			continue
		}
		buf, err := c.own(a.Buffer)
		if err != nil {
			return fmt.Errorf("uniform %s: %w", a.Name, err)
		}
		if dst != nil && a.Buffer == dst {
			return fmt.Errorf("%w: uniform %s", ErrHazard, a.Name)
		}
		if grid.Cells() == 0 {
			grid = buf.grid
		} else if buf.grid != grid {
			return fmt.Errorf("%w: uniform %s", ErrGridMismatch, a.Name)
		}
		call.tex[i] = buf
	}

	if dst == nil {
		if grid.Cells() == 0 {
			return fmt.Errorf("%w: terminal pass %s binds no texture", ErrGridMismatch, prog.name)
		}
		if c.surface == nil || c.surface.Width != grid.Width || c.surface.Height != grid.Height {
			c.surface = NewSurface(grid.Width, grid.Height)
		}
		call.grid = grid
		pix := c.surface.Pix
		for y := 0; y < grid.Height; y++ {
			row := (grid.Height - 1 - y) * grid.Width * 4
			for x := 0; x < grid.Width; x++ {
				v := prog.kernel(&call, x, y)
				i := row + x*4
				pix[i] = toByte(v[0])
				pix[i+1] = toByte(v[1])
				pix[i+2] = toByte(v[2])
				pix[i+3] = toByte(v[3])
			}
		}
		return nil
	}

	out, err := c.own(dst)
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if grid.Cells() != 0 && out.grid != grid {
		return fmt.Errorf("%w: output", ErrGridMismatch)
	}
	call.grid = out.grid
	for y := 0; y < out.grid.Height; y++ {
		for x := 0; x < out.grid.Width; x++ {
			v := prog.kernel(&call, x, y)
			i := (y*out.grid.Width + x) * 4
			copy(out.data[i:i+4], v[:])
		}
	}
	return nil
}

// Clear zeroes every channel of dst.
func (c *CPUBackend) Clear(dst Buffer) error {
	if c.closed {
		return ErrClosed
	}
	buf, err := c.own(dst)
	if err != nil {
		return err
	}
	clear(buf.data)
	return nil
}

// ReadBuffer copies src into dst, which must hold four floats per cell.
func (c *CPUBackend) ReadBuffer(src Buffer, dst []float32) error {
	buf, err := c.own(src)
	if err != nil {
		return err
	}
	if len(dst) < len(buf.data) {
		return fmt.Errorf("%w: need %d floats, have %d", ErrGridMismatch, len(buf.data), len(dst))
	}
	copy(dst, buf.data)
	return nil
}

// Surface returns the image the last terminal pass drew.
func (c *CPUBackend) Surface() *Surface { return c.surface }

// Close marks the backend unusable.
func (c *CPUBackend) Close() error {
	c.closed = true
	return nil
}

func (c *CPUBackend) own(b Buffer) (*cpuBuffer, error) {
	buf, ok := b.(*cpuBuffer)
	if !ok || buf.owner != c {
		return nil, fmt.Errorf("%w: %T", ErrForeignBuffer, b)
	}
	if buf.data == nil {
		return nil, fmt.Errorf("buffer released")
	}
	return buf, nil
}
