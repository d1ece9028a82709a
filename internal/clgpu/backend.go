//go:build opencl

// Package clgpu runs fluid passes as OpenCL kernels.
package clgpu

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"fluids2d/internal/fluid"
)

const float4Size = 4 * int(unsafe.Sizeof(float32(0)))

// Backend owns one OpenCL context and command queue.
type Backend struct {
	context    *cl.Context
	queue      *cl.CommandQueue
	device     *cl.Device
	deviceName string
	prelude    string
	logger     *zap.Logger

	surface    *fluid.Surface
	surfaceBuf *cl.MemObject
	zeros      []float32
	closed     bool
}

type buffer struct {
	owner *Backend
	grid  fluid.Grid
	mem   *cl.MemObject
}

func (b *buffer) Release() error {
	if b.mem != nil {
		b.mem.Release()
		b.mem = nil
	}
	return nil
}

type program struct {
	owner   *Backend
	name    string
	program *cl.Program
	kernel  *cl.Kernel
	schema  fluid.Schema
	surface bool
}

func (p *program) Release() error {
	if p.kernel != nil {
		p.kernel.Release()
		p.kernel = nil
	}
	if p.program != nil {
		p.program.Release()
		p.program = nil
	}
	return nil
}

// Available reports whether this build carries the OpenCL backend.
func Available() bool { return true }

// New selects a GPU device, falling back to a CPU device, and prepares a
// context. prelude is compiled in front of every kernel source.
func New(prelude []byte, logger *zap.Logger) (fluid.Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	platforms, err := cl.GetPlatforms()
	if err != nil {
		msg := "querying OpenCL platforms"
		if strings.Contains(err.Error(), "-1001") {
			msg += ": no ICD loader reported any platforms; install OpenCL drivers and verify with `clinfo`"
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	if len(platforms) == 0 {
		return nil, errors.New("no OpenCL platforms available; ensure a vendor driver is installed and detected by `clinfo`")
	}
	device := pickDevice(platforms, cl.DeviceTypeGPU)
	if device == nil {
		device = pickDevice(platforms, cl.DeviceTypeCPU)
	}
	if device == nil {
		return nil, errors.New("no suitable OpenCL devices found")
	}
	context, err := cl.CreateContext([]*cl.Device{device})
	if err != nil {
		return nil, fmt.Errorf("creating OpenCL context: %w", err)
	}
	queue, err := context.CreateCommandQueue(device, 0)
	if err != nil {
		context.Release()
		return nil, fmt.Errorf("creating OpenCL command queue: %w", err)
	}
	b := &Backend{
		context:    context,
		queue:      queue,
		device:     device,
		deviceName: device.Name(),
		prelude:    string(prelude),
		logger:     logger,
	}
	logger.Info("OpenCL backend ready", zap.String("device", b.deviceName))
	return b, nil
}

func pickDevice(platforms []*cl.Platform, kind cl.DeviceType) *cl.Device {
	for _, p := range platforms {
		devices, err := p.GetDevices(kind)
		if err != nil && err != cl.ErrDeviceNotFound {
			continue
		}
		if len(devices) > 0 {
			return devices[0]
		}
	}
	return nil
}

// DeviceName returns the selected device.
func (b *Backend) DeviceName() string { return b.deviceName }

// NewBuffer allocates a zeroed float4 device buffer.
func (b *Backend) NewBuffer(grid fluid.Grid) (fluid.Buffer, error) {
	if b.closed {
		return nil, fluid.ErrClosed
	}
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	mem, err := b.context.CreateEmptyBuffer(cl.MemReadWrite, grid.Cells()*float4Size)
	if err != nil {
		return nil, fmt.Errorf("allocating %dx%d buffer: %w", grid.Width, grid.Height, err)
	}
	buf := &buffer{owner: b, grid: grid, mem: mem}
	if err := b.Clear(buf); err != nil {
		mem.Release()
		return nil, err
	}
	return buf, nil
}

// Compile builds prelude + source and looks up the kernel named after the key.
func (b *Backend) Compile(name string, source []byte, schema fluid.Schema) (fluid.Program, error) {
	if b.closed {
		return nil, fluid.ErrClosed
	}
	if len(source) == 0 {
		return nil, fmt.Errorf("%w: %s has no source", fluid.ErrMissingKernel, name)
	}
	prog, err := b.context.CreateProgramWithSource([]string{b.prelude, string(source)})
	if err != nil {
		return nil, fmt.Errorf("creating OpenCL program %s: %w", name, err)
	}
	if err := prog.BuildProgram([]*cl.Device{b.device}, ""); err != nil {
		prog.Release()
		if buildErr, ok := err.(cl.BuildError); ok {
			return nil, fmt.Errorf("building OpenCL program %s: %s", name, string(buildErr))
		}
		return nil, fmt.Errorf("building OpenCL program %s: %w", name, err)
	}
	kernel, err := prog.CreateKernel(name)
	if err != nil {
		prog.Release()
		return nil, fmt.Errorf("creating OpenCL kernel %s: %w", name, err)
	}
	return &program{
		owner:   b,
		name:    name,
		program: prog,
		kernel:  kernel,
		schema:  append(fluid.Schema(nil), schema...),
		surface: name == fluid.KernelScalarDisplay || name == fluid.KernelVectorDisplay,
	}, nil
}

// Render sets the uniforms as kernel arguments in schema order, followed by
// the output buffer and the grid dimensions, and dispatches one work item
// per cell.
func (b *Backend) Render(p fluid.Program, args []fluid.Arg, dst fluid.Buffer) error {
	if b.closed {
		return fluid.ErrClosed
	}
	prog, ok := p.(*program)
	if !ok || prog.owner != b || prog.kernel == nil {
		return fmt.Errorf("%w: program %T", fluid.ErrForeignBuffer, p)
	}
	var grid fluid.Grid
	for i, a := range args {
		if err := b.setArg(prog.kernel, i, a, dst, &grid); err != nil {
			return fmt.Errorf("uniform %s: %w", a.Name, err)
		}
	}
	var out *cl.MemObject
	if dst == nil {
		if !prog.surface {
			return fmt.Errorf("pass %s cannot target the surface", prog.name)
		}
		if err := b.ensureSurface(grid); err != nil {
			return err
		}
		out = b.surfaceBuf
	} else {
		buf, err := b.own(dst)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		if grid.Cells() != 0 && buf.grid != grid {
			return fmt.Errorf("%w: output", fluid.ErrGridMismatch)
		}
		grid = buf.grid
		out = buf.mem
	}
	n := len(args)
	if err := prog.kernel.SetArgBuffer(n, out); err != nil {
		return fmt.Errorf("binding output: %w", err)
	}
	if err := prog.kernel.SetArgInt32(n+1, int32(grid.Width)); err != nil {
		return fmt.Errorf("binding width: %w", err)
	}
	if err := prog.kernel.SetArgInt32(n+2, int32(grid.Height)); err != nil {
		return fmt.Errorf("binding height: %w", err)
	}
	if _, err := b.queue.EnqueueNDRangeKernel(prog.kernel, nil, []int{grid.Cells()}, nil, nil); err != nil {
		return fmt.Errorf("enqueueing kernel %s: %w", prog.name, err)
	}
	if dst == nil {
		pix := b.surface.Pix
		if _, err := b.queue.EnqueueReadBuffer(b.surfaceBuf, true, 0, len(pix), unsafe.Pointer(&pix[0]), nil); err != nil {
			return fmt.Errorf("reading surface: %w", err)
		}
	}
	return nil
}

func (b *Backend) setArg(k *cl.Kernel, i int, a fluid.Arg, dst fluid.Buffer, grid *fluid.Grid) error {
	switch a.Kind {
	case fluid.KindScalar:
		return k.SetArgFloat32(i, a.Scalar)
	case fluid.KindVec2:
		v := [2]float32{a.Vec[0], a.Vec[1]}
		return k.SetArgUnsafe(i, int(unsafe.Sizeof(v)), unsafe.Pointer(&v))
	case fluid.KindVec3:
		v := [4]float32{a.Vec[0], a.Vec[1], a.Vec[2], 0}
		return k.SetArgUnsafe(i, int(unsafe.Sizeof(v)), unsafe.Pointer(&v))
	case fluid.KindTexture:
		buf, err := b.own(a.Buffer)
		if err != nil {
			return err
		}
		if dst != nil && a.Buffer == dst {
			return fluid.ErrHazard
		}
		if grid.Cells() == 0 {
			*grid = buf.grid
		} else if *grid != buf.grid {
			return fluid.ErrGridMismatch
		}
		return k.SetArgBuffer(i, buf.mem)
	}
	return fmt.Errorf("%w: %s", fluid.ErrKindMismatch, a.Kind)
}

func (b *Backend) ensureSurface(grid fluid.Grid) error {
	if grid.Cells() == 0 {
		return fmt.Errorf("%w: terminal pass binds no texture", fluid.ErrGridMismatch)
	}
	if b.surface != nil && b.surface.Width == grid.Width && b.surface.Height == grid.Height {
		return nil
	}
	if b.surfaceBuf != nil {
		b.surfaceBuf.Release()
		b.surfaceBuf = nil
	}
	mem, err := b.context.CreateEmptyBuffer(cl.MemWriteOnly, grid.Cells()*4)
	if err != nil {
		return fmt.Errorf("allocating surface: %w", err)
	}
	b.surfaceBuf = mem
	b.surface = fluid.NewSurface(grid.Width, grid.Height)
	return nil
}

// Clear uploads zeros over dst.
func (b *Backend) Clear(dst fluid.Buffer) error {
	if b.closed {
		return fluid.ErrClosed
	}
	buf, err := b.own(dst)
	if err != nil {
		return err
	}
	n := buf.grid.Cells() * 4
	if cap(b.zeros) < n {
		b.zeros = make([]float32, n)
	}
	if _, err := b.queue.EnqueueWriteBufferFloat32(buf.mem, true, 0, b.zeros[:n], nil); err != nil {
		return fmt.Errorf("clearing buffer: %w", err)
	}
	return nil
}

// ReadBuffer copies src back to the host.
func (b *Backend) ReadBuffer(src fluid.Buffer, dst []float32) error {
	buf, err := b.own(src)
	if err != nil {
		return err
	}
	n := buf.grid.Cells() * 4
	if len(dst) < n {
		return fmt.Errorf("%w: need %d floats, have %d", fluid.ErrGridMismatch, n, len(dst))
	}
	if _, err := b.queue.EnqueueReadBufferFloat32(buf.mem, true, 0, dst[:n], nil); err != nil {
		return fmt.Errorf("reading buffer: %w", err)
	}
	return nil
}

// Surface returns the last presented image.
func (b *Backend) Surface() *fluid.Surface { return b.surface }

// Close waits for queued work and releases the device objects.
func (b *Backend) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	var err error
	if b.queue != nil {
		err = multierr.Append(err, b.queue.Finish())
	}
	if b.surfaceBuf != nil {
		b.surfaceBuf.Release()
		b.surfaceBuf = nil
	}
	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.context != nil {
		b.context.Release()
		b.context = nil
	}
	return err
}

func (b *Backend) own(x fluid.Buffer) (*buffer, error) {
	buf, ok := x.(*buffer)
	if !ok || buf.owner != b {
		return nil, fmt.Errorf("%w: %T", fluid.ErrForeignBuffer, x)
	}
	if buf.mem == nil {
		return nil, errors.New("buffer released")
	}
	return buf, nil
}
