package fluid

import "math"

// cpuKernel computes the output texel for fragment (x, y). Arguments are
// addressed by schema position.
type cpuKernel func(c *cpuCall, x, y int) [4]float32

type cpuCall struct {
	grid Grid
	args []Arg
	tex  []*cpuBuffer
}

func (c *cpuCall) scalar(i int) float32 { return c.args[i].Scalar }

func (c *cpuCall) vec(i int) [3]float32 { return c.args[i].Vec }

var cpuKernels = map[string]cpuKernel{
	KernelAdvect:        advectKernel,
	KernelMouse:         mouseKernel,
	KernelDivergence:    divergenceKernel,
	KernelGradient:      gradientKernel,
	KernelJacobiScalar:  jacobiScalarKernel,
	KernelScalarDisplay: scalarDisplayKernel,
	KernelVectorDisplay: vectorDisplayKernel,
}

// fragCoord returns the pixel centre of cell (x, y), origin bottom-left.
func fragCoord(x, y int) (float32, float32) { return float32(x) + 0.5, float32(y) + 0.5 }

// advectKernel traces the cell centre back along velocity and samples the
// transported quantity there (semi-Lagrangian).
func advectKernel(c *cpuCall, x, y int) [4]float32 {
	velocity, advected := c.tex[0], c.tex[1]
	gridScale, timestep, dissipation := c.scalar(3), c.scalar(4), c.scalar(5)
	fx, fy := fragCoord(x, y)
	v := velocity.sample(fx, fy)
	rdx := 1 / gridScale
	q := advected.bilerp(fx-timestep*rdx*v[0], fy-timestep*rdx*v[1])
	return [4]float32{dissipation * q[0], dissipation * q[1], dissipation * q[2], 1}
}

// mouseKernel adds a gaussian splat of color centred on point.
func mouseKernel(c *cpuCall, x, y int) [4]float32 {
	base := c.tex[0].at(x, y)
	size, color, point := c.vec(1), c.vec(2), c.vec(3)
	radius := c.scalar(4)
	fx, fy := fragCoord(x, y)
	dx, dy := point[0]-fx, point[1]-fy
	var g float32
	if r := size[0] * radius; r > 0 {
		g = float32(math.Exp(float64(-(dx*dx + dy*dy) / r)))
	}
	return [4]float32{base[0] + color[0]*g, base[1] + color[1]*g, base[2] + color[2]*g, 1}
}

func divergenceKernel(c *cpuCall, x, y int) [4]float32 {
	w := c.tex[0]
	halfrdx := 0.5 / c.scalar(2)
	l, r := w.ch(x-1, y, 0), w.ch(x+1, y, 0)
	b, t := w.ch(x, y-1, 1), w.ch(x, y+1, 1)
	return [4]float32{halfrdx * ((r - l) + (t - b)), 0, 0, 1}
}

// jacobiScalarKernel performs one relaxation sweep of the 5-point Laplacian.
func jacobiScalarKernel(c *cpuCall, x, y int) [4]float32 {
	p, rhs := c.tex[0], c.tex[1]
	alpha, beta := c.scalar(3), c.scalar(4)
	l, r := p.ch(x-1, y, 0), p.ch(x+1, y, 0)
	b, t := p.ch(x, y-1, 0), p.ch(x, y+1, 0)
	return [4]float32{(l + r + b + t + alpha*rhs.ch(x, y, 0)) / beta, 0, 0, 1}
}

func gradientKernel(c *cpuCall, x, y int) [4]float32 {
	p, w := c.tex[0], c.tex[1]
	halfrdx := 0.5 / c.scalar(3)
	l, r := p.ch(x-1, y, 0), p.ch(x+1, y, 0)
	b, t := p.ch(x, y-1, 0), p.ch(x, y+1, 0)
	i := w.index(x, y)
	return [4]float32{w.data[i] - halfrdx*(r-l), w.data[i+1] - halfrdx*(t-b), 0, 1}
}

func scalarDisplayKernel(c *cpuCall, x, y int) [4]float32 {
	v := c.tex[0].at(x, y)
	bias, scale := c.vec(1), c.vec(2)
	return [4]float32{bias[0] + scale[0]*v[0], bias[1] + scale[1]*v[1], bias[2] + scale[2]*v[2], 1}
}

func vectorDisplayKernel(c *cpuCall, x, y int) [4]float32 {
	v := c.tex[0].at(x, y)
	return [4]float32{0.5 + 0.5*v[0], 0.5 + 0.5*v[1], 0.5 + 0.5*v[2], 1}
}
