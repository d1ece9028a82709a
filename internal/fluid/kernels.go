package fluid

// Kernel keys. Each names one source file and one compiled program.
const (
	KernelBasic         = "basic"
	KernelAdvect        = "advect"
	KernelMouse         = "mouse"
	KernelDivergence    = "divergence"
	KernelGradient      = "gradient"
	KernelJacobiScalar  = "jacobiscalar"
	KernelScalarDisplay = "scalardisplay"
	KernelVectorDisplay = "vectordisplay"
)

// KernelNames lists every source a simulation needs, prelude first.
var KernelNames = []string{
	KernelBasic,
	KernelAdvect,
	KernelMouse,
	KernelDivergence,
	KernelGradient,
	KernelJacobiScalar,
	KernelScalarDisplay,
	KernelVectorDisplay,
}

// Schemas declares the uniforms of every dispatchable kernel. The basic
// prelude is shared code and has no schema.
var Schemas = map[string]Schema{
	KernelAdvect: {
		{"velocity", KindTexture},
		{"advected", KindTexture},
		{"gridSize", KindVec2},
		{"gridScale", KindScalar},
		{"timestep", KindScalar},
		{"dissipation", KindScalar},
	},
	KernelMouse: {
		{"read", KindTexture},
		{"gridSize", KindVec2},
		{"color", KindVec3},
		{"point", KindVec2},
		{"radius", KindScalar},
	},
	KernelDivergence: {
		{"velocity", KindTexture},
		{"gridSize", KindVec2},
		{"gridScale", KindScalar},
	},
	KernelGradient: {
		{"p", KindTexture},
		{"w", KindTexture},
		{"gridSize", KindVec2},
		{"gridScale", KindScalar},
	},
	KernelJacobiScalar: {
		{"x", KindTexture},
		{"b", KindTexture},
		{"gridSize", KindVec2},
		{"alpha", KindScalar},
		{"beta", KindScalar},
	},
	KernelScalarDisplay: {
		{"read", KindTexture},
		{"bias", KindVec3},
		{"scale", KindVec3},
	},
	KernelVectorDisplay: {
		{"read", KindTexture},
	},
}
