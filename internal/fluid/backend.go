package fluid

import "image"

// Buffer is a grid-sized, four channel float store owned by a backend.
type Buffer interface {
	Release() error
}

// Program is a compiled kernel ready to be dispatched over the grid.
type Program interface {
	Release() error
}

// Backend is the render device the pipeline drives. Every Render evaluates the
// program once per grid cell (the full-screen quad) and writes dst, or the
// presentation surface when dst is nil.
type Backend interface {
	NewBuffer(grid Grid) (Buffer, error)
	Compile(name string, source []byte, schema Schema) (Program, error)
	Render(p Program, args []Arg, dst Buffer) error
	Clear(dst Buffer) error
	ReadBuffer(src Buffer, dst []float32) error
	Surface() *Surface
	Close() error
}

// Surface is the RGBA8 image terminal passes draw into. Row 0 is the top of
// the screen.
type Surface struct {
	Width, Height int
	Pix           []byte
}

// NewSurface allocates an opaque black surface.
func NewSurface(width, height int) *Surface {
	s := &Surface{Width: width, Height: height, Pix: make([]byte, width*height*4)}
	for i := 3; i < len(s.Pix); i += 4 {
		s.Pix[i] = 255
	}
	return s
}

// RGBA wraps the pixels without copying.
func (s *Surface) RGBA() *image.RGBA {
	return &image.RGBA{Pix: s.Pix, Stride: s.Width * 4, Rect: image.Rect(0, 0, s.Width, s.Height)}
}

// toByte quantises a [0,1] channel.
func toByte(v float32) byte {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return byte(v*255 + 0.5)
}
