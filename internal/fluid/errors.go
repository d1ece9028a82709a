package fluid

import "errors"

var (
	ErrInvalidGrid    = errors.New("invalid grid")
	ErrGridMismatch   = errors.New("buffer does not match grid")
	ErrUnknownUniform = errors.New("unknown uniform")
	ErrMissingUniform = errors.New("missing uniform")
	ErrKindMismatch   = errors.New("uniform kind mismatch")
	ErrDuplicate      = errors.New("duplicate uniform")
	ErrMissingKernel  = errors.New("missing kernel")
	ErrForeignBuffer  = errors.New("buffer belongs to another backend")
	ErrClosed         = errors.New("backend closed")
	ErrUnknownMode    = errors.New("unknown display mode")
	ErrHazard         = errors.New("pass reads the buffer it writes")
)
