//go:build !opencl

// Package clgpu runs fluid passes as OpenCL kernels.
package clgpu

import (
	"errors"

	"go.uber.org/zap"

	"fluids2d/internal/fluid"
)

// Available reports whether this build carries the OpenCL backend.
func Available() bool { return false }

// New always fails in builds without OpenCL support.
func New(_ []byte, _ *zap.Logger) (fluid.Backend, error) {
	return nil, errors.New("OpenCL support is not enabled; rebuild with -tags opencl")
}
