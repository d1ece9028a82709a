package main

import "time"

// Driver configuration constants. Grid and tunable defaults live in the
// settings package; these values shape the window, the keyboard controls and
// the auxiliary servers.
const (
	windowTitle      = "fluids2d"
	defaultTPS       = 60
	timestepStep     = 1
	dissipationStep  = 0.001
	radiusStep       = 0.05
	settingsDebounce = 200 * time.Millisecond
	shutdownTimeout  = 2 * time.Second

	backendOpenCL = "opencl"
	backendCPU    = "cpu"
)
