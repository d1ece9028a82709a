package main

import "flag"

// Command-line flags that select the backend, the grid and the optional
// runtime services.
var (
	// backendFlag picks the device the passes run on.
	backendFlag = flag.String("backend", backendOpenCL, "compute backend: opencl or cpu (opencl falls back to cpu when unavailable)")

	// configFlag names a YAML settings file. It is watched and reapplied on change.
	configFlag = flag.String("config", "", "YAML settings file, reloaded when edited")

	// Grid flags are ignored when -config names an existing file; the file's
	// grid section wins. A missing file is created from them.
	widthFlag  = flag.Int("width", 640, "grid width in cells")
	heightFlag = flag.Int("height", 360, "grid height in cells")
	scaleFlag  = flag.Float64("scale", 1, "grid scale (cell spacing factor)")

	// windowScaleFlag sets the initial window size as a multiple of the grid.
	windowScaleFlag = flag.Int("window-scale", 2, "initial window size as a multiple of the grid")

	// debugFlag enables the FPS and parameter overlay and development logging.
	debugFlag = flag.Bool("debug", false, "show FPS and parameter overlay, log at debug level")

	metricsAddrFlag = flag.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9102)")

	// cpuProfileFlag writes a pprof CPU profile to the given path.
	cpuProfileFlag      = flag.String("cpuprofile", "", "write a CPU profile to this file")
	profileDurationFlag = flag.Duration("profile-duration", 0, "stop CPU profiling after this long (0 profiles until exit)")
)

// gridFlagsSet reports whether any grid flag was given on the command line.
func gridFlagsSet() bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "width", "height", "scale":
			set = true
		}
	})
	return set
}
