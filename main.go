package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"fluids2d/internal/clgpu"
	"fluids2d/internal/fluid"
	"fluids2d/internal/settings"
	"fluids2d/kernels"
)

func main() {
	flag.Parse()
	logger, err := newLogger(*debugFlag)
	if err != nil {
		log.Fatalf("creating logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Fatal("fluids2d stopped", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *cpuProfileFlag != "" {
		stop, err := startCPUProfile(*cpuProfileFlag, *profileDurationFlag, logger)
		if err != nil {
			return fmt.Errorf("starting CPU profile: %w", err)
		}
		defer stop()
	}

	sources, err := fluid.LoadKernels(ctx, kernels.FS, fluid.KernelNames)
	if err != nil {
		return err
	}

	backend, device, err := openBackend(*backendFlag, sources[fluid.KernelBasic], logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("closing backend", zap.Error(err))
		}
	}()
	_, onCPU := backend.(*fluid.CPUBackend)

	cfg, err := initialSettings(onCPU, logger)
	if err != nil {
		return err
	}
	params, err := cfg.Params()
	if err != nil {
		return err
	}
	grid := cfg.FluidGrid()

	var rec *fluid.Recorder
	if *metricsAddrFlag != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if rec, err = fluid.NewRecorder(reg); err != nil {
			return err
		}
		defer serveMetrics(newMetricsServer(*metricsAddrFlag, reg), logger)()
	}

	scale := max(*windowScaleFlag, 1)
	winW, winH := grid.Width*scale, grid.Height*scale
	sim, err := fluid.New(backend, grid, sources,
		fluid.WithLogger(logger.Named("fluid")),
		fluid.WithMetrics(rec),
		fluid.WithParams(params),
		fluid.WithWindowSize(winW, winH),
		fluid.WithJacobiIterations(cfg.JacobiIterations),
	)
	if err != nil {
		return fmt.Errorf("assembling simulation: %w", err)
	}
	defer func() {
		if err := sim.Close(); err != nil {
			logger.Warn("closing simulation", zap.Error(err))
		}
	}()

	if onCPU {
		warnCPUFrameCost(sim, logger)
	}

	var updates <-chan settings.Settings
	if *configFlag != "" {
		watcher, err := settings.Watch(ctx, *configFlag, settingsDebounce, logger.Named("settings"))
		if err != nil {
			logger.Warn("live settings reload disabled", zap.Error(err))
		} else {
			defer watcher.Close()
			updates = watcher.Updates()
		}
	}

	g := newGame(sim, cfg, device, logger, updates, ctx.Done())
	ebiten.SetWindowSize(winW, winH)
	ebiten.SetWindowTitle(windowTitle)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetTPS(defaultTPS)
	if err := ebiten.RunGame(g); err != nil && !errors.Is(err, ebiten.Termination) {
		return err
	}
	return nil
}

// initialSettings reads -config when given, otherwise builds settings from
// the grid flags. A missing config file is written from the flag defaults so
// it can be edited live. Without explicit grid flags the CPU backend starts
// on the smaller settings.CPUGrid.
func initialSettings(onCPU bool, logger *zap.Logger) (settings.Settings, error) {
	s := settings.Default()
	s.Grid = settings.Grid{Width: *widthFlag, Height: *heightFlag, Scale: float32(*scaleFlag)}
	reduced := onCPU && !gridFlagsSet()
	if reduced {
		s.Grid = settings.CPUGrid
	}
	if *configFlag != "" {
		loaded, created, err := settings.LoadOrCreate(*configFlag, s)
		if err != nil {
			return settings.Settings{}, err
		}
		if created {
			logger.Info("wrote default settings file", zap.String("path", *configFlag))
		}
		reduced = reduced && created
		s = loaded
	} else if err := s.Validate(); err != nil {
		return settings.Settings{}, err
	}
	if reduced {
		logger.Info("CPU backend selected a reduced default grid, set -width and -height to override",
			zap.Int("width", s.Grid.Width), zap.Int("height", s.Grid.Height))
	}
	return s, nil
}

// warnCPUFrameCost times one step on the still empty fields and warns when
// the CPU backend cannot hold the tick rate.
func warnCPUFrameCost(sim *fluid.Simulation, logger *zap.Logger) {
	start := time.Now()
	if err := sim.Step(nil); err != nil {
		return
	}
	cost := time.Since(start)
	budget := time.Second / defaultTPS
	if cost <= budget {
		return
	}
	g := sim.Grid()
	logger.Warn("CPU backend is slower than the frame budget, shrink the grid or build with -tags opencl",
		zap.Duration("step", cost),
		zap.Duration("budget", budget),
		zap.Float64("expected_fps", float64(time.Second)/float64(cost)),
		zap.Int("cells", g.Cells()),
		zap.Int("jacobi_iterations", sim.Iterations()))
}

// openBackend creates the requested backend and names the device it runs on.
// OpenCL failures fall back to the CPU backend.
func openBackend(name string, prelude []byte, logger *zap.Logger) (fluid.Backend, string, error) {
	switch name {
	case backendCPU:
		logger.Info("using CPU backend")
		return fluid.NewCPUBackend(), backendCPU, nil
	case backendOpenCL:
		if !clgpu.Available() {
			logger.Warn("built without OpenCL support (rebuild with -tags opencl), using CPU backend")
			return fluid.NewCPUBackend(), backendCPU, nil
		}
		b, err := clgpu.New(prelude, logger.Named("opencl"))
		if err != nil {
			logger.Warn("OpenCL initialization failed, using CPU backend", zap.Error(err))
			return fluid.NewCPUBackend(), backendCPU, nil
		}
		device := backendOpenCL
		if d, ok := b.(interface{ DeviceName() string }); ok {
			device += ": " + d.DeviceName()
		}
		return b, device, nil
	}
	return nil, "", fmt.Errorf("unknown backend %q (want %s or %s)", name, backendOpenCL, backendCPU)
}
