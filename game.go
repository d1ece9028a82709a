package main

import (
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"go.uber.org/zap"

	"fluids2d/internal/fluid"
	"fluids2d/internal/settings"
)

// Game drives one Simulation from the ebiten frame loop.
type Game struct {
	sim     *fluid.Simulation
	device  string
	input   *fluid.Aggregator
	logger  *zap.Logger
	updates <-chan settings.Settings
	done    <-chan struct{}

	// cfg is the last applied settings revision.
	cfg settings.Settings

	cursorX, cursorY int

	frame            *ebiten.Image
	screenW, screenH int

	lastStep      time.Duration
	lastRender    time.Duration
	droppedFrames int
}

// newGame wires the simulation to the input aggregator and the optional
// settings stream.
func newGame(sim *fluid.Simulation, cfg settings.Settings, device string, logger *zap.Logger, updates <-chan settings.Settings, done <-chan struct{}) *Game {
	return &Game{
		sim:     sim,
		device:  device,
		input:   fluid.NewAggregator(sim.Grid()),
		logger:  logger,
		updates: updates,
		done:    done,
		cfg:     cfg,
	}
}

// Update applies settings and controls, feeds pointer input and advances the
// simulation by one step. A failed step is skipped; the loop keeps running.
func (g *Game) Update() error {
	select {
	case <-g.done:
		return ebiten.Termination
	default:
	}

	select {
	case s := <-g.updates:
		g.applySettings(s)
	default:
	}

	g.handleControls()
	g.pollPointer()

	start := time.Now()
	if err := g.sim.Step(g.input.Drain()); err != nil {
		g.droppedFrames++
	}
	g.lastStep = time.Since(start)
	return nil
}

// applySettings reconciles a reloaded settings file with the running
// simulation. A resize keeps the aggregator so an active drag continues.
func (g *Game) applySettings(s settings.Settings) {
	var resized bool
	g.cfg, resized = settings.Apply(g.sim, g.cfg, s, g.logger)
	if resized {
		g.input.SetScale(g.sim.Grid().Scale)
	}
}

// clearFields zeroes the simulation state.
func (g *Game) clearFields() {
	if err := g.sim.ClearAll(); err != nil {
		g.logger.Error("clear failed", zap.Error(err))
	}
}
