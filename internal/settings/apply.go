package settings

import (
	"go.uber.org/zap"

	"fluids2d/internal/fluid"
)

// Simulation is the part of a running fluid.Simulation a revision touches.
type Simulation interface {
	Grid() fluid.Grid
	Resize(fluid.Grid) error
	ClearAll() error
	SetJacobiIterations(int) error
	SetParams(fluid.Params) error
	Params() fluid.Params
	Iterations() int
}

// Apply reconciles next with sim and returns the revision that now describes
// it, plus whether the grid changed. Rejected values keep prev's. Clear fires
// on its rising edge.
func Apply(sim Simulation, prev, next Settings, logger *zap.Logger) (Settings, bool) {
	if logger == nil {
		logger = zap.NewNop()
	}
	resized := false
	if grid := next.FluidGrid(); grid != sim.Grid() {
		if err := sim.Resize(grid); err != nil {
			logger.Error("resize rejected", zap.Error(err))
			next.Grid = prev.Grid
		} else {
			resized = true
		}
	}
	if next.Clear && !prev.Clear {
		if err := sim.ClearAll(); err != nil {
			logger.Error("clear failed", zap.Error(err))
		}
	}
	if err := sim.SetJacobiIterations(next.JacobiIterations); err != nil {
		logger.Warn("jacobi iterations rejected", zap.Error(err))
		next.JacobiIterations = prev.JacobiIterations
	}
	params, err := next.Params()
	if err == nil {
		err = sim.SetParams(params)
	}
	if err != nil {
		logger.Warn("parameters rejected", zap.Error(err))
		next.Mode = prev.Mode
	}

	params = sim.Params()
	logger.Info("settings applied",
		zap.Stringer("mode", params.Mode),
		zap.Float32("timestep", params.Timestep),
		zap.Float32("dissipation", params.Dissipation),
		zap.Float32("radius", params.Radius),
		zap.Bool("paused", params.Paused),
		zap.Int("jacobi_iterations", sim.Iterations()))
	return next, resized
}
