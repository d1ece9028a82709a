package main

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"go.uber.org/zap"

	"fluids2d/internal/fluid"
)

var pointerButtons = [...]struct {
	mouse  ebiten.MouseButton
	button fluid.Button
}{
	{ebiten.MouseButtonLeft, fluid.ButtonLeft},
	{ebiten.MouseButtonMiddle, fluid.ButtonMiddle},
	{ebiten.MouseButtonRight, fluid.ButtonRight},
}

var modeKeys = [...][2]ebiten.Key{
	fluid.ModeVelocity:   {ebiten.KeyDigit1, ebiten.KeyNumpad1},
	fluid.ModeDensity:    {ebiten.KeyDigit2, ebiten.KeyNumpad2},
	fluid.ModeDivergence: {ebiten.KeyDigit3, ebiten.KeyNumpad3},
	fluid.ModePressure:   {ebiten.KeyDigit4, ebiten.KeyNumpad4},
}

func justPressed(keys ...ebiten.Key) bool {
	for _, k := range keys {
		if inpututil.IsKeyJustPressed(k) {
			return true
		}
	}
	return false
}

// handleControls processes the keyboard control surface.
func (g *Game) handleControls() {
	if justPressed(ebiten.KeyC) {
		g.clearFields()
	}

	p := g.sim.Params()
	before := p
	if justPressed(ebiten.KeySpace) {
		p.Paused = !p.Paused
	}
	for mode, keys := range modeKeys {
		if justPressed(keys[:]...) {
			p.Mode = fluid.DisplayMode(mode)
		}
	}
	if justPressed(ebiten.KeyTab) {
		p.Mode = p.Mode.Next()
	}
	if justPressed(ebiten.KeyUp) {
		p.Timestep += timestepStep
	}
	if justPressed(ebiten.KeyDown) {
		p.Timestep -= timestepStep
	}
	if justPressed(ebiten.KeyBracketRight) {
		p.Dissipation += dissipationStep
	}
	if justPressed(ebiten.KeyBracketLeft) {
		p.Dissipation -= dissipationStep
	}
	if justPressed(ebiten.KeyEqual, ebiten.KeyNumpadAdd) {
		p.Radius += radiusStep
	}
	if justPressed(ebiten.KeyMinus, ebiten.KeyNumpadSubtract) {
		p.Radius -= radiusStep
	}
	if p == before {
		return
	}
	if err := g.sim.SetParams(p); err != nil {
		g.logger.Warn("parameters rejected", zap.Error(err))
		return
	}
	g.logger.Debug("parameters changed", zap.Any("params", g.sim.Params()))
}

// pollPointer converts this tick's mouse state into aggregator events.
// Presses land before the move and releases after it. Ticks without cursor
// movement queue nothing.
func (g *Game) pollPointer() {
	x, y := ebiten.CursorPosition()
	fx, fy := float32(x), float32(y)
	for _, b := range pointerButtons {
		if inpututil.IsMouseButtonJustPressed(b.mouse) {
			g.input.PointerDown(b.button, fx, fy)
		}
	}
	if x != g.cursorX || y != g.cursorY {
		g.input.PointerMove(fx, fy)
		g.cursorX, g.cursorY = x, y
	}
	for _, b := range pointerButtons {
		if inpututil.IsMouseButtonJustReleased(b.mouse) {
			g.input.PointerUp(b.button)
		}
	}
}
