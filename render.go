package main

import (
	"fmt"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"go.uber.org/zap"

	"fluids2d/internal/fluid"
)

// Draw renders the selected field and the optional overlay.
func (g *Game) Draw(screen *ebiten.Image) {
	start := time.Now()
	if err := g.sim.Render(); err != nil {
		g.logger.Warn("display skipped", zap.Error(err))
	} else if surf := g.sim.Backend().Surface(); surf != nil {
		g.present(screen, surf)
	}
	g.lastRender = time.Since(start)

	if *debugFlag {
		g.drawOverlay(screen)
	}
}

// present uploads the surface into a grid-sized image and stretches it over
// the window.
func (g *Game) present(screen *ebiten.Image, surf *fluid.Surface) {
	if len(surf.Pix) != surf.Width*surf.Height*4 {
		return
	}
	if g.frame == nil || g.frame.Bounds().Dx() != surf.Width || g.frame.Bounds().Dy() != surf.Height {
		if g.frame != nil {
			g.frame.Deallocate()
		}
		g.frame = ebiten.NewImage(surf.Width, surf.Height)
	}
	g.frame.WritePixels(surf.Pix)

	sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
	op := &ebiten.DrawImageOptions{Filter: ebiten.FilterLinear}
	op.GeoM.Scale(float64(sw)/float64(surf.Width), float64(sh)/float64(surf.Height))
	screen.DrawImage(g.frame, op)
}

func (g *Game) drawOverlay(screen *ebiten.Image) {
	p := g.sim.Params()
	grid := g.sim.Grid()
	state := "running"
	if p.Paused {
		state = "paused"
	}
	left, right := g.input.Held()
	msg := fmt.Sprintf("FPS: %.1f  TPS: %.1f  Device: %s\nGrid: %dx%d scale %.2f  (%s)\nMode: %s [1-4/Tab]\nTimestep: %.0f [Up/Down]  Dissipation: %.3f [ [/] ]  Radius: %.2f [-/=]\nStep: %.2f ms  Render: %.2f ms  Jacobi: %d  Dropped: %d\nButtons: L=%t R=%t  [Space] pause  [C] clear",
		ebiten.ActualFPS(), ebiten.ActualTPS(), g.device,
		grid.Width, grid.Height, grid.Scale, state,
		p.Mode,
		p.Timestep, p.Dissipation, p.Radius,
		g.lastStep.Seconds()*1000, g.lastRender.Seconds()*1000, g.sim.Iterations(), g.droppedFrames,
		left, right)
	ebitenutil.DebugPrint(screen, msg)
}

// Layout uses the window size as the logical screen and keeps the pointer
// mapping in sync with it.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	if outsideWidth != g.screenW || outsideHeight != g.screenH {
		g.screenW, g.screenH = outsideWidth, outsideHeight
		g.sim.SetWindowSize(outsideWidth, outsideHeight)
	}
	return outsideWidth, outsideHeight
}
