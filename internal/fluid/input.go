package fluid

// Button identifies a pointer button.
type Button int

const (
	ButtonLeft Button = iota
	ButtonMiddle
	ButtonRight
)

// Motion is one force injection request recorded while a button was held.
type Motion struct {
	Left, Right bool
	// Drag is the pointer delta clamped componentwise to the grid scale.
	Drag Vec2
	// Position is in window coordinates, origin top-left.
	Position Vec2
}

// Aggregator turns pointer events into a queue of motions. It is driven from
// the frame goroutine and does no locking.
type Aggregator struct {
	scale       float32
	left, right bool
	last        Vec2
	motions     []Motion
}

// NewAggregator creates an aggregator clamping drags to grid.Scale.
func NewAggregator(grid Grid) *Aggregator {
	return &Aggregator{scale: grid.Scale}
}

// SetScale changes the drag clamp for a resized grid. Held buttons and the
// last position carry over so an active drag keeps injecting.
func (a *Aggregator) SetScale(scale float32) { a.scale = scale }

// PointerDown records a press. Nothing is queued until the pointer moves.
func (a *Aggregator) PointerDown(b Button, x, y float32) {
	switch b {
	case ButtonLeft:
		a.left = true
	case ButtonRight:
		a.right = true
	default:
		return
	}
	a.last = Vec2{x, y}
}

// PointerUp releases a button.
func (a *Aggregator) PointerUp(b Button) {
	switch b {
	case ButtonLeft:
		a.left = false
	case ButtonRight:
		a.right = false
	}
}

// PointerMove queues a motion when a button is held and always updates the
// last known position.
func (a *Aggregator) PointerMove(x, y float32) {
	if a.left || a.right {
		r := a.scale
		a.motions = append(a.motions, Motion{
			Left:     a.left,
			Right:    a.right,
			Drag:     Vec2{clampf(x-a.last[0], -r, r), clampf(y-a.last[1], -r, r)},
			Position: Vec2{x, y},
		})
	}
	a.last = Vec2{x, y}
}

// Held reports the button state.
func (a *Aggregator) Held() (left, right bool) { return a.left, a.right }

// Pending returns the number of queued motions.
func (a *Aggregator) Pending() int { return len(a.motions) }

// Drain hands over the queued motions and empties the queue.
func (a *Aggregator) Drain() []Motion {
	m := a.motions
	a.motions = nil
	return m
}

func clampf(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
