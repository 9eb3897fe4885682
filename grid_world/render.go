package grid_world

// Sprite identifies one of the two squares drawn on the canvas.
type Sprite int

const (
	PLAYER Sprite = iota
	GOAL
)

func (s Sprite) String() string {
	if s == GOAL {
		return "goal"
	}
	return "player"
}

// Renderer receives drawing notifications from the simulator. Implementations
// own all pixel state; the simulator only says where squares are.
type Renderer interface {
	// Clear erases the whole canvas.
	Clear()
	// Draw paints a sprite centered at a grid-aligned point.
	Draw(sprite Sprite, at Point)
	// Erase paints over a sprite with the background.
	Erase(sprite Sprite, at Point)
	// Present flushes the pending drawing as one frame.
	Present()
}

type nopRenderer struct{}

func (nopRenderer) Clear()              {}
func (nopRenderer) Draw(Sprite, Point)  {}
func (nopRenderer) Erase(Sprite, Point) {}
func (nopRenderer) Present()            {}

// NopRenderer discards all drawing; it is used for headless simulation.
func NopRenderer() Renderer {
	return nopRenderer{}
}
