package server

import (
	. "gridchase/grid_world"
)

// Op is a single draw call recorded by the canvas.
type Op struct {
	Op     string `json:"op"`
	Sprite string `json:"sprite,omitempty"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

// SpriteAt is a sprite currently on the canvas.
type SpriteAt struct {
	Sprite string `json:"sprite"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

// Frame is what the browser draws. Ops are the calls since the previous frame;
// Sprites is the whole scene, so a client that missed frames can still redraw.
type Frame struct {
	Title   string     `json:"title"`
	Width   int        `json:"width"`
	Height  int        `json:"height"`
	CellDim int        `json:"cellDim"`
	Status  string     `json:"status,omitempty"`
	Ops     []Op       `json:"ops"`
	Sprites []SpriteAt `json:"sprites"`
}

// Canvas is a grid_world.Renderer that publishes a Frame on each Present.
// It must be driven from a single goroutine; Frames may be read from another.
// When the reader falls behind, the unread frame is replaced by the newer one.
type Canvas struct {
	title              string
	width, height, dim int
	status             string
	ops                []Op
	drawn              map[Sprite]Point
	frames             chan Frame
}

func NewCanvas(title string, width, height, dim int) *Canvas {
	return &Canvas{
		title:  title,
		width:  width,
		height: height,
		dim:    dim,
		drawn:  map[Sprite]Point{},
		frames: make(chan Frame, 1),
	}
}

func (c *Canvas) Frames() <-chan Frame {
	return c.frames
}

// SetStatus sets a line of text shown with the next frames.
func (c *Canvas) SetStatus(status string) {
	c.status = status
}

func (c *Canvas) Clear() {
	c.ops = append(c.ops[:0], Op{Op: "clear"})
	c.drawn = map[Sprite]Point{}
}

func (c *Canvas) Draw(sprite Sprite, at Point) {
	c.ops = append(c.ops, Op{Op: "draw", Sprite: sprite.String(), X: at.X, Y: at.Y})
	c.drawn[sprite] = at
}

func (c *Canvas) Erase(sprite Sprite, at Point) {
	c.ops = append(c.ops, Op{Op: "erase", Sprite: sprite.String(), X: at.X, Y: at.Y})
	if c.drawn[sprite] == at {
		delete(c.drawn, sprite)
	}
}

func (c *Canvas) Present() {
	frame := c.frame()
	c.ops = nil

	select {
	case c.frames <- frame:
		return
	default:
	}
	// Drop the stale frame.
	select {
	case <-c.frames:
	default:
	}
	select {
	case c.frames <- frame:
	default:
	}
}

func (c *Canvas) frame() Frame {
	sprites := []SpriteAt{}
	// Goal first, so the player is drawn over it.
	for _, sprite := range []Sprite{GOAL, PLAYER} {
		if at, ok := c.drawn[sprite]; ok {
			sprites = append(sprites, SpriteAt{Sprite: sprite.String(), X: at.X, Y: at.Y})
		}
	}
	return Frame{
		Title:   c.title,
		Width:   c.width,
		Height:  c.height,
		CellDim: c.dim,
		Status:  c.status,
		Ops:     c.ops,
		Sprites: sprites,
	}
}

// Close ends the frame stream. The canvas must not be drawn on afterward.
func (c *Canvas) Close() {
	close(c.frames)
}
