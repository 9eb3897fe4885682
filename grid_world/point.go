package grid_world

import "fmt"

// Point is an x/y pair in pixel coordinates. Simulator positions are always
// multiples of the cell size. Points are values: every operation returns a new
// Point and never mutates the receiver, so a Point captured in a RouteKey
// cannot drift as the player moves.
type Point struct {
	X, Y int
}

// Pt is shorthand for Point{x, y}.
func Pt(x, y int) Point {
	return Point{X: x, Y: y}
}

// Add returns the component-wise sum of p and q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns the component-wise difference p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Scale multiplies both components by n.
func (p Point) Scale(n int) Point {
	return Point{X: p.X * n, Y: p.Y * n}
}

// IsAligned reports whether both components are multiples of dim.
func (p Point) IsAligned(dim int) bool {
	return dim > 0 && p.X%dim == 0 && p.Y%dim == 0
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
