// Package draworder produces the pixel traversal sequence a frame
// processor walks when turning a frame into a command buffer.
package draworder

import (
	"fmt"
	"math/rand/v2"
)

// Point is a single canvas-relative pixel coordinate.
type Point struct {
	X, Y uint16
}

// Strategy selects how Generate walks a W×H rectangle.
type Strategy int

const (
	Random Strategy = iota
	Down
	Up
	Left
	Right
)

func (s Strategy) String() string {
	switch s {
	case Random:
		return "random"
	case Down:
		return "down"
	case Up:
		return "up"
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "unknown"
	}
}

// ParseStrategy recovers a Strategy from its String() form.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "random":
		return Random, nil
	case "down":
		return Down, nil
	case "up":
		return Up, nil
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	default:
		return 0, fmt.Errorf("draworder: invalid draw strategy: %q", s)
	}
}

// Generate returns the length-W*H draw order for a W×H rectangle under
// strategy s. The result is frozen once returned; callers build a static
// pixel-index -> command-buffer-offset map from it at construction time.
func Generate(w, h uint16, s Strategy) []Point {
	switch s {
	case Random:
		order := rows(w, h)
		shuffle(order)
		return order
	case Down:
		return rows(w, h)
	case Up:
		order := rows(w, h)
		reverse(order)
		return order
	case Right:
		return columns(w, h)
	case Left:
		order := columns(w, h)
		reverse(order)
		return order
	default:
		return rows(w, h)
	}
}

// rows walks y outer, x inner: (0,0),(1,0),...,(W-1,0),(0,1),...
func rows(w, h uint16) []Point {
	order := make([]Point, 0, int(w)*int(h))
	for y := 0; y < int(h); y++ {
		for x := 0; x < int(w); x++ {
			order = append(order, Point{X: uint16(x), Y: uint16(y)})
		}
	}
	return order
}

// columns walks x outer, y inner: (0,0),(0,1),...,(0,H-1),(1,0),...
func columns(w, h uint16) []Point {
	order := make([]Point, 0, int(w)*int(h))
	for x := 0; x < int(w); x++ {
		for y := 0; y < int(h); y++ {
			order = append(order, Point{X: uint16(x), Y: uint16(y)})
		}
	}
	return order
}

func reverse(order []Point) {
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
}

// shuffle performs an in-place Fisher-Yates shuffle with a process-local
// source; math/rand/v2's top-level functions are already safe for
// concurrent use and auto-seeded.
func shuffle(order []Point) {
	for i := len(order) - 1; i > 0; i-- {
		j := rand.IntN(i + 1)
		order[i], order[j] = order[j], order[i]
	}
}
