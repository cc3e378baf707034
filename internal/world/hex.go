// Package world provides the hex grid geometry and the mutable world aggregate.
// Uses axial coordinates (q, r) for the hex grid.
package world

import (
	"math"
	"strconv"
	"strings"

	"github.com/talgya/divine-realms/internal/errs"
)

// HexCoord represents a position on the hex grid using axial coordinates.
// The third cube coordinate is derived: s = -q - r.
type HexCoord struct {
	Q int `json:"q"`
	R int `json:"r"`
}

// Cube is a hex position in cube coordinates. X+Y+Z is always zero.
type Cube struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Point is a continuous position in pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Orientation selects the pixel projection of the grid.
type Orientation uint8

const (
	PointyTop Orientation = iota
	FlatTop
)

// S returns the implicit third cube coordinate.
func (h HexCoord) S() int {
	return -h.Q - h.R
}

// Cube converts axial to cube coordinates (x=q, z=r, y=-x-z).
func (h HexCoord) Cube() Cube {
	return Cube{X: h.Q, Y: h.S(), Z: h.R}
}

// AxialToCube converts axial (q, r) to cube (x, y, z).
func AxialToCube(q, r int) Cube {
	return HexCoord{Q: q, R: r}.Cube()
}

// Axial converts cube back to axial coordinates.
func (c Cube) Axial() HexCoord {
	return HexCoord{Q: c.X, R: c.Z}
}

// HexNeighborDirections defines the six neighbor offsets in axial coordinates.
var HexNeighborDirections = [6]HexCoord{
	{Q: 1, R: 0},
	{Q: 1, R: -1},
	{Q: 0, R: -1},
	{Q: -1, R: 0},
	{Q: -1, R: 1},
	{Q: 0, R: 1},
}

// Neighbors returns the six adjacent hex coordinates.
func (h HexCoord) Neighbors() [6]HexCoord {
	var result [6]HexCoord
	for i, dir := range HexNeighborDirections {
		result[i] = HexCoord{Q: h.Q + dir.Q, R: h.R + dir.R}
	}
	return result
}

// Add returns the component-wise sum of two coordinates.
func (h HexCoord) Add(o HexCoord) HexCoord {
	return HexCoord{Q: h.Q + o.Q, R: h.R + o.R}
}

// Distance returns the hex distance between two coordinates.
func Distance(a, b HexCoord) int {
	ca, cb := a.Cube(), b.Cube()
	dx := abs(ca.X - cb.X)
	dy := abs(ca.Y - cb.Y)
	dz := abs(ca.Z - cb.Z)
	// Max of the three absolute differences in cube coordinates.
	max := dx
	if dy > max {
		max = dy
	}
	if dz > max {
		max = dz
	}
	return max
}

// HexesInRadius returns every coordinate within radius steps of center,
// including center itself. The result has exactly 1 + 3·n·(n+1) entries.
func HexesInRadius(center HexCoord, radius int) []HexCoord {
	if radius < 0 {
		return nil
	}
	result := make([]HexCoord, 0, 1+3*radius*(radius+1))
	for q := -radius; q <= radius; q++ {
		r1 := maxInt(-radius, -q-radius)
		r2 := minInt(radius, -q+radius)
		for r := r1; r <= r2; r++ {
			result = append(result, center.Add(HexCoord{Q: q, R: r}))
		}
	}
	return result
}

var sqrt3 = math.Sqrt(3)

// HexToPixel projects the center of a hex into pixel space.
func HexToPixel(h HexCoord, size float64, o Orientation) Point {
	q, r := float64(h.Q), float64(h.R)
	if o == FlatTop {
		return Point{
			X: size * (3.0 / 2.0 * q),
			Y: size * (sqrt3/2*q + sqrt3*r),
		}
	}
	return Point{
		X: size * (sqrt3*q + sqrt3/2*r),
		Y: size * (3.0 / 2.0 * r),
	}
}

// PixelToHex returns the hex containing a pixel-space point.
func PixelToHex(p Point, size float64, o Orientation) HexCoord {
	var q, r float64
	if o == FlatTop {
		q = (2.0 / 3.0 * p.X) / size
		r = (-1.0/3.0*p.X + sqrt3/3*p.Y) / size
	} else {
		q = (sqrt3/3*p.X - 1.0/3.0*p.Y) / size
		r = (2.0 / 3.0 * p.Y) / size
	}
	return HexRound(q, r)
}

// HexRound snaps fractional axial coordinates to the nearest hex. The axis
// with the largest rounding error is recomputed from the other two so that
// the cube invariant holds; ties prefer resetting y over z (checked x, then y).
func HexRound(q, r float64) HexCoord {
	x := q
	z := r
	y := -x - z

	rx := roundHalfUp(x)
	ry := roundHalfUp(y)
	rz := roundHalfUp(z)

	xDiff := math.Abs(rx - x)
	yDiff := math.Abs(ry - y)
	zDiff := math.Abs(rz - z)

	if xDiff > yDiff && xDiff > zDiff {
		rx = -ry - rz
	} else if yDiff > zDiff {
		ry = -rx - rz
	} else {
		rz = -rx - ry
	}

	return HexCoord{Q: int(rx), R: int(rz)}
}

// roundHalfUp rounds .5 toward positive infinity, which is what the client
// renderers use; math.Round would round -0.5 away from zero instead.
func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}

// ID returns the canonical territory identity string "q,r".
func (h HexCoord) ID() string {
	return strconv.Itoa(h.Q) + "," + strconv.Itoa(h.R)
}

// String implements fmt.Stringer.
func (h HexCoord) String() string {
	return h.ID()
}

// ParseHexID parses a canonical "q,r" identity. Non-canonical spellings
// such as "+1,2" or "01,2" are rejected so the mapping stays invertible.
func ParseHexID(id string) (HexCoord, error) {
	qs, rs, ok := strings.Cut(id, ",")
	if !ok {
		return HexCoord{}, errs.New(errs.CodeInvalidInput, "hex id %q: missing comma", id)
	}
	q, err := strconv.Atoi(qs)
	if err != nil {
		return HexCoord{}, errs.Wrap(errs.CodeInvalidInput, err, "hex id %q", id)
	}
	r, err := strconv.Atoi(rs)
	if err != nil {
		return HexCoord{}, errs.Wrap(errs.CodeInvalidInput, err, "hex id %q", id)
	}
	h := HexCoord{Q: q, R: r}
	if h.ID() != id {
		return HexCoord{}, errs.New(errs.CodeInvalidInput, "hex id %q is not canonical", id)
	}
	return h, nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
