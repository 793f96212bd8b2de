package sim

import "math"

// CoordScale defines the number of sub-units per world unit. All simulation
// arithmetic runs on int64 sub-units so every peer computes identical state
// regardless of platform; floats appear only at the quantization boundary.
const CoordScale = 16

// nanosPerSecond converts velocity (sub-units per second) into displacement
// for a nanosecond delta.
const nanosPerSecond = int64(1_000_000_000)

// Vec is a 2D point or velocity in fixed-point sub-units.
type Vec struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
}

// Rect is an axis-aligned bounding box in fixed-point sub-units.
type Rect struct {
	MinX int64
	MinY int64
	MaxX int64
	MaxY int64
}

// Segment is a line segment between two fixed-point points.
type Segment struct {
	A Vec
	B Vec
}

// Quantize converts a floating point world coordinate into sub-units,
// rounding to the nearest sub-unit.
func Quantize(value float64) int64 {
	return int64(math.Round(value * CoordScale))
}

// Dequantize converts sub-units back to world units for display and
// diagnostics. Simulation code never feeds the result back into state.
func Dequantize(value int64) float64 {
	return float64(value) / CoordScale
}

// QuantizeVelocity converts world-units-per-second into sub-units-per-second.
func QuantizeVelocity(unitsPerSecond float64) int64 {
	return Quantize(unitsPerSecond)
}

// Advance applies velocity (sub-units per second) over a nanosecond delta and
// returns the updated position. Intermediates stay in int64; displacement per
// axis rounds to the nearest sub-unit.
func Advance(position, velocity Vec, deltaNanos uint64) Vec {
	if deltaNanos == 0 {
		return position
	}
	dt := int64(deltaNanos)
	return Vec{
		X: position.X + divRoundNearest(velocity.X*dt, nanosPerSecond),
		Y: position.Y + divRoundNearest(velocity.Y*dt, nanosPerSecond),
	}
}

// NewRect constructs a rectangle from its minimum corner and size.
func NewRect(minX, minY, width, height int64) Rect {
	return Rect{MinX: minX, MinY: minY, MaxX: minX + width, MaxY: minY + height}
}

func divRoundNearest(num, denom int64) int64 {
	if denom < 0 {
		num = -num
		denom = -denom
	}
	if num >= 0 {
		return (num + denom/2) / denom
	}
	return -((-num + denom/2) / denom)
}

func floorMod(value, modulus int64) int64 {
	result := value % modulus
	if result < 0 {
		result += modulus
	}
	return result
}

// SegmentIntersectsRect reports whether a segment touches an axis-aligned
// rectangle. Edges are inclusive so grazing contact still counts as a hit.
func SegmentIntersectsRect(segment Segment, rect Rect) bool {
	if rectContainsPoint(rect, segment.A) || rectContainsPoint(rect, segment.B) {
		return true
	}

	edges := [4]Segment{
		{A: Vec{X: rect.MinX, Y: rect.MinY}, B: Vec{X: rect.MaxX, Y: rect.MinY}},
		{A: Vec{X: rect.MaxX, Y: rect.MinY}, B: Vec{X: rect.MaxX, Y: rect.MaxY}},
		{A: Vec{X: rect.MaxX, Y: rect.MaxY}, B: Vec{X: rect.MinX, Y: rect.MaxY}},
		{A: Vec{X: rect.MinX, Y: rect.MaxY}, B: Vec{X: rect.MinX, Y: rect.MinY}},
	}
	for _, edge := range edges {
		if segmentsIntersect(segment, edge) {
			return true
		}
	}
	return false
}

func rectContainsPoint(rect Rect, point Vec) bool {
	return point.X >= rect.MinX && point.X <= rect.MaxX &&
		point.Y >= rect.MinY && point.Y <= rect.MaxY
}

func segmentsIntersect(a, b Segment) bool {
	o1 := orientation(a.A, a.B, b.A)
	o2 := orientation(a.A, a.B, b.B)
	o3 := orientation(b.A, b.B, a.A)
	o4 := orientation(b.A, b.B, a.B)

	if o1 != o2 && o3 != o4 {
		return true
	}

	if o1 == 0 && onSegment(a.A, b.A, a.B) {
		return true
	}
	if o2 == 0 && onSegment(a.A, b.B, a.B) {
		return true
	}
	if o3 == 0 && onSegment(b.A, a.A, b.B) {
		return true
	}
	if o4 == 0 && onSegment(b.A, a.B, b.B) {
		return true
	}
	return false
}

// orientation returns the turn direction of the triple (a, b, c): 0 for
// collinear, 1 for clockwise, -1 for counter-clockwise. Segment endpoints fit
// in well under 32 bits so the cross product cannot overflow int64.
func orientation(a, b, c Vec) int {
	val := (b.Y-a.Y)*(c.X-b.X) - (b.X-a.X)*(c.Y-b.Y)
	if val == 0 {
		return 0
	}
	if val > 0 {
		return 1
	}
	return -1
}

func onSegment(a, b, c Vec) bool {
	return b.X >= min(a.X, c.X) && b.X <= max(a.X, c.X) &&
		b.Y >= min(a.Y, c.Y) && b.Y <= max(a.Y, c.Y)
}
