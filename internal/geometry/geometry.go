package geometry

import "math"

// Point is a position in frame coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Sqrt((a.X-b.X)*(a.X-b.X) + (a.Y-b.Y)*(a.Y-b.Y))
}

// ClosestPair returns the indices and distance of the two nearest points.
// ok is false when fewer than two points are given.
func ClosestPair(points []Point) (i, j int, d float64, ok bool) {
	if len(points) < 2 {
		return 0, 0, 0, false
	}
	d = math.Inf(1)
	for a := 0; a < len(points); a++ {
		for b := a + 1; b < len(points); b++ {
			if dd := Distance(points[a], points[b]); dd < d {
				i, j, d = a, b, dd
			}
		}
	}
	return i, j, d, true
}
