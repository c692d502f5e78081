package drawer

import "math"

const epsilon = 1e-9

func sub(a, b Point) Point {
	return Point{X: a.X - b.X, Y: a.Y - b.Y}
}

func cross(a, b Point) float64 {
	return a.X*b.Y - a.Y*b.X
}

func samePoint(a, b Point) bool {
	return math.Abs(a.X-b.X) < epsilon && math.Abs(a.Y-b.Y) < epsilon
}

// intersect returns the crossing point of two segments. Parallel and
// collinear segments never intersect.
func intersect(a, b Segment) (Point, bool) {
	r := sub(a.End, a.Start)
	s := sub(b.End, b.Start)
	denom := cross(r, s)
	if math.Abs(denom) < epsilon {
		return Point{}, false
	}
	qp := sub(b.Start, a.Start)
	t := cross(qp, s) / denom
	u := cross(qp, r) / denom
	if t < -epsilon || t > 1+epsilon || u < -epsilon || u > 1+epsilon {
		return Point{}, false
	}
	return Point{X: a.Start.X + t*r.X, Y: a.Start.Y + t*r.Y}, true
}

// connected reports whether segs[from..to] form one unbroken stroke.
func connected(segs []Segment, from, to int) bool {
	for k := from; k < to; k++ {
		if !samePoint(segs[k].End, segs[k+1].Start) {
			return false
		}
	}
	return true
}

// firstLoop finds the earliest point where the path crosses itself and returns
// the polygon enclosed between the two crossing segments.
func firstLoop(segs []Segment) []Point {
	for i := 2; i < len(segs); i++ {
		for j := 0; j < i-1; j++ {
			p, ok := intersect(segs[i], segs[j])
			if !ok || !connected(segs, j, i) {
				continue
			}
			loop := []Point{p}
			for k := j; k < i; k++ {
				if !samePoint(loop[len(loop)-1], segs[k].End) {
					loop = append(loop, segs[k].End)
				}
			}
			if samePoint(loop[len(loop)-1], p) {
				loop = loop[:len(loop)-1]
			}
			if len(loop) >= 3 {
				return loop
			}
		}
	}
	return nil
}

// onSegment reports whether p lies on the segment a-b.
func onSegment(p, a, b Point) bool {
	if math.Abs(cross(sub(b, a), sub(p, a))) > 1e-6 {
		return false
	}
	return p.X >= math.Min(a.X, b.X)-epsilon && p.X <= math.Max(a.X, b.X)+epsilon &&
		p.Y >= math.Min(a.Y, b.Y)-epsilon && p.Y <= math.Max(a.Y, b.Y)+epsilon
}

// containsPoint is an even-odd test that counts the boundary as inside.
func containsPoint(poly []Point, p Point) bool {
	inside := false
	for i, j := 0, len(poly)-1; i < len(poly); j, i = i, i+1 {
		a, b := poly[i], poly[j]
		if onSegment(p, a, b) {
			return true
		}
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}
