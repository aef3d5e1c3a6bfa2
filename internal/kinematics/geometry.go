package kinematics

import "math"

// Shape is the derived geometry of a chain. It is recomputed on every query.
type Shape struct {
	Vertices     []Vec2
	FreeEnd      Vec2
	CenterOfMass Vec2
}

// Geometry computes the vertex list, free end and center of mass of a chain
// anchored at origin. lengths and angles must have equal size; this is not
// re-checked here.
func Geometry(origin Vec2, lengths, angles []float64) Shape {
	n := len(lengths)
	vertices := make([]Vec2, 0, n+1)
	vertices = append(vertices, origin)

	var com Vec2
	total := 0.0
	heading := 0.0
	e1 := origin
	for i := 0; i < n; i++ {
		heading += angles[i]
		e2 := e1.Add(Vec2{X: math.Cos(heading), Y: math.Sin(heading)}.Scale(lengths[i]))
		vertices = append(vertices, e2)
		com = com.Add(e1.Add(e2).Scale(lengths[i] / 2))
		total += lengths[i]
		e1 = e2
	}

	return Shape{
		Vertices:     vertices,
		FreeEnd:      e1,
		CenterOfMass: com.Scale(1 / total),
	}
}

// FromVertices recovers origin, link lengths and relative joint angles from
// a vertex list. It is the inverse of Geometry for non-zero links.
func FromVertices(vertices []Vec2) (Vec2, []float64, []float64) {
	if len(vertices) == 0 {
		return Vec2{}, nil, nil
	}
	n := len(vertices) - 1
	lengths := make([]float64, n)
	angles := make([]float64, n)
	prev := 0.0
	for i := 0; i < n; i++ {
		link := vertices[i+1].Sub(vertices[i])
		lengths[i] = link.Norm()
		heading := link.Heading()
		angles[i] = wrapAngle(heading - prev)
		prev = heading
	}
	return vertices[0], lengths, angles
}

// Reverse returns the vertex list walked from the free end back to the origin.
func Reverse(vertices []Vec2) []Vec2 {
	out := make([]Vec2, len(vertices))
	for i, v := range vertices {
		out[len(vertices)-1-i] = v
	}
	return out
}

func wrapAngle(q float64) float64 {
	q = math.Mod(q+math.Pi, 2*math.Pi)
	if q < 0 {
		q += 2 * math.Pi
	}
	return q - math.Pi
}
