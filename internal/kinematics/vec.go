package kinematics

import (
	"math"

	"stickreach/internal/model"
)

type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func V(x, y float64) Vec2 {
	return Vec2{X: x, Y: y}
}

func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{X: v.X + o.X, Y: v.Y + o.Y}
}

func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{X: v.X - o.X, Y: v.Y - o.Y}
}

func (v Vec2) Scale(s float64) Vec2 {
	return Vec2{X: v.X * s, Y: v.Y * s}
}

func (v Vec2) Norm() float64 {
	return math.Hypot(v.X, v.Y)
}

func (v Vec2) Dist(o Vec2) float64 {
	return v.Sub(o).Norm()
}

// Heading returns the angle of v measured from the +x axis.
func (v Vec2) Heading() float64 {
	return math.Atan2(v.Y, v.X)
}

func (v Vec2) Point() model.Point {
	return model.Point{X: v.X, Y: v.Y}
}

func FromPoint(p model.Point) Vec2 {
	return Vec2{X: p.X, Y: p.Y}
}
