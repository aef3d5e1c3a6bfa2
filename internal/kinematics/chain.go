package kinematics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"stickreach/internal/model"
)

// Chain is an open chain of rigid links anchored at Origin. Ticks mutate
// Angles in place; every other quantity is derived.
type Chain struct {
	Origin  Vec2
	Lengths []float64
	Angles  []float64
	Clamps  []Clamp
}

// State is a read-only snapshot of a chain for rendering.
type State struct {
	Vertices []Vec2    `json:"vertices"`
	FreeEnd  Vec2      `json:"free_end"`
	Angles   []float64 `json:"angles"`
}

// NewChain validates the description and clips the initial angles into
// their clamps. clamps may be empty, meaning every joint is unbounded.
func NewChain(origin Vec2, lengths, angles []float64, clamps []Clamp) (*Chain, error) {
	if len(lengths) == 0 {
		return nil, fmt.Errorf("%w: chain requires at least one link", model.ErrConfiguration)
	}
	if len(angles) != len(lengths) {
		return nil, fmt.Errorf("%w: %d angles for %d links", model.ErrConfiguration, len(angles), len(lengths))
	}
	if len(clamps) != 0 && len(clamps) != len(lengths) {
		return nil, fmt.Errorf("%w: %d clamps for %d links", model.ErrConfiguration, len(clamps), len(lengths))
	}
	for i, l := range lengths {
		if !(l > 0) || math.IsInf(l, 0) {
			return nil, fmt.Errorf("%w: link %d length must be positive and finite, got %g", model.ErrConfiguration, i, l)
		}
	}
	if total := floats.Sum(lengths); total == 0 || math.IsInf(total, 0) {
		return nil, fmt.Errorf("%w: total chain length %g", model.ErrNumericalDegeneracy, total)
	}

	c := &Chain{
		Origin:  origin,
		Lengths: append([]float64(nil), lengths...),
		Angles:  append([]float64(nil), angles...),
		Clamps:  make([]Clamp, len(lengths)),
	}
	for i := range clamps {
		if err := clamps[i].validate(); err != nil {
			return nil, fmt.Errorf("joint %d: %w", i, err)
		}
		c.Clamps[i] = clamps[i]
	}
	c.clip()
	return c, nil
}

func (c *Chain) Links() int {
	return len(c.Lengths)
}

func (c *Chain) TotalLength() float64 {
	return floats.Sum(c.Lengths)
}

func (c *Chain) Shape() Shape {
	return Geometry(c.Origin, c.Lengths, c.Angles)
}

func (c *Chain) FreeEnd() Vec2 {
	return c.Shape().FreeEnd
}

func (c *Chain) SetOrigin(origin Vec2) {
	c.Origin = origin
}

// Apply performs angles += scale*delta and clips every joint into its clamp.
func (c *Chain) Apply(delta []float64, scale float64) error {
	if len(delta) != len(c.Angles) {
		return fmt.Errorf("%w: delta has %d entries for %d joints", model.ErrConfiguration, len(delta), len(c.Angles))
	}
	floats.AddScaled(c.Angles, scale, delta)
	c.clip()
	return nil
}

func (c *Chain) State() State {
	shape := c.Shape()
	return State{
		Vertices: shape.Vertices,
		FreeEnd:  shape.FreeEnd,
		Angles:   append([]float64(nil), c.Angles...),
	}
}

func (c *Chain) clip() {
	for i := range c.Angles {
		c.Angles[i] = c.Clamps[i].Apply(c.Angles[i])
	}
}
