package kinematics

import (
	"fmt"
	"math"

	"stickreach/internal/model"
)

// Clamp bounds a single joint angle. A nil side is unbounded.
type Clamp struct {
	Min *float64
	Max *float64
}

func Unbounded() Clamp {
	return Clamp{}
}

func Between(min, max float64) Clamp {
	return Clamp{Min: &min, Max: &max}
}

// Apply clips q into the clamp range.
func (c Clamp) Apply(q float64) float64 {
	if c.Min != nil && q < *c.Min {
		q = *c.Min
	}
	if c.Max != nil && q > *c.Max {
		q = *c.Max
	}
	return q
}

func (c Clamp) Contains(q float64) bool {
	if c.Min != nil && q < *c.Min {
		return false
	}
	if c.Max != nil && q > *c.Max {
		return false
	}
	return true
}

// Bounds returns the clamp range with unbounded sides replaced by -pi/pi.
func (c Clamp) Bounds() (float64, float64) {
	lo, hi := -math.Pi, math.Pi
	if c.Min != nil {
		lo = *c.Min
	}
	if c.Max != nil {
		hi = *c.Max
	}
	return lo, hi
}

// Mirror returns the clamp for the same joint walked in the opposite
// direction, where a relative angle q becomes -q.
func (c Clamp) Mirror() Clamp {
	out := Clamp{}
	if c.Max != nil {
		min := -*c.Max
		out.Min = &min
	}
	if c.Min != nil {
		max := -*c.Min
		out.Max = &max
	}
	return out
}

func (c Clamp) validate() error {
	if c.Min != nil && math.IsNaN(*c.Min) || c.Max != nil && math.IsNaN(*c.Max) {
		return fmt.Errorf("%w: clamp bound is NaN", model.ErrConfiguration)
	}
	if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
		return fmt.Errorf("%w: clamp min %g exceeds max %g", model.ErrConfiguration, *c.Min, *c.Max)
	}
	return nil
}

func (c Clamp) Record() model.Clamp {
	return model.Clamp{Min: copyBound(c.Min), Max: copyBound(c.Max)}
}

func ClampFromRecord(r model.Clamp) Clamp {
	return Clamp{Min: copyBound(r.Min), Max: copyBound(r.Max)}
}

func ClampRecords(clamps []Clamp) []model.Clamp {
	out := make([]model.Clamp, len(clamps))
	for i, c := range clamps {
		out[i] = c.Record()
	}
	return out
}

func ClampsFromRecords(records []model.Clamp) []Clamp {
	out := make([]Clamp, len(records))
	for i, r := range records {
		out[i] = ClampFromRecord(r)
	}
	return out
}

func copyBound(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
