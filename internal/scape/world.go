package scape

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"stickreach/internal/kinematics"
	"stickreach/internal/model"
)

// Region is an axis-aligned rectangle.
type Region struct {
	Min kinematics.Vec2
	Max kinematics.Vec2
}

// World describes the task: where the couple stands, its limbs, and where
// goals may appear. GoalRegion is relative to the sampling origin and in
// units of the couple's total reach.
type World struct {
	Origin            kinematics.Vec2
	HoldingLengths    []float64
	HoldingClamps     []kinematics.Clamp
	NonHoldingLengths []float64
	NonHoldingClamps  []kinematics.Clamp
	GoalRegion        Region
}

func DefaultWorld() World {
	return World{
		Origin:            kinematics.V(0, -0.1),
		HoldingLengths:    []float64{0.2, 0.2},
		HoldingClamps:     []kinematics.Clamp{kinematics.Unbounded(), kinematics.Between(-math.Pi, 0)},
		NonHoldingLengths: []float64{0.2, 0.2},
		NonHoldingClamps:  []kinematics.Clamp{kinematics.Unbounded(), kinematics.Between(-math.Pi, 0)},
		GoalRegion: Region{
			Min: kinematics.V(-1, -1),
			Max: kinematics.V(0.1, 1),
		},
	}
}

func (w World) Validate() error {
	if len(w.HoldingLengths) == 0 {
		return fmt.Errorf("%w: world requires a holding chain", model.ErrConfiguration)
	}
	if len(w.HoldingClamps) != 0 && len(w.HoldingClamps) != len(w.HoldingLengths) {
		return fmt.Errorf("%w: %d holding clamps for %d holding links", model.ErrConfiguration, len(w.HoldingClamps), len(w.HoldingLengths))
	}
	if len(w.NonHoldingClamps) != 0 && len(w.NonHoldingClamps) != len(w.NonHoldingLengths) {
		return fmt.Errorf("%w: %d non-holding clamps for %d non-holding links", model.ErrConfiguration, len(w.NonHoldingClamps), len(w.NonHoldingLengths))
	}
	if w.GoalRegion.Min.X > w.GoalRegion.Max.X || w.GoalRegion.Min.Y > w.GoalRegion.Max.Y {
		return fmt.Errorf("%w: goal region min exceeds max", model.ErrConfiguration)
	}
	if _, err := w.couple(make([]float64, len(w.HoldingLengths)), make([]float64, len(w.NonHoldingLengths))); err != nil {
		return err
	}
	return nil
}

// Scale is the total reach of both chains.
func (w World) Scale() float64 {
	return floats.Sum(w.HoldingLengths) + floats.Sum(w.NonHoldingLengths)
}

func (w World) SampleHoldingAngles(rng *rand.Rand) []float64 {
	return sampleAngles(w.HoldingClamps, len(w.HoldingLengths), rng)
}

func (w World) SampleNonHoldingAngles(rng *rand.Rand) []float64 {
	return sampleAngles(w.NonHoldingClamps, len(w.NonHoldingLengths), rng)
}

// SampleGoal draws a goal relative to the world origin.
func (w World) SampleGoal(rng *rand.Rand) kinematics.Vec2 {
	return w.SampleGoalFrom(w.Origin, rng)
}

func (w World) SampleGoalFrom(origin kinematics.Vec2, rng *rand.Rand) kinematics.Vec2 {
	r := w.GoalRegion
	offset := kinematics.V(
		r.Min.X+rng.Float64()*(r.Max.X-r.Min.X),
		r.Min.Y+rng.Float64()*(r.Max.Y-r.Min.Y),
	)
	return origin.Add(offset.Scale(w.Scale()))
}

// NewCouple builds a couple at the world origin with sampled angles.
func (w World) NewCouple(rng *rand.Rand) (*Couple, error) {
	return w.couple(w.SampleHoldingAngles(rng), w.SampleNonHoldingAngles(rng))
}

func (w World) couple(holdingAngles, nonHoldingAngles []float64) (*Couple, error) {
	return NewCouple(
		w.Origin,
		w.HoldingLengths, holdingAngles, w.HoldingClamps,
		w.NonHoldingLengths, nonHoldingAngles, w.NonHoldingClamps,
	)
}

// sampleAngles draws each joint uniformly inside its clamp; unbounded sides
// use [-pi, pi].
func sampleAngles(clamps []kinematics.Clamp, n int, rng *rand.Rand) []float64 {
	out := make([]float64, n)
	for i := range out {
		lo, hi := -math.Pi, math.Pi
		if i < len(clamps) {
			lo, hi = clamps[i].Bounds()
		}
		out[i] = lo + rng.Float64()*(hi-lo)
	}
	return out
}

func (w World) Record() model.WorldRecord {
	return model.WorldRecord{
		Origin:            w.Origin.Point(),
		HoldingLengths:    append([]float64(nil), w.HoldingLengths...),
		HoldingClamps:     kinematics.ClampRecords(w.HoldingClamps),
		NonHoldingLengths: append([]float64(nil), w.NonHoldingLengths...),
		NonHoldingClamps:  kinematics.ClampRecords(w.NonHoldingClamps),
		GoalRegion: model.Region{
			Min: w.GoalRegion.Min.Point(),
			Max: w.GoalRegion.Max.Point(),
		},
	}
}

func WorldFromRecord(record model.WorldRecord) (World, error) {
	w := World{
		Origin:            kinematics.FromPoint(record.Origin),
		HoldingLengths:    append([]float64(nil), record.HoldingLengths...),
		HoldingClamps:     kinematics.ClampsFromRecords(record.HoldingClamps),
		NonHoldingLengths: append([]float64(nil), record.NonHoldingLengths...),
		NonHoldingClamps:  kinematics.ClampsFromRecords(record.NonHoldingClamps),
		GoalRegion: Region{
			Min: kinematics.FromPoint(record.GoalRegion.Min),
			Max: kinematics.FromPoint(record.GoalRegion.Max),
		},
	}
	if err := w.Validate(); err != nil {
		return World{}, err
	}
	return w, nil
}
