package scape

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"stickreach/internal/kinematics"
	"stickreach/internal/model"
)

func TestWorldSamplingStaysInsideClamps(t *testing.T) {
	world := DefaultWorld()
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		for j, q := range world.SampleHoldingAngles(rng) {
			if !world.HoldingClamps[j].Contains(q) || q < -math.Pi || q > math.Pi {
				t.Fatalf("holding joint %d sample %f outside clamp", j, q)
			}
		}
		for j, q := range world.SampleNonHoldingAngles(rng) {
			if !world.NonHoldingClamps[j].Contains(q) || q < -math.Pi || q > math.Pi {
				t.Fatalf("non-holding joint %d sample %f outside clamp", j, q)
			}
		}
	}
}

func TestWorldSampleGoalInsideScaledRegion(t *testing.T) {
	world := DefaultWorld()
	scale := world.Scale()
	if math.Abs(scale-0.8) > 1e-12 {
		t.Fatalf("expected total reach 0.8, got %f", scale)
	}
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 200; i++ {
		goal := world.SampleGoal(rng)
		rel := goal.Sub(world.Origin).Scale(1 / scale)
		if rel.X < -1-1e-9 || rel.X > 0.1+1e-9 || rel.Y < -1-1e-9 || rel.Y > 1+1e-9 {
			t.Fatalf("goal %+v outside region", goal)
		}
	}

	a := world.SampleGoal(rand.New(rand.NewSource(9)))
	b := world.SampleGoal(rand.New(rand.NewSource(9)))
	if a != b {
		t.Fatalf("expected seeded sampling to be reproducible: %+v vs %+v", a, b)
	}
}

func TestWorldRecordRoundTrip(t *testing.T) {
	world := DefaultWorld()
	back, err := WorldFromRecord(world.Record())
	if err != nil {
		t.Fatalf("from record: %v", err)
	}
	if back.Origin != world.Origin || back.GoalRegion != world.GoalRegion {
		t.Fatalf("unexpected world from record: %+v", back)
	}
	lo, hi := back.HoldingClamps[1].Bounds()
	if lo != -math.Pi || hi != 0 || back.HoldingClamps[0].Min != nil {
		t.Fatalf("unexpected clamps after round trip: %+v", back.HoldingClamps)
	}
}

func TestWorldValidation(t *testing.T) {
	cases := map[string]func(*World){
		"no holding links":   func(w *World) { w.HoldingLengths = nil },
		"clamp count":        func(w *World) { w.HoldingClamps = w.HoldingClamps[:1] },
		"zero link":          func(w *World) { w.NonHoldingLengths = []float64{0.2, 0} },
		"inverted region":    func(w *World) { w.GoalRegion.Min = kinematics.V(1, 1) },
		"non-holding clamps": func(w *World) { w.NonHoldingClamps = append(w.NonHoldingClamps, kinematics.Unbounded()) },
	}
	for name, mutate := range cases {
		world := DefaultWorld()
		mutate(&world)
		if err := world.Validate(); !errors.Is(err, model.ErrConfiguration) {
			t.Fatalf("%s: expected configuration error, got %v", name, err)
		}
	}
	if err := DefaultWorld().Validate(); err != nil {
		t.Fatalf("default world: %v", err)
	}
}
