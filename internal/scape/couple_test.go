package scape

import (
	"errors"
	"math"
	"testing"

	"stickreach/internal/kinematics"
	"stickreach/internal/model"
)

const eps = 1e-9

func testCouple(t *testing.T) *Couple {
	t.Helper()
	world := DefaultWorld()
	couple, err := NewCouple(
		world.Origin,
		world.HoldingLengths, []float64{0.3, -0.5}, world.HoldingClamps,
		world.NonHoldingLengths, []float64{1.0, -1.2}, world.NonHoldingClamps,
	)
	if err != nil {
		t.Fatalf("new couple: %v", err)
	}
	return couple
}

func near(a, b kinematics.Vec2) bool {
	return a.Dist(b) < eps
}

func TestCoupleAnchorsNonHoldingAtHoldingEnd(t *testing.T) {
	couple := testCouple(t)
	if !near(couple.NonHolding().Origin, couple.Holding().FreeEnd()) {
		t.Fatalf("non-holding origin %+v not at holding end %+v", couple.NonHolding().Origin, couple.Holding().FreeEnd())
	}
	if err := couple.Holding().Apply([]float64{0.2, 0.1}, 1); err != nil {
		t.Fatalf("apply: %v", err)
	}
	couple.Reanchor()
	if !near(couple.NonHolding().Origin, couple.Holding().FreeEnd()) {
		t.Fatal("reanchor did not follow the holding end")
	}
	if couple.FreeEnd() != couple.NonHolding().FreeEnd() {
		t.Fatal("couple free end should be the non-holding end")
	}
}

func TestCoupleSwitchReversesChains(t *testing.T) {
	couple := testCouple(t)
	holding := couple.Holding().Shape().Vertices
	nonHolding := couple.NonHolding().Shape().Vertices

	if err := couple.Switch(); err != nil {
		t.Fatalf("switch: %v", err)
	}
	newHolding := couple.Holding().Shape().Vertices
	newNonHolding := couple.NonHolding().Shape().Vertices
	for i := range newHolding {
		if !near(newHolding[i], nonHolding[len(nonHolding)-1-i]) {
			t.Fatalf("holding vertex %d: got %+v want %+v", i, newHolding[i], nonHolding[len(nonHolding)-1-i])
		}
	}
	for i := range newNonHolding {
		if !near(newNonHolding[i], holding[len(holding)-1-i]) {
			t.Fatalf("non-holding vertex %d: got %+v want %+v", i, newNonHolding[i], holding[len(holding)-1-i])
		}
	}
	if math.Abs(couple.Holding().Angles[1]-1.2) > eps || math.Abs(couple.NonHolding().Angles[1]-0.5) > eps {
		t.Fatalf("expected relative angles to flip sign, got %v and %v", couple.Holding().Angles, couple.NonHolding().Angles)
	}
	if couple.State().Switches != 1 {
		t.Fatalf("expected one switch, got %d", couple.State().Switches)
	}

	if err := couple.Switch(); err != nil {
		t.Fatalf("switch back: %v", err)
	}
	back := couple.Holding().Shape().Vertices
	for i := range back {
		if !near(back[i], holding[i]) {
			t.Fatalf("double switch vertex %d: got %+v want %+v", i, back[i], holding[i])
		}
	}
}

func TestCoupleSwitchAtClampBound(t *testing.T) {
	world := DefaultWorld()
	couple, err := NewCouple(
		world.Origin,
		world.HoldingLengths, []float64{0.3, -0.5}, world.HoldingClamps,
		world.NonHoldingLengths, []float64{1.0, -math.Pi}, world.NonHoldingClamps,
	)
	if err != nil {
		t.Fatalf("new couple: %v", err)
	}
	nonHolding := couple.NonHolding().Shape().Vertices

	if err := couple.Switch(); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if got := couple.Holding().Angles[1]; math.Abs(got-math.Pi) > eps {
		t.Fatalf("expected joint at the mirrored bound +π, got %f", got)
	}
	newHolding := couple.Holding().Shape().Vertices
	for i := range newHolding {
		if !near(newHolding[i], nonHolding[len(nonHolding)-1-i]) {
			t.Fatalf("holding vertex %d moved: got %+v want %+v", i, newHolding[i], nonHolding[len(nonHolding)-1-i])
		}
	}
}

func TestSingleChainCannotSwitch(t *testing.T) {
	couple, err := NewCouple(kinematics.V(0, 0), []float64{0.2}, []float64{0}, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("new couple: %v", err)
	}
	if couple.NonHolding() != nil || couple.State().NonHolding != nil {
		t.Fatal("expected a single chain")
	}
	if err := couple.Switch(); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestEncodeDecode(t *testing.T) {
	couple := testCouple(t)
	goal := kinematics.V(-0.4, 0.3)
	input, scale := Encode(couple, goal)
	if len(input) != InputSize(2, 2) || len(input) != 6 {
		t.Fatalf("unexpected input width %d", len(input))
	}
	if math.Abs(scale-0.8) > eps {
		t.Fatalf("unexpected scale %f", scale)
	}
	if input[0] != 0.3 || input[3] != -1.2 {
		t.Fatalf("expected raw joint angles first, got %v", input)
	}
	if math.Abs(input[4]-(-0.5)) > eps || math.Abs(input[5]-0.5) > eps {
		t.Fatalf("unexpected relative goal encoding %v", input[4:])
	}

	decoded, err := Decode([]float64{2, -0.5}, scale, couple.Holding().Origin)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !near(decoded, kinematics.V(0.8, -0.5)) {
		t.Fatalf("expected saturated decode (0.8,-0.5), got %+v", decoded)
	}
	if _, err := Decode([]float64{1}, scale, couple.Holding().Origin); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
