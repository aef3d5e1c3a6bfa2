package ik

import (
	"math"
	"testing"

	"stickreach/internal/kinematics"
)

func TestBalanceStepLengthMatchesLinks(t *testing.T) {
	for n := 1; n <= 6; n++ {
		lengths := make([]float64, n)
		angles := make([]float64, n)
		for i := range lengths {
			lengths[i] = 0.1 * float64(i+1)
			angles[i] = 0.2 * float64(i)
		}
		shape := kinematics.Geometry(kinematics.V(0, 0), lengths, angles)
		if got := len(BalanceStep(shape.Vertices, 0.3)); got != n {
			t.Fatalf("n=%d: got %d entries", n, got)
		}
	}
}

func TestBalanceStepSingleLinkClosedForm(t *testing.T) {
	l, q, comx := 0.5, 0.7, 0.25
	shape := kinematics.Geometry(kinematics.V(0, 0), []float64{l}, []float64{q})
	delta := BalanceStep(shape.Vertices, comx)

	want := comx * l * math.Sin(q)
	if math.Abs(delta[0]-want) > 1e-12 {
		t.Fatalf("got=%f want=%f", delta[0], want)
	}
}

func TestBalanceStepSingleLinkReducesComError(t *testing.T) {
	l := 1.0
	angles := []float64{0.9}
	target := 0.1
	errorAt := func() float64 {
		shape := kinematics.Geometry(kinematics.V(0, 0), []float64{l}, angles)
		return shape.CenterOfMass.X - target
	}

	before := math.Abs(errorAt())
	for tick := 0; tick < 50; tick++ {
		shape := kinematics.Geometry(kinematics.V(0, 0), []float64{l}, angles)
		delta := BalanceStep(shape.Vertices, errorAt())
		angles[0] += 0.5 * delta[0]
	}
	if after := math.Abs(errorAt()); after >= before {
		t.Fatalf("expected com error to shrink: before=%f after=%f", before, after)
	}
}

func TestBalanceStepZeroWithoutError(t *testing.T) {
	shape := kinematics.Geometry(kinematics.V(0, 0), []float64{1, 1, 1}, []float64{0.5, 0.5, 0.5})
	for i, d := range BalanceStep(shape.Vertices, 0) {
		if d != 0 {
			t.Fatalf("joint %d: expected zero, got %f", i, d)
		}
	}
}

func TestBalanceStepDiscountsDownstreamJoints(t *testing.T) {
	shape := kinematics.Geometry(kinematics.V(0, 0), []float64{1, 1}, []float64{math.Pi / 2, 0})
	delta := BalanceStep(shape.Vertices, 1)

	// y = [0, 1, 2]; second term = 3 - 1 = 2; delta0 = (2/2)*1*2 = 2
	// delta1 = (2 - (2/2)*1*(2-1+0.5)) / 1 = 0.5
	if math.Abs(delta[0]-2) > 1e-12 || math.Abs(delta[1]-0.5) > 1e-12 {
		t.Fatalf("unexpected balance step: %v", delta)
	}
}

func TestStepPolicies(t *testing.T) {
	origin := kinematics.V(0, -0.1)
	lengths := []float64{0.2, 0.2}
	angles := []float64{math.Pi / 2, -math.Pi / 3}
	goal := kinematics.V(0.3, -0.1)

	reachMid, balanceMid := Step(origin, lengths, angles, goal, ComTargetMidpoint)
	reachOrigin, balanceOrigin := Step(origin, lengths, angles, goal, ComTargetOrigin)

	for i := range reachMid {
		if reachMid[i] != reachOrigin[i] {
			t.Fatalf("reach step must not depend on policy: %v vs %v", reachMid, reachOrigin)
		}
	}

	shape := kinematics.Geometry(origin, lengths, angles)
	local := make([]kinematics.Vec2, len(shape.Vertices))
	for i, v := range shape.Vertices {
		local[i] = v.Sub(origin)
	}
	wantMid := BalanceStep(local, shape.CenterOfMass.X-(origin.X+goal.X)/2)
	wantOrigin := BalanceStep(local, shape.CenterOfMass.X-origin.X)
	for i := range wantMid {
		if math.Abs(balanceMid[i]-wantMid[i]) > 1e-12 || math.Abs(balanceOrigin[i]-wantOrigin[i]) > 1e-12 {
			t.Fatalf("joint %d: unexpected balance steps mid=%v origin=%v", i, balanceMid, balanceOrigin)
		}
	}
}

func TestCombine(t *testing.T) {
	got := Combine([]float64{1, 2}, []float64{10, 20}, 0.5, 0.1)
	if got[0] != 1.5 || got[1] != 3 {
		t.Fatalf("unexpected combination: %v", got)
	}
}

func TestParseComTargetPolicy(t *testing.T) {
	for _, p := range []ComTargetPolicy{ComTargetMidpoint, ComTargetOrigin} {
		got, err := ParseComTargetPolicy(p.String())
		if err != nil || got != p {
			t.Fatalf("parse %s: got=%v err=%v", p, got, err)
		}
	}
	if _, err := ParseComTargetPolicy("center"); err == nil {
		t.Fatal("expected unsupported policy error")
	}
}
