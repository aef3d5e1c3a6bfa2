package ik

import (
	"fmt"

	"stickreach/internal/kinematics"
)

// ComTargetPolicy selects where the horizontal center of mass should sit.
type ComTargetPolicy int

const (
	// ComTargetMidpoint aims the center of mass at the midpoint of origin and goal.
	ComTargetMidpoint ComTargetPolicy = iota
	// ComTargetOrigin aims the center of mass over the origin.
	ComTargetOrigin
)

func (p ComTargetPolicy) String() string {
	switch p {
	case ComTargetMidpoint:
		return "midpoint"
	case ComTargetOrigin:
		return "origin"
	default:
		return fmt.Sprintf("ComTargetPolicy(%d)", int(p))
	}
}

func ParseComTargetPolicy(name string) (ComTargetPolicy, error) {
	switch name {
	case "midpoint":
		return ComTargetMidpoint, nil
	case "origin":
		return ComTargetOrigin, nil
	default:
		return 0, fmt.Errorf("unsupported com target policy: %s", name)
	}
}

// Target returns the point whose x coordinate the center of mass should match.
func (p ComTargetPolicy) Target(origin, goal kinematics.Vec2) kinematics.Vec2 {
	if p == ComTargetOrigin {
		return origin
	}
	return origin.Add(goal).Scale(0.5)
}

// BalanceStep returns the negative gradient of the squared horizontal
// center-of-mass error with respect to each joint angle. vertices must be
// expressed relative to joint 0 and comxError is the current horizontal
// center of mass minus its target. Joint i's entry is derived from joint
// i-1's and discounted by i, so joints far from the base carry less of the
// correction.
func BalanceStep(vertices []kinematics.Vec2, comxError float64) []float64 {
	n := len(vertices) - 1
	if n <= 0 {
		return nil
	}
	nf := float64(n)

	// y_1 + ... + y_(n-1) + y_n/2; y_0 is zero in the re-origined frame.
	sumY := 0.0
	for _, v := range vertices {
		sumY += v.Y
	}
	secondTerm := sumY - vertices[n].Y/2

	delta := make([]float64, n)
	prev := (2 / nf) * comxError * secondTerm
	delta[0] = prev
	for i := 1; i < n; i++ {
		fi := float64(i)
		curr := prev - (2*comxError/nf)*vertices[i].Y*(nf-fi+0.5)
		curr /= fi
		delta[i] = curr
		prev = curr
	}
	return delta
}

// Step computes the reach and balance deltas for a chain heading to goal.
// The balance step works in a frame re-origined at joint 0 with the center
// of mass target chosen by policy.
func Step(origin kinematics.Vec2, lengths, angles []float64, goal kinematics.Vec2, policy ComTargetPolicy) ([]float64, []float64) {
	shape := kinematics.Geometry(origin, lengths, angles)
	reach := ReachStep(shape.Vertices, goal)

	base := shape.Vertices[0]
	local := make([]kinematics.Vec2, len(shape.Vertices))
	for i, v := range shape.Vertices {
		local[i] = v.Sub(base)
	}
	comxError := shape.CenterOfMass.X - policy.Target(base, goal).X
	return reach, BalanceStep(local, comxError)
}

// Combine returns reachGain*reach + balanceGain*balance.
func Combine(reach, balance []float64, reachGain, balanceGain float64) []float64 {
	out := make([]float64, len(reach))
	for i := range reach {
		out[i] = reachGain * reach[i]
		if i < len(balance) {
			out[i] += balanceGain * balance[i]
		}
	}
	return out
}
