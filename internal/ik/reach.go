// Package ik produces joint-angle deltas for planar chains: a primary
// Jacobian-transpose reach step and a secondary center-of-mass balance step.
// Both are single proportional steps; callers scale, sum and re-apply them
// every tick.
package ik

import (
	"gonum.org/v1/gonum/mat"

	"stickreach/internal/kinematics"
)

// ReachStep returns J^T (goal - freeEnd) for the chain described by
// vertices (origin first, free end last).
func ReachStep(vertices []kinematics.Vec2, goal kinematics.Vec2) []float64 {
	n := len(vertices) - 1
	if n <= 0 {
		return nil
	}
	freeEnd := vertices[n]

	jacobian := mat.NewDense(2, n, nil)
	for i := 0; i < n; i++ {
		arm := freeEnd.Sub(vertices[i])
		jacobian.Set(0, i, -arm.Y)
		jacobian.Set(1, i, arm.X)
	}
	errVec := mat.NewVecDense(2, []float64{goal.X - freeEnd.X, goal.Y - freeEnd.Y})

	delta := mat.NewVecDense(n, nil)
	delta.MulVec(jacobian.T(), errVec)
	return delta.RawVector().Data
}
