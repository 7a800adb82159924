package models

import (
	"math"

	"github.com/san-kum/odebind"
)

// linear3Mat is the coefficient matrix of the 3-variable linear system
// y' = A y. Upper triangular with distinct eigenvalues so the analytic
// solution is available for accuracy checks.
var linear3Mat = [3][3]float64{
	{-1.0, 1.0, 0.0},
	{0.0, -2.0, 1.0},
	{0.0, 0.0, -3.0},
}

// Linear3 is a 3-variable linear ODE with an exact dense Jacobian.
func Linear3() *Model {
	rhs := func(t float64, y, ydot odebind.View) error {
		for i := 0; i < 3; i++ {
			v := 0.0
			for j := 0; j < 3; j++ {
				v += linear3Mat[i][j] * y.At(j)
			}
			ydot.Set(i, v)
		}
		return nil
	}
	jac := func(arg odebind.JacArg, m odebind.DenseView) error {
		for j := 0; j < 3; j++ {
			for i := 0; i < 3; i++ {
				m.Set(i, j, linear3Mat[i][j])
			}
		}
		return nil
	}
	return &Model{
		Name: "linear3",
		Desc: "3-variable linear system with exact Jacobian",
		Dim:  3,
		Y0:   []float64{1, 1, 1},
		Config: odebind.Config{
			Method: odebind.BDF,
			Rhs:    rhs,
			Solver: odebind.Dense{Jac: jac},
		},
		Exact: linear3Exact,
	}
}

// linear3Exact solves the triangular system by back substitution through
// the eigenstructure: y3 decays at rate 3, feeding y2, feeding y1.
func linear3Exact(t float64) []float64 {
	e1 := math.Exp(-t)
	e2 := math.Exp(-2 * t)
	e3 := math.Exp(-3 * t)

	// y3' = -3 y3
	y3 := e3
	// y2' = -2 y2 + y3, y2(0)=1
	y2 := 2*e2 - e3
	// y1' = -y1 + y2, y1(0)=1
	y1 := 2.5*e1 - 2*e2 + 0.5*e3
	return []float64{y1, y2, y3}
}
