package models

import (
	"github.com/san-kum/odebind"
)

const vanDerPolMu = 5.0

// VanDerPol is the Van der Pol oscillator with a moderately stiff
// nonlinearity. BDF with a dense Newton solver and the analytic Jacobian.
func VanDerPol() *Model {
	rhs := func(t float64, y, ydot odebind.View) error {
		x, v := y.At(0), y.At(1)
		ydot.Set(0, v)
		ydot.Set(1, vanDerPolMu*(1-x*x)*v-x)
		return nil
	}
	jac := func(arg odebind.JacArg, m odebind.DenseView) error {
		x, v := arg.Y.At(0), arg.Y.At(1)
		m.Set(0, 1, 1)
		m.Set(1, 0, -2*vanDerPolMu*x*v-1)
		m.Set(1, 1, vanDerPolMu*(1-x*x))
		return nil
	}
	return &Model{
		Name:  "vanderpol",
		Desc:  "Van der Pol oscillator, stiff limit cycle",
		Dim:   2,
		Stiff: true,
		Y0:    []float64{2, 0},
		Config: odebind.Config{
			Method: odebind.BDF,
			Rhs:    rhs,
			Solver: odebind.Dense{Jac: jac},
		},
	}
}
