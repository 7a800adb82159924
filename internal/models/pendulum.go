package models

import (
	"math"

	"github.com/san-kum/odebind"
)

const (
	pendulumGravity = 9.81
	pendulumLength  = 1.0
	pendulumDamping = 0.1
)

// Pendulum is a damped planar pendulum. Nonstiff; integrated with Adams
// and functional iteration. A root function fires at each downward
// crossing of the vertical.
func Pendulum() *Model {
	rhs := func(t float64, y, ydot odebind.View) error {
		theta, omega := y.At(0), y.At(1)
		ydot.Set(0, omega)
		ydot.Set(1, -pendulumDamping*omega-(pendulumGravity/pendulumLength)*math.Sin(theta))
		return nil
	}
	roots := func(t float64, y, gout odebind.View) error {
		gout.Set(0, y.At(0))
		return nil
	}
	return &Model{
		Name: "pendulum",
		Desc: "damped pendulum with a vertical-crossing root function",
		Dim:  2,
		Y0:   []float64{1.2, 0},
		Config: odebind.Config{
			Method:   odebind.Adams,
			Rhs:      rhs,
			NumRoots: 1,
			Roots:    roots,
		},
	}
}
