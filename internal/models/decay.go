package models

import (
	"math"

	"github.com/san-kum/odebind"
)

// Decay is scalar exponential decay, y' = -y. The simplest accuracy check.
func Decay() *Model {
	return &Model{
		Name: "decay",
		Desc: "scalar exponential decay",
		Dim:  1,
		Y0:   []float64{1},
		Config: odebind.Config{
			Method: odebind.Adams,
			Rhs: func(t float64, y, ydot odebind.View) error {
				ydot.Set(0, -y.At(0))
				return nil
			},
		},
		Exact: func(t float64) []float64 {
			return []float64{math.Exp(-t)}
		},
	}
}
