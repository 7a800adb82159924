package models

import (
	"math"

	"github.com/san-kum/odebind"
)

// Heat1D is the method-of-lines discretization of the 1-D heat equation on
// n cells with zero boundaries. Tridiagonal coupling, so the banded direct
// solver applies with bandwidths (1, 1); it is also the BBD demo system.
func Heat1D(n int) *Model {
	if n < 3 {
		n = 3
	}
	dx := 1.0 / float64(n+1)
	coef := 1.0 / (dx * dx)

	rhs := func(t float64, y, ydot odebind.View) error {
		for i := 0; i < n; i++ {
			left, right := 0.0, 0.0
			if i > 0 {
				left = y.At(i - 1)
			}
			if i < n-1 {
				right = y.At(i + 1)
			}
			ydot.Set(i, coef*(left-2*y.At(i)+right))
		}
		return nil
	}

	y0 := make([]float64, n)
	for i := range y0 {
		x := float64(i+1) * dx
		y0[i] = math.Sin(math.Pi * x)
	}

	return &Model{
		Name:  "heat1d",
		Desc:  "1-D heat rod, tridiagonal band structure",
		Dim:   n,
		Stiff: true,
		Y0:    y0,
		Config: odebind.Config{
			Method: odebind.BDF,
			Rhs:    rhs,
			Solver: odebind.Band{Upper: 1, Lower: 1},
		},
	}
}
