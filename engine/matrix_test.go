package engine

import (
	"testing"

	"pgregory.net/rapid"
)

func TestDenseMatrixColumnMajor(t *testing.T) {
	m := NewDenseMatrix(3)
	m.Set(2, 0, 5)
	m.Set(0, 2, 7)
	if m.Data[2] != 5 {
		t.Errorf("element (2,0) stored at %v, want Data[2]", m.Data)
	}
	if m.Data[6] != 7 {
		t.Errorf("element (0,2) stored at %v, want Data[6]", m.Data)
	}
	m.Add(2, 0, 1)
	if got := m.At(2, 0); got != 6 {
		t.Errorf("At(2,0) = %g, want 6", got)
	}
	m.Zero()
	for i, v := range m.Data {
		if v != 0 {
			t.Fatalf("Data[%d] = %g after Zero", i, v)
		}
	}
}

func TestBandMatrixIndexing(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(t, "n")
		mu := rapid.IntRange(0, n-1).Draw(t, "mu")
		ml := rapid.IntRange(0, n-1).Draw(t, "ml")
		m := NewBandMatrix(n, mu, ml)

		i := rapid.IntRange(0, n-1).Draw(t, "i")
		j := rapid.IntRange(0, n-1).Draw(t, "j")

		if !m.InBand(i, j) {
			if got := m.At(i, j); got != 0 {
				t.Fatalf("At(%d,%d) outside band = %g, want 0", i, j, got)
			}
			defer func() {
				if recover() == nil {
					t.Fatalf("Set(%d,%d) outside band mu=%d ml=%d did not panic", i, j, mu, ml)
				}
			}()
			m.Set(i, j, 1)
			return
		}

		v := rapid.Float64Range(-1e6, 1e6).Draw(t, "v")
		m.Set(i, j, v)
		if got := m.At(i, j); got != v {
			t.Fatalf("At(%d,%d) = %g after Set %g", i, j, got, v)
		}

		// The write must land in column j's slab and nowhere else.
		for jj := 0; jj < n; jj++ {
			for ii := 0; ii < n; ii++ {
				if ii == i && jj == j {
					continue
				}
				if got := m.At(ii, jj); got != 0 {
					t.Fatalf("Set(%d,%d) leaked into (%d,%d) = %g", i, j, ii, jj, got)
				}
			}
		}
	})
}

func TestBandMatrixAdd(t *testing.T) {
	m := NewBandMatrix(4, 1, 1)
	m.Set(1, 2, 3)
	m.Add(1, 2, 2)
	if got := m.At(1, 2); got != 5 {
		t.Errorf("At(1,2) = %g, want 5", got)
	}
}
