package engine

import "fmt"

// DenseMatrix is an n×n Jacobian in column-major storage. Instances handed
// to callbacks are engine-owned and valid only for that invocation.
type DenseMatrix struct {
	N    int
	Data []float64 // len N*N, column j at Data[j*N : (j+1)*N]
}

// NewDenseMatrix allocates a zeroed n×n matrix.
func NewDenseMatrix(n int) *DenseMatrix {
	return &DenseMatrix{N: n, Data: make([]float64, n*n)}
}

func (m *DenseMatrix) At(i, j int) float64 { return m.Data[j*m.N+i] }

func (m *DenseMatrix) Set(i, j int, v float64) { m.Data[j*m.N+i] = v }

func (m *DenseMatrix) Add(i, j int, v float64) { m.Data[j*m.N+i] += v }

// Zero clears all elements.
func (m *DenseMatrix) Zero() {
	for i := range m.Data {
		m.Data[i] = 0
	}
}

// Col returns column j as a slice aliasing the matrix storage.
func (m *DenseMatrix) Col(j int) []float64 {
	return m.Data[j*m.N : (j+1)*m.N]
}

// BandMatrix is an n×n band Jacobian with Mu superdiagonals and Ml
// subdiagonals, stored column-wise: element (i, j) with j-Mu <= i <= j+Ml
// lives at Data[j*ldim + (i - j + Mu)].
type BandMatrix struct {
	N    int
	Mu   int
	Ml   int
	Data []float64
}

// NewBandMatrix allocates a zeroed band matrix.
func NewBandMatrix(n, mu, ml int) *BandMatrix {
	return &BandMatrix{N: n, Mu: mu, Ml: ml, Data: make([]float64, n*(mu+ml+1))}
}

func (m *BandMatrix) ldim() int { return m.Mu + m.Ml + 1 }

// InBand reports whether (i, j) lies inside the declared bandwidths.
func (m *BandMatrix) InBand(i, j int) bool {
	return i-j <= m.Ml && j-i <= m.Mu
}

// At returns element (i, j); elements outside the band are zero.
func (m *BandMatrix) At(i, j int) float64 {
	if !m.InBand(i, j) {
		return 0
	}
	return m.Data[j*m.ldim()+(i-j+m.Mu)]
}

// Set stores element (i, j). Writing outside the declared band is a
// structure violation and panics.
func (m *BandMatrix) Set(i, j int, v float64) {
	if !m.InBand(i, j) {
		panic(fmt.Sprintf("engine: band element (%d,%d) outside bandwidths mu=%d ml=%d", i, j, m.Mu, m.Ml))
	}
	m.Data[j*m.ldim()+(i-j+m.Mu)] = v
}

// Add accumulates into element (i, j), panicking outside the band.
func (m *BandMatrix) Add(i, j int, v float64) {
	m.Set(i, j, m.At(i, j)+v)
}

// Zero clears all stored elements.
func (m *BandMatrix) Zero() {
	for i := range m.Data {
		m.Data[i] = 0
	}
}
