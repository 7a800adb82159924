package odebind

import (
	"github.com/san-kum/odebind/engine"
)

// scope bounds the lifetime of every view created for one callback
// invocation. The dispatch trampoline closes it when the callback returns;
// any access through a view after that panics.
type scope struct {
	open bool
}

func newScope() *scope { return &scope{open: true} }

func (sc *scope) close() { sc.open = false }

func (sc *scope) check(op string) {
	if !sc.open {
		panic(&LifetimeError{Op: op + " through a view retained past its callback"})
	}
}

// View is a scoped, non-owning window over an engine-owned buffer. The
// engine reuses that storage between steps, so a view is valid only for the
// dynamic extent of the callback it was passed to. Copy out anything that
// must survive.
type View struct {
	data []float64
	sc   *scope
}

func (sc *scope) wrap(data []float64) View { return View{data: data, sc: sc} }

// Len returns the number of elements.
func (v View) Len() int {
	v.sc.check("Len")
	return len(v.data)
}

// At returns element i.
func (v View) At(i int) float64 {
	v.sc.check("At")
	return v.data[i]
}

// Set stores element i.
func (v View) Set(i int, x float64) {
	v.sc.check("Set")
	v.data[i] = x
}

// CopyTo copies the viewed elements into dst, returning the count copied.
func (v View) CopyTo(dst []float64) int {
	v.sc.check("CopyTo")
	return copy(dst, v.data)
}

// CopyFrom overwrites the viewed elements from src, returning the count.
func (v View) CopyFrom(src []float64) int {
	v.sc.check("CopyFrom")
	return copy(v.data, src)
}

// Clone returns an owned copy that survives the callback.
func (v View) Clone() []float64 {
	v.sc.check("Clone")
	return append([]float64(nil), v.data...)
}

// Zero clears the viewed elements.
func (v View) Zero() {
	v.sc.check("Zero")
	for i := range v.data {
		v.data[i] = 0
	}
}

// DenseView is a scoped window over an engine-owned dense Jacobian.
type DenseView struct {
	m  *engine.DenseMatrix
	sc *scope
}

func (sc *scope) wrapDense(m *engine.DenseMatrix) DenseView { return DenseView{m: m, sc: sc} }

// Size returns the matrix dimension.
func (m DenseView) Size() int {
	m.sc.check("Size")
	return m.m.N
}

func (m DenseView) At(i, j int) float64 {
	m.sc.check("At")
	return m.m.At(i, j)
}

func (m DenseView) Set(i, j int, v float64) {
	m.sc.check("Set")
	m.m.Set(i, j, v)
}

func (m DenseView) Add(i, j int, v float64) {
	m.sc.check("Add")
	m.m.Add(i, j, v)
}

// BandView is a scoped window over an engine-owned band Jacobian. Writes
// outside the declared bandwidths panic.
type BandView struct {
	m  *engine.BandMatrix
	sc *scope
}

func (sc *scope) wrapBand(m *engine.BandMatrix) BandView { return BandView{m: m, sc: sc} }

// Size returns the matrix dimension.
func (m BandView) Size() int {
	m.sc.check("Size")
	return m.m.N
}

// Bandwidths returns the upper and lower bandwidths.
func (m BandView) Bandwidths() (mu, ml int) {
	m.sc.check("Bandwidths")
	return m.m.Mu, m.m.Ml
}

func (m BandView) At(i, j int) float64 {
	m.sc.check("At")
	return m.m.At(i, j)
}

func (m BandView) Set(i, j int, v float64) {
	m.sc.check("Set")
	m.m.Set(i, j, v)
}

func (m BandView) Add(i, j int, v float64) {
	m.sc.check("Add")
	m.m.Add(i, j, v)
}
