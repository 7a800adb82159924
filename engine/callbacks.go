package engine

// CallbackKind identifies a registration slot. The order is part of the
// engine header contract: trampoline registration and clearing are routed
// by this value, so it must not be rearranged.
type CallbackKind int

const (
	CbRhs CallbackKind = iota
	CbRoots
	CbErrHandler
	CbErrWeight
	CbJacDense
	CbJacBand
	CbPrecSetup
	CbPrecSolve
	CbJacTimes
	CbBBDLocal
	CbBBDComm
	CbRhsB
	CbJacDenseB
	CbJacBandB
	CbPrecSetupB
	CbPrecSolveB
	CbJacTimesB
	CbBBDLocalB
	CbBBDCommB
	numCallbackKinds
)

// NumCallbackKinds is the size of a full registration table.
const NumCallbackKinds = int(numCallbackKinds)

// Callback status values. Anything negative is treated as unrecoverable.
const (
	CbOK          = 0
	CbRecoverable = 1
	CbFatal       = -1
)

// Buffers passed to callbacks (y, ydot, residuals, workspaces, matrices) are
// engine-owned scratch storage, valid only for the duration of the call.
// Implementations reuse and overwrite them on the next step.

// RhsFn evaluates ydot = f(t, y).
type RhsFn func(t float64, y, ydot []float64, user Token) int

// RootFn fills gout with the root functions g(t, y). The engine reports a
// root when any component crosses zero between steps.
type RootFn func(t float64, y, gout []float64, user Token) int

// ErrHandlerFn receives engine diagnostic messages. Its return value is
// ignored; it must not fail.
type ErrHandlerFn func(code int, module, function, msg string, user Token)

// ErrWeightFn fills ewt with error weights for the current y, replacing the
// engine's tolerance-derived weights.
type ErrWeightFn func(y, ewt []float64, user Token) int

// DenseJacFn fills jac with the dense system Jacobian df/dy at (t, y).
type DenseJacFn func(t float64, y, fy []float64, jac *DenseMatrix, tmp1, tmp2, tmp3 []float64, user Token) int

// BandJacFn fills jac inside the declared bandwidths.
type BandJacFn func(mupper, mlower int, t float64, y, fy []float64, jac *BandMatrix, tmp1, tmp2, tmp3 []float64, user Token) int

// PrecSetupFn prepares preconditioner data. jok reports whether saved
// Jacobian data may be reused; the returned jcur reports whether it was
// refreshed. gamma is the current scalar in M = I - gamma*J.
type PrecSetupFn func(t float64, y, fy []float64, jok bool, gamma float64, tmp1, tmp2, tmp3 []float64, user Token) (jcur bool, status int)

// PrecSolveFn solves Pz = r where P approximates M = I - gamma*J. left
// reports which side is being preconditioned.
type PrecSolveFn func(t float64, y, fy, r, z []float64, gamma, delta float64, left bool, tmp []float64, user Token) int

// JacTimesFn computes jv = J*v at (t, y).
type JacTimesFn func(v, jv []float64, t float64, y, fy []float64, tmp []float64, user Token) int

// BBDLocalFn computes the local approximation glocal = g(t, y) used to build
// the band-block-diagonal preconditioner by difference quotients.
type BBDLocalFn func(nlocal int, t float64, y, glocal []float64, user Token) int

// BBDCommFn performs any cross-partition exchange required before BBDLocalFn
// reads y. May be absent.
type BBDCommFn func(nlocal int, t float64, y []float64, user Token) int

// Backward-problem analogues. y is the forward solution interpolated to t;
// yB is the backward state.

type RhsFnB func(t float64, y, yB, yBdot []float64, user Token) int

type DenseJacFnB func(t float64, y, yB, fyB []float64, jac *DenseMatrix, tmp1, tmp2, tmp3 []float64, user Token) int

type BandJacFnB func(mupper, mlower int, t float64, y, yB, fyB []float64, jac *BandMatrix, tmp1, tmp2, tmp3 []float64, user Token) int

type PrecSetupFnB func(t float64, y, yB, fyB []float64, jok bool, gamma float64, tmp1, tmp2, tmp3 []float64, user Token) (jcur bool, status int)

type PrecSolveFnB func(t float64, y, yB, fyB, r, z []float64, gamma, delta float64, left bool, tmp []float64, user Token) int

type JacTimesFnB func(v, jv []float64, t float64, y, yB, fyB []float64, tmp []float64, user Token) int

type BBDLocalFnB func(nlocal int, t float64, y, yB, gBlocal []float64, user Token) int

type BBDCommFnB func(nlocal int, t float64, y, yB []float64, user Token) int
