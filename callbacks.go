package odebind

import (
	"github.com/san-kum/odebind/engine"
)

// Host callback types. Every buffer argument is a scoped [View] over
// engine-owned storage: valid until the callback returns, then dead.
// Returning nil reports success; returning [ErrRecoverable] (or an error
// wrapping it) asks the engine to retry where the callback kind defines a
// retry; any other error aborts the advance and is returned from it.

// RhsFn evaluates ydot = f(t, y).
type RhsFn func(t float64, y, ydot View) error

// RootFn fills gout with the root functions g(t, y).
type RootFn func(t float64, y, gout View) error

// ErrorDetails carries one engine diagnostic message.
type ErrorDetails struct {
	Code     int
	Module   string
	Function string
	Message  string
}

// ErrHandlerFn receives engine diagnostics in place of the error file. It
// is purely informational: it cannot fail, and a panic inside it is
// discarded rather than unwinding the engine.
type ErrHandlerFn func(ErrorDetails)

// ErrWeightFn fills ewt with strictly positive error weights for y,
// replacing the tolerance-derived weights.
type ErrWeightFn func(y, ewt View) error

// JacArg bundles the state at which a Jacobian-related callback is
// evaluated. Tmp holds engine scratch vectors the callback may use freely.
type JacArg struct {
	T   float64
	Y   View
	FY  View
	Tmp [3]View
}

// DenseJacFn fills jac with df/dy. The matrix arrives zeroed.
type DenseJacFn func(arg JacArg, jac DenseView) error

// BandJacFn fills jac inside the declared bandwidths. The matrix arrives
// zeroed; writes outside the band panic.
type BandJacFn func(mupper, mlower int, arg JacArg, jac BandView) error

// PrecSetupFn prepares preconditioner data for M = I - gamma*J. jok reports
// whether Jacobian data saved from an earlier call may be reused; the
// returned jcur reports whether it was refreshed instead.
type PrecSetupFn func(arg JacArg, jok bool, gamma float64) (jcur bool, err error)

// SolveArg bundles the right-hand side and parameters of one
// preconditioner solve Pz = r.
type SolveArg struct {
	Rhs   View
	Gamma float64
	Delta float64
	Left  bool
}

// PrecSolveFn solves Pz = r, writing the solution into z.
type PrecSolveFn func(arg JacArg, sv SolveArg, z View) error

// JacTimesFn computes jv = J*v at the state in arg.
type JacTimesFn func(v, jv View, arg JacArg) error

// BBDLocalFn computes the local right-hand side approximation used to build
// the band-block-diagonal preconditioner by difference quotients.
type BBDLocalFn func(t float64, y, glocal View) error

// BBDCommFn performs any data exchange BBDLocalFn depends on. May be nil.
type BBDCommFn func(t float64, y View) error

// Backward-problem callback types. y is the forward solution interpolated
// to t; yB is the backward state.

// RhsFnB evaluates yBdot = fB(t, y, yB).
type RhsFnB func(t float64, y, yB, yBdot View) error

// JacArgB is the backward analogue of [JacArg].
type JacArgB struct {
	T   float64
	Y   View
	YB  View
	FYB View
	Tmp [3]View
}

type DenseJacFnB func(arg JacArgB, jac DenseView) error

type BandJacFnB func(mupper, mlower int, arg JacArgB, jac BandView) error

type PrecSetupFnB func(arg JacArgB, jok bool, gamma float64) (jcur bool, err error)

type PrecSolveFnB func(arg JacArgB, sv SolveArg, z View) error

type JacTimesFnB func(v, jv View, arg JacArgB) error

type BBDLocalFnB func(t float64, y, yB, gBlocal View) error

type BBDCommFnB func(t float64, y, yB View) error

// callbackTable is the forward host callback set. Solver-specific entries
// (jacDense through bbdComm) are replaced wholesale when a linear solver is
// attached so an old variant's functions cannot survive a switch.
type callbackTable struct {
	rhs      RhsFn
	roots    RootFn
	errh     ErrHandlerFn
	errw     ErrWeightFn
	jacDense DenseJacFn
	jacBand  BandJacFn
	psetup   PrecSetupFn
	psolve   PrecSolveFn
	jtimes   JacTimesFn
	bbdLocal BBDLocalFn
	bbdComm  BBDCommFn
}

// callbackTableB is the per-backward-problem host callback set.
type callbackTableB struct {
	rhs      RhsFnB
	jacDense DenseJacFnB
	jacBand  BandJacFnB
	psetup   PrecSetupFnB
	psolve   PrecSolveFnB
	jtimes   JacTimesFnB
	bbdLocal BBDLocalFnB
	bbdComm  BBDCommFnB
}

// Trampolines. Each one resolves the owning session from the user-data
// token, opens a scope for the views it hands out, invokes the host
// function, and folds its error through guard. The closures capture no
// session pointer; the token is the only back-reference.

func trampRhs(t float64, y, ydot []float64, user engine.Token) int {
	s := resolveSession(user)
	sc := newScope()
	defer sc.close()
	return guard(s, true, s.table.rhs(t, sc.wrap(y), sc.wrap(ydot)))
}

func trampRoots(t float64, y, gout []float64, user engine.Token) int {
	s := resolveSession(user)
	sc := newScope()
	defer sc.close()
	return guard(s, false, s.table.roots(t, sc.wrap(y), sc.wrap(gout)))
}

func trampErrHandler(code int, module, function, msg string, user engine.Token) {
	s := resolveSession(user)
	// The handler is informational only; whatever it does must not unwind
	// the engine frames below us.
	defer func() { _ = recover() }()
	s.table.errh(ErrorDetails{Code: code, Module: module, Function: function, Message: msg})
}

func trampErrWeight(y, ewt []float64, user engine.Token) int {
	s := resolveSession(user)
	sc := newScope()
	defer sc.close()
	return guard(s, false, s.table.errw(sc.wrap(y), sc.wrap(ewt)))
}

func jacArg(sc *scope, t float64, y, fy, tmp1, tmp2, tmp3 []float64) JacArg {
	return JacArg{
		T:   t,
		Y:   sc.wrap(y),
		FY:  sc.wrap(fy),
		Tmp: [3]View{sc.wrap(tmp1), sc.wrap(tmp2), sc.wrap(tmp3)},
	}
}

func trampJacDense(t float64, y, fy []float64, jac *engine.DenseMatrix, tmp1, tmp2, tmp3 []float64, user engine.Token) int {
	s := resolveSession(user)
	sc := newScope()
	defer sc.close()
	return guard(s, true, s.table.jacDense(jacArg(sc, t, y, fy, tmp1, tmp2, tmp3), sc.wrapDense(jac)))
}

func trampJacBand(mupper, mlower int, t float64, y, fy []float64, jac *engine.BandMatrix, tmp1, tmp2, tmp3 []float64, user engine.Token) int {
	s := resolveSession(user)
	sc := newScope()
	defer sc.close()
	return guard(s, true, s.table.jacBand(mupper, mlower, jacArg(sc, t, y, fy, tmp1, tmp2, tmp3), sc.wrapBand(jac)))
}

func trampPrecSetup(t float64, y, fy []float64, jok bool, gamma float64, tmp1, tmp2, tmp3 []float64, user engine.Token) (bool, int) {
	s := resolveSession(user)
	sc := newScope()
	defer sc.close()
	jcur, err := s.table.psetup(jacArg(sc, t, y, fy, tmp1, tmp2, tmp3), jok, gamma)
	return guardBool(s, true, jcur, err)
}

func trampPrecSolve(t float64, y, fy, r, z []float64, gamma, delta float64, left bool, tmp []float64, user engine.Token) int {
	s := resolveSession(user)
	sc := newScope()
	defer sc.close()
	arg := JacArg{T: t, Y: sc.wrap(y), FY: sc.wrap(fy), Tmp: [3]View{sc.wrap(tmp)}}
	sv := SolveArg{Rhs: sc.wrap(r), Gamma: gamma, Delta: delta, Left: left}
	return guard(s, true, s.table.psolve(arg, sv, sc.wrap(z)))
}

func trampJacTimes(v, jv []float64, t float64, y, fy []float64, tmp []float64, user engine.Token) int {
	s := resolveSession(user)
	sc := newScope()
	defer sc.close()
	arg := JacArg{T: t, Y: sc.wrap(y), FY: sc.wrap(fy), Tmp: [3]View{sc.wrap(tmp)}}
	return guard(s, true, s.table.jtimes(sc.wrap(v), sc.wrap(jv), arg))
}

func trampBBDLocal(nlocal int, t float64, y, glocal []float64, user engine.Token) int {
	s := resolveSession(user)
	sc := newScope()
	defer sc.close()
	return guard(s, true, s.table.bbdLocal(t, sc.wrap(y), sc.wrap(glocal)))
}

func trampBBDComm(nlocal int, t float64, y []float64, user engine.Token) int {
	s := resolveSession(user)
	sc := newScope()
	defer sc.close()
	return guard(s, true, s.table.bbdComm(t, sc.wrap(y)))
}

// Backward trampolines are built per problem index; the closure captures
// only the index, never the session.

func jacArgB(sc *scope, t float64, y, yB, fyB, tmp1, tmp2, tmp3 []float64) JacArgB {
	return JacArgB{
		T:   t,
		Y:   sc.wrap(y),
		YB:  sc.wrap(yB),
		FYB: sc.wrap(fyB),
		Tmp: [3]View{sc.wrap(tmp1), sc.wrap(tmp2), sc.wrap(tmp3)},
	}
}

func trampRhsB(which int) engine.RhsFnB {
	return func(t float64, y, yB, yBdot []float64, user engine.Token) int {
		s := resolveSession(user)
		sc := newScope()
		defer sc.close()
		return guard(s, true, s.btable(which).rhs(t, sc.wrap(y), sc.wrap(yB), sc.wrap(yBdot)))
	}
}

func trampJacDenseB(which int) engine.DenseJacFnB {
	return func(t float64, y, yB, fyB []float64, jac *engine.DenseMatrix, tmp1, tmp2, tmp3 []float64, user engine.Token) int {
		s := resolveSession(user)
		sc := newScope()
		defer sc.close()
		return guard(s, true, s.btable(which).jacDense(jacArgB(sc, t, y, yB, fyB, tmp1, tmp2, tmp3), sc.wrapDense(jac)))
	}
}

func trampJacBandB(which int) engine.BandJacFnB {
	return func(mupper, mlower int, t float64, y, yB, fyB []float64, jac *engine.BandMatrix, tmp1, tmp2, tmp3 []float64, user engine.Token) int {
		s := resolveSession(user)
		sc := newScope()
		defer sc.close()
		return guard(s, true, s.btable(which).jacBand(mupper, mlower, jacArgB(sc, t, y, yB, fyB, tmp1, tmp2, tmp3), sc.wrapBand(jac)))
	}
}

func trampPrecSetupB(which int) engine.PrecSetupFnB {
	return func(t float64, y, yB, fyB []float64, jok bool, gamma float64, tmp1, tmp2, tmp3 []float64, user engine.Token) (bool, int) {
		s := resolveSession(user)
		sc := newScope()
		defer sc.close()
		jcur, err := s.btable(which).psetup(jacArgB(sc, t, y, yB, fyB, tmp1, tmp2, tmp3), jok, gamma)
		return guardBool(s, true, jcur, err)
	}
}

func trampPrecSolveB(which int) engine.PrecSolveFnB {
	return func(t float64, y, yB, fyB, r, z []float64, gamma, delta float64, left bool, tmp []float64, user engine.Token) int {
		s := resolveSession(user)
		sc := newScope()
		defer sc.close()
		arg := JacArgB{T: t, Y: sc.wrap(y), YB: sc.wrap(yB), FYB: sc.wrap(fyB), Tmp: [3]View{sc.wrap(tmp)}}
		sv := SolveArg{Rhs: sc.wrap(r), Gamma: gamma, Delta: delta, Left: left}
		return guard(s, true, s.btable(which).psolve(arg, sv, sc.wrap(z)))
	}
}

func trampJacTimesB(which int) engine.JacTimesFnB {
	return func(v, jv []float64, t float64, y, yB, fyB []float64, tmp []float64, user engine.Token) int {
		s := resolveSession(user)
		sc := newScope()
		defer sc.close()
		arg := JacArgB{T: t, Y: sc.wrap(y), YB: sc.wrap(yB), FYB: sc.wrap(fyB), Tmp: [3]View{sc.wrap(tmp)}}
		return guard(s, true, s.btable(which).jtimes(sc.wrap(v), sc.wrap(jv), arg))
	}
}

func trampBBDLocalB(which int) engine.BBDLocalFnB {
	return func(nlocal int, t float64, y, yB, gBlocal []float64, user engine.Token) int {
		s := resolveSession(user)
		sc := newScope()
		defer sc.close()
		return guard(s, true, s.btable(which).bbdLocal(t, sc.wrap(y), sc.wrap(yB), sc.wrap(gBlocal)))
	}
}

func trampBBDCommB(which int) engine.BBDCommFnB {
	return func(nlocal int, t float64, y, yB []float64, user engine.Token) int {
		s := resolveSession(user)
		sc := newScope()
		defer sc.close()
		return guard(s, true, s.btable(which).bbdComm(t, sc.wrap(y), sc.wrap(yB)))
	}
}
