package odebind

import (
	"github.com/san-kum/odebind/engine"
)

// KrylovMethod selects the iterative linear solver. The choice is passed
// through to the engine as a hint; see [engine.KrylovMethod].
type KrylovMethod int

const (
	GMRES KrylovMethod = iota
	BiCGStab
	TFQMR
)

// PrecSide selects which side a Krylov preconditioner is applied on.
type PrecSide int

const (
	PrecNone PrecSide = iota
	PrecLeft
	PrecRight
	PrecBoth
)

// Bandwidths bounds the difference-quotient sweep (MuDQ, MlDQ) and the
// retained band (MuKeep, MlKeep) of the band-block-diagonal preconditioner.
type Bandwidths = engine.Bandwidths

// SolverConfig is a linear-solver configuration acceptable to
// [Session.AttachSolver]. Implementations are the exported config structs
// in this package; the set is closed.
type SolverConfig interface {
	attach(s *Session) error
}

// solverVariant records which configuration is active so later variant-
// specific calls can be validated. Exactly one variant is active at a time.
type solverVariant interface {
	isSolverVariant()
}

type variantNone struct{}
type variantDense struct{}
type variantBand struct{}
type variantDiag struct{}
type variantKrylov struct{ bbd bool }

func (variantNone) isSolverVariant()   {}
func (variantDense) isSolverVariant()  {}
func (variantBand) isSolverVariant()   {}
func (variantDiag) isSolverVariant()   {}
func (variantKrylov) isSolverVariant() {}

// Dense attaches a dense direct solver. Jac is optional; without it the
// engine approximates the Jacobian by finite differences.
type Dense struct {
	Jac DenseJacFn
}

// Band attaches a banded direct solver with the given bandwidths.
type Band struct {
	Upper int
	Lower int
	Jac   BandJacFn
}

// Diag attaches the diagonal approximate-Jacobian solver. It takes no
// callbacks.
type Diag struct{}

// Krylov attaches an iterative solver with an optional user preconditioner.
// Solve is required whenever Side is not PrecNone; Setup and JacTimes are
// optional.
type Krylov struct {
	Method KrylovMethod
	Side   PrecSide
	// MaxDim is the maximum Krylov subspace dimension. Zero keeps the
	// engine default.
	MaxDim   int
	Setup    PrecSetupFn
	Solve    PrecSolveFn
	JacTimes JacTimesFn
}

// KrylovBBD attaches an iterative solver preconditioned by a band-block-
// diagonal approximation built inside the engine by finite-differencing
// Local. Comm runs before each sweep of Local evaluations and may be nil.
type KrylovBBD struct {
	Method KrylovMethod
	Side   PrecSide
	MaxDim int
	// NLocal is the local partition size. Zero means the full problem.
	NLocal     int
	Bandwidths Bandwidths
	// RelInc is the relative increment for the difference quotients. Zero
	// selects the square root of unit roundoff.
	RelInc   float64
	Local    BBDLocalFn
	Comm     BBDCommFn
	JacTimes JacTimesFn
}

// AttachSolver replaces the active linear-solver variant. The previous
// variant's callbacks are cleared from both the table and the engine before
// the new ones are registered, so no stale trampoline survives a switch.
func (s *Session) AttachSolver(cfg SolverConfig) error {
	if s.closed {
		return ErrSessionClosed
	}
	if cfg == nil {
		return ErrIllInput
	}
	s.clearSolverCallbacks()
	s.variant = variantNone{}
	if err := cfg.attach(s); err != nil {
		return err
	}
	// Every attachable variant drives Newton iteration; a session created
	// without a solver starts out functional.
	return s.replay(s.eng.SetIterKind(engine.Newton), "SetIterKind")
}

var solverCallbackKinds = []engine.CallbackKind{
	engine.CbJacDense,
	engine.CbJacBand,
	engine.CbPrecSetup,
	engine.CbPrecSolve,
	engine.CbJacTimes,
	engine.CbBBDLocal,
	engine.CbBBDComm,
}

func (s *Session) clearSolverCallbacks() {
	for _, k := range solverCallbackKinds {
		s.eng.Clear(k)
	}
	s.table.jacDense = nil
	s.table.jacBand = nil
	s.table.psetup = nil
	s.table.psolve = nil
	s.table.jtimes = nil
	s.table.bbdLocal = nil
	s.table.bbdComm = nil
}

func (c Dense) attach(s *Session) error {
	if flag := s.eng.AttachDense(s.neqs); flag != engine.Success {
		return s.replay(flag, "AttachDense")
	}
	if c.Jac != nil {
		s.table.jacDense = c.Jac
		if flag := s.eng.Register(engine.CbJacDense, engine.DenseJacFn(trampJacDense)); flag != engine.Success {
			return s.replay(flag, "Register")
		}
	}
	s.variant = variantDense{}
	return nil
}

func (c Band) attach(s *Session) error {
	if c.Upper < 0 || c.Lower < 0 || c.Upper >= s.neqs || c.Lower >= s.neqs {
		return ErrIllInput
	}
	if flag := s.eng.AttachBand(s.neqs, c.Upper, c.Lower); flag != engine.Success {
		return s.replay(flag, "AttachBand")
	}
	if c.Jac != nil {
		s.table.jacBand = c.Jac
		if flag := s.eng.Register(engine.CbJacBand, engine.BandJacFn(trampJacBand)); flag != engine.Success {
			return s.replay(flag, "Register")
		}
	}
	s.variant = variantBand{}
	return nil
}

func (Diag) attach(s *Session) error {
	if flag := s.eng.AttachDiag(); flag != engine.Success {
		return s.replay(flag, "AttachDiag")
	}
	s.variant = variantDiag{}
	return nil
}

func (c Krylov) attach(s *Session) error {
	if c.Side != PrecNone && c.Solve == nil {
		return ErrIllInput
	}
	flag := s.eng.AttachKrylov(engine.KrylovMethod(c.Method), engine.PrecSide(c.Side), c.MaxDim)
	if flag != engine.Success {
		return s.replay(flag, "AttachKrylov")
	}
	if c.Setup != nil {
		s.table.psetup = c.Setup
		if flag := s.eng.Register(engine.CbPrecSetup, engine.PrecSetupFn(trampPrecSetup)); flag != engine.Success {
			return s.replay(flag, "Register")
		}
	}
	if c.Solve != nil {
		s.table.psolve = c.Solve
		if flag := s.eng.Register(engine.CbPrecSolve, engine.PrecSolveFn(trampPrecSolve)); flag != engine.Success {
			return s.replay(flag, "Register")
		}
	}
	if c.JacTimes != nil {
		s.table.jtimes = c.JacTimes
		if flag := s.eng.Register(engine.CbJacTimes, engine.JacTimesFn(trampJacTimes)); flag != engine.Success {
			return s.replay(flag, "Register")
		}
	}
	s.variant = variantKrylov{}
	return nil
}

func (c KrylovBBD) attach(s *Session) error {
	if c.Local == nil {
		return ErrIllInput
	}
	flag := s.eng.AttachKrylov(engine.KrylovMethod(c.Method), engine.PrecSide(c.Side), c.MaxDim)
	if flag != engine.Success {
		return s.replay(flag, "AttachKrylov")
	}
	s.table.bbdLocal = c.Local
	if flag := s.eng.Register(engine.CbBBDLocal, engine.BBDLocalFn(trampBBDLocal)); flag != engine.Success {
		return s.replay(flag, "Register")
	}
	if c.Comm != nil {
		s.table.bbdComm = c.Comm
		if flag := s.eng.Register(engine.CbBBDComm, engine.BBDCommFn(trampBBDComm)); flag != engine.Success {
			return s.replay(flag, "Register")
		}
	}
	if c.JacTimes != nil {
		s.table.jtimes = c.JacTimes
		if flag := s.eng.Register(engine.CbJacTimes, engine.JacTimesFn(trampJacTimes)); flag != engine.Success {
			return s.replay(flag, "Register")
		}
	}
	nlocal := c.NLocal
	if nlocal <= 0 {
		nlocal = s.neqs
	}
	if flag := s.eng.BBDInit(nlocal, c.Bandwidths, c.RelInc); flag != engine.Success {
		return s.replay(flag, "BBDInit")
	}
	s.variant = variantKrylov{bbd: true}
	return nil
}

// ReInitBBD re-derives the band-block-diagonal preconditioner with new
// difference-quotient bandwidths. Fails with ErrIllInput unless the active
// variant is Krylov with the BBD preconditioner.
func (s *Session) ReInitBBD(mudq, mldq int, relInc float64) error {
	if s.closed {
		return ErrSessionClosed
	}
	if v, ok := s.variant.(variantKrylov); !ok || !v.bbd {
		return ErrIllInput
	}
	return s.replay(s.eng.BBDReInit(mudq, mldq, relInc), "BBDReInit")
}

// ClearJac removes a user Jacobian callback; the engine reverts to its
// finite-difference approximation. No-op when none is registered.
func (s *Session) ClearJac() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.table.jacDense != nil {
		s.table.jacDense = nil
		s.eng.Clear(engine.CbJacDense)
	}
	if s.table.jacBand != nil {
		s.table.jacBand = nil
		s.eng.Clear(engine.CbJacBand)
	}
	return nil
}

// ClearJacTimes removes a user Jacobian-vector product callback. No-op when
// none is registered.
func (s *Session) ClearJacTimes() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.table.jtimes != nil {
		s.table.jtimes = nil
		s.eng.Clear(engine.CbJacTimes)
	}
	return nil
}

// ClearPrec removes user preconditioner callbacks. No-op when none are
// registered.
func (s *Session) ClearPrec() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.table.psetup != nil {
		s.table.psetup = nil
		s.eng.Clear(engine.CbPrecSetup)
	}
	if s.table.psolve != nil {
		s.table.psolve = nil
		s.eng.Clear(engine.CbPrecSolve)
	}
	return nil
}
