package odebind

import (
	"github.com/san-kum/odebind/engine"
)

// AdjInit enables adjoint sensitivity: subsequent forward advances must go
// through AdvanceF so the engine records the checkpoints backward
// integration interpolates against. maxCheckpoints bounds the recorded
// history and must be positive; once the bound is hit the engine coarsens
// the stored points, trading backward interpolation accuracy for memory.
func (s *Session) AdjInit(maxCheckpoints int) error {
	if s.closed {
		return ErrSessionClosed
	}
	if err := s.replay(s.eng.AdjInit(maxCheckpoints), "AdjInit"); err != nil {
		return err
	}
	s.adjOn = true
	return nil
}

// AdvanceF is Advance with forward-history checkpointing. It additionally
// reports how many checkpoints the engine holds.
func (s *Session) AdvanceF(tout float64, y []float64) (t float64, ncheck int, res Result, err error) {
	if s.closed {
		return 0, 0, Continue, ErrSessionClosed
	}
	if !s.adjOn {
		return 0, 0, Continue, ErrAdjointNotInitialized
	}
	if len(y) != s.neqs {
		return 0, 0, Continue, ErrIllInput
	}
	tret, ncheck, flag := s.eng.AdvanceF(tout, y, engine.Normal)
	switch flag {
	case engine.Success:
		return tret, ncheck, Continue, nil
	case engine.RootReturn:
		return tret, ncheck, RootsFound, nil
	case engine.TstopReturn:
		return tret, ncheck, StopTimeReached, nil
	}
	return tret, ncheck, Continue, s.replay(flag, "AdvanceF")
}

// ConfigB describes a backward problem at creation time.
type ConfigB struct {
	// Method is the multistep family for the backward integration.
	Method Method

	// TB0 is the backward initial time, normally the end of the recorded
	// forward interval.
	TB0 float64

	// Rhs evaluates yBdot = fB(t, y, yB). Required.
	Rhs RhsFnB

	// Solver selects the backward linear solver. Nil means functional
	// iteration.
	Solver SolverConfigB
}

// BackwardSession is an adjoint problem owned by a forward parent. It holds
// no engine handle of its own: the engine addresses it by (parent, index),
// and closing the parent invalidates it.
type BackwardSession struct {
	parent *Session
	which  int
	neqs   int
	closed bool
	table  callbackTableB
}

// btable routes a backward callback to its problem's table. A miss means
// the engine fired a callback for a backward problem this session does not
// own, which is an ownership bug.
func (s *Session) btable(which int) *callbackTableB {
	for _, b := range s.children {
		if b.which == which {
			return &b.table
		}
	}
	panic(&LifetimeError{Op: "backward callback for an unknown problem index"})
}

// InitBackward creates a backward problem on s, starting at cfg.TB0 with
// state yB0. Requires AdjInit and at least one AdvanceF beforehand.
func InitBackward(s *Session, cfg ConfigB, yB0 []float64) (*BackwardSession, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if !s.adjOn {
		return nil, ErrAdjointNotInitialized
	}
	if cfg.Rhs == nil || len(yB0) == 0 {
		return nil, ErrIllInput
	}

	which, flag := s.eng.CreateB()
	if flag != engine.Success {
		return nil, s.replay(flag, "CreateB")
	}
	b := &BackwardSession{parent: s, which: which, neqs: len(yB0)}
	b.table.rhs = cfg.Rhs

	iter := engine.Newton
	if cfg.Solver == nil {
		iter = engine.Functional
	}
	if flag := s.eng.RegisterB(which, engine.CbRhsB, trampRhsB(which)); flag != engine.Success {
		return nil, s.replay(flag, "RegisterB")
	}
	if flag := s.eng.InitB(which, engine.LMM(cfg.Method), iter, cfg.TB0, yB0); flag != engine.Success {
		s.eng.ClearB(which, engine.CbRhsB)
		return nil, s.replay(flag, "InitB")
	}
	if cfg.Solver != nil {
		if err := cfg.Solver.attachB(b); err != nil {
			// Abandon the engine-side problem: without a bound rhs it is
			// skipped by later backward advances.
			s.eng.ClearB(which, engine.CbRhsB)
			return nil, err
		}
	}
	// Adopt the child only once it is fully initialized; a failure above
	// must not leave a half-built problem in the parent's list.
	s.children = append(s.children, b)
	return b, nil
}

// AdvanceB integrates every backward problem of this session from its
// current time back to tBout, interpolating the forward solution from the
// recorded history as it goes.
func (s *Session) AdvanceB(tBout float64) error {
	if s.closed {
		return ErrSessionClosed
	}
	if !s.adjOn {
		return ErrAdjointNotInitialized
	}
	return s.replay(s.eng.AdvanceB(tBout), "AdvanceB")
}

func (b *BackwardSession) check() error {
	if b.closed || b.parent.closed {
		return ErrSessionClosed
	}
	return nil
}

// Which returns the engine-side index of this backward problem.
func (b *BackwardSession) Which() int { return b.which }

// N returns the backward problem size.
func (b *BackwardSession) N() int { return b.neqs }

// State copies the backward solution after an AdvanceB into yB and returns
// the time it corresponds to.
func (b *BackwardSession) State(yB []float64) (float64, error) {
	if err := b.check(); err != nil {
		return 0, err
	}
	if len(yB) != b.neqs {
		return 0, ErrIllInput
	}
	t, flag := b.parent.eng.GetB(b.which, yB)
	return t, b.parent.replay(flag, "GetB")
}

// ReInit restarts the backward problem from a new terminal condition,
// keeping callbacks and solver configuration.
func (b *BackwardSession) ReInit(tB0 float64, yB0 []float64) error {
	if err := b.check(); err != nil {
		return err
	}
	if len(yB0) != b.neqs {
		return ErrIllInput
	}
	return b.parent.replay(b.parent.eng.ReInitB(b.which, tB0, yB0), "ReInitB")
}

// SStolerances sets scalar tolerances for the backward problem.
func (b *BackwardSession) SStolerances(reltol, abstol float64) error {
	if err := b.check(); err != nil {
		return err
	}
	return b.parent.replay(b.parent.eng.SetTolerancesB(b.which, reltol, []float64{abstol}), "SetTolerancesB")
}

// SVtolerances sets scalar relative and per-component absolute tolerances.
func (b *BackwardSession) SVtolerances(reltol float64, abstol []float64) error {
	if err := b.check(); err != nil {
		return err
	}
	if len(abstol) != b.neqs {
		return ErrIllInput
	}
	return b.parent.replay(b.parent.eng.SetTolerancesB(b.which, reltol, abstol), "SetTolerancesB")
}

// Stats returns the backward problem's integrator counters.
func (b *BackwardSession) Stats() (IntegratorStats, error) {
	if err := b.check(); err != nil {
		return IntegratorStats{}, err
	}
	st, flag := b.parent.eng.StatsB(b.which)
	if err := b.parent.replay(flag, "StatsB"); err != nil {
		return IntegratorStats{}, err
	}
	return statsFromEngine(st), nil
}

// SolverConfigB is a linear-solver configuration for a backward problem.
type SolverConfigB interface {
	attachB(b *BackwardSession) error
}

// DenseB attaches a dense direct solver to a backward problem.
type DenseB struct {
	Jac DenseJacFnB
}

// BandB attaches a banded direct solver to a backward problem.
type BandB struct {
	Upper int
	Lower int
	Jac   BandJacFnB
}

// DiagB attaches the diagonal approximate-Jacobian solver.
type DiagB struct{}

// KrylovB attaches an iterative solver with an optional user preconditioner.
type KrylovB struct {
	Method   KrylovMethod
	Side     PrecSide
	MaxDim   int
	Setup    PrecSetupFnB
	Solve    PrecSolveFnB
	JacTimes JacTimesFnB
}

// KrylovBBDB attaches an iterative solver with the band-block-diagonal
// preconditioner built from the backward local function.
type KrylovBBDB struct {
	Method     KrylovMethod
	Side       PrecSide
	MaxDim     int
	NLocal     int
	Bandwidths Bandwidths
	RelInc     float64
	Local      BBDLocalFnB
	Comm       BBDCommFnB
	JacTimes   JacTimesFnB
}

func (c DenseB) attachB(b *BackwardSession) error {
	s := b.parent
	if flag := s.eng.AttachDenseB(b.which, b.neqs); flag != engine.Success {
		return s.replay(flag, "AttachDenseB")
	}
	if c.Jac != nil {
		b.table.jacDense = c.Jac
		if flag := s.eng.RegisterB(b.which, engine.CbJacDenseB, trampJacDenseB(b.which)); flag != engine.Success {
			return s.replay(flag, "RegisterB")
		}
	}
	return nil
}

func (c BandB) attachB(b *BackwardSession) error {
	s := b.parent
	if c.Upper < 0 || c.Lower < 0 || c.Upper >= b.neqs || c.Lower >= b.neqs {
		return ErrIllInput
	}
	if flag := s.eng.AttachBandB(b.which, b.neqs, c.Upper, c.Lower); flag != engine.Success {
		return s.replay(flag, "AttachBandB")
	}
	if c.Jac != nil {
		b.table.jacBand = c.Jac
		if flag := s.eng.RegisterB(b.which, engine.CbJacBandB, trampJacBandB(b.which)); flag != engine.Success {
			return s.replay(flag, "RegisterB")
		}
	}
	return nil
}

func (DiagB) attachB(b *BackwardSession) error {
	s := b.parent
	return s.replay(s.eng.AttachDiagB(b.which), "AttachDiagB")
}

func (c KrylovB) attachB(b *BackwardSession) error {
	s := b.parent
	if c.Side != PrecNone && c.Solve == nil {
		return ErrIllInput
	}
	flag := s.eng.AttachKrylovB(b.which, engine.KrylovMethod(c.Method), engine.PrecSide(c.Side), c.MaxDim)
	if flag != engine.Success {
		return s.replay(flag, "AttachKrylovB")
	}
	if c.Setup != nil {
		b.table.psetup = c.Setup
		if flag := s.eng.RegisterB(b.which, engine.CbPrecSetupB, trampPrecSetupB(b.which)); flag != engine.Success {
			return s.replay(flag, "RegisterB")
		}
	}
	if c.Solve != nil {
		b.table.psolve = c.Solve
		if flag := s.eng.RegisterB(b.which, engine.CbPrecSolveB, trampPrecSolveB(b.which)); flag != engine.Success {
			return s.replay(flag, "RegisterB")
		}
	}
	if c.JacTimes != nil {
		b.table.jtimes = c.JacTimes
		if flag := s.eng.RegisterB(b.which, engine.CbJacTimesB, trampJacTimesB(b.which)); flag != engine.Success {
			return s.replay(flag, "RegisterB")
		}
	}
	return nil
}

func (c KrylovBBDB) attachB(b *BackwardSession) error {
	s := b.parent
	if c.Local == nil {
		return ErrIllInput
	}
	flag := s.eng.AttachKrylovB(b.which, engine.KrylovMethod(c.Method), engine.PrecSide(c.Side), c.MaxDim)
	if flag != engine.Success {
		return s.replay(flag, "AttachKrylovB")
	}
	b.table.bbdLocal = c.Local
	if flag := s.eng.RegisterB(b.which, engine.CbBBDLocalB, trampBBDLocalB(b.which)); flag != engine.Success {
		return s.replay(flag, "RegisterB")
	}
	if c.Comm != nil {
		b.table.bbdComm = c.Comm
		if flag := s.eng.RegisterB(b.which, engine.CbBBDCommB, trampBBDCommB(b.which)); flag != engine.Success {
			return s.replay(flag, "RegisterB")
		}
	}
	if c.JacTimes != nil {
		b.table.jtimes = c.JacTimes
		if flag := s.eng.RegisterB(b.which, engine.CbJacTimesB, trampJacTimesB(b.which)); flag != engine.Success {
			return s.replay(flag, "RegisterB")
		}
	}
	nlocal := c.NLocal
	if nlocal <= 0 {
		nlocal = b.neqs
	}
	return s.replay(s.eng.BBDInitB(b.which, nlocal, c.Bandwidths, c.RelInc), "BBDInitB")
}
