package odebind

import (
	"github.com/san-kum/odebind/engine"
)

// Method selects the linear multistep family. The zero value is Adams,
// suited to nonstiff problems; BDF is the stiff choice.
type Method int

const (
	Adams Method = iota
	BDF
)

// Result classifies a successful advance.
type Result int

const (
	// Continue: the requested output time was reached; integration may go on.
	Continue Result = iota
	// RootsFound: a root of a registered root function was located before
	// the output time. RootInfo reports which components crossed.
	RootsFound
	// StopTimeReached: the configured stop time was hit first.
	StopTimeReached
)

func (r Result) String() string {
	switch r {
	case Continue:
		return "continue"
	case RootsFound:
		return "roots found"
	case StopTimeReached:
		return "stop time reached"
	default:
		return "unknown"
	}
}

// Config describes a forward session at creation time. Rhs is mandatory;
// everything else is optional.
type Config struct {
	// Method is the multistep family. Zero value is Adams.
	Method Method

	// T0 is the initial time.
	T0 float64

	// Rhs evaluates the right-hand side ydot = f(t, y). Required.
	Rhs RhsFn

	// NumRoots and Roots configure root finding. Roots must be non-nil
	// when NumRoots > 0.
	NumRoots int
	Roots    RootFn

	// Solver selects the linear solver attached after creation. Nil means
	// functional (fixed-point) iteration with no linear solver.
	Solver SolverConfig

	// ErrHandler receives engine diagnostics instead of the error file.
	ErrHandler ErrHandlerFn

	// ErrFile is an opaque path handed to the engine for its own textual
	// diagnostics. Ignored when ErrHandler is set.
	ErrFile string

	// MaxSteps bounds internal steps per advance. Zero keeps the engine
	// default.
	MaxSteps int64
}

// Session owns one engine handle and its callback table. It is not safe for
// concurrent use, and its callbacks must not re-enter Advance.
type Session struct {
	eng    engine.Engine
	tok    engine.Token
	neqs   int
	nroots int
	closed bool

	table   callbackTable
	variant solverVariant
	lastErr error

	adjOn    bool
	children []*BackwardSession
}

// Create allocates and initializes a forward session over eng, starting at
// cfg.T0 with state y0. The engine handle is exclusively owned by the
// returned session and destroyed by Close.
func Create(eng engine.Engine, cfg Config, y0 []float64) (*Session, error) {
	if cfg.Rhs == nil || len(y0) == 0 {
		return nil, ErrIllInput
	}
	if cfg.NumRoots > 0 && cfg.Roots == nil {
		return nil, ErrIllInput
	}

	s := &Session{
		eng:    eng,
		neqs:   len(y0),
		nroots: cfg.NumRoots,
	}
	s.table.rhs = cfg.Rhs
	s.table.roots = cfg.Roots
	s.table.errh = cfg.ErrHandler
	s.tok = registerSession(s)

	iter := engine.Newton
	if cfg.Solver == nil {
		iter = engine.Functional
	}
	if flag := eng.Init(engine.LMM(cfg.Method), iter, cfg.T0, y0, cfg.NumRoots); flag != engine.Success {
		unregisterSession(s.tok)
		return nil, ErrEngineInit
	}
	eng.SetUserData(s.tok)

	if flag := eng.Register(engine.CbRhs, engine.RhsFn(trampRhs)); flag != engine.Success {
		s.abandon()
		return nil, ErrEngineInit
	}
	if cfg.NumRoots > 0 {
		if flag := eng.Register(engine.CbRoots, engine.RootFn(trampRoots)); flag != engine.Success {
			s.abandon()
			return nil, ErrEngineInit
		}
	}
	if cfg.ErrHandler != nil {
		eng.Register(engine.CbErrHandler, engine.ErrHandlerFn(trampErrHandler))
	} else if cfg.ErrFile != "" {
		if flag := eng.SetErrFile(cfg.ErrFile); flag != engine.Success {
			s.abandon()
			return nil, errFromFlag(flag, "SetErrFile")
		}
	}
	if cfg.MaxSteps > 0 {
		eng.SetMaxSteps(cfg.MaxSteps)
	}

	s.variant = variantNone{}
	if cfg.Solver != nil {
		if err := s.AttachSolver(cfg.Solver); err != nil {
			s.abandon()
			return nil, err
		}
	}
	return s, nil
}

// abandon tears down a half-constructed session.
func (s *Session) abandon() {
	s.eng.Destroy()
	unregisterSession(s.tok)
	s.closed = true
}

// Close destroys the engine handle and invalidates the session and every
// backward child. Idempotent.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	for _, b := range s.children {
		b.closed = true
	}
	s.children = nil
	s.eng.Destroy()
	unregisterSession(s.tok)
	s.closed = true
	return nil
}

// N returns the problem size.
func (s *Session) N() int { return s.neqs }

// Advance integrates toward tout, interpolating the state at exactly tout
// into y on a Continue result. On RootsFound or StopTimeReached the returned
// time is where integration actually stopped.
func (s *Session) Advance(tout float64, y []float64) (float64, Result, error) {
	return s.advance(tout, y, engine.Normal)
}

// Step takes one internal step toward tout and returns the state at the end
// of that step.
func (s *Session) Step(tout float64, y []float64) (float64, Result, error) {
	return s.advance(tout, y, engine.OneStep)
}

func (s *Session) advance(tout float64, y []float64, mode engine.StepMode) (float64, Result, error) {
	if s.closed {
		return 0, Continue, ErrSessionClosed
	}
	if len(y) != s.neqs {
		return 0, Continue, ErrIllInput
	}
	tret, flag := s.eng.Advance(tout, y, mode)
	switch flag {
	case engine.Success:
		return tret, Continue, nil
	case engine.RootReturn:
		return tret, RootsFound, nil
	case engine.TstopReturn:
		return tret, StopTimeReached, nil
	}
	return tret, Continue, s.replay(flag, "Advance")
}

// ReInit resets the integration to a new initial condition, keeping the
// callback table and linear-solver configuration. The problem size must not
// change.
func (s *Session) ReInit(t0 float64, y0 []float64) error {
	if s.closed {
		return ErrSessionClosed
	}
	if len(y0) != s.neqs {
		return ErrIllInput
	}
	return s.replay(s.eng.ReInit(t0, y0), "ReInit")
}

// SStolerances sets a scalar relative and scalar absolute tolerance.
func (s *Session) SStolerances(reltol, abstol float64) error {
	if s.closed {
		return ErrSessionClosed
	}
	return s.replay(s.eng.SetTolerances(reltol, []float64{abstol}), "SetTolerances")
}

// SVtolerances sets a scalar relative and per-component absolute tolerance.
func (s *Session) SVtolerances(reltol float64, abstol []float64) error {
	if s.closed {
		return ErrSessionClosed
	}
	if len(abstol) != s.neqs {
		return ErrIllInput
	}
	return s.replay(s.eng.SetTolerances(reltol, abstol), "SetTolerances")
}

// WFTolerances replaces tolerance-derived error weights with a custom
// weight function.
func (s *Session) WFTolerances(fn ErrWeightFn) error {
	if s.closed {
		return ErrSessionClosed
	}
	if fn == nil {
		return ErrIllInput
	}
	s.table.errw = fn
	return s.replay(s.eng.Register(engine.CbErrWeight, engine.ErrWeightFn(trampErrWeight)), "Register")
}

// SetStopTime makes the integrator stop exactly at t instead of stepping
// past it.
func (s *Session) SetStopTime(t float64) error {
	if s.closed {
		return ErrSessionClosed
	}
	return s.replay(s.eng.SetStopTime(t), "SetStopTime")
}

// ClearStopTime removes a previously set stop time.
func (s *Session) ClearStopTime() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.eng.ClearStopTime()
	return nil
}

// SetMaxSteps bounds the internal steps taken per advance.
func (s *Session) SetMaxSteps(n int64) error {
	if s.closed {
		return ErrSessionClosed
	}
	return s.replay(s.eng.SetMaxSteps(n), "SetMaxSteps")
}

// SetErrHandler installs or replaces the diagnostic handler.
func (s *Session) SetErrHandler(fn ErrHandlerFn) error {
	if s.closed {
		return ErrSessionClosed
	}
	if fn == nil {
		return ErrIllInput
	}
	s.table.errh = fn
	return s.replay(s.eng.Register(engine.CbErrHandler, engine.ErrHandlerFn(trampErrHandler)), "Register")
}

// ClearErrHandler removes the diagnostic handler. No-op when none is set.
func (s *Session) ClearErrHandler() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.table.errh != nil {
		s.table.errh = nil
		s.eng.Clear(engine.CbErrHandler)
	}
	return nil
}

// GetDky interpolates the k-th derivative of the solution at t into dky.
// Valid between the start of the last step and the current internal time,
// for k up to the current method order.
func (s *Session) GetDky(t float64, k int, dky []float64) error {
	if s.closed {
		return ErrSessionClosed
	}
	if len(dky) != s.neqs {
		return ErrBadDky
	}
	return s.replay(s.eng.GetDky(t, k, dky), "GetDky")
}

// RootInfo reports, after a RootsFound result, which root components
// crossed: +1 for an increasing crossing, -1 for decreasing, 0 for none.
func (s *Session) RootInfo() ([]int, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	found := make([]int, s.nroots)
	if err := s.replay(s.eng.RootInfo(found), "RootInfo"); err != nil {
		return nil, err
	}
	return found, nil
}

// Stats returns the cumulative integrator counters.
func (s *Session) Stats() (IntegratorStats, error) {
	if s.closed {
		return IntegratorStats{}, ErrSessionClosed
	}
	return statsFromEngine(s.eng.Stats()), nil
}
