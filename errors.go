package odebind

import (
	"errors"
	"fmt"

	"github.com/san-kum/odebind/engine"
)

// ErrRecoverable is the distinguished recoverable signal. Returned (or
// wrapped) from a retry-capable callback it asks the engine to retry with
// adjusted parameters instead of aborting the advance. Callback kinds that
// do not accept retries treat it like any other failure.
var ErrRecoverable = errors.New("odebind: recoverable failure")

// Session lifecycle errors.
var (
	ErrSessionClosed = errors.New("odebind: session closed")
	ErrEngineInit    = errors.New("odebind: engine initialization failed")
)

// Engine-originated errors, one per failure flag. These report conditions
// internal to the solver algorithm, not binding-layer bugs.
var (
	ErrIllInput              = errors.New("odebind: ill input")
	ErrTooClose              = errors.New("odebind: output time too close to current time")
	ErrTooMuchWork           = errors.New("odebind: too many internal steps before output time")
	ErrTooMuchAccuracy       = errors.New("odebind: requested accuracy too stringent")
	ErrErrorTestFailures     = errors.New("odebind: repeated error test failures")
	ErrConvergenceFailure    = errors.New("odebind: corrector convergence failure")
	ErrLinearInitFailure     = errors.New("odebind: linear solver initialization failed")
	ErrLinearSetupFailure    = errors.New("odebind: linear solver setup failed")
	ErrLinearSolveFailure    = errors.New("odebind: linear solver solve failed")
	ErrRhsFailure            = errors.New("odebind: right-hand side function failed")
	ErrFirstRhsFailure       = errors.New("odebind: right-hand side failed at the first call")
	ErrRepeatedRhsFailure    = errors.New("odebind: right-hand side failed recoverably too often")
	ErrUnrecoverableRhs      = errors.New("odebind: right-hand side failure was unrecoverable")
	ErrRootFuncFailure       = errors.New("odebind: root function failed")
	ErrBadK                  = errors.New("odebind: illegal derivative order")
	ErrBadT                  = errors.New("odebind: time outside the interpolation interval")
	ErrBadDky                = errors.New("odebind: bad output vector for interpolated derivative")
	ErrAdjointNotInitialized = errors.New("odebind: adjoint module not initialized")
	ErrNoForwardHistory      = errors.New("odebind: no forward history recorded for this time")
)

// EngineError wraps a failure flag with no dedicated sentinel.
type EngineError struct {
	Flag engine.Flag
	Call string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("odebind: %s returned %s", e.Call, e.Flag.Name())
}

// LifetimeError is the panic payload for ownership violations: using a view
// past its callback, or resolving a dead session back-reference. These are
// programming errors, never recoverable conditions.
type LifetimeError struct {
	Op string
}

func (e *LifetimeError) Error() string {
	return "odebind: lifetime violation: " + e.Op
}

// errFromFlag translates a non-success engine flag into the matching
// sentinel. call names the engine entry point for unmapped flags.
func errFromFlag(flag engine.Flag, call string) error {
	switch flag {
	case engine.Success, engine.TstopReturn, engine.RootReturn:
		return nil
	case engine.IllInput:
		return ErrIllInput
	case engine.TooClose:
		return ErrTooClose
	case engine.TooMuchWork:
		return ErrTooMuchWork
	case engine.TooMuchAcc:
		return ErrTooMuchAccuracy
	case engine.ErrFailure:
		return ErrErrorTestFailures
	case engine.ConvFailure:
		return ErrConvergenceFailure
	case engine.LinInitFail:
		return ErrLinearInitFailure
	case engine.LinSetupFail:
		return ErrLinearSetupFailure
	case engine.LinSolveFail:
		return ErrLinearSolveFailure
	case engine.RhsFuncFail:
		return ErrRhsFailure
	case engine.FirstRhsErr:
		return ErrFirstRhsFailure
	case engine.RepeatedRhsErr:
		return ErrRepeatedRhsFailure
	case engine.UnrecRhsErr:
		return ErrUnrecoverableRhs
	case engine.RootFuncFail:
		return ErrRootFuncFailure
	case engine.BadK:
		return ErrBadK
	case engine.BadT:
		return ErrBadT
	case engine.BadDky:
		return ErrBadDky
	case engine.NoAdjoint:
		return ErrAdjointNotInitialized
	case engine.NoForward:
		return ErrNoForwardHistory
	default:
		return &EngineError{Flag: flag, Call: call}
	}
}
