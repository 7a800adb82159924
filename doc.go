// Package odebind drives a stateful, callback-driven ODE solver engine from
// ordinary Go code.
//
// The engine (see [engine.Engine]) owns opaque integration state, invokes
// registered function pointers synchronously from inside its step loop, and
// signals failure through integer codes. This package reconciles that model
// with idiomatic Go:
//
//   - [Session] owns an engine handle and a callback table; a closed session
//     fails every later operation with [ErrSessionClosed] instead of
//     touching freed state.
//   - Host callbacks receive [View] values: scoped, non-owning windows over
//     engine-owned buffers that are invalidated the instant the callback
//     returns. Using a stale view panics with [*LifetimeError].
//   - Callback errors are folded into the engine's three-valued status
//     contract: nil is success, [ErrRecoverable] asks the engine to retry
//     where retries are defined, and any other error is captured and
//     re-returned verbatim from the [Session.Advance] call that triggered
//     the callback.
//   - Linear-solver configurations ([Dense], [Band], [Diag], [Krylov],
//     [KrylovBBD]) are attached as a whole: switching solvers replaces the
//     entire active callback variant so stale trampolines can never survive
//     a reconfiguration.
//   - [BackwardSession] values perform adjoint integration against a parent
//     session's recorded forward history. Children never outlive their
//     parent; closing the parent invalidates them atomically.
//
// # Example
//
//	eng := refstep.New()
//	sess, err := odebind.Create(eng, odebind.Config{
//	    Method: odebind.BDF,
//	    Rhs: func(t float64, y, ydot odebind.View) error {
//	        ydot.Set(0, -y.At(0))
//	        return nil
//	    },
//	    Solver: odebind.Dense{},
//	}, []float64{1})
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
//	y := make([]float64, 1)
//	t, res, err := sess.Advance(1.0, y)
//
// # Concurrency
//
// Sessions are NOT thread-safe and Advance is not re-entrant: callbacks run
// on the caller's goroutine, inside the engine's call stack, and must not
// call Advance on the same or a related session.
package odebind
