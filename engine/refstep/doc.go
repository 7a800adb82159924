// Package refstep is the in-process reference implementation of the
// [engine.Engine] contract.
//
// It integrates y' = f(t, y) with an adaptive implicit method: an explicit
// predictor, an implicit corrector solved by functional or Newton iteration,
// and a weighted-RMS error test controlling the step size. Newton systems
// (I - gamma*J) are solved through the attached linear-solver variant:
// dense LU, band LU, diagonal approximation, or preconditioned GMRES with
// an optional user or band-block-diagonal preconditioner.
//
// Callbacks are invoked with engine-owned scratch buffers that are reused
// between steps, and their integer results follow the three-valued status
// contract: 0 success, positive recoverable (the step is retried with a
// smaller size or a fresh Jacobian), negative unrecoverable (the advance
// aborts with the matching failure flag).
//
// The adjoint extension records every accepted forward step and integrates
// backward problems against a cubic Hermite interpolant of the forward
// solution.
package refstep
