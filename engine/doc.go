// Package engine defines the contract between the odebind session layer and
// a time-stepping solver engine.
//
// The engine is a stateful collaborator: it owns opaque integration state,
// invokes registered callback functions synchronously from inside its own
// step loop, and reports failure exclusively through integer flags. The
// types here mirror that raw surface:
//
//   - [Engine]: create/init/reinit, callback registration, advance, queries
//   - [CallbackKind]: the registration slots, in engine header order
//   - [Flag]: integer status codes returned by engine entry points
//   - [DenseMatrix], [BandMatrix]: Jacobian storage handed to callbacks
//
// Callbacks registered with an engine return the three-valued status
// contract: 0 for success, a positive value for a recoverable failure
// (retry with adjusted parameters), a negative value for an unrecoverable
// failure (abort the current advance).
//
// The reference implementation lives in [engine/refstep]. The session layer
// in the root package never depends on which implementation is behind the
// interface.
package engine
