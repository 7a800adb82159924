package odebind

import (
	"errors"

	"github.com/san-kum/odebind/engine"
)

// guard folds a host callback error into the engine's three-valued status
// contract. retryable marks callback kinds for which the engine defines a
// retry; elsewhere a recoverable error is just a failure. Fatal errors are
// captured into the session's single error slot so the Advance boundary can
// return the triggering error verbatim instead of a flag translation.
func guard(s *Session, retryable bool, err error) int {
	if err == nil {
		return engine.CbOK
	}
	if retryable && errors.Is(err, ErrRecoverable) {
		return engine.CbRecoverable
	}
	s.capture(err)
	return engine.CbFatal
}

// guardBool is guard for callbacks that multiplex a semantic boolean with
// the status. On failure the boolean defaults to false.
func guardBool(s *Session, retryable bool, b bool, err error) (bool, int) {
	st := guard(s, retryable, err)
	if st != engine.CbOK {
		return false, st
	}
	return b, st
}

// capture stores the first fatal callback error of the current advance.
// Later failures are usually cascades of the first, so the slot is
// first-wins until replay drains it.
func (s *Session) capture(err error) {
	if s.lastErr == nil {
		s.lastErr = err
	}
}

// replay translates an engine flag into a host error at an advance
// boundary. A captured callback error takes precedence over the flag: the
// flag only says the engine aborted, the captured error says why.
func (s *Session) replay(flag engine.Flag, call string) error {
	captured := s.lastErr
	s.lastErr = nil
	if flag < 0 && captured != nil {
		return captured
	}
	return errFromFlag(flag, call)
}
