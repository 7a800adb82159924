package odebind

import (
	"sync"
	"sync/atomic"

	"github.com/san-kum/odebind/engine"
)

// The engine stores one opaque user-data token per session and hands it
// back on every callback. Tokens index an explicit registry rather than
// carrying a pointer: the registry cannot keep a session alive by accident,
// and a token that outlives its session is detected instead of silently
// dereferencing freed state.
//
// Token values are monotonic so a destroyed session's token can never be
// reissued to a new one.
var (
	sessionRegistry sync.Map // engine.Token -> *Session
	tokenCounter    atomic.Uint64
)

func registerSession(s *Session) engine.Token {
	tok := engine.Token(tokenCounter.Add(1))
	sessionRegistry.Store(tok, s)
	return tok
}

func unregisterSession(tok engine.Token) {
	sessionRegistry.Delete(tok)
}

// resolveSession maps a callback's user-data token back to its session.
// A stale token means the session was destroyed (or collected) while the
// engine still held callbacks into it; that is an ownership bug, and
// continuing would corrupt state, so it aborts.
func resolveSession(tok engine.Token) *Session {
	v, ok := sessionRegistry.Load(tok)
	if !ok {
		panic(&LifetimeError{Op: "callback dispatch on a dead session back-reference"})
	}
	return v.(*Session)
}
