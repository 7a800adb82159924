package odebind

import (
	"testing"

	"github.com/san-kum/odebind/engine"
	"github.com/san-kum/odebind/engine/refstep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPanicLifetime(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		_, ok := r.(*LifetimeError)
		require.True(t, ok, "panic payload should be *LifetimeError, got %T", r)
	}()
	fn()
}

// A view retained past its callback must not read or write the buffer
// the engine has since reused.
func TestRetainedViewPanics(t *testing.T) {
	var leaked View
	cfg := Config{
		Rhs: func(tt float64, y, ydot View) error {
			leaked = y
			ydot.Set(0, -y.At(0))
			return nil
		},
	}

	sess, err := Create(refstep.New(), cfg, []float64{1})
	require.NoError(t, err)
	defer sess.Close()

	y := make([]float64, 1)
	_, _, err = sess.Advance(1.0, y)
	require.NoError(t, err)

	mustPanicLifetime(t, func() { leaked.At(0) })
	mustPanicLifetime(t, func() { leaked.Set(0, 1) })
	mustPanicLifetime(t, func() { leaked.Len() })
	mustPanicLifetime(t, func() { leaked.CopyTo(make([]float64, 1)) })
	mustPanicLifetime(t, func() { leaked.Clone() })
}

func TestRetainedDenseViewPanics(t *testing.T) {
	var leaked DenseView
	cfg := Config{
		Method: BDF,
		Rhs: func(tt float64, y, ydot View) error {
			ydot.Set(0, -y.At(0))
			return nil
		},
		Solver: Dense{Jac: func(arg JacArg, jac DenseView) error {
			leaked = jac
			jac.Set(0, 0, -1)
			return nil
		}},
	}

	sess, err := Create(refstep.New(), cfg, []float64{1})
	require.NoError(t, err)
	defer sess.Close()

	y := make([]float64, 1)
	_, _, err = sess.Advance(1.0, y)
	require.NoError(t, err)

	mustPanicLifetime(t, func() { leaked.At(0, 0) })
	mustPanicLifetime(t, func() { leaked.Set(0, 0, 1) })
	mustPanicLifetime(t, func() { leaked.Size() })
}

// Clone produces an owned copy that survives the callback.
func TestViewCloneSurvives(t *testing.T) {
	var snap []float64
	cfg := Config{
		Rhs: func(tt float64, y, ydot View) error {
			if snap == nil {
				snap = y.Clone()
			}
			ydot.Set(0, -y.At(0))
			return nil
		},
	}

	sess, err := Create(refstep.New(), cfg, []float64{1})
	require.NoError(t, err)
	defer sess.Close()

	y := make([]float64, 1)
	_, _, err = sess.Advance(1.0, y)
	require.NoError(t, err)

	require.Len(t, snap, 1)
	assert.Equal(t, 1.0, snap[0])
}

func TestRegistryStaleToken(t *testing.T) {
	s := &Session{}
	tok := registerSession(s)
	assert.Same(t, s, resolveSession(tok))

	unregisterSession(tok)
	mustPanicLifetime(t, func() { resolveSession(tok) })
}

func TestRegistryTokensMonotonic(t *testing.T) {
	a := registerSession(&Session{})
	defer unregisterSession(a)
	b := registerSession(&Session{})
	defer unregisterSession(b)
	assert.Greater(t, uint64(b), uint64(a), "tokens must never be reissued")
	var zero engine.Token
	assert.NotEqual(t, zero, a, "the zero token is never valid")
}
