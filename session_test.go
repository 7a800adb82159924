package odebind

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/odebind/engine/refstep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decayConfig() Config {
	return Config{
		Method: Adams,
		Rhs: func(t float64, y, ydot View) error {
			ydot.Set(0, -y.At(0))
			return nil
		},
	}
}

func TestAdvanceDecay(t *testing.T) {
	sess, err := Create(refstep.New(), decayConfig(), []float64{1})
	require.NoError(t, err)
	defer sess.Close()

	y := make([]float64, 1)
	tret, res, err := sess.Advance(1.0, y)
	require.NoError(t, err)
	assert.Equal(t, Continue, res)
	assert.Equal(t, 1.0, tret)
	assert.InDelta(t, math.Exp(-1), y[0], 5e-3)
}

// 3-variable linear system, dense solver, hand-supplied exact Jacobian.
func TestScenarioLinearDenseJacobian(t *testing.T) {
	a := [3][3]float64{
		{-1, 1, 0},
		{0, -2, 1},
		{0, 0, -3},
	}
	jacCalls := 0
	cfg := Config{
		Method: BDF,
		Rhs: func(tt float64, y, ydot View) error {
			for i := 0; i < 3; i++ {
				v := 0.0
				for j := 0; j < 3; j++ {
					v += a[i][j] * y.At(j)
				}
				ydot.Set(i, v)
			}
			return nil
		},
		Solver: Dense{Jac: func(arg JacArg, m DenseView) error {
			jacCalls++
			require.Equal(t, 3, m.Size())
			for j := 0; j < 3; j++ {
				for i := 0; i < 3; i++ {
					m.Set(i, j, a[i][j])
				}
			}
			return nil
		}},
		MaxSteps: 5000,
	}

	sess, err := Create(refstep.New(), cfg, []float64{1, 1, 1})
	require.NoError(t, err)
	defer sess.Close()

	y := make([]float64, 3)
	tret, res, err := sess.Advance(1.0, y)
	require.NoError(t, err)
	assert.Equal(t, Continue, res)
	assert.Equal(t, 1.0, tret)
	assert.GreaterOrEqual(t, jacCalls, 1)

	e1, e2, e3 := math.Exp(-1.0), math.Exp(-2.0), math.Exp(-3.0)
	want := []float64{2.5*e1 - 2*e2 + 0.5*e3, 2*e2 - e3, e3}
	for i := range want {
		assert.InDelta(t, want[i], y[i], 1e-2, "component %d", i)
	}

	st, err := sess.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(jacCalls), st.JacEvals)
}

// The RHS fails recoverably on its first three invocations; the advance
// must absorb the retries and still reach the output time.
func TestScenarioRecoverableRhsRetries(t *testing.T) {
	calls := 0
	cfg := Config{
		Method: Adams,
		Rhs: func(tt float64, y, ydot View) error {
			calls++
			if calls <= 3 {
				return ErrRecoverable
			}
			ydot.Set(0, -y.At(0))
			return nil
		},
	}

	sess, err := Create(refstep.New(), cfg, []float64{1})
	require.NoError(t, err)
	defer sess.Close()

	y := make([]float64, 1)
	tret, res, err := sess.Advance(1.0, y)
	require.NoError(t, err)
	assert.Equal(t, Continue, res)
	assert.Equal(t, 1.0, tret)
	assert.InDelta(t, math.Exp(-1), y[0], 5e-3)

	st, err := sess.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(calls), st.RhsEvals, "counters must include the retried evaluations")
	assert.GreaterOrEqual(t, calls, 4)
}

// Every operation on a closed session fails with ErrSessionClosed.
func TestClosedSession(t *testing.T) {
	sess, err := Create(refstep.New(), decayConfig(), []float64{1})
	require.NoError(t, err)
	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close(), "close is idempotent")

	y := make([]float64, 1)
	_, _, err = sess.Advance(1.0, y)
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, _, err = sess.Step(1.0, y)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, sess.ReInit(0, y), ErrSessionClosed)
	assert.ErrorIs(t, sess.SStolerances(1e-6, 1e-8), ErrSessionClosed)
	assert.ErrorIs(t, sess.SVtolerances(1e-6, []float64{1e-8}), ErrSessionClosed)
	assert.ErrorIs(t, sess.SetStopTime(1), ErrSessionClosed)
	assert.ErrorIs(t, sess.SetMaxSteps(10), ErrSessionClosed)
	assert.ErrorIs(t, sess.GetDky(0, 0, y), ErrSessionClosed)
	_, err = sess.RootInfo()
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = sess.Stats()
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, sess.AttachSolver(Dense{}), ErrSessionClosed)
	assert.ErrorIs(t, sess.ReInitBBD(1, 1, 0), ErrSessionClosed)
	assert.ErrorIs(t, sess.AdjInit(100), ErrSessionClosed)
}

// A non-recoverable callback error surfaces from Advance verbatim.
func TestErrorIdentityRoundTrip(t *testing.T) {
	errBoom := errors.New("boom")
	calls := 0
	cfg := Config{
		Rhs: func(tt float64, y, ydot View) error {
			calls++
			if calls > 2 {
				return errBoom
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
	require.Error(t, err)
	assert.Same(t, errBoom, err, "callback error returned verbatim, not translated")

	// The slot is drained: a later failure reports its own cause.
	_, _, err = sess.Advance(2.0, y)
	assert.ErrorIs(t, err, errBoom)
}

// The recoverable signal from a root function, which defines no retry,
// is treated as an ordinary failure.
func TestRecoverableNotHonoredForRoots(t *testing.T) {
	cfg := Config{
		Rhs: func(tt float64, y, ydot View) error {
			ydot.Set(0, -y.At(0))
			return nil
		},
		NumRoots: 1,
		Roots: func(tt float64, y, gout View) error {
			return ErrRecoverable
		},
	}

	sess, err := Create(refstep.New(), cfg, []float64{1})
	require.NoError(t, err)
	defer sess.Close()

	y := make([]float64, 1)
	_, _, err = sess.Advance(1.0, y)
	assert.ErrorIs(t, err, ErrRecoverable)
}

func TestCreateValidation(t *testing.T) {
	_, err := Create(refstep.New(), Config{}, []float64{1})
	assert.ErrorIs(t, err, ErrIllInput, "rhs is mandatory")

	_, err = Create(refstep.New(), decayConfig(), nil)
	assert.ErrorIs(t, err, ErrIllInput, "empty initial state")

	cfg := decayConfig()
	cfg.NumRoots = 2
	_, err = Create(refstep.New(), cfg, []float64{1})
	assert.ErrorIs(t, err, ErrIllInput, "roots callback required with NumRoots > 0")
}

func TestReInitKeepsCallbacks(t *testing.T) {
	sess, err := Create(refstep.New(), decayConfig(), []float64{1})
	require.NoError(t, err)
	defer sess.Close()

	y := make([]float64, 1)
	_, _, err = sess.Advance(1.0, y)
	require.NoError(t, err)

	require.NoError(t, sess.ReInit(0, []float64{2}))
	_, _, err = sess.Advance(1.0, y)
	require.NoError(t, err)
	assert.InDelta(t, 2*math.Exp(-1), y[0], 1e-2)

	assert.ErrorIs(t, sess.ReInit(0, []float64{1, 2}), ErrIllInput, "size change rejected")
}

func TestStepMode(t *testing.T) {
	sess, err := Create(refstep.New(), decayConfig(), []float64{1})
	require.NoError(t, err)
	defer sess.Close()

	y := make([]float64, 1)
	t1, res, err := sess.Step(1.0, y)
	require.NoError(t, err)
	assert.Equal(t, Continue, res)
	assert.Greater(t, t1, 0.0)
	assert.Less(t, t1, 1.0)

	t2, _, err := sess.Step(1.0, y)
	require.NoError(t, err)
	assert.Greater(t, t2, t1)
}

func TestStopTime(t *testing.T) {
	sess, err := Create(refstep.New(), decayConfig(), []float64{1})
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.SetStopTime(0.5))

	y := make([]float64, 1)
	tret, res, err := sess.Advance(1.0, y)
	require.NoError(t, err)
	assert.Equal(t, StopTimeReached, res)
	assert.InDelta(t, 0.5, tret, 1e-6)

	require.NoError(t, sess.ClearStopTime())
	tret, res, err = sess.Advance(1.0, y)
	require.NoError(t, err)
	assert.Equal(t, Continue, res)
	assert.Equal(t, 1.0, tret)
}

func TestRootFinding(t *testing.T) {
	// y decreases linearly from 1; g = y crosses zero at t = 1.
	cfg := Config{
		Rhs: func(tt float64, y, ydot View) error {
			ydot.Set(0, -1)
			return nil
		},
		NumRoots: 1,
		Roots: func(tt float64, y, gout View) error {
			gout.Set(0, y.At(0))
			return nil
		},
	}

	sess, err := Create(refstep.New(), cfg, []float64{1})
	require.NoError(t, err)
	defer sess.Close()

	y := make([]float64, 1)
	tret, res, err := sess.Advance(2.0, y)
	require.NoError(t, err)
	assert.Equal(t, RootsFound, res)
	assert.InDelta(t, 1.0, tret, 1e-3)

	found, err := sess.RootInfo()
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, -1, found[0], "decreasing crossing")
}

func TestGetDky(t *testing.T) {
	sess, err := Create(refstep.New(), decayConfig(), []float64{1})
	require.NoError(t, err)
	defer sess.Close()

	y := make([]float64, 1)
	tret, _, err := sess.Advance(1.0, y)
	require.NoError(t, err)

	dky := make([]float64, 1)
	require.NoError(t, sess.GetDky(tret, 0, dky))
	assert.InDelta(t, y[0], dky[0], 1e-9)

	assert.ErrorIs(t, sess.GetDky(tret, 7, dky), ErrBadK)
	assert.ErrorIs(t, sess.GetDky(-50, 0, dky), ErrBadT)
	assert.ErrorIs(t, sess.GetDky(tret, 0, make([]float64, 3)), ErrBadDky)
}

func TestWFTolerances(t *testing.T) {
	weightCalls := 0
	sess, err := Create(refstep.New(), decayConfig(), []float64{1})
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.WFTolerances(func(y, ewt View) error {
		weightCalls++
		for i := 0; i < ewt.Len(); i++ {
			ewt.Set(i, 1e-4*math.Abs(y.At(i))+1e-8)
		}
		return nil
	}))

	y := make([]float64, 1)
	_, _, err = sess.Advance(1.0, y)
	require.NoError(t, err)
	assert.Greater(t, weightCalls, 0)
	assert.InDelta(t, math.Exp(-1), y[0], 5e-3)
}

func TestErrWeightFailureSurfaces(t *testing.T) {
	errWeight := errors.New("weights unavailable")
	sess, err := Create(refstep.New(), decayConfig(), []float64{1})
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.WFTolerances(func(y, ewt View) error {
		return errWeight
	}))

	y := make([]float64, 1)
	_, _, err = sess.Advance(1.0, y)
	assert.ErrorIs(t, err, errWeight)
}

func TestErrHandlerReceivesDiagnostics(t *testing.T) {
	var seen []ErrorDetails
	cfg := Config{
		Rhs: func(tt float64, y, ydot View) error {
			return errors.New("always fails")
		},
		ErrHandler: func(d ErrorDetails) {
			seen = append(seen, d)
		},
	}

	sess, err := Create(refstep.New(), cfg, []float64{1})
	require.NoError(t, err)
	defer sess.Close()

	y := make([]float64, 1)
	_, _, err = sess.Advance(1.0, y)
	require.Error(t, err)
	require.NotEmpty(t, seen)
	assert.Less(t, seen[0].Code, 0)
	assert.NotEmpty(t, seen[0].Function)
}

func TestTooMuchWork(t *testing.T) {
	sess, err := Create(refstep.New(), decayConfig(), []float64{1})
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.SetMaxSteps(2))

	y := make([]float64, 1)
	_, _, err = sess.Advance(1.0, y)
	assert.ErrorIs(t, err, ErrTooMuchWork)
}

// The diagnostic handler is informational; a panic inside it must not
// unwind the advance, which still reports its own failure.
func TestErrHandlerPanicDiscarded(t *testing.T) {
	cfg := decayConfig()
	cfg.ErrHandler = func(d ErrorDetails) { panic("handler bug") }
	cfg.MaxSteps = 2

	sess, err := Create(refstep.New(), cfg, []float64{1})
	require.NoError(t, err)
	defer sess.Close()

	y := make([]float64, 1)
	_, _, err = sess.Advance(1.0, y)
	assert.ErrorIs(t, err, ErrTooMuchWork)
}
