package refstep

import (
	"math"
	"testing"

	"github.com/san-kum/odebind/engine"
)

func rhsFn(f func(t float64, y, ydot []float64)) engine.RhsFn {
	return func(t float64, y, ydot []float64, user engine.Token) int {
		f(t, y, ydot)
		return 0
	}
}

func newSolver(t *testing.T, lmm engine.LMM, iter engine.IterKind, y0 []float64, rhs engine.RhsFn) *Solver {
	t.Helper()
	s := New()
	if fl := s.Init(lmm, iter, 0, y0, 0); fl != engine.Success {
		t.Fatalf("Init: %v", fl)
	}
	if fl := s.Register(engine.CbRhs, rhs); fl != engine.Success {
		t.Fatalf("Register rhs: %v", fl)
	}
	if fl := s.SetTolerances(1e-6, []float64{1e-9}); fl != engine.Success {
		t.Fatalf("SetTolerances: %v", fl)
	}
	s.SetMaxSteps(50000)
	return s
}

func TestDecayAccuracy(t *testing.T) {
	s := newSolver(t, engine.Adams, engine.Functional, []float64{1},
		rhsFn(func(tt float64, y, ydot []float64) { ydot[0] = -y[0] }))

	y := make([]float64, 1)
	tret, fl := s.Advance(1, y, engine.Normal)
	if fl != engine.Success {
		t.Fatalf("Advance: %v", fl)
	}
	if tret != 1 {
		t.Errorf("tret = %g, want 1", tret)
	}
	want := math.Exp(-1)
	if math.Abs(y[0]-want) > 1e-3 {
		t.Errorf("y(1) = %g, want %g", y[0], want)
	}

	st := s.Stats()
	if st.Steps == 0 || st.RhsEvals == 0 {
		t.Errorf("stats not recorded: %+v", st)
	}
}

func TestHarmonicOscillator(t *testing.T) {
	s := newSolver(t, engine.Adams, engine.Functional, []float64{1, 0},
		rhsFn(func(tt float64, y, ydot []float64) {
			ydot[0] = y[1]
			ydot[1] = -y[0]
		}))

	y := make([]float64, 2)
	if _, fl := s.Advance(2*math.Pi, y, engine.Normal); fl != engine.Success {
		t.Fatalf("Advance: %v", fl)
	}
	if math.Abs(y[0]-1) > 5e-3 || math.Abs(y[1]) > 5e-3 {
		t.Errorf("after one period y = %v, want (1, 0)", y)
	}
}

func TestOneStepMonotonic(t *testing.T) {
	s := newSolver(t, engine.Adams, engine.Functional, []float64{1},
		rhsFn(func(tt float64, y, ydot []float64) { ydot[0] = -y[0] }))

	y := make([]float64, 1)
	prev := 0.0
	for i := 0; i < 5; i++ {
		tret, fl := s.Advance(1, y, engine.OneStep)
		if fl != engine.Success {
			t.Fatalf("step %d: %v", i, fl)
		}
		if tret <= prev {
			t.Fatalf("step %d: t=%g did not advance past %g", i, tret, prev)
		}
		prev = tret
	}
	if prev >= 1 {
		t.Errorf("five internal steps already passed tout")
	}
}

func TestStopTimeClamp(t *testing.T) {
	s := newSolver(t, engine.Adams, engine.Functional, []float64{1},
		rhsFn(func(tt float64, y, ydot []float64) { ydot[0] = -y[0] }))

	if fl := s.SetStopTime(0.25); fl != engine.Success {
		t.Fatalf("SetStopTime: %v", fl)
	}
	y := make([]float64, 1)
	tret, fl := s.Advance(1, y, engine.Normal)
	if fl != engine.TstopReturn {
		t.Fatalf("Advance: flag %v, want TstopReturn", fl)
	}
	if math.Abs(tret-0.25) > 1e-9 {
		t.Errorf("tret = %g, want 0.25", tret)
	}

	s.ClearStopTime()
	if tret, fl = s.Advance(1, y, engine.Normal); fl != engine.Success || tret != 1 {
		t.Errorf("after clear: t=%g flag=%v", tret, fl)
	}
}

func TestRootCrossing(t *testing.T) {
	s := New()
	if fl := s.Init(engine.Adams, engine.Functional, 0, []float64{1}, 1); fl != engine.Success {
		t.Fatalf("Init: %v", fl)
	}
	s.Register(engine.CbRhs, rhsFn(func(tt float64, y, ydot []float64) { ydot[0] = -1 }))
	s.Register(engine.CbRoots, engine.RootFn(func(tt float64, y, gout []float64, user engine.Token) int {
		gout[0] = y[0]
		return 0
	}))
	s.SetTolerances(1e-6, []float64{1e-9})
	s.SetMaxSteps(50000)

	y := make([]float64, 1)
	tret, fl := s.Advance(2, y, engine.Normal)
	if fl != engine.RootReturn {
		t.Fatalf("Advance: flag %v, want RootReturn", fl)
	}
	if math.Abs(tret-1) > 1e-3 {
		t.Errorf("root at t=%g, want 1", tret)
	}

	found := make([]int, 1)
	if fl := s.RootInfo(found); fl != engine.Success {
		t.Fatalf("RootInfo: %v", fl)
	}
	if found[0] != -1 {
		t.Errorf("found = %v, want decreasing crossing", found)
	}

	// Past the root the solution keeps integrating.
	if tret, fl = s.Advance(1.5, y, engine.Normal); fl != engine.Success || tret != 1.5 {
		t.Errorf("continue after root: t=%g flag=%v", tret, fl)
	}
}

func TestGetDkyBounds(t *testing.T) {
	s := newSolver(t, engine.Adams, engine.Functional, []float64{1},
		rhsFn(func(tt float64, y, ydot []float64) { ydot[0] = -y[0] }))

	y := make([]float64, 1)
	tret, fl := s.Advance(1, y, engine.Normal)
	if fl != engine.Success {
		t.Fatalf("Advance: %v", fl)
	}

	dky := make([]float64, 1)
	if fl := s.GetDky(tret, 0, dky); fl != engine.Success {
		t.Errorf("GetDky order 0: %v", fl)
	}
	if math.Abs(dky[0]-y[0]) > 1e-12 {
		t.Errorf("GetDky(tret, 0) = %g, want %g", dky[0], y[0])
	}
	if fl := s.GetDky(tret, 1, dky); fl != engine.Success {
		t.Errorf("GetDky order 1: %v", fl)
	}
	// dy/dt = -y for this problem.
	if math.Abs(dky[0]+y[0]) > 1e-2 {
		t.Errorf("GetDky(tret, 1) = %g, want %g", dky[0], -y[0])
	}
	if fl := s.GetDky(tret, 4, dky); fl != engine.BadK {
		t.Errorf("order 4: flag %v, want BadK", fl)
	}
	if fl := s.GetDky(-10, 0, dky); fl != engine.BadT {
		t.Errorf("t=-10: flag %v, want BadT", fl)
	}
	if fl := s.GetDky(tret, 0, make([]float64, 2)); fl != engine.BadDky {
		t.Errorf("wrong length: flag %v, want BadDky", fl)
	}
}

func TestVanDerPolDenseNewton(t *testing.T) {
	const mu = 5.0
	s := New()
	if fl := s.Init(engine.BDF, engine.Newton, 0, []float64{2, 0}, 0); fl != engine.Success {
		t.Fatalf("Init: %v", fl)
	}
	s.Register(engine.CbRhs, rhsFn(func(tt float64, y, ydot []float64) {
		ydot[0] = y[1]
		ydot[1] = mu*(1-y[0]*y[0])*y[1] - y[0]
	}))
	s.SetTolerances(1e-6, []float64{1e-8, 1e-8})
	s.SetMaxSteps(200000)
	if fl := s.AttachDense(2); fl != engine.Success {
		t.Fatalf("AttachDense: %v", fl)
	}

	y := make([]float64, 2)
	if _, fl := s.Advance(10, y, engine.Normal); fl != engine.Success {
		t.Fatalf("Advance: %v", fl)
	}
	if math.IsNaN(y[0]) || math.Abs(y[0]) > 3 {
		t.Errorf("y(10) = %v, outside the limit cycle range", y)
	}

	st := s.Stats()
	if st.JacEvals == 0 || st.LinSolverSetups == 0 {
		t.Errorf("Newton counters empty: %+v", st)
	}
}

func heatRodRhs(n int) engine.RhsFn {
	return rhsFn(func(tt float64, y, ydot []float64) {
		for i := 0; i < n; i++ {
			left, right := 0.0, 0.0
			if i > 0 {
				left = y[i-1]
			}
			if i < n-1 {
				right = y[i+1]
			}
			ydot[i] = left - 2*y[i] + right
		}
	})
}

func heatRodY0(n int) []float64 {
	y0 := make([]float64, n)
	for i := range y0 {
		y0[i] = math.Sin(math.Pi * float64(i+1) / float64(n+1))
	}
	return y0
}

func TestBandNewtonHeatRod(t *testing.T) {
	const n = 10
	s := New()
	if fl := s.Init(engine.BDF, engine.Newton, 0, heatRodY0(n), 0); fl != engine.Success {
		t.Fatalf("Init: %v", fl)
	}
	s.Register(engine.CbRhs, heatRodRhs(n))
	s.SetTolerances(1e-6, []float64{1e-9})
	s.SetMaxSteps(50000)
	if fl := s.AttachBand(n, 1, 1); fl != engine.Success {
		t.Fatalf("AttachBand: %v", fl)
	}

	y := make([]float64, n)
	if _, fl := s.Advance(1, y, engine.Normal); fl != engine.Success {
		t.Fatalf("Advance: %v", fl)
	}
	for i, v := range y {
		if math.Abs(v) >= 1 {
			t.Errorf("y[%d] = %g did not decay", i, v)
		}
	}
}

func TestKrylovHeatRod(t *testing.T) {
	const n = 10
	s := New()
	if fl := s.Init(engine.BDF, engine.Newton, 0, heatRodY0(n), 0); fl != engine.Success {
		t.Fatalf("Init: %v", fl)
	}
	s.Register(engine.CbRhs, heatRodRhs(n))
	s.SetTolerances(1e-6, []float64{1e-9})
	s.SetMaxSteps(50000)
	if fl := s.AttachKrylov(engine.GMRES, engine.PrecNone, 0); fl != engine.Success {
		t.Fatalf("AttachKrylov: %v", fl)
	}

	y := make([]float64, n)
	if _, fl := s.Advance(1, y, engine.Normal); fl != engine.Success {
		t.Fatalf("Advance: %v", fl)
	}

	st := s.Stats()
	if st.JtimesEvals == 0 {
		t.Errorf("no Jacobian-vector products recorded: %+v", st)
	}
}

func TestBBDPreconditionedHeatRod(t *testing.T) {
	const n = 10
	s := New()
	if fl := s.Init(engine.BDF, engine.Newton, 0, heatRodY0(n), 0); fl != engine.Success {
		t.Fatalf("Init: %v", fl)
	}
	rhs := heatRodRhs(n)
	s.Register(engine.CbRhs, rhs)
	s.SetTolerances(1e-6, []float64{1e-9})
	s.SetMaxSteps(50000)
	if fl := s.AttachKrylov(engine.GMRES, engine.PrecLeft, 0); fl != engine.Success {
		t.Fatalf("AttachKrylov: %v", fl)
	}
	s.Register(engine.CbBBDLocal, engine.BBDLocalFn(func(nlocal int, tt float64, y, glocal []float64, user engine.Token) int {
		return rhs(tt, y, glocal, user)
	}))
	bw := engine.Bandwidths{MuDQ: 1, MlDQ: 1, MuKeep: 1, MlKeep: 1}
	if fl := s.BBDInit(n, bw, 0); fl != engine.Success {
		t.Fatalf("BBDInit: %v", fl)
	}

	y := make([]float64, n)
	if _, fl := s.Advance(1, y, engine.Normal); fl != engine.Success {
		t.Fatalf("Advance: %v", fl)
	}

	st := s.Stats()
	if st.PrecSetups == 0 || st.PrecSolves == 0 {
		t.Errorf("preconditioner counters empty: %+v", st)
	}

	if fl := s.BBDReInit(1, 1, 0); fl != engine.Success {
		t.Errorf("BBDReInit: %v", fl)
	}
}

func TestFirstCallRecoverableRetries(t *testing.T) {
	calls := 0
	s := New()
	if fl := s.Init(engine.Adams, engine.Functional, 0, []float64{1}, 0); fl != engine.Success {
		t.Fatalf("Init: %v", fl)
	}
	s.Register(engine.CbRhs, engine.RhsFn(func(tt float64, y, ydot []float64, user engine.Token) int {
		calls++
		if calls <= 3 {
			return 1
		}
		ydot[0] = -y[0]
		return 0
	}))
	s.SetTolerances(1e-6, []float64{1e-9})
	s.SetMaxSteps(50000)

	y := make([]float64, 1)
	tret, fl := s.Advance(1, y, engine.Normal)
	if fl != engine.Success {
		t.Fatalf("Advance: %v", fl)
	}
	if tret != 1 {
		t.Errorf("tret = %g, want 1", tret)
	}
	if st := s.Stats(); st.RhsEvals < 4 {
		t.Errorf("RhsEvals = %d, retries not counted", st.RhsEvals)
	}
}

func TestFirstCallUnrecoverable(t *testing.T) {
	s := newSolver(t, engine.Adams, engine.Functional, []float64{1},
		engine.RhsFn(func(tt float64, y, ydot []float64, user engine.Token) int { return -1 }))

	y := make([]float64, 1)
	if _, fl := s.Advance(1, y, engine.Normal); fl != engine.RhsFuncFail {
		t.Errorf("Advance: flag %v, want RhsFuncFail", fl)
	}
}

func TestTooMuchWorkFlag(t *testing.T) {
	s := newSolver(t, engine.Adams, engine.Functional, []float64{1},
		rhsFn(func(tt float64, y, ydot []float64) { ydot[0] = -y[0] }))
	s.SetMaxSteps(2)

	y := make([]float64, 1)
	if _, fl := s.Advance(1, y, engine.Normal); fl != engine.TooMuchWork {
		t.Errorf("Advance: flag %v, want TooMuchWork", fl)
	}
}

func TestAdjointForwardInterpolation(t *testing.T) {
	s := newSolver(t, engine.Adams, engine.Functional, []float64{1},
		rhsFn(func(tt float64, y, ydot []float64) { ydot[0] = -y[0] }))

	if fl := s.AdjInit(1000); fl != engine.Success {
		t.Fatalf("AdjInit: %v", fl)
	}
	y := make([]float64, 1)
	_, ncheck, fl := s.AdvanceF(1, y, engine.Normal)
	if fl != engine.Success {
		t.Fatalf("AdvanceF: %v", fl)
	}
	if ncheck < 2 {
		t.Fatalf("ncheck = %d, no history recorded", ncheck)
	}

	// The recorded history must reproduce the forward solution anywhere in
	// the interval.
	out := make([]float64, 1)
	for _, tt := range []float64{0, 0.25, 0.5, 0.75, 1} {
		if !s.interpForward(tt, out) {
			t.Fatalf("interpForward(%g) out of range", tt)
		}
		want := math.Exp(-tt)
		if math.Abs(out[0]-want) > 1e-3 {
			t.Errorf("interpForward(%g) = %g, want %g", tt, out[0], want)
		}
	}
	if s.interpForward(2, out) {
		t.Errorf("interpForward(2) succeeded outside the recorded interval")
	}

	which, fl := s.CreateB()
	if fl != engine.Success {
		t.Fatalf("CreateB: %v", fl)
	}
	s.RegisterB(which, engine.CbRhsB, engine.RhsFnB(func(tt float64, yf, yB, yBdot []float64, user engine.Token) int {
		yBdot[0] = yB[0]
		return 0
	}))
	if fl := s.InitB(which, engine.Adams, engine.Functional, 1, []float64{1}); fl != engine.Success {
		t.Fatalf("InitB: %v", fl)
	}
	s.SetTolerancesB(which, 1e-5, []float64{1e-8})

	if fl := s.AdvanceB(0); fl != engine.Success {
		t.Fatalf("AdvanceB: %v", fl)
	}
	yB := make([]float64, 1)
	tB, fl := s.GetB(which, yB)
	if fl != engine.Success {
		t.Fatalf("GetB: %v", fl)
	}
	if math.Abs(tB) > 1e-9 {
		t.Errorf("tB = %g, want 0", tB)
	}
	if want := math.Exp(-1); math.Abs(yB[0]-want) > 2e-2 {
		t.Errorf("yB(0) = %g, want %g", yB[0], want)
	}
}

func TestAdjointGuards(t *testing.T) {
	s := newSolver(t, engine.Adams, engine.Functional, []float64{1},
		rhsFn(func(tt float64, y, ydot []float64) { ydot[0] = -y[0] }))

	y := make([]float64, 1)
	if _, _, fl := s.AdvanceF(1, y, engine.Normal); fl != engine.NoAdjoint {
		t.Errorf("AdvanceF before AdjInit: flag %v, want NoAdjoint", fl)
	}
	if _, fl := s.CreateB(); fl != engine.NoAdjoint {
		t.Errorf("CreateB before AdjInit: flag %v, want NoAdjoint", fl)
	}
	if fl := s.AdjInit(0); fl != engine.IllInput {
		t.Errorf("AdjInit(0): flag %v, want IllInput", fl)
	}

	if fl := s.AdjInit(100); fl != engine.Success {
		t.Fatalf("AdjInit: %v", fl)
	}
	if fl := s.AdvanceB(0); fl != engine.NoForward {
		t.Errorf("AdvanceB without forward history: flag %v, want NoForward", fl)
	}
	if fl := s.InitB(5, engine.Adams, engine.Functional, 1, []float64{1}); fl != engine.BadWhich {
		t.Errorf("InitB bad which: flag %v, want BadWhich", fl)
	}
}

// Backward steps must never leave the recorded forward interval: the
// interpolant is undefined there and the backward rhs depends on it.
func TestBackwardStaysInsideForwardHistory(t *testing.T) {
	s := newSolver(t, engine.Adams, engine.Functional, []float64{1},
		rhsFn(func(tt float64, y, ydot []float64) { ydot[0] = -y[0] }))

	if fl := s.AdjInit(1000); fl != engine.Success {
		t.Fatalf("AdjInit: %v", fl)
	}
	y := make([]float64, 1)
	if _, _, fl := s.AdvanceF(1, y, engine.Normal); fl != engine.Success {
		t.Fatalf("AdvanceF: %v", fl)
	}

	which, fl := s.CreateB()
	if fl != engine.Success {
		t.Fatalf("CreateB: %v", fl)
	}
	minT := math.Inf(1)
	s.RegisterB(which, engine.CbRhsB, engine.RhsFnB(func(tt float64, yf, yB, yBdot []float64, user engine.Token) int {
		if tt < minT {
			minT = tt
		}
		yBdot[0] = yB[0]
		return 0
	}))
	if fl := s.InitB(which, engine.Adams, engine.Functional, 1, []float64{1}); fl != engine.Success {
		t.Fatalf("InitB: %v", fl)
	}
	s.SetTolerancesB(which, 1e-5, []float64{1e-8})

	if fl := s.AdvanceB(0); fl != engine.Success {
		t.Fatalf("AdvanceB: %v", fl)
	}
	if minT < -1e-9 {
		t.Errorf("backward rhs evaluated at t=%g, before the history start", minT)
	}
}

// The checkpoint bound passed to AdjInit caps the stored history; recording
// past it coarsens the interval instead of growing without limit.
func TestCheckpointBoundCoarsensHistory(t *testing.T) {
	s := newSolver(t, engine.Adams, engine.Functional, []float64{1},
		rhsFn(func(tt float64, y, ydot []float64) { ydot[0] = -y[0] }))

	if fl := s.AdjInit(8); fl != engine.Success {
		t.Fatalf("AdjInit: %v", fl)
	}
	y := make([]float64, 1)
	_, ncheck, fl := s.AdvanceF(1, y, engine.Normal)
	if fl != engine.Success {
		t.Fatalf("AdvanceF: %v", fl)
	}
	if ncheck < 2 || ncheck > 8 {
		t.Fatalf("ncheck = %d, want within [2, 8]", ncheck)
	}

	// The coarsened history still spans the whole interval.
	out := make([]float64, 1)
	for _, tt := range []float64{0, 0.5, 1} {
		if !s.interpForward(tt, out) {
			t.Fatalf("interpForward(%g) out of range", tt)
		}
		if want := math.Exp(-tt); math.Abs(out[0]-want) > 1e-3 {
			t.Errorf("interpForward(%g) = %g, want %g", tt, out[0], want)
		}
	}
}

func TestSetIterKindEngagesNewton(t *testing.T) {
	s := newSolver(t, engine.BDF, engine.Functional, []float64{1},
		rhsFn(func(tt float64, y, ydot []float64) { ydot[0] = -y[0] }))

	if fl := s.AttachDense(1); fl != engine.Success {
		t.Fatalf("AttachDense: %v", fl)
	}
	if fl := s.SetIterKind(engine.Newton); fl != engine.Success {
		t.Fatalf("SetIterKind: %v", fl)
	}

	y := make([]float64, 1)
	if _, fl := s.Advance(1, y, engine.Normal); fl != engine.Success {
		t.Fatalf("Advance: %v", fl)
	}
	if st := s.Stats(); st.LinSolverSetups == 0 {
		t.Errorf("no linear solver setups recorded, Newton never ran: %+v", st)
	}
	if want := math.Exp(-1); math.Abs(y[0]-want) > 1e-3 {
		t.Errorf("y(1) = %g, want %g", y[0], want)
	}
}

func TestReInitPreservesCallbacks(t *testing.T) {
	s := newSolver(t, engine.Adams, engine.Functional, []float64{1},
		rhsFn(func(tt float64, y, ydot []float64) { ydot[0] = -y[0] }))

	y := make([]float64, 1)
	if _, fl := s.Advance(1, y, engine.Normal); fl != engine.Success {
		t.Fatalf("first Advance: %v", fl)
	}
	if fl := s.ReInit(0, []float64{2}); fl != engine.Success {
		t.Fatalf("ReInit: %v", fl)
	}
	if _, fl := s.Advance(1, y, engine.Normal); fl != engine.Success {
		t.Fatalf("second Advance: %v", fl)
	}
	if want := 2 * math.Exp(-1); math.Abs(y[0]-want) > 1e-2 {
		t.Errorf("y(1) = %g after reinit, want %g", y[0], want)
	}
}
