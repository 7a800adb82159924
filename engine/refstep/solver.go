package refstep

import (
	"sort"

	"github.com/san-kum/odebind/engine"
)

// Solver implements [engine.Engine] for a single forward problem and its
// backward (adjoint) problems.
type Solver struct {
	fw  *integ
	tok engine.Token
	cb  [engine.NumCallbackKinds]any

	tmp1, tmp2, tmp3 []float64

	adjEnabled bool
	maxCheck   int
	hist       []histPoint
	bps        []*bproblem
}

type histPoint struct {
	t    float64
	y, f []float64
}

type bproblem struct {
	in   *integ
	cb   [engine.NumCallbackKinds]any
	ybuf []float64 // forward solution interpolated to the callback time
	tmp1, tmp2, tmp3 []float64
	tLast float64
	yLast []float64
	ready bool
}

// New returns an engine with no problem initialized.
func New() *Solver {
	return &Solver{fw: newInteg("forward")}
}

var _ engine.Engine = (*Solver)(nil)

func (s *Solver) Init(lmm engine.LMM, iter engine.IterKind, t0 float64, y0 []float64, nroots int) engine.Flag {
	if fl := s.fw.init(lmm, iter, t0, y0, nroots); fl != engine.Success {
		return fl
	}
	n := len(y0)
	s.tmp1 = make([]float64, n)
	s.tmp2 = make([]float64, n)
	s.tmp3 = make([]float64, n)
	s.rebind()
	return engine.Success
}

func (s *Solver) ReInit(t0 float64, y0 []float64) engine.Flag {
	return s.fw.reinit(t0, y0)
}

func (s *Solver) Destroy() {
	s.fw.destroy()
	for _, bp := range s.bps {
		bp.in.destroy()
	}
	s.bps = nil
	s.hist = nil
}

func (s *Solver) SetUserData(tok engine.Token) {
	s.tok = tok
	s.rebind()
	for _, bp := range s.bps {
		s.rebindB(bp)
	}
}

func (s *Solver) Register(kind engine.CallbackKind, fn any) engine.Flag {
	if kind < 0 || int(kind) >= engine.NumCallbackKinds {
		return engine.IllInput
	}
	if !callbackTypeOK(kind, fn) {
		return engine.IllInput
	}
	s.cb[kind] = fn
	s.rebind()
	return engine.Success
}

func (s *Solver) Clear(kind engine.CallbackKind) {
	if kind < 0 || int(kind) >= engine.NumCallbackKinds {
		return
	}
	s.cb[kind] = nil
	s.rebind()
}

func callbackTypeOK(kind engine.CallbackKind, fn any) bool {
	switch kind {
	case engine.CbRhs:
		_, ok := fn.(engine.RhsFn)
		return ok
	case engine.CbRoots:
		_, ok := fn.(engine.RootFn)
		return ok
	case engine.CbErrHandler:
		_, ok := fn.(engine.ErrHandlerFn)
		return ok
	case engine.CbErrWeight:
		_, ok := fn.(engine.ErrWeightFn)
		return ok
	case engine.CbJacDense:
		_, ok := fn.(engine.DenseJacFn)
		return ok
	case engine.CbJacBand:
		_, ok := fn.(engine.BandJacFn)
		return ok
	case engine.CbPrecSetup:
		_, ok := fn.(engine.PrecSetupFn)
		return ok
	case engine.CbPrecSolve:
		_, ok := fn.(engine.PrecSolveFn)
		return ok
	case engine.CbJacTimes:
		_, ok := fn.(engine.JacTimesFn)
		return ok
	case engine.CbBBDLocal:
		_, ok := fn.(engine.BBDLocalFn)
		return ok
	case engine.CbBBDComm:
		_, ok := fn.(engine.BBDCommFn)
		return ok
	case engine.CbRhsB:
		_, ok := fn.(engine.RhsFnB)
		return ok
	case engine.CbJacDenseB:
		_, ok := fn.(engine.DenseJacFnB)
		return ok
	case engine.CbJacBandB:
		_, ok := fn.(engine.BandJacFnB)
		return ok
	case engine.CbPrecSetupB:
		_, ok := fn.(engine.PrecSetupFnB)
		return ok
	case engine.CbPrecSolveB:
		_, ok := fn.(engine.PrecSolveFnB)
		return ok
	case engine.CbJacTimesB:
		_, ok := fn.(engine.JacTimesFnB)
		return ok
	case engine.CbBBDLocalB:
		_, ok := fn.(engine.BBDLocalFnB)
		return ok
	case engine.CbBBDCommB:
		_, ok := fn.(engine.BBDCommFnB)
		return ok
	}
	return false
}

// rebind rebuilds the forward adapter table from the registered callbacks.
// Adapters close over the token and the engine-owned workspaces.
func (s *Solver) rebind() {
	ad := adapters{}
	tok := s.tok
	if fn, ok := s.cb[engine.CbRhs].(engine.RhsFn); ok {
		ad.rhs = func(t float64, y, ydot []float64) int { return fn(t, y, ydot, tok) }
	}
	if fn, ok := s.cb[engine.CbRoots].(engine.RootFn); ok {
		ad.roots = func(t float64, y, gout []float64) int { return fn(t, y, gout, tok) }
	}
	if fn, ok := s.cb[engine.CbErrHandler].(engine.ErrHandlerFn); ok {
		ad.errh = func(code int, module, function, msg string) { fn(code, module, function, msg, tok) }
	}
	if fn, ok := s.cb[engine.CbErrWeight].(engine.ErrWeightFn); ok {
		ad.errw = func(y, ewt []float64) int { return fn(y, ewt, tok) }
	}
	if fn, ok := s.cb[engine.CbJacDense].(engine.DenseJacFn); ok {
		ad.jacDense = func(t float64, y, fy []float64, m *engine.DenseMatrix) int {
			return fn(t, y, fy, m, s.tmp1, s.tmp2, s.tmp3, tok)
		}
	}
	if fn, ok := s.cb[engine.CbJacBand].(engine.BandJacFn); ok {
		ad.jacBand = func(mupper, mlower int, t float64, y, fy []float64, m *engine.BandMatrix) int {
			return fn(mupper, mlower, t, y, fy, m, s.tmp1, s.tmp2, s.tmp3, tok)
		}
	}
	if fn, ok := s.cb[engine.CbPrecSetup].(engine.PrecSetupFn); ok {
		ad.psetup = func(t float64, y, fy []float64, jok bool, gamma float64) (bool, int) {
			return fn(t, y, fy, jok, gamma, s.tmp1, s.tmp2, s.tmp3, tok)
		}
	}
	if fn, ok := s.cb[engine.CbPrecSolve].(engine.PrecSolveFn); ok {
		ad.psolve = func(t float64, y, fy, r, z []float64, gamma, delta float64, left bool) int {
			return fn(t, y, fy, r, z, gamma, delta, left, s.tmp1, tok)
		}
	}
	if fn, ok := s.cb[engine.CbJacTimes].(engine.JacTimesFn); ok {
		ad.jtimes = func(v, jv []float64, t float64, y, fy []float64) int {
			return fn(v, jv, t, y, fy, s.tmp1, tok)
		}
	}
	if fn, ok := s.cb[engine.CbBBDLocal].(engine.BBDLocalFn); ok {
		n := s.fw.n
		ad.bbdLocal = func(t float64, y, g []float64) int { return fn(n, t, y, g, tok) }
	}
	if fn, ok := s.cb[engine.CbBBDComm].(engine.BBDCommFn); ok {
		n := s.fw.n
		ad.bbdComm = func(t float64, y []float64) int { return fn(n, t, y, tok) }
	}
	s.fw.ad = ad
}

func (s *Solver) SetTolerances(reltol float64, abstol []float64) engine.Flag {
	return s.fw.setTolerances(reltol, abstol)
}

func (s *Solver) SetStopTime(t float64) engine.Flag {
	s.fw.hasTstop = true
	s.fw.tstop = t
	return engine.Success
}

func (s *Solver) ClearStopTime() { s.fw.hasTstop = false }

func (s *Solver) SetMaxSteps(n int64) engine.Flag {
	if n <= 0 {
		return engine.IllInput
	}
	s.fw.maxSteps = n
	return engine.Success
}

func (s *Solver) SetErrFile(path string) engine.Flag { return s.fw.setErrFile(path) }

func (s *Solver) SetIterKind(iter engine.IterKind) engine.Flag {
	return s.fw.setIterKind(iter)
}

func (s *Solver) AttachDense(n int) engine.Flag { return s.fw.attachDense(n) }

func (s *Solver) AttachBand(n, mupper, mlower int) engine.Flag {
	return s.fw.attachBand(n, mupper, mlower)
}

func (s *Solver) AttachDiag() engine.Flag { return s.fw.attachDiag() }

func (s *Solver) AttachKrylov(method engine.KrylovMethod, side engine.PrecSide, maxl int) engine.Flag {
	return s.fw.attachKrylov(method, side, maxl)
}

func (s *Solver) BBDInit(nlocal int, bw engine.Bandwidths, dqrely float64) engine.Flag {
	return s.fw.bbdInit(nlocal, bw, dqrely)
}

func (s *Solver) BBDReInit(mudq, mldq int, dqrely float64) engine.Flag {
	return s.fw.bbdReInit(mudq, mldq, dqrely)
}

func (s *Solver) Advance(tout float64, yout []float64, mode engine.StepMode) (float64, engine.Flag) {
	return s.fw.advance(tout, yout, mode)
}

func (s *Solver) GetDky(t float64, k int, dky []float64) engine.Flag {
	return s.fw.getDky(t, k, dky)
}

func (s *Solver) RootInfo(found []int) engine.Flag { return s.fw.rootInfo(found) }

func (s *Solver) Stats() engine.Stats { return s.fw.stats }

// Adjoint extension.

func (s *Solver) AdjInit(maxCheckpoints int) engine.Flag {
	if s.fw.n == 0 {
		return engine.MemNull
	}
	if maxCheckpoints <= 0 {
		return engine.IllInput
	}
	s.adjEnabled = true
	s.maxCheck = maxCheckpoints
	s.hist = s.hist[:0]
	return engine.Success
}

func (s *Solver) recordStep(t float64, y, f []float64) {
	if len(s.hist) == 0 {
		// seed with the step's start point so interpolation covers t0
		s.hist = append(s.hist, histPoint{
			t: s.fw.tPrev,
			y: append([]float64(nil), s.fw.yPrev...),
			f: append([]float64(nil), s.fw.fPrev...),
		})
	}
	s.hist = append(s.hist, histPoint{
		t: t,
		y: append([]float64(nil), y...),
		f: append([]float64(nil), f...),
	})
	limit := s.maxCheck
	if limit < 2 {
		limit = 2
	}
	// Hold the history to the checkpoint bound by coarsening: drop every
	// other interior point, keeping both endpoints. Interpolation between
	// the surviving points gets coarser, never undefined.
	for len(s.hist) > limit {
		w := 1
		last := len(s.hist) - 1
		for i := 2; i < last; i += 2 {
			s.hist[w] = s.hist[i]
			w++
		}
		s.hist[w] = s.hist[last]
		s.hist = s.hist[:w+1]
	}
}

func (s *Solver) AdvanceF(tout float64, yout []float64, mode engine.StepMode) (float64, int, engine.Flag) {
	if !s.adjEnabled {
		return s.fw.t, 0, engine.NoAdjoint
	}
	s.fw.record = s.recordStep
	tret, fl := s.fw.advance(tout, yout, mode)
	s.fw.record = nil
	return tret, len(s.hist), fl
}

func (s *Solver) CreateB() (int, engine.Flag) {
	if !s.adjEnabled {
		return -1, engine.NoAdjoint
	}
	bp := &bproblem{in: newInteg("backward")}
	s.bps = append(s.bps, bp)
	return len(s.bps) - 1, engine.Success
}

func (s *Solver) backward(which int) *bproblem {
	if which < 0 || which >= len(s.bps) {
		return nil
	}
	return s.bps[which]
}

func (s *Solver) RegisterB(which int, kind engine.CallbackKind, fn any) engine.Flag {
	bp := s.backward(which)
	if bp == nil {
		return engine.BadWhich
	}
	if !callbackTypeOK(kind, fn) {
		return engine.IllInput
	}
	bp.cb[kind] = fn
	s.rebindB(bp)
	return engine.Success
}

func (s *Solver) ClearB(which int, kind engine.CallbackKind) {
	bp := s.backward(which)
	if bp == nil {
		return
	}
	bp.cb[kind] = nil
	s.rebindB(bp)
}

func (s *Solver) InitB(which int, lmm engine.LMM, iter engine.IterKind, tB0 float64, yB0 []float64) engine.Flag {
	bp := s.backward(which)
	if bp == nil {
		return engine.BadWhich
	}
	if fl := bp.in.init(lmm, iter, tB0, yB0, 0); fl != engine.Success {
		return fl
	}
	nB := len(yB0)
	bp.ybuf = make([]float64, s.fw.n)
	bp.tmp1 = make([]float64, nB)
	bp.tmp2 = make([]float64, nB)
	bp.tmp3 = make([]float64, nB)
	bp.yLast = make([]float64, nB)
	bp.tLast = tB0
	copy(bp.yLast, yB0)
	bp.ready = true
	s.rebindB(bp)
	return engine.Success
}

func (s *Solver) ReInitB(which int, tB0 float64, yB0 []float64) engine.Flag {
	bp := s.backward(which)
	if bp == nil {
		return engine.BadWhich
	}
	if fl := bp.in.reinit(tB0, yB0); fl != engine.Success {
		return fl
	}
	bp.tLast = tB0
	copy(bp.yLast, yB0)
	return engine.Success
}

func (s *Solver) SetTolerancesB(which int, reltol float64, abstol []float64) engine.Flag {
	bp := s.backward(which)
	if bp == nil {
		return engine.BadWhich
	}
	return bp.in.setTolerances(reltol, abstol)
}

func (s *Solver) AttachDenseB(which, n int) engine.Flag {
	bp := s.backward(which)
	if bp == nil {
		return engine.BadWhich
	}
	return bp.in.attachDense(n)
}

func (s *Solver) AttachBandB(which, n, mupper, mlower int) engine.Flag {
	bp := s.backward(which)
	if bp == nil {
		return engine.BadWhich
	}
	return bp.in.attachBand(n, mupper, mlower)
}

func (s *Solver) AttachDiagB(which int) engine.Flag {
	bp := s.backward(which)
	if bp == nil {
		return engine.BadWhich
	}
	return bp.in.attachDiag()
}

func (s *Solver) AttachKrylovB(which int, method engine.KrylovMethod, side engine.PrecSide, maxl int) engine.Flag {
	bp := s.backward(which)
	if bp == nil {
		return engine.BadWhich
	}
	return bp.in.attachKrylov(method, side, maxl)
}

func (s *Solver) BBDInitB(which, nlocal int, bw engine.Bandwidths, dqrely float64) engine.Flag {
	bp := s.backward(which)
	if bp == nil {
		return engine.BadWhich
	}
	return bp.in.bbdInit(nlocal, bw, dqrely)
}

func (s *Solver) AdvanceB(tBout float64) engine.Flag {
	if !s.adjEnabled {
		return engine.NoAdjoint
	}
	if len(s.hist) < 2 {
		return engine.NoForward
	}
	if tBout < s.hist[0].t {
		return engine.NoForward
	}
	tEarliest := s.hist[0].t
	any := false
	for _, bp := range s.bps {
		if !bp.ready || bp.in.ad.rhs == nil {
			continue
		}
		any = true
		// The forward interpolant is undefined before the first recorded
		// point; stop internal backward steps there.
		bp.in.hasTstop = true
		bp.in.tstop = tEarliest
		yout := make([]float64, bp.in.n)
		tret, fl := bp.in.advance(tBout, yout, engine.Normal)
		if fl != engine.Success && fl != engine.TstopReturn {
			return fl
		}
		bp.tLast = tret
		copy(bp.yLast, yout)
	}
	if !any {
		return engine.BadWhich
	}
	return engine.Success
}

func (s *Solver) GetB(which int, yB []float64) (float64, engine.Flag) {
	bp := s.backward(which)
	if bp == nil || !bp.ready {
		return 0, engine.BadWhich
	}
	if len(yB) != len(bp.yLast) {
		return 0, engine.IllInput
	}
	copy(yB, bp.yLast)
	return bp.tLast, engine.Success
}

func (s *Solver) StatsB(which int) (engine.Stats, engine.Flag) {
	bp := s.backward(which)
	if bp == nil {
		return engine.Stats{}, engine.BadWhich
	}
	return bp.in.stats, engine.Success
}

// interpForward evaluates the recorded forward solution at t by cubic
// Hermite interpolation between the bracketing checkpoints.
func (s *Solver) interpForward(t float64, out []float64) bool {
	h := s.hist
	if len(h) < 2 {
		return false
	}
	lo, hi := h[0].t, h[len(h)-1].t
	fuzz := 100 * unitRoundoff * (1 + absf(lo) + absf(hi))
	if t < lo-fuzz || t > hi+fuzz {
		return false
	}
	if t <= lo {
		copy(out, h[0].y)
		return true
	}
	if t >= hi {
		copy(out, h[len(h)-1].y)
		return true
	}
	i := sort.Search(len(h), func(k int) bool { return h[k].t >= t }) // first point at or after t
	a, b := h[i-1], h[i]
	dt := b.t - a.t
	sN := (t - a.t) / dt
	b0 := 2*sN*sN*sN - 3*sN*sN + 1
	b1 := sN*sN*sN - 2*sN*sN + sN
	b2 := -2*sN*sN*sN + 3*sN*sN
	b3 := sN*sN*sN - sN*sN
	for k := range out {
		out[k] = b0*a.y[k] + b1*dt*a.f[k] + b2*b.y[k] + b3*dt*b.f[k]
	}
	return true
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// rebindB rebuilds a backward problem's adapters. Every adapter first
// interpolates the forward solution to the callback time.
func (s *Solver) rebindB(bp *bproblem) {
	ad := adapters{}
	tok := s.tok
	if fn, ok := bp.cb[engine.CbRhsB].(engine.RhsFnB); ok {
		ad.rhs = func(t float64, yB, yBdot []float64) int {
			if !s.interpForward(t, bp.ybuf) {
				return -1
			}
			return fn(t, bp.ybuf, yB, yBdot, tok)
		}
	}
	if fn, ok := bp.cb[engine.CbJacDenseB].(engine.DenseJacFnB); ok {
		ad.jacDense = func(t float64, yB, fyB []float64, m *engine.DenseMatrix) int {
			if !s.interpForward(t, bp.ybuf) {
				return -1
			}
			return fn(t, bp.ybuf, yB, fyB, m, bp.tmp1, bp.tmp2, bp.tmp3, tok)
		}
	}
	if fn, ok := bp.cb[engine.CbJacBandB].(engine.BandJacFnB); ok {
		ad.jacBand = func(mupper, mlower int, t float64, yB, fyB []float64, m *engine.BandMatrix) int {
			if !s.interpForward(t, bp.ybuf) {
				return -1
			}
			return fn(mupper, mlower, t, bp.ybuf, yB, fyB, m, bp.tmp1, bp.tmp2, bp.tmp3, tok)
		}
	}
	if fn, ok := bp.cb[engine.CbPrecSetupB].(engine.PrecSetupFnB); ok {
		ad.psetup = func(t float64, yB, fyB []float64, jok bool, gamma float64) (bool, int) {
			if !s.interpForward(t, bp.ybuf) {
				return false, -1
			}
			return fn(t, bp.ybuf, yB, fyB, jok, gamma, bp.tmp1, bp.tmp2, bp.tmp3, tok)
		}
	}
	if fn, ok := bp.cb[engine.CbPrecSolveB].(engine.PrecSolveFnB); ok {
		ad.psolve = func(t float64, yB, fyB, r, z []float64, gamma, delta float64, left bool) int {
			if !s.interpForward(t, bp.ybuf) {
				return -1
			}
			return fn(t, bp.ybuf, yB, fyB, r, z, gamma, delta, left, bp.tmp1, tok)
		}
	}
	if fn, ok := bp.cb[engine.CbJacTimesB].(engine.JacTimesFnB); ok {
		ad.jtimes = func(v, jv []float64, t float64, yB, fyB []float64) int {
			if !s.interpForward(t, bp.ybuf) {
				return -1
			}
			return fn(v, jv, t, bp.ybuf, yB, fyB, bp.tmp1, tok)
		}
	}
	if fn, ok := bp.cb[engine.CbBBDLocalB].(engine.BBDLocalFnB); ok {
		nB := bp.in.n
		ad.bbdLocal = func(t float64, yB, g []float64) int {
			if !s.interpForward(t, bp.ybuf) {
				return -1
			}
			return fn(nB, t, bp.ybuf, yB, g, tok)
		}
	}
	if fn, ok := bp.cb[engine.CbBBDCommB].(engine.BBDCommFnB); ok {
		nB := bp.in.n
		ad.bbdComm = func(t float64, yB []float64) int {
			if !s.interpForward(t, bp.ybuf) {
				return -1
			}
			return fn(nB, t, bp.ybuf, yB, tok)
		}
	}
	if fn, ok := s.cb[engine.CbErrHandler].(engine.ErrHandlerFn); ok {
		ad.errh = func(code int, module, function, msg string) { fn(code, module, function, msg, tok) }
	}
	bp.in.ad = ad
}
