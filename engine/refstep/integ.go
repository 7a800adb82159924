package refstep

import (
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/san-kum/odebind/engine"
)

const (
	unitRoundoff = 2.220446049250313e-16

	defaultRtol     = 1.0e-4
	defaultAtol     = 1.0e-8
	defaultMaxSteps = 500

	maxCorrIters    = 4
	maxConvFails    = 10
	maxErrTestFails = 7

	// Jacobian/preconditioner data is refreshed after this many steps even
	// when convergence is healthy.
	maxStepsBetweenSetups = 20

	// Relative change in gamma that forces a linear-solver setup.
	gammaChangeLimit = 0.3

	convCoef   = 0.1
	errCoef    = 0.5
	maxGrowth  = 10.0
	minShrink  = 0.1
	safety     = 0.9
	hminFactor = 10.0 * unitRoundoff
)

// adapter functions bound by the Solver; nil means "not supplied" and the
// integrator falls back to internal difference quotients where one exists.
type adapters struct {
	rhs      func(t float64, y, ydot []float64) int
	roots    func(t float64, y, gout []float64) int
	errh     func(code int, module, function, msg string)
	errw     func(y, ewt []float64) int
	jacDense func(t float64, y, fy []float64, m *engine.DenseMatrix) int
	jacBand  func(mupper, mlower int, t float64, y, fy []float64, m *engine.BandMatrix) int
	psetup   func(t float64, y, fy []float64, jok bool, gamma float64) (bool, int)
	psolve   func(t float64, y, fy, r, z []float64, gamma, delta float64, left bool) int
	jtimes   func(v, jv []float64, t float64, y, fy []float64) int
	bbdLocal func(t float64, y, g []float64) int
	bbdComm  func(t float64, y []float64) int
}

// integ integrates one problem, forward or backward. The Solver owns one for
// the forward problem and one per backward problem.
type integ struct {
	name string // diagnostic label: "forward" or "backward[k]"

	n      int
	nroots int
	lmm    engine.LMM
	iter   engine.IterKind
	ad     adapters

	rtol float64
	atol []float64 // len 1 (scalar) or n

	t, h    float64
	y, f    []float64
	tPrev   float64
	yPrev   []float64
	fPrev   []float64
	haveIvl bool // an accepted step interval [tPrev, t] exists
	started bool // f(t0, y0) has been evaluated

	hasTstop bool
	tstop    float64
	maxSteps int64

	ewt, ypred, ycor, delta, fcor []float64
	gPrev, gNew, gTmp             []float64
	rootDirs                      []int

	lin linState

	stats  engine.Stats
	logger *slog.Logger
	errf   *os.File

	// record is invoked after every accepted step; used for adjoint
	// checkpointing of the forward problem.
	record func(t float64, y, f []float64)
}

func newInteg(name string) *integ {
	return &integ{name: name, maxSteps: defaultMaxSteps, rtol: defaultRtol}
}

func (in *integ) init(lmm engine.LMM, iter engine.IterKind, t0 float64, y0 []float64, nroots int) engine.Flag {
	if len(y0) == 0 || nroots < 0 {
		return engine.IllInput
	}
	in.n = len(y0)
	in.nroots = nroots
	in.lmm = lmm
	in.iter = iter
	in.t = t0
	in.y = append([]float64(nil), y0...)
	in.f = make([]float64, in.n)
	in.yPrev = make([]float64, in.n)
	in.fPrev = make([]float64, in.n)
	in.ewt = make([]float64, in.n)
	in.ypred = make([]float64, in.n)
	in.ycor = make([]float64, in.n)
	in.delta = make([]float64, in.n)
	in.fcor = make([]float64, in.n)
	if nroots > 0 {
		in.gPrev = make([]float64, nroots)
		in.gNew = make([]float64, nroots)
		in.gTmp = make([]float64, nroots)
		in.rootDirs = make([]int, nroots)
	}
	in.atol = []float64{defaultAtol}
	in.started = false
	in.haveIvl = false
	in.h = 0
	in.stats = engine.Stats{}
	return engine.Success
}

func (in *integ) reinit(t0 float64, y0 []float64) engine.Flag {
	if in.n == 0 {
		return engine.MemNull
	}
	if len(y0) != in.n {
		return engine.IllInput
	}
	in.t = t0
	copy(in.y, y0)
	in.started = false
	in.haveIvl = false
	in.h = 0
	in.lin.jacCurrent = false
	return engine.Success
}

func (in *integ) setTolerances(reltol float64, abstol []float64) engine.Flag {
	if reltol < 0 {
		return engine.IllInput
	}
	for _, a := range abstol {
		if a < 0 {
			return engine.IllInput
		}
	}
	switch len(abstol) {
	case 1:
	case in.n:
	default:
		return engine.IllInput
	}
	in.rtol = reltol
	in.atol = append([]float64(nil), abstol...)
	return engine.Success
}

func (in *integ) setIterKind(iter engine.IterKind) engine.Flag {
	if in.n == 0 {
		return engine.MemNull
	}
	switch iter {
	case engine.Functional, engine.Newton:
	default:
		return engine.IllInput
	}
	in.iter = iter
	return engine.Success
}

// report routes a diagnostic through the registered error handler, or the
// attached error file, in that order.
func (in *integ) report(flag engine.Flag, function, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if in.ad.errh != nil {
		in.ad.errh(int(flag), "refstep", function, msg)
		return
	}
	if in.logger != nil {
		in.logger.Warn(msg, "module", "refstep", "function", function, "code", int(flag))
	}
}

func (in *integ) setErrFile(path string) engine.Flag {
	if in.errf != nil {
		in.errf.Close()
		in.errf = nil
		in.logger = nil
	}
	if path == "" {
		return engine.Success
	}
	f, err := os.Create(path)
	if err != nil {
		return engine.IllInput
	}
	in.errf = f
	in.logger = slog.New(slog.NewTextHandler(f, nil))
	return engine.Success
}

func (in *integ) destroy() {
	if in.errf != nil {
		in.errf.Close()
		in.errf = nil
	}
}

// loadEwt fills in.ewt for the current y. Weights must be positive.
func (in *integ) loadEwt() engine.Flag {
	if in.ad.errw != nil {
		if st := in.ad.errw(in.y, in.ewt); st != 0 {
			in.report(engine.IllInput, "loadEwt", "user error-weight function failed")
			return engine.IllInput
		}
	} else {
		for i, v := range in.y {
			a := in.atol[0]
			if len(in.atol) == in.n {
				a = in.atol[i]
			}
			in.ewt[i] = in.rtol*math.Abs(v) + a
		}
	}
	for i, w := range in.ewt {
		if w <= 0 {
			in.report(engine.IllInput, "loadEwt", "error weight %d is nonpositive", i)
			return engine.IllInput
		}
		in.ewt[i] = 1.0 / in.ewt[i]
	}
	return engine.Success
}

// wrms is the error-weighted root-mean-square norm used by both the
// nonlinear convergence test and the local error test.
func (in *integ) wrms(v []float64) float64 {
	sum := 0.0
	for i, x := range v {
		w := x * in.ewt[i]
		sum += w * w
	}
	return math.Sqrt(sum / float64(in.n))
}

// Interpolation over the last accepted interval: cubic Hermite through
// (tPrev, yPrev, fPrev) and (t, y, f).

func (in *integ) getDky(t float64, k int, dky []float64) engine.Flag {
	if k < 0 || k > 3 {
		return engine.BadK
	}
	if len(dky) != in.n {
		return engine.BadDky
	}
	if !in.haveIvl {
		if t != in.t {
			return engine.BadT
		}
		switch k {
		case 0:
			copy(dky, in.y)
			return engine.Success
		case 1:
			if !in.started {
				return engine.BadT
			}
			copy(dky, in.f)
			return engine.Success
		default:
			return engine.BadT
		}
	}
	lo, hi := in.tPrev, in.t
	if lo > hi {
		lo, hi = hi, lo
	}
	fuzz := 100 * unitRoundoff * (math.Abs(lo) + math.Abs(hi) + 1)
	if t < lo-fuzz || t > hi+fuzz {
		return engine.BadT
	}
	h01 := in.t - in.tPrev
	s := (t - in.tPrev) / h01
	// Hermite basis derivatives with respect to s, order 0..3.
	var b0, b1, b2, b3 float64
	switch k {
	case 0:
		b0 = 2*s*s*s - 3*s*s + 1
		b1 = s*s*s - 2*s*s + s
		b2 = -2*s*s*s + 3*s*s
		b3 = s*s*s - s*s
	case 1:
		b0 = 6*s*s - 6*s
		b1 = 3*s*s - 4*s + 1
		b2 = -6*s*s + 6*s
		b3 = 3*s*s - 2*s
	case 2:
		b0 = 12*s - 6
		b1 = 6*s - 4
		b2 = -12*s + 6
		b3 = 6*s - 2
	case 3:
		b0 = 12
		b1 = 6
		b2 = -12
		b3 = 6
	}
	scale := 1.0
	for i := 0; i < k; i++ {
		scale /= h01
	}
	for i := 0; i < in.n; i++ {
		dky[i] = scale * (b0*in.yPrev[i] + b1*h01*in.fPrev[i] + b2*in.y[i] + b3*h01*in.f[i])
	}
	return engine.Success
}

func (in *integ) rootInfo(found []int) engine.Flag {
	if len(found) < in.nroots {
		return engine.IllInput
	}
	copy(found, in.rootDirs)
	return engine.Success
}

// checkRoots scans [tPrev, t] for sign changes of the root functions and
// bisects to locate the earliest crossing. On a hit it fills yout with the
// interpolated state at the root and records crossing directions.
func (in *integ) checkRoots(yout []float64) (troot float64, hit bool, flag engine.Flag) {
	if in.nroots == 0 || in.ad.roots == nil {
		return 0, false, engine.Success
	}
	if st := in.ad.roots(in.t, in.y, in.gNew); st != 0 {
		in.report(engine.RootFuncFail, "checkRoots", "root function failed at t=%g", in.t)
		return 0, false, engine.RootFuncFail
	}
	in.stats.RootEvals++
	defer copy(in.gPrev, in.gNew)

	any := false
	for i := 0; i < in.nroots; i++ {
		in.rootDirs[i] = 0
		if in.gPrev[i] == 0 && in.gNew[i] == 0 {
			continue
		}
		if in.gPrev[i]*in.gNew[i] <= 0 && (in.gPrev[i] != 0 || in.gNew[i] != 0) {
			if in.gPrev[i] == 0 {
				continue // crossing already reported at the previous step
			}
			any = true
		}
	}
	if !any {
		return 0, false, engine.Success
	}

	// Bisect for the earliest crossing over the whole interval.
	lo, hi := in.tPrev, in.t
	glo := append([]float64(nil), in.gPrev...)
	tol := 100 * unitRoundoff * (math.Abs(in.t) + math.Abs(in.h))
	for iter := 0; iter < 60 && math.Abs(hi-lo) > tol; iter++ {
		mid := 0.5 * (lo + hi)
		if fl := in.getDky(mid, 0, yout); fl != engine.Success {
			return 0, false, fl
		}
		if st := in.ad.roots(mid, yout, in.gTmp); st != 0 {
			return 0, false, engine.RootFuncFail
		}
		in.stats.RootEvals++
		crossed := false
		for i := 0; i < in.nroots; i++ {
			if glo[i]*in.gTmp[i] <= 0 && glo[i] != 0 {
				crossed = true
				break
			}
		}
		if crossed {
			hi = mid
		} else {
			lo = mid
			copy(glo, in.gTmp)
		}
	}
	troot = hi
	if fl := in.getDky(troot, 0, yout); fl != engine.Success {
		return 0, false, fl
	}
	if st := in.ad.roots(troot, yout, in.gTmp); st != 0 {
		return 0, false, engine.RootFuncFail
	}
	in.stats.RootEvals++
	for i := 0; i < in.nroots; i++ {
		in.rootDirs[i] = 0
		if in.gPrev[i]*in.gNew[i] <= 0 && in.gPrev[i] != 0 {
			if in.gNew[i] > in.gPrev[i] {
				in.rootDirs[i] = 1
			} else {
				in.rootDirs[i] = -1
			}
		}
	}
	return troot, true, engine.Success
}
