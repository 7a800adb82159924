package refstep

import (
	"math"

	"github.com/san-kum/odebind/engine"
)

// outcome of one nonlinear corrector attempt.
type corrResult int

const (
	corrOK corrResult = iota
	corrRetry
	corrFatal
)

// start evaluates f(t0, y0) and the initial root values, choosing the first
// step size. dir is +1 or -1 for the requested integration direction.
func (in *integ) start(tout float64) engine.Flag {
	for attempt := 0; ; attempt++ {
		st := in.ad.rhs(in.t, in.y, in.f)
		in.stats.RhsEvals++
		if st == 0 {
			break
		}
		if st < 0 {
			in.report(engine.RhsFuncFail, "start", "rhs failed at the first call")
			return engine.RhsFuncFail
		}
		if attempt+1 >= maxConvFails {
			in.report(engine.FirstRhsErr, "start", "rhs failed recoverably at the first call")
			return engine.FirstRhsErr
		}
	}
	if in.nroots > 0 && in.ad.roots != nil {
		if st := in.ad.roots(in.t, in.y, in.gPrev); st != 0 {
			return engine.RootFuncFail
		}
		in.stats.RootEvals++
	}
	// Initial step: a small fraction of the requested span, bounded away
	// from zero by the local time scale.
	span := tout - in.t
	h := span / 100
	minH := hminFactor * (math.Abs(in.t) + math.Abs(tout))
	if math.Abs(h) < minH {
		if span >= 0 {
			h = minH
		} else {
			h = -minH
		}
	}
	in.h = h
	in.stats.InitialStepSize = h
	in.started = true
	return engine.Success
}

func (in *integ) hmin() float64 {
	return hminFactor * (math.Abs(in.t) + math.Abs(in.h) + 1)
}

// advance drives internal steps until tout is reached (Normal) or one step
// completes (OneStep). yout receives the state at the returned time.
func (in *integ) advance(tout float64, yout []float64, mode engine.StepMode) (float64, engine.Flag) {
	if in.n == 0 {
		return 0, engine.MemNull
	}
	if len(yout) != in.n {
		return in.t, engine.IllInput
	}
	if !in.started {
		if mode == engine.Normal {
			if math.Abs(tout-in.t) <= 100*unitRoundoff*(math.Abs(in.t)+math.Abs(tout)) {
				in.report(engine.TooClose, "advance", "tout=%g too close to t0=%g", tout, in.t)
				return in.t, engine.TooClose
			}
		}
		if fl := in.start(tout); fl != engine.Success {
			return in.t, fl
		}
	}
	dir := 1.0
	if in.h < 0 {
		dir = -1.0
	}
	if mode == engine.Normal && dir*(tout-in.t) < 0 {
		// Requested time already passed: answer from the interpolant.
		if fl := in.getDky(tout, 0, yout); fl != engine.Success {
			in.report(engine.IllInput, "advance", "tout=%g behind current time %g", tout, in.t)
			return in.t, engine.IllInput
		}
		return tout, engine.Success
	}

	for steps := int64(0); ; steps++ {
		if mode == engine.Normal && dir*(in.t-tout) >= 0 {
			if fl := in.getDky(tout, 0, yout); fl != engine.Success {
				return in.t, fl
			}
			return tout, engine.Success
		}
		if steps >= in.maxSteps {
			in.report(engine.TooMuchWork, "advance", "%d internal steps taken before reaching tout=%g", in.maxSteps, tout)
			copy(yout, in.y)
			return in.t, engine.TooMuchWork
		}

		// Clamp the step at the stop time.
		if in.hasTstop && dir*(in.t+in.h-in.tstop) > 0 {
			in.h = in.tstop - in.t
		}

		if fl := in.takeStep(); fl != engine.Success {
			copy(yout, in.y)
			return in.t, fl
		}
		if in.record != nil {
			in.record(in.t, in.y, in.f)
		}

		if troot, hit, fl := in.checkRoots(yout); fl != engine.Success {
			copy(yout, in.y)
			return in.t, fl
		} else if hit {
			return troot, engine.RootReturn
		}

		if in.hasTstop && math.Abs(in.t-in.tstop) <= 100*unitRoundoff*(math.Abs(in.t)+1) {
			copy(yout, in.y)
			return in.tstop, engine.TstopReturn
		}
		if mode == engine.OneStep {
			copy(yout, in.y)
			return in.t, engine.Success
		}
	}
}

// takeStep attempts one step of size in.h, shrinking on convergence or error
// test failures until the step is accepted or a failure flag results.
func (in *integ) takeStep() engine.Flag {
	if fl := in.loadEwt(); fl != engine.Success {
		return fl
	}
	convFails := 0
	rhsFails := 0
	etFails := 0
	for {
		h := in.h
		// Predictor: explicit Euler from the saved derivative.
		for i := 0; i < in.n; i++ {
			in.ypred[i] = in.y[i] + h*in.f[i]
		}
		res, fatal := in.correct(h)
		switch res {
		case corrFatal:
			return fatal
		case corrRetry:
			convFails++
			in.stats.NonlinConvFailures++
			if fatal == engine.RhsFuncFail { // recoverable rhs signalled the retry
				rhsFails++
				if rhsFails >= maxConvFails {
					in.report(engine.RepeatedRhsErr, "takeStep", "rhs failed recoverably %d times at t=%g", rhsFails, in.t)
					return engine.RepeatedRhsErr
				}
			} else if convFails >= maxConvFails {
				in.report(engine.ConvFailure, "takeStep", "corrector failed to converge at t=%g with h=%g", in.t, h)
				return engine.ConvFailure
			}
			if math.Abs(h) <= in.hmin() {
				in.report(engine.ConvFailure, "takeStep", "step size %g reduced below minimum at t=%g", h, in.t)
				return engine.ConvFailure
			}
			in.h = h * 0.25
			in.lin.jacCurrent = false
			continue
		}

		// Local error test: the predictor/corrector difference estimates
		// the truncation error of the first-order corrector.
		for i := 0; i < in.n; i++ {
			in.delta[i] = in.ycor[i] - in.ypred[i]
		}
		est := errCoef * in.wrms(in.delta)
		if est > 1 {
			etFails++
			in.stats.ErrTestFailures++
			if etFails >= maxErrTestFails || math.Abs(h) <= in.hmin() {
				in.report(engine.ErrFailure, "takeStep", "error test failed repeatedly at t=%g", in.t)
				return engine.ErrFailure
			}
			shrink := safety / math.Sqrt(est)
			if shrink < minShrink {
				shrink = minShrink
			}
			in.h = h * shrink
			continue
		}

		// Accept.
		in.tPrev = in.t
		copy(in.yPrev, in.y)
		copy(in.fPrev, in.f)
		in.t += h
		copy(in.y, in.ycor)
		copy(in.f, in.fcor)
		in.haveIvl = true
		in.lin.stepsSinceSetup++
		in.stats.Steps++
		in.stats.LastStepSize = h
		in.stats.InternalTime = in.t
		in.stats.LastInternalOrder = 1
		in.stats.NextInternalOrder = 1

		grow := maxGrowth
		if est > 0 {
			grow = safety / math.Sqrt(est)
			if grow > maxGrowth {
				grow = maxGrowth
			}
			if grow < 1 {
				grow = 1
			}
		}
		in.h = h * grow
		in.stats.NextStepSize = in.h
		return engine.Success
	}
}

// correct solves the implicit corrector equation
//
//	ycor = y + h*f(t+h, ycor)
//
// by functional or Newton iteration. On corrRetry the second return value
// distinguishes a recoverable rhs failure (RhsFuncFail) from ordinary
// non-convergence (Success); on corrFatal it is the failure flag.
func (in *integ) correct(h float64) (corrResult, engine.Flag) {
	tNew := in.t + h
	copy(in.ycor, in.ypred)

	if in.iter == engine.Functional {
		for m := 0; m < maxCorrIters; m++ {
			st := in.ad.rhs(tNew, in.ycor, in.fcor)
			in.stats.RhsEvals++
			if st > 0 {
				return corrRetry, engine.RhsFuncFail
			}
			if st < 0 {
				in.report(engine.RhsFuncFail, "correct", "rhs failed at t=%g", tNew)
				return corrFatal, engine.RhsFuncFail
			}
			norm := 0.0
			for i := 0; i < in.n; i++ {
				next := in.y[i] + h*in.fcor[i]
				in.delta[i] = next - in.ycor[i]
				in.ycor[i] = next
			}
			in.stats.NonlinIters++
			norm = in.wrms(in.delta)
			if norm < convCoef {
				// One more evaluation so f matches the accepted iterate.
				st := in.ad.rhs(tNew, in.ycor, in.fcor)
				in.stats.RhsEvals++
				if st > 0 {
					return corrRetry, engine.RhsFuncFail
				}
				if st < 0 {
					return corrFatal, engine.RhsFuncFail
				}
				return corrOK, engine.Success
			}
		}
		return corrRetry, engine.Success
	}

	// Newton iteration on G(x) = x - y - h*f(tNew, x).
	gamma := h
	if in.lin.needSetup(gamma) {
		res, fatal := in.linSetup(tNew, gamma)
		if res != corrOK {
			return res, fatal
		}
	}
	for m := 0; m < maxCorrIters; m++ {
		st := in.ad.rhs(tNew, in.ycor, in.fcor)
		in.stats.RhsEvals++
		if st > 0 {
			return corrRetry, engine.RhsFuncFail
		}
		if st < 0 {
			in.report(engine.RhsFuncFail, "correct", "rhs failed at t=%g", tNew)
			return corrFatal, engine.RhsFuncFail
		}
		for i := 0; i < in.n; i++ {
			in.delta[i] = -(in.ycor[i] - in.y[i] - h*in.fcor[i])
		}
		res, fatal := in.linSolve(tNew, gamma, in.delta)
		if res != corrOK {
			return res, fatal
		}
		for i := 0; i < in.n; i++ {
			in.ycor[i] += in.delta[i]
		}
		in.stats.NonlinIters++
		if in.wrms(in.delta) < convCoef {
			st := in.ad.rhs(tNew, in.ycor, in.fcor)
			in.stats.RhsEvals++
			if st > 0 {
				return corrRetry, engine.RhsFuncFail
			}
			if st < 0 {
				return corrFatal, engine.RhsFuncFail
			}
			return corrOK, engine.Success
		}
	}
	// Non-convergence with a stale Jacobian: force a refresh and let the
	// caller retry at the same step size once before shrinking.
	if !in.lin.jacCurrent {
		in.lin.forceSetup = true
	}
	return corrRetry, engine.Success
}
