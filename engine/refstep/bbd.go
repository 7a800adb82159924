package refstep

import (
	"math"

	"github.com/san-kum/odebind/engine"
)

// bbdData approximates the iteration matrix with a band matrix built by
// difference quotients of the user's local coupling function. The
// communication callback, when present, runs once before each sweep.
type bbdData struct {
	nlocal int
	bw     engine.Bandwidths
	dqrely float64

	pm           *engine.BandMatrix // factored I - gamma*Jlocal
	gbase, gpert []float64
}

func (in *integ) bbdInit(nlocal int, bw engine.Bandwidths, dqrely float64) engine.Flag {
	if in.lin.kind != linKrylov {
		return engine.IllInput
	}
	if nlocal != in.n {
		return engine.IllInput
	}
	clamp := func(v int) int {
		if v < 0 {
			return 0
		}
		if v >= nlocal {
			return nlocal - 1
		}
		return v
	}
	bw.MuDQ, bw.MlDQ = clamp(bw.MuDQ), clamp(bw.MlDQ)
	bw.MuKeep, bw.MlKeep = clamp(bw.MuKeep), clamp(bw.MlKeep)
	if dqrely <= 0 {
		dqrely = math.Sqrt(unitRoundoff)
	}
	in.lin.bbd = &bbdData{
		nlocal: nlocal,
		bw:     bw,
		dqrely: dqrely,
		pm:     engine.NewBandMatrix(nlocal, bw.MuKeep, bw.MlKeep),
		gbase:  make([]float64, nlocal),
		gpert:  make([]float64, nlocal),
	}
	in.lin.havePrecData = false
	in.lin.jacCurrent = false
	return engine.Success
}

func (in *integ) bbdReInit(mudq, mldq int, dqrely float64) engine.Flag {
	d := in.lin.bbd
	if d == nil {
		return engine.IllInput
	}
	if mudq >= 0 {
		d.bw.MuDQ = mudq
	}
	if mldq >= 0 {
		d.bw.MlDQ = mldq
	}
	if dqrely > 0 {
		d.dqrely = dqrely
	} else {
		d.dqrely = math.Sqrt(unitRoundoff)
	}
	in.lin.jacCurrent = false
	return engine.Success
}

// setupBBD rebuilds and factors the band preconditioner at the predicted
// state. Columns more than a difference-quotient bandwidth apart are
// perturbed together, one local evaluation per group.
func (in *integ) setupBBD(t, gamma float64) (corrResult, engine.Flag) {
	d := in.lin.bbd
	if in.ad.bbdLocal == nil {
		in.report(engine.LinSetupFail, "setupBBD", "no local function registered")
		return corrFatal, engine.LinSetupFail
	}
	if in.ad.bbdComm != nil {
		if st := in.ad.bbdComm(t, in.ypred); st != 0 {
			if st > 0 {
				return corrRetry, engine.Success
			}
			in.report(engine.LinSetupFail, "setupBBD", "communication function failed at t=%g", t)
			return corrFatal, engine.LinSetupFail
		}
	}
	if st := in.ad.bbdLocal(t, in.ypred, d.gbase); st != 0 {
		if st > 0 {
			return corrRetry, engine.Success
		}
		return corrFatal, engine.LinSetupFail
	}

	inc := func(j int) float64 {
		v := d.dqrely * math.Abs(in.ypred[j])
		if floor := d.dqrely / in.ewt[j]; v < floor {
			v = floor
		}
		return v
	}

	width := d.bw.MuDQ + d.bw.MlDQ + 1
	d.pm.Zero()
	incs := make([]float64, d.nlocal)
	for group := 0; group < width && group < d.nlocal; group++ {
		for col := group; col < d.nlocal; col += width {
			incs[col] = inc(col)
			in.ypred[col] += incs[col]
		}
		st := in.ad.bbdLocal(t, in.ypred, d.gpert)
		for col := group; col < d.nlocal; col += width {
			in.ypred[col] -= incs[col]
		}
		if st != 0 {
			if st > 0 {
				return corrRetry, engine.Success
			}
			return corrFatal, engine.LinSetupFail
		}
		for col := group; col < d.nlocal; col += width {
			h := incs[col]
			lo := col - d.bw.MuKeep
			if lo < 0 {
				lo = 0
			}
			hi := col + d.bw.MlKeep
			if hi >= d.nlocal {
				hi = d.nlocal - 1
			}
			for row := lo; row <= hi; row++ {
				jv := (d.gpert[row] - d.gbase[row]) / h
				v := -gamma * jv
				if row == col {
					v += 1
				}
				d.pm.Set(row, col, v)
			}
		}
	}
	in.stats.PrecSetups++
	if !bandLU(d.pm) {
		return corrRetry, engine.Success
	}
	in.lin.havePrecData = true
	return corrOK, engine.Success
}
