package refstep

import (
	"math"

	"github.com/san-kum/odebind/engine"
)

type linKind int

const (
	linNone linKind = iota
	linDense
	linBand
	linDiag
	linKrylov
)

// linState holds the attached linear-solver variant and its factorization
// workspace. Attaching a new variant resets the whole struct.
type linState struct {
	kind linKind

	jacCurrent      bool
	forceSetup      bool
	gammaSaved      float64
	stepsSinceSetup int

	// dense
	dm  *engine.DenseMatrix // iteration matrix M = I - gamma*J
	dj  *engine.DenseMatrix // saved Jacobian
	piv []int

	// band
	mu, ml int
	bm     *engine.BandMatrix
	bj     *engine.BandMatrix

	// diag
	dscale []float64

	// krylov
	method       engine.KrylovMethod
	side         engine.PrecSide
	maxl         int
	havePrecData bool
	fsav         []float64 // f at the setup point, for difference quotients
	vtmp, ztmp   []float64

	bbd *bbdData
}

func (ls *linState) reset(kind linKind) {
	*ls = linState{kind: kind}
}

func (ls *linState) needSetup(gamma float64) bool {
	switch ls.kind {
	case linNone:
		return false
	}
	if ls.forceSetup || !ls.jacCurrent {
		return true
	}
	if ls.stepsSinceSetup >= maxStepsBetweenSetups {
		return true
	}
	if ls.gammaSaved != 0 && math.Abs(gamma/ls.gammaSaved-1) > gammaChangeLimit {
		return true
	}
	return false
}

func (in *integ) attachDense(n int) engine.Flag {
	if n != in.n {
		return engine.IllInput
	}
	in.lin.reset(linDense)
	in.lin.dm = engine.NewDenseMatrix(n)
	in.lin.dj = engine.NewDenseMatrix(n)
	in.lin.piv = make([]int, n)
	return engine.Success
}

func (in *integ) attachBand(n, mupper, mlower int) engine.Flag {
	if n != in.n || mupper < 0 || mlower < 0 || mupper >= n || mlower >= n {
		return engine.IllInput
	}
	in.lin.reset(linBand)
	in.lin.mu = mupper
	in.lin.ml = mlower
	in.lin.bm = engine.NewBandMatrix(n, mupper, mlower)
	in.lin.bj = engine.NewBandMatrix(n, mupper, mlower)
	return engine.Success
}

func (in *integ) attachDiag() engine.Flag {
	in.lin.reset(linDiag)
	in.lin.dscale = make([]float64, in.n)
	return engine.Success
}

func (in *integ) attachKrylov(method engine.KrylovMethod, side engine.PrecSide, maxl int) engine.Flag {
	if maxl <= 0 {
		maxl = 5
	}
	if maxl > in.n {
		maxl = in.n
	}
	in.lin.reset(linKrylov)
	in.lin.method = method
	in.lin.side = side
	in.lin.maxl = maxl
	in.lin.fsav = make([]float64, in.n)
	in.lin.vtmp = make([]float64, in.n)
	in.lin.ztmp = make([]float64, in.n)
	return engine.Success
}

// srur is the square root of unit roundoff, the relative increment used by
// all internal difference quotients.
var srur = math.Sqrt(unitRoundoff)

func (in *integ) fdIncrement(j int) float64 {
	inc := srur * math.Abs(in.ypred[j])
	if floor := srur / in.ewt[j]; inc < floor {
		inc = floor
	}
	return inc
}

// linSetup refreshes the iteration matrix M = I - gamma*J (direct variants)
// or the preconditioner data (Krylov) at the predicted state.
func (in *integ) linSetup(t, gamma float64) (corrResult, engine.Flag) {
	// All variants difference against f at the predicted state.
	st := in.ad.rhs(t, in.ypred, in.fcor)
	in.stats.RhsEvals++
	if st > 0 {
		return corrRetry, engine.RhsFuncFail
	}
	if st < 0 {
		return corrFatal, engine.RhsFuncFail
	}
	in.stats.LinSolverSetups++

	switch in.lin.kind {
	case linDense:
		if res, fl := in.setupDense(t, gamma); res != corrOK {
			return res, fl
		}
	case linBand:
		if res, fl := in.setupBand(t, gamma); res != corrOK {
			return res, fl
		}
	case linDiag:
		if res, fl := in.setupDiag(t, gamma); res != corrOK {
			return res, fl
		}
	case linKrylov:
		copy(in.lin.fsav, in.fcor)
		if in.lin.bbd != nil {
			if res, fl := in.setupBBD(t, gamma); res != corrOK {
				return res, fl
			}
		} else if in.ad.psetup != nil {
			jok := in.lin.havePrecData && !in.lin.forceSetup
			jcur, st := in.ad.psetup(t, in.ypred, in.fcor, jok, gamma)
			in.stats.PrecSetups++
			if st > 0 {
				return corrRetry, engine.Success
			}
			if st < 0 {
				in.report(engine.LinSetupFail, "linSetup", "preconditioner setup failed at t=%g", t)
				return corrFatal, engine.LinSetupFail
			}
			in.lin.havePrecData = true
			_ = jcur
		}
	}
	in.lin.jacCurrent = true
	in.lin.forceSetup = false
	in.lin.gammaSaved = gamma
	in.lin.stepsSinceSetup = 0
	return corrOK, engine.Success
}

func (in *integ) setupDense(t, gamma float64) (corrResult, engine.Flag) {
	j := in.lin.dj
	if in.ad.jacDense != nil {
		j.Zero()
		st := in.ad.jacDense(t, in.ypred, in.fcor, j)
		in.stats.JacEvals++
		if st > 0 {
			return corrRetry, engine.Success
		}
		if st < 0 {
			in.report(engine.LinSetupFail, "setupDense", "user Jacobian failed at t=%g", t)
			return corrFatal, engine.LinSetupFail
		}
	} else {
		// Difference-quotient Jacobian, one rhs evaluation per column.
		for col := 0; col < in.n; col++ {
			inc := in.fdIncrement(col)
			saved := in.ypred[col]
			in.ypred[col] = saved + inc
			st := in.ad.rhs(t, in.ypred, in.delta)
			in.stats.RhsEvals++
			in.ypred[col] = saved
			if st > 0 {
				return corrRetry, engine.RhsFuncFail
			}
			if st < 0 {
				return corrFatal, engine.RhsFuncFail
			}
			c := j.Col(col)
			for row := 0; row < in.n; row++ {
				c[row] = (in.delta[row] - in.fcor[row]) / inc
			}
		}
		in.stats.JacEvals++
	}
	m := in.lin.dm
	for col := 0; col < in.n; col++ {
		src, dst := j.Col(col), m.Col(col)
		for row := 0; row < in.n; row++ {
			dst[row] = -gamma * src[row]
		}
		dst[col] += 1
	}
	if !denseLU(m, in.lin.piv) {
		return corrRetry, engine.Success
	}
	return corrOK, engine.Success
}

func (in *integ) setupBand(t, gamma float64) (corrResult, engine.Flag) {
	j := in.lin.bj
	mu, ml := in.lin.mu, in.lin.ml
	if in.ad.jacBand != nil {
		j.Zero()
		st := in.ad.jacBand(mu, ml, t, in.ypred, in.fcor, j)
		in.stats.JacEvals++
		if st > 0 {
			return corrRetry, engine.Success
		}
		if st < 0 {
			in.report(engine.LinSetupFail, "setupBand", "user band Jacobian failed at t=%g", t)
			return corrFatal, engine.LinSetupFail
		}
	} else {
		// Columns a bandwidth apart never share rows, so they can be
		// perturbed in one sweep.
		width := mu + ml + 1
		j.Zero()
		for group := 0; group < width && group < in.n; group++ {
			saved := make(map[int]float64)
			for col := group; col < in.n; col += width {
				saved[col] = in.ypred[col]
				in.ypred[col] += in.fdIncrement(col)
			}
			st := in.ad.rhs(t, in.ypred, in.delta)
			in.stats.RhsEvals++
			for col, v := range saved {
				in.ypred[col] = v
			}
			if st > 0 {
				return corrRetry, engine.RhsFuncFail
			}
			if st < 0 {
				return corrFatal, engine.RhsFuncFail
			}
			for col := group; col < in.n; col += width {
				inc := in.fdIncrement(col)
				lo := col - mu
				if lo < 0 {
					lo = 0
				}
				hi := col + ml
				if hi >= in.n {
					hi = in.n - 1
				}
				for row := lo; row <= hi; row++ {
					j.Set(row, col, (in.delta[row]-in.fcor[row])/inc)
				}
			}
		}
		in.stats.JacEvals++
	}
	m := in.lin.bm
	m.Zero()
	for col := 0; col < in.n; col++ {
		lo := col - mu
		if lo < 0 {
			lo = 0
		}
		hi := col + ml
		if hi >= in.n {
			hi = in.n - 1
		}
		for row := lo; row <= hi; row++ {
			v := -gamma * j.At(row, col)
			if row == col {
				v += 1
			}
			m.Set(row, col, v)
		}
	}
	if !bandLU(m) {
		return corrRetry, engine.Success
	}
	return corrOK, engine.Success
}

func (in *integ) setupDiag(t, gamma float64) (corrResult, engine.Flag) {
	// Single-evaluation diagonal estimate: perturb every component at once
	// and attribute the response of f_i entirely to y_i.
	incs := make([]float64, in.n)
	for i := 0; i < in.n; i++ {
		incs[i] = in.fdIncrement(i)
		in.ypred[i] += incs[i]
	}
	st := in.ad.rhs(t, in.ypred, in.delta)
	in.stats.RhsEvals++
	for i := 0; i < in.n; i++ {
		in.ypred[i] -= incs[i]
	}
	if st > 0 {
		return corrRetry, engine.RhsFuncFail
	}
	if st < 0 {
		return corrFatal, engine.RhsFuncFail
	}
	for i := 0; i < in.n; i++ {
		jd := (in.delta[i] - in.fcor[i]) / incs[i]
		d := 1 - gamma*jd
		if d == 0 {
			return corrRetry, engine.Success
		}
		in.lin.dscale[i] = 1 / d
	}
	return corrOK, engine.Success
}

// linSolve solves M*x = b in place, where b holds the Newton residual on
// entry and the correction on return.
func (in *integ) linSolve(t, gamma float64, b []float64) (corrResult, engine.Flag) {
	switch in.lin.kind {
	case linDense:
		denseSolve(in.lin.dm, in.lin.piv, b)
		return corrOK, engine.Success
	case linBand:
		bandSolve(in.lin.bm, b)
		return corrOK, engine.Success
	case linDiag:
		for i := range b {
			b[i] *= in.lin.dscale[i]
		}
		return corrOK, engine.Success
	case linKrylov:
		return in.krylovSolve(t, gamma, b)
	}
	in.report(engine.LinInitFail, "linSolve", "Newton iteration requires an attached linear solver")
	return corrFatal, engine.LinInitFail
}

// jtimes applies J*v into jv, via the user callback or a difference
// quotient against the saved setup-point derivative.
func (in *integ) jtimes(t float64, v, jv []float64) (corrResult, engine.Flag) {
	if in.ad.jtimes != nil {
		st := in.ad.jtimes(v, jv, t, in.ypred, in.lin.fsav)
		in.stats.JtimesEvals++
		if st > 0 {
			return corrRetry, engine.Success
		}
		if st < 0 {
			in.report(engine.LinSolveFail, "jtimes", "Jacobian-vector product failed at t=%g", t)
			return corrFatal, engine.LinSolveFail
		}
		return corrOK, engine.Success
	}
	vnorm := in.wrms(v)
	if vnorm == 0 {
		for i := range jv {
			jv[i] = 0
		}
		return corrOK, engine.Success
	}
	sig := 1 / vnorm
	for i := 0; i < in.n; i++ {
		in.lin.vtmp[i] = in.ypred[i] + sig*v[i]
	}
	st := in.ad.rhs(t, in.lin.vtmp, jv)
	in.stats.RhsEvals++
	in.stats.JtimesEvals++
	if st > 0 {
		return corrRetry, engine.RhsFuncFail
	}
	if st < 0 {
		return corrFatal, engine.RhsFuncFail
	}
	for i := 0; i < in.n; i++ {
		jv[i] = (jv[i] - in.lin.fsav[i]) / sig
	}
	return corrOK, engine.Success
}

// applyM computes z = (I - gamma*J)*v.
func (in *integ) applyM(t, gamma float64, v, z []float64) (corrResult, engine.Flag) {
	if res, fl := in.jtimes(t, v, z); res != corrOK {
		return res, fl
	}
	for i := 0; i < in.n; i++ {
		z[i] = v[i] - gamma*z[i]
	}
	return corrOK, engine.Success
}

// applyPrec solves P*z = r through the active preconditioner. Without one,
// z = r.
func (in *integ) applyPrec(t, gamma float64, r, z []float64, left bool) (corrResult, engine.Flag) {
	if in.lin.bbd != nil {
		copy(z, r)
		bandSolve(in.lin.bbd.pm, z)
		in.stats.PrecSolves++
		return corrOK, engine.Success
	}
	if in.ad.psolve != nil {
		delta := 0.05 * convCoef
		st := in.ad.psolve(t, in.ypred, in.lin.fsav, r, z, gamma, delta, left)
		in.stats.PrecSolves++
		if st > 0 {
			return corrRetry, engine.Success
		}
		if st < 0 {
			in.report(engine.LinSolveFail, "applyPrec", "preconditioner solve failed at t=%g", t)
			return corrFatal, engine.LinSolveFail
		}
		return corrOK, engine.Success
	}
	copy(z, r)
	return corrOK, engine.Success
}

// krylovSolve runs (preconditioned) GMRES on M*x = b. The same Arnoldi loop
// serves all method selections; maxl bounds the Krylov dimension.
func (in *integ) krylovSolve(t, gamma float64, b []float64) (corrResult, engine.Flag) {
	n := in.n
	maxl := in.lin.maxl
	left := in.lin.side == engine.PrecLeft || in.lin.side == engine.PrecBoth
	right := in.lin.side == engine.PrecRight
	precOn := in.lin.bbd != nil || in.ad.psolve != nil

	// Left preconditioning transforms the system before the iteration.
	rhs := make([]float64, n)
	copy(rhs, b)
	if precOn && left {
		if res, fl := in.applyPrec(t, gamma, b, rhs, true); res != corrOK {
			return res, fl
		}
	}

	beta := in.wrms(rhs)
	if beta == 0 {
		for i := range b {
			b[i] = 0
		}
		return corrOK, engine.Success
	}
	tol := 0.05 * convCoef

	v := make([][]float64, maxl+1)
	for i := range v {
		v[i] = make([]float64, n)
	}
	h := make([][]float64, maxl+1)
	for i := range h {
		h[i] = make([]float64, maxl)
	}
	cs := make([]float64, maxl)
	sn := make([]float64, maxl)
	g := make([]float64, maxl+1)

	norm2 := func(x []float64) float64 {
		s := 0.0
		for _, e := range x {
			s += e * e
		}
		return math.Sqrt(s)
	}

	bnorm := norm2(rhs)
	for i := 0; i < n; i++ {
		v[0][i] = rhs[i] / bnorm
	}
	g[0] = bnorm

	w := make([]float64, n)
	z := make([]float64, n)
	k := 0
	for ; k < maxl; k++ {
		// w = M * (P_r^{-1}) v_k
		src := v[k]
		if precOn && right {
			if res, fl := in.applyPrec(t, gamma, src, z, false); res != corrOK {
				return res, fl
			}
			src = z
		}
		if res, fl := in.applyM(t, gamma, src, w); res != corrOK {
			return res, fl
		}
		if precOn && left {
			copy(z, w)
			if res, fl := in.applyPrec(t, gamma, z, w, true); res != corrOK {
				return res, fl
			}
		}
		for j := 0; j <= k; j++ {
			h[j][k] = dot(w, v[j])
			axpy(w, v[j], -h[j][k])
		}
		h[k+1][k] = norm2(w)
		if h[k+1][k] != 0 {
			for i := 0; i < n; i++ {
				v[k+1][i] = w[i] / h[k+1][k]
			}
		}
		// Givens rotations keep the least-squares residual current.
		for j := 0; j < k; j++ {
			tmp := cs[j]*h[j][k] + sn[j]*h[j+1][k]
			h[j+1][k] = -sn[j]*h[j][k] + cs[j]*h[j+1][k]
			h[j][k] = tmp
		}
		denom := math.Hypot(h[k][k], h[k+1][k])
		if denom == 0 {
			k++
			break
		}
		cs[k] = h[k][k] / denom
		sn[k] = h[k+1][k] / denom
		h[k][k] = denom
		h[k+1][k] = 0
		g[k+1] = -sn[k] * g[k]
		g[k] = cs[k] * g[k]
		if math.Abs(g[k+1])/bnorm*beta < tol || h[k+1][k] == 0 {
			k++
			break
		}
	}
	if k == 0 {
		return corrRetry, engine.Success
	}
	// Back-substitute for the Krylov coefficients.
	ycoef := make([]float64, k)
	for i := k - 1; i >= 0; i-- {
		s := g[i]
		for j := i + 1; j < k; j++ {
			s -= h[i][j] * ycoef[j]
		}
		if h[i][i] == 0 {
			return corrRetry, engine.Success
		}
		ycoef[i] = s / h[i][i]
	}
	for i := 0; i < n; i++ {
		w[i] = 0
	}
	for j := 0; j < k; j++ {
		axpy(w, v[j], ycoef[j])
	}
	if precOn && right {
		if res, fl := in.applyPrec(t, gamma, w, b, false); res != corrOK {
			return res, fl
		}
	} else {
		copy(b, w)
	}
	return corrOK, engine.Success
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func axpy(dst, src []float64, alpha float64) {
	for i := range dst {
		dst[i] += alpha * src[i]
	}
}

// denseLU factors m in place with partial pivoting. Returns false when the
// matrix is singular to working precision.
func denseLU(m *engine.DenseMatrix, piv []int) bool {
	n := m.N
	for col := 0; col < n; col++ {
		// pivot search
		p := col
		max := math.Abs(m.At(col, col))
		for row := col + 1; row < n; row++ {
			if a := math.Abs(m.At(row, col)); a > max {
				max = a
				p = row
			}
		}
		if max == 0 {
			return false
		}
		piv[col] = p
		if p != col {
			for j := 0; j < n; j++ {
				a, b := m.At(col, j), m.At(p, j)
				m.Set(col, j, b)
				m.Set(p, j, a)
			}
		}
		d := m.At(col, col)
		for row := col + 1; row < n; row++ {
			l := m.At(row, col) / d
			m.Set(row, col, l)
			if l != 0 {
				for j := col + 1; j < n; j++ {
					m.Add(row, j, -l*m.At(col, j))
				}
			}
		}
	}
	return true
}

func denseSolve(m *engine.DenseMatrix, piv []int, b []float64) {
	n := m.N
	for col := 0; col < n; col++ {
		if p := piv[col]; p != col {
			b[col], b[p] = b[p], b[col]
		}
		for row := col + 1; row < n; row++ {
			b[row] -= m.At(row, col) * b[col]
		}
	}
	for col := n - 1; col >= 0; col-- {
		b[col] /= m.At(col, col)
		for row := 0; row < col; row++ {
			b[row] -= m.At(row, col) * b[col]
		}
	}
}

// bandLU factors a band matrix in place without pivoting. The Newton
// iteration matrix I - gamma*J is strongly diagonal for the step sizes the
// error test admits, so pivoting is not needed for stability here.
func bandLU(m *engine.BandMatrix) bool {
	n := m.N
	for col := 0; col < n; col++ {
		d := m.At(col, col)
		if d == 0 {
			return false
		}
		hi := col + m.Ml
		if hi >= n {
			hi = n - 1
		}
		for row := col + 1; row <= hi; row++ {
			l := m.At(row, col) / d
			m.Set(row, col, l)
			if l != 0 {
				jhi := col + m.Mu
				if jhi >= n {
					jhi = n - 1
				}
				for j := col + 1; j <= jhi; j++ {
					if m.InBand(row, j) {
						m.Add(row, j, -l*m.At(col, j))
					}
				}
			}
		}
	}
	return true
}

func bandSolve(m *engine.BandMatrix, b []float64) {
	n := m.N
	for col := 0; col < n; col++ {
		hi := col + m.Ml
		if hi >= n {
			hi = n - 1
		}
		for row := col + 1; row <= hi; row++ {
			b[row] -= m.At(row, col) * b[col]
		}
	}
	for col := n - 1; col >= 0; col-- {
		b[col] /= m.At(col, col)
		lo := col - m.Mu
		if lo < 0 {
			lo = 0
		}
		for row := lo; row < col; row++ {
			b[row] -= m.At(row, col) * b[col]
		}
	}
}
