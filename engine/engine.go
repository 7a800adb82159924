package engine

// Token is the opaque user-data value stored in the engine and passed back
// to every callback. The session layer uses it to resolve the owning
// session; the engine never interprets it.
type Token uint64

// StepMode selects how Advance returns control.
type StepMode int

const (
	// Normal integrates until the requested output time is reached,
	// interpolating the returned state to exactly that time.
	Normal StepMode = iota
	// OneStep returns after a single internal step.
	OneStep
)

// LMM selects the linear multistep method family.
type LMM int

const (
	Adams LMM = iota
	BDF
)

// IterKind selects the nonlinear iteration used on each step.
type IterKind int

const (
	// Functional is fixed-point iteration; no linear solver is required.
	Functional IterKind = iota
	// Newton iteration solves (I - gamma*J) through the attached linear
	// solver variant.
	Newton
)

// KrylovMethod selects the iterative linear solver. The selection is
// advisory: an engine without a dedicated BiCGStab or TFQMR iteration
// serves those selections with its GMRES loop, as refstep does.
type KrylovMethod int

const (
	GMRES KrylovMethod = iota
	BiCGStab
	TFQMR
)

// PrecSide is the preconditioning type for Krylov methods.
type PrecSide int

const (
	PrecNone PrecSide = iota
	PrecLeft
	PrecRight
	PrecBoth
)

// Flag is an engine status code. Values follow the engine header contract:
// zero and small positive values are informational returns from Advance,
// negative values are failures.
type Flag int

const (
	Success     Flag = 0
	TstopReturn Flag = 1
	RootReturn  Flag = 2

	TooMuchWork     Flag = -1
	TooMuchAcc      Flag = -2
	ErrFailure      Flag = -3
	ConvFailure     Flag = -4
	LinInitFail     Flag = -5
	LinSetupFail    Flag = -6
	LinSolveFail    Flag = -7
	RhsFuncFail     Flag = -8
	FirstRhsErr     Flag = -9
	RepeatedRhsErr  Flag = -10
	UnrecRhsErr     Flag = -11
	RootFuncFail    Flag = -12
	MemFail         Flag = -20
	MemNull         Flag = -21
	IllInput        Flag = -22
	BadK            Flag = -24
	BadT            Flag = -25
	BadDky          Flag = -26
	TooClose        Flag = -27
	NoAdjoint       Flag = -101
	BadWhich        Flag = -102
	NoForward       Flag = -103
)

// Name returns the symbolic name of a flag for diagnostics.
func (f Flag) Name() string {
	switch f {
	case Success:
		return "SUCCESS"
	case TstopReturn:
		return "TSTOP_RETURN"
	case RootReturn:
		return "ROOT_RETURN"
	case TooMuchWork:
		return "TOO_MUCH_WORK"
	case TooMuchAcc:
		return "TOO_MUCH_ACC"
	case ErrFailure:
		return "ERR_FAILURE"
	case ConvFailure:
		return "CONV_FAILURE"
	case LinInitFail:
		return "LINIT_FAIL"
	case LinSetupFail:
		return "LSETUP_FAIL"
	case LinSolveFail:
		return "LSOLVE_FAIL"
	case RhsFuncFail:
		return "RHSFUNC_FAIL"
	case FirstRhsErr:
		return "FIRST_RHSFUNC_ERR"
	case RepeatedRhsErr:
		return "REPTD_RHSFUNC_ERR"
	case UnrecRhsErr:
		return "UNREC_RHSFUNC_ERR"
	case RootFuncFail:
		return "RTFUNC_FAIL"
	case MemFail:
		return "MEM_FAIL"
	case MemNull:
		return "MEM_NULL"
	case IllInput:
		return "ILL_INPUT"
	case BadK:
		return "BAD_K"
	case BadT:
		return "BAD_T"
	case BadDky:
		return "BAD_DKY"
	case TooClose:
		return "TOO_CLOSE"
	case NoAdjoint:
		return "NO_ADJ"
	case BadWhich:
		return "NO_BCK"
	case NoForward:
		return "NO_FWD"
	default:
		return "UNKNOWN"
	}
}

// Bandwidths describes the band structure used by banded direct solvers and
// the band-block-diagonal preconditioner. MuDQ/MlDQ bound the difference
// quotient sweep; MuKeep/MlKeep bound the retained band.
type Bandwidths struct {
	MuDQ   int
	MlDQ   int
	MuKeep int
	MlKeep int
}

// Stats is the engine's cumulative counter record. All fields are pure
// queries with no effect on solver state.
type Stats struct {
	Steps              int64
	RhsEvals           int64
	LinSolverSetups    int64
	ErrTestFailures    int64
	LastInternalOrder  int
	NextInternalOrder  int
	InitialStepSize    float64
	LastStepSize       float64
	NextStepSize       float64
	InternalTime       float64
	RootEvals          int64
	JacEvals           int64
	PrecSetups         int64
	PrecSolves         int64
	JtimesEvals        int64
	NonlinIters        int64
	NonlinConvFailures int64
}

// Engine is the solver collaborator. All entry points return a Flag; the
// session layer is responsible for translating flags into host errors and
// must never call into a destroyed engine.
//
// Register accepts one of the typed callback functions from this package;
// registering a value of the wrong type for the kind yields IllInput.
// Clear removes a previously registered callback and is a no-op when none
// is registered.
type Engine interface {
	Init(lmm LMM, iter IterKind, t0 float64, y0 []float64, nroots int) Flag
	ReInit(t0 float64, y0 []float64) Flag
	Destroy()

	SetUserData(tok Token)
	Register(kind CallbackKind, fn any) Flag
	Clear(kind CallbackKind)

	SetTolerances(reltol float64, abstol []float64) Flag
	SetStopTime(t float64) Flag
	ClearStopTime()
	SetMaxSteps(n int64) Flag
	SetErrFile(path string) Flag

	// SetIterKind replaces the nonlinear iteration selected at Init, so a
	// problem created with Functional iteration can take a linear solver
	// attached later.
	SetIterKind(iter IterKind) Flag

	AttachDense(n int) Flag
	AttachBand(n, mupper, mlower int) Flag
	AttachDiag() Flag
	AttachKrylov(method KrylovMethod, side PrecSide, maxl int) Flag
	BBDInit(nlocal int, bw Bandwidths, dqrely float64) Flag
	BBDReInit(mudq, mldq int, dqrely float64) Flag

	Advance(tout float64, yout []float64, mode StepMode) (tret float64, flag Flag)
	GetDky(t float64, k int, dky []float64) Flag
	RootInfo(found []int) Flag
	Stats() Stats

	// Adjoint extension. AdjInit enables checkpointing on subsequent
	// forward advances; CreateB allocates a backward problem addressed by
	// the returned index in every *B call.
	AdjInit(maxCheckpoints int) Flag
	AdvanceF(tout float64, yout []float64, mode StepMode) (tret float64, ncheck int, flag Flag)
	CreateB() (which int, flag Flag)
	RegisterB(which int, kind CallbackKind, fn any) Flag
	ClearB(which int, kind CallbackKind)
	InitB(which int, lmm LMM, iter IterKind, tB0 float64, yB0 []float64) Flag
	ReInitB(which int, tB0 float64, yB0 []float64) Flag
	SetTolerancesB(which int, reltol float64, abstol []float64) Flag
	AttachDenseB(which, n int) Flag
	AttachBandB(which, n, mupper, mlower int) Flag
	AttachDiagB(which int) Flag
	AttachKrylovB(which int, method KrylovMethod, side PrecSide, maxl int) Flag
	BBDInitB(which, nlocal int, bw Bandwidths, dqrely float64) Flag
	AdvanceB(tBout float64) Flag
	GetB(which int, yB []float64) (t float64, flag Flag)
	StatsB(which int) (Stats, Flag)
}
