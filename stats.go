package odebind

import (
	"github.com/san-kum/odebind/engine"
)

// IntegratorStats is the cumulative counter record of one session. All
// fields are snapshots; reading them has no effect on solver state.
type IntegratorStats struct {
	Steps            int64
	RhsEvals         int64
	LinSolverSetups  int64
	ErrTestFailures  int64
	LastOrder        int
	NextOrder        int
	InitialStepSize  float64
	LastStepSize     float64
	NextStepSize     float64
	InternalTime     float64
	RootEvals        int64
	JacEvals         int64
	PrecSetups       int64
	PrecSolves       int64
	JacTimesEvals    int64
	NonlinIters      int64
	NonlinConvFails  int64
}

func statsFromEngine(st engine.Stats) IntegratorStats {
	return IntegratorStats{
		Steps:           st.Steps,
		RhsEvals:        st.RhsEvals,
		LinSolverSetups: st.LinSolverSetups,
		ErrTestFailures: st.ErrTestFailures,
		LastOrder:       st.LastInternalOrder,
		NextOrder:       st.NextInternalOrder,
		InitialStepSize: st.InitialStepSize,
		LastStepSize:    st.LastStepSize,
		NextStepSize:    st.NextStepSize,
		InternalTime:    st.InternalTime,
		RootEvals:       st.RootEvals,
		JacEvals:        st.JacEvals,
		PrecSetups:      st.PrecSetups,
		PrecSolves:      st.PrecSolves,
		JacTimesEvals:   st.JtimesEvals,
		NonlinIters:     st.NonlinIters,
		NonlinConvFails: st.NonlinConvFailures,
	}
}
