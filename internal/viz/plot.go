package viz

import (
	"fmt"
	"strings"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/odebind"
)

const (
	plotWidth  = 80
	plotHeight = 10
	maxPlots   = 4
)

// PlotTrajectory renders each solution component against time as an ascii
// graph, up to maxPlots components.
func PlotTrajectory(times []float64, states [][]float64) string {
	if len(states) == 0 {
		return "no data"
	}
	numVars := len(states[0])
	if numVars > maxPlots {
		numVars = maxPlots
	}

	var b strings.Builder
	for v := 0; v < numVars; v++ {
		data := make([]float64, len(states))
		for i := range states {
			if v < len(states[i]) {
				data[i] = states[i][v]
			}
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(plotHeight),
			asciigraph.Width(plotWidth),
			asciigraph.Caption(fmt.Sprintf("y%d vs time", v)),
		)
		b.WriteString(graphStyle.Render(graph))
		b.WriteString("\n\n")
	}
	return b.String()
}

// StatsTable renders the integrator counters as a labeled column.
func StatsTable(st odebind.IntegratorStats) string {
	row := func(label, value string) string {
		return labelStyle.Render(label) + valueStyle.Render(value) + "\n"
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render("INTEGRATOR STATS") + "\n")
	b.WriteString(row("steps", fmt.Sprintf("%d", st.Steps)))
	b.WriteString(row("rhs evals", fmt.Sprintf("%d", st.RhsEvals)))
	b.WriteString(row("lin setups", fmt.Sprintf("%d", st.LinSolverSetups)))
	b.WriteString(row("jac evals", fmt.Sprintf("%d", st.JacEvals)))
	b.WriteString(row("err test fails", fmt.Sprintf("%d", st.ErrTestFailures)))
	b.WriteString(row("nonlin iters", fmt.Sprintf("%d", st.NonlinIters)))
	b.WriteString(row("nonlin fails", fmt.Sprintf("%d", st.NonlinConvFails)))
	b.WriteString(row("last step", fmt.Sprintf("%.3e", st.LastStepSize)))
	b.WriteString(row("internal time", fmt.Sprintf("%.6f", st.InternalTime)))
	if st.PrecSolves > 0 || st.JacTimesEvals > 0 {
		b.WriteString(row("prec setups", fmt.Sprintf("%d", st.PrecSetups)))
		b.WriteString(row("prec solves", fmt.Sprintf("%d", st.PrecSolves)))
		b.WriteString(row("jtimes evals", fmt.Sprintf("%d", st.JacTimesEvals)))
	}
	return statsStyle.Render(b.String())
}
