package viz

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/odebind"
)

const (
	historyCapacity = 600
	stepsPerTick    = 4
)

type TickMsg time.Time

// LiveModel drives a session one internal step at a time and renders the
// solution as it evolves.
type LiveModel struct {
	sess    *odebind.Session
	name    string
	tEnd    float64
	y       []float64
	t       float64
	history [][]float64
	running bool
	done    bool
	err     error
}

func NewLiveModel(sess *odebind.Session, name string, tEnd float64) LiveModel {
	return LiveModel{
		sess:    sess,
		name:    name,
		tEnd:    tEnd,
		y:       make([]float64, sess.N()),
		history: make([][]float64, 0, historyCapacity),
		running: true,
	}
}

func (m LiveModel) Init() tea.Cmd {
	return tea.Tick(time.Second/30, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m LiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		}
	case TickMsg:
		if m.running && !m.done && m.err == nil {
			m.advance()
		}
		return m, tea.Tick(time.Second/30, func(t time.Time) tea.Msg { return TickMsg(t) })
	}
	return m, nil
}

func (m *LiveModel) advance() {
	for i := 0; i < stepsPerTick; i++ {
		t, _, err := m.sess.Step(m.tEnd, m.y)
		if err != nil {
			m.err = err
			return
		}
		m.t = t
		snap := append([]float64(nil), m.y...)
		m.history = append(m.history, snap)
		if len(m.history) > historyCapacity {
			m.history = m.history[1:]
		}
		if t >= m.tEnd {
			m.done = true
			return
		}
	}
}

func (m LiveModel) View() string {
	var left strings.Builder
	left.WriteString(headerStyle.Render(strings.ToUpper(m.name)) + "\n")

	switch {
	case m.err != nil:
		left.WriteString(errStyle.Render("FAILED: "+m.err.Error()) + "\n")
	case m.done:
		left.WriteString("DONE\n")
	case m.running:
		left.WriteString("RUNNING\n")
	default:
		left.WriteString("PAUSED\n")
	}

	numVars := len(m.y)
	if numVars > 2 {
		numVars = 2
	}
	if len(m.history) > 1 {
		for v := 0; v < numVars; v++ {
			data := make([]float64, len(m.history))
			for i := range m.history {
				data[i] = m.history[i][v]
			}
			chart := asciigraph.Plot(data,
				asciigraph.Height(8),
				asciigraph.Width(60),
				asciigraph.Caption(fmt.Sprintf("y%d", v)),
			)
			left.WriteString(graphStyle.Render(chart) + "\n")
		}
	}
	left.WriteString(helpStyle.Render("SP:Pause  Q:Quit"))

	var right string
	if st, err := m.sess.Stats(); err == nil {
		var b strings.Builder
		b.WriteString(labelStyle.Render("time") + valueStyle.Render(fmt.Sprintf("%.4f / %.4f", m.t, m.tEnd)) + "\n")
		b.WriteString(labelStyle.Render("steps") + valueStyle.Render(fmt.Sprintf("%d", st.Steps)) + "\n")
		b.WriteString(labelStyle.Render("rhs evals") + valueStyle.Render(fmt.Sprintf("%d", st.RhsEvals)) + "\n")
		b.WriteString(labelStyle.Render("step size") + valueStyle.Render(fmt.Sprintf("%.3e", st.LastStepSize)) + "\n")
		b.WriteString(labelStyle.Render("order") + valueStyle.Render(fmt.Sprintf("%d", st.LastOrder)) + "\n")
		right = statsStyle.Render(b.String())
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, left.String(), right)
}
