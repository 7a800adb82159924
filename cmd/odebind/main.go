package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/odebind"
	"github.com/san-kum/odebind/engine/refstep"
	"github.com/san-kum/odebind/internal/config"
	"github.com/san-kum/odebind/internal/models"
	"github.com/san-kum/odebind/internal/storage"
	"github.com/san-kum/odebind/internal/viz"
	"github.com/spf13/cobra"
)

var (
	dataDir    string
	verbose    bool
	rtol       float64
	atol       float64
	tEnd       float64
	points     int
	maxSteps   int64
	solverName string
	methodName string
	configFile string
	preset     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "odebind",
		Short: "adaptive ODE integration driven through a solver-engine binding",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".odebind", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "integrate a model and store the trajectory",
		Args:  cobra.ExactArgs(1),
		RunE:  runModel,
	}
	runCmd.Flags().Float64Var(&rtol, "rtol", config.DefaultRelTol, "relative tolerance")
	runCmd.Flags().Float64Var(&atol, "atol", config.DefaultAbsTol, "absolute tolerance")
	runCmd.Flags().Float64Var(&tEnd, "tend", config.DefaultTEnd, "end time")
	runCmd.Flags().IntVar(&points, "points", config.DefaultPoints, "output samples")
	runCmd.Flags().Int64Var(&maxSteps, "max-steps", config.DefaultMaxSteps, "internal step limit")
	runCmd.Flags().StringVar(&solverName, "solver", "", "linear solver (functional|dense|band|diag|gmres|bbd)")
	runCmd.Flags().StringVar(&methodName, "method", "", "multistep method (adams|bdf)")
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	runCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list available models",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDIM\tSTIFF\tDESCRIPTION")
			for _, name := range models.Names() {
				m, err := models.Lookup(name)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "%s\t%d\t%v\t%s\n", m.Name, m.Dim, m.Stiff, m.Desc)
			}
			return w.Flush()
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored trajectory",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "print run metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	liveCmd := &cobra.Command{
		Use:   "live [model]",
		Short: "integrate with a live terminal view",
		Args:  cobra.ExactArgs(1),
		RunE:  runLive,
	}
	liveCmd.Flags().Float64Var(&rtol, "rtol", config.DefaultRelTol, "relative tolerance")
	liveCmd.Flags().Float64Var(&atol, "atol", config.DefaultAbsTol, "absolute tolerance")
	liveCmd.Flags().Float64Var(&tEnd, "tend", config.DefaultTEnd, "end time")
	liveCmd.Flags().StringVar(&solverName, "solver", "", "linear solver")
	liveCmd.Flags().StringVar(&methodName, "method", "", "multistep method")

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list presets for a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names := config.ListPresets(args[0])
			if len(names) == 0 {
				fmt.Printf("no presets for model: %s\n", args[0])
				return nil
			}
			for _, p := range names {
				fmt.Println(p)
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, modelsCmd, listCmd, plotCmd, exportCmd, liveCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// applyConfig folds preset and config-file values into the flag variables,
// with CLI flags taking precedence.
func applyConfig(cmd *cobra.Command, model string) error {
	var cfg *config.Config
	if preset != "" {
		cfg = config.GetPreset(model, preset)
		if cfg == nil {
			return fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(model))
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if cfg == nil {
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !cmd.Flags().Changed("rtol") {
		rtol = cfg.RelTol
	}
	if !cmd.Flags().Changed("atol") {
		atol = cfg.AbsTol
	}
	if !cmd.Flags().Changed("tend") {
		tEnd = cfg.TEnd
	}
	if !cmd.Flags().Changed("points") && cfg.Points > 0 {
		points = cfg.Points
	}
	if !cmd.Flags().Changed("max-steps") && cfg.MaxSteps > 0 {
		maxSteps = cfg.MaxSteps
	}
	if !cmd.Flags().Changed("solver") {
		solverName = cfg.Solver
	}
	if !cmd.Flags().Changed("method") {
		methodName = cfg.Method
	}
	return nil
}

// newSession builds a session for the model with the current flag values.
func newSession(m *models.Model) (*odebind.Session, error) {
	cfg := m.Config
	cfg.MaxSteps = maxSteps

	if methodName != "" {
		switch methodName {
		case "adams":
			cfg.Method = odebind.Adams
		case "bdf":
			cfg.Method = odebind.BDF
		default:
			return nil, fmt.Errorf("unknown method: %s", methodName)
		}
	}
	if solverName != "" {
		solver, err := solverByName(solverName, m)
		if err != nil {
			return nil, err
		}
		cfg.Solver = solver
	}

	sess, err := odebind.Create(refstep.New(), cfg, m.Y0)
	if err != nil {
		return nil, err
	}
	if err := sess.SStolerances(rtol, atol); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}

func solverByName(name string, m *models.Model) (odebind.SolverConfig, error) {
	switch name {
	case "functional":
		return nil, nil
	case "dense":
		return odebind.Dense{}, nil
	case "band":
		return odebind.Band{Upper: 1, Lower: 1}, nil
	case "diag":
		return odebind.Diag{}, nil
	case "gmres", "krylov":
		return odebind.Krylov{Method: odebind.GMRES}, nil
	case "bbd":
		return odebind.KrylovBBD{
			Method:     odebind.GMRES,
			Side:       odebind.PrecLeft,
			Bandwidths: odebind.Bandwidths{MuDQ: 1, MlDQ: 1, MuKeep: 1, MlKeep: 1},
			Local:      odebind.BBDLocalFn(m.Config.Rhs),
		}, nil
	default:
		return nil, fmt.Errorf("unknown solver: %s", name)
	}
}

func runModel(cmd *cobra.Command, args []string) error {
	m, err := models.Lookup(args[0])
	if err != nil {
		return err
	}
	if err := applyConfig(cmd, m.Name); err != nil {
		return err
	}

	sess, err := newSession(m)
	if err != nil {
		return err
	}
	defer sess.Close()

	slog.Debug("run starting", "model", m.Name, "dim", m.Dim, "rtol", rtol, "atol", atol, "tend", tEnd)

	times := make([]float64, 0, points)
	states := make([][]float64, 0, points)
	y := make([]float64, m.Dim)

	start := time.Now()
	for i := 1; i <= points; i++ {
		tout := tEnd * float64(i) / float64(points)
		t, res, err := sess.Advance(tout, y)
		if err != nil {
			return fmt.Errorf("advance to t=%g: %w", tout, err)
		}
		times = append(times, t)
		states = append(states, append([]float64(nil), y...))
		if res != odebind.Continue {
			slog.Debug("integration stopped early", "t", t, "result", res.String())
			break
		}
	}
	elapsed := time.Since(start)

	st, err := sess.Stats()
	if err != nil {
		return err
	}

	store := storage.New(dataDir)
	if err := store.Init(); err != nil {
		return err
	}
	runID, err := store.Save(&storage.Run{
		Model:  m.Name,
		Method: methodName,
		Solver: solverName,
		RelTol: rtol,
		AbsTol: atol,
		Times:  times,
		States: states,
		Stats:  st,
	})
	if err != nil {
		return err
	}

	slog.Debug("run finished", "run_id", runID, "elapsed", elapsed, "steps", st.Steps)

	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("completed in %v\n\n", elapsed)
	fmt.Println(viz.PlotTrajectory(times, states))
	fmt.Println(viz.StatsTable(st))
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	store := storage.New(dataDir)
	runs, err := store.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tTIME\tSPAN\tSTEPS\tSOLVER")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t[%.2g, %.2g]\t%d\t%s\n",
			run.ID,
			run.Model,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.T0, run.TEnd,
			run.Stats.Steps,
			run.Solver,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	store := storage.New(dataDir)
	meta, err := store.Load(args[0])
	if err != nil {
		return err
	}
	times, states, err := store.LoadTrajectory(args[0])
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\nmodel: %s\nsamples: %d\n\n", meta.ID, meta.Model, len(states))
	fmt.Println(viz.PlotTrajectory(times, states))
	fmt.Println(viz.StatsTable(meta.Stats))
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	store := storage.New(dataDir)
	meta, err := store.Load(args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func runLive(cmd *cobra.Command, args []string) error {
	m, err := models.Lookup(args[0])
	if err != nil {
		return err
	}
	if err := applyConfig(cmd, m.Name); err != nil {
		return err
	}

	sess, err := newSession(m)
	if err != nil {
		return err
	}
	defer sess.Close()

	p := tea.NewProgram(viz.NewLiveModel(sess, m.Name, tEnd))
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}
