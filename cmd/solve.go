package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/wisq/autocrew/internal/config"
	"github.com/wisq/autocrew/internal/constrained"
	"github.com/wisq/autocrew/internal/scenario"
	"github.com/wisq/autocrew/internal/store"
	"github.com/wisq/autocrew/internal/tma"
)

type solveOptions struct {
	ScenarioPath string
	Replay       bool
	JSON         bool
	Save         bool
	ContactID    string
}

var solveOpts solveOptions

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve a scenario file",
	Long: `Solves the contact described by a scenario file and prints the
estimated starting position, course and speed. With --replay the
observations are fed in one at a time, each solve warm-started from the
last, the way the server tracks a contact.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return runSolve(ctx, cmd.OutOrStdout(), cfg, solveOpts)
	},
}

func init() {
	solveCmd.Flags().StringVar(&solveOpts.ScenarioPath, "scenario", "", "Scenario file (required)")
	solveCmd.Flags().BoolVar(&solveOpts.Replay, "replay", false, "Solve after every observation, warm-starting each solve")
	solveCmd.Flags().BoolVar(&solveOpts.JSON, "json", false, "Print the solution as JSON")
	solveCmd.Flags().BoolVar(&solveOpts.Save, "save", false, "Save a checkpoint and trace under --data-dir")
	solveCmd.Flags().StringVar(&solveOpts.ContactID, "id", "", "Contact ID to save under (default: random)")
	solveCmd.Flags().String("enforcement", "", "Constraint enforcement (linear, quadratic)")
	solveCmd.Flags().Float64("max-speed", 0, "Upper bound on contact speed in knots (0 = none)")
	solveCmd.Flags().Bool("seed", true, "Seed cold starts with a mayfly search")
	_ = solveCmd.MarkFlagRequired("scenario")
	_ = v.BindPFlag("solver.enforcement", solveCmd.Flags().Lookup("enforcement"))
	_ = v.BindPFlag("solver.max_speed", solveCmd.Flags().Lookup("max-speed"))
	_ = v.BindPFlag("seed.enabled", solveCmd.Flags().Lookup("seed"))
	rootCmd.AddCommand(solveCmd)
}

func runSolve(ctx context.Context, w io.Writer, cfg *config.Config, opts solveOptions) error {
	sc, err := scenario.Load(opts.ScenarioPath)
	if err != nil {
		return err
	}
	base, err := cfg.SolverConfig()
	if err != nil {
		return err
	}
	solverConfig, err := sc.ApplySolverOptions(base)
	if err != nil {
		return err
	}
	solver, err := tma.NewSolver(solverConfig)
	if err != nil {
		return err
	}
	contact, err := sc.Contact()
	if err != nil {
		return err
	}

	var trace []store.TraceEntry
	var sol tma.Solution
	var solveErr error
	settled := false
	if opts.Replay {
		sol, settled, trace, solveErr = replay(ctx, w, solver, contact, cfg.SettleConfig())
	} else {
		sol, solveErr = solver.Solve(ctx, contact, nil)
		trace = append(trace, store.NewTraceEntry(1, sol, solveErr))
	}

	var notFound *constrained.NotFoundError
	if solveErr != nil && !errors.As(solveErr, &notFound) {
		return solveErr
	}
	if solveErr != nil {
		slog.Warn("Solve did not converge", "value", sol.Value, "error", solveErr)
	}

	if opts.Save {
		id := opts.ContactID
		if id == "" {
			id = uuid.New().String()
		}
		if err := saveSolve(cfg.DataDir, id, sc, sol, settled, trace); err != nil {
			return err
		}
		slog.Info("Saved checkpoint", "contactID", id, "dataDir", cfg.DataDir)
	}

	if opts.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sol)
	}
	printSolution(w, sc, sol)
	return nil
}

// replay solves every prefix of the observations that has at least two
// of them, printing one row per solve.
func replay(ctx context.Context, w io.Writer, solver *tma.Solver, contact tma.Contact, settle tma.SettleConfig) (tma.Solution, bool, []store.TraceEntry, error) {
	if len(contact.Observations) < 2 {
		return tma.Solution{}, false, nil, tma.ErrTooFewObservations
	}
	tracker := tma.NewSettleTracker(settle)
	var trace []store.TraceEntry
	var previous *tma.Solution
	var sol tma.Solution
	var err error

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OBS\tTIME\tX\tY\tCOURSE\tSPEED\tVALUE\tITERS\tSETTLED")
	for n := 2; n <= len(contact.Observations); n++ {
		prefix := tma.Contact{Observer: contact.Observer, Observations: contact.Observations[:n]}
		sol, err = solver.Solve(ctx, prefix, previous)
		trace = append(trace, store.NewTraceEntry(len(trace)+1, sol, err))

		var notFound *constrained.NotFoundError
		if err != nil && !errors.As(err, &notFound) {
			tw.Flush()
			return sol, false, trace, err
		}
		settled := tracker.Update(sol)
		fmt.Fprintf(tw, "%d\t%s\t%.3f\t%.3f\t%.1f\t%.2f\t%.3g\t%d\t%v\n",
			n,
			scenario.Clock(contact.Observations[n-1].Time),
			sol.X, sol.Y, sol.Course, sol.Speed, sol.Value,
			sol.Stats.Iterations,
			settled,
		)
		previous = &sol
	}
	tw.Flush()
	fmt.Fprintln(w)
	return sol, tracker.Settled(), trace, err
}

func saveSolve(dataDir, id string, sc *scenario.Scenario, sol tma.Solution, settled bool, trace []store.TraceEntry) error {
	checkpointStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}
	if err := checkpointStore.SaveCheckpoint(id, store.NewCheckpoint(id, sc, sol, settled)); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	// a saved solve replaces any earlier trace under the same ID
	if err := store.DeleteTrace(dataDir, id); err != nil {
		return err
	}
	if err := store.AppendTrace(dataDir, id, trace...); err != nil {
		return fmt.Errorf("failed to write trace: %w", err)
	}
	return nil
}

func printSolution(w io.Writer, sc *scenario.Scenario, sol tma.Solution) {
	fmt.Fprintf(w, "Scenario: %s\n", sc.Name)
	fmt.Fprintf(w, "Observations: %d\n", sol.Observations)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Solution:")
	fmt.Fprintf(w, "  Start: (%.3f, %.3f) nmi\n", sol.X, sol.Y)
	fmt.Fprintf(w, "  Course: %.1f°\n", sol.Course)
	fmt.Fprintf(w, "  Speed: %.2f kn\n", sol.Speed)
	fmt.Fprintf(w, "  Residual: %.3g\n", sol.Value)
	fmt.Fprintf(w, "  Iterations: %d (%d outer, %d evaluations)\n",
		sol.Stats.Iterations, sol.Stats.OuterIterations, sol.Stats.Evaluations)

	truth := sc.TruthSolution()
	if truth == nil {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Error vs truth:")
	fmt.Fprintf(w, "  Position: %.3f nmi\n", math.Hypot(sol.X-truth.X, sol.Y-truth.Y))
	fmt.Fprintf(w, "  Course: %.2f°\n", courseError(sol.Course, truth.Course))
	fmt.Fprintf(w, "  Speed: %.3f kn\n", math.Abs(sol.Speed-truth.Speed))
}

// courseError is the unsigned angle between two courses.
func courseError(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	return math.Min(d, 360-d)
}
