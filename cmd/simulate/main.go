package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xtding233/foraging-backend/internal/config"
	"github.com/xtding233/foraging-backend/internal/history"
	"github.com/xtding233/foraging-backend/internal/simulate"
)

var (
	configDir string
	taskName  string
	trials    int
	workers   int
	seed      uint64
	harvest   bool
	dbPath    string
	format    string
	runID     string
	patchID   int

	rootCmd = &cobra.Command{
		Use:   "foraging-simulate",
		Short: "Monte Carlo statistics for a task's patches",
		Long: `foraging-simulate seeds the task's patches, advances them tick by tick
for the task's step count and reports per-patch statistics of the final state
over many trials.`,
		SilenceUsage: true,
		RunE:         run,
	}

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, or print the state history of one run",
		Example: `  foraging-simulate history --db runs.db
  foraging-simulate history --db runs.db --run <run-id> --patch 2`,
		Args: cobra.NoArgs,
		RunE: runHistory,
	}
)

func init() {
	f := rootCmd.Flags()
	f.StringVar(&configDir, "config-dir", "config", "directory holding tasks/<name>.yaml")
	f.StringVar(&taskName, "task", "default", "task file name without extension")
	f.IntVar(&trials, "trials", 1000, "number of trials")
	f.IntVar(&workers, "workers", 0, "parallel trials (0 = GOMAXPROCS)")
	f.Uint64Var(&seed, "seed", 1, "base seed; overrides the task seed when set")
	f.BoolVar(&harvest, "harvest", false, "attempt a harvest on every patch after each tick")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dbPath, "db", "", "SQLite history file; the first trial is recorded to it")
	pf.StringVarP(&format, "output", "o", "table", "table, json or yaml")

	hf := historyCmd.Flags()
	hf.StringVar(&runID, "run", "", "run id to print (empty lists runs)")
	hf.IntVar(&patchID, "patch", -1, "only this patch (-1 for all)")
	rootCmd.AddCommand(historyCmd)
}

func run(cmd *cobra.Command, _ []string) error {
	task, err := config.NewLoader(configDir).LoadTask(taskName)
	if err != nil {
		return err
	}
	base := seed
	if !cmd.Flags().Changed("seed") && task.Seed != nil {
		base = *task.Seed
	}

	p := simulate.Params{Trials: trials, Workers: workers, Seed: base, Harvest: harvest}
	if dbPath != "" {
		store, err := history.Open(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		hrun, err := store.NewRun(taskName+" simulation", base)
		if err != nil {
			return err
		}
		p.Recorder = hrun
		defer func() {
			if err := hrun.Err(); err != nil {
				slog.Error("history incomplete", "run", hrun.Info().ID, "error", err)
			}
		}()
		slog.Info("recording first trial", "db", dbPath, "run", hrun.Info().ID)
	}

	stats, err := simulate.RunMonteCarlo(cmd.Context(), task, p)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), stats)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	if dbPath == "" {
		return errors.New("history needs --db")
	}
	// Open would create a missing file
	if _, err := os.Stat(dbPath); err != nil {
		return err
	}
	store, err := history.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	w := cmd.OutOrStdout()
	if runID == "" {
		runs, err := store.Runs()
		if err != nil {
			return err
		}
		if done, err := encode(w, runs); done {
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tLABEL\tSEED\tCREATED")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.ID, r.Label, r.Seed, r.CreatedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	}

	entries, err := store.Entries(runID, patchID)
	if err != nil {
		return err
	}
	if done, err := encode(w, entries); done {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tOP\tPATCH\tAMOUNT\tPROBABILITY\tAVAILABLE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%.4g\t%.4g\t%.4g\n",
			e.Seq, e.Op, e.State.PatchID, e.State.Amount, e.State.Probability, e.State.Available)
	}
	return tw.Flush()
}

// encode writes v as json or yaml. It reports false when the caller should
// print a table instead.
func encode(w io.Writer, v any) (bool, error) {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return true, enc.Encode(v)
	case "table":
		return false, nil
	}
	return true, fmt.Errorf("unknown output format %q", format)
}

func render(w io.Writer, stats []simulate.PatchStats) error {
	if done, err := encode(w, stats); done {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATCH\tLABEL\tFIELD\tMEAN\tSTD\tP50\tP90\tP99")
	for _, ps := range stats {
		for _, row := range []struct {
			name string
			s    simulate.Stats
		}{
			{"amount", ps.Amount},
			{"probability", ps.Probability},
			{"available", ps.Available},
			{"reward", ps.Reward},
		} {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%.4g\t%.4g\t%.4g\t%.4g\t%.4g\n",
				ps.PatchID, ps.Label, row.name, row.s.Mean, row.s.StdDev, row.s.P50, row.s.P90, row.s.P99)
		}
	}
	return tw.Flush()
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
