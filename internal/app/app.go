package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"chronicreport/internal/config"
	"chronicreport/internal/domain"
	"chronicreport/internal/httpx"
	"chronicreport/internal/schedule"
	"chronicreport/internal/storage/sqlite"
)

var (
	configPath string
	cfg        config.Config

	runPeriod  string
	runImpacts string
	runCounts  string
	runRoster  string
	runOutput  string
	runDryRun  bool

	showPeriod   string
	historyLimit int
)

var rootCmd = &cobra.Command{
	Use:   "chronicreport",
	Short: "Monthly chronic circuit classification and trend report",
	Long: `chronicreport reads the monthly incident extracts, classifies every circuit
against the previous month's snapshot and writes the chronic circuit summary.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			if err := os.Setenv("CONFIG_PATH", configPath); err != nil {
				return err
			}
		}
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		applied := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
		log.Printf("Config loaded. Backend=%s OutputDir=%s Timezone=%s ConsistentThreshold=%d TopN=%d ExternalHTTPTimeout=%s",
			cfg.SnapshotBackend, cfg.OutputDir, cfg.Timezone, cfg.ConsistentThreshold, cfg.TopN, applied)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the report for one period",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRunFlags()
		period, err := resolvePeriod(runPeriod, time.Now().In(cfg.Location))
		if err != nil {
			return err
		}
		backend, closeBackend, err := OpenBackend(cfg)
		if err != nil {
			return err
		}
		defer closeBackend()

		out, err := NewRunner(cfg, backend).Run(cmd.Context(), RunOptions{Period: period, DryRun: runDryRun})
		if err != nil {
			return err
		}
		c := out.Result.Counts
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chronic (%d consistent, %d inconsistent, %d new), %d warnings\n%s\n",
			period.Label(), c.TotalChronic, c.Consistent, c.Inconsistent, c.NewChronic, len(out.Result.Warnings), out.ReportPath)
		return nil
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the report on the configured cron schedule until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		sched, err := schedule.New(cfg.Schedule, cfg.Location)
		if err != nil {
			return err
		}
		backend, closeBackend, err := OpenBackend(cfg)
		if err != nil {
			return err
		}
		defer closeBackend()

		runner := NewRunner(cfg, backend)
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = sched.Run(ctx, func(ctx context.Context, period domain.Period) error {
			_, err := runner.Run(ctx, RunOptions{Period: period})
			return err
		})
		if ctx.Err() != nil {
			log.Println("Scheduler stopped")
			return nil
		}
		return err
	},
}

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Inspect stored snapshots",
}

var baselineShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the snapshot a run for --period would use as its baseline",
	RunE: func(cmd *cobra.Command, args []string) error {
		period, err := resolvePeriod(showPeriod, time.Now().In(cfg.Location))
		if err != nil {
			return err
		}
		backend, closeBackend, err := OpenBackend(cfg)
		if err != nil {
			return err
		}
		defer closeBackend()

		snap, err := backend.LatestBefore(cmd.Context(), period)
		if err != nil {
			return err
		}
		return printSnapshot(cmd, snap)
	},
}

var baselineHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored runs (sqlite backend)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.SnapshotBackend != config.BackendSQLite {
			return fmt.Errorf("history requires the %s backend", config.BackendSQLite)
		}
		db, err := sqlite.InitDB(cfg.DBPath)
		if err != nil {
			return err
		}
		defer closeDB(db)

		runs, err := sqlite.NewStore(db).History(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PERIOD\tRUN ID\tCREATED\tCIRCUITS")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", r.Period, r.RunID, r.CreatedAt.Format(time.RFC3339), r.Circuits)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (overrides CONFIG_PATH)")

	runCmd.Flags().StringVar(&runPeriod, "period", "", "Reporting period, e.g. 2025-06 or \"June 2025\" (default: previous month)")
	runCmd.Flags().StringVar(&runImpacts, "impacts", "", "Impacts extract CSV (overrides impacts_path)")
	runCmd.Flags().StringVar(&runCounts, "counts", "", "Counts extract CSV (overrides counts_path)")
	runCmd.Flags().StringVar(&runRoster, "roster", "", "Roster YAML (overrides roster_path)")
	runCmd.Flags().StringVar(&runOutput, "output-dir", "", "Output directory (overrides output_dir)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Write summary files only; do not persist the snapshot or notify")

	baselineShowCmd.Flags().StringVar(&showPeriod, "period", "", "Reporting period the baseline is for (default: previous month)")
	baselineHistoryCmd.Flags().IntVar(&historyLimit, "limit", 12, "Number of runs to list")

	baselineCmd.AddCommand(baselineShowCmd)
	baselineCmd.AddCommand(baselineHistoryCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(baselineCmd)
}

func Execute() error {
	return rootCmd.Execute()
}

func Main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func applyRunFlags() {
	if runImpacts != "" {
		cfg.ImpactsPath = runImpacts
	}
	if runCounts != "" {
		cfg.CountsPath = runCounts
	}
	if runRoster != "" {
		cfg.RosterPath = runRoster
	}
	if runOutput != "" {
		cfg.OutputDir = runOutput
	}
}

// resolvePeriod parses flag, defaulting to the month before now.
func resolvePeriod(flag string, now time.Time) (domain.Period, error) {
	if strings.TrimSpace(flag) == "" {
		return schedule.PeriodFor(now), nil
	}
	p, err := domain.ParsePeriod(flag)
	if err != nil {
		return domain.Period{}, fmt.Errorf("--period: %w", err)
	}
	return p, nil
}

func printSnapshot(cmd *cobra.Command, snap *domain.Snapshot) error {
	out := cmd.OutOrStdout()
	h := snap.Headline
	fmt.Fprintf(out, "Snapshot %s for %s (created %s)\n", snap.RunID, snap.Period.Label(), snap.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Total chronic %d: consistent %d, inconsistent %d, new %d, media %d\n\n",
		h.TotalChronic, h.Consistent, h.Inconsistent, h.NewChronic, h.Media)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CIRCUIT\tCATEGORY\tSOURCE\tROLLING")
	for _, r := range snap.Records {
		if r.Category == domain.CategoryNotChronic {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.0f\n", r.CircuitID, r.Category, r.Source, r.RollingTickets)
	}
	return w.Flush()
}
