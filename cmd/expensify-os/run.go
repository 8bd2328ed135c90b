package main

import (
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/expensify-os/internal/domain"
	runuc "github.com/kailas-cloud/expensify-os/internal/usecase/run"
)

func newRunCmd() *cobra.Command {
	var (
		month   string
		sources []string
		dryRun  bool
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch expenses and submit to Expensify",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := parseMonthFlag(month, time.Now())
			if err != nil {
				return err
			}

			cfg, _, err := loadConfig(true)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Target month: %s\n", target)
			if dryRun {
				fmt.Fprintln(out, "DRY RUN: will not submit to Expensify")
			}

			targets, ignored := runuc.SelectTargets(a.runTargets(), sources, a.registry.Has)
			for _, t := range ignored {
				log.Warn("Source not configured or disabled, ignoring", zap.String("plugin", t.Name))
			}
			if len(targets) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "No plugins to run. Check config and --source flags.")
				return errFailed
			}

			names := make([]string, len(targets))
			for i, t := range targets {
				names[i] = t.Name
			}
			fmt.Fprintf(out, "Running plugins: %s\n", strings.Join(names, ", "))

			summary, err := a.runService().Run(ctx, runuc.Request{
				Month:   target,
				Targets: targets,
				DryRun:  dryRun,
				Force:   force,
			})
			if err != nil {
				return err
			}

			printResults(out, target, summary)
			if summary.Failed() {
				return errFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&month, "month", "", "Billing month as YYYY-MM (default: previous month)")
	cmd.Flags().StringArrayVar(&sources, "source", nil, "Plugin to run, repeatable (default: all enabled plugins)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Fetch data but do not submit to Expensify")
	cmd.Flags().BoolVar(&force, "force", false, "Submit even if the ledger already has the month")
	return cmd
}

// parseMonthFlag returns the month before now when v is empty.
func parseMonthFlag(v string, now time.Time) (domain.Month, error) {
	if v == "" {
		return domain.PreviousMonth(now), nil
	}
	m, err := domain.ParseMonth(v)
	if err != nil {
		return domain.Month{}, usageError("'%s' is not a valid month (expected YYYY-MM)", v)
	}
	return m, nil
}

func printResults(w io.Writer, month domain.Month, s domain.Summary) {
	for _, r := range s.Results {
		fmt.Fprintf(w, "\n--- %s ---\n", r.Plugin)
		switch r.Status {
		case domain.RunSuccess:
			fmt.Fprintf(w, "  Amount: %s %s\n", r.Currency, domain.FormatMinorUnits(r.Amount))
			if s.DryRun {
				fmt.Fprintln(w, "  [DRY RUN] Would submit to Expensify")
			} else {
				fmt.Fprintf(w, "  Submitted! Transaction: %s\n", orNA(r.TransactionID))
			}
		case domain.RunSkipped:
			if r.Reason == "" || r.Reason == runuc.ReasonNoCharges {
				fmt.Fprintf(w, "  No charges for %s\n", month)
			} else {
				fmt.Fprintf(w, "  Skipped: %s\n", r.Reason)
			}
		case domain.RunError:
			fmt.Fprintf(w, "  ERROR: %s\n", r.Error)
		}
	}

	fmt.Fprintln(w, "\n=== Summary ===")
	fmt.Fprintf(w, "Submitted: %d, Skipped: %d, Errors: %d\n", s.Submitted, s.Skipped, s.Errors)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
