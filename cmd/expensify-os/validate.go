package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/expensify-os/internal/usecase/validate"
)

func newValidateCmd() *cobra.Command {
	var noSecrets bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

			fmt.Fprintln(out, "Validating configuration...")
			cfg, path, err := loadConfig(!noSecrets)
			if err != nil {
				fmt.Fprintf(errOut, "  Config: FAILED: %v\n", err)
				return errFailed
			}
			fmt.Fprintf(out, "  Config: OK (%s)\n", path)
			fmt.Fprintf(out, "  Expensify email: %s\n", cfg.Expensify.EmployeeEmail)
			fmt.Fprintf(out, "  Default currency: %s\n", cfg.Expensify.DefaultCurrency)

			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			a, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				fmt.Fprintf(errOut, "  Ledger: FAILED: %v\n", err)
				return errFailed
			}
			defer a.close()
			if a.ledger != nil {
				fmt.Fprintln(out, "  Ledger: OK")
			}

			fmt.Fprintln(out, "\nValidating plugin credentials...")
			results := a.validateService().Check(cmd.Context(), a.validateTargets())
			printValidation(out, results)

			if validate.AnyFailed(results) {
				fmt.Fprintln(errOut, "\nSome validations failed.")
				return errFailed
			}
			fmt.Fprintln(out, "\nAll validations passed.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&noSecrets, "no-secrets", false, "Do not resolve op:// secret references")
	return cmd
}

func printValidation(w io.Writer, results []validate.Result) {
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(w, "  %s: %s (%s)\n", r.Plugin, r.Status, r.Error)
			continue
		}
		fmt.Fprintf(w, "  %s: %s\n", r.Plugin, r.Status)
	}
}
