package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/expensify-os/internal/config"
	"github.com/kailas-cloud/expensify-os/internal/logger"
	"github.com/kailas-cloud/expensify-os/internal/version"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var (
	flagVerbose bool
	flagConfig  string
	flagEnvFile string
)

// exitCodeError ends the process with code after msg (if any) is printed.
type exitCodeError struct {
	code int
	msg  string
}

func (e *exitCodeError) Error() string { return e.msg }

func usageError(format string, args ...any) error {
	return &exitCodeError{code: exitUsage, msg: fmt.Sprintf(format, args...)}
}

// errFailed signals a command that already reported its failure.
var errFailed = &exitCodeError{code: exitError}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "expensify-os",
		Short:         "Automated expense management",
		Long:          "Fetch monthly vendor charges and receipts and submit them to Expensify.",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadEnvFile(flagEnvFile)
		},
	}
	root.SetVersionTemplate(version.String() + "\n")

	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to config.yaml")
	root.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "Environment file loaded before the config")

	root.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newPluginsCmd(),
		newServeCmd(),
		newVersionCmd(),
	)
	return root
}

func execute(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return exitOK
	}

	var ec *exitCodeError
	if errors.As(err, &ec) {
		if ec.msg != "" {
			fmt.Fprintf(os.Stderr, "Error: %s\n", ec.msg)
		}
		return ec.code
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return exitError
}

// loadEnvFile loads KEY=VALUE pairs without overriding the environment. A missing file is ignored.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// loadConfig reads the config. Secret references are resolved through the 1Password CLI unless skipped.
func loadConfig(resolveSecrets bool) (config.Config, string, error) {
	var opts config.Options
	if resolveSecrets {
		opts.Resolver = config.OnePassword{}
	}
	return config.Load(flagConfig, opts)
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	return logger.New(config.GetEnv(), cfg.Logging.Level, flagVerbose)
}
