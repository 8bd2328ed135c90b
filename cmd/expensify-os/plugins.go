package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/expensify-os/internal/plugin"
	"github.com/kailas-cloud/expensify-os/internal/plugin/builtin"
	"github.com/kailas-cloud/expensify-os/internal/version"
)

func newPluginsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List all available plugins",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printPlugins(cmd.OutOrStdout(), builtin.Registry().List())
		},
	}
}

func printPlugins(w io.Writer, regs []plugin.Registration) {
	if len(regs) == 0 {
		fmt.Fprintln(w, "No plugins registered.")
		return
	}
	fmt.Fprintln(w, "Available plugins:")
	for _, r := range regs {
		fmt.Fprintf(w, "  %-15s %s\n", r.Name, r.Description)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
