// Command dolly provisions browsers for dolly tests and works with the
// reports and baselines they leave behind.
//
//	dolly install --browser chromium
//	dolly dashboard tmp/reports
//	dolly diff --baseline testdata/baselines --current tmp/frames
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dolly:", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		level  string
		logger *slog.Logger
	)

	cmd := &cobra.Command{
		Use:           "dolly",
		Short:         "Browser test tooling for dolly scenes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			l, err := newLogger(stderr, level)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.PersistentFlags().StringVar(&level, "log-level", "info", "Log level (debug, info, warn, error)")

	log := func() *slog.Logger { return logger }
	cmd.AddCommand(
		newInstallCmd(log),
		newDashboardCmd(log),
		newDiffCmd(log),
	)
	return cmd
}
