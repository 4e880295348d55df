package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/teranos/dolly"
)

func newDashboardCmd(log func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard <report-dir>",
		Short: "Regenerate the index of scene reports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			entries, err := dolly.GenerateDashboard(dir)
			if err != nil {
				return err
			}

			failed := 0
			for _, e := range entries {
				if !e.Success {
					failed++
					log().Warn("failed scene", "scene", e.SceneName, "run", e.Timestamp, "report", e.RelativePath)
				}
			}
			log().Info("dashboard generated", "dir", dir, "reports", len(entries), "failed", failed)
			fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(dir, "index.html"))
			return nil
		},
	}
}
