package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/dolly/driver/playwright"
)

// install is swapped out by tests.
var install = playwright.Install

func newInstallCmd(log func() *slog.Logger) *cobra.Command {
	var browsers []string

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Download the playwright driver and browsers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, b := range browsers {
				switch b {
				case playwright.Chromium, playwright.Firefox, playwright.WebKit:
				default:
					return fmt.Errorf("unknown browser %q", b)
				}
			}

			started := time.Now()
			log().Info("installing playwright", "browsers", browsers)
			if err := install(browsers...); err != nil {
				log().Error("install failed", "error", err)
				return err
			}
			log().Info("install complete", "browsers", browsers, "took", time.Since(started).Round(time.Millisecond).String())
			fmt.Fprintf(cmd.OutOrStdout(), "installed %v\n", browsers)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&browsers, "browser", []string{playwright.Chromium}, "Browsers to install (chromium, firefox, webkit)")
	return cmd
}
