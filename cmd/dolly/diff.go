package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teranos/dolly"
)

func newDiffCmd(log func() *slog.Logger) *cobra.Command {
	var (
		baselineDir string
		currentDir  string
		tolerance   float64
		update      bool
	)

	cmd := &cobra.Command{
		Use:   "diff [name...]",
		Short: "Compare captured frames with their baselines",
		Long: "Compare every PNG in --current (or only the named ones) with the PNG of the\n" +
			"same name in --baseline. Differences above --tolerance fail the command and\n" +
			"leave a diff image under <baseline>/diff. --update promotes the current frames.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tolerance < 0 || tolerance > 1 {
				return fmt.Errorf("tolerance must be between 0 and 1, got %v", tolerance)
			}

			names := args
			if len(names) == 0 {
				found, err := pngNames(currentDir)
				if err != nil {
					return err
				}
				names = found
			}
			if len(names) == 0 {
				return fmt.Errorf("no frames in %s", currentDir)
			}

			supervisor := dolly.NewScriptSupervisor(baselineDir).WithTolerance(tolerance)
			out := cmd.OutOrStdout()
			var regressions []string

			for _, name := range names {
				current := filepath.Join(currentDir, name+".png")

				if update {
					frame, err := os.ReadFile(current)
					if err != nil {
						return err
					}
					if err := supervisor.SetBaseline(name, frame); err != nil {
						return err
					}
					log().Info("baseline updated", "name", name)
					fmt.Fprintf(out, "updated  %s\n", name)
					continue
				}

				result, err := supervisor.ValidateConsistency(name, current)
				switch {
				case errors.Is(err, dolly.ErrNoBaseline):
					log().Warn("no baseline", "name", name, "baseline", supervisor.BaselinePath(name))
					fmt.Fprintf(out, "missing  %s\n", name)
					regressions = append(regressions, name)
				case err != nil && result.Passed():
					return err
				case !result.Passed():
					log().Warn("visual regression", "name", name,
						"difference", result.Difference, "tolerance", result.Tolerance, "diff", result.DiffPath)
					fmt.Fprintf(out, "FAIL     %s  %.2f%%  %s\n", name, result.Difference*100, result.DiffPath)
					regressions = append(regressions, name)
				default:
					log().Debug("frame matches baseline", "name", name, "difference", result.Difference)
					fmt.Fprintf(out, "ok       %s  %.2f%%\n", name, result.Difference*100)
				}
			}

			if len(regressions) > 0 {
				return fmt.Errorf("%d of %d frames differ from their baselines: %s",
					len(regressions), len(names), strings.Join(regressions, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&baselineDir, "baseline", "testdata/baselines", "Directory of baseline PNGs")
	cmd.Flags().StringVar(&currentDir, "current", "", "Directory of captured PNGs")
	cmd.Flags().Float64Var(&tolerance, "tolerance", 0.05, "Fraction of pixels allowed to differ")
	cmd.Flags().BoolVar(&update, "update", false, "Replace baselines with the current frames")
	_ = cmd.MarkFlagRequired("current")
	return cmd
}

func pngNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	sort.Strings(names)
	return names, nil
}
