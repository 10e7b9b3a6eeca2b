package cmd

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DanielAIris/liris/api/schemas"
	"github.com/DanielAIris/liris/internal/config"
)

func newGroundCmd() *cobra.Command {
	groundCmd := &cobra.Command{
		Use:   "ground <platform>",
		Short: "Locate the platform's interface elements and persist their positions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			platform := args[0]

			comps, err := initializeComponents(ctx, cfg)
			if err != nil {
				comps.Shutdown()
				return err
			}
			defer comps.Shutdown()

			// Opening the session brings the interface on screen before the
			// capture.
			if _, err := comps.Launcher.Session(ctx, platform); err != nil {
				return err
			}

			positions, err := comps.Conductor.Ground(ctx, platform)
			if err != nil {
				var vErr *schemas.ValidationError
				if errors.As(err, &vErr) {
					fmt.Printf("Grounding incomplete for %s, missing: %v\n", platform, vErr.Missing)
					printPositions(vErr.Partial)
					return err
				}
				return err
			}

			fmt.Printf("Grounded %s, positions saved\n", platform)
			printPositions(positions)
			return nil
		},
	}
	return groundCmd
}

func printPositions(positions schemas.PositionSet) {
	names := make([]string, 0, len(positions))
	for name := range positions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		el := positions[name]
		fmt.Printf("  %-16s center=(%d,%d) box=%dx%d", name, el.CenterX, el.CenterY, el.Width, el.Height)
		if el.Confidence > 0 {
			fmt.Printf(" confidence=%.2f", el.Confidence)
		}
		fmt.Println()
	}
}
