package cmd

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/DanielAIris/liris/internal/config"
	"github.com/DanielAIris/liris/internal/observability"
	"github.com/DanielAIris/liris/internal/scheduling"
)

func newStatusCmd() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show platform availability and usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}

			// Availability needs only profiles, not a live browser.
			store, pool, err := initializeProfiles(ctx, observability.GetLogger(), cfg.ProfilesCfg)
			if err != nil {
				return err
			}
			if pool != nil {
				defer pool.Close()
			}
			scheduler := scheduling.NewUsageScheduler(observability.GetLogger(), store)
			if err := scheduler.LoadStats(usageStatsPath(cfg.ProfilesCfg)); err != nil && !os.IsNotExist(err) {
				observability.GetLogger().Warn("Failed to load usage stats", zap.Error(err))
			}

			availability := scheduler.Availability(ctx)
			if len(availability) == 0 {
				fmt.Println("No platforms configured.")
				return nil
			}

			names := make([]string, 0, len(availability))
			for name := range availability {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				a := availability[name]
				state := "available"
				if !a.Available {
					state = "unavailable: " + a.Reason
				}
				fmt.Printf("%-20s %s\n", name, state)
				if a.MaxPrompts > 0 {
					fmt.Printf("%-20s prompts %d/%d, tokens %d", "",
						a.UsedPrompts, a.MaxPrompts, a.UsedTokens)
					if !a.NextReset.IsZero() {
						fmt.Printf(", resets %s", a.NextReset.Format(time.RFC3339))
					}
					fmt.Println()
				}
			}
			return nil
		},
	}
	return statusCmd
}
