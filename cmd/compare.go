package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DanielAIris/liris/internal/config"
)

func newCompareCmd() *cobra.Command {
	compareCmd := &cobra.Command{
		Use:   "compare <prompt>",
		Short: "Send the same prompt to several platforms and collect all replies",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}

			prompt := strings.Join(args, " ")
			platforms, _ := cmd.Flags().GetStringSlice("platforms")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			if len(platforms) == 0 {
				return fmt.Errorf("at least one platform is required (--platforms)")
			}

			comps, err := initializeComponents(ctx, cfg)
			if err != nil {
				comps.Shutdown()
				return err
			}
			defer comps.Shutdown()

			outcomes := comps.Conductor.Compare(ctx, prompt, platforms, timeout)

			names := make([]string, 0, len(outcomes))
			for name := range outcomes {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				o := outcomes[name]
				fmt.Printf("== %s (%s)\n", name, o.Duration.Round(time.Millisecond))
				switch {
				case o.TimedOut:
					fmt.Println("   timed out")
				case o.Error != "":
					fmt.Printf("   error: %s\n", o.Error)
				default:
					fmt.Printf("   %s\n", o.Response)
				}
			}
			return nil
		},
	}

	compareCmd.Flags().StringSlice("platforms", nil, "Comma-separated platforms to query")
	compareCmd.Flags().DurationP("timeout", "t", 90*time.Second, "Overall comparison timeout")
	return compareCmd
}
