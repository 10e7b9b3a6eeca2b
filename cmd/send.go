package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/DanielAIris/liris/api/schemas"
	"github.com/DanielAIris/liris/internal/config"
	"github.com/DanielAIris/liris/internal/orchestrator"
)

func newSendCmd() *cobra.Command {
	sendCmd := &cobra.Command{
		Use:   "send <platform> <prompt>",
		Short: "Submit a prompt to a grounded platform",
		Args:  cobra.MinimumNArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}

			platform := args[0]
			prompt := strings.Join(args[1:], " ")
			priority, _ := cmd.Flags().GetInt("priority")
			sync, _ := cmd.Flags().GetBool("sync")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			mode, _ := cmd.Flags().GetString("mode")

			comps, err := initializeComponents(ctx, cfg)
			if err != nil {
				comps.Shutdown()
				return err
			}
			defer comps.Shutdown()

			sub := orchestrator.Submission{
				Platform: platform,
				Prompt:   prompt,
				Mode:     schemas.TaskMode(mode),
				Priority: priority,
				Timeout:  timeout,
			}

			if sync {
				task, err := comps.Conductor.SubmitSync(ctx, sub)
				if task.ID != 0 {
					// A record exists even for failed executions; show it.
					printResult(task)
				}
				return err
			}

			comps.Conductor.Start(ctx)
			id, err := comps.Conductor.SubmitAsync(ctx, sub)
			if err != nil {
				return err
			}
			fmt.Printf("Task %d queued on %s\n", id, platform)

			waitTimeout := timeout
			if waitTimeout <= 0 {
				waitTimeout = cfg.EngineCfg.DefaultTaskTimeout
			}
			// Grace on top of the task's own timeout so re-queue backoffs can
			// play out.
			task, ok := comps.Conductor.WaitFor(ctx, id, waitTimeout+time.Minute)
			if !ok {
				comps.Logger.Warn("Timed out waiting for task", zap.Int64("task_id", id))
				return fmt.Errorf("task %d did not finish in time", id)
			}
			printResult(task)
			return nil
		},
	}

	sendCmd.Flags().IntP("priority", "p", 2, "Dispatch priority (lower is more urgent)")
	sendCmd.Flags().Bool("sync", false, "Execute inline, bypassing the dispatch queue")
	sendCmd.Flags().DurationP("timeout", "t", 0, "Per-task timeout (default from config)")
	sendCmd.Flags().String("mode", string(schemas.ModeStandard), "Delivery mode")
	return sendCmd
}

func printResult(task schemas.Task) {
	switch task.Status {
	case schemas.TaskCompleted:
		fmt.Printf("Task %d completed in %s (~%d tokens)\n\n%s\n",
			task.ID, task.Result.Duration.Round(time.Millisecond),
			task.Result.TokenEstimate, task.Result.Response)
	case schemas.TaskFailed:
		fmt.Printf("Task %d failed: %s\n", task.ID, task.Error)
	default:
		fmt.Printf("Task %d is %s\n", task.ID, task.Status)
	}
}
