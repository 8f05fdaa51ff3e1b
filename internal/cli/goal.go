package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/hydrosync/internal/transport"
)

func init() {
	cmd := &cobra.Command{
		Use:   "goal [amount]",
		Short: "Show or set the daily goal",
		Long:  "Show the daily goal, or set it in the current display unit. A new goal is pushed to companion devices.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runGoal,
	}

	cmd.Flags().Bool("push", true, "Push the new goal to companion devices")

	RootCmd.AddCommand(cmd)
}

func runGoal(cmd *cobra.Command, args []string) {
	push, _ := cmd.Flags().GetBool("push")
	ctx := cmd.Context()
	a := openApp(ctx)
	defer a.Close()

	unit, err := a.state.Unit(ctx)
	if err != nil {
		exitErr("read unit", err)
	}

	pushed := "skipped"
	if len(args) == 1 {
		v, err := transport.DecodeAmount(args[0])
		if err != nil || v <= 0 {
			exitErr("goal", fmt.Errorf("goal must be a positive number, got %q", args[0]))
		}
		if err := a.state.SetGoal(ctx, unit.FromDisplay(v)); err != nil {
			exitErr("set goal", err)
		}
		if push {
			pushed = a.peers(ctx).PushGoal(ctx).String()
		}
	}

	goal, err := a.state.Goal(ctx)
	if err != nil {
		exitErr("read goal", err)
	}
	text := "no goal set"
	if goal > 0 {
		text = unit.Format(goal)
	}
	output(map[string]any{
		"goal":     unit.ToDisplay(goal),
		"isMetric": unit.IsMetric(),
		"push":     pushed,
	}, text)
}
