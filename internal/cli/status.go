package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/hydrosync/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show today's intake against the goal",
		Run:   runStatus,
	}

	RootCmd.AddCommand(cmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := openApp(ctx)
	defer a.Close()

	total := a.tracker.Today(ctx)
	goal, err := a.state.Goal(ctx)
	if err != nil {
		exitErr("read goal", err)
	}
	unit, err := a.state.Unit(ctx)
	if err != nil {
		exitErr("read unit", err)
	}

	text := fmt.Sprintf("%s today", unit.Format(total))
	if goal > 0 {
		text = fmt.Sprintf("%s of %s today (%.0f%%)", unit.Format(total), unit.Format(goal), 100*total/goal)
	}

	output(map[string]any{
		"date":      a.tracker.Now().Format(model.DayLayout),
		"hydration": unit.ToDisplay(total),
		"goal":      unit.ToDisplay(goal),
		"goalMet":   model.GoalMet(total, goal),
		"isMetric":  unit.IsMetric(),
		"quickAdd":  a.tracker.QuickAdd(ctx),
	}, text)
}
