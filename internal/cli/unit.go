package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/hydrosync/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:       "unit [metric|imperial]",
		Short:     "Show or set the unit system",
		Long:      "Show or set the unit system. Stored volumes are unchanged; only display and quick-add sizes follow the unit.",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"metric", "imperial"},
		Run:       runUnit,
	}

	cmd.Flags().Bool("push", true, "Push the new unit to companion devices")

	RootCmd.AddCommand(cmd)
}

func runUnit(cmd *cobra.Command, args []string) {
	push, _ := cmd.Flags().GetBool("push")
	ctx := cmd.Context()
	a := openApp(ctx)
	defer a.Close()

	pushed := "skipped"
	if len(args) == 1 {
		if err := a.state.SetUnit(ctx, model.UnitFromMetric(args[0] == "metric")); err != nil {
			exitErr("set unit", err)
		}
		if push {
			pushed = a.peers(ctx).PushUnit(ctx).String()
		}
	}

	unit, err := a.state.Unit(ctx)
	if err != nil {
		exitErr("read unit", err)
	}
	output(map[string]any{
		"isMetric": unit.IsMetric(),
		"label":    unit.Label(),
		"push":     pushed,
	}, fmt.Sprintf("unit: %s", unit.Label()))
}
