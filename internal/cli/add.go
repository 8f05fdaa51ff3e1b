package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/hydrosync/internal/hydration"
	"github.com/rcliao/hydrosync/internal/model"
	"github.com/rcliao/hydrosync/internal/transport"
)

func init() {
	cmd := &cobra.Command{
		Use:   "add <amount|small|medium|large>",
		Short: "Record a drink",
		Long:  "Record a drink in the current display unit (mL or fl oz), or one of the quick-add sizes. Today's new total is pushed to companion devices.",
		Args:  cobra.ExactArgs(1),
		Run:   runAdd,
	}

	cmd.Flags().String("date", "", "Day to record on, YYYY-MM-DD (default: today)")
	cmd.Flags().Bool("push", true, "Push the new total to companion devices")

	RootCmd.AddCommand(cmd)
}

func runAdd(cmd *cobra.Command, args []string) {
	dateStr, _ := cmd.Flags().GetString("date")
	push, _ := cmd.Flags().GetBool("push")
	ctx := cmd.Context()

	a := openApp(ctx)
	defer a.Close()

	unit, err := a.state.Unit(ctx)
	if err != nil {
		exitErr("read unit", err)
	}

	amount, err := parseAmount(args[0], model.QuickAddFor(unit))
	if err != nil {
		exitErr("add", err)
	}

	day := a.tracker.Now()
	if dateStr != "" {
		if day, err = hydration.ParseDay(dateStr, a.tracker.Location()); err != nil {
			exitErr("add", err)
		}
	}

	total, err := a.tracker.AddOn(ctx, day, unit.FromDisplay(amount), model.SourceCLI)
	if err != nil {
		exitErr("add", err)
	}

	isToday := model.StartOfDay(day, a.tracker.Location()).Equal(model.StartOfDay(a.tracker.Now(), a.tracker.Location()))
	pushed := "skipped"
	if push && isToday {
		pushed = a.peers(ctx).PushIntake(ctx).String()
	}

	output(map[string]any{
		"date":      day.Format(model.DayLayout),
		"added":     amount,
		"hydration": unit.ToDisplay(total),
		"isMetric":  unit.IsMetric(),
		"push":      pushed,
	}, fmt.Sprintf("%s on %s (added %s)", unit.Format(total), day.Format(model.DayLayout), unit.Format(unit.FromDisplay(amount))))
}

func parseAmount(s string, q model.QuickAdd) (float64, error) {
	switch s {
	case "small":
		return q.Small, nil
	case "medium":
		return q.Medium, nil
	case "large":
		return q.Large, nil
	}
	v, err := transport.DecodeAmount(s)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
