package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/hydrosync/internal/hydration"
)

func init() {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show daily totals for a month",
		Run:   runHistory,
	}

	cmd.Flags().String("date", "", "Any day in the month to show, YYYY-MM-DD (default: this month)")

	RootCmd.AddCommand(cmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	dateStr, _ := cmd.Flags().GetString("date")
	ctx := cmd.Context()
	a := openApp(ctx)
	defer a.Close()

	day := a.tracker.Now()
	if dateStr != "" {
		var err error
		if day, err = hydration.ParseDay(dateStr, a.tracker.Location()); err != nil {
			exitErr("history", err)
		}
	}

	unit, err := a.state.Unit(ctx)
	if err != nil {
		exitErr("read unit", err)
	}

	month := a.tracker.Month(ctx, day)
	days := make([]string, 0, len(month))
	history := make(map[string]float64, len(month))
	for k, v := range month {
		days = append(days, k)
		history[k] = unit.ToDisplay(v)
	}
	sort.Strings(days)

	var b strings.Builder
	for _, d := range days {
		fmt.Fprintf(&b, "%s  %s\n", d, unit.Format(month[d]))
	}

	output(map[string]any{
		"history":  history,
		"isMetric": unit.IsMetric(),
	}, strings.TrimRight(b.String(), "\n"))
}
