package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "streaks",
		Short: "Show the longest and current goal streaks",
		Run:   runStreaks,
	}

	RootCmd.AddCommand(cmd)
}

func runStreaks(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := openApp(ctx)
	defer a.Close()

	s, err := a.tracker.Streaks(ctx)
	if err != nil {
		exitErr("streaks", err)
	}
	output(s, fmt.Sprintf("current: %d days, longest: %d days", s.Current, s.Longest))
}
