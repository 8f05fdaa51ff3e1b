package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/hydrosync/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reminder",
		Short: "Show or change reminder settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print reminder settings",
		Run:   runReminderShow,
	}

	set := &cobra.Command{
		Use:   "set",
		Short: "Change reminder settings",
		Long:  "Change reminder settings. Only the flags given are changed. A running daemon picks the change up within a minute.",
		Run:   runReminderSet,
	}
	set.Flags().Bool("enabled", false, "Enable reminders")
	set.Flags().Int("interval", 0, "Minutes between reminders")
	set.Flags().Int("start", 0, "First hour (0-23) reminders may fire")
	set.Flags().Int("end", 0, "Hour (0-23) reminders stop; before start wraps past midnight")
	set.Flags().Bool("despite-goal", false, "Keep reminding after the goal is met")

	cmd.AddCommand(show, set)
	RootCmd.AddCommand(cmd)
}

func reminderText(c model.ReminderConfig) string {
	state := "off"
	if c.Enabled {
		state = "on"
	}
	return fmt.Sprintf("reminders %s: every %d min between %02d:00 and %02d:00, despite goal: %t",
		state, c.IntervalMinutes, c.WindowStart, c.WindowEnd, c.RemindDespiteGoal)
}

func runReminderShow(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := openApp(ctx)
	defer a.Close()

	cfg, err := a.state.Reminder(ctx)
	if err != nil {
		exitErr("read reminder", err)
	}
	output(cfg, reminderText(cfg))
}

func runReminderSet(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := openApp(ctx)
	defer a.Close()

	cfg, err := a.state.Reminder(ctx)
	if err != nil {
		exitErr("read reminder", err)
	}

	flags := cmd.Flags()
	if flags.Changed("enabled") {
		cfg.Enabled, _ = flags.GetBool("enabled")
	}
	if flags.Changed("interval") {
		cfg.IntervalMinutes, _ = flags.GetInt("interval")
	}
	if flags.Changed("start") {
		cfg.WindowStart, _ = flags.GetInt("start")
	}
	if flags.Changed("end") {
		cfg.WindowEnd, _ = flags.GetInt("end")
	}
	if flags.Changed("despite-goal") {
		cfg.RemindDespiteGoal, _ = flags.GetBool("despite-goal")
	}

	if err := cfg.Validate(); err != nil {
		exitErr("reminder", err)
	}
	if err := a.state.SetReminder(ctx, cfg); err != nil {
		exitErr("set reminder", err)
	}
	output(cfg, reminderText(cfg))
}
