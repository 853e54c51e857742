package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"notifyq/internal/config"
	"notifyq/internal/notify"
	"notifyq/internal/reminder"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	configCmd.AddCommand(newConfigCheckCommand(ctx))
	return configCmd
}

func newConfigCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and print effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			m := ctx.manager()
			cfg, err := m.Load(context.Background())
			if err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}
			list, err := reminder.FromConfig(cfg.Reminders)
			if err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}

			out := cmd.OutOrStdout()
			path := m.Path()
			if path == "" {
				path = "(defaults)"
			}
			fmt.Fprintf(out, "Configuration valid: %s\n", path)
			fmt.Fprintln(out, renderTable([]string{"Setting", "Value"}, settingsRows(cfg), nil))
			if len(list) > 0 {
				fmt.Fprintln(out, renderTable(
					[]string{"Reminder", "Schedule", "Priority", "Next"},
					reminderRows(list, cfg.Location(), time.Now()),
					nil,
				))
			}
			return nil
		},
	}
}

func settingsRows(cfg *config.Config) [][]string {
	cooldown, _ := cfg.Scheduler.CooldownDuration()
	grace, _ := cfg.Scheduler.ShutdownGraceDuration()
	eff := notify.Config{MaxQueueSize: cfg.Scheduler.MaxQueueSize, Cooldown: cooldown}.WithDefaults()

	driver := cfg.Display.Driver
	if driver == "" {
		driver = config.DriverConsole
	}
	tz := cfg.Timezone
	if tz == "" {
		tz = "local"
	}
	rows := [][]string{
		{"scheduler.max_queue_size", strconv.Itoa(eff.MaxQueueSize)},
		{"scheduler.cooldown", eff.Cooldown.String()},
		{"scheduler.shutdown_grace", grace.String()},
		{"display.driver", driver},
		{"logging.level", cfg.Logging.Level},
		{"timezone", tz},
	}
	if driver == config.DriverTelegram {
		rows = append(rows, []string{"display.telegram.chat_id", strconv.FormatInt(cfg.Display.Telegram.ChatID, 10)})
	}
	return rows
}

func reminderRows(list []reminder.Reminder, loc *time.Location, now time.Time) [][]string {
	rows := make([][]string, 0, len(list))
	for _, r := range list {
		next := "-"
		if t := r.Schedule.Next(now, loc); !t.IsZero() {
			next = t.Format("2006-01-02 15:04:05 MST")
		}
		rows = append(rows, []string{r.Name, r.Schedule.String(), r.Request.Priority.String(), next})
	}
	return rows
}
