package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"notifyq/internal/app"
	"notifyq/internal/notify"
)

func newSendCommand(ctx *commandContext) *cobra.Command {
	var (
		typ      string
		priority string
		detail   string
		actions  []string
		modal    bool
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Show one notification and print the chosen action",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := notify.ParseType(typ)
			if err != nil {
				return err
			}
			req := notify.Request{
				Message:  strings.Join(args, " "),
				Type:     t,
				Priority: notify.DefaultPriority(t),
				Detail:   detail,
				Actions:  actions,
				Modal:    modal,
				Source:   "cli",
			}
			if priority != "" {
				if req.Priority, err = notify.ParsePriority(priority); err != nil {
					return err
				}
			}

			a, err := ctx.newApp(app.WithoutReminders())
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := a.Start(runCtx); err != nil {
				return err
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = a.Stop(stopCtx, app.StopAppStop)
			}()

			waitCtx := runCtx
			if timeout > 0 {
				var cancel context.CancelFunc
				waitCtx, cancel = context.WithTimeout(runCtx, timeout)
				defer cancel()
			}
			action, err := a.Notifier().ShowNotification(waitCtx, req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if action == "" {
				fmt.Fprintln(out, "(dismissed)")
				return nil
			}
			fmt.Fprintln(out, action)
			return nil
		},
	}

	cmd.Flags().StringVarP(&typ, "type", "t", "info", "Notification type: info, warning, error or progress")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "Priority: low, normal or high (default depends on type)")
	cmd.Flags().StringVarP(&detail, "detail", "d", "", "Secondary text")
	cmd.Flags().StringArrayVarP(&actions, "action", "a", nil, "Action label (repeatable)")
	cmd.Flags().BoolVar(&modal, "modal", false, "Ask the display to keep the notice until answered")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up waiting after this long (0 waits forever)")
	return cmd
}
