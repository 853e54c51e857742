package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"notifyq/internal/app"
	logx "notifyq/pkg/logx"
	"notifyq/pkg/systemd"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the notification daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.newApp()
			if err != nil {
				return err
			}
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigs)
			return runDaemon(cmd.Context(), a, sigs)
		},
	}
}

// runDaemon starts a and blocks until a signal arrives, ctx ends or a
// background component fails. It always stops a before returning.
func runDaemon(ctx context.Context, a *app.App, sigs <-chan os.Signal) error {
	log := a.Logger()
	if err := a.Start(ctx); err != nil {
		return err
	}
	if _, err := systemd.Ready("running"); err != nil {
		log.Warn("sd_notify ready failed", logx.Err(err))
	}

	wdCtx, wdCancel := context.WithCancel(ctx)
	defer wdCancel()
	go func() {
		if err := systemd.Watchdog(wdCtx); err != nil {
			log.Warn("systemd watchdog stopped", logx.Err(err))
		}
	}()

	reason := app.StopAppStop
	select {
	case sig := <-sigs:
		reason = app.ReasonForSignal(sig)
	case <-a.Done():
		if a.Err() != nil {
			reason = app.StopFatalError
		}
	}
	_, _ = systemd.Stopping(string(reason))

	grace, err := a.Config().Scheduler.ShutdownGraceDuration()
	if err != nil {
		grace = 5 * time.Second
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace+10*time.Second)
	defer cancel()
	fatal := a.Err()
	_ = a.Stop(stopCtx, reason)

	if reason == app.StopFatalError {
		return fatal
	}
	return nil
}
