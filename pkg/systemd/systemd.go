// Package systemd reports service state to systemd via sd_notify. Every call
// is a no-op when the process is not run by systemd (NOTIFY_SOCKET unset).
package systemd

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// notify is swapped in tests.
var notify = daemon.SdNotify

// Ready reports READY=1 with a status line.
func Ready(status string) (bool, error) {
	return send(daemon.SdNotifyReady, status)
}

// Reloading reports RELOADING=1 while a config reload is applied.
func Reloading(status string) (bool, error) {
	return send(daemon.SdNotifyReloading, status)
}

// Stopping reports STOPPING=1.
func Stopping(status string) (bool, error) {
	return send(daemon.SdNotifyStopping, status)
}

// Status updates the free-form STATUS= line.
func Status(status string) (bool, error) {
	return notify(false, "STATUS="+status)
}

func send(state, status string) (bool, error) {
	if status != "" {
		state = fmt.Sprintf("%s\nSTATUS=%s", state, status)
	}
	return notify(false, state)
}

// Watchdog pings WATCHDOG=1 at half the configured interval until ctx ends.
// It returns immediately when the unit has no WatchdogSec.
func Watchdog(ctx context.Context) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return err
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := notify(false, daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}
