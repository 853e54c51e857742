package app

import (
	"fmt"
	"os"

	"notifyq/internal/config"
	"notifyq/internal/display"
	"notifyq/internal/display/console"
	"notifyq/internal/display/desktop"
	"notifyq/internal/display/telegram"
	"notifyq/internal/notify"
	"notifyq/internal/observability/debugserver"
	logx "notifyq/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Remote: logx.RemoteConfig{
			Enabled:    cfg.Logging.Remote.Enabled,
			MinLevel:   cfg.Logging.Remote.MinLevel,
			RatePerSec: cfg.Logging.Remote.RatePerSec,
		},
	}
}

func mapNotifyConfig(cfg *config.Config) (notify.Config, error) {
	cooldown, err := cfg.Scheduler.CooldownDuration()
	if err != nil {
		return notify.Config{}, err
	}
	return notify.Config{MaxQueueSize: cfg.Scheduler.MaxQueueSize, Cooldown: cooldown}, nil
}

func mapDebugConfig(cfg *config.Config) debugserver.Config {
	d := cfg.Debug
	return debugserver.Config{
		Enabled:       d.Enabled,
		Addr:          d.Addr,
		Token:         d.Token,
		AllowInsecure: d.AllowInsecure,
		Pprof:         d.Pprof,
		PprofPrefix:   d.PprofPrefix,
	}
}

// buildAdapter opens the display surface named by display.driver.
func buildAdapter(cfg *config.Config, log logx.Logger) (display.Adapter, error) {
	d := cfg.Display
	switch d.Driver {
	case config.DriverNone:
		return display.Nop{}, nil
	case config.DriverDesktop:
		ad, err := desktop.New(desktop.Options{AppName: d.Desktop.AppName, Icon: d.Desktop.Icon}, log)
		if err != nil {
			return nil, err
		}
		return ad, nil
	case config.DriverTelegram:
		poll, err := d.Telegram.PollTimeoutDuration()
		if err != nil {
			return nil, err
		}
		ad, err := telegram.New(telegram.Options{
			Token:       d.Telegram.Token,
			ChatID:      d.Telegram.ChatID,
			ThreadID:    d.Telegram.ThreadID,
			PollTimeout: poll,
		}, log)
		if err != nil {
			return nil, err
		}
		return ad, nil
	case config.DriverConsole, "":
		return console.New(console.Options{
			Out:         os.Stdout,
			In:          os.Stdin,
			Color:       d.Console.Color,
			Interactive: d.Console.Interactive,
		}), nil
	default:
		return nil, fmt.Errorf("unknown display driver %q", d.Driver)
	}
}
