package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"notifyq/internal/notify"
	logx "notifyq/pkg/logx"
)

// Display drivers accepted by display.driver.
const (
	DriverConsole  = "console"
	DriverDesktop  = "desktop"
	DriverTelegram = "telegram"
	DriverNone     = "none"
)

// Validate checks the static parts of cfg and normalizes the driver name.
// Reminder schedules are checked by the reminder package through SetValidator.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if cfg.Scheduler.MaxQueueSize < 0 {
		errs = append(errs, errors.New("scheduler.max_queue_size must be >= 0"))
	}
	if _, err := cfg.Scheduler.CooldownDuration(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.Scheduler.ShutdownGraceDuration(); err != nil {
		errs = append(errs, err)
	}

	cfg.Display.Driver = strings.ToLower(strings.TrimSpace(cfg.Display.Driver))
	switch cfg.Display.Driver {
	case "":
		cfg.Display.Driver = DriverConsole
	case DriverConsole, DriverDesktop, DriverNone:
	case DriverTelegram:
		if strings.TrimSpace(cfg.Display.Telegram.Token) == "" {
			errs = append(errs, errors.New("display.telegram.token is required (or set "+EnvPrefix+"TELEGRAM_TOKEN)"))
		}
		if cfg.Display.Telegram.ChatID == 0 {
			errs = append(errs, errors.New("display.telegram.chat_id is required"))
		}
		if _, err := cfg.Display.Telegram.PollTimeoutDuration(); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("display.driver: unknown driver %q", cfg.Display.Driver))
	}
	switch strings.ToLower(cfg.Display.Console.Color) {
	case "", "auto", "always", "never":
	default:
		errs = append(errs, fmt.Errorf("display.console.color: want auto|always|never, got %q", cfg.Display.Console.Color))
	}

	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" {
		if _, ok := logx.ParseLevel(lvl); !ok {
			errs = append(errs, fmt.Errorf("logging.level: unknown level %q", lvl))
		}
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		errs = append(errs, errors.New("logging.file.path is required when logging.file.enabled"))
	}

	if cfg.Debug.Enabled && strings.TrimSpace(cfg.Debug.Addr) != "" {
		if _, _, err := net.SplitHostPort(strings.TrimSpace(cfg.Debug.Addr)); err != nil {
			errs = append(errs, fmt.Errorf("debug.addr: %w", err))
		}
	}

	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("timezone: %w", err))
		}
	}

	seen := make(map[string]struct{}, len(cfg.Reminders))
	for i, r := range cfg.Reminders {
		path := fmt.Sprintf("reminders[%d]", i)
		name := strings.TrimSpace(r.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", path))
		} else if _, dup := seen[name]; dup {
			errs = append(errs, fmt.Errorf("%s.name: duplicate %q", path, name))
		}
		seen[name] = struct{}{}
		if strings.TrimSpace(r.Schedule) == "" {
			errs = append(errs, fmt.Errorf("%s.schedule is required", path))
		}
		if strings.TrimSpace(r.Message) == "" {
			errs = append(errs, fmt.Errorf("%s.message is required", path))
		}
		if _, err := notify.ParseType(r.Type); err != nil {
			errs = append(errs, fmt.Errorf("%s.type: %w", path, err))
		}
		if _, err := notify.ParsePriority(r.Priority); err != nil {
			errs = append(errs, fmt.Errorf("%s.priority: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

// Location returns the configured reminder timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c == nil || strings.TrimSpace(c.Timezone) == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(strings.TrimSpace(c.Timezone))
	if err != nil {
		return time.Local
	}
	return loc
}
