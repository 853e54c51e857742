package config

import (
	"fmt"
	"strings"
	"time"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

const (
	defaultShutdownGrace = 5 * time.Second
	defaultPollTimeout   = 10 * time.Second
)

// CooldownDuration returns the configured cooldown, or 0 for "use default".
func (c SchedulerConfig) CooldownDuration() (time.Duration, error) {
	return ParseDurationField("scheduler.cooldown", c.Cooldown)
}

func (c SchedulerConfig) ShutdownGraceDuration() (time.Duration, error) {
	return ParseDurationOrDefault("scheduler.shutdown_grace", c.ShutdownGrace, defaultShutdownGrace)
}

func (c TelegramDisplay) PollTimeoutDuration() (time.Duration, error) {
	return ParseDurationOrDefault("display.telegram.poll_timeout", c.PollTimeout, defaultPollTimeout)
}
