package config

import (
	"reflect"
	"strings"

	logx "notifyq/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging. Secrets such as the bot token are never included;
// only whether they changed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Int("scheduler.max_queue_size", newCfg.Scheduler.MaxQueueSize),
			logx.String("scheduler.cooldown", strings.TrimSpace(newCfg.Scheduler.Cooldown)),
		)
	}

	od, nd := oldCfg.Display, newCfg.Display
	tokenChanged := od.Telegram.Token != nd.Telegram.Token
	od.Telegram.Token, nd.Telegram.Token = "", ""
	if od != nd || tokenChanged {
		changed = append(changed, "display")
		attrs = append(attrs,
			logx.String("display.driver", nd.Driver),
			logx.Bool("display.token_changed", tokenChanged),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.remote_enabled", newCfg.Logging.Remote.Enabled),
		)
	}

	odbg, ndbg := oldCfg.Debug, newCfg.Debug
	debugTokenChanged := odbg.Token != ndbg.Token
	odbg.Token, ndbg.Token = "", ""
	if odbg != ndbg || debugTokenChanged {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", ndbg.Enabled),
			logx.String("debug.addr", ndbg.Addr),
			logx.Bool("debug.token_changed", debugTokenChanged),
		)
	}

	if strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) ||
		!reflect.DeepEqual(oldCfg.Reminders, newCfg.Reminders) {
		changed = append(changed, "reminders")
		attrs = append(attrs,
			logx.Int("reminders.count", len(newCfg.Reminders)),
			logx.String("timezone", strings.TrimSpace(newCfg.Timezone)),
		)
	}

	return changed, attrs
}

// DisplayChanged reports whether the display adapter must be rebuilt.
func DisplayChanged(oldCfg, newCfg *Config) bool {
	if oldCfg == nil || newCfg == nil {
		return oldCfg != newCfg
	}
	return oldCfg.Display != newCfg.Display
}
