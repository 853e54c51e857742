package config

// Config is the notifyd configuration file.
//
// Files may be JSON, YAML (.yaml/.yml) or TOML (.toml). All of them are
// decoded through the strict JSON decoder, so unknown keys are rejected.
// Durations are Go duration strings ("500ms", "10s", "1m").
type Config struct {
	Scheduler SchedulerConfig `json:"scheduler"`
	Display   DisplayConfig   `json:"display"`
	Logging   LoggingConfig   `json:"logging"`
	Debug     DebugConfig     `json:"debug,omitempty"`

	// Timezone for reminder schedules (IANA name). Empty means local time.
	Timezone  string           `json:"timezone,omitempty"`
	Reminders []ReminderConfig `json:"reminders,omitempty"`
}

// SchedulerConfig holds the notification scheduler tunables.
//
// Defaults (when fields are omitted/zero):
//   - max_queue_size: 10
//   - cooldown: "1s"
//   - shutdown_grace: "5s"
type SchedulerConfig struct {
	MaxQueueSize  int    `json:"max_queue_size,omitempty"`
	Cooldown      string `json:"cooldown,omitempty"`
	ShutdownGrace string `json:"shutdown_grace,omitempty"`
}

// DisplayConfig selects and configures the display adapter.
//
// Driver values: "console" (default), "desktop", "telegram", "none".
type DisplayConfig struct {
	Driver   string          `json:"driver,omitempty"`
	Console  ConsoleDisplay  `json:"console,omitempty"`
	Desktop  DesktopDisplay  `json:"desktop,omitempty"`
	Telegram TelegramDisplay `json:"telegram,omitempty"`
}

type ConsoleDisplay struct {
	// Color is "auto" (default), "always" or "never".
	Color string `json:"color,omitempty"`
	// Interactive prompts on stdin for an action when a notice has actions.
	Interactive bool `json:"interactive,omitempty"`
}

type DesktopDisplay struct {
	AppName string `json:"app_name,omitempty"`
	Icon    string `json:"icon,omitempty"`
}

type TelegramDisplay struct {
	Token    string `json:"token,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
	// PollTimeout is a Go duration string (default "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console bool          `json:"console"`
	File    LoggingFile   `json:"file,omitempty"`
	Remote  LoggingRemote `json:"remote,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// LoggingRemote forwards warn+ log lines through the display adapter when it
// supports it (telegram).
type LoggingRemote struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// DebugConfig controls the optional HTTP debug server (/healthz, /status and
// pprof). Binding to a non-loopback address requires Token or AllowInsecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	// Pprof serves profiles under <pprof_prefix>/pprof/ (prefix default "/debug").
	Pprof       bool   `json:"pprof,omitempty"`
	PprofPrefix string `json:"pprof_prefix,omitempty"`
}

// ReminderConfig is a scheduled notice.
//
// Schedule accepts cron ("*/5 * * * *", "@hourly"), a Go duration ("55m") or
// HH:MM ("02:30" meaning every 2h30m).
type ReminderConfig struct {
	Name     string   `json:"name"`
	Schedule string   `json:"schedule"`
	Message  string   `json:"message"`
	Type     string   `json:"type,omitempty"`
	Priority string   `json:"priority,omitempty"`
	Detail   string   `json:"detail,omitempty"`
	Actions  []string `json:"actions,omitempty"`
	Disabled bool     `json:"disabled,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Display: DisplayConfig{Driver: "console"},
		Logging: LoggingConfig{Level: "info", Console: true},
	}
}
