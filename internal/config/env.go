package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every override variable name.
const EnvPrefix = "NOTIFYD_"

// DotEnvFile is read from the config file's directory when present. Real
// environment variables win over its values.
const DotEnvFile = "notifyd.env"

// envOverrides lists the settings that can be overridden from the environment.
// Secrets (the bot token) are expected to come from here rather than the file.
type envOverrides struct {
	LogLevel       string `env:"LOG_LEVEL"`
	MaxQueueSize   int    `env:"MAX_QUEUE_SIZE"`
	Cooldown       string `env:"COOLDOWN"`
	Display        string `env:"DISPLAY"`
	TelegramToken  string `env:"TELEGRAM_TOKEN"`
	TelegramChatID int64  `env:"TELEGRAM_CHAT_ID"`
	Timezone       string `env:"TIMEZONE"`
}

// applyEnv overlays NOTIFYD_* variables onto cfg. A nil environ reads the process environment.
func applyEnv(cfg *Config, environ map[string]string) error {
	o := envOverrides{
		LogLevel:       cfg.Logging.Level,
		MaxQueueSize:   cfg.Scheduler.MaxQueueSize,
		Cooldown:       cfg.Scheduler.Cooldown,
		Display:        cfg.Display.Driver,
		TelegramToken:  cfg.Display.Telegram.Token,
		TelegramChatID: cfg.Display.Telegram.ChatID,
		Timezone:       cfg.Timezone,
	}
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	cfg.Logging.Level = o.LogLevel
	cfg.Scheduler.MaxQueueSize = o.MaxQueueSize
	cfg.Scheduler.Cooldown = o.Cooldown
	cfg.Display.Driver = o.Display
	cfg.Display.Telegram.Token = o.TelegramToken
	cfg.Display.Telegram.ChatID = o.TelegramChatID
	cfg.Timezone = o.Timezone
	return nil
}

// environment returns the variables used for overrides: the injected (or
// process) environment on top of DotEnvFile next to the config file.
func (m *ConfigManager) environment() (map[string]string, error) {
	base := m.env
	if base == nil {
		base = env.ToMap(os.Environ())
	}
	if m.path == "" {
		return base, nil
	}
	p := filepath.Join(filepath.Dir(m.path), DotEnvFile)
	vars, err := godotenv.Read(p)
	if errors.Is(err, fs.ErrNotExist) {
		return base, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	for k, v := range base {
		vars[k] = v
	}
	return vars, nil
}
