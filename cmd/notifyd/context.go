package main

import (
	"os"
	"strings"

	"notifyq/internal/app"
	"notifyq/internal/config"
)

type commandContext struct {
	configFlag string

	// environ replaces the process environment for NOTIFYD_* lookups and
	// appOpts are appended to every app.New call. Tests set both.
	environ map[string]string
	appOpts []app.Option
}

// configPath returns --config, then $NOTIFYD_CONFIG, then "" (defaults only).
func (c *commandContext) configPath() string {
	if p := strings.TrimSpace(c.configFlag); p != "" {
		return p
	}
	if c.environ != nil {
		return strings.TrimSpace(c.environ[config.EnvPrefix+"CONFIG"])
	}
	return strings.TrimSpace(os.Getenv(config.EnvPrefix + "CONFIG"))
}

func (c *commandContext) manager() *config.ConfigManager {
	m := config.NewConfigManager(c.configPath())
	if c.environ != nil {
		m.SetEnvironment(c.environ)
	}
	return m
}

func (c *commandContext) newApp(opts ...app.Option) (*app.App, error) {
	return app.New(c.manager(), append(opts, c.appOpts...)...)
}
