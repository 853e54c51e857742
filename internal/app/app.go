// Package app wires configuration, logging, the display adapter, the
// notification scheduler and reminders into one process.
//
// The App owns the single notification scheduler instance. Notifier creates it
// on first use and ResetNotifier disposes it, so the next call starts fresh.
package app

import (
	"context"
	"fmt"
	"sync"

	"notifyq/internal/config"
	"notifyq/internal/display"
	"notifyq/internal/eventbus"
	"notifyq/internal/notify"
	"notifyq/internal/observability/debugserver"
	"notifyq/internal/reminder"
	"notifyq/internal/runtime/supervisor"
	logx "notifyq/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	// fixedAdapter is set when the adapter was injected; config reloads then
	// leave the display alone.
	fixedAdapter bool
	noReminders  bool

	mu        sync.Mutex
	cfg       *config.Config
	adapter   display.Adapter
	notifyCfg notify.Config
	notifier  *notify.Service

	reminders *reminder.Service
	debug     *debugserver.Server
	sup       *supervisor.Supervisor
}

type Option func(*options)

type options struct {
	adapter     display.Adapter
	log         *logx.Logger
	noReminders bool
}

// WithAdapter replaces the configured display driver.
func WithAdapter(ad display.Adapter) Option { return func(o *options) { o.adapter = ad } }

// WithLogger replaces the configured logging service. Mostly useful in tests.
func WithLogger(log logx.Logger) Option { return func(o *options) { o.log = &log } }

// WithoutReminders keeps configured reminders validated but never scheduled.
// One-shot commands use it.
func WithoutReminders() Option { return func(o *options) { o.noReminders = true } }

// New loads the config from cfgm and builds every component. Nothing runs
// until Start, but Notifier is usable right away.
func New(cfgm *config.ConfigManager, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	a := &App{cfgm: cfgm, bus: eventbus.New(), noReminders: o.noReminders}
	cfgm.SetValidator(a.validate)
	cfg, err := cfgm.Load(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if o.log != nil {
		a.log = *o.log
	} else {
		a.logs, a.log = logx.New(mapLogConfig(cfg))
	}
	cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	ncfg, err := mapNotifyConfig(cfg)
	if err != nil {
		return nil, err
	}

	ad := o.adapter
	if ad != nil {
		a.fixedAdapter = true
	} else if ad, err = buildAdapter(cfg, a.log.With(logx.String("comp", "display"))); err != nil {
		a.closeLogs()
		return nil, fmt.Errorf("display %s: %w", cfg.Display.Driver, err)
	}

	a.cfg = cfg
	a.adapter = ad
	a.notifyCfg = ncfg
	a.setForwarder(ad)

	list, err := reminder.FromConfig(cfg.Reminders)
	if err != nil {
		return nil, err
	}
	a.reminders = reminder.New(appNotifier{a}, a.log.With(logx.String("comp", "reminder")), a.bus)
	if a.noReminders {
		list = nil
	}
	a.reminders.Apply(list, cfg.Location())
	a.debug = debugserver.New(mapDebugConfig(cfg), func() any { return a.Status() }, a.log.With(logx.String("comp", "debug")))

	a.log.Debug("app configured",
		logx.String("display", cfg.Display.Driver),
		logx.Int("max_queue_size", ncfg.MaxQueueSize),
		logx.Duration("cooldown", ncfg.Cooldown),
		logx.Int("reminders", len(list)),
	)
	return a, nil
}

// validate runs on every load and reload, after config.Validate.
func (a *App) validate(ctx context.Context, cfg *config.Config) error {
	if _, err := reminder.FromConfig(cfg.Reminders); err != nil {
		return err
	}
	_, err := mapNotifyConfig(cfg)
	return err
}

// Notifier returns the notification scheduler, creating it on first use.
func (a *App) Notifier() *notify.Service {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.notifier == nil {
		a.notifier = notify.New(a.notifyCfg, a.adapter, a.log.With(logx.String("comp", "notify")), a.bus)
	}
	return a.notifier
}

// ResetNotifier disposes the current scheduler, if any. Waiting callers get
// notify.ErrDisposed and the next Notifier call builds a fresh instance.
func (a *App) ResetNotifier() {
	a.mu.Lock()
	n := a.notifier
	a.notifier = nil
	a.mu.Unlock()
	if n != nil {
		n.Dispose()
		a.log.Debug("notifier reset")
	}
}

func (a *App) Bus() eventbus.Bus { return a.bus }

func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Reminders() *reminder.Service { return a.reminders }

// Config returns the config currently applied.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Adapter returns the current display adapter.
func (a *App) Adapter() display.Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.adapter
}

func (a *App) setForwarder(ad display.Adapter) {
	if a.logs == nil {
		return
	}
	if f, ok := ad.(logx.Forwarder); ok {
		a.logs.SetForwarder(f)
		return
	}
	a.logs.SetForwarder(nil)
}

func (a *App) closeLogs() {
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

// appNotifier resolves the scheduler on every call so reminders follow
// ResetNotifier.
type appNotifier struct{ a *App }

func (n appNotifier) ShowNotification(ctx context.Context, req notify.Request) (string, error) {
	return n.a.Notifier().ShowNotification(ctx, req)
}
