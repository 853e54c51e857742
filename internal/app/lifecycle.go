package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"notifyq/internal/config"
	"notifyq/internal/display"
	"notifyq/internal/eventbus"
	"notifyq/internal/reminder"
	"notifyq/internal/runtime/supervisor"
	logx "notifyq/pkg/logx"
	"notifyq/pkg/systemd"
)

// EventConfigReloaded carries the changed section names ([]string).
const EventConfigReloaded = "config.reloaded"

// starter is implemented by adapters with background work (telegram polling).
type starter interface {
	Start(ctx context.Context)
}

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start runs reminders, adapter background work, config watching and
// hot reload until ctx ends or Stop is called.
func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return fmt.Errorf("app already started")
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))), supervisor.WithCancelOnError(true))
	runCtx := a.sup.Context()

	if s, ok := a.Adapter().(starter); ok {
		s.Start(runCtx)
	}
	a.reminders.Start(runCtx)
	a.debug.Start(runCtx)

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Trace("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(c, newCfg)
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started",
		logx.String("config", a.cfgm.Path()),
		logx.String("display", a.Config().Display.Driver),
	)
	return nil
}

// applyConfig applies a validated reload. Components that fail to rebuild
// keep their previous state.
func (a *App) applyConfig(ctx context.Context, newCfg *config.Config) {
	a.mu.Lock()
	oldCfg := a.cfg
	a.mu.Unlock()

	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	_, _ = systemd.Reloading(strings.Join(sections, ","))
	defer func() { _, _ = systemd.Ready("config reloaded") }()

	if a.logs != nil {
		a.logs.Apply(mapLogConfig(newCfg))
	}

	if ncfg, err := mapNotifyConfig(newCfg); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.mu.Lock()
		a.notifyCfg = ncfg
		n := a.notifier
		a.mu.Unlock()
		if n != nil {
			n.Apply(ncfg)
		}
	}

	if !a.fixedAdapter && config.DisplayChanged(oldCfg, newCfg) {
		a.swapAdapter(ctx, newCfg)
	}

	if oldCfg.Debug != newCfg.Debug {
		a.debug.Reconfigure(ctx, mapDebugConfig(newCfg))
	}

	if list, err := reminder.FromConfig(newCfg.Reminders); err != nil {
		a.log.Warn("invalid reminders; keeping previous", logx.Err(err))
	} else if !a.noReminders {
		a.reminders.Apply(list, newCfg.Location())
	}

	a.mu.Lock()
	a.cfg = newCfg
	a.mu.Unlock()

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	a.bus.Publish(eventbus.Event{Type: EventConfigReloaded, Time: time.Now(), Data: sections})
}

func (a *App) swapAdapter(ctx context.Context, cfg *config.Config) {
	ad, err := buildAdapter(cfg, a.log.With(logx.String("comp", "display")))
	if err != nil {
		a.log.Warn("display rebuild failed; keeping previous", logx.String("driver", cfg.Display.Driver), logx.Err(err))
		return
	}
	if s, ok := ad.(starter); ok {
		s.Start(ctx)
	}

	a.mu.Lock()
	old := a.adapter
	a.adapter = ad
	n := a.notifier
	a.mu.Unlock()
	if n != nil {
		n.SetAdapter(ad)
	}
	a.setForwarder(ad)
	closeAdapter(old, a.log)
	a.log.Info("display switched", logx.String("driver", cfg.Display.Driver))
}

func closeAdapter(ad display.Adapter, log logx.Logger) {
	if c, ok := ad.(display.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn("display close failed", logx.Err(err))
		}
	}
}

// Stop shuts down in dependency order: reminders stop submitting, the
// scheduler drains within scheduler.shutdown_grace, then the adapter and
// background goroutines stop. Every step is bounded by ctx.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if a.sup != nil {
		a.sup.Cancel()
	}

	grace, err := a.Config().Scheduler.ShutdownGraceDuration()
	if err != nil {
		grace = 5 * time.Second
	}

	a.step(ctx, "reminders", 2*time.Second, func(c context.Context) error {
		a.reminders.Stop(c)
		return nil
	})
	a.step(ctx, "notifier", grace, func(c context.Context) error {
		a.mu.Lock()
		n := a.notifier
		a.notifier = nil
		a.mu.Unlock()
		if n == nil {
			return nil
		}
		return n.Shutdown(c)
	})
	a.step(ctx, "display", 3*time.Second, func(c context.Context) error {
		a.setForwarder(nil)
		closeAdapter(a.Adapter(), a.log)
		return nil
	})
	a.step(ctx, "debug", 3*time.Second, func(c context.Context) error {
		a.debug.Stop(c)
		return nil
	})
	if a.sup != nil {
		a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)
	}

	a.log.Info("stopped")
	a.closeLogs()
	return nil
}

// step runs one shutdown step bounded by max and the caller's deadline. A
// step that overruns is logged and left behind.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
