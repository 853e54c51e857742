// Package reminder fires configured notices on cron or interval schedules.
//
// Each firing submits a Request to the notification scheduler and waits for
// its outcome. A reminder whose previous notice is still pending is skipped
// rather than stacked.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"notifyq/internal/config"
	"notifyq/internal/eventbus"
	"notifyq/internal/notify"
	logx "notifyq/pkg/logx"
)

// Notifier is the part of notify.Service reminders need.
type Notifier interface {
	ShowNotification(ctx context.Context, req notify.Request) (string, error)
}

// Reminder is a named notice on a schedule.
type Reminder struct {
	Name     string
	Schedule Schedule
	Request  notify.Request
}

// Entry is a snapshot row for one registered reminder.
type Entry struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Next     time.Time `json:"next,omitzero"`
	LastRun  time.Time `json:"last_run,omitzero"`
	LastErr  string    `json:"last_err,omitempty"`
}

// EventFired is published on the bus after every firing.
const EventFired = "reminder.fired"

type FiredEvent struct {
	Name   string `json:"name"`
	Action string `json:"action,omitempty"`
	Error  string `json:"error,omitempty"`
}

// FromConfig converts and validates the configured reminders. Disabled ones are dropped.
func FromConfig(list []config.ReminderConfig) ([]Reminder, error) {
	out := make([]Reminder, 0, len(list))
	var errs []error
	for i, rc := range list {
		if rc.Disabled {
			continue
		}
		sch, err := ParseSchedule(rc.Schedule)
		if err != nil {
			errs = append(errs, fmt.Errorf("reminders[%d] (%s): %w", i, rc.Name, err))
			continue
		}
		typ, err := notify.ParseType(rc.Type)
		if err != nil {
			errs = append(errs, fmt.Errorf("reminders[%d] (%s): %w", i, rc.Name, err))
			continue
		}
		prio := notify.DefaultPriority(typ)
		if strings.TrimSpace(rc.Priority) != "" {
			if prio, err = notify.ParsePriority(rc.Priority); err != nil {
				errs = append(errs, fmt.Errorf("reminders[%d] (%s): %w", i, rc.Name, err))
				continue
			}
		}
		out = append(out, Reminder{
			Name:     strings.TrimSpace(rc.Name),
			Schedule: sch,
			Request: notify.Request{
				Message:  rc.Message,
				Type:     typ,
				Priority: prio,
				Detail:   rc.Detail,
				Actions:  append([]string(nil), rc.Actions...),
				Source:   "reminder:" + strings.TrimSpace(rc.Name),
			},
		})
	}
	return out, errors.Join(errs...)
}

type registered struct {
	Reminder
	entryID cron.EntryID

	// guarded by Service.mu
	lastRun time.Time
	lastErr string
}

type Service struct {
	mu       sync.Mutex
	log      logx.Logger
	bus      eventbus.Bus
	notifier Notifier

	loc  *time.Location
	defs map[string]*registered
	c    *cron.Cron

	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(n Notifier, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:      log,
		bus:      bus,
		notifier: n,
		loc:      time.Local,
		defs:     map[string]*registered{},
	}
}

// Apply replaces the registered reminders. If the service is running its cron
// is restarted with the new set and location.
func (s *Service) Apply(list []Reminder, loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	defs := make(map[string]*registered, len(list))
	for _, r := range list {
		d := &registered{Reminder: r}
		if old, ok := s.defs[r.Name]; ok {
			d.lastRun, d.lastErr = old.lastRun, old.lastErr
		}
		defs[r.Name] = d
	}
	s.defs = defs
	s.loc = loc

	if s.c != nil {
		s.restartLocked()
	}
}

// Start begins triggering. Notices are submitted with a context that ends on Stop.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.runCtx, s.runCancel = context.WithCancel(context.WithoutCancel(ctx))
	s.restartLocked()
}

// Stop stops triggering, releases reminders waiting on a notice and waits
// for running jobs until ctx ends.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	cancel := s.runCancel
	s.mu.Unlock()

	if c == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	select {
	case <-c.Stop().Done():
		s.log.Info("service stopped")
	case <-ctx.Done():
		s.log.Warn("stop timed out; reminders still running", logx.Err(ctx.Err()))
	}
}

// call with s.mu held
func (s *Service) restartLocked() {
	if s.c != nil {
		s.c.Stop()
	}
	s.c = cron.New(
		cron.WithLocation(s.loc),
		cron.WithChain(cron.Recover(cronLogger{s.log}), cron.SkipIfStillRunning(cronLogger{s.log})),
	)
	for _, d := range s.defs {
		sched, err := d.Schedule.cronSchedule()
		if err != nil {
			s.log.Warn("reminder skipped", logx.String("name", d.Name), logx.Err(err))
			continue
		}
		name := d.Name
		d.entryID = s.c.Schedule(sched, cron.FuncJob(func() { s.fire(name) }))
	}
	s.c.Start()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("reminders", len(s.defs)))
}

// Fire runs the named reminder now, outside its schedule, and returns the chosen action.
func (s *Service) Fire(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	d, ok := s.defs[name]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("reminder %q not found", name)
	}
	return s.run(ctx, d)
}

func (s *Service) fire(name string) {
	s.mu.Lock()
	d, ok := s.defs[name]
	ctx := s.runCtx
	s.mu.Unlock()
	if !ok || ctx == nil {
		return
	}
	_, _ = s.run(ctx, d)
}

func (s *Service) run(ctx context.Context, d *registered) (string, error) {
	action, err := s.notifier.ShowNotification(ctx, d.Request)

	at := time.Now()
	s.mu.Lock()
	d.lastRun = at
	d.lastErr = ""
	if err != nil {
		d.lastErr = err.Error()
	}
	s.mu.Unlock()

	ev := FiredEvent{Name: d.Name, Action: action}
	if err != nil {
		ev.Error = err.Error()
		s.log.Warn("reminder not delivered", logx.String("name", d.Name), logx.Err(err))
	} else {
		s.log.Debug("reminder delivered", logx.String("name", d.Name), logx.String("action", action))
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: EventFired, Time: at, Data: ev})
	}
	return action, err
}

// Snapshot lists registered reminders sorted by name.
func (s *Service) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.defs))
	for _, d := range s.defs {
		e := Entry{Name: d.Name, Schedule: d.Schedule.String(), LastRun: d.lastRun, LastErr: d.lastErr}
		if s.c != nil && d.entryID != 0 {
			e.Next = s.c.Entry(d.entryID).Next
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// cronLogger routes robfig/cron diagnostics into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	if msg == "skip" {
		l.log.Debug("reminder still pending; skipped", logx.Any("kv", kv))
		return
	}
	l.log.Trace("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
