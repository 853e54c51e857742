package app

import (
	"time"

	"notifyq/internal/notify"
	"notifyq/internal/reminder"
	"notifyq/internal/runtime/supervisor"
)

// Status is the /status payload of the debug server.
type Status struct {
	Time       time.Time          `json:"time"`
	Display    string             `json:"display"`
	Notifier   *notify.Stats      `json:"notifier,omitempty"`
	Pending    []PendingNotice    `json:"pending,omitempty"`
	Reminders  []reminder.Entry   `json:"reminders"`
	Goroutines []supervisor.Stats `json:"goroutines,omitempty"`
}

type PendingNotice struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Priority string `json:"priority"`
	Source   string `json:"source,omitempty"`
	Message  string `json:"message"`
}

// Status reports the current scheduler state. It never creates the notifier.
func (a *App) Status() Status {
	a.mu.Lock()
	n := a.notifier
	driver := a.cfg.Display.Driver
	a.mu.Unlock()

	st := Status{Time: time.Now(), Display: driver, Reminders: a.reminders.Snapshot()}
	if n != nil {
		stats := n.Stats()
		st.Notifier = &stats
		for _, r := range n.Pending() {
			st.Pending = append(st.Pending, PendingNotice{
				ID:       r.ID,
				Type:     string(r.Type),
				Priority: r.Priority.String(),
				Source:   r.Source,
				Message:  r.Message,
			})
		}
	}
	if a.sup != nil {
		st.Goroutines = a.sup.Snapshot()
	}
	return st
}
