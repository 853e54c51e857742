// Package display defines the contract between the notification scheduler and
// the host surface that actually renders notifications (toast, dialog, chat
// message, status line).
//
// The scheduler never knows how a Notice is rendered; it hands one over and
// waits for the chosen action label. Implementations live in subpackages
// (console, desktop, telegram); Nop is used when display is disabled.
package display

import (
	"context"
	"errors"
	"time"
)

// Kind selects the visual treatment of a notice.
type Kind string

const (
	KindInfo     Kind = "info"
	KindWarning  Kind = "warning"
	KindError    Kind = "error"
	KindProgress Kind = "progress"
)

// Notice is what an Adapter renders.
type Notice struct {
	ID      string
	Message string
	Kind    Kind
	Detail  string
	Modal   bool
	Actions []string
	// Duration is an auto-dismiss hint. Zero means adapter default.
	Duration time.Duration
}

// Reporter lets a long-running task update its progress surface.
// Percent is 0..100; values outside the range are clamped by adapters.
type Reporter interface {
	Report(message string, percent int)
}

// ProgressTask is the body of a progress operation.
type ProgressTask func(ctx context.Context, r Reporter) error

// Adapter is the host notification surface.
type Adapter interface {
	// Show renders n and blocks until the user picks an action or dismisses
	// the notice. It returns the chosen action label, or "" when dismissed.
	Show(ctx context.Context, n Notice) (string, error)
	// Progress runs task while showing a progress surface titled title.
	Progress(ctx context.Context, title string, task ProgressTask) error
	// SetStatus shows text on the status line. A zero timeout keeps it until
	// replaced.
	SetStatus(ctx context.Context, text string, timeout time.Duration) error
}

// Closer is implemented by adapters that hold connections.
type Closer interface {
	Close() error
}

var ErrUnavailable = errors.New("display unavailable")

// Nop drops everything. Show always reports a dismissal.
type Nop struct{}

func (Nop) Show(ctx context.Context, n Notice) (string, error) { return "", ctx.Err() }

func (Nop) Progress(ctx context.Context, title string, task ProgressTask) error {
	if task == nil {
		return nil
	}
	return task(ctx, nopReporter{})
}

func (Nop) SetStatus(ctx context.Context, text string, timeout time.Duration) error { return nil }

type nopReporter struct{}

func (nopReporter) Report(string, int) {}

// ClampPercent limits p to 0..100.
func ClampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
