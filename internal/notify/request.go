package notify

import (
	"fmt"
	"strings"
	"time"

	"notifyq/internal/display"
)

// Priority governs ordering and cooldown exemption.
// The zero value is treated as PriorityNormal.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

func (p Priority) rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	default:
		return 1
	}
}

func (p Priority) String() string {
	if p == "" {
		return string(PriorityNormal)
	}
	return string(p)
}

// ParsePriority accepts low/normal/high (case-insensitive). Empty means normal.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	case "high":
		return PriorityHigh, nil
	default:
		return "", fmt.Errorf("invalid priority %q (want low, normal or high)", s)
	}
}

// Type is the kind of notification. It only matters to the display adapter.
type Type string

const (
	TypeInfo     Type = "info"
	TypeWarning  Type = "warning"
	TypeError    Type = "error"
	TypeProgress Type = "progress"
)

// ParseType accepts info/warning/error/progress. Empty means info.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return TypeInfo, nil
	case "warning", "warn":
		return TypeWarning, nil
	case "error":
		return TypeError, nil
	case "progress":
		return TypeProgress, nil
	default:
		return "", fmt.Errorf("invalid notification type %q", s)
	}
}

// DefaultPriority is the priority a typed helper assigns to t.
func DefaultPriority(t Type) Priority {
	if t == TypeError {
		return PriorityHigh
	}
	return PriorityNormal
}

// Request describes one notification. Treat it as a value: the Service copies
// it on submit.
type Request struct {
	// ID is assigned on submit when empty.
	ID       string
	Message  string
	Type     Type
	Priority Priority
	Actions  []string
	// Duration is an advisory auto-dismiss hint passed to the adapter.
	Duration time.Duration
	Detail   string
	Modal    bool
	// Source tags the producer in logs and events (e.g. "reminder:backup").
	Source string
}

// normalized canonicalizes Type and Priority (empty picks the default) and
// rejects values outside their sets.
func (r Request) normalized() (Request, error) {
	t, err := ParseType(string(r.Type))
	if err != nil {
		return Request{}, err
	}
	p, err := ParsePriority(string(r.Priority))
	if err != nil {
		return Request{}, err
	}
	r.Type, r.Priority = t, p
	if r.Duration < 0 {
		r.Duration = 0
	}
	r.Actions = append([]string(nil), r.Actions...)
	return r, nil
}

func (r Request) notice() display.Notice {
	return display.Notice{
		ID:       r.ID,
		Message:  r.Message,
		Kind:     display.Kind(r.Type),
		Detail:   r.Detail,
		Modal:    r.Modal,
		Actions:  append([]string(nil), r.Actions...),
		Duration: r.Duration,
	}
}

// Option customizes a Request built by the typed helpers.
type Option func(*Request)

// WithActions sets the action labels offered to the user, in order.
func WithActions(labels ...string) Option {
	return func(r *Request) { r.Actions = append([]string(nil), labels...) }
}

func WithDetail(detail string) Option { return func(r *Request) { r.Detail = detail } }

func WithDuration(d time.Duration) Option { return func(r *Request) { r.Duration = d } }

func WithModal(modal bool) Option { return func(r *Request) { r.Modal = modal } }

// WithPriority overrides the helper's default priority.
func WithPriority(p Priority) Option { return func(r *Request) { r.Priority = p } }

func WithSource(src string) Option { return func(r *Request) { r.Source = src } }
