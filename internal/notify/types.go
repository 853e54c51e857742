package notify

import (
	"errors"
	"time"
)

var (
	// ErrEvicted is returned to callers whose low-priority request was dropped
	// to make room in a full queue.
	ErrEvicted = errors.New("notification evicted")
	// ErrCleared is returned to callers whose request was discarded by ClearQueue.
	ErrCleared = errors.New("notification queue cleared")
	// ErrDisposed is returned for requests outstanding at Dispose and for
	// calls made after it.
	ErrDisposed = errors.New("notification service disposed")
	// ErrDeliveryFailed wraps display adapter failures.
	ErrDeliveryFailed = errors.New("notification delivery failed")
)

const (
	DefaultMaxQueueSize = 10
	DefaultCooldown     = time.Second
)

// Config holds the scheduler tunables.
type Config struct {
	// MaxQueueSize is the soft capacity of the queue (default 10).
	MaxQueueSize int
	// Cooldown is the minimum spacing between the end of one delivery and the
	// start of the next non-high delivery (default 1s).
	Cooldown time.Duration
}

// WithDefaults fills zero tunables with their defaults.
func (c Config) WithDefaults() Config {
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = DefaultMaxQueueSize
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	return c
}

// Stats are cumulative counters since the Service was created.
type Stats struct {
	Queued     uint64 `json:"queued"`
	Delivered  uint64 `json:"delivered"`
	Failed     uint64 `json:"failed"`
	Evicted    uint64 `json:"evicted"`
	Cleared    uint64 `json:"cleared"`
	Overflowed uint64 `json:"overflowed"`
	QueueLen   int    `json:"queue_len"`
	Draining   bool   `json:"draining"`
}

// Event types published on the bus.
const (
	EventQueued    = "notify.queued"
	EventEvicted   = "notify.evicted"
	EventDelivered = "notify.delivered"
	EventFailed    = "notify.failed"
	EventCleared   = "notify.cleared"
)

// NotificationEvent is the Data of notify.* bus events.
// Keep it small; subscribers may log or serialize it.
type NotificationEvent struct {
	ID       string    `json:"id"`
	Type     Type      `json:"type"`
	Priority Priority  `json:"priority"`
	Source   string    `json:"source,omitempty"`
	Action   string    `json:"action,omitempty"`
	QueueLen int       `json:"queue_len"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}
