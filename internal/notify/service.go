package notify

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"notifyq/internal/display"
	"notifyq/internal/eventbus"
	logx "notifyq/pkg/logx"
)

// Service is the notification facade. It owns the queue and the dispatcher
// state; nothing else writes to them.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter display.Adapter
	bus     eventbus.Bus

	cfg   Config
	queue priorityQueue

	// processing is true while a drain goroutine owns the loop.
	processing   bool
	lastDelivery time.Time

	closing  bool
	disposed bool
	stats    Stats

	runCtx    context.Context
	runCancel context.CancelFunc
	drainWG   sync.WaitGroup

	evictWarn rate.Sometimes
}

// New builds a Service. A nil adapter means display.Nop; a nil bus disables
// lifecycle events.
func New(cfg Config, adapter display.Adapter, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if adapter == nil {
		adapter = display.Nop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		log:       log,
		adapter:   adapter,
		bus:       bus,
		cfg:       cfg.WithDefaults(),
		runCtx:    ctx,
		runCancel: cancel,
		evictWarn: rate.Sometimes{Interval: 5 * time.Second},
	}
}

// Apply swaps tunables at runtime. A smaller MaxQueueSize takes effect on the
// next insert; nothing is evicted immediately.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.WithDefaults()
	s.mu.Unlock()
}

func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// SetAdapter swaps the display surface. A delivery already in progress
// finishes on the old adapter; the returned value is that old adapter.
func (s *Service) SetAdapter(adapter display.Adapter) display.Adapter {
	if adapter == nil {
		adapter = display.Nop{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.adapter
	s.adapter = adapter
	return old
}

// ShowInfo shows an informational notice (normal priority by default).
func (s *Service) ShowInfo(ctx context.Context, message string, opts ...Option) (string, error) {
	return s.ShowNotification(ctx, buildRequest(TypeInfo, message, opts))
}

// ShowWarning shows a warning (normal priority by default).
func (s *Service) ShowWarning(ctx context.Context, message string, opts ...Option) (string, error) {
	return s.ShowNotification(ctx, buildRequest(TypeWarning, message, opts))
}

// ShowError shows an error (high priority by default, so it skips the cooldown).
func (s *Service) ShowError(ctx context.Context, message string, opts ...Option) (string, error) {
	return s.ShowNotification(ctx, buildRequest(TypeError, message, opts))
}

func buildRequest(t Type, message string, opts []Option) Request {
	r := Request{Message: message, Type: t, Priority: DefaultPriority(t)}
	for _, o := range opts {
		if o != nil {
			o(&r)
		}
	}
	return r
}

// ShowNotification queues req and waits for its own outcome: the chosen
// action label ("" when dismissed) or an error.
//
// If ctx ends first the caller stops waiting but the request stays queued;
// only eviction, ClearQueue and Dispose discard queued requests. A Type or
// Priority outside its set is rejected without queueing.
func (s *Service) ShowNotification(ctx context.Context, req Request) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	req, err := req.normalized()
	if err != nil {
		return "", err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	e := newEntry(req)

	s.mu.Lock()
	if s.disposed || s.closing {
		s.mu.Unlock()
		return "", ErrDisposed
	}
	max := s.cfg.MaxQueueSize
	evicted := s.queue.insert(e, max)
	qlen := s.queue.len()
	s.stats.Queued++
	s.stats.Evicted += uint64(len(evicted))
	if qlen > max {
		s.stats.Overflowed++
	}
	start := !s.processing
	if start {
		s.processing = true
		s.drainWG.Add(1)
	}
	s.mu.Unlock()

	for _, ev := range evicted {
		ev.resolve("", ErrEvicted)
		s.publish(EventEvicted, ev.req, qlen, "", ErrEvicted)
	}
	if len(evicted) > 0 {
		s.evictWarn.Do(func() {
			s.log.Warn("queue full; evicted low-priority notifications", logx.Int("evicted", len(evicted)), logx.Int("max", max))
		})
	}
	s.log.Debug("notification queued",
		logx.String("id", req.ID),
		logx.String("type", string(req.Type)),
		logx.String("priority", req.Priority.String()),
		logx.String("source", req.Source),
		logx.Int("queue_len", qlen),
	)
	s.publish(EventQueued, req, qlen, "", nil)

	if start {
		go s.drain()
	}

	select {
	case o := <-e.done:
		return o.action, o.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ShowProgress runs task behind the adapter's progress surface. It does not
// enter the queue.
func (s *Service) ShowProgress(ctx context.Context, title string, task display.ProgressTask) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	ad, disposed := s.adapter, s.disposed
	s.mu.Unlock()
	if disposed {
		return ErrDisposed
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("progress panicked", logx.String("title", title), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("%w: panic: %v", ErrDeliveryFailed, r)
		}
	}()
	return ad.Progress(ctx, title, task)
}

// ShowStatusBarMessage sets the status line text. It does not enter the queue.
func (s *Service) ShowStatusBarMessage(ctx context.Context, text string, timeout time.Duration) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	ad, disposed := s.adapter, s.disposed
	s.mu.Unlock()
	if disposed {
		return ErrDisposed
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("status update panicked", logx.Any("panic", r))
			err = fmt.Errorf("%w: panic: %v", ErrDeliveryFailed, r)
		}
	}()
	if err := ad.SetStatus(ctx, text, timeout); err != nil {
		s.log.Debug("status update failed", logx.Err(err))
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return nil
}

// ClearQueue discards every queued request. A delivery already handed to the
// adapter is not affected.
func (s *Service) ClearQueue() int {
	s.mu.Lock()
	cleared := s.queue.clear()
	s.stats.Cleared += uint64(len(cleared))
	s.mu.Unlock()

	for _, e := range cleared {
		e.resolve("", ErrCleared)
		s.publish(EventCleared, e.req, 0, "", ErrCleared)
	}
	if len(cleared) > 0 {
		s.log.Info("notification queue cleared", logx.Int("count", len(cleared)))
	}
	return len(cleared)
}

// QueueSize returns the number of queued (not yet dequeued) requests.
func (s *Service) QueueSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.len()
}

// Pending returns a copy of the queued requests in delivery order.
func (s *Service) Pending() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.snapshot()
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.QueueLen = s.queue.len()
	st.Draining = s.processing
	return st
}

// Draining reports whether a drain loop is active.
func (s *Service) Draining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// Shutdown stops intake and lets the queue drain until ctx ends, then
// disposes the Service. It returns ctx.Err() if the drain did not finish.
func (s *Service) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.drainWG.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	s.Dispose()
	return err
}

// Dispose clears the queue, resets the dispatcher state and rejects further
// requests. Outstanding callers get ErrDisposed. It is idempotent.
func (s *Service) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.closing = true
	cleared := s.queue.clear()
	s.stats.Cleared += uint64(len(cleared))
	s.processing = false
	cancel := s.runCancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, e := range cleared {
		e.resolve("", ErrDisposed)
	}
	s.log.Debug("notification service disposed", logx.Int("discarded", len(cleared)))
}

func (s *Service) publish(typ string, req Request, qlen int, action string, err error) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	ev := NotificationEvent{
		ID:       req.ID,
		Type:     req.Type,
		Priority: req.Priority,
		Source:   req.Source,
		Action:   action,
		QueueLen: qlen,
		At:       now,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}
