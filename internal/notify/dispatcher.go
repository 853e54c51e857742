package notify

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"notifyq/internal/display"
	logx "notifyq/pkg/logx"
)

// drain is the single-flight delivery loop. It runs on its own goroutine,
// started by the insert that found the dispatcher idle, and exits exactly
// when it observes an empty queue under the lock.
func (s *Service) drain() {
	defer s.drainWG.Done()
	for s.drainOne() {
	}
}

// drainOne delivers the front request. It reports false once the queue is
// empty and the dispatcher went idle. A panic outside the adapter call (a
// bus subscriber, a logger sink) fails the request in hand and the loop goes
// on with the rest of the queue.
func (s *Service) drainOne() (more bool) {
	var e *entry
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("drain loop panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			if e != nil {
				e.resolve("", fmt.Errorf("%w: panic: %v", ErrDeliveryFailed, r))
			}
			more = true
		}
	}()

	s.mu.Lock()
	if s.queue.len() == 0 {
		s.processing = false
		s.mu.Unlock()
		return false
	}
	e = s.queue.popFront()
	var wait time.Duration
	if e.req.Priority != PriorityHigh && !s.lastDelivery.IsZero() {
		wait = s.cfg.Cooldown - time.Since(s.lastDelivery)
	}
	ctx := s.runCtx
	ad := s.adapter
	s.mu.Unlock()

	if wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			// Popped before Dispose cleared the queue; count it with the cleared ones.
			s.mu.Lock()
			s.stats.Cleared++
			s.mu.Unlock()
			e.resolve("", ErrDisposed)
			s.publish(EventCleared, e.req, 0, "", ErrDisposed)
			return true
		}
	}

	started := time.Now()
	action, err := s.deliver(ctx, ad, e.req)

	s.mu.Lock()
	s.lastDelivery = time.Now()
	if err != nil {
		s.stats.Failed++
	} else {
		s.stats.Delivered++
	}
	qlen := s.queue.len()
	s.mu.Unlock()

	e.resolve(action, err)

	if err != nil {
		s.log.Warn("notification delivery failed",
			logx.String("id", e.req.ID),
			logx.String("type", string(e.req.Type)),
			logx.String("source", e.req.Source),
			logx.Err(err),
		)
		s.publish(EventFailed, e.req, qlen, "", err)
		return true
	}
	s.log.Debug("notification delivered",
		logx.String("id", e.req.ID),
		logx.String("priority", e.req.Priority.String()),
		logx.String("action", action),
		logx.Duration("waited", started.Sub(e.queuedAt)),
		logx.Duration("took", time.Since(started)),
	)
	s.publish(EventDelivered, e.req, qlen, action, nil)
	return true
}

// deliver calls the adapter and converts failures (including panics) into
// ErrDeliveryFailed so one bad delivery never takes the loop down.
func (s *Service) deliver(ctx context.Context, ad display.Adapter, req Request) (action string, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("display adapter panicked", logx.String("id", req.ID), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			action, err = "", fmt.Errorf("%w: panic: %v", ErrDeliveryFailed, r)
		}
	}()
	action, err = ad.Show(ctx, req.notice())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return action, nil
}
