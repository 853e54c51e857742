package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	remoteMaxLen   = 3500
	remoteFieldLen = 600
)

// remoteSink is a zerolog.LevelWriter that hands rendered lines to a
// Forwarder on its own goroutine. Writes never block: lines over the rate
// limit or beyond the queue are counted and reported with the next line that
// gets through.
type remoteSink struct {
	fwd   atomic.Pointer[forwarderBox]
	queue chan string

	mu       sync.Mutex
	minLevel zerolog.Level
	limiter  *rate.Limiter
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	pending    atomic.Uint64
	forwarded  atomic.Uint64
	suppressed atomic.Uint64
}

type forwarderBox struct{ f Forwarder }

func newRemoteSink() *remoteSink {
	return &remoteSink{queue: make(chan string, 256), minLevel: zerolog.WarnLevel}
}

func (r *remoteSink) setForwarder(f Forwarder) {
	r.fwd.Store(&forwarderBox{f: f})
}

func (r *remoteSink) forwarder() Forwarder {
	if b := r.fwd.Load(); b != nil {
		return b.f
	}
	return nil
}

func (r *remoteSink) configure(min zerolog.Level, lim *rate.Limiter) {
	r.mu.Lock()
	r.minLevel, r.limiter = min, lim
	r.mu.Unlock()
}

func (r *remoteSink) start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx)
	}()
}

func (r *remoteSink) stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
		r.wg.Wait()
	}
}

func (r *remoteSink) stats() (forwarded, suppressed uint64) {
	return r.forwarded.Load(), r.suppressed.Load()
}

func (r *remoteSink) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.queue:
			f := r.forwarder()
			if f == nil {
				continue
			}
			if n := r.pending.Swap(0); n > 0 {
				msg += fmt.Sprintf("\n(%d earlier lines suppressed)", n)
			}
			cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := f.ForwardLog(cctx, msg); err == nil {
				r.forwarded.Add(1)
			}
			cancel()
		}
	}
}

func (r *remoteSink) Write(p []byte) (int, error) {
	return r.WriteLevel(zerolog.InfoLevel, p)
}

func (r *remoteSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if r.forwarder() == nil {
		return len(p), nil
	}
	r.mu.Lock()
	lim, min := r.limiter, r.minLevel
	r.mu.Unlock()
	if lim == nil || level < min {
		return len(p), nil
	}
	if !lim.Allow() {
		r.suppress()
		return len(p), nil
	}

	msg := formatRemote(p)
	if msg == "" {
		return len(p), nil
	}
	select {
	case r.queue <- msg:
	default:
		r.suppress()
	}
	return len(p), nil
}

func (r *remoteSink) suppress() {
	r.pending.Add(1)
	r.suppressed.Add(1)
}

// formatRemote renders a JSON log line as "[LEVEL] message" followed by one
// "- key=value" line per field, sorted by key.
func formatRemote(p []byte) string {
	raw := strings.TrimSpace(string(p))
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return truncate(raw, remoteMaxLen)
	}

	var b strings.Builder
	if lvl, _ := m["level"].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	msg, _ := m["message"].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message":
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, truncate(fmt.Sprint(m[k]), remoteFieldLen))
	}
	return truncate(b.String(), remoteMaxLen)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
