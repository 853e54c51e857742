// Package debugserver runs the optional HTTP debug endpoint: a liveness probe,
// a JSON status view of the scheduler and, when enabled, pprof and expvar.
package debugserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	rtsup "notifyq/internal/runtime/supervisor"
	logx "notifyq/pkg/logx"
)

const (
	defaultAddr = "127.0.0.1:6060"
	// maxRestarts bounds listener retries (e.g. port held by another process).
	maxRestarts = 10
)

// Config controls the server. Binding to a non-loopback address requires
// Token or AllowInsecure.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool

	Pprof bool
	// PprofPrefix is where pprof is mounted; profiles live under
	// <prefix>/pprof/. Default "/debug".
	PprofPrefix string
}

// StatusFunc returns the value served as JSON on /status.
type StatusFunc func() any

type Server struct {
	log    logx.Logger
	status StatusFunc

	mu   sync.Mutex
	cfg  Config
	sup  *rtsup.Supervisor
	addr string

	backoffMin, backoffMax time.Duration
}

func New(cfg Config, status StatusFunc, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if status == nil {
		status = func() any { return struct{}{} }
	}
	return &Server{
		cfg:        cfg,
		status:     status,
		log:        log,
		backoffMin: 500 * time.Millisecond,
		backoffMax: 10 * time.Second,
	}
}

// Addr returns the bound listen address, or "" when not serving.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Reconfigure applies cfg, starting, stopping or restarting the listener as
// needed. It is safe to call on every config reload.
func (s *Server) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	running := s.sup != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		s.Stop(ctx)
	case !running:
		s.Start(ctx)
	case prev != cfg:
		s.Stop(ctx)
		s.Start(ctx)
	}
}

// Start serves until ctx ends or Stop. A failing listener is retried with
// backoff and never takes the process down; after maxRestarts failures the
// server stays down until the next Reconfigure with a changed config.
func (s *Server) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil || !s.cfg.Enabled {
		return
	}
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "debug.supervisor"))),
		rtsup.WithCancelOnError(false),
	)
	cfg := s.cfg
	s.sup.GoRestart("debug.serve", func(c context.Context) error {
		return s.serveOnce(c, cfg)
	},
		rtsup.WithRestartBackoff(s.backoffMin, s.backoffMax),
		rtsup.WithMaxRestarts(maxRestarts),
		rtsup.WithStopOnCleanExit(false),
	)
}

// Stop closes the listener and waits for the serve loop within ctx.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	_ = sup.Stop(ctx)
	s.log.Info("debug server stopped")
}

func (s *Server) serveOnce(ctx context.Context, cfg Config) error {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	if cfg.Token == "" && !isLoopbackAddr(addr) {
		if !cfg.AllowInsecure {
			s.log.Error("debug server refused to start: non-loopback addr requires token or allow_insecure", logx.String("addr", addr))
			return errors.New("debug server refused to start: insecure bind")
		}
		s.log.Warn("debug server running without token on non-loopback addr (insecure)", logx.String("addr", addr))
	}

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}

	srv := &http.Server{
		Handler:           s.handler(cfg),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	bound := ln.Addr().String()
	s.mu.Lock()
	s.addr = bound
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.addr == bound {
			s.addr = ""
		}
		s.mu.Unlock()
	}()
	s.log.Info("debug server started", logx.String("addr", bound), logx.Bool("pprof", cfg.Pprof), logx.Bool("token_set", cfg.Token != ""))

	err = srv.Serve(ln)
	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("debug server exited unexpectedly")
	}
	return err
}

func (s *Server) handler(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(tokenAuth(cfg.Token))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(s.status()); err != nil {
			s.log.Debug("status encode failed", logx.Err(err))
		}
	})
	if cfg.Pprof {
		// Profiler serves <mount>/pprof/* and <mount>/vars.
		r.Mount(normalizeMount(cfg.PprofPrefix), middleware.Profiler())
	}
	return r
}

// tokenAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
func tokenAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.URL.Query().Get("token")
			if got == "" {
				got = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			}
			if got != tok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// normalizeMount returns a rooted path without a trailing slash ("/debug" by default).
func normalizeMount(prefix string) string {
	p := strings.Trim(strings.TrimSpace(prefix), "/")
	if p == "" {
		return "/debug"
	}
	return "/" + p
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil || h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
