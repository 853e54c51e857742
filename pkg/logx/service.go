package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Remote  RemoteConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// RemoteConfig controls the forwarding sink. Lines at or above MinLevel
// (default warn) are rendered as plain text and handed to the Forwarder, at
// most RatePerSec per second (default 1).
type RemoteConfig struct {
	Enabled    bool
	MinLevel   string
	RatePerSec int
}

// Forwarder receives rendered log lines from the remote sink. It is called
// from a dedicated goroutine and must not log synchronously through the same
// Service at warn or above.
type Forwarder interface {
	ForwardLog(ctx context.Context, text string) error
}

// Service owns the configured sinks. Loggers derived from it pick up Apply
// changes without being rebuilt.
type Service struct {
	mu   sync.Mutex
	file *os.File

	root atomic.Pointer[zerolog.Logger]

	remote *remoteSink
}

// New applies cfg and returns the Service with its root Logger.
func New(cfg Config) (*Service, Logger) {
	s := &Service{remote: newRemoteSink()}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

// SetForwarder installs the remote sink target. nil disables forwarding.
func (s *Service) SetForwarder(f Forwarder) { s.remote.setForwarder(f) }

// RemoteStats reports how many lines the remote sink forwarded and suppressed.
func (s *Service) RemoteStats() (forwarded, suppressed uint64) { return s.remote.stats() }

// Close stops the remote worker and closes the log file.
func (s *Service) Close() error {
	s.remote.stop()

	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f != nil {
		return f.Close()
	}
	return nil
}

// Apply swaps levels and sinks at runtime. It is safe to call concurrently.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	writers := make([]io.Writer, 0, 3)
	if cfg.Console {
		writers = append(writers, newConsoleWriter(os.Stderr))
	}
	if cfg.File.Enabled {
		if f, err := openLogFile(cfg.File.Path); err != nil {
			fmt.Fprintf(os.Stderr, "logx: %v\n", err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}

	rps := max(1, cfg.Remote.RatePerSec)
	s.remote.configure(parseLevel(cfg.Remote.MinLevel, zerolog.WarnLevel), rate.NewLimiter(rate.Limit(rps), rps))
	if cfg.Remote.Enabled {
		s.remote.start()
		writers = append(writers, s.remote)
	}

	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(os.Stderr))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

func openLogFile(path string) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "./notifyd.log"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir %q: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", path, err)
	}
	return f, nil
}

func newConsoleWriter(w io.Writer) io.Writer {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	cw.FormatCaller = func(i any) string {
		s, _ := i.(string)
		return s
	}
	return cw
}
