package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "notify"))

	log.Debug("hidden")
	log.Info("queued", Int("queue_len", 2), Err(errors.New("boom")), Err(nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &m))
	assert.Equal(t, "queued", m["message"])
	assert.Equal(t, "notify", m["comp"])
	assert.Equal(t, float64(2), m["queue_len"])
	assert.Equal(t, "boom", m["err"])
	assert.Contains(t, m["caller"], "logx_test.go:")
}

func TestZeroAndNopLoggers(t *testing.T) {
	var zero Logger
	assert.True(t, zero.IsZero())
	assert.False(t, Nop().IsZero())
	assert.NotPanics(t, func() {
		zero.Error("dropped")
		Nop().With(Bool("x", true)).Warn("dropped")
	})
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"trace", "DEBUG", " info ", "warning", "error"} {
		_, ok := ParseLevel(s)
		assert.True(t, ok, s)
	}
	_, ok := ParseLevel("loud")
	assert.False(t, ok)
}

func TestFormatRemoteSortsFields(t *testing.T) {
	got := formatRemote([]byte(`{"level":"warn","time":"x","message":"delivery failed","source":"cli","err":"boom"}`))
	assert.Equal(t, "[WARN] delivery failed\n- err=boom\n- source=cli", got)

	assert.Equal(t, "not json", formatRemote([]byte("not json\n")))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

type captureForwarder struct {
	mu    sync.Mutex
	lines []string
}

func (c *captureForwarder) ForwardLog(ctx context.Context, text string) error {
	c.mu.Lock()
	c.lines = append(c.lines, text)
	c.mu.Unlock()
	return nil
}

func (c *captureForwarder) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func TestRemoteSinkForwardsAndSuppresses(t *testing.T) {
	svc, log := New(Config{Level: "debug", Remote: RemoteConfig{Enabled: true, MinLevel: "warn", RatePerSec: 1}})
	defer svc.Close()
	fwd := &captureForwarder{}
	svc.SetForwarder(fwd)

	log.Info("below min level")
	log.Warn("first")
	log.Warn("second")
	log.Error("third")

	require.Eventually(t, func() bool { return len(fwd.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, fwd.snapshot()[0], "[WARN] first")

	forwarded, suppressed := svc.RemoteStats()
	assert.Equal(t, uint64(1), forwarded)
	assert.Equal(t, uint64(2), suppressed)

	// The next line that passes the limiter reports what was dropped.
	time.Sleep(1100 * time.Millisecond)
	log.Error("fourth")
	require.Eventually(t, func() bool { return len(fwd.snapshot()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, fwd.snapshot()[1], "[ERROR] fourth")
	assert.Contains(t, fwd.snapshot()[1], "(2 earlier lines suppressed)")
}

func TestRemoteSinkWithoutForwarder(t *testing.T) {
	svc, log := New(Config{Level: "info", Remote: RemoteConfig{Enabled: true}})
	defer svc.Close()
	log.Error("nobody listening")
	forwarded, suppressed := svc.RemoteStats()
	assert.Zero(t, forwarded)
	assert.Zero(t, suppressed)
}

func TestFileSinkAndApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "notifyd.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})

	derived := log.With(String("comp", "test"))
	derived.Debug("hidden")
	derived.Info("visible")

	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	derived.Debug("now visible")
	require.NoError(t, svc.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "now visible")
	assert.Contains(t, out, `"comp":"test"`)
}
