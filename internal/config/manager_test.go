package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func newTestManager(path string, env map[string]string) *ConfigManager {
	m := NewConfigManager(path)
	if env == nil {
		env = map[string]string{}
	}
	m.SetEnvironment(env)
	return m
}

func TestParseFormats(t *testing.T) {
	t.Parallel()
	files := map[string]string{
		"notifyd.json": `{"scheduler":{"max_queue_size":3,"cooldown":"250ms"},"display":{"driver":"none"}}`,
		"notifyd.yaml": "scheduler:\n  max_queue_size: 3\n  cooldown: 250ms\ndisplay:\n  driver: none\n",
		"notifyd.toml": "[scheduler]\nmax_queue_size = 3\ncooldown = \"250ms\"\n\n[display]\ndriver = \"none\"\n",
	}
	for name, body := range files {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg, err := newTestManager(writeFile(t, name, body), nil).Parse()
			require.NoError(t, err)
			assert.Equal(t, 3, cfg.Scheduler.MaxQueueSize)
			cd, err := cfg.Scheduler.CooldownDuration()
			require.NoError(t, err)
			assert.Equal(t, 250*time.Millisecond, cd)
			assert.Equal(t, DriverNone, cfg.Display.Driver)
			// untouched sections keep defaults
			assert.Equal(t, "info", cfg.Logging.Level)
		})
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	_, err := newTestManager(writeFile(t, "c.yaml", "scheduler:\n  max_queue: 3\n"), nil).Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_queue")
}

func TestParseRejectsTrailingJSON(t *testing.T) {
	t.Parallel()
	_, err := newTestManager(writeFile(t, "c.json", `{}{}`), nil).Parse()
	require.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "c.json", `{"display":{"driver":"telegram","telegram":{"chat_id":1}}}`)
	m := newTestManager(p, map[string]string{
		"NOTIFYD_TELEGRAM_TOKEN": "secret",
		"NOTIFYD_MAX_QUEUE_SIZE": "7",
		"NOTIFYD_LOG_LEVEL":      "debug",
	})
	cfg, err := m.Parse()
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Display.Telegram.Token)
	assert.Equal(t, 7, cfg.Scheduler.MaxQueueSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.EqualValues(t, 1, cfg.Display.Telegram.ChatID)
}

func TestParseWithoutFileUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := newTestManager("", map[string]string{"NOTIFYD_DISPLAY": "NONE"}).Parse()
	require.NoError(t, err)
	assert.Equal(t, DriverNone, cfg.Display.Driver)
	assert.True(t, cfg.Logging.Console)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{"negative queue", func(c *Config) { c.Scheduler.MaxQueueSize = -1 }, "max_queue_size"},
		{"bad cooldown", func(c *Config) { c.Scheduler.Cooldown = "soon" }, "scheduler.cooldown"},
		{"unknown driver", func(c *Config) { c.Display.Driver = "pager" }, "unknown driver"},
		{"telegram without token", func(c *Config) { c.Display.Driver = "telegram"; c.Display.Telegram.ChatID = 5 }, "token is required"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
		{"debug addr", func(c *Config) { c.Debug.Enabled = true; c.Debug.Addr = "6060" }, "debug.addr"},
		{"reminder priority", func(c *Config) {
			c.Reminders = []ReminderConfig{{Name: "a", Schedule: "1m", Message: "m", Priority: "urgent"}}
		}, "reminders[0].priority"},
		{"duplicate reminder", func(c *Config) {
			c.Reminders = []ReminderConfig{
				{Name: "a", Schedule: "1m", Message: "m"},
				{Name: "a", Schedule: "2m", Message: "n"},
			}
		}, "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mut(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	require.NoError(t, Validate(Default()))
}

func TestLoadRunsValidator(t *testing.T) {
	t.Parallel()
	m := newTestManager(writeFile(t, "c.json", `{}`), nil)
	m.SetValidator(func(context.Context, *Config) error { return errors.New("nope") })
	_, err := m.Load(context.Background())
	require.EqualError(t, err, "nope")
	assert.Nil(t, m.Get())
}

func TestReloadPublishesOnlyChanges(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "c.json", `{"scheduler":{"max_queue_size":2}}`)
	m := newTestManager(p, nil)
	_, err := m.Load(context.Background())
	require.NoError(t, err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	assert.False(t, m.reload(context.Background()), "unchanged content must not publish")

	require.NoError(t, os.WriteFile(p, []byte(`{"scheduler":{"max_queue_size":4}}`), 0o600))
	require.True(t, m.reload(context.Background()))
	select {
	case cfg := <-ch:
		assert.Equal(t, 4, cfg.Scheduler.MaxQueueSize)
	default:
		t.Fatal("expected a published config")
	}

	require.NoError(t, os.WriteFile(p, []byte(`{"scheduler":{"max_queue_size":-1}}`), 0o600))
	assert.False(t, m.reload(context.Background()), "invalid config must not publish")
	assert.Equal(t, 4, m.Get().Scheduler.MaxQueueSize)
}

func TestPublishKeepsLatestForSlowSubscriber(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("")
	ch := m.Subscribe(1)
	first, second := Default(), Default()
	second.Scheduler.MaxQueueSize = 9

	m.publish(first)
	m.publish(second)
	assert.Same(t, second, <-ch)
}

func TestWatchPicksUpWrites(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "c.yaml", "scheduler:\n  max_queue_size: 1\n")
	m := newTestManager(p, nil)
	m.debounce = 20 * time.Millisecond
	_, err := m.Load(context.Background())
	require.NoError(t, err)
	ch := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// The watcher may not be registered yet; keep rewriting until it sees one.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(p, []byte("scheduler:\n  max_queue_size: 6\n"), 0o600)
		select {
		case cfg := <-ch:
			return cfg.Scheduler.MaxQueueSize == 6
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSummarizeConfigChangeHidesToken(t *testing.T) {
	t.Parallel()
	a, b := Default(), Default()
	b.Display.Telegram.Token = "secret"
	b.Scheduler.Cooldown = "2s"

	changed, attrs := SummarizeConfigChange(a, b)
	assert.Equal(t, []string{"scheduler", "display"}, changed)
	assert.NotEmpty(t, attrs)
	assert.True(t, DisplayChanged(a, b))

	changed, _ = SummarizeConfigChange(a, Default())
	assert.Empty(t, changed)

	c := Default()
	c.Debug.Token = "hunter2"
	changed, attrs = SummarizeConfigChange(a, c)
	assert.Equal(t, []string{"debug"}, changed)
	assert.False(t, DisplayChanged(a, c))
	assert.Len(t, attrs, 3)
}

func TestDotEnvBesideConfig(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "c.json", `{}`)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(p), DotEnvFile),
		[]byte("# local overrides\nNOTIFYD_MAX_QUEUE_SIZE=7\nNOTIFYD_LOG_LEVEL=debug\n"), 0o600))

	cfg, err := newTestManager(p, nil).Parse()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Scheduler.MaxQueueSize)
	assert.Equal(t, "debug", cfg.Logging.Level)

	cfg, err = newTestManager(p, map[string]string{"NOTIFYD_MAX_QUEUE_SIZE": "9"}).Parse()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Scheduler.MaxQueueSize)
}
