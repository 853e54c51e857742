package systemd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *[]string {
	t.Helper()
	var sent []string
	old := notify
	notify = func(_ bool, state string) (bool, error) {
		sent = append(sent, state)
		return true, nil
	}
	t.Cleanup(func() { notify = old })
	return &sent
}

func TestStateMessages(t *testing.T) {
	sent := capture(t)

	ok, err := Ready("serving")
	require.NoError(t, err)
	assert.True(t, ok)
	_, _ = Reloading("")
	_, _ = Stopping("sigterm")
	_, _ = Status("queue=3")

	assert.Equal(t, []string{
		"READY=1\nSTATUS=serving",
		"RELOADING=1",
		"STOPPING=1\nSTATUS=sigterm",
		"STATUS=queue=3",
	}, *sent)
}

func TestWatchdogWithoutSystemd(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	t.Setenv("WATCHDOG_PID", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, Watchdog(ctx))
}
