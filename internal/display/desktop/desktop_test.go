package desktop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifyq/internal/display"
	logx "notifyq/pkg/logx"
)

type recordedCall struct {
	method string
	args   []any
}

type fakeBus struct {
	mu     sync.Mutex
	nextID uint32
	calls  []recordedCall
}

func (f *fakeBus) Call(method string, _ dbus.Flags, args ...any) *dbus.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{method: method, args: args})
	if method != dbusInterface+".Notify" {
		return &dbus.Call{}
	}
	id, _ := args[1].(uint32)
	if id == 0 {
		f.nextID++
		id = f.nextID
	}
	return &dbus.Call{Body: []any{id}}
}

func (f *fakeBus) last() recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func (f *fakeBus) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.method == dbusInterface+"."+method {
			n++
		}
	}
	return n
}

func newTestAdapter() (*Adapter, *fakeBus) {
	bus := &fakeBus{}
	return newAdapter(Options{AppName: "test"}, logx.Nop(), bus), bus
}

func TestShowWithoutActionsDoesNotWait(t *testing.T) {
	t.Parallel()
	a, bus := newTestAdapter()

	got, err := a.Show(context.Background(), display.Notice{Message: "Saved", Kind: display.KindInfo, Detail: "3 files"})
	require.NoError(t, err)
	assert.Equal(t, "", got)

	c := bus.last()
	assert.Equal(t, "test", c.args[0])
	assert.Equal(t, "Saved", c.args[3])
	assert.Equal(t, "3 files", c.args[4])
	assert.Equal(t, []string{}, c.args[5])
	assert.Equal(t, int32(-1), c.args[7])
}

func TestShowWaitsForActionInvoked(t *testing.T) {
	t.Parallel()
	a, bus := newTestAdapter()

	type res struct {
		action string
		err    error
	}
	out := make(chan res, 1)
	go func() {
		act, err := a.Show(context.Background(), display.Notice{Message: "Update?", Kind: display.KindError, Actions: []string{"Now", "Later"}})
		out <- res{act, err}
	}()

	require.Eventually(t, func() bool { return bus.count("Notify") == 1 }, time.Second, 5*time.Millisecond)
	c := bus.last()
	assert.Equal(t, "Error: Update?", c.args[3])
	assert.Equal(t, []string{"0", "Now", "1", "Later"}, c.args[5])
	assert.Equal(t, dbus.MakeVariant(urgencyCritical), c.args[6].(map[string]dbus.Variant)["urgency"])

	// A signal for another notification must not resolve this one.
	a.handleSignal(&dbus.Signal{Name: signalActionInvoked, Body: []any{uint32(99), "0"}})
	a.handleSignal(&dbus.Signal{Name: signalActionInvoked, Body: []any{uint32(1), "1"}})

	r := <-out
	require.NoError(t, r.err)
	assert.Equal(t, "Later", r.action)
}

func TestShowClosedMeansDismissed(t *testing.T) {
	t.Parallel()
	a, bus := newTestAdapter()
	out := make(chan string, 1)
	go func() {
		act, _ := a.Show(context.Background(), display.Notice{Message: "x", Modal: true})
		out <- act
	}()
	require.Eventually(t, func() bool { return bus.count("Notify") == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), bus.last().args[7], "modal notices never expire")

	a.handleSignal(&dbus.Signal{Name: signalClosed, Body: []any{uint32(1), uint32(2)}})
	assert.Equal(t, "", <-out)
}

func TestShowCanceledClosesNotification(t *testing.T) {
	t.Parallel()
	a, bus := newTestAdapter()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := a.Show(ctx, display.Notice{Message: "x", Actions: []string{"ok"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, bus.count("CloseNotification"))
	assert.Empty(t, a.waiters)
}

func TestProgressReplacesSameNotification(t *testing.T) {
	t.Parallel()
	a, bus := newTestAdapter()

	err := a.Progress(context.Background(), "Backup", func(ctx context.Context, r display.Reporter) error {
		r.Report("copying", 40)
		r.Report("copying", 140)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 4, bus.count("Notify"))

	bus.mu.Lock()
	defer bus.mu.Unlock()
	assert.Equal(t, uint32(0), bus.calls[0].args[1])
	for _, c := range bus.calls[1:] {
		assert.Equal(t, uint32(1), c.args[1], "updates replace the first notification")
	}
	assert.Equal(t, dbus.MakeVariant(int32(100)), bus.calls[2].args[6].(map[string]dbus.Variant)["value"])
	assert.Equal(t, "done", bus.calls[3].args[4])
}

func TestSetStatusReplacesPrevious(t *testing.T) {
	t.Parallel()
	a, bus := newTestAdapter()
	require.NoError(t, a.SetStatus(context.Background(), "one", 2*time.Second))
	require.NoError(t, a.SetStatus(context.Background(), "two", 0))

	bus.mu.Lock()
	defer bus.mu.Unlock()
	assert.Equal(t, int32(2000), bus.calls[0].args[7])
	assert.Equal(t, uint32(1), bus.calls[1].args[1])
	assert.Equal(t, int32(-1), bus.calls[1].args[7])
}

func TestCloseReleasesWaiters(t *testing.T) {
	t.Parallel()
	a, bus := newTestAdapter()
	out := make(chan string, 1)
	go func() {
		act, _ := a.Show(context.Background(), display.Notice{Message: "x", Actions: []string{"ok"}})
		out <- act
	}()
	require.Eventually(t, func() bool { return bus.count("Notify") == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return len(a.waiters) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, a.Close())
	assert.Equal(t, "", <-out)

	_, err := a.Show(context.Background(), display.Notice{Message: "y"})
	assert.ErrorIs(t, err, display.ErrUnavailable)
}
