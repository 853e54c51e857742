// Package desktop shows notices through the freedesktop notification service
// (org.freedesktop.Notifications) on the D-Bus session bus.
//
// Actions become notification buttons. Show waits for ActionInvoked or
// NotificationClosed only when the notice has actions or is modal.
package desktop

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"notifyq/internal/display"
	logx "notifyq/pkg/logx"
)

const (
	dbusName      = "org.freedesktop.Notifications"
	dbusPath      = dbus.ObjectPath("/org/freedesktop/Notifications")
	dbusInterface = "org.freedesktop.Notifications"

	signalActionInvoked = dbusInterface + ".ActionInvoked"
	signalClosed        = dbusInterface + ".NotificationClosed"
)

// Urgency levels of org.freedesktop.Notifications.
const (
	urgencyLow      byte = 0
	urgencyNormal   byte = 1
	urgencyCritical byte = 2
)

type Options struct {
	AppName string
	Icon    string
}

// caller is the subset of dbus.BusObject used here.
type caller interface {
	Call(method string, flags dbus.Flags, args ...any) *dbus.Call
}

type Adapter struct {
	opts Options
	log  logx.Logger

	conn *dbus.Conn
	obj  caller

	mu      sync.Mutex
	waiters map[uint32]chan string
	sigs    chan *dbus.Signal
	done    chan struct{}
	closed  bool

	statusID uint32
}

// New connects to the session bus and subscribes to notification signals.
func New(opts Options, log logx.Logger) (*Adapter, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to session bus: %w", display.ErrUnavailable, err)
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(dbusPath),
		dbus.WithMatchInterface(dbusInterface),
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: add match: %w", display.ErrUnavailable, err)
	}
	a := newAdapter(opts, log, conn.Object(dbusName, dbusPath))
	a.conn = conn
	conn.Signal(a.sigs)
	go a.loop()
	return a, nil
}

func newAdapter(opts Options, log logx.Logger, obj caller) *Adapter {
	if opts.AppName == "" {
		opts.AppName = "notifyd"
	}
	return &Adapter{
		opts:    opts,
		log:     log,
		obj:     obj,
		waiters: map[uint32]chan string{},
		sigs:    make(chan *dbus.Signal, 16),
		done:    make(chan struct{}),
	}
}

func (a *Adapter) loop() {
	for {
		select {
		case <-a.done:
			return
		case sig, ok := <-a.sigs:
			if !ok {
				return
			}
			a.handleSignal(sig)
		}
	}
}

// handleSignal resolves the waiter for the notification the signal refers to.
// ActionInvoked carries the action key; NotificationClosed resolves with "".
func (a *Adapter) handleSignal(sig *dbus.Signal) {
	if sig == nil || len(sig.Body) < 2 {
		return
	}
	id, ok := sig.Body[0].(uint32)
	if !ok {
		return
	}
	var result string
	switch sig.Name {
	case signalActionInvoked:
		key, _ := sig.Body[1].(string)
		result = key
	case signalClosed:
	default:
		return
	}

	a.mu.Lock()
	ch, ok := a.waiters[id]
	if ok {
		delete(a.waiters, id)
	}
	a.mu.Unlock()
	if ok {
		ch <- result
	}
}

func (a *Adapter) notify(replaces uint32, summary, body string, actions []string, hints map[string]dbus.Variant, timeout int32) (uint32, error) {
	if actions == nil {
		actions = []string{}
	}
	call := a.obj.Call(dbusInterface+".Notify", 0,
		a.opts.AppName, replaces, a.opts.Icon, summary, body, actions, hints, timeout)
	if call.Err != nil {
		return 0, call.Err
	}
	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (a *Adapter) closeNotification(id uint32) {
	if call := a.obj.Call(dbusInterface+".CloseNotification", 0, id); call.Err != nil {
		a.log.Debug("close notification failed", logx.Int64("id", int64(id)), logx.Err(call.Err))
	}
}

func (a *Adapter) Show(ctx context.Context, n display.Notice) (string, error) {
	actions := encodeActions(n.Actions)
	wait := len(n.Actions) > 0 || n.Modal

	// Hold mu across the call so a fast ActionInvoked cannot arrive before
	// the waiter is registered.
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return "", display.ErrUnavailable
	}
	id, err := a.notify(0, summaryFor(n), n.Detail, actions, hints(n.Kind), expireTimeout(n))
	if err != nil {
		a.mu.Unlock()
		return "", err
	}
	var ch chan string
	if wait {
		ch = make(chan string, 1)
		a.waiters[id] = ch
	}
	a.mu.Unlock()

	if !wait {
		return "", nil
	}
	select {
	case key := <-ch:
		return decodeAction(n.Actions, key), nil
	case <-ctx.Done():
		a.mu.Lock()
		delete(a.waiters, id)
		a.mu.Unlock()
		a.closeNotification(id)
		return "", ctx.Err()
	}
}

func (a *Adapter) Progress(ctx context.Context, title string, task display.ProgressTask) error {
	if task == nil {
		return nil
	}
	r := &reporter{a: a, title: title}
	r.Report("", 0)
	err := task(ctx, r)

	r.mu.Lock()
	id := r.id
	r.mu.Unlock()
	body := "done"
	kind := display.KindInfo
	if err != nil {
		body, kind = err.Error(), display.KindError
	}
	if _, nerr := a.notify(id, title, body, nil, hints(kind), 5000); nerr != nil {
		a.log.Debug("progress final update failed", logx.Err(nerr))
	}
	return err
}

type reporter struct {
	a     *Adapter
	title string

	mu sync.Mutex
	id uint32
}

// Report replaces the same notification in place using the "value" hint.
func (r *reporter) Report(message string, percent int) {
	h := hints(display.KindProgress)
	h["value"] = dbus.MakeVariant(int32(display.ClampPercent(percent)))

	r.mu.Lock()
	defer r.mu.Unlock()
	id, err := r.a.notify(r.id, r.title, message, nil, h, 0)
	if err != nil {
		r.a.log.Debug("progress update failed", logx.Err(err))
		return
	}
	r.id = id
}

// SetStatus shows a transient low-urgency notification that replaces the
// previous status.
func (a *Adapter) SetStatus(ctx context.Context, text string, timeout time.Duration) error {
	h := hints(display.KindInfo)
	h["urgency"] = dbus.MakeVariant(urgencyLow)
	h["transient"] = dbus.MakeVariant(true)

	ms := int32(-1)
	if timeout > 0 {
		ms = int32(timeout / time.Millisecond)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	id, err := a.notify(a.statusID, a.opts.AppName, text, nil, h, ms)
	if err != nil {
		return err
	}
	a.statusID = id
	return nil
}

// Close releases pending Show calls and the bus connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	for id, ch := range a.waiters {
		ch <- ""
		delete(a.waiters, id)
	}
	close(a.done)
	a.mu.Unlock()

	if a.conn == nil {
		return nil
	}
	a.conn.RemoveSignal(a.sigs)
	return errors.Join(
		a.conn.RemoveMatchSignal(dbus.WithMatchObjectPath(dbusPath), dbus.WithMatchInterface(dbusInterface)),
		a.conn.Close(),
	)
}

func summaryFor(n display.Notice) string {
	switch n.Kind {
	case display.KindError:
		return "Error: " + n.Message
	case display.KindWarning:
		return "Warning: " + n.Message
	default:
		return n.Message
	}
}

func hints(k display.Kind) map[string]dbus.Variant {
	u := urgencyNormal
	switch k {
	case display.KindError:
		u = urgencyCritical
	case display.KindProgress:
		u = urgencyLow
	}
	return map[string]dbus.Variant{"urgency": dbus.MakeVariant(u)}
}

// expireTimeout maps the notice to the Notify expire_timeout argument:
// -1 is server default, 0 never expires.
func expireTimeout(n display.Notice) int32 {
	if n.Modal {
		return 0
	}
	if n.Duration > 0 {
		return int32(n.Duration / time.Millisecond)
	}
	return -1
}

// encodeActions builds the flat key/label list. Keys are indexes so labels
// may repeat or contain anything.
func encodeActions(labels []string) []string {
	out := make([]string, 0, 2*len(labels))
	for i, l := range labels {
		out = append(out, strconv.Itoa(i), l)
	}
	return out
}

func decodeAction(labels []string, key string) string {
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || i >= len(labels) {
		return ""
	}
	return labels[i]
}
