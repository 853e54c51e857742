// Package telegram delivers notices to one Telegram chat (optionally a forum
// topic) through a bot.
//
// Actions are rendered as inline buttons; Show blocks until a button is
// pressed. Progress is a single message edited in place, status lines are
// silent messages, and the adapter doubles as a log forwarder.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"notifyq/internal/display"
	rtsup "notifyq/internal/runtime/supervisor"
	logx "notifyq/pkg/logx"
)

type Options struct {
	Token       string
	ChatID      int64
	ThreadID    int
	PollTimeout time.Duration
}

// bot is the subset of *tele.Bot the adapter uses.
type bot interface {
	Send(to tele.Recipient, what any, opts ...any) (*tele.Message, error)
	Edit(msg tele.Editable, what any, opts ...any) (*tele.Message, error)
	EditReplyMarkup(msg tele.Editable, markup *tele.ReplyMarkup) (*tele.Message, error)
	Delete(msg tele.Editable) error
	Respond(c *tele.Callback, resp ...*tele.CallbackResponse) error
	Start()
	Stop()
}

type Adapter struct {
	opts Options
	log  logx.Logger
	bot  bot
	chat *tele.Chat

	seq atomic.Uint64

	mu      sync.Mutex
	prompts map[string]*prompt
	status  *tele.Message
	statusT *time.Timer
	closed  bool

	runMu sync.Mutex
	sup   *rtsup.Supervisor
}

type prompt struct {
	msg     *tele.Message
	actions []string
	done    chan string
}

func New(opts Options, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if opts.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  opts.Token,
		Poller: &tele.LongPoller{Timeout: opts.PollTimeout, AllowedUpdates: []string{"callback_query"}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", display.ErrUnavailable, err)
	}
	a := newAdapter(opts, log, b)
	b.Handle(tele.OnCallback, func(c tele.Context) error {
		a.handleCallback(c.Callback())
		return nil
	})
	return a, nil
}

func newAdapter(opts Options, log logx.Logger, b bot) *Adapter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{
		opts:    opts,
		log:     log,
		bot:     b,
		chat:    &tele.Chat{ID: opts.ChatID},
		prompts: map[string]*prompt{},
	}
}

// Start begins long polling for button presses. Polling restarts if telebot
// exits while ctx is still active.
func (a *Adapter) Start(ctx context.Context) {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.sup != nil {
		return
	}
	sup := rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.poll"))))
	a.sup = sup

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		return nil
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithStopOnCleanExit(false),
	)
}

// Stop ends polling. It never blocks longer than ctx or a short grace window.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	a.runMu.Unlock()
	if sup == nil {
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Stop(wctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		a.log.Warn("telegram stop error", logx.Err(err))
	}
	return nil
}

// Close stops polling and dismisses pending prompts.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	pending := a.prompts
	a.prompts = map[string]*prompt{}
	if a.statusT != nil {
		a.statusT.Stop()
	}
	a.mu.Unlock()

	for _, p := range pending {
		p.done <- ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return a.Stop(ctx)
}

func (a *Adapter) sendOpts(markup *tele.ReplyMarkup, silent bool) *tele.SendOptions {
	return &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		DisableNotification:   silent,
		ThreadID:              a.opts.ThreadID,
		ReplyMarkup:           markup,
	}
}

// send splits long text and attaches markup to the first chunk, which is returned.
func (a *Adapter) send(text string, markup *tele.ReplyMarkup, silent bool) (*tele.Message, error) {
	var first *tele.Message
	for i, chunk := range splitText(text, textLimit) {
		opt := a.sendOpts(nil, silent)
		if i == 0 {
			opt.ReplyMarkup = markup
		}
		m, err := a.bot.Send(a.chat, chunk, opt)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = m
		}
	}
	return first, nil
}

func (a *Adapter) Show(ctx context.Context, n display.Notice) (string, error) {
	labels := n.Actions
	wait := len(labels) > 0 || n.Modal
	if wait && len(labels) == 0 {
		labels = []string{"Dismiss"}
	}

	var (
		key    string
		markup *tele.ReplyMarkup
	)
	if wait {
		key = strconv.FormatUint(a.seq.Add(1), 36)
		markup = keyboard(key, labels)
	}

	// Register before sending so an early press cannot miss its prompt.
	p := &prompt{actions: n.Actions, done: make(chan string, 1)}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return "", display.ErrUnavailable
	}
	if wait {
		a.prompts[key] = p
	}
	a.mu.Unlock()

	msg, err := a.send(formatNotice(n), markup, false)
	if err != nil || !wait {
		if wait {
			a.mu.Lock()
			delete(a.prompts, key)
			a.mu.Unlock()
		}
		return "", err
	}
	a.mu.Lock()
	p.msg = msg
	a.mu.Unlock()

	select {
	case action := <-p.done:
		return action, nil
	case <-ctx.Done():
		a.mu.Lock()
		delete(a.prompts, key)
		a.mu.Unlock()
		if _, err := a.bot.EditReplyMarkup(msg, nil); err != nil {
			a.log.Debug("remove keyboard failed", logx.Err(err))
		}
		return "", ctx.Err()
	}
}

// handleCallback resolves the prompt a button belongs to. Presses from other
// chats and stale prompts are answered but ignored.
func (a *Adapter) handleCallback(cb *tele.Callback) {
	if cb == nil {
		return
	}
	key, idx, ok := parseCallbackData(cb.Data)
	var (
		p   *prompt
		msg *tele.Message
	)
	if ok && cb.Message != nil && cb.Message.Chat != nil && cb.Message.Chat.ID == a.opts.ChatID {
		a.mu.Lock()
		if p = a.prompts[key]; p != nil {
			msg = p.msg
		}
		delete(a.prompts, key)
		a.mu.Unlock()
	}
	if p == nil {
		_ = a.bot.Respond(cb, &tele.CallbackResponse{Text: "expired"})
		return
	}

	action := ""
	if idx >= 0 && idx < len(p.actions) {
		action = p.actions[idx]
	}
	p.done <- action

	reply := "dismissed"
	if action != "" {
		reply = action
	}
	if err := a.bot.Respond(cb, &tele.CallbackResponse{Text: reply}); err != nil {
		a.log.Debug("callback respond failed", logx.Err(err))
	}
	if msg != nil {
		if _, err := a.bot.EditReplyMarkup(msg, nil); err != nil {
			a.log.Debug("remove keyboard failed", logx.Err(err))
		}
	}
}

func (a *Adapter) Progress(ctx context.Context, title string, task display.ProgressTask) error {
	if task == nil {
		return nil
	}
	msg, err := a.send(formatProgress(title, "", 0), nil, true)
	if err != nil {
		// The task still runs; only the surface is missing.
		a.log.Warn("progress message failed", logx.Err(err))
	}
	r := &reporter{a: a, title: title, msg: msg, lim: rate.NewLimiter(rate.Every(time.Second), 1)}
	terr := task(ctx, r)

	final := "✅ " + html.EscapeString(title) + " done"
	if terr != nil {
		final = "❌ " + html.EscapeString(title) + ": " + html.EscapeString(terr.Error())
	}
	if msg != nil {
		if _, err := a.bot.Edit(msg, final, a.sendOpts(nil, true)); err != nil {
			a.log.Debug("progress final edit failed", logx.Err(err))
		}
	}
	return terr
}

// reporter edits the progress message. Edits are rate limited because
// Telegram throttles edits per chat; the final state is always written.
type reporter struct {
	a     *Adapter
	title string
	msg   *tele.Message
	lim   *rate.Limiter

	mu   sync.Mutex
	last int
}

func (r *reporter) Report(message string, percent int) {
	if r.msg == nil {
		return
	}
	percent = display.ClampPercent(percent)
	r.mu.Lock()
	defer r.mu.Unlock()
	if percent < 100 && (percent == r.last || !r.lim.Allow()) {
		return
	}
	r.last = percent
	if _, err := r.a.bot.Edit(r.msg, formatProgress(r.title, message, percent), r.a.sendOpts(nil, true)); err != nil {
		r.a.log.Debug("progress edit failed", logx.Err(err))
	}
}

// SetStatus keeps one silent status message, edited in place. With a timeout
// the message is deleted when it elapses.
func (a *Adapter) SetStatus(ctx context.Context, text string, timeout time.Duration) error {
	body := "ℹ️ " + html.EscapeString(text)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return display.ErrUnavailable
	}
	if a.statusT != nil {
		a.statusT.Stop()
		a.statusT = nil
	}

	var err error
	if a.status != nil {
		if _, err = a.bot.Edit(a.status, body, a.sendOpts(nil, true)); err != nil {
			a.status = nil
		}
	}
	if a.status == nil {
		if a.status, err = a.bot.Send(a.chat, body, a.sendOpts(nil, true)); err != nil {
			a.status = nil
			return err
		}
	}

	if timeout > 0 {
		msg := a.status
		a.statusT = time.AfterFunc(timeout, func() { a.clearStatus(msg) })
	}
	return nil
}

func (a *Adapter) clearStatus(msg *tele.Message) {
	a.mu.Lock()
	if a.status != msg {
		a.mu.Unlock()
		return
	}
	a.status = nil
	a.statusT = nil
	a.mu.Unlock()
	if err := a.bot.Delete(msg); err != nil {
		a.log.Debug("status delete failed", logx.Err(err))
	}
}

// ForwardLog implements logx.Forwarder. It must not log through the forwarding
// logger, so failures are returned only.
func (a *Adapter) ForwardLog(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := a.send("<pre>"+html.EscapeString(text)+"</pre>", nil, true)
	return err
}

func keyboard(key string, labels []string) *tele.ReplyMarkup {
	rows := make([][]tele.InlineButton, 0, (len(labels)+1)/2)
	for i, l := range labels {
		btn := tele.InlineButton{Text: l, Data: key + ":" + strconv.Itoa(i)}
		if i%2 == 0 {
			rows = append(rows, []tele.InlineButton{btn})
			continue
		}
		rows[len(rows)-1] = append(rows[len(rows)-1], btn)
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

func parseCallbackData(data string) (key string, idx int, ok bool) {
	key, rest, found := strings.Cut(strings.TrimSpace(data), ":")
	if !found || key == "" {
		return "", 0, false
	}
	idx, err := strconv.Atoi(rest)
	if err != nil {
		return "", 0, false
	}
	return key, idx, true
}

func formatNotice(n display.Notice) string {
	var b strings.Builder
	switch n.Kind {
	case display.KindError:
		b.WriteString("🛑 ")
	case display.KindWarning:
		b.WriteString("⚠️ ")
	default:
		b.WriteString("🔔 ")
	}
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(n.Message))
	b.WriteString("</b>")
	if d := strings.TrimSpace(n.Detail); d != "" {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(d))
	}
	return b.String()
}

func formatProgress(title, message string, percent int) string {
	const width = 10
	filled := percent * width / 100
	bar := strings.Repeat("▓", filled) + strings.Repeat("░", width-filled)
	s := fmt.Sprintf("⏳ <b>%s</b>\n%s %d%%", html.EscapeString(title), bar, percent)
	if message != "" {
		s += "\n" + html.EscapeString(message)
	}
	return s
}

const textLimit = 4000

// splitText splits s into chunks of at most limit runes, preferring newline
// boundaries and never cutting inside an HTML tag.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start+limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
			if open := lastIndex(rs[start:end], '<'); open > 0 && open > lastIndex(rs[start:end], '>') {
				end = start + open
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

func lastIndex(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}
