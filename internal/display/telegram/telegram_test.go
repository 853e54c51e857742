package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"notifyq/internal/display"
	logx "notifyq/pkg/logx"
)

type sent struct {
	text   string
	opts   *tele.SendOptions
	markup *tele.ReplyMarkup
}

type fakeBot struct {
	mu        sync.Mutex
	nextID    int
	sent      []sent
	edits     []string
	unmarked  []int
	deleted   []int
	responses []string
	sendErr   error
}

func (f *fakeBot) Send(to tele.Recipient, what any, opts ...any) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	s := sent{text: what.(string)}
	if len(opts) > 0 {
		s.opts = opts[0].(*tele.SendOptions)
		s.markup = s.opts.ReplyMarkup
	}
	f.sent = append(f.sent, s)
	f.nextID++
	return &tele.Message{ID: f.nextID, Chat: &tele.Chat{ID: 42}}, nil
}

func (f *fakeBot) Edit(msg tele.Editable, what any, opts ...any) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, what.(string))
	return msg.(*tele.Message), nil
}

func (f *fakeBot) EditReplyMarkup(msg tele.Editable, markup *tele.ReplyMarkup) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := msg.(*tele.Message)
	f.unmarked = append(f.unmarked, m.ID)
	return m, nil
}

func (f *fakeBot) Delete(msg tele.Editable) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, msg.(*tele.Message).ID)
	return nil
}

func (f *fakeBot) Respond(c *tele.Callback, resp ...*tele.CallbackResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(resp) > 0 {
		f.responses = append(f.responses, resp[0].Text)
	}
	return nil
}

func (f *fakeBot) Start() {}
func (f *fakeBot) Stop()  {}

func (f *fakeBot) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestAdapter() (*Adapter, *fakeBot) {
	b := &fakeBot{}
	return newAdapter(Options{ChatID: 42, ThreadID: 7}, logx.Nop(), b), b
}

// promptReady reports whether a prompt was sent and is waiting for a press.
func promptReady(a *Adapter) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range a.prompts {
		if p.msg != nil {
			return true
		}
	}
	return false
}

func press(a *Adapter, b *fakeBot, chatID int64, btn int) {
	b.mu.Lock()
	data := b.sent[0].markup.InlineKeyboard[btn/2][btn%2].Data
	b.mu.Unlock()
	a.handleCallback(&tele.Callback{ID: "cb", Data: data, Message: &tele.Message{ID: 1, Chat: &tele.Chat{ID: chatID}}})
}

func TestShowWithoutActionsReturnsAfterSend(t *testing.T) {
	t.Parallel()
	a, b := newTestAdapter()
	got, err := a.Show(context.Background(), display.Notice{Message: "a<b", Kind: display.KindWarning, Detail: "d"})
	require.NoError(t, err)
	assert.Equal(t, "", got)

	require.Len(t, b.sent, 1)
	assert.Equal(t, "⚠️ <b>a&lt;b</b>\nd", b.sent[0].text)
	assert.Equal(t, 7, b.sent[0].opts.ThreadID)
	assert.Nil(t, b.sent[0].markup)
}

func TestShowReturnsPressedButton(t *testing.T) {
	t.Parallel()
	a, b := newTestAdapter()
	out := make(chan string, 1)
	go func() {
		act, _ := a.Show(context.Background(), display.Notice{Message: "Deploy?", Actions: []string{"Yes", "No", "Later"}})
		out <- act
	}()
	require.Eventually(t, func() bool { return promptReady(a) }, time.Second, 5*time.Millisecond)

	b.mu.Lock()
	rows := b.sent[0].markup.InlineKeyboard
	b.mu.Unlock()
	require.Len(t, rows, 2)
	assert.Equal(t, "Yes", rows[0][0].Text)
	assert.Equal(t, "Later", rows[1][0].Text)

	// Presses from another chat are ignored.
	press(a, b, 99, 1)
	press(a, b, 42, 1)

	assert.Equal(t, "No", <-out)
	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, []string{"expired", "No"}, b.responses)
	assert.Equal(t, []int{1}, b.unmarked)
}

func TestShowModalAddsDismiss(t *testing.T) {
	t.Parallel()
	a, b := newTestAdapter()
	out := make(chan string, 1)
	go func() {
		act, _ := a.Show(context.Background(), display.Notice{Message: "Read me", Modal: true})
		out <- act
	}()
	require.Eventually(t, func() bool { return promptReady(a) }, time.Second, 5*time.Millisecond)
	press(a, b, 42, 0)
	assert.Equal(t, "", <-out)
}

func TestShowCanceled(t *testing.T) {
	t.Parallel()
	a, b := newTestAdapter()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := a.Show(ctx, display.Notice{Message: "?", Actions: []string{"ok"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, a.prompts)
	assert.Equal(t, []int{1}, b.unmarked)
}

func TestShowSendError(t *testing.T) {
	t.Parallel()
	a, b := newTestAdapter()
	b.sendErr = errors.New("flood")
	_, err := a.Show(context.Background(), display.Notice{Message: "?", Actions: []string{"ok"}})
	assert.EqualError(t, err, "flood")
	assert.Empty(t, a.prompts)
}

func TestProgressEditsInPlace(t *testing.T) {
	t.Parallel()
	a, b := newTestAdapter()
	err := a.Progress(context.Background(), "Upload", func(ctx context.Context, r display.Reporter) error {
		r.Report("part 1", 30)
		r.Report("part 1", 30) // same percent, skipped
		r.Report("", 100)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, b.sent, 1)
	assert.True(t, b.sent[0].opts.DisableNotification)
	require.Len(t, b.edits, 3)
	assert.Contains(t, b.edits[0], "30%")
	assert.Contains(t, b.edits[1], "100%")
	assert.Equal(t, "✅ Upload done", b.edits[2])
}

func TestSetStatusEditsAndExpires(t *testing.T) {
	t.Parallel()
	a, b := newTestAdapter()
	require.NoError(t, a.SetStatus(context.Background(), "one", 0))
	require.NoError(t, a.SetStatus(context.Background(), "two", 20*time.Millisecond))

	assert.Equal(t, 1, b.sentCount())
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.deleted) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, a.SetStatus(context.Background(), "three", 0))
	assert.Equal(t, 2, b.sentCount())
}

func TestCloseReleasesPrompts(t *testing.T) {
	t.Parallel()
	a, _ := newTestAdapter()
	out := make(chan string, 1)
	go func() {
		act, _ := a.Show(context.Background(), display.Notice{Message: "?", Actions: []string{"ok"}})
		out <- act
	}()
	require.Eventually(t, func() bool { return promptReady(a) }, time.Second, 5*time.Millisecond)
	require.NoError(t, a.Close())
	assert.Equal(t, "", <-out)
}

func TestForwardLogIsSilentPre(t *testing.T) {
	t.Parallel()
	a, b := newTestAdapter()
	require.NoError(t, a.ForwardLog(context.Background(), "WARN x<y"))
	assert.Equal(t, "<pre>WARN x&lt;y</pre>", b.sent[0].text)
	assert.True(t, b.sent[0].opts.DisableNotification)
}

func TestSplitText(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"short"}, splitText("short", 10))

	long := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	assert.Equal(t, []string{strings.Repeat("a", 8), strings.Repeat("b", 8)}, splitText(long, 10))

	tagged := "abcdef<b>xyz</b>"
	parts := splitText(tagged, 8)
	assert.Equal(t, "abcdef", parts[0])
	assert.Equal(t, tagged, strings.Join(parts, ""))
}

func TestParseCallbackData(t *testing.T) {
	t.Parallel()
	key, idx, ok := parseCallbackData("1z:3")
	require.True(t, ok)
	assert.Equal(t, "1z", key)
	assert.Equal(t, 3, idx)

	for _, bad := range []string{"", "nocolon", ":1", "k:x"} {
		_, _, ok := parseCallbackData(bad)
		assert.False(t, ok, bad)
	}
}
