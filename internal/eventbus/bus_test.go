package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFiltersByPrefix(t *testing.T) {
	t.Parallel()
	b := New()

	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	notifyOnly, unsubNotify := b.Subscribe(4, "notify.")
	defer unsubNotify()

	b.Publish(Event{Type: "config.reloaded"})
	b.Publish(Event{Type: "notify.delivered", Data: "x"})

	require.Len(t, all, 2)
	require.Len(t, notifyOnly, 1)

	ev := <-notifyOnly
	assert.Equal(t, "notify.delivered", ev.Type)
	assert.False(t, ev.Time.IsZero(), "publish should stamp a time")
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Event{Type: "notify.queued"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Equal(t, uint64(9), b.Dropped())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)

	// Publishing after unsubscribe is a no-op.
	b.Publish(Event{Type: "notify.queued"})
}
