package listener

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkglogger "github.com/Postroom/postroom/pkg/logger"
)

type fakePGListener struct {
	mu        sync.Mutex
	channels  []string
	listenErr error
	pingErr   error
	notifyCh  chan *pq.Notification
	pings     int
	closed    bool
}

func newFakePGListener() *fakePGListener {
	return &fakePGListener{notifyCh: make(chan *pq.Notification, 10)}
}

func (f *fakePGListener) Listen(channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listenErr != nil {
		return f.listenErr
	}
	f.channels = append(f.channels, channel)
	return nil
}

func (f *fakePGListener) NotificationChannel() <-chan *pq.Notification {
	return f.notifyCh
}

func (f *fakePGListener) Ping() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return f.pingErr
}

func (f *fakePGListener) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

func (f *fakePGListener) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.notifyCh)
	}
	return nil
}

func (f *fakePGListener) listening() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.channels...)
}

func TestListener_RoutesNotifications(t *testing.T) {
	fake := newFakePGListener()
	l := newListener(fake, pkglogger.NewLoggerWithLevel("disabled"))

	messageWakes := make(chan string, 1)
	webhookWakes := make(chan string, 1)
	l.Subscribe(ChannelMessageQueued, func(payload string) {
		messageWakes <- payload
	})
	l.Subscribe(ChannelWebhookPending, func(payload string) {
		webhookWakes <- payload
	})

	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	assert.ElementsMatch(t, []string{ChannelMessageQueued, ChannelWebhookPending}, fake.listening())

	fake.notifyCh <- &pq.Notification{
		Channel: ChannelMessageQueued,
		Extra:   `{"id":"msg-1","type":"email","api_key_id":"key-1"}`,
	}
	fake.notifyCh <- &pq.Notification{
		Channel: ChannelWebhookPending,
		Extra:   `{"id":"del-1","webhook_id":"wh-1"}`,
	}

	select {
	case payload := <-messageWakes:
		assert.Contains(t, payload, "msg-1")
	case <-time.After(5 * time.Second):
		t.Fatal("message handler was not invoked")
	}

	select {
	case payload := <-webhookWakes:
		assert.Contains(t, payload, "del-1")
	case <-time.After(5 * time.Second):
		t.Fatal("webhook handler was not invoked")
	}
}

func TestListener_NilNotificationIsIgnored(t *testing.T) {
	fake := newFakePGListener()
	l := newListener(fake, pkglogger.NewLoggerWithLevel("disabled"))

	wakes := make(chan string, 2)
	l.Subscribe(ChannelMessageQueued, func(payload string) {
		wakes <- payload
	})

	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	// A nil notification signals a reconnect, not an event.
	fake.notifyCh <- nil
	fake.notifyCh <- &pq.Notification{Channel: ChannelMessageQueued, Extra: `{"id":"msg-2"}`}

	select {
	case payload := <-wakes:
		assert.Contains(t, payload, "msg-2")
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not invoked after reconnect signal")
	}
	assert.Empty(t, wakes)
}

func TestListener_UnknownChannelIsDropped(t *testing.T) {
	fake := newFakePGListener()
	l := newListener(fake, pkglogger.NewLoggerWithLevel("disabled"))

	wakes := make(chan string, 1)
	l.Subscribe(ChannelMessageQueued, func(payload string) {
		wakes <- payload
	})

	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	fake.notifyCh <- &pq.Notification{Channel: "something_else", Extra: `{}`}
	fake.notifyCh <- &pq.Notification{Channel: ChannelMessageQueued, Extra: `{"id":"msg-3"}`}

	select {
	case payload := <-wakes:
		assert.Contains(t, payload, "msg-3")
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestListener_StartListenError(t *testing.T) {
	fake := newFakePGListener()
	fake.listenErr = errors.New("connection refused")
	l := newListener(fake, pkglogger.NewLoggerWithLevel("disabled"))
	l.Subscribe(ChannelMessageQueued, func(string) {})

	err := l.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ChannelMessageQueued)
}

func TestListener_KeepaliveReportsPingFailure(t *testing.T) {
	fake := newFakePGListener()
	fake.pingErr = errors.New("driver: bad connection")
	l := newListener(fake, pkglogger.NewLoggerWithLevel("disabled"))

	// A failed keepalive is logged and swallowed; the next interval pings
	// again on whatever connection pq has re-established by then.
	l.keepalive()
	l.keepalive()

	assert.Equal(t, 2, fake.pingCount())
}

func TestListener_StopIsIdempotent(t *testing.T) {
	fake := newFakePGListener()
	l := newListener(fake, pkglogger.NewLoggerWithLevel("disabled"))
	l.Subscribe(ChannelMessageQueued, func(string) {})

	require.NoError(t, l.Start(context.Background()))
	l.Stop()
	l.Stop()
}
