// Package listener wakes the workers on Postgres NOTIFY events so queued
// work is picked up immediately instead of on the next poll tick.
package listener

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/Postroom/postroom/pkg/logger"
)

// Notification channels fired by the insert triggers
const (
	ChannelMessageQueued  = "message_queued"
	ChannelWebhookPending = "webhook_pending"
)

// keepaliveInterval is how long the listener sits idle before pinging the
// connection to keep it from being reaped.
const keepaliveInterval = 90 * time.Second

// Handler receives the raw JSON payload of a notification
type Handler func(payload string)

// pgListener is the subset of *pq.Listener the loop needs, extracted so
// tests can drive notifications without a database.
type pgListener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// Listener subscribes to Postgres notification channels and fans events out
// to registered handlers. Notifications are advisory wake-ups: the pollers
// remain the safety net, so a dropped notification delays work rather than
// losing it.
type Listener struct {
	listener pgListener
	logger   logger.Logger

	handlersMu sync.RWMutex
	handlers   map[string][]Handler

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewListener creates a listener connected to the given database
func NewListener(databaseURL string, log logger.Logger) *Listener {
	pl := pq.NewListener(databaseURL, 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.WithField("error", err.Error()).Warn("Postgres listener connection event")
			}
		})

	return newListener(pl, log)
}

func newListener(pl pgListener, log logger.Logger) *Listener {
	return &Listener{
		listener: pl,
		logger:   log,
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for a channel. Must be called before Start.
func (l *Listener) Subscribe(channel string, handler Handler) {
	l.handlersMu.Lock()
	defer l.handlersMu.Unlock()
	l.handlers[channel] = append(l.handlers[channel], handler)
}

// Start begins listening on every subscribed channel
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil
	}
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.running = true
	l.mu.Unlock()

	l.handlersMu.RLock()
	channels := make([]string, 0, len(l.handlers))
	for channel := range l.handlers {
		channels = append(channels, channel)
	}
	l.handlersMu.RUnlock()

	for _, channel := range channels {
		if err := l.listener.Listen(channel); err != nil {
			return fmt.Errorf("failed to listen on channel %s: %w", channel, err)
		}
		l.logger.WithField("channel", channel).Info("Listening for Postgres notifications")
	}

	l.wg.Add(1)
	go l.listen()

	return nil
}

// Stop closes the listener connection and waits for the loop to exit
func (l *Listener) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	l.cancel()
	l.mu.Unlock()

	l.listener.Close()
	l.wg.Wait()
	l.logger.Info("Postgres listener stopped")
}

func (l *Listener) listen() {
	defer l.wg.Done()

	notifications := l.listener.NotificationChannel()
	for {
		select {
		case <-l.ctx.Done():
			return
		case notification, ok := <-notifications:
			if !ok {
				return
			}
			// A nil notification means the connection was re-established;
			// the pollers cover anything that fired in the gap.
			if notification == nil {
				continue
			}
			l.handleNotification(notification)
		case <-time.After(keepaliveInterval):
			go l.keepalive()
		}
	}
}

// keepalive pings the connection so an idle listener is not reaped. A failed
// ping is logged; pq re-establishes the connection on its own.
func (l *Listener) keepalive() {
	if err := l.listener.Ping(); err != nil {
		l.logger.WithField("error", err.Error()).Warn("Postgres listener keepalive failed")
	}
}

func (l *Listener) handleNotification(notification *pq.Notification) {
	l.logger.WithFields(map[string]interface{}{
		"channel": notification.Channel,
		"payload": notification.Extra,
	}).Debug("Received Postgres notification")

	l.handlersMu.RLock()
	handlers := l.handlers[notification.Channel]
	l.handlersMu.RUnlock()

	for _, handler := range handlers {
		handler(notification.Extra)
	}
}
