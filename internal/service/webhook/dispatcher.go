// Package webhook delivers signed event payloads to subscriber endpoints.
package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Postroom/postroom/internal/domain"
	"github.com/Postroom/postroom/pkg/crypto"
	"github.com/Postroom/postroom/pkg/logger"
)

// Signature and event headers attached to every delivery
const (
	HeaderEvent     = "X-Postroom-Event"
	HeaderTimestamp = "X-Postroom-Timestamp"
	HeaderSignature = "X-Postroom-Signature"
)

// DispatcherConfig holds configuration for the webhook dispatcher
type DispatcherConfig struct {
	MaxRetries     int           // Attempts before a delivery is marked failed (default: 5)
	RequestTimeout time.Duration // Per-request timeout (default: 30s)
	PollInterval   time.Duration // Polling safety net interval (default: 1s)
	RetryAfter     time.Duration // Minimum spacing between attempts (default: 30s)
}

// DefaultDispatcherConfig returns sensible defaults
func DefaultDispatcherConfig() *DispatcherConfig {
	return &DispatcherConfig{
		MaxRetries:     5,
		RequestTimeout: 30 * time.Second,
		PollInterval:   time.Second,
		RetryAfter:     30 * time.Second,
	}
}

// Dispatcher claims pending webhook deliveries and POSTs signed payloads to
// subscriber endpoints.
type Dispatcher struct {
	deliveryRepo domain.WebhookDeliveryRepository
	webhookRepo  domain.WebhookRepository
	httpClient   *http.Client
	config       *DispatcherConfig
	logger       logger.Logger

	// Control. stop halts claiming; ctx aborts in-flight requests and is
	// only cancelled once the dispatch loop has drained.
	ctx     context.Context
	cancel  context.CancelFunc
	stop    chan struct{}
	wg      sync.WaitGroup
	wake    chan struct{}
	running bool
	mu      sync.RWMutex
}

// NewDispatcher creates a new webhook dispatcher
func NewDispatcher(
	deliveryRepo domain.WebhookDeliveryRepository,
	webhookRepo domain.WebhookRepository,
	config *DispatcherConfig,
	log logger.Logger,
) *Dispatcher {
	if config == nil {
		config = DefaultDispatcherConfig()
	}

	return &Dispatcher{
		deliveryRepo: deliveryRepo,
		webhookRepo:  webhookRepo,
		httpClient:   &http.Client{Timeout: config.RequestTimeout},
		config:       config,
		logger:       log,
		wake:         make(chan struct{}, 1),
	}
}

// Start begins dispatching pending deliveries
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.stop = make(chan struct{})
	d.running = true
	d.mu.Unlock()

	d.logger.WithFields(map[string]interface{}{
		"max_retries":     d.config.MaxRetries,
		"request_timeout": d.config.RequestTimeout.String(),
	}).Info("Starting webhook dispatcher")

	d.wg.Add(1)
	go d.dispatchLoop()

	return nil
}

// Stop halts claiming and waits for the in-flight delivery to finish
// recording its outcome. In-flight work keeps the context given to Start, so
// a POST that succeeds during shutdown is still marked delivered; the grace
// period is enforced by cancelling that parent context.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stop)
	d.mu.Unlock()

	d.logger.Info("Stopping webhook dispatcher...")
	d.wg.Wait()
	d.cancel()
	d.logger.Info("Webhook dispatcher stopped")
}

// IsRunning returns whether the dispatcher is currently running
func (d *Dispatcher) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// Wake nudges the dispatcher to drain pending deliveries now.
// Extra wake-ups coalesce.
func (d *Dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) dispatchLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	d.drainPending()

	for {
		select {
		case <-d.stop:
			return
		case <-d.ctx.Done():
			return
		case <-d.wake:
			d.drainPending()
		case <-ticker.C:
			d.drainPending()
		}
	}
}

// drainPending claims and dispatches deliveries until nothing is due
func (d *Dispatcher) drainPending() {
	for {
		select {
		case <-d.stop:
			return
		case <-d.ctx.Done():
			return
		default:
		}

		delivery, err := d.deliveryRepo.ClaimNext(d.ctx, d.config.RetryAfter)
		if err != nil {
			if d.ctx.Err() == nil {
				d.logger.WithField("error", err.Error()).Error("Failed to claim webhook delivery")
			}
			return
		}
		if delivery == nil {
			return
		}

		d.dispatch(delivery)
	}
}

// dispatch attempts one delivery and applies the retry state machine
func (d *Dispatcher) dispatch(delivery *domain.WebhookDelivery) {
	webhook, err := d.webhookRepo.GetByID(d.ctx, delivery.WebhookID)
	if err != nil {
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			d.terminate(delivery, "webhook no longer exists")
			return
		}
		if d.ctx.Err() == nil {
			d.logger.WithFields(map[string]interface{}{
				"delivery_id": delivery.ID,
				"webhook_id":  delivery.WebhookID,
				"error":       err.Error(),
			}).Error("Failed to load webhook")
		}
		return
	}
	if !webhook.Active {
		d.terminate(delivery, "webhook is inactive")
		return
	}

	if err := d.post(webhook, delivery); err != nil {
		d.logger.WithFields(map[string]interface{}{
			"delivery_id": delivery.ID,
			"webhook_id":  webhook.ID,
			"url":         webhook.URL,
			"attempts":    delivery.Attempts,
			"error":       err.Error(),
		}).Warn("Webhook delivery attempt failed")

		if delivery.Attempts >= d.config.MaxRetries {
			d.terminate(delivery, err.Error())
			return
		}
		if repoErr := d.deliveryRepo.Requeue(d.ctx, delivery.ID, err.Error()); repoErr != nil {
			d.logger.WithFields(map[string]interface{}{
				"delivery_id": delivery.ID,
				"error":       repoErr.Error(),
			}).Error("Failed to requeue webhook delivery")
		}
		return
	}

	if err := d.deliveryRepo.MarkDelivered(d.ctx, delivery.ID); err != nil {
		d.logger.WithFields(map[string]interface{}{
			"delivery_id": delivery.ID,
			"error":       err.Error(),
		}).Error("Failed to mark webhook delivery delivered")
		return
	}

	d.logger.WithFields(map[string]interface{}{
		"delivery_id": delivery.ID,
		"webhook_id":  webhook.ID,
		"event":       delivery.EventType,
		"attempts":    delivery.Attempts,
	}).Debug("Webhook delivered")
}

// post sends the signed payload. Any non-2xx response is a failure.
func (d *Dispatcher) post(webhook *domain.Webhook, delivery *domain.WebhookDelivery) error {
	ctx, cancel := context.WithTimeout(d.ctx, d.config.RequestTimeout)
	defer cancel()

	timestamp := time.Now().UTC().UnixMilli()
	signature := crypto.SignWebhookPayload(timestamp, delivery.Payload, webhook.Secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL,
		bytes.NewReader(delivery.Payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, delivery.EventType)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(timestamp, 10))
	req.Header.Set(HeaderSignature, signature)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// terminate marks a delivery failed for good
func (d *Dispatcher) terminate(delivery *domain.WebhookDelivery, reason string) {
	d.logger.WithFields(map[string]interface{}{
		"delivery_id": delivery.ID,
		"webhook_id":  delivery.WebhookID,
		"attempts":    delivery.Attempts,
		"reason":      reason,
	}).Warn("Webhook delivery permanently failed")

	if err := d.deliveryRepo.MarkFailed(d.ctx, delivery.ID, reason); err != nil {
		d.logger.WithFields(map[string]interface{}{
			"delivery_id": delivery.ID,
			"error":       err.Error(),
		}).Error("Failed to mark webhook delivery failed")
	}
}
