package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Postroom/postroom/internal/domain"
	"github.com/Postroom/postroom/pkg/cache"
	"github.com/Postroom/postroom/pkg/dkim"
	"github.com/Postroom/postroom/pkg/emailerror"
	"github.com/Postroom/postroom/pkg/logger"
	"github.com/Postroom/postroom/pkg/smtpclient"
)

// dkimCacheTTL bounds how long a sending domain's key is reused before the
// database is consulted again.
const dkimCacheTTL = 5 * time.Minute

// EmailSender submits a built message to the relay
type EmailSender interface {
	Send(ctx context.Context, msg *smtpclient.OutboundMessage, sig *dkim.Signature) error
}

// WorkerConfig holds configuration for the message worker
type WorkerConfig struct {
	Concurrency  int           // Number of messages processed in parallel (default: 5)
	PollInterval time.Duration // Polling safety net interval (default: 1s)
	MaxRetries   int           // Total delivery attempts for retryable failures (default: 3)
	RetryDelay   time.Duration // Base back-off delay (default: 1s)

	// SystemDomain builds the synthetic Message-ID reported in
	// message.sent events.
	SystemDomain string

	// VisibilityTimeout is how long a claim may sit in processing before the
	// sweep releases it back to queued.
	VisibilityTimeout time.Duration

	// Circuit breaker settings
	CircuitBreakerThreshold int
	CircuitBreakerCooldown  time.Duration
}

// DefaultWorkerConfig returns sensible default configuration
func DefaultWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		Concurrency:             5,
		PollInterval:            time.Second,
		MaxRetries:              3,
		RetryDelay:              time.Second,
		SystemDomain:            "localhost",
		VisibilityTimeout:       time.Second,
		CircuitBreakerThreshold: 5,
		CircuitBreakerCooldown:  time.Minute,
	}
}

// Worker claims queued messages and delivers them through the SMTP relay,
// driving the retry and suppression state machines.
type Worker struct {
	messageRepo       domain.MessageRepository
	apiKeyRepo        domain.APIKeyRepository
	suppressionRepo   domain.SuppressionRepository
	sendingDomainRepo domain.SendingDomainRepository
	webhookRepo       domain.WebhookRepository
	deliveryRepo      domain.WebhookDeliveryRepository
	sender            EmailSender

	rateLimiter     *APIKeyRateLimiter
	circuitBreaker  *RelayCircuitBreaker
	errorClassifier *emailerror.Classifier
	dkimCache       cache.Cache
	config          *WorkerConfig
	logger          logger.Logger

	// Control. stop halts claiming; ctx aborts in-flight work and is only
	// cancelled once the claim loop has drained.
	ctx     context.Context
	cancel  context.CancelFunc
	stop    chan struct{}
	wg      sync.WaitGroup
	wake    chan struct{}
	running bool
	mu      sync.RWMutex
}

// NewWorker creates a new message worker
func NewWorker(
	messageRepo domain.MessageRepository,
	apiKeyRepo domain.APIKeyRepository,
	suppressionRepo domain.SuppressionRepository,
	sendingDomainRepo domain.SendingDomainRepository,
	webhookRepo domain.WebhookRepository,
	deliveryRepo domain.WebhookDeliveryRepository,
	sender EmailSender,
	config *WorkerConfig,
	log logger.Logger,
) *Worker {
	if config == nil {
		config = DefaultWorkerConfig()
	}

	cbConfig := CircuitBreakerConfig{
		Threshold:      config.CircuitBreakerThreshold,
		CooldownPeriod: config.CircuitBreakerCooldown,
	}

	return &Worker{
		messageRepo:       messageRepo,
		apiKeyRepo:        apiKeyRepo,
		suppressionRepo:   suppressionRepo,
		sendingDomainRepo: sendingDomainRepo,
		webhookRepo:       webhookRepo,
		deliveryRepo:      deliveryRepo,
		sender:            sender,
		rateLimiter:       NewAPIKeyRateLimiter(),
		circuitBreaker:    NewRelayCircuitBreaker(cbConfig),
		errorClassifier:   emailerror.NewClassifier(),
		dkimCache:         cache.NewInMemoryCache(time.Minute),
		config:            config,
		logger:            log,
		wake:              make(chan struct{}, 1),
	}
}

// Start begins processing queued messages
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.stop = make(chan struct{})
	w.running = true
	w.mu.Unlock()

	w.logger.WithFields(map[string]interface{}{
		"concurrency":   w.config.Concurrency,
		"poll_interval": w.config.PollInterval.String(),
		"max_retries":   w.config.MaxRetries,
	}).Info("Starting message worker")

	w.wg.Add(1)
	go w.processLoop()

	return nil
}

// Stop halts claiming and waits for in-flight sends to finish recording
// their status. In-flight work keeps the context given to Start, so a send
// that succeeds during shutdown still lands in `sent` instead of being
// requeued by the visibility sweep; the shutdown grace period is enforced by
// cancelling that parent context.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stop)
	w.mu.Unlock()

	w.logger.Info("Stopping message worker...")
	w.wg.Wait()
	w.cancel()
	w.dkimCache.Stop()
	w.logger.Info("Message worker stopped")
}

// IsRunning returns whether the worker is currently running
func (w *Worker) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Wake nudges the worker to drain the queue now instead of waiting for the
// next poll tick. Safe to call from any goroutine; extra wake-ups coalesce.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// processLoop drains the queue on notify wake-ups with the poll ticker as a
// safety net for missed notifications.
func (w *Worker) processLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Initial sweep picks up whatever queued while the worker was down.
	w.releaseStuck()
	w.drainQueue()

	for {
		select {
		case <-w.stop:
			return
		case <-w.ctx.Done():
			return
		case <-w.wake:
			w.drainQueue()
		case <-ticker.C:
			w.releaseStuck()
			w.drainQueue()
		}
	}
}

// releaseStuck requeues claims older than the visibility timeout
func (w *Worker) releaseStuck() {
	released, err := w.messageRepo.ReleaseStuck(w.ctx, w.config.VisibilityTimeout)
	if err != nil {
		if w.ctx.Err() == nil {
			w.logger.WithField("error", err.Error()).Error("Failed to release stuck messages")
		}
		return
	}
	if released > 0 {
		w.logger.WithField("count", released).Warn("Released stuck messages back to queue")
	}
}

// drainQueue claims and processes messages until the queue is empty,
// processing up to Concurrency messages in parallel.
func (w *Worker) drainQueue() {
	// An open circuit means the relay is down: leave the queue alone so
	// claims don't burn attempts on sends that cannot succeed.
	if w.circuitBreaker.IsOpen() {
		w.logger.Debug("Circuit breaker open, skipping queue drain")
		return
	}

	var drainWg sync.WaitGroup
	semaphore := make(chan struct{}, w.config.Concurrency)

	for {
		select {
		case <-w.stop:
			drainWg.Wait()
			return
		case <-w.ctx.Done():
			drainWg.Wait()
			return
		default:
		}

		if w.circuitBreaker.IsOpen() {
			break
		}

		// Take a slot before claiming so a claimed message never sits
		// waiting for a free worker while its claim ages.
		semaphore <- struct{}{}

		message, err := w.messageRepo.ClaimNext(w.ctx)
		if err != nil {
			<-semaphore
			if w.ctx.Err() == nil {
				w.logger.WithField("error", err.Error()).Error("Failed to claim message")
			}
			break
		}
		if message == nil {
			<-semaphore
			break
		}

		drainWg.Add(1)

		go func(msg *domain.Message) {
			defer drainWg.Done()
			defer func() { <-semaphore }()

			w.processMessage(msg)
		}(message)
	}

	drainWg.Wait()
}

// processMessage runs one claimed message through suppression check, DKIM
// lookup, send and the resulting state transition.
func (w *Worker) processMessage(msg *domain.Message) {
	if msg.Type != domain.MessageTypeEmail {
		reason := fmt.Sprintf("no %s provider configured", msg.Type)
		w.failMessage(msg, domain.MessageStatusFailed, reason,
			domain.EventMessageFailed, domain.EventDetail{FailureReason: reason})
		return
	}

	suppressed, reason, err := w.suppressionRepo.IsSuppressed(w.ctx, msg.APIKeyID, msg.To)
	if err != nil {
		// Leave the claim for the visibility sweep rather than guessing.
		if w.ctx.Err() == nil {
			w.logger.WithFields(map[string]interface{}{
				"message_id": msg.ID,
				"error":      err.Error(),
			}).Error("Failed to check suppression list")
		}
		return
	}
	if suppressed {
		// Rejections are silent: no webhook fires for a suppressed recipient.
		w.failMessage(msg, domain.MessageStatusRejected,
			fmt.Sprintf("recipient suppressed: %s", reason), "", domain.EventDetail{})
		return
	}

	if err := w.waitForRateLimit(msg); err != nil {
		// Context cancelled mid-wait; the visibility sweep will requeue.
		return
	}

	sig := w.signatureFor(msg)

	outbound := &smtpclient.OutboundMessage{
		ID:       msg.ID,
		From:     msg.From,
		FromName: msg.FromName,
		ReplyTo:  msg.ReplyTo,
		To:       msg.To,
		Subject:  msg.Subject,
		TextBody: msg.TextBody,
		HTMLBody: msg.HTMLBody,
		Headers:  msg.Headers,
	}

	if err := w.sender.Send(w.ctx, outbound, sig); err != nil {
		w.handleSendError(msg, err)
		return
	}

	w.circuitBreaker.RecordSuccess()

	if err := w.messageRepo.MarkSent(w.ctx, msg.ID); err != nil {
		w.logger.WithFields(map[string]interface{}{
			"message_id": msg.ID,
			"error":      err.Error(),
		}).Error("Failed to mark message as sent")
		return
	}
	msg.Status = domain.MessageStatusSent

	w.logger.WithFields(map[string]interface{}{
		"message_id": msg.ID,
		"recipient":  msg.To,
		"attempts":   msg.Attempts,
	}).Debug("Message sent")

	w.emitEvent(msg, domain.EventMessageSent, domain.EventDetail{
		SMTPMessageID: fmt.Sprintf("<%s@%s>", msg.ID, w.config.SystemDomain),
	})
}

// handleSendError classifies a send failure and applies the retry and
// suppression state machines.
func (w *Worker) handleSendError(msg *domain.Message, sendErr error) {
	classified := w.errorClassifier.Classify(sendErr)
	w.circuitBreaker.RecordFailure(classified)

	w.logger.WithFields(map[string]interface{}{
		"message_id": msg.ID,
		"recipient":  msg.To,
		"kind":       string(classified.Kind),
		"smtp_code":  classified.Code,
		"retryable":  classified.Retryable,
		"attempts":   msg.Attempts,
		"error":      sendErr.Error(),
	}).Warn("Failed to send message")

	if classified.ShouldRetry() {
		// Attempts was incremented by the claim, so this allows MaxRetries
		// total attempts before the failure becomes terminal.
		if msg.Attempts < w.config.MaxRetries {
			// The poll tick is the effective retry delay; the back-off value
			// is surfaced for operators watching the schedule.
			delay := domain.RetryBackoff(w.config.RetryDelay, msg.Attempts)
			w.logger.WithFields(map[string]interface{}{
				"message_id":    msg.ID,
				"attempts":      msg.Attempts,
				"next_retry_in": delay.String(),
			}).Debug("Requeueing message for retry")

			if err := w.messageRepo.Requeue(w.ctx, msg.ID, sendErr.Error()); err != nil {
				w.logger.WithFields(map[string]interface{}{
					"message_id": msg.ID,
					"error":      err.Error(),
				}).Error("Failed to requeue message")
			}
			return
		}

		// Retries exhausted.
		w.failMessage(msg, domain.MessageStatusFailed, sendErr.Error(),
			domain.EventMessageFailed, domain.EventDetail{FailureReason: sendErr.Error()})
		return
	}

	if classified.IsHardBounce() {
		suppression := domain.NewSuppression(msg.APIKeyID, msg.To, domain.SuppressionReasonHardBounce)
		if err := w.suppressionRepo.Add(w.ctx, suppression); err != nil {
			w.logger.WithFields(map[string]interface{}{
				"message_id": msg.ID,
				"recipient":  msg.To,
				"error":      err.Error(),
			}).Error("Failed to suppress hard-bounced recipient")
		}
		// The terminal status is failed; the bounce semantics ride on the
		// message.bounced event, not on a distinct status.
		w.failMessage(msg, domain.MessageStatusFailed, sendErr.Error(),
			domain.EventMessageBounced, domain.EventDetail{
				BounceCode:    classified.Code,
				BounceMessage: sendErr.Error(),
			})
		return
	}

	w.failMessage(msg, domain.MessageStatusFailed, sendErr.Error(),
		domain.EventMessageFailed, domain.EventDetail{FailureReason: sendErr.Error()})
}

// failMessage moves a message to a terminal status and emits the matching
// event. An empty event means the transition is silent.
func (w *Worker) failMessage(msg *domain.Message, status domain.MessageStatus, errorMsg, event string, detail domain.EventDetail) {
	if err := w.messageRepo.MarkFailed(w.ctx, msg.ID, status, errorMsg); err != nil {
		w.logger.WithFields(map[string]interface{}{
			"message_id": msg.ID,
			"status":     string(status),
			"error":      err.Error(),
		}).Error("Failed to mark message failed")
		return
	}
	msg.Status = status

	if event == "" {
		return
	}
	w.emitEvent(msg, event, detail)
}

// waitForRateLimit blocks until the message's API key may send
func (w *Worker) waitForRateLimit(msg *domain.Message) error {
	apiKey, err := w.apiKeyRepo.GetByID(w.ctx, msg.APIKeyID)
	if err != nil {
		// Unknown key: send unthrottled rather than stall the queue.
		var notFound *domain.ErrNotFound
		if !errors.As(err, &notFound) && w.ctx.Err() == nil {
			w.logger.WithFields(map[string]interface{}{
				"message_id": msg.ID,
				"error":      err.Error(),
			}).Warn("Failed to load API key for rate limiting")
		}
		return nil
	}
	return w.rateLimiter.Wait(w.ctx, apiKey.ID, apiKey.RateLimitPerSecond)
}

// signatureFor resolves the DKIM signer the message's tenant holds for the
// sender domain. Nil means send unsigned. Lookups are cached for dkimCacheTTL.
func (w *Worker) signatureFor(msg *domain.Message) *dkim.Signature {
	senderDomain := msg.SenderDomain()
	if senderDomain == "" {
		return nil
	}

	cacheKey := "dkim:" + msg.APIKeyID + ":" + senderDomain
	value, err := w.dkimCache.GetOrSet(cacheKey, dkimCacheTTL, func() (interface{}, error) {
		sendingDomain, err := w.sendingDomainRepo.GetByDomain(w.ctx, msg.APIKeyID, senderDomain)
		if err != nil {
			var notFound *domain.ErrNotFound
			if errors.As(err, &notFound) {
				// Unregistered domain: cache the miss too.
				return (*dkim.Signature)(nil), nil
			}
			return nil, err
		}
		// Only verified domains with a key sign. Signing is reputation, not
		// correctness, so everything else goes out unsigned.
		if !sendingDomain.Verified || sendingDomain.DKIMPrivateKey == "" {
			return (*dkim.Signature)(nil), nil
		}
		return dkim.NewSignature(sendingDomain.Domain, sendingDomain.DKIMSelector, sendingDomain.DKIMPrivateKey)
	})
	if err != nil {
		w.logger.WithFields(map[string]interface{}{
			"message_id": msg.ID,
			"domain":     senderDomain,
			"error":      err.Error(),
		}).Warn("DKIM lookup failed, sending unsigned")
		return nil
	}

	sig, _ := value.(*dkim.Signature)
	return sig
}

// emitEvent fans the event out to every subscribed webhook. Enqueue failures
// are logged and dropped: webhook delivery is best-effort and never blocks
// the message state machine.
func (w *Worker) emitEvent(msg *domain.Message, event string, detail domain.EventDetail) {
	webhooks, err := w.webhookRepo.ListActiveForEvent(w.ctx, msg.APIKeyID, event)
	if err != nil {
		if w.ctx.Err() == nil {
			w.logger.WithFields(map[string]interface{}{
				"message_id": msg.ID,
				"event":      event,
				"error":      err.Error(),
			}).Error("Failed to list webhooks for event")
		}
		return
	}
	if len(webhooks) == 0 {
		return
	}

	payload, err := domain.NewMessageEventPayload(event, msg, detail)
	if err != nil {
		w.logger.WithFields(map[string]interface{}{
			"message_id": msg.ID,
			"event":      event,
			"error":      err.Error(),
		}).Error("Failed to build event payload")
		return
	}

	for _, webhook := range webhooks {
		delivery := domain.NewWebhookDelivery(webhook.ID, event, payload)
		if err := w.deliveryRepo.Enqueue(w.ctx, delivery); err != nil {
			w.logger.WithFields(map[string]interface{}{
				"message_id": msg.ID,
				"webhook_id": webhook.ID,
				"event":      event,
				"error":      err.Error(),
			}).Error("Failed to enqueue webhook delivery")
		}
	}
}
