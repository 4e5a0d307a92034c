package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

//go:generate mockgen -destination mocks/mock_webhook_delivery_repository.go -package mocks github.com/Postroom/postroom/internal/domain WebhookDeliveryRepository

// WebhookDeliveryStatus tracks a delivery attempt series
type WebhookDeliveryStatus string

const (
	WebhookDeliveryStatusPending   WebhookDeliveryStatus = "pending"
	WebhookDeliveryStatusDelivered WebhookDeliveryStatus = "delivered"
	WebhookDeliveryStatusFailed    WebhookDeliveryStatus = "failed"
)

// WebhookDelivery is one event payload owed to one webhook endpoint. The
// payload bytes are frozen at enqueue time so retries always post the exact
// same body the signature was computed over.
type WebhookDelivery struct {
	ID        string `json:"id"`
	WebhookID string `json:"webhook_id"`
	EventType string `json:"event_type"`

	Payload json.RawMessage `json:"payload"`

	Status   WebhookDeliveryStatus `json:"status"`
	Attempts int                   `json:"attempts"`

	// LastError holds the most recent failure, response status or transport
	// error.
	LastError *string `json:"last_error,omitempty"`

	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
}

// NewWebhookDelivery builds a pending delivery for one webhook and event
func NewWebhookDelivery(webhookID, eventType string, payload json.RawMessage) *WebhookDelivery {
	return &WebhookDelivery{
		ID:        uuid.New().String(),
		WebhookID: webhookID,
		EventType: eventType,
		Payload:   payload,
		Status:    WebhookDeliveryStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// MessageEventPayload is the body posted to webhook endpoints. Field names
// are the published receiver contract; receivers dedupe on
// (messageId, event) since retries may deliver duplicates.
type MessageEventPayload struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	MessageID string `json:"messageId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Subject   string `json:"subject,omitempty"`
	Status    string `json:"status"`

	// Event-specific fields
	SMTPMessageID string `json:"smtpMessageId,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`
	BounceType    string `json:"bounceType,omitempty"`
	BounceCode    int    `json:"bounceCode,omitempty"`
	BounceMessage string `json:"bounceMessage,omitempty"`
}

// EventDetail carries the event-specific payload fields
type EventDetail struct {
	SMTPMessageID string
	FailureReason string
	BounceCode    int
	BounceMessage string
}

// NewMessageEventPayload serializes a message transition into webhook payload
// bytes.
func NewMessageEventPayload(event string, message *Message, detail EventDetail) (json.RawMessage, error) {
	payload := MessageEventPayload{
		Event:         event,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		MessageID:     message.ID,
		From:          message.From,
		To:            message.To,
		Subject:       message.Subject,
		Status:        string(message.Status),
		SMTPMessageID: detail.SMTPMessageID,
		FailureReason: detail.FailureReason,
		BounceCode:    detail.BounceCode,
		BounceMessage: detail.BounceMessage,
	}
	if event == EventMessageBounced {
		payload.BounceType = "hard"
	}
	return json.Marshal(payload)
}

// WebhookDeliveryRepository handles the webhook delivery queue
type WebhookDeliveryRepository interface {
	// Enqueue inserts a pending delivery
	Enqueue(ctx context.Context, delivery *WebhookDelivery) error

	// ClaimNext atomically claims the oldest pending delivery that is not
	// being retried too soon, using FOR UPDATE SKIP LOCKED. Returns nil when
	// nothing is due.
	ClaimNext(ctx context.Context, retryAfter time.Duration) (*WebhookDelivery, error)

	// MarkDelivered records a successful POST
	MarkDelivered(ctx context.Context, id string) error

	// MarkFailed moves a delivery to the terminal failed status
	MarkFailed(ctx context.Context, id string, errorMsg string) error

	// Requeue returns a delivery to pending for a later retry, keeping the
	// attempt count
	Requeue(ctx context.Context, id string, errorMsg string) error
}
