package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

//go:generate mockgen -destination mocks/mock_webhook_repository.go -package mocks github.com/Postroom/postroom/internal/domain WebhookRepository

// Event types delivered to webhook endpoints. Suppression rejections are
// deliberately silent: a rejected message emits nothing.
const (
	EventMessageSent    = "message.sent"
	EventMessageBounced = "message.bounced"
	EventMessageFailed  = "message.failed"
)

// knownEvents lists every event a webhook may subscribe to
var knownEvents = map[string]bool{
	EventMessageSent:    true,
	EventMessageBounced: true,
	EventMessageFailed:  true,
}

// IsKnownEvent reports whether the event name is one Postroom emits
func IsKnownEvent(event string) bool {
	return knownEvents[event]
}

// Webhook is a subscriber endpoint for message events
type Webhook struct {
	ID       string `json:"id"`
	APIKeyID string `json:"api_key_id"`
	URL      string `json:"url"`

	// Secret signs outgoing payloads. Never exposed after creation.
	Secret string `json:"-"`

	// Events is the subscription list; payloads are only dispatched for
	// events named here.
	Events pq.StringArray `json:"events"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewWebhook builds an active webhook subscribed to the given events
func NewWebhook(apiKeyID, url, secret string, events []string) *Webhook {
	now := time.Now().UTC()
	return &Webhook{
		ID:        uuid.New().String(),
		APIKeyID:  apiKeyID,
		URL:       url,
		Secret:    secret,
		Events:    events,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks the webhook is well-formed
func (w *Webhook) Validate() error {
	if w.APIKeyID == "" {
		return NewValidationError("api_key_id is required")
	}
	if !strings.HasPrefix(w.URL, "http://") && !strings.HasPrefix(w.URL, "https://") {
		return NewValidationError("url must be http or https")
	}
	if w.Secret == "" {
		return NewValidationError("secret is required")
	}
	if len(w.Events) == 0 {
		return NewValidationError("at least one event is required")
	}
	for _, event := range w.Events {
		if !IsKnownEvent(event) {
			return NewValidationError("unknown event: " + event)
		}
	}
	return nil
}

// SubscribesTo reports whether the webhook wants the given event
func (w *Webhook) SubscribesTo(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// WebhookRepository handles webhook persistence
type WebhookRepository interface {
	Create(ctx context.Context, webhook *Webhook) error

	GetByID(ctx context.Context, id string) (*Webhook, error)

	// ListActiveForEvent returns the active webhooks of an API key that
	// subscribe to the given event
	ListActiveForEvent(ctx context.Context, apiKeyID, event string) ([]*Webhook, error)

	SetActive(ctx context.Context, id string, active bool) error
}
