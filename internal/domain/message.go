package domain

import (
	"context"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
)

//go:generate mockgen -destination mocks/mock_message_repository.go -package mocks github.com/Postroom/postroom/internal/domain MessageRepository

// MessageStatus represents the delivery state of a message
type MessageStatus string

const (
	MessageStatusQueued     MessageStatus = "queued"
	MessageStatusProcessing MessageStatus = "processing"
	MessageStatusSent       MessageStatus = "sent"
	MessageStatusDelivered  MessageStatus = "delivered"
	MessageStatusBounced    MessageStatus = "bounced"
	MessageStatusFailed     MessageStatus = "failed"
	MessageStatusRejected   MessageStatus = "rejected"
)

// IsTerminal reports whether the status admits no further transitions.
func (s MessageStatus) IsTerminal() bool {
	switch s {
	case MessageStatusSent, MessageStatusDelivered, MessageStatusBounced,
		MessageStatusFailed, MessageStatusRejected:
		return true
	}
	return false
}

// MessageType identifies the delivery channel
type MessageType string

const (
	MessageTypeEmail MessageType = "email"
	MessageTypeSMS   MessageType = "sms"
)

// Message represents a single transactional message in the queue
type Message struct {
	ID       string      `json:"id"`
	APIKeyID string      `json:"api_key_id"`
	Type     MessageType `json:"type"`

	// IdempotencyKey deduplicates enqueue requests per API key. Empty means
	// no deduplication.
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	From     string `json:"from"`
	FromName string `json:"from_name,omitempty"`
	ReplyTo  string `json:"reply_to,omitempty"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	TextBody string `json:"text_body"`
	HTMLBody string `json:"html_body,omitempty"`

	// Headers are extra headers added verbatim to the outgoing message.
	Headers map[string]string `json:"headers,omitempty"`

	Status MessageStatus `json:"status"`

	// Attempts counts delivery attempts, incremented on claim.
	Attempts  int     `json:"attempts"`
	LastError *string `json:"last_error,omitempty"`

	// ClaimedAt is stamped when a worker claims the message and cleared when
	// it is requeued. Stuck claims past the visibility timeout are released
	// back to queued.
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}

// NewMessage builds a queued message with a fresh ID and normalized addresses.
func NewMessage(apiKeyID string, msgType MessageType, from, to, subject string) *Message {
	now := time.Now().UTC()
	return &Message{
		ID:        uuid.New().String(),
		APIKeyID:  apiKeyID,
		Type:      msgType,
		From:      NormalizeEmail(from),
		To:        NormalizeEmail(to),
		Subject:   subject,
		Status:    MessageStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks the message is well-formed before enqueue.
func (m *Message) Validate() error {
	if m.APIKeyID == "" {
		return NewValidationError("api_key_id is required")
	}
	if m.Type != MessageTypeEmail && m.Type != MessageTypeSMS {
		return NewValidationError("type must be email or sms")
	}
	if m.To == "" {
		return NewValidationError("to is required")
	}
	if m.From == "" {
		return NewValidationError("from is required")
	}
	if m.Type == MessageTypeEmail {
		if !govalidator.IsEmail(m.To) {
			return NewValidationError("to is not a valid email address")
		}
		if !govalidator.IsEmail(m.From) {
			return NewValidationError("from is not a valid email address")
		}
		if m.Subject == "" {
			return NewValidationError("subject is required")
		}
		if m.TextBody == "" && m.HTMLBody == "" {
			return NewValidationError("text_body or html_body is required")
		}
	}
	if len(m.IdempotencyKey) > 255 {
		return NewValidationError("idempotency_key must be at most 255 characters")
	}
	return nil
}

// SenderDomain returns the domain part of the From address, used for DKIM
// signer lookup.
func (m *Message) SenderDomain() string {
	at := strings.LastIndex(m.From, "@")
	if at < 0 || at == len(m.From)-1 {
		return ""
	}
	return m.From[at+1:]
}

// NormalizeEmail lowercases and trims an address so comparisons against the
// suppression list and idempotency records are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MessageRepository handles message persistence and the claim protocol
type MessageRepository interface {
	// Create inserts a queued message. When the idempotency key is already
	// taken for the API key, the existing message is returned with created
	// false and nothing is inserted.
	Create(ctx context.Context, message *Message) (existing *Message, created bool, err error)

	// GetByID retrieves a message
	GetByID(ctx context.Context, id string) (*Message, error)

	// ClaimNext atomically claims the oldest queued message using
	// FOR UPDATE SKIP LOCKED, moving it to processing and incrementing
	// attempts. Returns nil when the queue is empty.
	ClaimNext(ctx context.Context) (*Message, error)

	// MarkSent records a successful delivery
	MarkSent(ctx context.Context, id string) error

	// MarkFailed moves a message to a terminal failure status
	MarkFailed(ctx context.Context, id string, status MessageStatus, errorMsg string) error

	// Requeue returns a processing message to queued for a later retry,
	// keeping the attempt count
	Requeue(ctx context.Context, id string, errorMsg string) error

	// ReleaseStuck requeues processing messages whose claim is older than
	// the visibility timeout. Returns the number of released messages.
	ReleaseStuck(ctx context.Context, olderThan time.Duration) (int64, error)

	// CountByStatus returns queue depth per status
	CountByStatus(ctx context.Context) (map[MessageStatus]int64, error)
}
