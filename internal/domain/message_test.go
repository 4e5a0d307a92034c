package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMessage() *Message {
	m := NewMessage("key-1", MessageTypeEmail, "Sender@Example.com", "User@Example.org", "Welcome")
	m.TextBody = "Hello"
	return m
}

func TestNewMessage_NormalizesAddresses(t *testing.T) {
	m := NewMessage("key-1", MessageTypeEmail, "  Sender@Example.COM ", "User@EXAMPLE.org", "Hi")

	assert.Equal(t, "sender@example.com", m.From)
	assert.Equal(t, "user@example.org", m.To)
	assert.Equal(t, MessageStatusQueued, m.Status)
	assert.NotEmpty(t, m.ID)
}

func TestMessage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Message)
		wantErr string
	}{
		{"valid", func(m *Message) {}, ""},
		{"missing api key", func(m *Message) { m.APIKeyID = "" }, "api_key_id"},
		{"bad type", func(m *Message) { m.Type = "fax" }, "type must be"},
		{"missing to", func(m *Message) { m.To = "" }, "to is required"},
		{"invalid to", func(m *Message) { m.To = "not-an-address" }, "valid email"},
		{"invalid from", func(m *Message) { m.From = "nope" }, "valid email"},
		{"missing subject", func(m *Message) { m.Subject = "" }, "subject"},
		{"missing body", func(m *Message) { m.TextBody = "" }, "body"},
		{"long idempotency key", func(m *Message) {
			key := make([]byte, 256)
			for i := range key {
				key[i] = 'a'
			}
			m.IdempotencyKey = string(key)
		}, "idempotency_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMessage()
			tt.mutate(m)

			err := m.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestMessage_ValidateSMS(t *testing.T) {
	// SMS messages are accepted by the store; the worker fails them at
	// delivery time because no provider is configured.
	m := NewMessage("key-1", MessageTypeSMS, "postroom", "+15551234567", "")
	assert.NoError(t, m.Validate())
}

func TestMessage_SenderDomain(t *testing.T) {
	tests := []struct {
		from string
		want string
	}{
		{"noreply@example.com", "example.com"},
		{"a@b@example.org", "example.org"},
		{"invalid", ""},
		{"trailing@", ""},
	}

	for _, tt := range tests {
		m := &Message{From: tt.from}
		assert.Equal(t, tt.want, m.SenderDomain(), tt.from)
	}
}

func TestMessageStatus_IsTerminal(t *testing.T) {
	assert.False(t, MessageStatusQueued.IsTerminal())
	assert.False(t, MessageStatusProcessing.IsTerminal())

	for _, s := range []MessageStatus{
		MessageStatusSent, MessageStatusDelivered, MessageStatusBounced,
		MessageStatusFailed, MessageStatusRejected,
	} {
		assert.True(t, s.IsTerminal(), string(s))
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "user@example.com", NormalizeEmail("  User@EXAMPLE.com "))
	assert.Equal(t, "", NormalizeEmail("   "))
}
