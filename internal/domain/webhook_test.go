package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestWebhook_Validate(t *testing.T) {
	valid := func() *Webhook {
		return NewWebhook("key-1", "https://example.com/hooks", "s3cret", []string{EventMessageSent})
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("rejects non-http url", func(t *testing.T) {
		w := valid()
		w.URL = "ftp://example.com"
		assert.Error(t, w.Validate())
	})

	t.Run("rejects unknown event", func(t *testing.T) {
		w := valid()
		w.Events = []string{"message.teleported"}
		err := w.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown event")
	})

	t.Run("requires secret and events", func(t *testing.T) {
		w := valid()
		w.Secret = ""
		assert.Error(t, w.Validate())

		w = valid()
		w.Events = nil
		assert.Error(t, w.Validate())
	})
}

func TestWebhook_SubscribesTo(t *testing.T) {
	w := NewWebhook("key-1", "https://example.com", "s", []string{EventMessageSent, EventMessageBounced})

	assert.True(t, w.SubscribesTo(EventMessageSent))
	assert.True(t, w.SubscribesTo(EventMessageBounced))
	assert.False(t, w.SubscribesTo(EventMessageFailed))
}

func TestNewMessageEventPayload_Bounced(t *testing.T) {
	msg := validMessage()
	msg.Status = MessageStatusFailed

	payload, err := NewMessageEventPayload(EventMessageBounced, msg, EventDetail{
		BounceCode:    550,
		BounceMessage: "550 5.1.1 user unknown",
	})
	require.NoError(t, err)

	body := string(payload)
	assert.Equal(t, EventMessageBounced, gjson.Get(body, "event").String())
	assert.Equal(t, msg.ID, gjson.Get(body, "messageId").String())
	assert.Equal(t, "user@example.org", gjson.Get(body, "to").String())
	assert.Equal(t, "failed", gjson.Get(body, "status").String())
	assert.Equal(t, "hard", gjson.Get(body, "bounceType").String())
	assert.Equal(t, int64(550), gjson.Get(body, "bounceCode").Int())
	assert.Equal(t, "550 5.1.1 user unknown", gjson.Get(body, "bounceMessage").String())

	// Timestamp is ISO-8601.
	_, err = time.Parse(time.RFC3339, gjson.Get(body, "timestamp").String())
	assert.NoError(t, err)
}

func TestNewMessageEventPayload_Sent(t *testing.T) {
	msg := validMessage()
	msg.Status = MessageStatusSent

	payload, err := NewMessageEventPayload(EventMessageSent, msg, EventDetail{
		SMTPMessageID: "<" + msg.ID + "@postroom.test>",
	})
	require.NoError(t, err)

	body := string(payload)
	assert.Equal(t, "<"+msg.ID+"@postroom.test>", gjson.Get(body, "smtpMessageId").String())
	assert.False(t, gjson.Get(body, "failureReason").Exists())
	assert.False(t, gjson.Get(body, "bounceType").Exists())
	assert.True(t, json.Valid(payload))
}

func TestNewWebhookDelivery(t *testing.T) {
	d := NewWebhookDelivery("wh-1", EventMessageSent, json.RawMessage(`{"event":"message.sent"}`))

	assert.Equal(t, WebhookDeliveryStatusPending, d.Status)
	assert.Equal(t, 0, d.Attempts)
	assert.NotEmpty(t, d.ID)
}
