package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Postroom/postroom/internal/domain"
	"github.com/Postroom/postroom/internal/repository/testutil"
)

var webhookDeliveryRows = []string{
	"id", "webhook_id", "event_type", "payload", "status", "attempts",
	"last_error", "last_attempt_at", "created_at", "delivered_at",
}

func pendingDeliveryRow(d *domain.WebhookDelivery, attempts int) []driverValue {
	now := time.Now().UTC()
	return []driverValue{
		d.ID, d.WebhookID, d.EventType, []byte(d.Payload),
		string(domain.WebhookDeliveryStatusPending), attempts, nil, now, d.CreatedAt, nil,
	}
}

func TestWebhookDeliveryRepository_Enqueue(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	repo := NewWebhookDeliveryRepository(db)

	d := domain.NewWebhookDelivery("wh-1", domain.EventMessageSent,
		json.RawMessage(`{"event":"message.sent"}`))

	mock.ExpectExec("INSERT INTO webhook_deliveries").
		WithArgs(d.ID, "wh-1", domain.EventMessageSent, []byte(d.Payload),
			string(domain.WebhookDeliveryStatusPending), 0, d.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Enqueue(context.Background(), d))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookDeliveryRepository_ClaimNext(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	repo := NewWebhookDeliveryRepository(db)

	d := domain.NewWebhookDelivery("wh-1", domain.EventMessageBounced,
		json.RawMessage(`{"event":"message.bounced"}`))

	// The retry guard is passed in milliseconds; the claim increments attempts.
	mock.ExpectQuery("UPDATE webhook_deliveries").
		WithArgs(int64(30000)).
		WillReturnRows(sqlmock.NewRows(webhookDeliveryRows).
			AddRow(pendingDeliveryRow(d, 1)...))

	got, err := repo.ClaimNext(context.Background(), 30*time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, json.RawMessage(`{"event":"message.bounced"}`), got.Payload)
	require.NotNil(t, got.LastAttemptAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookDeliveryRepository_ClaimNextEmpty(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	repo := NewWebhookDeliveryRepository(db)

	mock.ExpectQuery("UPDATE webhook_deliveries").WillReturnError(sql.ErrNoRows)

	got, err := repo.ClaimNext(context.Background(), 30*time.Second)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestWebhookDeliveryRepository_MarkDelivered(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	repo := NewWebhookDeliveryRepository(db)

	mock.ExpectExec("UPDATE webhook_deliveries").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkDelivered(context.Background(), "del-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookDeliveryRepository_MarkDeliveredNotPending(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	repo := NewWebhookDeliveryRepository(db)

	mock.ExpectExec("UPDATE webhook_deliveries").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkDelivered(context.Background(), "del-1")
	require.Error(t, err)

	var notFound *domain.ErrNotFound
	assert.True(t, errors.As(err, &notFound))
}

func TestWebhookDeliveryRepository_Requeue(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	repo := NewWebhookDeliveryRepository(db)

	mock.ExpectExec("UPDATE webhook_deliveries").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Requeue(context.Background(), "del-1", "endpoint returned status 500"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookDeliveryRepository_MarkFailed(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	repo := NewWebhookDeliveryRepository(db)

	mock.ExpectExec("UPDATE webhook_deliveries").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkFailed(context.Background(), "del-1", "webhook no longer exists"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
