package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Postroom/postroom/internal/domain"
	"github.com/Postroom/postroom/internal/repository/testutil"
)

var messageRows = []string{
	"id", "api_key_id", "type", "idempotency_key", "from_address", "from_name",
	"reply_to", "to_address", "subject", "text_body", "html_body", "headers",
	"status", "attempts", "last_error", "claimed_at", "created_at", "updated_at",
	"sent_at",
}

func queuedMessage() *domain.Message {
	m := domain.NewMessage("11111111-1111-1111-1111-111111111111", domain.MessageTypeEmail,
		"noreply@example.com", "user@example.org", "Welcome")
	m.TextBody = "Hello"
	return m
}

func messageRowValues(m *domain.Message, status domain.MessageStatus, attempts int) []driverValue {
	now := time.Now().UTC()
	return []driverValue{
		m.ID, m.APIKeyID, string(m.Type), nil, m.From, nil, nil,
		m.To, m.Subject, m.TextBody, nil, []byte(`{"X-Campaign":"welcome"}`),
		string(status), attempts, nil, now, now, now, nil,
	}
}

// driverValue lets row fixtures spread directly into sqlmock's AddRow.
type driverValue = driver.Value

func TestMessageRepository_Create(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	repo := NewMessageRepository(db)

	mock.ExpectExec("INSERT INTO messages").
		WillReturnResult(sqlmock.NewResult(0, 1))

	msg := queuedMessage()
	created, wasCreated, err := repo.Create(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, wasCreated)
	assert.Equal(t, msg.ID, created.ID)
	assert.Equal(t, domain.MessageStatusQueued, created.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepository_CreateDuplicateIdempotencyKey(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	repo := NewMessageRepository(db)

	existing := queuedMessage()
	row := messageRowValues(existing, domain.MessageStatusSent, 1)
	row[3] = "order-42"

	// Conflict: insert touches no rows, the original message is fetched back.
	mock.ExpectExec("INSERT INTO messages").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM messages WHERE api_key_id").
		WithArgs(existing.APIKeyID, "order-42").
		WillReturnRows(sqlmock.NewRows(messageRows).AddRow(row...))

	msg := queuedMessage()
	msg.APIKeyID = existing.APIKeyID
	msg.IdempotencyKey = "order-42"

	got, wasCreated, err := repo.Create(context.Background(), msg)
	require.NoError(t, err)
	assert.False(t, wasCreated)
	assert.Equal(t, existing.ID, got.ID)
	assert.Equal(t, domain.MessageStatusSent, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepository_CreateInvalid(t *testing.T) {
	db, _ := testutil.SetupMockDB(t)
	repo := NewMessageRepository(db)

	msg := queuedMessage()
	msg.To = "not-an-address"

	_, _, err := repo.Create(context.Background(), msg)
	require.Error(t, err)

	var validationErr domain.ValidationError
	assert.True(t, errors.As(err, &validationErr))
}

func TestMessageRepository_ClaimNext(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	repo := NewMessageRepository(db)

	claimed := queuedMessage()
	mock.ExpectQuery("UPDATE messages").
		WillReturnRows(sqlmock.NewRows(messageRows).
			AddRow(messageRowValues(claimed, domain.MessageStatusProcessing, 1)...))

	got, err := repo.ClaimNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, claimed.ID, got.ID)
	assert.Equal(t, domain.MessageStatusProcessing, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, map[string]string{"X-Campaign": "welcome"}, got.Headers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepository_ClaimNextEmptyQueue(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	repo := NewMessageRepository(db)

	mock.ExpectQuery("UPDATE messages").WillReturnError(sql.ErrNoRows)

	got, err := repo.ClaimNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMessageRepository_MarkSent(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	repo := NewMessageRepository(db)

	mock.ExpectExec("UPDATE messages").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkSent(context.Background(), "msg-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepository_MarkSentNotProcessing(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	repo := NewMessageRepository(db)

	mock.ExpectExec("UPDATE messages").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkSent(context.Background(), "msg-1")
	require.Error(t, err)

	var notFound *domain.ErrNotFound
	assert.True(t, errors.As(err, &notFound))
}

func TestMessageRepository_MarkFailedRejectsNonTerminalStatus(t *testing.T) {
	db, _ := testutil.SetupMockDB(t)
	repo := NewMessageRepository(db)

	err := repo.MarkFailed(context.Background(), "msg-1", domain.MessageStatusQueued, "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not terminal")
}

func TestMessageRepository_MarkFailedStampsFailedAt(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	repo := NewMessageRepository(db)

	mock.ExpectExec(`UPDATE messages SET status = (.+), last_error = (.+), failed_at = (.+), claimed_at = (.+), updated_at =`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkFailed(context.Background(), "msg-1", domain.MessageStatusFailed, "boom"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepository_Requeue(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	repo := NewMessageRepository(db)

	mock.ExpectExec("UPDATE messages").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Requeue(context.Background(), "msg-1", "451 greylisted"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepository_ReleaseStuck(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	repo := NewMessageRepository(db)

	mock.ExpectExec("UPDATE messages").
		WithArgs(int64(30000)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	released, err := repo.ReleaseStuck(context.Background(), 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(3), released)
}

func TestMessageRepository_CountByStatus(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	repo := NewMessageRepository(db)

	mock.ExpectQuery("SELECT status, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("queued", 10).
			AddRow("sent", 42))

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), counts[domain.MessageStatusQueued])
	assert.Equal(t, int64(42), counts[domain.MessageStatusSent])
}
