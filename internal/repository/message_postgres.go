package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/Postroom/postroom/internal/domain"
)

// psql is a Squirrel StatementBuilder configured for PostgreSQL
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// messageColumns lists the scan order shared by every message query
const messageColumns = `id, api_key_id, type, idempotency_key, from_address, from_name, reply_to,
	to_address, subject, text_body, html_body, headers, status, attempts, last_error,
	claimed_at, created_at, updated_at, sent_at`

// MessageRepository implements domain.MessageRepository
type MessageRepository struct {
	db *sql.DB
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *sql.DB) domain.MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a queued message. When the idempotency key is already taken
// for the API key, nothing is inserted and the existing message is returned.
// The insert and the conflict check are a single statement, so two concurrent
// enqueues with the same key cannot both create a row.
func (r *MessageRepository) Create(ctx context.Context, message *domain.Message) (*domain.Message, bool, error) {
	if err := message.Validate(); err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	message.CreatedAt = now
	message.UpdatedAt = now
	message.Status = domain.MessageStatusQueued

	headersJSON, err := marshalHeaders(message.Headers)
	if err != nil {
		return nil, false, err
	}

	insertBuilder := psql.
		Insert("messages").
		Columns(
			"id", "api_key_id", "type", "idempotency_key", "from_address",
			"from_name", "reply_to", "to_address", "subject", "text_body",
			"html_body", "headers", "status", "attempts", "created_at", "updated_at",
		).
		Values(
			message.ID, message.APIKeyID, message.Type, nullString(message.IdempotencyKey),
			message.From, nullString(message.FromName), nullString(message.ReplyTo),
			message.To, message.Subject, message.TextBody, nullString(message.HTMLBody),
			headersJSON, message.Status, message.Attempts, message.CreatedAt, message.UpdatedAt,
		)

	if message.IdempotencyKey != "" {
		insertBuilder = insertBuilder.Suffix(
			"ON CONFLICT (api_key_id, idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING",
		)
	}

	query, args, err := insertBuilder.ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("failed to build query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if storeErr := mapStoreError("message", err); storeErr != err {
			return nil, false, storeErr
		}
		return nil, false, fmt.Errorf("failed to insert message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return message, true, nil
	}

	// The key is taken: return the original message.
	existing, err := r.getByIdempotencyKey(ctx, message.APIKeyID, message.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetByID retrieves a message
func (r *MessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM messages WHERE id = $1`, messageColumns)

	message, err := scanMessage(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "message", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return message, nil
}

func (r *MessageRepository) getByIdempotencyKey(ctx context.Context, apiKeyID, key string) (*domain.Message, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM messages WHERE api_key_id = $1 AND idempotency_key = $2`,
		messageColumns,
	)

	message, err := scanMessage(r.db.QueryRowContext(ctx, query, apiKeyID, key))
	if err != nil {
		return nil, fmt.Errorf("failed to get message by idempotency key: %w", err)
	}
	return message, nil
}

// ClaimNext atomically claims the oldest queued message. SKIP LOCKED lets
// concurrent workers claim different rows without blocking each other.
func (r *MessageRepository) ClaimNext(ctx context.Context) (*domain.Message, error) {
	query := fmt.Sprintf(`
		UPDATE messages
		SET status = 'processing',
			attempts = attempts + 1,
			claimed_at = NOW(),
			updated_at = NOW()
		WHERE id = (
			SELECT id FROM messages
			WHERE status = 'queued'
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING %s`, messageColumns)

	message, err := scanMessage(r.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim message: %w", err)
	}
	return message, nil
}

// MarkSent records a successful delivery
func (r *MessageRepository) MarkSent(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.update(ctx, id, psql.
		Update("messages").
		Set("status", domain.MessageStatusSent).
		Set("sent_at", now).
		Set("claimed_at", nil).
		Set("updated_at", now).
		Where(sq.Eq{"id": id, "status": domain.MessageStatusProcessing}))
}

// MarkFailed moves a message to a terminal failure status
func (r *MessageRepository) MarkFailed(ctx context.Context, id string, status domain.MessageStatus, errorMsg string) error {
	if !status.IsTerminal() {
		return domain.NewValidationError("status is not terminal: " + string(status))
	}

	now := time.Now().UTC()
	return r.update(ctx, id, psql.
		Update("messages").
		Set("status", status).
		Set("last_error", errorMsg).
		Set("failed_at", now).
		Set("claimed_at", nil).
		Set("updated_at", now).
		Where(sq.Eq{"id": id, "status": domain.MessageStatusProcessing}))
}

// Requeue returns a processing message to queued for a later retry
func (r *MessageRepository) Requeue(ctx context.Context, id string, errorMsg string) error {
	return r.update(ctx, id, psql.
		Update("messages").
		Set("status", domain.MessageStatusQueued).
		Set("last_error", errorMsg).
		Set("claimed_at", nil).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id, "status": domain.MessageStatusProcessing}))
}

// ReleaseStuck requeues processing messages whose claim is older than the
// visibility timeout, recovering work lost to crashed workers.
func (r *MessageRepository) ReleaseStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE messages
		SET status = 'queued',
			claimed_at = NULL,
			updated_at = NOW()
		WHERE status = 'processing'
		AND claimed_at < NOW() - ($1 * INTERVAL '1 millisecond')`

	result, err := r.db.ExecContext(ctx, query, olderThan.Milliseconds())
	if err != nil {
		return 0, fmt.Errorf("failed to release stuck messages: %w", err)
	}

	released, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return released, nil
}

// CountByStatus returns queue depth per status
func (r *MessageRepository) CountByStatus(ctx context.Context) (map[domain.MessageStatus]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM messages GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.MessageStatus]int64)
	for rows.Next() {
		var status domain.MessageStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *MessageRepository) update(ctx context.Context, id string, builder sq.UpdateBuilder) error {
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if storeErr := mapStoreError("message", err); storeErr != err {
			return storeErr
		}
		return fmt.Errorf("failed to update message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return &domain.ErrNotFound{Entity: "processing message", ID: id}
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var m domain.Message
	var idempotencyKey, fromName, replyTo, htmlBody, lastError sql.NullString
	var headersJSON []byte
	var claimedAt, sentAt sql.NullTime

	err := row.Scan(
		&m.ID, &m.APIKeyID, &m.Type, &idempotencyKey, &m.From, &fromName, &replyTo,
		&m.To, &m.Subject, &m.TextBody, &htmlBody, &headersJSON, &m.Status, &m.Attempts,
		&lastError, &claimedAt, &m.CreatedAt, &m.UpdatedAt, &sentAt,
	)
	if err != nil {
		return nil, err
	}

	m.IdempotencyKey = idempotencyKey.String
	m.FromName = fromName.String
	m.ReplyTo = replyTo.String
	m.HTMLBody = htmlBody.String
	if lastError.Valid {
		m.LastError = &lastError.String
	}
	if claimedAt.Valid {
		m.ClaimedAt = &claimedAt.Time
	}
	if sentAt.Valid {
		m.SentAt = &sentAt.Time
	}
	if len(headersJSON) > 0 {
		if err := json.Unmarshal(headersJSON, &m.Headers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal headers: %w", err)
		}
	}
	return &m, nil
}

func marshalHeaders(headers map[string]string) (interface{}, error) {
	if len(headers) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal headers: %w", err)
	}
	return data, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
