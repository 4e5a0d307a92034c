package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/Postroom/postroom/internal/domain"
)

// WebhookDeliveryRepository implements domain.WebhookDeliveryRepository
type WebhookDeliveryRepository struct {
	db *sql.DB
}

// NewWebhookDeliveryRepository creates a new WebhookDeliveryRepository
func NewWebhookDeliveryRepository(db *sql.DB) domain.WebhookDeliveryRepository {
	return &WebhookDeliveryRepository{db: db}
}

const webhookDeliveryColumns = `id, webhook_id, event_type, payload, status, attempts,
	last_error, last_attempt_at, created_at, delivered_at`

// Enqueue inserts a pending delivery
func (r *WebhookDeliveryRepository) Enqueue(ctx context.Context, delivery *domain.WebhookDelivery) error {
	query, args, err := psql.
		Insert("webhook_deliveries").
		Columns("id", "webhook_id", "event_type", "payload", "status", "attempts", "created_at").
		Values(delivery.ID, delivery.WebhookID, delivery.EventType, []byte(delivery.Payload),
			delivery.Status, delivery.Attempts, delivery.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if storeErr := mapStoreError("webhook_delivery", err); storeErr != err {
			return storeErr
		}
		return fmt.Errorf("failed to enqueue webhook delivery: %w", err)
	}
	return nil
}

// ClaimNext atomically claims the oldest pending delivery that has not been
// attempted within retryAfter. SKIP LOCKED lets concurrent dispatchers claim
// different rows, and the last_attempt_at guard spaces out retries.
func (r *WebhookDeliveryRepository) ClaimNext(ctx context.Context, retryAfter time.Duration) (*domain.WebhookDelivery, error) {
	query := fmt.Sprintf(`
		UPDATE webhook_deliveries
		SET attempts = attempts + 1,
			last_attempt_at = NOW()
		WHERE id = (
			SELECT id FROM webhook_deliveries
			WHERE status = 'pending'
			AND (last_attempt_at IS NULL OR last_attempt_at < NOW() - ($1 * INTERVAL '1 millisecond'))
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING %s`, webhookDeliveryColumns)

	delivery, err := scanWebhookDelivery(r.db.QueryRowContext(ctx, query, retryAfter.Milliseconds()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim webhook delivery: %w", err)
	}
	return delivery, nil
}

// MarkDelivered records a successful POST
func (r *WebhookDeliveryRepository) MarkDelivered(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.update(ctx, id, psql.
		Update("webhook_deliveries").
		Set("status", domain.WebhookDeliveryStatusDelivered).
		Set("delivered_at", now).
		Set("last_error", nil).
		Where(sq.Eq{"id": id, "status": domain.WebhookDeliveryStatusPending}))
}

// MarkFailed moves a delivery to the terminal failed status
func (r *WebhookDeliveryRepository) MarkFailed(ctx context.Context, id string, errorMsg string) error {
	return r.update(ctx, id, psql.
		Update("webhook_deliveries").
		Set("status", domain.WebhookDeliveryStatusFailed).
		Set("last_error", errorMsg).
		Where(sq.Eq{"id": id, "status": domain.WebhookDeliveryStatusPending}))
}

// Requeue records a failed attempt, leaving the delivery pending for a retry
func (r *WebhookDeliveryRepository) Requeue(ctx context.Context, id string, errorMsg string) error {
	return r.update(ctx, id, psql.
		Update("webhook_deliveries").
		Set("last_error", errorMsg).
		Where(sq.Eq{"id": id, "status": domain.WebhookDeliveryStatusPending}))
}

func (r *WebhookDeliveryRepository) update(ctx context.Context, id string, builder sq.UpdateBuilder) error {
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update webhook delivery: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return &domain.ErrNotFound{Entity: "pending webhook delivery", ID: id}
	}
	return nil
}

func scanWebhookDelivery(row rowScanner) (*domain.WebhookDelivery, error) {
	var d domain.WebhookDelivery
	var lastError sql.NullString
	var lastAttemptAt, deliveredAt sql.NullTime
	var payload []byte

	err := row.Scan(&d.ID, &d.WebhookID, &d.EventType, &payload, &d.Status,
		&d.Attempts, &lastError, &lastAttemptAt, &d.CreatedAt, &deliveredAt)
	if err != nil {
		return nil, err
	}

	d.Payload = payload
	if lastError.Valid {
		d.LastError = &lastError.String
	}
	if lastAttemptAt.Valid {
		d.LastAttemptAt = &lastAttemptAt.Time
	}
	if deliveredAt.Valid {
		d.DeliveredAt = &deliveredAt.Time
	}
	return &d, nil
}
