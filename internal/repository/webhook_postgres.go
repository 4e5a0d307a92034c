package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/Postroom/postroom/internal/domain"
	"github.com/Postroom/postroom/pkg/crypto"
)

// WebhookRepository implements domain.WebhookRepository. Webhook secrets are
// encrypted at rest like DKIM keys.
type WebhookRepository struct {
	db        *sql.DB
	secretKey string
}

// NewWebhookRepository creates a new WebhookRepository
func NewWebhookRepository(db *sql.DB, secretKey string) domain.WebhookRepository {
	return &WebhookRepository{db: db, secretKey: secretKey}
}

const webhookColumns = "id, api_key_id, url, secret, events, active, created_at, updated_at"

// Create inserts a webhook
func (r *WebhookRepository) Create(ctx context.Context, webhook *domain.Webhook) error {
	if err := webhook.Validate(); err != nil {
		return err
	}

	encryptedSecret, err := crypto.EncryptString(webhook.Secret, r.secretKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt webhook secret: %w", err)
	}

	query, args, err := psql.
		Insert("webhooks").
		Columns("id", "api_key_id", "url", "secret", "events", "active", "created_at", "updated_at").
		Values(webhook.ID, webhook.APIKeyID, webhook.URL, encryptedSecret,
			pq.Array([]string(webhook.Events)), webhook.Active, webhook.CreatedAt, webhook.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if storeErr := mapStoreError("webhook", err); storeErr != err {
			return storeErr
		}
		return fmt.Errorf("failed to insert webhook: %w", err)
	}
	return nil
}

// GetByID retrieves a webhook
func (r *WebhookRepository) GetByID(ctx context.Context, id string) (*domain.Webhook, error) {
	query := fmt.Sprintf(`SELECT %s FROM webhooks WHERE id = $1`, webhookColumns)

	webhook, err := r.scanWebhook(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "webhook", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}
	return webhook, nil
}

// ListActiveForEvent returns the active webhooks of an API key that subscribe
// to the given event
func (r *WebhookRepository) ListActiveForEvent(ctx context.Context, apiKeyID, event string) ([]*domain.Webhook, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM webhooks WHERE api_key_id = $1 AND active = TRUE AND $2 = ANY(events)`,
		webhookColumns,
	)

	rows, err := r.db.QueryContext(ctx, query, apiKeyID, event)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []*domain.Webhook
	for rows.Next() {
		webhook, err := r.scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook: %w", err)
		}
		webhooks = append(webhooks, webhook)
	}
	return webhooks, rows.Err()
}

// SetActive updates the active flag
func (r *WebhookRepository) SetActive(ctx context.Context, id string, active bool) error {
	query, args, err := psql.
		Update("webhooks").
		Set("active", active).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update webhook: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return &domain.ErrNotFound{Entity: "webhook", ID: id}
	}
	return nil
}

func (r *WebhookRepository) scanWebhook(row rowScanner) (*domain.Webhook, error) {
	var w domain.Webhook
	var encryptedSecret string

	err := row.Scan(&w.ID, &w.APIKeyID, &w.URL, &encryptedSecret, &w.Events,
		&w.Active, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}

	secret, err := crypto.DecryptFromHexString(encryptedSecret, r.secretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt webhook secret for %s: %w", w.ID, err)
	}
	w.Secret = secret

	return &w, nil
}
