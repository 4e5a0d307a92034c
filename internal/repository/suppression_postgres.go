package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Postroom/postroom/internal/domain"
)

// SuppressionRepository implements domain.SuppressionRepository
type SuppressionRepository struct {
	db *sql.DB
}

// NewSuppressionRepository creates a new SuppressionRepository
func NewSuppressionRepository(db *sql.DB) domain.SuppressionRepository {
	return &SuppressionRepository{db: db}
}

// Add inserts a suppression entry. Adding an already suppressed address is a
// no-op that keeps the original reason.
func (r *SuppressionRepository) Add(ctx context.Context, suppression *domain.Suppression) error {
	if err := suppression.Validate(); err != nil {
		return err
	}

	query, args, err := psql.
		Insert("suppressions").
		Columns("id", "api_key_id", "email", "reason", "created_at").
		Values(suppression.ID, suppression.APIKeyID, suppression.Email,
			suppression.Reason, suppression.CreatedAt).
		Suffix("ON CONFLICT (api_key_id, email) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if storeErr := mapStoreError("suppression", err); storeErr != err {
			return storeErr
		}
		return fmt.Errorf("failed to insert suppression: %w", err)
	}
	return nil
}

// IsSuppressed checks an address against the list. The address is normalized
// before comparison.
func (r *SuppressionRepository) IsSuppressed(ctx context.Context, apiKeyID, email string) (bool, domain.SuppressionReason, error) {
	query := `SELECT reason FROM suppressions WHERE api_key_id = $1 AND email = $2`

	var reason domain.SuppressionReason
	err := r.db.QueryRowContext(ctx, query, apiKeyID, domain.NormalizeEmail(email)).Scan(&reason)
	if err == sql.ErrNoRows {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("failed to check suppression: %w", err)
	}
	return true, reason, nil
}

// Remove deletes an address from the list
func (r *SuppressionRepository) Remove(ctx context.Context, apiKeyID, email string) error {
	query := `DELETE FROM suppressions WHERE api_key_id = $1 AND email = $2`

	if _, err := r.db.ExecContext(ctx, query, apiKeyID, domain.NormalizeEmail(email)); err != nil {
		return fmt.Errorf("failed to remove suppression: %w", err)
	}
	return nil
}

// List returns the suppressions of an API key
func (r *SuppressionRepository) List(ctx context.Context, apiKeyID string) ([]*domain.Suppression, error) {
	query := `SELECT id, api_key_id, email, reason, created_at
		FROM suppressions WHERE api_key_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, apiKeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list suppressions: %w", err)
	}
	defer rows.Close()

	var suppressions []*domain.Suppression
	for rows.Next() {
		var s domain.Suppression
		if err := rows.Scan(&s.ID, &s.APIKeyID, &s.Email, &s.Reason, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan suppression: %w", err)
		}
		suppressions = append(suppressions, &s)
	}
	return suppressions, rows.Err()
}
