package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Postroom/postroom/internal/domain"
)

// APIKeyRepository implements domain.APIKeyRepository
type APIKeyRepository struct {
	db *sql.DB
}

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(db *sql.DB) domain.APIKeyRepository {
	return &APIKeyRepository{db: db}
}

const apiKeyColumns = "id, name, key_hash, rate_limit_per_second, active, created_at"

// Create inserts an API key
func (r *APIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	if err := key.Validate(); err != nil {
		return err
	}

	query, args, err := psql.
		Insert("api_keys").
		Columns("id", "name", "key_hash", "rate_limit_per_second", "active", "created_at").
		Values(key.ID, key.Name, key.KeyHash, key.RateLimitPerSecond, key.Active, key.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if storeErr := mapStoreError("api_key", err); storeErr != err {
			return storeErr
		}
		return fmt.Errorf("failed to insert API key: %w", err)
	}
	return nil
}

// GetByID retrieves an API key
func (r *APIKeyRepository) GetByID(ctx context.Context, id string) (*domain.APIKey, error) {
	query := fmt.Sprintf(`SELECT %s FROM api_keys WHERE id = $1`, apiKeyColumns)
	return r.scanOne(r.db.QueryRowContext(ctx, query, id), id)
}

// GetByHash looks up a key by its SHA-256 digest
func (r *APIKeyRepository) GetByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	query := fmt.Sprintf(`SELECT %s FROM api_keys WHERE key_hash = $1`, apiKeyColumns)
	return r.scanOne(r.db.QueryRowContext(ctx, query, keyHash), keyHash)
}

// List returns all API keys
func (r *APIKeyRepository) List(ctx context.Context) ([]*domain.APIKey, error) {
	query := fmt.Sprintf(`SELECT %s FROM api_keys ORDER BY created_at ASC`, apiKeyColumns)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	defer rows.Close()

	var keys []*domain.APIKey
	for rows.Next() {
		var key domain.APIKey
		if err := rows.Scan(&key.ID, &key.Name, &key.KeyHash, &key.RateLimitPerSecond, &key.Active, &key.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan API key: %w", err)
		}
		keys = append(keys, &key)
	}
	return keys, rows.Err()
}

func (r *APIKeyRepository) scanOne(row *sql.Row, id string) (*domain.APIKey, error) {
	var key domain.APIKey
	err := row.Scan(&key.ID, &key.Name, &key.KeyHash, &key.RateLimitPerSecond, &key.Active, &key.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "api_key", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}
	return &key, nil
}
