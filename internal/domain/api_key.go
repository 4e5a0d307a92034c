package domain

import (
	"context"
	"time"
)

//go:generate mockgen -destination mocks/mock_api_key_repository.go -package mocks github.com/Postroom/postroom/internal/domain APIKeyRepository

// APIKey identifies a tenant. Messages, webhooks and suppressions are all
// scoped to an API key.
type APIKey struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// KeyHash is the SHA-256 hex digest of the raw key. The raw key is never
	// stored.
	KeyHash string `json:"-"`

	// RateLimitPerSecond caps sends for this key. Zero means unlimited.
	RateLimitPerSecond int `json:"rate_limit_per_second"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the API key is well-formed
func (k *APIKey) Validate() error {
	if k.Name == "" {
		return NewValidationError("name is required")
	}
	if k.KeyHash == "" {
		return NewValidationError("key hash is required")
	}
	if k.RateLimitPerSecond < 0 {
		return NewValidationError("rate limit cannot be negative")
	}
	return nil
}

// APIKeyRepository handles API key persistence
type APIKeyRepository interface {
	Create(ctx context.Context, key *APIKey) error

	GetByID(ctx context.Context, id string) (*APIKey, error)

	// GetByHash looks up a key by its SHA-256 digest
	GetByHash(ctx context.Context, keyHash string) (*APIKey, error)

	List(ctx context.Context) ([]*APIKey, error)
}
