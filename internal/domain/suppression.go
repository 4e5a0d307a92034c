package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

//go:generate mockgen -destination mocks/mock_suppression_repository.go -package mocks github.com/Postroom/postroom/internal/domain SuppressionRepository

// SuppressionReason explains why an address stopped receiving mail
type SuppressionReason string

const (
	SuppressionReasonHardBounce  SuppressionReason = "hard_bounce"
	SuppressionReasonSoftBounce  SuppressionReason = "soft_bounce"
	SuppressionReasonComplaint   SuppressionReason = "complaint"
	SuppressionReasonUnsubscribe SuppressionReason = "unsubscribe"
	SuppressionReasonManual      SuppressionReason = "manual"
)

// IsValid reports whether the reason is one of the known values
func (r SuppressionReason) IsValid() bool {
	switch r {
	case SuppressionReasonHardBounce, SuppressionReasonSoftBounce,
		SuppressionReasonComplaint, SuppressionReasonUnsubscribe,
		SuppressionReasonManual:
		return true
	}
	return false
}

// Suppression records an address that must not be mailed for an API key.
// Addresses are stored normalized (lowercase, trimmed).
type Suppression struct {
	ID        string            `json:"id"`
	APIKeyID  string            `json:"api_key_id"`
	Email     string            `json:"email"`
	Reason    SuppressionReason `json:"reason"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewSuppression builds a suppression entry with a normalized address
func NewSuppression(apiKeyID, email string, reason SuppressionReason) *Suppression {
	return &Suppression{
		ID:        uuid.New().String(),
		APIKeyID:  apiKeyID,
		Email:     NormalizeEmail(email),
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate checks the suppression entry is well-formed
func (s *Suppression) Validate() error {
	if s.APIKeyID == "" {
		return NewValidationError("api_key_id is required")
	}
	if s.Email == "" {
		return NewValidationError("email is required")
	}
	if !s.Reason.IsValid() {
		return NewValidationError("invalid suppression reason")
	}
	return nil
}

// SuppressionRepository handles the per-key suppression list
type SuppressionRepository interface {
	// Add inserts a suppression entry. Adding an already suppressed address
	// is a no-op that keeps the original reason.
	Add(ctx context.Context, suppression *Suppression) error

	// IsSuppressed checks an address against the list. The address is
	// normalized before comparison.
	IsSuppressed(ctx context.Context, apiKeyID, email string) (bool, SuppressionReason, error)

	// Remove deletes an address from the list
	Remove(ctx context.Context, apiKeyID, email string) error

	List(ctx context.Context, apiKeyID string) ([]*Suppression, error)
}
