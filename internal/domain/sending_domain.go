package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

//go:generate mockgen -destination mocks/mock_sending_domain_repository.go -package mocks github.com/Postroom/postroom/internal/domain SendingDomainRepository

// DefaultDKIMSelector is used when a domain is registered without an explicit
// selector.
const DefaultDKIMSelector = "postroom"

// SendingDomain holds the DKIM configuration for a sender domain. The private
// key is stored encrypted; the public key is stored at generation time so the
// DNS record can be re-printed without touching the private key.
type SendingDomain struct {
	ID       string `json:"id"`
	APIKeyID string `json:"api_key_id"`
	Domain   string `json:"domain"`

	DKIMSelector string `json:"dkim_selector"`

	// DKIMPrivateKey is the AES-GCM encrypted PEM private key.
	DKIMPrivateKey string `json:"-"`

	// DKIMPublicKey is the base64 DER public key, the DNS "p=" value.
	DKIMPublicKey string `json:"dkim_public_key"`

	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSendingDomain builds an unverified domain record with the default
// selector. Keys are attached by the caller after generation.
func NewSendingDomain(apiKeyID, domainName string) *SendingDomain {
	now := time.Now().UTC()
	return &SendingDomain{
		ID:           uuid.New().String(),
		APIKeyID:     apiKeyID,
		Domain:       strings.ToLower(strings.TrimSpace(domainName)),
		DKIMSelector: DefaultDKIMSelector,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Validate checks the domain record is well-formed
func (d *SendingDomain) Validate() error {
	if d.APIKeyID == "" {
		return NewValidationError("api_key_id is required")
	}
	if d.Domain == "" {
		return NewValidationError("domain is required")
	}
	if strings.ContainsAny(d.Domain, " @") {
		return NewValidationError("domain is not a valid hostname")
	}
	if d.DKIMSelector == "" {
		return NewValidationError("dkim_selector is required")
	}
	return nil
}

// SendingDomainRepository handles sending domain persistence
type SendingDomainRepository interface {
	Create(ctx context.Context, sendingDomain *SendingDomain) error

	// GetByDomain looks up the DKIM configuration a tenant holds for a
	// sender domain. Lookups are case-insensitive.
	GetByDomain(ctx context.Context, apiKeyID, domainName string) (*SendingDomain, error)

	List(ctx context.Context, apiKeyID string) ([]*SendingDomain, error)

	SetVerified(ctx context.Context, id string, verified bool) error
}
