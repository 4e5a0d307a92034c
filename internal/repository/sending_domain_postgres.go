package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/Postroom/postroom/internal/domain"
	"github.com/Postroom/postroom/pkg/crypto"
)

// SendingDomainRepository implements domain.SendingDomainRepository. DKIM
// private keys are encrypted with the secret key before they touch the
// database and decrypted on read.
type SendingDomainRepository struct {
	db        *sql.DB
	secretKey string
}

// NewSendingDomainRepository creates a new SendingDomainRepository
func NewSendingDomainRepository(db *sql.DB, secretKey string) domain.SendingDomainRepository {
	return &SendingDomainRepository{db: db, secretKey: secretKey}
}

const sendingDomainColumns = "id, api_key_id, domain, dkim_selector, dkim_private_key, dkim_public_key, verified, created_at, updated_at"

// Create inserts a sending domain with its DKIM configuration
func (r *SendingDomainRepository) Create(ctx context.Context, sendingDomain *domain.SendingDomain) error {
	if err := sendingDomain.Validate(); err != nil {
		return err
	}
	if sendingDomain.DKIMPrivateKey == "" || sendingDomain.DKIMPublicKey == "" {
		return domain.NewValidationError("DKIM keys are required")
	}

	encryptedKey, err := crypto.EncryptString(sendingDomain.DKIMPrivateKey, r.secretKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt DKIM private key: %w", err)
	}

	query, args, err := psql.
		Insert("sending_domains").
		Columns("id", "api_key_id", "domain", "dkim_selector", "dkim_private_key",
			"dkim_public_key", "verified", "created_at", "updated_at").
		Values(sendingDomain.ID, sendingDomain.APIKeyID, sendingDomain.Domain,
			sendingDomain.DKIMSelector, encryptedKey, sendingDomain.DKIMPublicKey,
			sendingDomain.Verified, sendingDomain.CreatedAt, sendingDomain.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if storeErr := mapStoreError("sending_domain", err); storeErr != err {
			return storeErr
		}
		return fmt.Errorf("failed to insert sending domain: %w", err)
	}
	return nil
}

// GetByDomain looks up the DKIM configuration a tenant holds for a sender
// domain. Lookups are case-insensitive.
func (r *SendingDomainRepository) GetByDomain(ctx context.Context, apiKeyID, domainName string) (*domain.SendingDomain, error) {
	domainName = strings.ToLower(strings.TrimSpace(domainName))
	query := fmt.Sprintf(
		`SELECT %s FROM sending_domains WHERE api_key_id = $1 AND domain = $2`,
		sendingDomainColumns,
	)

	sendingDomain, err := r.scanDomain(r.db.QueryRowContext(ctx, query, apiKeyID, domainName))
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "sending_domain", ID: domainName}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sending domain: %w", err)
	}
	return sendingDomain, nil
}

// List returns the sending domains of an API key
func (r *SendingDomainRepository) List(ctx context.Context, apiKeyID string) ([]*domain.SendingDomain, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM sending_domains WHERE api_key_id = $1 ORDER BY domain ASC`,
		sendingDomainColumns,
	)

	rows, err := r.db.QueryContext(ctx, query, apiKeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sending domains: %w", err)
	}
	defer rows.Close()

	var domains []*domain.SendingDomain
	for rows.Next() {
		sendingDomain, err := r.scanDomain(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sending domain: %w", err)
		}
		domains = append(domains, sendingDomain)
	}
	return domains, rows.Err()
}

// SetVerified updates the verification flag
func (r *SendingDomainRepository) SetVerified(ctx context.Context, id string, verified bool) error {
	query, args, err := psql.
		Update("sending_domains").
		Set("verified", verified).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update sending domain: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return &domain.ErrNotFound{Entity: "sending_domain", ID: id}
	}
	return nil
}

func (r *SendingDomainRepository) scanDomain(row rowScanner) (*domain.SendingDomain, error) {
	var d domain.SendingDomain
	var encryptedKey string

	err := row.Scan(&d.ID, &d.APIKeyID, &d.Domain, &d.DKIMSelector, &encryptedKey,
		&d.DKIMPublicKey, &d.Verified, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}

	privateKey, err := crypto.DecryptFromHexString(encryptedKey, r.secretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt DKIM private key for %s: %w", d.Domain, err)
	}
	d.DKIMPrivateKey = privateKey

	return &d, nil
}
