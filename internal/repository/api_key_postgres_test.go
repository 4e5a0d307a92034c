package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Postroom/postroom/internal/domain"
	"github.com/Postroom/postroom/internal/repository/testutil"
	"github.com/Postroom/postroom/pkg/crypto"
)

func testAPIKey() *domain.APIKey {
	return &domain.APIKey{
		ID:                 uuid.New().String(),
		Name:               "production",
		KeyHash:            crypto.HashAPIKey("pk_live_abc123"),
		RateLimitPerSecond: 10,
		Active:             true,
		CreatedAt:          time.Now().UTC(),
	}
}

func TestAPIKeyRepository_Create(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	repo := NewAPIKeyRepository(db)

	key := testAPIKey()
	mock.ExpectExec("INSERT INTO api_keys").
		WithArgs(key.ID, key.Name, key.KeyHash, key.RateLimitPerSecond, key.Active, key.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), key))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRepository_CreateDuplicateHash(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	repo := NewAPIKeyRepository(db)

	mock.ExpectExec("INSERT INTO api_keys").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), testAPIKey())
	require.Error(t, err)

	var dupErr *domain.ErrDuplicate
	require.True(t, errors.As(err, &dupErr))
	assert.Equal(t, "api_key", dupErr.Entity)
}

func TestAPIKeyRepository_GetByHash(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	repo := NewAPIKeyRepository(db)

	key := testAPIKey()
	mock.ExpectQuery("SELECT (.+) FROM api_keys WHERE key_hash").
		WithArgs(key.KeyHash).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "key_hash", "rate_limit_per_second", "active", "created_at"}).
			AddRow(key.ID, key.Name, key.KeyHash, key.RateLimitPerSecond, key.Active, key.CreatedAt))

	got, err := repo.GetByHash(context.Background(), key.KeyHash)
	require.NoError(t, err)
	assert.Equal(t, key.ID, got.ID)
	assert.Equal(t, 10, got.RateLimitPerSecond)
}

func TestAPIKeyRepository_GetByIDNotFound(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	repo := NewAPIKeyRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM api_keys WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "key_hash", "rate_limit_per_second", "active", "created_at"}))

	_, err := repo.GetByID(context.Background(), "missing")
	require.Error(t, err)

	var notFound *domain.ErrNotFound
	assert.True(t, errors.As(err, &notFound))
}
