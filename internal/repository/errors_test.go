package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Postroom/postroom/internal/domain"
	"github.com/Postroom/postroom/internal/repository/testutil"
)

func TestMapStoreError(t *testing.T) {
	t.Run("unique violation", func(t *testing.T) {
		err := mapStoreError("message", &pq.Error{Code: "23505", Detail: "Key (id) already exists."})

		var dupErr *domain.ErrDuplicate
		require.True(t, errors.As(err, &dupErr))
		assert.Equal(t, "message", dupErr.Entity)
		assert.Contains(t, dupErr.Error(), "already exists")
	})

	t.Run("foreign key violation", func(t *testing.T) {
		err := mapStoreError("sending_domain", &pq.Error{Code: "23503"})

		var fkErr *domain.ErrForeignKey
		require.True(t, errors.As(err, &fkErr))
		assert.Equal(t, "sending_domain", fkErr.Entity)
	})

	t.Run("connection exception class", func(t *testing.T) {
		err := mapStoreError("message", &pq.Error{Code: "08006"})

		var connErr *domain.ErrConnection
		require.True(t, errors.As(err, &connErr))
	})

	t.Run("bad driver connection", func(t *testing.T) {
		err := mapStoreError("message", driver.ErrBadConn)

		var connErr *domain.ErrConnection
		require.True(t, errors.As(err, &connErr))
		assert.ErrorIs(t, err, driver.ErrBadConn)
	})

	t.Run("wrapped errors unwrap", func(t *testing.T) {
		wrapped := fmt.Errorf("exec: %w", &pq.Error{Code: "23505"})
		err := mapStoreError("webhook", wrapped)

		var dupErr *domain.ErrDuplicate
		assert.True(t, errors.As(err, &dupErr))
	})

	t.Run("other errors pass through", func(t *testing.T) {
		cause := errors.New("syntax error")
		assert.Equal(t, cause, mapStoreError("message", cause))
		assert.NoError(t, mapStoreError("message", nil))
	})
}

func TestSendingDomainRepository_CreateMissingAPIKey(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	repo := NewSendingDomainRepository(db, testSecretKey)

	d := domain.NewSendingDomain("missing-key", "example.com")
	d.DKIMPrivateKey = testPrivateKeyPEM
	d.DKIMPublicKey = "BASE64PUBKEY"

	mock.ExpectExec("INSERT INTO sending_domains").
		WillReturnError(&pq.Error{Code: "23503"})

	err := repo.Create(context.Background(), d)
	require.Error(t, err)

	var fkErr *domain.ErrForeignKey
	require.True(t, errors.As(err, &fkErr))
	assert.Equal(t, "sending_domain", fkErr.Entity)
}

func TestAPIKeyRepository_CreateConnectionLost(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	repo := NewAPIKeyRepository(db)

	mock.ExpectExec("INSERT INTO api_keys").
		WillReturnError(&pq.Error{Code: "08006", Message: "connection terminated"})

	err := repo.Create(context.Background(), testAPIKey())
	require.Error(t, err)

	var connErr *domain.ErrConnection
	require.True(t, errors.As(err, &connErr))
}
