package database

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Postroom/postroom/internal/database/schema"
)

func TestInitializeDatabase(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	total := len(schema.TableDefinitions) + len(schema.NotifyDefinitions)
	for i := 0; i < total; i++ {
		mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	err = InitializeDatabase(db)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitializeDatabase_TableError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(".*").WillReturnError(errors.New("permission denied"))

	err = InitializeDatabase(db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create table")
}

func TestInitializeDatabase_TriggerError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for i := 0; i < len(schema.TableDefinitions); i++ {
		mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec(".*").WillReturnError(errors.New("language plpgsql does not exist"))

	err = InitializeDatabase(db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notify trigger")
}
