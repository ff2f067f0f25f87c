package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "kiosk:pw@tcp(db:3306)/seats?charset=utf8mb4&parseTime=true&loc=UTC",
		DSN("kiosk", "pw", "db", "3306", "seats"))
	assert.Equal(t, "root@tcp(localhost:3306)/seats?charset=utf8mb4&parseTime=true&loc=UTC",
		DSN("root", "", "localhost", "3306", "seats"))
}

func TestMigrateCreatesSeatsTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS seats").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateWrapsError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("access denied")
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS seats").WillReturnError(boom)
	err = Migrate(context.Background(), db)
	assert.ErrorIs(t, err, boom)
}
