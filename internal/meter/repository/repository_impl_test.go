package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return db, mock
}

func TestLockMeterTakesRowLock(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT \* FROM "meters" WHERE org_id = \$1 AND id = \$2 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "serial_number"}).
			AddRow(int64(42), int64(7), "EM-42"))

	meter, err := Provide().LockMeter(context.Background(), db, 7, 42)
	require.NoError(t, err)
	require.NotNil(t, meter)
	assert.Equal(t, snowflake.ID(42), meter.ID)
	assert.Equal(t, "EM-42", meter.SerialNumber)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockMeterMissing(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`FROM "meters" .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	meter, err := Provide().LockMeter(context.Background(), db, 7, 43)
	require.NoError(t, err)
	assert.Nil(t, meter)
	require.NoError(t, mock.ExpectationsWereMet())
}
