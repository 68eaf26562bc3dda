package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	tariffdomain "github.com/smallbiznis/utilitybill/internal/tariff/domain"
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

var tariffRowColumns = []string{
	"id", "org_id", "provider_id", "code", "name", "description", "configuration",
	"active_from", "active_until", "created_by", "created_at", "updated_at",
}

func TestFindByIDDecodesConfiguration(t *testing.T) {
	db, mock := newMockDB(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM tariffs\s+WHERE org_id = \$1 AND id = \$2`).
		WithArgs(int64(7), int64(42)).
		WillReturnRows(sqlmock.NewRows(tariffRowColumns).AddRow(
			int64(42), int64(7), int64(3), "residential-flat", "Residential flat", "",
			[]byte(`{"type":"flat","rate":"0.20","currency":"USD"}`),
			created, nil, "admin", created, created,
		))

	tariff, err := Provide().FindByID(context.Background(), db, 7, 42)
	require.NoError(t, err)
	require.NotNil(t, tariff)
	assert.Equal(t, tariffdomain.KindFlat, tariff.Configuration.Kind())
	assert.True(t, tariff.Configuration.Flat.Rate.Equal(decimal.RequireFromString("0.2")))
	assert.Nil(t, tariff.ActiveUntil)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDMissing(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`FROM tariffs`).
		WithArgs(int64(7), int64(43)).
		WillReturnRows(sqlmock.NewRows(tariffRowColumns))

	tariff, err := Provide().FindByID(context.Background(), db, 7, 43)
	require.NoError(t, err)
	assert.Nil(t, tariff)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindLatestVersionLocksRow(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`ORDER BY active_from DESC, id DESC\s+LIMIT 1 FOR UPDATE`).
		WithArgs(int64(7), int64(3), "residential-flat").
		WillReturnRows(sqlmock.NewRows(tariffRowColumns))

	tariff, err := Provide().FindLatestVersion(context.Background(), db, 7, 3, "residential-flat")
	require.NoError(t, err)
	assert.Nil(t, tariff)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveFiltersByCode(t *testing.T) {
	db, mock := newMockDB(t)
	asOf := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`active_until IS NULL OR active_until >= \$4\) AND code = \$5 ORDER BY created_at DESC, id DESC`).
		WithArgs(int64(7), int64(3), asOf, asOf, "residential-flat").
		WillReturnRows(sqlmock.NewRows(tariffRowColumns))

	items, err := Provide().FindActive(context.Background(), db, 7, 3, "residential-flat", asOf)
	require.NoError(t, err)
	assert.Empty(t, items)
	require.NoError(t, mock.ExpectationsWereMet())
}
