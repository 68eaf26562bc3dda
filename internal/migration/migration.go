package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/utilitybill/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/utilitybill/internal/catalog/domain"
	invoicedomain "github.com/smallbiznis/utilitybill/internal/invoice/domain"
	meterdomain "github.com/smallbiznis/utilitybill/internal/meter/domain"
	propertydomain "github.com/smallbiznis/utilitybill/internal/property/domain"
	serviceconfigdomain "github.com/smallbiznis/utilitybill/internal/serviceconfig/domain"
	tariffdomain "github.com/smallbiznis/utilitybill/internal/tariff/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Models lists every persisted model, parents first.
func Models() []any {
	return []any{
		&propertydomain.Property{},
		&propertydomain.Tenant{},
		&catalogdomain.UtilityService{},
		&catalogdomain.Provider{},
		&tariffdomain.Tariff{},
		&serviceconfigdomain.ServiceConfiguration{},
		&meterdomain.Meter{},
		&meterdomain.MeterReading{},
		&meterdomain.ReadingCorrection{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceSequence{},
		&invoicedomain.InvoiceItem{},
		&auditdomain.AuditLog{},
	}
}

// Source opens the embedded SQL migrations.
func Source() (source.Driver, error) {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	return src, nil
}

// RunMigrations applies the embedded SQL migrations to a Postgres database.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	src, err := Source()
	if err != nil {
		return err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// migrator.Close would close the shared *sql.DB.

	return nil
}

// AutoMigrate creates the schema from the models. Used for SQLite and MySQL,
// which the SQL migrations do not target.
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	return conn.AutoMigrate(Models()...)
}
