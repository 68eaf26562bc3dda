package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tariff *Tariff) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Tariff, error)
	// FindActive returns every tariff of the provider active on asOf, most
	// recently created first. An empty code matches all lineages.
	FindActive(ctx context.Context, db *gorm.DB, orgID, providerID snowflake.ID, code string, asOf time.Time) ([]Tariff, error)
	// FindLatestVersion returns the lineage version with the greatest
	// ActiveFrom, locking the row where supported.
	FindLatestVersion(ctx context.Context, db *gorm.DB, orgID, providerID snowflake.ID, code string) (*Tariff, error)
	CloseVersion(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, activeUntil, updatedAt time.Time) error
	ListVersions(ctx context.Context, db *gorm.DB, orgID, providerID snowflake.ID, code string) ([]Tariff, error)
}
