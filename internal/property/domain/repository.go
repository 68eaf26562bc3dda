package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertProperty(ctx context.Context, db *gorm.DB, property *Property) error
	FindPropertyByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Property, error)
	// LockProperty loads the property with a row lock, serializing service
	// assignments for it.
	LockProperty(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Property, error)
	InsertTenant(ctx context.Context, db *gorm.DB, tenant *Tenant) error
	FindTenantByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Tenant, error)
}
