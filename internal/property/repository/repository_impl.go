package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	propertydomain "github.com/smallbiznis/utilitybill/internal/property/domain"
	"github.com/smallbiznis/utilitybill/pkg/db"
	"github.com/smallbiznis/utilitybill/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() propertydomain.Repository {
	return &repo{}
}

func (r *repo) InsertProperty(ctx context.Context, db *gorm.DB, property *propertydomain.Property) error {
	return repository.ProvideStore[propertydomain.Property](db).Create(ctx, property)
}

const propertyQuery = `SELECT id, org_id, name, address, property_type, area_sqm, created_at
		 FROM properties
		 WHERE org_id = ? AND id = ?`

func (r *repo) FindPropertyByID(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*propertydomain.Property, error) {
	return findProperty(ctx, tx, propertyQuery, orgID, id)
}

func (r *repo) LockProperty(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*propertydomain.Property, error) {
	return findProperty(ctx, tx, propertyQuery+db.LockSuffix(tx), orgID, id)
}

func findProperty(ctx context.Context, tx *gorm.DB, query string, orgID, id snowflake.ID) (*propertydomain.Property, error) {
	var property propertydomain.Property
	if err := tx.WithContext(ctx).Raw(query, orgID, id).Scan(&property).Error; err != nil {
		return nil, err
	}
	if property.ID == 0 {
		return nil, nil
	}
	return &property, nil
}

func (r *repo) InsertTenant(ctx context.Context, db *gorm.DB, tenant *propertydomain.Tenant) error {
	return repository.ProvideStore[propertydomain.Tenant](db).Create(ctx, tenant)
}

func (r *repo) FindTenantByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*propertydomain.Tenant, error) {
	var tenant propertydomain.Tenant
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, property_id, name, email, lease_start, lease_end, created_at
		 FROM tenants
		 WHERE org_id = ? AND id = ?`,
		orgID, id,
	).Scan(&tenant).Error
	if err != nil {
		return nil, err
	}
	if tenant.ID == 0 {
		return nil, nil
	}
	return &tenant, nil
}
