package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	serviceconfigdomain "github.com/smallbiznis/utilitybill/internal/serviceconfig/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() serviceconfigdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, cfg *serviceconfigdomain.ServiceConfiguration) error {
	return db.WithContext(ctx).Create(cfg).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*serviceconfigdomain.ServiceConfiguration, error) {
	var cfg serviceconfigdomain.ServiceConfiguration
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Limit(1).
		Find(&cfg).Error
	if err != nil {
		return nil, err
	}
	if cfg.ID == 0 {
		return nil, nil
	}
	return &cfg, nil
}

func (r *repo) FindOverlapping(
	ctx context.Context,
	db *gorm.DB,
	orgID, propertyID, utilityServiceID snowflake.ID,
	from time.Time,
	until *time.Time,
) ([]serviceconfigdomain.ServiceConfiguration, error) {
	stmt := db.WithContext(ctx).
		Where("org_id = ? AND property_id = ? AND utility_service_id = ? AND is_active = ?", orgID, propertyID, utilityServiceID, true).
		Where("(effective_until IS NULL OR effective_until >= ?)", from)
	if until != nil {
		stmt = stmt.Where("effective_from <= ?", *until)
	}

	var items []serviceconfigdomain.ServiceConfiguration
	if err := stmt.Order("effective_from ASC, id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListActiveForProperty(ctx context.Context, db *gorm.DB, orgID, propertyID snowflake.ID, asOf *time.Time) ([]serviceconfigdomain.ServiceConfiguration, error) {
	stmt := db.WithContext(ctx).
		Where("org_id = ? AND property_id = ? AND is_active = ?", orgID, propertyID, true)
	if asOf != nil {
		stmt = stmt.
			Where("effective_from <= ?", *asOf).
			Where("(effective_until IS NULL OR effective_until >= ?)", *asOf)
	}

	var items []serviceconfigdomain.ServiceConfiguration
	if err := stmt.Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, updatedAt time.Time) error {
	return db.WithContext(ctx).
		Model(&serviceconfigdomain.ServiceConfiguration{}).
		Where("org_id = ? AND id = ?", orgID, id).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": updatedAt,
		}).Error
}
