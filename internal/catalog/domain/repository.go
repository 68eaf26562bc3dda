package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertUtilityService(ctx context.Context, db *gorm.DB, svc *UtilityService) error
	FindUtilityService(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*UtilityService, error)
	InsertProvider(ctx context.Context, db *gorm.DB, provider *Provider) error
	FindProvider(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Provider, error)
	ListProviders(ctx context.Context, db *gorm.DB, orgID snowflake.ID, serviceType ServiceType) ([]*Provider, error)
}
