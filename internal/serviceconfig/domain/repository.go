package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, cfg *ServiceConfiguration) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*ServiceConfiguration, error)
	// FindOverlapping returns active configurations of the property and
	// service whose effective window intersects [from, until]. A nil until is
	// open-ended.
	FindOverlapping(ctx context.Context, db *gorm.DB, orgID, propertyID, utilityServiceID snowflake.ID, from time.Time, until *time.Time) ([]ServiceConfiguration, error)
	// ListActiveForProperty returns active configurations effective on asOf,
	// or all active configurations when asOf is nil.
	ListActiveForProperty(ctx context.Context, db *gorm.DB, orgID, propertyID snowflake.ID, asOf *time.Time) ([]ServiceConfiguration, error)
	Deactivate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, updatedAt time.Time) error
}

// Validator runs the assignment checks against the current state. It never
// writes.
type Validator interface {
	Validate(ctx context.Context, db *gorm.DB, in ValidationInput) error
}
