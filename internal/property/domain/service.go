package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Service interface {
	CreateProperty(ctx context.Context, req CreatePropertyRequest) (*Property, error)
	GetProperty(ctx context.Context, orgID, id snowflake.ID) (*Property, error)
	CreateTenant(ctx context.Context, req CreateTenantRequest) (*Tenant, error)
	GetTenant(ctx context.Context, orgID, id snowflake.ID) (*Tenant, error)
}

type CreatePropertyRequest struct {
	OrgID        snowflake.ID     `json:"organization_id" validate:"required"`
	Name         string           `json:"name" validate:"required,max=255"`
	Address      string           `json:"address"`
	PropertyType string           `json:"property_type" validate:"required,oneof=residential commercial mixed"`
	AreaSQM      *decimal.Decimal `json:"area_sqm"`
}

type CreateTenantRequest struct {
	OrgID      snowflake.ID `json:"organization_id" validate:"required"`
	PropertyID snowflake.ID `json:"property_id" validate:"required"`
	Name       string       `json:"name" validate:"required,max=255"`
	Email      string       `json:"email" validate:"omitempty,email"`
	LeaseStart time.Time    `json:"lease_start" validate:"required"`
	LeaseEnd   *time.Time   `json:"lease_end"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidArea         = errors.New("invalid_area")
	ErrInvalidLease        = errors.New("invalid_lease")
	ErrPropertyNotFound    = errors.New("property_not_found")
	ErrTenantNotFound      = errors.New("tenant_not_found")
)
