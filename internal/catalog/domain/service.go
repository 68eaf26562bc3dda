package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	CreateUtilityService(ctx context.Context, req CreateUtilityServiceRequest) (*UtilityService, error)
	GetUtilityService(ctx context.Context, orgID, id snowflake.ID) (*UtilityService, error)
	CreateProvider(ctx context.Context, req CreateProviderRequest) (*Provider, error)
	GetProvider(ctx context.Context, orgID, id snowflake.ID) (*Provider, error)
	ListProviders(ctx context.Context, orgID snowflake.ID, serviceType ServiceType) ([]Provider, error)
}

type CreateUtilityServiceRequest struct {
	OrgID               snowflake.ID   `json:"organization_id" validate:"required"`
	Code                string         `json:"code" validate:"required,max=64"`
	Name                string         `json:"name" validate:"required,max=255"`
	ServiceType         ServiceType    `json:"service_type" validate:"required,oneof=electricity water_cold water_hot heating gas other"`
	Unit                string         `json:"unit" validate:"required,max=16"`
	ConfigurationSchema OverrideSchema `json:"configuration_schema"`
}

type CreateProviderRequest struct {
	OrgID       snowflake.ID `json:"organization_id" validate:"required"`
	Name        string       `json:"name" validate:"required,max=255"`
	ServiceType ServiceType  `json:"service_type" validate:"required,oneof=electricity water_cold water_hot heating gas other"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidSchema       = errors.New("invalid_configuration_schema")
	ErrDuplicateCode       = errors.New("duplicate_code")
	ErrNotFound            = errors.New("not_found")
)
