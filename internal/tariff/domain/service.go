package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ResolveRequest struct {
	OrgID      snowflake.ID
	ProviderID snowflake.ID
	Code       string
	AsOf       time.Time
}

// Resolver picks the tariff in force on a date. It runs on the caller's
// connection so it can take part in a transaction.
type Resolver interface {
	Resolve(ctx context.Context, db *gorm.DB, req ResolveRequest) (*Tariff, error)
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Tariff, error)
	CreateVersion(ctx context.Context, req CreateVersionRequest) (*Tariff, error)
	Get(ctx context.Context, orgID, id snowflake.ID) (*Tariff, error)
	ListVersions(ctx context.Context, orgID, providerID snowflake.ID, code string) ([]Tariff, error)
	Resolve(ctx context.Context, req ResolveRequest) (*Tariff, error)
}

type CreateRequest struct {
	OrgID         snowflake.ID  `json:"organization_id" validate:"required"`
	ProviderID    snowflake.ID  `json:"provider_id" validate:"required"`
	Code          string        `json:"code" validate:"omitempty,max=128"`
	Name          string        `json:"name" validate:"required,max=255"`
	Description   string        `json:"description"`
	Configuration Configuration `json:"configuration"`
	ActiveFrom    time.Time     `json:"active_from" validate:"required"`
	ActiveUntil   *time.Time    `json:"active_until"`
	CreatedBy     string        `json:"created_by"`
}

// CreateVersionRequest supersedes the current version of a lineage. Name
// and Description default to the superseded version's.
type CreateVersionRequest struct {
	OrgID         snowflake.ID  `json:"organization_id" validate:"required"`
	ProviderID    snowflake.ID  `json:"provider_id" validate:"required"`
	Code          string        `json:"code" validate:"required,max=128"`
	Name          string        `json:"name" validate:"max=255"`
	Description   string        `json:"description"`
	Configuration Configuration `json:"configuration"`
	ActiveFrom    time.Time     `json:"active_from" validate:"required"`
	ActiveUntil   *time.Time    `json:"active_until"`
	CreatedBy     string        `json:"created_by"`
}
