package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/utilitybill/internal/catalog/domain"
	propertydomain "github.com/smallbiznis/utilitybill/internal/property/domain"
)

type Service interface {
	Assign(ctx context.Context, req AssignRequest) (*ServiceConfiguration, error)
	Deactivate(ctx context.Context, orgID, id snowflake.ID, performedBy string) (*ServiceConfiguration, error)
	Get(ctx context.Context, orgID, id snowflake.ID) (*ServiceConfiguration, error)
	ListActiveForProperty(ctx context.Context, orgID, propertyID snowflake.ID, asOf *time.Time) ([]ServiceConfiguration, error)
}

type AssignRequest struct {
	OrgID                  snowflake.ID        `json:"organization_id" validate:"required"`
	PropertyID             snowflake.ID        `json:"property_id" validate:"required"`
	UtilityServiceID       snowflake.ID        `json:"utility_service_id" validate:"required"`
	ProviderID             snowflake.ID        `json:"provider_id" validate:"required"`
	TariffCode             string              `json:"tariff_code" validate:"omitempty,max=128"`
	PricingModel           PricingModel        `json:"pricing_model" validate:"required,oneof=fixed_monthly consumption_based tiered_rates hybrid time_of_use custom_formula flat"`
	RateSchedule           map[string]any      `json:"rate_schedule"`
	DistributionMethod     *DistributionMethod `json:"distribution_method" validate:"omitempty,oneof=equal area by_consumption custom"`
	AreaType               *AreaType           `json:"area_type" validate:"omitempty,oneof=total_area heated_area commercial_area"`
	CustomFormula          string              `json:"custom_formula"`
	ConfigurationOverrides map[string]any      `json:"configuration_overrides"`
	EffectiveFrom          time.Time           `json:"effective_from" validate:"required"`
	EffectiveUntil         *time.Time          `json:"effective_until"`
	IsShared               bool                `json:"is_shared_service"`
	MeterIDs               []snowflake.ID      `json:"meter_ids"`
	CreatedBy              string              `json:"created_by" validate:"required"`
}

// ValidationInput is what the assignment checks look at.
type ValidationInput struct {
	Property       *propertydomain.Property
	UtilityService *catalogdomain.UtilityService
	Request        AssignRequest
}
