package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type PricingModel string

const (
	PricingFixedMonthly     PricingModel = "fixed_monthly"
	PricingConsumptionBased PricingModel = "consumption_based"
	PricingTieredRates      PricingModel = "tiered_rates"
	PricingHybrid           PricingModel = "hybrid"
	PricingTimeOfUse        PricingModel = "time_of_use"
	PricingCustomFormula    PricingModel = "custom_formula"
	PricingFlat             PricingModel = "flat"
)

// RequiresRateSchedule reports whether the model prices consumption from a
// rate schedule.
func (m PricingModel) RequiresRateSchedule() bool {
	switch m {
	case PricingConsumptionBased, PricingTieredRates, PricingTimeOfUse, PricingHybrid:
		return true
	}
	return false
}

func (m PricingModel) RequiresFixedFee() bool {
	return m == PricingFixedMonthly || m == PricingHybrid
}

func (m PricingModel) SupportsCustomFormula() bool {
	return m == PricingCustomFormula
}

// BillsConsumption is false only for a plain monthly fee.
func (m PricingModel) BillsConsumption() bool {
	return m != PricingFixedMonthly
}

type DistributionMethod string

const (
	DistributionEqual         DistributionMethod = "equal"
	DistributionArea          DistributionMethod = "area"
	DistributionByConsumption DistributionMethod = "by_consumption"
	DistributionCustom        DistributionMethod = "custom"
)

func (d DistributionMethod) RequiresAreaData() bool {
	return d == DistributionArea
}

type AreaType string

const (
	AreaTotal      AreaType = "total_area"
	AreaHeated     AreaType = "heated_area"
	AreaCommercial AreaType = "commercial_area"
)

// ServiceConfiguration binds a utility service to a property with the
// pricing rules used to bill it.
type ServiceConfiguration struct {
	ID                     snowflake.ID        `json:"id" gorm:"primaryKey"`
	OrgID                  snowflake.ID        `json:"organization_id" gorm:"column:org_id;not null;index:ix_service_configurations_property,priority:1"`
	PropertyID             snowflake.ID        `json:"property_id" gorm:"column:property_id;not null;index:ix_service_configurations_property,priority:2"`
	UtilityServiceID       snowflake.ID        `json:"utility_service_id" gorm:"column:utility_service_id;not null;index:ix_service_configurations_property,priority:3"`
	ProviderID             snowflake.ID        `json:"provider_id" gorm:"column:provider_id;not null"`
	TariffCode             string              `json:"tariff_code,omitempty" gorm:"type:varchar(128)"`
	PricingModel           PricingModel        `json:"pricing_model" gorm:"type:varchar(32);not null"`
	RateSchedule           datatypes.JSONMap   `json:"rate_schedule,omitempty" gorm:"type:jsonb"`
	DistributionMethod     *DistributionMethod `json:"distribution_method,omitempty" gorm:"type:varchar(32)"`
	AreaType               *AreaType           `json:"area_type,omitempty" gorm:"type:varchar(32)"`
	CustomFormula          string              `json:"custom_formula,omitempty" gorm:"type:text"`
	ConfigurationOverrides datatypes.JSONMap   `json:"configuration_overrides,omitempty" gorm:"type:jsonb"`
	EffectiveFrom          time.Time           `json:"effective_from" gorm:"not null"`
	EffectiveUntil         *time.Time          `json:"effective_until,omitempty"`
	IsShared               bool                `json:"is_shared_service" gorm:"column:is_shared_service;not null"`
	IsActive               bool                `json:"is_active" gorm:"not null"`
	CreatedBy              string              `json:"created_by" gorm:"type:varchar(255);not null"`
	CreatedAt              time.Time           `json:"created_at" gorm:"not null"`
	UpdatedAt              time.Time           `json:"updated_at" gorm:"not null"`
}

func (ServiceConfiguration) TableName() string { return "service_configurations" }

// EffectiveOn reports whether the inclusive effective window contains date.
func (c ServiceConfiguration) EffectiveOn(date time.Time) bool {
	if date.Before(c.EffectiveFrom) {
		return false
	}
	return c.EffectiveUntil == nil || !date.After(*c.EffectiveUntil)
}

// FixedFee returns the monthly fee of the rate schedule, read from
// "fixed_fee" or "monthly_rate".
func (c ServiceConfiguration) FixedFee() (*decimal.Decimal, error) {
	for _, key := range []string{"fixed_fee", "monthly_rate"} {
		raw, ok := c.RateSchedule[key]
		if !ok || raw == nil {
			continue
		}
		fee, err := toDecimal(raw)
		if err != nil {
			return nil, fmt.Errorf("rate schedule %s: %w", key, err)
		}
		return &fee, nil
	}
	return nil, nil
}

// NumericOverrides returns the numeric configuration overrides, usable as
// formula variables.
func (c ServiceConfiguration) NumericOverrides() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for key, raw := range c.ConfigurationOverrides {
		if v, err := toDecimal(raw); err == nil {
			if _, isString := raw.(string); !isString {
				out[key] = v
			}
		}
	}
	return out
}

func toDecimal(raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case json.Number:
		return decimal.NewFromString(v.String())
	case string:
		return decimal.NewFromString(v)
	case decimal.Decimal:
		return v, nil
	default:
		return decimal.Zero, fmt.Errorf("not a number: %v", raw)
	}
}
