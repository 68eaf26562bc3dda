package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/utilitybill/internal/catalog/domain"
)

type Service interface {
	CreateMeter(ctx context.Context, req CreateMeterRequest) (*Meter, error)
	GetMeter(ctx context.Context, orgID, id snowflake.ID) (*Meter, error)
	ValidateReading(ctx context.Context, req ValidateReadingRequest) error
	RecordReading(ctx context.Context, req RecordReadingRequest) (*MeterReading, error)
	CorrectReading(ctx context.Context, req CorrectReadingRequest) (*MeterReading, error)
	ListReadings(ctx context.Context, filter ReadingFilter) ([]MeterReading, error)
	ListCorrections(ctx context.Context, orgID, readingID snowflake.ID) ([]ReadingCorrection, error)
}

type CreateMeterRequest struct {
	OrgID         snowflake.ID              `json:"organization_id" validate:"required"`
	PropertyID    snowflake.ID              `json:"property_id" validate:"required"`
	SerialNumber  string                    `json:"serial_number" validate:"required,max=64"`
	Type          catalogdomain.ServiceType `json:"type" validate:"required,oneof=electricity water_cold water_hot heating gas other"`
	SupportsZones bool                      `json:"supports_zones"`
	Zones         []string                  `json:"zones" validate:"omitempty,dive,required,max=32"`
}

type ValidateReadingRequest struct {
	OrgID       snowflake.ID
	MeterID     snowflake.ID
	Value       decimal.Decimal
	ReadingDate time.Time
	Zone        *string
}

type RecordReadingRequest struct {
	OrgID       snowflake.ID    `json:"organization_id" validate:"required"`
	MeterID     snowflake.ID    `json:"meter_id" validate:"required"`
	Value       decimal.Decimal `json:"value"`
	ReadingDate time.Time       `json:"reading_date" validate:"required"`
	Zone        *string         `json:"zone"`
	EnteredBy   string          `json:"entered_by" validate:"required"`
}

type CorrectReadingRequest struct {
	OrgID       snowflake.ID    `json:"organization_id" validate:"required"`
	ReadingID   snowflake.ID    `json:"reading_id" validate:"required"`
	Value       decimal.Decimal `json:"value"`
	Reason      string          `json:"reason"`
	PerformedBy string          `json:"performed_by" validate:"required"`
}
