package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/utilitybill/internal/catalog/domain"
	"gorm.io/datatypes"
)

// Meter is a physical metering device installed at a property.
type Meter struct {
	ID                     snowflake.ID                `json:"id" gorm:"primaryKey"`
	OrgID                  snowflake.ID                `json:"organization_id" gorm:"column:org_id;not null;index"`
	PropertyID             snowflake.ID                `json:"property_id" gorm:"column:property_id;not null;index"`
	SerialNumber           string                      `json:"serial_number" gorm:"type:varchar(64);not null"`
	Type                   catalogdomain.ServiceType   `json:"type" gorm:"column:meter_type;type:varchar(32);not null"`
	SupportsZones          bool                        `json:"supports_zones" gorm:"not null"`
	Zones                  datatypes.JSONSlice[string] `json:"zones,omitempty" gorm:"type:jsonb"`
	ServiceConfigurationID *snowflake.ID               `json:"service_configuration_id,omitempty" gorm:"column:service_configuration_id;index"`
	Active                 bool                        `json:"active" gorm:"not null"`
	CreatedAt              time.Time                   `json:"created_at" gorm:"not null"`
	UpdatedAt              time.Time                   `json:"updated_at" gorm:"not null"`
}

func (Meter) TableName() string { return "meters" }

// DeclaresZone reports whether zone is one of the meter's declared zones.
// A zone-capable meter without declarations accepts any zone.
func (m Meter) DeclaresZone(zone string) bool {
	if len(m.Zones) == 0 {
		return true
	}
	for _, z := range m.Zones {
		if z == zone {
			return true
		}
	}
	return false
}

type MeterReading struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrgID       snowflake.ID    `json:"organization_id" gorm:"column:org_id;not null;index"`
	MeterID     snowflake.ID    `json:"meter_id" gorm:"column:meter_id;not null;index:ix_meter_readings_lookup,priority:1"`
	Zone        *string         `json:"zone,omitempty" gorm:"type:varchar(32);index:ix_meter_readings_lookup,priority:2"`
	ReadingDate time.Time       `json:"reading_date" gorm:"not null;index:ix_meter_readings_lookup,priority:3"`
	Value       decimal.Decimal `json:"value" gorm:"type:numeric(20,6);not null"`
	EnteredBy   string          `json:"entered_by" gorm:"type:varchar(255);not null"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time       `json:"updated_at" gorm:"not null"`
}

func (MeterReading) TableName() string { return "meter_readings" }

// ZoneKey returns the reading's zone, or "" for single-register meters.
func (r MeterReading) ZoneKey() string {
	if r.Zone == nil {
		return ""
	}
	return *r.Zone
}

// ReadingCorrection records a change to a reading's value.
type ReadingCorrection struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrgID       snowflake.ID    `json:"organization_id" gorm:"column:org_id;not null;index"`
	ReadingID   snowflake.ID    `json:"reading_id" gorm:"column:reading_id;not null;index"`
	MeterID     snowflake.ID    `json:"meter_id" gorm:"column:meter_id;not null"`
	OldValue    decimal.Decimal `json:"old_value" gorm:"type:numeric(20,6);not null"`
	NewValue    decimal.Decimal `json:"new_value" gorm:"type:numeric(20,6);not null"`
	Reason      string          `json:"reason" gorm:"type:text;not null"`
	PerformedBy string          `json:"performed_by" gorm:"type:varchar(255);not null"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null"`
}

func (ReadingCorrection) TableName() string { return "meter_reading_corrections" }
