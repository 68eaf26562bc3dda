package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Property struct {
	ID           snowflake.ID     `json:"id" gorm:"primaryKey"`
	OrgID        snowflake.ID     `json:"organization_id" gorm:"column:org_id;not null;index"`
	Name         string           `json:"name" gorm:"type:varchar(255);not null"`
	Address      string           `json:"address" gorm:"type:text"`
	PropertyType string           `json:"property_type" gorm:"type:varchar(32);not null"`
	AreaSQM      *decimal.Decimal `json:"area_sqm,omitempty" gorm:"column:area_sqm;type:numeric(12,2)"`
	CreatedAt    time.Time        `json:"created_at" gorm:"not null"`
}

func (Property) TableName() string { return "properties" }

// HasArea reports whether a positive floor area is on record.
func (p Property) HasArea() bool {
	return p.AreaSQM != nil && p.AreaSQM.IsPositive()
}

// Tenant is the occupant billed for a property.
type Tenant struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID      snowflake.ID `json:"organization_id" gorm:"column:org_id;not null;index"`
	PropertyID snowflake.ID `json:"property_id" gorm:"column:property_id;not null;index"`
	Name       string       `json:"name" gorm:"type:varchar(255);not null"`
	Email      string       `json:"email" gorm:"type:varchar(255)"`
	LeaseStart time.Time    `json:"lease_start" gorm:"not null"`
	LeaseEnd   *time.Time   `json:"lease_end,omitempty"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null"`
}

func (Tenant) TableName() string { return "tenants" }
