// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusFinalized InvoiceStatus = "FINALIZED"
)

// Invoice is one tenant's bill for a billing period. TotalAmount is derived
// from the items and never edited on its own.
type Invoice struct {
	ID                 snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID              snowflake.ID      `json:"organization_id" gorm:"column:org_id;not null;index;uniqueIndex:ux_invoices_org_sequence"`
	TenantID           snowflake.ID      `json:"tenant_id" gorm:"column:tenant_id;not null;index"`
	PropertyID         snowflake.ID      `json:"property_id" gorm:"column:property_id;not null;index"`
	Sequence           int64             `json:"sequence" gorm:"not null;uniqueIndex:ux_invoices_org_sequence"`
	InvoiceNumber      string            `json:"invoice_number" gorm:"type:varchar(32);not null"`
	BillingPeriodStart time.Time         `json:"billing_period_start" gorm:"not null"`
	BillingPeriodEnd   time.Time         `json:"billing_period_end" gorm:"not null"`
	DueDate            time.Time         `json:"due_date" gorm:"not null"`
	Status             InvoiceStatus     `json:"status" gorm:"type:varchar(16);not null;default:'DRAFT'"`
	TotalAmount        decimal.Decimal   `json:"total_amount" gorm:"type:numeric(14,2);not null"`
	Currency           string            `json:"currency" gorm:"type:varchar(3);not null"`
	FinalizedAt        *time.Time        `json:"finalized_at,omitempty"`
	Metadata           datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	CreatedAt          time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time         `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceSequence holds the last invoice sequence issued for an organization.
// Numbering locks this row, so concurrent runs for different tenants of one
// organization take turns.
type InvoiceSequence struct {
	OrgID     snowflake.ID `json:"organization_id" gorm:"column:org_id;primaryKey;autoIncrement:false"`
	LastValue int64        `json:"last_value" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (InvoiceSequence) TableName() string { return "invoice_sequences" }

// InvoiceItem is a priced line copied from the tariff at generation time.
// Items have no update path.
type InvoiceItem struct {
	ID                     snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID                  snowflake.ID      `json:"organization_id" gorm:"column:org_id;not null;index"`
	InvoiceID              snowflake.ID      `json:"invoice_id" gorm:"column:invoice_id;not null;index"`
	MeterID                *snowflake.ID     `json:"meter_id,omitempty" gorm:"column:meter_id;index"`
	ServiceConfigurationID snowflake.ID      `json:"service_configuration_id" gorm:"column:service_configuration_id;not null"`
	TariffID               *snowflake.ID     `json:"tariff_id,omitempty" gorm:"column:tariff_id"`
	Zone                   string            `json:"zone,omitempty" gorm:"type:varchar(32)"`
	Description            string            `json:"description" gorm:"type:text;not null"`
	Unit                   string            `json:"unit" gorm:"type:varchar(16)"`
	Quantity               decimal.Decimal   `json:"quantity" gorm:"type:numeric(20,6);not null"`
	UnitPrice              decimal.Decimal   `json:"unit_price" gorm:"type:numeric(20,6);not null"`
	Total                  decimal.Decimal   `json:"total" gorm:"type:numeric(14,2);not null"`
	Currency               string            `json:"currency" gorm:"type:varchar(3);not null"`
	Snapshot               datatypes.JSONMap `json:"snapshot" gorm:"type:jsonb"`
	CreatedAt              time.Time         `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }
