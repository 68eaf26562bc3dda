package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type GenerateRequest struct {
	OrgID       snowflake.ID `json:"organization_id" validate:"required"`
	TenantID    snowflake.ID `json:"tenant_id" validate:"required"`
	PeriodStart time.Time    `json:"period_start" validate:"required"`
	PeriodEnd   time.Time    `json:"period_end" validate:"required"`
	PerformedBy string       `json:"performed_by" validate:"required"`
}

type Service interface {
	// GenerateInvoice bills every meter of the tenant's property in one
	// transaction. Any failure leaves nothing behind.
	GenerateInvoice(ctx context.Context, req GenerateRequest) (*Invoice, error)
	FinalizeInvoice(ctx context.Context, orgID, invoiceID snowflake.ID, performedBy string) (*Invoice, error)
	GetInvoice(ctx context.Context, orgID, invoiceID snowflake.ID) (*Invoice, error)
	ListItems(ctx context.Context, orgID, invoiceID snowflake.ID) ([]InvoiceItem, error)
}
