package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// LockTenant takes the tenant row lock that serializes generation for the
	// tenant. It returns false when the tenant does not exist.
	LockTenant(ctx context.Context, db *gorm.DB, orgID, tenantID snowflake.ID) (bool, error)
	// NextSequence advances the organization's invoice counter under a row
	// lock held until the transaction ends.
	NextSequence(ctx context.Context, db *gorm.DB, orgID snowflake.ID, at time.Time) (int64, error)
	CreateInvoice(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	CreateInvoiceItems(ctx context.Context, db *gorm.DB, items []InvoiceItem) error
	FindInvoiceByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, forUpdate bool) (*Invoice, error)
	ListInvoiceItems(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) ([]InvoiceItem, error)
	MarkFinalized(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, at time.Time) error
}
