package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/utilitybill/internal/invoice/domain"
	"github.com/smallbiznis/utilitybill/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() invoicedomain.Repository {
	return &repo{}
}

const invoiceColumns = `id, org_id, tenant_id, property_id, sequence, invoice_number,
		billing_period_start, billing_period_end, due_date, status, total_amount,
		currency, finalized_at, metadata, created_at, updated_at`

func (r *repo) LockTenant(ctx context.Context, tx *gorm.DB, orgID, tenantID snowflake.ID) (bool, error) {
	var id snowflake.ID
	err := tx.WithContext(ctx).Raw(
		`SELECT id
		 FROM tenants
		 WHERE org_id = ? AND id = ?`+db.LockSuffix(tx),
		orgID, tenantID,
	).Scan(&id).Error
	if err != nil {
		return false, err
	}
	return id != 0, nil
}

func (r *repo) NextSequence(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, at time.Time) (int64, error) {
	// counters created after invoices already exist continue from them
	var issued int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(sequence), 0)
		 FROM invoices
		 WHERE org_id = ?`,
		orgID,
	).Scan(&issued).Error
	if err != nil {
		return 0, err
	}
	seed := invoicedomain.InvoiceSequence{OrgID: orgID, LastValue: issued, UpdatedAt: at}
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return 0, err
	}

	var last int64
	err = tx.WithContext(ctx).Raw(
		`SELECT last_value
		 FROM invoice_sequences
		 WHERE org_id = ?`+db.LockSuffix(tx),
		orgID,
	).Scan(&last).Error
	if err != nil {
		return 0, err
	}

	next := last + 1
	err = tx.WithContext(ctx).Exec(
		`UPDATE invoice_sequences SET last_value = ?, updated_at = ? WHERE org_id = ?`,
		next, at, orgID,
	).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r *repo) CreateInvoice(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO invoices (`+invoiceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.OrgID,
		invoice.TenantID,
		invoice.PropertyID,
		invoice.Sequence,
		invoice.InvoiceNumber,
		invoice.BillingPeriodStart,
		invoice.BillingPeriodEnd,
		invoice.DueDate,
		invoice.Status,
		invoice.TotalAmount,
		invoice.Currency,
		invoice.FinalizedAt,
		invoice.Metadata,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	).Error
}

func (r *repo) CreateInvoiceItems(ctx context.Context, tx *gorm.DB, items []invoicedomain.InvoiceItem) error {
	if len(items) == 0 {
		return nil
	}
	return tx.WithContext(ctx).CreateInBatches(&items, 100).Error
}

func (r *repo) FindInvoiceByID(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID, forUpdate bool) (*invoicedomain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		 FROM invoices
		 WHERE org_id = ? AND id = ?`
	if forUpdate {
		query += db.LockSuffix(tx)
	}

	var invoice invoicedomain.Invoice
	if err := tx.WithContext(ctx).Raw(query, orgID, id).Scan(&invoice).Error; err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) ListInvoiceItems(ctx context.Context, tx *gorm.DB, orgID, invoiceID snowflake.ID) ([]invoicedomain.InvoiceItem, error) {
	var items []invoicedomain.InvoiceItem
	err := tx.WithContext(ctx).
		Where("org_id = ? AND invoice_id = ?", orgID, invoiceID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkFinalized(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID, at time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, finalized_at = ?, updated_at = ?
		 WHERE org_id = ? AND id = ? AND status = ?`,
		invoicedomain.InvoiceStatusFinalized,
		at,
		at,
		orgID,
		id,
		invoicedomain.InvoiceStatusDraft,
	).Error
}
