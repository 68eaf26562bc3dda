package domain

import "errors"

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidPeriod       = errors.New("invalid_billing_period")
	ErrTenantNotFound      = errors.New("tenant_not_found")
	ErrPropertyNotFound    = errors.New("property_not_found")
	ErrCurrencyMismatch    = errors.New("currency_mismatch")
	ErrInvoiceNotFound     = errors.New("invoice_not_found")
	ErrInvoiceNotDraft     = errors.New("invoice_not_draft")
)
