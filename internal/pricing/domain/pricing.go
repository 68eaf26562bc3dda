package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	consumptiondomain "github.com/smallbiznis/utilitybill/internal/consumption/domain"
	tariffdomain "github.com/smallbiznis/utilitybill/internal/tariff/domain"
)

var (
	ErrUnpricedZone       = errors.New("unpriced_zone")
	ErrUnsupportedPricing = errors.New("unsupported_pricing")
	ErrInvalidPeriod      = errors.New("invalid_period")
	ErrTiersExhausted     = errors.New("consumption_exceeds_tiers")
)

// LineItem is one priced component of a bill. Total is rounded to two
// places; Quantity and UnitPrice keep full precision.
type LineItem struct {
	Description string          `json:"description"`
	Zone        string          `json:"zone,omitempty"`
	Unit        string          `json:"unit"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
	Currency    string          `json:"currency"`
	Details     map[string]any  `json:"details,omitempty"`
}

// Context carries the billing period and per-configuration inputs that are
// not part of the tariff itself.
type Context struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Unit        string
	ServiceName string
	// FormulaOverride replaces the tariff's expression when set.
	FormulaOverride string
	Variables       map[string]decimal.Decimal
	// FixedFee is the monthly fee of the service configuration, if any.
	FixedFee               *decimal.Decimal
	IncludeZeroConsumption bool
}

// Days returns the whole days between PeriodStart and PeriodEnd, at least 1.
func (c Context) Days() int64 {
	days := int64(c.PeriodEnd.Sub(c.PeriodStart).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}

// Engine turns consumption into line items. It does not touch storage.
type Engine interface {
	Price(cfg tariffdomain.Configuration, consumption consumptiondomain.Consumption, pctx Context) ([]LineItem, error)
	// FixedCharge returns the pro-rated monthly fee line, or false when the
	// context carries no fee.
	FixedCharge(pctx Context, currency string) (LineItem, bool)
}
