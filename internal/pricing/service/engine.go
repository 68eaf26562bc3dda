package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	consumptiondomain "github.com/smallbiznis/utilitybill/internal/consumption/domain"
	"github.com/smallbiznis/utilitybill/internal/pricing/domain"
	"github.com/smallbiznis/utilitybill/internal/pricing/formula"
	tariffdomain "github.com/smallbiznis/utilitybill/internal/tariff/domain"
)

const moneyPlaces = 2

type engine struct{}

func New() domain.Engine {
	return &engine{}
}

func (e *engine) Price(cfg tariffdomain.Configuration, c consumptiondomain.Consumption, pctx domain.Context) ([]domain.LineItem, error) {
	if pctx.PeriodEnd.Before(pctx.PeriodStart) {
		return nil, domain.ErrInvalidPeriod
	}

	var (
		items []domain.LineItem
		err   error
	)
	switch cfg.Kind() {
	case tariffdomain.KindFlat:
		items = e.flat(cfg.Flat, c, pctx)
	case tariffdomain.KindTimeOfUse:
		items, err = e.timeOfUse(cfg.TimeOfUse, c, pctx)
	case tariffdomain.KindTiered:
		items, err = e.tiered(cfg.Tiered, c, pctx)
	case tariffdomain.KindFormula:
		items, err = e.formula(cfg.Formula, c, pctx)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedPricing, cfg.Kind())
	}
	if err != nil {
		return nil, err
	}

	if pctx.IncludeZeroConsumption {
		return items, nil
	}
	return lo.Filter(items, func(item domain.LineItem, _ int) bool {
		return !item.Quantity.IsZero()
	}), nil
}

func (e *engine) flat(rate *tariffdomain.FlatRate, c consumptiondomain.Consumption, pctx domain.Context) []domain.LineItem {
	q := c.Total()
	return []domain.LineItem{{
		Description: describe(pctx, ""),
		Unit:        pctx.Unit,
		Quantity:    q,
		UnitPrice:   rate.Rate,
		Total:       q.Mul(rate.Rate).Round(moneyPlaces),
		Currency:    rate.Currency,
		Details: map[string]any{
			"pricing": string(tariffdomain.KindFlat),
			"rate":    rate.Rate.String(),
		},
	}}
}

func (e *engine) timeOfUse(tou *tariffdomain.TimeOfUse, c consumptiondomain.Consumption, pctx domain.Context) ([]domain.LineItem, error) {
	items := make([]domain.LineItem, 0, len(c.Zones))
	for _, zc := range c.Zones {
		if zc.Quantity.IsZero() && !pctx.IncludeZeroConsumption {
			continue
		}
		zone, ok := tou.ZoneRate(zc.Zone)
		if !ok {
			return nil, fmt.Errorf("%w: meter %s zone %q", domain.ErrUnpricedZone, c.MeterID, zc.Zone)
		}
		details := map[string]any{
			"pricing":     string(tariffdomain.KindTimeOfUse),
			"tariff_zone": zone.ID,
			"zone_start":  zone.Start,
			"zone_end":    zone.End,
			"rate":        zone.Rate.String(),
		}
		if tou.WeekendLogic != "" {
			details["weekend_logic"] = tou.WeekendLogic
		}
		items = append(items, domain.LineItem{
			Description: describe(pctx, zc.Zone),
			Zone:        zc.Zone,
			Unit:        pctx.Unit,
			Quantity:    zc.Quantity,
			UnitPrice:   zone.Rate,
			Total:       zc.Quantity.Mul(zone.Rate).Round(moneyPlaces),
			Currency:    tou.Currency,
			Details:     details,
		})
	}
	return items, nil
}

// tiered prices graduated bands: each band is charged at its own rate for
// the part of the consumption that falls inside it.
func (e *engine) tiered(t *tariffdomain.Tiered, c consumptiondomain.Consumption, pctx domain.Context) ([]domain.LineItem, error) {
	remaining := c.Total()
	lower := decimal.Zero
	var items []domain.LineItem

	for i, tier := range t.Tiers {
		band := remaining
		if tier.UpTo != nil {
			band = decimal.Min(remaining, tier.UpTo.Sub(lower))
		}
		if band.IsPositive() || (pctx.IncludeZeroConsumption && i == 0) {
			details := map[string]any{
				"pricing": string(tariffdomain.KindTiered),
				"tier":    i + 1,
				"from":    lower.String(),
				"rate":    tier.Rate.String(),
			}
			if tier.UpTo != nil {
				details["up_to"] = tier.UpTo.String()
			}
			items = append(items, domain.LineItem{
				Description: fmt.Sprintf("%s (tier %d)", describe(pctx, ""), i+1),
				Unit:        pctx.Unit,
				Quantity:    band,
				UnitPrice:   tier.Rate,
				Total:       band.Mul(tier.Rate).Round(moneyPlaces),
				Currency:    t.Currency,
				Details:     details,
			})
		}
		remaining = remaining.Sub(band)
		if tier.UpTo != nil {
			lower = *tier.UpTo
		}
		if !remaining.IsPositive() {
			break
		}
	}
	if remaining.IsPositive() {
		return nil, fmt.Errorf("%w: meter %s has %s above the last tier", domain.ErrTiersExhausted, c.MeterID, remaining.String())
	}
	return items, nil
}

func (e *engine) formula(f *tariffdomain.Formula, c consumptiondomain.Consumption, pctx domain.Context) ([]domain.LineItem, error) {
	expression := f.Expression
	if strings.TrimSpace(pctx.FormulaOverride) != "" {
		expression = pctx.FormulaOverride
	}

	q := c.Total()
	vars := map[string]decimal.Decimal{
		"consumption": q,
		"days":        decimal.NewFromInt(pctx.Days()),
		"month":       decimal.NewFromInt(int64(pctx.PeriodStart.Month())),
		"year":        decimal.NewFromInt(int64(pctx.PeriodStart.Year())),
	}
	for k, v := range f.Variables {
		vars[k] = v
	}
	for k, v := range pctx.Variables {
		vars[k] = v
	}

	result, err := formula.Evaluate(expression, vars)
	if err != nil {
		return nil, err
	}
	total := result.Round(moneyPlaces)

	quantity, unitPrice := q, decimal.Zero
	if q.IsZero() {
		if !pctx.IncludeZeroConsumption {
			return nil, nil
		}
		quantity, unitPrice = decimal.NewFromInt(1), total
	} else {
		unitPrice = result.Div(q)
	}

	return []domain.LineItem{{
		Description: describe(pctx, ""),
		Unit:        pctx.Unit,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Total:       total,
		Currency:    f.Currency,
		Details: map[string]any{
			"pricing":    string(tariffdomain.KindFormula),
			"expression": expression,
			"result":     result.String(),
		},
	}}, nil
}

// FixedCharge pro-rates the monthly fee for partial months. A period from
// the first to the last day of a month is a full month.
func (e *engine) FixedCharge(pctx domain.Context, currency string) (domain.LineItem, bool) {
	if pctx.FixedFee == nil {
		return domain.LineItem{}, false
	}
	fee := *pctx.FixedFee
	factor := prorationFactor(pctx)
	amount := fee.Mul(factor)

	name := "Monthly fee"
	if pctx.ServiceName != "" {
		name = pctx.ServiceName + " monthly fee"
	}
	return domain.LineItem{
		Description: name,
		Unit:        "month",
		Quantity:    factor,
		UnitPrice:   fee,
		Total:       amount.Round(moneyPlaces),
		Currency:    currency,
		Details: map[string]any{
			"pricing":   "fixed_fee",
			"fixed_fee": fee.String(),
			"proration": factor.String(),
		},
	}, true
}

func prorationFactor(pctx domain.Context) decimal.Decimal {
	start, end := pctx.PeriodStart, pctx.PeriodEnd
	if start.Day() == 1 && end.Day() == daysInMonth(end) && start.Year() == end.Year() && start.Month() == end.Month() {
		return decimal.NewFromInt(1)
	}
	factor := decimal.NewFromInt(pctx.Days()).Div(decimal.NewFromInt(int64(daysInMonth(start))))
	return decimal.Min(factor, decimal.NewFromInt(1))
}

func daysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func describe(pctx domain.Context, zone string) string {
	name := pctx.ServiceName
	if name == "" {
		name = "Consumption"
	}
	if zone != "" {
		return name + " (" + zone + ")"
	}
	return name
}
