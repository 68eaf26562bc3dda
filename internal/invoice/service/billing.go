package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/smallbiznis/utilitybill/internal/config"
	consumptiondomain "github.com/smallbiznis/utilitybill/internal/consumption/domain"
	invoicedomain "github.com/smallbiznis/utilitybill/internal/invoice/domain"
	meterdomain "github.com/smallbiznis/utilitybill/internal/meter/domain"
	pricingdomain "github.com/smallbiznis/utilitybill/internal/pricing/domain"
	propertydomain "github.com/smallbiznis/utilitybill/internal/property/domain"
	serviceconfigdomain "github.com/smallbiznis/utilitybill/internal/serviceconfig/domain"
	tariffdomain "github.com/smallbiznis/utilitybill/internal/tariff/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type billRun struct {
	orgID       snowflake.ID
	property    *propertydomain.Property
	periodStart time.Time
	periodEnd   time.Time
	billing     config.BillingConfig
}

// collectLines prices every configuration effective at the period end into
// items not yet tied to an invoice. Meter failures abort the whole run.
func (s *Service) collectLines(ctx context.Context, tx *gorm.DB, run billRun) ([]invoicedomain.InvoiceItem, error) {
	configs, err := s.configRepo.ListActiveForProperty(ctx, tx, run.orgID, run.property.ID, &run.periodEnd)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, nil
	}

	meters, err := s.meterRepo.ListMetersByProperty(ctx, tx, run.orgID, run.property.ID)
	if err != nil {
		return nil, err
	}
	bound := lo.GroupBy(lo.Filter(meters, func(m meterdomain.Meter, _ int) bool {
		return m.ServiceConfigurationID != nil
	}), func(m meterdomain.Meter) snowflake.ID {
		return *m.ServiceConfigurationID
	})

	var lines []invoicedomain.InvoiceItem
	for i := range configs {
		cfg := &configs[i]
		service, err := s.catalogRepo.FindUtilityService(ctx, tx, run.orgID, cfg.UtilityServiceID)
		if err != nil {
			return nil, err
		}
		if service == nil {
			return nil, fmt.Errorf("service configuration %s: %w", cfg.ID, serviceconfigdomain.ErrUtilityServiceNotFound)
		}
		fee, err := cfg.FixedFee()
		if err != nil {
			return nil, fmt.Errorf("service configuration %s: %w", cfg.ID, err)
		}

		pctx := pricingdomain.Context{
			PeriodStart:            run.periodStart,
			PeriodEnd:              run.periodEnd,
			Unit:                   service.Unit,
			ServiceName:            service.Name,
			Variables:              cfg.NumericOverrides(),
			FixedFee:               fee,
			IncludeZeroConsumption: run.billing.IncludeZeroConsumption(),
		}

		var tariff *tariffdomain.Tariff
		if cfg.PricingModel.BillsConsumption() {
			for j := range bound[cfg.ID] {
				meter := &bound[cfg.ID][j]
				if tariff == nil {
					tariff, err = s.resolver.Resolve(ctx, tx, tariffdomain.ResolveRequest{
						OrgID:      run.orgID,
						ProviderID: cfg.ProviderID,
						Code:       cfg.TariffCode,
						AsOf:       run.periodEnd,
					})
					if err != nil {
						return nil, fmt.Errorf("meter %s: %w", meter.ID, err)
					}
				}
				priced, err := s.priceMeter(ctx, tx, meter, cfg, tariff, pctx)
				if err != nil {
					return nil, fmt.Errorf("meter %s: %w", meter.ID, err)
				}
				lines = append(lines, priced...)
			}
		}

		if fee == nil {
			continue
		}
		line, ok := s.engine.FixedCharge(pctx, feeCurrency(cfg, tariff, run.billing.DefaultCurrency))
		if !ok {
			continue
		}
		snapshot := datatypes.JSONMap{
			"service_configuration": configurationSnapshot(cfg),
			"rate_schedule":         map[string]any(cfg.RateSchedule),
			"pricing":               line.Details,
		}
		item := itemFromLine(line, cfg.ID, nil, tariff)
		item.Snapshot = snapshot
		lines = append(lines, item)
	}
	return lines, nil
}

func (s *Service) priceMeter(ctx context.Context, tx *gorm.DB, meter *meterdomain.Meter, cfg *serviceconfigdomain.ServiceConfiguration, tariff *tariffdomain.Tariff, pctx pricingdomain.Context) ([]invoicedomain.InvoiceItem, error) {
	usage, err := s.calculator.Compute(ctx, tx, meter, pctx.PeriodStart, pctx.PeriodEnd)
	if err != nil {
		return nil, err
	}

	pricing := tariff.Configuration
	if cfg.PricingModel == serviceconfigdomain.PricingCustomFormula {
		pricing = customFormulaPricing(cfg, tariff)
	}
	items, err := s.engine.Price(pricing, usage, pctx)
	if err != nil {
		return nil, err
	}

	out := make([]invoicedomain.InvoiceItem, 0, len(items))
	for _, line := range items {
		item := itemFromLine(line, cfg.ID, &meter.ID, tariff)
		item.Snapshot = datatypes.JSONMap{
			"tariff": map[string]any{
				"id":            tariff.ID.String(),
				"code":          tariff.Code,
				"name":          tariff.Name,
				"active_from":   tariff.ActiveFrom.Format(time.DateOnly),
				"configuration": pricing.Snapshot(),
			},
			"readings":              readingsFor(usage, line.Zone),
			"service_configuration": configurationSnapshot(cfg),
			"pricing":               line.Details,
		}
		out = append(out, item)
	}
	return out, nil
}

// customFormulaPricing bills with the configuration's own expression in the
// tariff's currency. Tariff formula variables stay available to it.
func customFormulaPricing(cfg *serviceconfigdomain.ServiceConfiguration, tariff *tariffdomain.Tariff) tariffdomain.Configuration {
	f := &tariffdomain.Formula{
		Currency:   tariff.Configuration.Currency(),
		Expression: cfg.CustomFormula,
	}
	if tariff.Configuration.Formula != nil {
		f.Variables = tariff.Configuration.Formula.Variables
	}
	return tariffdomain.Configuration{Formula: f}
}

func itemFromLine(line pricingdomain.LineItem, configID snowflake.ID, meterID *snowflake.ID, tariff *tariffdomain.Tariff) invoicedomain.InvoiceItem {
	item := invoicedomain.InvoiceItem{
		MeterID:                meterID,
		ServiceConfigurationID: configID,
		Zone:                   line.Zone,
		Description:            line.Description,
		Unit:                   line.Unit,
		Quantity:               line.Quantity,
		UnitPrice:              line.UnitPrice,
		Total:                  line.Total,
		Currency:               line.Currency,
	}
	if tariff != nil {
		id := tariff.ID
		item.TariffID = &id
	}
	return item
}

// feeCurrency picks the currency of a fixed fee: an explicit rate schedule
// currency, then the tariff's, then the configured default.
func feeCurrency(cfg *serviceconfigdomain.ServiceConfiguration, tariff *tariffdomain.Tariff, fallback string) string {
	if raw, ok := cfg.RateSchedule["currency"].(string); ok && strings.TrimSpace(raw) != "" {
		return strings.ToUpper(strings.TrimSpace(raw))
	}
	if tariff != nil {
		return tariff.Configuration.Currency()
	}
	return fallback
}

func readingsFor(usage consumptiondomain.Consumption, zone string) []map[string]any {
	zones := usage.Zones
	if zone != "" {
		if matched := lo.Filter(zones, func(z consumptiondomain.ZoneConsumption, _ int) bool {
			return z.Zone == zone
		}); len(matched) > 0 {
			zones = matched
		}
	}
	return lo.Map(zones, func(z consumptiondomain.ZoneConsumption, _ int) map[string]any {
		return map[string]any{
			"zone":             z.Zone,
			"quantity":         z.Quantity.String(),
			"start_reading_id": z.Start.ReadingID.String(),
			"start_date":       z.Start.Date.Format(time.DateOnly),
			"start_value":      z.Start.Value.String(),
			"end_reading_id":   z.End.ReadingID.String(),
			"end_date":         z.End.Date.Format(time.DateOnly),
			"end_value":        z.End.Value.String(),
		}
	})
}

func configurationSnapshot(cfg *serviceconfigdomain.ServiceConfiguration) map[string]any {
	out := map[string]any{
		"id":             cfg.ID.String(),
		"pricing_model":  string(cfg.PricingModel),
		"effective_from": cfg.EffectiveFrom.Format(time.DateOnly),
	}
	if cfg.TariffCode != "" {
		out["tariff_code"] = cfg.TariffCode
	}
	if cfg.CustomFormula != "" {
		out["custom_formula"] = cfg.CustomFormula
	}
	if len(cfg.ConfigurationOverrides) > 0 {
		out["configuration_overrides"] = map[string]any(cfg.ConfigurationOverrides)
	}
	return out
}
