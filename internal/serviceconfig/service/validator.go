package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/utilitybill/internal/clock"
	meterdomain "github.com/smallbiznis/utilitybill/internal/meter/domain"
	"github.com/smallbiznis/utilitybill/internal/observability/metrics"
	"github.com/smallbiznis/utilitybill/internal/pricing/formula"
	serviceconfigdomain "github.com/smallbiznis/utilitybill/internal/serviceconfig/domain"
	"gorm.io/gorm"
)

type validator struct {
	repo      serviceconfigdomain.Repository
	meterRepo meterdomain.Repository
	metrics   *metrics.Metrics
}

func NewValidator(repo serviceconfigdomain.Repository, meterRepo meterdomain.Repository, m *metrics.Metrics) serviceconfigdomain.Validator {
	return &validator{repo: repo, meterRepo: meterRepo, metrics: m}
}

func (v *validator) Validate(ctx context.Context, db *gorm.DB, in serviceconfigdomain.ValidationInput) error {
	err := v.validate(ctx, db, in)
	if rejected, ok := err.(*serviceconfigdomain.ServiceConfigurationError); ok {
		v.metrics.RecordConfigurationRejected(ctx, string(rejected.Check))
	}
	return err
}

func (v *validator) validate(ctx context.Context, db *gorm.DB, in serviceconfigdomain.ValidationInput) error {
	req := in.Request
	from := clock.DateOf(req.EffectiveFrom)

	reject := func(check serviceconfigdomain.Check, detail string) *serviceconfigdomain.ServiceConfigurationError {
		return &serviceconfigdomain.ServiceConfigurationError{
			Check:            check,
			PropertyID:       in.Property.ID,
			UtilityServiceID: in.UtilityService.ID,
			From:             from,
			Until:            req.EffectiveUntil,
			Detail:           detail,
		}
	}

	// pricing model data
	pricingData := func(reason error, detail string) *serviceconfigdomain.ServiceConfigurationError {
		e := reject(serviceconfigdomain.CheckPricingModel, detail)
		e.Reason = reason
		return e
	}
	if req.PricingModel.RequiresRateSchedule() && len(req.RateSchedule) == 0 {
		return pricingData(serviceconfigdomain.ErrMissingRateSchedule, "rate_schedule is required for "+string(req.PricingModel))
	}
	if req.PricingModel.RequiresFixedFee() {
		schedule := serviceconfigdomain.ServiceConfiguration{RateSchedule: req.RateSchedule}
		fee, err := schedule.FixedFee()
		if err != nil {
			return pricingData(serviceconfigdomain.ErrInvalidFixedFee, err.Error())
		}
		if fee == nil {
			return pricingData(serviceconfigdomain.ErrMissingFixedFee, "rate_schedule.fixed_fee is required for "+string(req.PricingModel))
		}
		if fee.IsNegative() {
			return pricingData(serviceconfigdomain.ErrInvalidFixedFee, "rate_schedule.fixed_fee must not be negative")
		}
	}
	if req.PricingModel.SupportsCustomFormula() && strings.TrimSpace(req.CustomFormula) == "" {
		return pricingData(serviceconfigdomain.ErrMissingCustomFormula, "custom_formula is required for "+string(req.PricingModel))
	}

	// area data
	if req.DistributionMethod != nil && req.DistributionMethod.RequiresAreaData() && !in.Property.HasArea() {
		return reject(serviceconfigdomain.CheckAreaData, "property has no area")
	}

	// formula safety
	if req.PricingModel.SupportsCustomFormula() {
		if err := formula.CheckSafety(req.CustomFormula); err != nil {
			return reject(serviceconfigdomain.CheckFormula, err.Error())
		}
	}

	// overrides
	if problems := in.UtilityService.ValidateOverrides(req.ConfigurationOverrides); len(problems) > 0 {
		return reject(serviceconfigdomain.CheckOverrides, strings.Join(problems, "; "))
	}

	// overlapping windows
	overlapping, err := v.repo.FindOverlapping(ctx, db, req.OrgID, in.Property.ID, in.UtilityService.ID, from, req.EffectiveUntil)
	if err != nil {
		return err
	}
	if len(overlapping) > 0 {
		e := reject(serviceconfigdomain.CheckOverlap, "an active configuration already covers "+serviceconfigdomain.DateRange(from, req.EffectiveUntil))
		e.ConflictingID = overlapping[0].ID
		return e
	}

	// meter bindings
	meters, err := v.meterRepo.ListMetersByProperty(ctx, db, req.OrgID, in.Property.ID)
	if err != nil {
		return err
	}
	requested := make(map[string]struct{}, len(req.MeterIDs))
	for _, id := range req.MeterIDs {
		requested[id.String()] = struct{}{}
	}
	for _, meter := range meters {
		if meter.ServiceConfigurationID == nil {
			continue
		}
		bound, err := v.repo.FindByID(ctx, db, req.OrgID, *meter.ServiceConfigurationID)
		if err != nil {
			return err
		}
		if bound == nil || !bound.IsActive {
			continue
		}
		_, wanted := requested[meter.ID.String()]
		if bound.UtilityServiceID == in.UtilityService.ID || wanted {
			e := reject(serviceconfigdomain.CheckMeterAssignment, "meter is bound to another active configuration")
			e.MeterID = meter.ID
			e.ConflictingID = bound.ID
			return e
		}
	}
	return nil
}
