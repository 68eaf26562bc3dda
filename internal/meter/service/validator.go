package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/utilitybill/internal/clock"
	"github.com/smallbiznis/utilitybill/internal/config"
	meterdomain "github.com/smallbiznis/utilitybill/internal/meter/domain"
	"github.com/smallbiznis/utilitybill/internal/observability/metrics"
	"gorm.io/gorm"
)

type readingValidator struct {
	repo    meterdomain.Repository
	billing *config.BillingConfigHolder
	metrics *metrics.Metrics
}

func NewReadingValidator(repo meterdomain.Repository, billing *config.BillingConfigHolder, m *metrics.Metrics) meterdomain.ReadingValidator {
	return &readingValidator{repo: repo, billing: billing, metrics: m}
}

// Validate checks the candidate against the meter's zone setup and its
// neighbouring readings. It never writes.
func (v *readingValidator) Validate(ctx context.Context, db *gorm.DB, c meterdomain.ReadingCandidate) error {
	err := v.validate(ctx, db, c)
	if rejected, ok := err.(*meterdomain.InvalidReadingError); ok {
		v.metrics.RecordReadingRejected(ctx, string(rejected.Rule))
	}
	return err
}

func (v *readingValidator) validate(ctx context.Context, db *gorm.DB, c meterdomain.ReadingCandidate) error {
	meter := c.Meter
	date := clock.DateOf(c.ReadingDate)
	zone := normalizeZone(c.Zone)

	reject := func(rule meterdomain.ReadingRule) *meterdomain.InvalidReadingError {
		e := &meterdomain.InvalidReadingError{
			Rule:        rule,
			MeterID:     meter.ID,
			Value:       c.Value,
			ReadingDate: date,
		}
		if zone != nil {
			e.Zone = *zone
		}
		return e
	}

	if c.Value.IsNegative() {
		return reject(meterdomain.RuleNegative)
	}

	switch {
	case meter.SupportsZones && zone == nil:
		return reject(meterdomain.RuleZoneRequired)
	case !meter.SupportsZones && zone != nil:
		return reject(meterdomain.RuleZoneNotSupported)
	case zone != nil && !meter.DeclaresZone(*zone):
		return reject(meterdomain.RuleUnknownZone)
	}

	previous, err := v.repo.FindLatestOnOrBefore(ctx, db, meter.OrgID, meter.ID, zone, date, c.ExcludeReadingID)
	if err != nil {
		return err
	}
	if previous != nil && c.Value.LessThan(previous.Value) {
		e := reject(meterdomain.RuleMonotonicityBackward)
		withNeighbor(e, previous)
		return e
	}

	next, err := v.repo.FindEarliestOnOrAfter(ctx, db, meter.OrgID, meter.ID, zone, date, c.ExcludeReadingID)
	if err != nil {
		return err
	}
	if next != nil && c.Value.GreaterThan(next.Value) {
		e := reject(meterdomain.RuleMonotonicityForward)
		withNeighbor(e, next)
		return e
	}

	if previous != nil {
		days := int64(date.Sub(clock.DateOf(previous.ReadingDate)).Hours() / 24)
		if days > 0 {
			limit := v.maxDailyRate()
			rate := c.Value.Sub(previous.Value).Div(decimal.NewFromInt(days))
			if rate.GreaterThan(limit) {
				e := reject(meterdomain.RuleImplausibleConsumption)
				withNeighbor(e, previous)
				e.Limit = &limit
				return e
			}
		}
	}

	return nil
}

func (v *readingValidator) maxDailyRate() decimal.Decimal {
	if v.billing == nil {
		return config.DefaultBillingConfig().MaxDailyConsumptionRate
	}
	return v.billing.Get().MaxDailyConsumptionRate
}

func withNeighbor(e *meterdomain.InvalidReadingError, neighbor *meterdomain.MeterReading) {
	value := neighbor.Value
	date := clock.DateOf(neighbor.ReadingDate)
	e.NeighborValue = &value
	e.NeighborDate = &date
}

// normalizeZone maps blank zones to nil.
func normalizeZone(zone *string) *string {
	if zone == nil {
		return nil
	}
	z := strings.TrimSpace(*zone)
	if z == "" {
		return nil
	}
	return &z
}
