package service

import (
	"context"
	"time"

	"github.com/smallbiznis/utilitybill/internal/clock"
	consumptiondomain "github.com/smallbiznis/utilitybill/internal/consumption/domain"
	meterdomain "github.com/smallbiznis/utilitybill/internal/meter/domain"
	"gorm.io/gorm"
)

type calculator struct {
	readings meterdomain.Repository
}

func New(readings meterdomain.Repository) consumptiondomain.Calculator {
	return &calculator{readings: readings}
}

// Compute measures each zone as the difference between the latest reading on
// or before the period end and the latest reading on or before the period
// start.
func (c *calculator) Compute(ctx context.Context, db *gorm.DB, meter *meterdomain.Meter, periodStart, periodEnd time.Time) (consumptiondomain.Consumption, error) {
	start := clock.DateOf(periodStart)
	end := clock.DateOf(periodEnd)
	result := consumptiondomain.Consumption{
		MeterID:     meter.ID,
		PeriodStart: start,
		PeriodEnd:   end,
	}

	zones, err := c.zones(ctx, db, meter, start)
	if err != nil {
		return result, err
	}

	for _, zone := range zones {
		baseline, err := c.readingAt(ctx, db, meter, zone, start, consumptiondomain.BoundaryStart)
		if err != nil {
			return result, err
		}
		endpoint, err := c.readingAt(ctx, db, meter, zone, end, consumptiondomain.BoundaryEnd)
		if err != nil {
			return result, err
		}

		quantity := endpoint.Value.Sub(baseline.Value)
		if quantity.IsNegative() {
			return result, &consumptiondomain.NegativeConsumptionError{
				MeterID: meter.ID,
				Zone:    endpoint.ZoneKey(),
				Start:   ref(baseline),
				End:     ref(endpoint),
			}
		}

		result.Zones = append(result.Zones, consumptiondomain.ZoneConsumption{
			Zone:     endpoint.ZoneKey(),
			Quantity: quantity,
			Start:    ref(baseline),
			End:      ref(endpoint),
		})
	}
	return result, nil
}

// zones lists the registers to measure. A nil entry is the single register
// of a meter without zones.
func (c *calculator) zones(ctx context.Context, db *gorm.DB, meter *meterdomain.Meter, start time.Time) ([]*string, error) {
	if !meter.SupportsZones {
		return []*string{nil}, nil
	}

	names := []string(meter.Zones)
	if len(names) == 0 {
		var err error
		names, err = c.readings.ListReadingZones(ctx, db, meter.OrgID, meter.ID)
		if err != nil {
			return nil, err
		}
	}
	if len(names) == 0 {
		return nil, &consumptiondomain.MissingMeterReadingError{
			MeterID:  meter.ID,
			Date:     start,
			Boundary: consumptiondomain.BoundaryStart,
		}
	}

	zones := make([]*string, 0, len(names))
	for i := range names {
		zones = append(zones, &names[i])
	}
	return zones, nil
}

func (c *calculator) readingAt(
	ctx context.Context,
	db *gorm.DB,
	meter *meterdomain.Meter,
	zone *string,
	date time.Time,
	boundary consumptiondomain.Boundary,
) (*meterdomain.MeterReading, error) {
	reading, err := c.readings.FindLatestOnOrBefore(ctx, db, meter.OrgID, meter.ID, zone, date, 0)
	if err != nil {
		return nil, err
	}
	if reading == nil {
		missing := &consumptiondomain.MissingMeterReadingError{
			MeterID:  meter.ID,
			Date:     date,
			Boundary: boundary,
		}
		if zone != nil {
			missing.Zone = *zone
		}
		return nil, missing
	}
	return reading, nil
}

func ref(r *meterdomain.MeterReading) consumptiondomain.ReadingRef {
	return consumptiondomain.ReadingRef{
		ReadingID: r.ID,
		Value:     r.Value,
		Date:      clock.DateOf(r.ReadingDate),
	}
}
