package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	meterdomain "github.com/smallbiznis/utilitybill/internal/meter/domain"
	"gorm.io/gorm"
)

type Boundary string

const (
	BoundaryStart Boundary = "start"
	BoundaryEnd   Boundary = "end"
)

var (
	ErrMissingMeterReading = errors.New("missing_meter_reading")
	ErrNegativeConsumption = errors.New("negative_consumption")
)

// MissingMeterReadingError names the meter, zone and period boundary for
// which no reading exists on or before Date.
type MissingMeterReadingError struct {
	MeterID  snowflake.ID
	Zone     string
	Date     time.Time
	Boundary Boundary
}

func (e *MissingMeterReadingError) Error() string {
	zone := ""
	if e.Zone != "" {
		zone = " zone " + e.Zone
	}
	return fmt.Sprintf("missing meter reading for meter %s%s on or before %s (period %s)",
		e.MeterID, zone, e.Date.Format(time.DateOnly), e.Boundary)
}

func (e *MissingMeterReadingError) Is(target error) bool {
	return target == ErrMissingMeterReading
}

// NegativeConsumptionError reports a period whose end reading is below its
// start reading.
type NegativeConsumptionError struct {
	MeterID snowflake.ID
	Zone    string
	Start   ReadingRef
	End     ReadingRef
}

func (e *NegativeConsumptionError) Error() string {
	zone := ""
	if e.Zone != "" {
		zone = " zone " + e.Zone
	}
	return fmt.Sprintf("negative consumption for meter %s%s: %s on %s is below %s on %s",
		e.MeterID, zone,
		e.End.Value.String(), e.End.Date.Format(time.DateOnly),
		e.Start.Value.String(), e.Start.Date.Format(time.DateOnly))
}

func (e *NegativeConsumptionError) Is(target error) bool {
	return target == ErrNegativeConsumption
}

// ReadingRef identifies a reading used to derive consumption.
type ReadingRef struct {
	ReadingID snowflake.ID    `json:"reading_id"`
	Value     decimal.Decimal `json:"value"`
	Date      time.Time       `json:"date"`
}

type ZoneConsumption struct {
	Zone     string          `json:"zone,omitempty"`
	Quantity decimal.Decimal `json:"quantity"`
	Start    ReadingRef      `json:"start"`
	End      ReadingRef      `json:"end"`
}

// Consumption is the metered quantity of one meter over a billing period,
// split by zone. Single-register meters have one entry with an empty zone.
type Consumption struct {
	MeterID     snowflake.ID      `json:"meter_id"`
	PeriodStart time.Time         `json:"period_start"`
	PeriodEnd   time.Time         `json:"period_end"`
	Zones       []ZoneConsumption `json:"zones"`
}

func (c Consumption) Total() decimal.Decimal {
	total := decimal.Zero
	for _, z := range c.Zones {
		total = total.Add(z.Quantity)
	}
	return total
}

// Calculator derives consumption from stored readings.
type Calculator interface {
	Compute(ctx context.Context, db *gorm.DB, meter *meterdomain.Meter, periodStart, periodEnd time.Time) (Consumption, error)
}
