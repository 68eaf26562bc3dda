package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// ReadingRule names the check a rejected reading failed.
type ReadingRule string

const (
	RuleNegative               ReadingRule = "negative"
	RuleZoneRequired           ReadingRule = "zone_required"
	RuleZoneNotSupported       ReadingRule = "zone_not_supported"
	RuleUnknownZone            ReadingRule = "unknown_zone"
	RuleMonotonicityBackward   ReadingRule = "monotonicity_violation_backward"
	RuleMonotonicityForward    ReadingRule = "monotonicity_violation_forward"
	RuleImplausibleConsumption ReadingRule = "implausible_consumption_rate"
)

var (
	ErrInvalidOrganization      = errors.New("invalid_organization")
	ErrInvalidReading           = errors.New("invalid_reading")
	ErrMeterNotFound            = errors.New("meter_not_found")
	ErrReadingNotFound          = errors.New("reading_not_found")
	ErrPropertyNotFound         = errors.New("property_not_found")
	ErrCorrectionReasonRequired = errors.New("correction_reason_required")
	ErrInvalidZones             = errors.New("invalid_zones")
)

// InvalidReadingError describes why a reading was rejected. Neighbour fields
// are set for the monotonicity and rate rules.
type InvalidReadingError struct {
	Rule          ReadingRule
	MeterID       snowflake.ID
	Zone          string
	Value         decimal.Decimal
	ReadingDate   time.Time
	NeighborValue *decimal.Decimal
	NeighborDate  *time.Time
	Limit         *decimal.Decimal
}

func (e *InvalidReadingError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invalid reading for meter %s", e.MeterID)
	if e.Zone != "" {
		fmt.Fprintf(&b, " zone %s", e.Zone)
	}
	fmt.Fprintf(&b, ": %s (value %s on %s", e.Rule, e.Value.String(), e.ReadingDate.Format(time.DateOnly))
	if e.NeighborValue != nil && e.NeighborDate != nil {
		fmt.Fprintf(&b, ", neighbour %s on %s", e.NeighborValue.String(), e.NeighborDate.Format(time.DateOnly))
	}
	if e.Limit != nil {
		fmt.Fprintf(&b, ", limit %s per day", e.Limit.String())
	}
	b.WriteString(")")
	return b.String()
}

func (e *InvalidReadingError) Is(target error) bool {
	return target == ErrInvalidReading
}
