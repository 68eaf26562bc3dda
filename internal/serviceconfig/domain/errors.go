package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Check string

const (
	CheckPricingModel    Check = "pricing_model"
	CheckAreaData        Check = "area_data"
	CheckFormula         Check = "custom_formula"
	CheckOverrides       Check = "configuration_overrides"
	CheckOverlap         Check = "overlapping_configuration"
	CheckMeterAssignment Check = "meter_assignment"
)

var (
	ErrInvalidOrganization        = errors.New("invalid_organization")
	ErrInvalidConfiguration       = errors.New("invalid_service_configuration")
	ErrPricingModelData           = errors.New("invalid_pricing_model_data")
	ErrMissingRateSchedule        = errors.New("missing_rate_schedule")
	ErrMissingFixedFee            = errors.New("missing_fixed_fee")
	ErrInvalidFixedFee            = errors.New("invalid_fixed_fee")
	ErrMissingCustomFormula       = errors.New("missing_custom_formula")
	ErrMissingAreaData            = errors.New("missing_area_data")
	ErrUnsafeFormula              = errors.New("unsafe_formula")
	ErrInvalidOverrides           = errors.New("invalid_configuration_overrides")
	ErrOverlappingConfiguration   = errors.New("overlapping_configuration")
	ErrConflictingMeterAssignment = errors.New("conflicting_meter_assignment")
	ErrPropertyNotFound           = errors.New("property_not_found")
	ErrUtilityServiceNotFound     = errors.New("utility_service_not_found")
	ErrProviderNotFound           = errors.New("provider_not_found")
	ErrMeterNotFound              = errors.New("meter_not_found")
	ErrConfigurationNotFound      = errors.New("service_configuration_not_found")
)

var checkSentinels = map[Check]error{
	CheckPricingModel:    ErrPricingModelData,
	CheckAreaData:        ErrMissingAreaData,
	CheckFormula:         ErrUnsafeFormula,
	CheckOverrides:       ErrInvalidOverrides,
	CheckOverlap:         ErrOverlappingConfiguration,
	CheckMeterAssignment: ErrConflictingMeterAssignment,
}

// ServiceConfigurationError is a failed assignment check. ConflictingID is
// the existing configuration that caused an overlap or meter conflict.
// Reason narrows the check's sentinel when one check has several causes.
type ServiceConfigurationError struct {
	Check            Check
	Reason           error
	PropertyID       snowflake.ID
	UtilityServiceID snowflake.ID
	MeterID          snowflake.ID
	ConflictingID    snowflake.ID
	From             time.Time
	Until            *time.Time
	Detail           string
}

func (e *ServiceConfigurationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "service configuration rejected (%s) for property %s", e.Check, e.PropertyID)
	if e.MeterID != 0 {
		fmt.Fprintf(&b, ", meter %s", e.MeterID)
	}
	if e.ConflictingID != 0 {
		fmt.Fprintf(&b, ", conflicts with %s", e.ConflictingID)
	}
	if e.Check == CheckOverlap {
		fmt.Fprintf(&b, ", range %s", DateRange(e.From, e.Until))
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *ServiceConfigurationError) Is(target error) bool {
	if target == ErrInvalidConfiguration {
		return true
	}
	if e.Reason != nil && e.Reason == target {
		return true
	}
	return checkSentinels[e.Check] == target
}

// DateRange formats an effective window, e.g. "2024-01-01 to 2024-06-30" or
// "2024-01-01 onwards".
func DateRange(from time.Time, until *time.Time) string {
	if until == nil {
		return from.Format(time.DateOnly) + " onwards"
	}
	return from.Format(time.DateOnly) + " to " + until.Format(time.DateOnly)
}
