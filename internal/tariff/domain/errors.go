package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidOrganization   = errors.New("invalid_organization")
	ErrInvalidConfiguration  = errors.New("invalid_tariff_configuration")
	ErrInvalidWindow         = errors.New("invalid_active_window")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrTariffNotFound        = errors.New("tariff_not_found")
	ErrLineageExists         = errors.New("tariff_lineage_exists")
	ErrVersionOverlap        = errors.New("tariff_version_overlap")
	ErrUpcomingVersionExists = errors.New("tariff_upcoming_version_exists")
	ErrNoTariffFound         = errors.New("no_tariff_found")
)

// NoTariffFoundError is returned when no tariff window covers the date.
type NoTariffFoundError struct {
	ProviderID snowflake.ID
	Code       string
	AsOf       time.Time
}

func (e *NoTariffFoundError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("no tariff %q of provider %s active on %s", e.Code, e.ProviderID, e.AsOf.Format(time.DateOnly))
	}
	return fmt.Sprintf("no tariff of provider %s active on %s", e.ProviderID, e.AsOf.Format(time.DateOnly))
}

func (e *NoTariffFoundError) Is(target error) bool {
	return target == ErrNoTariffFound
}
