package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	InsertMeter(ctx context.Context, db *gorm.DB, meter *Meter) error
	FindMeterByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Meter, error)
	// LockMeter loads the meter with a row lock. Reading writes hold it so
	// neighbour checks and the insert see a stable series.
	LockMeter(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Meter, error)
	ListMetersByProperty(ctx context.Context, db *gorm.DB, orgID, propertyID snowflake.ID) ([]Meter, error)
	BindServiceConfiguration(ctx context.Context, db *gorm.DB, orgID, meterID snowflake.ID, configurationID *snowflake.ID, updatedAt time.Time) error

	InsertReading(ctx context.Context, db *gorm.DB, reading *MeterReading) error
	UpdateReadingValue(ctx context.Context, db *gorm.DB, reading *MeterReading) error
	FindReadingByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*MeterReading, error)
	// FindLatestOnOrBefore returns the reading of the meter and zone with the
	// greatest date not after date. A nil zone selects single-register readings.
	FindLatestOnOrBefore(ctx context.Context, db *gorm.DB, orgID, meterID snowflake.ID, zone *string, date time.Time, excludeID snowflake.ID) (*MeterReading, error)
	FindEarliestOnOrAfter(ctx context.Context, db *gorm.DB, orgID, meterID snowflake.ID, zone *string, date time.Time, excludeID snowflake.ID) (*MeterReading, error)
	ListReadings(ctx context.Context, db *gorm.DB, filter ReadingFilter) ([]MeterReading, error)
	ListReadingZones(ctx context.Context, db *gorm.DB, orgID, meterID snowflake.ID) ([]string, error)

	InsertCorrection(ctx context.Context, db *gorm.DB, correction *ReadingCorrection) error
	ListCorrections(ctx context.Context, db *gorm.DB, orgID, readingID snowflake.ID) ([]ReadingCorrection, error)
}

type ReadingFilter struct {
	OrgID   snowflake.ID
	MeterID snowflake.ID
	Zone    *string
	From    *time.Time
	To      *time.Time
}

// ReadingCandidate is a reading value to be checked before it is written.
// ExcludeReadingID is set when an existing reading is being corrected.
type ReadingCandidate struct {
	Meter            *Meter
	Value            decimal.Decimal
	ReadingDate      time.Time
	Zone             *string
	ExcludeReadingID snowflake.ID
}

// ReadingValidator checks a candidate against the meter's neighbouring readings.
type ReadingValidator interface {
	Validate(ctx context.Context, db *gorm.DB, candidate ReadingCandidate) error
}
