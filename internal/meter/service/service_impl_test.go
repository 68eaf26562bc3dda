package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/utilitybill/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/utilitybill/internal/catalog/domain"
	"github.com/smallbiznis/utilitybill/internal/clock"
	"github.com/smallbiznis/utilitybill/internal/config"
	meterdomain "github.com/smallbiznis/utilitybill/internal/meter/domain"
	"github.com/smallbiznis/utilitybill/internal/meter/repository"
	"github.com/smallbiznis/utilitybill/internal/observability/metrics"
	propertydomain "github.com/smallbiznis/utilitybill/internal/property/domain"
	propertyrepo "github.com/smallbiznis/utilitybill/internal/property/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []auditdomain.Event
}

func (r *recordingEmitter) Emit(_ context.Context, evt auditdomain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

type fixture struct {
	db       *gorm.DB
	svc      meterdomain.Service
	node     *snowflake.Node
	orgID    snowflake.ID
	property *propertydomain.Property
	events   *recordingEmitter
}

func setupMeterService(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&propertydomain.Property{},
		&meterdomain.Meter{},
		&meterdomain.MeterReading{},
		&meterdomain.ReadingCorrection{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	orgID := node.Generate()
	property := &propertydomain.Property{
		ID:           node.Generate(),
		OrgID:        orgID,
		Name:         "Harbour View 12",
		PropertyType: "residential",
		CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.Create(property).Error)

	repo := repository.Provide()
	events := &recordingEmitter{}
	svc := New(Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clock.NewFakeClock(time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)),
		Repo:         repo,
		PropertyRepo: propertyrepo.Provide(),
		Validator:    NewReadingValidator(repo, config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()), metrics.NewNoop()),
		Metrics:      metrics.NewNoop(),
		Events:       events,
	})

	return &fixture{db: db, svc: svc, node: node, orgID: orgID, property: property, events: events}
}

func (f *fixture) createMeter(t *testing.T, zones ...string) *meterdomain.Meter {
	t.Helper()
	meter, err := f.svc.CreateMeter(context.Background(), meterdomain.CreateMeterRequest{
		OrgID:         f.orgID,
		PropertyID:    f.property.ID,
		SerialNumber:  "EM-" + f.node.Generate().String(),
		Type:          catalogdomain.ServiceTypeElectricity,
		SupportsZones: len(zones) > 0,
		Zones:         zones,
	})
	require.NoError(t, err)
	return meter
}

func (f *fixture) record(meterID snowflake.ID, value string, date time.Time, zone *string) (*meterdomain.MeterReading, error) {
	return f.svc.RecordReading(context.Background(), meterdomain.RecordReadingRequest{
		OrgID:       f.orgID,
		MeterID:     meterID,
		Value:       decimal.RequireFromString(value),
		ReadingDate: date,
		Zone:        zone,
		EnteredBy:   "inspector@example.com",
	})
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func strPtr(s string) *string { return &s }

func countReadings(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&meterdomain.MeterReading{}).Count(&n).Error)
	return n
}

func requireRule(t *testing.T, err error, rule meterdomain.ReadingRule) *meterdomain.InvalidReadingError {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, meterdomain.ErrInvalidReading))
	var invalid *meterdomain.InvalidReadingError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, rule, invalid.Rule)
	return invalid
}

func TestCreateMeterRequiresProperty(t *testing.T) {
	f := setupMeterService(t)
	_, err := f.svc.CreateMeter(context.Background(), meterdomain.CreateMeterRequest{
		OrgID:        f.orgID,
		PropertyID:   f.node.Generate(),
		SerialNumber: "EM-1",
		Type:         catalogdomain.ServiceTypeElectricity,
	})
	assert.ErrorIs(t, err, meterdomain.ErrPropertyNotFound)
}

func TestCreateMeterRejectsZonesWithoutSupport(t *testing.T) {
	f := setupMeterService(t)
	_, err := f.svc.CreateMeter(context.Background(), meterdomain.CreateMeterRequest{
		OrgID:        f.orgID,
		PropertyID:   f.property.ID,
		SerialNumber: "EM-2",
		Type:         catalogdomain.ServiceTypeElectricity,
		Zones:        []string{"day"},
	})
	assert.ErrorIs(t, err, meterdomain.ErrInvalidZones)
}

func TestRecordReadingRejectsNegativeValue(t *testing.T) {
	f := setupMeterService(t)
	meter := f.createMeter(t)

	_, err := f.record(meter.ID, "-1", day(5), nil)
	requireRule(t, err, meterdomain.RuleNegative)
	assert.Zero(t, countReadings(t, f.db))
}

func TestRecordReadingMonotonicity(t *testing.T) {
	f := setupMeterService(t)
	meter := f.createMeter(t)

	_, err := f.record(meter.ID, "100", day(10), nil)
	require.NoError(t, err)

	_, err = f.record(meter.ID, "90", day(20), nil)
	invalid := requireRule(t, err, meterdomain.RuleMonotonicityBackward)
	require.NotNil(t, invalid.NeighborValue)
	assert.True(t, invalid.NeighborValue.Equal(decimal.NewFromInt(100)))
	assert.True(t, invalid.NeighborDate.Equal(day(10)))
	assert.Equal(t, meter.ID, invalid.MeterID)

	_, err = f.record(meter.ID, "200", day(20), nil)
	require.NoError(t, err)

	_, err = f.record(meter.ID, "250", day(15), nil)
	invalid = requireRule(t, err, meterdomain.RuleMonotonicityForward)
	assert.True(t, invalid.NeighborValue.Equal(decimal.NewFromInt(200)))

	_, err = f.record(meter.ID, "150", day(15), nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, countReadings(t, f.db))
}

func TestRecordReadingRejectsImplausibleRate(t *testing.T) {
	f := setupMeterService(t)
	meter := f.createMeter(t)

	_, err := f.record(meter.ID, "100", day(1), nil)
	require.NoError(t, err)

	_, err = f.record(meter.ID, "5000", day(3), nil)
	invalid := requireRule(t, err, meterdomain.RuleImplausibleConsumption)
	require.NotNil(t, invalid.Limit)
	assert.True(t, invalid.Limit.Equal(decimal.NewFromInt(1000)))

	_, err = f.record(meter.ID, "2100", day(3), nil)
	require.NoError(t, err)
}

func TestRecordReadingZoneRules(t *testing.T) {
	f := setupMeterService(t)
	zoned := f.createMeter(t, "day", "night")
	plain := f.createMeter(t)

	_, err := f.record(zoned.ID, "10", day(1), nil)
	requireRule(t, err, meterdomain.RuleZoneRequired)

	_, err = f.record(zoned.ID, "10", day(1), strPtr("peak"))
	requireRule(t, err, meterdomain.RuleUnknownZone)

	_, err = f.record(plain.ID, "10", day(1), strPtr("day"))
	requireRule(t, err, meterdomain.RuleZoneNotSupported)

	_, err = f.record(zoned.ID, "50", day(1), strPtr("day"))
	require.NoError(t, err)
	// zones are checked independently
	_, err = f.record(zoned.ID, "5", day(2), strPtr("night"))
	require.NoError(t, err)

	readings, err := f.svc.ListReadings(context.Background(), meterdomain.ReadingFilter{
		OrgID:   f.orgID,
		MeterID: zoned.ID,
		Zone:    strPtr("night"),
	})
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "night", readings[0].ZoneKey())
}

func TestCorrectReading(t *testing.T) {
	f := setupMeterService(t)
	meter := f.createMeter(t)
	ctx := context.Background()

	first, err := f.record(meter.ID, "100", day(1), nil)
	require.NoError(t, err)
	_, err = f.record(meter.ID, "150", day(10), nil)
	require.NoError(t, err)

	_, err = f.svc.CorrectReading(ctx, meterdomain.CorrectReadingRequest{
		OrgID:       f.orgID,
		ReadingID:   first.ID,
		Value:       decimal.NewFromInt(120),
		PerformedBy: "ops@example.com",
	})
	assert.ErrorIs(t, err, meterdomain.ErrCorrectionReasonRequired)

	_, err = f.svc.CorrectReading(ctx, meterdomain.CorrectReadingRequest{
		OrgID:       f.orgID,
		ReadingID:   first.ID,
		Value:       decimal.NewFromInt(160),
		Reason:      "photo shows a higher value",
		PerformedBy: "ops@example.com",
	})
	requireRule(t, err, meterdomain.RuleMonotonicityForward)

	corrected, err := f.svc.CorrectReading(ctx, meterdomain.CorrectReadingRequest{
		OrgID:       f.orgID,
		ReadingID:   first.ID,
		Value:       decimal.NewFromInt(120),
		Reason:      "transcription error",
		PerformedBy: "ops@example.com",
	})
	require.NoError(t, err)
	assert.True(t, corrected.Value.Equal(decimal.NewFromInt(120)))

	history, err := f.svc.ListCorrections(ctx, f.orgID, first.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].OldValue.Equal(decimal.NewFromInt(100)))
	assert.True(t, history[0].NewValue.Equal(decimal.NewFromInt(120)))
	assert.Equal(t, "transcription error", history[0].Reason)

	last := f.events.events[len(f.events.events)-1]
	assert.Equal(t, auditdomain.ActionReadingCorrected, last.Action)
	assert.Equal(t, "100", last.Before["value"])
	assert.Equal(t, "120", last.After["value"])
}

func TestValidateReadingDoesNotWrite(t *testing.T) {
	f := setupMeterService(t)
	meter := f.createMeter(t)

	err := f.svc.ValidateReading(context.Background(), meterdomain.ValidateReadingRequest{
		OrgID:       f.orgID,
		MeterID:     meter.ID,
		Value:       decimal.NewFromInt(10),
		ReadingDate: day(3),
	})
	require.NoError(t, err)
	assert.Zero(t, countReadings(t, f.db))
	assert.Empty(t, f.events.events)
}
