package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	meterdomain "github.com/smallbiznis/utilitybill/internal/meter/domain"
	"github.com/smallbiznis/utilitybill/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() meterdomain.Repository {
	return &repo{}
}

const readingColumns = `id, org_id, meter_id, zone, reading_date, value, entered_by, created_at, updated_at`

func (r *repo) InsertMeter(ctx context.Context, db *gorm.DB, meter *meterdomain.Meter) error {
	return db.WithContext(ctx).Create(meter).Error
}

func (r *repo) FindMeterByID(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*meterdomain.Meter, error) {
	return findMeter(tx.WithContext(ctx), orgID, id)
}

func (r *repo) LockMeter(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*meterdomain.Meter, error) {
	return findMeter(db.ForUpdate(tx.WithContext(ctx)), orgID, id)
}

func findMeter(tx *gorm.DB, orgID, id snowflake.ID) (*meterdomain.Meter, error) {
	var meter meterdomain.Meter
	err := tx.
		Where("org_id = ? AND id = ?", orgID, id).
		Limit(1).
		Find(&meter).Error
	if err != nil {
		return nil, err
	}
	if meter.ID == 0 {
		return nil, nil
	}
	return &meter, nil
}

func (r *repo) ListMetersByProperty(ctx context.Context, db *gorm.DB, orgID, propertyID snowflake.ID) ([]meterdomain.Meter, error) {
	var meters []meterdomain.Meter
	err := db.WithContext(ctx).
		Where("org_id = ? AND property_id = ? AND active = ?", orgID, propertyID, true).
		Order("id ASC").
		Find(&meters).Error
	if err != nil {
		return nil, err
	}
	return meters, nil
}

func (r *repo) BindServiceConfiguration(ctx context.Context, db *gorm.DB, orgID, meterID snowflake.ID, configurationID *snowflake.ID, updatedAt time.Time) error {
	return db.WithContext(ctx).
		Model(&meterdomain.Meter{}).
		Where("org_id = ? AND id = ?", orgID, meterID).
		Updates(map[string]interface{}{
			"service_configuration_id": configurationID,
			"updated_at":               updatedAt,
		}).Error
}

func (r *repo) InsertReading(ctx context.Context, db *gorm.DB, reading *meterdomain.MeterReading) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO meter_readings (`+readingColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reading.ID,
		reading.OrgID,
		reading.MeterID,
		reading.Zone,
		reading.ReadingDate,
		reading.Value,
		reading.EnteredBy,
		reading.CreatedAt,
		reading.UpdatedAt,
	).Error
}

func (r *repo) UpdateReadingValue(ctx context.Context, db *gorm.DB, reading *meterdomain.MeterReading) error {
	return db.WithContext(ctx).Exec(
		`UPDATE meter_readings SET value = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
		reading.Value,
		reading.UpdatedAt,
		reading.OrgID,
		reading.ID,
	).Error
}

func (r *repo) FindReadingByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*meterdomain.MeterReading, error) {
	var reading meterdomain.MeterReading
	err := db.WithContext(ctx).Raw(
		`SELECT `+readingColumns+` FROM meter_readings WHERE org_id = ? AND id = ?`,
		orgID, id,
	).Scan(&reading).Error
	if err != nil {
		return nil, err
	}
	if reading.ID == 0 {
		return nil, nil
	}
	return &reading, nil
}

func (r *repo) FindLatestOnOrBefore(
	ctx context.Context,
	db *gorm.DB,
	orgID, meterID snowflake.ID,
	zone *string,
	date time.Time,
	excludeID snowflake.ID,
) (*meterdomain.MeterReading, error) {
	zoneSQL, args := zoneCondition(zone)
	query := `SELECT ` + readingColumns + `
		FROM meter_readings
		WHERE org_id = ? AND meter_id = ? AND ` + zoneSQL + `
			AND reading_date <= ? AND id <> ?
		ORDER BY reading_date DESC, id DESC
		LIMIT 1`

	params := append([]interface{}{orgID, meterID}, args...)
	params = append(params, date, excludeID)

	var reading meterdomain.MeterReading
	if err := db.WithContext(ctx).Raw(query, params...).Scan(&reading).Error; err != nil {
		return nil, err
	}
	if reading.ID == 0 {
		return nil, nil
	}
	return &reading, nil
}

func (r *repo) FindEarliestOnOrAfter(
	ctx context.Context,
	db *gorm.DB,
	orgID, meterID snowflake.ID,
	zone *string,
	date time.Time,
	excludeID snowflake.ID,
) (*meterdomain.MeterReading, error) {
	zoneSQL, args := zoneCondition(zone)
	query := `SELECT ` + readingColumns + `
		FROM meter_readings
		WHERE org_id = ? AND meter_id = ? AND ` + zoneSQL + `
			AND reading_date >= ? AND id <> ?
		ORDER BY reading_date ASC, id ASC
		LIMIT 1`

	params := append([]interface{}{orgID, meterID}, args...)
	params = append(params, date, excludeID)

	var reading meterdomain.MeterReading
	if err := db.WithContext(ctx).Raw(query, params...).Scan(&reading).Error; err != nil {
		return nil, err
	}
	if reading.ID == 0 {
		return nil, nil
	}
	return &reading, nil
}

func (r *repo) ListReadings(ctx context.Context, db *gorm.DB, filter meterdomain.ReadingFilter) ([]meterdomain.MeterReading, error) {
	clauses := []string{"org_id = ?", "meter_id = ?"}
	params := []interface{}{filter.OrgID, filter.MeterID}
	if filter.Zone != nil {
		zoneSQL, args := zoneCondition(filter.Zone)
		clauses = append(clauses, zoneSQL)
		params = append(params, args...)
	}
	if filter.From != nil {
		clauses = append(clauses, "reading_date >= ?")
		params = append(params, filter.From.UTC())
	}
	if filter.To != nil {
		clauses = append(clauses, "reading_date <= ?")
		params = append(params, filter.To.UTC())
	}

	var readings []meterdomain.MeterReading
	err := db.WithContext(ctx).Raw(
		`SELECT `+readingColumns+` FROM meter_readings
		 WHERE `+strings.Join(clauses, " AND ")+`
		 ORDER BY reading_date ASC, zone ASC, id ASC`,
		params...,
	).Scan(&readings).Error
	if err != nil {
		return nil, err
	}
	return readings, nil
}

func (r *repo) ListReadingZones(ctx context.Context, db *gorm.DB, orgID, meterID snowflake.ID) ([]string, error) {
	var zones []string
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT zone FROM meter_readings
		 WHERE org_id = ? AND meter_id = ? AND zone IS NOT NULL
		 ORDER BY zone ASC`,
		orgID, meterID,
	).Scan(&zones).Error
	if err != nil {
		return nil, err
	}
	return zones, nil
}

func (r *repo) InsertCorrection(ctx context.Context, db *gorm.DB, correction *meterdomain.ReadingCorrection) error {
	return db.WithContext(ctx).Create(correction).Error
}

func (r *repo) ListCorrections(ctx context.Context, db *gorm.DB, orgID, readingID snowflake.ID) ([]meterdomain.ReadingCorrection, error) {
	var items []meterdomain.ReadingCorrection
	err := db.WithContext(ctx).
		Where("org_id = ? AND reading_id = ?", orgID, readingID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// zoneCondition matches a specific zone or, for nil, single-register readings.
func zoneCondition(zone *string) (string, []interface{}) {
	if zone == nil {
		return "zone IS NULL", nil
	}
	return "zone = ?", []interface{}{*zone}
}
