package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/utilitybill/internal/audit/domain"
	"github.com/smallbiznis/utilitybill/internal/clock"
	meterdomain "github.com/smallbiznis/utilitybill/internal/meter/domain"
	"github.com/smallbiznis/utilitybill/internal/observability/logger"
	"github.com/smallbiznis/utilitybill/internal/observability/metrics"
	propertydomain "github.com/smallbiznis/utilitybill/internal/property/domain"
	"github.com/smallbiznis/utilitybill/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         meterdomain.Repository
	PropertyRepo propertydomain.Repository
	Validator    meterdomain.ReadingValidator
	Metrics      *metrics.Metrics     `optional:"true"`
	Events       auditdomain.Emitter `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         meterdomain.Repository
	propertyRepo propertydomain.Repository
	validator    meterdomain.ReadingValidator
	metrics      *metrics.Metrics
	events       auditdomain.Emitter
}

func New(p Params) meterdomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("meter.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		propertyRepo: p.PropertyRepo,
		validator:    p.Validator,
		metrics:      p.Metrics,
		events:       p.Events,
	}
}

func (s *Service) CreateMeter(ctx context.Context, req meterdomain.CreateMeterRequest) (*meterdomain.Meter, error) {
	req.SerialNumber = strings.TrimSpace(req.SerialNumber)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	zones := make([]string, 0, len(req.Zones))
	seen := make(map[string]struct{}, len(req.Zones))
	for _, z := range req.Zones {
		z = strings.TrimSpace(z)
		if _, dup := seen[z]; dup {
			return nil, meterdomain.ErrInvalidZones
		}
		seen[z] = struct{}{}
		zones = append(zones, z)
	}
	if len(zones) > 0 && !req.SupportsZones {
		return nil, meterdomain.ErrInvalidZones
	}

	var meter *meterdomain.Meter
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		property, err := s.propertyRepo.FindPropertyByID(ctx, tx, req.OrgID, req.PropertyID)
		if err != nil {
			return err
		}
		if property == nil {
			return meterdomain.ErrPropertyNotFound
		}

		now := s.clock.Now()
		meter = &meterdomain.Meter{
			ID:            s.genID.Generate(),
			OrgID:         req.OrgID,
			PropertyID:    property.ID,
			SerialNumber:  req.SerialNumber,
			Type:          req.Type,
			SupportsZones: req.SupportsZones,
			Active:        true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if len(zones) > 0 {
			meter.Zones = zones
		}
		return s.repo.InsertMeter(ctx, tx, meter)
	})
	if err != nil {
		return nil, err
	}
	return meter, nil
}

func (s *Service) GetMeter(ctx context.Context, orgID, id snowflake.ID) (*meterdomain.Meter, error) {
	if orgID == 0 {
		return nil, meterdomain.ErrInvalidOrganization
	}
	meter, err := s.repo.FindMeterByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if meter == nil {
		return nil, meterdomain.ErrMeterNotFound
	}
	return meter, nil
}

// ValidateReading runs the reading checks without writing anything.
func (s *Service) ValidateReading(ctx context.Context, req meterdomain.ValidateReadingRequest) error {
	meter, err := s.GetMeter(ctx, req.OrgID, req.MeterID)
	if err != nil {
		return err
	}
	return s.validator.Validate(ctx, s.db, meterdomain.ReadingCandidate{
		Meter:       meter,
		Value:       req.Value,
		ReadingDate: req.ReadingDate,
		Zone:        req.Zone,
	})
}

func (s *Service) RecordReading(ctx context.Context, req meterdomain.RecordReadingRequest) (*meterdomain.MeterReading, error) {
	req.EnteredBy = strings.TrimSpace(req.EnteredBy)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	log := logger.WithOrg(s.log, req.OrgID)

	var reading *meterdomain.MeterReading
	var meter *meterdomain.Meter
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		meter, err = s.repo.LockMeter(ctx, tx, req.OrgID, req.MeterID)
		if err != nil {
			return err
		}
		if meter == nil {
			return meterdomain.ErrMeterNotFound
		}

		zone := normalizeZone(req.Zone)
		date := clock.DateOf(req.ReadingDate)
		if err := s.validator.Validate(ctx, tx, meterdomain.ReadingCandidate{
			Meter:       meter,
			Value:       req.Value,
			ReadingDate: date,
			Zone:        zone,
		}); err != nil {
			return err
		}

		now := s.clock.Now()
		reading = &meterdomain.MeterReading{
			ID:          s.genID.Generate(),
			OrgID:       req.OrgID,
			MeterID:     meter.ID,
			Zone:        zone,
			ReadingDate: date,
			Value:       req.Value,
			EnteredBy:   req.EnteredBy,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return s.repo.InsertReading(ctx, tx, reading)
	})
	if err != nil {
		var invalid *meterdomain.InvalidReadingError
		if errors.As(err, &invalid) {
			log.Info("meter reading rejected",
				zap.String("meter_id", req.MeterID.String()),
				zap.String("rule", string(invalid.Rule)),
			)
		}
		return nil, err
	}

	s.metrics.RecordReadingRecorded(ctx, string(meter.Type))
	evt := auditdomain.NewEvent(reading.OrgID, auditdomain.ActionReadingRecorded, "meter_reading", reading.ID, reading.EnteredBy, reading.CreatedAt)
	evt.After = readingState(reading)
	s.emit(ctx, evt)
	return reading, nil
}

// CorrectReading replaces a reading's value and keeps the previous value in
// the correction history. The corrected reading must still fit between its
// neighbours.
func (s *Service) CorrectReading(ctx context.Context, req meterdomain.CorrectReadingRequest) (*meterdomain.MeterReading, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	req.PerformedBy = strings.TrimSpace(req.PerformedBy)
	if req.Reason == "" {
		return nil, meterdomain.ErrCorrectionReasonRequired
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	var before, after meterdomain.MeterReading
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		target, err := s.repo.FindReadingByID(ctx, tx, req.OrgID, req.ReadingID)
		if err != nil {
			return err
		}
		if target == nil {
			return meterdomain.ErrReadingNotFound
		}
		meter, err := s.repo.LockMeter(ctx, tx, req.OrgID, target.MeterID)
		if err != nil {
			return err
		}
		if meter == nil {
			return meterdomain.ErrMeterNotFound
		}
		// reload under the meter lock
		reading, err := s.repo.FindReadingByID(ctx, tx, req.OrgID, req.ReadingID)
		if err != nil {
			return err
		}
		if reading == nil {
			return meterdomain.ErrReadingNotFound
		}

		if err := s.validator.Validate(ctx, tx, meterdomain.ReadingCandidate{
			Meter:            meter,
			Value:            req.Value,
			ReadingDate:      reading.ReadingDate,
			Zone:             reading.Zone,
			ExcludeReadingID: reading.ID,
		}); err != nil {
			return err
		}

		before = *reading
		now := s.clock.Now()
		reading.Value = req.Value
		reading.UpdatedAt = now
		if err := s.repo.UpdateReadingValue(ctx, tx, reading); err != nil {
			return err
		}
		after = *reading

		return s.repo.InsertCorrection(ctx, tx, &meterdomain.ReadingCorrection{
			ID:          s.genID.Generate(),
			OrgID:       req.OrgID,
			ReadingID:   reading.ID,
			MeterID:     reading.MeterID,
			OldValue:    before.Value,
			NewValue:    req.Value,
			Reason:      req.Reason,
			PerformedBy: req.PerformedBy,
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, err
	}

	evt := auditdomain.NewEvent(after.OrgID, auditdomain.ActionReadingCorrected, "meter_reading", after.ID, req.PerformedBy, after.UpdatedAt)
	evt.Before = readingState(&before)
	evt.After = readingState(&after)
	evt.After["reason"] = req.Reason
	s.emit(ctx, evt)
	return &after, nil
}

func (s *Service) ListReadings(ctx context.Context, filter meterdomain.ReadingFilter) ([]meterdomain.MeterReading, error) {
	if filter.OrgID == 0 {
		return nil, meterdomain.ErrInvalidOrganization
	}
	filter.Zone = normalizeZone(filter.Zone)
	return s.repo.ListReadings(ctx, s.db, filter)
}

func (s *Service) ListCorrections(ctx context.Context, orgID, readingID snowflake.ID) ([]meterdomain.ReadingCorrection, error) {
	if orgID == 0 {
		return nil, meterdomain.ErrInvalidOrganization
	}
	return s.repo.ListCorrections(ctx, s.db, orgID, readingID)
}

func (s *Service) emit(ctx context.Context, evt auditdomain.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Emit(ctx, evt); err != nil {
		s.log.Warn("failed to emit event", zap.String("action", evt.Action), zap.Error(err))
	}
}

func readingState(r *meterdomain.MeterReading) map[string]any {
	state := map[string]any{
		"meter_id":     r.MeterID.String(),
		"reading_date": r.ReadingDate.Format("2006-01-02"),
		"value":        r.Value.String(),
	}
	if r.Zone != nil {
		state["zone"] = *r.Zone
	}
	return state
}
