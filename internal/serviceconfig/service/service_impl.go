package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/utilitybill/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/utilitybill/internal/catalog/domain"
	"github.com/smallbiznis/utilitybill/internal/clock"
	meterdomain "github.com/smallbiznis/utilitybill/internal/meter/domain"
	"github.com/smallbiznis/utilitybill/internal/observability/logger"
	propertydomain "github.com/smallbiznis/utilitybill/internal/property/domain"
	serviceconfigdomain "github.com/smallbiznis/utilitybill/internal/serviceconfig/domain"
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
	Repo         serviceconfigdomain.Repository
	Validator    serviceconfigdomain.Validator
	PropertyRepo propertydomain.Repository
	CatalogRepo  catalogdomain.Repository
	MeterRepo    meterdomain.Repository
	Events       auditdomain.Emitter `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         serviceconfigdomain.Repository
	validator    serviceconfigdomain.Validator
	propertyRepo propertydomain.Repository
	catalogRepo  catalogdomain.Repository
	meterRepo    meterdomain.Repository
	events       auditdomain.Emitter
}

func New(p Params) serviceconfigdomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("serviceconfig.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		validator:    p.Validator,
		propertyRepo: p.PropertyRepo,
		catalogRepo:  p.CatalogRepo,
		meterRepo:    p.MeterRepo,
		events:       p.Events,
	}
}

// Assign validates and stores a new configuration and binds the listed
// meters to it. Nothing is written when a check fails.
func (s *Service) Assign(ctx context.Context, req serviceconfigdomain.AssignRequest) (*serviceconfigdomain.ServiceConfiguration, error) {
	req.CreatedBy = strings.TrimSpace(req.CreatedBy)
	req.TariffCode = strings.TrimSpace(req.TariffCode)
	req.CustomFormula = strings.TrimSpace(req.CustomFormula)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	req.EffectiveFrom = clock.DateOf(req.EffectiveFrom)
	if req.EffectiveUntil != nil {
		until := clock.DateOf(*req.EffectiveUntil)
		if !until.After(req.EffectiveFrom) {
			return nil, &validation.Error{Fields: []validation.FieldError{{
				Field:   "effective_until",
				Message: "must be after effective_from",
			}}}
		}
		req.EffectiveUntil = &until
	}
	log := logger.WithActor(logger.WithOrg(s.log, req.OrgID), req.CreatedBy)

	var cfg *serviceconfigdomain.ServiceConfiguration
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		property, err := s.propertyRepo.LockProperty(ctx, tx, req.OrgID, req.PropertyID)
		if err != nil {
			return err
		}
		if property == nil {
			return serviceconfigdomain.ErrPropertyNotFound
		}
		utilityService, err := s.catalogRepo.FindUtilityService(ctx, tx, req.OrgID, req.UtilityServiceID)
		if err != nil {
			return err
		}
		if utilityService == nil {
			return serviceconfigdomain.ErrUtilityServiceNotFound
		}
		provider, err := s.catalogRepo.FindProvider(ctx, tx, req.OrgID, req.ProviderID)
		if err != nil {
			return err
		}
		if provider == nil {
			return serviceconfigdomain.ErrProviderNotFound
		}

		meters := make([]*meterdomain.Meter, 0, len(req.MeterIDs))
		for _, id := range req.MeterIDs {
			meter, err := s.meterRepo.FindMeterByID(ctx, tx, req.OrgID, id)
			if err != nil {
				return err
			}
			if meter == nil || meter.PropertyID != property.ID {
				return serviceconfigdomain.ErrMeterNotFound
			}
			meters = append(meters, meter)
		}

		if err := s.validator.Validate(ctx, tx, serviceconfigdomain.ValidationInput{
			Property:       property,
			UtilityService: utilityService,
			Request:        req,
		}); err != nil {
			return err
		}

		now := s.clock.Now()
		cfg = &serviceconfigdomain.ServiceConfiguration{
			ID:                     s.genID.Generate(),
			OrgID:                  req.OrgID,
			PropertyID:             property.ID,
			UtilityServiceID:       utilityService.ID,
			ProviderID:             provider.ID,
			TariffCode:             req.TariffCode,
			PricingModel:           req.PricingModel,
			RateSchedule:           req.RateSchedule,
			DistributionMethod:     req.DistributionMethod,
			AreaType:               req.AreaType,
			CustomFormula:          req.CustomFormula,
			ConfigurationOverrides: req.ConfigurationOverrides,
			EffectiveFrom:          req.EffectiveFrom,
			EffectiveUntil:         req.EffectiveUntil,
			IsShared:               req.IsShared,
			IsActive:               true,
			CreatedBy:              req.CreatedBy,
			CreatedAt:              now,
			UpdatedAt:              now,
		}
		if err := s.repo.Insert(ctx, tx, cfg); err != nil {
			return err
		}
		for _, meter := range meters {
			if err := s.meterRepo.BindServiceConfiguration(ctx, tx, req.OrgID, meter.ID, &cfg.ID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var rejected *serviceconfigdomain.ServiceConfigurationError
		if errors.As(err, &rejected) {
			log.Info("service configuration rejected",
				zap.String("property_id", req.PropertyID.String()),
				zap.String("utility_service_id", req.UtilityServiceID.String()),
				zap.String("check", string(rejected.Check)),
			)
		}
		return nil, err
	}

	evt := auditdomain.NewEvent(cfg.OrgID, auditdomain.ActionServiceAssigned, "service_configuration", cfg.ID, cfg.CreatedBy, cfg.CreatedAt)
	evt.After = configurationState(cfg)
	if len(req.MeterIDs) > 0 {
		ids := make([]string, 0, len(req.MeterIDs))
		for _, id := range req.MeterIDs {
			ids = append(ids, id.String())
		}
		evt.After["meter_ids"] = ids
	}
	s.emit(ctx, evt)
	return cfg, nil
}

// Deactivate switches a configuration off and releases its meters.
func (s *Service) Deactivate(ctx context.Context, orgID, id snowflake.ID, performedBy string) (*serviceconfigdomain.ServiceConfiguration, error) {
	if orgID == 0 {
		return nil, serviceconfigdomain.ErrInvalidOrganization
	}

	var cfg *serviceconfigdomain.ServiceConfiguration
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		cfg, err = s.repo.FindByID(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if cfg == nil {
			return serviceconfigdomain.ErrConfigurationNotFound
		}
		if !cfg.IsActive {
			return nil
		}

		now := s.clock.Now()
		if err := s.repo.Deactivate(ctx, tx, orgID, id, now); err != nil {
			return err
		}
		meters, err := s.meterRepo.ListMetersByProperty(ctx, tx, orgID, cfg.PropertyID)
		if err != nil {
			return err
		}
		for _, meter := range meters {
			if meter.ServiceConfigurationID == nil || *meter.ServiceConfigurationID != cfg.ID {
				continue
			}
			if err := s.meterRepo.BindServiceConfiguration(ctx, tx, orgID, meter.ID, nil, now); err != nil {
				return err
			}
		}
		cfg.IsActive = false
		cfg.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	evt := auditdomain.NewEvent(cfg.OrgID, auditdomain.ActionServiceDeactivated, "service_configuration", cfg.ID, performedBy, cfg.UpdatedAt)
	evt.After = configurationState(cfg)
	s.emit(ctx, evt)
	return cfg, nil
}

func (s *Service) Get(ctx context.Context, orgID, id snowflake.ID) (*serviceconfigdomain.ServiceConfiguration, error) {
	if orgID == 0 {
		return nil, serviceconfigdomain.ErrInvalidOrganization
	}
	cfg, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, serviceconfigdomain.ErrConfigurationNotFound
	}
	return cfg, nil
}

func (s *Service) ListActiveForProperty(ctx context.Context, orgID, propertyID snowflake.ID, asOf *time.Time) ([]serviceconfigdomain.ServiceConfiguration, error) {
	if orgID == 0 {
		return nil, serviceconfigdomain.ErrInvalidOrganization
	}
	if asOf != nil {
		d := clock.DateOf(*asOf)
		asOf = &d
	}
	return s.repo.ListActiveForProperty(ctx, s.db, orgID, propertyID, asOf)
}

func (s *Service) emit(ctx context.Context, evt auditdomain.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Emit(ctx, evt); err != nil {
		s.log.Warn("failed to emit event", zap.String("action", evt.Action), zap.Error(err))
	}
}

func configurationState(cfg *serviceconfigdomain.ServiceConfiguration) map[string]any {
	state := map[string]any{
		"property_id":        cfg.PropertyID.String(),
		"utility_service_id": cfg.UtilityServiceID.String(),
		"provider_id":        cfg.ProviderID.String(),
		"pricing_model":      string(cfg.PricingModel),
		"effective_from":     cfg.EffectiveFrom.Format(time.DateOnly),
		"is_active":          cfg.IsActive,
	}
	if cfg.EffectiveUntil != nil {
		state["effective_until"] = cfg.EffectiveUntil.Format(time.DateOnly)
	}
	if cfg.TariffCode != "" {
		state["tariff_code"] = cfg.TariffCode
	}
	return state
}
