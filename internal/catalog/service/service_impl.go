package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/utilitybill/internal/catalog/domain"
	"github.com/smallbiznis/utilitybill/internal/clock"
	"github.com/smallbiznis/utilitybill/pkg/db"
	"github.com/smallbiznis/utilitybill/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  catalogdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  catalogdomain.Repository
}

func New(p Params) catalogdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) CreateUtilityService(ctx context.Context, req catalogdomain.CreateUtilityServiceRequest) (*catalogdomain.UtilityService, error) {
	req.Code = strings.TrimSpace(req.Code)
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	for key, kind := range req.ConfigurationSchema {
		switch kind {
		case catalogdomain.FieldKindNumber, catalogdomain.FieldKindString, catalogdomain.FieldKindBool:
		default:
			return nil, fmt.Errorf("%w: %s has unknown kind %q", catalogdomain.ErrInvalidSchema, key, kind)
		}
	}

	schema := req.ConfigurationSchema
	if schema == nil {
		schema = catalogdomain.OverrideSchema{}
	}
	entity := &catalogdomain.UtilityService{
		ID:                  s.genID.Generate(),
		OrgID:               req.OrgID,
		Code:                req.Code,
		Name:                req.Name,
		ServiceType:         req.ServiceType,
		Unit:                strings.TrimSpace(req.Unit),
		ConfigurationSchema: datatypes.NewJSONType(schema),
		IsActive:            true,
		CreatedAt:           s.clock.Now(),
	}
	if err := s.repo.InsertUtilityService(ctx, s.db, entity); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, catalogdomain.ErrDuplicateCode
		}
		return nil, err
	}

	s.log.Info("utility service created",
		zap.String("org_id", entity.OrgID.String()),
		zap.String("utility_service_id", entity.ID.String()),
		zap.String("code", entity.Code),
	)
	return entity, nil
}

func (s *Service) GetUtilityService(ctx context.Context, orgID, id snowflake.ID) (*catalogdomain.UtilityService, error) {
	if orgID == 0 {
		return nil, catalogdomain.ErrInvalidOrganization
	}
	item, err := s.repo.FindUtilityService(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, catalogdomain.ErrNotFound
	}
	return item, nil
}

func (s *Service) CreateProvider(ctx context.Context, req catalogdomain.CreateProviderRequest) (*catalogdomain.Provider, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	entity := &catalogdomain.Provider{
		ID:          s.genID.Generate(),
		OrgID:       req.OrgID,
		Name:        req.Name,
		ServiceType: req.ServiceType,
		IsActive:    true,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.repo.InsertProvider(ctx, s.db, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

func (s *Service) GetProvider(ctx context.Context, orgID, id snowflake.ID) (*catalogdomain.Provider, error) {
	if orgID == 0 {
		return nil, catalogdomain.ErrInvalidOrganization
	}
	item, err := s.repo.FindProvider(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, catalogdomain.ErrNotFound
	}
	return item, nil
}

func (s *Service) ListProviders(ctx context.Context, orgID snowflake.ID, serviceType catalogdomain.ServiceType) ([]catalogdomain.Provider, error) {
	if orgID == 0 {
		return nil, catalogdomain.ErrInvalidOrganization
	}
	items, err := s.repo.ListProviders(ctx, s.db, orgID, serviceType)
	if err != nil {
		return nil, err
	}
	out := make([]catalogdomain.Provider, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return out, nil
}
