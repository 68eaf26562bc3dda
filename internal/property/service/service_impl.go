package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/utilitybill/internal/clock"
	propertydomain "github.com/smallbiznis/utilitybill/internal/property/domain"
	"github.com/smallbiznis/utilitybill/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  propertydomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  propertydomain.Repository
}

func New(p Params) propertydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("property.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) CreateProperty(ctx context.Context, req propertydomain.CreatePropertyRequest) (*propertydomain.Property, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if req.AreaSQM != nil && !req.AreaSQM.IsPositive() {
		return nil, propertydomain.ErrInvalidArea
	}

	entity := &propertydomain.Property{
		ID:           s.genID.Generate(),
		OrgID:        req.OrgID,
		Name:         req.Name,
		Address:      strings.TrimSpace(req.Address),
		PropertyType: req.PropertyType,
		AreaSQM:      req.AreaSQM,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.repo.InsertProperty(ctx, s.db, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

func (s *Service) GetProperty(ctx context.Context, orgID, id snowflake.ID) (*propertydomain.Property, error) {
	if orgID == 0 {
		return nil, propertydomain.ErrInvalidOrganization
	}
	item, err := s.repo.FindPropertyByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, propertydomain.ErrPropertyNotFound
	}
	return item, nil
}

func (s *Service) CreateTenant(ctx context.Context, req propertydomain.CreateTenantRequest) (*propertydomain.Tenant, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	leaseStart := clock.DateOf(req.LeaseStart)
	if req.LeaseEnd != nil {
		end := clock.DateOf(*req.LeaseEnd)
		if end.Before(leaseStart) {
			return nil, propertydomain.ErrInvalidLease
		}
		req.LeaseEnd = &end
	}

	var entity *propertydomain.Tenant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		property, err := s.repo.FindPropertyByID(ctx, tx, req.OrgID, req.PropertyID)
		if err != nil {
			return err
		}
		if property == nil {
			return propertydomain.ErrPropertyNotFound
		}

		entity = &propertydomain.Tenant{
			ID:         s.genID.Generate(),
			OrgID:      req.OrgID,
			PropertyID: property.ID,
			Name:       req.Name,
			Email:      req.Email,
			LeaseStart: leaseStart,
			LeaseEnd:   req.LeaseEnd,
			CreatedAt:  s.clock.Now(),
		}
		return s.repo.InsertTenant(ctx, tx, entity)
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (s *Service) GetTenant(ctx context.Context, orgID, id snowflake.ID) (*propertydomain.Tenant, error) {
	if orgID == 0 {
		return nil, propertydomain.ErrInvalidOrganization
	}
	item, err := s.repo.FindTenantByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, propertydomain.ErrTenantNotFound
	}
	return item, nil
}
