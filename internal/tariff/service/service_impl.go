package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/utilitybill/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/utilitybill/internal/catalog/domain"
	"github.com/smallbiznis/utilitybill/internal/clock"
	tariffdomain "github.com/smallbiznis/utilitybill/internal/tariff/domain"
	"github.com/smallbiznis/utilitybill/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        tariffdomain.Repository
	CatalogRepo catalogdomain.Repository
	Resolver    tariffdomain.Resolver
	Events      auditdomain.Emitter `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        tariffdomain.Repository
	catalogRepo catalogdomain.Repository
	resolver    tariffdomain.Resolver
	events      auditdomain.Emitter
}

func New(p Params) tariffdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("tariff.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		catalogRepo: p.CatalogRepo,
		resolver:    p.Resolver,
		events:      p.Events,
	}
}

// Create stores the first version of a tariff lineage. The lineage code
// defaults to the slug of the name.
func (s *Service) Create(ctx context.Context, req tariffdomain.CreateRequest) (*tariffdomain.Tariff, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" {
		req.Code = slug.Make(req.Name)
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if err := req.Configuration.Validate(); err != nil {
		return nil, err
	}
	activeFrom, activeUntil, err := normalizeWindow(req.ActiveFrom, req.ActiveUntil)
	if err != nil {
		return nil, err
	}

	var tariff *tariffdomain.Tariff
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		provider, err := s.catalogRepo.FindProvider(ctx, tx, req.OrgID, req.ProviderID)
		if err != nil {
			return err
		}
		if provider == nil {
			return tariffdomain.ErrProviderNotFound
		}

		existing, err := s.repo.FindLatestVersion(ctx, tx, req.OrgID, req.ProviderID, req.Code)
		if err != nil {
			return err
		}
		if existing != nil {
			return tariffdomain.ErrLineageExists
		}

		now := s.clock.Now()
		tariff = &tariffdomain.Tariff{
			ID:            s.genID.Generate(),
			OrgID:         req.OrgID,
			ProviderID:    provider.ID,
			Code:          req.Code,
			Name:          req.Name,
			Description:   strings.TrimSpace(req.Description),
			Configuration: req.Configuration,
			ActiveFrom:    activeFrom,
			ActiveUntil:   activeUntil,
			CreatedBy:     req.CreatedBy,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return s.repo.Insert(ctx, tx, tariff)
	})
	if err != nil {
		return nil, err
	}

	evt := auditdomain.NewEvent(tariff.OrgID, auditdomain.ActionTariffCreated, "tariff", tariff.ID, tariff.CreatedBy, tariff.CreatedAt)
	evt.After = tariffState(tariff)
	s.emit(ctx, evt)
	return tariff, nil
}

// CreateVersion supersedes the latest version of a lineage. The superseded
// version is closed the day before the new one starts. A lineage may hold at
// most one version that has not started yet.
func (s *Service) CreateVersion(ctx context.Context, req tariffdomain.CreateVersionRequest) (*tariffdomain.Tariff, error) {
	req.Code = strings.TrimSpace(req.Code)
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if err := req.Configuration.Validate(); err != nil {
		return nil, err
	}
	activeFrom, activeUntil, err := normalizeWindow(req.ActiveFrom, req.ActiveUntil)
	if err != nil {
		return nil, err
	}

	var before tariffdomain.Tariff
	var created *tariffdomain.Tariff
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		latest, err := s.repo.FindLatestVersion(ctx, tx, req.OrgID, req.ProviderID, req.Code)
		if err != nil {
			return err
		}
		if latest == nil {
			return tariffdomain.ErrTariffNotFound
		}
		if latest.ActiveFrom.After(clock.Today(s.clock)) {
			return tariffdomain.ErrUpcomingVersionExists
		}
		if !activeFrom.After(latest.ActiveFrom) {
			return tariffdomain.ErrVersionOverlap
		}

		before = *latest
		now := s.clock.Now()
		closeAt := activeFrom.AddDate(0, 0, -1)
		if latest.ActiveUntil == nil || !latest.ActiveUntil.Before(activeFrom) {
			if err := s.repo.CloseVersion(ctx, tx, req.OrgID, latest.ID, closeAt, now); err != nil {
				return err
			}
		}

		name := req.Name
		if name == "" {
			name = latest.Name
		}
		description := strings.TrimSpace(req.Description)
		if description == "" {
			description = latest.Description
		}

		created = &tariffdomain.Tariff{
			ID:            s.genID.Generate(),
			OrgID:         req.OrgID,
			ProviderID:    latest.ProviderID,
			Code:          latest.Code,
			Name:          name,
			Description:   description,
			Configuration: req.Configuration,
			ActiveFrom:    activeFrom,
			ActiveUntil:   activeUntil,
			CreatedBy:     req.CreatedBy,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return s.repo.Insert(ctx, tx, created)
	})
	if err != nil {
		return nil, err
	}

	evt := auditdomain.NewEvent(created.OrgID, auditdomain.ActionTariffVersionCreated, "tariff", created.ID, created.CreatedBy, created.CreatedAt)
	evt.Before = tariffState(&before)
	evt.After = tariffState(created)
	s.emit(ctx, evt)
	return created, nil
}

func (s *Service) Get(ctx context.Context, orgID, id snowflake.ID) (*tariffdomain.Tariff, error) {
	if orgID == 0 {
		return nil, tariffdomain.ErrInvalidOrganization
	}
	tariff, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if tariff == nil {
		return nil, tariffdomain.ErrTariffNotFound
	}
	return tariff, nil
}

func (s *Service) ListVersions(ctx context.Context, orgID, providerID snowflake.ID, code string) ([]tariffdomain.Tariff, error) {
	if orgID == 0 {
		return nil, tariffdomain.ErrInvalidOrganization
	}
	return s.repo.ListVersions(ctx, s.db, orgID, providerID, strings.TrimSpace(code))
}

func (s *Service) Resolve(ctx context.Context, req tariffdomain.ResolveRequest) (*tariffdomain.Tariff, error) {
	return s.resolver.Resolve(ctx, s.db, req)
}

func (s *Service) emit(ctx context.Context, evt auditdomain.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Emit(ctx, evt); err != nil {
		s.log.Warn("failed to emit event", zap.String("action", evt.Action), zap.Error(err))
	}
}

func normalizeWindow(from time.Time, until *time.Time) (time.Time, *time.Time, error) {
	activeFrom := clock.DateOf(from)
	if until == nil {
		return activeFrom, nil, nil
	}
	activeUntil := clock.DateOf(*until)
	if activeUntil.Before(activeFrom) {
		return time.Time{}, nil, tariffdomain.ErrInvalidWindow
	}
	return activeFrom, &activeUntil, nil
}

func tariffState(t *tariffdomain.Tariff) map[string]any {
	state := map[string]any{
		"code":          t.Code,
		"name":          t.Name,
		"active_from":   t.ActiveFrom.Format(time.DateOnly),
		"configuration": t.Configuration.Snapshot(),
	}
	if t.ActiveUntil != nil {
		state["active_until"] = t.ActiveUntil.Format(time.DateOnly)
	}
	return state
}
