package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/utilitybill/internal/catalog/domain"
	"github.com/smallbiznis/utilitybill/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() catalogdomain.Repository {
	return &repo{}
}

func (r *repo) InsertUtilityService(ctx context.Context, db *gorm.DB, svc *catalogdomain.UtilityService) error {
	return repository.ProvideStore[catalogdomain.UtilityService](db).Create(ctx, svc)
}

func (r *repo) FindUtilityService(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*catalogdomain.UtilityService, error) {
	return repository.ProvideStore[catalogdomain.UtilityService](db).
		FindOne(ctx, &catalogdomain.UtilityService{OrgID: orgID, ID: id})
}

func (r *repo) InsertProvider(ctx context.Context, db *gorm.DB, provider *catalogdomain.Provider) error {
	return repository.ProvideStore[catalogdomain.Provider](db).Create(ctx, provider)
}

func (r *repo) FindProvider(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*catalogdomain.Provider, error) {
	return repository.ProvideStore[catalogdomain.Provider](db).
		FindOne(ctx, &catalogdomain.Provider{OrgID: orgID, ID: id})
}

func (r *repo) ListProviders(ctx context.Context, db *gorm.DB, orgID snowflake.ID, serviceType catalogdomain.ServiceType) ([]*catalogdomain.Provider, error) {
	return repository.ProvideStore[catalogdomain.Provider](db).
		Find(ctx, &catalogdomain.Provider{OrgID: orgID, ServiceType: serviceType}, repository.OrderBy("name ASC"))
}
