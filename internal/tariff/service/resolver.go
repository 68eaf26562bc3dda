package service

import (
	"context"

	"github.com/smallbiznis/utilitybill/internal/clock"
	"github.com/smallbiznis/utilitybill/internal/observability/logger"
	"github.com/smallbiznis/utilitybill/internal/observability/metrics"
	tariffdomain "github.com/smallbiznis/utilitybill/internal/tariff/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type resolver struct {
	log     *zap.Logger
	repo    tariffdomain.Repository
	metrics *metrics.Metrics
}

func NewResolver(log *zap.Logger, repo tariffdomain.Repository, m *metrics.Metrics) tariffdomain.Resolver {
	return &resolver{
		log:     log.Named("tariff.resolver"),
		repo:    repo,
		metrics: m,
	}
}

// Resolve returns the tariff whose window contains req.AsOf. Overlapping
// windows are tolerated: the most recently created tariff wins and the
// conflict is logged.
func (r *resolver) Resolve(ctx context.Context, db *gorm.DB, req tariffdomain.ResolveRequest) (*tariffdomain.Tariff, error) {
	if req.OrgID == 0 {
		return nil, tariffdomain.ErrInvalidOrganization
	}
	asOf := clock.DateOf(req.AsOf)

	matches, err := r.repo.FindActive(ctx, db, req.OrgID, req.ProviderID, req.Code, asOf)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, &tariffdomain.NoTariffFoundError{ProviderID: req.ProviderID, Code: req.Code, AsOf: asOf}
	}

	chosen := matches[0]
	if len(matches) > 1 {
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, m.ID.String())
		}
		logger.WithContext(ctx, logger.WithOrg(r.log, req.OrgID)).Warn("overlapping tariffs active",
			zap.String("provider_id", req.ProviderID.String()),
			zap.String("code", req.Code),
			zap.Time("as_of", asOf),
			zap.Strings("tariff_ids", ids),
			zap.String("chosen_id", chosen.ID.String()),
		)
		r.metrics.RecordTariffConflict(ctx)
	}
	return &chosen, nil
}
