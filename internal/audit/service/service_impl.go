package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/utilitybill/internal/audit/domain"
	"github.com/smallbiznis/utilitybill/internal/clock"
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
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Emit writes the event to the audit_logs table.
func (s *Service) Emit(ctx context.Context, evt auditdomain.Event) error {
	action := strings.TrimSpace(evt.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	if evt.OrgID == 0 {
		return auditdomain.ErrInvalidOrganization
	}

	actorType := auditdomain.ActorTypeUser
	actor := strings.TrimSpace(evt.Actor)
	if actor == "" {
		actorType = auditdomain.ActorTypeSystem
	}

	targetType := strings.TrimSpace(evt.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	payload := map[string]any{}
	if len(evt.Before) > 0 {
		payload["before"] = evt.Before
	}
	if len(evt.After) > 0 {
		payload["after"] = evt.After
	}

	createdAt := evt.OccurredAt
	if createdAt.IsZero() {
		createdAt = s.clock.Now()
	}

	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		OrgID:      evt.OrgID,
		EventID:    evt.ID,
		ActorType:  string(actorType),
		ActorID:    normalizePointer(&actor),
		Action:     action,
		TargetType: targetType,
		TargetID:   normalizePointer(&evt.TargetID),
		Metadata:   datatypes.JSONMap(payload),
		CreatedAt:  createdAt.UTC(),
	}

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, filter auditdomain.ListFilter) ([]auditdomain.AuditLog, error) {
	if filter.OrgID == 0 {
		return nil, auditdomain.ErrInvalidOrganization
	}
	if filter.Limit <= 0 || filter.Limit > 250 {
		filter.Limit = 50
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	logs := make([]auditdomain.AuditLog, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		logs = append(logs, *item)
	}
	return logs, nil
}

func normalizePointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
