package audit

import (
	"github.com/nats-io/nats.go"
	"github.com/smallbiznis/utilitybill/internal/audit/domain"
	"github.com/smallbiznis/utilitybill/internal/audit/publisher"
	"github.com/smallbiznis/utilitybill/internal/audit/repository"
	"github.com/smallbiznis/utilitybill/internal/audit/service"
	"github.com/smallbiznis/utilitybill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(publisher.Connect),
	fx.Provide(NewEmitter),
)

// NewEmitter writes every event to the audit log and, when NATS is
// configured, publishes it as well.
func NewEmitter(svc domain.Service, nc *nats.Conn, cfg config.Config, log *zap.Logger) domain.Emitter {
	sinks := service.Fanout{svc}
	if nc != nil {
		sinks = append(sinks, publisher.New(nc, cfg.NATS.SubjectPrefix, log))
	}
	return sinks
}
