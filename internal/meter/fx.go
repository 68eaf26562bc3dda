package meter

import (
	"github.com/smallbiznis/utilitybill/internal/meter/repository"
	"github.com/smallbiznis/utilitybill/internal/meter/service"
	"go.uber.org/fx"
)

var Module = fx.Module("meter.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewReadingValidator),
	fx.Provide(service.New),
)
