package serviceconfig

import (
	"github.com/smallbiznis/utilitybill/internal/serviceconfig/repository"
	"github.com/smallbiznis/utilitybill/internal/serviceconfig/service"
	"go.uber.org/fx"
)

var Module = fx.Module("serviceconfig.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewValidator),
	fx.Provide(service.New),
)
