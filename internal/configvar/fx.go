package configvar

import (
	"github.com/testbedhq/balance/internal/configvar/service"
	"go.uber.org/fx"
)

var Module = fx.Module("configvar.service",
	fx.Provide(service.NewService),
)
