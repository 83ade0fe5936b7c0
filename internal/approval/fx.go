package approval

import (
	"github.com/smallbiznis/inspira/internal/approval/service"
	"go.uber.org/fx"
)

var Module = fx.Module("approval.executor",
	fx.Provide(service.NewExecutor),
)
