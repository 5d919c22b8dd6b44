package infrastructure

import (
	"go.uber.org/fx"
)

// Module provides infrastructure components (logging, metrics, lifecycle)
var Module = fx.Module("infrastructure",
	fx.Provide(
		NewLogger,
		NewRegistry,
		NewMetrics,
		NewMetricsServer,
	),
	fx.Invoke(RegisterLifecycle),
)
