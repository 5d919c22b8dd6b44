package infrastructure

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smartlamp/lamplink/internal/services"
)

// RegisterLifecycle sets up application startup and shutdown hooks
func RegisterLifecycle(
	lc fx.Lifecycle,
	metricsServer *MetricsServer,
	session *services.LampSession,
	eventBus *services.EventBus,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := metricsServer.Start(); err != nil {
				return fmt.Errorf("failed to start metrics server: %w", err)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Debug("Shutting down...")

			session.Close()

			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := metricsServer.Stop(shutdownCtx); err != nil {
				logger.Error("Metrics server forced to shutdown", zap.Error(err))
			}

			eventBus.Close()

			// Sync fails on stderr/stdout on some platforms; nothing to do about it.
			_ = logger.Sync()
			return nil
		},
	})
}
