package services

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smartlamp/lamplink/internal/config"
	"github.com/smartlamp/lamplink/internal/lamp"
	"github.com/smartlamp/lamplink/pkg/websocket/connection"
	"github.com/smartlamp/lamplink/pkg/websocket/performance"
)

// Module provides application services
var Module = fx.Module("services",
	fx.Provide(
		NewEventBus,
		NewConnectionManager,
		func(client *lamp.Client, logger *zap.Logger) *StatusTracker {
			return NewStatusTracker(client, nil, DefaultStatusMaxAge, logger)
		},
		func(cfg *config.Config) *NotificationStore {
			return NewNotificationStore(cfg.Notifications.Capacity, NotificationPrefs{
				StatusChanges:     cfg.Notifications.StatusChanges,
				ScheduleReminders: cfg.Notifications.ScheduleReminders,
				BatteryAlerts:     cfg.Notifications.BatteryAlerts,
			}, nil)
		},
		func(
			manager connection.ConnectionManager,
			bus *EventBus,
			tracker *StatusTracker,
			notifications *NotificationStore,
			cfg *config.Config,
			logger *zap.Logger,
		) (*LampSession, error) {
			return NewLampSession(manager, bus, tracker, notifications, SessionConfig{
				CommandRate:  cfg.Session.CommandRate,
				CommandBurst: cfg.Session.CommandBurst,
			}, logger)
		},
	),
)

// NewConnectionManager builds the device connection from configuration.
func NewConnectionManager(cfg *config.Config, logger *zap.Logger, metrics performance.Metrics) connection.ConnectionManager {
	return connection.NewConnectionManager(cfg.WebSocket(), nil, logger, metrics)
}
