package lamp

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smartlamp/lamplink/internal/config"
)

// Module provides the lamp API client
var Module = fx.Module("lamp",
	fx.Provide(NewClientFromConfig),
)

func NewClientFromConfig(cfg *config.Config, logger *zap.Logger) *Client {
	return NewClient(cfg.Device.APIURL,
		WithTimeout(cfg.Device.RequestTimeout),
		WithLogger(logger))
}
