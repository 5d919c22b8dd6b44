package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smartlamp/lamplink/internal/api/handlers"
	"github.com/smartlamp/lamplink/internal/api/websocket"
	"github.com/smartlamp/lamplink/internal/config"
	"github.com/smartlamp/lamplink/internal/lamp"
	"github.com/smartlamp/lamplink/internal/services"
)

// Module provides the local dashboard server (handlers, routes, server)
var Module = fx.Module("api",
	fx.Provide(
		func(session *services.LampSession, tracker *services.StatusTracker, client *lamp.Client, logger *zap.Logger) *handlers.LampHandler {
			return handlers.NewLampHandler(session, tracker, client, logger.Named("api"))
		},
		handlers.NewNotificationsHandler,
		func(client *lamp.Client, logger *zap.Logger) *handlers.ScheduleHandler {
			return handlers.NewScheduleHandler(client, logger.Named("api"))
		},
		func(bus *services.EventBus, cfg *config.Config, logger *zap.Logger) *websocket.Handler {
			return websocket.NewHandler(bus, cfg.Server.CORSAllowOrigin, logger)
		},
		func(
			lampHandler *handlers.LampHandler,
			notificationsHandler *handlers.NotificationsHandler,
			scheduleHandler *handlers.ScheduleHandler,
			wsHandler *websocket.Handler,
			cfg *config.Config,
			logger *zap.Logger,
		) *gin.Engine {
			return SetupRouter(lampHandler, notificationsHandler, scheduleHandler, wsHandler,
				logger.Named("http"), cfg.Server.CORSAllowOrigin, clockwork.NewRealClock())
		},
		NewServer,
	),
	fx.Invoke(RegisterLifecycle),
)

// Server is the dashboard HTTP server.
type Server struct {
	http   *http.Server
	logger *zap.Logger
	addr   net.Addr
}

func NewServer(cfg *config.Config, router *gin.Engine, logger *zap.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           router,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
			ReadTimeout:       cfg.Server.ReadTimeout,
			// Long lived /ws responses are hijacked and not bound by this.
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		logger: logger,
	}
}

// Addr is the bound listener address, nil until Start succeeds.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Start binds synchronously so a busy port fails startup.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	s.addr = ln.Addr()

	go func() {
		s.logger.Info("Dashboard server started", zap.String("address", ln.Addr().String()))
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Dashboard server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// RegisterLifecycle starts the live session with the server and stops the
// server before the infrastructure hooks tear the session down.
func RegisterLifecycle(
	lc fx.Lifecycle,
	server *Server,
	wsHandler *websocket.Handler,
	session *services.LampSession,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			wsHandler.StartEventListener()
			if err := server.Start(); err != nil {
				wsHandler.Stop()
				return err
			}
			session.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down dashboard server...")

			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			wsHandler.Stop()
			if err := server.Stop(shutdownCtx); err != nil {
				logger.Error("Dashboard server forced to shutdown", zap.Error(err))
			}
			return nil
		},
	})
}
