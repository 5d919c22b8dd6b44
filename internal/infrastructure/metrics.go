package infrastructure

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/smartlamp/lamplink/internal/config"
	"github.com/smartlamp/lamplink/pkg/websocket/performance"
)

// NewRegistry returns the registry every lamplink collector is registered on.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewMetrics registers the connection metrics under the configured namespace.
func NewMetrics(cfg *config.Config, reg *prometheus.Registry) performance.Metrics {
	return performance.NewMetrics(reg, cfg.Metrics.Namespace)
}

// MetricsServer exposes the registry over HTTP. It is inert when no address
// is configured.
type MetricsServer struct {
	server *http.Server
	logger *zap.Logger
	addr   net.Addr
}

func NewMetricsServer(cfg *config.Config, reg *prometheus.Registry, logger *zap.Logger) *MetricsServer {
	ms := &MetricsServer{logger: logger.Named("metrics")}
	if cfg.Metrics.Addr == "" {
		return ms
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ms.server = &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ms
}

// Enabled reports whether an address was configured.
func (ms *MetricsServer) Enabled() bool {
	return ms.server != nil
}

// Addr is the bound listener address, nil until Start succeeds.
func (ms *MetricsServer) Addr() net.Addr {
	return ms.addr
}

// Start binds the listener synchronously so address errors surface at
// startup, then serves in the background.
func (ms *MetricsServer) Start() error {
	if ms.server == nil {
		return nil
	}

	ln, err := net.Listen("tcp", ms.server.Addr)
	if err != nil {
		return err
	}
	ms.addr = ln.Addr()

	go func() {
		ms.logger.Info("Metrics server started", zap.String("address", ln.Addr().String()))
		if err := ms.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ms.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return nil
}

func (ms *MetricsServer) Stop(ctx context.Context) error {
	if ms.server == nil {
		return nil
	}
	return ms.server.Shutdown(ctx)
}
