package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/smartlamp/lamplink/internal/config"
	"github.com/smartlamp/lamplink/internal/infrastructure"
	"github.com/smartlamp/lamplink/internal/lamp"
	"github.com/smartlamp/lamplink/internal/services"
)

type rootOptions struct {
	overrides  config.Overrides
	timeout    time.Duration
	jsonOutput bool
}

// NewRootCmd builds the lampctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "lampctl",
		Short: "Control and monitor a smart lamp",
		Long: `Control and monitor a smart lamp.

One-shot commands use the lamp's HTTP API. Pass --live to send them over the
device WebSocket instead. "lampctl watch" streams live updates until interrupted.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.overrides.Path, "config", "c", "", "Path to a config file (yaml, json or toml)")
	flags.StringVar(&opts.overrides.WebSocketURL, "ws-url", "", "Device WebSocket URL (overrides config)")
	flags.StringVar(&opts.overrides.APIURL, "api-url", "", "Device HTTP API base URL (overrides config)")
	flags.StringVar(&opts.overrides.ServerAddr, "addr", "", "Dashboard server listen address for serve (overrides config)")
	flags.StringVar(&opts.overrides.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flags.StringVar(&opts.overrides.LogLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "Deadline for one-shot commands")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")

	rootCmd.AddCommand(
		newWatchCmd(opts),
		newServeCmd(opts),
		newStatusCmd(opts),
		newToggleCmd(opts),
		newBrightnessCmd(opts),
		newColorCmd(opts),
		newPresetCmd(opts),
		newSensorsCmd(opts),
		newScheduleCmd(opts),
	)

	return rootCmd
}

// deps is everything a command may need from the application graph.
type deps struct {
	fx.In

	Config        *config.Config
	Client        *lamp.Client
	Session       *services.LampSession
	Bus           *services.EventBus
	Tracker       *services.StatusTracker
	Notifications *services.NotificationStore
}

// withApp starts the application graph plus any extra options, runs fn and
// stops the graph again.
func (o *rootOptions) withApp(ctx context.Context, fn func(ctx context.Context, d deps) error, extra ...fx.Option) error {
	var d deps
	app := fx.New(
		fx.Supply(o.overrides),
		fx.WithLogger(infrastructure.NewEventLogger),
		config.Module,
		infrastructure.Module,
		lamp.Module,
		services.Module,
		fx.Options(extra...),
		fx.Invoke(func(in deps) { d = in }),
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	return fn(ctx, d)
}

// oneShot runs fn with the command deadline applied.
func (o *rootOptions) oneShot(cmd *cobra.Command, fn func(ctx context.Context, d deps) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()
	return o.withApp(ctx, fn)
}

// live opens the device WebSocket, waits for it and runs fn.
func live(ctx context.Context, d deps, fn func() error) error {
	d.Session.Start()
	if err := d.Session.WaitOpen(ctx); err != nil {
		return err
	}
	return fn()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
