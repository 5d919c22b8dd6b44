package cli

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smartlamp/lamplink/internal/lamp"
	"github.com/smartlamp/lamplink/internal/services"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var useLive bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the lamp's current status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.oneShot(cmd, func(ctx context.Context, d deps) error {
				var (
					snapshot services.StatusSnapshot
					err      error
				)
				if useLive {
					snapshot, err = liveStatus(ctx, d)
				} else {
					snapshot, err = d.Tracker.Refresh(ctx)
				}
				if err != nil {
					return err
				}

				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), snapshot.Status)
				}
				printStatus(cmd.OutOrStdout(), snapshot)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&useLive, "live", false, "Wait for a status push over the WebSocket instead of polling the API")
	return cmd
}

// liveStatus waits for the first status frame after the connection opens.
func liveStatus(ctx context.Context, d deps) (services.StatusSnapshot, error) {
	updates := d.Bus.Subscribe(services.EventLampStatus, 1)
	defer d.Bus.Unsubscribe(updates)

	err := live(ctx, d, func() error {
		select {
		case <-updates:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("waiting for status update: %w", ctx.Err())
		}
	})
	if err != nil {
		return services.StatusSnapshot{}, err
	}

	snapshot, _ := d.Tracker.Snapshot()
	return snapshot, nil
}

func printStatus(w io.Writer, snapshot services.StatusSnapshot) {
	s := snapshot.Status
	power := "off"
	if s.IsOn {
		power = "on"
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Power:\t%s\n", power)
	fmt.Fprintf(tw, "Brightness:\t%d (%d%%)\n", s.Brightness, s.BrightnessPercent())
	fmt.Fprintf(tw, "Battery:\t%d%%\n", s.BatteryLevel)
	fmt.Fprintf(tw, "WiFi:\t%d%%\n", s.WifiStrength)
	if !s.LastUpdated.IsZero() {
		fmt.Fprintf(tw, "Updated:\t%s\n", s.LastUpdated.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(tw, "Source:\t%s\n", snapshot.Source)
	if snapshot.Stale {
		fmt.Fprintf(tw, "Stale:\tyes\n")
	}
	_ = tw.Flush()
}

func newToggleCmd(opts *rootOptions) *cobra.Command {
	var useLive bool

	cmd := &cobra.Command{
		Use:       "toggle on|off",
		Short:     "Turn the lamp on or off",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parsePower(args[0])
			if err != nil {
				return err
			}

			return opts.oneShot(cmd, func(ctx context.Context, d deps) error {
				if useLive {
					err = live(ctx, d, func() error { return d.Session.Toggle(on) })
				} else {
					err = d.Client.Toggle(ctx, on)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Lamp turned %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&useLive, "live", false, "Send over the WebSocket instead of the HTTP API")
	return cmd
}

func parsePower(arg string) (bool, error) {
	switch strings.ToLower(arg) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid power state %q, want on or off", arg)
}

func newBrightnessCmd(opts *rootOptions) *cobra.Command {
	var useLive bool

	cmd := &cobra.Command{
		Use:   "brightness <0-255|0-100%>",
		Short: "Set the lamp brightness",
		Example: `  lampctl brightness 128
  lampctl brightness 40%`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			brightness, err := parseBrightness(args[0])
			if err != nil {
				return err
			}

			return opts.oneShot(cmd, func(ctx context.Context, d deps) error {
				if useLive {
					err = live(ctx, d, func() error { return d.Session.SetBrightness(brightness) })
				} else {
					err = d.Client.SetBrightness(ctx, brightness)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Brightness set to %d\n", brightness)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&useLive, "live", false, "Send over the WebSocket instead of the HTTP API")
	return cmd
}

// parseBrightness accepts a raw level or a percentage of MaxBrightness.
func parseBrightness(arg string) (int, error) {
	if pct, ok := strings.CutSuffix(arg, "%"); ok {
		p, err := strconv.ParseFloat(pct, 64)
		if err != nil || p < 0 || p > 100 {
			return 0, fmt.Errorf("invalid brightness percentage %q", arg)
		}
		return int(math.Round(p / 100 * lamp.MaxBrightness)), nil
	}

	b, err := strconv.Atoi(arg)
	if err != nil || b < 0 || b > lamp.MaxBrightness {
		return 0, fmt.Errorf("invalid brightness %q, want 0-%d", arg, lamp.MaxBrightness)
	}
	return b, nil
}

func newColorCmd(opts *rootOptions) *cobra.Command {
	var useLive bool

	cmd := &cobra.Command{
		Use:     "color <#RRGGBB>",
		Short:   "Set the lamp color",
		Example: `  lampctl color "#FFB800"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			color := strings.ToUpper(args[0])
			if !strings.HasPrefix(color, "#") {
				color = "#" + color
			}

			return opts.oneShot(cmd, func(ctx context.Context, d deps) error {
				var err error
				if useLive {
					err = live(ctx, d, func() error { return d.Session.SetColor(color) })
				} else {
					err = d.Client.SetColor(ctx, color)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Color set to %s\n", color)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&useLive, "live", false, "Send over the WebSocket instead of the HTTP API")
	return cmd
}

func newPresetCmd(opts *rootOptions) *cobra.Command {
	var useLive bool

	cmd := &cobra.Command{
		Use:   "preset [name]",
		Short: "Apply a lighting preset, or list presets when no name is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), services.Presets)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tBRIGHTNESS\tCOLOR")
				for _, p := range services.Presets {
					fmt.Fprintf(tw, "%s\t%d\t%s\n", p.Name, p.Brightness, p.Color)
				}
				return tw.Flush()
			}

			preset, ok := services.FindPreset(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", services.ErrUnknownPreset, args[0])
			}

			return opts.oneShot(cmd, func(ctx context.Context, d deps) error {
				var err error
				if useLive {
					err = live(ctx, d, func() error {
						_, err := d.Session.ApplyPreset(preset.Name)
						return err
					})
				} else {
					err = applyPresetHTTP(ctx, d.Client, preset)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied preset %s (brightness %d, color %s)\n",
					preset.Name, preset.Brightness, preset.Color)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&useLive, "live", false, "Send over the WebSocket instead of the HTTP API")
	return cmd
}

func applyPresetHTTP(ctx context.Context, client *lamp.Client, preset services.Preset) error {
	if err := client.SetBrightness(ctx, preset.Brightness); err != nil {
		return err
	}
	return client.SetColor(ctx, preset.Color)
}
