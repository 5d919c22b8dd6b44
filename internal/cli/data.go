package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smartlamp/lamplink/internal/lamp"
)

func newSensorsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sensors",
		Short: "Show ambient light readings and energy usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.oneShot(cmd, func(ctx context.Context, d deps) error {
				data, err := d.Client.FetchSensorData(ctx)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), data)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "HOUR\tLIGHT")
				for _, r := range data.LightReadings {
					fmt.Fprintf(tw, "%02d:00\t%.1f\n", r.Hour, r.Value)
				}
				fmt.Fprintln(tw)
				fmt.Fprintln(tw, "DAY\tENERGY (kWh)")
				for _, r := range data.EnergyUsage {
					fmt.Fprintf(tw, "%s\t%.2f\n", r.Day, r.Usage)
				}
				fmt.Fprintf(tw, "Total\t%.2f\n", data.TotalEnergy())
				return tw.Flush()
			})
		},
	}
}

type scheduleFlags struct {
	name       string
	at         string
	days       []string
	brightness int
	disabled   bool
}

func (f *scheduleFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Schedule name")
	cmd.Flags().StringVar(&f.at, "time", "", "Time of day as HH:MM")
	cmd.Flags().StringSliceVar(&f.days, "days", nil, "Days to run, e.g. Mon,Wed,Fri")
	cmd.Flags().IntVar(&f.brightness, "brightness", lamp.MaxBrightness, "Brightness to set (0-255)")
	cmd.Flags().BoolVar(&f.disabled, "disabled", false, "Store the schedule without enabling it")
}

// apply copies the flags the user actually set onto s.
func (f *scheduleFlags) apply(cmd *cobra.Command, s *lamp.Schedule) {
	changed := cmd.Flags().Changed
	if changed("name") {
		s.Name = f.name
	}
	if changed("time") {
		s.Time = f.at
	}
	if changed("days") {
		s.Days = normalizeDays(f.days)
	}
	if changed("brightness") {
		s.Brightness = f.brightness
	}
	if changed("disabled") {
		s.Enabled = !f.disabled
	}
}

// normalizeDays accepts any casing of the three letter day names.
func normalizeDays(days []string) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		d = strings.TrimSpace(d)
		for _, w := range lamp.Weekdays {
			if strings.EqualFold(d, w) {
				d = w
				break
			}
		}
		out = append(out, d)
	}
	return out
}

func newScheduleCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedule",
		Aliases: []string{"schedules"},
		Short:   "Manage lamp schedules",
	}

	cmd.AddCommand(
		newScheduleListCmd(opts),
		newScheduleAddCmd(opts),
		newScheduleUpdateCmd(opts),
		newScheduleRemoveCmd(opts),
	)
	return cmd
}

func newScheduleListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List schedules",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.oneShot(cmd, func(ctx context.Context, d deps) error {
				schedules, err := d.Client.ListSchedules(ctx)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), schedules)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tTIME\tDAYS\tBRIGHTNESS\tENABLED")
				for _, s := range schedules {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%t\n",
						s.ID, s.Name, s.Time, strings.Join(s.Days, ","), s.Brightness, s.Enabled)
				}
				return tw.Flush()
			})
		},
	}
}

func newScheduleAddCmd(opts *rootOptions) *cobra.Command {
	flags := &scheduleFlags{}

	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Create a schedule",
		Example: `  lampctl schedule add --name "Wake up" --time 07:00 --days Mon,Tue,Wed,Thu,Fri --brightness 200`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			schedule := lamp.Schedule{
				Name:       flags.name,
				Time:       flags.at,
				Days:       normalizeDays(flags.days),
				Brightness: flags.brightness,
				Enabled:    !flags.disabled,
			}

			return opts.oneShot(cmd, func(ctx context.Context, d deps) error {
				created, err := d.Client.CreateSchedule(ctx, schedule)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), created)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created schedule %s (%s)\n", created.ID, created.Name)
				return nil
			})
		},
	}

	flags.register(cmd)
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("time")
	_ = cmd.MarkFlagRequired("days")
	return cmd
}

func newScheduleUpdateCmd(opts *rootOptions) *cobra.Command {
	flags := &scheduleFlags{}

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of an existing schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.oneShot(cmd, func(ctx context.Context, d deps) error {
				schedules, err := d.Client.ListSchedules(ctx)
				if err != nil {
					return err
				}

				var current *lamp.Schedule
				for i := range schedules {
					if schedules[i].ID == args[0] {
						current = &schedules[i]
						break
					}
				}
				if current == nil {
					return fmt.Errorf("schedule %s not found", args[0])
				}

				flags.apply(cmd, current)
				updated, err := d.Client.UpdateSchedule(ctx, *current)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), updated)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated schedule %s\n", updated.ID)
				return nil
			})
		},
	}

	flags.register(cmd)
	return cmd
}

func newScheduleRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a schedule",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.oneShot(cmd, func(ctx context.Context, d deps) error {
				if err := d.Client.DeleteSchedule(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted schedule %s\n", args[0])
				return nil
			})
		},
	}
}
