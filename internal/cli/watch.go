package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smartlamp/lamplink/internal/services"
)

var errGaveUp = errors.New("lamp unreachable, giving up")

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		persist bool
		types   []string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream live lamp updates until interrupted",
		Long: `Stream live lamp updates until interrupted.

The connection is retried automatically with linear backoff. When every retry
fails the command exits, unless --persist is set, in which case it starts over.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseEventTypes(types)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return opts.withApp(ctx, func(ctx context.Context, d deps) error {
				events := d.Bus.SubscribeAll(64)
				d.Session.Start()

				for {
					select {
					case <-ctx.Done():
						return nil
					case ev, ok := <-events:
						if !ok {
							return nil
						}
						if filter[ev.Type] {
							if err := printEvent(cmd.OutOrStdout(), ev, opts.jsonOutput); err != nil {
								return err
							}
						}

						if ev.Type != services.EventConnectivity || ev.Data["gave_up"] != true {
							continue
						}
						if !persist {
							return errGaveUp
						}
						select {
						case <-ctx.Done():
							return nil
						case <-time.After(d.Config.Reconnect.BaseDelay):
						}
						d.Session.Start()
					}
				}
			})
		},
	}

	cmd.Flags().BoolVar(&persist, "persist", false, "Start over after reconnection gives up")
	cmd.Flags().StringSliceVar(&types, "events", nil, "Only print these event types (default all)")
	return cmd
}

func parseEventTypes(names []string) (map[services.EventType]bool, error) {
	filter := make(map[services.EventType]bool, len(services.AllEventTypes))
	if len(names) == 0 {
		for _, t := range services.AllEventTypes {
			filter[t] = true
		}
		return filter, nil
	}

	for _, name := range names {
		known := false
		for _, t := range services.AllEventTypes {
			if string(t) == name {
				filter[t] = true
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown event type %q", name)
		}
	}
	return filter, nil
}

// printEvent writes one line per event: JSON, or "time type key=value ...".
func printEvent(w io.Writer, ev services.Event, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(ev)
	}

	keys := make([]string, 0, len(ev.Data))
	for k := range ev.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(ev.Time.Format("15:04:05"))
	b.WriteByte(' ')
	b.WriteString(string(ev.Type))
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, ev.Data[k])
	}
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}
