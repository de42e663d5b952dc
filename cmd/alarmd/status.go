package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"alarmd/internal/alarm"
	"alarmd/internal/app"
	"alarmd/internal/schedule"
	"alarmd/internal/tzinfo"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backend, capacity and alarm counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				rs, err := a.Orchestrator().List(ctx)
				if err != nil {
					return err
				}
				enabled := 0
				for _, r := range rs {
					if r.Enabled {
						enabled++
					}
				}
				w := cmd.OutOrStdout()
				cfg := a.Config()
				fmt.Fprintf(w, "backend:   %s (configured %s)\n", a.Orchestrator().Backend().Name(), cfg.Scheduler.Backend)
				if info, err := tzinfo.Resolve(a.Device().String()); err == nil {
					fmt.Fprintf(w, "timezone:  %s %s\n", info.Label(), info.Abbreviation)
				} else {
					fmt.Fprintf(w, "timezone:  %s\n", a.Device())
				}
				fmt.Fprintf(w, "storage:   %s %s\n", cfg.Storage.Driver, cfg.Storage.Path)
				fmt.Fprintf(w, "alarms:    %s total, %s enabled\n", humanize.Comma(int64(len(rs))), humanize.Comma(int64(enabled)))

				c := a.Orchestrator().Capacity(ctx)
				if c.Limit > 0 {
					near := ""
					if c.NearCap {
						near = " (near capacity)"
					}
					fmt.Fprintf(w, "pending:   %d / %d%s\n", c.Pending, c.Limit, near)
				} else {
					fmt.Fprintf(w, "pending:   uncapped\n")
				}
				if reqs := a.Queue().Requests(); len(reqs) > 0 {
					next := reqs[0]
					fmt.Fprintf(w, "next:      %s (%s)\n", next.FireAt.In(a.Device()).Format(time.RFC1123), humanize.Time(next.FireAt))
				}
				return nil
			})
		},
	}
}

func printPreview(w io.Writer, r *alarm.Record, device *time.Location, now time.Time) {
	specs := schedule.Expander{Device: device}.Expand(r)
	fmt.Fprintf(w, "%s  %s\n", tzinfo.Preview(r, device, now), r.RepeatDescription())
	for i, spec := range specs {
		line := fmt.Sprintf("  slot %d  %s  %s", i, schedule.SlotID(r.ScheduleSeed, i), spec)
		if next, ok := spec.Next(now, device); ok {
			line += "  next " + next.In(device).Format("Mon 2006-01-02 15:04 MST")
		}
		fmt.Fprintln(w, line)
	}
	if len(specs) == 0 {
		fmt.Fprintln(w, "  (no registrations)")
	}
}
