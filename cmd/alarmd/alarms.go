package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"alarmd/internal/alarm"
	"alarmd/internal/app"
	"alarmd/internal/orchestrator"
	"alarmd/internal/tzinfo"
)

// withApp opens the app for a one-shot command and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Prepare(ctx); err != nil {
		return err
	}
	return fn(ctx, a)
}

type addFlags struct {
	label    string
	at       string
	days     string
	date     string
	repeat   string
	timezone string
	device   string
	snooze   bool
}

func newAddCmd() *cobra.Command {
	var f addFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an alarm",
		Example: `  alarmd add --time 07:30 --days weekdays --label Work
  alarmd add --time 07:30 --date 2026-02-26 --tz Asia/Kolkata
  alarmd add --time 09:00 --date 2026-01-31 --repeat monthly --label Rent`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := f.draft()
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				out, err := a.Orchestrator().Create(ctx, d)
				if err != nil {
					return err
				}
				printOutcome(cmd.OutOrStdout(), a, out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&f.label, "label", "l", "", "alarm label")
	cmd.Flags().StringVarP(&f.at, "time", "t", "", "wall-clock time HH:MM (required)")
	cmd.Flags().StringVarP(&f.days, "days", "d", "", `repeat days: "mon,wed", "2,4", weekdays, weekends, daily`)
	cmd.Flags().StringVar(&f.date, "date", "", "target date YYYY-MM-DD (makes a future alarm)")
	cmd.Flags().StringVar(&f.repeat, "repeat", "", "future repeat: none, weekly, monthly, yearly")
	cmd.Flags().StringVar(&f.timezone, "tz", "", "IANA timezone of a future alarm")
	cmd.Flags().BoolVar(&f.snooze, "snooze", true, "allow snoozing")
	_ = cmd.MarkFlagRequired("time")
	return cmd
}

func (f addFlags) draft() (alarm.Draft, error) {
	h, m, err := parseClock(f.at)
	if err != nil {
		return alarm.Draft{}, err
	}
	d := alarm.Draft{Label: f.label, Hour: h, Minute: m, Snooze: f.snooze, Kind: alarm.KindDaily}
	if strings.TrimSpace(f.date) == "" {
		if f.repeat != "" || f.timezone != "" {
			return alarm.Draft{}, fmt.Errorf("--repeat and --tz need --date")
		}
		d.RepeatDays, err = alarm.ParseDays(f.days)
		return d, err
	}
	if f.days != "" {
		return alarm.Draft{}, fmt.Errorf("--days cannot be combined with --date")
	}
	date, err := alarm.ParseDate(f.date)
	if err != nil {
		return alarm.Draft{}, err
	}
	rep, err := alarm.ParseRepeat(f.repeat)
	if err != nil {
		return alarm.Draft{}, err
	}
	d.Kind = alarm.KindFuture
	d.TargetDate = &date
	d.FutureRepeat = rep
	d.Timezone = f.timezone
	return d, nil
}

// parseClock parses "7:30" or "07:30".
func parseClock(s string) (hour, minute int, err error) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	hour, err = strconv.Atoi(hs)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(ms)
	if err != nil || len(ms) != 2 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List alarms",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				rs, err := a.Orchestrator().List(ctx)
				if err != nil {
					return err
				}
				printList(cmd.OutOrStdout(), rs, a.Device(), time.Now())
				return nil
			})
		},
	}
}

func printList(w io.Writer, rs []*alarm.Record, device *time.Location, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tLABEL\tREPEAT\tENABLED\tNEXT")
	for _, r := range rs {
		next := "-"
		if r.Enabled {
			next = r.FiresIn(now, device)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\t%s\n",
			shortID(r.ID), tzinfo.Preview(r, device, now), r.Label, r.RepeatDescription(), r.Enabled, next)
	}
	_ = tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// resolveID accepts a full id or a unique prefix.
func resolveID(ctx context.Context, a *app.App, arg string) (string, error) {
	if _, err := a.Orchestrator().Get(ctx, arg); err == nil {
		return arg, nil
	}
	rs, err := a.Orchestrator().List(ctx)
	if err != nil {
		return "", err
	}
	var match string
	for _, r := range rs {
		if strings.HasPrefix(r.ID, arg) {
			if match != "" {
				return "", fmt.Errorf("ambiguous id prefix %q", arg)
			}
			match = r.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", orchestrator.ErrNotFound, arg)
	}
	return match, nil
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one alarm with its registrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				id, err := resolveID(ctx, a, args[0])
				if err != nil {
					return err
				}
				r, err := a.Orchestrator().Get(ctx, id)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				now := time.Now()
				fmt.Fprintf(w, "id:       %s\n", r.ID)
				fmt.Fprintf(w, "label:    %s\n", r.Label)
				fmt.Fprintf(w, "time:     %s\n", tzinfo.Preview(r, a.Device(), now))
				fmt.Fprintf(w, "repeat:   %s\n", r.RepeatDescription())
				fmt.Fprintf(w, "enabled:  %v\n", r.Enabled)
				if r.Timezone != "" {
					if info, err := tzinfo.ResolveAt(r.Timezone, now); err == nil {
						fmt.Fprintf(w, "zone:     %s, %s (%s)\n", info.City, info.Region, info.Offset)
					}
				}
				if next, ok := r.NextFireDate(now, a.Device()); ok && r.Enabled {
					fmt.Fprintf(w, "next:     %s (%s)\n", next.In(a.Device()).Format(time.RFC1123), r.FiresIn(now, a.Device()))
				}
				for _, req := range a.Queue().Requests() {
					if req.Payload.AlarmID == r.ID {
						fmt.Fprintf(w, "request:  %s slot=%d %s\n", req.ID, req.Payload.Slot, req.Spec)
					}
				}
				return nil
			})
		},
	}
}

func newToggleCmd(name string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <id>",
		Short: strings.ToUpper(name[:1]) + name[1:] + " an alarm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				id, err := resolveID(ctx, a, args[0])
				if err != nil {
					return err
				}
				out, err := a.Orchestrator().Toggle(ctx, id, enabled)
				if err != nil {
					return err
				}
				printOutcome(cmd.OutOrStdout(), a, out)
				return nil
			})
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete an alarm",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				id, err := resolveID(ctx, a, args[0])
				if err != nil {
					return err
				}
				if err := a.Orchestrator().Delete(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
				return nil
			})
		},
	}
}

func newSnoozeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snooze <id>",
		Short: "Re-fire an alarm after the configured snooze length",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				id, err := resolveID(ctx, a, args[0])
				if err != nil {
					return err
				}
				if err := a.Orchestrator().Snooze(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "snoozed %s for %d minutes\n", shortID(id), a.Config().Scheduler.SnoozeMinutes)
				return nil
			})
		},
	}
}

func newPreviewCmd() *cobra.Command {
	var f addFlags
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show how an alarm would be expanded without saving it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := f.draft()
			if err != nil {
				return err
			}
			r, err := alarm.New(d, time.Now())
			if err != nil {
				return err
			}
			device := time.Local
			if f.device != "" {
				if device, err = time.LoadLocation(f.device); err != nil {
					return err
				}
			}
			printPreview(cmd.OutOrStdout(), r, device, time.Now())
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.at, "time", "t", "", "wall-clock time HH:MM (required)")
	cmd.Flags().StringVarP(&f.days, "days", "d", "", "repeat days")
	cmd.Flags().StringVar(&f.date, "date", "", "target date YYYY-MM-DD")
	cmd.Flags().StringVar(&f.repeat, "repeat", "", "future repeat")
	cmd.Flags().StringVar(&f.timezone, "tz", "", "IANA timezone of a future alarm")
	cmd.Flags().StringVar(&f.device, "device-tz", "", "device timezone (default: host)")
	_ = cmd.MarkFlagRequired("time")
	return cmd
}

func printOutcome(w io.Writer, a *app.App, out orchestrator.Outcome) {
	r := out.Record
	if r != nil {
		fmt.Fprintf(w, "%s  %s  %s  enabled=%v\n", shortID(r.ID), tzinfo.Preview(r, a.Device(), time.Now()), r.RepeatDescription(), r.Enabled)
	}
	fmt.Fprintf(w, "backend=%s registered=%d failed=%d", out.Report.Backend, out.Report.Registered, out.Report.Failed)
	if out.Capacity.Limit > 0 {
		fmt.Fprintf(w, " pending=%d/%d", out.Capacity.Pending, out.Capacity.Limit)
	}
	fmt.Fprintln(w)
	for _, warn := range out.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", warn)
	}
}
