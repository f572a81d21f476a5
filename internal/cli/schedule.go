package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/plantops/shopcore/internal/graph"
	"github.com/plantops/shopcore/internal/metrics"
)

// NewScheduleCommand creates the schedule command.
func NewScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Compute the critical-path schedule over the order graph",
		Long: `Compute earliest start, latest start, and slack for every order using
the Critical Path Method, and list the critical path. Fails when the
dependency relation contains a cycle.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(rootOpts, cmd)
		},
	}
	return cmd
}

func runSchedule(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	st, err := openStore(ctx, opts)
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := st.OrderSnapshot(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "reading order snapshot", err)
	}
	formatter.VerboseLog("computing schedule over %d orders", len(snap))

	started := time.Now()
	sched, err := graph.ComputeSchedule(snap)
	metrics.ScheduleDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.ScheduleComputations.WithLabelValues("error").Inc()
		var ge *graph.GraphError
		code := "SCHEDULE_FAILED"
		if errors.As(err, &ge) {
			code = string(ge.Code)
		}
		formatter.Error(code, err.Error(), nil)
		return NewExitError(ExitFailure, err.Error())
	}
	metrics.ScheduleComputations.WithLabelValues("ok").Inc()

	return formatter.SuccessText(renderSchedule(sched), sched)
}

func renderSchedule(sched *graph.Schedule) string {
	ids := make([]string, 0, len(sched.Entries))
	for id := range sched.Entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := sched.Entries[ids[i]], sched.Entries[ids[j]]
		if a.EarliestStart != b.EarliestStart {
			return a.EarliestStart < b.EarliestStart
		}
		return ids[i] < ids[j]
	})

	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %10s %10s %8s %s\n", "ORDER", "EARLIEST", "LATEST", "SLACK", "CRITICAL")
	for _, id := range ids {
		e := sched.Entries[id]
		mark := ""
		if e.Critical {
			mark = "*"
		}
		fmt.Fprintf(&b, "%-20s %10.1f %10.1f %8.1f %s\n", id, e.EarliestStart, e.LatestStart, e.Slack, mark)
	}
	fmt.Fprintf(&b, "\nhorizon: %.1fh\ncritical path: %s\n", sched.Horizon, strings.Join(sched.CriticalPath, " -> "))
	return b.String()
}
