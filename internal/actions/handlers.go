package actions

import (
	"context"
	"fmt"
	"sort"

	"github.com/plantops/shopcore/internal/order"
	"github.com/plantops/shopcore/internal/store"
)

// minLearningSamples is the smallest sample count auto_learning_update will
// derive a standard from.
const minLearningSamples = 3

// sendNotification writes a leveled message to the audit log. Bursts beyond
// the per-severity rate limit degrade to a no-op rather than flooding it.
func sendNotification(ctx context.Context, d *Dispatcher, params map[string]any) (Result, error) {
	message, err := strParam(params, "message")
	if err != nil {
		return Result{}, err
	}
	severity := optStrParam(params, "severity", "info")

	if !d.notify.Allow(severity) {
		return noop(fmt.Sprintf("notification rate limited (severity=%s)", severity)), nil
	}

	entry := store.LogEntry{
		ID:        d.ids.NewID(),
		Level:     severity,
		Message:   message,
		CreatedAt: d.clock.Now(),
	}
	if err := d.store.AppendLog(ctx, entry); err != nil {
		return Result{}, fmt.Errorf("write notification: %w", err)
	}
	return applied(fmt.Sprintf("notification sent (severity=%s)", severity)), nil
}

// createLog writes an audit-only entry.
func createLog(ctx context.Context, d *Dispatcher, params map[string]any) (Result, error) {
	message, err := strParam(params, "message")
	if err != nil {
		return Result{}, err
	}
	entry := store.LogEntry{
		ID:        d.ids.NewID(),
		Level:     "audit",
		Message:   message,
		CreatedAt: d.clock.Now(),
	}
	if err := d.store.AppendLog(ctx, entry); err != nil {
		return Result{}, fmt.Errorf("write log entry: %w", err)
	}
	return applied("log entry written"), nil
}

// updateStatus sets an order's lifecycle stage. Set-to-value: re-applying the
// same status is a no-op.
func updateStatus(ctx context.Context, d *Dispatcher, params map[string]any) (Result, error) {
	orderID, err := strParam(params, "orderId")
	if err != nil {
		return Result{}, err
	}
	statusStr, err := strParam(params, "status")
	if err != nil {
		return Result{}, err
	}
	status := order.Status(statusStr)

	o, err := d.store.GetOrder(ctx, orderID)
	if err != nil {
		return Result{}, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if o.Status == status {
		return noop(fmt.Sprintf("order %s already %s", orderID, status)), nil
	}
	if err := d.store.UpdateOrderStatus(ctx, orderID, status); err != nil {
		return Result{}, fmt.Errorf("update status: %w", err)
	}
	return applied(fmt.Sprintf("order %s set to %s", orderID, status)), nil
}

// assignOperator sets an order's operator. Set-to-value.
func assignOperator(ctx context.Context, d *Dispatcher, params map[string]any) (Result, error) {
	orderID, err := strParam(params, "orderId")
	if err != nil {
		return Result{}, err
	}
	operatorName, err := strParam(params, "operatorName")
	if err != nil {
		return Result{}, err
	}

	o, err := d.store.GetOrder(ctx, orderID)
	if err != nil {
		return Result{}, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if o.OperatorName == operatorName {
		return noop(fmt.Sprintf("order %s already assigned to %s", orderID, operatorName)), nil
	}
	if err := d.store.AssignOperator(ctx, orderID, operatorName); err != nil {
		return Result{}, fmt.Errorf("assign operator: %w", err)
	}
	return applied(fmt.Sprintf("order %s assigned to %s", orderID, operatorName)), nil
}

// rescheduleOrder sets an order's planned date. Set-to-value.
func rescheduleOrder(ctx context.Context, d *Dispatcher, params map[string]any) (Result, error) {
	orderID, err := strParam(params, "orderId")
	if err != nil {
		return Result{}, err
	}
	planned, err := timeParam(params, "plannedDate")
	if err != nil {
		return Result{}, err
	}

	o, err := d.store.GetOrder(ctx, orderID)
	if err != nil {
		return Result{}, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if o.PlannedDate != nil && o.PlannedDate.Equal(planned) {
		return noop(fmt.Sprintf("order %s already planned for %s", orderID, planned.Format("2006-01-02"))), nil
	}
	if err := d.store.RescheduleOrder(ctx, orderID, planned); err != nil {
		return Result{}, fmt.Errorf("reschedule order: %w", err)
	}
	return applied(fmt.Sprintf("order %s rescheduled to %s", orderID, planned.Format("2006-01-02"))), nil
}

// inspectionReminder writes a reminder for a station to the audit log.
func inspectionReminder(ctx context.Context, d *Dispatcher, params map[string]any) (Result, error) {
	station, err := strParam(params, "station")
	if err != nil {
		return Result{}, err
	}
	message := optStrParam(params, "message", fmt.Sprintf("inspection due for station %s", station))

	entry := store.LogEntry{
		ID:        d.ids.NewID(),
		Level:     "warning",
		Message:   message,
		CreatedAt: d.clock.Now(),
	}
	if err := d.store.AppendLog(ctx, entry); err != nil {
		return Result{}, fmt.Errorf("write inspection reminder: %w", err)
	}
	return applied(fmt.Sprintf("inspection reminder for station %s", station)), nil
}

// autoLearningUpdate recomputes per-machine standard hours from completed
// work. With fewer than minLearningSamples actuals for a machine, nothing is
// learned. The dryRun flag computes and reports without persisting.
//
// The estimate is a trimmed mean of actual hours: with five or more samples
// the extremes are dropped so a single outlier run cannot skew the standard.
func autoLearningUpdate(ctx context.Context, d *Dispatcher, params map[string]any) (Result, error) {
	machineFilter := optStrParam(params, "machine", "")
	dryRun := optBoolParam(params, "dryRun")

	snap, err := d.store.OrderSnapshot(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read snapshot: %w", err)
	}

	samples := make(map[string][]float64)
	for _, o := range snap {
		if o.Machine == "" || o.ActualHours <= 0 {
			continue
		}
		if machineFilter != "" && o.Machine != machineFilter {
			continue
		}
		samples[o.Machine] = append(samples[o.Machine], o.ActualHours)
	}

	machines := make([]string, 0, len(samples))
	for m := range samples {
		machines = append(machines, m)
	}
	sort.Strings(machines)

	updated := 0
	for _, machine := range machines {
		hours := samples[machine]
		if len(hours) < minLearningSamples {
			continue
		}
		standard := trimmedMean(hours)
		if dryRun {
			updated++
			continue
		}
		err := d.store.UpsertStandard(ctx, store.Standard{
			Machine:     machine,
			Hours:       standard,
			SampleCount: len(hours),
			UpdatedAt:   d.clock.Now(),
		})
		if err != nil {
			return Result{}, fmt.Errorf("update standard for %s: %w", machine, err)
		}
		updated++
	}

	if updated == 0 {
		return noop("no machine has enough samples to learn from"), nil
	}
	if dryRun {
		return noop(fmt.Sprintf("dry run: %d standard(s) would be updated", updated)), nil
	}
	return applied(fmt.Sprintf("%d standard(s) updated", updated)), nil
}

// trimmedMean averages the samples, dropping the minimum and maximum when
// there are at least five.
func trimmedMean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	if len(sorted) >= 5 {
		sorted = sorted[1 : len(sorted)-1]
	}
	var sum float64
	for _, s := range sorted {
		sum += s
	}
	return sum / float64(len(sorted))
}
