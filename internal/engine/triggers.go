package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/plantops/shopcore/internal/rule"
)

// TriggerFunc evaluates one trigger kind's condition against a snapshot.
// It returns whether the condition holds and a message explaining the
// verdict either way. An error means the condition payload was malformed;
// schema validation at the write boundary should make that unreachable for
// stored rules.
type TriggerFunc func(snap *Snapshot, conds map[string]any, now time.Time) (bool, string, error)

// triggerRegistry is the closed set of supported trigger kinds. Rules
// referencing a kind outside this map are rejected, never silently skipped.
var triggerRegistry = map[rule.TriggerKind]TriggerFunc{
	rule.TriggerCapacityShortage:  evalCapacityShortage,
	rule.TriggerLowEfficiency:     evalLowEfficiency,
	rule.TriggerOrderDelay:        evalOrderDelay,
	rule.TriggerMissingOperator:   evalMissingOperator,
	rule.TriggerDependencyBlocked: evalDependencyBlocked,
	rule.TriggerInspectionOverdue: evalInspectionOverdue,
	rule.TriggerStandardDeviation: evalStandardDeviation,
}

// evalCapacityShortage fires when total demand exceeds total capacity by
// more than the configured threshold in hours.
func evalCapacityShortage(snap *Snapshot, conds map[string]any, _ time.Time) (bool, string, error) {
	threshold, err := floatCond(conds, "threshold")
	if err != nil {
		return false, "", err
	}
	demand := snap.DemandHours()
	shortage := demand - snap.CapacityHours
	if shortage > threshold {
		return true, fmt.Sprintf("demand %.1fh exceeds capacity %.1fh by %.1fh (threshold %.1fh)",
			demand, snap.CapacityHours, shortage, threshold), nil
	}
	return false, fmt.Sprintf("shortage %.1fh within threshold %.1fh", shortage, threshold), nil
}

// evalLowEfficiency fires when the mean actual/planned completion ratio
// across finished work drops below threshold percent.
func evalLowEfficiency(snap *Snapshot, conds map[string]any, _ time.Time) (bool, string, error) {
	threshold, err := floatCond(conds, "threshold")
	if err != nil {
		return false, "", err
	}
	var sum float64
	var n int
	for _, o := range snap.Orders {
		if o.ActualHours > 0 && o.EstimatedHours > 0 {
			sum += o.ActualHours / o.EstimatedHours
			n++
		}
	}
	if n == 0 {
		return false, "no orders with both actual and planned hours", nil
	}
	avg := sum / float64(n)
	if avg < threshold/100 {
		return true, fmt.Sprintf("average completion ratio %.2f below %.2f (%d samples)",
			avg, threshold/100, n), nil
	}
	return false, fmt.Sprintf("average completion ratio %.2f at or above %.2f", avg, threshold/100), nil
}

// evalOrderDelay fires when enough non-terminal orders have a planned date
// in the past. "Past" is strict wall-clock comparison against the pass
// instant; any grace period is applied by the engine's delayGrace setting.
func evalOrderDelay(snap *Snapshot, conds map[string]any, now time.Time) (bool, string, error) {
	minDelayed, err := intCond(conds, "minDelayedOrders")
	if err != nil {
		return false, "", err
	}
	var delayed []string
	for id, o := range snap.Orders {
		if o.Status.Terminal() || o.PlannedDate == nil {
			continue
		}
		if o.PlannedDate.Before(now) {
			delayed = append(delayed, id)
		}
	}
	sort.Strings(delayed)
	if len(delayed) >= minDelayed {
		return true, fmt.Sprintf("%d delayed orders (minimum %d): %v", len(delayed), minDelayed, delayed), nil
	}
	return false, fmt.Sprintf("%d delayed orders, below minimum %d", len(delayed), minDelayed), nil
}

// evalMissingOperator fires when enough machines carry active work but have
// no operator assigned on any of it.
func evalMissingOperator(snap *Snapshot, conds map[string]any, _ time.Time) (bool, string, error) {
	threshold, err := intCond(conds, "threshold")
	if err != nil {
		return false, "", err
	}
	staffed := make(map[string]bool)
	for _, o := range snap.Orders {
		if o.Status.Terminal() || o.Machine == "" {
			continue
		}
		if o.OperatorName != "" {
			staffed[o.Machine] = true
		} else if _, seen := staffed[o.Machine]; !seen {
			staffed[o.Machine] = false
		}
	}
	var unstaffed []string
	for machine, ok := range staffed {
		if !ok {
			unstaffed = append(unstaffed, machine)
		}
	}
	sort.Strings(unstaffed)
	if len(unstaffed) >= threshold {
		return true, fmt.Sprintf("%d machines without operator (threshold %d): %v",
			len(unstaffed), threshold, unstaffed), nil
	}
	return false, fmt.Sprintf("%d machines without operator, below threshold %d", len(unstaffed), threshold), nil
}

// evalDependencyBlocked fires when enough non-terminal orders are blocked by
// dependencies that have not shipped. Dangling dependency IDs count as
// blocking.
func evalDependencyBlocked(snap *Snapshot, conds map[string]any, _ time.Time) (bool, string, error) {
	threshold, err := intCond(conds, "threshold")
	if err != nil {
		return false, "", err
	}
	var blocked []string
	for id, o := range snap.Orders {
		if snap.Orders.Blocked(o) {
			blocked = append(blocked, id)
		}
	}
	sort.Strings(blocked)
	if len(blocked) >= threshold {
		return true, fmt.Sprintf("%d blocked orders (threshold %d): %v", len(blocked), threshold, blocked), nil
	}
	return false, fmt.Sprintf("%d blocked orders, below threshold %d", len(blocked), threshold), nil
}

// evalInspectionOverdue fires when any station's last inspection is older
// than daysOverdue. A station filter restricts the check to one station; a
// filtered station with no inspection record at all counts as overdue.
func evalInspectionOverdue(snap *Snapshot, conds map[string]any, now time.Time) (bool, string, error) {
	days, err := floatCond(conds, "daysOverdue")
	if err != nil {
		return false, "", err
	}
	station, _ := conds["station"].(string)
	limit := time.Duration(days * 24 * float64(time.Hour))

	var overdue []string
	found := false
	for _, insp := range snap.Inspections {
		if station != "" && insp.Station != station {
			continue
		}
		found = true
		if now.Sub(insp.LastDone) > limit {
			overdue = append(overdue, insp.Station)
		}
	}
	if station != "" && !found {
		// never inspected
		return true, fmt.Sprintf("station %s has no inspection on record", station), nil
	}
	sort.Strings(overdue)
	if len(overdue) > 0 {
		return true, fmt.Sprintf("%d stations overdue past %.1f days: %v", len(overdue), days, overdue), nil
	}
	return false, fmt.Sprintf("no stations overdue past %.1f days", days), nil
}

// evalStandardDeviation fires when actual durations deviate from the
// per-machine standard by at least minDeviation percent, given enough
// samples. The learned standard is used where one exists, falling back to
// the order's own estimate.
func evalStandardDeviation(snap *Snapshot, conds map[string]any, _ time.Time) (bool, string, error) {
	minSamples, err := intCond(conds, "minSamples")
	if err != nil {
		return false, "", err
	}
	minDeviation, err := floatCond(conds, "minDeviation")
	if err != nil {
		return false, "", err
	}
	var sum float64
	var n int
	for _, o := range snap.Orders {
		if o.ActualHours <= 0 {
			continue
		}
		standard := o.EstimatedHours
		if std, ok := snap.Standards[o.Machine]; ok && std.Hours > 0 {
			standard = std.Hours
		}
		if standard <= 0 {
			continue
		}
		sum += math.Abs(o.ActualHours-standard) / standard * 100
		n++
	}
	if n < minSamples {
		return false, fmt.Sprintf("%d samples, below minimum %d", n, minSamples), nil
	}
	avg := sum / float64(n)
	if avg >= minDeviation {
		return true, fmt.Sprintf("mean deviation %.1f%% at or above %.1f%% (%d samples)", avg, minDeviation, n), nil
	}
	return false, fmt.Sprintf("mean deviation %.1f%% below %.1f%%", avg, minDeviation), nil
}

func floatCond(conds map[string]any, key string) (float64, error) {
	v, ok := conds[key]
	if !ok {
		return 0, fmt.Errorf("condition %q missing", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("condition %q must be a number, got %T", key, v)
}

func intCond(conds map[string]any, key string) (int, error) {
	f, err := floatCond(conds, key)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("condition %q must be an integer", key)
	}
	return int(f), nil
}
