// Package actions maps action kinds to side-effecting operations against the
// record store.
//
// Dispatch goes through a registry keyed by the closed rule.ActionKind set.
// Every handler returns a Result distinguishing "applied", "no-op" and
// "failed" so callers can render three distinct outcomes, and every mutation
// is set-to-value so a retried dispatch converges instead of compounding.
package actions

// Disposition classifies what a dispatched action did.
type Disposition string

const (
	// DispositionApplied means the action performed its side effect.
	DispositionApplied Disposition = "applied"

	// DispositionNoop means the action ran but had nothing to do
	// (value already set, insufficient data, dry run).
	DispositionNoop Disposition = "noop"

	// DispositionFailed means the action could not perform its side effect.
	DispositionFailed Disposition = "failed"
)

// Result is the structured outcome of one action dispatch.
type Result struct {
	Disposition Disposition `json:"disposition"`
	Message     string      `json:"message"`
}

func applied(msg string) Result { return Result{Disposition: DispositionApplied, Message: msg} }
func noop(msg string) Result    { return Result{Disposition: DispositionNoop, Message: msg} }
