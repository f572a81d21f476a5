// Package engine implements the rule evaluation and debounced action engine.
//
// The engine evaluates enabled automation rules against an operational
// snapshot of the order set, consults the debounce ledger, and dispatches
// one action per due rule, writing an execution record for every firing.
//
// ARCHITECTURE:
//
// Caller-driven evaluation:
// The engine has no internal clock or scheduler. The host invokes
// EvaluatePass on its own timer, or TestRule on demand when an operator
// tests a single rule. Within one pass, rules are independent and evaluated
// in rule-ID order for determinism.
//
// Evaluation flow per rule:
// 1. Resolve the trigger kind's condition function (closed registry)
// 2. Evaluate the condition against the snapshot - pure, in-memory
// 3. Condition false: report "not triggered", write nothing
// 4. Condition true: claim the debounce window (compare-and-swap on the
//    ledger); claim refused: report "skipped", write nothing
// 5. Claim won: dispatch the action, then unconditionally append an
//    execution record (success or error); on success, write the rule's
//    bookkeeping (count+1, lastExecuted)
//
// CRITICAL PATTERNS:
//
// Debounce safety:
// The claim is a single conditional write against the ledger, never a read
// followed by a separate write. Two concurrent passes of the same rule race
// on the claim, and exactly one wins. A failed action hands its claim back
// (restoring the previous one) so a failure neither consumes the window nor
// erases an earlier success.
//
// Ledger keying:
// Claims are keyed by (rule ID, definition hash). Editing a rule's trigger
// or action starts a fresh debounce window; toggling enabled does not.
//
// Outcome legibility:
// Callers always learn which of four things happened - fired, not
// triggered, skipped (debounced), or error - so an operator testing a rule
// is never left wondering why nothing visible occurred.
package engine
