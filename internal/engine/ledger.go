package engine

import (
	"context"
	"time"
)

// DebounceLedger records the last claim instant per (rule, definition) key
// and arbitrates concurrent firings with a compare-and-swap claim.
//
// ClaimDebounce atomically checks whether at least window has elapsed since
// the key's last claim. If so it records now as the new claim and returns
// true along with the previous claim time (nil when the key was unclaimed).
// Otherwise it returns false and leaves the ledger untouched.
//
// ReleaseDebounce hands a claim back after a failed action: if the key still
// holds claimedAt, the previous claim time is restored (or the entry removed
// when prev is nil). A key already overwritten by a newer claim is left
// alone.
type DebounceLedger interface {
	ClaimDebounce(ctx context.Context, key string, now time.Time, window time.Duration) (bool, *time.Time, error)
	ReleaseDebounce(ctx context.Context, key string, claimedAt time.Time, prev *time.Time) error
}
