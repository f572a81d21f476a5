package engine

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts wall-clock time so evaluation is testable with a fixed
// instant. All rule timing (delay detection, overdue inspections, debounce
// windows) derives from a single Now() taken at the top of a pass.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator mints identifiers for execution records.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator mints random UUIDv4 identifiers.
type UUIDGenerator struct{}

// NewID returns a fresh UUIDv4 string.
func (UUIDGenerator) NewID() string { return uuid.NewString() }
