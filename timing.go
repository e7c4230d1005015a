// FILE: secureconfig/timing.go
package secureconfig

import "time"

// Core timing constants for production use.
// These define the fundamental timing behavior of the watch path.
const (
	// DefaultDebounce coalesces rapid overlay-file edits into one reload
	DefaultDebounce = 250 * time.Millisecond

	// DefaultReloadTimeout caps the duration of a single reload operation
	DefaultReloadTimeout = 5 * time.Second
)

// DefaultJournalCapacity bounds the change journal when no explicit
// capacity is configured.
const DefaultJournalCapacity = 100
