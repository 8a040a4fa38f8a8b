// Package progress exposes the time source used by every progress- and
// ETA-tracking code path (the job store's elapsed-time heuristics, the
// encoder orchestrator's stderr monitor) so tests can substitute a mock
// clock instead of depending on the wall clock.
package progress

import "github.com/benbjohnson/clock"

var Clock = clock.New()
