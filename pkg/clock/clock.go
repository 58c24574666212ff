// Package clock exposes the time sources a Tapedeck proxy stamps recorded
// exchanges with. Every timestamp a clock hands out is in UTC.
//
// Embedders that need reproducible histories, such as golden-file tests of
// a recorded session, pass a VirtualClock to the forwarder and replay
// engine and advance it by hand between requests.
package clock

import (
	"time"

	internalclock "github.com/SmitUplenchwar2687/Tapedeck/internal/clock"
)

// Clock supplies entry timestamps and upstream call durations.
type Clock = internalclock.Clock

// RealClock reports wall-clock time converted to UTC.
type RealClock = internalclock.RealClock

// VirtualClock only moves when told to. It never goes backwards: Advance
// with a negative duration or Set to an earlier instant panics.
type VirtualClock = internalclock.VirtualClock

// NewRealClock creates the clock a serving proxy uses.
func NewRealClock() *RealClock {
	return internalclock.NewRealClock()
}

// NewVirtualClock creates a clock frozen at start, converted to UTC.
func NewVirtualClock(start time.Time) *VirtualClock {
	return internalclock.NewVirtualClock(start)
}
