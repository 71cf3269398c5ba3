package kekbit

import (
	"fmt"
	"time"
)

// TickUnit selects the time granularity shared by all components attached to
// a channel. It is fixed at creation time and never changes for the lifetime
// of the channel; the timeout and creation time in the metadata are both
// expressed in the channel's tick unit.
type TickUnit uint8

// Tick units ordered by granularity. The numeric values are the serialized
// ids and never change.
const (
	// Secs is a granularity of one second.
	Secs TickUnit = 0
	// Millis is a granularity of one thousandth of a second.
	Millis TickUnit = 3
	// Micros is a granularity of one millionth of a second.
	Micros TickUnit = 6
	// Nanos is a granularity of one billionth of a second.
	Nanos TickUnit = 9
)

// TickUnitFromID returns the tick unit with the given serialized id.
func TickUnitFromID(id byte) (TickUnit, error) {
	switch TickUnit(id) {
	case Secs, Millis, Micros, Nanos:
		return TickUnit(id), nil
	default:
		return 0, fmt.Errorf("unknown tick unit id %d", id)
	}
}

// ID returns the serialized id of the tick unit.
func (u TickUnit) ID() byte {
	return byte(u)
}

// Convert returns the number of tick units contained in d, truncated to
// 64 bits.
func (u TickUnit) Convert(d time.Duration) uint64 {
	switch u {
	case Micros:
		return uint64(d.Microseconds())
	case Millis:
		return uint64(d.Milliseconds())
	case Secs:
		return uint64(d / time.Second)
	default:
		return uint64(d.Nanoseconds())
	}
}

// NixTime returns the time elapsed since the Unix epoch, measured in this
// tick unit.
func (u TickUnit) NixTime() uint64 {
	return u.Convert(time.Duration(time.Now().UnixNano()))
}

// String returns a human readable name for the tick unit.
func (u TickUnit) String() string {
	switch u {
	case Nanos:
		return "nanos"
	case Micros:
		return "micros"
	case Millis:
		return "millis"
	case Secs:
		return "secs"
	default:
		return fmt.Sprintf("tick(%d)", byte(u))
	}
}
