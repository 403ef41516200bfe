package event

import "time"

// unixNano converts an InputBackend-supplied monotonic nanosecond timestamp
// into a time.Time. InputBackend implementations supply their own clock
// source (spec.md §4.6); the core only needs ordering, not wall-clock
// accuracy, so this is a thin wrapper rather than a calibrated conversion.
func unixNano(ts int64) time.Time {
	return time.Unix(0, ts)
}
