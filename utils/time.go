package utils

import "time"

// SecondsBetween returns num of seconds between two timestamps
func SecondsBetween(from time.Time, to time.Time) float64 {
	return to.Sub(from).Seconds()
}

// UnixMillis returns t as milliseconds since epoch, the unit used by every
// ledger timestamp.
func UnixMillis(t time.Time) int64 {
	return t.UnixMilli()
}
