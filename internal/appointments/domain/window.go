package domain

import "time"

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the window is non-empty.
func (w Window) Valid() bool {
	return w.Start.Before(w.End)
}

// Overlaps reports whether w and other share at least one instant.
func (w Window) Overlaps(other Window) bool {
	return Overlaps(w.Start, w.End, other.Start, other.End)
}

// Overlaps is the half-open intersection test used by every availability
// check: windows that only touch at an endpoint do not overlap.
func Overlaps(existingStart, existingEnd, queryStart, queryEnd time.Time) bool {
	return existingStart.Before(queryEnd) && existingEnd.After(queryStart)
}
