package workflow

import (
	"fmt"
	"time"
)

// Boundary decides whether two windows that only touch at an endpoint conflict.
type Boundary string

const (
	// BoundaryInclusive treats touching windows as overlapping. This matches how the
	// portal has always booked equipment.
	BoundaryInclusive Boundary = "inclusive"
	// BoundaryHalfOpen treats windows as [start, end) so back-to-back loans do not conflict.
	BoundaryHalfOpen Boundary = "half_open"
)

// ParseBoundary accepts the configured policy name.
func ParseBoundary(raw string) (Boundary, error) {
	switch Boundary(raw) {
	case BoundaryInclusive, BoundaryHalfOpen:
		return Boundary(raw), nil
	case "":
		return BoundaryInclusive, nil
	default:
		return "", fmt.Errorf("unknown reservation boundary %q (want inclusive or half_open)", raw)
	}
}

// Window is a reservation interval.
type Window struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the window has a positive length.
func (w Window) Valid() bool {
	return w.End.After(w.Start)
}

// Overlaps reports whether existing counts against candidate under policy b.
//
// Inclusive: existing.Start in [S,E], or existing.End in [S,E], or existing contains
// the candidate. Half-open: existing.Start < E and existing.End > S.
func (b Boundary) Overlaps(existing, candidate Window) bool {
	s, e := existing.Start, existing.End
	S, E := candidate.Start, candidate.End

	if b == BoundaryHalfOpen {
		return s.Before(E) && e.After(S)
	}

	within := func(t time.Time) bool {
		return !t.Before(S) && !t.After(E)
	}
	if within(s) || within(e) {
		return true
	}
	return !s.After(S) && !e.Before(E)
}
