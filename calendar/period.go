package calendar

// =============================================================================
// PERIOD - Inclusive date interval
// =============================================================================

// Period is the inclusive interval [Start, End]. Both endpoints are leave
// days.
type Period struct {
	Start Date
	End   Date
}

// Valid reports whether End is not before Start.
func (p Period) Valid() bool {
	return !p.End.Before(p.Start)
}

// Days returns the inclusive day count. It is zero or negative for an
// invalid period.
func (p Period) Days() int {
	return p.Start.DaysUntil(p.End) + 1
}

// Contains returns true if d is within [Start, End].
func (p Period) Contains(d Date) bool {
	return !d.Before(p.Start) && !d.After(p.End)
}

// Overlaps reports whether the two inclusive intervals share a day:
// p.Start <= other.End AND p.End >= other.Start.
func (p Period) Overlaps(other Period) bool {
	return !p.Start.After(other.End) && !p.End.Before(other.Start)
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
