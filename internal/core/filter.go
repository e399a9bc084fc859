package core

import "time"

type (
	// ListFilter narrows an owner's transactions by kind and by a time
	// window. The window is either relative (Days) or a custom inclusive
	// range (Custom with Start and End).
	ListFilter struct {
		Kind   Kind // empty means all kinds
		Days   int
		Custom bool
		Start  time.Time
		End    time.Time
	}

	// DateRange is a resolved window. Zero bounds are open.
	DateRange struct {
		After time.Time // exclusive lower bound
		From  time.Time // inclusive lower bound
		To    time.Time // inclusive upper bound
	}
)

// Range resolves the filter's window relative to now. A custom window
// missing either date, or a non-positive day count, yields no bounds.
func (f ListFilter) Range(now time.Time) DateRange {
	if f.Custom {
		if f.Start.IsZero() || f.End.IsZero() {
			return DateRange{}
		}
		return DateRange{From: DateOf(f.Start), To: DateOf(f.End)}
	}
	if f.Days > 0 {
		return DateRange{After: now.UTC().AddDate(0, 0, -f.Days)}
	}
	return DateRange{}
}

// IsOpen reports whether the range applies no date filter at all.
func (r DateRange) IsOpen() bool {
	return r.After.IsZero() && r.From.IsZero() && r.To.IsZero()
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if r.IsOpen() {
		return true
	}
	if !r.After.IsZero() && !t.After(r.After) {
		return false
	}
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// Matches reports whether tx satisfies the kind filter and the range.
func (f ListFilter) Matches(tx Transaction, r DateRange) bool {
	if f.Kind != "" && tx.Kind != f.Kind {
		return false
	}
	return r.Contains(tx.OccurredAt)
}
