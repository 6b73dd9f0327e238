// Package window selects dated records that fall inside a time window and
// returns them in chronological order.
package window

import (
	"slices"
	"strings"
	"time"
)

const (
	DashboardDays = 7
	ListMonths    = 3
)

// Dated is implemented by records that carry a single date. ok is false when
// the record has no usable date.
type Dated interface {
	DateOf() (t time.Time, ok bool)
}

// Range is an inclusive [Start, End] window.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Days returns [now, now+n days].
func Days(now time.Time, n int) Range {
	return Range{Start: now, End: now.AddDate(0, 0, n)}
}

// Months returns [now, now+n calendar months].
func Months(now time.Time, n int) Range {
	return Range{Start: now, End: now.AddDate(0, n, 0)}
}

// Dashboard is the 7-day window shown on the patient landing page.
func Dashboard(now time.Time) Range { return Days(now, DashboardDays) }

// FullList is the 3-month window used by the full appointment and
// prescription pages.
func FullList(now time.Time) Range { return Months(now, ListMonths) }

// Contains reports whether t lies inside the window, bounds included.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Filter returns the records dated inside [start, end], sorted ascending by
// date. Records without a date are dropped. Equal dates keep input order and
// the input slice is not modified.
func Filter[T Dated](records []T, start, end time.Time) []T {
	return FilterBy(records, func(r T) (time.Time, bool) { return r.DateOf() }, start, end)
}

// FilterRange is Filter over a Range.
func FilterRange[T Dated](records []T, r Range) []T {
	return Filter(records, r.Start, r.End)
}

// FilterBy is Filter for records that do not implement Dated.
func FilterBy[T any](records []T, dateOf func(T) (time.Time, bool), start, end time.Time) []T {
	type entry struct {
		rec  T
		date time.Time
	}

	r := Range{Start: start, End: end}
	kept := make([]entry, 0, len(records))
	for _, rec := range records {
		d, ok := dateOf(rec)
		if !ok || d.IsZero() || !r.Contains(d) {
			continue
		}
		kept = append(kept, entry{rec: rec, date: d})
	}

	slices.SortStableFunc(kept, func(a, b entry) int {
		return a.date.Compare(b.date)
	})

	out := make([]T, len(kept))
	for i, e := range kept {
		out[i] = e.rec
	}
	return out
}

var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate parses the date formats accepted from clients and the database
// text representation. Values without a zone are read as UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
