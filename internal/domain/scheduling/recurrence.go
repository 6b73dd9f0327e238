package scheduling

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/teambition/rrule-go"
)

const DefaultMaxOccurrences = 5000

var ErrInvalidStart = errors.New("appointment start date is missing or invalid")

// MonthlyMode selects how a monthly cadence advances.
type MonthlyMode string

const (
	// MonthlyCalendar repeats on the same day of each calendar month, falling
	// back to the last day of months without that day.
	MonthlyCalendar MonthlyMode = "calendar"
	// MonthlyFixed30 repeats every 30 days.
	MonthlyFixed30 MonthlyMode = "fixed30"
)

// ParseMonthlyMode returns the mode named by s, or an error.
func ParseMonthlyMode(s string) (MonthlyMode, error) {
	switch m := MonthlyMode(s); m {
	case MonthlyCalendar, MonthlyFixed30:
		return m, nil
	case "":
		return MonthlyCalendar, nil
	default:
		return "", fmt.Errorf("unknown monthly recurrence mode %q (want %q or %q)", s, MonthlyCalendar, MonthlyFixed30)
	}
}

// Expander turns a recurring appointment into its concrete occurrence times.
// It holds no mutable state and is safe for concurrent use.
type Expander struct {
	Monthly MonthlyMode
	// MaxOccurrences caps a single expansion. Zero means DefaultMaxOccurrences.
	MaxOccurrences int
	Logger         *zerolog.Logger
}

func NewExpander(monthly MonthlyMode, logger *zerolog.Logger) *Expander {
	return &Expander{Monthly: monthly, MaxOccurrences: DefaultMaxOccurrences, Logger: logger}
}

// Expand returns the start times of every occurrence of a, beginning at its
// start time t0 and continuing while the time is no later than horizonEnd and
// the appointment's repeat end (when set).
//
// A non-recurring appointment yields exactly [t0] regardless of the horizon.
// The result is strictly ascending and never contains a time before t0. When
// the cap is hit the earliest occurrences are dropped.
func (x *Expander) Expand(a *Appointment, horizonEnd time.Time) ([]time.Time, error) {
	times, _, err := x.expand(a, time.Time{}, horizonEnd)
	return times, err
}

// ExpandBetween is Expand restricted to occurrences at or after from.
func (x *Expander) ExpandBetween(a *Appointment, from, horizonEnd time.Time) ([]time.Time, error) {
	times, _, err := x.expand(a, from, horizonEnd)
	return times, err
}

// expand also returns the ordinal of the first returned occurrence, counted
// from t0.
func (x *Expander) expand(a *Appointment, from, horizonEnd time.Time) ([]time.Time, int, error) {
	if a == nil || a.StartTime.IsZero() {
		return nil, 0, ErrInvalidStart
	}
	t0 := a.StartTime

	opt, ok := x.rule(a.Repeat, t0)
	if !ok {
		if !from.IsZero() && t0.Before(from) {
			return []time.Time{}, 0, nil
		}
		return []time.Time{t0}, 0, nil
	}

	limit := horizonEnd
	if a.RepeatEnd != nil && !a.RepeatEnd.IsZero() && a.RepeatEnd.Before(limit) {
		limit = *a.RepeatEnd
	}
	if t0.After(limit) {
		return []time.Time{}, 0, nil
	}

	opt.Dtstart = t0
	opt.Until = limit

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, 0, fmt.Errorf("build recurrence rule: %w", err)
	}

	// rrule works at second precision; carry the sub-second part of t0.
	frac := t0.Sub(t0.Truncate(time.Second))
	ceiling := x.ceiling()
	out := make([]time.Time, 0)
	first, n, dropped := 0, 0, 0
	next := r.Iterator()
	for {
		t, ok := next()
		if !ok {
			break
		}
		t = t.Add(frac)
		if t.After(limit) {
			break
		}
		if t.Before(t0) {
			continue
		}
		idx := n
		n++
		if !from.IsZero() && t.Before(from) {
			continue
		}
		if len(out) == 0 {
			first = idx
		}
		out = append(out, t)
		if len(out) > 2*ceiling {
			dropped += len(out) - ceiling
			first += len(out) - ceiling
			out = append(out[:0:0], out[len(out)-ceiling:]...)
		}
	}

	if len(out) > ceiling {
		dropped += len(out) - ceiling
		first += len(out) - ceiling
		out = out[len(out)-ceiling:]
	}
	if dropped > 0 && x.Logger != nil {
		x.Logger.Warn().
			Str("appointment_id", a.ID.String()).
			Str("cadence", string(a.Repeat)).
			Int("cap", ceiling).
			Int("dropped", dropped).
			Msg("recurrence expansion truncated")
	}
	return out, first, nil
}

// Occurrences is Expand with each time wrapped as an Occurrence of a.
func (x *Expander) Occurrences(a *Appointment, horizonEnd time.Time) ([]Occurrence, error) {
	return x.OccurrencesBetween(a, time.Time{}, horizonEnd)
}

// OccurrencesBetween is ExpandBetween with each time wrapped as an Occurrence
// of a. Index stays the ordinal counted from the appointment's start.
func (x *Expander) OccurrencesBetween(a *Appointment, from, horizonEnd time.Time) ([]Occurrence, error) {
	times, first, err := x.expand(a, from, horizonEnd)
	if err != nil {
		return nil, err
	}
	cadence := ParseCadence(string(a.Repeat))
	occs := make([]Occurrence, len(times))
	for i, t := range times {
		occs[i] = Occurrence{
			AppointmentID: a.ID,
			PatientID:     a.PatientID,
			Provider:      a.Provider,
			Date:          t,
			Repeat:        cadence,
			Index:         first + i,
		}
	}
	return occs, nil
}

func (x *Expander) rule(c Cadence, t0 time.Time) (rrule.ROption, bool) {
	switch ParseCadence(string(c)) {
	case CadenceDaily:
		return rrule.ROption{Freq: rrule.DAILY, Interval: 1}, true
	case CadenceWeekly:
		return rrule.ROption{Freq: rrule.WEEKLY, Interval: 1}, true
	case CadenceBiweekly:
		return rrule.ROption{Freq: rrule.WEEKLY, Interval: 2}, true
	case CadenceMonthly:
		if x.Monthly == MonthlyFixed30 {
			return rrule.ROption{Freq: rrule.DAILY, Interval: 30}, true
		}
		opt := rrule.ROption{Freq: rrule.MONTHLY, Interval: 1}
		if d := t0.Day(); d > 28 {
			// Day d, or the last day of months shorter than d.
			opt.Bymonthday = []int{d, -1}
			opt.Bysetpos = []int{1}
		}
		return opt, true
	default:
		return rrule.ROption{}, false
	}
}

func (x *Expander) ceiling() int {
	if x.MaxOccurrences <= 0 {
		return DefaultMaxOccurrences
	}
	return x.MaxOccurrences
}
