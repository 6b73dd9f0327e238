package scheduling

import (
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"
)

// OccurrenceDuration is the length given to calendar entries; appointments
// carry no end time of their own.
const OccurrenceDuration = 30 * time.Minute

const icsProductID = "-//ehr//emr patient portal//EN"

// WriteCalendar serialises occurrences as an iCalendar feed. Each occurrence
// gets a stable UID derived from its appointment and index so calendar
// clients update entries in place on refresh.
func WriteCalendar(w io.Writer, name string, occs []Occurrence, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(icsProductID)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, o := range occs {
		ev := cal.AddEvent(fmt.Sprintf("%s-%d@emr", o.AppointmentID, o.Index))
		ev.SetDtStampTime(stamp.UTC())
		ev.SetStartAt(o.Date.UTC())
		ev.SetEndAt(o.Date.Add(OccurrenceDuration).UTC())
		ev.SetSummary("Appointment with " + o.Provider)
		if o.Repeat.Recurring() {
			ev.SetDescription(fmt.Sprintf("Repeats %s (occurrence %d)", o.Repeat, o.Index+1))
		}
	}

	return cal.SerializeTo(w)
}
