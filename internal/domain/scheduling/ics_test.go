package scheduling

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestWriteCalendar(t *testing.T) {
	id := uuid.New()
	occs := []Occurrence{
		{AppointmentID: id, Provider: "Dr Alan Smith", Date: utc(2025, 10, 9, 10), Repeat: CadenceWeekly, Index: 0},
		{AppointmentID: id, Provider: "Dr Alan Smith", Date: utc(2025, 10, 16, 10), Repeat: CadenceWeekly, Index: 1},
	}
	var b strings.Builder
	if err := WriteCalendar(&b, "John Doe", occs, utc(2025, 10, 1, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := b.String()

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"METHOD:PUBLISH",
		"X-WR-CALNAME:John Doe",
		"UID:" + id.String() + "-1@emr",
		"DTSTART:20251016T100000Z",
		"SUMMARY:Appointment with Dr Alan Smith",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("calendar missing %q", want)
		}
	}
	if n := strings.Count(out, "BEGIN:VEVENT"); n != 2 {
		t.Errorf("expected 2 events, got %d", n)
	}
}
