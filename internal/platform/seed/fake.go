package seed

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/ehr/emr/internal/domain/medication"
)

const fakePassword = "password123"

var fakeCadences = []string{"none", "daily", "weekly", "biweekly", "monthly"}

// fakePatients generates n demo patients, each with one appointment and, when
// the catalog is non-empty, one prescription drawn from it. Dates fall within
// the next two months of now.
func fakePatients(seed uint64, n int, catalog []medication.AllowedMedication, now time.Time) []PatientFixture {
	f := gofakeit.New(seed)
	day := now.UTC().Truncate(24 * time.Hour)

	out := make([]PatientFixture, 0, n)
	for i := 0; i < n; i++ {
		first, last := f.FirstName(), f.LastName()
		pf := PatientFixture{
			FullName: first + " " + last,
			// the index keeps addresses unique even when names repeat
			Email:    fmt.Sprintf("%s.%s.%d@example.com", strings.ToLower(first), strings.ToLower(last), i+1),
			Password: fakePassword,
			Age:      f.IntRange(18, 90),
		}

		start := day.AddDate(0, 0, f.IntRange(0, 30)).Add(time.Duration(f.IntRange(8, 16)) * time.Hour)
		appt := AppointmentFixture{
			Provider: "Dr. " + f.LastName(),
			Date:     start.Format(time.RFC3339),
			Repeat:   fakeCadences[f.IntRange(0, len(fakeCadences)-1)],
		}
		if appt.Repeat != "none" {
			appt.RepeatEnd = start.AddDate(0, f.IntRange(1, 3), 0).Format(time.RFC3339)
		}
		pf.Appointments = []AppointmentFixture{appt}

		if len(catalog) > 0 {
			med := catalog[f.IntRange(0, len(catalog)-1)]
			if len(med.Dosages) > 0 {
				pf.Prescriptions = []PrescriptionFixture{{
					Medication:     med.Name,
					Dosage:         med.Dosages[f.IntRange(0, len(med.Dosages)-1)],
					Quantity:       f.IntRange(1, 90),
					RefillDate:     day.AddDate(0, 0, f.IntRange(1, 60)).Format("2006-01-02"),
					RefillSchedule: f.RandomString([]string{"Weekly", "Monthly"}),
				}}
			}
		}
		out = append(out, pf)
	}
	return out
}
