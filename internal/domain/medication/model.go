package medication

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/emr/pkg/window"
)

var (
	ErrNotFound          = errors.New("prescription not found")
	ErrMedicationUnknown = errors.New("medication not in catalog")
	ErrValidation        = errors.New("invalid prescription")
)

// Prescription maps to the prescription table. RefillSchedule is free text
// for display and does not drive any date arithmetic.
type Prescription struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PatientID      uuid.UUID `db:"patient_id" json:"patient_id"`
	Medication     string    `db:"medication" json:"medication"`
	Dosage         string    `db:"dosage" json:"dosage"`
	Quantity       int       `db:"quantity" json:"quantity"`
	RefillDate     time.Time `db:"refill_date" json:"refill_date"`
	RefillSchedule *string   `db:"refill_schedule" json:"refill_schedule,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// DateOf makes prescriptions filterable by refill date.
func (p *Prescription) DateOf() (time.Time, bool) {
	return p.RefillDate, !p.RefillDate.IsZero()
}

// AllowedMedication is a catalog entry listing the dosages that may be
// prescribed for a medication.
type AllowedMedication struct {
	Name      string    `db:"name" json:"name" yaml:"name"`
	Dosages   []string  `db:"dosages" json:"dosages" yaml:"dosages"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at" yaml:"-"`
}

// Allows reports whether dosage is listed, ignoring case and spacing, and
// returns the listed spelling.
func (m *AllowedMedication) Allows(dosage string) (string, bool) {
	want := compact(dosage)
	for _, d := range m.Dosages {
		if compact(d) == want {
			return d, true
		}
	}
	return "", false
}

func compact(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

// PrescriptionRequest is the JSON body accepted on create and update.
type PrescriptionRequest struct {
	PatientID      string  `json:"patient_id"`
	Medication     string  `json:"medication"`
	Dosage         string  `json:"dosage"`
	Quantity       int     `json:"quantity"`
	RefillDate     string  `json:"refill_date"`
	RefillSchedule *string `json:"refill_schedule,omitempty"`
}

func (r PrescriptionRequest) Prescription() (*Prescription, error) {
	p := &Prescription{
		Medication:     strings.TrimSpace(r.Medication),
		Dosage:         strings.TrimSpace(r.Dosage),
		Quantity:       r.Quantity,
		RefillSchedule: r.RefillSchedule,
	}
	if r.PatientID != "" {
		pid, err := uuid.Parse(r.PatientID)
		if err != nil {
			return nil, fmt.Errorf("%w: patient_id is not a valid id", ErrValidation)
		}
		p.PatientID = pid
	}
	if r.RefillDate != "" {
		t, ok := window.ParseDate(r.RefillDate)
		if !ok {
			return nil, fmt.Errorf("%w: refill_date is not a valid date", ErrValidation)
		}
		p.RefillDate = t
	}
	return p, nil
}
