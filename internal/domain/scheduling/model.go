package scheduling

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/emr/pkg/window"
)

var (
	ErrNotFound   = errors.New("appointment not found")
	ErrValidation = errors.New("invalid appointment")
)

// Cadence is how often an appointment repeats.
type Cadence string

const (
	CadenceNone     Cadence = "none"
	CadenceDaily    Cadence = "daily"
	CadenceWeekly   Cadence = "weekly"
	CadenceBiweekly Cadence = "biweekly"
	CadenceMonthly  Cadence = "monthly"
)

// ParseCadence normalises a stored or submitted cadence. Matching ignores
// case; anything unrecognised is treated as CadenceNone.
func ParseCadence(s string) Cadence {
	switch c := Cadence(strings.ToLower(strings.TrimSpace(s))); c {
	case CadenceDaily, CadenceWeekly, CadenceBiweekly, CadenceMonthly:
		return c
	default:
		return CadenceNone
	}
}

// Recurring reports whether the cadence produces more than one occurrence.
func (c Cadence) Recurring() bool {
	return ParseCadence(string(c)) != CadenceNone
}

// Appointment maps to the appointment table.
type Appointment struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	PatientID uuid.UUID  `db:"patient_id" json:"patient_id"`
	Provider  string     `db:"provider" json:"provider"`
	StartTime time.Time  `db:"start_time" json:"date"`
	Repeat    Cadence    `db:"cadence" json:"repeat"`
	RepeatEnd *time.Time `db:"repeat_end" json:"repeat_end,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// DateOf makes appointments filterable by start time.
func (a *Appointment) DateOf() (time.Time, bool) {
	return a.StartTime, !a.StartTime.IsZero()
}

// Occurrence is one concrete dated instance of an appointment.
type Occurrence struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	Provider      string    `json:"provider"`
	Date          time.Time `json:"date"`
	Repeat        Cadence   `json:"repeat"`
	Index         int       `json:"index"`
}

func (o Occurrence) DateOf() (time.Time, bool) {
	return o.Date, !o.Date.IsZero()
}

const dateOnly = "2006-01-02"

// AppointmentRequest is the JSON body accepted on create and update. Dates
// arrive as strings so malformed values become validation errors instead of
// bind failures.
type AppointmentRequest struct {
	PatientID string  `json:"patient_id"`
	Provider  string  `json:"provider"`
	Date      string  `json:"date"`
	Repeat    string  `json:"repeat"`
	RepeatEnd *string `json:"repeat_end,omitempty"`
}

// Appointment converts the request into a record, rejecting unparseable ids
// and dates.
func (r AppointmentRequest) Appointment() (*Appointment, error) {
	a := &Appointment{
		Provider: strings.TrimSpace(r.Provider),
		Repeat:   ParseCadence(r.Repeat),
	}
	if r.PatientID != "" {
		pid, err := uuid.Parse(r.PatientID)
		if err != nil {
			return nil, fmt.Errorf("%w: patient_id is not a valid id", ErrValidation)
		}
		a.PatientID = pid
	}
	if r.Date != "" {
		t, ok := window.ParseDate(r.Date)
		if !ok {
			return nil, fmt.Errorf("%w: %w", ErrValidation, ErrInvalidStart)
		}
		a.StartTime = t
	}
	if r.RepeatEnd != nil && strings.TrimSpace(*r.RepeatEnd) != "" {
		v := strings.TrimSpace(*r.RepeatEnd)
		t, ok := window.ParseDate(v)
		if !ok {
			return nil, fmt.Errorf("%w: repeat_end is not a valid date", ErrValidation)
		}
		// A bare date includes the whole day.
		if len(v) == len(dateOnly) {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		a.RepeatEnd = &t
	}
	return a, nil
}
