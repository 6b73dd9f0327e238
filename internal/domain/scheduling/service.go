package scheduling

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/emr/pkg/window"
)

type Service struct {
	appointments AppointmentRepository
	expander     *Expander
}

func NewService(appt AppointmentRepository, exp *Expander) *Service {
	if exp == nil {
		exp = NewExpander(MonthlyCalendar, nil)
	}
	return &Service{appointments: appt, expander: exp}
}

// Expander returns the expander used for occurrence listings.
func (s *Service) Expander() *Expander { return s.expander }

func validate(a *Appointment) error {
	if a.PatientID == uuid.Nil {
		return fmt.Errorf("%w: patient_id is required", ErrValidation)
	}
	a.Provider = strings.TrimSpace(a.Provider)
	if a.Provider == "" {
		return fmt.Errorf("%w: provider is required", ErrValidation)
	}
	if a.StartTime.IsZero() {
		return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidStart)
	}
	a.Repeat = ParseCadence(string(a.Repeat))
	if !a.Repeat.Recurring() {
		a.RepeatEnd = nil
		return nil
	}
	if a.RepeatEnd != nil && a.RepeatEnd.Before(a.StartTime) {
		return fmt.Errorf("%w: repeat_end must not be before date", ErrValidation)
	}
	return nil
}

func (s *Service) CreateAppointment(ctx context.Context, a *Appointment) error {
	if err := validate(a); err != nil {
		return err
	}
	return s.appointments.Create(ctx, a)
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) UpdateAppointment(ctx context.Context, a *Appointment) error {
	if err := validate(a); err != nil {
		return err
	}
	return s.appointments.Update(ctx, a)
}

func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	return s.appointments.Delete(ctx, id)
}

func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) SearchAppointments(ctx context.Context, params map[string]string, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.Search(ctx, params, limit, offset)
}

// AppointmentOccurrences expands a single appointment up to until.
func (s *Service) AppointmentOccurrences(ctx context.Context, id uuid.UUID, until time.Time) ([]Occurrence, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.expander.Occurrences(a, until)
}

// PatientOccurrences expands every appointment of the patient over r and
// merges the results in date order.
func (s *Service) PatientOccurrences(ctx context.Context, patientID uuid.UUID, r window.Range) ([]Occurrence, error) {
	appts, err := s.appointments.ListAllByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	occs, err := s.expandAll(appts, r)
	if err != nil {
		return nil, err
	}
	return window.FilterRange(occs, r), nil
}

// UpcomingOccurrences expands all appointments that can occur inside r and
// returns the occurrences dated inside it.
func (s *Service) UpcomingOccurrences(ctx context.Context, r window.Range) ([]Occurrence, error) {
	appts, err := s.appointments.ListActive(ctx, r.Start)
	if err != nil {
		return nil, err
	}
	occs, err := s.expandAll(appts, r)
	if err != nil {
		return nil, err
	}
	return window.FilterRange(occs, r), nil
}

func (s *Service) expandAll(appts []*Appointment, r window.Range) ([]Occurrence, error) {
	var all []Occurrence
	for _, a := range appts {
		occs, err := s.expander.OccurrencesBetween(a, r.Start, r.End)
		if err != nil {
			return nil, fmt.Errorf("expand appointment %s: %w", a.ID, err)
		}
		all = append(all, occs...)
	}
	slices.SortStableFunc(all, func(a, b Occurrence) int { return a.Date.Compare(b.Date) })
	return all, nil
}
