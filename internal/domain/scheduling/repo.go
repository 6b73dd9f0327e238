package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Appointment, int, error)
	// ListAllByPatient returns every appointment of the patient ordered by start time.
	ListAllByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error)
	// ListActive returns appointments that can still produce an occurrence at
	// or after since: single appointments starting at or after since, and
	// recurring ones whose repeat end is unset or not before since.
	ListActive(ctx context.Context, since time.Time) ([]*Appointment, error)
}
