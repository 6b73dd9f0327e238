package medication

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	Update(ctx context.Context, p *Prescription) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Prescription, int, error)
	ListAllByPatient(ctx context.Context, patientID uuid.UUID) ([]*Prescription, error)
	// ListRefillsBetween returns prescriptions whose refill date lies in
	// [start, end], across all patients.
	ListRefillsBetween(ctx context.Context, start, end time.Time) ([]*Prescription, error)
}

type CatalogRepository interface {
	List(ctx context.Context) ([]*AllowedMedication, error)
	// Get returns ErrMedicationUnknown when name is not catalogued.
	Get(ctx context.Context, name string) (*AllowedMedication, error)
	Upsert(ctx context.Context, m *AllowedMedication) error
}
