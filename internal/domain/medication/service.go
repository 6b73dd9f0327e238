package medication

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ehr/emr/pkg/window"
)

type Service struct {
	prescriptions PrescriptionRepository
	catalog       CatalogRepository
}

func NewService(rx PrescriptionRepository, catalog CatalogRepository) *Service {
	return &Service{prescriptions: rx, catalog: catalog}
}

func (s *Service) validate(ctx context.Context, p *Prescription) error {
	p.Medication = strings.TrimSpace(p.Medication)
	p.Dosage = strings.TrimSpace(p.Dosage)
	if p.PatientID == uuid.Nil {
		return fmt.Errorf("%w: patient_id is required", ErrValidation)
	}
	if p.Medication == "" {
		return fmt.Errorf("%w: medication is required", ErrValidation)
	}
	if p.Dosage == "" {
		return fmt.Errorf("%w: dosage is required", ErrValidation)
	}
	if p.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be greater than zero", ErrValidation)
	}
	if p.RefillDate.IsZero() {
		return fmt.Errorf("%w: refill_date is required", ErrValidation)
	}
	if p.RefillSchedule != nil && strings.TrimSpace(*p.RefillSchedule) == "" {
		p.RefillSchedule = nil
	}

	// Catalogued medications must use a listed dosage; others pass through.
	entry, err := s.catalog.Get(ctx, p.Medication)
	if errors.Is(err, ErrMedicationUnknown) {
		return nil
	}
	if err != nil {
		return err
	}
	dosage, ok := entry.Allows(p.Dosage)
	if !ok {
		return fmt.Errorf("%w: dosage %q is not allowed for %s (allowed: %s)",
			ErrValidation, p.Dosage, entry.Name, strings.Join(entry.Dosages, ", "))
	}
	p.Medication = entry.Name
	p.Dosage = dosage
	return nil
}

func (s *Service) CreatePrescription(ctx context.Context, p *Prescription) error {
	if err := s.validate(ctx, p); err != nil {
		return err
	}
	return s.prescriptions.Create(ctx, p)
}

func (s *Service) GetPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.prescriptions.GetByID(ctx, id)
}

func (s *Service) UpdatePrescription(ctx context.Context, p *Prescription) error {
	if err := s.validate(ctx, p); err != nil {
		return err
	}
	return s.prescriptions.Update(ctx, p)
}

func (s *Service) DeletePrescription(ctx context.Context, id uuid.UUID) error {
	return s.prescriptions.Delete(ctx, id)
}

func (s *Service) ListPrescriptionsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return s.prescriptions.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) SearchPrescriptions(ctx context.Context, params map[string]string, limit, offset int) ([]*Prescription, int, error) {
	return s.prescriptions.Search(ctx, params, limit, offset)
}

// PatientRefills returns the patient's prescriptions with a refill date in r,
// ordered by refill date.
func (s *Service) PatientRefills(ctx context.Context, patientID uuid.UUID, r window.Range) ([]*Prescription, error) {
	all, err := s.prescriptions.ListAllByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return window.FilterRange(all, r), nil
}

// UpcomingRefills returns refills across all patients dated inside r.
func (s *Service) UpcomingRefills(ctx context.Context, r window.Range) ([]*Prescription, error) {
	items, err := s.prescriptions.ListRefillsBetween(ctx, r.Start, r.End)
	if err != nil {
		return nil, err
	}
	return window.FilterRange(items, r), nil
}

// -- Catalog --

func (s *Service) ListCatalog(ctx context.Context) ([]*AllowedMedication, error) {
	return s.catalog.List(ctx)
}

// UpsertCatalogEntry stores m, replacing the dosages of an existing entry.
func (s *Service) UpsertCatalogEntry(ctx context.Context, m *AllowedMedication) error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	seen := make(map[string]bool)
	dosages := make([]string, 0, len(m.Dosages))
	for _, d := range m.Dosages {
		d = strings.TrimSpace(d)
		if d == "" || seen[compact(d)] {
			continue
		}
		seen[compact(d)] = true
		dosages = append(dosages, d)
	}
	if len(dosages) == 0 {
		return fmt.Errorf("%w: at least one dosage is required", ErrValidation)
	}
	m.Dosages = dosages
	return s.catalog.Upsert(ctx, m)
}
