// Package seed loads demo fixtures from YAML and optionally pads them with
// generated patients.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ehr/emr/internal/domain/identity"
	"github.com/ehr/emr/internal/domain/medication"
	"github.com/ehr/emr/internal/domain/scheduling"
)

// File is the top level of a seed document.
type File struct {
	Catalog      []medication.AllowedMedication `yaml:"catalog"`
	Patients     []PatientFixture               `yaml:"patients"`
	FakePatients int                            `yaml:"fake_patients"`
	// FakeSeed makes generated patients reproducible. Zero picks a random seed.
	FakeSeed uint64 `yaml:"fake_seed"`
}

type PatientFixture struct {
	FullName      string                `yaml:"full_name"`
	Email         string                `yaml:"email"`
	Password      string                `yaml:"password"`
	Age           int                   `yaml:"age"`
	Appointments  []AppointmentFixture  `yaml:"appointments"`
	Prescriptions []PrescriptionFixture `yaml:"prescriptions"`
}

type AppointmentFixture struct {
	Provider  string `yaml:"provider"`
	Date      string `yaml:"date"`
	Repeat    string `yaml:"repeat"`
	RepeatEnd string `yaml:"repeat_end"`
}

type PrescriptionFixture struct {
	Medication     string `yaml:"medication"`
	Dosage         string `yaml:"dosage"`
	Quantity       int    `yaml:"quantity"`
	RefillDate     string `yaml:"refill_date"`
	RefillSchedule string `yaml:"refill_schedule"`
}

// Load reads and parses a seed file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if f.FakePatients < 0 {
		return nil, errors.New("fake_patients must not be negative")
	}
	return &f, nil
}

type PatientStore interface {
	GetPatientByEmail(ctx context.Context, email string) (*identity.Patient, error)
	CreatePatient(ctx context.Context, p *identity.Patient, password string) error
}

type AppointmentStore interface {
	CreateAppointment(ctx context.Context, a *scheduling.Appointment) error
}

type PrescriptionStore interface {
	CreatePrescription(ctx context.Context, p *medication.Prescription) error
	UpsertCatalogEntry(ctx context.Context, m *medication.AllowedMedication) error
}

// Result counts what a run created.
type Result struct {
	Catalog         int
	Patients        int
	SkippedPatients int
	Appointments    int
	Prescriptions   int
}

// Seeder writes fixtures through the domain services so every record passes
// the same validation as API input.
type Seeder struct {
	patients      PatientStore
	appointments  AppointmentStore
	prescriptions PrescriptionStore
	logger        zerolog.Logger
	now           func() time.Time
}

func NewSeeder(patients PatientStore, appts AppointmentStore, rx PrescriptionStore, logger zerolog.Logger) *Seeder {
	return &Seeder{
		patients:      patients,
		appointments:  appts,
		prescriptions: rx,
		logger:        logger,
		now:           time.Now,
	}
}

// Run applies f. Patients whose email already exists are skipped together
// with their nested records, so running the same file twice is a no-op
// apart from catalog upserts.
func (s *Seeder) Run(ctx context.Context, f *File) (Result, error) {
	var res Result

	for i := range f.Catalog {
		m := f.Catalog[i]
		if err := s.prescriptions.UpsertCatalogEntry(ctx, &m); err != nil {
			return res, fmt.Errorf("catalog entry %q: %w", m.Name, err)
		}
		res.Catalog++
	}

	patients := f.Patients
	if f.FakePatients > 0 {
		patients = append(patients, fakePatients(f.FakeSeed, f.FakePatients, f.Catalog, s.now())...)
	}

	for _, pf := range patients {
		if err := s.seedPatient(ctx, pf, &res); err != nil {
			return res, fmt.Errorf("patient %s: %w", pf.Email, err)
		}
	}

	s.logger.Info().
		Int("catalog", res.Catalog).
		Int("patients", res.Patients).
		Int("skipped", res.SkippedPatients).
		Int("appointments", res.Appointments).
		Int("prescriptions", res.Prescriptions).
		Msg("seed complete")
	return res, nil
}

func (s *Seeder) seedPatient(ctx context.Context, pf PatientFixture, res *Result) error {
	_, err := s.patients.GetPatientByEmail(ctx, pf.Email)
	switch {
	case err == nil:
		res.SkippedPatients++
		s.logger.Debug().Str("email", pf.Email).Msg("patient exists, skipping")
		return nil
	case !errors.Is(err, identity.ErrNotFound):
		return err
	}

	p := &identity.Patient{FullName: pf.FullName, Email: pf.Email, Age: pf.Age}
	if err := s.patients.CreatePatient(ctx, p, pf.Password); err != nil {
		return err
	}
	res.Patients++

	for _, af := range pf.Appointments {
		req := scheduling.AppointmentRequest{
			PatientID: p.ID.String(),
			Provider:  af.Provider,
			Date:      af.Date,
			Repeat:    af.Repeat,
		}
		if af.RepeatEnd != "" {
			req.RepeatEnd = &af.RepeatEnd
		}
		a, err := req.Appointment()
		if err != nil {
			return fmt.Errorf("appointment with %s: %w", af.Provider, err)
		}
		if err := s.appointments.CreateAppointment(ctx, a); err != nil {
			return fmt.Errorf("appointment with %s: %w", af.Provider, err)
		}
		res.Appointments++
	}

	for _, rf := range pf.Prescriptions {
		req := medication.PrescriptionRequest{
			PatientID:  p.ID.String(),
			Medication: rf.Medication,
			Dosage:     rf.Dosage,
			Quantity:   rf.Quantity,
			RefillDate: rf.RefillDate,
		}
		if rf.RefillSchedule != "" {
			req.RefillSchedule = &rf.RefillSchedule
		}
		rx, err := req.Prescription()
		if err != nil {
			return fmt.Errorf("prescription %s: %w", rf.Medication, err)
		}
		if err := s.prescriptions.CreatePrescription(ctx, rx); err != nil {
			return fmt.Errorf("prescription %s: %w", rf.Medication, err)
		}
		res.Prescriptions++
	}
	return nil
}
