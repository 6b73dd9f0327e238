package portal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/emr/internal/domain/identity"
	"github.com/ehr/emr/internal/domain/medication"
	"github.com/ehr/emr/internal/domain/scheduling"
	"github.com/ehr/emr/pkg/window"
)

type Profiles interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
}

type Schedule interface {
	PatientOccurrences(ctx context.Context, patientID uuid.UUID, r window.Range) ([]scheduling.Occurrence, error)
}

type Refills interface {
	PatientRefills(ctx context.Context, patientID uuid.UUID, r window.Range) ([]*medication.Prescription, error)
}

// Horizons sets the forward windows used by the portal views.
type Horizons struct {
	DashboardDays int
	ListMonths    int
}

func DefaultHorizons() Horizons {
	return Horizons{DashboardDays: window.DashboardDays, ListMonths: window.ListMonths}
}

func (h Horizons) dashboard(now time.Time) window.Range {
	if h.DashboardDays <= 0 {
		return window.Dashboard(now)
	}
	return window.Days(now, h.DashboardDays)
}

func (h Horizons) list(now time.Time) window.Range {
	if h.ListMonths <= 0 {
		return window.FullList(now)
	}
	return window.Months(now, h.ListMonths)
}

// Dashboard is the patient's near-term view.
type Dashboard struct {
	Patient      *identity.Patient          `json:"patient"`
	Window       window.Range               `json:"window"`
	Appointments []scheduling.Occurrence    `json:"appointments"`
	Refills      []*medication.Prescription `json:"refills"`
}

type Service struct {
	profiles Profiles
	schedule Schedule
	refills  Refills
	horizons Horizons
}

func NewService(profiles Profiles, schedule Schedule, refills Refills, horizons Horizons) *Service {
	return &Service{profiles: profiles, schedule: schedule, refills: refills, horizons: horizons}
}

func (s *Service) Profile(ctx context.Context, patientID uuid.UUID) (*identity.Patient, error) {
	return s.profiles.GetPatient(ctx, patientID)
}

// Dashboard loads occurrences and refills for the dashboard window
// concurrently. Nothing is returned unless both reads succeed.
func (s *Service) Dashboard(ctx context.Context, patientID uuid.UUID, now time.Time) (*Dashboard, error) {
	p, err := s.profiles.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	r := s.horizons.dashboard(now)

	var (
		occs    []scheduling.Occurrence
		refills []*medication.Prescription
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		all, err := s.schedule.PatientOccurrences(gctx, patientID, r)
		if err != nil {
			return err
		}
		occs = window.FilterRange(all, r)
		return nil
	})
	g.Go(func() error {
		var err error
		refills, err = s.refills.PatientRefills(gctx, patientID, r)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if refills == nil {
		refills = []*medication.Prescription{}
	}
	return &Dashboard{Patient: p, Window: r, Appointments: occs, Refills: refills}, nil
}

// Appointments returns occurrences inside the list window.
func (s *Service) Appointments(ctx context.Context, patientID uuid.UUID, now time.Time) ([]scheduling.Occurrence, window.Range, error) {
	r := s.horizons.list(now)
	all, err := s.schedule.PatientOccurrences(ctx, patientID, r)
	if err != nil {
		return nil, r, err
	}
	return window.FilterRange(all, r), r, nil
}

// Prescriptions returns prescriptions with a refill inside the list window.
func (s *Service) Prescriptions(ctx context.Context, patientID uuid.UUID, now time.Time) ([]*medication.Prescription, window.Range, error) {
	r := s.horizons.list(now)
	items, err := s.refills.PatientRefills(ctx, patientID, r)
	if err != nil {
		return nil, r, err
	}
	if items == nil {
		items = []*medication.Prescription{}
	}
	return items, r, nil
}
