package portal

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/emr/internal/domain/identity"
	"github.com/ehr/emr/internal/domain/medication"
	"github.com/ehr/emr/internal/domain/scheduling"
	"github.com/ehr/emr/pkg/window"
)

func utc(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

// -- Fakes --

type fakeProfiles map[uuid.UUID]*identity.Patient

func (f fakeProfiles) GetPatient(_ context.Context, id uuid.UUID) (*identity.Patient, error) {
	p, ok := f[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return p, nil
}

// fakeSchedule expands appointments with a real Expander.
type fakeSchedule struct {
	appts []*scheduling.Appointment
	exp   *scheduling.Expander
	err   error
	calls atomic.Int32
}

func (f *fakeSchedule) PatientOccurrences(_ context.Context, patientID uuid.UUID, r window.Range) ([]scheduling.Occurrence, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	var out []scheduling.Occurrence
	for _, a := range f.appts {
		if a.PatientID != patientID {
			continue
		}
		occs, err := f.exp.OccurrencesBetween(a, r.Start, r.End)
		if err != nil {
			return nil, err
		}
		out = append(out, occs...)
	}
	return out, nil
}

type fakeRefills struct {
	items []*medication.Prescription
	err   error
}

func (f *fakeRefills) PatientRefills(_ context.Context, patientID uuid.UUID, r window.Range) ([]*medication.Prescription, error) {
	if f.err != nil {
		return nil, f.err
	}
	var mine []*medication.Prescription
	for _, p := range f.items {
		if p.PatientID == patientID {
			mine = append(mine, p)
		}
	}
	return window.FilterRange(mine, r), nil
}

type fixture struct {
	svc      *Service
	patient  *identity.Patient
	schedule *fakeSchedule
	refills  *fakeRefills
}

func newFixture() *fixture {
	patient := &identity.Patient{ID: uuid.New(), FullName: "John Doe", Email: "john@example.com"}
	other := uuid.New()
	schedule := &fakeSchedule{
		exp: scheduling.NewExpander(scheduling.MonthlyCalendar, nil),
		appts: []*scheduling.Appointment{
			{ID: uuid.New(), PatientID: patient.ID, Provider: "Dr. Alice", StartTime: utc(2025, 10, 2, 15), Repeat: scheduling.CadenceWeekly},
			{ID: uuid.New(), PatientID: patient.ID, Provider: "Dr. Watson", StartTime: utc(2025, 10, 9, 10), Repeat: scheduling.CadenceMonthly},
			{ID: uuid.New(), PatientID: patient.ID, Provider: "Dr. Past", StartTime: utc(2025, 9, 1, 9), Repeat: scheduling.CadenceNone},
			{ID: uuid.New(), PatientID: other, Provider: "Dr. Other", StartTime: utc(2025, 10, 5, 9), Repeat: scheduling.CadenceDaily},
		},
	}
	refills := &fakeRefills{items: []*medication.Prescription{
		{ID: uuid.New(), PatientID: patient.ID, Medication: "Lexapro", Dosage: "5mg", Quantity: 2, RefillDate: utc(2025, 10, 5, 0)},
		{ID: uuid.New(), PatientID: patient.ID, Medication: "Amoxicillin", Dosage: "250mg", Quantity: 1, RefillDate: utc(2025, 11, 20, 0)},
		{ID: uuid.New(), PatientID: other, Medication: "Lexapro", Dosage: "10mg", Quantity: 1, RefillDate: utc(2025, 10, 6, 0)},
	}}
	svc := NewService(fakeProfiles{patient.ID: patient}, schedule, refills, DefaultHorizons())
	return &fixture{svc: svc, patient: patient, schedule: schedule, refills: refills}
}

var testNow = utc(2025, 10, 4, 12)

func TestService_Dashboard(t *testing.T) {
	f := newFixture()
	d, err := f.svc.Dashboard(context.Background(), f.patient.ID, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Patient.ID != f.patient.ID {
		t.Errorf("wrong patient on dashboard")
	}

	// Window [10-04 12:00, 10-11 12:00]: Alice on 10-09, Watson on 10-09 10:00.
	want := []time.Time{utc(2025, 10, 9, 10), utc(2025, 10, 9, 15)}
	if len(d.Appointments) != len(want) {
		t.Fatalf("expected %d occurrences, got %d: %+v", len(want), len(d.Appointments), d.Appointments)
	}
	for i, w := range want {
		if !d.Appointments[i].Date.Equal(w) {
			t.Errorf("occurrence %d: expected %s, got %s", i, w, d.Appointments[i].Date)
		}
		if !d.Window.Contains(d.Appointments[i].Date) {
			t.Errorf("occurrence %s outside window", d.Appointments[i].Date)
		}
	}
	if len(d.Refills) != 1 || d.Refills[0].Medication != "Lexapro" {
		t.Errorf("expected the Lexapro refill, got %+v", d.Refills)
	}
}

func TestService_Dashboard_ErrorFromEitherSource(t *testing.T) {
	boom := errors.New("boom")

	f := newFixture()
	f.schedule.err = boom
	if _, err := f.svc.Dashboard(context.Background(), f.patient.ID, testNow); !errors.Is(err, boom) {
		t.Errorf("expected schedule error, got %v", err)
	}

	f = newFixture()
	f.refills.err = boom
	if _, err := f.svc.Dashboard(context.Background(), f.patient.ID, testNow); !errors.Is(err, boom) {
		t.Errorf("expected refill error, got %v", err)
	}
}

func TestService_Dashboard_UnknownPatient(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Dashboard(context.Background(), uuid.New(), testNow)
	if !errors.Is(err, identity.ErrNotFound) {
		t.Errorf("expected identity.ErrNotFound, got %v", err)
	}
	if f.schedule.calls.Load() != 0 {
		t.Error("schedule should not be read for an unknown patient")
	}
}

func TestService_Appointments_ListWindow(t *testing.T) {
	f := newFixture()
	occs, r, err := f.svc.Appointments(context.Background(), f.patient.ID, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.End.Equal(testNow.AddDate(0, 3, 0)) {
		t.Errorf("expected 3-month window end, got %s", r.End)
	}
	var watson, past int
	for i, o := range occs {
		if !r.Contains(o.Date) {
			t.Errorf("occurrence %s outside window", o.Date)
		}
		if i > 0 && o.Date.Before(occs[i-1].Date) {
			t.Error("occurrences not sorted")
		}
		switch o.Provider {
		case "Dr. Watson":
			watson++
		case "Dr. Past":
			past++
		case "Dr. Other":
			t.Error("another patient's appointment leaked")
		}
	}
	// 10-09, 11-09, 12-09 fall before 2026-01-04.
	if watson != 3 {
		t.Errorf("expected 3 monthly occurrences, got %d", watson)
	}
	if past != 0 {
		t.Error("past one-off appointment should be excluded")
	}
}

func TestService_Prescriptions(t *testing.T) {
	f := newFixture()
	items, _, err := f.svc.Prescriptions(context.Background(), f.patient.ID, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 prescriptions, got %d", len(items))
	}
	if !items[0].RefillDate.Before(items[1].RefillDate) {
		t.Error("expected ascending refill dates")
	}
}

func TestHorizons_Custom(t *testing.T) {
	h := Horizons{DashboardDays: 14, ListMonths: 1}
	if got := h.dashboard(testNow).End; !got.Equal(testNow.AddDate(0, 0, 14)) {
		t.Errorf("dashboard end = %s", got)
	}
	if got := h.list(testNow).End; !got.Equal(testNow.AddDate(0, 1, 0)) {
		t.Errorf("list end = %s", got)
	}
	if got := (Horizons{}).dashboard(testNow).End; !got.Equal(window.Dashboard(testNow).End) {
		t.Errorf("zero horizons should fall back to defaults, got %s", got)
	}
}
