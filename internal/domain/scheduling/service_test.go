package scheduling

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/emr/pkg/window"
)

// -- Mock Repository --

type mockApptRepo struct {
	appts map[uuid.UUID]*Appointment
}

func newMockApptRepo() *mockApptRepo {
	return &mockApptRepo{appts: make(map[uuid.UUID]*Appointment)}
}

func (m *mockApptRepo) Create(_ context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = time.Now()
	m.appts[a.ID] = a
	return nil
}

func (m *mockApptRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (m *mockApptRepo) Update(_ context.Context, a *Appointment) error {
	if _, ok := m.appts[a.ID]; !ok {
		return ErrNotFound
	}
	a.UpdatedAt = time.Now()
	m.appts[a.ID] = a
	return nil
}

func (m *mockApptRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.appts[id]; !ok {
		return ErrNotFound
	}
	delete(m.appts, id)
	return nil
}

func (m *mockApptRepo) sorted(keep func(*Appointment) bool) []*Appointment {
	var out []*Appointment
	for _, a := range m.appts {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func page(items []*Appointment, limit, offset int) []*Appointment {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func (m *mockApptRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	all := m.sorted(func(a *Appointment) bool { return a.PatientID == patientID })
	return page(all, limit, offset), len(all), nil
}

func (m *mockApptRepo) Search(_ context.Context, _ map[string]string, limit, offset int) ([]*Appointment, int, error) {
	all := m.sorted(func(*Appointment) bool { return true })
	return page(all, limit, offset), len(all), nil
}

func (m *mockApptRepo) ListAllByPatient(_ context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	return m.sorted(func(a *Appointment) bool { return a.PatientID == patientID }), nil
}

func (m *mockApptRepo) ListActive(_ context.Context, since time.Time) ([]*Appointment, error) {
	return m.sorted(func(a *Appointment) bool {
		if !a.StartTime.Before(since) {
			return true
		}
		return a.Repeat.Recurring() && (a.RepeatEnd == nil || !a.RepeatEnd.Before(since))
	}), nil
}

func newTestService() *Service {
	return NewService(newMockApptRepo(), NewExpander(MonthlyCalendar, nil))
}

func TestCreateAppointment(t *testing.T) {
	svc := newTestService()
	end := utc(2025, 10, 1, 0)
	a := &Appointment{
		PatientID: uuid.New(),
		Provider:  "  Dr Kim West ",
		StartTime: utc(2025, 9, 16, 16),
		Repeat:    "WEEKLY",
		RepeatEnd: &end,
	}
	if err := svc.CreateAppointment(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if a.Provider != "Dr Kim West" {
		t.Errorf("expected trimmed provider, got %q", a.Provider)
	}
	if a.Repeat != CadenceWeekly {
		t.Errorf("expected cadence normalised to weekly, got %q", a.Repeat)
	}
}

func TestCreateAppointment_Validation(t *testing.T) {
	start := utc(2025, 10, 9, 0)
	before := start.AddDate(0, 0, -1)
	tests := []struct {
		name string
		a    Appointment
	}{
		{"missing patient", Appointment{Provider: "Dr A", StartTime: start}},
		{"missing provider", Appointment{PatientID: uuid.New(), StartTime: start}},
		{"missing date", Appointment{PatientID: uuid.New(), Provider: "Dr A"}},
		{"repeat end before start", Appointment{PatientID: uuid.New(), Provider: "Dr A", StartTime: start, Repeat: CadenceDaily, RepeatEnd: &before}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService()
			a := tt.a
			err := svc.CreateAppointment(context.Background(), &a)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateAppointment_NoneClearsRepeatEnd(t *testing.T) {
	svc := newTestService()
	end := utc(2025, 12, 1, 0)
	a := &Appointment{PatientID: uuid.New(), Provider: "Dr A", StartTime: utc(2025, 10, 9, 0), Repeat: "", RepeatEnd: &end}
	if err := svc.CreateAppointment(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Repeat != CadenceNone || a.RepeatEnd != nil {
		t.Errorf("expected none cadence without repeat_end, got %q %v", a.Repeat, a.RepeatEnd)
	}
}

func TestUpdateAppointment_NotFound(t *testing.T) {
	svc := newTestService()
	a := &Appointment{ID: uuid.New(), PatientID: uuid.New(), Provider: "Dr A", StartTime: utc(2025, 10, 9, 0)}
	if err := svc.UpdateAppointment(context.Background(), a); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPatientOccurrences_MergedInDateOrder(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	pid := uuid.New()

	weekly := &Appointment{PatientID: pid, Provider: "Dr Weekly", StartTime: utc(2025, 10, 9, 9), Repeat: CadenceWeekly}
	single := &Appointment{PatientID: pid, Provider: "Dr Once", StartTime: utc(2025, 10, 12, 9)}
	other := &Appointment{PatientID: uuid.New(), Provider: "Dr Other", StartTime: utc(2025, 10, 10, 9)}
	for _, a := range []*Appointment{weekly, single, other} {
		if err := svc.CreateAppointment(ctx, a); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	occs, err := svc.PatientOccurrences(ctx, pid, window.Range{Start: utc(2025, 10, 1, 0), End: utc(2025, 10, 20, 0)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []time.Time{utc(2025, 10, 9, 9), utc(2025, 10, 12, 9), utc(2025, 10, 16, 9)}
	if len(occs) != len(want) {
		t.Fatalf("expected %d occurrences, got %d", len(want), len(occs))
	}
	for i, o := range occs {
		if !o.Date.Equal(want[i]) {
			t.Errorf("occurrence %d at %v, want %v", i, o.Date, want[i])
		}
		if o.PatientID != pid {
			t.Errorf("occurrence %d belongs to another patient", i)
		}
	}
}

func TestUpcomingOccurrences_WindowFiltered(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	// Started long ago, still repeating.
	svc.CreateAppointment(ctx, &Appointment{PatientID: uuid.New(), Provider: "Dr Daily", StartTime: utc(2025, 9, 1, 8), Repeat: CadenceDaily})
	// Finished before the window.
	end := utc(2025, 9, 20, 0)
	svc.CreateAppointment(ctx, &Appointment{PatientID: uuid.New(), Provider: "Dr Done", StartTime: utc(2025, 9, 1, 8), Repeat: CadenceWeekly, RepeatEnd: &end})
	// Single, after the window.
	svc.CreateAppointment(ctx, &Appointment{PatientID: uuid.New(), Provider: "Dr Later", StartTime: utc(2025, 12, 1, 8)})

	r := window.Days(utc(2025, 10, 9, 0), 7)
	occs, err := svc.UpcomingOccurrences(ctx, r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(occs) != 7 {
		t.Fatalf("expected 7 daily occurrences in window, got %d", len(occs))
	}
	for _, o := range occs {
		if !r.Contains(o.Date) || o.Provider != "Dr Daily" {
			t.Errorf("unexpected occurrence %+v", o)
		}
	}
}

func TestAppointmentOccurrences_NotFound(t *testing.T) {
	svc := newTestService()
	_, err := svc.AppointmentOccurrences(context.Background(), uuid.New(), utc(2025, 12, 1, 0))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpcomingOccurrences_StartedYearsAgo(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	svc.CreateAppointment(ctx, &Appointment{PatientID: uuid.New(), Provider: "Dr Daily", StartTime: utc(2011, 10, 1, 8), Repeat: CadenceDaily})

	r := window.Days(utc(2025, 10, 1, 0), 7)
	occs, err := svc.UpcomingOccurrences(ctx, r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(occs) != 7 {
		t.Fatalf("expected 7 occurrences in window, got %d", len(occs))
	}
	if !occs[0].Date.Equal(utc(2025, 10, 1, 8)) {
		t.Errorf("first occurrence at %v", occs[0].Date)
	}
}
