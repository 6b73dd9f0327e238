package medication

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/emr/internal/platform/db/dbtest"
)

func insertPatient(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO patient (id, full_name, email, password_hash, age) VALUES ($1, 'Repo Test', $2, 'hash', 30)`,
		id, "repo+"+id.String()+"@example.com")
	if err != nil {
		t.Fatalf("insert patient: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM patient WHERE id = $1`, id)
	})
	return id
}

func TestPrescriptionRepoPG(t *testing.T) {
	pool := dbtest.Pool(t)
	repo := NewPrescriptionRepoPG(pool)
	ctx := context.Background()
	patient := insertPatient(t, pool)

	schedule := "monthly"
	inWindow := &Prescription{PatientID: patient, Medication: "Lexapro", Dosage: "10mg", Quantity: 30,
		RefillDate: time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC), RefillSchedule: &schedule}
	outside := &Prescription{PatientID: patient, Medication: "Amoxicillin", Dosage: "500mg", Quantity: 14,
		RefillDate: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)}
	for _, p := range []*Prescription{inWindow, outside} {
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := repo.GetByID(ctx, inWindow.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RefillSchedule == nil || *got.RefillSchedule != "monthly" || got.Quantity != 30 {
		t.Errorf("unexpected prescription %+v", got)
	}

	refills, err := repo.ListRefillsBetween(ctx,
		time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("refills: %v", err)
	}
	for _, p := range refills {
		if p.ID == outside.ID {
			t.Error("refill outside the window returned")
		}
	}

	if err := repo.Delete(ctx, outside.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, outside.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCatalogRepoPG(t *testing.T) {
	pool := dbtest.Pool(t)
	repo := NewCatalogRepoPG(pool)
	ctx := context.Background()
	name := "Testamol " + uuid.NewString()[:8]
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM allowed_medication WHERE name = $1`, name)
	})

	if err := repo.Upsert(ctx, &AllowedMedication{Name: name, Dosages: []string{"5mg"}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.Upsert(ctx, &AllowedMedication{Name: name, Dosages: []string{"5mg", "10mg"}}); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	lower := &AllowedMedication{Name: strings.ToLower(name), Dosages: []string{"5mg", "10mg", "20mg"}}
	if err := repo.Upsert(ctx, lower); err != nil {
		t.Fatalf("upsert with different case: %v", err)
	}
	if lower.Name != name {
		t.Errorf("name = %q, want stored spelling %q", lower.Name, name)
	}

	got, err := repo.Get(ctx, name)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Dosages) != 3 {
		t.Errorf("dosages = %v", got.Dosages)
	}
	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	matches := 0
	for _, m := range all {
		if strings.EqualFold(m.Name, name) {
			matches++
		}
	}
	if matches != 1 {
		t.Errorf("expected one catalogue row for %q, got %d", name, matches)
	}
	if _, err := repo.Get(ctx, "no such medication "+name); !errors.Is(err, ErrMedicationUnknown) {
		t.Errorf("expected ErrMedicationUnknown, got %v", err)
	}
}
