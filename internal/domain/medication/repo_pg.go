package medication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// =========== Prescription Repository ===========

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

const rxCols = `rx.id, rx.patient_id, rx.medication, rx.dosage, rx.quantity, rx.refill_date,
	rx.refill_schedule, rx.created_at, rx.updated_at`

func scanRx(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.PatientID, &p.Medication, &p.Dosage, &p.Quantity, &p.RefillDate,
		&p.RefillSchedule, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectRx(rows pgx.Rows) ([]*Prescription, error) {
	defer rows.Close()
	var items []*Prescription
	for rows.Next() {
		p, err := scanRx(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	return r.pool.QueryRow(ctx, `
		INSERT INTO prescription (id, patient_id, medication, dosage, quantity, refill_date, refill_schedule)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		p.ID, p.PatientID, p.Medication, p.Dosage, p.Quantity, p.RefillDate, p.RefillSchedule,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return scanRx(r.pool.QueryRow(ctx, `SELECT `+rxCols+` FROM prescription rx WHERE rx.id = $1`, id))
}

func (r *prescriptionRepoPG) Update(ctx context.Context, p *Prescription) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE prescription SET patient_id=$2, medication=$3, dosage=$4, quantity=$5,
			refill_date=$6, refill_schedule=$7, updated_at=NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.PatientID, p.Medication, p.Dosage, p.Quantity, p.RefillDate, p.RefillSchedule,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *prescriptionRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM prescription WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *prescriptionRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return r.Search(ctx, map[string]string{"patient": patientID.String()}, limit, offset)
}

// Search supports "patient" (id), "email" (patient email) and "medication"
// (case-insensitive exact name).
func (r *prescriptionRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Prescription, int, error) {
	from := ` FROM prescription rx JOIN patient p ON p.id = rx.patient_id WHERE 1=1`
	var args []interface{}
	idx := 1

	if v, ok := params["patient"]; ok {
		from += fmt.Sprintf(` AND rx.patient_id = $%d`, idx)
		args = append(args, v)
		idx++
	}
	if v, ok := params["email"]; ok {
		from += fmt.Sprintf(` AND lower(p.email) = lower($%d)`, idx)
		args = append(args, v)
		idx++
	}
	if v, ok := params["medication"]; ok {
		from += fmt.Sprintf(` AND lower(rx.medication) = lower($%d)`, idx)
		args = append(args, v)
		idx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+from, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + rxCols + from + fmt.Sprintf(` ORDER BY rx.refill_date ASC, rx.id LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectRx(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *prescriptionRepoPG) ListAllByPatient(ctx context.Context, patientID uuid.UUID) ([]*Prescription, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+rxCols+` FROM prescription rx
		WHERE rx.patient_id = $1 ORDER BY rx.refill_date ASC, rx.id`, patientID)
	if err != nil {
		return nil, err
	}
	return collectRx(rows)
}

func (r *prescriptionRepoPG) ListRefillsBetween(ctx context.Context, start, end time.Time) ([]*Prescription, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+rxCols+` FROM prescription rx
		WHERE rx.refill_date BETWEEN $1 AND $2 ORDER BY rx.refill_date ASC, rx.id`, start, end)
	if err != nil {
		return nil, err
	}
	return collectRx(rows)
}

// =========== Catalog Repository ===========

type catalogRepoPG struct{ pool *pgxpool.Pool }

func NewCatalogRepoPG(pool *pgxpool.Pool) CatalogRepository {
	return &catalogRepoPG{pool: pool}
}

func (r *catalogRepoPG) List(ctx context.Context) ([]*AllowedMedication, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, dosages, updated_at FROM allowed_medication ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*AllowedMedication
	for rows.Next() {
		var m AllowedMedication
		if err := rows.Scan(&m.Name, &m.Dosages, &m.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, &m)
	}
	return items, rows.Err()
}

func (r *catalogRepoPG) Get(ctx context.Context, name string) (*AllowedMedication, error) {
	var m AllowedMedication
	err := r.pool.QueryRow(ctx, `SELECT name, dosages, updated_at FROM allowed_medication WHERE lower(name) = lower($1)`, name).
		Scan(&m.Name, &m.Dosages, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMedicationUnknown
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Upsert matches existing entries case-insensitively and keeps the stored
// spelling of the name.
func (r *catalogRepoPG) Upsert(ctx context.Context, m *AllowedMedication) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO allowed_medication (name, dosages) VALUES ($1, $2)
		ON CONFLICT ((lower(name))) DO UPDATE SET dosages = EXCLUDED.dosages, updated_at = NOW()
		RETURNING name, updated_at`,
		m.Name, m.Dosages,
	).Scan(&m.Name, &m.UpdatedAt)
}
