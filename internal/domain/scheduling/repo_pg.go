package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

const apptCols = `a.id, a.patient_id, a.provider, a.start_time, a.cadence, a.repeat_end, a.created_at, a.updated_at`

func scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var cadence string
	err := row.Scan(&a.ID, &a.PatientID, &a.Provider, &a.StartTime, &cadence, &a.RepeatEnd,
		&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Repeat = ParseCadence(cadence)
	return &a, nil
}

func collectAppts(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	return r.pool.QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, provider, start_time, cadence, repeat_end)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.Provider, a.StartTime, string(a.Repeat), a.RepeatEnd,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppt(r.pool.QueryRow(ctx, `SELECT `+apptCols+` FROM appointment a WHERE a.id = $1`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE appointment SET patient_id=$2, provider=$3, start_time=$4, cadence=$5, repeat_end=$6,
			updated_at=NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.Provider, a.StartTime, string(a.Repeat), a.RepeatEnd,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return r.Search(ctx, map[string]string{"patient": patientID.String()}, limit, offset)
}

// Search supports the filters "patient" (id) and "email" (patient email,
// case-insensitive). Results are ordered by start time ascending.
func (r *appointmentRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Appointment, int, error) {
	from := ` FROM appointment a JOIN patient p ON p.id = a.patient_id WHERE 1=1`
	var args []interface{}
	idx := 1

	if v, ok := params["patient"]; ok {
		from += fmt.Sprintf(` AND a.patient_id = $%d`, idx)
		args = append(args, v)
		idx++
	}
	if v, ok := params["email"]; ok {
		from += fmt.Sprintf(` AND lower(p.email) = lower($%d)`, idx)
		args = append(args, v)
		idx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+from, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + apptCols + from + fmt.Sprintf(` ORDER BY a.start_time ASC, a.id LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectAppts(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *appointmentRepoPG) ListAllByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+apptCols+` FROM appointment a
		WHERE a.patient_id = $1 ORDER BY a.start_time ASC, a.id`, patientID)
	if err != nil {
		return nil, err
	}
	return collectAppts(rows)
}

func (r *appointmentRepoPG) ListActive(ctx context.Context, since time.Time) ([]*Appointment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+apptCols+` FROM appointment a
		WHERE a.start_time >= $1
		   OR (lower(a.cadence) <> 'none' AND (a.repeat_end IS NULL OR a.repeat_end >= $1))
		ORDER BY a.start_time ASC, a.id`, since)
	if err != nil {
		return nil, err
	}
	return collectAppts(rows)
}
