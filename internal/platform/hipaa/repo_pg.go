package hipaa

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const accessCols = `id, request_id, user_id, role, patient_id, action, resource, method, route,
	COALESCE(host(remote_ip), ''), status, accessed_at`

func (r *repoPG) Insert(ctx context.Context, l *AccessLog) error {
	l.ID = uuid.New()
	var ip any
	if l.RemoteIP != "" {
		ip = l.RemoteIP
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO access_log (id, request_id, user_id, role, patient_id, action, resource, method, route, remote_ip, status, accessed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::inet, $11, $12)`,
		l.ID, l.RequestID, l.UserID, l.Role, l.PatientID, l.Action, l.Resource, l.Method, l.Route, ip, l.Status, l.AccessedAt,
	)
	return err
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*AccessLog, int, error) {
	where := ` WHERE 1=1`
	var args []any
	idx := 1

	if f.PatientID != uuid.Nil {
		where += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, f.PatientID)
		idx++
	}
	if f.UserID != "" {
		where += fmt.Sprintf(` AND user_id = $%d`, idx)
		args = append(args, f.UserID)
		idx++
	}
	if f.Action != "" {
		where += fmt.Sprintf(` AND action = $%d`, idx)
		args = append(args, f.Action)
		idx++
	}
	if !f.Since.IsZero() {
		where += fmt.Sprintf(` AND accessed_at >= $%d`, idx)
		args = append(args, f.Since)
		idx++
	}
	if !f.Until.IsZero() {
		where += fmt.Sprintf(` AND accessed_at <= $%d`, idx)
		args = append(args, f.Until)
		idx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM access_log`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + accessCols + ` FROM access_log` + where +
		fmt.Sprintf(` ORDER BY accessed_at DESC, id LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*AccessLog
	for rows.Next() {
		var l AccessLog
		if err := rows.Scan(&l.ID, &l.RequestID, &l.UserID, &l.Role, &l.PatientID, &l.Action, &l.Resource,
			&l.Method, &l.Route, &l.RemoteIP, &l.Status, &l.AccessedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &l)
	}
	return items, total, rows.Err()
}
