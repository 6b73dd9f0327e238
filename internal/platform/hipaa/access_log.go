// Package hipaa keeps the access log of who read or changed patient records.
package hipaa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/emr/internal/platform/middleware"
)

const recordTimeout = 2 * time.Second

// AccessLog is one row of the access_log table.
type AccessLog struct {
	ID         uuid.UUID  `json:"id"`
	RequestID  string     `json:"request_id,omitempty"`
	UserID     string     `json:"user_id,omitempty"`
	Role       string     `json:"role,omitempty"`
	PatientID  *uuid.UUID `json:"patient_id,omitempty"`
	Action     string     `json:"action"`
	Resource   string     `json:"resource"`
	Method     string     `json:"method"`
	Route      string     `json:"route"`
	RemoteIP   string     `json:"remote_ip,omitempty"`
	Status     int        `json:"status"`
	AccessedAt time.Time  `json:"accessed_at"`
}

// Filter narrows an access log search. Zero fields match everything.
type Filter struct {
	PatientID uuid.UUID
	UserID    string
	Action    string
	Since     time.Time
	Until     time.Time
}

type Repository interface {
	Insert(ctx context.Context, l *AccessLog) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*AccessLog, int, error)
}

// Recorder stores audit entries from the HTTP layer in the access log.
type Recorder struct {
	repo    Repository
	timeout time.Duration
}

func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo, timeout: recordTimeout}
}

var _ middleware.AuditRecorder = (*Recorder)(nil)

// RecordAccess converts entry and inserts it. A patient id that does not parse
// is dropped rather than failing the write.
func (r *Recorder) RecordAccess(entry middleware.AuditEntry) error {
	l := &AccessLog{
		RequestID:  entry.RequestID,
		UserID:     entry.UserID,
		Role:       entry.Role,
		Action:     entry.Action,
		Resource:   entry.Resource,
		Method:     entry.Method,
		Route:      entry.Route,
		RemoteIP:   entry.RemoteIP,
		Status:     entry.StatusCode,
		AccessedAt: entry.Timestamp,
	}
	if id, err := uuid.Parse(entry.PatientID); err == nil {
		l.PatientID = &id
	}
	if l.AccessedAt.IsZero() {
		l.AccessedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.repo.Insert(ctx, l); err != nil {
		return fmt.Errorf("hipaa access log: %w", err)
	}
	return nil
}

var ErrInvalidFilter = errors.New("invalid access log filter")

func (r *Recorder) Search(ctx context.Context, f Filter, limit, offset int) ([]*AccessLog, int, error) {
	if !f.Since.IsZero() && !f.Until.IsZero() && f.Until.Before(f.Since) {
		return nil, 0, fmt.Errorf("%w: until is before since", ErrInvalidFilter)
	}
	items, total, err := r.repo.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []*AccessLog{}
	}
	return items, total, nil
}
