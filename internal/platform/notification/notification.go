// Package notification builds appointment and refill reminders from the
// upcoming window, keeps them in memory, and exposes them to admins.
package notification

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Reminder
// ---------------------------------------------------------------------------

// Kind identifies what a reminder is about.
type Kind string

const (
	KindAppointment Kind = "appointment"
	KindRefill      Kind = "refill"
)

// Reminder is one notice about a dated record.
type Reminder struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	RecordID  uuid.UUID `json:"record_id"`
	PatientID uuid.UUID `json:"patient_id"`
	DueAt     time.Time `json:"due_at"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type reminderKey struct {
	kind   Kind
	record uuid.UUID
	due    int64
}

func (r *Reminder) key() reminderKey {
	return reminderKey{kind: r.Kind, record: r.RecordID, due: r.DueAt.UnixNano()}
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

const (
	TemplateAppointment = "appointment-reminder"
	TemplateRefill      = "refill-reminder"
)

// Template defines reminder text with {{key}} placeholders.
type Template struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine manages reminder templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	e.RegisterTemplate(Template{
		ID:      TemplateAppointment,
		Subject: "Upcoming appointment with {{provider}}",
		Body:    "You have an appointment with {{provider}} on {{date}} at {{time}}.",
	})
	e.RegisterTemplate(Template{
		ID:      TemplateRefill,
		Subject: "Refill due for {{medication}}",
		Body:    "Your prescription for {{medication}} {{dosage}} (quantity {{quantity}}) is due for refill on {{date}}.",
	})
	return e
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

// Render performs {{key}} replacement on the named template. Keys absent
// from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	// One pass, so values are never expanded themselves.
	pairs := make([]string, 0, 2*len(data))
	for k, v := range data {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(t.Subject), r.Replace(t.Body), nil
}

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

// Store keeps at most one reminder per (kind, record, due date).
type Store struct {
	mu    sync.RWMutex
	byKey map[reminderKey]*Reminder
}

func NewStore() *Store {
	return &Store{byKey: make(map[reminderKey]*Reminder)}
}

// Add stores r unless an equivalent reminder exists. It reports whether r
// was added.
func (s *Store) Add(r *Reminder) bool {
	k := r.key()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byKey[k]; ok {
		return false
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	s.byKey[k] = r
	return true
}

// List returns reminders ordered by due date, optionally restricted to one
// patient (uuid.Nil for all), with the total before paging.
func (s *Store) List(patientID uuid.UUID, limit, offset int) ([]*Reminder, int) {
	s.mu.RLock()
	all := make([]*Reminder, 0, len(s.byKey))
	for _, r := range s.byKey {
		if patientID == uuid.Nil || r.PatientID == patientID {
			all = append(all, r)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(all, func(a, b *Reminder) int {
		if c := a.DueAt.Compare(b.DueAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	total := len(all)
	if offset >= total {
		return []*Reminder{}, total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total
}

// Prune drops reminders due before cutoff and returns how many were removed.
func (s *Store) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, r := range s.byKey {
		if r.DueAt.Before(cutoff) {
			delete(s.byKey, k)
			n++
		}
	}
	return n
}

// Stats returns reminder counts grouped by kind.
func (s *Store) Stats() map[Kind]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := make(map[Kind]int)
	for _, r := range s.byKey {
		stats[r.Kind]++
	}
	return stats
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}
