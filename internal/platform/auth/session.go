package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const sessionKey contextKey = "session"

const (
	RoleAdmin   = "admin"
	RolePatient = "patient"
)

// Session is the authenticated identity attached to a request. Patients carry
// their patient id; admins have uuid.Nil.
type Session struct {
	UserID    string    `json:"user_id"`
	PatientID uuid.UUID `json:"patient_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Role      string    `json:"role"`
	TokenID   string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Session) IsAdmin() bool { return s != nil && s.Role == RoleAdmin }

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok && s != nil
}

// devSession is attached to unauthenticated requests in development mode.
func devSession() *Session {
	return &Session{UserID: "dev-user", Email: "dev@localhost", Role: RoleAdmin}
}
