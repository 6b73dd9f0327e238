package identity

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("patient not found")
	ErrDuplicateEmail = errors.New("a patient with this email already exists")
	ErrValidation     = errors.New("invalid patient")
)

// Patient maps to the patient table. PasswordHash never leaves the server.
type Patient struct {
	ID           uuid.UUID `db:"id" json:"id"`
	FullName     string    `db:"full_name" json:"full_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Age          int       `db:"age" json:"age"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// PatientRequest is the body accepted on create and update. Password may be
// omitted on update to keep the current one.
type PatientRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Age      *int   `json:"age"`
}

func (r PatientRequest) Patient() *Patient {
	p := &Patient{FullName: r.FullName, Email: r.Email}
	if r.Age != nil {
		p.Age = *r.Age
	}
	return p
}
