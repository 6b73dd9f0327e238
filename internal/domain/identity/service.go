package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/ehr/emr/internal/platform/auth"
)

const maxAge = 150

type Service struct {
	patients PatientRepository
}

func NewService(patients PatientRepository) *Service {
	return &Service{patients: patients}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func validate(p *Patient) error {
	p.FullName = strings.TrimSpace(p.FullName)
	p.Email = normalizeEmail(p.Email)
	if p.FullName == "" {
		return fmt.Errorf("%w: full_name is required", ErrValidation)
	}
	if p.Email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if addr, err := mail.ParseAddress(p.Email); err != nil || addr.Address != p.Email {
		return fmt.Errorf("%w: email is not a valid address", ErrValidation)
	}
	if p.Age < 0 || p.Age > maxAge {
		return fmt.Errorf("%w: age must be between 0 and %d", ErrValidation, maxAge)
	}
	return nil
}

func hash(password string) (string, error) {
	h, err := auth.HashPassword(password)
	if errors.Is(err, auth.ErrWeakPassword) {
		return "", fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return h, err
}

// CreatePatient validates p, hashes password and stores the record.
func (s *Service) CreatePatient(ctx context.Context, p *Patient, password string) error {
	if err := validate(p); err != nil {
		return err
	}
	if password == "" {
		return fmt.Errorf("%w: password is required", ErrValidation)
	}
	if err := s.ensureEmailFree(ctx, p.Email, uuid.Nil); err != nil {
		return err
	}
	h, err := hash(password)
	if err != nil {
		return err
	}
	p.PasswordHash = h
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) GetPatientByEmail(ctx context.Context, email string) (*Patient, error) {
	return s.patients.GetByEmail(ctx, normalizeEmail(email))
}

// UpdatePatient replaces the patient's details. An empty password keeps the
// stored hash.
func (s *Service) UpdatePatient(ctx context.Context, p *Patient, password string) error {
	if err := validate(p); err != nil {
		return err
	}
	existing, err := s.patients.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if err := s.ensureEmailFree(ctx, p.Email, p.ID); err != nil {
		return err
	}
	p.PasswordHash = existing.PasswordHash
	if password != "" {
		if p.PasswordHash, err = hash(password); err != nil {
			return err
		}
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

func (s *Service) SearchPatients(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	return s.patients.Search(ctx, params, limit, offset)
}

// AccountByEmail implements auth.AccountLookup.
func (s *Service) AccountByEmail(ctx context.Context, email string) (*auth.Account, error) {
	p, err := s.GetPatientByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, auth.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &auth.Account{ID: p.ID, Email: p.Email, Name: p.FullName, PasswordHash: p.PasswordHash}, nil
}

func (s *Service) ensureEmailFree(ctx context.Context, email string, self uuid.UUID) error {
	other, err := s.patients.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return err
	case other.ID != self:
		return ErrDuplicateEmail
	}
	return nil
}
