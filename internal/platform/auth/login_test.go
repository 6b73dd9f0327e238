package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type mockAccounts struct {
	byEmail map[string]*Account
	err     error
}

func (m *mockAccounts) AccountByEmail(_ context.Context, email string) (*Account, error) {
	if m.err != nil {
		return nil, m.err
	}
	a, ok := m.byEmail[email]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return a, nil
}

func mustHash(t *testing.T, pw string) string {
	t.Helper()
	h, err := HashPassword(pw)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return h
}

func newTestAuthenticator(t *testing.T) (*Authenticator, *Account) {
	john := &Account{ID: uuid.New(), Email: "john@example.com", Name: "John Doe", PasswordHash: mustHash(t, "password123")}
	accounts := &mockAccounts{byEmail: map[string]*Account{john.Email: john}}
	admin := AdminCredentials{Email: "admin@clinic.test", PasswordHash: mustHash(t, "admin-secret")}
	return NewAuthenticator(accounts, admin, newTestIssuer()), john
}

func TestAuthenticator_PatientLogin(t *testing.T) {
	a, john := newTestAuthenticator(t)
	s, token, err := a.Login(context.Background(), "  John@Example.com ", "password123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token == "" || s.Role != RolePatient || s.PatientID != john.ID {
		t.Errorf("unexpected session %+v", s)
	}
}

func TestAuthenticator_AdminLogin(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	s, _, err := a.Login(context.Background(), "admin@clinic.test", "admin-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.IsAdmin() {
		t.Errorf("expected admin session, got %+v", s)
	}
}

func TestAuthenticator_InvalidCredentials(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	cases := [][2]string{
		{"john@example.com", "wrong-password"},
		{"nobody@example.com", "password123"},
		{"admin@clinic.test", "password123"},
		{"", "password123"},
		{"john@example.com", ""},
	}
	for _, cse := range cases {
		if _, _, err := a.Login(context.Background(), cse[0], cse[1]); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login(%q) expected ErrInvalidCredentials, got %v", cse[0], err)
		}
	}
}

func TestAuthenticator_LookupFailure(t *testing.T) {
	a := NewAuthenticator(&mockAccounts{err: errors.New("db down")}, AdminCredentials{}, newTestIssuer())
	_, _, err := a.Login(context.Background(), "john@example.com", "password123")
	if err == nil || errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected lookup error to propagate, got %v", err)
	}
}

func TestHandler_Login(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	h := NewHandler(a, NewRevocationStore(0))
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"john@example.com","password":"password123"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.Login(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token == "" || resp.Session == nil || resp.Session.Role != RolePatient {
		t.Errorf("unexpected response %s", rec.Body.String())
	}
}

func TestHandler_Login_Unauthorized(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	h := NewHandler(a, nil)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"john@example.com","password":"nope-nope"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	err := h.Login(e.NewContext(req, httptest.NewRecorder()))
	if codeOf(err) != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestHandler_Logout(t *testing.T) {
	revoked := NewRevocationStore(0)
	h := NewHandler(nil, revoked)
	e := echo.New()

	s := &Session{UserID: "admin", Role: RoleAdmin, TokenID: "tok-1"}
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(WithSession(req.Context(), s))
	rec := httptest.NewRecorder()

	if err := h.Logout(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent || !revoked.IsRevoked("tok-1") {
		t.Errorf("expected token revoked with 204, got %d", rec.Code)
	}
}

func TestHashPassword(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("expected ErrWeakPassword, got %v", err)
	}
	h := mustHash(t, "password123")
	if !IsHash(h) {
		t.Error("expected bcrypt hash to be recognised")
	}
	if IsHash("password123") {
		t.Error("plaintext must not be recognised as a hash")
	}
	if !CheckPassword(h, "password123") || CheckPassword(h, "password124") {
		t.Error("CheckPassword mismatch")
	}
}
