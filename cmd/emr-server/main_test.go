package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/emr/internal/config"
	"github.com/ehr/emr/internal/platform/auth"
	"github.com/ehr/emr/internal/platform/db"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func testConfig(env string) *config.Config {
	return &config.Config{
		Env:            env,
		CORSOrigins:    []string{"http://localhost:3000"},
		RateLimitRPS:   100,
		RateLimitBurst: 200,
		RequestTimeout: 5 * time.Second,
	}
}

func newTestServer(t *testing.T, env string) (*echo.Echo, *auth.TokenIssuer) {
	t.Helper()
	tokens := auth.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), tokenIssuer, time.Hour)
	revoked := auth.NewRevocationStore(time.Minute)
	t.Cleanup(revoked.Close)

	e := newServer(testConfig(env), zerolog.Nop(), tokens, revoked, nil)
	e.GET("/health", db.LivenessHandler)
	e.GET("/api/v1/whoami", func(c echo.Context) error {
		s, ok := auth.SessionFromContext(c.Request().Context())
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized)
		}
		return c.String(http.StatusOK, s.Role)
	})
	return e, tokens
}

func TestServer_HealthIsPublic(t *testing.T) {
	e, _ := newTestServer(t, "production")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Error("expected a request id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Error("expected HSTS in production")
	}
}

func TestServer_RequiresToken(t *testing.T) {
	e, _ := newTestServer(t, "production")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/whoami", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestServer_BearerToken(t *testing.T) {
	e, tokens := newTestServer(t, "production")
	token, err := tokens.Issue(&auth.Session{
		UserID:    "patient-1",
		PatientID: uuid.New(),
		Email:     "john@example.com",
		Role:      auth.RolePatient,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != auth.RolePatient {
		t.Errorf("role = %q, want %q", rec.Body.String(), auth.RolePatient)
	}
}

func TestServer_DevModeActsAsAdmin(t *testing.T) {
	e, _ := newTestServer(t, "development")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/whoami", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != auth.RoleAdmin {
		t.Errorf("role = %q, want %q", rec.Body.String(), auth.RoleAdmin)
	}
}
