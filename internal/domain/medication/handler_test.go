package medication

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

	"github.com/ehr/emr/internal/platform/auth"
)

func newTestHandler() (*Handler, *Service, *echo.Echo) {
	svc, _ := newTestService()
	return NewHandler(svc), svc, echo.New()
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

func TestHandler_CreatePrescription(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"patient_id":"` + uuid.New().String() + `","medication":"Amoxicillin","dosage":"250mg","quantity":1,"refill_date":"2025-10-05","refill_schedule":"monthly"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/", body), rec)

	if err := h.CreatePrescription(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var got Prescription
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID == uuid.Nil || got.RefillSchedule == nil || *got.RefillSchedule != "monthly" {
		t.Errorf("unexpected prescription %+v", got)
	}
}

func TestHandler_CreatePrescription_BadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"patient_id":`},
		{"bad refill date", `{"patient_id":"` + uuid.New().String() + `","medication":"X","dosage":"1mg","quantity":1,"refill_date":"soon"}`},
		{"bad patient id", `{"patient_id":"nope","medication":"X","dosage":"1mg","quantity":1,"refill_date":"2025-10-05"}`},
		{"dosage not allowed", `{"patient_id":"` + uuid.New().String() + `","medication":"Lexapro","dosage":"15mg","quantity":1,"refill_date":"2025-10-05"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, e := newTestHandler()
			c := e.NewContext(jsonRequest(http.MethodPost, "/", tt.body), httptest.NewRecorder())
			if code := statusOf(t, h.CreatePrescription(c)); code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", code)
			}
		})
	}
}

func TestHandler_GetPrescription_NotFound(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	if code := statusOf(t, h.GetPrescription(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandler_ListPrescriptions_FilterByPatient(t *testing.T) {
	h, svc, e := newTestHandler()
	patient := uuid.New()
	_ = svc.CreatePrescription(context.Background(), validPrescription(patient))
	_ = svc.CreatePrescription(context.Background(), validPrescription(uuid.New()))

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?patient_id="+patient.String(), nil), rec)
	if err := h.ListPrescriptions(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Data  []Prescription `json:"data"`
		Total int            `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 || len(body.Data) != 1 || body.Data[0].PatientID != patient {
		t.Errorf("expected one prescription for patient, got %+v", body)
	}
}

func TestHandler_DeletePrescription(t *testing.T) {
	h, svc, e := newTestHandler()
	p := validPrescription(uuid.New())
	_ = svc.CreatePrescription(context.Background(), p)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	if err := h.DeletePrescription(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestHandler_CatalogRoutes_RoleGuard(t *testing.T) {
	h, _, e := newTestHandler()
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := c.Request().Header.Get("X-Test-Role")
			ctx := auth.WithSession(c.Request().Context(), &auth.Session{UserID: "test-user", Role: role})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	h.RegisterRoutes(api)

	tests := []struct {
		name   string
		method string
		path   string
		role   string
		body   string
		want   int
	}{
		{"patient reads catalog", http.MethodGet, "/api/v1/medications/catalog", auth.RolePatient, "", http.StatusOK},
		{"admin reads catalog", http.MethodGet, "/api/v1/medications/catalog", auth.RoleAdmin, "", http.StatusOK},
		{"patient cannot edit catalog", http.MethodPut, "/api/v1/medications/catalog", auth.RolePatient, `{"name":"X","dosages":["1mg"]}`, http.StatusForbidden},
		{"admin edits catalog", http.MethodPut, "/api/v1/medications/catalog", auth.RoleAdmin, `{"name":"X","dosages":["1mg"]}`, http.StatusOK},
		{"patient cannot list prescriptions", http.MethodGet, "/api/v1/prescriptions", auth.RolePatient, "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := jsonRequest(tt.method, tt.path, tt.body)
			req.Header.Set("X-Test-Role", tt.role)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d (%s)", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}
