package portal

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/emr/internal/domain/identity"
	"github.com/ehr/emr/internal/domain/medication"
	"github.com/ehr/emr/internal/domain/scheduling"
	"github.com/ehr/emr/internal/platform/auth"
	"github.com/ehr/emr/pkg/window"
)

const mimeCalendar = "text/calendar; charset=utf-8"

type Handler struct {
	svc *Service
	now func() time.Time
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/portal", auth.RequireRole(auth.RolePatient))
	g.GET("/me", h.Me)
	g.GET("/dashboard", h.Dashboard)
	g.GET("/appointments", h.Appointments)
	g.GET("/prescriptions", h.Prescriptions)
	g.GET("/calendar.ics", h.Calendar)
}

type listResponse[T any] struct {
	Window window.Range `json:"window"`
	Data   []T          `json:"data"`
}

func httpError(err error) error {
	switch {
	case errors.Is(err, identity.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, scheduling.ErrInvalidStart):
		return echo.NewHTTPError(http.StatusInternalServerError, "appointment has an invalid start date").SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}

// patientID resolves whose portal is being viewed. Patients see their own
// records; admins must name a patient with ?patient_id=.
func patientID(c echo.Context) (uuid.UUID, error) {
	s, ok := auth.SessionFromContext(c.Request().Context())
	if !ok {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	q := c.QueryParam("patient_id")
	if s.IsAdmin() {
		if q == "" {
			return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
		}
		id, err := uuid.Parse(q)
		if err != nil {
			return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		return id, nil
	}
	if s.PatientID == uuid.Nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "session has no patient")
	}
	if q != "" && q != s.PatientID.String() {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "cannot view another patient's records")
	}
	return s.PatientID, nil
}

func (h *Handler) Me(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Profile(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Dashboard(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Dashboard(c.Request().Context(), id, h.now())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Appointments(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	occs, r, err := h.svc.Appointments(c.Request().Context(), id, h.now())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, listResponse[scheduling.Occurrence]{Window: r, Data: occs})
}

func (h *Handler) Prescriptions(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	items, r, err := h.svc.Prescriptions(c.Request().Context(), id, h.now())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, listResponse[*medication.Prescription]{Window: r, Data: items})
}

func (h *Handler) Calendar(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	p, err := h.svc.Profile(ctx, id)
	if err != nil {
		return httpError(err)
	}
	now := h.now()
	occs, _, err := h.svc.Appointments(ctx, id, now)
	if err != nil {
		return httpError(err)
	}

	var buf bytes.Buffer
	if err := scheduling.WriteCalendar(&buf, p.FullName+" appointments", occs, now); err != nil {
		return httpError(fmt.Errorf("write calendar: %w", err))
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="appointments.ics"`)
	return c.Blob(http.StatusOK, mimeCalendar, buf.Bytes())
}
