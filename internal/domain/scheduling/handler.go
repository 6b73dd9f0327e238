package scheduling

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/emr/internal/platform/auth"
	"github.com/ehr/emr/pkg/pagination"
	"github.com/ehr/emr/pkg/window"
)

type Handler struct {
	svc *Service
	now func() time.Time
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/appointments", h.ListAppointments)
	admin.POST("/appointments", h.CreateAppointment)
	admin.GET("/appointments/:id", h.GetAppointment)
	admin.PUT("/appointments/:id", h.UpdateAppointment)
	admin.DELETE("/appointments/:id", h.DeleteAppointment)
	admin.GET("/appointments/:id/occurrences", h.ListOccurrences)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}

func bindAppointment(c echo.Context) (*Appointment, error) {
	var req AppointmentRequest
	if err := c.Bind(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	a, err := req.Appointment()
	if err != nil {
		return nil, httpError(err)
	}
	return a, nil
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	a, err := bindAppointment(c)
	if err != nil {
		return err
	}
	if err := h.svc.CreateAppointment(c.Request().Context(), a); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

// ListAppointments lists appointments ordered by date. It filters by
// patient_id or by the patient's email when either is given.
func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()

	var (
		items []*Appointment
		total int
		err   error
	)
	switch {
	case c.QueryParam("patient_id") != "":
		pid, perr := uuid.Parse(c.QueryParam("patient_id"))
		if perr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		items, total, err = h.svc.ListAppointmentsByPatient(ctx, pid, pg.Limit, pg.Offset)
	case c.QueryParam("email") != "":
		items, total, err = h.svc.SearchAppointments(ctx, map[string]string{"email": c.QueryParam("email")}, pg.Limit, pg.Offset)
	default:
		items, total, err = h.svc.SearchAppointments(ctx, nil, pg.Limit, pg.Offset)
	}
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Path()))
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := bindAppointment(c)
	if err != nil {
		return err
	}
	a.ID = id
	if err := h.svc.UpdateAppointment(c.Request().Context(), a); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteAppointment(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListOccurrences expands one appointment. The horizon defaults to the full
// list window and can be overridden with ?until=.
func (h *Handler) ListOccurrences(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	until := window.FullList(h.now()).End
	if v := c.QueryParam("until"); v != "" {
		t, ok := window.ParseDate(v)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid until")
		}
		until = t
	}
	occs, err := h.svc.AppointmentOccurrences(c.Request().Context(), id, until)
	if err != nil {
		if errors.Is(err, ErrInvalidStart) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"appointment_id": id,
		"until":          until,
		"occurrences":    occs,
	})
}
