package notification

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/emr/internal/platform/auth"
	"github.com/ehr/emr/pkg/pagination"
)

// Handler exposes reminders to admins.
type Handler struct {
	store   *Store
	sweeper *Sweeper
}

func NewHandler(store *Store, sweeper *Sweeper) *Handler {
	return &Handler{store: store, sweeper: sweeper}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	g.GET("/reminders", h.ListReminders)
	g.GET("/reminders/stats", h.Stats)
	g.POST("/reminders/sweep", h.Sweep)
}

// ListReminders handles GET /admin/reminders?patient_id=...
func (h *Handler) ListReminders(c echo.Context) error {
	pg := pagination.FromContext(c)
	patientID := uuid.Nil
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		patientID = id
	}
	items, total := h.store.List(patientID, pg.Limit, pg.Offset)
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Path()))
}

func (h *Handler) Stats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.Stats())
}

// Sweep handles POST /admin/reminders/sweep, running a sweep immediately.
func (h *Handler) Sweep(c echo.Context) error {
	res, err := h.sweeper.Sweep(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "reminder sweep failed").SetInternal(err)
	}
	return c.JSON(http.StatusOK, res)
}
