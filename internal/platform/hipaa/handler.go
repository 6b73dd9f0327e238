package hipaa

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/emr/internal/platform/auth"
	"github.com/ehr/emr/pkg/pagination"
	"github.com/ehr/emr/pkg/window"
)

type Handler struct {
	rec *Recorder
}

func NewHandler(rec *Recorder) *Handler {
	return &Handler{rec: rec}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	g.GET("/access-log", h.List)
}

// List handles GET /admin/access-log?patient_id=&user_id=&action=&since=&until=
func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)

	var f Filter
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = id
	}
	f.UserID = c.QueryParam("user_id")
	f.Action = c.QueryParam("action")
	if v := c.QueryParam("since"); v != "" {
		t, ok := window.ParseDate(v)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid since")
		}
		f.Since = t
	}
	if v := c.QueryParam("until"); v != "" {
		t, ok := window.ParseDate(v)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid until")
		}
		f.Until = t
	}

	items, total, err := h.rec.Search(c.Request().Context(), f, pg.Limit, pg.Offset)
	if errors.Is(err, ErrInvalidFilter) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "access log query failed").SetInternal(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Path()))
}
