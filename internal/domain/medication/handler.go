package medication

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/emr/internal/platform/auth"
	"github.com/ehr/emr/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/prescriptions", h.ListPrescriptions)
	admin.POST("/prescriptions", h.CreatePrescription)
	admin.GET("/prescriptions/:id", h.GetPrescription)
	admin.PUT("/prescriptions/:id", h.UpdatePrescription)
	admin.DELETE("/prescriptions/:id", h.DeletePrescription)
	admin.PUT("/medications/catalog", h.UpsertCatalogEntry)

	api.GET("/medications/catalog", h.ListCatalog, auth.RequireRole(auth.RolePatient))
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "prescription not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}

func bindPrescription(c echo.Context) (*Prescription, error) {
	var req PrescriptionRequest
	if err := c.Bind(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	p, err := req.Prescription()
	if err != nil {
		return nil, httpError(err)
	}
	return p, nil
}

func (h *Handler) CreatePrescription(c echo.Context) error {
	p, err := bindPrescription(c)
	if err != nil {
		return err
	}
	if err := h.svc.CreatePrescription(c.Request().Context(), p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPrescription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPrescription(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPrescriptions(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := make(map[string]string)
	if v := c.QueryParam("patient_id"); v != "" {
		if _, err := uuid.Parse(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		params["patient"] = v
	}
	if v := c.QueryParam("email"); v != "" {
		params["email"] = v
	}
	if v := c.QueryParam("medication"); v != "" {
		params["medication"] = v
	}

	items, total, err := h.svc.SearchPrescriptions(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Prescription{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Path()))
}

func (h *Handler) UpdatePrescription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := bindPrescription(c)
	if err != nil {
		return err
	}
	p.ID = id
	if err := h.svc.UpdatePrescription(c.Request().Context(), p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePrescription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeletePrescription(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListCatalog(c echo.Context) error {
	items, err := h.svc.ListCatalog(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*AllowedMedication{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpsertCatalogEntry(c echo.Context) error {
	var m AllowedMedication
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := h.svc.UpsertCatalogEntry(c.Request().Context(), &m); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}
