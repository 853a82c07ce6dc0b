package forms

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medconsult/medconsult/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.Staff...))
	readGroup.GET("/specialties", h.ListSpecialties)
	readGroup.GET("/form-templates/specialty/:id", h.ListTemplates)
	readGroup.GET("/form-templates/:id/full", h.GetTemplate)
	readGroup.GET("/form-sections/:templateId", h.ListSections)
	readGroup.GET("/form-fields/:sectionId", h.ListFields)

	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.POST("/specialties", h.CreateSpecialty)
	adminGroup.POST("/form-templates", h.CreateTemplate)
	adminGroup.POST("/form-sections", h.CreateSection)
	adminGroup.POST("/form-fields", h.CreateField)
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func storageError(err error, what string) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, what+" not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
}

func createError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

func (h *Handler) ListSpecialties(c echo.Context) error {
	items, err := h.svc.ListSpecialties(c.Request().Context())
	if err != nil {
		return storageError(err, "specialties")
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateSpecialty(c echo.Context) error {
	var req struct {
		Code        string  `json:"code"`
		Name        string  `json:"name"`
		Description *string `json:"description"`
		Active      *bool   `json:"active"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sp := &Specialty{Code: req.Code, Name: req.Name, Description: req.Description, Active: true}
	if req.Active != nil {
		sp.Active = *req.Active
	}
	if err := h.svc.CreateSpecialty(c.Request().Context(), sp); err != nil {
		return createError(err)
	}
	return c.JSON(http.StatusCreated, sp)
}

func (h *Handler) ListTemplates(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListTemplates(c.Request().Context(), id)
	if err != nil {
		return storageError(err, "templates")
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetTemplate(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	t, err := h.svc.GetTemplate(c.Request().Context(), id)
	if err != nil {
		return storageError(err, "template")
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) CreateTemplate(c echo.Context) error {
	var t FormTemplate
	t.Active = true
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t.Sections = nil
	if err := h.svc.CreateTemplate(c.Request().Context(), &t); err != nil {
		return createError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) ListSections(c echo.Context) error {
	id, err := parseID(c, "templateId")
	if err != nil {
		return err
	}
	items, err := h.svc.ListSections(c.Request().Context(), id)
	if err != nil {
		return storageError(err, "sections")
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateSection(c echo.Context) error {
	var sec FormSection
	if err := c.Bind(&sec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sec.Fields = nil
	if err := h.svc.CreateSection(c.Request().Context(), &sec); err != nil {
		return createError(err)
	}
	return c.JSON(http.StatusCreated, sec)
}

func (h *Handler) ListFields(c echo.Context) error {
	id, err := parseID(c, "sectionId")
	if err != nil {
		return err
	}
	items, err := h.svc.ListFields(c.Request().Context(), id)
	if err != nil {
		return storageError(err, "fields")
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateField(c echo.Context) error {
	var f FormField
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateField(c.Request().Context(), &f); err != nil {
		return createError(err)
	}
	return c.JSON(http.StatusCreated, f)
}
