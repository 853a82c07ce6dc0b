package consent

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medconsult/medconsult/internal/platform/auth"
	"github.com/medconsult/medconsult/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	clinical := api.Group("", auth.RequireRole(auth.Clinical...))
	clinical.POST("/generate-consent-pdf", h.GeneratePDF)
	clinical.POST("/consents/:id/revoke", h.Revoke)

	staff := api.Group("", auth.RequireRole(auth.Staff...))
	staff.GET("/consents", h.List)
	staff.GET("/consents/:id", h.Get)
	staff.GET("/consents/:id/pdf", h.DownloadPDF)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func serviceError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrRevoked):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
}

// GeneratePDF records the consent and answers with the rendered document.
// The new consent id is returned in X-Consent-ID.
func (h *Handler) GeneratePDF(c echo.Context) error {
	var req GenerateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	consent, pdf, err := h.svc.Generate(c.Request().Context(), req)
	if err != nil {
		return serviceError(err)
	}
	c.Response().Header().Set("X-Consent-ID", consent.ID.String())
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s"`, fileName(consent)))
	return c.Blob(http.StatusCreated, "application/pdf", pdf)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	var params ListParams
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		params.PatientID = &id
	}
	switch status := c.QueryParam("status"); status {
	case "", StatusActive, StatusRevoked:
		params.Status = status
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	items, total, err := h.svc.ListConsents(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	consent, err := h.svc.GetConsent(c.Request().Context(), id)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, consent)
}

func (h *Handler) DownloadPDF(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	consent, rc, err := h.svc.OpenPDF(c.Request().Context(), id)
	if err != nil {
		return serviceError(err)
	}
	defer rc.Close()
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`inline; filename="%s"`, fileName(consent)))
	return c.Stream(http.StatusOK, "application/pdf", rc)
}

func (h *Handler) Revoke(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	consent, err := h.svc.Revoke(c.Request().Context(), id)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, consent)
}
